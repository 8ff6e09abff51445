// This Source Code Form is subject to the terms of the MIT License.
// If a copy of the MIT License was not distributed with this
// file, you can obtain one at https://opensource.org/licenses/MIT.

package admission

import (
	"context"

	"google.golang.org/grpc"

	"github.com/meridian-chain/meridian/pkg/transport"
)

const serviceName = "meridian.mempool.Admission"

// CreateSessionRequest carries the client's public key and a self-signature
// proving possession of the matching private key.
type CreateSessionRequest struct {
	ClientPK  []byte
	Signature []byte
}

// CreateSessionReply carries the signed session token.
type CreateSessionReply struct {
	AccessToken string
}

// SubmitTransactionRequest wraps a single client-submitted transaction.
type SubmitTransactionRequest struct {
	Transaction transport.WireTransaction
}

// SubmitTransactionReply reports whether the submission was admitted.
type SubmitTransactionReply struct {
	Error string
}

// AdmissionServer is the interface the hand-built ServiceDesc dispatches to.
type AdmissionServer interface {
	CreateSession(ctx context.Context, req *CreateSessionRequest) (*CreateSessionReply, error)
	SubmitTransaction(ctx context.Context, req *SubmitTransactionRequest) (*SubmitTransactionReply, error)
}

var createSessionMethod = "/" + serviceName + "/CreateSession"

// ServiceDesc is the hand-registered equivalent of what `protoc
// --go-grpc_out` would emit from an admission.proto this module does not
// carry (see pkg/transport/grpc for the same pattern applied to gossip).
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*AdmissionServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "CreateSession", Handler: createSessionHandler},
		{MethodName: "SubmitTransaction", Handler: submitTransactionHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "meridian/admission.proto",
}

func createSessionHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(CreateSessionRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(AdmissionServer).CreateSession(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: createSessionMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(AdmissionServer).CreateSession(ctx, req.(*CreateSessionRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func submitTransactionHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(SubmitTransactionRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(AdmissionServer).SubmitTransaction(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/SubmitTransaction"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(AdmissionServer).SubmitTransaction(ctx, req.(*SubmitTransactionRequest))
	}
	return interceptor(ctx, in, info, handler)
}
