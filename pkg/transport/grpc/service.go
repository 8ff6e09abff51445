// This Source Code Form is subject to the terms of the MIT License.
// If a copy of the MIT License was not distributed with this
// file, you can obtain one at https://opensource.org/licenses/MIT.

package grpc

import (
	"context"

	"google.golang.org/grpc"
)

// GossipServer is the service interface the hand-built ServiceDesc below
// dispatches to, playing the role a protoc-generated `XxxServer` interface
// would play in a normal grpc-go service.
type GossipServer interface {
	BroadcastTransactions(ctx context.Context, req *BroadcastTransactionsWire) (*BroadcastTransactionsReplyWire, error)
}

const gossipServiceName = "meridian.mempool.Gossip"

// GossipServiceDesc is the hand-registered equivalent of what `protoc
// --go-grpc_out` would emit from a gossip.proto this module does not carry.
var GossipServiceDesc = grpc.ServiceDesc{
	ServiceName: gossipServiceName,
	HandlerType: (*GossipServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "BroadcastTransactions",
			Handler:    broadcastTransactionsHandler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "meridian/gossip.proto",
}

func broadcastTransactionsHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(BroadcastTransactionsWire)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(GossipServer).BroadcastTransactions(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + gossipServiceName + "/BroadcastTransactions"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(GossipServer).BroadcastTransactions(ctx, req.(*BroadcastTransactionsWire))
	}
	return interceptor(ctx, in, info, handler)
}
