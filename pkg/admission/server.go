// This Source Code Form is subject to the terms of the MIT License.
// If a copy of the MIT License was not distributed with this
// file, you can obtain one at https://opensource.org/licenses/MIT.

package admission

import (
	"context"
	"net"

	grpclib "google.golang.org/grpc"

	"github.com/meridian-chain/meridian/pkg/log"
	"github.com/meridian-chain/meridian/pkg/sharedmempool"
)

var admissionLog = log.WithPrefix("admission-control")

// Submitter is the subset of the shared-mempool runtime the admission
// service needs: enough to hand off a client submission and wait for its
// admission verdict.
type Submitter interface {
	Submit(sharedmempool.ClientSubmission)
}

// Server is the gRPC-facing admission-control front door (§6): it
// authenticates client sessions and forwards submitted transactions into
// the shared mempool's Inbound Handler.
type Server struct {
	listenAddr  string
	sessions    *SessionManager
	interceptor *Interceptor
	submitter   Submitter

	grpcServer *grpclib.Server
}

// NewServer builds the admission-control service. sessions must be the same
// SessionManager given to Interceptor so CreateSession and authorize agree.
func NewServer(listenAddr string, sessions *SessionManager, submitter Submitter) *Server {
	return &Server{
		listenAddr:  listenAddr,
		sessions:    sessions,
		interceptor: NewInterceptor(sessions, createSessionMethod),
		submitter:   submitter,
	}
}

// Serve starts the admission-control listener and blocks until ctx is
// cancelled.
func (s *Server) Serve(ctx context.Context) error {
	lis, err := net.Listen("tcp", s.listenAddr)
	if err != nil {
		return err
	}

	s.grpcServer = grpclib.NewServer(grpclib.UnaryInterceptor(s.interceptor.Unary()))
	s.grpcServer.RegisterService(&ServiceDesc, s)

	go func() {
		<-ctx.Done()
		s.grpcServer.GracefulStop()
	}()

	admissionLog.WithField("addr", s.listenAddr).Info("admission control listening")
	return s.grpcServer.Serve(lis)
}

// CreateSession implements AdmissionServer.
func (s *Server) CreateSession(_ context.Context, req *CreateSessionRequest) (*CreateSessionReply, error) {
	token, err := s.sessions.CreateSession(req.ClientPK, req.Signature)
	if err != nil {
		return nil, err
	}
	return &CreateSessionReply{AccessToken: token}, nil
}

// SubmitTransaction implements AdmissionServer: it blocks only until the
// dispatcher reports its verdict, not until the transaction is broadcast.
func (s *Server) SubmitTransaction(ctx context.Context, req *SubmitTransactionRequest) (*SubmitTransactionReply, error) {
	reply := make(chan error, 1)
	s.submitter.Submit(sharedmempool.ClientSubmission{Tx: req.Transaction, Reply: reply})

	select {
	case err := <-reply:
		if err != nil {
			return &SubmitTransactionReply{Error: err.Error()}, nil
		}
		return &SubmitTransactionReply{}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
