// This Source Code Form is subject to the terms of the MIT License.
// If a copy of the MIT License was not distributed with this
// file, you can obtain one at https://opensource.org/licenses/MIT.

package grpc

import (
	"context"
	"net"
	"sync"

	grpclib "google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/meridian-chain/meridian/pkg/log"
	"github.com/meridian-chain/meridian/pkg/peer"
	"github.com/meridian-chain/meridian/pkg/transport"
)

var grpcLog = log.WithPrefix("grpc-transport")

// Server implements transport.Transport over a real gRPC listener plus a
// dial-on-demand client connection pool. It satisfies GossipServer itself so
// RegisterService can dispatch straight into it.
type Server struct {
	listenAddr  string
	interceptor grpclib.UnaryServerInterceptor

	grpcServer *grpclib.Server
	events     chan transport.Event

	mu    sync.Mutex
	conns map[peer.NetworkID]*grpclib.ClientConn
	addrs map[peer.NetworkID]string
	byID  map[peer.ID]peer.NetworkID
}

// NewServer builds a gRPC-backed transport listening on listenAddr.
// interceptor may be nil; pkg/admission supplies one for the admission
// control front door, but the peer-gossip service typically runs without one.
func NewServer(listenAddr string, interceptor grpclib.UnaryServerInterceptor) *Server {
	return &Server{
		listenAddr:  listenAddr,
		interceptor: interceptor,
		events:      make(chan transport.Event, 64),
		conns:       make(map[peer.NetworkID]*grpclib.ClientConn),
	}
}

// Events implements transport.Transport.
func (s *Server) Events() <-chan transport.Event { return s.events }

// Serve starts accepting gossip RPCs and blocks until ctx is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	lis, err := net.Listen("tcp", s.listenAddr)
	if err != nil {
		return err
	}

	var opts []grpclib.ServerOption
	if s.interceptor != nil {
		opts = append(opts, grpclib.UnaryInterceptor(s.interceptor))
	}
	s.grpcServer = grpclib.NewServer(opts...)
	s.grpcServer.RegisterService(&GossipServiceDesc, s)

	go func() {
		<-ctx.Done()
		s.grpcServer.GracefulStop()
		s.closeConns()
	}()

	grpcLog.WithField("addr", s.listenAddr).Info("gossip transport listening")
	return s.grpcServer.Serve(lis)
}

// BroadcastTransactions implements GossipServer: an inbound call becomes an
// RPCRequestEvent on the events stream, and this handler blocks only until
// the dispatcher's reply arrives or ctx is cancelled (§4.4).
func (s *Server) BroadcastTransactions(ctx context.Context, req *BroadcastTransactionsWire) (*BroadcastTransactionsReplyWire, error) {
	from := s.resolvePeer(peer.ID(req.PeerID))
	reply := make(chan transport.BroadcastTransactionsResponse, 1)

	s.events <- transport.RPCRequestEvent{
		Peer: from,
		Request: transport.BroadcastTransactionsRequest{
			PeerID:       peer.ID(req.PeerID),
			Transactions: req.Transactions,
		},
		Reply: reply,
	}

	select {
	case r := <-reply:
		return &BroadcastTransactionsReplyWire{BackpressureMS: r.BackpressureMS}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// NotifyNewPeer and NotifyLostPeer let the process's own peer-discovery
// mechanism (out of scope here) feed liveness transitions into the
// dispatcher the same way an inbound RPC would.
func (s *Server) NotifyNewPeer(p peer.NetworkID)  { s.events <- transport.NewPeerEvent{Peer: p} }
func (s *Server) NotifyLostPeer(p peer.NetworkID) { s.events <- transport.LostPeerEvent{Peer: p} }

// resolvePeer recovers the full (scope, id) NetworkID a bare wire peer id
// refers to, by consulting the addresses RegisterPeerAddr already recorded —
// the only place the server is ever told which scope a peer belongs to.
// An id this node never registered (e.g. an ad-hoc full-node dialing in
// without a prior RegisterPeerAddr) falls back to FullNodeNetwork, the least
// trusted scope, rather than silently guessing it into the validator clique.
func (s *Server) resolvePeer(id peer.ID) peer.NetworkID {
	s.mu.Lock()
	defer s.mu.Unlock()
	if full, ok := s.byID[id]; ok {
		return full
	}
	grpcLog.WithField("peer", id).Debug("inbound RPC from unregistered peer id, defaulting to full-node scope")
	return peer.NetworkID{Scope: peer.FullNodeNetwork, ID: id}
}

func (s *Server) closeConns() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for p, conn := range s.conns {
		_ = conn.Close()
		delete(s.conns, p)
	}
}

func (s *Server) dial(p peer.NetworkID, addr string) (*grpclib.ClientConn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if conn, ok := s.conns[p]; ok {
		return conn, nil
	}
	conn, err := grpclib.Dial(addr, grpclib.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, err
	}
	s.conns[p] = conn
	return conn, nil
}
