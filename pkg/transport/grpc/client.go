// This Source Code Form is subject to the terms of the MIT License.
// If a copy of the MIT License was not distributed with this
// file, you can obtain one at https://opensource.org/licenses/MIT.

package grpc

import (
	"context"
	"fmt"

	grpclib "google.golang.org/grpc"

	"github.com/meridian-chain/meridian/pkg/peer"
	"github.com/meridian-chain/meridian/pkg/transport"
)

// RegisterPeerAddr records the dial address Send should use for p. The Peer
// Manager only ever deals in NetworkIDs; resolving one to a socket address
// is this transport's job. It also indexes p by its bare id, so an inbound
// RPC carrying only that id (the wire message has no room for a scope) can
// be resolved back to the registered (scope, id) pair in
// Server.resolvePeer — this is how a validator-network peer's batches are
// correctly classified NonQualified instead of silently defaulting to
// full-node scope.
func (s *Server) RegisterPeerAddr(p peer.NetworkID, addr string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.addrsLocked()[p] = addr
	if s.byID == nil {
		s.byID = make(map[peer.ID]peer.NetworkID)
	}
	s.byID[p.ID] = p
}

func (s *Server) addrsLocked() map[peer.NetworkID]string {
	if s.addrs == nil {
		s.addrs = make(map[peer.NetworkID]string)
	}
	return s.addrs
}

// Send implements transport.Transport by invoking the hand-built Gossip
// service's BroadcastTransactions method against p, using the custom
// gob+snappy codec rather than a protoc-generated client stub.
func (s *Server) Send(ctx context.Context, p peer.NetworkID, req transport.BroadcastTransactionsRequest) (transport.BroadcastTransactionsResponse, error) {
	s.mu.Lock()
	addr, ok := s.addrsLocked()[p]
	s.mu.Unlock()
	if !ok {
		return transport.BroadcastTransactionsResponse{}, fmt.Errorf("grpc transport: no dial address registered for peer %q", p.ID)
	}

	conn, err := s.dial(p, addr)
	if err != nil {
		return transport.BroadcastTransactionsResponse{}, err
	}

	in := &BroadcastTransactionsWire{PeerID: string(req.PeerID), Transactions: req.Transactions}
	out := new(BroadcastTransactionsReplyWire)

	method := "/" + gossipServiceName + "/BroadcastTransactions"
	if err := conn.Invoke(ctx, method, in, out, grpclib.CallContentSubtype(codecName)); err != nil {
		return transport.BroadcastTransactionsResponse{}, err
	}

	return transport.BroadcastTransactionsResponse{BackpressureMS: out.BackpressureMS}, nil
}
