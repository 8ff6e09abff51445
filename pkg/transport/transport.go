// This Source Code Form is subject to the terms of the MIT License.
// If a copy of the MIT License was not distributed with this
// file, you can obtain one at https://opensource.org/licenses/MIT.

// Package transport defines the network-transport contract the shared
// mempool runtime is built against (§6): a peer-up/peer-down event stream
// plus a request/response RPC. The wire encoding and connection management
// are external collaborators; see pkg/transport/grpc for the concrete gRPC
// binding.
package transport

import (
	"context"

	"github.com/meridian-chain/meridian/pkg/core/types"
	"github.com/meridian-chain/meridian/pkg/peer"
)

// BroadcastTransactionsRequest is the wire message carried in both
// directions (§6): the Outbound Broadcaster sends it to push admitted
// transactions, and an inbound RPCRequestEvent carries the peer's own
// broadcast to us. Transactions travel in their not-yet-decoded wire shape;
// decoding (and the possibility of per-item failure) belongs to the
// Validation Pipeline (§4.3 step 1), not the transport.
type BroadcastTransactionsRequest struct {
	PeerID       peer.ID
	Transactions []WireTransaction
}

// BroadcastTransactionsResponse is the outbound wire reply (§6).
type BroadcastTransactionsResponse struct {
	BackpressureMS uint32
}

// WireTransaction is the not-yet-decoded payload carried in an inbound
// batch; Decode simulates the on-wire schema's decode step, which is an
// external collaborator per §1 and may legitimately fail per item (§4.3
// step 1).
type WireTransaction struct {
	Sender    types.Address
	Sequence  uint64
	MaxGas    uint64
	Payload   []byte
	Signature []byte
}

// Decode turns a WireTransaction into the mempool's SignedTransaction,
// rejecting structurally malformed input.
func (w WireTransaction) Decode() (types.SignedTransaction, error) {
	if len(w.Signature) == 0 {
		return types.SignedTransaction{}, errMalformed{"missing signature"}
	}
	var zero types.Address
	if w.Sender == zero {
		return types.SignedTransaction{}, errMalformed{"missing sender"}
	}
	return types.SignedTransaction{
		Sender:    w.Sender,
		Sequence:  w.Sequence,
		MaxGas:    w.MaxGas,
		Payload:   w.Payload,
		Signature: w.Signature,
	}, nil
}

type errMalformed struct{ reason string }

func (e errMalformed) Error() string { return "malformed wire transaction: " + e.reason }

// Reply is a single-shot response channel supplied by the transport for one
// inbound RPC (§4.4). A failed send is logged and discarded by the caller —
// the RPC is considered observationally complete on the sender's timeout.
type Reply chan<- BroadcastTransactionsResponse

// NewPeerEvent signals a peer connecting (§6).
type NewPeerEvent struct{ Peer peer.NetworkID }

// LostPeerEvent signals a peer disconnecting (§6).
type LostPeerEvent struct{ Peer peer.NetworkID }

// RPCRequestEvent carries an inbound BroadcastTransactionsRequest along with
// the single-shot reply channel the transport expects a response on (§6).
type RPCRequestEvent struct {
	Peer    peer.NetworkID
	Request BroadcastTransactionsRequest
	Reply   Reply
}

// Event is the sum type delivered on the control-message stream (§6):
// exactly one of NewPeerEvent, LostPeerEvent or RPCRequestEvent.
type Event interface {
	isTransportEvent()
}

func (NewPeerEvent) isTransportEvent()    {}
func (LostPeerEvent) isTransportEvent()   {}
func (RPCRequestEvent) isTransportEvent() {}

// Transport is the network-transport contract §1/§6 treats as an external
// collaborator: an event stream of peer liveness/RPC, plus a send primitive
// the Outbound Broadcaster uses to ship batches upstream.
type Transport interface {
	// Events returns the inbound control-message stream.
	Events() <-chan Event
	// Send ships req to peer with the given deadline, returning the peer's
	// response or an error on timeout/transport failure.
	Send(ctx context.Context, p peer.NetworkID, req BroadcastTransactionsRequest) (BroadcastTransactionsResponse, error)
}
