// This Source Code Form is subject to the terms of the MIT License.
// If a copy of the MIT License was not distributed with this
// file, you can obtain one at https://opensource.org/licenses/MIT.

package grpc

import (
	"github.com/meridian-chain/meridian/pkg/transport"
)

// BroadcastTransactionsWire is the message that crosses the wire in both
// directions: PeerID identifies the sender, not the recipient, since the
// Gossip service is symmetric between any two upstream nodes.
type BroadcastTransactionsWire struct {
	PeerID       string
	Transactions []transport.WireTransaction
}

// BroadcastTransactionsReplyWire carries back the backpressure hint (§6).
type BroadcastTransactionsReplyWire struct {
	BackpressureMS uint32
}
