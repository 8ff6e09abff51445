// This Source Code Form is subject to the terms of the MIT License.
// If a copy of the MIT License was not distributed with this
// file, you can obtain one at https://opensource.org/licenses/MIT.

// Package types holds the wire-opaque transaction shape the shared mempool
// moves around. Per §3, the encoding and signature scheme themselves are an
// external collaborator; this package only carries the fields the mempool
// needs to reason about (sender identity, sequencing, gas, signature bytes).
package types

import (
	"encoding/hex"

	ristretto "github.com/bwesterb/go-ristretto"
)

// Address identifies a transaction sender. It is the compressed encoding of
// a ristretto public key, the same representation the teacher's wallet
// package derives addresses from.
type Address [32]byte

// String renders the address as a short hex string for logging.
func (a Address) String() string {
	return hex.EncodeToString(a[:])[:16]
}

// FromPoint derives an Address from a ristretto public key point.
func FromPoint(p *ristretto.Point) Address {
	var a Address
	b := p.Bytes()
	copy(a[:], b)
	return a
}

// SignedTransaction is the unit of admission, storage and broadcast. Two
// transactions are the same entry iff they share (Sender, Sequence).
type SignedTransaction struct {
	Sender    Address
	Sequence  uint64
	MaxGas    uint64
	Payload   []byte
	Signature []byte

	// TimelineID is assigned by CoreMempool at admission; zero until admitted.
	TimelineID uint64
	// AdmittedAt is not set by CoreMempool, which keeps the admission time
	// GC uses on its own internal entry.
	AdmittedAt int64
}

// Key uniquely identifies a transaction within the pool regardless of
// timeline placement.
type Key struct {
	Sender   Address
	Sequence uint64
}

// Key returns the (sender, sequence) identity of the transaction.
func (tx *SignedTransaction) Key() Key {
	return Key{Sender: tx.Sender, Sequence: tx.Sequence}
}
