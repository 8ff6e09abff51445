// This Source Code Form is subject to the terms of the MIT License.
// If a copy of the MIT License was not distributed with this
// file, you can obtain one at https://opensource.org/licenses/MIT.

// Package vm implements the VMValidator collaborator (§6):
// validate_transaction(txn) -> Option<VMStatus>, where a nil status means
// "accept". The reference implementation here checks gas bounds and the
// ed25519 signature over the transaction's signable fields; a real node
// would delegate to the actual execution VM.
package vm

import (
	"bytes"
	"encoding/binary"

	"golang.org/x/crypto/ed25519"

	"github.com/meridian-chain/meridian/pkg/core/types"
)

// Status describes why a transaction failed VM validation.
type Status struct {
	Code    int
	Message string
}

func (s *Status) Error() string {
	return s.Message
}

// Validator is the VMValidator contract: nil means accept.
type Validator interface {
	ValidateTransaction(tx types.SignedTransaction) *Status
}

// Reference is a minimal, self-contained Validator used by tests and by
// single-node deployments that have no separate execution VM. MaxGasAllowed
// bounds accepted gas; VerifySignature toggles signature checking, so with it
// off a transaction within the gas bound is accepted without real keys (mirroring the
// teacher's DefaultConfig()/PassStateTransitionValidation toggle in
// pkg/util/ruskmock).
type Reference struct {
	MaxGasAllowed   uint64
	VerifySignature bool
}

// NewReference returns a Reference validator with sensible defaults.
func NewReference() *Reference {
	return &Reference{MaxGasAllowed: 1_000_000, VerifySignature: true}
}

// ValidateTransaction runs the reference checks described above.
func (r *Reference) ValidateTransaction(tx types.SignedTransaction) *Status {
	if tx.MaxGas == 0 || tx.MaxGas > r.MaxGasAllowed {
		return &Status{Code: 1, Message: "gas amount out of bounds"}
	}

	if !r.VerifySignature {
		return nil
	}

	if len(tx.Signature) != ed25519.SignatureSize {
		return &Status{Code: 2, Message: "malformed signature"}
	}

	msg := signableBytes(tx)
	if !ed25519.Verify(ed25519.PublicKey(tx.Sender[:]), msg, tx.Signature) {
		return &Status{Code: 3, Message: "signature verification failed"}
	}
	return nil
}

func signableBytes(tx types.SignedTransaction) []byte {
	var buf bytes.Buffer
	buf.Write(tx.Sender[:])

	var seq [8]byte
	binary.BigEndian.PutUint64(seq[:], tx.Sequence)
	buf.Write(seq[:])

	var gas [8]byte
	binary.BigEndian.PutUint64(gas[:], tx.MaxGas)
	buf.Write(gas[:])

	buf.Write(tx.Payload)
	return buf.Bytes()
}
