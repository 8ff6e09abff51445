package vm

import (
	"testing"

	"golang.org/x/crypto/ed25519"

	"github.com/stretchr/testify/require"

	"github.com/meridian-chain/meridian/pkg/core/types"
)

func signedTx(t *testing.T, pub ed25519.PublicKey, priv ed25519.PrivateKey, seq, gas uint64, payload []byte) types.SignedTransaction {
	t.Helper()
	var addr types.Address
	copy(addr[:], pub)

	tx := types.SignedTransaction{Sender: addr, Sequence: seq, MaxGas: gas, Payload: payload}
	tx.Signature = ed25519.Sign(priv, signableBytes(tx))
	return tx
}

func TestReferenceValidatorAcceptsWellFormedTx(t *testing.T) {
	require := require.New(t)
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(err)

	v := NewReference()
	tx := signedTx(t, pub, priv, 1, 100, []byte("payload"))

	require.Nil(v.ValidateTransaction(tx))
}

func TestReferenceValidatorRejectsBadSignature(t *testing.T) {
	require := require.New(t)
	pub, _, err := ed25519.GenerateKey(nil)
	require.NoError(err)
	_, otherPriv, err := ed25519.GenerateKey(nil)
	require.NoError(err)

	v := NewReference()
	tx := signedTx(t, pub, otherPriv, 1, 100, []byte("payload"))

	status := v.ValidateTransaction(tx)
	require.NotNil(status)
}

func TestReferenceValidatorRejectsExcessiveGas(t *testing.T) {
	require := require.New(t)
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(err)

	v := NewReference()
	v.MaxGasAllowed = 10
	tx := signedTx(t, pub, priv, 1, 100, nil)

	status := v.ValidateTransaction(tx)
	require.NotNil(status)
	require.Equal(1, status.Code)
}
