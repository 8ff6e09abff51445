package sharedmempool

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/meridian-chain/meridian/pkg/core/mempool"
	"github.com/meridian-chain/meridian/pkg/core/types"
	"github.com/meridian-chain/meridian/pkg/peer"
	"github.com/meridian-chain/meridian/pkg/storage"
	"github.com/meridian-chain/meridian/pkg/transport"
	"github.com/meridian-chain/meridian/pkg/vm"
)

type fakeReader struct {
	states map[types.Address]storage.AccountState
	err    error
}

// fundedBalance covers the MaxGas of every test transaction, so a sender the
// fake has no explicit state for is not rejected as InsufficientBalance.
const fundedBalance = 1_000

func (f *fakeReader) GetAccountState(sender types.Address) (storage.AccountState, error) {
	if f.err != nil {
		return storage.AccountState{}, f.err
	}
	if st, ok := f.states[sender]; ok {
		return st, nil
	}
	return storage.AccountState{Balance: fundedBalance}, nil
}

type acceptAllValidator struct{}

func (acceptAllValidator) ValidateTransaction(types.SignedTransaction) *vm.Status { return nil }

type rejectAllValidator struct{}

func (rejectAllValidator) ValidateTransaction(types.SignedTransaction) *vm.Status {
	return &vm.Status{Code: 99, Message: "rejected"}
}

func wireTx(sender byte, seq uint64) transport.WireTransaction {
	var addr types.Address
	addr[0] = sender
	return transport.WireTransaction{
		Sender:    addr,
		Sequence:  seq,
		MaxGas:    10,
		Payload:   []byte("payload"),
		Signature: []byte("sig"),
	}
}

func TestProcessBatchAdmitsValidTransactions(t *testing.T) {
	require := require.New(t)
	pool := mempool.New(0, 100)
	reader := &fakeReader{states: map[types.Address]storage.AccountState{}}
	pipeline := NewValidationPipeline(pool, reader, acceptAllValidator{}, peer.NewUpstreamConfig(nil, nil, nil))

	origin := netID(peer.FullNodeNetwork, "p1")
	res := pipeline.ProcessBatch(context.Background(), origin, []transport.WireTransaction{wireTx(1, 0), wireTx(2, 0)})

	require.Equal(2, res.Admitted)
	require.Equal(0, res.DecodeFailures)
	require.Equal(0, res.VMRejections)
	require.Equal(2, pool.Len())
}

func TestProcessBatchDropsMalformedWithoutFailingOthers(t *testing.T) {
	require := require.New(t)
	pool := mempool.New(0, 100)
	reader := &fakeReader{states: map[types.Address]storage.AccountState{}}
	pipeline := NewValidationPipeline(pool, reader, acceptAllValidator{}, peer.NewUpstreamConfig(nil, nil, nil))

	malformed := wireTx(1, 0)
	malformed.Signature = nil
	good := wireTx(2, 0)

	origin := netID(peer.FullNodeNetwork, "p1")
	res := pipeline.ProcessBatch(context.Background(), origin, []transport.WireTransaction{malformed, good})

	require.Equal(1, res.DecodeFailures)
	require.Equal(1, res.Admitted)
}

func TestProcessBatchVMRejectionDoesNotAdmit(t *testing.T) {
	require := require.New(t)
	pool := mempool.New(0, 100)
	reader := &fakeReader{states: map[types.Address]storage.AccountState{}}
	pipeline := NewValidationPipeline(pool, reader, rejectAllValidator{}, peer.NewUpstreamConfig(nil, nil, nil))

	origin := netID(peer.FullNodeNetwork, "p1")
	res := pipeline.ProcessBatch(context.Background(), origin, []transport.WireTransaction{wireTx(1, 0)})

	require.Equal(1, res.VMRejections)
	require.Equal(0, res.Admitted)
	require.Equal(0, pool.Len())
}

func TestProcessBatchFromValidatorPeerIsNonQualified(t *testing.T) {
	require := require.New(t)
	pool := mempool.New(0, 100)
	reader := &fakeReader{states: map[types.Address]storage.AccountState{}}
	validatorPeer := netID(peer.ValidatorNetwork, "v1")
	cfg := peer.NewUpstreamConfig(nil, nil, []peer.NetworkID{validatorPeer})
	pipeline := NewValidationPipeline(pool, reader, acceptAllValidator{}, cfg)

	res := pipeline.ProcessBatch(context.Background(), validatorPeer, []transport.WireTransaction{wireTx(1, 0)})
	require.Equal(1, res.Admitted)

	txs, _ := pool.ReadTimeline(0, 10)
	require.Empty(txs, "NonQualified transactions must never appear on the broadcast timeline")
}

// TestProcessBatchStorageFailureDropsOnlyThatItem verifies §4.3 step 3 / §7:
// a storage error for one sender is per-item, not batch-wide — siblings in
// the same batch must still be admitted.
func TestProcessBatchStorageFailureDropsOnlyThatItem(t *testing.T) {
	require := require.New(t)
	pool := mempool.New(0, 100)
	reader := &failingSenderReader{failSender: byte(1)}
	pipeline := NewValidationPipeline(pool, reader, acceptAllValidator{}, peer.NewUpstreamConfig(nil, nil, nil))

	origin := netID(peer.FullNodeNetwork, "p1")
	res := pipeline.ProcessBatch(context.Background(), origin, []transport.WireTransaction{wireTx(1, 0), wireTx(2, 0)})

	require.Equal(1, res.StorageFailures)
	require.Equal(1, res.Admitted)
	require.Equal(1, pool.Len())
}

// failingSenderReader fails storage lookups only for one specific sender
// byte, so a test can assert the rest of a batch is unaffected.
type failingSenderReader struct {
	failSender byte
}

func (f *failingSenderReader) GetAccountState(sender types.Address) (storage.AccountState, error) {
	if sender[0] == f.failSender {
		return storage.AccountState{}, assertError{}
	}
	return storage.AccountState{Balance: fundedBalance}, nil
}

type assertError struct{}

func (assertError) Error() string { return "storage unavailable" }
