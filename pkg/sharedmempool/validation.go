// This Source Code Form is subject to the terms of the MIT License.
// If a copy of the MIT License was not distributed with this
// file, you can obtain one at https://opensource.org/licenses/MIT.

package sharedmempool

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/meridian-chain/meridian/pkg/core/mempool"
	"github.com/meridian-chain/meridian/pkg/core/types"
	"github.com/meridian-chain/meridian/pkg/log"
	"github.com/meridian-chain/meridian/pkg/peer"
	"github.com/meridian-chain/meridian/pkg/storage"
	"github.com/meridian-chain/meridian/pkg/transport"
	"github.com/meridian-chain/meridian/pkg/vm"
)

var validationLog = log.WithPrefix("validation-pipeline")

// ValidationPipeline implements §4.3: decode each wire transaction, fan out
// to StorageRead and VMValidator in parallel, and admit survivors into
// CoreMempool under the correct TimelineState.
type ValidationPipeline struct {
	pool    *mempool.CoreMempool
	storage storage.Reader
	vm      vm.Validator
	cfg     peer.UpstreamConfig
}

// NewValidationPipeline wires the pipeline's three collaborators.
func NewValidationPipeline(pool *mempool.CoreMempool, reader storage.Reader, validator vm.Validator, cfg peer.UpstreamConfig) *ValidationPipeline {
	return &ValidationPipeline{pool: pool, storage: reader, vm: validator, cfg: cfg}
}

// ProcessBatch runs the full §4.3 pipeline over one inbound batch. A
// transaction that fails to decode is dropped and counted, never failing the
// rest of the batch (step 1). origin classifies the batch's TimelineState:
// batches sourced from a validator-network peer are admitted NonQualified so
// they are never re-broadcast (loop prevention, step 4).
func (p *ValidationPipeline) ProcessBatch(ctx context.Context, origin peer.NetworkID, wire []transport.WireTransaction) BatchResult {
	var res BatchResult

	txs := make([]types.SignedTransaction, 0, len(wire))
	for _, w := range wire {
		tx, err := w.Decode()
		if err != nil {
			res.DecodeFailures++
			validationLog.WithField("err", err).Debug("dropping malformed wire transaction")
			continue
		}
		txs = append(txs, tx)
	}

	if len(txs) == 0 {
		return res
	}

	checks := make([]validatedTx, len(txs))
	g, gctx := errgroup.WithContext(ctx)
	for i, tx := range txs {
		i, tx := i, tx
		g.Go(func() error {
			// validateOne never returns an error: storage/VM failures are
			// per-transaction (§4.3 step 3, §7) and recorded on checks[i],
			// not propagated through errgroup, so one bad sender can never
			// abort the rest of the batch.
			p.validateOne(gctx, tx, &checks[i])
			return nil
		})
	}
	_ = g.Wait()

	state := mempool.Ready
	if p.cfg.IsValidatorPeer(origin) {
		state = mempool.NonQualified
	}

	for _, c := range checks {
		// Storage lookup failure and VM rejection are both per-item (§4.3
		// step 3, §7): the transaction is dropped, its siblings continue.
		if c.storageErr != nil {
			res.StorageFailures++
			continue
		}
		if c.status != nil {
			res.VMRejections++
			continue
		}
		verdict := p.pool.Add(c.tx, c.dbSeq, c.balance, state)
		if verdict != mempool.Valid {
			res.AdmitRejections++
			continue
		}
		res.Admitted++
	}

	return res
}

type validatedTx struct {
	tx         types.SignedTransaction
	dbSeq      uint64
	balance    uint64
	status     *vm.Status
	storageErr error
}

// validateOne fetches (db_sequence_number, balance) and runs VM validation
// for a single transaction. A storage error is recorded on out and never
// propagated to the caller: per §4.3 step 3 and §7, storage/validator
// failures are per-transaction and must never fail the batch they arrived
// in.
func (p *ValidationPipeline) validateOne(_ context.Context, tx types.SignedTransaction, out *validatedTx) {
	account, err := p.storage.GetAccountState(tx.Sender)
	if err != nil {
		out.storageErr = err
		return
	}
	*out = validatedTx{
		tx:      tx,
		dbSeq:   account.SequenceNumber,
		balance: account.Balance,
		status:  p.vm.ValidateTransaction(tx),
	}
}

// BatchResult summarizes the outcome of one ProcessBatch call, consumed by
// the Inbound Handler for logging and for a client submission's verdict, and
// by metrics.go's counters. The RPC's backpressure_ms reply does not depend
// on it.
type BatchResult struct {
	DecodeFailures  int
	StorageFailures int
	VMRejections    int
	AdmitRejections int
	Admitted        int
}
