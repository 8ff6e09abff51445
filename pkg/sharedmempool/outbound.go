// This Source Code Form is subject to the terms of the MIT License.
// If a copy of the MIT License was not distributed with this
// file, you can obtain one at https://opensource.org/licenses/MIT.

package sharedmempool

import (
	"context"
	"time"

	"github.com/meridian-chain/meridian/pkg/core/mempool"
	"github.com/meridian-chain/meridian/pkg/core/types"
	"github.com/meridian-chain/meridian/pkg/log"
	"github.com/meridian-chain/meridian/pkg/peer"
	"github.com/meridian-chain/meridian/pkg/transport"
)

// toWireBatch re-serializes already-admitted transactions into the wire
// shape the transport moves: on the far side they re-enter through the same
// Validation Pipeline decode step we skip here because they are already
// known-good.
func toWireBatch(txs []types.SignedTransaction) []transport.WireTransaction {
	out := make([]transport.WireTransaction, len(txs))
	for i, tx := range txs {
		out[i] = transport.WireTransaction{
			Sender:    tx.Sender,
			Sequence:  tx.Sequence,
			MaxGas:    tx.MaxGas,
			Payload:   tx.Payload,
			Signature: tx.Signature,
		}
	}
	return out
}

var outboundLog = log.WithPrefix("outbound-broadcaster")

// workerState is a function-based state machine, one per picked peer (§4.5):
// exactly one of running, paused or killed is ever active at a time, and
// each returns the state to run next.
type workerState func(ctx context.Context) (workerState, error)

// outboundWorker drives broadcast for a single picked peer. It owns no
// shared state: it keeps its own copy of the peer's cursor and reports each
// advance to the PeerManager, and the only cross-goroutine traffic is the
// control channel (master -> worker)
// and the cursor-update channel (worker -> master), both built to never
// block either side (§4.5, §9).
type outboundWorker struct {
	target  peer.NetworkID
	pool    *mempool.CoreMempool
	tr      transport.Transport
	control *controlChannel
	updates *cursorUpdateChannel
	metrics *Metrics

	batchSize   int
	sendTimeout time.Duration
	sleep       time.Duration

	cursor uint64
}

func newOutboundWorker(target peer.NetworkID, startCursor uint64, pool *mempool.CoreMempool, tr transport.Transport, control *controlChannel, updates *cursorUpdateChannel, metrics *Metrics, batchSize int, sendTimeout, sleep time.Duration) *outboundWorker {
	return &outboundWorker{
		target:      target,
		pool:        pool,
		tr:          tr,
		control:     control,
		updates:     updates,
		metrics:     metrics,
		batchSize:   batchSize,
		sendTimeout: sendTimeout,
		sleep:       sleep,
		cursor:      startCursor,
	}
}

// run drives the worker until it reaches the killed terminal state or ctx is
// cancelled. It is launched as its own goroutine by the dispatcher's
// onEligibilityEvent (§4.7).
func (w *outboundWorker) run(ctx context.Context) {
	state := w.running
	for {
		next, err := state(ctx)
		if err != nil {
			outboundLog.WithFields(map[string]interface{}{
				"peer": w.target.ID,
				"err":  err,
			}).Warn("outbound worker error, continuing")
		}
		if next == nil {
			outboundLog.WithField("peer", w.target.ID).Debug("outbound worker terminated")
			return
		}
		state = next
	}
}

// running is the START state (§4.7): read a batch off the timeline, send it,
// and advance the retained cursor only on a successful ack — at-least-once
// delivery per §4.5.
func (w *outboundWorker) running(ctx context.Context) (workerState, error) {
	if kind, ok := w.control.TryRecv(); ok {
		return w.transition(kind)
	}

	txs, next := w.pool.ReadTimeline(w.cursor, w.batchSize)
	if len(txs) == 0 {
		w.cursor = next
		select {
		case <-time.After(w.sleep):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		return w.running, nil
	}

	sendCtx, cancel := context.WithTimeout(ctx, w.sendTimeout)
	_, err := w.tr.Send(sendCtx, w.target, transport.BroadcastTransactionsRequest{
		PeerID:       w.target.ID,
		Transactions: toWireBatch(txs),
	})
	cancel()
	if err != nil {
		if w.metrics != nil {
			w.metrics.ReportBroadcastFailure(string(w.target.ID))
		}
		// Do not advance the cursor: the batch will be resent next tick.
		select {
		case <-time.After(w.sleep):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		return w.running, err
	}

	w.cursor = next
	if sendErr := w.updates.Send(w.target, w.cursor); sendErr != nil {
		return w.killed, nil
	}

	select {
	case <-time.After(w.sleep):
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return w.running, nil
}

// paused blocks on the control channel until resumed or killed (§4.7 PAUSE).
func (w *outboundWorker) paused(ctx context.Context) (workerState, error) {
	kind, ok := w.control.Recv(ctx)
	if !ok {
		return nil, ctx.Err()
	}
	return w.transition(kind)
}

// killed is the terminal state; returning a nil next state ends run().
func (w *outboundWorker) killed(context.Context) (workerState, error) {
	return nil, nil
}

func (w *outboundWorker) transition(kind controlKind) (workerState, error) {
	switch kind {
	case controlStart:
		return w.running, nil
	case controlPause:
		return w.paused, nil
	default:
		return w.killed, nil
	}
}
