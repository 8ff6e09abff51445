// This Source Code Form is subject to the terms of the MIT License.
// If a copy of the MIT License was not distributed with this
// file, you can obtain one at https://opensource.org/licenses/MIT.

// Package sharedmempool wires the six cooperating components (§2) — Timeline
// Cursor & Ordering (delegated to pkg/core/mempool), Peer Manager, Validation
// Pipeline, Inbound Handler, Outbound Broadcaster and GC Timer — into a
// single runtime a node process starts and stops as a unit.
package sharedmempool

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/meridian-chain/meridian/pkg/config"
	"github.com/meridian-chain/meridian/pkg/core/mempool"
	"github.com/meridian-chain/meridian/pkg/log"
	"github.com/meridian-chain/meridian/pkg/peer"
	"github.com/meridian-chain/meridian/pkg/storage"
	"github.com/meridian-chain/meridian/pkg/transport"
	"github.com/meridian-chain/meridian/pkg/vm"
)

var runtimeLog = log.WithPrefix("shared-mempool")

// Runtime bundles everything a node needs to run the shared mempool
// subsystem end to end.
type Runtime struct {
	Pool       *mempool.CoreMempool
	PeerMgr    *PeerManager
	Dispatcher *Dispatcher
	GC         *GCTimer
	Metrics    *Metrics

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New builds a Runtime from the node's configuration and external
// collaborators (transport, storage, VM), per §6's interface boundary.
func New(cfg config.Config, tr transport.Transport, reader storage.Reader, validator vm.Validator, upstream peer.UpstreamConfig, reg prometheus.Registerer) *Runtime {
	pool := mempool.New(cfg.Mempool.SystemTransactionTTL, cfg.Mempool.MaxPoolSize)
	pipeline := NewValidationPipeline(pool, reader, validator, upstream)
	pm := NewPeerManager(upstream, cfg.Mempool.MinBroadcastRecipientCount)

	var metrics *Metrics
	if reg != nil {
		metrics = NewMetrics(reg,
			func() float64 { return float64(pool.Len()) },
			func() float64 { return float64(pm.AlivePrimaryCount() + pm.PickedFallbackCount()) },
		)
	}

	dispatcher := NewDispatcher(tr, pm, pipeline, pool, metrics, DispatcherConfig{
		MaxConcurrentInboundSyncs:  cfg.Mempool.MaxConcurrentInboundSyncs,
		BatchSize:                  cfg.Mempool.BatchSize,
		BroadcastSendTimeout:       cfg.Mempool.BroadcastSendTimeout,
		BroadcastSleep:             cfg.Mempool.BroadcastSleep,
		ClientSubmissionBufferSize: cfg.Mempool.ClientSubmissionBufferSize,
	})
	if cfg.Mempool.UpstreamProxyEnabled {
		dispatcher.WithUpstreamProxy(NewUpstreamProxy(reg))
	}

	interval := time.Duration(cfg.Mempool.SystemTransactionGCIntervalMS) * time.Millisecond
	gc := NewGCTimer(pool, interval)

	return &Runtime{
		Pool:       pool,
		PeerMgr:    pm,
		Dispatcher: dispatcher,
		GC:         gc,
		Metrics:    metrics,
	}
}

// Start launches the dispatcher and GC timer goroutines. Call Stop to unwind
// them in reverse order.
func (r *Runtime) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel

	r.wg.Add(2)
	go func() {
		defer r.wg.Done()
		r.Dispatcher.Run(runCtx)
	}()
	go func() {
		defer r.wg.Done()
		r.GC.Run(runCtx)
	}()

	runtimeLog.Info("shared mempool runtime started")
}

// Stop cancels the runtime's context, waits for the dispatcher and GC
// goroutines to return, then closes the Peer Manager's event queue. The
// dispatcher closes and cancels every outbound worker on its way out; Stop
// does not wait for those worker goroutines to exit.
func (r *Runtime) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
	r.wg.Wait()
	r.PeerMgr.Close()
	runtimeLog.Info("shared mempool runtime stopped")
}

// Submit enqueues a locally-originated transaction for admission (§6).
func (r *Runtime) Submit(sub ClientSubmission) {
	r.Dispatcher.Submit(sub)
}
