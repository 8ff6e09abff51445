// This Source Code Form is subject to the terms of the MIT License.
// If a copy of the MIT License was not distributed with this
// file, you can obtain one at https://opensource.org/licenses/MIT.

package sharedmempool

import (
	"context"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/meridian-chain/meridian/pkg/core/mempool"
	"github.com/meridian-chain/meridian/pkg/log"
	"github.com/meridian-chain/meridian/pkg/peer"
	"github.com/meridian-chain/meridian/pkg/transport"
)

var inboundLog = log.WithPrefix("inbound-dispatcher")

// ClientSubmission is a single locally-originated transaction entering
// through the admission-control front door (§6), queued on a bounded
// buffered channel so a submission burst cannot unboundedly grow memory.
type ClientSubmission struct {
	Tx    transport.WireTransaction
	Reply chan<- error
}

// registeredWorker is everything the dispatcher must remember about one
// live outbound worker goroutine: its control channel and a cancel func to
// unwind it on shutdown.
type registeredWorker struct {
	control *controlChannel
	cancel  context.CancelFunc
}

// DispatcherConfig collects the tunables the dispatcher and the workers it
// spawns need; it is a narrowed view of config.Mempool.
type DispatcherConfig struct {
	MaxConcurrentInboundSyncs int
	BatchSize                 int
	BroadcastSendTimeout      time.Duration
	BroadcastSleep            time.Duration
	ClientSubmissionBufferSize int
}

// Dispatcher is the single-threaded Inbound Handler core (§4.4): the only
// goroutine that ever mutates the worker registry, so starting, pausing and
// killing outbound workers never races. Validation of peer batches fans out
// onto a semaphore-bounded pool of goroutines; when every permit is taken,
// the dispatch loop waits for one to be released. Client submissions are
// validated on the dispatch loop itself.
type Dispatcher struct {
	tr          transport.Transport
	peerManager *PeerManager
	pipeline    *ValidationPipeline
	pool        *mempool.CoreMempool
	metrics     *Metrics
	cfg         DispatcherConfig

	sem       *semaphore.Weighted
	updates   *cursorUpdateChannel
	submitCh  chan ClientSubmission
	workers   map[peer.NetworkID]*registeredWorker

	upstreamProxy *UpstreamProxy
}

// NewDispatcher wires the Inbound Handler. cfg.ClientSubmissionBufferSize
// bounds the client-submission queue (§6).
func NewDispatcher(tr transport.Transport, pm *PeerManager, pipeline *ValidationPipeline, pool *mempool.CoreMempool, metrics *Metrics, cfg DispatcherConfig) *Dispatcher {
	return &Dispatcher{
		tr:          tr,
		peerManager: pm,
		pipeline:    pipeline,
		pool:        pool,
		metrics:     metrics,
		cfg:         cfg,
		sem:         semaphore.NewWeighted(int64(cfg.MaxConcurrentInboundSyncs)),
		updates:     newCursorUpdateChannel(),
		submitCh:    make(chan ClientSubmission, cfg.ClientSubmissionBufferSize),
		workers:     make(map[peer.NetworkID]*registeredWorker),
	}
}

// WithUpstreamProxy attaches an optional validator-liveness observer (§9
// Open Question b / the Rust original's upstream_proxy); every transport
// event the dispatcher sees is forwarded to it before its own handling.
func (d *Dispatcher) WithUpstreamProxy(p *UpstreamProxy) *Dispatcher {
	d.upstreamProxy = p
	return d
}

// Submit enqueues a locally-originated transaction; it blocks only long
// enough to reach the buffer, never until processing completes.
func (d *Dispatcher) Submit(sub ClientSubmission) {
	d.submitCh <- sub
}

// Run is the dispatch loop described in §4.4: it multiplexes transport
// events, peer-eligibility changes, worker cursor reports and client
// submissions. It waits inside a step only for an inbound-semaphore permit
// or a client submission's validation. It returns when ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) {
	defer d.shutdownWorkers()

	for {
		select {
		case <-ctx.Done():
			return

		case ev, ok := <-d.tr.Events():
			if !ok {
				return
			}
			d.onTransportEvent(ctx, ev)

		case ev, ok := <-d.peerManager.Events():
			if !ok {
				return
			}
			d.onEligibilityEvent(ctx, ev)

		case <-d.updates.Notify():
			d.peerManager.UpdatePeerBroadcast(d.updates.Drain())

		case sub := <-d.submitCh:
			d.handleClientSubmission(ctx, sub)
		}
	}
}

func (d *Dispatcher) onTransportEvent(ctx context.Context, ev transport.Event) {
	if d.upstreamProxy != nil {
		d.upstreamProxy.Observe(ev)
	}

	switch e := ev.(type) {
	case transport.NewPeerEvent:
		d.peerManager.AddPeer(e.Peer)
	case transport.LostPeerEvent:
		d.peerManager.DisablePeer(e.Peer)
	case transport.RPCRequestEvent:
		d.handleInboundBatch(ctx, e)
	}
}

// handleInboundBatch bounds concurrent validation work with the configured
// semaphore (§4.4 step 2). The permit is acquired on the dispatch loop, so
// while every permit is in use the loop waits and applies backpressure to
// the event stream; processing, reply and release then run on their own
// goroutine. A failure to acquire (ctx cancelled) simply drops the batch.
func (d *Dispatcher) handleInboundBatch(ctx context.Context, ev transport.RPCRequestEvent) {
	if err := d.sem.Acquire(ctx, 1); err != nil {
		return
	}

	go func() {
		defer d.sem.Release(1)

		res := d.pipeline.ProcessBatch(ctx, ev.Peer, ev.Request.Transactions)
		if d.metrics != nil {
			d.metrics.ObserveBatch(ev.Peer.Scope.String(), res)
		}
		if res.StorageFailures > 0 {
			inboundLog.WithFields(map[string]interface{}{
				"peer":  ev.Peer.ID,
				"count": res.StorageFailures,
			}).Debug("dropped transactions with storage lookup failures")
		}

		// backpressure_ms is wired but always reports zero today; see §9
		// Open Question a.
		reply := transport.BroadcastTransactionsResponse{BackpressureMS: 0}
		select {
		case ev.Reply <- reply:
		default:
			inboundLog.WithField("peer", ev.Peer.ID).Debug("dropping reply, receiver not listening")
		}
	}()
}

func (d *Dispatcher) handleClientSubmission(ctx context.Context, sub ClientSubmission) {
	localOrigin := peer.NetworkID{Scope: peer.FullNodeNetwork, ID: "local"}
	res := d.pipeline.ProcessBatch(ctx, localOrigin, []transport.WireTransaction{sub.Tx})
	if d.metrics != nil {
		d.metrics.ObserveBatch("client", res)
	}

	var err error
	switch {
	case res.DecodeFailures > 0:
		err = errSubmissionRejected{"malformed transaction"}
	case res.StorageFailures > 0:
		err = errSubmissionRejected{"sender account lookup failed"}
	case res.VMRejections > 0:
		err = errSubmissionRejected{"rejected by vm validator"}
	case res.AdmitRejections > 0:
		err = errSubmissionRejected{"rejected by mempool"}
	}

	if sub.Reply != nil {
		select {
		case sub.Reply <- err:
		default:
		}
	}
}

type errSubmissionRejected struct{ reason string }

func (e errSubmissionRejected) Error() string { return "submission rejected: " + e.reason }

// onEligibilityEvent starts, resumes or pauses the worker for p per §4.7's
// state machine, spawning a new worker goroutine the first time p becomes
// eligible.
func (d *Dispatcher) onEligibilityEvent(ctx context.Context, ev EligibilityEvent) {
	w, exists := d.workers[ev.Peer]

	if !ev.Eligible {
		if exists {
			w.control.Send(controlPause)
		}
		return
	}

	if exists {
		w.control.Send(controlStart)
		return
	}

	workerCtx, cancel := context.WithCancel(ctx)
	control := newControlChannel()
	cursor := d.peerManager.CursorFor(ev.Peer)

	worker := newOutboundWorker(ev.Peer, cursor, d.pool, d.tr, control, d.updates, d.metrics, d.cfg.BatchSize, d.cfg.BroadcastSendTimeout, d.cfg.BroadcastSleep)
	d.workers[ev.Peer] = &registeredWorker{control: control, cancel: cancel}

	go worker.run(workerCtx)
}

func (d *Dispatcher) shutdownWorkers() {
	for p, w := range d.workers {
		w.control.Close()
		w.cancel()
		delete(d.workers, p)
	}
}
