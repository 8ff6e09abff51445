package sharedmempool

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/meridian-chain/meridian/pkg/core/mempool"
	"github.com/meridian-chain/meridian/pkg/core/types"
	"github.com/meridian-chain/meridian/pkg/peer"
	"github.com/meridian-chain/meridian/pkg/transport"
)

type recordingTransport struct {
	mu      sync.Mutex
	sent    []transport.BroadcastTransactionsRequest
	failNext bool
}

func (r *recordingTransport) Events() <-chan transport.Event { return nil }

func (r *recordingTransport) Send(_ context.Context, _ peer.NetworkID, req transport.BroadcastTransactionsRequest) (transport.BroadcastTransactionsResponse, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failNext {
		r.failNext = false
		return transport.BroadcastTransactionsResponse{}, assertError{}
	}
	r.sent = append(r.sent, req)
	return transport.BroadcastTransactionsResponse{}, nil
}

func (r *recordingTransport) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sent)
}

func TestOutboundWorkerAdvancesCursorOnlyOnAck(t *testing.T) {
	require := require.New(t)
	pool := mempool.New(0, 100)
	var addr types.Address
	addr[0] = 1
	tx := types.SignedTransaction{Sender: addr, Sequence: 1, MaxGas: 10, Signature: []byte("s")}
	require.Equal(mempool.Valid, pool.Add(tx, 0, 100, mempool.Ready))

	tr := &recordingTransport{failNext: true}
	control := newControlChannel()
	updates := newCursorUpdateChannel()
	target := netID(peer.FullNodeNetwork, "p1")

	w := newOutboundWorker(target, 0, pool, tr, control, updates, nil, 10, time.Second, time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// First attempt fails: cursor must not advance.
	_, err := w.running(ctx)
	require.Error(err)
	require.EqualValues(0, w.cursor)

	// Second attempt succeeds: cursor advances and an update is reported.
	_, err = w.running(ctx)
	require.NoError(err)
	require.EqualValues(1, w.cursor)

	pending := updates.Drain()
	require.Equal(uint64(1), pending[target])
	require.Equal(1, tr.count())
}

func TestOutboundWorkerReportsBroadcastFailure(t *testing.T) {
	require := require.New(t)
	pool := mempool.New(0, 100)
	var addr types.Address
	addr[0] = 1
	tx := types.SignedTransaction{Sender: addr, Sequence: 1, MaxGas: 10, Signature: []byte("s")}
	require.Equal(mempool.Valid, pool.Add(tx, 0, 100, mempool.Ready))

	tr := &recordingTransport{failNext: true}
	control := newControlChannel()
	updates := newCursorUpdateChannel()
	target := netID(peer.FullNodeNetwork, "p1")

	metrics := &Metrics{
		BroadcastFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "test_broadcast_failures_total",
		}, []string{"peer"}),
	}
	w := newOutboundWorker(target, 0, pool, tr, control, updates, metrics, 10, time.Second, time.Millisecond)

	_, err := w.running(context.Background())
	require.Error(err)
	require.Equal(float64(1), testutil.ToFloat64(metrics.BroadcastFailures.WithLabelValues(string(target.ID))))
}

func TestOutboundWorkerHonoursPauseAndKill(t *testing.T) {
	require := require.New(t)
	pool := mempool.New(0, 100)
	tr := &recordingTransport{}
	control := newControlChannel()
	updates := newCursorUpdateChannel()
	target := netID(peer.FullNodeNetwork, "p1")

	w := newOutboundWorker(target, 0, pool, tr, control, updates, nil, 10, time.Second, time.Millisecond)

	control.Send(controlPause)
	next, err := w.running(context.Background())
	require.NoError(err)
	require.NotNil(next)

	done := make(chan struct{})
	go func() {
		st, _ := next(context.Background())
		require.NotNil(st)
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("paused state returned before resume/kill was sent")
	case <-time.After(20 * time.Millisecond):
	}

	control.Send(controlKill)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("paused state did not observe KILL")
	}
}

func TestOutboundWorkerRunTerminatesOnKill(t *testing.T) {
	pool := mempool.New(0, 100)
	tr := &recordingTransport{}
	control := newControlChannel()
	updates := newCursorUpdateChannel()
	target := netID(peer.FullNodeNetwork, "p1")

	w := newOutboundWorker(target, 0, pool, tr, control, updates, nil, 10, time.Second, time.Millisecond)

	done := make(chan struct{})
	go func() {
		w.run(context.Background())
		close(done)
	}()

	control.Send(controlKill)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("run() did not terminate after KILL")
	}
}
