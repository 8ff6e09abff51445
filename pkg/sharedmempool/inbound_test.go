package sharedmempool

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/meridian-chain/meridian/pkg/core/mempool"
	"github.com/meridian-chain/meridian/pkg/core/types"
	"github.com/meridian-chain/meridian/pkg/peer"
	"github.com/meridian-chain/meridian/pkg/storage"
	"github.com/meridian-chain/meridian/pkg/transport"
)

type fakeTransport struct {
	events chan transport.Event
	tr     *recordingTransport
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{events: make(chan transport.Event, 8), tr: &recordingTransport{}}
}

func (f *fakeTransport) Events() <-chan transport.Event { return f.events }

func (f *fakeTransport) Send(ctx context.Context, p peer.NetworkID, req transport.BroadcastTransactionsRequest) (transport.BroadcastTransactionsResponse, error) {
	return f.tr.Send(ctx, p, req)
}

func TestDispatcherClientSubmissionAdmitsAndReplies(t *testing.T) {
	require := require.New(t)
	pool := mempool.New(0, 100)
	reader := &fakeReader{states: map[types.Address]storage.AccountState{}}
	pipeline := NewValidationPipeline(pool, reader, acceptAllValidator{}, peer.NewUpstreamConfig(nil, nil, nil))
	pm := NewPeerManager(peer.NewUpstreamConfig(nil, nil, nil), 1)
	defer pm.Close()

	ft := newFakeTransport()
	d := NewDispatcher(ft, pm, pipeline, pool, nil, DispatcherConfig{
		MaxConcurrentInboundSyncs:  2,
		BatchSize:                  10,
		BroadcastSendTimeout:       time.Second,
		BroadcastSleep:             time.Millisecond,
		ClientSubmissionBufferSize: 4,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Run(ctx)

	var addr types.Address
	addr[0] = 7
	reply := make(chan error, 1)
	d.Submit(ClientSubmission{
		Tx: transport.WireTransaction{
			Sender:    addr,
			Sequence:  0,
			MaxGas:    10,
			Signature: []byte("sig"),
		},
		Reply: reply,
	})

	select {
	case err := <-reply:
		require.NoError(err)
	case <-time.After(time.Second):
		t.Fatal("client submission was never replied to")
	}

	require.Equal(1, pool.Len())
}

func TestDispatcherStartsWorkerOnEligibility(t *testing.T) {
	require := require.New(t)
	pool := mempool.New(0, 100)
	var addr types.Address
	addr[0] = 3
	tx := types.SignedTransaction{Sender: addr, Sequence: 1, MaxGas: 5, Signature: []byte("s")}
	require.Equal(mempool.Valid, pool.Add(tx, 0, 100, mempool.Ready))

	reader := &fakeReader{states: map[types.Address]storage.AccountState{}}
	target := netID(peer.FullNodeNetwork, "p1")
	cfg := peer.NewUpstreamConfig([]peer.NetworkID{target}, nil, nil)
	pipeline := NewValidationPipeline(pool, reader, acceptAllValidator{}, cfg)
	pm := NewPeerManager(cfg, 1)
	defer pm.Close()

	ft := newFakeTransport()
	d := NewDispatcher(ft, pm, pipeline, pool, nil, DispatcherConfig{
		MaxConcurrentInboundSyncs:  2,
		BatchSize:                  10,
		BroadcastSendTimeout:       time.Second,
		BroadcastSleep:             5 * time.Millisecond,
		ClientSubmissionBufferSize: 4,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Run(ctx)

	ft.events <- transport.NewPeerEvent{Peer: target}

	require.Eventually(func() bool {
		return ft.tr.count() > 0
	}, time.Second, 10*time.Millisecond, "worker never broadcast to the newly eligible peer")
}
