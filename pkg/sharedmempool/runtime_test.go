package sharedmempool

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/meridian-chain/meridian/pkg/config"
	"github.com/meridian-chain/meridian/pkg/core/types"
	"github.com/meridian-chain/meridian/pkg/peer"
	"github.com/meridian-chain/meridian/pkg/storage"
	"github.com/meridian-chain/meridian/pkg/transport"
	"github.com/meridian-chain/meridian/pkg/vm"
)

// An end-to-end run: a client submission gets validated, admitted, and
// broadcast to a freshly connected upstream peer once it becomes eligible.
var _ = Describe("Runtime", func() {
	var (
		target peer.NetworkID
		ft     *fakeTransport
		reader *fakeReader
		rt     *Runtime
		cancel context.CancelFunc
	)

	BeforeEach(func() {
		target = netID(peer.FullNodeNetwork, "upstream-1")
		ft = newFakeTransport()
		reader = &fakeReader{states: map[types.Address]storage.AccountState{}}

		cfg := config.Default()
		cfg.Mempool.BroadcastSleep = 5 * time.Millisecond
		cfg.Mempool.SystemTransactionGCIntervalMS = 0 // disabled for this scenario

		upstream := peer.NewUpstreamConfig([]peer.NetworkID{target}, nil, nil)
		rt = New(cfg, ft, reader, acceptAllValidator{}, upstream, nil)

		var ctx context.Context
		ctx, cancel = context.WithCancel(context.Background())
		rt.Start(ctx)
	})

	AfterEach(func() {
		cancel()
		rt.Stop()
	})

	It("broadcasts an admitted client submission once the peer connects", func() {
		var addr types.Address
		addr[0] = 9
		reply := make(chan error, 1)
		rt.Submit(ClientSubmission{
			Tx: transport.WireTransaction{
				Sender:    addr,
				Sequence:  0,
				MaxGas:    10,
				Signature: []byte("sig"),
			},
			Reply: reply,
		})

		Eventually(reply, time.Second).Should(Receive(BeNil()))
		Expect(rt.Pool.Len()).To(Equal(1))

		ft.events <- transport.NewPeerEvent{Peer: target}

		Eventually(func() int { return ft.tr.count() }, time.Second, 10*time.Millisecond).Should(BeNumerically(">", 0))
	})
})

var _ = Describe("vm rejection", func() {
	It("never admits a transaction the VM validator rejects", func() {
		ft := newFakeTransport()
		reader := &fakeReader{states: map[types.Address]storage.AccountState{}}
		cfg := config.Default()
		upstream := peer.NewUpstreamConfig(nil, nil, nil)
		rt := New(cfg, ft, reader, vm.NewReference(), upstream, nil)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		rt.Start(ctx)
		defer rt.Stop()

		var addr types.Address
		addr[0] = 1
		reply := make(chan error, 1)
		rt.Submit(ClientSubmission{
			Tx: transport.WireTransaction{
				Sender:    addr,
				Sequence:  0,
				MaxGas:    10,
				Signature: []byte("not-a-real-signature-of-the-right-size"),
			},
			Reply: reply,
		})

		Eventually(reply, time.Second).ShouldNot(Receive(BeNil()))
		Expect(rt.Pool.Len()).To(Equal(0))
	})
})
