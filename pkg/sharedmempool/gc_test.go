package sharedmempool

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/meridian-chain/meridian/pkg/core/mempool"
	"github.com/meridian-chain/meridian/pkg/core/types"
)

func TestGCTimerSweepsExpiredTransactions(t *testing.T) {
	require := require.New(t)
	pool := mempool.New(10*time.Millisecond, 100)
	var addr types.Address
	addr[0] = 1
	tx := types.SignedTransaction{Sender: addr, Sequence: 1, MaxGas: 10, Signature: []byte("s")}
	require.Equal(mempool.Valid, pool.Add(tx, 0, 100, mempool.Ready))
	require.Equal(1, pool.Len())

	gc := NewGCTimer(pool, 5*time.Millisecond)
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()

	gc.Run(ctx)

	require.Equal(0, pool.Len())
}

func TestGCTimerDisabledOnNonPositiveInterval(t *testing.T) {
	pool := mempool.New(0, 100)
	gc := NewGCTimer(pool, 0)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	gc.Run(ctx) // must return promptly rather than spin.
}
