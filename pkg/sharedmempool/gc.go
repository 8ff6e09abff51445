// This Source Code Form is subject to the terms of the MIT License.
// If a copy of the MIT License was not distributed with this
// file, you can obtain one at https://opensource.org/licenses/MIT.

package sharedmempool

import (
	"context"
	"time"

	"github.com/meridian-chain/meridian/pkg/core/mempool"
	"github.com/meridian-chain/meridian/pkg/log"
)

var gcLog = log.WithPrefix("gc-timer")

// GCTimer periodically sweeps CoreMempool for TTL-expired transactions
// (§4.6). It is the simplest component in the runtime: a single ticking
// goroutine with no inbound signalling, drop-not-queue on every tick.
type GCTimer struct {
	pool     *mempool.CoreMempool
	interval time.Duration
}

// NewGCTimer builds a GC Timer that sweeps pool every interval.
func NewGCTimer(pool *mempool.CoreMempool, interval time.Duration) *GCTimer {
	return &GCTimer{pool: pool, interval: interval}
}

// Run blocks, ticking until ctx is cancelled. Intended to be launched in its
// own goroutine by runtime.go's Start.
func (g *GCTimer) Run(ctx context.Context) {
	if g.interval <= 0 {
		gcLog.Warn("gc interval is non-positive, timer disabled")
		return
	}

	ticker := time.NewTicker(g.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed := g.pool.GCBySystemTTL()
			if removed > 0 {
				gcLog.WithField("removed", removed).Info("gc swept expired transactions")
			}
		}
	}
}
