// This Source Code Form is subject to the terms of the MIT License.
// If a copy of the MIT License was not distributed with this
// file, you can obtain one at https://opensource.org/licenses/MIT.

// Package mempool implements CoreMempool (§3): the indexed, TTL-bounded pool
// of admitted transactions the shared-mempool runtime reads from and writes
// into. It is treated as an external collaborator by the rest of the spec —
// add/read_timeline/gc are primitive, single-lock operations — so this
// package stays small and deliberately unopinionated about validation.
package mempool

import (
	"sync"
	"time"

	"github.com/google/btree"

	"github.com/meridian-chain/meridian/pkg/core/types"
	"github.com/meridian-chain/meridian/pkg/log"
)

var logger = log.WithPrefix("core-mempool")

// TimelineState classifies an admitted transaction's eligibility for
// outbound broadcast (§3).
type TimelineState int

const (
	// Ready transactions are eligible for read_timeline/broadcast.
	Ready TimelineState = iota
	// NotReady transactions have a future sequence number relative to the
	// sender's known chain state and are skipped by read_timeline.
	NotReady
	// NonQualified transactions were admitted from a same-tier validator
	// peer and must never be re-broadcast (loop prevention, §4.3 step 4).
	NonQualified
)

func (s TimelineState) String() string {
	switch s {
	case Ready:
		return "ready"
	case NotReady:
		return "not_ready"
	case NonQualified:
		return "non_qualified"
	default:
		return "unknown"
	}
}

// AdmitStatus is the outcome of CoreMempool.Add (§3).
type AdmitStatus int

const (
	Valid AdmitStatus = iota
	InvalidSeqNumber
	InsufficientBalance
	InvalidUpdate
	MempoolIsFull
)

func (s AdmitStatus) String() string {
	switch s {
	case Valid:
		return "valid"
	case InvalidSeqNumber:
		return "invalid_seq_number"
	case InsufficientBalance:
		return "insufficient_balance"
	case InvalidUpdate:
		return "invalid_update"
	case MempoolIsFull:
		return "mempool_is_full"
	default:
		return "unknown"
	}
}

type entry struct {
	tx         types.SignedTransaction
	state      TimelineState
	timelineID uint64
	admittedAt time.Time
}

func less(a, b *entry) bool {
	return a.timelineID < b.timelineID
}

// CoreMempool is the single process-wide mutable pool. Every method acquires
// mu for the span of one primitive operation only; no caller may hold mu
// across a suspension point (channel send/receive, RPC call) — see §5.
type CoreMempool struct {
	mu sync.Mutex

	byKey    map[types.Key]*entry
	timeline *btree.BTreeG[*entry]
	nextID   uint64

	ttl     time.Duration
	maxSize int
}

// New builds an empty CoreMempool with the given system TTL and size bound.
func New(ttl time.Duration, maxSize int) *CoreMempool {
	return &CoreMempool{
		byKey:    make(map[types.Key]*entry),
		timeline: btree.NewG(32, less),
		ttl:      ttl,
		maxSize:  maxSize,
	}
}

// Add admits txn under the given timeline state, returning the admission
// verdict. Re-admitting an already-present (sender, sequence) pair is a
// no-op that reports Valid without disturbing timeline ordering (invariant 7).
func (m *CoreMempool) Add(tx types.SignedTransaction, dbSeq uint64, balance uint64, state TimelineState) (status AdmitStatus) {
	defer m.recoverPoison()

	m.mu.Lock()
	defer m.mu.Unlock()

	key := tx.Key()
	if _, exists := m.byKey[key]; exists {
		return Valid
	}

	if tx.Sequence < dbSeq {
		return InvalidSeqNumber
	}
	if tx.MaxGas > balance {
		return InsufficientBalance
	}
	if len(m.byKey) >= m.maxSize {
		return MempoolIsFull
	}

	m.nextID++
	e := &entry{
		tx:         tx,
		state:      state,
		timelineID: m.nextID,
		admittedAt: time.Now(),
	}
	e.tx.TimelineID = e.timelineID
	m.byKey[key] = e
	m.timeline.ReplaceOrInsert(e)

	logger.WithFields(map[string]interface{}{
		"sender":      tx.Sender.String(),
		"sequence":    tx.Sequence,
		"timeline_id": e.timelineID,
		"state":       state.String(),
	}).Trace("admitted transaction")

	return Valid
}

// ReadTimeline returns up to maxCount Ready transactions with timeline ids
// strictly greater than cursor, in ascending order, plus the greatest
// timeline id examined during the scan (§4.1). NotReady/NonQualified entries
// are skipped but still advance the returned cursor so the caller never
// rescans them.
func (m *CoreMempool) ReadTimeline(cursor uint64, maxCount int) ([]types.SignedTransaction, uint64) {
	defer m.recoverPoison()

	if maxCount <= 0 {
		return nil, cursor
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	var (
		out        []types.SignedTransaction
		nextCursor = cursor
	)

	pivot := &entry{timelineID: cursor + 1}
	m.timeline.AscendGreaterOrEqual(pivot, func(e *entry) bool {
		if len(out) >= maxCount {
			return false
		}
		if e.state == Ready {
			out = append(out, e.tx)
		}
		nextCursor = e.timelineID
		return true
	})

	return out, nextCursor
}

// GCBySystemTTL removes every transaction whose local admission time
// exceeds the configured TTL.
func (m *CoreMempool) GCBySystemTTL() (removed int) {
	defer m.recoverPoison()

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ttl <= 0 {
		return 0
	}

	cutoff := time.Now().Add(-m.ttl)
	var expired []*entry
	m.timeline.Ascend(func(e *entry) bool {
		if e.admittedAt.Before(cutoff) {
			expired = append(expired, e)
		}
		return true
	})

	for _, e := range expired {
		m.timeline.Delete(e)
		delete(m.byKey, e.tx.Key())
	}

	if len(expired) > 0 {
		logger.WithField("count", len(expired)).Info("gc expired transactions")
	}
	return len(expired)
}

// Len reports the number of transactions currently held, across all states.
func (m *CoreMempool) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.byKey)
}

// recoverPoison turns an internal invariant violation into a logged,
// re-raised panic: CoreMempool corruption is unrecoverable and the process
// is expected to terminate (§7).
func (m *CoreMempool) recoverPoison() {
	if r := recover(); r != nil {
		logger.WithField("panic", r).Error("core mempool invariant violated, aborting")
		panic(r)
	}
}
