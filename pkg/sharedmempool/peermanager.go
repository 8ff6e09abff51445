// This Source Code Form is subject to the terms of the MIT License.
// If a copy of the MIT License was not distributed with this
// file, you can obtain one at https://opensource.org/licenses/MIT.

package sharedmempool

import (
	"math/rand"
	"sync"

	"github.com/meridian-chain/meridian/pkg/log"
	"github.com/meridian-chain/meridian/pkg/peer"
)

var pmLog = log.WithPrefix("peer-manager")

// EligibilityEvent reports that p's broadcast eligibility (§4.2
// should_broadcast) just flipped. The Outbound Broadcaster — via the
// dispatcher, which owns the worker registry per §5 — reacts by starting,
// resuming or pausing p's worker.
type EligibilityEvent struct {
	Peer     peer.NetworkID
	Eligible bool
}

// PeerManager decides which peers currently receive broadcasts (§4.2). It
// never blocks: every state change is published on an unbounded queue.
// mu guards state/fallback for the span of one call only; it is never held
// across a channel send.
type PeerManager struct {
	cfg           peer.UpstreamConfig
	minRecipients int
	rng           *rand.Rand

	mu       sync.Mutex
	state    map[peer.NetworkID]*peer.SyncState
	fallback map[peer.NetworkID]struct{}

	events *unboundedQueue[EligibilityEvent]
}

// NewPeerManager builds a Peer Manager for the given static upstream
// classification and k-of-N recipient floor.
func NewPeerManager(cfg peer.UpstreamConfig, minRecipients int) *PeerManager {
	return &PeerManager{
		cfg:           cfg,
		minRecipients: minRecipients,
		rng:           rand.New(rand.NewSource(rand.Int63())),
		state:         make(map[peer.NetworkID]*peer.SyncState),
		fallback:      make(map[peer.NetworkID]struct{}),
		events:        newUnboundedQueue[EligibilityEvent](),
	}
}

// Events is the eligibility-change stream the dispatcher consumes.
func (pm *PeerManager) Events() <-chan EligibilityEvent { return pm.events.Out() }

// Close shuts down the internal event queue; call once at process shutdown.
func (pm *PeerManager) Close() { pm.events.Close() }

// AddPeer handles a NewPeer control message (§4.7): only upstream peers are
// admitted; the entry is marked alive (idempotently) and selection reruns.
func (pm *PeerManager) AddPeer(p peer.NetworkID) {
	if !pm.cfg.IsUpstreamPeer(p) {
		pmLog.WithField("peer", p.ID).Debug("ignoring NewPeer for non-upstream peer")
		return
	}

	pm.mu.Lock()
	st, existed := pm.state[p]
	if !existed {
		st = &peer.SyncState{}
		pm.state[p] = st
	}
	before := pm.eligibleLocked(p, st)
	st.IsAlive = true

	changes := pm.runSelectionLocked()
	after := pm.eligibleLocked(p, st)
	pm.mu.Unlock()

	pm.emitChanges(p, before, after, changes)
}

// DisablePeer handles a LostPeer control message: the entry is marked dead
// (cursor retained) and, if it was a fallback pick, evicted from the pick
// set before selection reruns to backfill the floor.
func (pm *PeerManager) DisablePeer(p peer.NetworkID) {
	pm.mu.Lock()
	st, existed := pm.state[p]
	if !existed {
		pmLog.WithField("peer", p.ID).Debug("LostPeer for unknown peer, ignoring")
		pm.mu.Unlock()
		return
	}

	before := pm.eligibleLocked(p, st)
	st.IsAlive = false

	changes := pm.runSelectionLocked()
	after := pm.eligibleLocked(p, st)
	pm.mu.Unlock()

	pm.emitChanges(p, before, after, changes)
}

func (pm *PeerManager) emitChanges(direct peer.NetworkID, before, after bool, changes []EligibilityEvent) {
	if before != after {
		pm.events.Send(EligibilityEvent{Peer: direct, Eligible: after})
	}
	for _, c := range changes {
		if c.Peer == direct {
			continue
		}
		pm.events.Send(c)
	}
}

// UpdatePeerBroadcast writes through cursor advances reported by workers
// (§4.2); unknown peers are a no-op.
func (pm *PeerManager) UpdatePeerBroadcast(updates map[peer.NetworkID]uint64) {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	for p, cursor := range updates {
		if st, ok := pm.state[p]; ok && cursor > st.TimelineID {
			st.TimelineID = cursor
		}
	}
}

// ShouldBroadcast reports whether p is currently an eligible broadcast
// recipient, and its retained sync state (§4.2).
func (pm *PeerManager) ShouldBroadcast(p peer.NetworkID) (peer.SyncState, bool) {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	st, ok := pm.state[p]
	if !ok {
		return peer.SyncState{}, false
	}
	return *st, pm.eligibleLocked(p, st)
}

// CursorFor returns the retained cursor for p (0 if unknown), used to seed a
// worker that is starting or resuming.
func (pm *PeerManager) CursorFor(p peer.NetworkID) uint64 {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	if st, ok := pm.state[p]; ok {
		return st.TimelineID
	}
	return 0
}

// AlivePrimaryCount and PickedFallbackCount support invariant 3 (§8) in tests.
func (pm *PeerManager) AlivePrimaryCount() int {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	n := 0
	for p, st := range pm.state {
		if st.IsAlive && pm.cfg.IsPrimaryUpstreamPeer(p) {
			n++
		}
	}
	return n
}

func (pm *PeerManager) PickedFallbackCount() int {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	return len(pm.fallback)
}

func (pm *PeerManager) eligibleLocked(p peer.NetworkID, st *peer.SyncState) bool {
	if !st.IsAlive {
		return false
	}
	if pm.cfg.IsPrimaryUpstreamPeer(p) {
		return true
	}
	_, picked := pm.fallback[p]
	return picked
}

// runSelectionLocked implements §4.2's selection algorithm. Callers must
// hold pm.mu. It returns the set of fallback pick/unpick changes it made so
// the caller can emit eligibility events after releasing the lock.
func (pm *PeerManager) runSelectionLocked() []EligibilityEvent {
	var changes []EligibilityEvent

	// Step 2: evict dead fallback picks.
	for p := range pm.fallback {
		if st := pm.state[p]; st == nil || !st.IsAlive {
			delete(pm.fallback, p)
			changes = append(changes, EligibilityEvent{Peer: p, Eligible: false})
		}
	}

	alivePrimaries := 0
	var candidates []peer.NetworkID
	for p, st := range pm.state {
		if !st.IsAlive {
			continue
		}
		if pm.cfg.IsPrimaryUpstreamPeer(p) {
			alivePrimaries++
			continue
		}
		if _, picked := pm.fallback[p]; !picked {
			candidates = append(candidates, p)
		}
	}

	need := pm.minRecipients - (alivePrimaries + len(pm.fallback))
	if need <= 0 || len(candidates) == 0 {
		return changes
	}
	if need > len(candidates) {
		need = len(candidates)
	}

	pm.rng.Shuffle(len(candidates), func(i, j int) {
		candidates[i], candidates[j] = candidates[j], candidates[i]
	})

	for _, p := range candidates[:need] {
		pm.fallback[p] = struct{}{}
		changes = append(changes, EligibilityEvent{Peer: p, Eligible: true})
	}
	return changes
}
