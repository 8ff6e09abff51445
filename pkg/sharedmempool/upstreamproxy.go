// This Source Code Form is subject to the terms of the MIT License.
// If a copy of the MIT License was not distributed with this
// file, you can obtain one at https://opensource.org/licenses/MIT.

package sharedmempool

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/meridian-chain/meridian/pkg/log"
	"github.com/meridian-chain/meridian/pkg/peer"
	"github.com/meridian-chain/meridian/pkg/transport"
)

var upstreamProxyLog = log.WithPrefix("upstream-proxy")

// UpstreamProxy mirrors the Rust original's admission_control upstream_proxy:
// an optional, disabled-by-default observer of validator-network liveness
// that never touches CoreMempool or the broadcast timeline. It exists so an
// admission-control front end can report "am I connected to my validator"
// without the shared mempool's broadcast logic knowing anything about it.
// Enable via [mempool] upstream_proxy_enabled.
//
// It has no Run loop of its own: the dispatcher (the single owner of the
// transport's event stream) forwards every event through Observe rather than
// handing this a competing reader on the same channel.
type UpstreamProxy struct {
	live    *prometheus.GaugeVec
	tracked map[peer.NetworkID]bool
}

// NewUpstreamProxy builds an observer, registering its liveness gauge
// against reg.
func NewUpstreamProxy(reg prometheus.Registerer) *UpstreamProxy {
	gauge := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Subsystem: metricsSubsystem,
		Name:      "validator_peer_alive",
		Help:      "1 if the validator-network peer is currently connected, 0 otherwise.",
	}, []string{"peer"})
	if reg != nil {
		reg.MustRegister(gauge)
	}
	return &UpstreamProxy{live: gauge, tracked: make(map[peer.NetworkID]bool)}
}

// Observe inspects ev for a validator-network peer liveness transition.
// Non-validator-scope peers and non-liveness events are ignored.
func (u *UpstreamProxy) Observe(ev transport.Event) {
	switch e := ev.(type) {
	case transport.NewPeerEvent:
		if e.Peer.Scope != peer.ValidatorNetwork {
			return
		}
		u.tracked[e.Peer] = true
		u.live.WithLabelValues(string(e.Peer.ID)).Set(1)
		upstreamProxyLog.WithField("peer", e.Peer.ID).Info("validator peer connected")
	case transport.LostPeerEvent:
		if e.Peer.Scope != peer.ValidatorNetwork {
			return
		}
		if _, ok := u.tracked[e.Peer]; ok {
			u.live.WithLabelValues(string(e.Peer.ID)).Set(0)
			upstreamProxyLog.WithField("peer", e.Peer.ID).Warn("validator peer disconnected")
		}
	}
}
