// This Source Code Form is subject to the terms of the MIT License.
// If a copy of the MIT License was not distributed with this
// file, you can obtain one at https://opensource.org/licenses/MIT.

package sharedmempool

import (
	"github.com/prometheus/client_golang/prometheus"
)

const metricsSubsystem = "shared_mempool"

// Metrics collects the counters/gauges the runtime publishes on
// cfg.RPC.MetricsListenAddr (§9 supplemental observability). Every field is
// safe for concurrent use, matching prometheus's own guarantee.
type Metrics struct {
	BatchesProcessed  *prometheus.CounterVec
	DecodeFailures    *prometheus.CounterVec
	StorageFailures   *prometheus.CounterVec
	VMRejections      *prometheus.CounterVec
	AdmitRejections   *prometheus.CounterVec
	Admitted          *prometheus.CounterVec
	BroadcastFailures *prometheus.CounterVec
	PickedPeers       prometheus.GaugeFunc
	PoolSize          prometheus.GaugeFunc
}

// NewMetrics builds a Metrics set and registers it against reg. pickedPeers
// reports the Peer Manager's current alive-primary-plus-picked-fallback
// count (§8 invariant 3), sampled on scrape the same way poolSize is.
func NewMetrics(reg prometheus.Registerer, poolSize, pickedPeers func() float64) *Metrics {
	m := &Metrics{
		BatchesProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Subsystem: metricsSubsystem,
			Name:      "batches_processed_total",
			Help:      "Inbound batches processed by the validation pipeline, by origin peer scope.",
		}, []string{"scope"}),
		DecodeFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Subsystem: metricsSubsystem,
			Name:      "decode_failures_total",
			Help:      "Wire transactions dropped for failing to decode, by origin peer scope.",
		}, []string{"scope"}),
		StorageFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Subsystem: metricsSubsystem,
			Name:      "storage_failures_total",
			Help:      "Transactions dropped for a StorageRead lookup failure, by origin peer scope.",
		}, []string{"scope"}),
		VMRejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Subsystem: metricsSubsystem,
			Name:      "vm_rejections_total",
			Help:      "Transactions rejected by the VM validator, by origin peer scope.",
		}, []string{"scope"}),
		AdmitRejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Subsystem: metricsSubsystem,
			Name:      "admit_rejections_total",
			Help:      "Transactions rejected by CoreMempool.Add, by origin peer scope.",
		}, []string{"scope"}),
		Admitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Subsystem: metricsSubsystem,
			Name:      "admitted_total",
			Help:      "Transactions admitted into CoreMempool, by origin peer scope.",
		}, []string{"scope"}),
		BroadcastFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Subsystem: metricsSubsystem,
			Name:      "broadcast_failures_total",
			Help:      "Outbound RPC send failures, by target peer id.",
		}, []string{"peer"}),
		PickedPeers: prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Subsystem: metricsSubsystem,
			Name:      "picked_peers",
			Help:      "Current count of broadcast-eligible peers (primary plus picked fallback).",
		}, pickedPeers),
		PoolSize: prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Subsystem: metricsSubsystem,
			Name:      "pool_size",
			Help:      "Current number of transactions held by CoreMempool.",
		}, poolSize),
	}

	reg.MustRegister(
		m.BatchesProcessed,
		m.DecodeFailures,
		m.StorageFailures,
		m.VMRejections,
		m.AdmitRejections,
		m.Admitted,
		m.BroadcastFailures,
		m.PickedPeers,
		m.PoolSize,
	)
	return m
}

// ObserveBatch records one ProcessBatch outcome under scope: "full_node" or
// "validator" (per peer.NetworkScope.String()) for peer batches, "client"
// for client submissions.
func (m *Metrics) ObserveBatch(scope string, res BatchResult) {
	m.BatchesProcessed.WithLabelValues(scope).Inc()
	if res.DecodeFailures > 0 {
		m.DecodeFailures.WithLabelValues(scope).Add(float64(res.DecodeFailures))
	}
	if res.StorageFailures > 0 {
		m.StorageFailures.WithLabelValues(scope).Add(float64(res.StorageFailures))
	}
	if res.VMRejections > 0 {
		m.VMRejections.WithLabelValues(scope).Add(float64(res.VMRejections))
	}
	if res.AdmitRejections > 0 {
		m.AdmitRejections.WithLabelValues(scope).Add(float64(res.AdmitRejections))
	}
	if res.Admitted > 0 {
		m.Admitted.WithLabelValues(scope).Add(float64(res.Admitted))
	}
}

// ReportBroadcastFailure records one outbound RPC send failure against the
// target peer (§7: "Transport RPC errors on outbound — retried by the next
// broadcast step with the unchanged cursor").
func (m *Metrics) ReportBroadcastFailure(targetPeer string) {
	m.BroadcastFailures.WithLabelValues(targetPeer).Inc()
}
