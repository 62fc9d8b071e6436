// Package metrics exposes pool operation metrics to Prometheus.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"cpamm/internal/amm"
)

// Operation results.
const (
	ResultOK       = "ok"
	ResultRejected = "rejected"
	ResultFailed   = "failed"
)

// Metrics holds the Prometheus collectors for the pool service. A nil
// *Metrics records nothing.
type Metrics struct {
	operations  *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	reserve     *prometheus.GaugeVec
	shareSupply *prometheus.GaugeVec
}

// New creates and registers the metrics.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "amm_operations_total",
			Help: "Pool operations, labeled by operation and result.",
		}, []string{"op", "result"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "amm_operation_duration_seconds",
			Help:    "Time taken to execute and persist a pool operation.",
			Buckets: prometheus.DefBuckets,
		}, []string{"op"}),
		reserve: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "amm_pool_reserve",
			Help: "Committed pool reserve in base units.",
		}, []string{"pool", "side"}),
		shareSupply: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "amm_pool_share_supply",
			Help: "Committed share supply in base units.",
		}, []string{"pool"}),
	}
	reg.MustRegister(m.operations, m.duration, m.reserve, m.shareSupply)
	return m
}

// Observe records the outcome of one operation. Requests the pool refused
// count as rejected; custodian, corruption and storage errors as failed.
func (m *Metrics) Observe(op string, start time.Time, err error) {
	if m == nil {
		return
	}
	result := ResultOK
	if err != nil {
		result = ResultFailed
		switch amm.KindOf(err) {
		case nil, amm.ErrCustodianFailure, amm.ErrCorruptPool:
		default:
			result = ResultRejected
		}
	}
	m.operations.WithLabelValues(op, result).Inc()
	m.duration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

// SetPool publishes the committed counters of p.
func (m *Metrics) SetPool(p amm.Pool) {
	if m == nil {
		return
	}
	id := p.ID.Hex()
	m.reserve.WithLabelValues(id, "x").Set(float64(p.ReserveX))
	m.reserve.WithLabelValues(id, "y").Set(float64(p.ReserveY))
	m.shareSupply.WithLabelValues(id).Set(float64(p.ShareSupply))
}
