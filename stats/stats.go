// Package stats exports the compositor's live-object gauges and rejection
// counters as prometheus metrics.
package stats

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Rejection reasons, one counter stream each
const (
	ReasonClientLimit  = "client_limit"
	ReasonQuota        = "quota"
	ReasonInvalidParam = "invalid_param"
	ReasonBadFormat    = "bad_format"
	ReasonBounds       = "bounds"
	ReasonMapFailure   = "map_failure"
)

type Stats struct {
	Clients     prometheus.Gauge
	Surfaces    prometheus.Gauge
	Pools       prometheus.Gauge
	Buffers     prometheus.Gauge
	MappedBytes prometheus.Gauge

	rejected *prometheus.CounterVec
}

// New builds the metric set. With a nil registerer the metrics still work,
// they just never show up anywhere, which is what tests want.
func New(reg prometheus.Registerer) *Stats {
	factory := promauto.With(reg)
	return &Stats{
		Clients: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "cwc", Name: "clients", Help: "Connected clients",
		}),
		Surfaces: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "cwc", Name: "surfaces", Help: "Live surfaces",
		}),
		Pools: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "cwc", Name: "shm_pools", Help: "Live shm pools",
		}),
		Buffers: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "cwc", Name: "shm_buffers", Help: "Live shm buffers",
		}),
		MappedBytes: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "cwc", Name: "shm_mapped_bytes", Help: "Bytes of client memory currently mapped",
		}),
		rejected: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cwc", Name: "requests_rejected_total", Help: "Requests rejected, by reason",
		}, []string{"reason"}),
	}
}

// Rejected counts one rejected request
func (s *Stats) Rejected(reason string) {
	s.rejected.WithLabelValues(reason).Inc()
}
