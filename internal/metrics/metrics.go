// Package metrics registers the Prometheus collectors exposed at GET
// /metrics, grounded on the reference coordinator's metrics module.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	SharesSubmittedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pool_shares_submitted_total",
		Help: "Total number of share submissions received.",
	})

	SharesAcceptedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pool_shares_accepted_total",
		Help: "Total number of share submissions by validation result.",
	}, []string{"result"})

	BlocksFoundTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pool_blocks_found_total",
		Help: "Total number of valid blocks found by the pool.",
	})

	ActiveMiners = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pool_active_miners",
		Help: "Current number of active miners.",
	})

	HashrateHPS = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pool_hashrate_hps",
		Help: "Estimated pool hashrate in hashes per second.",
	})

	ShareValidationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "pool_share_validation_seconds",
		Help:    "Time spent validating a single share submission.",
		Buckets: prometheus.DefBuckets,
	})
)

// Handler returns the HTTP handler serving the Prometheus text exposition
// format.
func Handler() http.Handler {
	return promhttp.Handler()
}
