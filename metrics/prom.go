package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	PasteCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "copypaste_paste_created_total",
		Help: "no. of pastes created",
	})
	PasteUpdated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "copypaste_paste_updated_total",
		Help: "no. of session pastes updated in place",
	})
	PasteRetrieved = promauto.NewCounter(prometheus.CounterOpts{
		Name: "copypaste_paste_retrieved_total",
		Help: "no. of pastes retrieved",
	})
	PasteEvicted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "copypaste_paste_evicted_total",
		Help: "no. of pastes evicted by the capacity valve",
	})
	PasteSwept = promauto.NewCounter(prometheus.CounterOpts{
		Name: "copypaste_paste_swept_total",
		Help: "no. of expired pastes removed by the sweep",
	})
	SweepCycles = promauto.NewCounter(prometheus.CounterOpts{
		Name: "copypaste_sweep_cycles_total",
		Help: "no. of sweep worker cycles",
	})
	CacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "copypaste_cache_hits_total",
		Help: "no. of cache hits",
	})
	CacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "copypaste_cache_misses_total",
		Help: "no. of cache misses",
	})
	RateLimitRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "copypaste_rate_limit_rejected_total",
			Help: "no. of requests rejected by the rate governor",
		},
		[]string{"scope"},
	)
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "copypaste_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint", "status"},
	)
	RecentErrorRatePercent = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "copypaste_recent_error_rate_percent",
		Help: "5min rolling avg error rate percentage",
	})
)

func Init() {
}
