package cache

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type cacheMetrics struct {
	hitsTotal    prometheus.Counter
	missesTotal  prometheus.Counter
	errorsTotal  *prometheus.CounterVec
	breakerState prometheus.Gauge
}

var (
	metricsOnce     sync.Once
	metricsInstance *cacheMetrics
)

func metrics() *cacheMetrics {
	metricsOnce.Do(func() {
		metricsInstance = &cacheMetrics{
			hitsTotal: promauto.NewCounter(prometheus.CounterOpts{
				Name: "authgate_cache_hits_total",
				Help: "Total number of cache hits.",
			}),
			missesTotal: promauto.NewCounter(prometheus.CounterOpts{
				Name: "authgate_cache_misses_total",
				Help: "Total number of cache misses.",
			}),
			errorsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "authgate_cache_errors_total",
				Help: "Total number of cache backend errors.",
			}, []string{"operation"}),
			breakerState: promauto.NewGauge(prometheus.GaugeOpts{
				Name: "authgate_cache_breaker_open",
				Help: "Whether the cache circuit breaker is open.",
			}),
		}
	})
	return metricsInstance
}
