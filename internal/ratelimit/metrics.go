package ratelimit

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type metrics struct {
	allowedTotal prometheus.Counter
	deniedTotal  prometheus.Counter
}

var (
	metricsOnce     sync.Once
	metricsInstance *metrics
)

func limiterMetrics() *metrics {
	metricsOnce.Do(func() {
		metricsInstance = &metrics{
			allowedTotal: promauto.NewCounter(prometheus.CounterOpts{
				Name: "authgate_ratelimit_allowed_total",
				Help: "Total number of requests allowed by the rate limiter.",
			}),
			deniedTotal: promauto.NewCounter(prometheus.CounterOpts{
				Name: "authgate_ratelimit_denied_total",
				Help: "Total number of requests denied by the rate limiter.",
			}),
		}
	})
	return metricsInstance
}
