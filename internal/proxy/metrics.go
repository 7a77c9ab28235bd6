package proxy

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type proxyMetrics struct {
	requestsTotal *prometheus.CounterVec
	errorsTotal   *prometheus.CounterVec
}

var (
	metricsOnce     sync.Once
	metricsInstance *proxyMetrics
)

func metrics() *proxyMetrics {
	metricsOnce.Do(func() {
		metricsInstance = &proxyMetrics{
			requestsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "authgate_proxy_requests_total",
				Help: "Total number of proxied requests per upstream.",
			}, []string{"upstream"}),
			errorsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "authgate_proxy_errors_total",
				Help: "Total number of proxy errors per upstream.",
			}, []string{"upstream"}),
		}
	})
	return metricsInstance
}
