package transport

import (
	"github.com/prometheus/client_golang/prometheus"
	"strconv"
	"sync"
	"time"
)

var (
	registerOnce sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "jmrpc",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total requests sent to the wallet daemon.",
		},
		[]string{"method", "route", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "jmrpc",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Wallet daemon request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(httpRequests, httpDuration)
	})
}

// recordRequest counts a finished request. Status 0 means no response was
// received.
func recordRequest(method, route string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(method, route, statusLabel).Inc()
	httpDuration.WithLabelValues(method, route, statusLabel).Observe(duration.Seconds())
}
