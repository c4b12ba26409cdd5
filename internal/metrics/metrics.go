// Package metrics exposes Prometheus collectors for the mirror service.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	remoteRequestsTotal          *prometheus.CounterVec
	remoteRequestDurationSeconds *prometheus.HistogramVec
	rangesProbedTotal            prometheus.Counter
	rangeSplitsTotal             *prometheus.CounterVec
	pagesFetchedTotal            prometheus.Counter
	emptyPagesTotal              prometheus.Counter
	vehiclesCreatedTotal         prometheus.Counter
	paramValuesWrittenTotal      *prometheus.CounterVec
	proxyChecksTotal             *prometheus.CounterVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		remoteRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mirror_remote_requests_total",
				Help: "Total number of remote search requests, labeled by query kind and outcome.",
			},
			[]string{"kind", "outcome"},
		)

		remoteRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "mirror_remote_request_duration_seconds",
				Help:    "Latency of remote search requests, labeled by query kind.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"kind"},
		)

		rangesProbedTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "mirror_ranges_probed_total",
				Help: "Total number of year/price ranges probed by the partitioner.",
			},
		)

		rangeSplitsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mirror_range_splits_total",
				Help: "Total number of range splits, labeled by axis.",
			},
			[]string{"axis"},
		)

		pagesFetchedTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "mirror_pages_fetched_total",
				Help: "Total number of data pages fetched.",
			},
		)

		emptyPagesTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "mirror_empty_pages_total",
				Help: "Total number of pages whose entries field was missing or empty.",
			},
		)

		vehiclesCreatedTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "mirror_vehicles_created_total",
				Help: "Total number of vehicle rows created.",
			},
		)

		paramValuesWrittenTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mirror_param_values_written_total",
				Help: "Total number of param value writes, labeled by write kind.",
			},
			[]string{"kind"},
		)

		proxyChecksTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mirror_proxy_checks_total",
				Help: "Total number of proxy liveness checks, labeled by outcome.",
			},
			[]string{"outcome"},
		)
	})
}

// ObserveRemoteRequest records one remote request with its latency.
func ObserveRemoteRequest(kind, outcome string, duration time.Duration) {
	if remoteRequestsTotal == nil {
		return
	}
	remoteRequestsTotal.WithLabelValues(kind, outcome).Inc()
	remoteRequestDurationSeconds.WithLabelValues(kind).Observe(duration.Seconds())
}

// RangeProbed counts one partitioner probe.
func RangeProbed() {
	if rangesProbedTotal != nil {
		rangesProbedTotal.Inc()
	}
}

// RangeSplit counts one split along the given axis ("year" or "price").
func RangeSplit(axis string) {
	if rangeSplitsTotal != nil {
		rangeSplitsTotal.WithLabelValues(axis).Inc()
	}
}

// PageFetched counts one fetched data page; empty marks an empty-entries page.
func PageFetched(empty bool) {
	if pagesFetchedTotal == nil {
		return
	}
	pagesFetchedTotal.Inc()
	if empty {
		emptyPagesTotal.Inc()
	}
}

// VehicleCreated counts one new vehicle row.
func VehicleCreated() {
	if vehiclesCreatedTotal != nil {
		vehiclesCreatedTotal.Inc()
	}
}

// ParamValuesWritten counts param value writes of one kind
// ("insert" or "replace").
func ParamValuesWritten(kind string, n int) {
	if paramValuesWrittenTotal != nil && n > 0 {
		paramValuesWrittenTotal.WithLabelValues(kind).Add(float64(n))
	}
}

// ProxyCheck counts one proxy liveness check outcome ("ok" or "failed").
func ProxyCheck(outcome string) {
	if proxyChecksTotal != nil {
		proxyChecksTotal.WithLabelValues(outcome).Inc()
	}
}

// Handler returns the HTTP handler serving the metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
