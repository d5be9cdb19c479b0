package observability

import (
	"errors"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms to ~20s
		},
		[]string{"method", "route", "status"},
	)

	upstreamLatencySeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "upstream_latency_seconds",
			Help:    "Latency of upstream calls in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		},
		[]string{"upstream"},
	)

	buildInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "app_build_info",
			Help: "Build information for the binary.",
		},
		[]string{"version"},
	)

	documentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "citygml_documents_total",
			Help: "CityGML documents processed by outcome.",
		},
		[]string{"outcome"},
	)

	documentDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "citygml_document_duration_seconds",
			Help:    "Time to parse and extract one CityGML document.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 14),
		},
	)

	buildingsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "citygml_buildings_total",
			Help: "Buildings seen by outcome (extracted or skipped).",
		},
		[]string{"outcome"},
	)

	defaultedFieldsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "citygml_defaulted_fields_total",
			Help: "Attribute values that fell back to their configured default.",
		},
		[]string{"field"},
	)

	reprojectionFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "citygml_reprojection_failures_total",
			Help: "Vertices kept in source coordinates after a failed reprojection.",
		},
		[]string{"reason"},
	)

	cacheResults = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_results_total",
			Help: "Result cache lookups by tier and outcome.",
		},
		[]string{"tier", "outcome"},
	)

	cacheOpTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_op_total",
			Help: "Redis operations by op and result.",
		},
		[]string{"op", "result"},
	)

	redisOpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "redis_operation_duration_seconds",
			Help:    "Redis operation latency in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
		},
		[]string{"op"},
	)

	sinkRecordsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sink_records_total",
			Help: "Building records handed to sinks by sink and result.",
		},
		[]string{"sink", "result"},
	)

	resyncEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "citygml_resync_events_total",
			Help: "Change events consumed from Kafka by result.",
		},
		[]string{"result"},
	)

	all = []prometheus.Collector{
		httpRequestsTotal, httpRequestDurationSeconds, upstreamLatencySeconds, buildInfo,
		documentsTotal, documentDurationSeconds, buildingsTotal, defaultedFieldsTotal,
		reprojectionFailures, cacheResults, cacheOpTotal, redisOpDuration, sinkRecordsTotal,
		resyncEventsTotal,
	}
)

func init() {
	Init(prometheus.DefaultRegisterer)
}

// Init registers the collectors with reg; registering twice is a no-op.
func Init(reg prometheus.Registerer) {
	if reg == nil {
		return
	}
	for _, c := range all {
		if err := reg.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			panic(err)
		}
	}
}

func ObserveHTTP(method, route string, status int, durationSeconds float64) {
	st := strconv.Itoa(status)
	httpRequestsTotal.WithLabelValues(method, route, st).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route, st).Observe(durationSeconds)
}

func ObserveUpstreamLatency(upstream string, durationSeconds float64) {
	upstreamLatencySeconds.WithLabelValues(upstream).Observe(durationSeconds)
}

func ExposeBuildInfo(version string) {
	if version == "" {
		version = "dev"
	}
	buildInfo.WithLabelValues(version).Set(1)
}

func ObserveDocument(success bool, durationSeconds float64) {
	outcome := "success"
	if !success {
		outcome = "failure"
	}
	documentsTotal.WithLabelValues(outcome).Inc()
	documentDurationSeconds.Observe(durationSeconds)
}

func AddBuildings(extracted, skipped int) {
	if extracted > 0 {
		buildingsTotal.WithLabelValues("extracted").Add(float64(extracted))
	}
	if skipped > 0 {
		buildingsTotal.WithLabelValues("skipped").Add(float64(skipped))
	}
}

func IncDefaulted(field string) {
	defaultedFieldsTotal.WithLabelValues(field).Inc()
}

func IncReprojectionFailure(reason string) {
	reprojectionFailures.WithLabelValues(reason).Inc()
}

func IncCacheHit(tier string)  { cacheResults.WithLabelValues(tier, "hit").Inc() }
func IncCacheMiss(tier string) { cacheResults.WithLabelValues(tier, "miss").Inc() }

func ObserveCacheOp(op string, err error, durationSeconds float64) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	cacheOpTotal.WithLabelValues(op, result).Inc()
	redisOpDuration.WithLabelValues(op).Observe(durationSeconds)
}

func AddSinkRecords(sink string, n int, err error) {
	if n <= 0 {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	sinkRecordsTotal.WithLabelValues(sink, result).Add(float64(n))
}

// IncResyncEvent counts a consumed change event; result is one of
// resynced, skipped, duplicate, invalid or error.
func IncResyncEvent(result string) { resyncEventsTotal.WithLabelValues(result).Inc() }
