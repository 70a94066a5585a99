package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Probe metrics
var (
	ProbesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mailverify_probes_total",
			Help: "Total number of SMTP probes",
		},
		[]string{"outcome"}, // exists, absent, inconclusive
	)

	ProbeDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "mailverify_probe_duration_seconds",
			Help:    "Duration of SMTP probes",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 30},
		},
	)

	ProbeFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mailverify_probe_failures_total",
			Help: "Total number of inconclusive probes by the stage that failed",
		},
		[]string{"stage"}, // connect, greeting, helo, tls, mail_from, rcpt
	)

	RcptRepliesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mailverify_rcpt_replies_total",
			Help: "Total number of RCPT TO replies by class",
		},
		[]string{"class"}, // accepted, rejected, temp_fail, unknown
	)
)

// Resolver metrics
var (
	DomainResolutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mailverify_domain_resolutions_total",
			Help: "Total number of domain resolutions",
		},
		[]string{"result"}, // routable, no_route
	)
)

// Validation metrics
var (
	ValidationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mailverify_validations_total",
			Help: "Total number of address validations",
		},
		[]string{"verdict"}, // valid, invalid
	)

	BatchRecordsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mailverify_batch_records_total",
			Help: "Total number of batch records processed",
		},
	)

	BatchInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "mailverify_batch_in_flight",
			Help: "Number of batch validations currently running",
		},
	)

	BatchRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mailverify_batch_runs_total",
			Help: "Total number of batch runs by terminal state",
		},
		[]string{"result"}, // complete, error, cancelled
	)

	BatchRecordPanicsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mailverify_batch_record_panics_total",
			Help: "Total number of recovered panics while validating a batch record",
		},
	)
)

// API metrics
var (
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mailverify_api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "path", "status"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mailverify_api_request_duration_seconds",
			Help:    "Duration of API requests",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)
