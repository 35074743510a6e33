package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "foundry_http_requests_total",
			Help: "Total number of HTTP requests handled by a bound route",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "foundry_http_request_duration_seconds",
			Help:    "Time taken to serve HTTP requests",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	BodyParserRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "foundry_body_parser_rejections_total",
			Help: "Total number of request bodies rejected by the body parser",
		},
		[]string{"parser", "reason"},
	)

	RateLimited = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "foundry_rate_limited_total",
			Help: "Total number of requests rejected by the rate limiter",
		},
		[]string{"backend"},
	)

	BootstrapPhaseDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "foundry_bootstrap_phase_duration_seconds",
			Help:    "Time taken by each bootstrap phase",
			Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30},
		},
		[]string{"phase", "result"},
	)

	BootstrapState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "foundry_bootstrap_state",
			Help: "Current bootstrap state (0 not started, 1 http starting, 2 odm connecting, 3 controllers registering, 4 running, 5 failed)",
		},
	)

	ActionsRegistered = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "foundry_actions_registered",
			Help: "Number of actions bound to the HTTP application",
		},
	)

	ActionErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "foundry_action_errors_total",
			Help: "Total number of errors returned by actions",
		},
		[]string{"action", "status"},
	)

	ODMConnections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "foundry_odm_connections_total",
			Help: "Total number of ODM connection attempts",
		},
		[]string{"driver", "result"},
	)

	ODMEventsDispatched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "foundry_odm_events_dispatched_total",
			Help: "Total number of document events delivered to subscribers",
		},
		[]string{"document", "event", "result"},
	)
)

// RecordHTTPRequest records a served request against its route template.
func RecordHTTPRequest(method, route string, status int, duration time.Duration) {
	HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	HTTPRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// RecordPhase records how long a bootstrap phase took and whether it succeeded.
func RecordPhase(phase string, duration time.Duration, err error) {
	result := "success"
	if err != nil {
		result = "failure"
	}
	BootstrapPhaseDuration.WithLabelValues(phase, result).Observe(duration.Seconds())
}
