package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registry *prometheus.Registry

	// HTTP request rate. Watch for: sudden drops (service down) or spikes (device retry storms).
	HTTPRequestsTotal *prometheus.CounterVec

	// HTTP request latency per request.
	HTTPRequestDuration *prometheus.HistogramVec

	// Concurrent requests in flight.
	HTTPRequestsInFlight prometheus.Gauge

	// Rain endpoint calls made by the monitor, by status (success, network_error, decode_error).
	RainAPICallsTotal *prometheus.CounterVec

	// Rain endpoint latency. Watch for: p99 close to the client timeout.
	RainAPIDuration *prometheus.HistogramVec

	// Monitor cycles by result. Watch for: location_unavailable dominating (permission never granted).
	MonitorCyclesTotal *prometheus.CounterVec

	// 1 while the monitor is active, 0 when idle.
	MonitorActive prometheus.Gauge

	// Alerts emitted on a dry-to-rain transition.
	RainAlertsTotal prometheus.Counter

	// Events dropped because a subscriber's buffer was full. Watch for: any non-zero rate.
	MonitorEventsDroppedTotal *prometheus.CounterVec

	// Alert deliveries per sink and result.
	AlertDeliveriesTotal *prometheus.CounterVec

	// Open-Meteo calls made by the built-in provider, by status.
	OpenMeteoCallsTotal *prometheus.CounterVec

	// Open-Meteo latency.
	OpenMeteoDuration prometheus.Histogram

	// Provider cache hits. Miss count = openMeteoCallsTotal minus coalesced requests.
	CacheHitsTotal *prometheus.CounterVec

	// Provider cache errors by operation (get, set).
	CacheErrorsTotal *prometheus.CounterVec

	// Rate limit denials on the provider endpoint.
	RateLimitDeniedTotal prometheus.Counter

	// Provider circuit breaker state: 0 closed, 1 half-open, 2 open.
	CircuitBreakerState *prometheus.GaugeVec
)

func init() {
	registry = prometheus.NewRegistry()

	registry.MustRegister(
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)

	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "httpRequestsTotal",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "statusCode"},
	)
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "httpRequestDurationSeconds",
			Help:    "HTTP request latency in seconds (per request)",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
	HTTPRequestsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "httpRequestsInFlight",
			Help: "Number of HTTP requests currently being served",
		},
	)
	RainAPICallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rainApiCallsTotal",
			Help: "Total number of rain endpoint calls made by the monitor",
		},
		[]string{"status"},
	)
	RainAPIDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "rainApiDurationSeconds",
			Help:    "Rain endpoint latency in seconds (per request)",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"status"},
	)
	MonitorCyclesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "monitorCyclesTotal",
			Help: "Monitor check cycles by result",
		},
		[]string{"result"},
	)
	MonitorActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "monitorActive",
			Help: "1 while rain monitoring is active",
		},
	)
	RainAlertsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rainAlertsTotal",
			Help: "Total number of rain alerts emitted",
		},
	)
	MonitorEventsDroppedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "monitorEventsDroppedTotal",
			Help: "Monitor events dropped because a subscriber was not keeping up",
		},
		[]string{"kind"},
	)
	AlertDeliveriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "alertDeliveriesTotal",
			Help: "Rain alert deliveries per sink",
		},
		[]string{"sink", "result"},
	)
	OpenMeteoCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "openMeteoCallsTotal",
			Help: "Total number of Open-Meteo forecast calls",
		},
		[]string{"status"},
	)
	OpenMeteoDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "openMeteoDurationSeconds",
			Help:    "Open-Meteo latency in seconds (per request)",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10},
		},
	)
	CacheHitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cacheHitsTotal",
			Help: "Total number of provider cache hits",
		},
		[]string{"backend"},
	)
	CacheErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cacheErrorsTotal",
			Help: "Provider cache errors by operation",
		},
		[]string{"operation"},
	)
	RateLimitDeniedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rateLimitDeniedTotal",
			Help: "Total number of requests denied by rate limiter (429)",
		},
	)
	CircuitBreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuitBreakerState",
			Help: "Circuit breaker state: 0 closed, 1 half-open, 2 open",
		},
		[]string{"component"},
	)

	registry.MustRegister(
		HTTPRequestsTotal, HTTPRequestDuration, HTTPRequestsInFlight,
		RainAPICallsTotal, RainAPIDuration,
		MonitorCyclesTotal, MonitorActive, RainAlertsTotal, MonitorEventsDroppedTotal,
		AlertDeliveriesTotal,
		OpenMeteoCallsTotal, OpenMeteoDuration,
		CacheHitsTotal, CacheErrorsTotal,
		RateLimitDeniedTotal,
		CircuitBreakerState,
	)
}

// MetricsHandler returns an http.Handler that serves application and runtime metrics.
func MetricsHandler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
