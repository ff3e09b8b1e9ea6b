package obs

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the collectors of the service. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	httpInFlight        prometheus.Gauge
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	generationDuration  prometheus.Histogram
	occurrences         *prometheus.CounterVec
	mutations           *prometheus.CounterVec
	feedRefreshes       *prometheus.CounterVec
	remindersPublished  prometheus.Counter
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		httpInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "http_in_flight_requests",
			Help: "In-flight HTTP requests.",
		}),
		httpRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		}, []string{"method", "route", "status"}),
		httpRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
		generationDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "schedule_generation_duration_seconds",
			Help:    "Time spent generating and reconciling a schedule.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
		}),
		occurrences: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "schedule_occurrences_generated_total",
			Help: "Maintenance occurrences generated, by kind.",
		}, []string{"kind"}),
		mutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "maintenance_record_mutations_total",
			Help: "Maintenance record mutations, by operation and result.",
		}, []string{"op", "result"}),
		feedRefreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "feed_refreshes_total",
			Help: "Schedule refreshes triggered by live feeds, by result.",
		}, []string{"result"}),
		remindersPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "reminders_published_total",
			Help: "Reminders handed to the notification transport.",
		}),
	}
	if reg != nil {
		reg.MustRegister(
			m.httpInFlight, m.httpRequestsTotal, m.httpRequestDuration,
			m.generationDuration, m.occurrences, m.mutations,
			m.feedRefreshes, m.remindersPublished,
		)
	}
	return m
}

// Handler serves the default Prometheus registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveGeneration records one generation pass.
func (m *Metrics) ObserveGeneration(d time.Duration, byKind map[string]int) {
	if m == nil {
		return
	}
	m.generationDuration.Observe(d.Seconds())
	for kind, n := range byKind {
		m.occurrences.WithLabelValues(kind).Add(float64(n))
	}
}

// ObserveMutation records the outcome of a record mutation.
func (m *Metrics) ObserveMutation(op string, err error) {
	if m == nil {
		return
	}
	m.mutations.WithLabelValues(op, result(err)).Inc()
}

// ObserveRefresh records the outcome of a feed-triggered refresh.
func (m *Metrics) ObserveRefresh(err error) {
	if m == nil {
		return
	}
	m.feedRefreshes.WithLabelValues(result(err)).Inc()
}

// ObserveReminders counts reminders handed to a transport.
func (m *Metrics) ObserveReminders(n int) {
	if m == nil {
		return
	}
	m.remindersPublished.Add(float64(n))
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// Instrument measures request count, latency and in-flight requests. Routes
// are labelled with the mux path template to keep label cardinality bounded.
func (m *Metrics) Instrument(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.httpInFlight.Inc()
		defer m.httpInFlight.Dec()
		start := time.Now()

		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(sw, r)

		route := r.URL.Path
		if cur := mux.CurrentRoute(r); cur != nil {
			if tpl, err := cur.GetPathTemplate(); err == nil {
				route = tpl
			}
		}
		status := strconv.Itoa(sw.code)
		m.httpRequestDuration.WithLabelValues(r.Method, route, status).Observe(time.Since(start).Seconds())
		m.httpRequestsTotal.WithLabelValues(r.Method, route, status).Inc()
	})
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}
