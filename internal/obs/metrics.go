package obs

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "helpdesk_http_in_flight_requests",
		Help: "In-flight HTTP requests.",
	})

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "helpdesk_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "helpdesk_http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)

	remoteCallDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "helpdesk_remote_call_duration_seconds",
			Help:    "Latency of calls to the identity and data service.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"op", "outcome"},
	)

	remoteTimeouts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "helpdesk_remote_timeouts_total",
			Help: "Remote operations abandoned after their time bound.",
		},
		[]string{"op"},
	)

	backendUp = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "helpdesk_backend_up",
		Help: "Last health probe of the identity service (1 = up).",
	})

	registerOnce sync.Once
)

// Init registra as métricas no registro padrão. Pode ser chamado mais de uma vez.
func Init() {
	registerOnce.Do(func() {
		prometheus.MustRegister(httpInFlight, httpRequestsTotal, httpRequestDuration,
			remoteCallDuration, remoteTimeouts, backendUp)
	})
}

// Handler expõe as métricas no formato Prometheus.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveRemoteCall registra a latência de uma chamada ao backend.
func ObserveRemoteCall(op, outcome string, d time.Duration) {
	remoteCallDuration.WithLabelValues(op, outcome).Observe(d.Seconds())
}

// CountTimeout registra uma operação abandonada por tempo excedido.
func CountTimeout(op string) {
	remoteTimeouts.WithLabelValues(op).Inc()
}

// SetBackendUp publica o resultado da última verificação do backend.
func SetBackendUp(up bool) {
	if up {
		backendUp.Set(1)
		return
	}
	backendUp.Set(0)
}

// Instrument mede RPS, latência e requisições em andamento.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httpInFlight.Inc()
		defer httpInFlight.Dec()
		start := time.Now()

		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(sw, r)

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		status := strconv.Itoa(sw.code)

		httpRequestDuration.WithLabelValues(r.Method, route, status).Observe(time.Since(start).Seconds())
		httpRequestsTotal.WithLabelValues(r.Method, route, status).Inc()
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
