package worker

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-logr/logr"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the worker's Prometheus collectors. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	tasksReceived *prometheus.CounterVec
	tasksRejected *prometheus.CounterVec
	poolQueued    prometheus.Gauge
	poolRunning   prometheus.Gauge
	reportsSent   prometheus.Counter
	reportsFailed *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		tasksReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "summarizer_worker",
			Name:      "tasks_received_total",
			Help:      "Task requests accepted, by execution mode.",
		}, []string{"mode"}),
		tasksRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "summarizer_worker",
			Name:      "tasks_rejected_total",
			Help:      "Task requests rejected, by reason.",
		}, []string{"reason"}),
		poolQueued: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "summarizer_worker",
			Name:      "pool_queued",
			Help:      "Units of work waiting for a pool slot.",
		}),
		poolRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "summarizer_worker",
			Name:      "pool_running",
			Help:      "Units of work currently running.",
		}),
		reportsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "summarizer_worker",
			Name:      "reports_sent_total",
			Help:      "Results delivered to the middle server.",
		}),
		reportsFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "summarizer_worker",
			Name:      "reports_failed_total",
			Help:      "Results that could not be delivered, by stage.",
		}, []string{"stage"}),
	}
	reg.MustRegister(m.tasksReceived, m.tasksRejected, m.poolQueued, m.poolRunning, m.reportsSent, m.reportsFailed)
	return m
}

func (m *Metrics) received(mode string) {
	if m != nil {
		m.tasksReceived.WithLabelValues(mode).Inc()
	}
}

func (m *Metrics) rejected(reason string) {
	if m != nil {
		m.tasksRejected.WithLabelValues(reason).Inc()
	}
}

func (m *Metrics) queued(delta float64) {
	if m != nil {
		m.poolQueued.Add(delta)
	}
}

func (m *Metrics) running(delta float64) {
	if m != nil {
		m.poolRunning.Add(delta)
	}
}

func (m *Metrics) reportSent() {
	if m != nil {
		m.reportsSent.Inc()
	}
}

func (m *Metrics) reportFailed(stage string) {
	if m != nil {
		m.reportsFailed.WithLabelValues(stage).Inc()
	}
}

// MetricsServer serves /metrics and /healthz on a dedicated listener.
type MetricsServer struct {
	addr     string
	gatherer prometheus.Gatherer
	logger   logr.Logger
}

// NewMetricsServer creates a metrics listener for gatherer on addr.
func NewMetricsServer(addr string, gatherer prometheus.Gatherer, logger logr.Logger) *MetricsServer {
	return &MetricsServer{addr: addr, gatherer: gatherer, logger: logger}
}

// Name identifies the listener as an application module.
func (m *MetricsServer) Name() string { return "metrics" }

// Handler builds the metrics router.
func (m *MetricsServer) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{}))
	return r
}

// Run serves until ctx is cancelled.
func (m *MetricsServer) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              m.addr,
		Handler:           m.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	m.logger.Info("metrics listening", "addr", m.addr)
	return serveHTTP(ctx, srv, m.logger)
}
