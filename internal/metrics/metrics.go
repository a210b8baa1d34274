package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "etl_notifier"

// Metrics holds the notifier's collectors on a private registry. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	Registry *prometheus.Registry

	cycles        *prometheus.CounterVec
	cycleDur      prometheus.Summary
	queryRuns     *prometheus.CounterVec
	queryRows     *prometheus.GaugeVec
	notifications *prometheus.CounterVec
	cacheEntries  *prometheus.GaugeVec
	lastSuccessTS prometheus.Gauge
}

func New() *Metrics {
	m := &Metrics{Registry: prometheus.NewRegistry()}
	m.cycles = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "cycles_total",
		Help:      "Poll cycles by result (ok, error)",
	}, []string{"result"})
	m.cycleDur = prometheus.NewSummary(prometheus.SummaryOpts{
		Namespace: namespace,
		Name:      "cycle_duration_seconds",
		Help:      "Time spent in one poll cycle",
	})
	m.queryRuns = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "query_runs_total",
		Help:      "Query executions by status (ok, error)",
	}, []string{"query", "status"})
	m.queryRows = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "query_rows",
		Help:      "Rows returned by the last run of a query",
	}, []string{"query"})
	m.notifications = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "notifications_total",
		Help:      "Webhook deliveries by status (sent, failed)",
	}, []string{"query", "status"})
	m.cacheEntries = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "cache_entries",
		Help:      "Cached identity keys per query and status",
	}, []string{"query", "status"})
	m.lastSuccessTS = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "last_success_timestamp_seconds",
		Help:      "Unix timestamp of the last cycle that saved the cache",
	})

	m.Registry.MustRegister(
		m.cycles, m.cycleDur, m.queryRuns, m.queryRows,
		m.notifications, m.cacheEntries, m.lastSuccessTS,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) ObserveCycle(d time.Duration, err error) {
	if m == nil {
		return
	}
	m.cycleDur.Observe(d.Seconds())
	if err != nil {
		m.cycles.WithLabelValues("error").Inc()
		return
	}
	m.cycles.WithLabelValues("ok").Inc()
	m.lastSuccessTS.Set(float64(time.Now().Unix()))
}

func (m *Metrics) QueryRun(query string, rows int, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.queryRuns.WithLabelValues(query, "error").Inc()
		return
	}
	m.queryRuns.WithLabelValues(query, "ok").Inc()
	m.queryRows.WithLabelValues(query).Set(float64(rows))
}

func (m *Metrics) Notification(query string, err error) {
	if m == nil {
		return
	}
	status := "sent"
	if err != nil {
		status = "failed"
	}
	m.notifications.WithLabelValues(query, status).Inc()
}

func (m *Metrics) CacheEntries(query string, pending, confirmed int) {
	if m == nil {
		return
	}
	m.cacheEntries.WithLabelValues(query, "pending").Set(float64(pending))
	m.cacheEntries.WithLabelValues(query, "confirmed").Set(float64(confirmed))
}

// Server exposes /metrics and /healthz.
type Server struct {
	server *http.Server
}

func NewServer(addr string, m *Metrics) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return &Server{server: &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
		IdleTimeout:  60 * time.Second,
	}}
}

func (s *Server) Handler() http.Handler { return s.server.Handler }

// Serve blocks until ctx is done, then shuts the server down.
func (s *Server) Serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() { errCh <- s.server.ListenAndServe() }()
	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return err
		}
		<-errCh
		return nil
	}
}
