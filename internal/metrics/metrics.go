package metrics

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"cryptoSignalBot/internal/ports"
)

// Metrics holds all Prometheus metrics for the decision pipeline.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	CyclesTotal          *prometheus.CounterVec // labels: outcome
	RecommendationsTotal *prometheus.CounterVec // labels: action
	GateRejectionsTotal  *prometheus.CounterVec // labels: rule
	OrdersTotal          *prometheus.CounterVec // labels: status
	CycleDuration        prometheus.Histogram
	LastCycleTimestamp   prometheus.Gauge
}

// NewMetrics creates the metrics on a dedicated registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		CyclesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signalbot_cycles_total",
			Help: "Analysis cycles run (by outcome)",
		}, []string{"outcome"}),
		RecommendationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signalbot_recommendations_total",
			Help: "Fused recommendations (by action)",
		}, []string{"action"}),
		GateRejectionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signalbot_gate_rejections_total",
			Help: "Recommendations rejected by the risk gate (by rule)",
		}, []string{"rule"}),
		OrdersTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signalbot_orders_total",
			Help: "Orders sent to the execution sink (by status)",
		}, []string{"status"}),
		CycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "signalbot_cycle_duration_seconds",
			Help:    "Wall time of one analysis cycle",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
		LastCycleTimestamp: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "signalbot_last_cycle_timestamp_seconds",
			Help: "Unix time of the last finished cycle",
		}),
	}

	m.registry.MustRegister(
		m.CyclesTotal,
		m.RecommendationsTotal,
		m.GateRejectionsTotal,
		m.OrdersTotal,
		m.CycleDuration,
		m.LastCycleTimestamp,
	)
	return m
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveCycle records a finished cycle.
func (m *Metrics) ObserveCycle(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.CyclesTotal.WithLabelValues(outcome).Inc()
	m.CycleDuration.Observe(d.Seconds())
	m.LastCycleTimestamp.SetToCurrentTime()
}

// IncRecommendation counts a fused recommendation.
func (m *Metrics) IncRecommendation(action string) {
	if m == nil {
		return
	}
	m.RecommendationsTotal.WithLabelValues(action).Inc()
}

// IncGateRejection counts a gate rejection.
func (m *Metrics) IncGateRejection(rule string) {
	if m == nil {
		return
	}
	m.GateRejectionsTotal.WithLabelValues(rule).Inc()
}

// IncOrder counts an order attempt.
func (m *Metrics) IncOrder(status string) {
	if m == nil {
		return
	}
	m.OrdersTotal.WithLabelValues(status).Inc()
}

// HealthStatus tracks when the pipeline last completed a cycle.
type HealthStatus struct {
	mu sync.RWMutex

	LastCycleAt time.Time
	LastOutcome string
	StartedAt   time.Time
	MaxAge      time.Duration // a cycle older than this marks the service stale
}

// NewHealthStatus returns a default health status.
func NewHealthStatus(maxAge time.Duration) *HealthStatus {
	return &HealthStatus{StartedAt: time.Now(), MaxAge: maxAge}
}

// RecordCycle updates the last cycle time and outcome.
func (h *HealthStatus) RecordCycle(outcome string, at time.Time) {
	if h == nil {
		return
	}
	h.mu.Lock()
	h.LastCycleAt = at
	h.LastOutcome = outcome
	h.mu.Unlock()
}

// ServeHTTP handles the /healthz endpoint.
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	overallStatus := "healthy"
	httpCode := http.StatusOK
	if h.LastCycleAt.IsZero() {
		overallStatus = "starting"
	} else if h.MaxAge > 0 && time.Since(h.LastCycleAt) > h.MaxAge {
		overallStatus = "stale"
		httpCode = http.StatusServiceUnavailable
	}

	status := struct {
		Status      string `json:"status"`
		Uptime      string `json:"uptime"`
		LastCycleAt string `json:"last_cycle_at,omitempty"`
		LastOutcome string `json:"last_outcome,omitempty"`
	}{
		Status:      overallStatus,
		Uptime:      time.Since(h.StartedAt).Round(time.Second).String(),
		LastOutcome: h.LastOutcome,
	}
	if !h.LastCycleAt.IsZero() {
		status.LastCycleAt = h.LastCycleAt.Format(time.RFC3339)
	}

	w.Header().Set("Content-Type", "application/json")
	if httpCode != http.StatusOK {
		w.WriteHeader(httpCode)
	}
	json.NewEncoder(w).Encode(status)
}

// Server runs an HTTP server exposing /metrics and /healthz.
type Server struct {
	addr   string
	srv    *http.Server
	logger ports.Logger
}

// NewServer creates a metrics and health server.
func NewServer(addr string, m *Metrics, health *HealthStatus, logger ports.Logger) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
	mux.Handle("/healthz", health)

	return &Server{
		addr:   addr,
		logger: logger,
		srv: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

// Handler returns the server's mux.
func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}

// Start launches the HTTP server in a goroutine.
func (s *Server) Start() {
	go func() {
		s.logger.Info(context.Background(), "Metrics server listening", map[string]interface{}{"addr": s.addr})
		if err := s.srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error(context.Background(), err, "Metrics server error")
		}
	}()
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
