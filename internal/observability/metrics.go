// internal/observability/metrics.go
package observability

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/scenarist/api/schemas"
)

const namespace = "scenarist"

// Metrics holds the Prometheus collectors for scenario runs.
type Metrics struct {
	registry *prometheus.Registry

	scenarios        *prometheus.CounterVec
	scenarioDuration *prometheus.HistogramVec
	steps            *prometheus.CounterVec
	assertions       *prometheus.CounterVec
	frames           *prometheus.CounterVec
	releaseErrors    prometheus.Counter
	activeSessions   prometheus.Gauge
}

// NewMetrics registers the collectors on a fresh registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Metrics{
		registry: reg,
		scenarios: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scenarios_total",
			Help:      "Scenario runs by outcome.",
		}, []string{"outcome"}),
		scenarioDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "scenario_duration_seconds",
			Help:      "Wall time of scenario runs.",
			Buckets:   []float64{1, 2.5, 5, 10, 20, 30, 60, 120, 300},
		}, []string{"outcome"}),
		steps: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "steps_total",
			Help:      "Executed steps by kind and status.",
		}, []string{"kind", "status"}),
		assertions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "assertions_total",
			Help:      "Evaluated assertions by result.",
		}, []string{"result"}),
		frames: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_total",
			Help:      "Synchronized frames by final state.",
		}, []string{"state"}),
		releaseErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "release_errors_total",
			Help:      "Resources that failed to close cleanly.",
		}),
		activeSessions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Browser sessions currently held by running scenarios.",
		}),
	}
}

// Registry exposes the underlying registry, mostly for tests.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// SessionOpened and SessionClosed track live sessions.
func (m *Metrics) SessionOpened() { m.activeSessions.Inc() }
func (m *Metrics) SessionClosed() { m.activeSessions.Dec() }

// ObserveReport records a finished scenario.
func (m *Metrics) ObserveReport(r schemas.ScenarioReport) {
	outcome := string(r.Outcome)
	m.scenarios.WithLabelValues(outcome).Inc()
	m.scenarioDuration.WithLabelValues(outcome).Observe(r.Duration.Seconds())
	for _, s := range r.StepResults {
		m.steps.WithLabelValues(string(s.Kind), string(s.Status)).Inc()
	}
	for _, a := range r.AssertionResults {
		result := "failed"
		if a.Passed {
			result = "passed"
		}
		m.assertions.WithLabelValues(result).Inc()
	}
	for _, f := range r.Frames.Frames {
		m.frames.WithLabelValues(string(f.State)).Inc()
	}
	for _, d := range r.Diagnostics {
		if d.Code == schemas.ErrCodeResourceRelease {
			m.releaseErrors.Inc()
		}
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is done.
func (m *Metrics) Serve(ctx context.Context, addr string, logger *zap.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Metrics endpoint listening.", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		<-errCh
		return nil
	}
}
