// health.go — liveness, readiness и /metrics.
package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/bigkaa/mediadeck/internal/config"
)

const (
	serviceName = "mediadeck"
	// readyTimeout — общий бюджет всех проверок одного запроса /health/ready
	readyTimeout = 3 * time.Second
)

// ReadinessChecker — зависимость, готовность которой проверяет /health/ready.
type ReadinessChecker interface {
	Ready(ctx context.Context) error
}

// ReadinessFunc позволяет передать функцию (например, pool.Ping) как ReadinessChecker.
type ReadinessFunc func(ctx context.Context) error

func (f ReadinessFunc) Ready(ctx context.Context) error { return f(ctx) }

// ReadinessCheck — именованная проверка; Name становится ключом в "checks".
type ReadinessCheck struct {
	Name    string
	Checker ReadinessChecker
}

// HealthHandler — обработчик health endpoints.
type HealthHandler struct {
	checks  []ReadinessCheck
	metrics http.Handler
}

// NewHealthHandler создаёт обработчик с проверками готовности в порядке checks.
func NewHealthHandler(checks ...ReadinessCheck) *HealthHandler {
	return &HealthHandler{
		checks:  checks,
		metrics: promhttp.Handler(),
	}
}

type dependencyState struct {
	Ready bool   `json:"ready"`
	Error string `json:"error,omitempty"`
}

type healthResponse struct {
	Status    string                     `json:"status"`
	Service   string                     `json:"service"`
	Version   string                     `json:"version"`
	CheckedAt time.Time                  `json:"checkedAt"`
	Checks    map[string]dependencyState `json:"checks,omitempty"`
}

// HealthLive отвечает 200, пока процесс обслуживает запросы.
func (h *HealthHandler) HealthLive(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:    "ok",
		Service:   serviceName,
		Version:   config.Version,
		CheckedAt: time.Now().UTC(),
	})
}

// HealthReady опрашивает зависимости параллельно: 200, если готовы все, иначе 503.
func (h *HealthHandler) HealthReady(w http.ResponseWriter, r *http.Request) {
	states := h.probe(r.Context())

	resp := healthResponse{
		Status:    "ok",
		Service:   serviceName,
		Version:   config.Version,
		CheckedAt: time.Now().UTC(),
		Checks:    make(map[string]dependencyState, len(states)),
	}
	code := http.StatusOK
	for i, st := range states {
		resp.Checks[h.checks[i].Name] = st
		if !st.Ready {
			resp.Status = "fail"
			code = http.StatusServiceUnavailable
		}
	}
	writeJSON(w, code, resp)
}

// GetMetrics отдаёт метрики Prometheus.
func (h *HealthHandler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	h.metrics.ServeHTTP(w, r)
}

func (h *HealthHandler) probe(ctx context.Context) []dependencyState {
	ctx, cancel := context.WithTimeout(ctx, readyTimeout)
	defer cancel()

	states := make([]dependencyState, len(h.checks))
	var g errgroup.Group
	for i, c := range h.checks {
		if c.Checker == nil {
			states[i] = dependencyState{Error: "проверка не настроена"}
			continue
		}
		g.Go(func() error {
			if err := c.Checker.Ready(ctx); err != nil {
				states[i] = dependencyState{Error: err.Error()}
				return nil
			}
			states[i] = dependencyState{Ready: true}
			return nil
		})
	}
	_ = g.Wait()
	return states
}
