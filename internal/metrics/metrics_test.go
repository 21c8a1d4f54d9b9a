package metrics_test

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ErlanBelekov/offboarding-scheduler/internal/health"
	"github.com/ErlanBelekov/offboarding-scheduler/internal/metrics"
	"github.com/prometheus/client_golang/prometheus"
)

type pinger struct{ err error }

func (p pinger) Ping(context.Context) error { return p.err }

func serve(t *testing.T, checker *health.Checker, path string) *httptest.ResponseRecorder {
	t.Helper()
	srv := metrics.NewServer(":0", checker)
	w := httptest.NewRecorder()
	srv.Handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func TestServer_Probes(t *testing.T) {
	down := health.NewChecker(slog.Default(), prometheus.NewRegistry(),
		health.Dependency{Name: "postgres", Pinger: pinger{err: errors.New("refused")}})

	if w := serve(t, down, "/healthz"); w.Code != http.StatusOK {
		t.Errorf("/healthz = %d, want 200", w.Code)
	}
	w := serve(t, down, "/readyz")
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("/readyz = %d, want 503", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"postgres":{"status":"down","error":"refused"}`) {
		t.Errorf("/readyz body = %s", w.Body.String())
	}

	up := health.NewChecker(slog.Default(), prometheus.NewRegistry(),
		health.Dependency{Name: "sqlite", Pinger: pinger{}})
	if w := serve(t, up, "/readyz"); w.Code != http.StatusOK {
		t.Errorf("/readyz = %d, want 200", w.Code)
	}
}

func TestServer_NilCheckerOnlyMetrics(t *testing.T) {
	if w := serve(t, nil, "/readyz"); w.Code != http.StatusNotFound {
		t.Errorf("/readyz = %d, want 404", w.Code)
	}
	if w := serve(t, nil, "/metrics"); w.Code != http.StatusOK {
		t.Errorf("/metrics = %d, want 200", w.Code)
	}
}
