package admin

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"kerneld/kernel"
	"kerneld/metrics"
)

func newTestManager(t *testing.T) *kernel.Manager {
	t.Helper()
	opts := kernel.DefaultManagerOptions(t.TempDir(), t.TempDir())
	opts.MemoryInspector.Enabled = false
	opts.AutoStart = false
	mgr, err := kernel.NewManager(opts, kernel.NewRegistry(), zap.NewNop())
	require.NoError(t, err)
	return mgr
}

func TestServerStatusAndHealthRoutes(t *testing.T) {
	mgr := newTestManager(t)
	srv := New(mgr, nil, zap.NewNop())

	rec := httptest.NewRecorder()
	srv.engine.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "modules")

	rec = httptest.NewRecorder()
	srv.engine.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "TotalOperations")
}

func TestServerMetricsRouteAbsentWithoutExporter(t *testing.T) {
	mgr := newTestManager(t)
	srv := New(mgr, nil, zap.NewNop())

	rec := httptest.NewRecorder()
	srv.engine.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServerMetricsRoutePresentWithExporter(t *testing.T) {
	mgr := newTestManager(t)
	exp := metrics.NewPrometheusExporter()
	srv := New(mgr, exp, zap.NewNop())

	rec := httptest.NewRecorder()
	srv.engine.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestServerStartStop(t *testing.T) {
	mgr := newTestManager(t)
	srv := New(mgr, nil, zap.NewNop())
	srv.Start("127.0.0.1:0")
	time.Sleep(20 * time.Millisecond)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, srv.Stop(ctx))
}
