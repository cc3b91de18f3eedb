package httpapi

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Glorc12/AirConditionerCompany/internal/cache"
	"github.com/Glorc12/AirConditionerCompany/internal/config"
	"github.com/Glorc12/AirConditionerCompany/internal/lifecycle"
	"github.com/Glorc12/AirConditionerCompany/internal/metrics"
	"github.com/Glorc12/AirConditionerCompany/internal/remote"
	"github.com/Glorc12/AirConditionerCompany/internal/session"
	"github.com/Glorc12/AirConditionerCompany/internal/syncer"
)

func newRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	backend, err := cache.OpenBadger("", zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = backend.Close() })
	store := cache.New(backend, zerolog.Nop(), time.Second)

	reg := prometheus.NewRegistry()
	mem := remote.NewMemory()
	engine := syncer.New(mem, store, zerolog.Nop(), syncer.Options{Metrics: metrics.NewSync(reg)})
	mgr := session.NewManager(mem, store, engine, zerolog.Nop())
	ctrl := lifecycle.New(mgr, engine, zerolog.Nop())
	return Router(config.Config{CORSAllowed: "*"}, mgr, ctrl, reg, zerolog.Nop())
}

func serve(r *gin.Engine, method, path, body string, header http.Header) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header[k] = v
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRouterRequiresSession(t *testing.T) {
	r := newRouter(t)

	w := serve(r, http.MethodGet, "/api/requests", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), `"UNAUTHORIZED"`)

	w = serve(r, http.MethodPost, "/api/session/login", `{"login":"admin","password":"admin"}`, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = serve(r, http.MethodGet, "/api/requests", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"1001"`)

	w = serve(r, http.MethodPost, "/api/sync/pull", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok","records":2}`, w.Body.String())
}

func TestRouterRequestID(t *testing.T) {
	r := newRouter(t)

	w := serve(r, http.MethodGet, "/healthz", "", http.Header{"X-Request-Id": {"req_fixed"}})
	assert.Equal(t, "req_fixed", w.Header().Get("X-Request-Id"))

	w = serve(r, http.MethodGet, "/healthz", "", nil)
	assert.True(t, strings.HasPrefix(w.Header().Get("X-Request-Id"), "req_"))
}

func TestRouterExposesSyncMetrics(t *testing.T) {
	r := newRouter(t)
	require.Equal(t, http.StatusOK, serve(r, http.MethodPost, "/api/session/login", `{"login":"operator","password":"operator"}`, nil).Code)

	w := serve(r, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `repairdesk_sync_pulls_total{result="ok"} 1`)
	assert.Contains(t, w.Body.String(), "repairdesk_cache_records 2")
}

func TestRouterCORSPreflight(t *testing.T) {
	r := newRouter(t)
	w := serve(r, http.MethodOptions, "/api/requests", "", http.Header{
		"Origin":                        {"http://kiosk.local"},
		"Access-Control-Request-Method": {"GET"},
	})
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}
