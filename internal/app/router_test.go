package app

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradeboard/tradeboard/internal/auth"
	"github.com/tradeboard/tradeboard/internal/observability"
	"github.com/tradeboard/tradeboard/internal/rbac"
	"github.com/tradeboard/tradeboard/internal/registry"
	registryhttp "github.com/tradeboard/tradeboard/internal/registry/http"
	"github.com/tradeboard/tradeboard/internal/registry/ingest"
	"github.com/tradeboard/tradeboard/internal/shared"
	"github.com/tradeboard/tradeboard/internal/testutil"
)

func newTestRouter(t *testing.T, authDisabled bool) http.Handler {
	t.Helper()
	client, _ := testutil.Redis(t)

	cfg := &Config{AppEnv: "test", AppTitle: "Tescil", AuthDisabled: authDisabled, AppRequestTimeout: 5 * time.Second}
	sessions := shared.NewSessionManager(client, "tb_session", "secret", time.Hour, false)
	csrf := shared.NewCSRFManager("csrf")
	resolver := auth.NewResolver(authDisabled)
	usersFile := filepath.Join(t.TempDir(), "users.csv")
	require.NoError(t, os.WriteFile(usersFile, []byte(strings.Join(auth.UsersCSVHeader, ",")+"\n"), 0o600))
	users := auth.NewCSVRepository(usersFile)

	store := ingest.NewStore(ingest.StoreConfig{}, nil)
	registryHandler := registryhttp.NewHandler(nil, store, resolver, registryhttp.NewCache(client, time.Minute), registry.Evaluator{}, 1<<20)

	return NewRouter(RouterParams{
		Config:          cfg,
		Logger:          NewLogger(cfg),
		SessionManager:  sessions,
		CSRFManager:     csrf,
		AuthHandler:     auth.NewHandler(nil, auth.NewService(users), resolver, sessions, csrf),
		RegistryHandler: registryHandler,
		RBACMiddleware:  rbac.Middleware{Identities: resolver},
		Metrics:         observability.NewMetrics(),
	})
}

func serve(router http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func TestRouterPublicEndpoints(t *testing.T) {
	router := newTestRouter(t, false)

	rr := serve(router, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "DENY", rr.Header().Get("X-Frame-Options"))

	rr = serve(router, httptest.NewRequest(http.MethodGet, "/meta", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	var meta metaResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &meta))
	assert.Equal(t, metaResponse{Title: "Tescil", Env: "test"}, meta)

	rr = serve(router, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestRouterRequiresIdentityForRegistry(t *testing.T) {
	router := newTestRouter(t, false)
	rr := serve(router, httptest.NewRequest(http.MethodGet, "/registry/status", nil))
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestRouterRejectsPostWithoutCSRFToken(t *testing.T) {
	router := newTestRouter(t, false)
	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(`{"username":"a","password":"b"}`))
	req.Header.Set("Content-Type", "application/json")
	rr := serve(router, req)
	assert.Equal(t, http.StatusForbidden, rr.Code)
}

func TestRouterCSRFTokenFromMe(t *testing.T) {
	router := newTestRouter(t, false)
	rr := serve(router, httptest.NewRequest(http.MethodGet, "/auth/me", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	var me struct {
		CSRFToken string `json:"csrf_token"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &me))
	cookies := rr.Result().Cookies()
	require.NotEmpty(t, cookies)

	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(`{"username":"kimse","password":"yanlis"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-CSRF-Token", me.CSRFToken)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rr = serve(router, req)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestRouterAuthDisabledRunsAsDemoAdmin(t *testing.T) {
	router := newTestRouter(t, true)
	rr := serve(router, httptest.NewRequest(http.MethodGet, "/registry/status", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"loaded":false`)
}
