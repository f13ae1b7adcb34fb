package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"timetabler/internal/auth"
	"timetabler/internal/extract"
	"timetabler/internal/feed"
	"timetabler/internal/logging"
	"timetabler/internal/metrics"
	"timetabler/internal/taxonomy"
	"timetabler/internal/timetable"
	"timetabler/pkg/database"
	"timetabler/pkg/utils"
)

type stubExtractor struct{}

func (stubExtractor) Name() string { return "stub" }

func (stubExtractor) Extract(context.Context, extract.Request) (string, error) {
	return `{"title":"t","schedule":{}}`, nil
}

func testRouter(t *testing.T, mutate func(cfg *utils.Config)) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := utils.Defaults()
	cfg.Auth.Secret = "secret"
	if mutate != nil {
		mutate(&cfg)
	}

	db, err := database.Open(database.Config{Path: "file:" + t.Name() + "?mode=memory&cache=shared"})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, database.Migrate(db))

	tax := taxonomy.NewStore(taxonomy.Options{Variant: cfg.Taxonomy.Variant}, nil)
	_, err = tax.Load()
	require.NoError(t, err)

	repo := timetable.NewRepo(db)
	hub := feed.NewHub(nil)
	t.Cleanup(hub.Close)
	m := metrics.New()
	svc := timetable.NewService(timetable.Deps{
		Taxonomy:  tax,
		Extractor: stubExtractor{},
		Store:     repo,
		Feed:      hub,
		Metrics:   m,
	}, timetable.Options{})

	return newRouter(routerDeps{
		cfg:     &cfg,
		db:      db,
		tax:     tax,
		svc:     svc,
		repo:    repo,
		hub:     hub,
		metrics: m,
		tokens:  auth.TokenService{Secret: []byte(cfg.Auth.Secret), Issuer: cfg.Auth.Issuer, Duration: cfg.Auth.TTL},
	})
}

func get(r http.Handler, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func TestHealthAndReady(t *testing.T) {
	r := testRouter(t, nil)

	w := get(r, "/healthz")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
	assert.NotEmpty(t, w.Header().Get(logging.RequestIDHeader))

	w = get(r, "/ready")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"ready"`)
}

func TestMetricsEndpoint(t *testing.T) {
	r := testRouter(t, nil)
	get(r, "/timetables")

	w := get(r, "/metrics")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `timetabler_http_requests_total{method="GET",route="/timetables",status="200"} 1`)
}

func TestUploadGuardFollowsConfig(t *testing.T) {
	upload := func(r http.Handler) int {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/upload", strings.NewReader(""))
		r.ServeHTTP(w, req)
		return w.Code
	}

	assert.Equal(t, http.StatusBadRequest, upload(testRouter(t, nil)), "open: reaches the handler")

	guarded := testRouter(t, func(cfg *utils.Config) { cfg.Auth.Enabled = true })
	assert.Equal(t, http.StatusUnauthorized, upload(guarded))
}
