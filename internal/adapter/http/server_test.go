package http_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	httpadapter "github.com/Cybert47/sistema-resilencia-climatica/internal/adapter/http"
	"github.com/Cybert47/sistema-resilencia-climatica/internal/cache"
	"github.com/Cybert47/sistema-resilencia-climatica/internal/domain"
	"github.com/Cybert47/sistema-resilencia-climatica/internal/engine"
	"github.com/Cybert47/sistema-resilencia-climatica/internal/observability"
	"github.com/Cybert47/sistema-resilencia-climatica/internal/registry"
)

type mockReadiness struct {
	err error
}

func (m *mockReadiness) CheckReadiness(_ context.Context) error { return m.err }

type mockFetcher struct{}

func (mockFetcher) FetchPrediction(_ context.Context, _ domain.Zone, _ *domain.WeatherSnapshot) domain.PredictionResult {
	return domain.PredictionResult{Probability: domain.Float64(82), Explanation: "lluvia", Source: domain.SourceAI}
}

type mockLocator struct {
	coord domain.Coordinate
	err   error
}

func (m mockLocator) Locate(context.Context, net.IP) (domain.Coordinate, error) { return m.coord, m.err }

type mockRefresher struct {
	ids   []string
	preds []domain.ZonePrediction
	err   error
}

func (m *mockRefresher) Refresh(_ context.Context, ids []string) ([]domain.ZonePrediction, error) {
	m.ids = ids
	return m.preds, m.err
}

type testEnv struct {
	handler   http.Handler
	refresher *mockRefresher
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestEnv(t *testing.T, readyErr error, locator domain.IPLocator) *testEnv {
	t.Helper()
	c := cache.New(cache.NewMemoryStore(), discardLogger(), observability.NewMetricsForTesting())
	e := engine.New(registry.Default(), c, mockFetcher{}, nil, locator, engine.Options{}, discardLogger())
	ref := &mockRefresher{}

	router := httpadapter.NewRouter(&mockReadiness{err: readyErr}, discardLogger())
	httpadapter.NewDashboard(e, ref, discardLogger()).Routes(router)
	srv := httpadapter.NewServer(":0", router, discardLogger())
	return &testEnv{handler: srv, refresher: ref}
}

func (env *testEnv) do(t *testing.T, method, target, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, rd)
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)

	var out map[string]any
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/") && rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	}
	return rec, out
}

func TestHealthzReturns200(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	rec, body := env.do(t, http.MethodGet, "/healthz", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", body["status"])
}

func TestReadyzReturns200WhenReady(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	rec, body := env.do(t, http.MethodGet, "/readyz", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ready", body["status"])
}

func TestReadyzReturns503WhenNotReady(t *testing.T) {
	env := newTestEnv(t, fmt.Errorf("not ready yet"), nil)
	rec, body := env.do(t, http.MethodGet, "/readyz", "")

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "not ready", body["status"])
	assert.Equal(t, "not ready yet", body["error"])
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestRequestID(t *testing.T) {
	env := newTestEnv(t, nil, nil)

	rec, _ := env.do(t, http.MethodGet, "/healthz", "")
	assert.Len(t, rec.Header().Get(httpadapter.RequestIDHeader), 36)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(httpadapter.RequestIDHeader, "abc-123")
	rec = httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	assert.Equal(t, "abc-123", rec.Header().Get(httpadapter.RequestIDHeader))
}

func TestCORSPreflight(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	req := httptest.NewRequest(http.MethodOptions, "/api/v1/predictions", nil)
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestListZones(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	rec, body := env.do(t, http.MethodGet, "/api/v1/zones", "")

	require.Equal(t, http.StatusOK, rec.Code)
	zones := body["zones"].([]any)
	require.Len(t, zones, 2)
	first := zones[0].(map[string]any)
	assert.Equal(t, "la-maria", first["id"])
	assert.InDelta(t, 393, first["estimatedAffected"], 0)
	assert.Equal(t, "red", first["routeColor"])
	assert.Equal(t, "STATIC", first["assessment"].(map[string]any)["authority"])
}

func TestZonesGeoJSON(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	rec, body := env.do(t, http.MethodGet, "/api/v1/zones.geojson", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/geo+json", rec.Header().Get("Content-Type"))
	assert.Equal(t, "FeatureCollection", body["type"])
	assert.Len(t, body["features"], 7)
}

func TestGetZone(t *testing.T) {
	env := newTestEnv(t, nil, nil)

	rec, body := env.do(t, http.MethodGet, "/api/v1/zones/el-danubio", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "El Danubio", body["name"])

	rec, body = env.do(t, http.MethodGet, "/api/v1/zones/nowhere", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "zone not found", body["error"])
}

func TestPredictZone(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	rec, body := env.do(t, http.MethodPost, "/api/v1/zones/la-maria/predict", "")

	require.Equal(t, http.StatusOK, rec.Code)
	pred := body["prediction"].(map[string]any)
	assert.InDelta(t, 82, pred["probability"], 0)
	assert.Equal(t, "red", pred["color"])
	a := body["assessment"].(map[string]any)
	assert.Equal(t, "AI", a["authority"])
	assert.Equal(t, "Alta", a["level"])
}

func TestApplyPredictionEvent(t *testing.T) {
	env := newTestEnv(t, nil, nil)

	rec, body := env.do(t, http.MethodPost, "/api/v1/predictions", `{"zoneId":"la-maria","probability":30,"explanation":"poca lluvia"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	a := body["assessment"].(map[string]any)
	assert.Equal(t, "STATIC", a["authority"])
	assert.Equal(t, true, a["fallbackUsed"])

	rec, _ = env.do(t, http.MethodPost, "/api/v1/predictions", `{"probability":30}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = env.do(t, http.MethodPost, "/api/v1/predictions", `{"zoneId":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = env.do(t, http.MethodPost, "/api/v1/predictions", `{"zoneId":"nowhere","probability":30}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRefreshReportsPerZoneErrors(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	env.refresher.preds = []domain.ZonePrediction{domain.NewZonePrediction("la-maria", domain.Float64(40), "", domain.SourceAI)}
	env.refresher.err = domain.MultiError{Errors: []error{
		domain.ZoneError{ZoneID: "el-danubio", Stage: "weather", Err: errors.New("timeout")},
	}}

	rec, body := env.do(t, http.MethodPost, "/api/v1/predictions/refresh", `{"zoneIds":["la-maria","el-danubio"]}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"la-maria", "el-danubio"}, env.refresher.ids)
	assert.Len(t, body["updated"], 1)
	assert.Equal(t, []any{"zone el-danubio: weather: timeout"}, body["errors"])
}

func TestRefreshWithoutBodyRefreshesAll(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	rec, body := env.do(t, http.MethodPost, "/api/v1/predictions/refresh", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Nil(t, env.refresher.ids)
	assert.Empty(t, body["errors"])
}

func TestLocate(t *testing.T) {
	env := newTestEnv(t, nil, nil)

	rec, body := env.do(t, http.MethodGet, "/api/v1/locate?lat=4.587&lon=-74.21", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "la-maria", body["zone"].(map[string]any)["id"])

	rec, _ = env.do(t, http.MethodGet, "/api/v1/locate?lat=10&lon=10", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = env.do(t, http.MethodGet, "/api/v1/locate?lat=abc&lon=10", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = env.do(t, http.MethodGet, "/api/v1/locate?lat=95&lon=10", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLocateByClientIP(t *testing.T) {
	env := newTestEnv(t, nil, mockLocator{coord: registry.MapCenter})
	rec, body := env.do(t, http.MethodGet, "/api/v1/locate", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "la-maria", body["zone"].(map[string]any)["id"])

	env = newTestEnv(t, nil, mockLocator{err: domain.ErrGeolocationUnavailable})
	rec, _ = env.do(t, http.MethodGet, "/api/v1/locate", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	env = newTestEnv(t, nil, nil)
	rec, _ = env.do(t, http.MethodGet, "/api/v1/locate", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestSummary(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	rec, body := env.do(t, http.MethodGet, "/api/v1/summary", "")

	require.Equal(t, http.StatusOK, rec.Code)
	summary := body["summary"].(map[string]any)
	assert.InDelta(t, 2, summary["zones"], 0)
	assert.InDelta(t, 8000, summary["population"], 0)
	assert.Len(t, body["assessments"], 2)
}
