package api

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tphakala/soilnet-go/internal/buildinfo"
	"github.com/tphakala/soilnet-go/internal/classifier"
	"github.com/tphakala/soilnet-go/internal/conf"
	"github.com/tphakala/soilnet-go/internal/datastore"
	"github.com/tphakala/soilnet-go/internal/imaging"
	"github.com/tphakala/soilnet-go/internal/observability"
	"github.com/tphakala/soilnet-go/internal/scan"
	"github.com/tphakala/soilnet-go/internal/stats"
)

func newTestServer(t *testing.T, cfg *Config) (*Server, *observability.Metrics) {
	t.Helper()

	m, err := observability.NewMetrics()
	require.NoError(t, err)

	settings := &conf.Settings{}
	settings.Output.SQLite.Enabled = true
	settings.Output.SQLite.Path = filepath.Join(t.TempDir(), "api.db")
	store, err := datastore.New(settings, m.Datastore)
	require.NoError(t, err)
	require.NoError(t, store.Open())
	t.Cleanup(func() { assert.NoError(t, store.Close()) })

	engine := classifier.NewEngine(classifier.NewMockScorer(
		classifier.Score{Label: "sandy", Confidence: 0.77},
		classifier.Score{Label: "loam", Confidence: 0.23},
	), classifier.Options{Metrics: m.Classifier})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, engine.Load(ctx))
	t.Cleanup(func() { _ = engine.Shutdown(context.Background()) })

	svc, err := scan.NewService(imaging.New(imaging.Config{}), engine, store,
		stats.NewCache(time.Minute, time.UTC, m.Pipeline),
		scan.Options{Fs: afero.NewMemMapFs(), ImageDir: "/images", Metrics: m.Pipeline})
	require.NoError(t, err)

	srv, err := New(cfg, WithService(svc), WithMetrics(m), WithBuildInfo(buildinfo.NewContext("0.9.0", "")))
	require.NoError(t, err)
	return srv, m
}

func pngUpload(t *testing.T) *http.Request {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, 320, 320))
	for y := range 320 {
		for x := range 320 {
			v := uint8(0)
			if (x/4+y/4)%2 == 0 {
				v = 255
			}
			img.SetRGBA(x, y, color.RGBA{R: v, G: v, B: v, A: 255})
		}
	}
	var encoded bytes.Buffer
	require.NoError(t, png.Encode(&encoded, img))

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	part, err := w.CreateFormFile("image", "field.png")
	require.NoError(t, err)
	_, err = part.Write(encoded.Bytes())
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/scans", &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func TestConfigValidate(t *testing.T) {
	t.Parallel()

	require.NoError(t, DefaultConfig().Validate())

	cfg := DefaultConfig()
	cfg.Listen = "8080"
	require.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.MaxUploadMB = 0
	require.Error(t, cfg.Validate())

	settings := &conf.Settings{}
	settings.WebServer.Listen = "127.0.0.1:9090"
	settings.WebServer.MaxUploadMB = 5
	fromSettings := ConfigFromSettings(settings)
	assert.Equal(t, "127.0.0.1:9090", fromSettings.Listen)
	assert.Equal(t, 5, fromSettings.MaxUploadMB)
	assert.False(t, fromSettings.Metrics)
}

func TestNewRequiresService(t *testing.T) {
	t.Parallel()

	_, err := New(DefaultConfig())
	require.Error(t, err)
}

func TestServerScanRoundTrip(t *testing.T) {
	t.Parallel()

	srv, _ := newTestServer(t, DefaultConfig())
	h := srv.Handler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, pngUpload(t))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))

	var created struct {
		Record struct {
			ID    string `json:"id"`
			Label string `json:"label"`
		} `json:"record"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Equal(t, "sandy", created.Record.Label)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/scans/"+created.Record.ID, http.NoBody))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/stats", http.NoBody))
	require.Equal(t, http.StatusOK, rec.Code)
	var st map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	assert.InDelta(t, 1, st["total_scans"], 0)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/health", http.NoBody))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"version":"0.9.0"`)
}

func TestServerMetricsEndpoint(t *testing.T) {
	t.Parallel()

	srv, _ := newTestServer(t, DefaultConfig())
	h := srv.Handler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, pngUpload(t))
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", http.NoBody))
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `soilnet_http_requests_total{method="POST",route="/api/v1/scans",status_code="201"} 1`)
	assert.Contains(t, body, `soilnet_scans_total{outcome="saved"} 1`)

	cfg := DefaultConfig()
	cfg.Metrics = false
	disabled, _ := newTestServer(t, cfg)
	rec = httptest.NewRecorder()
	disabled.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", http.NoBody))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServerBodyLimit(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.MaxUploadMB = 1
	srv, _ := newTestServer(t, cfg)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/scans", bytes.NewReader(make([]byte, 2<<20)))
	req.Header.Set("Content-Type", "application/octet-stream")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestServerRunStopsOnCancel(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.Listen = "127.0.0.1:0"
	srv, _ := newTestServer(t, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
