package handler

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/hoho2017/weather-frontend/internal/metrics"
	"github.com/hoho2017/weather-frontend/internal/middleware"
)

func TestRegisterRoutes_Wiring(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/images":
			w.Header().Set("Content-Type", "text/event-stream")
			_, _ = io.WriteString(w, "event: image\ndata: /a.png\n\n")
		default:
			w.Header().Set("Content-Type", "image/png")
			_, _ = w.Write([]byte("png"))
		}
	}))
	defer upstream.Close()

	cfg := testConfig(upstream.URL)
	cfg.Metrics.Enabled = true
	m := metrics.New()
	relay := newTestRelayHandler(t, upstream.URL, m)
	health := NewHealthHandler("test")

	e := echo.New()
	e.Use(middleware.CrossOrigin())
	RegisterRoutes(e, cfg, m, relay, health)

	tests := []struct {
		name       string
		method     string
		path       string
		wantStatus int
	}{
		{"GET /healthz", http.MethodGet, "/healthz", http.StatusOK},
		{"GET /relay/status", http.MethodGet, "/relay/status", http.StatusOK},
		{"GET /events", http.MethodGet, "/events?lat=1&lon=2", http.StatusOK},
		{"GET /events missing lon", http.MethodGet, "/events?lat=1", http.StatusBadRequest},
		{"GET /api/proxy", http.MethodGet, "/api/proxy?lat=1&lon=2", http.StatusOK},
		{"GET /images", http.MethodGet, "/images?path=/a.png", http.StatusOK},
		{"GET /api/image-proxy", http.MethodGet, "/api/image-proxy?path=/a.png", http.StatusOK},
		{"POST /events", http.MethodPost, "/events?lat=1&lon=2", http.StatusMethodNotAllowed},
		{"PUT /images", http.MethodPut, "/images?path=/a.png", http.StatusMethodNotAllowed},
		{"GET /", http.MethodGet, "/", http.StatusOK},
		{"GET /static/gallery.js", http.MethodGet, "/static/gallery.js", http.StatusOK},
		{"GET /metrics", http.MethodGet, "/metrics", http.StatusOK},
		{"GET /unknown", http.MethodGet, "/unknown", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, http.NoBody)
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "*" {
				t.Errorf("Access-Control-Allow-Origin = %q, want %q", got, "*")
			}
		})
	}
}

func TestRegisterRoutes_GalleryPage(t *testing.T) {
	relay := newTestRelayHandler(t, "http://upstream.test", nil)
	e := echo.New()
	RegisterRoutes(e, testConfig("http://upstream.test"), nil, relay, NewHealthHandler("test"))

	req := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if !strings.Contains(rec.Body.String(), "/static/gallery.js") {
		t.Error("index page does not load gallery.js")
	}

	// Metrics disabled: the path falls through to the router.
	req = httptest.NewRequest(http.MethodGet, "/metrics", http.NoBody)
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Errorf("GET /metrics status = %d, want %d", rec.Code, http.StatusNotFound)
	}
}
