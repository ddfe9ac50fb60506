package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func TestCrossOrigin(t *testing.T) {
	e := echo.New()
	e.Use(CrossOrigin())
	e.GET("/ok", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})
	e.GET("/bad", func(c echo.Context) error {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "bad"})
	})
	e.GET("/stream", func(c echo.Context) error {
		c.Response().WriteHeader(http.StatusOK)
		_, err := c.Response().Write([]byte("data: x\n\n"))
		return err
	})

	tests := []struct {
		name       string
		method     string
		path       string
		wantStatus int
	}{
		{"success", http.MethodGet, "/ok", http.StatusOK},
		{"handler error body", http.MethodGet, "/bad", http.StatusBadRequest},
		{"committed stream", http.MethodGet, "/stream", http.StatusOK},
		{"router not found", http.MethodGet, "/nope", http.StatusNotFound},
		{"method not allowed", http.MethodPost, "/ok", http.StatusMethodNotAllowed},
		{"preflight", http.MethodOptions, "/ok", http.StatusNoContent},
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
			if got := rec.Header().Get("Access-Control-Allow-Headers"); got != "Cache-Control" {
				t.Errorf("Access-Control-Allow-Headers = %q, want %q", got, "Cache-Control")
			}
			if got := rec.Header().Get("X-Content-Type-Options"); got != "nosniff" {
				t.Errorf("X-Content-Type-Options = %q, want %q", got, "nosniff")
			}
		})
	}
}
