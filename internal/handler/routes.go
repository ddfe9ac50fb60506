package handler

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hoho2017/weather-frontend/internal/config"
	"github.com/hoho2017/weather-frontend/internal/metrics"
	"github.com/hoho2017/weather-frontend/internal/web"
)

// RegisterRoutes wires all route handlers onto the Echo instance.
// The metrics route is mounted only when metrics are enabled and m is non-nil.
func RegisterRoutes(e *echo.Echo, cfg *config.Config, m *metrics.Metrics, relay *RelayHandler, health *HealthHandler) {
	e.GET("/healthz", health.Healthz)
	e.GET("/relay/status", health.Status)

	e.GET("/events", relay.Events)
	e.GET("/images", relay.Images)

	// Route names used by earlier gallery builds.
	e.GET("/api/proxy", relay.Events)
	e.GET("/api/image-proxy", relay.Images)

	assets := web.FS()
	e.FileFS("/", "index.html", assets)
	e.StaticFS("/static", assets)

	if cfg.Metrics.Enabled && m != nil {
		e.GET(cfg.Metrics.Path, echo.WrapHandler(promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})))
	}
}
