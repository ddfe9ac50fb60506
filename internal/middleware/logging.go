// Package middleware provides Echo middleware for logging, cross-origin
// headers and request metrics.
package middleware

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// RequestLogger returns an Echo middleware that logs each request with slog.
// The line is written from a defer so aborted streams are logged too.
func RequestLogger(logger *slog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) (err error) {
			start := time.Now()

			defer func() {
				req := c.Request()
				res := c.Response()
				status := responseStatus(c, err)

				level := slog.LevelInfo
				if status >= http.StatusInternalServerError {
					level = slog.LevelWarn
				}

				logger.Log(req.Context(), level, "request",
					"method", req.Method,
					"path", req.URL.Path,
					"status", status,
					"duration_ms", time.Since(start).Milliseconds(),
					"request_id", res.Header().Get(echo.HeaderXRequestID),
					"remote_ip", c.RealIP(),
					"user_agent", req.UserAgent(),
					"bytes_out", res.Size,
				)
			}()

			return next(c)
		}
	}
}

// responseStatus resolves the status a request will finish with. When a
// handler returns an *echo.HTTPError the response has not been written yet;
// Echo's central error handler does that later.
func responseStatus(c echo.Context, err error) int {
	status := c.Response().Status
	if err != nil && !c.Response().Committed {
		var he *echo.HTTPError
		if errors.As(err, &he) {
			status = he.Code
		} else {
			status = http.StatusInternalServerError
		}
	}
	return status
}
