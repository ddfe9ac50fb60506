package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// CrossOrigin returns an Echo middleware that allows any origin to read relay
// responses. Headers are set before the handler runs so they are already on
// the wire when a stream commits, and on error responses rendered later.
// Preflight requests are answered directly with 204.
func CrossOrigin() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			h := c.Response().Header()
			h.Set(echo.HeaderAccessControlAllowOrigin, "*")
			h.Set(echo.HeaderAccessControlAllowHeaders, echo.HeaderCacheControl)
			h.Set(echo.HeaderXContentTypeOptions, "nosniff")

			if c.Request().Method == http.MethodOptions {
				h.Set(echo.HeaderAccessControlAllowMethods, "GET, OPTIONS")
				return c.NoContent(http.StatusNoContent)
			}

			return next(c)
		}
	}
}
