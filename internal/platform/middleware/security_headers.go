package middleware

import (
	"strings"

	"github.com/labstack/echo/v4"
)

// SecurityHeaders sets hardening response headers on every request. JSON
// responses are marked no-store since they carry patient data; uploaded
// photos under uploadsPrefix are left cacheable and may be embedded
// cross-origin by the frontend.
func SecurityHeaders(uploadsPrefix string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			h := c.Response().Header()

			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("X-Frame-Options", "DENY")
			h.Set("Referrer-Policy", "no-referrer")

			if uploadsPrefix != "" && strings.HasPrefix(c.Request().URL.Path, uploadsPrefix) {
				h.Set("Cross-Origin-Resource-Policy", "cross-origin")
				return next(c)
			}

			h.Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
			h.Set("Cache-Control", "no-store")

			return next(c)
		}
	}
}
