package middleware

import (
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/abejo/dental-clinic/internal/platform/apierr"
	"github.com/abejo/dental-clinic/internal/platform/auth"
)

// Logger writes one line per request. Requests rejected with a validation,
// not-found or conflict error log at info; other client errors (auth, body
// size) at warn; server errors at error.
func Logger(logger zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			rid, _ := c.Get("request_id").(string)

			err := next(c)

			// The error handler has not rendered yet, so derive the status
			// it is going to write.
			status := c.Response().Status
			if err != nil && !c.Response().Committed {
				status = StatusOf(err)
			}

			evt := logger.Info()
			switch {
			case status >= 500:
				evt = logger.Error().Err(err)
			case apierr.IsValidation(err), apierr.IsNotFound(err), apierr.IsConflict(err):
				evt = logger.Info().Str("rejected", err.Error())
			case err != nil:
				evt = logger.Warn().Err(err)
			}

			// Auth middleware runs inside this one and replaces the request.
			req := c.Request()
			if user := auth.UserIDFromContext(req.Context()); user != "" {
				evt = evt.Str("user", user).Str("role", auth.RoleFromContext(req.Context()))
			}

			evt.
				Str("request_id", rid).
				Str("method", req.Method).
				Str("path", req.URL.Path).
				Int("status", status).
				Dur("latency", time.Since(start)).
				Str("remote_ip", c.RealIP()).
				Msg("request")

			return err
		}
	}
}
