package middleware

import (
	"errors"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/sst/sst/internal/platform/auth"
)

// responseStatus prefers the code of a returned HTTPError, since the error
// handler writes the response only after the middleware chain unwinds.
func responseStatus(c echo.Context, err error) int {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he.Code
	}
	return c.Response().Status
}

// Logger writes one line per request. Server errors log at error level and
// handler errors below 500 at warn.
func Logger(logger zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)

			status := responseStatus(c, err)
			var evt *zerolog.Event
			switch {
			case status >= 500:
				evt = logger.Error().Err(err)
			case err != nil:
				evt = logger.Warn().Err(err)
			default:
				evt = logger.Info()
			}

			req := c.Request()
			rid, _ := c.Get("request_id").(string)
			evt = evt.Str("request_id", rid).
				Str("method", req.Method).
				Str("route", c.Path()).
				Str("path", req.URL.Path).
				Int("status", status).
				Int64("bytes_out", c.Response().Size).
				Dur("latency", time.Since(start)).
				Str("remote_ip", c.RealIP())
			if id, ok := auth.IdentityFromContext(req.Context()); ok {
				evt = evt.Str("user_id", id.UserID).Str("organizacion_id", id.OrganizationID)
			}
			evt.Msg("request")
			return err
		}
	}
}
