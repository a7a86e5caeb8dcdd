package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/sst/sst/internal/platform/apierror"
)

// streamingPrefixes are exempt from the request deadline. Blob downloads
// stream files up to the upload limit.
var streamingPrefixes = []string{"/api/v1/blobs/"}

func streaming(path string) bool {
	for _, p := range streamingPrefixes {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

// RequestTimeout bounds every non-streaming request by d. Repository calls
// observe the deadline through the request context; when it fires first the
// client gets a 504.
func RequestTimeout(d time.Duration) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if streaming(c.Request().URL.Path) {
				return next(c)
			}

			ctx, cancel := context.WithTimeout(c.Request().Context(), d)
			defer cancel()
			c.SetRequest(c.Request().WithContext(ctx))

			done := make(chan error, 1)
			go func() { done <- next(c) }()

			select {
			case err := <-done:
				return err
			case <-ctx.Done():
				if !errors.Is(ctx.Err(), context.DeadlineExceeded) {
					return ctx.Err()
				}
				if c.Response().Committed {
					return nil
				}
				return c.JSON(http.StatusGatewayTimeout, apierror.Body{
					Code:    "timeout",
					Message: "request exceeded " + d.String(),
				})
			}
		}
	}
}
