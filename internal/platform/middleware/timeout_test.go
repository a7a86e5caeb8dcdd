package middleware

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
)

func TestRequestTimeout(t *testing.T) {
	slow := func(c echo.Context) error {
		select {
		case <-time.After(5 * time.Second):
			return c.NoContent(http.StatusOK)
		case <-c.Request().Context().Done():
			return c.Request().Context().Err()
		}
	}
	fast := func(c echo.Context) error { return c.NoContent(http.StatusOK) }

	tests := []struct {
		name     string
		path     string
		timeout  time.Duration
		handler  echo.HandlerFunc
		wantCode int
	}{
		{"fast document read", "/api/v1/documents/iperc", time.Second, fast, http.StatusOK},
		{"slow document read", "/api/v1/documents/iperc", 50 * time.Millisecond, slow, http.StatusGatewayTimeout},
		{"blob download is exempt", "/api/v1/blobs/tok", 50 * time.Millisecond, func(c echo.Context) error {
			if _, ok := c.Request().Context().Deadline(); ok {
				t.Error("blob downloads must not carry a deadline")
			}
			return c.NoContent(http.StatusOK)
		}, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := echo.New()
			rec := httptest.NewRecorder()
			c := e.NewContext(httptest.NewRequest(http.MethodGet, tt.path, nil), rec)

			if err := RequestTimeout(tt.timeout)(tt.handler)(c); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if rec.Code != tt.wantCode {
				t.Fatalf("expected %d, got %d", tt.wantCode, rec.Code)
			}
			if tt.wantCode != http.StatusGatewayTimeout {
				return
			}
			var body map[string]interface{}
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if body["code"] != "timeout" {
				t.Errorf("expected code timeout, got %v", body["code"])
			}
		})
	}
}

func TestRequestTimeout_DeadlineReachesHandler(t *testing.T) {
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodPost, "/api/v1/documents/pets", nil), httptest.NewRecorder())

	err := RequestTimeout(30 * time.Second)(func(c echo.Context) error {
		deadline, ok := c.Request().Context().Deadline()
		if !ok || time.Until(deadline) > 30*time.Second {
			t.Errorf("expected a deadline within 30s, got %v (ok=%v)", deadline, ok)
		}
		return nil
	})(c)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestRequestTimeout_HandlerErrorPassesThrough(t *testing.T) {
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/api/v1/documents/emo/x", nil), httptest.NewRecorder())

	want := echo.NewHTTPError(http.StatusNotFound, "not_found")
	err := RequestTimeout(time.Second)(func(c echo.Context) error { return want })(c)
	if !errors.Is(err, want) {
		t.Errorf("expected the handler error, got %v", err)
	}
}
