package middleware

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/sst/sst/internal/platform/apierror"
	"github.com/sst/sst/internal/platform/auth"
)

// logLine decodes the single JSON line written to buf.
func logLine(t *testing.T, buf *bytes.Buffer) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &out); err != nil {
		t.Fatalf("decode log line %q: %v", buf.String(), err)
	}
	return out
}

func TestRequestID(t *testing.T) {
	tests := []struct {
		name     string
		incoming string
		keep     bool
	}{
		{"generated", "", false},
		{"client supplied", "req-iperc-7", true},
		{"too long", strings.Repeat("x", 129), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := echo.New()
			req := httptest.NewRequest(http.MethodGet, "/api/v1/documents/iperc", nil)
			if tt.incoming != "" {
				req.Header.Set(RequestIDHeader, tt.incoming)
			}
			rec := httptest.NewRecorder()
			c := e.NewContext(req, rec)

			var seen string
			err := RequestID()(func(c echo.Context) error {
				seen, _ = c.Get("request_id").(string)
				return nil
			})(c)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			got := rec.Header().Get(RequestIDHeader)
			if got == "" || got != seen {
				t.Fatalf("expected matching context and header ids, got %q and %q", seen, got)
			}
			if tt.keep != (got == tt.incoming) {
				t.Errorf("keep=%v but header is %q", tt.keep, got)
			}
		})
	}
}

func TestLogger_RecordsCallerAndStatus(t *testing.T) {
	var buf bytes.Buffer
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/documents/emo", nil)
	req = req.WithContext(auth.WithIdentity(req.Context(), auth.Identity{UserID: "med-1", OrganizationID: "org-1"}))
	c := e.NewContext(req, httptest.NewRecorder())
	c.Set("request_id", "req-1")

	err := Logger(zerolog.New(&buf))(func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})(c)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	line := logLine(t, &buf)
	if line["level"] != "info" || line["status"] != float64(200) {
		t.Errorf("unexpected log line %v", line)
	}
	if line["user_id"] != "med-1" || line["organizacion_id"] != "org-1" || line["request_id"] != "req-1" {
		t.Errorf("expected caller fields, got %v", line)
	}
}

func TestLogger_LevelFollowsError(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		level  string
		status float64
	}{
		{"client error", echo.NewHTTPError(http.StatusConflict, "missing_signatures"), "warn", 409},
		{"server error", echo.NewHTTPError(http.StatusServiceUnavailable, "storage"), "error", 503},
		{"plain error", errors.New("boom"), "warn", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			e := echo.New()
			c := e.NewContext(httptest.NewRequest(http.MethodPost, "/api/v1/documents/iperc", nil), httptest.NewRecorder())

			err := Logger(zerolog.New(&buf))(func(c echo.Context) error { return tt.err })(c)
			if err != tt.err {
				t.Fatalf("expected the handler error back, got %v", err)
			}
			line := logLine(t, &buf)
			if line["level"] != tt.level || (tt.status != 0 && line["status"] != tt.status) {
				t.Errorf("expected %s/%v, got %v", tt.level, tt.status, line)
			}
		})
	}
}

func TestRecovery_CatchesPanic(t *testing.T) {
	var buf bytes.Buffer
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/api/v1/documents/pets", nil), httptest.NewRecorder())
	c.Set("request_id", "req-9")

	err := Recovery(zerolog.New(&buf))(func(c echo.Context) error {
		panic("nil procedure body")
	})(c)

	var he *echo.HTTPError
	if !errors.As(err, &he) || he.Code != http.StatusInternalServerError {
		t.Fatalf("expected a 500 HTTPError, got %v", err)
	}
	body, ok := he.Message.(apierror.Body)
	if !ok || body.Code != "internal" {
		t.Errorf("expected an internal error body, got %#v", he.Message)
	}
	line := logLine(t, &buf)
	if line["panic"] != "nil procedure body" || line["request_id"] != "req-9" {
		t.Errorf("unexpected log line %v", line)
	}
}

func TestRecovery_PassesThrough(t *testing.T) {
	var buf bytes.Buffer
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/health", nil), httptest.NewRecorder())

	if err := Recovery(zerolog.New(&buf))(func(c echo.Context) error { return nil })(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if buf.Len() != 0 {
		t.Errorf("expected no log output, got %q", buf.String())
	}
}
