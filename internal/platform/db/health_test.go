package db

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func runHealth(t *testing.T, checks map[string]Check) (int, map[string]interface{}) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/health/ready", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := HealthHandler(checks)(c); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	return rec.Code, body
}

func TestHealthHandler_AllHealthy(t *testing.T) {
	code, body := runHealth(t, map[string]Check{
		"store": func(ctx context.Context) (any, error) { return map[string]string{"driver": "memory"}, nil },
		"blobs": func(ctx context.Context) (any, error) { return nil, nil },
	})
	if code != http.StatusOK {
		t.Errorf("expected 200, got %d", code)
	}
	if body["status"] != "healthy" {
		t.Errorf("expected healthy, got %v", body["status"])
	}
	components, ok := body["components"].(map[string]interface{})
	if !ok || len(components) != 2 {
		t.Fatalf("expected 2 components, got %v", body["components"])
	}
}

func TestHealthHandler_OneFailing(t *testing.T) {
	code, body := runHealth(t, map[string]Check{
		"store": func(ctx context.Context) (any, error) { return nil, errors.New("connection refused") },
		"blobs": func(ctx context.Context) (any, error) { return nil, nil },
	})
	if code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", code)
	}
	if body["status"] != "unhealthy" {
		t.Errorf("expected unhealthy, got %v", body["status"])
	}
	store := body["components"].(map[string]interface{})["store"].(map[string]interface{})
	if store["error"] != "connection refused" {
		t.Errorf("expected error to be reported, got %v", store["error"])
	}
}

func TestHealthHandler_NoChecks(t *testing.T) {
	code, body := runHealth(t, nil)
	if code != http.StatusOK || body["status"] != "healthy" {
		t.Errorf("expected healthy 200 with no checks, got %d %v", code, body["status"])
	}
}
