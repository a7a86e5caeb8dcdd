package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func TestAuthSkipper(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{"/health", true},
		{"/health/ready", false},
		{"/metrics", true},
		{"/api/v1/blobs/:token", true},
		{"/api/v1/documents/:kind", false},
		{"/api/v1/documents/:kind/:id/signatures", false},
		{"/api/v1/blobs/abc", false},
		{"/api/v1/risk/score", false},
		{"/", false},
		{"/health/extra", false},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			e := echo.New()
			c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
			c.SetPath(tt.path)
			if AuthSkipper(c) != tt.want {
				t.Errorf("AuthSkipper(%s) = %v, want %v", tt.path, !tt.want, tt.want)
			}
		})
	}
}
