package access

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/sst/sst/internal/platform/auth"
)

func serve(t *testing.T, id *auth.Identity, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	api := e.Group("/api/v1")
	if id != nil {
		api.Use(auth.DevAuthMiddleware(*id))
	}
	NewHandler().RegisterRoutes(api)

	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestHandler_Capabilities(t *testing.T) {
	id := &auth.Identity{UserID: "u1", OrganizationID: "org-1", Roles: []string{"medico", "bogus"}}
	rec := serve(t, id, http.MethodGet, "/api/v1/access/capabilities", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp CapabilitiesResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Roles) != 1 || resp.Roles[0] != "medico" {
		t.Errorf("expected unknown roles dropped, got %v", resp.Roles)
	}
	found := false
	for _, c := range resp.Capabilities {
		if c == CapViewClinical {
			found = true
		}
	}
	if !found {
		t.Errorf("expected view_clinical in %v", resp.Capabilities)
	}
}

func TestHandler_CapabilitiesRequiresIdentity(t *testing.T) {
	rec := serve(t, nil, http.MethodGet, "/api/v1/access/capabilities", "")
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rec.Code)
	}
}

func TestHandler_Fields(t *testing.T) {
	id := &auth.Identity{UserID: "u1", OrganizationID: "org-1", Roles: []string{"admin_empresa"}}
	rec := serve(t, id, http.MethodGet, "/api/v1/access/fields/emo", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "diagnosticos_cie10") {
		t.Errorf("admin must not see diagnoses: %s", rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "aptitud") {
		t.Errorf("expected aptitude to be listed: %s", rec.Body.String())
	}

	rec = serve(t, id, http.MethodGet, "/api/v1/access/fields/incidente", "")
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("expected 422 for unknown kind, got %d", rec.Code)
	}
}

func TestHandler_EvaluateAccount(t *testing.T) {
	id := &auth.Identity{UserID: "a1", OrganizationID: "org-1", Roles: []string{"admin_empresa"}}
	rec := serve(t, id, http.MethodPost, "/api/v1/access/accounts/evaluate",
		`{"user_id":"a2","organizacion_id":"org-1","roles":["admin_empresa"]}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var d AccountDecision
	if err := json.Unmarshal(rec.Body.Bytes(), &d); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if d.View != AccountViewReadOnly || d.CanEditRoles {
		t.Errorf("expected read-only peer view, got %+v", d)
	}

	rec = serve(t, id, http.MethodPost, "/api/v1/access/accounts/evaluate", `{"roles":["trabajador"]}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for missing user_id, got %d", rec.Code)
	}
}

func TestHandler_AuthorizeCreateAccount(t *testing.T) {
	admin := &auth.Identity{UserID: "a1", OrganizationID: "org-1", Roles: []string{"admin_empresa"}}
	super := &auth.Identity{UserID: "s1", Roles: []string{"super_admin"}}
	path := "/api/v1/access/accounts/authorize-create"

	tests := []struct {
		name string
		id   *auth.Identity
		body string
		want int
	}{
		{"admin creates worker", admin, `{"organizacion_id":"org-1","roles":["trabajador"]}`, http.StatusNoContent},
		{"admin creates admin", admin, `{"organizacion_id":"org-1","roles":["admin_empresa"]}`, http.StatusForbidden},
		{"admin in other org", admin, `{"organizacion_id":"org-2","roles":["trabajador"]}`, http.StatusForbidden},
		{"super creates admin", super, `{"organizacion_id":"org-9","roles":["admin_empresa"]}`, http.StatusNoContent},
		{"unknown roles only", admin, `{"organizacion_id":"org-1","roles":["bogus"]}`, http.StatusUnprocessableEntity},
		{"missing roles", admin, `{"organizacion_id":"org-1"}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(t, tt.id, http.MethodPost, path, tt.body)
			if rec.Code != tt.want {
				t.Errorf("expected %d, got %d: %s", tt.want, rec.Code, rec.Body.String())
			}
		})
	}
}
