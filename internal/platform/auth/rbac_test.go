package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func runRequireRole(t *testing.T, id *Identity, roles ...string) (*httptest.ResponseRecorder, error) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if id != nil {
		req = req.WithContext(WithIdentity(req.Context(), *id))
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	err := RequireRole(roles...)(func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})(c)
	return rec, err
}

func TestRequireRole_Allowed(t *testing.T) {
	rec, err := runRequireRole(t, &Identity{UserID: "u", Roles: []string{"medico"}}, "medico", "centro_medico")
	if err != nil {
		t.Errorf("expected no error, got %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestRequireRole_Denied(t *testing.T) {
	_, err := runRequireRole(t, &Identity{UserID: "u", Roles: []string{"trabajador"}}, "medico")
	expectStatus(t, err, http.StatusForbidden)
}

func TestRequireRole_SuperAdminBypass(t *testing.T) {
	_, err := runRequireRole(t, &Identity{UserID: "u", Roles: []string{RoleSuperAdmin}}, "medico")
	if err != nil {
		t.Errorf("expected super_admin to pass, got %v", err)
	}
}

func TestRequireRole_NoIdentity(t *testing.T) {
	_, err := runRequireRole(t, nil, "medico")
	expectStatus(t, err, http.StatusUnauthorized)
}
