package access

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/sst/sst/internal/domain/safety"
	"github.com/sst/sst/internal/platform/apierror"
	"github.com/sst/sst/internal/platform/auth"
)

type Handler struct {
	validate *validator.Validate
}

func NewHandler() *Handler {
	return &Handler{validate: validator.New()}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/access")
	g.GET("/capabilities", h.Capabilities)
	g.GET("/fields/:kind", h.Fields)
	g.POST("/accounts/evaluate", h.EvaluateAccount)
	g.POST("/accounts/authorize-create", h.AuthorizeCreateAccount)
}

// CapabilitiesResponse lists the caller's recognised roles and derived capabilities.
type CapabilitiesResponse struct {
	UserID         string       `json:"user_id"`
	OrganizationID string       `json:"organizacion_id"`
	Roles          []string     `json:"roles"`
	Capabilities   []Capability `json:"capabilities"`
}

func (h *Handler) Capabilities(c echo.Context) error {
	id, err := auth.RequireIdentity(c)
	if err != nil {
		return err
	}
	roles := ParseRoles(id.Roles)
	return c.JSON(http.StatusOK, CapabilitiesResponse{
		UserID:         id.UserID,
		OrganizationID: id.OrganizationID,
		Roles:          roles.Strings(),
		Capabilities:   Derive(roles).List(),
	})
}

// Fields lists the view keys of a kind visible to the caller.
func (h *Handler) Fields(c echo.Context) error {
	id, err := auth.RequireIdentity(c)
	if err != nil {
		return err
	}
	kind, err := safety.ParseKind(c.Param("kind"))
	if err != nil {
		return apierror.From(err)
	}
	roles := ParseRoles(id.Roles)
	visible := VisibleFields(kind, roles)
	fields := make([]safety.Field, 0, len(visible))
	for _, f := range kind.Fields() {
		if visible.Has(f) {
			fields = append(fields, f)
		}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"tipo": kind, "campos": fields})
}

type evaluateAccountRequest struct {
	UserID         string   `json:"user_id" validate:"required"`
	OrganizationID string   `json:"organizacion_id" validate:"required"`
	Roles          []string `json:"roles"`
}

func (h *Handler) EvaluateAccount(c echo.Context) error {
	id, err := auth.RequireIdentity(c)
	if err != nil {
		return err
	}
	var req evaluateAccountRequest
	if err := c.Bind(&req); err != nil {
		return apierror.BadRequest("invalid request body")
	}
	if err := h.validate.Struct(req); err != nil {
		return apierror.From(err)
	}
	caller := Account{UserID: id.UserID, OrganizationID: id.OrganizationID, Roles: ParseRoles(id.Roles)}
	target := Account{UserID: req.UserID, OrganizationID: req.OrganizationID, Roles: ParseRoles(req.Roles)}
	return c.JSON(http.StatusOK, AccountAccess(caller, target))
}

type createAccountRequest struct {
	OrganizationID string   `json:"organizacion_id" validate:"required"`
	Roles          []string `json:"roles" validate:"required,min=1"`
}

// AuthorizeCreateAccount answers whether the caller may create an account
// with the requested roles. The account directory itself lives elsewhere.
func (h *Handler) AuthorizeCreateAccount(c echo.Context) error {
	id, err := auth.RequireIdentity(c)
	if err != nil {
		return err
	}
	var req createAccountRequest
	if err := c.Bind(&req); err != nil {
		return apierror.BadRequest("invalid request body")
	}
	if err := h.validate.Struct(req); err != nil {
		return apierror.From(err)
	}
	requested := ParseRoles(req.Roles)
	if len(requested) == 0 {
		return apierror.From(safety.Validation("create account", []string{"roles"}, "no recognised roles requested"))
	}
	caller := Account{UserID: id.UserID, OrganizationID: id.OrganizationID, Roles: ParseRoles(id.Roles)}
	if err := AssertCanCreateAccount(caller, req.OrganizationID, requested); err != nil {
		return apierror.From(err)
	}
	return c.NoContent(http.StatusNoContent)
}
