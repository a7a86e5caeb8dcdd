package followup

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/sst/sst/internal/platform/apierror"
	"github.com/sst/sst/internal/platform/auth"
	"github.com/sst/sst/internal/platform/middleware"
)

type Handler struct {
	tracker *Tracker
}

func NewHandler(tracker *Tracker) *Handler {
	return &Handler{tracker: tracker}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/exams/:id/followups")
	g.GET("", h.List)
	g.POST("", h.Add)
	g.DELETE("/:item", h.Remove)
	g.POST("/:item/resolve", h.Resolve)
}

func ids(c echo.Context, withItem bool) (uuid.UUID, uuid.UUID, error) {
	examID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, uuid.Nil, apierror.BadRequest("invalid id")
	}
	if !withItem {
		return examID, uuid.Nil, nil
	}
	itemID, err := uuid.Parse(c.Param("item"))
	if err != nil {
		return uuid.Nil, uuid.Nil, apierror.BadRequest("invalid item")
	}
	return examID, itemID, nil
}

func (h *Handler) List(c echo.Context) error {
	id, err := auth.RequireIdentity(c)
	if err != nil {
		return err
	}
	examID, _, err := ids(c, false)
	if err != nil {
		return err
	}
	items, err := h.tracker.List(c.Request().Context(), id, examID)
	if err != nil {
		return apierror.From(err)
	}
	for _, it := range items {
		if it.Code != "" {
			middleware.MarkClinicalDisclosure(c, []string{"codigo_cie10", "diagnostico"})
			break
		}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"data": items, "total": len(items)})
}

func (h *Handler) Add(c echo.Context) error {
	id, err := auth.RequireIdentity(c)
	if err != nil {
		return err
	}
	examID, _, err := ids(c, false)
	if err != nil {
		return err
	}
	var req NewItem
	if err := c.Bind(&req); err != nil {
		return apierror.BadRequest("invalid request body")
	}
	item, err := h.tracker.Add(c.Request().Context(), id, examID, req)
	if err != nil {
		return apierror.From(err)
	}
	return c.JSON(http.StatusCreated, item)
}

func (h *Handler) Remove(c echo.Context) error {
	id, err := auth.RequireIdentity(c)
	if err != nil {
		return err
	}
	examID, itemID, err := ids(c, true)
	if err != nil {
		return err
	}
	if err := h.tracker.Remove(c.Request().Context(), id, examID, itemID); err != nil {
		return apierror.From(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) Resolve(c echo.Context) error {
	id, err := auth.RequireIdentity(c)
	if err != nil {
		return err
	}
	examID, itemID, err := ids(c, true)
	if err != nil {
		return err
	}
	item, err := h.tracker.Resolve(c.Request().Context(), id, examID, itemID)
	if err != nil {
		return apierror.From(err)
	}
	return c.JSON(http.StatusOK, item)
}
