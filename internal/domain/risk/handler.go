package risk

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/sst/sst/internal/platform/apierror"
)

type Handler struct {
	engine *Engine
}

func NewHandler(engine *Engine) *Handler {
	return &Handler{engine: engine}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/risk")
	g.POST("/score", h.Score)
	g.GET("/matrix", h.Matrix)
}

// ScoreResponse is a Result with its display fields.
type ScoreResponse struct {
	Result
	Label          string `json:"etiqueta"`
	RequiresAction bool   `json:"requiere_accion"`
}

func NewScoreResponse(r Result) ScoreResponse {
	return ScoreResponse{Result: r, Label: r.Tier.Label(), RequiresAction: r.Tier.RequiresAction()}
}

func (h *Handler) Score(c echo.Context) error {
	var in Inputs
	if err := c.Bind(&in); err != nil {
		return apierror.BadRequest("invalid request body")
	}
	res, err := h.engine.Score(in)
	if err != nil {
		return apierror.From(err)
	}
	return c.JSON(http.StatusOK, NewScoreResponse(res))
}

func (h *Handler) Matrix(c echo.Context) error {
	return c.JSON(http.StatusOK, h.engine.Matrix())
}
