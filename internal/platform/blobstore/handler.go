package blobstore

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
)

// Handler serves blobs addressed by a signed URL token. The route is public:
// the token itself is the credential.
type Handler struct {
	store  Store
	signer *URLSigner
}

func NewHandler(store Store, signer *URLSigner) *Handler {
	return &Handler{store: store, signer: signer}
}

func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.GET("/blobs/:token", h.handleDownload)
}

func (h *Handler) handleDownload(c echo.Context) error {
	ref, err := h.signer.Verify(c.Param("token"))
	if err != nil {
		return echo.NewHTTPError(http.StatusForbidden, err.Error())
	}

	rc, meta, err := h.store.Open(c.Request().Context(), ref)
	if err != nil {
		if errors.Is(err, ErrBlobNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to read blob").SetInternal(err)
	}
	defer rc.Close()

	resp := c.Response().Header()
	resp.Set("Cache-Control", "private, no-store")
	if meta.FileName != "" {
		resp.Set("Content-Disposition", fmt.Sprintf(`inline; filename="%s"`, meta.FileName))
	}
	return c.Stream(http.StatusOK, meta.ContentType, rc)
}
