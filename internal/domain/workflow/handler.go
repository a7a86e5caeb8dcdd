package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/sst/sst/internal/domain/access"
	"github.com/sst/sst/internal/domain/safety"
	"github.com/sst/sst/internal/platform/apierror"
	"github.com/sst/sst/internal/platform/auth"
	"github.com/sst/sst/internal/platform/middleware"
	"github.com/sst/sst/pkg/pagination"
)

type Handler struct {
	svc      *Service
	validate *validator.Validate
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc, validate: validator.New()}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	docs := api.Group("/documents/:kind")
	docs.GET("", h.List)
	docs.POST("", h.Create)
	docs.POST("/batch/transitions/:name", h.Batch)
	docs.GET("/:id", h.Get)
	docs.PATCH("/:id", h.Update)
	docs.GET("/:id/transitions", h.Transitions)
	docs.POST("/:id/transitions/:name", h.Transition)
	docs.POST("/:id/signatures/:role", h.Sign)

	exams := api.Group("/exams")
	exams.POST("/sweep", h.Sweep, auth.RequireRole(
		string(access.RoleCompanyAdmin), string(access.RoleSafetyEngineer),
		string(access.RoleMedicalDoctor), string(access.RoleMedicalCenter),
	))
	exams.POST("/:id/result", h.AttachResult)

	trainings := api.Group("/trainings/:id")
	trainings.POST("/participants", h.AssignParticipants)
	trainings.POST("/participants/remove", h.RemoveParticipants)
	trainings.PUT("/participants/:worker/evaluation", h.RecordEvaluation)
	trainings.PUT("/participants/:worker/attendance", h.RecordAttendance)

	api.GET("/procedures/diff", h.DiffProcedures)
}

// -- Request bodies --

type createRequest struct {
	OrganizationID string `json:"organizacion_id"`
	Fields         Patch  `json:"campos"`
}

type batchRequest struct {
	IDs []string `json:"ids" validate:"required,min=1,max=100,dive,uuid"`
}

type participantsRequest struct {
	WorkerIDs []string `json:"trabajadores" validate:"required,min=1,max=200,dive,required"`
}

type evaluationRequest struct {
	Score *int `json:"nota" validate:"required"`
}

type attendanceRequest struct {
	Attended bool `json:"asistio"`
	Signed   bool `json:"firmado"`
}

// -- Helpers --

func parseKind(c echo.Context) (safety.Kind, error) {
	kind, err := safety.ParseKind(c.Param("kind"))
	if err != nil {
		return "", apierror.From(err)
	}
	return kind, nil
}

func parseID(c echo.Context, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		return uuid.Nil, apierror.BadRequest("invalid " + name)
	}
	return id, nil
}

// echo does not export a constant for If-Match.
const headerIfMatch = "If-Match"

// expectedVersion reads If-Match. Accepted forms: W/"3", "3" and 3. An absent
// header pins no version.
func expectedVersion(c echo.Context) (int, error) {
	raw := strings.TrimSpace(c.Request().Header.Get(headerIfMatch))
	if raw == "" || raw == "*" {
		return 0, nil
	}
	raw = strings.TrimPrefix(raw, "W/")
	raw = strings.Trim(raw, `"`)
	v, err := strconv.Atoi(raw)
	if err != nil || v < 1 {
		return 0, apierror.BadRequest("invalid If-Match header")
	}
	return v, nil
}

func etag(version int) string {
	return fmt.Sprintf(`W/"%d"`, version)
}

func decodeJSON(c echo.Context, dst any) error {
	if err := json.NewDecoder(c.Request().Body).Decode(dst); err != nil {
		return apierror.BadRequest("invalid request body")
	}
	return nil
}

func (h *Handler) bindValid(c echo.Context, dst any) error {
	if err := decodeJSON(c, dst); err != nil {
		return err
	}
	if err := h.validate.Struct(dst); err != nil {
		return apierror.From(err)
	}
	return nil
}

func fieldNames(fields []safety.Field) []string {
	out := make([]string, len(fields))
	for i, f := range fields {
		out[i] = string(f)
	}
	return out
}

// respond writes an outcome with its ETag and marks clinical disclosures for
// the audit log.
func respond(c echo.Context, status int, out *Outcome) error {
	middleware.MarkClinicalDisclosure(c, fieldNames(out.Disclosed))
	c.Response().Header().Set("ETag", etag(out.Version))
	return c.JSON(status, out)
}

func formUpload(c echo.Context, field string) (Upload, func(), error) {
	fh, err := c.FormFile(field)
	if err != nil {
		return Upload{}, nil, apierror.BadRequest("missing file field " + field)
	}
	f, err := fh.Open()
	if err != nil {
		return Upload{}, nil, apierror.BadRequest("unreadable file field " + field)
	}
	return Upload{FileName: fh.Filename, ContentType: contentType(fh), Content: f}, func() { f.Close() }, nil
}

func contentType(fh *multipart.FileHeader) string {
	ct := fh.Header.Get(echo.HeaderContentType)
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = ct[:i]
	}
	return strings.TrimSpace(ct)
}

// -- Document handlers --

func (h *Handler) List(c echo.Context) error {
	id, err := auth.RequireIdentity(c)
	if err != nil {
		return err
	}
	kind, err := parseKind(c)
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)
	page, err := h.svc.List(c.Request().Context(), id, kind, c.QueryParam("organizacion_id"), pg.Limit, pg.Offset)
	if err != nil {
		return apierror.From(err)
	}
	middleware.MarkClinicalDisclosure(c, fieldNames(page.Disclosed))
	resp := pagination.NewResponse(page.Views, page.Total, pg.Limit, pg.Offset).WithLinks(c.Request().URL)
	return c.JSON(http.StatusOK, resp)
}

func (h *Handler) Create(c echo.Context) error {
	id, err := auth.RequireIdentity(c)
	if err != nil {
		return err
	}
	kind, err := parseKind(c)
	if err != nil {
		return err
	}
	var req createRequest
	if err := decodeJSON(c, &req); err != nil {
		return err
	}
	out, err := h.svc.Create(c.Request().Context(), id, kind, req.OrganizationID, req.Fields)
	if err != nil {
		return apierror.From(err)
	}
	return respond(c, http.StatusCreated, out)
}

func (h *Handler) Get(c echo.Context) error {
	id, err := auth.RequireIdentity(c)
	if err != nil {
		return err
	}
	kind, err := parseKind(c)
	if err != nil {
		return err
	}
	docID, err := parseID(c, "id")
	if err != nil {
		return err
	}
	out, err := h.svc.ReadFiltered(c.Request().Context(), id, kind, docID)
	if err != nil {
		return apierror.From(err)
	}
	return respond(c, http.StatusOK, out)
}

func (h *Handler) Update(c echo.Context) error {
	id, err := auth.RequireIdentity(c)
	if err != nil {
		return err
	}
	kind, err := parseKind(c)
	if err != nil {
		return err
	}
	docID, err := parseID(c, "id")
	if err != nil {
		return err
	}
	version, err := expectedVersion(c)
	if err != nil {
		return err
	}
	var patch Patch
	if err := decodeJSON(c, &patch); err != nil {
		return err
	}
	out, err := h.svc.UpdateFields(c.Request().Context(), id, kind, docID, version, patch)
	if err != nil {
		return apierror.From(err)
	}
	return respond(c, http.StatusOK, out)
}

func (h *Handler) Transitions(c echo.Context) error {
	id, err := auth.RequireIdentity(c)
	if err != nil {
		return err
	}
	kind, err := parseKind(c)
	if err != nil {
		return err
	}
	docID, err := parseID(c, "id")
	if err != nil {
		return err
	}
	decisions, err := h.svc.Transitions(c.Request().Context(), id, kind, docID)
	if err != nil {
		return apierror.From(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"disponibles": decisions,
		"todas":       h.svc.Engine().Transitions(kind),
	})
}

func (h *Handler) Transition(c echo.Context) error {
	id, err := auth.RequireIdentity(c)
	if err != nil {
		return err
	}
	kind, err := parseKind(c)
	if err != nil {
		return err
	}
	docID, err := parseID(c, "id")
	if err != nil {
		return err
	}
	version, err := expectedVersion(c)
	if err != nil {
		return err
	}
	out, err := h.svc.EvaluateTransition(c.Request().Context(), id, kind, docID, c.Param("name"), version)
	if err != nil {
		return apierror.From(err)
	}
	return respond(c, http.StatusOK, out)
}

func (h *Handler) Batch(c echo.Context) error {
	id, err := auth.RequireIdentity(c)
	if err != nil {
		return err
	}
	kind, err := parseKind(c)
	if err != nil {
		return err
	}
	var req batchRequest
	if err := h.bindValid(c, &req); err != nil {
		return err
	}
	ids := make([]uuid.UUID, len(req.IDs))
	for i, s := range req.IDs {
		ids[i] = uuid.MustParse(s)
	}
	return c.JSON(http.StatusOK, h.svc.EvaluateBatch(c.Request().Context(), id, kind, ids, c.Param("name")))
}

func (h *Handler) Sign(c echo.Context) error {
	id, err := auth.RequireIdentity(c)
	if err != nil {
		return err
	}
	kind, err := parseKind(c)
	if err != nil {
		return err
	}
	docID, err := parseID(c, "id")
	if err != nil {
		return err
	}
	role, err := safety.ParseSignatureRole(c.Param("role"))
	if err != nil {
		return apierror.From(err)
	}
	image, closeFn, err := formUpload(c, "imagen")
	if err != nil {
		return err
	}
	defer closeFn()
	out, err := h.svc.Sign(c.Request().Context(), id, kind, docID, role, image)
	if err != nil {
		return apierror.From(err)
	}
	return respond(c, http.StatusOK, out)
}

// -- EMO handlers --

func (h *Handler) AttachResult(c echo.Context) error {
	id, err := auth.RequireIdentity(c)
	if err != nil {
		return err
	}
	examID, err := parseID(c, "id")
	if err != nil {
		return err
	}
	version, err := expectedVersion(c)
	if err != nil {
		return err
	}
	file, closeFn, err := formUpload(c, "archivo")
	if err != nil {
		return err
	}
	defer closeFn()
	out, err := h.svc.AttachResult(c.Request().Context(), id, examID, version, file)
	if err != nil {
		return apierror.From(err)
	}
	return respond(c, http.StatusOK, out)
}

// Sweep runs the validity sweep. An optional "fecha" query parameter
// (RFC 3339) replaces the current time.
func (h *Handler) Sweep(c echo.Context) error {
	id, err := auth.RequireIdentity(c)
	if err != nil {
		return err
	}
	now := h.svc.now()
	if raw := c.QueryParam("fecha"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return apierror.BadRequest("invalid fecha")
		}
		now = t
	}
	res, err := h.svc.SweepExamValidity(c.Request().Context(), id, now)
	if err != nil {
		return apierror.From(err)
	}
	return c.JSON(http.StatusOK, res)
}

// -- Training handlers --

func (h *Handler) AssignParticipants(c echo.Context) error {
	return h.participants(c, h.svc.AssignParticipants)
}

func (h *Handler) RemoveParticipants(c echo.Context) error {
	return h.participants(c, h.svc.RemoveParticipants)
}

type participantsFunc func(ctx context.Context, caller auth.Identity, id uuid.UUID, workerIDs []string) (*safety.BatchResult, error)

func (h *Handler) participants(c echo.Context, fn participantsFunc) error {
	id, err := auth.RequireIdentity(c)
	if err != nil {
		return err
	}
	sessionID, err := parseID(c, "id")
	if err != nil {
		return err
	}
	var req participantsRequest
	if err := h.bindValid(c, &req); err != nil {
		return err
	}
	res, err := fn(c.Request().Context(), id, sessionID, req.WorkerIDs)
	if err != nil {
		return apierror.From(err)
	}
	return c.JSON(http.StatusOK, res)
}

func (h *Handler) RecordEvaluation(c echo.Context) error {
	id, err := auth.RequireIdentity(c)
	if err != nil {
		return err
	}
	sessionID, err := parseID(c, "id")
	if err != nil {
		return err
	}
	version, err := expectedVersion(c)
	if err != nil {
		return err
	}
	var req evaluationRequest
	if err := h.bindValid(c, &req); err != nil {
		return err
	}
	out, err := h.svc.RecordEvaluation(c.Request().Context(), id, sessionID, c.Param("worker"), *req.Score, version)
	if err != nil {
		return apierror.From(err)
	}
	return respond(c, http.StatusOK, out)
}

func (h *Handler) RecordAttendance(c echo.Context) error {
	id, err := auth.RequireIdentity(c)
	if err != nil {
		return err
	}
	sessionID, err := parseID(c, "id")
	if err != nil {
		return err
	}
	version, err := expectedVersion(c)
	if err != nil {
		return err
	}
	var req attendanceRequest
	if err := decodeJSON(c, &req); err != nil {
		return err
	}
	out, err := h.svc.RecordAttendance(c.Request().Context(), id, sessionID, c.Param("worker"), req.Attended, req.Signed, version)
	if err != nil {
		return apierror.From(err)
	}
	return respond(c, http.StatusOK, out)
}

// -- PETS handlers --

func (h *Handler) DiffProcedures(c echo.Context) error {
	id, err := auth.RequireIdentity(c)
	if err != nil {
		return err
	}
	from, err := uuid.Parse(c.QueryParam("desde"))
	if err != nil {
		return apierror.BadRequest("invalid desde")
	}
	to, err := uuid.Parse(c.QueryParam("hacia"))
	if err != nil {
		return apierror.BadRequest("invalid hacia")
	}
	diff, err := h.svc.DiffProcedures(c.Request().Context(), id, from, to)
	if err != nil {
		return apierror.From(err)
	}
	return c.JSON(http.StatusOK, diff)
}
