package middleware

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/sst/sst/internal/platform/auth"
)

const clinicalFieldsKey = "clinical_fields"

// AuditEntry represents an audit log entry produced by the middleware.
// It captures who touched which safety document, when and from where.
type AuditEntry struct {
	UserID         string
	Roles          []string
	OrganizationID string
	DocumentKind   string
	DocumentID     string
	Action         string // read, create, update, delete
	IPAddress      string
	UserAgent      string
	Path           string
	Method         string
	Timestamp      time.Time
	RequestID      string
	StatusCode     int
	// ClinicalFields lists the EMO fields disclosed in the response.
	ClinicalFields []string
}

// Clinical reports whether the response disclosed clinical data.
func (e AuditEntry) Clinical() bool { return len(e.ClinicalFields) > 0 }

// AuditRecorder persists audit entries.
type AuditRecorder interface {
	RecordAccess(entry AuditEntry) error
}

// AuditRecorderFunc is a function adapter for AuditRecorder.
type AuditRecorderFunc func(entry AuditEntry) error

func (f AuditRecorderFunc) RecordAccess(entry AuditEntry) error {
	return f(entry)
}

// MarkClinicalDisclosure records on the request that the handler returned the
// named clinical fields. Repeated calls accumulate.
func MarkClinicalDisclosure(c echo.Context, fields []string) {
	if len(fields) == 0 {
		return
	}
	prev, _ := c.Get(clinicalFieldsKey).([]string)
	seen := make(map[string]bool, len(prev))
	for _, f := range prev {
		seen[f] = true
	}
	for _, f := range fields {
		if !seen[f] {
			seen[f] = true
			prev = append(prev, f)
		}
	}
	c.Set(clinicalFieldsKey, prev)
}

// Audit returns Echo middleware that logs every /api/v1/ request after the
// handler ran. Requests that disclosed clinical fields are logged as
// clinical_access; the rest as document_access.
func Audit(logger zerolog.Logger, recorders ...AuditRecorder) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			path := c.Request().URL.Path
			if !isAuditablePath(path) {
				return next(c)
			}

			err := next(c)

			req := c.Request()
			entry := AuditEntry{
				Timestamp:  time.Now().UTC(),
				Path:       path,
				Method:     req.Method,
				IPAddress:  c.RealIP(),
				UserAgent:  req.UserAgent(),
				StatusCode: c.Response().Status,
				Action:     httpMethodToAction(req.Method),
			}
			var he *echo.HTTPError
			if errors.As(err, &he) {
				entry.StatusCode = he.Code
			}
			if id, ok := auth.IdentityFromContext(req.Context()); ok {
				entry.UserID = id.UserID
				entry.Roles = id.Roles
				entry.OrganizationID = id.OrganizationID
			}
			if rid, ok := c.Get("request_id").(string); ok {
				entry.RequestID = rid
			}
			entry.DocumentKind, entry.DocumentID = extractDocument(path)
			if fields, ok := c.Get(clinicalFieldsKey).([]string); ok {
				entry.ClinicalFields = fields
			}

			for _, r := range recorders {
				if r == nil {
					continue
				}
				if recErr := r.RecordAccess(entry); recErr != nil {
					logger.Error().Err(recErr).
						Str("request_id", entry.RequestID).
						Msg("failed to record audit entry")
				}
			}

			kind, msg := "document_access", "document_access"
			evt := logger.Info()
			if entry.Clinical() {
				kind, msg = "clinical_access", "clinical_access"
				evt = logger.Warn()
			}
			evt = evt.
				Str("type", kind).
				Str("request_id", entry.RequestID).
				Str("user_id", entry.UserID).
				Strs("roles", entry.Roles).
				Str("organizacion_id", entry.OrganizationID).
				Str("document_kind", entry.DocumentKind).
				Str("document_id", entry.DocumentID).
				Str("action", entry.Action).
				Str("method", entry.Method).
				Str("path", entry.Path).
				Str("remote_ip", entry.IPAddress).
				Int("status", entry.StatusCode)
			if entry.Clinical() {
				evt = evt.Strs("clinical_fields", entry.ClinicalFields)
			}
			evt.Msg(msg)

			return err
		}
	}
}

// isAuditablePath returns true if the path is under /api/v1/.
func isAuditablePath(path string) bool {
	return strings.HasPrefix(path, "/api/v1/") && !strings.HasPrefix(path, "/api/v1/blobs/")
}

// httpMethodToAction maps HTTP methods to audit action codes.
func httpMethodToAction(method string) string {
	switch method {
	case http.MethodPost:
		return "create"
	case http.MethodPut, http.MethodPatch:
		return "update"
	case http.MethodDelete:
		return "delete"
	default:
		return "read"
	}
}

// shortcut routes that always address one kind of document.
var kindRoutes = map[string]string{
	"exams":      "emo",
	"trainings":  "capacitacion",
	"procedures": "pets",
}

// extractDocument parses the document kind and id from an API path.
//
// Supported patterns:
//   - /api/v1/documents/iperc              -> iperc, ""
//   - /api/v1/documents/emo/<uuid>/...     -> emo, <uuid>
//   - /api/v1/exams/<uuid>/result          -> emo, <uuid>
//   - /api/v1/exams/<uuid>/followups       -> emo, <uuid>
func extractDocument(path string) (kind, id string) {
	segments := strings.Split(strings.TrimPrefix(path, "/api/v1/"), "/")
	if len(segments) == 0 || segments[0] == "" {
		return "unknown", ""
	}
	rest := segments[1:]
	switch head := segments[0]; {
	case head == "documents":
		if len(rest) == 0 || rest[0] == "" {
			return "unknown", ""
		}
		kind, rest = rest[0], rest[1:]
	case kindRoutes[head] != "":
		kind = kindRoutes[head]
	default:
		kind = head
	}
	if len(rest) > 0 && isUUIDLike(rest[0]) {
		id = rest[0]
	}
	return kind, id
}

func isUUIDLike(s string) bool {
	if s == "" {
		return false
	}
	_, err := uuid.Parse(s)
	return err == nil
}
