package safety

import (
	"regexp"
	"time"

	"github.com/google/uuid"
)

// FollowUpKind distinguishes a specialist referral from a surveillance program.
type FollowUpKind string

const (
	FollowUpReferral     FollowUpKind = "interconsulta"
	FollowUpSurveillance FollowUpKind = "vigilancia"
)

// FollowUpStatus is the resolution status of a follow-up item.
type FollowUpStatus string

const (
	FollowUpPending  FollowUpStatus = "pendiente"
	FollowUpResolved FollowUpStatus = "resuelto"
)

// FollowUp is an interconsulta or vigilancia item attached to a medical exam.
type FollowUp struct {
	ID          uuid.UUID      `json:"id"`
	ExamID      uuid.UUID      `json:"emo_id"`
	Kind        FollowUpKind   `json:"tipo" validate:"required,oneof=interconsulta vigilancia"`
	Code        string         `json:"codigo_cie10" validate:"required,cie10"`
	Description string         `json:"diagnostico" validate:"max=500"`
	Specialty   string         `json:"especialidad" validate:"required,max=120"`
	Deadline    *time.Time     `json:"fecha_limite,omitempty"`
	Status      FollowUpStatus `json:"estado" validate:"required,oneof=pendiente resuelto"`
	CreatedBy   string         `json:"creado_por"`
	CreatedAt   time.Time      `json:"creado_en"`
	ResolvedAt  *time.Time     `json:"resuelto_en,omitempty"`
}

// PendingReferral reports whether the item is an unresolved interconsulta.
func (f *FollowUp) PendingReferral() bool {
	return f.Kind == FollowUpReferral && f.Status == FollowUpPending
}

var cie10Pattern = regexp.MustCompile(`^[A-Z][0-9]{2}(\.[0-9]{1,2})?$`)

// ValidCIE10 reports whether code has the shape of a CIE-10 code, e.g. J45 or J45.0.
func ValidCIE10(code string) bool { return cie10Pattern.MatchString(code) }
