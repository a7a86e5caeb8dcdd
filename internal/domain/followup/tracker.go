// Package followup tracks interconsulta and vigilancia items raised from a
// medical exam. Items live beside the exam and never change its state.
package followup

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/sst/sst/internal/domain/access"
	"github.com/sst/sst/internal/domain/safety"
	"github.com/sst/sst/internal/platform/auth"
)

// Store is the part of the document repository the tracker needs.
type Store interface {
	Load(ctx context.Context, kind safety.Kind, id uuid.UUID) (*safety.Document, error)
	ListFollowUps(ctx context.Context, examID uuid.UUID) ([]*safety.FollowUp, error)
	SaveFollowUp(ctx context.Context, item *safety.FollowUp) error
	DeleteFollowUp(ctx context.Context, examID, itemID uuid.UUID) error
}

// NewItem is a follow-up item as submitted by a health professional.
type NewItem struct {
	Kind        safety.FollowUpKind `json:"tipo"`
	Code        string              `json:"codigo_cie10"`
	Description string              `json:"diagnostico"`
	Specialty   string              `json:"especialidad"`
	Deadline    *time.Time          `json:"fecha_limite,omitempty"`
}

// Item is the caller's view of a follow-up. Code and description are omitted
// for callers without clinical access.
type Item struct {
	ID          uuid.UUID             `json:"id"`
	ExamID      uuid.UUID             `json:"emo_id"`
	Kind        safety.FollowUpKind   `json:"tipo"`
	Code        string                `json:"codigo_cie10,omitempty"`
	Description string                `json:"diagnostico,omitempty"`
	Specialty   string                `json:"especialidad"`
	Deadline    *time.Time            `json:"fecha_limite,omitempty"`
	Status      safety.FollowUpStatus `json:"estado"`
	CreatedBy   string                `json:"creado_por"`
	CreatedAt   time.Time             `json:"creado_en"`
	ResolvedAt  *time.Time            `json:"resuelto_en,omitempty"`
}

func itemView(f *safety.FollowUp, clinical bool) Item {
	it := Item{
		ID:         f.ID,
		ExamID:     f.ExamID,
		Kind:       f.Kind,
		Specialty:  f.Specialty,
		Deadline:   f.Deadline,
		Status:     f.Status,
		CreatedBy:  f.CreatedBy,
		CreatedAt:  f.CreatedAt,
		ResolvedAt: f.ResolvedAt,
	}
	if clinical {
		it.Code = f.Code
		it.Description = f.Description
	}
	return it
}

// Tracker manages follow-up items.
type Tracker struct {
	store    Store
	validate *validator.Validate
	now      func() time.Time
}

func NewTracker(store Store) *Tracker {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	mustRegisterValidation(v, "cie10", func(fl validator.FieldLevel) bool {
		return safety.ValidCIE10(fl.Field().String())
	})
	return &Tracker{store: store, validate: v, now: time.Now}
}

// mustRegisterValidation panics when fn cannot be registered under tag, so a
// rule never silently goes missing.
func mustRegisterValidation(v *validator.Validate, tag string, fn validator.Func) {
	if err := v.RegisterValidation(tag, fn); err != nil {
		panic(fmt.Sprintf("register %q validation: %v", tag, err))
	}
}

func (t *Tracker) check(op string, item *safety.FollowUp) error {
	err := t.validate.Struct(item)
	if err == nil {
		return nil
	}
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return safety.Validation(op, nil, "%v", err)
	}
	fields := make([]string, 0, len(ve))
	for _, fe := range ve {
		fields = append(fields, fe.Field())
	}
	return safety.Validation(op, fields, "invalid follow-up: %s", strings.Join(fields, ", "))
}

// exam loads the exam for a follow-up write. Cancelled and expired exams take
// no new follow-up activity.
func (t *Tracker) exam(ctx context.Context, op string, caller auth.Identity, roles access.Roles, examID uuid.UUID, writing bool) (*safety.Document, error) {
	doc, err := t.store.Load(ctx, safety.KindMedicalExam, examID)
	if err != nil {
		return nil, safety.RepositoryError(op, err)
	}
	if err := access.AssertOrganization(op, roles, caller.OrganizationID, doc.OrganizationID); err != nil {
		return nil, err
	}
	if writing && (doc.State == safety.ExamCancelled || doc.State == safety.ExamExpired) {
		return nil, safety.InvalidTransition(op, safety.GuardStateNotEditable,
			"emo in state %q does not accept follow-ups", doc.State)
	}
	return doc, nil
}

func (t *Tracker) writer(op string, caller auth.Identity) (access.Roles, error) {
	roles := access.ParseRoles(caller.Roles)
	if !roles.Health() {
		return nil, safety.AccessDenied(op)
	}
	if err := access.AssertCapability(op, roles, access.CapManageFollowUp); err != nil {
		return nil, err
	}
	return roles, nil
}

// Add records a new pending follow-up on an exam.
func (t *Tracker) Add(ctx context.Context, caller auth.Identity, examID uuid.UUID, in NewItem) (*Item, error) {
	const op = "add follow-up"
	roles, err := t.writer(op, caller)
	if err != nil {
		return nil, err
	}
	if _, err := t.exam(ctx, op, caller, roles, examID, true); err != nil {
		return nil, err
	}

	item := &safety.FollowUp{
		ID:          uuid.New(),
		ExamID:      examID,
		Kind:        in.Kind,
		Code:        strings.ToUpper(strings.TrimSpace(in.Code)),
		Description: strings.TrimSpace(in.Description),
		Specialty:   strings.TrimSpace(in.Specialty),
		Deadline:    in.Deadline,
		Status:      safety.FollowUpPending,
		CreatedBy:   caller.UserID,
		CreatedAt:   t.now().UTC(),
	}
	if err := t.check(op, item); err != nil {
		return nil, err
	}
	if err := t.store.SaveFollowUp(ctx, item); err != nil {
		return nil, safety.RepositoryError(op, err)
	}
	v := itemView(item, true)
	return &v, nil
}

// Remove deletes a follow-up item.
func (t *Tracker) Remove(ctx context.Context, caller auth.Identity, examID, itemID uuid.UUID) error {
	const op = "remove follow-up"
	roles, err := t.writer(op, caller)
	if err != nil {
		return err
	}
	if _, err := t.exam(ctx, op, caller, roles, examID, true); err != nil {
		return err
	}
	if err := t.store.DeleteFollowUp(ctx, examID, itemID); err != nil {
		return safety.RepositoryError(op, err)
	}
	return nil
}

// Resolve marks a follow-up as resolved. Resolving twice keeps the first
// resolution time.
func (t *Tracker) Resolve(ctx context.Context, caller auth.Identity, examID, itemID uuid.UUID) (*Item, error) {
	const op = "resolve follow-up"
	roles, err := t.writer(op, caller)
	if err != nil {
		return nil, err
	}
	if _, err := t.exam(ctx, op, caller, roles, examID, true); err != nil {
		return nil, err
	}
	items, err := t.store.ListFollowUps(ctx, examID)
	if err != nil {
		return nil, safety.RepositoryError(op, err)
	}
	for _, item := range items {
		if item.ID != itemID {
			continue
		}
		if item.Status != safety.FollowUpResolved {
			now := t.now().UTC()
			item.Status = safety.FollowUpResolved
			item.ResolvedAt = &now
			if err := t.store.SaveFollowUp(ctx, item); err != nil {
				return nil, safety.RepositoryError(op, err)
			}
		}
		v := itemView(item, true)
		return &v, nil
	}
	return nil, safety.NotFound(op, "follow-up "+itemID.String())
}

// List returns the follow-ups of an exam, redacted for the caller.
func (t *Tracker) List(ctx context.Context, caller auth.Identity, examID uuid.UUID) ([]Item, error) {
	const op = "list follow-ups"
	roles := access.ParseRoles(caller.Roles)
	if err := access.AssertCapability(op, roles, access.CapReadDocuments); err != nil {
		return nil, err
	}
	if _, err := t.exam(ctx, op, caller, roles, examID, false); err != nil {
		return nil, err
	}
	items, err := t.store.ListFollowUps(ctx, examID)
	if err != nil {
		return nil, safety.RepositoryError(op, err)
	}
	clinical := access.Derive(roles).Has(access.CapViewClinical)
	out := make([]Item, 0, len(items))
	for _, item := range items {
		out = append(out, itemView(item, clinical))
	}
	return out, nil
}
