package workflow

import (
	"context"
	"time"

	"github.com/sst/sst/internal/domain/access"
	"github.com/sst/sst/internal/domain/safety"
	"github.com/sst/sst/internal/platform/auth"
)

// dueTransition picks the validity transition an exam is due for at now.
func (e *Engine) dueTransition(doc *safety.Document, now time.Time) (string, bool) {
	until := doc.MedicalExam.ValidUntil
	if until == nil {
		return "", false
	}
	switch doc.State {
	case safety.ExamDelivered, safety.ExamExpiringSoon:
	default:
		return "", false
	}
	if !now.Before(*until) {
		return TransitionExpire, true
	}
	if doc.State == safety.ExamDelivered && !now.Add(e.opts.ExpiryWarning).Before(*until) {
		return TransitionMarkExpiring, true
	}
	return "", false
}

// SweepExamValidity fires marcar_por_vencer and vencer on every due exam of
// the caller's organization. Exams that are not due are skipped and do not
// appear in the result.
func (s *Service) SweepExamValidity(ctx context.Context, caller auth.Identity, now time.Time) (*safety.BatchResult, error) {
	const op = "sweep emo validity"
	ctx, span := s.startSpan(ctx, "workflow.SweepExamValidity", safety.KindMedicalExam)
	defer span.End()

	roles := access.ParseRoles(caller.Roles)
	if err := access.AssertCapability(op, roles, access.CapManageExam); err != nil {
		return nil, err
	}
	if caller.OrganizationID == "" {
		return nil, safety.AccessDenied(op)
	}
	docs, _, err := s.repo.List(ctx, safety.KindMedicalExam, caller.OrganizationID, 0, 0)
	if err != nil {
		return nil, safety.RepositoryError(op, err)
	}

	res := &safety.BatchResult{Items: []safety.BatchItem{}}
	for _, doc := range docs {
		name, due := s.engine.dueTransition(doc, now)
		if !due {
			continue
		}
		var noop bool
		_, err := s.fire(ctx, caller, roles, doc, name, 0, now, &noop)
		transitionsTotal.WithLabelValues(string(doc.Kind), name, outcome(err, noop)).Inc()
		res.Record(doc.ID.String(), err)
	}
	return res, nil
}
