package followup

import (
	"context"
	"fmt"

	"github.com/sst/sst/internal/domain/safety"
	"github.com/sst/sst/internal/domain/workflow"
)

// AdvisoryPendingReferral is raised when a final aptitude is recorded while a
// referral is still open.
const AdvisoryPendingReferral = "pending_referral"

var _ workflow.Advisor = (*Tracker)(nil)

// Advise flags an exam whose aptitude becomes final while it still has a
// pending interconsulta. The update itself is not blocked.
func (t *Tracker) Advise(ctx context.Context, before, after *safety.Document) ([]workflow.Advisory, error) {
	if after.Kind != safety.KindMedicalExam || after.MedicalExam == nil {
		return nil, nil
	}
	next := after.MedicalExam.Aptitude
	if !next.Final() || (before.MedicalExam != nil && before.MedicalExam.Aptitude == next) {
		return nil, nil
	}
	items, err := t.store.ListFollowUps(ctx, after.ID)
	if err != nil {
		return nil, safety.RepositoryError("advise follow-ups", err)
	}
	pending := 0
	for _, item := range items {
		if item.PendingReferral() {
			pending++
		}
	}
	if pending == 0 {
		return nil, nil
	}
	return []workflow.Advisory{{
		Code:        AdvisoryPendingReferral,
		Message:     fmt.Sprintf("%d pending interconsulta(s); aptitude %q may be premature", pending, next),
		Field:       safety.FieldAptitude,
		Recommended: string(safety.AptitudePending),
	}}, nil
}
