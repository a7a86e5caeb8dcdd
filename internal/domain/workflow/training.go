package workflow

import (
	"context"

	"github.com/google/uuid"

	"github.com/sst/sst/internal/domain/access"
	"github.com/sst/sst/internal/domain/safety"
	"github.com/sst/sst/internal/platform/auth"
)

// editSession loads a training session, lets mutate change a copy and saves
// it. Closed sessions reject every participant change.
func (s *Service) editSession(ctx context.Context, op string, caller auth.Identity, roles access.Roles, id uuid.UUID, expectedVersion int, mutate func(t *safety.TrainingSession) error) (*safety.Document, error) {
	doc, err := s.load(ctx, op, roles, caller, safety.KindTrainingSession, id)
	if err != nil {
		return nil, err
	}
	if doc.Kind.Terminal(doc.State) {
		return nil, safety.InvalidTransition(op, safety.GuardStateNotEditable,
			"training session in state %q does not accept changes", doc.State)
	}
	if err := checkVersion(op, doc, expectedVersion); err != nil {
		return nil, err
	}
	next := doc.Clone()
	if err := mutate(next.TrainingSession); err != nil {
		return nil, err
	}
	next.UpdatedAt = s.now().UTC()
	if err := s.save(ctx, op, next, doc.Version); err != nil {
		return nil, err
	}
	return next, nil
}

// AssignParticipants adds workers to a session, one atomic write per worker.
func (s *Service) AssignParticipants(ctx context.Context, caller auth.Identity, id uuid.UUID, workerIDs []string) (*safety.BatchResult, error) {
	const op = "assign participants"
	roles := access.ParseRoles(caller.Roles)
	if err := access.AssertCapability(op, roles, access.CapScheduleTraining); err != nil {
		return nil, err
	}
	if _, err := s.load(ctx, op, roles, caller, safety.KindTrainingSession, id); err != nil {
		return nil, err
	}

	res := &safety.BatchResult{Items: []safety.BatchItem{}}
	for _, w := range workerIDs {
		worker := w
		_, err := s.editSession(ctx, op, caller, roles, id, 0, func(t *safety.TrainingSession) error {
			if worker == "" {
				return safety.Validation(op, []string{string(safety.FieldWorkerID)}, "worker id is required")
			}
			if t.Participant(worker) >= 0 {
				return safety.Validation(op, []string{string(safety.FieldWorkerID)}, "worker %s is already assigned", worker)
			}
			t.Participants = append(t.Participants, safety.Participant{WorkerID: worker})
			return nil
		})
		res.Record(worker, err)
	}
	return res, nil
}

// RemoveParticipants removes workers that have not been evaluated yet.
func (s *Service) RemoveParticipants(ctx context.Context, caller auth.Identity, id uuid.UUID, workerIDs []string) (*safety.BatchResult, error) {
	const op = "remove participants"
	roles := access.ParseRoles(caller.Roles)
	if err := access.AssertCapability(op, roles, access.CapScheduleTraining); err != nil {
		return nil, err
	}
	if _, err := s.load(ctx, op, roles, caller, safety.KindTrainingSession, id); err != nil {
		return nil, err
	}

	res := &safety.BatchResult{Items: []safety.BatchItem{}}
	for _, w := range workerIDs {
		worker := w
		_, err := s.editSession(ctx, op, caller, roles, id, 0, func(t *safety.TrainingSession) error {
			i := t.Participant(worker)
			if i < 0 {
				return safety.NotFound(op, "participant "+worker)
			}
			if t.Participants[i].Evaluated {
				return safety.Validation(op, []string{string(safety.FieldParticipants)},
					"participant %s has already been evaluated", worker)
			}
			t.Participants = append(t.Participants[:i], t.Participants[i+1:]...)
			return nil
		})
		res.Record(worker, err)
	}
	return res, nil
}

// RecordEvaluation stores a participant's score out of 20. The participant
// is approved at 11 or above.
func (s *Service) RecordEvaluation(ctx context.Context, caller auth.Identity, id uuid.UUID, workerID string, score int, expectedVersion int) (*Outcome, error) {
	const op = "record evaluation"
	roles := access.ParseRoles(caller.Roles)
	if err := access.AssertCapability(op, roles, access.CapEvaluateTraining); err != nil {
		return nil, err
	}
	if score < 0 || score > safety.MaxScore {
		return nil, safety.Validation(op, []string{"nota"}, "score must be within [0,%d]", safety.MaxScore)
	}
	doc, err := s.editSession(ctx, op, caller, roles, id, expectedVersion, func(t *safety.TrainingSession) error {
		i := t.Participant(workerID)
		if i < 0 {
			return safety.NotFound(op, "participant "+workerID)
		}
		v := score
		p := &t.Participants[i]
		p.Score = &v
		p.Approved = score >= safety.ApprovalThreshold
		p.Evaluated = true
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.outcome(ctx, doc, roles)
}

// RecordAttendance marks whether a participant attended and signed the
// attendance sheet.
func (s *Service) RecordAttendance(ctx context.Context, caller auth.Identity, id uuid.UUID, workerID string, attended, signed bool, expectedVersion int) (*Outcome, error) {
	const op = "record attendance"
	roles := access.ParseRoles(caller.Roles)
	if err := access.AssertCapability(op, roles, access.CapEvaluateTraining); err != nil {
		return nil, err
	}
	if signed && !attended {
		return nil, safety.Validation(op, []string{"firmado"}, "an absent participant cannot sign the attendance sheet")
	}
	doc, err := s.editSession(ctx, op, caller, roles, id, expectedVersion, func(t *safety.TrainingSession) error {
		i := t.Participant(workerID)
		if i < 0 {
			return safety.NotFound(op, "participant "+workerID)
		}
		t.Participants[i].Attended = attended
		t.Participants[i].Signed = signed
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.outcome(ctx, doc, roles)
}
