package workflow

import (
	"context"
	"time"

	"github.com/sst/sst/internal/domain/access"
	"github.com/sst/sst/internal/domain/risk"
	"github.com/sst/sst/internal/domain/safety"
	"github.com/sst/sst/internal/platform/blobstore"
)

// RiskLineView is a stored risk line with its derived scoring. Derived values
// are absent when the line does not score yet.
type RiskLineView struct {
	safety.RiskLine
	*risk.Result
	Label          string       `json:"etiqueta,omitempty"`
	RequiresAction bool         `json:"requiere_accion,omitempty"`
	ResidualScore  *risk.Result `json:"residual_calculado,omitempty"`
}

// AttachmentView replaces a blob reference for callers allowed to see it.
type AttachmentView struct {
	Ref       string    `json:"ref"`
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expira_en"`
}

func headerView(doc *safety.Document) access.View {
	sigs := doc.Signatures
	if sigs == nil {
		sigs = []safety.Signature{}
	}
	return access.View{
		safety.FieldID:           doc.ID,
		safety.FieldKind:         doc.Kind,
		safety.FieldOrganization: doc.OrganizationID,
		safety.FieldState:        doc.State,
		safety.FieldCreatedBy:    doc.CreatedBy,
		safety.FieldCreatedAt:    doc.CreatedAt,
		safety.FieldUpdatedAt:    doc.UpdatedAt,
		safety.FieldVersion:      doc.Version,
		safety.FieldSignatures:   sigs,
	}
}

func riskLineViews(scorer *risk.Engine, lines []safety.RiskLine) []RiskLineView {
	out := make([]RiskLineView, 0, len(lines))
	for _, line := range lines {
		v := RiskLineView{RiskLine: line}
		if score, err := scorer.ScoreLine(line); err == nil {
			r := score.Result
			v.Result = &r
			v.Label = r.Tier.Label()
			v.RequiresAction = r.Tier.RequiresAction()
			v.ResidualScore = score.Residual
		}
		out = append(out, v)
	}
	return out
}

// buildView flattens doc into a view keyed by field, with derived risk values
// recomputed from the stored inputs. Nothing is redacted yet.
func buildView(scorer *risk.Engine, doc *safety.Document) access.View {
	v := headerView(doc)
	switch doc.Kind {
	case safety.KindRiskAssessment:
		b := doc.RiskAssessment
		v[safety.FieldTitle] = b.Title
		v[safety.FieldArea] = b.Area
		v[safety.FieldProcess] = b.Process
		v[safety.FieldDate] = b.Date
		v[safety.FieldRiskLines] = riskLineViews(scorer, b.Lines)
	case safety.KindJobSafetyAnalysis:
		b := doc.JobSafetyAnalysis
		v[safety.FieldTitle] = b.Title
		v[safety.FieldTask] = b.Task
		v[safety.FieldArea] = b.Area
		v[safety.FieldDate] = b.Date
		v[safety.FieldWorkers] = nonNil(b.Workers)
		v[safety.FieldSteps] = b.Steps
	case safety.KindSafeWorkProcedure:
		b := doc.SafeWorkProcedure
		v[safety.FieldCode] = b.Code
		v[safety.FieldTitle] = b.Title
		v[safety.FieldObjective] = b.Objective
		v[safety.FieldScope] = b.Scope
		v[safety.FieldBody] = b.Body
		v[safety.FieldResponsible] = nonNil(b.Responsible)
		v[safety.FieldDocumentVersion] = b.DocumentVersion
		v[safety.FieldPreviousID] = b.PreviousID
		v[safety.FieldFrozen] = b.Frozen
	case safety.KindTrainingSession:
		b := doc.TrainingSession
		v[safety.FieldTopic] = b.Topic
		v[safety.FieldTrainer] = b.Trainer
		v[safety.FieldScheduledFor] = b.ScheduledFor
		v[safety.FieldDuration] = b.DurationHours
		participants := b.Participants
		if participants == nil {
			participants = []safety.Participant{}
		}
		v[safety.FieldParticipants] = participants
		v[safety.FieldReopenCount] = b.ReopenCount
	case safety.KindMedicalExam:
		b := doc.MedicalExam
		v[safety.FieldWorkerID] = b.WorkerID
		v[safety.FieldExamType] = b.ExamType
		v[safety.FieldScheduledFor] = b.ScheduledFor
		v[safety.FieldMedicalCenter] = b.MedicalCenter
		v[safety.FieldAptitude] = b.Aptitude
		diagnoses := b.Diagnoses
		if diagnoses == nil {
			diagnoses = []safety.Diagnosis{}
		}
		v[safety.FieldDiagnoses] = diagnoses
		v[safety.FieldRestrictions] = nonNil(b.Restrictions)
		v[safety.FieldObservations] = b.Observations
		v[safety.FieldResultAttachment] = nil
		v[safety.FieldValidUntil] = b.ValidUntil
	}
	return v
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// render builds the caller's view of doc: derived fields, confidentiality
// filter, then signed URLs for visible attachments. It reports which clinical
// fields were disclosed.
func (s *Service) render(ctx context.Context, doc *safety.Document, roles access.Roles) (access.View, []safety.Field, error) {
	view := access.Filter(doc.Kind, buildView(s.engine.risk, doc), roles)

	if _, ok := view[safety.FieldResultAttachment]; ok && doc.MedicalExam.ResultRef != "" {
		ttl := s.urlTTL
		u, err := s.blobs.SignedURL(ctx, blobstore.Ref(doc.MedicalExam.ResultRef), ttl)
		if err != nil {
			return nil, nil, safety.RepositoryError("sign result attachment", err)
		}
		view[safety.FieldResultAttachment] = AttachmentView{
			Ref:       doc.MedicalExam.ResultRef,
			URL:       u,
			ExpiresAt: s.now().Add(ttl),
		}
	}

	var disclosed []safety.Field
	for _, f := range doc.Kind.Fields() {
		if _, ok := view[f]; ok && access.IsClinical(doc.Kind, f) {
			disclosed = append(disclosed, f)
		}
	}
	return view, disclosed, nil
}
