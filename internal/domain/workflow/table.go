package workflow

import (
	"fmt"
	"strings"
	"time"

	"github.com/sst/sst/internal/domain/access"
	"github.com/sst/sst/internal/domain/risk"
	"github.com/sst/sst/internal/domain/safety"
)

// Transition names.
const (
	TransitionComplete       = "completar"
	TransitionApprove        = "aprobar"
	TransitionReject         = "rechazar"
	TransitionSubmitReview   = "enviar_revision"
	TransitionStartReview    = "iniciar_revision"
	TransitionPublish        = "publicar"
	TransitionNewVersion     = "nueva_version"
	TransitionSchedule       = "programar"
	TransitionReopen         = "reabrir"
	TransitionClose          = "cerrar"
	TransitionUploadEvidence = "cargar_evidencia"
	TransitionDeliver        = "entregar"
	TransitionReschedule     = "reprogramar"
	TransitionCancel         = "cancelar"
	TransitionMarkExpiring   = "marcar_por_vencer"
	TransitionExpire         = "vencer"
)

// guardEnv is what a guard may inspect. Guards never mutate the document.
type guardEnv struct {
	doc     *safety.Document
	risk    *risk.Engine
	now     time.Time
	options Options
}

// guard returns a *safety.Error with CodeInvalidTransition on failure.
type guard func(op string, env guardEnv) error

// Transition is one row of a kind's transition table.
type Transition struct {
	Name       string
	From       []safety.State
	To         safety.State
	Capability access.Capability
	// Idempotent transitions re-issued at their target state succeed without a write.
	Idempotent bool

	guards []guard
	effect func(doc *safety.Document)
}

func (t Transition) from(s safety.State) bool {
	for _, f := range t.From {
		if f == s {
			return true
		}
	}
	return false
}

func requireSignatures(roles ...safety.SignatureRole) guard {
	return func(op string, env guardEnv) error {
		var missing []string
		for _, r := range roles {
			if _, ok := env.doc.Signature(r); !ok {
				missing = append(missing, string(r))
			}
		}
		if len(missing) > 0 {
			return safety.InvalidTransition(op, safety.GuardMissingSignatures,
				"missing signatures: %s", strings.Join(missing, ", "))
		}
		return nil
	}
}

func requireRiskLines(op string, env guardEnv) error {
	if len(env.doc.RiskAssessment.Lines) == 0 {
		return safety.InvalidTransition(op, safety.GuardMissingRiskLines, "risk assessment has no risk lines")
	}
	return nil
}

func requireScorableLines(op string, env guardEnv) error {
	for i, line := range env.doc.RiskAssessment.Lines {
		if _, err := env.risk.ScoreLine(line); err != nil {
			return safety.InvalidTransition(op, safety.GuardInvalidRiskLines,
				"risk line %d does not score: %v", i+1, err)
		}
	}
	return nil
}

func requireParticipants(op string, env guardEnv) error {
	if len(env.doc.TrainingSession.Participants) == 0 {
		return safety.InvalidTransition(op, safety.GuardNoParticipants, "training session has no participants")
	}
	return nil
}

func requireReopenAllowance(op string, env guardEnv) error {
	if env.doc.TrainingSession.ReopenCount >= env.options.MaxReopens {
		return safety.InvalidTransition(op, safety.GuardReopenLimit,
			"training session was already reopened %d of %d times",
			env.doc.TrainingSession.ReopenCount, env.options.MaxReopens)
	}
	return nil
}

func requireResultAttachment(op string, env guardEnv) error {
	if env.doc.MedicalExam.ResultRef == "" {
		return safety.InvalidTransition(op, safety.GuardMissingAttachment, "exam has no result attachment")
	}
	return nil
}

func requireAptitude(op string, env guardEnv) error {
	a := env.doc.MedicalExam.Aptitude
	if a == "" || a == safety.AptitudePending {
		return safety.InvalidTransition(op, safety.GuardMissingAptitude, "exam aptitude is not set")
	}
	return nil
}

func requireExpiryWindow(op string, env guardEnv) error {
	until := env.doc.MedicalExam.ValidUntil
	if until == nil || !env.now.Before(*until) || env.now.Add(env.options.ExpiryWarning).Before(*until) {
		return safety.InvalidTransition(op, safety.GuardValidityNotDue, "exam validity is not within the warning window")
	}
	return nil
}

func requireExpired(op string, env guardEnv) error {
	until := env.doc.MedicalExam.ValidUntil
	if until == nil || env.now.Before(*until) {
		return safety.InvalidTransition(op, safety.GuardValidityNotDue, "exam validity has not passed")
	}
	return nil
}

func incrementReopen(doc *safety.Document) { doc.TrainingSession.ReopenCount++ }

func freezeProcedure(doc *safety.Document) { doc.SafeWorkProcedure.Frozen = true }

var trainingOpen = []safety.State{
	safety.TrainingPending, safety.TrainingScheduled, safety.TrainingCompleted, safety.TrainingReopened,
}

func defaultTables() map[safety.Kind][]Transition {
	return map[safety.Kind][]Transition{
		safety.KindRiskAssessment: {
			{
				Name: TransitionComplete, From: []safety.State{safety.RiskDraft}, To: safety.RiskCompleted,
				Capability: access.CapEditDocument,
				guards:     []guard{requireSignatures(safety.SignElaborator), requireRiskLines, requireScorableLines},
			},
			{
				Name: TransitionApprove, From: []safety.State{safety.RiskCompleted}, To: safety.RiskApproved,
				Capability: access.CapApproveRiskAssessment,
				guards:     []guard{requireSignatures(safety.SignApprover)},
			},
			{
				Name: TransitionReject, From: []safety.State{safety.RiskCompleted}, To: safety.RiskRejected,
				Capability: access.CapApproveRiskAssessment,
			},
		},
		safety.KindJobSafetyAnalysis: {},
		safety.KindSafeWorkProcedure: {
			{
				Name: TransitionSubmitReview, From: []safety.State{safety.ProcedureDraft}, To: safety.ProcedurePendingReview,
				Capability: access.CapEditDocument,
				guards:     []guard{requireSignatures(safety.SignElaborator)},
			},
			{
				Name: TransitionStartReview, From: []safety.State{safety.ProcedurePendingReview}, To: safety.ProcedureInReview,
				Capability: access.CapReviewProcedure,
			},
			{
				Name: TransitionPublish, From: []safety.State{safety.ProcedureInReview}, To: safety.ProcedureCurrent,
				Capability: access.CapReviewProcedure,
				guards:     []guard{requireSignatures(safety.SignApprover)},
			},
			{
				Name: TransitionNewVersion, From: []safety.State{safety.ProcedureCurrent}, To: safety.ProcedureObsolete,
				Capability: access.CapReviewProcedure,
				effect:     freezeProcedure,
			},
		},
		safety.KindTrainingSession: {
			{
				Name: TransitionSchedule, From: []safety.State{safety.TrainingPending}, To: safety.TrainingScheduled,
				Capability: access.CapScheduleTraining,
				guards: []guard{requireSignatures(safety.SignRegistryResponsible,
					safety.SignCertificationResponsible, safety.SignTrainer)},
			},
			{
				Name:       TransitionComplete,
				From:       []safety.State{safety.TrainingScheduled, safety.TrainingReopened},
				To:         safety.TrainingCompleted,
				Capability: access.CapScheduleTraining,
				guards:     []guard{requireParticipants},
			},
			{
				Name: TransitionReopen, From: []safety.State{safety.TrainingCompleted}, To: safety.TrainingReopened,
				Capability: access.CapAdminTier,
				guards:     []guard{requireReopenAllowance},
				effect:     incrementReopen,
			},
			{
				Name: TransitionClose, From: trainingOpen, To: safety.TrainingClosed,
				Capability: access.CapAdminTier, Idempotent: true,
			},
		},
		safety.KindMedicalExam: {
			{
				Name:       TransitionUploadEvidence,
				From:       []safety.State{safety.ExamScheduled, safety.ExamRescheduled},
				To:         safety.ExamEvidenceUploaded,
				Capability: access.CapEditClinical,
				guards:     []guard{requireResultAttachment},
			},
			{
				Name: TransitionComplete, From: []safety.State{safety.ExamEvidenceUploaded}, To: safety.ExamCompleted,
				Capability: access.CapEditClinical,
				guards:     []guard{requireAptitude},
			},
			{
				Name: TransitionDeliver, From: []safety.State{safety.ExamCompleted}, To: safety.ExamDelivered,
				Capability: access.CapManageExam, Idempotent: true,
			},
			{
				Name:       TransitionReschedule,
				From:       []safety.State{safety.ExamScheduled, safety.ExamRescheduled},
				To:         safety.ExamRescheduled,
				Capability: access.CapManageExam,
			},
			{
				Name:       TransitionCancel,
				From:       []safety.State{safety.ExamScheduled, safety.ExamRescheduled, safety.ExamEvidenceUploaded},
				To:         safety.ExamCancelled,
				Capability: access.CapManageExam,
				Idempotent: true,
			},
			{
				Name: TransitionMarkExpiring, From: []safety.State{safety.ExamDelivered}, To: safety.ExamExpiringSoon,
				Capability: access.CapManageExam,
				guards:     []guard{requireExpiryWindow},
			},
			{
				Name:       TransitionExpire,
				From:       []safety.State{safety.ExamDelivered, safety.ExamExpiringSoon},
				To:         safety.ExamExpired,
				Capability: access.CapManageExam,
				Idempotent: true,
				guards:     []guard{requireExpired},
			},
		},
	}
}

func transitionOp(kind safety.Kind, name string) string {
	return fmt.Sprintf("transition %s.%s", kind, name)
}
