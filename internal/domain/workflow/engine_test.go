package workflow

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sst/sst/internal/domain/safety"
)

func testEngine() *Engine {
	e := NewEngine(nil, DefaultOptions())
	e.now = func() time.Time { return testNow }
	return e
}

func requireGuard(t *testing.T, err error, guard string) {
	t.Helper()
	require.Error(t, err)
	assert.Equal(t, safety.CodeInvalidTransition, safety.CodeOf(err))
	assert.Equal(t, guard, safety.GuardOf(err))
}

func TestEvaluate_UnknownTransition(t *testing.T) {
	e := testEngine()
	_, err := e.Evaluate(newDoc(safety.KindRiskAssessment), "publicar", engineer)
	requireGuard(t, err, safety.GuardUnknownTransition)

	// Unknown names are reported before any access check.
	_, err = e.Evaluate(newDoc(safety.KindRiskAssessment), "volar", worker)
	requireGuard(t, err, safety.GuardUnknownTransition)
}

func TestEvaluate_JobSafetyAnalysisHasNoTransitions(t *testing.T) {
	e := testEngine()
	assert.Empty(t, e.Transitions(safety.KindJobSafetyAnalysis))
	_, err := e.Evaluate(newDoc(safety.KindJobSafetyAnalysis), TransitionComplete, engineer)
	requireGuard(t, err, safety.GuardUnknownTransition)
}

func TestEvaluate_OrganizationBeforeCapability(t *testing.T) {
	e := testEngine()
	doc := newDoc(safety.KindRiskAssessment)
	_, err := e.Evaluate(doc, TransitionApprove, outsider)
	require.Error(t, err)
	assert.ErrorIs(t, err, safety.ErrAccessDenied)
}

func TestEvaluate_CapabilityBeforeState(t *testing.T) {
	e := testEngine()
	// Supervisor lacks approval rights; the document is also in the wrong state.
	_, err := e.Evaluate(newDoc(safety.KindRiskAssessment), TransitionApprove, supervisor)
	assert.ErrorIs(t, err, safety.ErrAccessDenied)
}

func TestEvaluate_WrongSourceState(t *testing.T) {
	e := testEngine()
	_, err := e.Evaluate(newDoc(safety.KindRiskAssessment), TransitionApprove, engineer)
	requireGuard(t, err, safety.GuardWrongSourceState)
}

func TestEvaluate_GuardsInTableOrder(t *testing.T) {
	e := testEngine()
	doc := newDoc(safety.KindRiskAssessment)

	_, err := e.Evaluate(doc, TransitionComplete, engineer)
	requireGuard(t, err, safety.GuardMissingSignatures)
	assert.Contains(t, err.Error(), "elaborador")

	sign(doc, safety.SignElaborator)
	_, err = e.Evaluate(doc, TransitionComplete, engineer)
	requireGuard(t, err, safety.GuardMissingRiskLines)

	bad := scorableLine()
	bad.Severity = 0
	doc.RiskAssessment.Lines = []safety.RiskLine{scorableLine(), bad}
	_, err = e.Evaluate(doc, TransitionComplete, engineer)
	requireGuard(t, err, safety.GuardInvalidRiskLines)
	assert.Contains(t, err.Error(), "risk line 2")

	doc.RiskAssessment.Lines = []safety.RiskLine{scorableLine()}
	d, err := e.Evaluate(doc, TransitionComplete, engineer)
	require.NoError(t, err)
	assert.Equal(t, Decision{Transition: TransitionComplete, From: safety.RiskDraft, To: safety.RiskCompleted}, d)
}

func TestEvaluate_ApproveNeedsApproverSignature(t *testing.T) {
	e := testEngine()
	doc := newDoc(safety.KindRiskAssessment)
	doc.State = safety.RiskCompleted
	sign(doc, safety.SignElaborator)

	_, err := e.Evaluate(doc, TransitionApprove, engineer)
	requireGuard(t, err, safety.GuardMissingSignatures)
	assert.Contains(t, err.Error(), "aprobador")

	// Company admins cannot approve an IPERC even when it is signed.
	sign(doc, safety.SignApprover)
	_, err = e.Evaluate(doc, TransitionApprove, companyAdmin)
	assert.ErrorIs(t, err, safety.ErrAccessDenied)

	_, err = e.Evaluate(doc, TransitionApprove, engineer)
	require.NoError(t, err)
}

func TestEvaluate_ScheduleListsEveryMissingSignature(t *testing.T) {
	e := testEngine()
	doc := trainingWithParticipants("w1")
	sign(doc, safety.SignRegistryResponsible)

	_, err := e.Evaluate(doc, TransitionSchedule, engineer)
	requireGuard(t, err, safety.GuardMissingSignatures)
	assert.Contains(t, err.Error(), "responsable_certificacion")
	assert.Contains(t, err.Error(), "capacitador")
	assert.NotContains(t, err.Error(), "responsable_registro")
}

func TestEvaluate_IdempotentCloseIsNoOp(t *testing.T) {
	e := testEngine()
	doc := trainingWithParticipants("w1")
	doc.State = safety.TrainingClosed

	d, err := e.Evaluate(doc, TransitionClose, companyAdmin)
	require.NoError(t, err)
	assert.True(t, d.NoOp)
	assert.Equal(t, safety.TrainingClosed, d.To)
	assert.Same(t, doc, e.Apply(doc, d, testNow))

	// The capability check still runs on a no-op.
	_, err = e.Evaluate(doc, TransitionClose, trainer)
	assert.ErrorIs(t, err, safety.ErrAccessDenied)
}

func TestEvaluate_ReopenLimit(t *testing.T) {
	e := testEngine()
	doc := trainingWithParticipants("w1")
	doc.State = safety.TrainingCompleted

	d, err := e.Evaluate(doc, TransitionReopen, companyAdmin)
	require.NoError(t, err)
	next := e.Apply(doc, d, testNow)
	assert.Equal(t, safety.TrainingReopened, next.State)
	assert.Equal(t, 1, next.TrainingSession.ReopenCount)
	assert.Equal(t, 0, doc.TrainingSession.ReopenCount, "apply must not touch the input")

	next.State = safety.TrainingCompleted
	_, err = e.Evaluate(next, TransitionReopen, companyAdmin)
	requireGuard(t, err, safety.GuardReopenLimit)
}

func TestEvaluate_ReopenLimitConfigurable(t *testing.T) {
	e := NewEngine(nil, Options{MaxReopens: 2, ExpiryWarning: time.Hour})
	doc := trainingWithParticipants("w1")
	doc.State = safety.TrainingCompleted
	doc.TrainingSession.ReopenCount = 1

	_, err := e.Evaluate(doc, TransitionReopen, companyAdmin)
	assert.NoError(t, err)
}

func TestEvaluate_TrainingCompleteNeedsParticipants(t *testing.T) {
	e := testEngine()
	doc := trainingWithParticipants()
	doc.State = safety.TrainingScheduled

	_, err := e.Evaluate(doc, TransitionComplete, engineer)
	requireGuard(t, err, safety.GuardNoParticipants)
}

func TestEvaluate_ExamLifecycleGuards(t *testing.T) {
	e := testEngine()
	doc := examIn(safety.ExamScheduled)

	_, err := e.Evaluate(doc, TransitionUploadEvidence, doctor)
	requireGuard(t, err, safety.GuardMissingAttachment)

	// Uploading evidence is clinical: a safety engineer may not.
	doc.MedicalExam.ResultRef = "org-1/resultado/x"
	_, err = e.Evaluate(doc, TransitionUploadEvidence, engineer)
	assert.ErrorIs(t, err, safety.ErrAccessDenied)
	_, err = e.Evaluate(doc, TransitionUploadEvidence, doctor)
	require.NoError(t, err)

	doc.State = safety.ExamEvidenceUploaded
	_, err = e.Evaluate(doc, TransitionComplete, doctor)
	requireGuard(t, err, safety.GuardMissingAptitude)

	doc.MedicalExam.Aptitude = safety.AptitudeFit
	_, err = e.Evaluate(doc, TransitionComplete, doctor)
	require.NoError(t, err)
}

func TestEvaluate_ExamValidity(t *testing.T) {
	e := testEngine()
	doc := examIn(safety.ExamDelivered)

	_, err := e.Evaluate(doc, TransitionMarkExpiring, engineer)
	requireGuard(t, err, safety.GuardValidityNotDue)

	far := testNow.Add(90 * 24 * time.Hour)
	doc.MedicalExam.ValidUntil = &far
	_, err = e.Evaluate(doc, TransitionMarkExpiring, engineer)
	requireGuard(t, err, safety.GuardValidityNotDue)

	soon := testNow.Add(10 * 24 * time.Hour)
	doc.MedicalExam.ValidUntil = &soon
	_, err = e.Evaluate(doc, TransitionMarkExpiring, engineer)
	require.NoError(t, err)
	_, err = e.Evaluate(doc, TransitionExpire, engineer)
	requireGuard(t, err, safety.GuardValidityNotDue)

	past := testNow.Add(-time.Hour)
	doc.MedicalExam.ValidUntil = &past
	_, err = e.Evaluate(doc, TransitionExpire, engineer)
	require.NoError(t, err)
}

func TestEvaluate_CancelIdempotent(t *testing.T) {
	e := testEngine()
	doc := examIn(safety.ExamCancelled)
	d, err := e.Evaluate(doc, TransitionCancel, engineer)
	require.NoError(t, err)
	assert.True(t, d.NoOp)

	doc = examIn(safety.ExamCompleted)
	_, err = e.Evaluate(doc, TransitionCancel, engineer)
	requireGuard(t, err, safety.GuardWrongSourceState)
}

func TestApply_FreezesObsoleteProcedure(t *testing.T) {
	e := testEngine()
	doc := newDoc(safety.KindSafeWorkProcedure)
	doc.State = safety.ProcedureCurrent

	d, err := e.Evaluate(doc, TransitionNewVersion, engineer)
	require.NoError(t, err)
	next := e.Apply(doc, d, testNow)
	assert.Equal(t, safety.ProcedureObsolete, next.State)
	assert.True(t, next.SafeWorkProcedure.Frozen)
	assert.False(t, doc.SafeWorkProcedure.Frozen)
	assert.Equal(t, testNow, next.UpdatedAt)
}

func TestAvailable(t *testing.T) {
	e := testEngine()
	doc := newDoc(safety.KindSafeWorkProcedure)
	doc.State = safety.ProcedurePendingReview

	got := e.Available(doc, engineer)
	require.Len(t, got, 1)
	assert.Equal(t, TransitionStartReview, got[0].Transition)
	assert.Empty(t, e.Available(doc, worker))
}

func TestTransitions_Names(t *testing.T) {
	e := testEngine()
	assert.Equal(t, []string{TransitionComplete, TransitionApprove, TransitionReject},
		e.Transitions(safety.KindRiskAssessment))
	assert.Len(t, e.Transitions(safety.KindMedicalExam), 7)
}
