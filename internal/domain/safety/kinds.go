package safety

// Kind identifies a safety document type.
type Kind string

const (
	KindRiskAssessment    Kind = "iperc"
	KindJobSafetyAnalysis Kind = "ats"
	KindSafeWorkProcedure Kind = "pets"
	KindTrainingSession   Kind = "capacitacion"
	KindMedicalExam       Kind = "emo"
)

// Kinds lists every document kind in a stable order.
func Kinds() []Kind {
	return []Kind{KindRiskAssessment, KindJobSafetyAnalysis, KindSafeWorkProcedure, KindTrainingSession, KindMedicalExam}
}

// ParseKind validates a kind received from outside the core.
func ParseKind(s string) (Kind, error) {
	k := Kind(s)
	for _, known := range Kinds() {
		if k == known {
			return k, nil
		}
	}
	return "", Validation("parse kind", []string{"kind"}, "unknown document kind %q", s)
}

// State is a lifecycle state. Each kind owns a closed subset.
type State string

// IPERC
const (
	RiskDraft     State = "borrador"
	RiskCompleted State = "completado"
	RiskApproved  State = "aprobado"
	RiskRejected  State = "rechazado"
)

// ATS
const (
	JSADraft State = "borrador"
)

// PETS
const (
	ProcedureDraft         State = "borrador"
	ProcedurePendingReview State = "pendiente_revision"
	ProcedureInReview      State = "en_revision"
	ProcedureCurrent       State = "vigente"
	ProcedureObsolete      State = "obsoleto"
)

// Capacitación
const (
	TrainingPending   State = "pendiente"
	TrainingScheduled State = "programado"
	TrainingCompleted State = "completado"
	TrainingReopened  State = "reabierto"
	TrainingClosed    State = "cerrado"
)

// EMO
const (
	ExamScheduled        State = "programado"
	ExamEvidenceUploaded State = "evidencia_cargada"
	ExamCompleted        State = "completado"
	ExamDelivered        State = "entregado"
	ExamRescheduled      State = "reprogramado"
	ExamCancelled        State = "cancelado"
	ExamExpired          State = "vencido"
	ExamExpiringSoon     State = "por_vencer"
)

var kindStates = map[Kind][]State{
	KindRiskAssessment:    {RiskDraft, RiskCompleted, RiskApproved, RiskRejected},
	KindJobSafetyAnalysis: {JSADraft},
	KindSafeWorkProcedure: {ProcedureDraft, ProcedurePendingReview, ProcedureInReview, ProcedureCurrent, ProcedureObsolete},
	KindTrainingSession:   {TrainingPending, TrainingScheduled, TrainingCompleted, TrainingReopened, TrainingClosed},
	KindMedicalExam: {ExamScheduled, ExamEvidenceUploaded, ExamCompleted, ExamDelivered,
		ExamRescheduled, ExamCancelled, ExamExpired, ExamExpiringSoon},
}

var initialStates = map[Kind]State{
	KindRiskAssessment:    RiskDraft,
	KindJobSafetyAnalysis: JSADraft,
	KindSafeWorkProcedure: ProcedureDraft,
	KindTrainingSession:   TrainingPending,
	KindMedicalExam:       ExamScheduled,
}

var terminalStates = map[Kind]map[State]bool{
	KindRiskAssessment:    {RiskApproved: true, RiskRejected: true},
	KindJobSafetyAnalysis: {},
	KindSafeWorkProcedure: {ProcedureObsolete: true},
	KindTrainingSession:   {TrainingClosed: true},
	KindMedicalExam:       {ExamCancelled: true, ExamExpired: true},
}

// editableStates are the states in which in-state field edits are accepted.
var editableStates = map[Kind]map[State]bool{
	KindRiskAssessment:    {RiskDraft: true},
	KindJobSafetyAnalysis: {JSADraft: true},
	KindSafeWorkProcedure: {ProcedureDraft: true},
	KindTrainingSession:   {TrainingPending: true, TrainingScheduled: true, TrainingCompleted: true, TrainingReopened: true},
	KindMedicalExam: {ExamScheduled: true, ExamRescheduled: true, ExamEvidenceUploaded: true,
		ExamCompleted: true},
}

// States returns the closed state set of the kind.
func (k Kind) States() []State {
	out := make([]State, len(kindStates[k]))
	copy(out, kindStates[k])
	return out
}

// ValidState reports whether s belongs to the kind.
func (k Kind) ValidState(s State) bool {
	for _, st := range kindStates[k] {
		if st == s {
			return true
		}
	}
	return false
}

// InitialState is the state a new document of this kind is created in.
func (k Kind) InitialState() State { return initialStates[k] }

// Terminal reports whether s admits no further transitions or edits.
func (k Kind) Terminal(s State) bool { return terminalStates[k][s] }

// Editable reports whether in-state field edits are accepted in s.
func (k Kind) Editable(s State) bool { return editableStates[k][s] }
