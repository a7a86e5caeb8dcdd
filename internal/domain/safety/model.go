package safety

import (
	"time"

	"github.com/google/uuid"
)

// SignatureRole tags a stored signature with the capacity in which it was given.
type SignatureRole string

const (
	SignElaborator               SignatureRole = "elaborador"
	SignApprover                 SignatureRole = "aprobador"
	SignTrainer                  SignatureRole = "capacitador"
	SignRegistryResponsible      SignatureRole = "responsable_registro"
	SignCertificationResponsible SignatureRole = "responsable_certificacion"
	SignResponsible              SignatureRole = "responsable"
)

// ParseSignatureRole validates a signature role received from outside the core.
func ParseSignatureRole(s string) (SignatureRole, error) {
	switch r := SignatureRole(s); r {
	case SignElaborator, SignApprover, SignTrainer, SignRegistryResponsible,
		SignCertificationResponsible, SignResponsible:
		return r, nil
	}
	return "", Validation("parse signature role", []string{"role"}, "unknown signature role %q", s)
}

// Signature references a signature image stored in the blob store.
type Signature struct {
	Role     SignatureRole `json:"rol"`
	SignerID string        `json:"firmante_id"`
	SignedAt time.Time     `json:"firmado_en"`
	BlobRef  string        `json:"blob_ref"`
}

// Document is the tagged union over safety document kinds. Exactly one body
// pointer is set and it must match Kind.
type Document struct {
	ID             uuid.UUID   `json:"id"`
	Kind           Kind        `json:"tipo"`
	OrganizationID string      `json:"organizacion_id"`
	State          State       `json:"estado"`
	CreatedBy      string      `json:"creado_por"`
	CreatedAt      time.Time   `json:"creado_en"`
	UpdatedAt      time.Time   `json:"actualizado_en"`
	Version        int         `json:"version"`
	Signatures     []Signature `json:"firmas,omitempty"`

	RiskAssessment    *RiskAssessment    `json:"iperc,omitempty"`
	JobSafetyAnalysis *JobSafetyAnalysis `json:"ats,omitempty"`
	SafeWorkProcedure *SafeWorkProcedure `json:"pets,omitempty"`
	TrainingSession   *TrainingSession   `json:"capacitacion,omitempty"`
	MedicalExam       *MedicalExam       `json:"emo,omitempty"`
}

// NewDocument builds an empty document of the given kind in its initial state.
func NewDocument(kind Kind, orgID, createdBy string, now time.Time) *Document {
	d := &Document{
		ID:             uuid.New(),
		Kind:           kind,
		OrganizationID: orgID,
		State:          kind.InitialState(),
		CreatedBy:      createdBy,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	switch kind {
	case KindRiskAssessment:
		d.RiskAssessment = &RiskAssessment{}
	case KindJobSafetyAnalysis:
		d.JobSafetyAnalysis = &JobSafetyAnalysis{}
	case KindSafeWorkProcedure:
		d.SafeWorkProcedure = &SafeWorkProcedure{DocumentVersion: 1}
	case KindTrainingSession:
		d.TrainingSession = &TrainingSession{}
	case KindMedicalExam:
		d.MedicalExam = &MedicalExam{Aptitude: AptitudePending}
	}
	return d
}

// Validate checks the structural invariants of the union.
func (d *Document) Validate() error {
	const op = "validate document"
	if d.ID == uuid.Nil {
		return Validation(op, []string{"id"}, "id is required")
	}
	if d.OrganizationID == "" {
		return Validation(op, []string{"organizacion_id"}, "organization is required")
	}
	if !d.Kind.ValidState(d.State) {
		return Validation(op, []string{"estado"}, "state %q is not valid for %s", d.State, d.Kind)
	}
	bodies := 0
	var matches bool
	if d.RiskAssessment != nil {
		bodies++
		matches = d.Kind == KindRiskAssessment
	}
	if d.JobSafetyAnalysis != nil {
		bodies++
		matches = d.Kind == KindJobSafetyAnalysis
	}
	if d.SafeWorkProcedure != nil {
		bodies++
		matches = d.Kind == KindSafeWorkProcedure
	}
	if d.TrainingSession != nil {
		bodies++
		matches = d.Kind == KindTrainingSession
	}
	if d.MedicalExam != nil {
		bodies++
		matches = d.Kind == KindMedicalExam
	}
	if bodies != 1 || !matches {
		return Validation(op, []string{"tipo"}, "document body does not match kind %s", d.Kind)
	}
	return nil
}

// Signature returns the stored signature for role, if any.
func (d *Document) Signature(role SignatureRole) (Signature, bool) {
	for _, s := range d.Signatures {
		if s.Role == role && s.BlobRef != "" {
			return s, true
		}
	}
	return Signature{}, false
}

// PutSignature stores sig, replacing any previous signature with the same role.
func (d *Document) PutSignature(sig Signature) {
	for i := range d.Signatures {
		if d.Signatures[i].Role == sig.Role {
			d.Signatures[i] = sig
			return
		}
	}
	d.Signatures = append(d.Signatures, sig)
}

// Clone returns a deep copy so that a failed transition never leaks partial edits.
func (d *Document) Clone() *Document {
	c := *d
	c.Signatures = append([]Signature(nil), d.Signatures...)
	if d.RiskAssessment != nil {
		ra := *d.RiskAssessment
		ra.Lines = append([]RiskLine(nil), d.RiskAssessment.Lines...)
		for i := range ra.Lines {
			if ra.Lines[i].Residual != nil {
				r := *ra.Lines[i].Residual
				ra.Lines[i].Residual = &r
			}
		}
		c.RiskAssessment = &ra
	}
	if d.JobSafetyAnalysis != nil {
		j := *d.JobSafetyAnalysis
		j.Workers = append([]string(nil), d.JobSafetyAnalysis.Workers...)
		j.Steps = make([]JobStep, len(d.JobSafetyAnalysis.Steps))
		for i, s := range d.JobSafetyAnalysis.Steps {
			s.Hazards = append([]string(nil), s.Hazards...)
			s.Controls = append([]string(nil), s.Controls...)
			j.Steps[i] = s
		}
		c.JobSafetyAnalysis = &j
	}
	if d.SafeWorkProcedure != nil {
		p := *d.SafeWorkProcedure
		p.Responsible = append([]string(nil), d.SafeWorkProcedure.Responsible...)
		c.SafeWorkProcedure = &p
	}
	if d.TrainingSession != nil {
		t := *d.TrainingSession
		t.Participants = make([]Participant, len(d.TrainingSession.Participants))
		for i, p := range d.TrainingSession.Participants {
			if p.Score != nil {
				s := *p.Score
				p.Score = &s
			}
			t.Participants[i] = p
		}
		c.TrainingSession = &t
	}
	if d.MedicalExam != nil {
		m := *d.MedicalExam
		m.Diagnoses = append([]Diagnosis(nil), d.MedicalExam.Diagnoses...)
		m.Restrictions = append([]string(nil), d.MedicalExam.Restrictions...)
		if d.MedicalExam.ValidUntil != nil {
			v := *d.MedicalExam.ValidUntil
			m.ValidUntil = &v
		}
		c.MedicalExam = &m
	}
	return &c
}

// RiskAssessment (IPERC) body.
type RiskAssessment struct {
	Title   string     `json:"titulo"`
	Area    string     `json:"area"`
	Process string     `json:"proceso"`
	Date    string     `json:"fecha"`
	Lines   []RiskLine `json:"lineas_riesgo"`
}

// RiskLine holds only scoring inputs. Probability index, risk value and tier
// are derived on every read and have no storage representation.
type RiskLine struct {
	ID                string       `json:"id"`
	Activity          string       `json:"actividad"`
	Task              string       `json:"tarea"`
	Hazard            string       `json:"peligro"`
	Risk              string       `json:"riesgo"`
	PeopleExposed     int          `json:"indice_personas"`
	Procedures        int          `json:"indice_procedimientos"`
	Training          int          `json:"indice_capacitacion"`
	ExposureFrequency int          `json:"indice_exposicion"`
	Severity          int          `json:"indice_severidad"`
	ExistingControls  string       `json:"controles_existentes,omitempty"`
	ProposedControls  string       `json:"medidas_control,omitempty"`
	Residual          *RiskFactors `json:"residual,omitempty"`
}

// RiskFactors is the residual scoring after proposed controls are applied.
type RiskFactors struct {
	PeopleExposed     int `json:"indice_personas"`
	Procedures        int `json:"indice_procedimientos"`
	Training          int `json:"indice_capacitacion"`
	ExposureFrequency int `json:"indice_exposicion"`
	Severity          int `json:"indice_severidad"`
}

// Factors returns the line's inputs in A, B, C, D, severity order.
func (l RiskLine) Factors() (a, b, c, d, severity int) {
	return l.PeopleExposed, l.Procedures, l.Training, l.ExposureFrequency, l.Severity
}

// JobSafetyAnalysis (ATS) body.
type JobSafetyAnalysis struct {
	Title   string    `json:"titulo"`
	Task    string    `json:"tarea"`
	Area    string    `json:"area"`
	Date    string    `json:"fecha"`
	Workers []string  `json:"trabajadores"`
	Steps   []JobStep `json:"pasos"`
}

// JobStep is one step of an ATS.
type JobStep struct {
	Order    int      `json:"orden"`
	Step     string   `json:"paso"`
	Hazards  []string `json:"peligros"`
	Controls []string `json:"controles"`
}

// SafeWorkProcedure (PETS) body.
type SafeWorkProcedure struct {
	Code            string     `json:"codigo"`
	Title           string     `json:"titulo"`
	Objective       string     `json:"objetivo"`
	Scope           string     `json:"alcance"`
	Body            string     `json:"contenido"`
	Responsible     []string   `json:"responsables"`
	DocumentVersion int        `json:"version_documento"`
	PreviousID      *uuid.UUID `json:"documento_anterior_id,omitempty"`
	Frozen          bool       `json:"congelado"`
}

// TrainingSession body.
type TrainingSession struct {
	Topic         string        `json:"tema"`
	Trainer       string        `json:"capacitador"`
	ScheduledFor  string        `json:"fecha_programada"`
	DurationHours float64       `json:"duracion_horas"`
	Participants  []Participant `json:"participantes"`
	ReopenCount   int           `json:"reaperturas"`
}

// ApprovalThreshold is the minimum score (out of 20) that approves a participant.
const ApprovalThreshold = 11

// MaxScore is the top of the evaluation scale.
const MaxScore = 20

// Participant is a worker assigned to a training session.
type Participant struct {
	WorkerID  string `json:"trabajador_id"`
	Attended  bool   `json:"asistio"`
	Approved  bool   `json:"aprobado"`
	Score     *int   `json:"nota,omitempty"`
	Signed    bool   `json:"firmado"`
	Evaluated bool   `json:"evaluado"`
}

// Participant returns the index of the worker in the session, or -1.
func (t *TrainingSession) Participant(workerID string) int {
	for i, p := range t.Participants {
		if p.WorkerID == workerID {
			return i
		}
	}
	return -1
}

// Aptitude is the occupational-fitness determination of an exam.
type Aptitude string

const (
	AptitudeFit             Aptitude = "apto"
	AptitudeUnfit           Aptitude = "no_apto"
	AptitudeFitRestrictions Aptitude = "apto_con_restricciones"
	AptitudePending         Aptitude = "pendiente"
	AptitudeObserved        Aptitude = "observado"
)

// ParseAptitude validates an aptitude value.
func ParseAptitude(s string) (Aptitude, error) {
	switch a := Aptitude(s); a {
	case AptitudeFit, AptitudeUnfit, AptitudeFitRestrictions, AptitudePending, AptitudeObserved:
		return a, nil
	}
	return "", Validation("parse aptitude", []string{string(FieldAptitude)}, "unknown aptitude %q", s)
}

// Final reports whether the aptitude is a terminal determination.
func (a Aptitude) Final() bool {
	return a == AptitudeFit || a == AptitudeUnfit || a == AptitudeFitRestrictions
}

// Diagnosis is one CIE-10 coded diagnosis.
type Diagnosis struct {
	Code        string `json:"codigo"`
	Description string `json:"descripcion"`
}

// MedicalExam (EMO) body.
type MedicalExam struct {
	WorkerID      string      `json:"trabajador_id"`
	ExamType      string      `json:"tipo_examen"`
	ScheduledFor  string      `json:"fecha_programada"`
	MedicalCenter string      `json:"centro_medico"`
	Aptitude      Aptitude    `json:"aptitud"`
	Diagnoses     []Diagnosis `json:"diagnosticos_cie10,omitempty"`
	Restrictions  []string    `json:"restricciones,omitempty"`
	Observations  string      `json:"observaciones,omitempty"`
	ResultRef     string      `json:"resultado_adjunto,omitempty"`
	ValidUntil    *time.Time  `json:"vigente_hasta,omitempty"`
}
