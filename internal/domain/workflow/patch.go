package workflow

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/sst/sst/internal/domain/risk"
	"github.com/sst/sst/internal/domain/safety"
)

// Patch is a set of in-state field edits keyed by view field. Values are
// decoded into the typed body field on apply.
type Patch map[safety.Field]json.RawMessage

// Fields returns the patched fields in a stable order.
func (p Patch) Fields() []safety.Field {
	out := make([]safety.Field, 0, len(p))
	for f := range p {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

var examTypes = map[string]bool{"ingreso": true, "periodico": true, "retiro": true}

// bodyTargets maps each patchable field of doc to the address it decodes into.
// The result attachment is set only through an upload.
func bodyTargets(doc *safety.Document) map[safety.Field]any {
	switch doc.Kind {
	case safety.KindRiskAssessment:
		b := doc.RiskAssessment
		return map[safety.Field]any{
			safety.FieldTitle:     &b.Title,
			safety.FieldArea:      &b.Area,
			safety.FieldProcess:   &b.Process,
			safety.FieldDate:      &b.Date,
			safety.FieldRiskLines: &b.Lines,
		}
	case safety.KindJobSafetyAnalysis:
		b := doc.JobSafetyAnalysis
		return map[safety.Field]any{
			safety.FieldTitle:   &b.Title,
			safety.FieldTask:    &b.Task,
			safety.FieldArea:    &b.Area,
			safety.FieldDate:    &b.Date,
			safety.FieldWorkers: &b.Workers,
			safety.FieldSteps:   &b.Steps,
		}
	case safety.KindSafeWorkProcedure:
		b := doc.SafeWorkProcedure
		return map[safety.Field]any{
			safety.FieldCode:        &b.Code,
			safety.FieldTitle:       &b.Title,
			safety.FieldObjective:   &b.Objective,
			safety.FieldScope:       &b.Scope,
			safety.FieldBody:        &b.Body,
			safety.FieldResponsible: &b.Responsible,
		}
	case safety.KindTrainingSession:
		b := doc.TrainingSession
		return map[safety.Field]any{
			safety.FieldTopic:        &b.Topic,
			safety.FieldTrainer:      &b.Trainer,
			safety.FieldScheduledFor: &b.ScheduledFor,
			safety.FieldDuration:     &b.DurationHours,
		}
	case safety.KindMedicalExam:
		b := doc.MedicalExam
		return map[safety.Field]any{
			safety.FieldWorkerID:      &b.WorkerID,
			safety.FieldExamType:      &b.ExamType,
			safety.FieldScheduledFor:  &b.ScheduledFor,
			safety.FieldMedicalCenter: &b.MedicalCenter,
			safety.FieldAptitude:      &b.Aptitude,
			safety.FieldDiagnoses:     &b.Diagnoses,
			safety.FieldRestrictions:  &b.Restrictions,
			safety.FieldObservations:  &b.Observations,
			safety.FieldValidUntil:    &b.ValidUntil,
		}
	}
	return nil
}

// applyPatch decodes every patch value into doc and checks the typed result.
// doc must be a private copy: on error it may be partially modified.
func applyPatch(op string, doc *safety.Document, patch Patch) error {
	targets := bodyTargets(doc)
	for _, f := range patch.Fields() {
		target, ok := targets[f]
		if !ok {
			return safety.Validation(op, []string{string(f)}, "field %s is not editable on %s", f, doc.Kind)
		}
		if err := json.Unmarshal(patch[f], target); err != nil {
			return safety.Validation(op, []string{string(f)}, "field %s: %v", f, err)
		}
	}
	return checkBody(op, doc, patch)
}

func checkBody(op string, doc *safety.Document, patch Patch) error {
	switch doc.Kind {
	case safety.KindRiskAssessment:
		for i := range doc.RiskAssessment.Lines {
			line := &doc.RiskAssessment.Lines[i]
			if line.ID == "" {
				line.ID = uuid.NewString()
			}
			if err := checkRiskLine(op, i, line); err != nil {
				return err
			}
		}
	case safety.KindJobSafetyAnalysis:
		for i := range doc.JobSafetyAnalysis.Steps {
			doc.JobSafetyAnalysis.Steps[i].Order = i + 1
		}
	case safety.KindTrainingSession:
		if doc.TrainingSession.DurationHours < 0 {
			return safety.Validation(op, []string{string(safety.FieldDuration)}, "duration must not be negative")
		}
	case safety.KindMedicalExam:
		m := doc.MedicalExam
		if _, ok := patch[safety.FieldAptitude]; ok {
			if _, err := safety.ParseAptitude(string(m.Aptitude)); err != nil {
				return err
			}
		}
		if _, ok := patch[safety.FieldExamType]; ok && !examTypes[m.ExamType] {
			return safety.Validation(op, []string{string(safety.FieldExamType)}, "unknown exam type %q", m.ExamType)
		}
		var bad []string
		for _, d := range m.Diagnoses {
			if !safety.ValidCIE10(d.Code) {
				bad = append(bad, d.Code)
			}
		}
		if len(bad) > 0 {
			return safety.Validation(op, []string{string(safety.FieldDiagnoses)}, "invalid CIE-10 codes: %v", bad)
		}
	}
	return nil
}

// checkRiskLine rejects factors outside [1,5]. Zero means the value has not
// been filled in yet, which a borrador allows; completar requires every line
// to score.
func checkRiskLine(op string, i int, line *safety.RiskLine) error {
	var bad []string
	check := func(name string, v int) {
		if v != 0 && (v < risk.MinFactor || v > risk.MaxFactor) {
			bad = append(bad, fmt.Sprintf("%s[%d].%s", safety.FieldRiskLines, i, name))
		}
	}
	check("indice_personas", line.PeopleExposed)
	check("indice_procedimientos", line.Procedures)
	check("indice_capacitacion", line.Training)
	check("indice_exposicion", line.ExposureFrequency)
	check("indice_severidad", line.Severity)
	if r := line.Residual; r != nil {
		check("residual.indice_personas", r.PeopleExposed)
		check("residual.indice_procedimientos", r.Procedures)
		check("residual.indice_capacitacion", r.Training)
		check("residual.indice_exposicion", r.ExposureFrequency)
		check("residual.indice_severidad", r.Severity)
	}
	if len(bad) > 0 {
		return safety.Validation(op, bad, "%s: %s must be within [%d,%d]",
			risk.ReasonOutOfRange, strings.Join(bad, ", "), risk.MinFactor, risk.MaxFactor)
	}
	return nil
}
