package access

import (
	"github.com/sst/sst/internal/domain/safety"
)

// clinicalFields are readable only with CapViewClinical.
var clinicalFields = map[safety.Kind]safety.FieldSet{
	safety.KindMedicalExam: safety.NewFieldSet(
		safety.FieldDiagnoses,
		safety.FieldRestrictions,
		safety.FieldObservations,
		safety.FieldResultAttachment,
	),
}

// clinicalWriteFields are writable only with CapEditClinical. Aptitude is
// readable by everyone but set only by health roles.
var clinicalWriteFields = map[safety.Kind]safety.FieldSet{
	safety.KindMedicalExam: safety.NewFieldSet(
		safety.FieldAptitude,
		safety.FieldDiagnoses,
		safety.FieldRestrictions,
		safety.FieldObservations,
		safety.FieldResultAttachment,
	),
}

// writeCapability is the capability needed for non-clinical edits of a kind.
var writeCapability = map[safety.Kind]Capability{
	safety.KindRiskAssessment:    CapEditDocument,
	safety.KindJobSafetyAnalysis: CapEditDocument,
	safety.KindSafeWorkProcedure: CapEditDocument,
	safety.KindTrainingSession:   CapScheduleTraining,
	safety.KindMedicalExam:       CapManageExam,
}

// createCapability is the capability needed to create a document of a kind.
var createCapability = map[safety.Kind]Capability{
	safety.KindRiskAssessment:    CapCreateDocument,
	safety.KindJobSafetyAnalysis: CapCreateDocument,
	safety.KindSafeWorkProcedure: CapCreateDocument,
	safety.KindTrainingSession:   CapScheduleTraining,
	safety.KindMedicalExam:       CapManageExam,
}

// CreateCapability returns the capability that permits creating kind.
func CreateCapability(kind safety.Kind) Capability { return createCapability[kind] }

// IsClinical reports whether field is confidential for kind.
func IsClinical(kind safety.Kind, field safety.Field) bool {
	return clinicalFields[kind].Has(field)
}

// VisibleFields returns the view keys of kind the roles may read. Callers
// without read access get an empty set.
func VisibleFields(kind safety.Kind, roles Roles) safety.FieldSet {
	caps := Derive(roles)
	if !caps.Has(CapReadDocuments) {
		return safety.FieldSet{}
	}
	all := kind.FieldSet()
	if caps.Has(CapViewClinical) {
		return all
	}
	for f := range clinicalFields[kind] {
		delete(all, f)
	}
	return all
}

// View is a flat document projection keyed by field identifier.
type View map[safety.Field]any

// Filter returns a copy of view without the keys the roles may not read.
// Removed keys are absent, never present with an empty value.
func Filter(kind safety.Kind, view View, roles Roles) View {
	visible := VisibleFields(kind, roles)
	out := make(View, len(view))
	for k, v := range view {
		if visible.Has(k) {
			out[k] = v
		}
	}
	return out
}

// AssertCanWrite fails with AccessDenied unless roles may set field on kind.
// It does not look at document state. Unknown fields are a validation error;
// header and workflow-maintained fields can never be written directly.
func AssertCanWrite(kind safety.Kind, field safety.Field, roles Roles) error {
	op := "write " + string(kind) + "." + string(field)
	if !kind.FieldSet().Has(field) {
		return safety.Validation(op, []string{string(field)}, "unknown field %q for %s", field, kind)
	}
	if !kind.PatchableFields().Has(field) {
		return safety.AccessDenied(op)
	}
	caps := Derive(roles)
	if clinicalWriteFields[kind].Has(field) {
		if !caps.Has(CapEditClinical) {
			return safety.AccessDenied(op)
		}
		return nil
	}
	if !caps.Has(writeCapability[kind]) {
		return safety.AccessDenied(op)
	}
	return nil
}

// AssertCapability fails with AccessDenied unless roles grant c.
func AssertCapability(op string, roles Roles, c Capability) error {
	if !Derive(roles).Has(c) {
		return safety.AccessDenied(op)
	}
	return nil
}

// AssertOrganization fails with AccessDenied when the document belongs to
// another organization. Super admins span organizations.
func AssertOrganization(op string, roles Roles, callerOrg, docOrg string) error {
	if roles.Has(RoleSuperAdmin) || (callerOrg != "" && callerOrg == docOrg) {
		return nil
	}
	return safety.AccessDenied(op)
}
