package safety

// Field identifies a top-level key of a document view. View keys match the
// JSON names of the stored document so that a field id means the same thing
// on the read path, the write path and in storage.
type Field string

// Header fields shared by every kind.
const (
	FieldID           Field = "id"
	FieldKind         Field = "tipo"
	FieldOrganization Field = "organizacion_id"
	FieldState        Field = "estado"
	FieldCreatedBy    Field = "creado_por"
	FieldCreatedAt    Field = "creado_en"
	FieldUpdatedAt    Field = "actualizado_en"
	FieldVersion      Field = "version"
	FieldSignatures   Field = "firmas"
)

// Body fields.
const (
	FieldTitle            Field = "titulo"
	FieldArea             Field = "area"
	FieldProcess          Field = "proceso"
	FieldDate             Field = "fecha"
	FieldRiskLines        Field = "lineas_riesgo"
	FieldTask             Field = "tarea"
	FieldWorkers          Field = "trabajadores"
	FieldSteps            Field = "pasos"
	FieldCode             Field = "codigo"
	FieldObjective        Field = "objetivo"
	FieldScope            Field = "alcance"
	FieldBody             Field = "contenido"
	FieldResponsible      Field = "responsables"
	FieldDocumentVersion  Field = "version_documento"
	FieldPreviousID       Field = "documento_anterior_id"
	FieldFrozen           Field = "congelado"
	FieldTopic            Field = "tema"
	FieldTrainer          Field = "capacitador"
	FieldScheduledFor     Field = "fecha_programada"
	FieldDuration         Field = "duracion_horas"
	FieldParticipants     Field = "participantes"
	FieldReopenCount      Field = "reaperturas"
	FieldWorkerID         Field = "trabajador_id"
	FieldExamType         Field = "tipo_examen"
	FieldMedicalCenter    Field = "centro_medico"
	FieldAptitude         Field = "aptitud"
	FieldDiagnoses        Field = "diagnosticos_cie10"
	FieldRestrictions     Field = "restricciones"
	FieldObservations     Field = "observaciones"
	FieldResultAttachment Field = "resultado_adjunto"
	FieldValidUntil       Field = "vigente_hasta"
)

// FieldSet is a set of field identifiers.
type FieldSet map[Field]bool

// NewFieldSet builds a set from a list.
func NewFieldSet(fields ...Field) FieldSet {
	s := make(FieldSet, len(fields))
	for _, f := range fields {
		s[f] = true
	}
	return s
}

// Has reports membership.
func (s FieldSet) Has(f Field) bool { return s[f] }

// Without returns a copy of s with the given fields removed.
func (s FieldSet) Without(fields ...Field) FieldSet {
	out := make(FieldSet, len(s))
	for f := range s {
		out[f] = true
	}
	for _, f := range fields {
		delete(out, f)
	}
	return out
}

var headerFields = []Field{
	FieldID, FieldKind, FieldOrganization, FieldState, FieldCreatedBy,
	FieldCreatedAt, FieldUpdatedAt, FieldVersion, FieldSignatures,
}

var bodyFields = map[Kind][]Field{
	KindRiskAssessment:    {FieldTitle, FieldArea, FieldProcess, FieldDate, FieldRiskLines},
	KindJobSafetyAnalysis: {FieldTitle, FieldTask, FieldArea, FieldDate, FieldWorkers, FieldSteps},
	KindSafeWorkProcedure: {FieldCode, FieldTitle, FieldObjective, FieldScope, FieldBody, FieldResponsible,
		FieldDocumentVersion, FieldPreviousID, FieldFrozen},
	KindTrainingSession: {FieldTopic, FieldTrainer, FieldScheduledFor, FieldDuration, FieldParticipants, FieldReopenCount},
	KindMedicalExam: {FieldWorkerID, FieldExamType, FieldScheduledFor, FieldMedicalCenter, FieldAptitude,
		FieldDiagnoses, FieldRestrictions, FieldObservations, FieldResultAttachment, FieldValidUntil},
}

// systemFields are maintained by the workflow and never accepted in a patch.
var systemFields = NewFieldSet(FieldDocumentVersion, FieldPreviousID, FieldFrozen,
	FieldParticipants, FieldReopenCount)

// Fields returns every view key of the kind, header first.
func (k Kind) Fields() []Field {
	out := make([]Field, 0, len(headerFields)+len(bodyFields[k]))
	out = append(out, headerFields...)
	return append(out, bodyFields[k]...)
}

// FieldSet returns Fields as a set.
func (k Kind) FieldSet() FieldSet { return NewFieldSet(k.Fields()...) }

// PatchableFields are the body fields an in-state edit may set.
func (k Kind) PatchableFields() FieldSet {
	out := FieldSet{}
	for _, f := range bodyFields[k] {
		if !systemFields[f] {
			out[f] = true
		}
	}
	return out
}
