package workflow

import (
	"context"
	"errors"
	"io"

	"github.com/google/uuid"

	"github.com/sst/sst/internal/domain/access"
	"github.com/sst/sst/internal/domain/safety"
	"github.com/sst/sst/internal/platform/auth"
	"github.com/sst/sst/internal/platform/blobstore"
)

// Upload is an image or file received from the caller.
type Upload struct {
	FileName    string
	ContentType string
	Content     io.Reader
}

// signatureRoles lists, per kind, which signature roles apply and which
// capability a signer needs to give each one.
var signatureRoles = map[safety.Kind]map[safety.SignatureRole]access.Capability{
	safety.KindRiskAssessment: {
		safety.SignElaborator: access.CapEditDocument,
		safety.SignApprover:   access.CapApproveRiskAssessment,
	},
	safety.KindJobSafetyAnalysis: {
		safety.SignElaborator:  access.CapEditDocument,
		safety.SignResponsible: access.CapEditDocument,
	},
	safety.KindSafeWorkProcedure: {
		safety.SignElaborator:  access.CapEditDocument,
		safety.SignApprover:    access.CapReviewProcedure,
		safety.SignResponsible: access.CapEditDocument,
	},
	safety.KindTrainingSession: {
		safety.SignRegistryResponsible:      access.CapScheduleTraining,
		safety.SignCertificationResponsible: access.CapScheduleTraining,
		safety.SignTrainer:                  access.CapEvaluateTraining,
	},
	safety.KindMedicalExam: {
		safety.SignResponsible: access.CapEditClinical,
	},
}

func blobError(op string, err error, field string) error {
	switch {
	case errors.Is(err, blobstore.ErrInvalidContentType), errors.Is(err, blobstore.ErrFileTooLarge),
		errors.Is(err, blobstore.ErrEmptyContent), errors.Is(err, blobstore.ErrInvalidPurpose):
		return safety.Validation(op, []string{field}, "%v", err)
	default:
		return safety.RepositoryError(op, err)
	}
}

// Sign stores a signature image and records it on the document under role,
// replacing any earlier signature for that role. Terminal documents cannot be
// signed.
func (s *Service) Sign(ctx context.Context, caller auth.Identity, kind safety.Kind, id uuid.UUID, role safety.SignatureRole, image Upload) (out *Outcome, err error) {
	ctx, span := s.startSpan(ctx, "workflow.Sign", kind)
	defer func() { endSpan(span, err) }()

	op := "sign " + string(kind)
	roles := access.ParseRoles(caller.Roles)
	need, ok := signatureRoles[kind][role]
	if !ok {
		return nil, safety.Validation(op, []string{"rol"}, "signature role %q does not apply to %s", role, kind)
	}
	if err := access.AssertCapability(op, roles, access.CapSign); err != nil {
		return nil, err
	}
	if err := access.AssertCapability(op, roles, need); err != nil {
		return nil, err
	}
	doc, err := s.load(ctx, op, roles, caller, kind, id)
	if err != nil {
		return nil, err
	}
	if kind.Terminal(doc.State) {
		return nil, safety.InvalidTransition(op, safety.GuardStateNotEditable,
			"%s in state %q cannot be signed", kind, doc.State)
	}

	ref, err := s.blobs.Put(ctx, blobstore.Metadata{
		FileName:       image.FileName,
		ContentType:    image.ContentType,
		Purpose:        blobstore.PurposeSignature,
		OrganizationID: doc.OrganizationID,
		CreatedBy:      caller.UserID,
	}, image.Content)
	if err != nil {
		return nil, blobError(op, err, "imagen")
	}

	now := s.now().UTC()
	next := doc.Clone()
	next.PutSignature(safety.Signature{Role: role, SignerID: caller.UserID, SignedAt: now, BlobRef: string(ref)})
	next.UpdatedAt = now
	if err := s.save(ctx, op, next, doc.Version); err != nil {
		return nil, err
	}
	return s.outcome(ctx, next, roles)
}

// AttachResult stores an exam result file and references it from the exam.
// It is a clinical write.
func (s *Service) AttachResult(ctx context.Context, caller auth.Identity, id uuid.UUID, expectedVersion int, file Upload) (out *Outcome, err error) {
	ctx, span := s.startSpan(ctx, "workflow.AttachResult", safety.KindMedicalExam)
	defer func() { endSpan(span, err) }()

	const op = "attach emo result"
	roles := access.ParseRoles(caller.Roles)
	if err := access.AssertCanWrite(safety.KindMedicalExam, safety.FieldResultAttachment, roles); err != nil {
		return nil, err
	}
	doc, err := s.load(ctx, op, roles, caller, safety.KindMedicalExam, id)
	if err != nil {
		return nil, err
	}
	if !doc.Kind.Editable(doc.State) {
		return nil, safety.InvalidTransition(op, safety.GuardStateNotEditable,
			"emo does not accept attachments in state %q", doc.State)
	}
	if err := checkVersion(op, doc, expectedVersion); err != nil {
		return nil, err
	}

	ref, err := s.blobs.Put(ctx, blobstore.Metadata{
		FileName:       file.FileName,
		ContentType:    file.ContentType,
		Purpose:        blobstore.PurposeResult,
		OrganizationID: doc.OrganizationID,
		CreatedBy:      caller.UserID,
	}, file.Content)
	if err != nil {
		return nil, blobError(op, err, string(safety.FieldResultAttachment))
	}

	next := doc.Clone()
	next.MedicalExam.ResultRef = string(ref)
	next.UpdatedAt = s.now().UTC()
	if err := s.save(ctx, op, next, doc.Version); err != nil {
		return nil, err
	}
	return s.outcome(ctx, next, roles)
}
