package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/sst/sst/internal/domain/access"
	"github.com/sst/sst/internal/domain/safety"
	"github.com/sst/sst/internal/platform/auth"
	"github.com/sst/sst/internal/platform/blobstore"
)

// DefaultURLTTL is how long signed attachment URLs stay valid.
const DefaultURLTTL = 5 * time.Minute

// Outcome is what a service operation hands back to the transport: the
// caller's filtered view of the document and anything that accompanied the
// write.
type Outcome struct {
	View       access.View `json:"documento"`
	Decision   *Decision   `json:"transicion,omitempty"`
	Advisories []Advisory  `json:"advertencias,omitempty"`
	// Created is the id of a document created as a side effect (nueva_version).
	Created *uuid.UUID `json:"documento_creado_id,omitempty"`

	Version   int            `json:"-"`
	Disclosed []safety.Field `json:"-"`
}

// Service applies workflow operations against a repository.
type Service struct {
	repo     safety.Repository
	engine   *Engine
	blobs    blobstore.Store
	advisors []Advisor
	urlTTL   time.Duration
	now      func() time.Time
}

func NewService(repo safety.Repository, engine *Engine, blobs blobstore.Store) *Service {
	return &Service{repo: repo, engine: engine, blobs: blobs, urlTTL: DefaultURLTTL, now: time.Now}
}

// AddAdvisor attaches an advisor consulted on every accepted field edit.
func (s *Service) AddAdvisor(a Advisor) {
	s.advisors = append(s.advisors, a)
}

// SetURLTTL overrides the lifetime of signed attachment URLs.
func (s *Service) SetURLTTL(ttl time.Duration) {
	if ttl > 0 {
		s.urlTTL = ttl
	}
}

// Engine returns the service's transition evaluator.
func (s *Service) Engine() *Engine { return s.engine }

func (s *Service) startSpan(ctx context.Context, name string, kind safety.Kind, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	attrs = append(attrs, attribute.String("sst.kind", string(kind)))
	return tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// load fetches a document and checks that the caller's organization owns it.
func (s *Service) load(ctx context.Context, op string, roles access.Roles, caller auth.Identity, kind safety.Kind, id uuid.UUID) (*safety.Document, error) {
	doc, err := s.repo.Load(ctx, kind, id)
	if err != nil {
		return nil, safety.RepositoryError(op, err)
	}
	if err := access.AssertOrganization(op, roles, caller.OrganizationID, doc.OrganizationID); err != nil {
		return nil, err
	}
	return doc, nil
}

// save writes doc with the version it was loaded at, after the context check.
func (s *Service) save(ctx context.Context, op string, doc *safety.Document, expectedVersion int) error {
	if err := ctx.Err(); err != nil {
		return safety.RepositoryError(op, err)
	}
	if err := s.repo.Save(ctx, doc, expectedVersion); err != nil {
		return safety.RepositoryError(op, err)
	}
	return nil
}

func checkVersion(op string, doc *safety.Document, expectedVersion int) error {
	if expectedVersion > 0 && expectedVersion != doc.Version {
		return safety.StaleWrite(op, expectedVersion, doc.Version)
	}
	return nil
}

func (s *Service) outcome(ctx context.Context, doc *safety.Document, roles access.Roles) (*Outcome, error) {
	view, disclosed, err := s.render(ctx, doc, roles)
	if err != nil {
		return nil, err
	}
	return &Outcome{View: view, Version: doc.Version, Disclosed: disclosed}, nil
}

// Create stores a new document of kind in its initial state. orgID defaults
// to the caller's organization. Initial field values go through the same write
// checks as UpdateFields.
func (s *Service) Create(ctx context.Context, caller auth.Identity, kind safety.Kind, orgID string, patch Patch) (out *Outcome, err error) {
	ctx, span := s.startSpan(ctx, "workflow.Create", kind)
	defer func() { endSpan(span, err) }()

	op := "create " + string(kind)
	roles := access.ParseRoles(caller.Roles)
	if err := access.AssertCapability(op, roles, access.CreateCapability(kind)); err != nil {
		return nil, err
	}
	if orgID == "" {
		orgID = caller.OrganizationID
	}
	if err := access.AssertOrganization(op, roles, caller.OrganizationID, orgID); err != nil {
		return nil, err
	}
	for _, f := range patch.Fields() {
		if err := access.AssertCanWrite(kind, f, roles); err != nil {
			return nil, err
		}
	}

	doc := safety.NewDocument(kind, orgID, caller.UserID, s.now().UTC())
	if err := applyPatch(op, doc, patch); err != nil {
		return nil, err
	}
	if err := s.save(ctx, op, doc, 0); err != nil {
		return nil, err
	}
	return s.outcome(ctx, doc, roles)
}

// ReadFiltered returns the caller's redacted view of a document.
func (s *Service) ReadFiltered(ctx context.Context, caller auth.Identity, kind safety.Kind, id uuid.UUID) (out *Outcome, err error) {
	ctx, span := s.startSpan(ctx, "workflow.ReadFiltered", kind, attribute.String("sst.document_id", id.String()))
	defer func() { endSpan(span, err) }()

	op := "read " + string(kind)
	roles := access.ParseRoles(caller.Roles)
	if err := access.AssertCapability(op, roles, access.CapReadDocuments); err != nil {
		return nil, err
	}
	doc, err := s.load(ctx, op, roles, caller, kind, id)
	if err != nil {
		return nil, err
	}
	return s.outcome(ctx, doc, roles)
}

// Page is one page of filtered views.
type Page struct {
	Views     []access.View
	Total     int
	Disclosed []safety.Field
}

// List returns filtered views of the documents of kind in an organization.
func (s *Service) List(ctx context.Context, caller auth.Identity, kind safety.Kind, orgID string, limit, offset int) (page *Page, err error) {
	ctx, span := s.startSpan(ctx, "workflow.List", kind)
	defer func() { endSpan(span, err) }()

	op := "list " + string(kind)
	roles := access.ParseRoles(caller.Roles)
	if err := access.AssertCapability(op, roles, access.CapReadDocuments); err != nil {
		return nil, err
	}
	if orgID == "" {
		orgID = caller.OrganizationID
	}
	if err := access.AssertOrganization(op, roles, caller.OrganizationID, orgID); err != nil {
		return nil, err
	}
	docs, total, err := s.repo.List(ctx, kind, orgID, limit, offset)
	if err != nil {
		return nil, safety.RepositoryError(op, err)
	}
	page = &Page{Views: make([]access.View, 0, len(docs)), Total: total}
	seen := map[safety.Field]bool{}
	for _, doc := range docs {
		view, disclosed, err := s.render(ctx, doc, roles)
		if err != nil {
			return nil, err
		}
		page.Views = append(page.Views, view)
		for _, f := range disclosed {
			if !seen[f] {
				seen[f] = true
				page.Disclosed = append(page.Disclosed, f)
			}
		}
	}
	return page, nil
}

// Transitions lists the transitions the caller could fire on a document.
func (s *Service) Transitions(ctx context.Context, caller auth.Identity, kind safety.Kind, id uuid.UUID) ([]Decision, error) {
	op := "list transitions " + string(kind)
	roles := access.ParseRoles(caller.Roles)
	if err := access.AssertCapability(op, roles, access.CapReadDocuments); err != nil {
		return nil, err
	}
	doc, err := s.load(ctx, op, roles, caller, kind, id)
	if err != nil {
		return nil, err
	}
	out := s.engine.Available(doc, caller)
	if out == nil {
		out = []Decision{}
	}
	return out, nil
}

// EvaluateTransition fires transition name on a document. expectedVersion 0
// means the caller did not pin a version.
func (s *Service) EvaluateTransition(ctx context.Context, caller auth.Identity, kind safety.Kind, id uuid.UUID, name string, expectedVersion int) (out *Outcome, err error) {
	ctx, span := s.startSpan(ctx, "workflow.EvaluateTransition", kind,
		attribute.String("sst.document_id", id.String()), attribute.String("sst.transition", name))
	var noop bool
	defer func() {
		transitionsTotal.WithLabelValues(string(kind), name, outcome(err, noop)).Inc()
		endSpan(span, err)
	}()

	op := transitionOp(kind, name)
	roles := access.ParseRoles(caller.Roles)
	doc, err := s.repo.Load(ctx, kind, id)
	if err != nil {
		return nil, safety.RepositoryError(op, err)
	}
	return s.fire(ctx, caller, roles, doc, name, expectedVersion, s.now(), &noop)
}

// fire evaluates and applies one transition on a loaded document.
func (s *Service) fire(ctx context.Context, caller auth.Identity, roles access.Roles, doc *safety.Document, name string, expectedVersion int, now time.Time, noop *bool) (*Outcome, error) {
	op := transitionOp(doc.Kind, name)
	d, err := s.engine.evaluateAt(doc, name, caller, now)
	if err != nil {
		return nil, err
	}
	if err := checkVersion(op, doc, expectedVersion); err != nil {
		return nil, err
	}
	if d.NoOp {
		*noop = true
		out, err := s.outcome(ctx, doc, roles)
		if err != nil {
			return nil, err
		}
		out.Decision = &d
		return out, nil
	}

	next := s.engine.Apply(doc, d, now.UTC())
	var created *safety.Document
	if name == TransitionNewVersion && doc.Kind == safety.KindSafeWorkProcedure {
		created = nextProcedureVersion(next, caller.UserID, now.UTC())
	}

	write := func(ctx context.Context) error {
		if err := s.save(ctx, op, next, doc.Version); err != nil {
			return err
		}
		if created != nil {
			return s.save(ctx, op, created, 0)
		}
		return nil
	}
	switch tx, ok := s.repo.(safety.Transactor); {
	case created == nil:
		err = write(ctx)
	case ok:
		err = tx.InTx(ctx, write)
	default:
		err = fmt.Errorf("%s needs a transactional repository", name)
	}
	if err != nil {
		return nil, safety.RepositoryError(op, err)
	}

	out, err := s.outcome(ctx, next, roles)
	if err != nil {
		return nil, err
	}
	out.Decision = &d
	if created != nil {
		out.Created = &created.ID
	}
	return out, nil
}

// UpdateFields applies in-state field edits. Every field is authorized before
// the document is even loaded; then the state must accept edits; then values
// are decoded and checked; advisors run last, before the save.
func (s *Service) UpdateFields(ctx context.Context, caller auth.Identity, kind safety.Kind, id uuid.UUID, expectedVersion int, patch Patch) (out *Outcome, err error) {
	ctx, span := s.startSpan(ctx, "workflow.UpdateFields", kind, attribute.String("sst.document_id", id.String()))
	defer func() {
		fieldUpdatesTotal.WithLabelValues(string(kind), outcome(err, false)).Inc()
		endSpan(span, err)
	}()

	op := "update " + string(kind)
	roles := access.ParseRoles(caller.Roles)
	if len(patch) == 0 {
		return nil, safety.Validation(op, nil, "patch is empty")
	}
	for _, f := range patch.Fields() {
		if err := access.AssertCanWrite(kind, f, roles); err != nil {
			return nil, err
		}
	}

	doc, err := s.load(ctx, op, roles, caller, kind, id)
	if err != nil {
		return nil, err
	}
	if !kind.Editable(doc.State) {
		return nil, safety.InvalidTransition(op, safety.GuardStateNotEditable,
			"%s does not accept edits in state %q", kind, doc.State)
	}
	if err := checkVersion(op, doc, expectedVersion); err != nil {
		return nil, err
	}

	next := doc.Clone()
	if err := applyPatch(op, next, patch); err != nil {
		return nil, err
	}
	next.UpdatedAt = s.now().UTC()

	advisories, err := s.advise(ctx, doc, next)
	if err != nil {
		return nil, err
	}
	if err := s.save(ctx, op, next, doc.Version); err != nil {
		return nil, err
	}

	out, err = s.outcome(ctx, next, roles)
	if err != nil {
		return nil, err
	}
	out.Advisories = advisories
	return out, nil
}

func (s *Service) advise(ctx context.Context, before, after *safety.Document) ([]Advisory, error) {
	var out []Advisory
	for _, a := range s.advisors {
		adv, err := a.Advise(ctx, before, after)
		if err != nil {
			return nil, err
		}
		out = append(out, adv...)
	}
	for _, a := range out {
		advisoriesTotal.WithLabelValues(a.Code).Inc()
	}
	return out, nil
}

// EvaluateBatch fires the same transition on each document independently.
func (s *Service) EvaluateBatch(ctx context.Context, caller auth.Identity, kind safety.Kind, ids []uuid.UUID, name string) *safety.BatchResult {
	res := &safety.BatchResult{Items: []safety.BatchItem{}}
	for _, id := range ids {
		_, err := s.EvaluateTransition(ctx, caller, kind, id, name, 0)
		res.Record(id.String(), err)
	}
	return res
}
