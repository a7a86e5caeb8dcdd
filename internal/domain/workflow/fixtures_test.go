package workflow

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/sst/sst/internal/domain/safety"
	"github.com/sst/sst/internal/platform/auth"
	"github.com/sst/sst/internal/platform/blobstore"
)

const testOrg = "org-1"

var testNow = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

var (
	engineer     = auth.Identity{UserID: "ing-1", Roles: []string{"ingeniero_sst"}, OrganizationID: testOrg}
	doctor       = auth.Identity{UserID: "med-1", Roles: []string{"medico"}, OrganizationID: testOrg}
	companyAdmin = auth.Identity{UserID: "adm-1", Roles: []string{"admin_empresa"}, OrganizationID: testOrg}
	supervisor   = auth.Identity{UserID: "sup-1", Roles: []string{"supervisor"}, OrganizationID: testOrg}
	trainer      = auth.Identity{UserID: "cap-1", Roles: []string{"capacitador"}, OrganizationID: testOrg}
	worker       = auth.Identity{UserID: "trab-1", Roles: []string{"trabajador"}, OrganizationID: testOrg}
	outsider     = auth.Identity{UserID: "ing-9", Roles: []string{"ingeniero_sst"}, OrganizationID: "org-2"}
)

type testEnv struct {
	svc   *Service
	repo  *safety.MemoryRepository
	blobs *blobstore.MemoryStore
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	repo := safety.NewMemoryRepository()
	blobs := blobstore.NewMemoryStore(blobstore.NewURLSigner([]byte("test-blob-secret"), "http://localhost:8000/blobs"))
	engine := NewEngine(nil, DefaultOptions())
	engine.now = func() time.Time { return testNow }
	svc := NewService(repo, engine, blobs)
	svc.now = func() time.Time { return testNow }
	return &testEnv{svc: svc, repo: repo, blobs: blobs}
}

// seed stores doc as a new document and returns it with its version set.
func (e *testEnv) seed(t *testing.T, doc *safety.Document) *safety.Document {
	t.Helper()
	require.NoError(t, e.repo.Save(context.Background(), doc, 0))
	return doc
}

func (e *testEnv) load(t *testing.T, kind safety.Kind, id uuid.UUID) *safety.Document {
	t.Helper()
	doc, err := e.repo.Load(context.Background(), kind, id)
	require.NoError(t, err)
	return doc
}

func newDoc(kind safety.Kind) *safety.Document {
	return safety.NewDocument(kind, testOrg, "ing-1", testNow.Add(-time.Hour))
}

func sign(doc *safety.Document, roles ...safety.SignatureRole) {
	for _, r := range roles {
		doc.PutSignature(safety.Signature{Role: r, SignerID: "ing-1", SignedAt: testNow, BlobRef: "org-1/firma/" + string(r)})
	}
}

// scorableLine scores 8 x 3 = 24, moderado.
func scorableLine() safety.RiskLine {
	return safety.RiskLine{
		ID:                "l1",
		Activity:          "Mantenimiento",
		Task:              "Cambio de faja",
		Hazard:            "Partes en movimiento",
		Risk:              "Atrapamiento",
		PeopleExposed:     2,
		Procedures:        2,
		Training:          2,
		ExposureFrequency: 2,
		Severity:          3,
	}
}

func trainingWithParticipants(workers ...string) *safety.Document {
	doc := newDoc(safety.KindTrainingSession)
	doc.TrainingSession.Topic = "Trabajo en altura"
	for _, w := range workers {
		doc.TrainingSession.Participants = append(doc.TrainingSession.Participants, safety.Participant{WorkerID: w})
	}
	return doc
}

func examIn(state safety.State) *safety.Document {
	doc := newDoc(safety.KindMedicalExam)
	doc.State = state
	doc.MedicalExam.WorkerID = "trab-1"
	doc.MedicalExam.ExamType = "periodico"
	return doc
}
