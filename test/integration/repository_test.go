package integration

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/sst/sst/internal/domain/safety"
)

func TestPGRepository_SaveLoadAndVersioning(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()

	doc := safety.NewDocument(safety.KindMedicalExam, "org-1", "med-1", testNow)
	doc.MedicalExam.WorkerID = "trab-1"
	doc.MedicalExam.Diagnoses = []safety.Diagnosis{{Code: "J45.0", Description: "asma"}}
	if err := repo.Save(ctx, doc, 0); err != nil {
		t.Fatalf("save: %v", err)
	}
	if doc.Version != 1 {
		t.Fatalf("expected version 1, got %d", doc.Version)
	}

	got, err := repo.Load(ctx, safety.KindMedicalExam, doc.ID)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.MedicalExam.WorkerID != "trab-1" || len(got.MedicalExam.Diagnoses) != 1 {
		t.Errorf("unexpected exam %+v", got.MedicalExam)
	}
	if !got.CreatedAt.Equal(doc.CreatedAt) {
		t.Errorf("created_at changed: %v vs %v", got.CreatedAt, doc.CreatedAt)
	}

	next := got.Clone()
	next.MedicalExam.Observations = "control en 6 meses"
	if err := repo.Save(ctx, next, 1); err != nil {
		t.Fatalf("update: %v", err)
	}
	if next.Version != 2 {
		t.Errorf("expected version 2, got %d", next.Version)
	}

	stale := got.Clone()
	if err := repo.Save(ctx, stale, 1); !errors.Is(err, safety.ErrStaleWrite) {
		t.Errorf("expected stale write, got %v", err)
	}

	if _, err := repo.Load(ctx, safety.KindRiskAssessment, doc.ID); !errors.Is(err, safety.ErrNotFound) {
		t.Errorf("expected not found for the wrong kind, got %v", err)
	}
}

func TestPGRepository_ListScopesAndPages(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()

	var ids []uuid.UUID
	for i := 0; i < 4; i++ {
		doc := safety.NewDocument(safety.KindSafeWorkProcedure, "org-1", "ing-1", testNow.Add(time.Duration(i)*time.Minute))
		if err := repo.Save(ctx, doc, 0); err != nil {
			t.Fatalf("save: %v", err)
		}
		ids = append(ids, doc.ID)
	}
	if err := repo.Save(ctx, safety.NewDocument(safety.KindSafeWorkProcedure, "org-2", "ing-9", testNow), 0); err != nil {
		t.Fatalf("save: %v", err)
	}

	page, total, err := repo.List(ctx, safety.KindSafeWorkProcedure, "org-1", 2, 1)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if total != 4 {
		t.Errorf("expected total 4, got %d", total)
	}
	if len(page) != 2 || page[0].ID != ids[1] || page[1].ID != ids[2] {
		t.Errorf("unexpected page %v", page)
	}
}

func TestPGRepository_FollowUps(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()

	exam := safety.NewDocument(safety.KindMedicalExam, "org-1", "med-1", testNow)
	if err := repo.Save(ctx, exam, 0); err != nil {
		t.Fatalf("save exam: %v", err)
	}
	item := &safety.FollowUp{ID: uuid.New(), ExamID: exam.ID, Kind: safety.FollowUpReferral, Code: "H52.1",
		Specialty: "oftalmologia", Status: safety.FollowUpPending, CreatedBy: "med-1", CreatedAt: testNow}
	if err := repo.SaveFollowUp(ctx, item); err != nil {
		t.Fatalf("save follow-up: %v", err)
	}

	resolved := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	item.Status = safety.FollowUpResolved
	item.ResolvedAt = &resolved
	if err := repo.SaveFollowUp(ctx, item); err != nil {
		t.Fatalf("update follow-up: %v", err)
	}

	items, err := repo.ListFollowUps(ctx, exam.ID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(items) != 1 || items[0].Status != safety.FollowUpResolved || items[0].PendingReferral() {
		t.Fatalf("unexpected follow-ups %+v", items)
	}

	if err := repo.DeleteFollowUp(ctx, exam.ID, item.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := repo.DeleteFollowUp(ctx, exam.ID, item.ID); !errors.Is(err, safety.ErrNotFound) {
		t.Errorf("expected not found on second delete, got %v", err)
	}
}

func TestPGRepository_InTxRollsBack(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()

	doc := safety.NewDocument(safety.KindRiskAssessment, "org-1", "ing-1", testNow)
	boom := errors.New("boom")
	err := repo.InTx(ctx, func(ctx context.Context) error {
		if err := repo.Save(ctx, doc, 0); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected the callback error, got %v", err)
	}
	if _, err := repo.Load(ctx, safety.KindRiskAssessment, doc.ID); !errors.Is(err, safety.ErrNotFound) {
		t.Errorf("expected the save to be rolled back, got %v", err)
	}
}
