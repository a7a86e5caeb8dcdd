package workflow

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/sst/sst/internal/domain/access"
	"github.com/sst/sst/internal/domain/safety"
	"github.com/sst/sst/internal/platform/auth"
)

// nextProcedureVersion builds the borrador that replaces an obsoleted PETS.
// The content is carried over; signatures are not.
func nextProcedureVersion(old *safety.Document, createdBy string, now time.Time) *safety.Document {
	doc := safety.NewDocument(safety.KindSafeWorkProcedure, old.OrganizationID, createdBy, now)
	prev := old.ID
	p := old.SafeWorkProcedure
	doc.SafeWorkProcedure = &safety.SafeWorkProcedure{
		Code:            p.Code,
		Title:           p.Title,
		Objective:       p.Objective,
		Scope:           p.Scope,
		Body:            p.Body,
		Responsible:     append([]string(nil), p.Responsible...),
		DocumentVersion: p.DocumentVersion + 1,
		PreviousID:      &prev,
	}
	return doc
}

// DiffChunk is one run of equal, inserted or deleted text.
type DiffChunk struct {
	Op   string `json:"op"`
	Text string `json:"texto"`
}

// ProcedureDiff compares two PETS documents.
type ProcedureDiff struct {
	FromID      uuid.UUID   `json:"desde_id"`
	ToID        uuid.UUID   `json:"hacia_id"`
	FromVersion int         `json:"desde_version"`
	ToVersion   int         `json:"hacia_version"`
	Chunks      []DiffChunk `json:"cambios"`
	Patch       string      `json:"patch"`
	Changed     bool        `json:"modificado"`
}

// procedureText renders the comparable content of a PETS.
func procedureText(p *safety.SafeWorkProcedure) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Codigo: %s\n", p.Code)
	fmt.Fprintf(&b, "Titulo: %s\n", p.Title)
	fmt.Fprintf(&b, "Objetivo: %s\n", p.Objective)
	fmt.Fprintf(&b, "Alcance: %s\n", p.Scope)
	fmt.Fprintf(&b, "Responsables: %s\n\n", strings.Join(p.Responsible, ", "))
	b.WriteString(p.Body)
	if !strings.HasSuffix(p.Body, "\n") {
		b.WriteString("\n")
	}
	return b.String()
}

func diffOp(op diffmatchpatch.Operation) string {
	switch op {
	case diffmatchpatch.DiffInsert:
		return "insert"
	case diffmatchpatch.DiffDelete:
		return "delete"
	default:
		return "equal"
	}
}

// DiffProcedures returns the textual difference from one procedure version to
// another.
func (s *Service) DiffProcedures(ctx context.Context, caller auth.Identity, fromID, toID uuid.UUID) (*ProcedureDiff, error) {
	const op = "diff pets"
	roles := access.ParseRoles(caller.Roles)
	if err := access.AssertCapability(op, roles, access.CapReadDocuments); err != nil {
		return nil, err
	}
	from, err := s.load(ctx, op, roles, caller, safety.KindSafeWorkProcedure, fromID)
	if err != nil {
		return nil, err
	}
	to, err := s.load(ctx, op, roles, caller, safety.KindSafeWorkProcedure, toID)
	if err != nil {
		return nil, err
	}

	a, b := procedureText(from.SafeWorkProcedure), procedureText(to.SafeWorkProcedure)
	dmp := diffmatchpatch.New()
	diffs := dmp.DiffMain(a, b, false)
	diffs = dmp.DiffCleanupSemantic(diffs)

	out := &ProcedureDiff{
		FromID:      from.ID,
		ToID:        to.ID,
		FromVersion: from.SafeWorkProcedure.DocumentVersion,
		ToVersion:   to.SafeWorkProcedure.DocumentVersion,
		Chunks:      make([]DiffChunk, 0, len(diffs)),
		Patch:       dmp.PatchToText(dmp.PatchMake(a, diffs)),
	}
	for _, d := range diffs {
		if d.Type != diffmatchpatch.DiffEqual {
			out.Changed = true
		}
		out.Chunks = append(out.Chunks, DiffChunk{Op: diffOp(d.Type), Text: d.Text})
	}
	return out, nil
}
