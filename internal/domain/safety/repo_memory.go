package safety

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

type memoryEntry struct {
	kind      Kind
	orgID     string
	createdAt time.Time
	version   int
	data      []byte
}

// MemoryRepository is a thread-safe Repository for tests and single-node
// development. Documents are held in their encoded form so that every Load
// returns an independent copy.
type MemoryRepository struct {
	mu        sync.RWMutex
	docs      map[uuid.UUID]*memoryEntry
	followUps map[uuid.UUID]map[uuid.UUID][]byte
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		docs:      make(map[uuid.UUID]*memoryEntry),
		followUps: make(map[uuid.UUID]map[uuid.UUID][]byte),
	}
}

func (r *MemoryRepository) Load(ctx context.Context, kind Kind, id uuid.UUID) (*Document, error) {
	const op = "load document"
	if err := ctx.Err(); err != nil {
		return nil, RepositoryError(op, err)
	}
	var e *memoryEntry
	ok := false
	if tx := memoryTxFrom(ctx); tx != nil {
		e, ok = tx.docs[id]
	}
	if !ok {
		r.mu.RLock()
		e, ok = r.docs[id]
		r.mu.RUnlock()
	}
	if !ok || e.kind != kind {
		return nil, NotFound(op, string(kind)+" "+id.String())
	}
	doc, err := decodeDocument(e.data)
	if err != nil {
		return nil, RepositoryError(op, err)
	}
	return doc, nil
}

func (r *MemoryRepository) Save(ctx context.Context, doc *Document, expectedVersion int) error {
	const op = "save document"
	if err := ctx.Err(); err != nil {
		return RepositoryError(op, err)
	}
	next := *doc
	next.Version = expectedVersion + 1
	data, err := encodeDocument(&next)
	if err != nil {
		return RepositoryError(op, err)
	}
	entry := &memoryEntry{
		kind:      doc.Kind,
		orgID:     doc.OrganizationID,
		createdAt: doc.CreatedAt,
		version:   next.Version,
		data:      data,
	}

	if tx := memoryTxFrom(ctx); tx != nil {
		if err := r.stage(tx, op, doc.ID, entry, expectedVersion); err != nil {
			return err
		}
		doc.Version = next.Version
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.checkVersion(op, doc.ID, doc.Kind, expectedVersion, r.docs[doc.ID]); err != nil {
		return err
	}
	r.docs[doc.ID] = entry
	doc.Version = next.Version
	return nil
}

func (r *MemoryRepository) checkVersion(op string, id uuid.UUID, kind Kind, expectedVersion int, e *memoryEntry) error {
	current := 0
	if e != nil {
		if e.kind != kind {
			return Validation(op, []string{"tipo"}, "document %s is a %s", id, e.kind)
		}
		current = e.version
	}
	if current != expectedVersion {
		return StaleWrite(op, expectedVersion, current)
	}
	return nil
}

// memoryTx collects the writes of one InTx call. Nothing is visible to other
// callers until commit, and commit applies every write or none.
type memoryTx struct {
	docs      map[uuid.UUID]*memoryEntry
	base      map[uuid.UUID]int
	followUps []func(r *MemoryRepository)
}

type memoryTxKey struct{}

func memoryTxFrom(ctx context.Context) *memoryTx {
	tx, _ := ctx.Value(memoryTxKey{}).(*memoryTx)
	return tx
}

// stage records a document write in tx after checking it against the staged
// or committed version.
func (r *MemoryRepository) stage(tx *memoryTx, op string, id uuid.UUID, entry *memoryEntry, expectedVersion int) error {
	e, staged := tx.docs[id]
	if !staged {
		r.mu.RLock()
		e = r.docs[id]
		r.mu.RUnlock()
	}
	if err := r.checkVersion(op, id, entry.kind, expectedVersion, e); err != nil {
		return err
	}
	if _, ok := tx.base[id]; !ok {
		tx.base[id] = expectedVersion
	}
	tx.docs[id] = entry
	return nil
}

// InTx runs fn with a context whose repository writes are staged and applied
// atomically when fn returns nil. A version that moved underneath the
// transaction fails the whole commit with StaleWrite.
func (r *MemoryRepository) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if memoryTxFrom(ctx) != nil {
		return fn(ctx)
	}
	tx := &memoryTx{docs: make(map[uuid.UUID]*memoryEntry), base: make(map[uuid.UUID]int)}
	if err := fn(context.WithValue(ctx, memoryTxKey{}, tx)); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return RepositoryError("commit transaction", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for id, base := range tx.base {
		current := 0
		if e, ok := r.docs[id]; ok {
			current = e.version
		}
		if current != base {
			return StaleWrite("commit transaction", base, current)
		}
	}
	for id, e := range tx.docs {
		r.docs[id] = e
	}
	for _, apply := range tx.followUps {
		apply(r)
	}
	return nil
}

func (r *MemoryRepository) List(ctx context.Context, kind Kind, orgID string, limit, offset int) ([]*Document, int, error) {
	const op = "list documents"
	if err := ctx.Err(); err != nil {
		return nil, 0, RepositoryError(op, err)
	}
	type match struct {
		id uuid.UUID
		e  *memoryEntry
	}
	r.mu.RLock()
	var matches []match
	for id, e := range r.docs {
		if e.kind == kind && e.orgID == orgID {
			matches = append(matches, match{id, e})
		}
	}
	r.mu.RUnlock()

	sort.Slice(matches, func(i, j int) bool {
		if !matches[i].e.createdAt.Equal(matches[j].e.createdAt) {
			return matches[i].e.createdAt.Before(matches[j].e.createdAt)
		}
		return matches[i].id.String() < matches[j].id.String()
	})

	total := len(matches)
	var out []*Document
	for _, m := range window(matches, limit, offset) {
		doc, err := decodeDocument(m.e.data)
		if err != nil {
			return nil, 0, RepositoryError(op, err)
		}
		out = append(out, doc)
	}
	return out, total, nil
}

func (r *MemoryRepository) ListFollowUps(ctx context.Context, examID uuid.UUID) ([]*FollowUp, error) {
	const op = "list follow-ups"
	if err := ctx.Err(); err != nil {
		return nil, RepositoryError(op, err)
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*FollowUp
	for _, data := range r.followUps[examID] {
		item, err := decodeFollowUp(data)
		if err != nil {
			return nil, RepositoryError(op, err)
		}
		out = append(out, item)
	}
	sortFollowUps(out)
	return out, nil
}

func (r *MemoryRepository) SaveFollowUp(ctx context.Context, item *FollowUp) error {
	const op = "save follow-up"
	if err := ctx.Err(); err != nil {
		return RepositoryError(op, err)
	}
	data, err := encodeFollowUp(item)
	if err != nil {
		return RepositoryError(op, err)
	}
	examID, itemID := item.ExamID, item.ID
	if tx := memoryTxFrom(ctx); tx != nil {
		tx.followUps = append(tx.followUps, func(r *MemoryRepository) { r.putFollowUp(examID, itemID, data) })
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.putFollowUp(examID, itemID, data)
	return nil
}

// putFollowUp stores an encoded item. The caller holds r.mu.
func (r *MemoryRepository) putFollowUp(examID, itemID uuid.UUID, data []byte) {
	items, ok := r.followUps[examID]
	if !ok {
		items = make(map[uuid.UUID][]byte)
		r.followUps[examID] = items
	}
	items[itemID] = data
}

func (r *MemoryRepository) DeleteFollowUp(ctx context.Context, examID, itemID uuid.UUID) error {
	const op = "delete follow-up"
	if err := ctx.Err(); err != nil {
		return RepositoryError(op, err)
	}
	if tx := memoryTxFrom(ctx); tx != nil {
		r.mu.RLock()
		_, ok := r.followUps[examID][itemID]
		r.mu.RUnlock()
		if !ok {
			return NotFound(op, "follow-up "+itemID.String())
		}
		tx.followUps = append(tx.followUps, func(r *MemoryRepository) { delete(r.followUps[examID], itemID) })
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.followUps[examID][itemID]; !ok {
		return NotFound(op, "follow-up "+itemID.String())
	}
	delete(r.followUps[examID], itemID)
	return nil
}

func sortFollowUps(items []*FollowUp) {
	sort.Slice(items, func(i, j int) bool {
		if !items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].CreatedAt.Before(items[j].CreatedAt)
		}
		return items[i].ID.String() < items[j].ID.String()
	})
}
