package safety

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// Repository persists safety documents and the follow-up items of medical
// exams. Documents are never deleted.
//
// Save succeeds only when the stored version equals expectedVersion (0 means
// the document must not exist yet). On success doc.Version is advanced by one;
// on StaleWrite the caller's document is left untouched.
type Repository interface {
	Load(ctx context.Context, kind Kind, id uuid.UUID) (*Document, error)
	Save(ctx context.Context, doc *Document, expectedVersion int) error
	List(ctx context.Context, kind Kind, orgID string, limit, offset int) ([]*Document, int, error)

	ListFollowUps(ctx context.Context, examID uuid.UUID) ([]*FollowUp, error)
	SaveFollowUp(ctx context.Context, item *FollowUp) error
	DeleteFollowUp(ctx context.Context, examID, itemID uuid.UUID) error
}

// Transactor is implemented by repositories that can group several writes
// atomically. A transition that writes more than one document requires it.
type Transactor interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// encodeDocument produces the storage form of doc. Derived risk values have no
// representation in Document, so they can never reach storage.
func encodeDocument(doc *Document) ([]byte, error) {
	if err := doc.Validate(); err != nil {
		return nil, err
	}
	b, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encode document %s: %w", doc.ID, err)
	}
	return b, nil
}

func decodeDocument(b []byte) (*Document, error) {
	var doc Document
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	return &doc, nil
}

func encodeFollowUp(item *FollowUp) ([]byte, error) {
	b, err := json.Marshal(item)
	if err != nil {
		return nil, fmt.Errorf("encode follow-up %s: %w", item.ID, err)
	}
	return b, nil
}

func decodeFollowUp(b []byte) (*FollowUp, error) {
	var item FollowUp
	if err := json.Unmarshal(b, &item); err != nil {
		return nil, fmt.Errorf("decode follow-up: %w", err)
	}
	return &item, nil
}

// window applies limit/offset to an already filtered slice.
func window[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return nil
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
