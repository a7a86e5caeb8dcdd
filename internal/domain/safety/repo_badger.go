package safety

import (
	"context"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

// Key layout:
//
//	doc/<id>                          encoded document
//	idx/<kind>/<org>/<created>/<id>   listing index, empty value
//	fu/<exam>/<item>                  encoded follow-up
const (
	docPrefix      = "doc/"
	indexPrefix    = "idx/"
	followUpPrefix = "fu/"
)

// BadgerRepository is an embedded Repository. Optimistic version checks run
// inside a badger transaction, so a concurrent commit surfaces as ErrConflict
// and is reported as StaleWrite.
type BadgerRepository struct {
	db *badger.DB
}

func NewBadgerRepository(db *badger.DB) *BadgerRepository {
	return &BadgerRepository{db: db}
}

type badgerTxKey struct{}

func badgerTxFrom(ctx context.Context) *badger.Txn {
	txn, _ := ctx.Value(badgerTxKey{}).(*badger.Txn)
	return txn
}

// update runs fn in the transaction carried by ctx, or in a fresh one.
func (r *BadgerRepository) update(ctx context.Context, fn func(txn *badger.Txn) error) error {
	if txn := badgerTxFrom(ctx); txn != nil {
		return fn(txn)
	}
	return r.db.Update(fn)
}

func (r *BadgerRepository) view(ctx context.Context, fn func(txn *badger.Txn) error) error {
	if txn := badgerTxFrom(ctx); txn != nil {
		return fn(txn)
	}
	return r.db.View(fn)
}

// InTx runs fn inside a single read-write badger transaction. Every
// repository call made with the ctx passed to fn joins it, and the writes
// commit together only when fn returns nil.
func (r *BadgerRepository) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if badgerTxFrom(ctx) != nil {
		return fn(ctx)
	}
	err := r.db.Update(func(txn *badger.Txn) error {
		if err := fn(context.WithValue(ctx, badgerTxKey{}, txn)); err != nil {
			return err
		}
		return ctx.Err()
	})
	if errors.Is(err, badger.ErrConflict) {
		return &Error{Code: CodeStaleWrite, Op: "commit transaction", Message: "a concurrent write committed first", Err: err}
	}
	return RepositoryError("commit transaction", err)
}

func docKey(id uuid.UUID) []byte { return []byte(docPrefix + id.String()) }

func indexKeyPrefix(kind Kind, orgID string) []byte {
	return []byte(fmt.Sprintf("%s%s/%s/", indexPrefix, kind, orgID))
}

func indexKey(doc *Document) []byte {
	return []byte(fmt.Sprintf("%s%020d/%s", indexKeyPrefix(doc.Kind, doc.OrganizationID),
		doc.CreatedAt.UnixNano(), doc.ID))
}

func followUpKey(examID, itemID uuid.UUID) []byte {
	return []byte(followUpPrefix + examID.String() + "/" + itemID.String())
}

func (r *BadgerRepository) Load(ctx context.Context, kind Kind, id uuid.UUID) (*Document, error) {
	const op = "load document"
	if err := ctx.Err(); err != nil {
		return nil, RepositoryError(op, err)
	}
	var doc *Document
	err := r.view(ctx, func(txn *badger.Txn) error {
		d, err := getDocument(txn, id)
		doc = d
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) || (err == nil && doc.Kind != kind) {
		return nil, NotFound(op, string(kind)+" "+id.String())
	}
	if err != nil {
		return nil, RepositoryError(op, err)
	}
	return doc, nil
}

func getDocument(txn *badger.Txn, id uuid.UUID) (*Document, error) {
	item, err := txn.Get(docKey(id))
	if err != nil {
		return nil, err
	}
	var doc *Document
	err = item.Value(func(val []byte) error {
		d, err := decodeDocument(val)
		doc = d
		return err
	})
	return doc, err
}

func (r *BadgerRepository) Save(ctx context.Context, doc *Document, expectedVersion int) error {
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

	err = r.update(ctx, func(txn *badger.Txn) error {
		current := 0
		existing, err := getDocument(txn, doc.ID)
		switch {
		case errors.Is(err, badger.ErrKeyNotFound):
		case err != nil:
			return err
		default:
			if existing.Kind != doc.Kind {
				return Validation(op, []string{"tipo"}, "document %s is a %s", doc.ID, existing.Kind)
			}
			current = existing.Version
		}
		if current != expectedVersion {
			return StaleWrite(op, expectedVersion, current)
		}
		if err := txn.Set(docKey(doc.ID), data); err != nil {
			return err
		}
		if expectedVersion == 0 {
			return txn.Set(indexKey(&next), nil)
		}
		return nil
	})
	if errors.Is(err, badger.ErrConflict) {
		return StaleWrite(op, expectedVersion, r.versionOf(doc.ID))
	}
	if err != nil {
		return RepositoryError(op, err)
	}
	doc.Version = next.Version
	return nil
}

func (r *BadgerRepository) versionOf(id uuid.UUID) int {
	var v int
	_ = r.db.View(func(txn *badger.Txn) error {
		d, err := getDocument(txn, id)
		if err == nil {
			v = d.Version
		}
		return nil
	})
	return v
}

func (r *BadgerRepository) List(ctx context.Context, kind Kind, orgID string, limit, offset int) ([]*Document, int, error) {
	const op = "list documents"
	if err := ctx.Err(); err != nil {
		return nil, 0, RepositoryError(op, err)
	}
	var out []*Document
	total := 0
	err := r.view(ctx, func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		prefix := indexKeyPrefix(kind, orgID)
		it := txn.NewIterator(opts)
		defer it.Close()

		var ids []uuid.UUID
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			key := it.Item().Key()
			id, err := uuid.ParseBytes(key[len(key)-36:])
			if err != nil {
				return fmt.Errorf("parse index key %q: %w", key, err)
			}
			ids = append(ids, id)
		}
		total = len(ids)
		for _, id := range window(ids, limit, offset) {
			doc, err := getDocument(txn, id)
			if err != nil {
				return err
			}
			out = append(out, doc)
		}
		return nil
	})
	if err != nil {
		return nil, 0, RepositoryError(op, err)
	}
	return out, total, nil
}

func (r *BadgerRepository) ListFollowUps(ctx context.Context, examID uuid.UUID) ([]*FollowUp, error) {
	const op = "list follow-ups"
	if err := ctx.Err(); err != nil {
		return nil, RepositoryError(op, err)
	}
	var out []*FollowUp
	err := r.view(ctx, func(txn *badger.Txn) error {
		prefix := []byte(followUpPrefix + examID.String() + "/")
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				item, err := decodeFollowUp(val)
				if err == nil {
					out = append(out, item)
				}
				return err
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, RepositoryError(op, err)
	}
	sortFollowUps(out)
	return out, nil
}

func (r *BadgerRepository) SaveFollowUp(ctx context.Context, item *FollowUp) error {
	const op = "save follow-up"
	if err := ctx.Err(); err != nil {
		return RepositoryError(op, err)
	}
	data, err := encodeFollowUp(item)
	if err != nil {
		return RepositoryError(op, err)
	}
	return RepositoryError(op, r.update(ctx, func(txn *badger.Txn) error {
		return txn.Set(followUpKey(item.ExamID, item.ID), data)
	}))
}

func (r *BadgerRepository) DeleteFollowUp(ctx context.Context, examID, itemID uuid.UUID) error {
	const op = "delete follow-up"
	if err := ctx.Err(); err != nil {
		return RepositoryError(op, err)
	}
	err := r.update(ctx, func(txn *badger.Txn) error {
		key := followUpKey(examID, itemID)
		if _, err := txn.Get(key); err != nil {
			return err
		}
		return txn.Delete(key)
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return NotFound(op, "follow-up "+itemID.String())
	}
	return RepositoryError(op, err)
}
