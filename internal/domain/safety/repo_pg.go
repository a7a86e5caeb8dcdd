package safety

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sst/sst/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

// PGRepository stores documents in safety_documents with the header columns
// needed for filtering and the encoded document in a jsonb column.
type PGRepository struct{ pool *pgxpool.Pool }

func NewPGRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

func (r *PGRepository) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

// InTx runs fn in one database transaction shared by every repository call
// made with the derived context.
func (r *PGRepository) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return db.WithTx(ctx, r.pool, fn)
}

func (r *PGRepository) Load(ctx context.Context, kind Kind, id uuid.UUID) (*Document, error) {
	const op = "load document"
	var data []byte
	var version int
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT data, version FROM safety_documents WHERE id = $1 AND kind = $2`,
		id, string(kind)).Scan(&data, &version)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, NotFound(op, string(kind)+" "+id.String())
	}
	if err != nil {
		return nil, RepositoryError(op, err)
	}
	doc, err := decodeDocument(data)
	if err != nil {
		return nil, RepositoryError(op, err)
	}
	doc.Version = version
	return doc, nil
}

func (r *PGRepository) Save(ctx context.Context, doc *Document, expectedVersion int) error {
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

	q := r.conn(ctx)
	var tag pgconn.CommandTag
	if expectedVersion == 0 {
		tag, err = q.Exec(ctx, `
			INSERT INTO safety_documents (id, kind, organization_id, state, version, created_by, created_at, updated_at, data)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			ON CONFLICT (id) DO NOTHING`,
			next.ID, string(next.Kind), next.OrganizationID, string(next.State), next.Version,
			next.CreatedBy, next.CreatedAt, next.UpdatedAt, data)
	} else {
		tag, err = q.Exec(ctx, `
			UPDATE safety_documents
			SET state = $3, version = $4, updated_at = $5, data = $6
			WHERE id = $1 AND kind = $2 AND version = $7`,
			next.ID, string(next.Kind), string(next.State), next.Version, next.UpdatedAt, data, expectedVersion)
	}
	if err != nil {
		return RepositoryError(op, err)
	}
	if tag.RowsAffected() == 0 {
		current, err := r.currentVersion(ctx, q, next.ID)
		if err != nil {
			return RepositoryError(op, err)
		}
		return StaleWrite(op, expectedVersion, current)
	}
	doc.Version = next.Version
	return nil
}

func (r *PGRepository) currentVersion(ctx context.Context, q queryable, id uuid.UUID) (int, error) {
	var v int
	err := q.QueryRow(ctx, `SELECT version FROM safety_documents WHERE id = $1`, id).Scan(&v)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	return v, err
}

func (r *PGRepository) List(ctx context.Context, kind Kind, orgID string, limit, offset int) ([]*Document, int, error) {
	const op = "list documents"
	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM safety_documents WHERE kind = $1 AND organization_id = $2`,
		string(kind), orgID).Scan(&total); err != nil {
		return nil, 0, RepositoryError(op, err)
	}

	var lim any
	if limit > 0 {
		lim = limit
	}
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT data, version FROM safety_documents
		WHERE kind = $1 AND organization_id = $2
		ORDER BY created_at, id
		LIMIT $3 OFFSET $4`,
		string(kind), orgID, lim, offset)
	if err != nil {
		return nil, 0, RepositoryError(op, err)
	}
	defer rows.Close()

	var out []*Document
	for rows.Next() {
		var data []byte
		var version int
		if err := rows.Scan(&data, &version); err != nil {
			return nil, 0, RepositoryError(op, err)
		}
		doc, err := decodeDocument(data)
		if err != nil {
			return nil, 0, RepositoryError(op, err)
		}
		doc.Version = version
		out = append(out, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, RepositoryError(op, err)
	}
	return out, total, nil
}

func (r *PGRepository) ListFollowUps(ctx context.Context, examID uuid.UUID) ([]*FollowUp, error) {
	const op = "list follow-ups"
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT data FROM safety_follow_ups
		WHERE exam_id = $1
		ORDER BY created_at, id`, examID)
	if err != nil {
		return nil, RepositoryError(op, err)
	}
	defer rows.Close()

	var out []*FollowUp
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, RepositoryError(op, err)
		}
		item, err := decodeFollowUp(data)
		if err != nil {
			return nil, RepositoryError(op, err)
		}
		out = append(out, item)
	}
	if err := rows.Err(); err != nil {
		return nil, RepositoryError(op, err)
	}
	return out, nil
}

func (r *PGRepository) SaveFollowUp(ctx context.Context, item *FollowUp) error {
	const op = "save follow-up"
	data, err := encodeFollowUp(item)
	if err != nil {
		return RepositoryError(op, err)
	}
	_, err = r.conn(ctx).Exec(ctx, `
		INSERT INTO safety_follow_ups (id, exam_id, status, created_at, data)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET status = EXCLUDED.status, data = EXCLUDED.data`,
		item.ID, item.ExamID, string(item.Status), item.CreatedAt, data)
	return RepositoryError(op, err)
}

func (r *PGRepository) DeleteFollowUp(ctx context.Context, examID, itemID uuid.UUID) error {
	const op = "delete follow-up"
	tag, err := r.conn(ctx).Exec(ctx,
		`DELETE FROM safety_follow_ups WHERE id = $1 AND exam_id = $2`, itemID, examID)
	if err != nil {
		return RepositoryError(op, err)
	}
	if tag.RowsAffected() == 0 {
		return NotFound(op, "follow-up "+itemID.String())
	}
	return nil
}
