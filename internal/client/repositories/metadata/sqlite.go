package metadata

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/fieldline/internal/dbx"
)

type SQLiteRepository struct {
	db  dbx.DBTX
	now func() time.Time
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db, now: time.Now}
}

func (r *SQLiteRepository) Get(ctx context.Context, namespace, id string) ([]byte, error) {
	var value []byte
	err := r.db.QueryRowContext(ctx,
		`SELECT value FROM metadata WHERE namespace = ? AND id = ?`, namespace, id).Scan(&value)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("failed to get metadata[%s/%s]: %w", namespace, id, err)
	}
	if value == nil {
		value = []byte{}
	}
	return value, nil
}

func (r *SQLiteRepository) Put(ctx context.Context, namespace, id string, value []byte) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO metadata (namespace, id, value, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(namespace, id) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		namespace, id, nonNil(value), r.now().UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to put metadata[%s/%s]: %w", namespace, id, err)
	}
	return nil
}

func (r *SQLiteRepository) PutIfAbsent(ctx context.Context, namespace, id string, value []byte) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO metadata (namespace, id, value, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(namespace, id) DO NOTHING`,
		namespace, id, nonNil(value), r.now().UnixMilli())
	if err != nil {
		return false, fmt.Errorf("failed to put metadata[%s/%s]: %w", namespace, id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n == 1, nil
}

func (r *SQLiteRepository) List(ctx context.Context, namespace string) ([]Entry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, value, updated_at FROM metadata
		WHERE namespace = ? ORDER BY updated_at, id`, namespace)
	if err != nil {
		return nil, fmt.Errorf("failed to list metadata[%s]: %w", namespace, err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var ms int64
		if err := rows.Scan(&e.ID, &e.Value, &ms); err != nil {
			return nil, fmt.Errorf("failed to scan metadata row: %w", err)
		}
		e.UpdatedAt = time.UnixMilli(ms).UTC()
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate metadata rows: %w", err)
	}
	return out, nil
}

func (r *SQLiteRepository) PruneBefore(ctx context.Context, namespace string, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM metadata WHERE namespace = ? AND updated_at < ?`, namespace, cutoff.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("failed to prune metadata[%s]: %w", namespace, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n, nil
}

// sqlite stores a nil []byte as NULL, which the schema rejects.
func nonNil(b []byte) []byte {
	if b == nil {
		return []byte{}
	}
	return b
}
