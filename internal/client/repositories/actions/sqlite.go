package actions

import (
	"context"
	"fmt"
	"time"

	"github.com/dmitrijs2005/fieldline/internal/client/models"
	"github.com/dmitrijs2005/fieldline/internal/common"
	"github.com/dmitrijs2005/fieldline/internal/dbx"
)

const pendingColumns = `id, kind, payload, idempotency_key, enqueued_at, attempts, last_error`

type SQLiteRepository struct {
	db dbx.DB
}

func NewSQLiteRepository(db dbx.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) Append(ctx context.Context, a models.PendingAction) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO pending_actions (`+pendingColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.Kind, []byte(a.Payload), a.IdempotencyKey, a.EnqueuedAt.UnixMilli(), a.Attempts, a.LastError)
	if err != nil {
		return fmt.Errorf("failed to append action[%s]: %w", a.ID, err)
	}
	return nil
}

func (r *SQLiteRepository) List(ctx context.Context) ([]models.PendingAction, error) {
	return r.query(ctx, `SELECT `+pendingColumns+` FROM pending_actions ORDER BY seq`)
}

func (r *SQLiteRepository) ListKind(ctx context.Context, kind string) ([]models.PendingAction, error) {
	return r.query(ctx, `SELECT `+pendingColumns+` FROM pending_actions WHERE kind = ? ORDER BY seq`, kind)
}

func (r *SQLiteRepository) query(ctx context.Context, q string, args ...any) ([]models.PendingAction, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list actions: %w", err)
	}
	defer rows.Close()

	result := []models.PendingAction{}
	for rows.Next() {
		a, err := scanPending(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate action rows: %w", err)
	}
	return result, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanPending(s scanner) (models.PendingAction, error) {
	var (
		a          models.PendingAction
		payload    []byte
		enqueuedAt int64
	)
	if err := s.Scan(&a.ID, &a.Kind, &payload, &a.IdempotencyKey, &enqueuedAt, &a.Attempts, &a.LastError); err != nil {
		return models.PendingAction{}, fmt.Errorf("failed to scan action row: %w", err)
	}
	a.Payload = payload
	a.EnqueuedAt = time.UnixMilli(enqueuedAt).UTC()
	return a, nil
}

func (r *SQLiteRepository) Kinds(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT kind FROM pending_actions GROUP BY kind ORDER BY MIN(seq)`)
	if err != nil {
		return nil, fmt.Errorf("failed to list kinds: %w", err)
	}
	defer rows.Close()

	var kinds []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("failed to scan kind: %w", err)
		}
		kinds = append(kinds, k)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate kinds: %w", err)
	}
	return kinds, nil
}

func (r *SQLiteRepository) DeleteFirst(ctx context.Context, n int) (int64, error) {
	if n <= 0 {
		return 0, nil
	}
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM pending_actions
		WHERE seq IN (SELECT seq FROM pending_actions ORDER BY seq LIMIT ?)`, n)
	if err != nil {
		return 0, fmt.Errorf("failed to remove first %d actions: %w", n, err)
	}
	ra, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return ra, nil
}

func (r *SQLiteRepository) DeleteByID(ctx context.Context, id string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM pending_actions WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("failed to remove action[%s]: %w", id, err)
	}
	ra, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return ra > 0, nil
}

func (r *SQLiteRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM pending_actions`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count actions: %w", err)
	}
	return n, nil
}

func (r *SQLiteRepository) RecordAttempt(ctx context.Context, id string, lastErr string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE pending_actions SET attempts = attempts + 1, last_error = ? WHERE id = ?`, lastErr, id)
	if err != nil {
		return fmt.Errorf("failed to record attempt[%s]: %w", id, err)
	}
	return nil
}

func (r *SQLiteRepository) MoveToFailed(ctx context.Context, id, reason string, at time.Time) error {
	err := dbx.WithTx(ctx, r.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO failed_actions (id, kind, payload, idempotency_key, enqueued_at, attempts, reason, failed_at)
			SELECT id, kind, payload, idempotency_key, enqueued_at, attempts, ?, ?
			FROM pending_actions WHERE id = ?
			ON CONFLICT(id) DO UPDATE SET reason = excluded.reason, failed_at = excluded.failed_at`,
			reason, at.UnixMilli(), id)
		if err != nil {
			return err
		}
		ra, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if ra == 0 {
			return common.ErrNotFound
		}
		_, err = tx.ExecContext(ctx, `DELETE FROM pending_actions WHERE id = ?`, id)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to move action[%s] to failed: %w", id, err)
	}
	return nil
}

func (r *SQLiteRepository) ListFailed(ctx context.Context) ([]models.FailedAction, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, kind, payload, idempotency_key, enqueued_at, attempts, reason, failed_at
		FROM failed_actions ORDER BY failed_at, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list failed actions: %w", err)
	}
	defer rows.Close()

	result := []models.FailedAction{}
	for rows.Next() {
		var (
			f                    models.FailedAction
			payload              []byte
			enqueuedAt, failedAt int64
		)
		if err := rows.Scan(&f.Action.ID, &f.Action.Kind, &payload, &f.Action.IdempotencyKey,
			&enqueuedAt, &f.Action.Attempts, &f.Reason, &failedAt); err != nil {
			return nil, fmt.Errorf("failed to scan failed action row: %w", err)
		}
		f.Action.Payload = payload
		f.Action.EnqueuedAt = time.UnixMilli(enqueuedAt).UTC()
		f.Action.LastError = f.Reason
		f.FailedAt = time.UnixMilli(failedAt).UTC()
		result = append(result, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate failed action rows: %w", err)
	}
	return result, nil
}

func (r *SQLiteRepository) DeleteFailed(ctx context.Context, id string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM failed_actions WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("failed to discard failed action[%s]: %w", id, err)
	}
	ra, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return ra > 0, nil
}

func (r *SQLiteRepository) Requeue(ctx context.Context, id string) (models.PendingAction, error) {
	var a models.PendingAction
	err := dbx.WithTx(ctx, r.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO pending_actions (id, kind, payload, idempotency_key, enqueued_at, attempts, last_error)
			SELECT id, kind, payload, idempotency_key, enqueued_at, 0, ''
			FROM failed_actions WHERE id = ?`, id)
		if err != nil {
			return err
		}
		ra, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if ra == 0 {
			return common.ErrNotFound
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM failed_actions WHERE id = ?`, id); err != nil {
			return err
		}
		a, err = scanPending(tx.QueryRowContext(ctx,
			`SELECT `+pendingColumns+` FROM pending_actions WHERE id = ?`, id))
		return err
	})
	if err != nil {
		return models.PendingAction{}, fmt.Errorf("failed to requeue action[%s]: %w", id, err)
	}
	return a, nil
}
