// Package store keeps incidents and notifications of the development
// server in Postgres.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/fieldline/internal/client/models"
	"github.com/dmitrijs2005/fieldline/internal/common"
	"github.com/dmitrijs2005/fieldline/internal/dbx"
	"github.com/dmitrijs2005/fieldline/internal/id"
)

type PostgresStore struct {
	db  dbx.DBTX
	now func() time.Time
}

func NewPostgresStore(db dbx.DBTX) *PostgresStore {
	return &PostgresStore{db: db, now: time.Now}
}

// ReportIncident inserts report unless idempotencyKey is already known, in
// which case the id of the first insert is returned. An empty key always
// creates a new incident.
func (r *PostgresStore) ReportIncident(ctx context.Context, report models.IncidentReport, idempotencyKey string) (string, error) {
	body, err := json.Marshal(report)
	if err != nil {
		return "", fmt.Errorf("failed to encode incident: %w", err)
	}

	key := sql.NullString{String: idempotencyKey, Valid: idempotencyKey != ""}

	var incidentID string
	err = r.db.QueryRowContext(ctx, `
		INSERT INTO incidents (id, idempotency_key, report, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (idempotency_key) DO NOTHING
		RETURNING id`,
		"inc-"+id.New(), key, body, r.now().UTC()).Scan(&incidentID)
	if err == nil {
		return incidentID, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("failed to insert incident: %w", err)
	}

	err = r.db.QueryRowContext(ctx,
		`SELECT id FROM incidents WHERE idempotency_key = $1`, idempotencyKey).Scan(&incidentID)
	if err != nil {
		return "", fmt.Errorf("failed to find incident[%s]: %w", idempotencyKey, err)
	}
	return incidentID, nil
}

func (r *PostgresStore) GetUnreadNotifications(ctx context.Context) ([]models.Notification, error) {
	return r.list(ctx, `
		SELECT id, alert_type, message, location, created_at, is_read
		FROM notifications WHERE NOT is_read ORDER BY created_at DESC`)
}

func (r *PostgresStore) GetAllNotifications(ctx context.Context) ([]models.Notification, error) {
	return r.list(ctx, `
		SELECT id, alert_type, message, location, created_at, is_read
		FROM notifications ORDER BY created_at DESC`)
}

func (r *PostgresStore) list(ctx context.Context, q string) ([]models.Notification, error) {
	rows, err := r.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	defer rows.Close()

	out := []models.Notification{}
	for rows.Next() {
		var n models.Notification
		var alertType string
		if err := rows.Scan(&n.ID, &alertType, &n.Message, &n.Location, &n.CreatedAt, &n.IsRead); err != nil {
			return nil, fmt.Errorf("failed to scan notification row: %w", err)
		}
		n.AlertType = models.AlertType(alertType)
		n.CreatedAt = n.CreatedAt.UTC()
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate notification rows: %w", err)
	}
	return out, nil
}

func (r *PostgresStore) MarkNotificationAsRead(ctx context.Context, notificationID string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE notifications SET is_read = TRUE WHERE id = $1`, notificationID)
	if err != nil {
		return fmt.Errorf("failed to mark notification[%s]: %w", notificationID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("notification[%s]: %w", notificationID, common.ErrNotFound)
	}
	return nil
}

func (r *PostgresStore) MarkAllNotificationsAsRead(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, `UPDATE notifications SET is_read = TRUE WHERE NOT is_read`); err != nil {
		return fmt.Errorf("failed to mark notifications: %w", err)
	}
	return nil
}

// Publish stores a new notification. Missing id and timestamp are filled in.
func (r *PostgresStore) Publish(ctx context.Context, n models.Notification) (models.Notification, error) {
	if n.ID == "" {
		n.ID = id.New()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = r.now().UTC()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO notifications (id, alert_type, message, location, created_at, is_read)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		n.ID, string(n.AlertType), n.Message, n.Location, n.CreatedAt, n.IsRead)
	if err != nil {
		return models.Notification{}, fmt.Errorf("failed to publish notification: %w", err)
	}
	return n, nil
}
