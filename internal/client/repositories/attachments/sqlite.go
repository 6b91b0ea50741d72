package attachments

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/fieldline/internal/client/models"
	"github.com/dmitrijs2005/fieldline/internal/dbx"
)

// SQLiteRepository implements Repository. It needs a transaction capable
// handle because a record spans two tables.
type SQLiteRepository struct {
	db dbx.DB
}

func NewSQLiteRepository(db dbx.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) Put(ctx context.Context, rec models.AttachmentRecord) error {
	err := dbx.WithTx(ctx, r.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := deleteRecord(ctx, tx, rec.IncidentID); err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx,
			`INSERT INTO attachment_records (incident_id, saved_at) VALUES (?, ?)`,
			rec.IncidentID, rec.SavedAt.UnixMilli()); err != nil {
			return err
		}

		for i, a := range rec.Attachments {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO attachments (incident_id, position, name, mime_type, size_bytes, locator, is_video)
				VALUES (?, ?, ?, ?, ?, ?, ?)`,
				rec.IncidentID, i, a.Name, a.MimeType, a.SizeBytes, a.Locator, a.IsVideo); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to put attachments[%s]: %w", rec.IncidentID, err)
	}
	return nil
}

func (r *SQLiteRepository) Get(ctx context.Context, incidentID string) (*models.AttachmentRecord, error) {
	var savedAt int64
	err := r.db.QueryRowContext(ctx,
		`SELECT saved_at FROM attachment_records WHERE incident_id = ?`, incidentID).Scan(&savedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get attachments[%s]: %w", incidentID, err)
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT name, mime_type, size_bytes, locator, is_video
		FROM attachments WHERE incident_id = ? ORDER BY position`, incidentID)
	if err != nil {
		return nil, fmt.Errorf("failed to get attachments[%s]: %w", incidentID, err)
	}
	defer rows.Close()

	rec := &models.AttachmentRecord{
		IncidentID:  incidentID,
		Attachments: []models.StoredAttachment{},
		SavedAt:     time.UnixMilli(savedAt).UTC(),
	}
	for rows.Next() {
		var a models.StoredAttachment
		if err := rows.Scan(&a.Name, &a.MimeType, &a.SizeBytes, &a.Locator, &a.IsVideo); err != nil {
			return nil, fmt.Errorf("failed to scan attachment row: %w", err)
		}
		rec.Attachments = append(rec.Attachments, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate attachment rows: %w", err)
	}
	return rec, nil
}

func (r *SQLiteRepository) GetAll(ctx context.Context) (map[string][]models.StoredAttachment, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT r.incident_id, a.name, a.mime_type, a.size_bytes, a.locator, a.is_video
		FROM attachment_records r
		LEFT JOIN attachments a ON a.incident_id = r.incident_id
		ORDER BY r.incident_id, a.position`)
	if err != nil {
		return nil, fmt.Errorf("failed to list attachments: %w", err)
	}
	defer rows.Close()

	result := make(map[string][]models.StoredAttachment)
	for rows.Next() {
		var (
			incidentID string
			name, mime sql.NullString
			size       sql.NullInt64
			locator    sql.NullString
			isVideo    sql.NullBool
		)
		if err := rows.Scan(&incidentID, &name, &mime, &size, &locator, &isVideo); err != nil {
			return nil, fmt.Errorf("failed to scan attachment row: %w", err)
		}
		list, ok := result[incidentID]
		if !ok {
			list = []models.StoredAttachment{}
		}
		// records without attachments come back as a single NULL row
		if name.Valid {
			list = append(list, models.StoredAttachment{
				Name:      name.String,
				MimeType:  mime.String,
				SizeBytes: size.Int64,
				Locator:   locator.String,
				IsVideo:   isVideo.Bool,
			})
		}
		result[incidentID] = list
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate attachment rows: %w", err)
	}
	return result, nil
}

func (r *SQLiteRepository) Delete(ctx context.Context, incidentID string) error {
	err := dbx.WithTx(ctx, r.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		return deleteRecord(ctx, tx, incidentID)
	})
	if err != nil {
		return fmt.Errorf("failed to delete attachments[%s]: %w", incidentID, err)
	}
	return nil
}

func (r *SQLiteRepository) Clear(ctx context.Context) error {
	err := dbx.WithTx(ctx, r.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM attachments`); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `DELETE FROM attachment_records`)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to clear attachments: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) Rekey(ctx context.Context, from, to string) error {
	if from == to {
		return nil
	}
	err := dbx.WithTx(ctx, r.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		var savedAt int64
		err := tx.QueryRowContext(ctx,
			`SELECT saved_at FROM attachment_records WHERE incident_id = ?`, from).Scan(&savedAt)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return err
		}

		if err := deleteRecord(ctx, tx, to); err != nil {
			return err
		}
		// parent first so the child update never points at a missing row
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO attachment_records (incident_id, saved_at) VALUES (?, ?)`, to, savedAt); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE attachments SET incident_id = ? WHERE incident_id = ?`, to, from); err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `DELETE FROM attachment_records WHERE incident_id = ?`, from)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to rekey attachments[%s->%s]: %w", from, to, err)
	}
	return nil
}

func deleteRecord(ctx context.Context, tx dbx.DBTX, incidentID string) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM attachments WHERE incident_id = ?`, incidentID); err != nil {
		return err
	}
	_, err := tx.ExecContext(ctx, `DELETE FROM attachment_records WHERE incident_id = ?`, incidentID)
	return err
}
