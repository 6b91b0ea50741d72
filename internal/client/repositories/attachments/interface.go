package attachments

import (
	"context"

	"github.com/dmitrijs2005/fieldline/internal/client/models"
)

type Repository interface {
	// Put replaces the record for rec.IncidentID wholesale.
	Put(ctx context.Context, rec models.AttachmentRecord) error
	// Get returns (nil, nil) when no record exists.
	Get(ctx context.Context, incidentID string) (*models.AttachmentRecord, error)
	GetAll(ctx context.Context) (map[string][]models.StoredAttachment, error)
	Delete(ctx context.Context, incidentID string) error
	Clear(ctx context.Context) error
	// Rekey moves the record stored under from to to, replacing any record
	// already stored under to. It is a no-op when from does not exist.
	Rekey(ctx context.Context, from, to string) error
}
