package client

import (
	"context"

	"github.com/dmitrijs2005/fieldline/internal/client/models"
)

type Client interface {
	Close() error
	Ping(ctx context.Context) error
	// ReportIncident creates the incident and returns its backend id.
	// Resubmitting with the same idempotency key returns the same id.
	ReportIncident(ctx context.Context, report models.IncidentReport, idempotencyKey string) (string, error)
	GetUnreadNotifications(ctx context.Context) ([]models.Notification, error)
	GetAllNotifications(ctx context.Context) ([]models.Notification, error)
	MarkNotificationAsRead(ctx context.Context, id string) error
	MarkAllNotificationsAsRead(ctx context.Context) error
	PresignAttachmentUpload(ctx context.Context, req models.UploadRequest) (models.UploadTicket, error)
}
