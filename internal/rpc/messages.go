package rpc

import "github.com/dmitrijs2005/fieldline/internal/client/models"

type Empty struct{}

type PingResponse struct {
	Status string `json:"status"`
}

// ReportIncidentRequest carries the report together with the key the
// backend uses to recognise a resubmission.
type ReportIncidentRequest struct {
	IdempotencyKey string                `json:"idempotency_key"`
	Report         models.IncidentReport `json:"report"`
}

type ReportIncidentResponse struct {
	IncidentID string `json:"incident_id"`
}

type NotificationsResponse struct {
	Notifications []models.Notification `json:"notifications"`
}

type MarkReadRequest struct {
	ID string `json:"id"`
}

type PresignUploadRequest struct {
	Key         string `json:"key"`
	ContentType string `json:"content_type"`
	SizeBytes   int64  `json:"size_bytes"`
}

type PresignUploadResponse struct {
	UploadURL string `json:"upload_url"`
	Locator   string `json:"locator"`
}
