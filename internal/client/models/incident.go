package models

import "time"

// IncidentReport is the payload of an incident-report pending action.
//
// LocalID is assigned on capture and keys the attachments until the backend
// returns its own incident id.
type IncidentReport struct {
	LocalID     string             `json:"local_id" validate:"required"`
	Title       string             `json:"title" validate:"required,max=200"`
	Description string             `json:"description,omitempty" validate:"max=4000"`
	Category    string             `json:"category,omitempty" validate:"omitempty,max=64"`
	Severity    string             `json:"severity,omitempty" validate:"omitempty,oneof=low medium high critical"`
	Location    string             `json:"location,omitempty"`
	Latitude    float64            `json:"latitude,omitempty" validate:"omitempty,latitude"`
	Longitude   float64            `json:"longitude,omitempty" validate:"omitempty,longitude"`
	Attachments []StoredAttachment `json:"attachments,omitempty"`
	CapturedAt  time.Time          `json:"captured_at"`
}

// UploadRequest asks the backend for a presigned URL for one object.
type UploadRequest struct {
	Key         string
	ContentType string
	SizeBytes   int64
}

// UploadTicket is the backend answer: where to PUT the bytes and the stable
// locator to keep afterwards.
type UploadTicket struct {
	UploadURL string
	Locator   string
}
