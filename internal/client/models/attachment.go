// Package models defines client-side data models used by the fieldline
// reporter.
package models

import (
	"strings"
	"time"
)

// StoredAttachment is one evidence file kept for an incident. Remote uploads
// and local fallbacks produce the same shape; only Locator differs.
type StoredAttachment struct {
	Name      string `json:"name"`
	MimeType  string `json:"mime_type"`
	SizeBytes int64  `json:"size_bytes"`

	// Locator is either a remote content address (URL) or a data URI.
	Locator string `json:"locator"`

	IsVideo bool `json:"is_video"`
}

// IsEmbedded reports whether the attachment bytes live inside the locator.
func (a StoredAttachment) IsEmbedded() bool {
	return strings.HasPrefix(a.Locator, "data:")
}

// AttachmentRecord is the persistence unit: every attachment for one
// incident, replaced wholesale on write.
type AttachmentRecord struct {
	IncidentID  string             `json:"incident_id"`
	Attachments []StoredAttachment `json:"attachments"`
	SavedAt     time.Time          `json:"saved_at"`
}

// RawFile is an evidence file captured by the user before it is stored.
type RawFile struct {
	Name     string
	MimeType string
	Data     []byte
}
