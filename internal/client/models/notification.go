package models

import "time"

// AlertType classifies a notification.
type AlertType string

const (
	AlertHighRiskZone   AlertType = "high-risk-zone"
	AlertWeatherWarning AlertType = "weather-warning"
	AlertUnusualEvent   AlertType = "unusual-event"
	AlertRegionalTrend  AlertType = "regional-trend"
	AlertSystem         AlertType = "system-alert"
)

// AlertTypes lists every known alert type.
var AlertTypes = []AlertType{
	AlertHighRiskZone,
	AlertWeatherWarning,
	AlertUnusualEvent,
	AlertRegionalTrend,
	AlertSystem,
}

// Valid reports whether t is one of the known alert types.
func (t AlertType) Valid() bool {
	for _, k := range AlertTypes {
		if k == t {
			return true
		}
	}
	return false
}

// Notification is an alert produced by the backend. IsRead is server
// authoritative.
type Notification struct {
	ID        string    `json:"id"`
	AlertType AlertType `json:"alert_type"`
	Message   string    `json:"message"`
	Location  string    `json:"location,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	IsRead    bool      `json:"is_read"`
}
