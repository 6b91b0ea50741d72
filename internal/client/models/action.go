package models

import (
	"encoding/json"
	"time"
)

// PendingAction is a mutation waiting to be submitted to the backend.
// Payload is opaque to the queue; only the handler for Kind decodes it.
type PendingAction struct {
	ID             string          `json:"id"`
	Kind           string          `json:"kind"`
	Payload        json.RawMessage `json:"payload"`
	IdempotencyKey string          `json:"idempotency_key"`
	EnqueuedAt     time.Time       `json:"enqueued_at"`
	Attempts       int             `json:"attempts"`
	LastError      string          `json:"last_error,omitempty"`
}

// FailedAction is a pending action the backend rejected permanently. It
// waits for the user to retry or discard it.
type FailedAction struct {
	Action   PendingAction `json:"action"`
	Reason   string        `json:"reason"`
	FailedAt time.Time     `json:"failed_at"`
}
