// Package common contains shared constants and sentinel errors used across
// fieldline components.
package common

// IdempotencyKeyHeaderName is the gRPC metadata key carrying the client
// generated idempotency key of a queued submission.
const IdempotencyKeyHeaderName = "idempotency-key"

// KindIncidentReport is the pending action kind for incident submissions.
const KindIncidentReport = "incident-report"

// AuthorizationHeaderName carries "Bearer <token>" when the server requires
// authentication.
const AuthorizationHeaderName = "authorization"
