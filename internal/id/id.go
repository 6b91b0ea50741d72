// Package id generates identifiers for locally created records.
package id

import (
	"crypto/rand"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// New returns a ULID string. ULIDs sort lexicographically by creation time,
// which keeps queue ids in enqueue order.
func New() string {
	return ulid.MustNew(ulid.Now(), rand.Reader).String()
}

// NewKey returns a random UUID used as an idempotency key or a local
// incident id.
func NewKey() string {
	return uuid.NewString()
}
