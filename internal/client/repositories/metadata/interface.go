package metadata

import (
	"context"
	"time"
)

// Entry is one stored value.
type Entry struct {
	ID        string
	Value     []byte
	UpdatedAt time.Time
}

type Repository interface {
	// Get returns (nil, nil) when the entry is absent.
	Get(ctx context.Context, namespace, id string) ([]byte, error)
	Put(ctx context.Context, namespace, id string, value []byte) error
	// PutIfAbsent stores value only for a new entry and reports whether it did.
	PutIfAbsent(ctx context.Context, namespace, id string, value []byte) (bool, error)
	// List returns the namespace oldest first.
	List(ctx context.Context, namespace string) ([]Entry, error)
	// PruneBefore drops entries last written before cutoff.
	PruneBefore(ctx context.Context, namespace string, cutoff time.Time) (int64, error)
}
