package notifications

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dmitrijs2005/fieldline/internal/client/repositories/metadata"
)

// Dedup policies for the already-presented set.
const (
	// PolicySession forgets presented ids when the process exits, so an
	// unacknowledged alert can show again after a restart.
	PolicySession = "session"
	// PolicyPersistent keeps presented ids in the local store.
	PolicyPersistent = "persistent"
)

const seenNamespace = "presented"

// SeenSet records which notification ids were already presented.
type SeenSet interface {
	// Add marks id as presented and reports whether it was new.
	Add(ctx context.Context, id string) (bool, error)
	Contains(ctx context.Context, id string) (bool, error)
}

type MemorySeen struct {
	mu  sync.Mutex
	ids map[string]struct{}
}

func NewMemorySeen() *MemorySeen {
	return &MemorySeen{ids: make(map[string]struct{})}
}

func (s *MemorySeen) Add(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.ids[id]; ok {
		return false, nil
	}
	s.ids[id] = struct{}{}
	return true, nil
}

func (s *MemorySeen) Contains(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.ids[id]
	return ok, nil
}

// SeenRetention bounds how long the persistent policy remembers an id.
// Backends stop returning a notification as unread long before this.
const SeenRetention = 30 * 24 * time.Hour

// PersistentSeen stores presented ids in the metadata table. The entry's
// timestamp records when the id was first presented.
type PersistentSeen struct {
	repo metadata.Repository
	now  func() time.Time
}

func NewPersistentSeen(repo metadata.Repository) *PersistentSeen {
	return &PersistentSeen{repo: repo, now: time.Now}
}

func (s *PersistentSeen) Add(ctx context.Context, id string) (bool, error) {
	added, err := s.repo.PutIfAbsent(ctx, seenNamespace, id, nil)
	if err != nil {
		return false, fmt.Errorf("failed to record presented notification[%s]: %w", id, err)
	}
	return added, nil
}

func (s *PersistentSeen) Contains(ctx context.Context, id string) (bool, error) {
	v, err := s.repo.Get(ctx, seenNamespace, id)
	if err != nil {
		return false, err
	}
	return v != nil, nil
}

// Prune forgets ids presented more than retention ago.
func (s *PersistentSeen) Prune(ctx context.Context, retention time.Duration) (int64, error) {
	n, err := s.repo.PruneBefore(ctx, seenNamespace, s.now().Add(-retention))
	if err != nil {
		return 0, fmt.Errorf("failed to prune presented notifications: %w", err)
	}
	return n, nil
}

// NewSeenSet builds the set for policy. repo is only used by the persistent
// policy.
func NewSeenSet(policy string, repo metadata.Repository) (SeenSet, error) {
	switch policy {
	case "", PolicySession:
		return NewMemorySeen(), nil
	case PolicyPersistent:
		if repo == nil {
			return nil, fmt.Errorf("persistent dedup policy needs a metadata repository")
		}
		return NewPersistentSeen(repo), nil
	default:
		return nil, fmt.Errorf("unknown dedup policy %q", policy)
	}
}
