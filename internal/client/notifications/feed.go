// Package notifications polls backend alerts and presents each one on screen
// at most once.
//
// Feed pulls unread and all notifications on a fixed interval. Presenter
// turns the repeating snapshots into a de-duplicated, auto-expiring on-screen
// list and acknowledges alerts back to the backend. The popup shows the
// oldest unseen alert first; list views are newest first.
package notifications

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/dmitrijs2005/fieldline/internal/client/metrics"
	"github.com/dmitrijs2005/fieldline/internal/client/models"
	"github.com/dmitrijs2005/fieldline/internal/logging"
	"github.com/dmitrijs2005/fieldline/internal/observer"
	"github.com/robfig/cron/v3"
)

// DefaultPollInterval is the fixed poll cadence.
const DefaultPollInterval = 10 * time.Second

type Source interface {
	GetUnreadNotifications(ctx context.Context) ([]models.Notification, error)
	GetAllNotifications(ctx context.Context) ([]models.Notification, error)
}

// Snapshot is the result of one successful poll.
type Snapshot struct {
	// Unread is ordered by CreatedAt ascending.
	Unread []models.Notification
	// All is ordered by CreatedAt descending.
	All         []models.Notification
	UnreadCount int
	FetchedAt   time.Time
}

type Feed struct {
	src      Source
	interval time.Duration
	now      func() time.Time

	// pollMu serializes polls so snapshots are published in fetch order.
	pollMu sync.Mutex

	mu      sync.Mutex
	latest  Snapshot
	has     bool
	cron    *cron.Cron
	stopped bool
	wg      sync.WaitGroup

	subs observer.List[Snapshot]

	logger  logging.Logger
	metrics *metrics.Metrics
}

// NewFeed creates a stopped feed. Intervals below one second are rounded up
// by the scheduler.
func NewFeed(src Source, interval time.Duration, logger logging.Logger, m *metrics.Metrics) *Feed {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Feed{
		src:      src,
		interval: interval,
		now:      time.Now,
		logger:   logger.With("module", "notifications"),
		metrics:  m,
	}
}

// Subscribe registers fn for every published snapshot.
func (f *Feed) Subscribe(fn func(Snapshot)) (unsubscribe func()) {
	return f.subs.Subscribe(fn)
}

// Latest returns the last successful snapshot.
func (f *Feed) Latest() (Snapshot, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.latest, f.has
}

// Poll fetches both listings once and publishes the snapshot. On failure
// the previous snapshot stays current and is returned with the error.
func (f *Feed) Poll(ctx context.Context) (Snapshot, error) {
	f.pollMu.Lock()
	defer f.pollMu.Unlock()

	unread, err := f.src.GetUnreadNotifications(ctx)
	if err == nil {
		var all []models.Notification
		all, err = f.src.GetAllNotifications(ctx)
		if err == nil {
			return f.publish(unread, all), nil
		}
	}

	f.metrics.Poll(false, 0)
	f.logger.Warn(ctx, "notification poll failed", "error", err)
	last, _ := f.Latest()
	return last, fmt.Errorf("poll notifications: %w", err)
}

func (f *Feed) publish(unread, all []models.Notification) Snapshot {
	snap := Snapshot{
		Unread:      sortedByCreated(unread, true),
		All:         sortedByCreated(all, false),
		UnreadCount: len(unread),
		FetchedAt:   f.now(),
	}

	f.mu.Lock()
	if f.stopped {
		f.mu.Unlock()
		return snap
	}
	f.latest, f.has = snap, true
	f.mu.Unlock()

	f.metrics.Poll(true, snap.UnreadCount)
	f.subs.Notify(snap)
	return snap
}

func sortedByCreated(in []models.Notification, ascending bool) []models.Notification {
	out := make([]models.Notification, len(in))
	copy(out, in)
	sort.SliceStable(out, func(i, j int) bool {
		if ascending {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// Start polls immediately and then every interval until Stop. A poll still
// running when the next one is due is skipped.
func (f *Feed) Start(ctx context.Context) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.cron != nil || f.stopped {
		return
	}

	f.cron = cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	f.cron.Schedule(cron.Every(f.interval), cron.FuncJob(func() {
		_, _ = f.Poll(ctx)
	}))
	f.cron.Start()

	f.goPoll(ctx)
}

// Refresh polls in the background, e.g. after a submission changed server
// state.
func (f *Feed) Refresh(ctx context.Context) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.stopped {
		return
	}
	f.goPoll(ctx)
}

// goPoll must be called with mu held.
func (f *Feed) goPoll(ctx context.Context) {
	f.wg.Add(1)
	go func() {
		defer f.wg.Done()
		_, _ = f.Poll(ctx)
	}()
}

// Stop halts the schedule and waits for running polls. No subscriber is
// called after Stop returns.
func (f *Feed) Stop() {
	f.mu.Lock()
	if f.stopped {
		f.mu.Unlock()
		return
	}
	f.stopped = true
	c := f.cron
	f.mu.Unlock()

	if c != nil {
		<-c.Stop().Done()
	}
	f.wg.Wait()
	f.subs.Close()
}
