package notifications

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dmitrijs2005/fieldline/internal/client/metrics"
	"github.com/dmitrijs2005/fieldline/internal/client/models"
	"github.com/dmitrijs2005/fieldline/internal/logging"
	"github.com/dmitrijs2005/fieldline/internal/observer"
	"golang.org/x/time/rate"
)

// DefaultDismissAfter is how long an alert stays on screen without action.
const DefaultDismissAfter = 10 * time.Second

var ErrClosed = errors.New("presenter closed")

// State is the presentation state of one notification id.
type State int

const (
	Unseen State = iota
	Presented
	Dismissed
	Acknowledged
)

func (s State) String() string {
	switch s {
	case Presented:
		return "presented"
	case Dismissed:
		return "dismissed"
	case Acknowledged:
		return "acknowledged"
	default:
		return "unseen"
	}
}

type Marker interface {
	MarkNotificationAsRead(ctx context.Context, id string) error
	MarkAllNotificationsAsRead(ctx context.Context) error
}

// Item is a notification currently on screen.
type Item struct {
	Notification models.Notification
	PresentedAt  time.Time
}

type ChangeKind int

const (
	Shown ChangeKind = iota
	Expired
	Acked
	Cleared
)

// Change is delivered to OnChange observers. Notification is empty for
// Cleared.
type Change struct {
	Kind         ChangeKind
	Notification models.Notification
}

type Presenter struct {
	seen         SeenSet
	marker       Marker
	dismissAfter time.Duration
	limiter      *rate.Limiter
	now          func() time.Time

	mu     sync.Mutex
	screen []Item
	timers map[string]*time.Timer
	states map[string]State
	// marked holds ids whose mark-read call succeeded or is in flight.
	marked map[string]bool
	closed bool

	bgCtx    context.Context
	bgCancel context.CancelFunc
	wg       sync.WaitGroup

	changes observer.List[Change]

	logger  logging.Logger
	metrics *metrics.Metrics
}

type Option func(*Presenter)

func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Presenter) { p.metrics = m }
}

// WithMarkReadRate limits mark-read calls; a zero limit disables limiting.
func WithMarkReadRate(limit rate.Limit, burst int) Option {
	return func(p *Presenter) {
		if limit <= 0 {
			p.limiter = nil
			return
		}
		p.limiter = rate.NewLimiter(limit, burst)
	}
}

func WithClock(now func() time.Time) Option {
	return func(p *Presenter) { p.now = now }
}

func NewPresenter(seen SeenSet, marker Marker, dismissAfter time.Duration, logger logging.Logger, opts ...Option) *Presenter {
	if dismissAfter <= 0 {
		dismissAfter = DefaultDismissAfter
	}
	ctx, cancel := context.WithCancel(context.Background())
	p := &Presenter{
		seen:         seen,
		marker:       marker,
		dismissAfter: dismissAfter,
		limiter:      rate.NewLimiter(5, 5),
		now:          time.Now,
		timers:       make(map[string]*time.Timer),
		states:       make(map[string]State),
		marked:       make(map[string]bool),
		bgCtx:        ctx,
		bgCancel:     cancel,
		logger:       logger.With("module", "presenter"),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

func (p *Presenter) OnChange(fn func(Change)) (unsubscribe func()) {
	return p.changes.Subscribe(fn)
}

// Observe presents every unread notification of snap that was never
// presented before, oldest first, and returns the newly shown ones.
func (p *Presenter) Observe(ctx context.Context, snap Snapshot) []models.Notification {
	var shown []models.Notification

	p.mu.Lock()
	for _, n := range snap.Unread {
		if p.closed {
			break
		}
		if n.IsRead {
			continue
		}
		if _, ok := p.states[n.ID]; ok {
			continue
		}

		added, err := p.seen.Add(ctx, n.ID)
		if err != nil {
			// The in-memory state still guards this session.
			p.logger.Warn(ctx, "failed to persist presented id", "id", n.ID, "error", err)
			added = true
		}
		if !added {
			continue
		}

		p.present(n)
		shown = append(shown, n)
	}
	onScreen := len(p.screen)
	p.mu.Unlock()

	for _, n := range shown {
		p.metrics.Presented(onScreen)
		p.changes.Notify(Change{Kind: Shown, Notification: n})
	}
	return shown
}

// present must be called with mu held.
func (p *Presenter) present(n models.Notification) {
	p.screen = append(p.screen, Item{Notification: n, PresentedAt: p.now()})
	p.states[n.ID] = Presented

	id := n.ID
	p.timers[id] = time.AfterFunc(p.dismissAfter, func() { p.expire(id) })
}

// removeLocked drops id from the screen and cancels its timer.
func (p *Presenter) removeLocked(id string) (models.Notification, bool) {
	if t, ok := p.timers[id]; ok {
		t.Stop()
		delete(p.timers, id)
	}
	for i, it := range p.screen {
		if it.Notification.ID == id {
			p.screen = append(p.screen[:i:i], p.screen[i+1:]...)
			return it.Notification, true
		}
	}
	return models.Notification{}, false
}

func (p *Presenter) expire(id string) {
	p.mu.Lock()
	if p.closed || p.states[id] != Presented {
		p.mu.Unlock()
		return
	}
	n, _ := p.removeLocked(id)
	p.states[id] = Dismissed
	onScreen := len(p.screen)
	p.wg.Add(1)
	p.mu.Unlock()

	defer p.wg.Done()

	p.metrics.SetOnScreen(onScreen)
	p.changes.Notify(Change{Kind: Expired, Notification: n})
	_ = p.markRead(p.bgCtx, id)
}

// Acknowledge removes id from the screen at once, cancels its auto-dismiss
// timer and marks it read. The item stays removed even when the remote call
// fails.
func (p *Presenter) Acknowledge(ctx context.Context, id string) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrClosed
	}
	n, onScreen := p.removeLocked(id)
	if onScreen || p.states[id] == Unseen {
		p.states[id] = Acknowledged
	}
	remaining := len(p.screen)
	p.mu.Unlock()

	if onScreen {
		p.metrics.SetOnScreen(remaining)
		p.changes.Notify(Change{Kind: Acked, Notification: n})
	}
	return p.markRead(ctx, id)
}

// markRead calls the backend at most once per id unless a previous call
// failed.
func (p *Presenter) markRead(ctx context.Context, id string) error {
	p.mu.Lock()
	if p.marked[id] {
		p.mu.Unlock()
		return nil
	}
	p.marked[id] = true
	p.mu.Unlock()

	err := p.waitLimiter(ctx)
	if err == nil {
		err = p.marker.MarkNotificationAsRead(ctx, id)
	}
	p.metrics.MarkRead(err == nil)
	if err != nil {
		p.mu.Lock()
		delete(p.marked, id)
		p.mu.Unlock()
		p.logger.Warn(ctx, "mark read failed", "id", id, "error", err)
		return fmt.Errorf("mark notification[%s] read: %w", id, err)
	}
	return nil
}

func (p *Presenter) waitLimiter(ctx context.Context) error {
	if p.limiter == nil {
		return nil
	}
	return p.limiter.Wait(ctx)
}

// AcknowledgeAll clears the screen and marks every notification read.
func (p *Presenter) AcknowledgeAll(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrClosed
	}
	for _, it := range p.screen {
		id := it.Notification.ID
		if t, ok := p.timers[id]; ok {
			t.Stop()
			delete(p.timers, id)
		}
		p.states[id] = Acknowledged
		p.marked[id] = true
	}
	p.screen = nil
	p.mu.Unlock()

	p.metrics.SetOnScreen(0)
	p.changes.Notify(Change{Kind: Cleared})

	err := p.waitLimiter(ctx)
	if err == nil {
		err = p.marker.MarkAllNotificationsAsRead(ctx)
	}
	p.metrics.MarkRead(err == nil)
	if err != nil {
		p.logger.Warn(ctx, "mark all read failed", "error", err)
		return fmt.Errorf("mark all notifications read: %w", err)
	}
	return nil
}

// OnScreen returns the presented items, oldest first.
func (p *Presenter) OnScreen() []Item {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Item, len(p.screen))
	copy(out, p.screen)
	return out
}

func (p *Presenter) State(id string) State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.states[id]
}

// Close cancels pending timers and waits for in-flight dismissals. No
// observer runs after Close returns.
func (p *Presenter) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	for id, t := range p.timers {
		t.Stop()
		delete(p.timers, id)
	}
	p.mu.Unlock()

	p.bgCancel()
	p.wg.Wait()
	p.changes.Close()
}
