// Package connectivity tracks whether the backend is reachable. The Monitor
// is a two-state machine driven by platform signals; it debounces flapping
// and notifies subscribers once per committed transition.
package connectivity

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dmitrijs2005/fieldline/internal/client/metrics"
	"github.com/dmitrijs2005/fieldline/internal/logging"
)

type State int

const (
	Offline State = iota
	Online
)

func (s State) String() string {
	if s == Online {
		return "online"
	}
	return "offline"
}

// DefaultDebounceWindow collapses transitions that happen closer together.
const DefaultDebounceWindow = 500 * time.Millisecond

type TransitionFunc func(from, to State)

type subscription struct {
	cb     TransitionFunc
	active atomic.Bool
}

type Monitor struct {
	// dispatchMu serializes commits so subscribers see transitions in order.
	dispatchMu sync.Mutex

	mu       sync.Mutex
	current  State
	reported State
	timer    *time.Timer
	window   time.Duration
	subs     map[int]*subscription
	nextID   int
	closed   bool

	logger  logging.Logger
	metrics *metrics.Metrics
}

// NewMonitor starts in the initial state read from the platform. A zero
// window commits every change synchronously inside Report.
func NewMonitor(initial State, window time.Duration, logger logging.Logger, m *metrics.Metrics) *Monitor {
	if m != nil {
		m.SetOnline(initial == Online)
	}
	return &Monitor{
		current:  initial,
		reported: initial,
		window:   window,
		subs:     make(map[int]*subscription),
		logger:   logger.With("module", "connectivity"),
		metrics:  m,
	}
}

func (m *Monitor) Current() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Report feeds a platform event. Duplicates are ignored; a change is
// committed once the signal has been stable for the debounce window.
func (m *Monitor) Report(s State) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.reported = s

	if m.window <= 0 {
		m.mu.Unlock()
		m.commit()
		return
	}

	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	if s != m.current {
		m.timer = time.AfterFunc(m.window, m.commit)
	}
	m.mu.Unlock()
}

func (m *Monitor) commit() {
	m.dispatchMu.Lock()
	defer m.dispatchMu.Unlock()

	m.mu.Lock()
	m.timer = nil
	if m.closed || m.reported == m.current {
		m.mu.Unlock()
		return
	}
	from, to := m.current, m.reported
	m.current = to
	subs := make([]*subscription, 0, len(m.subs))
	for id := 0; id < m.nextID; id++ {
		if sub, ok := m.subs[id]; ok {
			subs = append(subs, sub)
		}
	}
	m.mu.Unlock()

	m.metrics.SetOnline(to == Online)
	m.logger.Info(context.Background(), "connectivity changed", "from", from.String(), "to", to.String())

	for _, sub := range subs {
		if sub.active.Load() {
			sub.cb(from, to)
		}
	}
}

// OnTransition registers cb for every committed transition and returns the
// unsubscribe func. cb runs on the committing goroutine and must not call
// Report or Close synchronously.
func (m *Monitor) OnTransition(cb TransitionFunc) (unsubscribe func()) {
	sub := &subscription{cb: cb}
	sub.active.Store(true)

	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.subs[id] = sub
	m.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			sub.active.Store(false)
			m.mu.Lock()
			delete(m.subs, id)
			m.mu.Unlock()
		})
	}
}

// OnOnline is a convenience for the common "became reachable" case.
func (m *Monitor) OnOnline(cb func()) (unsubscribe func()) {
	return m.OnTransition(func(_, to State) {
		if to == Online {
			cb()
		}
	})
}

// Close stops pending timers and drops all subscribers. It waits for a
// running dispatch, so no callback fires after it returns.
func (m *Monitor) Close() {
	m.mu.Lock()
	m.closed = true
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	for id, sub := range m.subs {
		sub.active.Store(false)
		delete(m.subs, id)
	}
	m.mu.Unlock()

	m.dispatchMu.Lock()
	m.dispatchMu.Unlock()
}

// Attach forwards the signal's events into the monitor until ctx is done.
func (m *Monitor) Attach(ctx context.Context, sig Signal) error {
	return sig.Watch(ctx, m.Report)
}
