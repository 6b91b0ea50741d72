// Package syncer replays queued actions against the backend.
//
// Actions are partitioned by kind. Within a kind the queue order is kept: a
// transient failure stops that kind for the rest of the batch and leaves the
// action at the head. Other kinds keep draining. Permanent failures move the
// action to the failed list.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dmitrijs2005/fieldline/internal/client/connectivity"
	"github.com/dmitrijs2005/fieldline/internal/client/metrics"
	"github.com/dmitrijs2005/fieldline/internal/client/models"
	"github.com/dmitrijs2005/fieldline/internal/common"
	"github.com/dmitrijs2005/fieldline/internal/logging"
	"github.com/dmitrijs2005/fieldline/internal/observer"
	"github.com/sethvargo/go-retry"
	"golang.org/x/sync/singleflight"
)

var ErrNoHandler = errors.New("no handler registered for action kind")

// ActionQueue is the part of the pending-action queue the engine needs.
type ActionQueue interface {
	Kinds(ctx context.Context) ([]string, error)
	PeekKind(ctx context.Context, kind string) ([]models.PendingAction, error)
	RemoveByID(ctx context.Context, actionID string) error
	RecordAttempt(ctx context.Context, actionID string, cause error) error
	Fail(ctx context.Context, actionID, reason string) error
}

type Connectivity interface {
	Current() connectivity.State
	OnOnline(cb func()) (unsubscribe func())
}

type Config struct {
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
	// SurfaceAfter is the number of consecutive failed batches after which
	// exhaustion observers are told. Retrying continues.
	SurfaceAfter int
}

func DefaultConfig() Config {
	return Config{BaseBackoff: time.Second, MaxBackoff: time.Minute, SurfaceAfter: 5}
}

// Result summarizes one drain.
type Result struct {
	Submitted int
	Failed    int
	// Deferred counts actions left queued after a transient failure.
	Deferred int
}

type Submission struct {
	Action  models.PendingAction
	Outcome Outcome
}

type Failure struct {
	Action models.PendingAction
	Err    error
}

// Exhausted reports a streak of failed batches.
type Exhausted struct {
	Consecutive int
	Err         error
}

type Engine struct {
	queue ActionQueue
	conn  Connectivity
	cfg   Config

	mu          sync.Mutex
	handlers    map[string]Handler
	consecutive int

	group  singleflight.Group
	kickCh chan struct{}

	submitted observer.List[Submission]
	failed    observer.List[Failure]
	exhausted observer.List[Exhausted]

	logger  logging.Logger
	metrics *metrics.Metrics
}

func New(q ActionQueue, conn Connectivity, cfg Config, logger logging.Logger, m *metrics.Metrics) *Engine {
	def := DefaultConfig()
	if cfg.BaseBackoff <= 0 {
		cfg.BaseBackoff = def.BaseBackoff
	}
	if cfg.MaxBackoff < cfg.BaseBackoff {
		cfg.MaxBackoff = def.MaxBackoff
	}
	if cfg.SurfaceAfter <= 0 {
		cfg.SurfaceAfter = def.SurfaceAfter
	}
	return &Engine{
		queue:    q,
		conn:     conn,
		cfg:      cfg,
		handlers: make(map[string]Handler),
		kickCh:   make(chan struct{}, 1),
		logger:   logger.With("module", "syncer"),
		metrics:  m,
	}
}

func (e *Engine) Register(kind string, h Handler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handlers[kind] = h
}

func (e *Engine) handler(kind string) Handler {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.handlers[kind]
}

func (e *Engine) OnSubmitted(fn func(Submission)) (unsubscribe func()) {
	return e.submitted.Subscribe(fn)
}

func (e *Engine) OnFailure(fn func(Failure)) (unsubscribe func()) {
	return e.failed.Subscribe(fn)
}

func (e *Engine) OnRetriesExhausted(fn func(Exhausted)) (unsubscribe func()) {
	return e.exhausted.Subscribe(fn)
}

// ConsecutiveFailures is the length of the current failed-batch streak.
func (e *Engine) ConsecutiveFailures() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.consecutive
}

// Kick asks the run loop for a drain without waiting for it.
func (e *Engine) Kick() {
	select {
	case e.kickCh <- struct{}{}:
	default:
	}
}

// Drain submits the queue once. Concurrent callers share the same drain.
// The error is non-nil when some actions stayed queued.
func (e *Engine) Drain(ctx context.Context) (Result, error) {
	v, err, _ := e.group.Do("drain", func() (any, error) {
		return e.drain(ctx)
	})
	res, _ := v.(Result)
	return res, err
}

func (e *Engine) drain(ctx context.Context) (Result, error) {
	var res Result

	kinds, err := e.queue.Kinds(ctx)
	if err != nil {
		e.finish(err)
		return res, err
	}

	var deferred error
	for _, kind := range kinds {
		if err := e.drainKind(ctx, kind, &res); err != nil {
			if errors.Is(err, common.ErrStorageUnavailable) || ctx.Err() != nil {
				e.finish(err)
				return res, err
			}
			deferred = err
		}
	}

	e.finish(deferred)
	if deferred != nil {
		return res, fmt.Errorf("%d actions deferred: %w", res.Deferred, deferred)
	}
	if res.Submitted+res.Failed > 0 {
		e.logger.Info(ctx, "queue drained", "submitted", res.Submitted, "failed", res.Failed)
	}
	return res, nil
}

// drainKind walks one kind in FIFO order and returns the transient error
// that stopped it, if any.
func (e *Engine) drainKind(ctx context.Context, kind string, res *Result) error {
	list, err := e.queue.PeekKind(ctx, kind)
	if err != nil {
		return err
	}

	h := e.handler(kind)
	for i, a := range list {
		if err := ctx.Err(); err != nil {
			res.Deferred += len(list) - i
			return err
		}

		if h == nil {
			if err := e.fail(ctx, a, fmt.Errorf("%w: %s", ErrNoHandler, kind)); err != nil {
				return err
			}
			res.Failed++
			continue
		}

		out, err := h(ctx, a)
		switch {
		case err == nil:
			if err := e.queue.RemoveByID(ctx, a.ID); err != nil {
				return err
			}
			res.Submitted++
			e.metrics.Submission(kind, "ok")
			e.submitted.Notify(Submission{Action: a, Outcome: out})

		case common.IsPermanent(err):
			if err := e.fail(ctx, a, err); err != nil {
				return err
			}
			res.Failed++

		default:
			e.metrics.Submission(kind, "transient")
			if rerr := e.queue.RecordAttempt(ctx, a.ID, err); rerr != nil {
				e.logger.Warn(ctx, "failed to record attempt", "id", a.ID, "error", rerr)
			}
			e.logger.Warn(ctx, "submission deferred", "id", a.ID, "kind", kind, "error", err)
			res.Deferred += len(list) - i
			return err
		}
	}
	return nil
}

func (e *Engine) fail(ctx context.Context, a models.PendingAction, cause error) error {
	if err := e.queue.Fail(ctx, a.ID, cause.Error()); err != nil {
		return err
	}
	e.metrics.Submission(a.Kind, "permanent")
	e.failed.Notify(Failure{Action: a, Err: cause})
	return nil
}

// finish updates the failed-batch streak.
func (e *Engine) finish(err error) {
	e.metrics.Drain(err == nil)

	e.mu.Lock()
	if err == nil {
		e.consecutive = 0
		e.mu.Unlock()
		return
	}
	e.consecutive++
	n := e.consecutive
	e.mu.Unlock()

	if n == e.cfg.SurfaceAfter {
		e.exhausted.Notify(Exhausted{Consecutive: n, Err: err})
	}
}

func (e *Engine) newBackoff() retry.Backoff {
	return retry.WithCappedDuration(e.cfg.MaxBackoff, retry.NewExponential(e.cfg.BaseBackoff))
}

// Run drains once if already online, on every transition to online, on
// Kick and on a capped exponential backoff after a failed drain. It
// returns when ctx is done.
func (e *Engine) Run(ctx context.Context) error {
	unsubscribe := e.conn.OnOnline(e.Kick)
	defer unsubscribe()

	if e.conn.Current() == connectivity.Online {
		e.Kick()
	}

	backoff := e.newBackoff()
	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-e.kickCh:
		case <-timer.C:
		}

		if e.conn.Current() != connectivity.Online {
			continue
		}

		_, err := e.Drain(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if err == nil {
			backoff = e.newBackoff()
			timer.Stop()
			continue
		}

		wait, _ := backoff.Next()
		e.logger.Debug(ctx, "retry scheduled", "in", wait.String())
		timer.Reset(wait)
	}
}
