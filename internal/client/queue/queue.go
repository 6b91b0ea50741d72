// Package queue is the durable FIFO of actions waiting for submission.
//
// The queue never interprets payloads. Each Enqueue is a single INSERT, so a
// crash leaves either the whole action or nothing.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dmitrijs2005/fieldline/internal/client/metrics"
	"github.com/dmitrijs2005/fieldline/internal/client/models"
	"github.com/dmitrijs2005/fieldline/internal/client/repositories/actions"
	"github.com/dmitrijs2005/fieldline/internal/common"
	"github.com/dmitrijs2005/fieldline/internal/id"
	"github.com/dmitrijs2005/fieldline/internal/logging"
)

var ErrEmptyKind = errors.New("action kind is empty")

type Queue struct {
	// mu serializes writers; reads go straight to the store.
	mu      sync.Mutex
	repo    actions.Repository
	logger  logging.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

type Option func(*Queue)

func WithMetrics(m *metrics.Metrics) Option {
	return func(q *Queue) { q.metrics = m }
}

func WithClock(now func() time.Time) Option {
	return func(q *Queue) { q.now = now }
}

func New(repo actions.Repository, logger logging.Logger, opts ...Option) *Queue {
	q := &Queue{
		repo:   repo,
		logger: logger.With("module", "queue"),
		now:    time.Now,
	}
	for _, o := range opts {
		o(q)
	}
	return q
}

func storageErr(op string, err error) error {
	if errors.Is(err, common.ErrNotFound) {
		return err
	}
	return fmt.Errorf("%s: %w: %w", op, common.ErrStorageUnavailable, err)
}

// Enqueue appends an action with a fresh id and idempotency key. payload is
// marshalled to JSON unless it already is a json.RawMessage.
func (q *Queue) Enqueue(ctx context.Context, kind string, payload any) (models.PendingAction, error) {
	if kind == "" {
		return models.PendingAction{}, ErrEmptyKind
	}

	raw, ok := payload.(json.RawMessage)
	if !ok {
		b, err := json.Marshal(payload)
		if err != nil {
			return models.PendingAction{}, fmt.Errorf("encode %s payload: %w", kind, err)
		}
		raw = b
	}

	a := models.PendingAction{
		ID:             id.New(),
		Kind:           kind,
		Payload:        raw,
		IdempotencyKey: id.NewKey(),
		EnqueuedAt:     q.now().UTC().Truncate(time.Millisecond),
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if err := q.repo.Append(ctx, a); err != nil {
		q.metrics.StorageError("queue")
		return models.PendingAction{}, storageErr("enqueue", err)
	}
	q.logger.Info(ctx, "action queued", "id", a.ID, "kind", kind)
	q.refreshDepth(ctx)
	return a, nil
}

func (q *Queue) PeekAll(ctx context.Context) ([]models.PendingAction, error) {
	list, err := q.repo.List(ctx)
	if err != nil {
		return nil, storageErr("peek", err)
	}
	return list, nil
}

func (q *Queue) PeekKind(ctx context.Context, kind string) ([]models.PendingAction, error) {
	list, err := q.repo.ListKind(ctx, kind)
	if err != nil {
		return nil, storageErr("peek "+kind, err)
	}
	return list, nil
}

// Kinds lists the kinds with pending actions, oldest first.
func (q *Queue) Kinds(ctx context.Context) ([]string, error) {
	kinds, err := q.repo.Kinds(ctx)
	if err != nil {
		return nil, storageErr("kinds", err)
	}
	return kinds, nil
}

// RemoveUpTo drops the first n actions in enqueue order.
func (q *Queue) RemoveUpTo(ctx context.Context, n int) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, err := q.repo.DeleteFirst(ctx, n); err != nil {
		return storageErr("remove", err)
	}
	q.refreshDepth(ctx)
	return nil
}

// RemoveByID drops one action after a confirmed submission. Removing an
// action that is already gone is not an error.
func (q *Queue) RemoveByID(ctx context.Context, actionID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, err := q.repo.DeleteByID(ctx, actionID); err != nil {
		return storageErr("remove", err)
	}
	q.refreshDepth(ctx)
	return nil
}

// Discard is the user-initiated removal of a pending action.
func (q *Queue) Discard(ctx context.Context, actionID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	ok, err := q.repo.DeleteByID(ctx, actionID)
	if err != nil {
		return storageErr("discard", err)
	}
	if !ok {
		return fmt.Errorf("action[%s]: %w", actionID, common.ErrNotFound)
	}
	q.logger.Info(ctx, "action discarded", "id", actionID)
	q.refreshDepth(ctx)
	return nil
}

func (q *Queue) Size(ctx context.Context) (int, error) {
	n, err := q.repo.Count(ctx)
	if err != nil {
		return 0, storageErr("size", err)
	}
	return n, nil
}

// RecordAttempt notes a transient failure on the action.
func (q *Queue) RecordAttempt(ctx context.Context, actionID string, cause error) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	if err := q.repo.RecordAttempt(ctx, actionID, msg); err != nil {
		return storageErr("record attempt", err)
	}
	return nil
}

// Fail moves an action to the failed list for manual resolution.
func (q *Queue) Fail(ctx context.Context, actionID, reason string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if err := q.repo.MoveToFailed(ctx, actionID, reason, q.now().UTC()); err != nil {
		return storageErr("fail", err)
	}
	q.logger.Warn(ctx, "action failed permanently", "id", actionID, "reason", reason)
	q.refreshDepth(ctx)
	return nil
}

func (q *Queue) ListFailed(ctx context.Context) ([]models.FailedAction, error) {
	list, err := q.repo.ListFailed(ctx)
	if err != nil {
		return nil, storageErr("list failed", err)
	}
	return list, nil
}

// Requeue puts a failed action back at the tail with its original
// idempotency key.
func (q *Queue) Requeue(ctx context.Context, actionID string) (models.PendingAction, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	a, err := q.repo.Requeue(ctx, actionID)
	if err != nil {
		return models.PendingAction{}, storageErr("requeue", err)
	}
	q.logger.Info(ctx, "failed action requeued", "id", actionID)
	q.refreshDepth(ctx)
	return a, nil
}

func (q *Queue) DiscardFailed(ctx context.Context, actionID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	ok, err := q.repo.DeleteFailed(ctx, actionID)
	if err != nil {
		return storageErr("discard failed", err)
	}
	if !ok {
		return fmt.Errorf("failed action[%s]: %w", actionID, common.ErrNotFound)
	}
	q.refreshDepth(ctx)
	return nil
}

func (q *Queue) refreshDepth(ctx context.Context) {
	if q.metrics == nil {
		return
	}
	pending, err := q.repo.Count(ctx)
	if err != nil {
		return
	}
	failed, err := q.repo.ListFailed(ctx)
	if err != nil {
		return
	}
	q.metrics.SetQueueDepth(pending, len(failed))
}
