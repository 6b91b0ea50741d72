package queue

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/fieldline/internal/client/metrics"
	"github.com/dmitrijs2005/fieldline/internal/client/migrations"
	"github.com/dmitrijs2005/fieldline/internal/client/models"
	"github.com/dmitrijs2005/fieldline/internal/client/repositories/actions"
	"github.com/dmitrijs2005/fieldline/internal/common"
	"github.com/dmitrijs2005/fieldline/internal/dbx"
	"github.com/dmitrijs2005/fieldline/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openRepo(t *testing.T, path string) actions.Repository {
	t.Helper()
	ctx := context.Background()
	db, err := dbx.OpenSQLite(ctx, path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, migrations.Up(ctx, db))
	return actions.NewSQLiteRepository(db)
}

func newQueue(t *testing.T) *Queue {
	t.Helper()
	return New(openRepo(t, filepath.Join(t.TempDir(), "queue.db")), logging.Nop(), WithMetrics(metrics.New()))
}

func titles(t *testing.T, list []models.PendingAction) []string {
	t.Helper()
	out := make([]string, 0, len(list))
	for _, a := range list {
		var p struct {
			Title string `json:"title"`
		}
		require.NoError(t, json.Unmarshal(a.Payload, &p))
		out = append(out, p.Title)
	}
	return out
}

func TestEnqueue_FIFOAndFields(t *testing.T) {
	q := newQueue(t)
	ctx := context.Background()

	a1, err := q.Enqueue(ctx, common.KindIncidentReport, map[string]string{"title": "Flood"})
	require.NoError(t, err)
	_, err = q.Enqueue(ctx, common.KindIncidentReport, json.RawMessage(`{"title":"Fire"}`))
	require.NoError(t, err)
	_, err = q.Enqueue(ctx, common.KindIncidentReport, map[string]string{"title": "Quake"})
	require.NoError(t, err)

	assert.NotEmpty(t, a1.ID)
	assert.NotEmpty(t, a1.IdempotencyKey)
	assert.False(t, a1.EnqueuedAt.IsZero())

	list, err := q.PeekAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Flood", "Fire", "Quake"}, titles(t, list))
	assert.Equal(t, a1, list[0])

	n, err := q.Size(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	require.NoError(t, q.RemoveUpTo(ctx, 2))
	list, err = q.PeekAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Quake"}, titles(t, list))
}

func TestEnqueue_Validation(t *testing.T) {
	q := newQueue(t)

	_, err := q.Enqueue(context.Background(), "", nil)
	assert.ErrorIs(t, err, ErrEmptyKind)

	_, err = q.Enqueue(context.Background(), "k", make(chan int))
	assert.Error(t, err)
}

func TestEnqueue_SurvivesRestart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "restart.db")
	ctx := context.Background()

	q1 := New(openRepo(t, path), logging.Nop())
	a, err := q1.Enqueue(ctx, "incident-report", map[string]string{"title": "Flood"})
	require.NoError(t, err)

	q2 := New(openRepo(t, path), logging.Nop())
	list, err := q2.PeekAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, []models.PendingAction{a}, list)
}

func TestPeekKind_Kinds(t *testing.T) {
	q := newQueue(t)
	ctx := context.Background()

	_, _ = q.Enqueue(ctx, "wallet-transfer", map[string]string{"title": "w1"})
	_, _ = q.Enqueue(ctx, "incident-report", map[string]string{"title": "i1"})
	_, _ = q.Enqueue(ctx, "wallet-transfer", map[string]string{"title": "w2"})

	kinds, err := q.Kinds(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"wallet-transfer", "incident-report"}, kinds)

	w, err := q.PeekKind(ctx, "wallet-transfer")
	require.NoError(t, err)
	assert.Equal(t, []string{"w1", "w2"}, titles(t, w))
}

func TestRemoveByID_DiscardAndAttempts(t *testing.T) {
	q := newQueue(t)
	ctx := context.Background()

	a, _ := q.Enqueue(ctx, "k", map[string]string{"title": "a"})
	b, _ := q.Enqueue(ctx, "k", map[string]string{"title": "b"})

	require.NoError(t, q.RecordAttempt(ctx, b.ID, errors.New("timeout")))
	require.NoError(t, q.RemoveByID(ctx, a.ID))
	require.NoError(t, q.RemoveByID(ctx, a.ID))

	list, _ := q.PeekAll(ctx)
	require.Len(t, list, 1)
	assert.Equal(t, 1, list[0].Attempts)
	assert.Equal(t, "timeout", list[0].LastError)

	require.NoError(t, q.Discard(ctx, b.ID))
	assert.True(t, errors.Is(q.Discard(ctx, b.ID), common.ErrNotFound))
}

func TestFail_RequeueDiscardFailed(t *testing.T) {
	now := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	q := New(openRepo(t, filepath.Join(t.TempDir(), "q.db")), logging.Nop(), WithClock(func() time.Time { return now }))
	ctx := context.Background()

	a, _ := q.Enqueue(ctx, "k", map[string]string{"title": "a"})
	b, _ := q.Enqueue(ctx, "k", map[string]string{"title": "b"})

	require.NoError(t, q.Fail(ctx, a.ID, "title rejected"))
	assert.True(t, errors.Is(q.Fail(ctx, a.ID, "x"), common.ErrNotFound))

	failed, err := q.ListFailed(ctx)
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, a.ID, failed[0].Action.ID)
	assert.Equal(t, now, failed[0].FailedAt)

	back, err := q.Requeue(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, a.IdempotencyKey, back.IdempotencyKey)

	list, _ := q.PeekAll(ctx)
	assert.Equal(t, []string{b.ID, a.ID}, []string{list[0].ID, list[1].ID})

	require.NoError(t, q.Fail(ctx, b.ID, "conflict"))
	require.NoError(t, q.DiscardFailed(ctx, b.ID))
	assert.True(t, errors.Is(q.DiscardFailed(ctx, b.ID), common.ErrNotFound))
}

// brokenRepo fails every call.
type brokenRepo struct {
	actions.Repository
}

func (brokenRepo) Append(context.Context, models.PendingAction) error { return errors.New("disk full") }
func (brokenRepo) List(context.Context) ([]models.PendingAction, error) {
	return nil, errors.New("disk full")
}
func (brokenRepo) Count(context.Context) (int, error) { return 0, errors.New("disk full") }

func TestStorageErrorsAreDistinguishable(t *testing.T) {
	q := New(brokenRepo{}, logging.Nop())
	ctx := context.Background()

	_, err := q.Enqueue(ctx, "k", 1)
	assert.True(t, errors.Is(err, common.ErrStorageUnavailable))
	_, err = q.PeekAll(ctx)
	assert.True(t, errors.Is(err, common.ErrStorageUnavailable))
	_, err = q.Size(ctx)
	assert.True(t, errors.Is(err, common.ErrStorageUnavailable))
}

func TestEnqueue_ConcurrentWritersKeepAll(t *testing.T) {
	q := newQueue(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := q.Enqueue(ctx, "k", map[string]int{"n": 1})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	n, err := q.Size(ctx)
	require.NoError(t, err)
	assert.Equal(t, 20, n)
}
