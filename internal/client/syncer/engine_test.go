package syncer

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dmitrijs2005/fieldline/internal/client/client"
	"github.com/dmitrijs2005/fieldline/internal/client/connectivity"
	"github.com/dmitrijs2005/fieldline/internal/client/models"
	"github.com/dmitrijs2005/fieldline/internal/client/queue"
	"github.com/dmitrijs2005/fieldline/internal/common"
	"github.com/dmitrijs2005/fieldline/internal/logging"
	"github.com/dmitrijs2005/fieldline/internal/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	q       *queue.Queue
	mon     *connectivity.Monitor
	backend *client.MemoryClient
	engine  *Engine
}

func newFixture(t *testing.T, initial connectivity.State, cfg Config) *fixture {
	t.Helper()
	ctx := context.Background()

	db, repos, err := client.InitDatabase(ctx, filepath.Join(t.TempDir(), "sync.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	f := &fixture{
		q:       queue.New(repos.Actions, logging.Nop()),
		mon:     connectivity.NewMonitor(initial, 0, logging.Nop(), nil),
		backend: client.NewMemoryClient(),
	}
	t.Cleanup(f.mon.Close)
	f.engine = New(f.q, f.mon, cfg, logging.Nop(), nil)
	f.engine.Register(common.KindIncidentReport, IncidentHandler(f.backend))
	return f
}

func (f *fixture) report(t *testing.T, title string) models.PendingAction {
	t.Helper()
	a, err := f.q.Enqueue(context.Background(), common.KindIncidentReport, models.IncidentReport{LocalID: "local-" + title, Title: title})
	require.NoError(t, err)
	return a
}

func (f *fixture) size(t *testing.T) int {
	t.Helper()
	n, err := f.q.Size(context.Background())
	require.NoError(t, err)
	return n
}

func submittedTitles(m *client.MemoryClient) []string {
	var out []string
	for _, c := range m.Calls(rpc.MethodReportIncident) {
		out = append(out, c.Report.Title)
	}
	return out
}

func TestDrain_FIFOAllSucceed(t *testing.T) {
	f := newFixture(t, connectivity.Online, DefaultConfig())
	f.report(t, "a1")
	f.report(t, "a2")
	f.report(t, "a3")

	res, err := f.engine.Drain(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Result{Submitted: 3}, res)
	assert.Equal(t, []string{"a1", "a2", "a3"}, submittedTitles(f.backend))
	assert.Equal(t, 0, f.size(t))
}

func TestDrain_PartialTransientFailureKeepsOrder(t *testing.T) {
	f := newFixture(t, connectivity.Online, DefaultConfig())
	f.report(t, "a1")
	a2 := f.report(t, "a2")
	f.report(t, "a3")

	f.backend.FailNext(rpc.MethodReportIncident, nil, common.ErrTransientNetwork)

	res, err := f.engine.Drain(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrTransientNetwork)
	assert.Equal(t, Result{Submitted: 1, Deferred: 2}, res)

	pending, err := f.q.PeekAll(context.Background())
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, a2.ID, pending[0].ID)
	assert.Equal(t, 1, pending[0].Attempts)
	assert.Equal(t, 1, f.engine.ConsecutiveFailures())

	res, err = f.engine.Drain(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, res.Submitted)
	assert.Equal(t, 0, f.engine.ConsecutiveFailures())

	incidents := f.backend.Incidents()
	require.Len(t, incidents, 3)
	assert.Equal(t, []string{"a1", "a2", "a3"}, []string{incidents[0].Title, incidents[1].Title, incidents[2].Title})
	assert.Equal(t, 0, f.size(t))
}

func TestDrain_PermanentFailureMovesAsideAndContinues(t *testing.T) {
	f := newFixture(t, connectivity.Online, DefaultConfig())
	f.report(t, "a1")
	bad, err := f.q.Enqueue(context.Background(), common.KindIncidentReport, models.IncidentReport{LocalID: "x"})
	require.NoError(t, err)
	f.report(t, "a3")

	var failures []Failure
	f.engine.OnFailure(func(fl Failure) { failures = append(failures, fl) })

	res, err := f.engine.Drain(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Result{Submitted: 2, Failed: 1}, res)

	require.Len(t, failures, 1)
	assert.Equal(t, bad.ID, failures[0].Action.ID)
	assert.ErrorIs(t, failures[0].Err, common.ErrValidation)

	failed, err := f.q.ListFailed(context.Background())
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Contains(t, failed[0].Reason, "Title")
	assert.Equal(t, 0, f.size(t))
}

func TestDrain_RemoteRejectionIsPermanent(t *testing.T) {
	f := newFixture(t, connectivity.Online, DefaultConfig())
	f.report(t, "dup")
	f.backend.FailNext(rpc.MethodReportIncident, common.ErrPermanentRejection)

	res, err := f.engine.Drain(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Failed)
	assert.Empty(t, f.backend.Incidents())
}

func TestDrain_UnknownKindFails(t *testing.T) {
	f := newFixture(t, connectivity.Online, DefaultConfig())
	_, err := f.q.Enqueue(context.Background(), "wallet-transfer", map[string]int{"amount": 5})
	require.NoError(t, err)
	f.report(t, "a1")

	res, err := f.engine.Drain(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Result{Submitted: 1, Failed: 1}, res)

	failed, _ := f.q.ListFailed(context.Background())
	require.Len(t, failed, 1)
	assert.Contains(t, failed[0].Reason, ErrNoHandler.Error())
}

func TestDrain_KindsDoNotBlockEachOther(t *testing.T) {
	f := newFixture(t, connectivity.Online, DefaultConfig())
	f.engine.Register("wallet-transfer", func(context.Context, models.PendingAction) (Outcome, error) {
		return Outcome{}, common.ErrTransientNetwork
	})

	_, err := f.q.Enqueue(context.Background(), "wallet-transfer", map[string]int{"amount": 5})
	require.NoError(t, err)
	f.report(t, "a1")
	f.report(t, "a2")

	res, err := f.engine.Drain(context.Background())
	require.Error(t, err)
	assert.Equal(t, Result{Submitted: 2, Deferred: 1}, res)
	assert.Equal(t, 1, f.size(t))
}

// lossyReporter loses the first acknowledgement after the backend has
// already created the incident.
type lossyReporter struct {
	inner IncidentReporter
	lost  atomic.Bool
}

func (l *lossyReporter) ReportIncident(ctx context.Context, r models.IncidentReport, key string) (string, error) {
	id, err := l.inner.ReportIncident(ctx, r, key)
	if err == nil && l.lost.CompareAndSwap(false, true) {
		return "", common.ErrTransientNetwork
	}
	return id, err
}

func TestDrain_RetryReusesIdempotencyKey(t *testing.T) {
	f := newFixture(t, connectivity.Online, DefaultConfig())
	f.engine.Register(common.KindIncidentReport, IncidentHandler(&lossyReporter{inner: f.backend}))
	a := f.report(t, "Flood")

	_, err := f.engine.Drain(context.Background())
	require.Error(t, err)
	_, err = f.engine.Drain(context.Background())
	require.NoError(t, err)

	calls := f.backend.Calls(rpc.MethodReportIncident)
	require.Len(t, calls, 2)
	assert.Equal(t, a.IdempotencyKey, calls[0].IdempotencyKey)
	assert.Equal(t, a.IdempotencyKey, calls[1].IdempotencyKey)
	assert.True(t, calls[1].Duplicate)
	assert.Len(t, f.backend.Incidents(), 1)
}

func TestDrain_OnSubmittedCarriesOutcome(t *testing.T) {
	f := newFixture(t, connectivity.Online, DefaultConfig())
	a := f.report(t, "Flood")

	var subs []Submission
	unsub := f.engine.OnSubmitted(func(s Submission) { subs = append(subs, s) })
	defer unsub()

	_, err := f.engine.Drain(context.Background())
	require.NoError(t, err)

	require.Len(t, subs, 1)
	assert.Equal(t, a.ID, subs[0].Action.ID)
	assert.Equal(t, "local-Flood", subs[0].Outcome.LocalRef)
	assert.NotEmpty(t, subs[0].Outcome.RemoteID)
}

func TestDrain_SurfacesAfterConsecutiveFailures(t *testing.T) {
	f := newFixture(t, connectivity.Online, Config{SurfaceAfter: 2})
	f.report(t, "a1")
	f.backend.FailAlways(rpc.MethodReportIncident, common.ErrTransientNetwork)

	var notices []Exhausted
	f.engine.OnRetriesExhausted(func(e Exhausted) { notices = append(notices, e) })

	for i := 0; i < 4; i++ {
		_, err := f.engine.Drain(context.Background())
		require.Error(t, err)
	}
	require.Len(t, notices, 1)
	assert.Equal(t, 2, notices[0].Consecutive)
	assert.Equal(t, 1, f.size(t))
}

func TestDrain_ConcurrentCallsShareOneDrain(t *testing.T) {
	f := newFixture(t, connectivity.Online, DefaultConfig())
	release := make(chan struct{})
	var calls atomic.Int32
	f.engine.Register("slow", func(context.Context, models.PendingAction) (Outcome, error) {
		calls.Add(1)
		<-release
		return Outcome{}, nil
	})
	_, err := f.q.Enqueue(context.Background(), "slow", json.RawMessage(`{}`))
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = f.engine.Drain(context.Background())
		}()
	}
	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, 0, f.size(t))
}

func TestRun_SubmitsOnReconnect(t *testing.T) {
	f := newFixture(t, connectivity.Offline, DefaultConfig())
	f.report(t, "Flood")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.engine.Run(ctx) }()

	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, f.backend.Calls(rpc.MethodReportIncident))

	f.mon.Report(connectivity.Online)
	require.Eventually(t, func() bool { n, _ := f.q.Size(context.Background()); return n == 0 }, 2*time.Second, 10*time.Millisecond)

	calls := f.backend.Calls(rpc.MethodReportIncident)
	require.Len(t, calls, 1)
	assert.Equal(t, "Flood", calls[0].Report.Title)

	cancel()
	require.NoError(t, <-done)
}

func TestRun_RetriesWithBackoff(t *testing.T) {
	f := newFixture(t, connectivity.Online, Config{BaseBackoff: 10 * time.Millisecond, MaxBackoff: 40 * time.Millisecond})
	f.report(t, "a1")
	f.backend.FailNext(rpc.MethodReportIncident, common.ErrTransientNetwork, common.ErrTransientNetwork)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = f.engine.Run(ctx) }()

	require.Eventually(t, func() bool { n, _ := f.q.Size(context.Background()); return n == 0 }, 2*time.Second, 10*time.Millisecond)
	assert.Len(t, f.backend.Calls(rpc.MethodReportIncident), 3)
}

func TestIncidentHandler_BadPayload(t *testing.T) {
	h := IncidentHandler(client.NewMemoryClient())
	_, err := h(context.Background(), models.PendingAction{Kind: common.KindIncidentReport, Payload: json.RawMessage(`[`)})
	require.Error(t, err)
	assert.True(t, errors.Is(err, common.ErrValidation))
	assert.True(t, common.IsPermanent(err))
}
