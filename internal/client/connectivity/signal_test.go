package connectivity

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dmitrijs2005/fieldline/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePinger struct {
	fail atomic.Bool
}

func (f *fakePinger) Ping(ctx context.Context) error {
	if f.fail.Load() {
		return errors.New("unavailable")
	}
	return nil
}

func TestProbeSignal_CurrentAndWatch(t *testing.T) {
	p := &fakePinger{}
	sig := NewProbeSignal(p, 10*time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	assert.Equal(t, Online, sig.Current(ctx))
	p.fail.Store(true)
	assert.Equal(t, Offline, sig.Current(ctx))

	m := NewMonitor(Offline, 0, logging.Nop(), nil)
	done := make(chan error, 1)
	go func() { done <- m.Attach(ctx, sig) }()

	p.fail.Store(false)
	require.Eventually(t, func() bool { return m.Current() == Online }, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("probe did not stop after cancel")
	}
}

func TestParseState(t *testing.T) {
	assert.Equal(t, Online, parseState(" Online\n"))
	assert.Equal(t, Online, parseState("up"))
	assert.Equal(t, Offline, parseState("offline"))
	assert.Equal(t, Offline, parseState(""))
}

func TestFileSignal_CurrentAndWatch(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "network")
	sig := NewFileSignal(path)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	assert.Equal(t, Offline, sig.Current(ctx), "missing file means offline")

	var mu sync.Mutex
	var seen []State
	done := make(chan error, 1)
	go func() {
		done <- sig.Watch(ctx, func(s State) {
			mu.Lock()
			seen = append(seen, s)
			mu.Unlock()
		})
	}()

	last := func() (State, bool) {
		mu.Lock()
		defer mu.Unlock()
		if len(seen) == 0 {
			return Offline, false
		}
		return seen[len(seen)-1], true
	}

	// the watcher may not be registered yet, so keep rewriting
	require.Eventually(t, func() bool {
		_ = os.WriteFile(path, []byte("online\n"), 0o600)
		s, ok := last()
		return ok && s == Online
	}, 2*time.Second, 20*time.Millisecond)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "unrelated"), []byte("offline"), 0o600))
	require.NoError(t, os.Remove(path))
	require.Eventually(t, func() bool {
		s, _ := last()
		return s == Offline
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("watch did not stop after cancel")
	}
}

func TestFileSignal_WatchMissingDir(t *testing.T) {
	sig := NewFileSignal(filepath.Join(t.TempDir(), "nope", "network"))
	err := sig.Watch(context.Background(), func(State) {})
	require.Error(t, err)
}
