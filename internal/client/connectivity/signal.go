package connectivity

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Signal is a platform source of connectivity events.
type Signal interface {
	// Current reads the state right now; used once at startup.
	Current(ctx context.Context) State
	// Watch reports state changes until ctx is done. Reporting the same
	// state repeatedly is allowed.
	Watch(ctx context.Context, report func(State)) error
}

// Pinger is the reachability check the probe uses.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ProbeSignal derives connectivity from periodic backend pings. It stands
// in for an OS network-change event source.
type ProbeSignal struct {
	pinger   Pinger
	interval time.Duration
	timeout  time.Duration
}

func NewProbeSignal(p Pinger, interval time.Duration) *ProbeSignal {
	return &ProbeSignal{pinger: p, interval: interval, timeout: 3 * time.Second}
}

func (p *ProbeSignal) Current(ctx context.Context) State {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	if err := p.pinger.Ping(ctx); err != nil {
		return Offline
	}
	return Online
}

func (p *ProbeSignal) Watch(ctx context.Context, report func(State)) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			report(p.Current(ctx))
		case <-ctx.Done():
			return nil
		}
	}
}

// FileSignal reads the state from a file containing "online" or "offline",
// for example one maintained by a NetworkManager dispatcher script. A
// missing file means offline.
type FileSignal struct {
	path string
}

func NewFileSignal(path string) *FileSignal {
	return &FileSignal{path: path}
}

func (f *FileSignal) Current(context.Context) State {
	b, err := os.ReadFile(f.path)
	if err != nil {
		return Offline
	}
	return parseState(string(b))
}

func parseState(s string) State {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "online", "up", "1", "true":
		return Online
	default:
		return Offline
	}
}

// Watch observes the parent directory so atomic replace-by-rename of the
// status file is seen too.
func (f *FileSignal) Watch(ctx context.Context, report func(State)) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("fsnotify: %w", err)
	}
	defer w.Close()

	dir := filepath.Dir(f.path)
	if err := w.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	name := filepath.Clean(f.path)

	for {
		select {
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != name {
				continue
			}
			if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) ||
				ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename) {
				report(f.Current(ctx))
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			if !errors.Is(err, fsnotify.ErrEventOverflow) {
				return fmt.Errorf("watch %s: %w", dir, err)
			}
			report(f.Current(ctx))
		case <-ctx.Done():
			return nil
		}
	}
}
