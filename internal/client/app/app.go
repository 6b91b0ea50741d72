// Package app wires the capture, storage, sync and notification components
// into one process-wide context. Every capture surface goes through App so
// that a single queue, monitor and sync engine exist per process.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/dmitrijs2005/fieldline/internal/client/attachments"
	"github.com/dmitrijs2005/fieldline/internal/client/blobstore"
	"github.com/dmitrijs2005/fieldline/internal/client/client"
	"github.com/dmitrijs2005/fieldline/internal/client/config"
	"github.com/dmitrijs2005/fieldline/internal/client/connectivity"
	"github.com/dmitrijs2005/fieldline/internal/client/debughttp"
	"github.com/dmitrijs2005/fieldline/internal/client/metrics"
	"github.com/dmitrijs2005/fieldline/internal/client/migrations"
	"github.com/dmitrijs2005/fieldline/internal/client/models"
	"github.com/dmitrijs2005/fieldline/internal/client/notifications"
	"github.com/dmitrijs2005/fieldline/internal/client/queue"
	"github.com/dmitrijs2005/fieldline/internal/client/syncer"
	"github.com/dmitrijs2005/fieldline/internal/common"
	"github.com/dmitrijs2005/fieldline/internal/filex"
	"github.com/dmitrijs2005/fieldline/internal/id"
	"github.com/dmitrijs2005/fieldline/internal/logging"
	"github.com/dmitrijs2005/fieldline/internal/validate"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// ErrOffline is returned by SyncNow while the device is offline.
var ErrOffline = fmt.Errorf("%w: device is offline", common.ErrTransientNetwork)

var (
	newGRPCClient = func(addr, token string) (client.Client, error) {
		if token == "" {
			return client.NewGRPCClient(addr)
		}
		return client.NewGRPCClient(addr, client.WithAccessToken(token))
	}
	ensureParentDir = filex.EnsureParentDir
)

// Options override the components Init would otherwise build from Config.
type Options struct {
	Client     client.Client
	Signal     connectivity.Signal
	Uploader   blobstore.Uploader
	HTTPClient *http.Client
	Now        func() time.Time
}

type App struct {
	cfg    *config.Config
	opts   Options
	logger logging.Logger

	db      *sql.DB
	repos   *client.Repositories
	client  client.Client
	signal  connectivity.Signal
	metrics *metrics.Metrics
	debug   *debughttp.Server

	Attachments *attachments.Store
	Queue       *queue.Queue
	Monitor     *connectivity.Monitor
	Sync        *syncer.Engine
	Feed        *notifications.Feed
	Presenter   *notifications.Presenter

	mu      sync.Mutex
	started bool
	closed  bool
	cancel  context.CancelFunc
	group   *errgroup.Group
	unsubs  []func()
}

func New(cfg *config.Config, opts Options, logger logging.Logger) *App {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 60 * time.Second}
	}
	return &App{cfg: cfg, opts: opts, logger: logger.With("module", "app")}
}

// Init opens storage and builds every component. Nothing runs until Start.
func (a *App) Init(ctx context.Context) error {
	if err := ensureParentDir(a.cfg.DatabasePath); err != nil {
		return fmt.Errorf("%w: %w", common.ErrStorageUnavailable, err)
	}

	db, repos, err := client.InitDatabase(ctx, a.cfg.DatabasePath)
	if err != nil {
		return err
	}
	a.db, a.repos = db, repos

	a.client = a.opts.Client
	if a.client == nil {
		a.client, err = newGRPCClient(a.cfg.ServerEndpointAddr, a.cfg.AccessToken)
		if err != nil {
			a.client = nil
			a.abortInit()
			return fmt.Errorf("failed to create backend client: %w", err)
		}
	}

	a.metrics = metrics.New()

	a.Attachments = attachments.NewStore(repos.Attachments, a.uploader(), a.logger,
		attachments.WithMetrics(a.metrics), attachments.WithClock(a.opts.Now))
	a.Queue = queue.New(repos.Actions, a.logger,
		queue.WithMetrics(a.metrics), queue.WithClock(a.opts.Now))

	a.signal = a.opts.Signal
	if a.signal == nil {
		if a.cfg.ConnectivitySignal == "file" {
			a.signal = connectivity.NewFileSignal(a.cfg.ConnectivityFile)
		} else {
			a.signal = connectivity.NewProbeSignal(a.client, a.cfg.OnlineCheckInterval)
		}
	}
	initial := a.signal.Current(ctx)
	a.Monitor = connectivity.NewMonitor(initial, a.cfg.DebounceWindow, a.logger, a.metrics)

	a.Sync = syncer.New(a.Queue, a.Monitor, syncer.Config{
		BaseBackoff:  a.cfg.SyncBaseBackoff,
		MaxBackoff:   a.cfg.SyncMaxBackoff,
		SurfaceAfter: a.cfg.SurfaceAfterFailures,
	}, a.logger, a.metrics)
	a.Sync.Register(common.KindIncidentReport, syncer.IncidentHandler(a.client))

	a.Feed = notifications.NewFeed(a.client, a.cfg.PollInterval, a.logger, a.metrics)

	seen, err := notifications.NewSeenSet(a.cfg.DedupPolicy, repos.Metadata)
	if err != nil {
		a.abortInit()
		return err
	}
	if ps, ok := seen.(*notifications.PersistentSeen); ok {
		if n, err := ps.Prune(ctx, notifications.SeenRetention); err != nil {
			a.logger.Warn(ctx, "failed to prune presented alerts", "error", err)
		} else if n > 0 {
			a.logger.Debug(ctx, "pruned presented alerts", "count", n)
		}
	}
	a.Presenter = notifications.NewPresenter(seen, a.client, a.cfg.DismissAfter, a.logger,
		notifications.WithMetrics(a.metrics),
		notifications.WithClock(a.opts.Now),
		// zero disables limiting
		notifications.WithMarkReadRate(rate.Limit(a.cfg.MarkReadRate), max(1, int(a.cfg.MarkReadRate))),
	)

	if a.cfg.DebugAddr != "" {
		a.debug = debughttp.NewServer(a.cfg.DebugAddr, debughttp.Deps{
			Attachments: a.Attachments,
			Queue:       a.Queue,
			Alerts:      a.Presenter,
			Feed:        a.Feed,
			Online:      func() bool { return a.Monitor.Current() == connectivity.Online },
			Registry:    a.metrics.Registry,
		}, a.logger)
	}

	schema, err := migrations.Version(ctx, db)
	if err != nil {
		a.logger.Warn(ctx, "failed to read schema version", "error", err)
	}
	a.logger.Info(ctx, "initialized",
		"db", a.cfg.DatabasePath, "schema", schema,
		"connectivity", initial.String(), "upload", a.cfg.UploadMode)
	return nil
}

func (a *App) uploader() blobstore.Uploader {
	if a.opts.Uploader != nil {
		return a.opts.Uploader
	}
	switch a.cfg.UploadMode {
	case "s3":
		return blobstore.NewS3Uploader(blobstore.S3Config{
			AccessKey:    a.cfg.S3AccessKey,
			SecretKey:    a.cfg.S3SecretKey,
			Bucket:       a.cfg.S3Bucket,
			Region:       a.cfg.S3Region,
			BaseEndpoint: a.cfg.S3BaseEndpoint,
		})
	case "presigned":
		return blobstore.NewPresignedUploader(a.client, a.opts.HTTPClient)
	default:
		return blobstore.Disabled{}
	}
}

// Start launches the connectivity watch, the sync loop, the notification
// poll and the debug server. Components stop when ctx is done or on
// Shutdown.
func (a *App) Start(ctx context.Context) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.started || a.closed {
		return
	}
	a.started = true

	runCtx, cancel := context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(runCtx)
	a.cancel, a.group = cancel, g

	a.unsubs = append(a.unsubs,
		a.Feed.Subscribe(func(s notifications.Snapshot) {
			a.Presenter.Observe(gctx, s)
		}),
		a.Sync.OnSubmitted(func(s syncer.Submission) {
			a.afterSubmit(gctx, s)
		}),
		a.Sync.OnFailure(func(f syncer.Failure) {
			a.logger.Warn(gctx, "action rejected", "id", f.Action.ID, "kind", f.Action.Kind, "error", f.Err)
		}),
		a.Sync.OnRetriesExhausted(func(e syncer.Exhausted) {
			a.logger.Error(gctx, "sync keeps failing", "consecutive", e.Consecutive, "error", e.Err)
		}),
		a.Monitor.OnOnline(func() {
			a.Feed.Refresh(gctx)
		}),
	)

	g.Go(func() error {
		if err := a.Monitor.Attach(gctx, a.signal); err != nil {
			// keep running on the last known state
			a.logger.Error(gctx, "connectivity signal stopped", "error", err)
		}
		return nil
	})
	g.Go(func() error {
		return a.Sync.Run(gctx)
	})
	if a.debug != nil {
		g.Go(func() error {
			// the debug surface is optional, syncing goes on without it
			if err := a.debug.Run(gctx); err != nil {
				a.logger.Error(gctx, "debug server stopped", "address", a.cfg.DebugAddr, "error", err)
			}
			return nil
		})
	}

	a.Feed.Start(gctx)
}

// abortInit releases what a failed Init opened. A client passed in
// Options belongs to the caller and is left open.
func (a *App) abortInit() {
	if a.client != nil && a.opts.Client == nil {
		_ = a.client.Close()
	}
	a.client = nil
	if a.db != nil {
		_ = a.db.Close()
		a.db = nil
	}
}

// afterSubmit moves attachments from the local incident id to the one the
// backend assigned, then refreshes notifications since the server state
// just changed.
func (a *App) afterSubmit(ctx context.Context, s syncer.Submission) {
	if s.Outcome.LocalRef != "" && s.Outcome.RemoteID != "" {
		if err := a.Attachments.Rekey(ctx, s.Outcome.LocalRef, s.Outcome.RemoteID); err != nil {
			a.logger.Error(ctx, "failed to rekey attachments",
				"from", s.Outcome.LocalRef, "to", s.Outcome.RemoteID, "error", err)
		}
	}
	a.Feed.Refresh(ctx)
}

// Shutdown stops every component and releases storage and the backend
// connection. It is safe to call without Start and more than once.
func (a *App) Shutdown(ctx context.Context) error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	unsubs := a.unsubs
	a.unsubs = nil
	cancel, g := a.cancel, a.group
	a.mu.Unlock()

	for _, u := range unsubs {
		u()
	}

	if cancel != nil {
		cancel()
	}
	var errs []error
	if a.Feed != nil {
		a.Feed.Stop()
	}
	if a.Presenter != nil {
		a.Presenter.Close()
	}
	if g != nil {
		done := make(chan error, 1)
		go func() { done <- g.Wait() }()
		select {
		case err := <-done:
			errs = append(errs, err)
		case <-ctx.Done():
			errs = append(errs, fmt.Errorf("shutdown: %w", ctx.Err()))
		}
	}
	if a.Monitor != nil {
		a.Monitor.Close()
	}
	if a.client != nil {
		errs = append(errs, a.client.Close())
	}
	if a.db != nil {
		errs = append(errs, a.db.Close())
	}
	return errors.Join(errs...)
}

// ReportIncident stores the report's attachments and queues the report for
// submission. A missing LocalID is assigned. If attachments cannot be
// stored, the processed attachments are returned with the error and nothing
// is queued, so the caller can keep them in memory and retry.
func (a *App) ReportIncident(ctx context.Context, report models.IncidentReport, files []models.RawFile) (models.PendingAction, []models.StoredAttachment, error) {
	if report.LocalID == "" {
		report.LocalID = id.NewKey()
	}
	if report.CapturedAt.IsZero() {
		report.CapturedAt = a.opts.Now().UTC()
	}
	if err := validate.Struct(report); err != nil {
		return models.PendingAction{}, nil, err
	}

	if len(files) > 0 {
		atts, err := a.Attachments.Save(ctx, report.LocalID, files)
		if err != nil {
			return models.PendingAction{}, atts, err
		}
		report.Attachments = atts
	}

	action, err := a.Queue.Enqueue(ctx, common.KindIncidentReport, report)
	if err != nil {
		return models.PendingAction{}, report.Attachments, err
	}
	a.logger.Info(ctx, "incident queued", "local_id", report.LocalID, "action", action.ID, "attachments", len(files))

	a.Sync.Kick()
	return action, report.Attachments, nil
}

// Attach replaces the attachments stored for incidentID.
func (a *App) Attach(ctx context.Context, incidentID string, files []models.RawFile) ([]models.StoredAttachment, error) {
	return a.Attachments.Save(ctx, incidentID, files)
}

// Evidence lists stored attachments by incident id.
func (a *App) Evidence(ctx context.Context) (map[string][]models.StoredAttachment, error) {
	return a.Attachments.GetAll(ctx)
}

// OnAlert observes alerts appearing and leaving the screen.
func (a *App) OnAlert(fn func(notifications.Change)) (unsubscribe func()) {
	return a.Presenter.OnChange(fn)
}

// OnRejected observes actions the backend refused for good.
func (a *App) OnRejected(fn func(syncer.Failure)) (unsubscribe func()) {
	return a.Sync.OnFailure(fn)
}

func (a *App) Pending(ctx context.Context) ([]models.PendingAction, error) {
	return a.Queue.PeekAll(ctx)
}

func (a *App) Failed(ctx context.Context) ([]models.FailedAction, error) {
	return a.Queue.ListFailed(ctx)
}

// Retry moves a failed action back to the pending queue and wakes the sync
// loop.
func (a *App) Retry(ctx context.Context, actionID string) (models.PendingAction, error) {
	action, err := a.Queue.Requeue(ctx, actionID)
	if err != nil {
		return models.PendingAction{}, err
	}
	a.Sync.Kick()
	return action, nil
}

// Discard drops a pending or failed action.
func (a *App) Discard(ctx context.Context, actionID string) error {
	err := a.Queue.Discard(ctx, actionID)
	if errors.Is(err, common.ErrNotFound) {
		return a.Queue.DiscardFailed(ctx, actionID)
	}
	return err
}

// SyncNow drains the queue in the foreground.
func (a *App) SyncNow(ctx context.Context) (syncer.Result, error) {
	if a.Monitor.Current() != connectivity.Online {
		return syncer.Result{}, ErrOffline
	}
	return a.Sync.Drain(ctx)
}

func (a *App) Alerts() []notifications.Item {
	return a.Presenter.OnScreen()
}

func (a *App) Acknowledge(ctx context.Context, notificationID string) error {
	return a.Presenter.Acknowledge(ctx, notificationID)
}

func (a *App) AcknowledgeAll(ctx context.Context) error {
	return a.Presenter.AcknowledgeAll(ctx)
}

// History returns all notifications newest first, polling when no snapshot
// has been taken yet.
func (a *App) History(ctx context.Context) ([]models.Notification, error) {
	if snap, ok := a.Feed.Latest(); ok {
		return snap.All, nil
	}
	snap, err := a.Feed.Poll(ctx)
	if err != nil {
		return nil, err
	}
	return snap.All, nil
}

type Status struct {
	Online              bool
	Pending             int
	Failed              int
	OnScreen            int
	Unread              int
	ConsecutiveFailures int
	LastPoll            time.Time
}

func (a *App) Status(ctx context.Context) (Status, error) {
	pending, err := a.Queue.Size(ctx)
	if err != nil {
		return Status{}, err
	}
	failed, err := a.Queue.ListFailed(ctx)
	if err != nil {
		return Status{}, err
	}

	st := Status{
		Online:              a.Monitor.Current() == connectivity.Online,
		Pending:             pending,
		Failed:              len(failed),
		OnScreen:            len(a.Presenter.OnScreen()),
		ConsecutiveFailures: a.Sync.ConsecutiveFailures(),
	}
	if snap, ok := a.Feed.Latest(); ok {
		st.Unread = snap.UnreadCount
		st.LastPoll = snap.FetchedAt
	}
	return st, nil
}
