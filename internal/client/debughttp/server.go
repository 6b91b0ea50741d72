// Package debughttp serves a read-only inspection surface for the running
// client: health, Prometheus metrics, stored attachments, the pending and
// failed queues and the alerts on screen.
package debughttp

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/dmitrijs2005/fieldline/internal/client/models"
	"github.com/dmitrijs2005/fieldline/internal/client/notifications"
	"github.com/dmitrijs2005/fieldline/internal/common"
	"github.com/dmitrijs2005/fieldline/internal/logging"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type AttachmentReader interface {
	Get(ctx context.Context, incidentID string) (models.AttachmentRecord, error)
	GetAll(ctx context.Context) (map[string][]models.StoredAttachment, error)
}

type QueueReader interface {
	PeekAll(ctx context.Context) ([]models.PendingAction, error)
	ListFailed(ctx context.Context) ([]models.FailedAction, error)
}

type AlertReader interface {
	OnScreen() []notifications.Item
}

type SnapshotReader interface {
	Latest() (notifications.Snapshot, bool)
}

// Deps are the components the routes read from. Nil readers answer 503.
type Deps struct {
	Attachments AttachmentReader
	Queue       QueueReader
	Alerts      AlertReader
	Feed        SnapshotReader
	// Online reports the connectivity state for /healthz.
	Online   func() bool
	Registry *prometheus.Registry
}

type Server struct {
	address string
	deps    Deps
	logger  logging.Logger
}

func NewServer(address string, deps Deps, logger logging.Logger) *Server {
	return &Server{address: address, deps: deps, logger: logger.With("module", "debughttp")}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func unavailable(w http.ResponseWriter) {
	writeError(w, http.StatusServiceUnavailable, "component not running")
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RequestID)

	r.Get("/healthz", s.health)
	if s.deps.Registry != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.deps.Registry, promhttp.HandlerOpts{}))
	}
	r.Get("/attachments", s.listAttachments)
	r.Get("/attachments/{incidentID}", s.getAttachments)
	r.Get("/queue", s.listQueue)
	r.Get("/failed", s.listFailed)
	r.Get("/alerts", s.listAlerts)
	return r
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	state := "unknown"
	if s.deps.Online != nil {
		state = "offline"
		if s.deps.Online() {
			state = "online"
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "connectivity": state})
}

func (s *Server) listAttachments(w http.ResponseWriter, r *http.Request) {
	if s.deps.Attachments == nil {
		unavailable(w)
		return
	}
	all, err := s.deps.Attachments.GetAll(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, all)
}

func (s *Server) getAttachments(w http.ResponseWriter, r *http.Request) {
	if s.deps.Attachments == nil {
		unavailable(w)
		return
	}
	rec, err := s.deps.Attachments.Get(r.Context(), chi.URLParam(r, "incidentID"))
	if errors.Is(err, common.ErrNotFound) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) listQueue(w http.ResponseWriter, r *http.Request) {
	if s.deps.Queue == nil {
		unavailable(w)
		return
	}
	list, err := s.deps.Queue.PeekAll(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) listFailed(w http.ResponseWriter, r *http.Request) {
	if s.deps.Queue == nil {
		unavailable(w)
		return
	}
	list, err := s.deps.Queue.ListFailed(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, list)
}

type alertsResponse struct {
	OnScreen    []notifications.Item  `json:"on_screen"`
	UnreadCount int                   `json:"unread_count"`
	History     []models.Notification `json:"history"`
	FetchedAt   *time.Time            `json:"fetched_at,omitempty"`
}

func (s *Server) listAlerts(w http.ResponseWriter, _ *http.Request) {
	if s.deps.Alerts == nil {
		unavailable(w)
		return
	}
	resp := alertsResponse{OnScreen: s.deps.Alerts.OnScreen()}
	if s.deps.Feed != nil {
		if snap, ok := s.deps.Feed.Latest(); ok {
			resp.UnreadCount = snap.UnreadCount
			resp.History = snap.All
			resp.FetchedAt = &snap.FetchedAt
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}

	srv := &http.Server{Handler: s.Handler(), ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping debug HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	s.logger.Info(ctx, "Starting debug HTTP server", "address", listen.Addr().String())

	if err := srv.Serve(listen); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
