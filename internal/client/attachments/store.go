// Package attachments is the local evidence store. It keeps one record per
// incident, uploads files to the remote store when possible and embeds them
// as data URIs otherwise, so evidence is never lost while offline.
package attachments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gabriel-vasile/mimetype"

	"github.com/dmitrijs2005/fieldline/internal/client/blobstore"
	"github.com/dmitrijs2005/fieldline/internal/client/metrics"
	"github.com/dmitrijs2005/fieldline/internal/client/models"
	attrepo "github.com/dmitrijs2005/fieldline/internal/client/repositories/attachments"
	"github.com/dmitrijs2005/fieldline/internal/common"
	"github.com/dmitrijs2005/fieldline/internal/logging"
)

type Store struct {
	repo     attrepo.Repository
	uploader blobstore.Uploader
	logger   logging.Logger
	metrics  *metrics.Metrics
	now      func() time.Time

	// clearMu lets Clear exclude every keyed operation.
	clearMu sync.RWMutex
	keys    *keyedMutex
}

type Option func(*Store)

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Store) { s.metrics = m }
}

func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func NewStore(repo attrepo.Repository, uploader blobstore.Uploader, logger logging.Logger, opts ...Option) *Store {
	if uploader == nil {
		uploader = blobstore.Disabled{}
	}
	s := &Store{
		repo:     repo,
		uploader: uploader,
		logger:   logger.With("module", "attachments"),
		now:      time.Now,
		keys:     newKeyedMutex(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Store) lock(keys ...string) func() {
	s.clearMu.RLock()
	unlock := s.keys.Lock(keys...)
	return func() {
		unlock()
		s.clearMu.RUnlock()
	}
}

func (s *Store) storageErr(op string, err error) error {
	s.metrics.StorageError("attachments")
	return fmt.Errorf("%s: %w: %w", op, common.ErrStorageUnavailable, err)
}

// Put replaces the record for incidentID. Readers see either the old set or
// the new one.
func (s *Store) Put(ctx context.Context, incidentID string, atts []models.StoredAttachment) error {
	defer s.lock(incidentID)()
	return s.put(ctx, incidentID, atts)
}

func (s *Store) put(ctx context.Context, incidentID string, atts []models.StoredAttachment) error {
	if atts == nil {
		atts = []models.StoredAttachment{}
	}
	rec := models.AttachmentRecord{
		IncidentID:  incidentID,
		Attachments: atts,
		SavedAt:     s.now().UTC().Truncate(time.Millisecond),
	}
	if err := s.repo.Put(ctx, rec); err != nil {
		return s.storageErr("put", err)
	}
	return nil
}

// Get returns common.ErrNotFound when nothing is stored for incidentID.
func (s *Store) Get(ctx context.Context, incidentID string) (models.AttachmentRecord, error) {
	defer s.lock(incidentID)()

	rec, err := s.repo.Get(ctx, incidentID)
	if err != nil {
		return models.AttachmentRecord{}, s.storageErr("get", err)
	}
	if rec == nil {
		return models.AttachmentRecord{}, fmt.Errorf("attachments[%s]: %w", incidentID, common.ErrNotFound)
	}
	return *rec, nil
}

func (s *Store) GetAll(ctx context.Context) (map[string][]models.StoredAttachment, error) {
	s.clearMu.RLock()
	defer s.clearMu.RUnlock()

	all, err := s.repo.GetAll(ctx)
	if err != nil {
		return nil, s.storageErr("get all", err)
	}
	return all, nil
}

func (s *Store) Delete(ctx context.Context, incidentID string) error {
	defer s.lock(incidentID)()

	if err := s.repo.Delete(ctx, incidentID); err != nil {
		return s.storageErr("delete", err)
	}
	return nil
}

func (s *Store) Clear(ctx context.Context) error {
	s.clearMu.Lock()
	defer s.clearMu.Unlock()

	if err := s.repo.Clear(ctx); err != nil {
		return s.storageErr("clear", err)
	}
	return nil
}

// Rekey moves attachments captured under a local id to the id the backend
// assigned after submission.
func (s *Store) Rekey(ctx context.Context, from, to string) error {
	defer s.lock(from, to)()

	if err := s.repo.Rekey(ctx, from, to); err != nil {
		return s.storageErr("rekey", err)
	}
	return nil
}

// Save stores files for incidentID. It tries the remote store first and
// embeds every file as a data URI if any upload fails; both paths yield the
// same attachment shape.
//
// The built attachments are returned even when persisting fails, so the
// caller can keep them in memory and surface the error.
func (s *Store) Save(ctx context.Context, incidentID string, files []models.RawFile) ([]models.StoredAttachment, error) {
	defer s.lock(incidentID)()

	files = normalize(files)

	atts, err := s.upload(ctx, files)
	if err != nil {
		s.logger.Warn(ctx, "remote upload failed, embedding files locally",
			"incident_id", incidentID, "files", len(files), "error", err)
		atts = embed(files)
	}
	for _, a := range atts {
		s.metrics.AttachmentStored(a.IsEmbedded())
	}

	if err := s.put(ctx, incidentID, atts); err != nil {
		s.logger.Error(ctx, "failed to persist attachments", "incident_id", incidentID, "error", err)
		return atts, err
	}

	s.logger.Info(ctx, "attachments saved", "incident_id", incidentID, "files", len(atts))
	return atts, nil
}

func (s *Store) upload(ctx context.Context, files []models.RawFile) ([]models.StoredAttachment, error) {
	atts := make([]models.StoredAttachment, 0, len(files))
	for _, f := range files {
		loc, err := s.uploader.Upload(ctx, f)
		if err != nil {
			if !errors.Is(err, common.ErrRemoteUpload) {
				err = fmt.Errorf("%w: %w", common.ErrRemoteUpload, err)
			}
			return nil, err
		}
		atts = append(atts, attachment(f, loc))
	}
	return atts, nil
}

func embed(files []models.RawFile) []models.StoredAttachment {
	atts := make([]models.StoredAttachment, 0, len(files))
	for _, f := range files {
		atts = append(atts, attachment(f, models.EncodeDataURI(f.MimeType, f.Data)))
	}
	return atts
}

func attachment(f models.RawFile, locator string) models.StoredAttachment {
	return models.StoredAttachment{
		Name:      f.Name,
		MimeType:  f.MimeType,
		SizeBytes: int64(len(f.Data)),
		Locator:   locator,
		IsVideo:   strings.HasPrefix(f.MimeType, "video/"),
	}
}

// normalize fills in missing MIME types by sniffing the content.
func normalize(files []models.RawFile) []models.RawFile {
	out := make([]models.RawFile, len(files))
	for i, f := range files {
		if f.MimeType == "" {
			f.MimeType = mimetype.Detect(f.Data).String()
		}
		out[i] = f
	}
	return out
}
