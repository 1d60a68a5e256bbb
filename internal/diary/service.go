// Package diary coordinates the record store, app storage and metadata
// extraction behind the save, import, rename and delete flows.
package diary

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/starford/ansuz/internal/apperr"
	"github.com/starford/ansuz/internal/locator"
	"github.com/starford/ansuz/internal/media"
	"github.com/starford/ansuz/internal/models"
	"github.com/starford/ansuz/internal/recorder"
	"github.com/starford/ansuz/internal/storage"
	"github.com/starford/ansuz/internal/store"
	"github.com/starford/ansuz/internal/timeline"
)

// Events receives record change notifications.
type Events interface {
	PublishRecordEvent(kind string, rec models.AudioRecord)
}

// Pending is the finished recording awaiting a title. Claim hands the file
// over and returns the recorder to Idle; Restore gives it back after a
// failed save.
type Pending interface {
	Claim() (string, error)
	Restore(path string)
}

type noEvents struct{}

func (noEvents) PublishRecordEvent(string, models.AudioRecord) {}

// Service coordinates store, storage and metadata operations.
type Service struct {
	db     store.RecordStore
	files  storage.Provider
	locs   *locator.Resolver
	meta   media.MetadataExtractor
	events Events
	log    *slog.Logger
	now    func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithEvents sets the change notification sink.
func WithEvents(e Events) Option {
	return func(s *Service) { s.events = e }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.log = l }
}

// WithClock overrides the time source used for new records.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a new diary service.
func NewService(db store.RecordStore, files storage.Provider, locs *locator.Resolver, meta media.MetadataExtractor, opts ...Option) *Service {
	s := &Service{
		db:     db,
		files:  files,
		locs:   locs,
		meta:   meta,
		events: noEvents{},
		log:    slog.Default(),
		now:    time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Save persists a new record for loc. The duration is read once here; an
// unreadable clip is saved with duration 0. A zero timestamp means now.
func (s *Service) Save(ctx context.Context, title, loc string, timestamp int64) (models.AudioRecord, error) {
	title = models.NormalizeTitle(title)
	if title == "" {
		return models.AudioRecord{}, fmt.Errorf("%w: title should not be empty", apperr.ErrInvalidRecord)
	}
	if timestamp == 0 {
		timestamp = s.now().UnixMilli()
	}

	rec := models.AudioRecord{Title: title, FilePath: loc, Timestamp: timestamp}
	if err := rec.Validate(); err != nil {
		return models.AudioRecord{}, err
	}
	rec.Duration = recorder.Duration(ctx, s.meta, probeTarget(loc), s.log)

	id, err := s.db.Upsert(ctx, rec)
	if err != nil {
		return models.AudioRecord{}, err
	}
	rec.ID = id
	s.events.PublishRecordEvent("created", rec)
	s.log.Info("record saved", slog.Int64("id", id), slog.String("file_path", loc))
	return rec, nil
}

// SaveRecording saves the finished recording under title and hands its file
// over to the new record. The file is claimed before the slow duration probe
// so a concurrent Start, cleanup or second save cannot delete or reuse it.
// A rejected title leaves the recording pending.
func (s *Service) SaveRecording(ctx context.Context, pending Pending, title string) (models.AudioRecord, error) {
	if models.NormalizeTitle(title) == "" {
		return models.AudioRecord{}, fmt.Errorf("%w: title should not be empty", apperr.ErrInvalidRecord)
	}
	p, err := pending.Claim()
	if err != nil {
		return models.AudioRecord{}, err
	}
	rec, err := s.Save(ctx, title, locator.FromPath(p), 0)
	if err != nil {
		pending.Restore(p)
		return models.AudioRecord{}, err
	}
	return rec, nil
}

// Import adds a record referencing external audio at loc. The file stays
// where it is and is never deleted by the application. An empty title
// defaults to the file name without extension. Importing the same locator
// twice returns the existing record.
func (s *Service) Import(ctx context.Context, loc, title string) (models.AudioRecord, error) {
	if locator.Classify(loc) == locator.KindUnknown {
		return models.AudioRecord{}, fmt.Errorf("%w: %w: %s", apperr.ErrInvalidRecord, locator.ErrUnsupported, loc)
	}
	if p, ok := locator.LocalPath(loc); ok && locator.Classify(loc) == locator.KindPath {
		loc = p
	}

	existing, err := s.db.FindByPath(ctx, loc)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, apperr.ErrNotFound) {
		return models.AudioRecord{}, err
	}

	if p, ok := locator.LocalPath(loc); ok {
		if info, err := os.Stat(p); err == nil && info.IsDir() {
			return models.AudioRecord{}, fmt.Errorf("%w: %s is a directory", apperr.ErrInvalidRecord, p)
		}
	}
	rc, err := s.locs.Open(ctx, loc)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return models.AudioRecord{}, fmt.Errorf("%w: %s", apperr.ErrNotFound, loc)
		}
		return models.AudioRecord{}, fmt.Errorf("diary: open %s: %w", loc, err)
	}
	rc.Close()

	if strings.TrimSpace(title) == "" {
		title = stem(loc)
	}
	return s.Save(ctx, title, loc, 0)
}

// Rename changes a record's title. The timestamp is preserved.
func (s *Service) Rename(ctx context.Context, id int64, title string) (models.AudioRecord, error) {
	rec, err := s.db.Get(ctx, id)
	if err != nil {
		return models.AudioRecord{}, err
	}
	rec.Title = models.NormalizeTitle(title)
	if err := rec.Validate(); err != nil {
		return models.AudioRecord{}, err
	}
	if _, err := s.db.Upsert(ctx, rec); err != nil {
		return models.AudioRecord{}, err
	}
	s.events.PublishRecordEvent("updated", rec)
	return rec, nil
}

// Delete removes the record and then, best effort, its file when the
// application owns it. External content is never touched.
func (s *Service) Delete(ctx context.Context, id int64) error {
	rec, err := s.db.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.db.Delete(ctx, id); err != nil {
		return err
	}
	s.events.PublishRecordEvent("deleted", rec)

	if !s.locs.IsAppOwned(rec.FilePath) {
		return nil
	}
	p, _ := locator.LocalPath(rec.FilePath)
	if err := s.files.Delete(p); err != nil && !errors.Is(err, os.ErrNotExist) {
		s.log.Warn("delete audio file",
			slog.Int64("id", id),
			slog.String("path", p),
			slog.String("error", err.Error()),
		)
	}
	return nil
}

func (s *Service) Get(ctx context.Context, id int64) (models.AudioRecord, error) {
	return s.db.Get(ctx, id)
}

func (s *Service) List(ctx context.Context) ([]models.AudioRecord, error) {
	return s.db.List(ctx)
}

// Timeline returns the current records grouped by date in loc.
func (s *Service) Timeline(ctx context.Context, loc *time.Location) ([]timeline.Item, error) {
	records, err := s.db.List(ctx)
	if err != nil {
		return nil, err
	}
	return timeline.Project(records, loc), nil
}

// probeTarget returns what the metadata extractor should open for loc.
func probeTarget(loc string) string {
	if p, ok := locator.LocalPath(loc); ok {
		return p
	}
	return loc
}

func stem(loc string) string {
	base := filepath.Base(loc)
	if locator.Classify(loc) == locator.KindRemote {
		if u, err := url.Parse(loc); err == nil {
			base = path.Base(u.Path)
		}
	}
	if s := strings.TrimSuffix(base, path.Ext(base)); s != "" && s != "." && s != "/" {
		return s
	}
	return base
}
