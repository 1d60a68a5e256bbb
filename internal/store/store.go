package store

import (
	"context"

	"github.com/starford/ansuz/internal/models"
)

// RecordStore defines the persistence contract for audio records.
// Consumers should depend on this interface rather than the concrete *DB type
// to facilitate testing with fakes.
type RecordStore interface {
	// Upsert inserts rec when its ID is zero, otherwise replaces the stored
	// row (the creation timestamp is never rewritten). It returns the id.
	Upsert(ctx context.Context, rec models.AudioRecord) (int64, error)
	Delete(ctx context.Context, id int64) error
	Get(ctx context.Context, id int64) (models.AudioRecord, error)
	// List returns every record ordered newest first.
	List(ctx context.Context) ([]models.AudioRecord, error)
	FindByPath(ctx context.Context, filePath string) (models.AudioRecord, error)
	// AllRecords streams the full newest-first list, once on subscribe and
	// again after every committed write.
	AllRecords(ctx context.Context) <-chan []models.AudioRecord
	// ByID streams a single record whenever it changes.
	ByID(ctx context.Context, id int64) <-chan models.AudioRecord
	Close() error
}

// Verify *DB satisfies RecordStore at compile time.
var _ RecordStore = (*DB)(nil)
