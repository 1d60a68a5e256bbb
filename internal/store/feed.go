package store

import (
	"context"
	"fmt"

	"github.com/starford/ansuz/internal/models"
)

// refresh reloads the full list into the live feed. Callers hold writeMu
// (or are Open) so feed updates follow commit order.
func (db *DB) refresh(ctx context.Context) error {
	records, err := db.List(ctx)
	if err != nil {
		return fmt.Errorf("store: refresh feed: %w", err)
	}
	db.feed.Set(records)
	return nil
}

// AllRecords streams the newest-first record list.
func (db *DB) AllRecords(ctx context.Context) <-chan []models.AudioRecord {
	return db.feed.Subscribe(ctx)
}

// ByID streams the record with the given id each time its stored value
// changes. Nothing is sent while the record does not exist. The channel
// closes with ctx or when the store closes.
func (db *DB) ByID(ctx context.Context, id int64) <-chan models.AudioRecord {
	out := make(chan models.AudioRecord)
	src := db.feed.Subscribe(ctx)

	go func() {
		defer close(out)
		var last *models.AudioRecord
		for records := range src {
			rec, ok := findRecord(records, id)
			if !ok {
				last = nil
				continue
			}
			if last != nil && *last == rec {
				continue
			}
			select {
			case out <- rec:
				last = &rec
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

func findRecord(records []models.AudioRecord, id int64) (models.AudioRecord, bool) {
	for _, r := range records {
		if r.ID == id {
			return r, true
		}
	}
	return models.AudioRecord{}, false
}
