package store

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/starford/ansuz/internal/apperr"
	"github.com/starford/ansuz/internal/models"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	f, err := os.CreateTemp("", "ansuz-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	f.Close()
	t.Cleanup(func() { os.Remove(f.Name()) })

	db, err := Open(f.Name())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func record(title string, ts int64) models.AudioRecord {
	return models.AudioRecord{
		Title:     title,
		FilePath:  "file:///audio/" + title + ".m4a",
		Timestamp: ts,
		Duration:  1500,
	}
}

func TestSchemaCreation(t *testing.T) {
	db := testDB(t)
	var count int
	if err := db.conn.QueryRow(`SELECT count(*) FROM records`).Scan(&count); err != nil {
		t.Fatalf("records table missing: %v", err)
	}
	var version int
	if err := db.conn.QueryRow(`PRAGMA user_version`).Scan(&version); err != nil {
		t.Fatal(err)
	}
	if version != SchemaVersion {
		t.Errorf("user_version = %d, want %d", version, SchemaVersion)
	}
}

func TestUpsertAssignsID(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	id, err := db.Upsert(ctx, record("first", 1000))
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if id == 0 {
		t.Fatal("expected non-zero id")
	}
	id2, _ := db.Upsert(ctx, record("second", 2000))
	if id2 == id {
		t.Fatalf("ids must be unique, got %d twice", id)
	}

	got, err := db.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Title != "first" || got.Timestamp != 1000 || got.Duration != 1500 {
		t.Errorf("unexpected record %+v", got)
	}
}

func TestUpsertReplacesButKeepsTimestamp(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	id, _ := db.Upsert(ctx, record("old", 1000))
	updated := record("new", 9999)
	updated.ID = id
	if _, err := db.Upsert(ctx, updated); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	got, _ := db.Get(ctx, id)
	if got.Title != "new" {
		t.Errorf("title = %q, want new", got.Title)
	}
	if got.Timestamp != 1000 {
		t.Errorf("timestamp = %d, must stay 1000", got.Timestamp)
	}
}

func TestUpsertRejectsInvalid(t *testing.T) {
	db := testDB(t)
	_, err := db.Upsert(context.Background(), models.AudioRecord{FilePath: "x", Timestamp: 1})
	if !errors.Is(err, apperr.ErrInvalidRecord) {
		t.Fatalf("err = %v, want ErrInvalidRecord", err)
	}
}

func TestListNewestFirst(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	_, _ = db.Upsert(ctx, record("middle", 2000))
	_, _ = db.Upsert(ctx, record("oldest", 1000))
	_, _ = db.Upsert(ctx, record("newest", 3000))

	list, err := db.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	want := []string{"newest", "middle", "oldest"}
	if len(list) != len(want) {
		t.Fatalf("got %d records, want %d", len(list), len(want))
	}
	for i, w := range want {
		if list[i].Title != w {
			t.Errorf("list[%d] = %q, want %q", i, list[i].Title, w)
		}
	}
}

func TestDelete(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	id, _ := db.Upsert(ctx, record("gone", 1000))

	if err := db.Delete(ctx, id); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := db.Get(ctx, id); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("Get after delete err = %v, want ErrNotFound", err)
	}
	if err := db.Delete(ctx, id); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("second Delete err = %v, want ErrNotFound", err)
	}
}

func TestFindByPath(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	rec := record("clip", 1000)
	id, _ := db.Upsert(ctx, rec)

	got, err := db.FindByPath(ctx, rec.FilePath)
	if err != nil || got.ID != id {
		t.Fatalf("FindByPath = %+v, %v", got, err)
	}
	if _, err := db.FindByPath(ctx, "/nope"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestDestructiveMigration(t *testing.T) {
	f, err := os.CreateTemp("", "ansuz-migrate-*.db")
	if err != nil {
		t.Fatal(err)
	}
	f.Close()
	t.Cleanup(func() { os.Remove(f.Name()) })

	db, err := Open(f.Name())
	if err != nil {
		t.Fatal(err)
	}
	_, _ = db.Upsert(context.Background(), record("doomed", 1000))
	db.Close()

	raw, err := sql.Open("sqlite3", f.Name())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := raw.Exec(`PRAGMA user_version = 99`); err != nil {
		t.Fatal(err)
	}
	raw.Close()

	db, err = Open(f.Name())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer db.Close()
	list, _ := db.List(context.Background())
	if len(list) != 0 {
		t.Errorf("expected wiped table after version mismatch, got %d rows", len(list))
	}
}

func TestAllRecordsFeed(t *testing.T) {
	db := testDB(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	feed := db.AllRecords(ctx)
	first := <-feed
	if len(first) != 0 {
		t.Fatalf("initial list = %d records, want 0", len(first))
	}

	_, _ = db.Upsert(ctx, record("a", 1000))
	select {
	case list := <-feed:
		if len(list) != 1 || list[0].Title != "a" {
			t.Fatalf("feed list = %+v", list)
		}
	case <-time.After(time.Second):
		t.Fatal("feed did not update after upsert")
	}
}

func TestByID(t *testing.T) {
	db := testDB(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	id, _ := db.Upsert(ctx, record("watched", 1000))
	ch := db.ByID(ctx, id)

	select {
	case r := <-ch:
		if r.Title != "watched" {
			t.Fatalf("title = %q", r.Title)
		}
	case <-time.After(time.Second):
		t.Fatal("no initial value")
	}

	// Unrelated writes do not re-emit.
	_, _ = db.Upsert(ctx, record("other", 2000))

	renamed := record("renamed", 1000)
	renamed.ID = id
	_, _ = db.Upsert(ctx, renamed)

	select {
	case r := <-ch:
		if r.Title != "renamed" {
			t.Fatalf("title = %q, want renamed", r.Title)
		}
	case <-time.After(time.Second):
		t.Fatal("no value after rename")
	}
}
