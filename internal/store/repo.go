package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/starford/ansuz/internal/apperr"
	"github.com/starford/ansuz/internal/models"
)

const recordColumns = `id, title, file_path, timestamp, duration`

// Upsert inserts a new record or replaces an existing one.
func (db *DB) Upsert(ctx context.Context, rec models.AudioRecord) (int64, error) {
	if err := rec.Validate(); err != nil {
		return 0, err
	}

	db.writeMu.Lock()
	defer db.writeMu.Unlock()

	id := rec.ID
	if rec.IsNew() {
		res, err := db.conn.ExecContext(ctx, `
			INSERT INTO records (title, file_path, timestamp, duration)
			VALUES (?, ?, ?, ?)
		`, rec.Title, rec.FilePath, rec.Timestamp, rec.Duration)
		if err != nil {
			return 0, fmt.Errorf("store: insert record: %w", err)
		}
		id, err = res.LastInsertId()
		if err != nil {
			return 0, fmt.Errorf("store: last insert id: %w", err)
		}
	} else {
		// timestamp is deliberately absent from the update set.
		_, err := db.conn.ExecContext(ctx, `
			INSERT INTO records (id, title, file_path, timestamp, duration)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				title     = excluded.title,
				file_path = excluded.file_path,
				duration  = excluded.duration
		`, rec.ID, rec.Title, rec.FilePath, rec.Timestamp, rec.Duration)
		if err != nil {
			return 0, fmt.Errorf("store: upsert record %d: %w", rec.ID, err)
		}
	}

	if err := db.refresh(ctx); err != nil {
		return id, err
	}
	return id, nil
}

// Delete removes a record by id.
func (db *DB) Delete(ctx context.Context, id int64) error {
	db.writeMu.Lock()
	defer db.writeMu.Unlock()

	res, err := db.conn.ExecContext(ctx, `DELETE FROM records WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("store: delete record %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("store: rows affected: %w", err)
	}
	if n == 0 {
		return apperr.ErrNotFound
	}
	return db.refresh(ctx)
}

// Get returns a record by id.
func (db *DB) Get(ctx context.Context, id int64) (models.AudioRecord, error) {
	row := db.conn.QueryRowContext(ctx, `SELECT `+recordColumns+` FROM records WHERE id = ?`, id)
	return scanOne(row)
}

// FindByPath returns the record that references filePath.
func (db *DB) FindByPath(ctx context.Context, filePath string) (models.AudioRecord, error) {
	row := db.conn.QueryRowContext(ctx, `
		SELECT `+recordColumns+` FROM records
		WHERE file_path = ?
		ORDER BY id
		LIMIT 1
	`, filePath)
	return scanOne(row)
}

// List returns all records ordered by timestamp, newest first.
func (db *DB) List(ctx context.Context) ([]models.AudioRecord, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT `+recordColumns+` FROM records
		ORDER BY timestamp DESC, id DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("store: list records: %w", err)
	}
	defer rows.Close()

	var out []models.AudioRecord
	for rows.Next() {
		var r models.AudioRecord
		if err := rows.Scan(&r.ID, &r.Title, &r.FilePath, &r.Timestamp, &r.Duration); err != nil {
			return nil, fmt.Errorf("store: scan record: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func scanOne(row *sql.Row) (models.AudioRecord, error) {
	var r models.AudioRecord
	if err := row.Scan(&r.ID, &r.Title, &r.FilePath, &r.Timestamp, &r.Duration); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.AudioRecord{}, apperr.ErrNotFound
		}
		return models.AudioRecord{}, fmt.Errorf("store: scan record: %w", err)
	}
	return r, nil
}
