package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // pure go sqlite driver
)

// Index is a sqlite catalogue of run metadata.
type Index struct {
	db *sql.DB
}

// OpenIndex opens or creates the catalogue at path.
func OpenIndex(path string) (*Index, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("create dirs: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		kind TEXT NOT NULL,
		model TEXT NOT NULL,
		circulation TEXT NOT NULL,
		created TEXT NOT NULL,
		metadata BLOB NOT NULL
	)`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create runs table: %w", err)
	}
	return &Index{db: db}, nil
}

func (ix *Index) Close() error { return ix.db.Close() }

// Record inserts or replaces meta.
func (ix *Index) Record(ctx context.Context, meta RunMetadata) error {
	payload, err := json.Marshal(meta)
	if err != nil {
		return err
	}
	_, err = ix.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO runs (id, kind, model, circulation, created, metadata) VALUES (?, ?, ?, ?, ?, ?)`,
		meta.ID, meta.Kind, meta.Model, meta.Circulation, meta.Timestamp.UTC().Format(time.RFC3339Nano), payload)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// Query returns runs of model, newest first. An empty model matches all.
func (ix *Index) Query(ctx context.Context, model string) ([]RunMetadata, error) {
	q := `SELECT metadata FROM runs`
	var args []any
	if model != "" {
		q += ` WHERE model = ?`
		args = append(args, model)
	}
	q += ` ORDER BY created DESC, id`

	rows, err := ix.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("select runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []RunMetadata
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		var meta RunMetadata
		if err := json.Unmarshal(payload, &meta); err != nil {
			return nil, fmt.Errorf("decode run: %w", err)
		}
		out = append(out, meta)
	}
	return out, rows.Err()
}

// Rebuild replaces the catalogue with the runs found in s.
func (ix *Index) Rebuild(ctx context.Context, s *Store) (retErr error) {
	runs, err := s.List()
	if err != nil {
		return err
	}
	tx, err := ix.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()
	if _, err := tx.ExecContext(ctx, `DELETE FROM runs`); err != nil {
		return err
	}
	for _, meta := range runs {
		payload, err := json.Marshal(meta)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO runs (id, kind, model, circulation, created, metadata) VALUES (?, ?, ?, ?, ?, ?)`,
			meta.ID, meta.Kind, meta.Model, meta.Circulation, meta.Timestamp.UTC().Format(time.RFC3339Nano), payload); err != nil {
			return fmt.Errorf("insert run: %w", err)
		}
	}
	return tx.Commit()
}
