package metricstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"lucius-ai/internal/domain"
)

// SQLiteStore persists the snapshot as a single row in a SQLite
// database. A history of writes is not kept; the row is upserted on
// every save to match the file store's semantics.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the database at dbPath and runs the
// schema migration.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open metrics db: %w", err)
	}
	// WAL mode for better concurrent reads.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate metrics db: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func migrate(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS metrics_snapshot (
			id         INTEGER PRIMARY KEY CHECK (id = 1),
			data       TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)
	`)
	return err
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Load reads the snapshot row. Returns (nil, nil) when none exists.
func (s *SQLiteStore) Load(ctx context.Context) (*domain.MetricsSnapshot, error) {
	row := s.db.QueryRowContext(ctx, "SELECT data FROM metrics_snapshot WHERE id = 1")

	var data string
	if err := row.Scan(&data); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, domain.WrapOp("scan", err)
	}

	var snap domain.MetricsSnapshot
	if err := json.Unmarshal([]byte(data), &snap); err != nil {
		return nil, fmt.Errorf("metricstore: parse snapshot row: %w", err)
	}
	return &snap, nil
}

// Save upserts the snapshot row.
func (s *SQLiteStore) Save(ctx context.Context, snap domain.MetricsSnapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return domain.WrapOp("marshal", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO metrics_snapshot (id, data, updated_at) VALUES (1, ?, ?)
		ON CONFLICT (id) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`,
		string(data), time.Now().UTC().Format(time.RFC3339Nano),
	)
	return domain.WrapOp("upsert", err)
}
