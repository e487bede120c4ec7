// Package sqlite provides a SQLite-backed cache for task seed documents so
// repeated sessions of the same task skip refetching them.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/plaiground/agentkit/internal/platform/storage/sqlitemigrate"
	"github.com/plaiground/agentkit/internal/task"
	_ "modernc.org/sqlite"
)

// ErrNotFound indicates no cached seed exists for a task id.
var ErrNotFound = errors.New("task seed not found")

// Store provides SQLite-backed persistence for task seeds.
type Store struct {
	sqlDB *sql.DB
}

// Open opens a SQLite store at the provided path and applies migrations.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000&_synchronous=NORMAL"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}

	if err := sqlitemigrate.ApplyMigrations(sqlDB, migrationsFS()); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Store{sqlDB: sqlDB}, nil
}

// Close closes the underlying SQLite database.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// PutSeed stores or replaces the cached seed for its task id.
func (s *Store) PutSeed(ctx context.Context, seed task.Seed) error {
	if strings.TrimSpace(seed.TaskID) == "" {
		return fmt.Errorf("task id is required")
	}
	encoded, err := json.Marshal(seed)
	if err != nil {
		return fmt.Errorf("marshal task seed: %w", err)
	}

	_, err = s.sqlDB.ExecContext(ctx, `
INSERT INTO task_seeds (task_id, document, cached_at)
VALUES (?, ?, ?)
ON CONFLICT(task_id) DO UPDATE SET document = excluded.document, cached_at = excluded.cached_at
`, seed.TaskID, string(encoded), time.Now().UTC().UnixMilli())
	if err != nil {
		return fmt.Errorf("store task seed %s: %w", seed.TaskID, err)
	}
	return nil
}

// GetSeed returns the cached seed for taskID, or ErrNotFound.
func (s *Store) GetSeed(ctx context.Context, taskID string) (task.Seed, error) {
	var document string
	row := s.sqlDB.QueryRowContext(ctx, "SELECT document FROM task_seeds WHERE task_id = ?", taskID)
	if err := row.Scan(&document); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return task.Seed{}, ErrNotFound
		}
		return task.Seed{}, fmt.Errorf("load task seed %s: %w", taskID, err)
	}

	var seed task.Seed
	if err := json.Unmarshal([]byte(document), &seed); err != nil {
		return task.Seed{}, fmt.Errorf("unmarshal task seed %s: %w", taskID, err)
	}
	return seed, nil
}
