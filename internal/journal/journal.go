// Package journal keeps a SQLite-backed append-only record of the events a
// toolkit exchanged with the bus, for post-session inspection and replay
// debugging.
package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/plaiground/agentkit/internal/event"
	"github.com/plaiground/agentkit/internal/platform/storage/sqlitemigrate"
	_ "modernc.org/sqlite"
)

// Direction marks which way an event crossed the bus boundary.
type Direction string

const (
	// Inbound events arrived from the platform.
	Inbound Direction = "inbound"
	// Outbound events were sent by this agent.
	Outbound Direction = "outbound"
)

// Entry is one journaled event.
type Entry struct {
	Seq        int64
	SessionID  string
	Direction  Direction
	Event      event.Event
	RecordedAt time.Time
}

// Journal provides SQLite-backed persistence for exchanged events.
type Journal struct {
	sqlDB *sql.DB
}

// Open opens a journal at the provided path and applies migrations.
func Open(path string) (*Journal, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("journal path is required")
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

	return &Journal{sqlDB: sqlDB}, nil
}

// Close closes the underlying SQLite database.
func (j *Journal) Close() error {
	if j == nil || j.sqlDB == nil {
		return nil
	}
	return j.sqlDB.Close()
}

// Record appends one event to the journal.
func (j *Journal) Record(ctx context.Context, direction Direction, evt event.Event) error {
	encoded, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal event %s: %w", evt.ID, err)
	}

	_, err = j.sqlDB.ExecContext(ctx, `
INSERT INTO journal_events (session_id, direction, event_id, event_type, payload, recorded_at)
VALUES (?, ?, ?, ?, ?, ?)
`, evt.SessionID, string(direction), evt.ID, string(evt.Type), string(encoded), time.Now().UTC().UnixMilli())
	if err != nil {
		return fmt.Errorf("journal event %s: %w", evt.ID, err)
	}
	return nil
}

// Events returns a session's journaled events in record order.
func (j *Journal) Events(ctx context.Context, sessionID string) ([]Entry, error) {
	rows, err := j.sqlDB.QueryContext(ctx, `
SELECT seq, session_id, direction, payload, recorded_at
FROM journal_events
WHERE session_id = ?
ORDER BY seq ASC
`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load journal for session %s: %w", sessionID, err)
	}
	defer func() { _ = rows.Close() }()

	var entries []Entry
	for rows.Next() {
		var entry Entry
		var direction, payload string
		var recordedAt int64
		if err := rows.Scan(&entry.Seq, &entry.SessionID, &direction, &payload, &recordedAt); err != nil {
			return nil, fmt.Errorf("scan journal row: %w", err)
		}
		if err := json.Unmarshal([]byte(payload), &entry.Event); err != nil {
			return nil, fmt.Errorf("unmarshal journaled event at seq %d: %w", entry.Seq, err)
		}
		entry.Direction = Direction(direction)
		entry.RecordedAt = time.UnixMilli(recordedAt).UTC()
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate journal rows: %w", err)
	}
	return entries, nil
}
