package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/chootka/sLLM/internal/domain"
)

// EventRepository implements domain.EventRepository with SQLite
type EventRepository struct {
	db *sql.DB
}

// NewEventRepository creates a SQLite-backed journal
func NewEventRepository(dbPath string) (*EventRepository, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	// Timestamps are unix nanoseconds so ordering and range queries stay exact
	schema := `
	CREATE TABLE IF NOT EXISTS events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		kind TEXT NOT NULL,
		light TEXT NOT NULL DEFAULT '',
		detail TEXT NOT NULL DEFAULT '',
		ts INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_events_ts ON events(ts);
	`

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &EventRepository{db: db}, nil
}

// SaveEvent stores an event in SQLite
func (r *EventRepository) SaveEvent(ctx context.Context, event *domain.Event) error {
	query := `INSERT INTO events (kind, light, detail, ts) VALUES (?, ?, ?, ?)`

	result, err := r.db.ExecContext(ctx, query,
		string(event.Kind), string(event.Light), event.Detail, event.Timestamp.UnixNano())
	if err != nil {
		return fmt.Errorf("failed to insert event: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get insert id: %w", err)
	}

	event.ID = id
	return nil
}

// GetEvent retrieves an event by ID
func (r *EventRepository) GetEvent(ctx context.Context, id int64) (*domain.Event, error) {
	query := `SELECT id, kind, light, detail, ts FROM events WHERE id = ?`

	event, err := scanEvent(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrEventNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query event: %w", err)
	}
	return event, nil
}

// GetEventsInRange returns events in [start, end), oldest first
func (r *EventRepository) GetEventsInRange(ctx context.Context, start, end time.Time) ([]*domain.Event, error) {
	query := `
		SELECT id, kind, light, detail, ts
		FROM events
		WHERE ts >= ? AND ts < ?
		ORDER BY ts ASC, id ASC
	`
	return r.queryEvents(ctx, query, start.UnixNano(), end.UnixNano())
}

// GetRecentEvents returns up to limit newest events, newest first
func (r *EventRepository) GetRecentEvents(ctx context.Context, limit int) ([]*domain.Event, error) {
	query := `
		SELECT id, kind, light, detail, ts
		FROM events
		ORDER BY ts DESC, id DESC
		LIMIT ?
	`
	return r.queryEvents(ctx, query, limit)
}

// DeleteOldEvents removes events older than specified duration
func (r *EventRepository) DeleteOldEvents(ctx context.Context, olderThan time.Duration) error {
	cutoff := time.Now().Add(-olderThan)
	query := `DELETE FROM events WHERE ts < ?`

	if _, err := r.db.ExecContext(ctx, query, cutoff.UnixNano()); err != nil {
		return fmt.Errorf("failed to delete old events: %w", err)
	}
	return nil
}

// Close closes the database connection
func (r *EventRepository) Close() error {
	return r.db.Close()
}

func (r *EventRepository) queryEvents(ctx context.Context, query string, args ...any) ([]*domain.Event, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var events []*domain.Event
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate events: %w", err)
	}

	return events, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEvent(row scanner) (*domain.Event, error) {
	var (
		event       domain.Event
		kind, light string
		ts          int64
	)
	if err := row.Scan(&event.ID, &kind, &light, &event.Detail, &ts); err != nil {
		return nil, err
	}
	event.Kind = domain.EventKind(kind)
	event.Light = domain.LightName(light)
	event.Timestamp = time.Unix(0, ts)
	return &event, nil
}
