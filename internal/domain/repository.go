package domain

import (
	"context"
	"time"
)

// EventRepository defines operations for storing/retrieving journal events
// This is a PORT - adapters (SQLite, Memory) will implement it
type EventRepository interface {
	// SaveEvent persists an event and assigns its ID
	SaveEvent(ctx context.Context, event *Event) error

	// GetEvent retrieves a specific event by ID
	GetEvent(ctx context.Context, id int64) (*Event, error)

	// GetEventsInRange retrieves all events within time range.
	// Uses a half-open interval: inclusive start, exclusive end [start, end).
	GetEventsInRange(ctx context.Context, start, end time.Time) ([]*Event, error)

	// GetRecentEvents retrieves up to limit newest events, newest first
	GetRecentEvents(ctx context.Context, limit int) ([]*Event, error)

	// DeleteOldEvents removes events older than specified duration
	DeleteOldEvents(ctx context.Context, olderThan time.Duration) error
}
