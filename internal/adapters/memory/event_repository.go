package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/chootka/sLLM/internal/domain"
)

// EventRepository implements domain.EventRepository with in-memory storage
// Used when no journal database is configured
type EventRepository struct {
	mu     sync.RWMutex
	events map[int64]*domain.Event
	nextID int64
}

// NewEventRepository creates an empty in-memory repository
func NewEventRepository() *EventRepository {
	return &EventRepository{
		events: make(map[int64]*domain.Event),
		nextID: 1,
	}
}

// SaveEvent stores an event in memory
func (r *EventRepository) SaveEvent(ctx context.Context, event *domain.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Assign ID if not set
	if event.ID == 0 {
		event.ID = r.nextID
		r.nextID++
	}

	stored := *event
	r.events[event.ID] = &stored
	return nil
}

// GetEvent retrieves an event by ID
func (r *EventRepository) GetEvent(ctx context.Context, id int64) (*domain.Event, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	event, exists := r.events[id]
	if !exists {
		return nil, domain.ErrEventNotFound
	}

	out := *event
	return &out, nil
}

// GetEventsInRange returns all events in [start, end), oldest first
func (r *EventRepository) GetEventsInRange(ctx context.Context, start, end time.Time) ([]*domain.Event, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var results []*domain.Event
	for _, event := range r.events {
		if !event.Timestamp.Before(start) && event.Timestamp.Before(end) {
			out := *event
			results = append(results, &out)
		}
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].Timestamp.Before(results[j].Timestamp)
	})

	return results, nil
}

// GetRecentEvents returns up to limit newest events, newest first
func (r *EventRepository) GetRecentEvents(ctx context.Context, limit int) ([]*domain.Event, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	results := make([]*domain.Event, 0, len(r.events))
	for _, event := range r.events {
		out := *event
		results = append(results, &out)
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Timestamp.Equal(results[j].Timestamp) {
			return results[i].ID > results[j].ID
		}
		return results[i].Timestamp.After(results[j].Timestamp)
	})

	if limit >= 0 && len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// DeleteOldEvents removes events older than specified duration
func (r *EventRepository) DeleteOldEvents(ctx context.Context, olderThan time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := time.Now().Add(-olderThan)

	for id, event := range r.events {
		if event.Timestamp.Before(cutoff) {
			delete(r.events, id)
		}
	}

	return nil
}
