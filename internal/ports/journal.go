package ports

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/chootka/sLLM/internal/domain"
)

// EventRecorder accepts journal events without blocking the caller
type EventRecorder interface {
	Record(event *domain.Event)
}

// Journal writes light and capture events to the repository in the
// background so request handlers never wait on disk
type Journal struct {
	repo      domain.EventRepository
	events    chan *domain.Event
	retention time.Duration
	cleanup   time.Duration
}

// NewJournal creates a journal with room for buffer pending events
func NewJournal(repo domain.EventRepository, buffer int, retention time.Duration) *Journal {
	if buffer < 1 {
		buffer = 1
	}
	return &Journal{
		repo:      repo,
		events:    make(chan *domain.Event, buffer),
		retention: retention,
		cleanup:   24 * time.Hour,
	}
}

// Record queues event; it is dropped when the queue is full
func (j *Journal) Record(event *domain.Event) {
	select {
	case j.events <- event:
	default:
		log.Warn().
			Str("kind", string(event.Kind)).
			Msg("journal queue full, dropping event")
	}
}

// Start drains queued events until ctx is cancelled
// This runs in a goroutine until context is cancelled
func (j *Journal) Start(ctx context.Context) {
	log.Info().
		Dur("retention", j.retention).
		Msg("starting event journal")

	cleanupTicker := time.NewTicker(j.cleanup)
	defer cleanupTicker.Stop()

	for {
		select {
		case event := <-j.events:
			j.save(ctx, event)

		case <-cleanupTicker.C:
			j.prune(ctx)

		case <-ctx.Done():
			j.drain()
			log.Info().Msg("stopping event journal")
			return
		}
	}
}

// drain flushes whatever is still queued at shutdown
func (j *Journal) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	for {
		select {
		case event := <-j.events:
			j.save(ctx, event)
		default:
			return
		}
	}
}

func (j *Journal) save(ctx context.Context, event *domain.Event) {
	if err := j.repo.SaveEvent(ctx, event); err != nil {
		log.Error().Err(err).Str("kind", string(event.Kind)).Msg("failed to save event")
		return
	}

	log.Debug().
		Int64("id", event.ID).
		Str("kind", string(event.Kind)).
		Str("light", string(event.Light)).
		Msg("journaled event")
}

func (j *Journal) prune(ctx context.Context) {
	if j.retention <= 0 {
		return
	}
	if err := j.repo.DeleteOldEvents(ctx, j.retention); err != nil {
		log.Error().Err(err).Msg("failed to delete old events")
		return
	}
	log.Info().Dur("retention", j.retention).Msg("deleted expired journal events")
}
