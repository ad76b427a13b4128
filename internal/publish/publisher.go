package publish

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/chootka/sLLM/internal/domain"
	"github.com/chootka/sLLM/internal/ports"
)

// Push event names
const (
	EventReading     = "reading_update"
	EventEnvironment = "environment_update"
	EventStatus      = "status_update"
)

// DefaultInterval is how often current values are pushed
const DefaultInterval = 500 * time.Millisecond

// Reading is the reading_update payload
type Reading struct {
	Timestamp float64 `json:"timestamp"`
	Value     float64 `json:"value"`
	Datetime  string  `json:"datetime"`
}

// Environment is the environment_update payload
type Environment struct {
	Temperature *float64 `json:"temperature"`
	Humidity    *float64 `json:"humidity"`
	Timestamp   float64  `json:"timestamp"`
	Datetime    string   `json:"datetime,omitempty"`
}

// Status is the status_update payload
type Status struct {
	ExposureLight bool            `json:"exposure_light"`
	RingLight     bool            `json:"ring_light"`
	Lights        map[string]bool `json:"lights"`
	Timestamp     float64         `json:"timestamp"`
}

// NewReading converts a sample to its wire form
func NewReading(s domain.Sample) Reading {
	return Reading{
		Timestamp: s.Timestamp,
		Value:     s.Value,
		Datetime:  s.Time().Format("2006-01-02T15:04:05.000000"),
	}
}

// NewEnvironment converts a reading to its wire form
func NewEnvironment(e domain.EnvironmentReading) Environment {
	out := Environment{
		Temperature: e.Temperature,
		Humidity:    e.Humidity,
		Timestamp:   e.Timestamp,
	}
	if e.Timestamp > 0 {
		out.Datetime = domain.FromUnixSeconds(e.Timestamp).Format("2006-01-02T15:04:05.000000")
	}
	return out
}

// NewStatus converts light states to the status payload
func NewStatus(lights map[domain.LightName]domain.LightState, at time.Time) Status {
	out := Status{
		ExposureLight: lights[domain.ExposureLight].IsOn,
		RingLight:     lights[domain.RingLight].IsOn,
		Lights:        make(map[string]bool, len(lights)),
		Timestamp:     domain.UnixSeconds(at),
	}
	for name, st := range lights {
		out.Lights[string(name)] = st.IsOn
	}
	return out
}

// Messages builds the push messages for one snapshot in send order
func Messages(snap domain.Snapshot, at time.Time) []Message {
	msgs := make([]Message, 0, 3)
	if snap.HasSample {
		msgs = append(msgs, Message{EventReading, NewReading(snap.Sample)})
	}
	if snap.HasEnvironment {
		msgs = append(msgs, Message{EventEnvironment, NewEnvironment(snap.Environment)})
	}
	return append(msgs, Message{EventStatus, NewStatus(snap.Lights, at)})
}

// Message is one event and its payload
type Message struct {
	Event   string
	Payload any
}

// Publisher periodically pushes the current values to subscribers
type Publisher struct {
	state       *domain.SharedState
	broadcaster ports.Broadcaster
	interval    time.Duration
	now         func() time.Time
}

// NewPublisher creates a publisher; interval <= 0 uses DefaultInterval
func NewPublisher(state *domain.SharedState, broadcaster ports.Broadcaster, interval time.Duration) *Publisher {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Publisher{
		state:       state,
		broadcaster: broadcaster,
		interval:    interval,
		now:         time.Now,
	}
}

// Start pushes every interval until ctx is cancelled
// This runs in a goroutine until context is cancelled
func (p *Publisher) Start(ctx context.Context) {
	log.Info().Dur("interval", p.interval).Msg("starting publisher")

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			p.publishOnce()
		case <-ctx.Done():
			log.Info().Msg("stopping publisher")
			return
		}
	}
}

// publishOnce snapshots under the lock, then broadcasts outside it
func (p *Publisher) publishOnce() {
	for _, m := range Messages(p.state.Snapshot(), p.now()) {
		if err := p.broadcaster.Publish(m.Event, m.Payload); err != nil {
			log.Warn().Err(err).Str("event", m.Event).Msg("failed to publish")
		}
	}
}
