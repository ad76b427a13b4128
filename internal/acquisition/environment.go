package acquisition

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/chootka/sLLM/internal/domain"
	"github.com/chootka/sLLM/internal/ports"
)

// EnvironmentLoop polls the temperature/humidity sensor and overwrites the
// current environment reading. There is no history for these values.
type EnvironmentLoop struct {
	state    *domain.SharedState
	sensor   ports.EnvironmentSensor
	interval time.Duration
	now      func() time.Time
}

// NewEnvironmentLoop reads sensor every interval
func NewEnvironmentLoop(state *domain.SharedState, sensor ports.EnvironmentSensor, interval time.Duration) *EnvironmentLoop {
	if interval <= 0 {
		interval = time.Second
	}
	return &EnvironmentLoop{
		state:    state,
		sensor:   sensor,
		interval: interval,
		now:      time.Now,
	}
}

// Run reads the sensor until ctx is cancelled
func (l *EnvironmentLoop) Run(ctx context.Context) {
	log.Info().Dur("interval", l.interval).Msg("starting environment acquisition")

	defer func() {
		if err := l.sensor.Close(); err != nil {
			log.Warn().Err(err).Msg("failed to release environment sensor")
		}
	}()

	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	// Read immediately on start
	l.step(ctx)

	for {
		select {
		case <-ticker.C:
			l.step(ctx)
		case <-ctx.Done():
			log.Info().Msg("stopping environment acquisition")
			return
		}
	}
}

// step reads once; it reports whether a reading was published
func (l *EnvironmentLoop) step(ctx context.Context) bool {
	temperature, humidity, err := l.sensor.Read(ctx)
	if errors.Is(err, domain.ErrTransientRead) {
		// single-wire sensors miss reads routinely
		return false
	}
	if err != nil {
		log.Warn().Err(err).Msg("failed to read environment sensor")
		return false
	}
	if math.IsNaN(temperature) || math.IsNaN(humidity) {
		return false
	}

	l.state.PublishEnvironment(domain.NewEnvironmentReading(l.now(), temperature, humidity))
	return true
}
