package acquisition

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/chootka/sLLM/internal/domain"
	"github.com/chootka/sLLM/internal/ports"
)

// DefaultSampleRate is the direct-analog polling rate in Hz
const DefaultSampleRate = 10.0

type sourceKind int

const (
	analogSource sourceKind = iota
	serialSource
)

// ElectricalLoop continuously acquires electrode samples and publishes them
// into the shared state. The source variant is fixed at construction.
type ElectricalLoop struct {
	kind  sourceKind
	state *domain.SharedState

	// analog
	source       ports.VoltageSource
	period       time.Duration
	errorBackoff time.Duration

	// serial
	link     *Reconnector
	idle     time.Duration // sleep while disconnected
	pollWait time.Duration // sleep when no bytes are waiting

	now func() time.Time
}

// NewAnalogLoop polls source at sampleRate Hz
func NewAnalogLoop(state *domain.SharedState, source ports.VoltageSource, sampleRate float64) *ElectricalLoop {
	if sampleRate <= 0 {
		sampleRate = DefaultSampleRate
	}
	return &ElectricalLoop{
		kind:         analogSource,
		state:        state,
		source:       source,
		period:       time.Duration(float64(time.Second) / sampleRate),
		errorBackoff: time.Second,
		now:          time.Now,
	}
}

// NewSerialLoop publishes every numeric line arriving on the link
func NewSerialLoop(state *domain.SharedState, link *Reconnector) *ElectricalLoop {
	return &ElectricalLoop{
		kind:     serialSource,
		state:    state,
		link:     link,
		idle:     100 * time.Millisecond,
		pollWait: 10 * time.Millisecond,
		now:      time.Now,
	}
}

// Run acquires samples until ctx is cancelled
// This runs in a goroutine for the life of the process
func (l *ElectricalLoop) Run(ctx context.Context) {
	defer l.close()

	if l.kind == serialSource {
		log.Info().Msg("starting serial electrical acquisition")
	} else {
		log.Info().Dur("period", l.period).Msg("starting analog electrical acquisition")
	}

	for {
		var wait time.Duration
		if l.kind == serialSource {
			wait = l.stepSerial()
		} else {
			wait = l.stepAnalog(ctx)
		}
		if !sleep(ctx, wait) {
			log.Info().Msg("stopping electrical acquisition")
			return
		}
	}
}

// stepAnalog takes one reading and returns how long to wait before the next
func (l *ElectricalLoop) stepAnalog(ctx context.Context) time.Duration {
	volts, err := l.source.ReadVoltage(ctx)
	if err != nil {
		log.Error().Err(err).Msg("failed to read ADC")
		return l.errorBackoff
	}

	sample, err := domain.NewSample(l.now(), volts)
	if err != nil {
		log.Debug().Err(err).Float64("value", volts).Msg("discarding sample")
		return l.period
	}

	l.state.PublishSample(sample)
	return l.period
}

// stepSerial consumes at most one line. A zero wait means more data may be
// waiting and the loop should come straight back.
func (l *ElectricalLoop) stepSerial() time.Duration {
	if !l.link.Ensure() {
		return l.idle
	}
	t := l.link.Transport()

	n, err := t.BytesAvailable()
	if err != nil {
		l.link.Invalidate(err)
		return l.idle
	}
	if n == 0 {
		return l.pollWait
	}

	line, err := t.ReadLine()
	if err != nil {
		l.link.Invalidate(err)
		return l.idle
	}

	value, err := strconv.ParseFloat(strings.TrimSpace(line), 64)
	if err != nil {
		// malformed or partial lines are expected on a noisy link
		return 0
	}

	sample, err := domain.NewSample(l.now(), value)
	if err != nil {
		return 0
	}

	l.state.PublishSample(sample)
	return 0
}

func (l *ElectricalLoop) close() {
	var err error
	if l.kind == serialSource {
		err = l.link.Close()
	} else {
		err = l.source.Close()
	}
	if err != nil {
		log.Warn().Err(err).Msg("failed to release electrical source")
	}
}
