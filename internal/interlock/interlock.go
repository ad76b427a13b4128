package interlock

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/chootka/sLLM/internal/domain"
	"github.com/chootka/sLLM/internal/ports"
)

// Light request states
const (
	StateOn     = "on"
	StateOff    = "off"
	StateToggle = "toggle"
)

// EventLightChanged is broadcast after every successful actuation
const EventLightChanged = "light_changed"

// DefaultMaxDuration bounds how long a light may stay on from one request
const DefaultMaxDuration = 30 * time.Second

// Config is the safety policy
type Config struct {
	MaxDuration time.Duration
	AutoOff     bool // an "on" without a duration still turns off after MaxDuration
}

// DefaultConfig returns 30 s with auto-off enabled
func DefaultConfig() Config {
	return Config{MaxDuration: DefaultMaxDuration, AutoOff: true}
}

// LightRequest asks for a light change. Duration is in seconds; zero means
// "until told otherwise" unless auto-off is enabled.
type LightRequest struct {
	State    string
	Duration float64
}

// Result describes the state after a successful request
type Result struct {
	Light   domain.LightName
	IsOn    bool
	AutoOff time.Duration // zero when no deferred off is pending
}

// LightChanged is the light_changed payload
type LightChanged struct {
	Light         domain.LightName `json:"light"`
	IsOn          bool             `json:"is_on"`
	ExposureLight *bool            `json:"exposure_light,omitempty"`
	AutoOff       float64          `json:"auto_off_seconds,omitempty"`
	Source        string           `json:"source"`
	Timestamp     float64          `json:"timestamp"`
}

type stopper interface {
	Stop() bool
}

// pendingOff is a scheduled deferred off. gen guards against a timer that
// fired after it was superseded.
type pendingOff struct {
	timer stopper
	gen   uint64
	at    time.Time
}

// Interlock is the only path that drives the lights. Actuations are
// serialized by its own mutex; SharedState is only told the outcome.
type Interlock struct {
	mu      sync.Mutex
	cfg     Config
	state   *domain.SharedState
	outputs map[domain.LightName]ports.DigitalOutput

	broadcaster ports.Broadcaster
	recorder    ports.EventRecorder

	gen     uint64
	pending map[domain.LightName]*pendingOff

	now       func() time.Time
	afterFunc func(d time.Duration, f func()) stopper
}

// New creates an interlock over outputs. broadcaster and recorder may be nil.
func New(cfg Config, state *domain.SharedState, outputs map[domain.LightName]ports.DigitalOutput, broadcaster ports.Broadcaster, recorder ports.EventRecorder) *Interlock {
	if cfg.MaxDuration <= 0 {
		cfg.MaxDuration = DefaultMaxDuration
	}
	return &Interlock{
		cfg:         cfg,
		state:       state,
		outputs:     outputs,
		broadcaster: broadcaster,
		recorder:    recorder,
		pending:     make(map[domain.LightName]*pendingOff),
		now:         time.Now,
		afterFunc: func(d time.Duration, f func()) stopper {
			return time.AfterFunc(d, f)
		},
	}
}

// Config returns the safety policy in effect
func (i *Interlock) Config() Config {
	return i.cfg
}

// EffectiveDuration clamps a requested duration to [0, MaxDuration] and
// applies auto-off to zero
func (i *Interlock) EffectiveDuration(seconds float64) time.Duration {
	d := time.Duration(math.Min(seconds, i.cfg.MaxDuration.Seconds()) * float64(time.Second))
	if d <= 0 {
		if i.cfg.AutoOff {
			return i.cfg.MaxDuration
		}
		return 0
	}
	return d
}

// Apply validates req and drives the light. Any pending deferred off for
// the light is cancelled once the output has been set. Only lights that are
// ClientControlled accept requests; Switch drives the others.
func (i *Interlock) Apply(ctx context.Context, name domain.LightName, req LightRequest) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	if math.IsNaN(req.Duration) || req.Duration < 0 {
		return Result{}, fmt.Errorf("%w: duration must be a non-negative number", domain.ErrInvalidLightRequest)
	}
	switch req.State {
	case StateOn, StateOff, StateToggle:
	default:
		return Result{}, fmt.Errorf("%w: state must be on, off or toggle, got %q", domain.ErrInvalidLightRequest, req.State)
	}

	i.mu.Lock()
	defer i.mu.Unlock()

	current, err := i.state.Light(name)
	if err != nil {
		return Result{}, err
	}
	if !name.ClientControlled() {
		return Result{}, fmt.Errorf("%w: %s light is switched by image capture only", domain.ErrInvalidLightRequest, name)
	}

	on := req.State == StateOn
	if req.State == StateToggle {
		on = !current.IsOn
	}

	var autoOff time.Duration
	if on {
		autoOff = i.EffectiveDuration(req.Duration)
	}

	if err := i.drive(name, on, "request", autoOff); err != nil {
		return Result{}, err
	}
	if autoOff > 0 {
		i.schedule(name, autoOff)
	}

	return Result{Light: name, IsOn: on, AutoOff: autoOff}, nil
}

// Switch drives a light without scheduling a deferred off; the capture
// workflow uses it for the ring light
func (i *Interlock) Switch(ctx context.Context, name domain.LightName, on bool, source string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	i.mu.Lock()
	defer i.mu.Unlock()

	if _, err := i.state.Light(name); err != nil {
		return err
	}
	return i.drive(name, on, source, 0)
}

// PendingOff reports when a scheduled deferred off will fire
func (i *Interlock) PendingOff(name domain.LightName) (time.Time, bool) {
	i.mu.Lock()
	defer i.mu.Unlock()

	p, ok := i.pending[name]
	if !ok {
		return time.Time{}, false
	}
	return p.at, true
}

// Close cancels deferred offs and turns every light off
func (i *Interlock) Close() error {
	i.mu.Lock()
	defer i.mu.Unlock()

	var firstErr error
	for name := range i.outputs {
		if err := i.drive(name, false, "shutdown", 0); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// drive must be called with mu held. Once the output has been set, any
// pending deferred off is cancelled and the outcome recorded; a failed set
// leaves the pending off in place.
func (i *Interlock) drive(name domain.LightName, on bool, source string, autoOff time.Duration) error {
	out, ok := i.outputs[name]
	if !ok {
		return fmt.Errorf("%w: %s light has no output", domain.ErrDeviceUnavailable, name)
	}
	if err := out.Set(on); err != nil {
		return fmt.Errorf("%w: %s light: %v", domain.ErrDeviceUnavailable, name, err)
	}
	i.cancel(name)

	st, err := i.state.Light(name)
	if err != nil {
		return err
	}
	st.IsOn = on
	if err := i.state.SetLight(name, st); err != nil {
		return err
	}

	log.Info().
		Str("light", string(name)).
		Bool("on", on).
		Dur("auto_off", autoOff).
		Str("source", source).
		Msg("light changed")

	i.announce(name, on, autoOff, source)
	return nil
}

func (i *Interlock) announce(name domain.LightName, on bool, autoOff time.Duration, source string) {
	if i.recorder != nil {
		i.recorder.Record(domain.NewLightEvent(name, on, autoOff, source))
	}
	if i.broadcaster == nil {
		return
	}

	payload := LightChanged{
		Light:     name,
		IsOn:      on,
		AutoOff:   autoOff.Seconds(),
		Source:    source,
		Timestamp: domain.UnixSeconds(i.now()),
	}
	if name == domain.ExposureLight {
		payload.ExposureLight = &on
	}
	if err := i.broadcaster.Publish(EventLightChanged, payload); err != nil {
		log.Warn().Err(err).Msg("failed to broadcast light change")
	}
}

// schedule must be called with mu held
func (i *Interlock) schedule(name domain.LightName, d time.Duration) {
	i.gen++
	gen := i.gen
	p := &pendingOff{gen: gen, at: i.now().Add(d)}
	p.timer = i.afterFunc(d, func() { i.expire(name, gen) })
	i.pending[name] = p
}

// cancel must be called with mu held
func (i *Interlock) cancel(name domain.LightName) {
	p, ok := i.pending[name]
	if !ok {
		return
	}
	p.timer.Stop()
	delete(i.pending, name)
}

// expire runs on the timer goroutine
func (i *Interlock) expire(name domain.LightName, gen uint64) {
	i.mu.Lock()
	defer i.mu.Unlock()

	p, ok := i.pending[name]
	if !ok || p.gen != gen {
		// superseded by a later request
		return
	}
	delete(i.pending, name)

	if err := i.drive(name, false, "auto-off", 0); err != nil {
		log.Error().Err(err).Str("light", string(name)).Msg("deferred off failed")
	}
}
