package interlock

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/chootka/sLLM/internal/adapters/mock"
	"github.com/chootka/sLLM/internal/domain"
	"github.com/chootka/sLLM/internal/ports"
)

type fakeTimer struct {
	d       time.Duration
	f       func()
	stopped bool
}

func (t *fakeTimer) Stop() bool {
	was := !t.stopped
	t.stopped = true
	return was
}

type published struct {
	event   string
	payload any
}

type fakeBroadcaster struct {
	mu     sync.Mutex
	events []published
}

func (b *fakeBroadcaster) Publish(event string, payload any) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, published{event, payload})
	return nil
}

func (b *fakeBroadcaster) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.events)
}

type fakeRecorder struct {
	mu     sync.Mutex
	events []*domain.Event
}

func (r *fakeRecorder) Record(e *domain.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

type fixture struct {
	il       *Interlock
	state    *domain.SharedState
	exposure *mock.Output
	ring     *mock.Output
	bc       *fakeBroadcaster
	rec      *fakeRecorder
	timers   []*fakeTimer
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	state, err := domain.NewSharedState(10, map[domain.LightName]domain.LightState{
		domain.RingLight:     {Pin: "GPIO17"},
		domain.ExposureLight: {Pin: "GPIO27"},
	})
	if err != nil {
		t.Fatal(err)
	}

	f := &fixture{
		state:    state,
		exposure: mock.NewOutput(),
		ring:     mock.NewOutput(),
		bc:       &fakeBroadcaster{},
		rec:      &fakeRecorder{},
	}
	outputs := map[domain.LightName]ports.DigitalOutput{
		domain.ExposureLight: f.exposure,
		domain.RingLight:     f.ring,
	}
	f.il = New(cfg, state, outputs, f.bc, f.rec)
	f.il.afterFunc = func(d time.Duration, fn func()) stopper {
		tm := &fakeTimer{d: d, f: fn}
		f.timers = append(f.timers, tm)
		return tm
	}
	return f
}

func (f *fixture) isOn(t *testing.T, name domain.LightName) bool {
	t.Helper()
	st, err := f.state.Light(name)
	if err != nil {
		t.Fatal(err)
	}
	return st.IsOn
}

func TestApply_ClampsDuration(t *testing.T) {
	tests := []struct {
		name     string
		cfg      Config
		duration float64
		want     time.Duration
	}{
		{"over max", DefaultConfig(), 10000, 30 * time.Second},
		{"within bounds", DefaultConfig(), 5, 5 * time.Second},
		{"fractional", DefaultConfig(), 1.5, 1500 * time.Millisecond},
		{"zero with auto-off", DefaultConfig(), 0, 30 * time.Second},
		{"zero without auto-off", Config{MaxDuration: 30 * time.Second}, 0, 0},
		{"infinite", DefaultConfig(), math.Inf(1), 30 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, tt.cfg)

			res, err := f.il.Apply(context.Background(), domain.ExposureLight, LightRequest{State: StateOn, Duration: tt.duration})
			if err != nil {
				t.Fatalf("Apply: %v", err)
			}
			if !res.IsOn || !f.exposure.IsOn() || !f.isOn(t, domain.ExposureLight) {
				t.Fatal("expected exposure light on")
			}
			if res.AutoOff != tt.want {
				t.Errorf("expected auto-off %v, got %v", tt.want, res.AutoOff)
			}

			if tt.want == 0 {
				if len(f.timers) != 0 {
					t.Errorf("expected no deferred off, got %d", len(f.timers))
				}
				return
			}
			if len(f.timers) != 1 || f.timers[0].d != tt.want {
				t.Fatalf("expected one deferred off at %v, got %+v", tt.want, f.timers)
			}
		})
	}
}

func TestApply_DeferredOffFires(t *testing.T) {
	f := newFixture(t, DefaultConfig())

	if _, err := f.il.Apply(context.Background(), domain.ExposureLight, LightRequest{State: StateOn, Duration: 10000}); err != nil {
		t.Fatal(err)
	}
	if _, ok := f.il.PendingOff(domain.ExposureLight); !ok {
		t.Fatal("expected a pending off")
	}

	f.timers[0].f()

	if f.exposure.IsOn() || f.isOn(t, domain.ExposureLight) {
		t.Error("expected exposure light off after the deferred off")
	}
	if _, ok := f.il.PendingOff(domain.ExposureLight); ok {
		t.Error("expected no pending off after it fired")
	}

	last := f.bc.events[len(f.bc.events)-1]
	lc, ok := last.payload.(LightChanged)
	if last.event != EventLightChanged || !ok || lc.IsOn || lc.Source != "auto-off" {
		t.Errorf("expected auto-off light_changed, got %+v", last)
	}
}

func TestApply_OffIsIdempotent(t *testing.T) {
	f := newFixture(t, DefaultConfig())

	for n := 1; n <= 2; n++ {
		res, err := f.il.Apply(context.Background(), domain.ExposureLight, LightRequest{State: StateOff})
		if err != nil {
			t.Fatalf("off #%d: %v", n, err)
		}
		if res.IsOn || f.exposure.IsOn() || f.isOn(t, domain.ExposureLight) {
			t.Errorf("off #%d: expected light off", n)
		}
		if got := f.bc.count(); got != n {
			t.Errorf("off #%d: expected %d broadcasts, got %d", n, n, got)
		}
	}
	if len(f.timers) != 0 {
		t.Error("off must not schedule anything")
	}
}

func TestApply_NewRequestCancelsPendingOff(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	ctx := context.Background()

	f.il.Apply(ctx, domain.ExposureLight, LightRequest{State: StateOn, Duration: 10})
	f.il.Apply(ctx, domain.ExposureLight, LightRequest{State: StateOn, Duration: 20})

	if len(f.timers) != 2 {
		t.Fatalf("expected 2 timers, got %d", len(f.timers))
	}
	if !f.timers[0].stopped {
		t.Error("expected the first deferred off to be cancelled")
	}

	// A cancelled timer that fired anyway must not turn the light off early
	f.timers[0].f()
	if !f.isOn(t, domain.ExposureLight) {
		t.Fatal("stale deferred off turned the light off")
	}

	f.timers[1].f()
	if f.isOn(t, domain.ExposureLight) {
		t.Error("expected the second deferred off to turn the light off")
	}
}

func TestApply_OffCancelsPendingOff(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	ctx := context.Background()

	f.il.Apply(ctx, domain.ExposureLight, LightRequest{State: StateOn, Duration: 5})
	f.il.Apply(ctx, domain.ExposureLight, LightRequest{State: StateOff})
	before := f.bc.count()

	f.timers[0].f()

	if f.bc.count() != before {
		t.Error("cancelled deferred off must not broadcast")
	}
	if !f.timers[0].stopped {
		t.Error("expected timer stopped")
	}
}

func TestApply_Toggle(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	ctx := context.Background()

	res, err := f.il.Apply(ctx, domain.ExposureLight, LightRequest{State: StateToggle, Duration: 3})
	if err != nil {
		t.Fatal(err)
	}
	if !res.IsOn || res.AutoOff != 3*time.Second || len(f.timers) != 1 {
		t.Fatalf("expected toggle to on with a 3s deferred off, got %+v, %d timers", res, len(f.timers))
	}

	res, err = f.il.Apply(ctx, domain.ExposureLight, LightRequest{State: StateToggle})
	if err != nil {
		t.Fatal(err)
	}
	if res.IsOn || f.exposure.IsOn() {
		t.Error("expected toggle back to off")
	}
	if !f.timers[0].stopped {
		t.Error("expected toggle off to cancel the deferred off")
	}
}

func TestApply_RejectsInvalidRequests(t *testing.T) {
	tests := []struct {
		name string
		req  LightRequest
	}{
		{"unknown state", LightRequest{State: "blink"}},
		{"empty state", LightRequest{}},
		{"negative duration", LightRequest{State: StateOn, Duration: -1}},
		{"nan duration", LightRequest{State: StateOn, Duration: math.NaN()}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, DefaultConfig())

			_, err := f.il.Apply(context.Background(), domain.ExposureLight, tt.req)
			if !errors.Is(err, domain.ErrInvalidLightRequest) {
				t.Fatalf("expected ErrInvalidLightRequest, got %v", err)
			}
			if f.exposure.Sets() != 0 || f.bc.count() != 0 || len(f.rec.events) != 0 {
				t.Error("invalid request must not touch the light")
			}
		})
	}
}

func TestApply_RingLightIsCaptureOnly(t *testing.T) {
	f := newFixture(t, DefaultConfig())

	for _, state := range []string{StateOn, StateOff, StateToggle} {
		_, err := f.il.Apply(context.Background(), domain.RingLight, LightRequest{State: state})
		if !errors.Is(err, domain.ErrInvalidLightRequest) {
			t.Errorf("%s: expected ErrInvalidLightRequest, got %v", state, err)
		}
	}
	if f.ring.Sets() != 0 || len(f.timers) != 0 || f.isOn(t, domain.RingLight) {
		t.Error("a rejected ring request must not touch the light or arm a timer")
	}

	if err := f.il.Switch(context.Background(), domain.RingLight, true, "capture"); err != nil {
		t.Fatalf("Switch: %v", err)
	}
	if !f.ring.IsOn() {
		t.Error("capture must still drive the ring light")
	}
}

func TestApply_UnknownLight(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	_, err := f.il.Apply(context.Background(), "uv", LightRequest{State: StateOn})
	if !errors.Is(err, domain.ErrUnknownLight) {
		t.Errorf("expected ErrUnknownLight, got %v", err)
	}
}

func TestApply_OutputFailureKeepsState(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	ctx := context.Background()

	f.il.Apply(ctx, domain.ExposureLight, LightRequest{State: StateOn, Duration: 5})
	f.exposure.FailWith(errors.New("gpio: write failed"))

	_, err := f.il.Apply(ctx, domain.ExposureLight, LightRequest{State: StateOff})
	if !errors.Is(err, domain.ErrDeviceUnavailable) {
		t.Fatalf("expected ErrDeviceUnavailable, got %v", err)
	}
	if !f.isOn(t, domain.ExposureLight) {
		t.Error("failed actuation must not change recorded state")
	}
	if f.timers[0].stopped {
		t.Error("failed actuation must keep the pending deferred off")
	}
}

func TestSwitch_DoesNotSchedule(t *testing.T) {
	f := newFixture(t, DefaultConfig())

	if err := f.il.Switch(context.Background(), domain.RingLight, true, "capture"); err != nil {
		t.Fatal(err)
	}
	if !f.ring.IsOn() || len(f.timers) != 0 {
		t.Errorf("expected ring on with no deferred off, on=%v timers=%d", f.ring.IsOn(), len(f.timers))
	}
	if len(f.rec.events) != 1 || f.rec.events[0].Kind != domain.EventLightOn {
		t.Errorf("expected one light_on journal event, got %+v", f.rec.events)
	}
}

func TestClose_TurnsEverythingOff(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	ctx := context.Background()

	f.il.Apply(ctx, domain.ExposureLight, LightRequest{State: StateOn, Duration: 5})
	f.il.Switch(ctx, domain.RingLight, true, "capture")

	if err := f.il.Close(); err != nil {
		t.Fatal(err)
	}
	if f.exposure.IsOn() || f.ring.IsOn() {
		t.Error("expected every light off after Close")
	}
	if !f.timers[0].stopped {
		t.Error("expected pending off cancelled")
	}
}

func TestApply_RealTimerTurnsLightOff(t *testing.T) {
	state, _ := domain.NewSharedState(10, map[domain.LightName]domain.LightState{
		domain.ExposureLight: {Pin: "GPIO27"},
	})
	out := mock.NewOutput()
	il := New(Config{MaxDuration: 20 * time.Millisecond, AutoOff: true}, state,
		map[domain.LightName]ports.DigitalOutput{domain.ExposureLight: out}, nil, nil)

	if _, err := il.Apply(context.Background(), domain.ExposureLight, LightRequest{State: StateOn}); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for out.IsOn() {
		if time.Now().After(deadline) {
			t.Fatal("light still on after the deferred off")
		}
		time.Sleep(5 * time.Millisecond)
	}
}
