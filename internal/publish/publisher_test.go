package publish

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/chootka/sLLM/internal/domain"
)

type fakeBroadcaster struct {
	mu     sync.Mutex
	events []string
	fail   map[string]bool
}

func (b *fakeBroadcaster) Publish(event string, payload any) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, event)
	if b.fail[event] {
		return errors.New("subscriber gone")
	}
	return nil
}

func (b *fakeBroadcaster) snapshot() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.events...)
}

func newTestState(t *testing.T) *domain.SharedState {
	t.Helper()
	st, err := domain.NewSharedState(10, map[domain.LightName]domain.LightState{
		domain.RingLight:     {Pin: "GPIO17"},
		domain.ExposureLight: {Pin: "GPIO27"},
	})
	if err != nil {
		t.Fatal(err)
	}
	return st
}

func TestPublisher_OnlyStatusBeforeFirstSample(t *testing.T) {
	st := newTestState(t)
	bc := &fakeBroadcaster{}
	p := NewPublisher(st, bc, 0)

	p.publishOnce()

	got := bc.snapshot()
	if len(got) != 1 || got[0] != EventStatus {
		t.Errorf("expected only status_update, got %v", got)
	}
}

func TestPublisher_AllEventsOnceDataExists(t *testing.T) {
	st := newTestState(t)
	s, _ := domain.NewSample(time.Unix(1700000000, 0), 2.5)
	st.PublishSample(s)
	st.PublishEnvironment(domain.NewEnvironmentReading(time.Unix(1700000000, 0), 22, 55))
	bc := &fakeBroadcaster{}

	NewPublisher(st, bc, 0).publishOnce()

	want := []string{EventReading, EventEnvironment, EventStatus}
	got := bc.snapshot()
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("event %d: got %s, want %s", i, got[i], want[i])
		}
	}
}

func TestPublisher_ContinuesAfterBroadcastError(t *testing.T) {
	st := newTestState(t)
	s, _ := domain.NewSample(time.Now(), 1)
	st.PublishSample(s)
	bc := &fakeBroadcaster{fail: map[string]bool{EventReading: true}}

	NewPublisher(st, bc, 0).publishOnce()

	got := bc.snapshot()
	if len(got) != 2 || got[1] != EventStatus {
		t.Errorf("expected status_update after a failed reading_update, got %v", got)
	}
}

func TestPublisher_StartStopsOnCancel(t *testing.T) {
	st := newTestState(t)
	bc := &fakeBroadcaster{}
	p := NewPublisher(st, bc, 5*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Start(ctx)
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for len(bc.snapshot()) < 3 {
		if time.Now().After(deadline) {
			t.Fatal("publisher did not tick")
		}
		time.Sleep(time.Millisecond)
	}
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publisher did not stop")
	}
}

func TestNewStatus(t *testing.T) {
	lights := map[domain.LightName]domain.LightState{
		domain.ExposureLight: {IsOn: true, Pin: "GPIO27"},
		domain.RingLight:     {Pin: "GPIO17"},
	}
	s := NewStatus(lights, time.Unix(10, 0))

	if !s.ExposureLight || s.RingLight {
		t.Errorf("unexpected flags %+v", s)
	}
	if !s.Lights["exposure"] || s.Lights["ring"] {
		t.Errorf("unexpected light map %v", s.Lights)
	}
	if s.Timestamp != 10 {
		t.Errorf("expected timestamp 10, got %v", s.Timestamp)
	}
}
