package mock

import (
	"context"
	"math/rand"
	"sync"
)

// VoltageSimulator stands in for the electrode ADC when no hardware is
// attached. It implements ports.VoltageSource.
type VoltageSimulator struct {
	mu      sync.Mutex
	rng     *rand.Rand
	walk    walk
	lightOn func() bool
}

// NewVoltageSimulator creates a simulator drifting around baseVolts.
// lightOn, when non-nil, raises the signal while the exposure light is on
// so stimulus experiments can be rehearsed without a habitat.
func NewVoltageSimulator(baseVolts float64, lightOn func() bool, seed int64) *VoltageSimulator {
	return &VoltageSimulator{
		rng: newRand(seed),
		walk: walk{
			base:     baseVolts,
			step:     0.02,
			envelope: 0.5,
			noise:    0.05,
			min:      0,
			max:      5,
		},
		lightOn: lightOn,
	}
}

// ReadVoltage returns a simulated differential voltage in [0, 5] V
func (s *VoltageSimulator) ReadVoltage(ctx context.Context) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v := s.walk.next(s.rng)
	if s.lightOn != nil && s.lightOn() {
		v += 0.3 + uniform(s.rng, 0.1)
	}
	return clamp(v, s.walk.min, s.walk.max), nil
}

// Close is a no-op for the simulator
func (s *VoltageSimulator) Close() error {
	return nil
}
