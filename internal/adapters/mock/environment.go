package mock

import (
	"context"
	"math/rand"
	"sync"
)

// Realistic habitat bounds for the simulated environment
const (
	MinTemperature = 18.0
	MaxTemperature = 26.0
	MinHumidity    = 40.0
	MaxHumidity    = 70.0
)

// EnvironmentSimulator produces plausible temperature and humidity when no
// physical sensor is configured. It implements ports.EnvironmentSensor.
type EnvironmentSimulator struct {
	mu          sync.Mutex
	rng         *rand.Rand
	temperature walk
	humidity    walk
}

// NewEnvironmentSimulator creates a simulator around 22 °C / 55 %RH
func NewEnvironmentSimulator(seed int64) *EnvironmentSimulator {
	return &EnvironmentSimulator{
		rng: newRand(seed),
		temperature: walk{
			base:     22.0,
			step:     0.05,
			envelope: 2.0,
			noise:    0.05,
			min:      MinTemperature,
			max:      MaxTemperature,
		},
		humidity: walk{
			base:     55.0,
			step:     0.2,
			envelope: 8.0,
			noise:    0.2,
			min:      MinHumidity,
			max:      MaxHumidity,
		},
	}
}

// Read returns the next simulated temperature (°C) and humidity (%RH)
func (s *EnvironmentSimulator) Read(ctx context.Context) (float64, float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.temperature.next(s.rng), s.humidity.next(s.rng), nil
}

// Close is a no-op for the simulator
func (s *EnvironmentSimulator) Close() error {
	return nil
}
