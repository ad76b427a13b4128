package domain

import (
	"math"
	"time"
)

// Sample represents a single electrical measurement taken from the habitat
// electrodes. Samples are values: once built they are never mutated.
type Sample struct {
	Timestamp float64 // unix seconds
	Value     float64 // volts, or raw units from the serial microcontroller
}

// NewSample creates a sample stamped with the given time
func NewSample(at time.Time, value float64) (Sample, error) {
	// Business rule: NaN and Inf are never published
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return Sample{}, ErrInvalidSample
	}

	return Sample{
		Timestamp: UnixSeconds(at),
		Value:     value,
	}, nil
}

// IsZero reports whether the sample was never set
func (s Sample) IsZero() bool {
	return s.Timestamp == 0
}

// Time converts the sample timestamp back to a time.Time
func (s Sample) Time() time.Time {
	return FromUnixSeconds(s.Timestamp)
}

// EnvironmentReading holds the latest temperature and humidity. Only the
// latest reading is kept; there is no environment history.
type EnvironmentReading struct {
	Temperature *float64 // °C, nil when the sensor did not report it
	Humidity    *float64 // %RH, nil when the sensor did not report it
	Timestamp   float64
}

// NewEnvironmentReading builds a reading with both quantities present
func NewEnvironmentReading(at time.Time, temperature, humidity float64) EnvironmentReading {
	return EnvironmentReading{
		Temperature: &temperature,
		Humidity:    &humidity,
		Timestamp:   UnixSeconds(at),
	}
}

// UnixSeconds converts t to fractional unix seconds
func UnixSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}

// FromUnixSeconds is the inverse of UnixSeconds
func FromUnixSeconds(ts float64) time.Time {
	sec, frac := math.Modf(ts)
	return time.Unix(int64(sec), int64(frac*float64(time.Second)))
}
