package ports

import (
	"context"
)

// VoltageSource reads an instantaneous electrode voltage.
// This is a PORT - adapters (ADS1115, simulator) will implement it
type VoltageSource interface {
	// ReadVoltage returns the current differential voltage
	ReadVoltage(ctx context.Context) (float64, error)

	// Close releases any resources
	Close() error
}

// SerialTransport is a line-oriented link to the microcontroller. It is
// owned by exactly one goroutine, so implementations need no locking.
type SerialTransport interface {
	// BytesAvailable reports how many bytes can be read without blocking
	BytesAvailable() (int, error)

	// ReadLine returns one line without its terminator. An empty line with
	// a nil error means no complete line arrived in time.
	ReadLine() (string, error)

	// IsOpen reports whether the link is still usable
	IsOpen() bool

	// Close releases the port
	Close() error
}

// SerialOpener opens the transport at path
type SerialOpener func(path string) (SerialTransport, error)

// PortFinder lists serial ports that look like the microcontroller
type PortFinder interface {
	FindPorts() ([]string, error)
}

// EnvironmentSensor reads temperature (°C) and relative humidity (%).
// A hiccup is reported as domain.ErrTransientRead.
type EnvironmentSensor interface {
	Read(ctx context.Context) (temperature, humidity float64, err error)
	Close() error
}

// DigitalOutput drives one GPIO light
type DigitalOutput interface {
	Set(on bool) error
	Close() error
}

// Camera captures a still image to path
type Camera interface {
	Capture(ctx context.Context, path string) error
	Close() error
}

// Broadcaster fans an event out to every push subscriber
type Broadcaster interface {
	Publish(event string, payload any) error
}
