package gpio

import (
	"fmt"
	"sync"

	pgpio "periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"

	"github.com/chootka/sLLM/internal/domain"
)

var (
	initOnce sync.Once
	initErr  error
)

// Init loads the periph host drivers once per process
func Init() error {
	initOnce.Do(func() {
		if _, err := host.Init(); err != nil {
			initErr = fmt.Errorf("failed to initialize periph: %w", err)
		}
	})
	return initErr
}

// Output drives one light through a GPIO pin. It implements
// ports.DigitalOutput.
type Output struct {
	name string
	pin  pgpio.PinIO
}

// Open configures the named pin ("GPIO17") as an output, driven low
func Open(name string) (*Output, error) {
	if err := Init(); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrDeviceUnavailable, err)
	}

	pin := gpioreg.ByName(name)
	if pin == nil {
		return nil, fmt.Errorf("%w: gpio pin %s not found", domain.ErrDeviceUnavailable, name)
	}

	o := &Output{name: name, pin: pin}
	if err := o.pin.Out(pgpio.Low); err != nil {
		return nil, fmt.Errorf("failed to set %s as output: %w", name, err)
	}
	return o, nil
}

// Set drives the pin high for on, low for off
func (o *Output) Set(on bool) error {
	level := pgpio.Low
	if on {
		level = pgpio.High
	}
	if err := o.pin.Out(level); err != nil {
		return fmt.Errorf("failed to drive %s %s: %w", o.name, level, err)
	}
	return nil
}

// Name returns the pin name
func (o *Output) Name() string {
	return o.name
}

// Close leaves the light off and releases the pin
func (o *Output) Close() error {
	if err := o.pin.Out(pgpio.Low); err != nil {
		return fmt.Errorf("failed to drive %s low: %w", o.name, err)
	}
	return o.pin.Halt()
}
