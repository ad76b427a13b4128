package adc

import (
	"context"
	"fmt"

	"periph.io/x/conn/v3/analog"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/devices/v3/ads1x15"

	"github.com/chootka/sLLM/internal/adapters/gpio"
	"github.com/chootka/sLLM/internal/domain"
)

// DefaultAddress is the ADS1115 address with ADDR tied to ground
const DefaultAddress = 0x48

// Config selects the bus and input range
type Config struct {
	Bus        string  // i2creg bus name, "" for the first bus
	Address    uint16  // I2C address
	MaxVoltage float64 // full scale in volts; 4.096 is gain 1
	DataRate   int     // samples per second the converter runs at
}

// DefaultConfig returns gain 1 at 128 SPS on the first bus
func DefaultConfig() Config {
	return Config{
		Address:    DefaultAddress,
		MaxVoltage: 4.096,
		DataRate:   128,
	}
}

// ADS1115 reads the differential voltage between A0 and A1. It implements
// ports.VoltageSource.
type ADS1115 struct {
	bus i2c.BusCloser
	dev *ads1x15.Dev
	pin analog.PinADC
}

// OpenADS1115 opens the bus and configures channel A0-A1
func OpenADS1115(cfg Config) (*ADS1115, error) {
	if err := gpio.Init(); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrDeviceUnavailable, err)
	}
	if cfg.Address == 0 {
		cfg.Address = DefaultAddress
	}
	if cfg.MaxVoltage <= 0 {
		cfg.MaxVoltage = 4.096
	}
	if cfg.DataRate <= 0 {
		cfg.DataRate = 128
	}

	bus, err := i2creg.Open(cfg.Bus)
	if err != nil {
		return nil, fmt.Errorf("%w: open i2c bus: %v", domain.ErrDeviceUnavailable, err)
	}

	opts := ads1x15.DefaultOpts
	opts.I2cAddress = cfg.Address
	dev, err := ads1x15.NewADS1115(bus, &opts)
	if err != nil {
		bus.Close()
		return nil, fmt.Errorf("%w: ads1115 at %#x: %v", domain.ErrDeviceUnavailable, cfg.Address, err)
	}

	maxV := physic.ElectricPotential(cfg.MaxVoltage * float64(physic.Volt))
	rate := physic.Frequency(cfg.DataRate) * physic.Hertz
	pin, err := dev.PinForChannel(ads1x15.Channel0Minus1, maxV, rate, ads1x15.SaveEnergy)
	if err != nil {
		bus.Close()
		return nil, fmt.Errorf("failed to configure ads1115 channel: %w", err)
	}

	return &ADS1115{bus: bus, dev: dev, pin: pin}, nil
}

// ReadVoltage takes one single-shot conversion
func (a *ADS1115) ReadVoltage(ctx context.Context) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	sample, err := a.pin.Read()
	if err != nil {
		return 0, fmt.Errorf("ads1115 read: %w", err)
	}
	return float64(sample.V) / float64(physic.Volt), nil
}

// Close halts the converter and releases the bus
func (a *ADS1115) Close() error {
	if err := a.pin.Halt(); err != nil {
		a.bus.Close()
		return fmt.Errorf("ads1115 halt: %w", err)
	}
	if err := a.dev.Halt(); err != nil {
		a.bus.Close()
		return fmt.Errorf("ads1115 halt: %w", err)
	}
	return a.bus.Close()
}
