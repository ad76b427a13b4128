package envsensor

import (
	"context"
	"fmt"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/devices/v3/bmxx80"
)

// BME280DefaultAddress is the address with SDO pulled low
const BME280DefaultAddress = 0x76

// BME280 reads a Bosch BME280 over I2C
type BME280 struct {
	bus i2c.BusCloser
	dev *bmxx80.Dev
}

func newBME280(bus i2c.BusCloser, addr uint16) (*BME280, error) {
	if addr == 0 {
		addr = BME280DefaultAddress
	}
	dev, err := bmxx80.NewI2C(bus, addr, &bmxx80.DefaultOpts)
	if err != nil {
		return nil, fmt.Errorf("bme280 at %#x: %w", addr, err)
	}
	return &BME280{bus: bus, dev: dev}, nil
}

// Read takes one forced measurement
func (b *BME280) Read(ctx context.Context) (float64, float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, 0, err
	}

	var env physic.Env
	if err := b.dev.Sense(&env); err != nil {
		return 0, 0, fmt.Errorf("bme280 sense: %w", err)
	}

	temperature := float64(env.Temperature-physic.ZeroCelsius) / float64(physic.Celsius)
	humidity := float64(env.Humidity) / float64(physic.PercentRH)
	return temperature, humidity, nil
}

// Close halts the sensor and releases the bus
func (b *BME280) Close() error {
	if err := b.dev.Halt(); err != nil {
		b.bus.Close()
		return fmt.Errorf("bme280 halt: %w", err)
	}
	return b.bus.Close()
}
