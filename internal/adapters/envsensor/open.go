package envsensor

import (
	"fmt"
	"time"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"

	"github.com/chootka/sLLM/internal/adapters/gpio"
	"github.com/chootka/sLLM/internal/domain"
	"github.com/chootka/sLLM/internal/ports"
)

// Sensor models accepted in configuration
const (
	ModelSHT31  = "sht31"
	ModelBME280 = "bme280"
	ModelDHT22  = "dht22"
	ModelDHT11  = "dht11"
)

// Config selects and locates the environment sensor
type Config struct {
	Model   string
	Bus     string // i2creg bus name for I2C models
	Address uint16 // I2C address, 0 for the model default
	Device  string // IIO device directory for DHT models, "" to search
}

// Open connects to the configured sensor
func Open(cfg Config) (ports.EnvironmentSensor, error) {
	switch cfg.Model {
	case ModelDHT22, ModelDHT11:
		return openDHT(cfg.Model, cfg.Device)

	case ModelSHT31, ModelBME280:
		if err := gpio.Init(); err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrDeviceUnavailable, err)
		}
		bus, err := i2creg.Open(cfg.Bus)
		if err != nil {
			return nil, fmt.Errorf("%w: open i2c bus: %v", domain.ErrDeviceUnavailable, err)
		}
		sensor, err := openI2C(cfg.Model, bus, cfg.Address)
		if err != nil {
			bus.Close()
			return nil, fmt.Errorf("%w: %v", domain.ErrDeviceUnavailable, err)
		}
		return sensor, nil
	}

	return nil, fmt.Errorf("unknown environment sensor model %q", cfg.Model)
}

// openI2C talks to the device once so a missing sensor fails at startup
func openI2C(model string, bus i2c.BusCloser, addr uint16) (ports.EnvironmentSensor, error) {
	if model == ModelSHT31 {
		s, err := newSHT31(bus, addr)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
	b, err := newBME280(bus, addr)
	if err != nil {
		return nil, err
	}
	return b, nil
}

// MinInterval returns the fastest safe polling interval for model
func MinInterval(model string) time.Duration {
	switch model {
	case ModelDHT22, ModelDHT11:
		return DHTMinInterval
	}
	return 0
}
