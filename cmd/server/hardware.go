package main

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/chootka/sLLM/internal/acquisition"
	"github.com/chootka/sLLM/internal/adapters/adc"
	"github.com/chootka/sLLM/internal/adapters/camera"
	"github.com/chootka/sLLM/internal/adapters/envsensor"
	"github.com/chootka/sLLM/internal/adapters/gpio"
	"github.com/chootka/sLLM/internal/adapters/mock"
	"github.com/chootka/sLLM/internal/adapters/serial"
	"github.com/chootka/sLLM/internal/config"
	"github.com/chootka/sLLM/internal/domain"
	"github.com/chootka/sLLM/internal/interlock"
	"github.com/chootka/sLLM/internal/ports"
)

const (
	// simulatedBaseVolts is the centre of the simulated random walk
	simulatedBaseVolts = 2.5

	simulatedSource     = "simulated"
	fallbackEnvInterval = time.Second
	firstReadAttempts   = 3
)

// pinnedPort is a PortFinder that always reports one configured path
type pinnedPort string

func (p pinnedPort) FindPorts() ([]string, error) {
	return []string{string(p)}, nil
}

// openLights opens both light outputs. A pin that cannot be opened falls
// back to a mock output so requests still succeed and are visible in
// status; the failure is logged. A faulty lights section runs every light
// on mock outputs with the default interlock limits.
func openLights(cfg config.Config) (map[domain.LightName]ports.DigitalOutput, interlock.Config, bool) {
	pins := map[domain.LightName]string{
		domain.RingLight:     cfg.Lights.RingPin,
		domain.ExposureLight: cfg.Lights.ExposurePin,
	}

	limits := interlock.Config{MaxDuration: cfg.Lights.MaxExposure, AutoOff: cfg.Lights.AutoOff}
	outputs := make(map[domain.LightName]ports.DigitalOutput, len(pins))
	hardware := !cfg.MockMode
	if err := cfg.Check(config.Lights); err != nil {
		log.Error().Err(err).Msg("invalid light configuration, using mock outputs")
		limits = interlock.DefaultConfig()
		hardware = false
	}

	for name, pin := range pins {
		if !hardware {
			outputs[name] = mock.NewOutput()
			continue
		}
		out, err := gpio.Open(pin)
		if err != nil {
			log.Error().Err(err).Str("light", string(name)).Str("pin", pin).Msg("failed to open light, using mock output")
			outputs[name] = mock.NewOutput()
			continue
		}
		log.Info().Str("light", string(name)).Str("pin", pin).Msg("initialized GPIO light")
		outputs[name] = out
	}
	return outputs, limits, hardware
}

// openElectrical selects the electrical acquisition loop. It returns nil
// when no source could be opened; the rest of the server still runs.
func openElectrical(cfg config.Config, state *domain.SharedState) (*acquisition.ElectricalLoop, string) {
	ec := cfg.Electrical

	if err := cfg.Check(config.Electrical); err != nil {
		log.Error().Err(err).Msg("invalid electrical configuration, electrical acquisition disabled")
		return nil, ""
	}
	if cfg.MockMode || ec.Source == config.SourceSimulated {
		lightOn := func() bool {
			st, err := state.Light(domain.ExposureLight)
			return err == nil && st.IsOn
		}
		sim := mock.NewVoltageSimulator(simulatedBaseVolts, lightOn, time.Now().UnixNano())
		log.Info().Float64("sample_rate", ec.SampleRate).Msg("initialized simulated electrical source")
		return acquisition.NewAnalogLoop(state, sim, ec.SampleRate), config.SourceSimulated
	}

	if ec.Source == config.SourceAnalog || ec.Source == config.SourceAuto {
		source, err := adc.OpenADS1115(adc.Config{
			Bus:        ec.ADCBus,
			Address:    ec.ADCAddress,
			MaxVoltage: ec.MaxVoltage,
		})
		if err == nil {
			log.Info().Float64("sample_rate", ec.SampleRate).Msg("initialized ADS1115 electrical source")
			return acquisition.NewAnalogLoop(state, source, ec.SampleRate), config.SourceAnalog
		}
		if ec.Source == config.SourceAnalog {
			log.Error().Err(err).Msg("failed to open ADC, electrical acquisition disabled")
			return nil, ""
		}
		log.Info().Err(err).Msg("no ADC found, using the serial microcontroller")
	}

	serialCfg := serial.DefaultConfig()
	serialCfg.BaudRate = ec.BaudRate
	open := func(path string) (ports.SerialTransport, error) {
		t, err := serial.Open(path, serialCfg)
		if err != nil {
			return nil, err
		}
		return t, nil
	}

	var finder ports.PortFinder = serial.NewFinder(nil)
	if ec.SerialPort != "" {
		finder = pinnedPort(ec.SerialPort)
	}

	rc := acquisition.DefaultReconnectConfig()
	rc.Interval = ec.Reconnect
	link := acquisition.NewReconnector(rc, finder, open, state.SetSerialConnected)

	log.Info().Int("baud", ec.BaudRate).Str("port", ec.SerialPort).Msg("initialized serial electrical source")
	return acquisition.NewSerialLoop(state, link), config.SourceSerial
}

// openEnvSensor is replaced in tests
var openEnvSensor = envsensor.Open

// openEnvironment selects the environment loop. Without a working sensor it
// falls back to simulated readings, which are reported as source
// "simulated".
func openEnvironment(cfg config.Config, state *domain.SharedState) (*acquisition.EnvironmentLoop, string) {
	ec := cfg.Environment

	if cfg.MockMode {
		return simulatedEnvironment(state, ec.Interval)
	}
	if err := cfg.Check(config.Environment); err != nil {
		log.Error().Err(err).Msg("invalid environment sensor configuration, using simulated readings")
		return simulatedEnvironment(state, fallbackEnvInterval)
	}
	if !ec.Enabled() {
		log.Info().Msg("no environment sensor configured, using simulated readings")
		return simulatedEnvironment(state, fallbackEnvInterval)
	}

	sensor, err := openEnvSensor(envsensor.Config{
		Model:   ec.Model,
		Bus:     ec.Bus,
		Address: ec.Address,
		Device:  ec.Device,
	})
	if err != nil {
		log.Error().Err(err).Str("model", ec.Model).Msg("failed to open environment sensor, using simulated readings")
		return simulatedEnvironment(state, fallbackEnvInterval)
	}

	floor := envsensor.MinInterval(ec.Model)
	if err := firstReading(context.Background(), sensor, firstReadAttempts, floor); err != nil {
		sensor.Close()
		log.Error().Err(err).Str("model", ec.Model).Msg("environment sensor did not answer, using simulated readings")
		return simulatedEnvironment(state, fallbackEnvInterval)
	}

	interval := ec.Interval
	if interval < floor {
		log.Warn().Dur("requested", interval).Dur("min", floor).Msg("sensor interval raised to the model minimum")
		interval = floor
	}

	log.Info().Str("model", ec.Model).Dur("interval", interval).Msg("initialized environment sensor")
	return acquisition.NewEnvironmentLoop(state, sensor, interval), ec.Model
}

func simulatedEnvironment(state *domain.SharedState, interval time.Duration) (*acquisition.EnvironmentLoop, string) {
	sim := mock.NewEnvironmentSimulator(time.Now().UnixNano())
	return acquisition.NewEnvironmentLoop(state, sim, interval), simulatedSource
}

// firstReading tries the sensor up to attempts times, spacing the tries
// by wait. DHT sensors routinely miss a single read.
func firstReading(ctx context.Context, sensor ports.EnvironmentSensor, attempts int, wait time.Duration) error {
	var err error
	for i := 0; i < attempts; i++ {
		if i > 0 && wait > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
		}
		if _, _, err = sensor.Read(ctx); err == nil {
			return nil
		}
	}
	return err
}

// openCamera returns nil when no camera is usable
func openCamera(cfg config.Config) ports.Camera {
	cc := cfg.Capture

	if err := cfg.Check(config.Capture); err != nil {
		log.Error().Err(err).Msg("invalid capture configuration, camera disabled")
		return nil
	}
	if err := os.MkdirAll(cc.Dir, 0o755); err != nil {
		log.Error().Err(err).Str("dir", cc.Dir).Msg("failed to create image directory, camera disabled")
		return nil
	}
	if cfg.MockMode {
		return mock.NewCamera()
	}

	still, err := camera.Detect(camera.Config{Width: cc.Width, Height: cc.Height})
	if err != nil {
		if errors.Is(err, domain.ErrCameraUnavailable) {
			log.Warn().Err(err).Msg("camera not available")
		} else {
			log.Error().Err(err).Msg("failed to initialize camera")
		}
		return nil
	}
	log.Info().Int("width", cc.Width).Int("height", cc.Height).Msg("initialized camera")
	return still
}
