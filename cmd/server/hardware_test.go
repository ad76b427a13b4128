package main

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/chootka/sLLM/internal/adapters/envsensor"
	"github.com/chootka/sLLM/internal/adapters/mock"
	"github.com/chootka/sLLM/internal/config"
	"github.com/chootka/sLLM/internal/domain"
	"github.com/chootka/sLLM/internal/interlock"
	"github.com/chootka/sLLM/internal/ports"
)

func newState(t *testing.T) *domain.SharedState {
	t.Helper()
	state, err := domain.NewSharedState(domain.DefaultHistoryCapacity, map[domain.LightName]domain.LightState{
		domain.RingLight:     {Pin: "GPIO17"},
		domain.ExposureLight: {Pin: "GPIO27"},
	})
	if err != nil {
		t.Fatal(err)
	}
	return state
}

// hardwareConfig points every device at names that cannot exist on the
// test host, so nothing real is opened
func hardwareConfig(t *testing.T) config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.MockMode = false
	cfg.Electrical.ADCBus = "missing-bus"
	cfg.Environment.Bus = "missing-bus"
	cfg.Environment.Device = t.TempDir()
	cfg.Lights.RingPin = "TEST_RING"
	cfg.Lights.ExposurePin = "TEST_EXPOSURE"
	cfg.Capture.Dir = filepath.Join(t.TempDir(), "images")
	return cfg
}

// loadWithEnv runs config.Load with the given variables and no files
func loadWithEnv(t *testing.T, env map[string]string) config.Config {
	t.Helper()
	t.Setenv("CONFIG_FILE", "")
	for k, v := range env {
		t.Setenv(k, v)
	}
	cfg, err := config.Load([]string{"--env-file", ""})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	return cfg
}

func TestOpenElectrical(t *testing.T) {
	tests := []struct {
		name       string
		mutate     func(*config.Config)
		wantLoop   bool
		wantSource string
	}{
		{"simulated source", func(c *config.Config) { c.Electrical.Source = config.SourceSimulated }, true, config.SourceSimulated},
		{"mock mode", func(c *config.Config) { c.MockMode = true }, true, config.SourceSimulated},
		{"analog without adc", func(c *config.Config) { c.Electrical.Source = config.SourceAnalog }, false, ""},
		{"auto falls back to serial", func(c *config.Config) {
			c.Electrical.Source = config.SourceAuto
			c.Electrical.SerialPort = "/dev/ttyTEST0"
		}, true, config.SourceSerial},
		{"unknown source", func(c *config.Config) { c.Electrical.Source = "bogus" }, false, ""},
		{"zero sample rate", func(c *config.Config) { c.Electrical.SampleRate = 0 }, false, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := hardwareConfig(t)
			tt.mutate(&cfg)

			loop, source := openElectrical(cfg, newState(t))
			if (loop != nil) != tt.wantLoop {
				t.Fatalf("loop = %v, want loop %v", loop, tt.wantLoop)
			}
			if source != tt.wantSource {
				t.Errorf("source = %q, want %q", source, tt.wantSource)
			}
		})
	}
}

func TestOpenElectrical_BadEnvironmentValueDisablesOnlyElectrical(t *testing.T) {
	cfg := loadWithEnv(t, map[string]string{
		"SAMPLE_RATE":        "fast",
		"MOCK_MODE":          "false",
		"SENSOR_TYPE":        "none",
		"IMAGE_DIR":          filepath.Join(t.TempDir(), "images"),
		"RING_LIGHT_PIN":     "TEST_RING",
		"EXPOSURE_LIGHT_PIN": "TEST_EXPOSURE",
	})
	state := newState(t)

	if loop, _ := openElectrical(cfg, state); loop != nil {
		t.Error("bad SAMPLE_RATE should disable electrical acquisition")
	}
	if loop, source := openEnvironment(cfg, state); loop == nil || source != simulatedSource {
		t.Errorf("environment should still run, got %v %q", loop, source)
	}
	if outputs, _, _ := openLights(cfg); len(outputs) != 2 {
		t.Errorf("lights should still open, got %d outputs", len(outputs))
	}
}

// failingSensor opens but never answers
type failingSensor struct {
	reads  int
	closed bool
}

func (s *failingSensor) Read(context.Context) (float64, float64, error) {
	s.reads++
	return 0, 0, domain.ErrTransientRead
}

func (s *failingSensor) Close() error {
	s.closed = true
	return nil
}

type steadySensor struct{}

func (steadySensor) Read(context.Context) (float64, float64, error) { return 24, 80, nil }
func (steadySensor) Close() error { return nil }

func TestOpenEnvironment(t *testing.T) {
	tests := []struct {
		name       string
		mutate     func(*config.Config)
		wantSource string
	}{
		{"mock mode", func(c *config.Config) { c.MockMode = true }, simulatedSource},
		{"no sensor configured", func(c *config.Config) { c.Environment.Model = "none" }, simulatedSource},
		{"unknown model", func(c *config.Config) { c.Environment.Model = "am2302" }, simulatedSource},
		{"zero interval", func(c *config.Config) { c.Environment.Interval = 0 }, simulatedSource},
		{"sht31 without a bus", func(c *config.Config) { c.Environment.Model = envsensor.ModelSHT31 }, simulatedSource},
		{"bme280 without a bus", func(c *config.Config) { c.Environment.Model = envsensor.ModelBME280 }, simulatedSource},
		{"dht22 without a device", func(c *config.Config) { c.Environment.Model = envsensor.ModelDHT22 }, simulatedSource},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := hardwareConfig(t)
			tt.mutate(&cfg)

			loop, source := openEnvironment(cfg, newState(t))
			if loop == nil {
				t.Fatal("expected a loop")
			}
			if source != tt.wantSource {
				t.Errorf("source = %q, want %q", source, tt.wantSource)
			}
		})
	}
}

func TestOpenEnvironment_SilentSensorFallsBack(t *testing.T) {
	sensor := &failingSensor{}
	orig := openEnvSensor
	openEnvSensor = func(envsensor.Config) (ports.EnvironmentSensor, error) { return sensor, nil }
	t.Cleanup(func() { openEnvSensor = orig })

	cfg := hardwareConfig(t)
	cfg.Environment.Model = envsensor.ModelSHT31

	loop, source := openEnvironment(cfg, newState(t))
	if loop == nil || source != simulatedSource {
		t.Fatalf("expected simulated fallback, got %v %q", loop, source)
	}
	if sensor.reads != firstReadAttempts {
		t.Errorf("expected %d reads, got %d", firstReadAttempts, sensor.reads)
	}
	if !sensor.closed {
		t.Error("silent sensor should be closed")
	}
}

func TestOpenEnvironment_UsesAnsweringSensor(t *testing.T) {
	orig := openEnvSensor
	openEnvSensor = func(envsensor.Config) (ports.EnvironmentSensor, error) { return steadySensor{}, nil }
	t.Cleanup(func() { openEnvSensor = orig })

	cfg := hardwareConfig(t)
	cfg.Environment.Model = envsensor.ModelBME280

	loop, source := openEnvironment(cfg, newState(t))
	if loop == nil || source != envsensor.ModelBME280 {
		t.Errorf("expected the bme280 loop, got %v %q", loop, source)
	}
}

func TestFirstReading_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sensor := &failingSensor{}
	err := firstReading(ctx, sensor, 3, time.Hour)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if sensor.reads != 1 {
		t.Errorf("expected one read before waiting, got %d", sensor.reads)
	}
}

func TestOpenLights(t *testing.T) {
	tests := []struct {
		name         string
		mutate       func(*config.Config)
		wantHardware bool
		wantLimits   interlock.Config
	}{
		{"unknown pins fall back per light", func(c *config.Config) {
			c.Lights.MaxExposure = 10 * time.Second
			c.Lights.AutoOff = false
		}, true, interlock.Config{MaxDuration: 10 * time.Second}},
		{"mock mode", func(c *config.Config) { c.MockMode = true }, false,
			interlock.Config{MaxDuration: 30 * time.Second, AutoOff: true}},
		{"shared pin", func(c *config.Config) { c.Lights.ExposurePin = c.Lights.RingPin }, false, interlock.DefaultConfig()},
		{"zero max exposure", func(c *config.Config) { c.Lights.MaxExposure = 0 }, false, interlock.DefaultConfig()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := hardwareConfig(t)
			tt.mutate(&cfg)

			outputs, limits, hardware := openLights(cfg)
			if len(outputs) != 2 {
				t.Fatalf("expected two outputs, got %d", len(outputs))
			}
			for name, out := range outputs {
				if _, ok := out.(*mock.Output); !ok {
					t.Errorf("%s: expected a mock output on a host without those pins, got %T", name, out)
				}
			}
			if hardware != tt.wantHardware {
				t.Errorf("hardware = %v, want %v", hardware, tt.wantHardware)
			}
			if limits != tt.wantLimits {
				t.Errorf("limits = %+v, want %+v", limits, tt.wantLimits)
			}
		})
	}
}

func TestOpenCamera(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*testing.T, *config.Config)
		wantCam bool
	}{
		{"mock mode", func(_ *testing.T, c *config.Config) { c.MockMode = true }, true},
		{"no camera binary", func(*testing.T, *config.Config) {}, false},
		{"zero width", func(_ *testing.T, c *config.Config) { c.MockMode = true; c.Capture.Width = 0 }, false},
		{"unwritable dir", func(t *testing.T, c *config.Config) {
			c.MockMode = true
			blocker := filepath.Join(filepath.Dir(c.Capture.Dir), "file")
			if err := os.WriteFile(blocker, nil, 0o644); err != nil {
				t.Fatal(err)
			}
			c.Capture.Dir = filepath.Join(blocker, "images")
		}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("PATH", "")
			cfg := hardwareConfig(t)
			tt.mutate(t, &cfg)

			cam := openCamera(cfg)
			if (cam != nil) != tt.wantCam {
				t.Fatalf("camera = %v, want camera %v", cam, tt.wantCam)
			}
			if cam == nil {
				return
			}
			defer cam.Close()
			if _, err := os.Stat(cfg.Capture.Dir); err != nil {
				t.Errorf("image dir should exist: %v", err)
			}
		})
	}
}
