package config

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"
)

// Validate checks the settings every run depends on. Hardware sections are
// checked with Check so a bad one only disables that subsystem.
func (c Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalidConfig}, args...)...))
	}

	if c.GRPC.Port == "" {
		add("grpc port is empty")
	}
	if c.HTTP.Addr == "" {
		add("http addr is empty")
	}
	if (c.TLS.Cert == "") != (c.TLS.Key == "") {
		add("tls cert and key must be set together")
	}
	if c.TLS.Cert != "" && c.TLS.CA == "" {
		add("tls ca is required for mTLS")
	}

	switch c.Journal.RepoType {
	case "memory":
	case "sqlite":
		if c.Journal.DBPath == "" {
			add("sqlite journal needs db_path")
		}
	default:
		add("unknown repo type %q", c.Journal.RepoType)
	}
	if c.Journal.Retention < 0 {
		add("negative event retention")
	}

	if c.Publish.HistoryCapacity < 1 {
		add("history capacity must be at least 1, got %d", c.Publish.HistoryCapacity)
	}
	if c.Publish.EmitInterval <= 0 {
		add("emit interval must be positive")
	}

	if _, err := zerolog.ParseLevel(c.Log.Level); err != nil {
		add("log level: %v", err)
	}

	return errors.Join(errs...)
}

// Check reports the environment variables of subsystem s that failed to
// parse, joined with the section's own validation.
func (c Config) Check(s Subsystem) error {
	var err error
	switch s {
	case Electrical:
		err = c.Electrical.Validate()
	case Environment:
		err = c.Environment.Validate()
	case Lights:
		err = c.Lights.Validate()
	case Capture:
		err = c.Capture.Validate()
	default:
		return fmt.Errorf("%w: unknown subsystem %q", ErrInvalidConfig, s)
	}
	return errors.Join(c.faults[s], err)
}

// Validate checks the electrical source
func (e ElectricalConfig) Validate() error {
	switch e.Source {
	case SourceAuto, SourceAnalog, SourceSerial, SourceSimulated:
	default:
		return fmt.Errorf("%w: unknown electrical source %q", ErrInvalidConfig, e.Source)
	}
	if e.SampleRate <= 0 {
		return fmt.Errorf("%w: sample rate must be positive", ErrInvalidConfig)
	}
	if e.BaudRate <= 0 {
		return fmt.Errorf("%w: baud rate must be positive", ErrInvalidConfig)
	}
	return nil
}

// Enabled reports whether an environment sensor is configured at all
func (e EnvironmentConfig) Enabled() bool {
	return e.Model != "" && e.Model != "none"
}

// Validate checks the environment sensor section
func (e EnvironmentConfig) Validate() error {
	switch e.Model {
	case "", "none", "sht31", "bme280", "dht22", "dht11":
	default:
		return fmt.Errorf("%w: unknown sensor type %q", ErrInvalidConfig, e.Model)
	}
	if e.Interval <= 0 {
		return fmt.Errorf("%w: sensor interval must be positive", ErrInvalidConfig)
	}
	return nil
}

// Validate checks the light pins and the exposure cap
func (l LightsConfig) Validate() error {
	if l.MaxExposure <= 0 {
		return fmt.Errorf("%w: max exposure duration must be positive", ErrInvalidConfig)
	}
	if l.RingPin == "" || l.ExposurePin == "" {
		return fmt.Errorf("%w: both light pins are required", ErrInvalidConfig)
	}
	if l.RingPin == l.ExposurePin {
		return fmt.Errorf("%w: ring and exposure lights share pin %s", ErrInvalidConfig, l.RingPin)
	}
	return nil
}

// Validate checks the capture section
func (c CaptureConfig) Validate() error {
	if c.Dir == "" {
		return fmt.Errorf("%w: image dir is empty", ErrInvalidConfig)
	}
	if c.Interval < 0 {
		return fmt.Errorf("%w: negative capture interval", ErrInvalidConfig)
	}
	if c.Width <= 0 || c.Height <= 0 {
		return fmt.Errorf("%w: camera resolution %dx%d", ErrInvalidConfig, c.Width, c.Height)
	}
	return nil
}

// ParseLevel returns the zerolog level, info when unset or unparseable
func (l LogConfig) ParseLevel() zerolog.Level {
	lvl, err := zerolog.ParseLevel(l.Level)
	if err != nil || l.Level == "" {
		return zerolog.InfoLevel
	}
	return lvl
}
