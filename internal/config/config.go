// Package config loads the monitor configuration.
//
// Values are layered: built-in defaults, then an optional YAML file (from
// --config or CONFIG_FILE), then an optional .env file, then environment
// variables. Later layers win.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig wraps every validation and parse failure
var ErrInvalidConfig = errors.New("invalid configuration")

// Electrical sources
const (
	SourceAuto      = "auto" // ADC if present, otherwise the serial microcontroller
	SourceAnalog    = "analog"
	SourceSerial    = "serial"
	SourceSimulated = "simulated"
)

// Subsystem names a hardware section. A fault in one disables only that
// part of the monitor.
type Subsystem string

// Hardware subsystems checked with Config.Check
const (
	Electrical  Subsystem = "electrical"
	Environment Subsystem = "environment"
	Lights      Subsystem = "lights"
	Capture     Subsystem = "capture"
)

// Config is the complete server configuration
type Config struct {
	GRPC        GRPCConfig        `yaml:"grpc"`
	HTTP        HTTPConfig        `yaml:"http"`
	TLS         TLSConfig         `yaml:"tls"`
	Journal     JournalConfig     `yaml:"journal"`
	Electrical  ElectricalConfig  `yaml:"electrical"`
	Environment EnvironmentConfig `yaml:"environment"`
	Lights      LightsConfig      `yaml:"lights"`
	Capture     CaptureConfig     `yaml:"capture"`
	Publish     PublishConfig     `yaml:"publish"`
	Log         LogConfig         `yaml:"log"`

	// MockMode replaces every hardware adapter with a simulator
	MockMode bool `yaml:"mock_mode"`

	// environment variables that failed to parse, by subsystem
	faults map[Subsystem]error
}

// GRPCConfig configures the gRPC listener
type GRPCConfig struct {
	Port string `yaml:"port"`
}

// HTTPConfig configures the JSON API and push listener
type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

// TLSConfig enables mTLS on both listeners when Cert is set
type TLSConfig struct {
	Cert string `yaml:"cert"`
	Key  string `yaml:"key"`
	CA   string `yaml:"ca"`
}

// JournalConfig selects the event repository
type JournalConfig struct {
	RepoType  string        `yaml:"repo_type"` // "memory" | "sqlite"
	DBPath    string        `yaml:"db_path"`
	Retention time.Duration `yaml:"retention"`
	Buffer    int           `yaml:"buffer"`
}

// ElectricalConfig selects and tunes the electrical source
type ElectricalConfig struct {
	Source     string  `yaml:"source"`
	SampleRate float64 `yaml:"sample_rate"` // Hz, analog and simulated sources

	ADCBus     string  `yaml:"adc_bus"`
	ADCAddress uint16  `yaml:"adc_address"`
	MaxVoltage float64 `yaml:"max_voltage"`

	SerialPort string        `yaml:"serial_port"` // pinned path, "" to discover
	BaudRate   int           `yaml:"baud_rate"`
	Reconnect  time.Duration `yaml:"reconnect_interval"`
}

// EnvironmentConfig selects the temperature/humidity sensor
type EnvironmentConfig struct {
	Model    string        `yaml:"model"` // sht31 | bme280 | dht22 | dht11 | none
	Bus      string        `yaml:"bus"`
	Address  uint16        `yaml:"address"`
	Device   string        `yaml:"device"`
	Interval time.Duration `yaml:"interval"`
}

// LightsConfig names the GPIO pins and the exposure safety policy
type LightsConfig struct {
	RingPin     string        `yaml:"ring_pin"`
	ExposurePin string        `yaml:"exposure_pin"`
	MaxExposure time.Duration `yaml:"max_exposure"`
	AutoOff     bool          `yaml:"auto_off"`
}

// CaptureConfig configures the camera and periodic capture
type CaptureConfig struct {
	Dir      string        `yaml:"dir"`
	Interval time.Duration `yaml:"interval"` // 0 disables periodic capture
	Width    int           `yaml:"width"`
	Height   int           `yaml:"height"`
	Settle   time.Duration `yaml:"settle"`
	Warmup   time.Duration `yaml:"warmup"`
}

// PublishConfig configures the push cadence and the in-memory window
type PublishConfig struct {
	EmitInterval    time.Duration `yaml:"emit_interval"`
	HistoryCapacity int           `yaml:"history_capacity"`
}

// LogConfig configures zerolog
type LogConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"` // rotated with lumberjack when set
}

// Default returns the configuration used when nothing is overridden
func Default() Config {
	return Config{
		GRPC: GRPCConfig{Port: "50051"},
		HTTP: HTTPConfig{Addr: ":5000"},
		Journal: JournalConfig{
			RepoType:  "memory",
			DBPath:    "./slime.db",
			Retention: 30 * 24 * time.Hour,
			Buffer:    64,
		},
		Electrical: ElectricalConfig{
			Source:     SourceAuto,
			SampleRate: 10,
			ADCAddress: 0x48,
			MaxVoltage: 4.096,
			BaudRate:   9600,
			Reconnect:  5 * time.Second,
		},
		Environment: EnvironmentConfig{
			Model:    "sht31",
			Interval: time.Second,
		},
		Lights: LightsConfig{
			RingPin:     "GPIO17",
			ExposurePin: "GPIO27",
			MaxExposure: 30 * time.Second,
			AutoOff:     true,
		},
		Capture: CaptureConfig{
			Dir:      "./images",
			Interval: 5 * time.Minute,
			Width:    1920,
			Height:   1080,
			Settle:   500 * time.Millisecond,
			Warmup:   2 * time.Second,
		},
		Publish: PublishConfig{
			EmitInterval:    500 * time.Millisecond,
			HistoryCapacity: 1000,
		},
		Log: LogConfig{Level: "info"},
	}
}

// Load parses args, then layers the YAML file, the .env file and the
// environment over the defaults. The result is validated with Validate;
// hardware sections are left to Check.
func Load(args []string) (Config, error) {
	flags := pflag.NewFlagSet("slime-monitor", pflag.ContinueOnError)
	path := flags.StringP("config", "c", "", "YAML configuration file (overrides CONFIG_FILE)")
	envFile := flags.String("env-file", ".env", "dotenv file read before the environment")
	mock := flags.Bool("mock", false, "run with simulated hardware")
	if err := flags.Parse(args); err != nil {
		return Config{}, err
	}

	if err := loadDotEnv(*envFile); err != nil {
		return Config{}, err
	}

	file := *path
	if file == "" {
		file = os.Getenv("CONFIG_FILE")
	}

	cfg := Default()
	if file != "" {
		if err := cfg.loadFile(file); err != nil {
			return Config{}, err
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	if flags.Changed("mock") {
		cfg.MockMode = *mock
	}

	return cfg, cfg.Validate()
}

// loadDotEnv never overrides variables that are already set. A missing
// file is not an error.
func loadDotEnv(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("%w: load %s: %v", ErrInvalidConfig, path, err)
	}
	return nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("%w: parse %s: %v", ErrInvalidConfig, path, err)
	}
	return nil
}

// applyEnv overlays environment variables. Durations accept Go syntax
// ("500ms") or plain seconds ("30"). Bad values for a hardware subsystem are
// kept for Check; the returned error covers the global settings only.
func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	e := envReader{lookup: lookup}

	e.str("PORT", &c.GRPC.Port)
	e.str("HTTP_ADDR", &c.HTTP.Addr)

	e.str("TLS_CERT", &c.TLS.Cert)
	e.str("TLS_KEY", &c.TLS.Key)
	e.str("TLS_CA", &c.TLS.CA)

	e.str("REPO_TYPE", &c.Journal.RepoType)
	e.str("DB_PATH", &c.Journal.DBPath)
	e.duration("EVENT_RETENTION", &c.Journal.Retention)

	e.section = Electrical
	e.str("ELECTRICAL_SOURCE", &c.Electrical.Source)
	e.float("SAMPLE_RATE", &c.Electrical.SampleRate)
	e.str("ADC_BUS", &c.Electrical.ADCBus)
	e.address("ADC_ADDRESS", &c.Electrical.ADCAddress)
	e.str("SERIAL_PORT", &c.Electrical.SerialPort)
	e.integer("SERIAL_BAUD", &c.Electrical.BaudRate)
	e.duration("SERIAL_RECONNECT_INTERVAL", &c.Electrical.Reconnect)

	e.section = Environment
	e.str("SENSOR_TYPE", &c.Environment.Model)
	e.str("SENSOR_BUS", &c.Environment.Bus)
	e.address("SENSOR_ADDRESS", &c.Environment.Address)
	e.str("SENSOR_DEVICE", &c.Environment.Device)
	e.duration("SENSOR_INTERVAL", &c.Environment.Interval)

	e.section = Lights
	e.str("RING_LIGHT_PIN", &c.Lights.RingPin)
	e.str("EXPOSURE_LIGHT_PIN", &c.Lights.ExposurePin)
	e.duration("MAX_EXPOSURE_DURATION", &c.Lights.MaxExposure)
	e.boolean("AUTO_LIGHT_OFF", &c.Lights.AutoOff)

	e.section = Capture
	e.str("IMAGE_DIR", &c.Capture.Dir)
	e.duration("IMAGE_CAPTURE_INTERVAL", &c.Capture.Interval)
	e.integer("CAMERA_WIDTH", &c.Capture.Width)
	e.integer("CAMERA_HEIGHT", &c.Capture.Height)

	e.section = ""
	e.duration("SOCKET_EMIT_INTERVAL", &c.Publish.EmitInterval)
	e.integer("MAX_READINGS_BUFFER", &c.Publish.HistoryCapacity)

	e.boolean("MOCK_MODE", &c.MockMode)
	e.str("LOG_LEVEL", &c.Log.Level)
	e.str("LOG_FILE", &c.Log.File)

	c.Environment.Model = strings.ToLower(c.Environment.Model)
	c.Electrical.Source = strings.ToLower(c.Electrical.Source)

	for s, errs := range e.faults {
		if c.faults == nil {
			c.faults = make(map[Subsystem]error)
		}
		c.faults[s] = errors.Join(errs...)
	}
	return errors.Join(e.errs...)
}

// envReader collects parse errors so one bad variable reports every problem.
// Errors read while section is set are filed under that subsystem.
type envReader struct {
	lookup  func(string) (string, bool)
	section Subsystem
	errs    []error
	faults  map[Subsystem][]error
}

func (e *envReader) get(key string) (string, bool) {
	v, ok := e.lookup(key)
	if !ok || strings.TrimSpace(v) == "" {
		return "", false
	}
	return strings.TrimSpace(v), true
}

func (e *envReader) fail(key, v string, err error) {
	err = fmt.Errorf("%w: %s=%q: %v", ErrInvalidConfig, key, v, err)
	if e.section == "" {
		e.errs = append(e.errs, err)
		return
	}
	if e.faults == nil {
		e.faults = make(map[Subsystem][]error)
	}
	e.faults[e.section] = append(e.faults[e.section], err)
}

func (e *envReader) str(key string, dst *string) {
	if v, ok := e.get(key); ok {
		*dst = v
	}
}

func (e *envReader) integer(key string, dst *int) {
	v, ok := e.get(key)
	if !ok {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.fail(key, v, err)
		return
	}
	*dst = n
}

func (e *envReader) float(key string, dst *float64) {
	v, ok := e.get(key)
	if !ok {
		return
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		e.fail(key, v, err)
		return
	}
	*dst = f
}

func (e *envReader) boolean(key string, dst *bool) {
	v, ok := e.get(key)
	if !ok {
		return
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		e.fail(key, v, err)
		return
	}
	*dst = b
}

// address accepts decimal or 0x-prefixed I2C addresses
func (e *envReader) address(key string, dst *uint16) {
	v, ok := e.get(key)
	if !ok {
		return
	}
	n, err := strconv.ParseUint(v, 0, 16)
	if err != nil {
		e.fail(key, v, err)
		return
	}
	*dst = uint16(n)
}

func (e *envReader) duration(key string, dst *time.Duration) {
	v, ok := e.get(key)
	if !ok {
		return
	}
	d, err := ParseDuration(v)
	if err != nil {
		e.fail(key, v, err)
		return
	}
	*dst = d
}

// ParseDuration accepts Go duration syntax or a plain number of seconds
func ParseDuration(s string) (time.Duration, error) {
	if d, err := time.ParseDuration(s); err == nil {
		return d, nil
	}
	secs, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("not a duration: %q", s)
	}
	return time.Duration(secs * float64(time.Second)), nil
}
