package envsensor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/chootka/sLLM/internal/domain"
)

// DHTMinInterval is the fastest a DHT22/DHT11 may be polled
const DHTMinInterval = 2 * time.Second

// DHT reads a DHT22 or DHT11 through the kernel dht11 IIO driver
// (dtoverlay=dht11,gpiopin=4). The driver handles the single-wire timing;
// it fails reads often, and those are reported as transient.
type DHT struct {
	model string
	dir   string
}

// iioRoot is where the kernel exposes industrial I/O devices
var iioRoot = "/sys/bus/iio/devices"

func openDHT(model, device string) (*DHT, error) {
	dir := device
	if dir == "" {
		found, err := findIIODevice(iioRoot, "dht11")
		if err != nil {
			return nil, err
		}
		dir = found
	}
	if _, err := os.Stat(filepath.Join(dir, "in_temp_input")); err != nil {
		return nil, fmt.Errorf("%s at %s: %w", model, dir, domain.ErrDeviceUnavailable)
	}
	return &DHT{model: model, dir: dir}, nil
}

// findIIODevice returns the first IIO device whose name matches driver
func findIIODevice(root, driver string) (string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return "", fmt.Errorf("list iio devices: %w", domain.ErrDeviceUnavailable)
	}
	for _, e := range entries {
		dir := filepath.Join(root, e.Name())
		name, err := os.ReadFile(filepath.Join(dir, "name"))
		if err != nil {
			continue
		}
		if strings.HasPrefix(strings.TrimSpace(string(name)), driver) {
			return dir, nil
		}
	}
	return "", fmt.Errorf("no %s iio device: %w", driver, domain.ErrDeviceUnavailable)
}

// Read returns the latest conversion. The driver answers EIO or ETIMEDOUT
// when the sensor misses a frame.
func (d *DHT) Read(ctx context.Context) (float64, float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, 0, err
	}

	temperature, err := readMilli(filepath.Join(d.dir, "in_temp_input"))
	if err != nil {
		return 0, 0, d.classify(err)
	}
	humidity, err := readMilli(filepath.Join(d.dir, "in_humidityrelative_input"))
	if err != nil {
		return 0, 0, d.classify(err)
	}

	if humidity < 0 || humidity > 100 {
		return 0, 0, fmt.Errorf("%s: humidity %.1f out of range: %w", d.model, humidity, domain.ErrTransientRead)
	}
	return temperature, humidity, nil
}

func (d *DHT) classify(err error) error {
	if errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%s: %w: %v", d.model, domain.ErrDeviceUnavailable, err)
	}
	return fmt.Errorf("%s: %v: %w", d.model, err, domain.ErrTransientRead)
}

// readMilli parses a sysfs value reported in thousandths
func readMilli(path string) (float64, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseInt(strings.TrimSpace(string(raw)), 10, 64)
	if err != nil {
		return 0, err
	}
	return float64(v) / 1000, nil
}

// Close is a no-op; the kernel owns the pin
func (d *DHT) Close() error {
	return nil
}
