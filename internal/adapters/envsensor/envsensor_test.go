package envsensor

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"periph.io/x/conn/v3/i2c/i2ctest"

	"github.com/chootka/sLLM/internal/domain"
)

func TestCRC8(t *testing.T) {
	// Example from the Sensirion datasheet
	if got := crc8([]byte{0xBE, 0xEF}); got != 0x92 {
		t.Errorf("crc8(0xBEEF) = %#x, want 0x92", got)
	}
}

func TestDecodeSHT31(t *testing.T) {
	frame := func(rawT, rawH uint16) []byte {
		b := []byte{byte(rawT >> 8), byte(rawT), 0, byte(rawH >> 8), byte(rawH), 0}
		b[2] = crc8(b[0:2])
		b[5] = crc8(b[3:5])
		return b
	}

	tests := []struct {
		name    string
		buf     []byte
		wantT   float64
		wantH   float64
		wantErr bool
	}{
		{"minimum", frame(0, 0), -45, 0, false},
		{"maximum", frame(0xFFFF, 0xFFFF), 130, 100, false},
		{"midscale", frame(0x6666, 0x8000), 25, 50.0008, false},
		{"bad crc", []byte{0x66, 0x66, 0x00, 0x80, 0x00, 0x00}, 0, 0, true},
		{"short", []byte{0x66}, 0, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			temp, hum, err := decodeSHT31(tt.buf)
			if tt.wantErr {
				if !errors.Is(err, domain.ErrTransientRead) {
					t.Fatalf("expected ErrTransientRead, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("decode: %v", err)
			}
			if math.Abs(temp-tt.wantT) > 0.01 || math.Abs(hum-tt.wantH) > 0.01 {
				t.Errorf("got %.4f/%.4f, want %.4f/%.4f", temp, hum, tt.wantT, tt.wantH)
			}
		})
	}
}

func writeIIO(t *testing.T, dir, name, value string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(value), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestDHT_ReadsIIODevice(t *testing.T) {
	root := t.TempDir()
	other := filepath.Join(root, "iio:device0")
	dev := filepath.Join(root, "iio:device1")
	for _, d := range []string{other, dev} {
		if err := os.Mkdir(d, 0o755); err != nil {
			t.Fatal(err)
		}
	}
	writeIIO(t, other, "name", "ads1015\n")
	writeIIO(t, dev, "name", "dht11@4\n")
	writeIIO(t, dev, "in_temp_input", "22400\n")
	writeIIO(t, dev, "in_humidityrelative_input", "55100\n")

	found, err := findIIODevice(root, "dht11")
	if err != nil {
		t.Fatalf("findIIODevice: %v", err)
	}
	if found != dev {
		t.Fatalf("found %q, want %q", found, dev)
	}

	sensor, err := openDHT(ModelDHT22, found)
	if err != nil {
		t.Fatalf("openDHT: %v", err)
	}
	temp, hum, err := sensor.Read(context.Background())
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if temp != 22.4 || hum != 55.1 {
		t.Errorf("got %v/%v, want 22.4/55.1", temp, hum)
	}

	// The driver leaves garbage behind a failed frame
	writeIIO(t, dev, "in_humidityrelative_input", "not ready")
	if _, _, err := sensor.Read(context.Background()); !errors.Is(err, domain.ErrTransientRead) {
		t.Errorf("expected ErrTransientRead, got %v", err)
	}
}

func TestDHT_MissingDevice(t *testing.T) {
	if _, err := openDHT(ModelDHT11, t.TempDir()); !errors.Is(err, domain.ErrDeviceUnavailable) {
		t.Errorf("expected ErrDeviceUnavailable, got %v", err)
	}
	if _, err := findIIODevice(filepath.Join(t.TempDir(), "absent"), "dht11"); !errors.Is(err, domain.ErrDeviceUnavailable) {
		t.Errorf("expected ErrDeviceUnavailable, got %v", err)
	}
}

func TestMinInterval(t *testing.T) {
	if got := MinInterval(ModelDHT22); got != 2*time.Second {
		t.Errorf("dht22: got %v", got)
	}
	if got := MinInterval(ModelSHT31); got != 0 {
		t.Errorf("sht31: got %v", got)
	}
}

func TestOpen_UnknownModel(t *testing.T) {
	if _, err := Open(Config{Model: "am2320"}); err == nil {
		t.Error("expected an error for an unknown model")
	}
}

func TestSHT31_ReadsStatusOnOpen(t *testing.T) {
	status := []byte{0x80, 0x10, 0}
	status[2] = crc8(status[0:2])

	frame := []byte{0x66, 0x66, 0, 0x80, 0x00, 0}
	frame[2] = crc8(frame[0:2])
	frame[5] = crc8(frame[3:5])

	bus := &i2ctest.Playback{
		Ops: []i2ctest.IO{
			{Addr: SHT31DefaultAddress, W: []byte{0xF3, 0x2D}, R: status},
			{Addr: SHT31DefaultAddress, W: []byte{0x24, 0x00}},
			{Addr: SHT31DefaultAddress, R: frame},
		},
		DontPanic: true,
	}

	s, err := newSHT31(bus, 0)
	if err != nil {
		t.Fatalf("newSHT31: %v", err)
	}
	temp, hum, err := s.Read(context.Background())
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if math.Abs(temp-25) > 0.01 || math.Abs(hum-50) > 0.01 {
		t.Errorf("got %.2f/%.2f, want 25/50", temp, hum)
	}
	if err := s.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}

func TestI2CSensorsFailWithoutDevice(t *testing.T) {
	for _, model := range []string{ModelSHT31, ModelBME280} {
		t.Run(model, func(t *testing.T) {
			bus := &i2ctest.Playback{DontPanic: true}
			if _, err := openI2C(model, bus, 0); err == nil {
				t.Fatal("expected an error when nothing answers on the bus")
			}
		})
	}
}
