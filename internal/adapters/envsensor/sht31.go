package envsensor

import (
	"context"
	"fmt"
	"time"

	"periph.io/x/conn/v3/i2c"

	"github.com/chootka/sLLM/internal/domain"
)

// SHT31DefaultAddress is the address with ADDR pulled low
const SHT31DefaultAddress = 0x44

// single shot, high repeatability, clock stretching disabled
var sht31Measure = []byte{0x24, 0x00}

// read status register
var sht31Status = []byte{0xF3, 0x2D}

// sht31MeasureTime covers the worst case high repeatability conversion
const sht31MeasureTime = 16 * time.Millisecond

// SHT31 reads a Sensirion SHT3x over I2C
type SHT31 struct {
	bus i2c.BusCloser
	dev *i2c.Dev
}

// newSHT31 reads the status register so an absent sensor fails here
// rather than on every poll
func newSHT31(bus i2c.BusCloser, addr uint16) (*SHT31, error) {
	if addr == 0 {
		addr = SHT31DefaultAddress
	}
	s := &SHT31{
		bus: bus,
		dev: &i2c.Dev{Bus: bus, Addr: addr},
	}

	status := make([]byte, 3)
	if err := s.dev.Tx(sht31Status, status); err != nil {
		return nil, fmt.Errorf("sht31 at %#x: %w", addr, err)
	}
	if crc8(status[0:2]) != status[2] {
		return nil, fmt.Errorf("sht31 at %#x: bad status checksum", addr)
	}
	return s, nil
}

// Read triggers one measurement and waits for it
func (s *SHT31) Read(ctx context.Context) (float64, float64, error) {
	if err := s.dev.Tx(sht31Measure, nil); err != nil {
		return 0, 0, fmt.Errorf("sht31 trigger: %w", err)
	}

	timer := time.NewTimer(sht31MeasureTime)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return 0, 0, ctx.Err()
	case <-timer.C:
	}

	buf := make([]byte, 6)
	if err := s.dev.Tx(nil, buf); err != nil {
		return 0, 0, fmt.Errorf("sht31 read: %w", err)
	}
	return decodeSHT31(buf)
}

// decodeSHT31 converts a measurement frame: temperature word, crc,
// humidity word, crc
func decodeSHT31(buf []byte) (float64, float64, error) {
	if len(buf) != 6 {
		return 0, 0, fmt.Errorf("sht31: short frame: %w", domain.ErrTransientRead)
	}
	if crc8(buf[0:2]) != buf[2] || crc8(buf[3:5]) != buf[5] {
		return 0, 0, fmt.Errorf("sht31: crc mismatch: %w", domain.ErrTransientRead)
	}

	rawT := uint16(buf[0])<<8 | uint16(buf[1])
	rawH := uint16(buf[3])<<8 | uint16(buf[4])

	temperature := -45 + 175*float64(rawT)/65535
	humidity := 100 * float64(rawH) / 65535
	return temperature, humidity, nil
}

// crc8 is the Sensirion checksum: polynomial 0x31, init 0xFF
func crc8(data []byte) byte {
	crc := byte(0xFF)
	for _, b := range data {
		crc ^= b
		for i := 0; i < 8; i++ {
			if crc&0x80 != 0 {
				crc = crc<<1 ^ 0x31
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}

// Close releases the bus
func (s *SHT31) Close() error {
	return s.bus.Close()
}
