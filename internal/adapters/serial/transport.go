package serial

import (
	"bytes"
	"errors"
	"fmt"
	"time"

	bugst "go.bug.st/serial"
)

// DefaultBaudRate matches the microcontroller sketch
const DefaultBaudRate = 9600

// ErrPortClosed is returned once the transport has failed or been closed
var ErrPortClosed = errors.New("serial port closed")

// maxPending bounds buffered bytes when the device never sends a newline
const maxPending = 4096

// Config describes how to open the microcontroller port
type Config struct {
	BaudRate    int
	PollTimeout time.Duration // wait for bytes in BytesAvailable
	LineTimeout time.Duration // wait for a newline in ReadLine
}

// DefaultConfig returns 9600 baud with short poll and line timeouts
func DefaultConfig() Config {
	return Config{
		BaudRate:    DefaultBaudRate,
		PollTimeout: 10 * time.Millisecond,
		LineTimeout: 200 * time.Millisecond,
	}
}

// port is the part of bugst.Port the transport needs
type port interface {
	Read(p []byte) (int, error)
	SetReadTimeout(t time.Duration) error
	Close() error
}

// Transport reads newline-terminated values from the microcontroller.
// Only the electrical loop uses it, so it is not safe for concurrent use.
type Transport struct {
	port    port
	cfg     Config
	buf     []byte
	pending []byte
	open    bool
}

// Open opens path in 8N1 mode
func Open(path string, cfg Config) (*Transport, error) {
	if cfg.BaudRate <= 0 {
		cfg.BaudRate = DefaultBaudRate
	}

	mode := &bugst.Mode{
		BaudRate: cfg.BaudRate,
		DataBits: 8,
		Parity:   bugst.NoParity,
		StopBits: bugst.OneStopBit,
	}

	p, err := bugst.Open(path, mode)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}

	return newTransport(p, cfg)
}

func newTransport(p port, cfg Config) (*Transport, error) {
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = 10 * time.Millisecond
	}
	if cfg.LineTimeout < cfg.PollTimeout {
		cfg.LineTimeout = cfg.PollTimeout
	}

	if err := p.SetReadTimeout(cfg.PollTimeout); err != nil {
		p.Close()
		return nil, fmt.Errorf("set read timeout: %w", err)
	}

	return &Transport{
		port: p,
		cfg:  cfg,
		buf:  make([]byte, 256),
		open: true,
	}, nil
}

// BytesAvailable waits up to the poll timeout for input and reports how
// many bytes are buffered
func (t *Transport) BytesAvailable() (int, error) {
	if !t.open {
		return 0, ErrPortClosed
	}
	if len(t.pending) > 0 {
		return len(t.pending), nil
	}
	if err := t.fill(); err != nil {
		return 0, err
	}
	return len(t.pending), nil
}

// ReadLine returns the next line without its terminator. A partial line is
// kept for the next call and reported as ("", nil).
func (t *Transport) ReadLine() (string, error) {
	deadline := time.Now().Add(t.cfg.LineTimeout)

	for {
		if i := bytes.IndexByte(t.pending, '\n'); i >= 0 {
			line := string(bytes.TrimRight(t.pending[:i], "\r"))
			t.pending = t.pending[i+1:]
			return line, nil
		}
		if !time.Now().Before(deadline) {
			return "", nil
		}
		if !t.open {
			return "", ErrPortClosed
		}
		if err := t.fill(); err != nil {
			return "", err
		}
	}
}

// fill performs one timed read into pending
func (t *Transport) fill() error {
	n, err := t.port.Read(t.buf)
	if err != nil {
		t.open = false
		return fmt.Errorf("serial read: %w", err)
	}
	if n == 0 {
		return nil
	}

	t.pending = append(t.pending, t.buf[:n]...)
	if len(t.pending) > maxPending {
		// no newline in a long run of bytes; keep only the tail
		t.pending = append(t.pending[:0], t.pending[len(t.pending)-maxPending/2:]...)
	}
	return nil
}

// IsOpen reports whether the port is still usable
func (t *Transport) IsOpen() bool {
	return t.open
}

// Close releases the port
func (t *Transport) Close() error {
	t.open = false
	if t.port == nil {
		return nil
	}
	err := t.port.Close()
	t.port = nil
	return err
}
