package acquisition

import (
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/chootka/sLLM/internal/ports"
)

// errLinkClosed marks a transport that reports itself closed
var errLinkClosed = errors.New("serial transport closed")

// DefaultFallbackPaths are tried when enumeration finds no known adapter
var DefaultFallbackPaths = []string{
	"/dev/ttyACM0",
	"/dev/ttyUSB0",
	"/dev/ttyACM1",
	"/dev/ttyUSB1",
	"/dev/serial0",
}

// ReconnectConfig tunes how hard the reconnector works to find the device
type ReconnectConfig struct {
	Interval      time.Duration // minimum gap between attempts
	RescanEvery   int           // full port enumeration every Nth attempt
	WarnEvery     int           // warn every Nth consecutive failed attempt
	FallbackPaths []string
}

// DefaultReconnectConfig returns the 5s / every 10th / every 20th policy
func DefaultReconnectConfig() ReconnectConfig {
	return ReconnectConfig{
		Interval:      5 * time.Second,
		RescanEvery:   10,
		WarnEvery:     20,
		FallbackPaths: DefaultFallbackPaths,
	}
}

// Reconnector owns the serial link to the microcontroller and recovers it
// when the device is unplugged or replugged on another path.
//
// It is driven inline by the electrical loop, which is the only goroutine
// that touches the transport, so it has no lock.
type Reconnector struct {
	cfg    ReconnectConfig
	finder ports.PortFinder
	open   ports.SerialOpener

	transport ports.SerialTransport
	path      string   // last path that opened
	found     []string // matches from the last enumeration

	attempts    int // failed attempts since the link was last up
	failures    int // transport failures since the link was last up
	lastAttempt time.Time

	now      func() time.Time
	onChange func(connected bool)
}

// NewReconnector creates a disconnected reconnector. onChange, when
// non-nil, is told about every link transition.
func NewReconnector(cfg ReconnectConfig, finder ports.PortFinder, open ports.SerialOpener, onChange func(connected bool)) *Reconnector {
	if cfg.Interval < 0 {
		cfg.Interval = 0
	}
	if cfg.RescanEvery < 1 {
		cfg.RescanEvery = 1
	}
	if cfg.WarnEvery < 1 {
		cfg.WarnEvery = 1
	}
	if onChange == nil {
		onChange = func(bool) {}
	}

	return &Reconnector{
		cfg:      cfg,
		finder:   finder,
		open:     open,
		now:      time.Now,
		onChange: onChange,
	}
}

// Connected reports whether a usable transport is held
func (r *Reconnector) Connected() bool {
	return r.transport != nil && r.transport.IsOpen()
}

// Transport returns the current transport, nil while disconnected
func (r *Reconnector) Transport() ports.SerialTransport {
	return r.transport
}

// Path returns the last path the device was found on
func (r *Reconnector) Path() string {
	return r.path
}

// Attempts returns failed attempts since the link was last up
func (r *Reconnector) Attempts() int {
	return r.attempts
}

// Failures returns transport failures since the link was last up
func (r *Reconnector) Failures() int {
	return r.failures
}

// Ensure returns true when the link is up, attempting a reconnect if the
// attempt interval has elapsed
func (r *Reconnector) Ensure() bool {
	if r.transport != nil {
		if r.transport.IsOpen() {
			return true
		}
		r.Invalidate(errLinkClosed)
	}

	now := r.now()
	if !r.lastAttempt.IsZero() && now.Sub(r.lastAttempt) < r.cfg.Interval {
		return false
	}
	r.lastAttempt = now
	r.attempts++

	for _, path := range r.candidates() {
		t, err := r.open(path)
		if err != nil {
			log.Debug().Err(err).Str("path", path).Int("attempt", r.attempts).Msg("serial open failed")
			continue
		}

		log.Info().
			Str("path", path).
			Int("attempts", r.attempts).
			Msg("serial link established")

		r.transport = t
		r.path = path
		r.attempts = 0
		r.failures = 0
		r.onChange(true)
		return true
	}

	if r.attempts%r.cfg.WarnEvery == 0 {
		log.Warn().
			Int("attempts", r.attempts).
			Str("last_path", r.path).
			Msg("no serial device found, still retrying")
	}
	return false
}

// Invalidate drops the current transport after an I/O failure
func (r *Reconnector) Invalidate(cause error) {
	if r.transport != nil {
		if err := r.transport.Close(); err != nil {
			log.Debug().Err(err).Msg("closing failed serial transport")
		}
		r.transport = nil
	}
	r.failures++

	log.Warn().
		Err(cause).
		Str("path", r.path).
		Int("failures", r.failures).
		Msg("serial link lost")
	r.onChange(false)
}

// candidates picks the paths to try this attempt. Enumeration runs on the
// very first attempt and every RescanEvery-th attempt; in between only the
// last path that opened, else the last enumerated matches, else the
// fallback list is tried.
func (r *Reconnector) candidates() []string {
	rescan := r.attempts%r.cfg.RescanEvery == 0 || (r.path == "" && r.attempts == 1)
	if !rescan {
		if r.path != "" {
			return []string{r.path}
		}
		if len(r.found) > 0 {
			return r.found
		}
		return r.cfg.FallbackPaths
	}

	var found []string
	if r.finder != nil {
		var err error
		found, err = r.finder.FindPorts()
		if err != nil {
			log.Debug().Err(err).Msg("serial port enumeration failed")
		}
	}
	r.found = found
	if len(found) == 0 {
		return r.cfg.FallbackPaths
	}
	return found
}

// Close releases the transport at shutdown
func (r *Reconnector) Close() error {
	if r.transport == nil {
		return nil
	}
	err := r.transport.Close()
	r.transport = nil
	return err
}
