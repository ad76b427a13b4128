package capture

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/chootka/sLLM/internal/domain"
	"github.com/chootka/sLLM/internal/ports"
)

// EventImageCaptured is broadcast after every successful capture
const EventImageCaptured = "image_captured"

// Switcher drives the ring light; the interlock implements it
type Switcher interface {
	Switch(ctx context.Context, name domain.LightName, on bool, source string) error
}

// Config controls the capture workflow
type Config struct {
	Dir      string        // where images are written
	Settle   time.Duration // after the ring light comes on
	Warmup   time.Duration // before the first capture only
	Interval time.Duration // periodic capture, 0 disables
}

// DefaultConfig returns the 0.5 s settle, 2 s warmup, 5 min cadence
func DefaultConfig() Config {
	return Config{
		Dir:      filepath.Join(os.TempDir(), "slime-images"),
		Settle:   500 * time.Millisecond,
		Warmup:   2 * time.Second,
		Interval: 5 * time.Minute,
	}
}

// Image is one captured file
type Image struct {
	Path      string
	Filename  string
	Timestamp time.Time
}

// ImageCaptured is the image_captured payload
type ImageCaptured struct {
	Filename  string  `json:"filename"`
	Timestamp float64 `json:"timestamp"`
	Source    string  `json:"source"`
}

// Capturer runs the ring light + camera sequence. One capture at a time;
// a concurrent request fails fast instead of queueing behind the camera.
type Capturer struct {
	mu     sync.Mutex
	cfg    Config
	camera ports.Camera
	lights Switcher

	broadcaster ports.Broadcaster
	recorder    ports.EventRecorder

	warmed bool
	now    func() time.Time
	sleep  func(ctx context.Context, d time.Duration) bool
}

// New creates a capturer. camera may be nil, in which case every capture
// fails with domain.ErrCameraUnavailable.
func New(cfg Config, camera ports.Camera, lights Switcher, broadcaster ports.Broadcaster, recorder ports.EventRecorder) *Capturer {
	return &Capturer{
		cfg:         cfg,
		camera:      camera,
		lights:      lights,
		broadcaster: broadcaster,
		recorder:    recorder,
		now:         time.Now,
		sleep:       sleep,
	}
}

// Available reports whether a camera is attached
func (c *Capturer) Available() bool {
	return c.camera != nil
}

// Config returns the workflow settings
func (c *Capturer) Config() Config {
	return c.cfg
}

// Capture lights the habitat, takes one still and turns the ring light
// off again on every path out
func (c *Capturer) Capture(ctx context.Context, source string) (Image, error) {
	if c.camera == nil {
		return Image{}, domain.ErrCameraUnavailable
	}
	if !c.mu.TryLock() {
		return Image{}, domain.ErrCaptureInProgress
	}
	defer c.mu.Unlock()

	if err := os.MkdirAll(c.cfg.Dir, 0o755); err != nil {
		return Image{}, fmt.Errorf("create image dir: %w", err)
	}

	c.ring(ctx, true)
	defer c.ring(context.Background(), false)

	if !c.sleep(ctx, c.cfg.Settle) {
		return Image{}, ctx.Err()
	}
	if !c.warmed {
		if !c.sleep(ctx, c.cfg.Warmup) {
			return Image{}, ctx.Err()
		}
		c.warmed = true
	}

	at := c.now()
	img := Image{
		Filename:  "slime_" + at.Format("20060102_150405") + ".jpg",
		Timestamp: at,
	}
	img.Path = filepath.Join(c.cfg.Dir, img.Filename)

	if err := c.camera.Capture(ctx, img.Path); err != nil {
		return Image{}, fmt.Errorf("capture %s: %w", img.Filename, err)
	}

	log.Info().
		Str("file", img.Path).
		Str("source", source).
		Msg("image captured")

	if c.recorder != nil {
		c.recorder.Record(domain.NewCaptureEvent(img.Filename))
	}
	if c.broadcaster != nil {
		payload := ImageCaptured{
			Filename:  img.Filename,
			Timestamp: domain.UnixSeconds(at),
			Source:    source,
		}
		if err := c.broadcaster.Publish(EventImageCaptured, payload); err != nil {
			log.Warn().Err(err).Msg("failed to broadcast capture")
		}
	}
	return img, nil
}

// ring failures are logged; a capture without the ring light is still
// worth having
func (c *Capturer) ring(ctx context.Context, on bool) {
	if c.lights == nil {
		return
	}
	if err := c.lights.Switch(ctx, domain.RingLight, on, "capture"); err != nil {
		log.Warn().Err(err).Bool("on", on).Msg("failed to switch ring light")
	}
}

// Run captures every Interval until ctx is cancelled
// This runs in a goroutine for the life of the process
func (c *Capturer) Run(ctx context.Context) {
	if c.cfg.Interval <= 0 || c.camera == nil {
		return
	}
	log.Info().Dur("interval", c.cfg.Interval).Msg("starting periodic image capture")

	ticker := time.NewTicker(c.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			_, err := c.Capture(ctx, "schedule")
			switch {
			case err == nil:
			case errors.Is(err, domain.ErrCaptureInProgress):
				log.Debug().Msg("skipping scheduled capture, camera busy")
			case ctx.Err() != nil:
			default:
				log.Error().Err(err).Msg("scheduled capture failed")
			}
		case <-ctx.Done():
			log.Info().Msg("stopping periodic image capture")
			return
		}
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
