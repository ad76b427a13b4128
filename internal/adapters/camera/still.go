package camera

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/chootka/sLLM/internal/domain"
)

// Binaries are tried in order; rpicam-still replaced libcamera-still on
// Bookworm
var Binaries = []string{"rpicam-still", "libcamera-still"}

// Config sets the still resolution
type Config struct {
	Width   int
	Height  int
	Timeout time.Duration // upper bound for one capture
}

// DefaultConfig returns 1920x1080 with a 15 s capture bound
func DefaultConfig() Config {
	return Config{Width: 1920, Height: 1080, Timeout: 15 * time.Second}
}

// Still captures JPEGs by running the libcamera still app. It implements
// ports.Camera.
type Still struct {
	bin string
	cfg Config
	run func(ctx context.Context, name string, args ...string) ([]byte, error)
}

// Detect finds a still binary on PATH
func Detect(cfg Config) (*Still, error) {
	for _, name := range Binaries {
		if path, err := exec.LookPath(name); err == nil {
			return newStill(path, cfg), nil
		}
	}
	return nil, fmt.Errorf("%w: none of %s on PATH", domain.ErrCameraUnavailable, strings.Join(Binaries, ", "))
}

func newStill(bin string, cfg Config) *Still {
	def := DefaultConfig()
	if cfg.Width <= 0 || cfg.Height <= 0 {
		cfg.Width, cfg.Height = def.Width, def.Height
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	return &Still{bin: bin, cfg: cfg, run: runCommand}
}

// Capture writes one JPEG to path
func (s *Still) Capture(ctx context.Context, path string) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	out, err := s.run(ctx, s.bin, s.args(path)...)
	if err != nil {
		return fmt.Errorf("%s: %w: %s", s.bin, err, strings.TrimSpace(string(out)))
	}
	return nil
}

func (s *Still) args(path string) []string {
	return []string{
		"--nopreview",
		"--immediate",
		"--encoding", "jpg",
		"--width", strconv.Itoa(s.cfg.Width),
		"--height", strconv.Itoa(s.cfg.Height),
		"--output", path,
	}
}

// Close is a no-op; each capture runs its own process
func (s *Still) Close() error {
	return nil
}

func runCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	var out bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &out
	cmd.Stderr = &out
	err := cmd.Run()
	return out.Bytes(), err
}
