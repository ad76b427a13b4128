package mock

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"os"
	"sync"
)

// Camera writes a small synthetic JPEG so the capture workflow can run
// without a camera module
type Camera struct {
	mu       sync.Mutex
	captures int
	err      error
}

// NewCamera creates a mock camera
func NewCamera() *Camera {
	return &Camera{}
}

// Capture draws a yellow blob on a dark background and writes it to path
func (c *Camera) Capture(ctx context.Context, path string) error {
	c.mu.Lock()
	c.captures++
	err := c.err
	c.mu.Unlock()

	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	const w, h = 160, 120
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			dx, dy := x-w/2, y-h/2
			if dx*dx+dy*dy < 30*30 {
				img.Set(x, y, color.RGBA{R: 230, G: 200, B: 40, A: 255})
			} else {
				img.Set(x, y, color.RGBA{R: 20, G: 20, B: 25, A: 255})
			}
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := jpeg.Encode(f, img, &jpeg.Options{Quality: 80}); err != nil {
		f.Close()
		return fmt.Errorf("encode jpeg: %w", err)
	}
	return f.Close()
}

// Captures counts Capture calls
func (c *Camera) Captures() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.captures
}

// FailWith makes every later Capture return err
func (c *Camera) FailWith(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.err = err
}

// Close is a no-op
func (c *Camera) Close() error {
	return nil
}
