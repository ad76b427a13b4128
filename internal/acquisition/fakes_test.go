package acquisition

import (
	"context"
	"errors"
	"time"

	"github.com/chootka/sLLM/internal/domain"
	"github.com/chootka/sLLM/internal/ports"
)

var errUnplugged = errors.New("read /dev/ttyACM0: input/output error")

// fakeTransport replays queued lines; readErr fails every call once set
type fakeTransport struct {
	lines    []string
	readErr  error
	closed   bool
	closeCnt int
}

func (f *fakeTransport) BytesAvailable() (int, error) {
	if f.readErr != nil {
		return 0, f.readErr
	}
	n := 0
	for _, l := range f.lines {
		n += len(l) + 1
	}
	return n, nil
}

func (f *fakeTransport) ReadLine() (string, error) {
	if f.readErr != nil {
		return "", f.readErr
	}
	if len(f.lines) == 0 {
		return "", nil
	}
	line := f.lines[0]
	f.lines = f.lines[1:]
	return line, nil
}

func (f *fakeTransport) IsOpen() bool { return !f.closed }

func (f *fakeTransport) Close() error {
	f.closed = true
	f.closeCnt++
	return nil
}

type fakeFinder struct {
	ports []string
	scans int
}

func (f *fakeFinder) FindPorts() ([]string, error) {
	f.scans++
	return f.ports, nil
}

// failingOpener fails the first n opens, then hands out transport
type failingOpener struct {
	failFirst int
	calls     int
	paths     []string
	transport *fakeTransport
}

func (o *failingOpener) open(path string) (ports.SerialTransport, error) {
	o.calls++
	o.paths = append(o.paths, path)
	if o.calls <= o.failFirst {
		return nil, errors.New("no such file or directory")
	}
	return o.transport, nil
}

// fakeClock advances only when told to
type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time { return c.t }

func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

type fakeVoltage struct {
	values []float64
	err    error
	closed bool
}

func (f *fakeVoltage) ReadVoltage(ctx context.Context) (float64, error) {
	if f.err != nil {
		return 0, f.err
	}
	v := f.values[0]
	f.values = f.values[1:]
	return v, nil
}

func (f *fakeVoltage) Close() error {
	f.closed = true
	return nil
}

type envResult struct {
	temp, hum float64
	err       error
}

type fakeEnvSensor struct {
	results []envResult
}

func (f *fakeEnvSensor) Read(ctx context.Context) (float64, float64, error) {
	r := f.results[0]
	f.results = f.results[1:]
	return r.temp, r.hum, r.err
}

func (f *fakeEnvSensor) Close() error { return nil }

func newState() *domain.SharedState {
	st, err := domain.NewSharedState(domain.DefaultHistoryCapacity, map[domain.LightName]domain.LightState{
		domain.ExposureLight: {Pin: "GPIO27"},
	})
	if err != nil {
		panic(err)
	}
	return st
}
