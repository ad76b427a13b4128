package mock

import "sync"

// Output is a DigitalOutput with no pin behind it; it remembers the last
// level so tests and mock mode can observe it
type Output struct {
	mu     sync.Mutex
	on     bool
	sets   int
	closed bool
	err    error
}

// NewOutput creates an output that starts off
func NewOutput() *Output {
	return &Output{}
}

// Set records the level, or fails with the injected error
func (o *Output) Set(on bool) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.err != nil {
		return o.err
	}
	o.on = on
	o.sets++
	return nil
}

// IsOn reports the last level set
func (o *Output) IsOn() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.on
}

// Sets counts successful Set calls
func (o *Output) Sets() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.sets
}

// FailWith makes every later Set return err; nil restores normal behaviour
func (o *Output) FailWith(err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.err = err
}

// Closed reports whether Close was called
func (o *Output) Closed() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.closed
}

// Close turns the output off
func (o *Output) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.on = false
	o.closed = true
	return nil
}
