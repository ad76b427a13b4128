package domain

import "sync"

// Sensors describes which acquisition subsystems came up at startup
type Sensors struct {
	Electrical          bool
	ElectricalSource    string // "analog" | "serial" | "simulated"
	TemperatureHumidity bool
	EnvironmentSource   string // "sht31" | "bme280" | "dht22" | "dht11" | "simulated"
	Camera              bool
	MockMode            bool
}

// Snapshot is a consistent copy of the current values
type Snapshot struct {
	Sample         Sample
	HasSample      bool
	Environment    EnvironmentReading
	HasEnvironment bool
	Lights         map[LightName]LightState
}

// Status is the aggregate served to the status endpoints
type Status struct {
	Snapshot
	ReadingsCount   int
	HistoryCapacity int
	TotalSamples    uint64
	SerialConnected bool
	Sensors         Sensors
}

// SharedState is the single point of truth for current values. Every
// method takes the one lock for a pure memory operation; callers finish any
// hardware I/O before calling in.
type SharedState struct {
	mu sync.Mutex

	current   Sample
	history   *Series
	published uint64

	env    EnvironmentReading
	hasEnv bool

	lights map[LightName]LightState

	sensors         Sensors
	serialConnected bool
}

// NewSharedState creates the state with an empty history of the given
// capacity and every light registered in the off state
func NewSharedState(capacity int, lights map[LightName]LightState) (*SharedState, error) {
	history, err := NewSeries(capacity)
	if err != nil {
		return nil, err
	}

	registered := make(map[LightName]LightState, len(lights))
	for name, st := range lights {
		registered[name] = st
	}

	return &SharedState{
		history: history,
		lights:  registered,
	}, nil
}

// PublishSample appends to history and makes s the current sample in one
// critical section
func (s *SharedState) PublishSample(sample Sample) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.history.Append(sample)
	s.current = sample
	s.published++
}

// CurrentSample returns the latest sample and whether one exists yet
func (s *SharedState) CurrentSample() (Sample, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current, !s.current.IsZero()
}

// History returns up to limit most recent samples, oldest first
func (s *SharedState) History(limit int) []Sample {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.history.Snapshot(limit)
}

// PublishEnvironment overwrites the current environment reading
func (s *SharedState) PublishEnvironment(reading EnvironmentReading) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.env = reading
	s.hasEnv = true
}

// Environment returns the latest reading and whether one exists yet
func (s *SharedState) Environment() (EnvironmentReading, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.env, s.hasEnv
}

// Light returns the last commanded state of the named light
func (s *SharedState) Light(name LightName) (LightState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.lights[name]
	if !ok {
		return LightState{}, ErrUnknownLight
	}
	return st, nil
}

// SetLight records the new state of a registered light
func (s *SharedState) SetLight(name LightName, st LightState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.lights[name]; !ok {
		return ErrUnknownLight
	}
	s.lights[name] = st
	return nil
}

// Lights returns a copy of every light state
func (s *SharedState) Lights() map[LightName]LightState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.copyLights()
}

// SetSensors records which subsystems are available
func (s *SharedState) SetSensors(sensors Sensors) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sensors = sensors
}

// SetSerialConnected records the serial link state for status reporting
func (s *SharedState) SetSerialConnected(connected bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.serialConnected = connected
}

// Snapshot copies sample, environment and lights under one lock
func (s *SharedState) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot()
}

// Status copies everything the status endpoints report
func (s *SharedState) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	return Status{
		Snapshot:        s.snapshot(),
		ReadingsCount:   s.history.Len(),
		HistoryCapacity: s.history.Cap(),
		TotalSamples:    s.published,
		SerialConnected: s.serialConnected,
		Sensors:         s.sensors,
	}
}

// snapshot must be called with mu held
func (s *SharedState) snapshot() Snapshot {
	return Snapshot{
		Sample:         s.current,
		HasSample:      !s.current.IsZero(),
		Environment:    s.env,
		HasEnvironment: s.hasEnv,
		Lights:         s.copyLights(),
	}
}

func (s *SharedState) copyLights() map[LightName]LightState {
	out := make(map[LightName]LightState, len(s.lights))
	for name, st := range s.lights {
		out[name] = st
	}
	return out
}
