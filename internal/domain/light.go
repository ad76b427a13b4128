package domain

// LightName identifies one GPIO driven light
type LightName string

const (
	// RingLight illuminates the habitat while an image is captured
	RingLight LightName = "ring"

	// ExposureLight is the stimulus light governed by the interlock
	ExposureLight LightName = "exposure"
)

// ParseLightName maps a request path segment to a configured light
func ParseLightName(s string) (LightName, error) {
	switch LightName(s) {
	case RingLight, "ring_light":
		return RingLight, nil
	case ExposureLight, "exposure_light":
		return ExposureLight, nil
	}
	return "", ErrUnknownLight
}

// ClientControlled reports whether API requests may switch the light. The
// ring light belongs to the capture workflow.
func (n LightName) ClientControlled() bool {
	return n != RingLight
}

// LightState is the last commanded state of a light
type LightState struct {
	IsOn bool
	Pin  string // opaque pin identity, e.g. "GPIO27"
}

// Label returns "on" or "off"
func (s LightState) Label() string {
	if s.IsOn {
		return "on"
	}
	return "off"
}
