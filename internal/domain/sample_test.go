package domain

import (
	"math"
	"testing"
	"time"
)

func TestNewSample(t *testing.T) {
	at := time.Unix(1700000000, 500_000_000)

	tests := []struct {
		name    string
		value   float64
		wantErr bool
	}{
		{name: "valid voltage", value: 0.42},
		{name: "negative differential voltage is valid", value: -1.2},
		{name: "serial raw value", value: 512.3},
		{name: "NaN is invalid", value: math.NaN(), wantErr: true},
		{name: "Inf is invalid", value: math.Inf(1), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := NewSample(at, tt.value)
			if tt.wantErr {
				if err != ErrInvalidSample {
					t.Errorf("expected ErrInvalidSample, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if s.Value != tt.value {
				t.Errorf("expected value %v, got %v", tt.value, s.Value)
			}
			if s.Timestamp != 1700000000.5 {
				t.Errorf("expected timestamp 1700000000.5, got %v", s.Timestamp)
			}
		})
	}
}

func TestUnixSecondsRoundTrip(t *testing.T) {
	at := time.Unix(1700000123, 250_000_000)
	got := FromUnixSeconds(UnixSeconds(at))
	if d := got.Sub(at); d > time.Microsecond || d < -time.Microsecond {
		t.Errorf("round trip drifted by %v", d)
	}
}

func TestParseLightName(t *testing.T) {
	tests := []struct {
		in      string
		want    LightName
		wantErr bool
	}{
		{in: "ring", want: RingLight},
		{in: "ring_light", want: RingLight},
		{in: "exposure", want: ExposureLight},
		{in: "exposure_light", want: ExposureLight},
		{in: "uv", wantErr: true},
	}

	for _, tt := range tests {
		got, err := ParseLightName(tt.in)
		if tt.wantErr {
			if err != ErrUnknownLight {
				t.Errorf("ParseLightName(%q): expected ErrUnknownLight, got %v", tt.in, err)
			}
			continue
		}
		if got != tt.want {
			t.Errorf("ParseLightName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestLightName_ClientControlled(t *testing.T) {
	if RingLight.ClientControlled() {
		t.Error("ring light is switched by capture only")
	}
	if !ExposureLight.ClientControlled() {
		t.Error("exposure light must accept requests")
	}
}
