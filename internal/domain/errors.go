package domain

import "errors"

var (
	// ErrInvalidSample indicates a voltage value is not a finite number
	ErrInvalidSample = errors.New("sample value must be a finite number")

	// ErrInvalidCapacity indicates a history buffer was sized below one
	ErrInvalidCapacity = errors.New("history capacity must be at least 1")

	// ErrTransientRead indicates a sensor hiccup; the caller should skip this cycle
	ErrTransientRead = errors.New("transient sensor read failure")

	// ErrInvalidLightRequest indicates a malformed light control request
	ErrInvalidLightRequest = errors.New("invalid light request")

	// ErrUnknownLight indicates the named light is not configured
	ErrUnknownLight = errors.New("unknown light")

	// ErrDeviceUnavailable indicates the hardware behind an operation is missing
	ErrDeviceUnavailable = errors.New("device not available")

	// ErrCameraUnavailable indicates no camera was configured or found
	ErrCameraUnavailable = errors.New("camera not available")

	// ErrCaptureInProgress indicates another capture holds the camera
	ErrCaptureInProgress = errors.New("image capture already in progress")

	// ErrEventNotFound indicates requested journal event doesn't exist
	ErrEventNotFound = errors.New("event not found")
)
