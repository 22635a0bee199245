package model

import "fmt"

// CaptureErrorKind classifies a hardware start failure.
type CaptureErrorKind int

const (
	DeviceUnavailable CaptureErrorKind = iota
	InitFailed
	NoCamera
	CameraInitFailed
	MicrophoneUnavailable
)

func (k CaptureErrorKind) String() string {
	switch k {
	case DeviceUnavailable:
		return "device unavailable"
	case InitFailed:
		return "init failed"
	case NoCamera:
		return "no front-facing camera available"
	case CameraInitFailed:
		return "camera start failed"
	case MicrophoneUnavailable:
		return "microphone unavailable"
	default:
		return "capture error"
	}
}

// CaptureError is returned when a capture device cannot be started.
type CaptureError struct {
	Kind CaptureErrorKind
	Err  error
}

func (e *CaptureError) Error() string {
	if e.Err == nil {
		return e.Kind.String()
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *CaptureError) Unwrap() error { return e.Err }

// ServerErrorKind classifies an analyze failure.
type ServerErrorKind int

const (
	ConnectionFailed ServerErrorKind = iota
	HTTPStatus
	EmptyBody
	InvalidResponse
)

// ServerError is returned by the inference client for any failed round trip.
type ServerError struct {
	Kind   ServerErrorKind
	Status int
	Detail string
	Err    error
}

func (e *ServerError) Error() string {
	switch e.Kind {
	case ConnectionFailed:
		return "Connection failed: " + e.Detail
	case HTTPStatus:
		return fmt.Sprintf("Server error: %d", e.Status)
	case EmptyBody:
		return "Empty response body"
	case InvalidResponse:
		return "Invalid response: " + e.Detail
	default:
		return "server error"
	}
}

func (e *ServerError) Unwrap() error { return e.Err }
