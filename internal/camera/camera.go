package camera

import "errors"

var (
	// ErrNoCamera is returned by Backend.FrontSensor when no front-facing
	// sensor exists.
	ErrNoCamera = errors.New("no front-facing camera")
	// ErrClosed is returned by a Device used after Close.
	ErrClosed = errors.New("camera closed")
)

// Sensor identifies a camera and its mounting orientation in degrees.
type Sensor struct {
	ID          string
	Orientation int
}

// Size is the requested still resolution.
type Size struct {
	Width  int
	Height int
}

// Callbacks receive asynchronous device events. Backends may invoke them
// from any goroutine.
type Callbacks struct {
	OnConfigured   func()
	OnError        func(err error)
	OnDisconnected func()
	OnImage        func(jpeg []byte)
}

// Device is an open camera with a configured capture session.
type Device interface {
	// Capture requests one still; it is delivered through OnImage.
	Capture() error
	// Close releases the session, the device, the image target and the
	// keep-alive target, in that order.
	Close() error
}

// Backend is the hardware seam for camera access.
type Backend interface {
	FrontSensor() (Sensor, error)
	// Open starts opening sensor and returns immediately. Progress is
	// reported through cb.
	Open(sensor Sensor, size Size, cb Callbacks) (Device, error)
}

// State is the lifecycle state of a Session.
type State int32

const (
	Closed State = iota
	Opening
	Ready
	Error
)

func (s State) String() string {
	switch s {
	case Opening:
		return "opening"
	case Ready:
		return "ready"
	case Error:
		return "error"
	default:
		return "closed"
	}
}
