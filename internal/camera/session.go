package camera

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/petems/eqcoach/internal/model"
)

const (
	eventQueueSize  = 8
	loopJoinTimeout = 2 * time.Second
)

// Config fixes the still geometry and the display rotation source.
type Config struct {
	Width  int
	Height int
	// DisplayRotation returns the current display rotation in degrees. Nil
	// means 0.
	DisplayRotation func() int
}

// pendingCapture is a single-shot delivery slot for one CaptureFrame call.
type pendingCapture struct {
	ch   chan []byte
	once sync.Once
}

func newPendingCapture() *pendingCapture {
	return &pendingCapture{ch: make(chan []byte, 1)}
}

// resolve delivers frame, or nil for "unavailable". Only the first call
// has any effect.
func (p *pendingCapture) resolve(frame []byte) {
	p.once.Do(func() {
		p.ch <- frame
	})
}

// Session owns at most one open camera and turns asynchronous device
// events into synchronous still captures.
type Session struct {
	backend Backend
	cfg     Config
	log     zerolog.Logger

	mu       sync.Mutex // serializes Start and Stop
	device   Device
	quit     chan struct{}
	loopDone chan struct{}

	// Written from the event loop, read anywhere.
	state   atomic.Int32
	lastErr atomic.Pointer[string]
	pending atomic.Pointer[pendingCapture]
}

// NewSession creates a closed session over backend.
func NewSession(backend Backend, cfg Config, log zerolog.Logger) *Session {
	return &Session{
		backend: backend,
		cfg:     cfg,
		log:     log.With().Str("component", "camera").Logger(),
	}
}

// HasFrontCamera reports whether the backend exposes a front sensor.
func (s *Session) HasFrontCamera() bool {
	_, err := s.backend.FrontSensor()
	return err == nil
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	return State(s.state.Load())
}

// LastError returns the message of the last asynchronous failure, or "".
func (s *Session) LastError() string {
	if p := s.lastErr.Load(); p != nil {
		return *p
	}
	return ""
}

// Start opens the front camera. It returns once the open is under way;
// the session becomes Ready when the backend reports configuration.
// Starting an open session is a no-op.
func (s *Session) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.device != nil {
		return nil
	}

	sensor, err := s.backend.FrontSensor()
	if err != nil {
		if errors.Is(err, ErrNoCamera) {
			return &model.CaptureError{Kind: model.NoCamera, Err: err}
		}
		return &model.CaptureError{Kind: model.CameraInitFailed, Err: err}
	}

	events := make(chan func(), eventQueueSize)
	quit := make(chan struct{})
	done := make(chan struct{})
	go runLoop(events, quit, done)

	s.lastErr.Store(nil)
	s.state.Store(int32(Opening))

	post := func(fn func()) {
		select {
		case events <- fn:
		case <-quit:
		}
	}
	cb := Callbacks{
		OnConfigured: func() {
			post(func() {
				if s.state.CompareAndSwap(int32(Opening), int32(Ready)) {
					s.log.Info().Str("sensor", sensor.ID).Msg("Camera ready")
				}
			})
		},
		OnError: func(err error) {
			post(func() { s.fail(err) })
		},
		OnDisconnected: func() {
			post(func() { s.fail(errors.New("camera disconnected")) })
		},
		OnImage: func(jpeg []byte) {
			post(func() { s.deliver(jpeg, sensor.Orientation) })
		},
	}

	device, err := s.backend.Open(sensor, Size{Width: s.cfg.Width, Height: s.cfg.Height}, cb)
	if err != nil {
		close(quit)
		<-done
		msg := err.Error()
		s.lastErr.Store(&msg)
		s.state.Store(int32(Error))
		return &model.CaptureError{Kind: model.CameraInitFailed, Err: err}
	}

	s.device = device
	s.quit = quit
	s.loopDone = done

	s.log.Info().
		Str("sensor", sensor.ID).
		Int("orientation", sensor.Orientation).
		Int("width", s.cfg.Width).
		Int("height", s.cfg.Height).
		Msg("Camera opening")
	return nil
}

func runLoop(events <-chan func(), quit <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	for {
		select {
		case <-quit:
			return
		case fn := <-events:
			fn()
		}
	}
}

// fail runs on the event loop.
func (s *Session) fail(err error) {
	for {
		cur := s.state.Load()
		if State(cur) == Closed {
			return
		}
		if s.state.CompareAndSwap(cur, int32(Error)) {
			break
		}
	}
	msg := err.Error()
	s.lastErr.Store(&msg)
	s.log.Error().Err(err).Msg("Camera failed")

	if p := s.pending.Swap(nil); p != nil {
		p.resolve(nil)
	}
}

// deliver runs on the event loop.
func (s *Session) deliver(frame []byte, orientation int) {
	p := s.pending.Swap(nil)
	if p == nil {
		s.log.Debug().Int("bytes", len(frame)).Msg("Dropping unrequested frame")
		return
	}
	p.resolve(s.correctRotation(frame, orientation))
}

func (s *Session) correctRotation(frame []byte, orientation int) []byte {
	display := 0
	if s.cfg.DisplayRotation != nil {
		display = s.cfg.DisplayRotation()
	}
	deg := rotationDegrees(orientation, display)
	if deg == 0 {
		return frame
	}

	rotated, err := rotateJPEG(frame, deg)
	if err != nil {
		s.log.Warn().Err(err).Int("degrees", deg).Msg("Frame rotation failed, using original")
		return frame
	}
	return rotated
}

// CaptureFrame requests one still and waits for it. It returns nil, nil
// when the camera is not Ready or the device goes away before delivery,
// and ctx.Err() if ctx ends first.
func (s *Session) CaptureFrame(ctx context.Context) ([]byte, error) {
	if s.State() != Ready {
		return nil, nil
	}

	s.mu.Lock()
	device := s.device
	s.mu.Unlock()
	if device == nil {
		return nil, nil
	}

	p := newPendingCapture()
	if old := s.pending.Swap(p); old != nil {
		old.resolve(nil)
	}

	if err := device.Capture(); err != nil {
		s.pending.CompareAndSwap(p, nil)
		s.log.Warn().Err(err).Msg("Still capture request failed")
		return nil, nil
	}

	select {
	case frame := <-p.ch:
		return frame, nil
	case <-ctx.Done():
		s.pending.CompareAndSwap(p, nil)
		return nil, ctx.Err()
	}
}

// Stop closes the camera and resolves any pending capture as unavailable.
// Safe to call repeatedly.
func (s *Session) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state.Store(int32(Closed))
	if p := s.pending.Swap(nil); p != nil {
		p.resolve(nil)
	}

	if s.device == nil {
		return
	}

	if err := s.device.Close(); err != nil {
		s.log.Warn().Err(err).Msg("Camera close reported errors")
	}
	s.device = nil

	close(s.quit)
	select {
	case <-s.loopDone:
	case <-time.After(loopJoinTimeout):
		s.log.Warn().Dur("timeout", loopJoinTimeout).Msg("Camera event loop did not exit in time")
	}
	s.quit = nil
	s.loopDone = nil

	s.log.Info().Msg("Camera closed")
}
