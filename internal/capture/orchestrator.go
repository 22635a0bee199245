package capture

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"

	"github.com/petems/eqcoach/internal/model"
)

// Camera is the frame source, satisfied by *camera.Session.
type Camera interface {
	HasFrontCamera() bool
	Start() error
	CaptureFrame(ctx context.Context) ([]byte, error)
	Stop()
}

// Audio is the audio source, satisfied by *audio.Recorder.
type Audio interface {
	Start() error
	LatestSnapshot() []byte
	Stop()
}

// Analyzer is the inference endpoint, satisfied by *inference.Client.
type Analyzer interface {
	Analyze(ctx context.Context, frame, audio []byte) (*model.InferenceResult, error)
	CancelInflight()
}

// Config wires an Orchestrator.
type Config struct {
	Camera   Camera
	Audio    Audio
	Analyzer Analyzer
	Logger   zerolog.Logger
}

// observed holds everything readers may look at between ticks.
type observed struct {
	mu       sync.Mutex
	active   bool
	frame    []byte
	audio    []byte
	level    float64
	result   *model.InferenceResult
	startErr error
}

// Orchestrator drives the camera, the recorder and the inference client
// as one capture session.
type Orchestrator struct {
	camera   Camera
	audio    Audio
	analyzer Analyzer
	log      zerolog.Logger

	lifecycle sync.Mutex
	obs       observed
}

var _ Service = (*Orchestrator)(nil)

// New returns an idle orchestrator.
func New(cfg Config) *Orchestrator {
	return &Orchestrator{
		camera:   cfg.Camera,
		audio:    cfg.Audio,
		analyzer: cfg.Analyzer,
		log:      cfg.Logger.With().Str("component", "capture").Logger(),
	}
}

func (o *Orchestrator) isActive() bool {
	o.obs.mu.Lock()
	defer o.obs.mu.Unlock()
	return o.obs.active
}

func (o *Orchestrator) setStartErr(err error) error {
	o.obs.mu.Lock()
	o.obs.startErr = err
	o.obs.mu.Unlock()
	if err != nil {
		o.log.Error().Err(err).Msg("Capture start failed")
	}
	return err
}

// StartCapture opens the camera and the microphone. It is a no-op when
// already active.
func (o *Orchestrator) StartCapture() error {
	o.lifecycle.Lock()
	defer o.lifecycle.Unlock()

	o.setStartErr(nil)
	if o.isActive() {
		return nil
	}

	if !o.camera.HasFrontCamera() {
		return o.setStartErr(&model.CaptureError{Kind: model.NoCamera})
	}

	if err := o.camera.Start(); err != nil {
		var ce *model.CaptureError
		if errors.As(err, &ce) {
			return o.setStartErr(ce)
		}
		return o.setStartErr(&model.CaptureError{Kind: model.CameraInitFailed, Err: err})
	}

	if err := o.audio.Start(); err != nil {
		o.camera.Stop()
		return o.setStartErr(&model.CaptureError{Kind: model.MicrophoneUnavailable, Err: err})
	}

	o.obs.mu.Lock()
	o.obs.active = true
	o.obs.mu.Unlock()

	o.log.Info().Msg("Capture started")
	return nil
}

// StopCapture cancels any analyze call, releases both devices and clears
// the observed values. Safe when idle.
func (o *Orchestrator) StopCapture() {
	o.lifecycle.Lock()
	defer o.lifecycle.Unlock()

	o.obs.mu.Lock()
	wasActive := o.obs.active
	o.obs.active = false
	o.obs.mu.Unlock()

	o.analyzer.CancelInflight()
	o.camera.Stop()
	o.audio.Stop()

	o.obs.mu.Lock()
	o.obs.frame = nil
	o.obs.audio = nil
	o.obs.level = 0
	o.obs.result = nil
	o.obs.mu.Unlock()

	if wasActive {
		o.log.Info().Msg("Capture stopped")
	}
}

// CurrentResult grabs a frame, then an audio snapshot, then asks the
// analyzer. Missing input yields nil, nil without a network call.
func (o *Orchestrator) CurrentResult(ctx context.Context) (*model.InferenceResult, error) {
	if !o.isActive() {
		return nil, nil
	}

	frame, err := o.camera.CaptureFrame(ctx)
	if err != nil {
		return nil, err
	}
	audio := o.audio.LatestSnapshot()
	level := Level(audio)

	o.obs.mu.Lock()
	if o.obs.active {
		o.obs.frame = frame
		o.obs.audio = audio
		o.obs.level = level
		if frame == nil || audio == nil {
			o.obs.result = nil
		}
	}
	o.obs.mu.Unlock()

	if frame == nil || audio == nil {
		o.log.Debug().
			Bool("frame", frame != nil).
			Bool("audio", audio != nil).
			Msg("Capture incomplete, skipping analysis")
		return nil, nil
	}

	result, err := o.analyzer.Analyze(ctx, frame, audio)
	if err != nil {
		return nil, err
	}

	o.obs.mu.Lock()
	if o.obs.active {
		o.obs.result = result
	}
	o.obs.mu.Unlock()
	return result, nil
}

// LastFrame returns the most recent frame, or nil.
func (o *Orchestrator) LastFrame() []byte {
	o.obs.mu.Lock()
	defer o.obs.mu.Unlock()
	return o.obs.frame
}

// LastAudio returns the most recent audio container, or nil.
func (o *Orchestrator) LastAudio() []byte {
	o.obs.mu.Lock()
	defer o.obs.mu.Unlock()
	return o.obs.audio
}

func (o *Orchestrator) AudioLevel() float64 {
	o.obs.mu.Lock()
	defer o.obs.mu.Unlock()
	return o.obs.level
}

// LastResult returns the most recent successful analysis, or nil.
func (o *Orchestrator) LastResult() *model.InferenceResult {
	o.obs.mu.Lock()
	defer o.obs.mu.Unlock()
	return o.obs.result
}

func (o *Orchestrator) StartError() error {
	o.obs.mu.Lock()
	defer o.obs.mu.Unlock()
	return o.obs.startErr
}
