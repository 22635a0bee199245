package capture

import (
	"context"

	"github.com/petems/eqcoach/internal/model"
)

// Service is the capture surface the session loop drives.
type Service interface {
	// StartCapture opens the camera and microphone. The failure, if any,
	// is also kept for StartError.
	StartCapture() error
	StopCapture()
	// CurrentResult captures one frame and audio snapshot and analyzes
	// them. It returns nil, nil when either input is missing.
	CurrentResult(ctx context.Context) (*model.InferenceResult, error)

	LastFrame() []byte
	AudioLevel() float64
	StartError() error
}

// Stub is a Service that captures nothing.
type Stub struct{}

func (Stub) StartCapture() error { return nil }
func (Stub) StopCapture()        {}

func (Stub) CurrentResult(context.Context) (*model.InferenceResult, error) {
	return nil, nil
}

func (Stub) LastFrame() []byte   { return nil }
func (Stub) AudioLevel() float64 { return 0 }
func (Stub) StartError() error   { return nil }
