package capture

import (
	"context"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"github.com/petems/eqcoach/internal/inference"
	"github.com/petems/eqcoach/internal/model"
	"github.com/petems/eqcoach/internal/wav"
)

type fakeCamera struct {
	mu       sync.Mutex
	present  bool
	startErr error
	frame    []byte
	frameErr error
	starts   int
	stops    int
}

func (c *fakeCamera) HasFrontCamera() bool { return c.present }

func (c *fakeCamera) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.starts++
	return c.startErr
}

func (c *fakeCamera) CaptureFrame(context.Context) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.frame, c.frameErr
}

func (c *fakeCamera) Stop() {
	c.mu.Lock()
	c.stops++
	c.mu.Unlock()
}

type fakeAudio struct {
	startErr error
	snapshot []byte
	starts   int
	stops    int
}

func (a *fakeAudio) Start() error {
	a.starts++
	return a.startErr
}

func (a *fakeAudio) LatestSnapshot() []byte { return a.snapshot }

func (a *fakeAudio) Stop() { a.stops++ }

type fakeAnalyzer struct {
	result  *model.InferenceResult
	err     error
	calls   int
	cancels int
}

func (f *fakeAnalyzer) Analyze(context.Context, []byte, []byte) (*model.InferenceResult, error) {
	f.calls++
	return f.result, f.err
}

func (f *fakeAnalyzer) CancelInflight() { f.cancels++ }

func newTestOrchestrator(cam *fakeCamera, aud *fakeAudio, an Analyzer) *Orchestrator {
	return New(Config{Camera: cam, Audio: aud, Analyzer: an, Logger: zerolog.Nop()})
}

func TestStartCaptureFailures(t *testing.T) {
	tests := []struct {
		name       string
		cam        *fakeCamera
		aud        *fakeAudio
		want       model.CaptureErrorKind
		cameraStop bool
	}{
		{
			name: "no camera",
			cam:  &fakeCamera{present: false},
			aud:  &fakeAudio{},
			want: model.NoCamera,
		},
		{
			name: "camera start fails",
			cam:  &fakeCamera{present: true, startErr: errors.New("busy")},
			aud:  &fakeAudio{},
			want: model.CameraInitFailed,
		},
		{
			name: "camera reports typed error",
			cam:  &fakeCamera{present: true, startErr: &model.CaptureError{Kind: model.NoCamera}},
			aud:  &fakeAudio{},
			want: model.NoCamera,
		},
		{
			name:       "microphone fails",
			cam:        &fakeCamera{present: true},
			aud:        &fakeAudio{startErr: &model.CaptureError{Kind: model.DeviceUnavailable}},
			want:       model.MicrophoneUnavailable,
			cameraStop: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := newTestOrchestrator(tt.cam, tt.aud, &fakeAnalyzer{})
			err := o.StartCapture()

			var ce *model.CaptureError
			if !errors.As(err, &ce) || ce.Kind != tt.want {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
			if o.StartError() != err {
				t.Fatal("start failure should be stored")
			}
			if tt.cameraStop && tt.cam.stops != 1 {
				t.Fatalf("camera should be stopped after mic failure, stops=%d", tt.cam.stops)
			}

			res, err := o.CurrentResult(context.Background())
			if res != nil || err != nil {
				t.Fatal("inactive orchestrator should return no result")
			}
		})
	}
}

func TestMicrophoneFailureWrapsCause(t *testing.T) {
	cause := &model.CaptureError{Kind: model.InitFailed}
	o := newTestOrchestrator(&fakeCamera{present: true}, &fakeAudio{startErr: cause}, &fakeAnalyzer{})

	err := o.StartCapture()
	if !errors.Is(err, cause) {
		t.Fatalf("expected cause in chain, got %v", err)
	}
}

func TestStartCaptureClearsErrorAndIsIdempotent(t *testing.T) {
	cam := &fakeCamera{present: false}
	aud := &fakeAudio{}
	o := newTestOrchestrator(cam, aud, &fakeAnalyzer{})

	if err := o.StartCapture(); err == nil {
		t.Fatal("expected failure without camera")
	}

	cam.present = true
	if err := o.StartCapture(); err != nil {
		t.Fatalf("StartCapture: %v", err)
	}
	if o.StartError() != nil {
		t.Fatal("start error should be cleared")
	}
	if err := o.StartCapture(); err != nil {
		t.Fatalf("second StartCapture: %v", err)
	}
	if cam.starts != 1 || aud.starts != 1 {
		t.Fatalf("devices started more than once: camera=%d audio=%d", cam.starts, aud.starts)
	}
}

func TestCurrentResultMissingInput(t *testing.T) {
	audio := wav.Encode(pcm16(100, -100), 16000, 1, 16)
	tests := []struct {
		name  string
		frame []byte
		audio []byte
	}{
		{"no frame", nil, audio},
		{"no audio", []byte("jpeg"), nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			an := &fakeAnalyzer{result: &model.InferenceResult{Verdict: model.Green}}
			o := newTestOrchestrator(&fakeCamera{present: true, frame: tt.frame}, &fakeAudio{snapshot: tt.audio}, an)
			if err := o.StartCapture(); err != nil {
				t.Fatalf("StartCapture: %v", err)
			}

			res, err := o.CurrentResult(context.Background())
			if res != nil || err != nil {
				t.Fatalf("expected nil, nil, got %v, %v", res, err)
			}
			if an.calls != 0 {
				t.Fatal("analyzer should not be called with missing input")
			}
			if string(o.LastFrame()) != string(tt.frame) {
				t.Fatal("frame should be published even when analysis is skipped")
			}
		})
	}
}

func TestMissingInputClearsLastResult(t *testing.T) {
	cam := &fakeCamera{present: true, frame: []byte("f")}
	an := &fakeAnalyzer{result: &model.InferenceResult{Verdict: model.Red}}
	o := newTestOrchestrator(cam, &fakeAudio{snapshot: wav.Encode(pcm16(1), 16000, 1, 16)}, an)
	if err := o.StartCapture(); err != nil {
		t.Fatalf("StartCapture: %v", err)
	}

	if res, err := o.CurrentResult(context.Background()); err != nil || res == nil {
		t.Fatalf("expected a result, got %v, %v", res, err)
	}
	if o.LastResult() == nil {
		t.Fatal("expected last result to be recorded")
	}

	cam.mu.Lock()
	cam.frame = nil
	cam.mu.Unlock()

	if res, err := o.CurrentResult(context.Background()); res != nil || err != nil {
		t.Fatalf("expected nil, nil, got %v, %v", res, err)
	}
	if o.LastResult() != nil {
		t.Fatalf("expected last result cleared, got %+v", o.LastResult())
	}
	if o.LastFrame() != nil {
		t.Fatal("expected last frame cleared")
	}
}

func TestCurrentResultPropagatesErrors(t *testing.T) {
	serverErr := &model.ServerError{Kind: model.HTTPStatus, Status: 503}
	an := &fakeAnalyzer{err: serverErr}
	audio := wav.Encode(pcm16(1), 16000, 1, 16)
	o := newTestOrchestrator(&fakeCamera{present: true, frame: []byte("f")}, &fakeAudio{snapshot: audio}, an)
	if err := o.StartCapture(); err != nil {
		t.Fatalf("StartCapture: %v", err)
	}

	_, err := o.CurrentResult(context.Background())
	if !errors.Is(err, serverErr) {
		t.Fatalf("expected server error, got %v", err)
	}
	if o.LastResult() != nil {
		t.Fatal("failed analysis should not set a result")
	}
}

func TestStopCaptureClearsObservables(t *testing.T) {
	cam := &fakeCamera{present: true, frame: []byte("f")}
	aud := &fakeAudio{snapshot: wav.Encode(pcm16(16384), 16000, 1, 16)}
	an := &fakeAnalyzer{result: &model.InferenceResult{Verdict: model.Yellow}}
	o := newTestOrchestrator(cam, aud, an)

	// Stop while idle is harmless.
	o.StopCapture()

	if err := o.StartCapture(); err != nil {
		t.Fatalf("StartCapture: %v", err)
	}
	if _, err := o.CurrentResult(context.Background()); err != nil {
		t.Fatalf("CurrentResult: %v", err)
	}
	if o.LastResult() == nil || o.AudioLevel() == 0 {
		t.Fatal("expected observables to be set")
	}

	o.StopCapture()
	if o.LastFrame() != nil || o.LastAudio() != nil || o.AudioLevel() != 0 || o.LastResult() != nil {
		t.Fatal("observables should be cleared on stop")
	}
	if an.cancels == 0 {
		t.Fatal("stop should cancel in-flight analysis")
	}
	if cam.stops != 2 || aud.stops != 2 {
		t.Fatalf("expected devices stopped on each stop, camera=%d audio=%d", cam.stops, aud.stops)
	}
}

func TestCurrentResultEndToEnd(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"verdict":"RED","debug":{"facial_emotions":{"angry":0.7},"facial_dominant":"angry","speech_emotions":{"ang":0.9},"speech_dominant":"ang","fused_score":0.82}}`))
	}))
	defer srv.Close()

	client := inference.New(inference.Config{BaseURL: srv.URL}, zerolog.Nop())
	defer client.Shutdown()

	frame := []byte{0xFF, 0xD8, 0xFF, 0xD9}
	audio := wav.Encode(pcm16(8192, -8192, 8192, -8192), 16000, 1, 16)
	o := newTestOrchestrator(&fakeCamera{present: true, frame: frame}, &fakeAudio{snapshot: audio}, client)

	if err := o.StartCapture(); err != nil {
		t.Fatalf("StartCapture: %v", err)
	}
	defer o.StopCapture()

	res, err := o.CurrentResult(context.Background())
	if err != nil {
		t.Fatalf("CurrentResult: %v", err)
	}
	if res.Verdict != model.Red {
		t.Fatalf("expected RED, got %v", res.Verdict)
	}
	if res.Debug == nil || res.Debug.FusedScore != 0.82 {
		t.Fatalf("expected fused_score 0.82, got %+v", res.Debug)
	}
	if string(o.LastFrame()) != string(frame) {
		t.Fatal("last frame not updated")
	}
	if math.Abs(o.AudioLevel()-0.25) > 1e-9 {
		t.Fatalf("expected level 0.25, got %v", o.AudioLevel())
	}
	if o.LastResult() != res {
		t.Fatal("last result not updated")
	}
}

func TestStubService(t *testing.T) {
	var s Service = Stub{}
	if err := s.StartCapture(); err != nil {
		t.Fatalf("StartCapture: %v", err)
	}
	res, err := s.CurrentResult(context.Background())
	if res != nil || err != nil {
		t.Fatal("stub should return no result")
	}
	s.StopCapture()
}
