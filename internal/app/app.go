package app

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/petems/eqcoach/internal/capture"
	"github.com/petems/eqcoach/internal/model"
)

// DefaultInterval is the pause between polling ticks.
const DefaultInterval = 4 * time.Second

// Status is a snapshot of everything an observer can show.
type Status struct {
	State        model.SessionState     `json:"state"`
	Verdict      model.Verdict          `json:"verdict"`
	ErrorMessage string                 `json:"error_message,omitempty"`
	AudioLevel   float64                `json:"audio_level"`
	Result       *model.InferenceResult `json:"result,omitempty"`
	HasFrame     bool                   `json:"has_frame"`
	UpdatedAt    time.Time              `json:"updated_at"`
}

// StatusUpdater is notified after every status change (status API, MQTT).
type StatusUpdater interface {
	UpdateStatus(Status)
}

type Config struct {
	Capture        capture.Service
	Interval       time.Duration
	Logger         zerolog.Logger
	StatusUpdaters []StatusUpdater // Optional
}

// App runs the polling session over a capture service.
type App struct {
	capture  capture.Service
	interval time.Duration
	log      zerolog.Logger

	control sync.Mutex // serializes StartSession and StopSession

	mu        sync.Mutex
	updaters  []StatusUpdater
	state     model.SessionState
	verdict   model.Verdict
	errMsg    string
	result    *model.InferenceResult
	updatedAt time.Time
	cancel    context.CancelFunc
	done      chan struct{}
}

func New(cfg Config) *App {
	interval := cfg.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	svc := cfg.Capture
	if svc == nil {
		svc = capture.Stub{}
	}
	return &App{
		capture:   svc,
		interval:  interval,
		log:       cfg.Logger.With().Str("component", "session").Logger(),
		updaters:  append([]StatusUpdater(nil), cfg.StatusUpdaters...),
		verdict:   model.Neutral,
		updatedAt: time.Now(),
	}
}

// AddStatusUpdater registers an observer after construction, for
// observers that need the App themselves.
func (a *App) AddStatusUpdater(u StatusUpdater) {
	a.mu.Lock()
	a.updaters = append(a.updaters, u)
	a.mu.Unlock()
}

// StartSession starts capture and the polling loop. It is a no-op when a
// session is already active. A capture start failure is reported through
// the error message; the loop runs regardless.
func (a *App) StartSession() {
	a.control.Lock()
	defer a.control.Unlock()

	a.mu.Lock()
	if a.state == model.Active {
		a.mu.Unlock()
		return
	}
	a.state = model.Active
	a.verdict = model.Neutral
	a.result = nil
	a.touchLocked()
	a.mu.Unlock()

	a.log.Info().Dur("interval", a.interval).Msg("Starting session")
	a.notify()

	if err := a.capture.StartCapture(); err != nil {
		a.log.Error().Err(err).Msg("Capture failed to start")
		a.mu.Lock()
		a.errMsg = err.Error()
		a.touchLocked()
		a.mu.Unlock()
		a.notify()
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	a.mu.Lock()
	a.cancel = cancel
	a.done = done
	a.mu.Unlock()

	go a.poll(ctx, done)
}

func (a *App) poll(ctx context.Context, done chan<- struct{}) {
	defer close(done)

	for {
		a.tick(ctx)

		timer := time.NewTimer(a.interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			a.log.Debug().Msg("Polling loop cancelled")
			return
		case <-timer.C:
		}
	}
}

func (a *App) tick(ctx context.Context) {
	res, err := a.capture.CurrentResult(ctx)
	if ctx.Err() != nil {
		return
	}

	a.mu.Lock()
	var serverErr *model.ServerError
	switch {
	case err == nil && res != nil:
		a.verdict = res.Verdict
		a.result = res
	case err == nil:
		// Nothing was analyzed this tick.
		a.verdict = model.Neutral
		a.result = nil
	case errors.As(err, &serverErr):
		a.verdict = model.Neutral
		a.errMsg = serverErr.Error()
	default:
		a.mu.Unlock()
		a.log.Warn().Err(err).Msg("Polling error")
		return
	}
	a.touchLocked()
	verdict := a.verdict
	a.mu.Unlock()

	if serverErr != nil {
		a.log.Warn().Err(serverErr).Msg("Server error")
	} else if res != nil {
		ev := a.log.Debug().Stringer("verdict", verdict)
		if res.Debug != nil {
			ev = ev.Float64("fused_score", res.Debug.FusedScore)
		}
		ev.Msg("Verdict updated")
	}
	a.notify()
}

// StopSession cancels the loop, waits for it to exit, stops capture and
// resets the verdict. Safe when idle.
func (a *App) StopSession() {
	a.control.Lock()
	defer a.control.Unlock()

	a.mu.Lock()
	wasActive := a.state == model.Active
	cancel, done := a.cancel, a.done
	a.cancel, a.done = nil, nil
	a.mu.Unlock()

	if !wasActive && cancel == nil {
		return
	}

	if cancel != nil {
		cancel()
		<-done
	}
	a.capture.StopCapture()

	a.mu.Lock()
	a.verdict = model.Neutral
	a.state = model.Idle
	a.result = nil
	a.touchLocked()
	a.mu.Unlock()

	a.log.Info().Msg("Session stopped")
	a.notify()
}

// ClearError clears the surfaced error message.
func (a *App) ClearError() {
	a.mu.Lock()
	a.errMsg = ""
	a.touchLocked()
	a.mu.Unlock()
	a.notify()
}

// Status returns the current snapshot.
func (a *App) Status() Status {
	a.mu.Lock()
	s := Status{
		State:        a.state,
		Verdict:      a.verdict,
		ErrorMessage: a.errMsg,
		Result:       a.result,
		UpdatedAt:    a.updatedAt,
	}
	a.mu.Unlock()

	s.AudioLevel = a.capture.AudioLevel()
	s.HasFrame = a.capture.LastFrame() != nil
	return s
}

// LastFrame returns the most recent captured frame, or nil.
func (a *App) LastFrame() []byte {
	return a.capture.LastFrame()
}

func (a *App) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		a.StopSession()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (a *App) touchLocked() {
	a.updatedAt = time.Now()
}

func (a *App) notify() {
	a.mu.Lock()
	updaters := append([]StatusUpdater(nil), a.updaters...)
	a.mu.Unlock()
	if len(updaters) == 0 {
		return
	}

	s := a.Status()
	for _, u := range updaters {
		u.UpdateStatus(s)
	}
}
