package audio

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/petems/eqcoach/internal/model"
	"github.com/petems/eqcoach/internal/wav"
)

const (
	readChunkBytes = 1024
	joinTimeout    = 2 * time.Second
	readErrBackoff = 10 * time.Millisecond
)

// Recorder keeps the last few seconds of microphone audio in a ring
// buffer and hands out WAV snapshots of it.
type Recorder struct {
	src    Source
	format model.AudioFormat
	ring   *RingBuffer
	log    zerolog.Logger

	mu     sync.Mutex
	stream Stream
	stop   chan struct{}
	done   chan struct{}
}

// NewRecorder sizes the ring for seconds of audio in format.
func NewRecorder(src Source, format model.AudioFormat, seconds int, log zerolog.Logger) *Recorder {
	if seconds <= 0 {
		seconds = 1
	}
	return &Recorder{
		src:    src,
		format: format,
		ring:   NewRingBuffer(seconds * format.ByteRate()),
		log:    log.With().Str("component", "audio").Logger(),
	}
}

// Start opens the microphone and begins filling the ring. Calling Start on
// a running recorder is a no-op; a recorder whose stream ended is reopened.
func (r *Recorder) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.stream != nil {
		if !r.endedLocked() {
			return nil
		}
		r.releaseLocked()
	}

	minSize, err := r.src.MinBufferSize(r.format)
	if err != nil {
		return &model.CaptureError{Kind: model.DeviceUnavailable, Err: err}
	}
	if minSize <= 0 {
		return &model.CaptureError{
			Kind: model.DeviceUnavailable,
			Err:  fmt.Errorf("invalid minimum buffer size %d", minSize),
		}
	}

	bufferBytes := max(minSize, r.ring.Cap())
	stream, err := r.src.Open(r.format, bufferBytes)
	if err != nil {
		return &model.CaptureError{Kind: model.InitFailed, Err: err}
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		return &model.CaptureError{Kind: model.InitFailed, Err: err}
	}

	r.stream = stream
	r.stop = make(chan struct{})
	r.done = make(chan struct{})
	go r.readLoop(stream, r.stop, r.done)

	r.log.Info().
		Int("sample_rate", r.format.SampleRate).
		Int("channels", r.format.Channels).
		Int("buffer_bytes", bufferBytes).
		Int("ring_bytes", r.ring.Cap()).
		Msg("Audio recording started")
	return nil
}

func (r *Recorder) readLoop(stream Stream, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	buf := make([]byte, readChunkBytes)
	for {
		select {
		case <-stop:
			return
		default:
		}

		n, err := stream.Read(buf)
		if n > 0 {
			r.ring.Write(buf[:n])
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				// Stale audio must not outlive the stream.
				r.ring.Reset()
				r.log.Warn().Msg("Audio stream ended")
				return
			}
			r.log.Debug().Err(err).Msg("Audio read error")
			time.Sleep(readErrBackoff)
		}
	}
}

// LatestSnapshot returns the buffered audio as a WAV container, or nil if
// nothing has been recorded yet.
func (r *Recorder) LatestSnapshot() []byte {
	pcm := r.ring.Snapshot()
	if pcm == nil {
		return nil
	}
	return wav.EncodeFormat(pcm, r.format)
}

// Active reports whether the read loop is running.
func (r *Recorder) Active() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stream != nil && !r.endedLocked()
}

// endedLocked reports whether the read loop exited on its own.
func (r *Recorder) endedLocked() bool {
	select {
	case <-r.done:
		return true
	default:
		return false
	}
}

func (r *Recorder) releaseLocked() {
	close(r.stop)
	select {
	case <-r.done:
	case <-time.After(joinTimeout):
		r.log.Warn().Dur("timeout", joinTimeout).Msg("Audio read loop did not exit in time")
	}

	if err := r.stream.Stop(); err != nil {
		r.log.Debug().Err(err).Msg("Audio stream stop failed")
	}
	if err := r.stream.Close(); err != nil {
		r.log.Debug().Err(err).Msg("Audio stream close failed")
	}
	r.stream = nil
}

// Stop ends recording, releases the microphone and clears the ring. Safe to
// call when not started.
func (r *Recorder) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.stream != nil {
		r.releaseLocked()
		r.log.Info().Msg("Audio recording stopped")
	}

	r.ring.Reset()
}
