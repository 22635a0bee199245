package audio

import "github.com/petems/eqcoach/internal/model"

// Source opens microphone capture streams.
type Source interface {
	// MinBufferSize reports the smallest device buffer, in bytes, that can
	// sustain f.
	MinBufferSize(f model.AudioFormat) (int, error)
	// Open prepares a stream with at least bufferBytes of device buffering.
	Open(f model.AudioFormat, bufferBytes int) (Stream, error)
}

// Stream delivers interleaved little-endian PCM.
type Stream interface {
	Start() error
	// Read blocks until a chunk is available and copies it into p.
	Read(p []byte) (int, error)
	Stop() error
	Close() error
}

// AudioDevice represents an audio input device
type AudioDevice struct {
	ID      string
	Name    string
	Default bool
}
