package capture

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/petems/eqcoach/internal/wav"
)

func pcm16(samples ...int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}

func TestLevel(t *testing.T) {
	tests := []struct {
		name      string
		container []byte
		want      float64
	}{
		{"nil", nil, 0},
		{"header only", wav.Encode(nil, 16000, 1, 16), 0},
		{"silence", wav.Encode(pcm16(0, 0, 0, 0), 16000, 1, 16), 0},
		{"full scale negative", wav.Encode(pcm16(-32768, -32768), 16000, 1, 16), 1},
		{"half scale square", wav.Encode(pcm16(16384, -16384), 16000, 1, 16), 0.5},
		{"mixed", wav.Encode(pcm16(16384, 0), 16000, 1, 16), math.Sqrt(0.125)},
		{"odd trailing byte ignored", append(wav.Encode(pcm16(16384), 16000, 1, 16), 0x7F), 0.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Level(tt.container)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Fatalf("expected %v, got %v", tt.want, got)
			}
		})
	}
}
