package audio

import (
	"bytes"
	"testing"
)

func TestPutSamples(t *testing.T) {
	tests := []struct {
		name    string
		dstLen  int
		samples []int16
		want    []byte
	}{
		{
			name:    "little endian",
			dstLen:  6,
			samples: []int16{1, -1, 0x1234},
			want:    []byte{0x01, 0x00, 0xFF, 0xFF, 0x34, 0x12},
		},
		{
			name:    "destination shorter than samples",
			dstLen:  2,
			samples: []int16{0x0102, 0x0304},
			want:    []byte{0x02, 0x01},
		},
		{
			name:    "odd destination length",
			dstLen:  3,
			samples: []int16{-32768, 5},
			want:    []byte{0x00, 0x80},
		},
		{
			name:    "no samples",
			dstLen:  4,
			samples: nil,
			want:    []byte{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dst := make([]byte, tt.dstLen)
			n := putSamples(dst, tt.samples)
			if n != len(tt.want) {
				t.Fatalf("expected %d bytes, got %d", len(tt.want), n)
			}
			if !bytes.Equal(dst[:n], tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, dst[:n])
			}
		})
	}
}
