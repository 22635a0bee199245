package wav

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/petems/eqcoach/internal/model"
)

func TestEncodeHeaderLayout(t *testing.T) {
	for _, n := range []int{0, 1, 2, 1000, 128000} {
		pcm := make([]byte, n)
		for i := range pcm {
			pcm[i] = byte(i * 7)
		}

		out := Encode(pcm, 16000, 1, 16)

		if len(out) != HeaderSize+n {
			t.Fatalf("len=%d: expected %d bytes, got %d", n, HeaderSize+n, len(out))
		}
		for off, tag := range map[int]string{0: "RIFF", 8: "WAVE", 12: "fmt ", 36: "data"} {
			if got := string(out[off : off+4]); got != tag {
				t.Errorf("len=%d: expected %q at %d, got %q", n, tag, off, got)
			}
		}
		if got := binary.LittleEndian.Uint32(out[4:8]); int(got) != len(out)-8 {
			t.Errorf("len=%d: riff size %d, expected %d", n, got, len(out)-8)
		}
		if got := binary.LittleEndian.Uint32(out[40:44]); int(got) != n {
			t.Errorf("len=%d: data size %d, expected %d", n, got, n)
		}
		if !bytes.Equal(out[HeaderSize:], pcm) {
			t.Errorf("len=%d: payload not copied verbatim", n)
		}
	}
}

func TestEncodeFormatFields(t *testing.T) {
	tests := []struct {
		name       string
		format     model.AudioFormat
		byteRate   uint32
		blockAlign uint16
	}{
		{"16k mono 16-bit", model.DefaultAudioFormat, 32000, 2},
		{"44.1k stereo 16-bit", model.AudioFormat{SampleRate: 44100, Channels: 2, BitDepth: 16}, 176400, 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := EncodeFormat(nil, tt.format)
			le := binary.LittleEndian

			if got := le.Uint16(out[20:22]); got != 1 {
				t.Errorf("audio format: expected 1, got %d", got)
			}
			if got := le.Uint16(out[22:24]); int(got) != tt.format.Channels {
				t.Errorf("channels: expected %d, got %d", tt.format.Channels, got)
			}
			if got := le.Uint32(out[24:28]); int(got) != tt.format.SampleRate {
				t.Errorf("sample rate: expected %d, got %d", tt.format.SampleRate, got)
			}
			if got := le.Uint32(out[28:32]); got != tt.byteRate {
				t.Errorf("byte rate: expected %d, got %d", tt.byteRate, got)
			}
			if got := le.Uint16(out[32:34]); got != tt.blockAlign {
				t.Errorf("block align: expected %d, got %d", tt.blockAlign, got)
			}
			if got := le.Uint16(out[34:36]); int(got) != tt.format.BitDepth {
				t.Errorf("bit depth: expected %d, got %d", tt.format.BitDepth, got)
			}
		})
	}
}

func TestEncodeDoesNotAliasInput(t *testing.T) {
	pcm := []byte{1, 2, 3, 4}
	out := Encode(pcm, 16000, 1, 16)
	pcm[0] = 99
	if out[HeaderSize] != 1 {
		t.Fatal("expected output to be independent of the input slice")
	}
}
