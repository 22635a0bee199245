// Package wav wraps raw little-endian PCM in a canonical RIFF/WAVE container.
package wav

import (
	"encoding/binary"

	"github.com/petems/eqcoach/internal/model"
)

// HeaderSize is the length of the canonical PCM header.
const HeaderSize = 44

const pcmFormat = 1

// Encode returns a header followed by pcm. Any length is accepted,
// including zero.
func Encode(pcm []byte, sampleRate, channels, bitDepth int) []byte {
	blockAlign := channels * (bitDepth / 8)
	byteRate := sampleRate * blockAlign

	out := make([]byte, HeaderSize+len(pcm))
	le := binary.LittleEndian

	copy(out[0:4], "RIFF")
	le.PutUint32(out[4:8], uint32(HeaderSize+len(pcm)-8))
	copy(out[8:12], "WAVE")

	copy(out[12:16], "fmt ")
	le.PutUint32(out[16:20], 16)
	le.PutUint16(out[20:22], pcmFormat)
	le.PutUint16(out[22:24], uint16(channels))
	le.PutUint32(out[24:28], uint32(sampleRate))
	le.PutUint32(out[28:32], uint32(byteRate))
	le.PutUint16(out[32:34], uint16(blockAlign))
	le.PutUint16(out[34:36], uint16(bitDepth))

	copy(out[36:40], "data")
	le.PutUint32(out[40:44], uint32(len(pcm)))
	copy(out[HeaderSize:], pcm)

	return out
}

// EncodeFormat is Encode with the parameters taken from f.
func EncodeFormat(pcm []byte, f model.AudioFormat) []byte {
	return Encode(pcm, f.SampleRate, f.Channels, f.BitDepth)
}
