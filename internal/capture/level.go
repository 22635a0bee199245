package capture

import (
	"encoding/binary"
	"math"

	"github.com/petems/eqcoach/internal/wav"
)

// Level returns the RMS loudness of a 16-bit WAV container in [0, 1].
// Containers without samples yield 0.
func Level(container []byte) float64 {
	if len(container) <= wav.HeaderSize {
		return 0
	}
	pcm := container[wav.HeaderSize:]
	n := len(pcm) / 2
	if n == 0 {
		return 0
	}

	var sum float64
	for i := 0; i < n; i++ {
		s := float64(int16(binary.LittleEndian.Uint16(pcm[i*2:]))) / 32768.0
		sum += s * s
	}
	rms := math.Sqrt(sum / float64(n))
	return math.Min(math.Max(rms, 0), 1)
}
