package camera

import (
	"bytes"
	"fmt"

	"github.com/disintegration/imaging"
)

const jpegQuality = 90

// rotationDegrees returns the clockwise correction for a sensor mounted at
// sensor degrees on a display rotated by display degrees.
func rotationDegrees(sensor, display int) int {
	deg := (sensor + display) % 360
	if deg < 0 {
		deg += 360
	}
	return deg
}

// rotateJPEG rotates data clockwise by deg (a multiple of 90) and
// re-encodes it.
func rotateJPEG(data []byte, deg int) ([]byte, error) {
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}

	// imaging rotates counter-clockwise.
	switch deg {
	case 90:
		img = imaging.Rotate270(img)
	case 180:
		img = imaging.Rotate180(img)
	case 270:
		img = imaging.Rotate90(img)
	default:
		return nil, fmt.Errorf("unsupported rotation %d", deg)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(jpegQuality)); err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}
	return buf.Bytes(), nil
}
