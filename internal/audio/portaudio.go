package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/gordonklaus/portaudio"

	"github.com/petems/eqcoach/internal/model"
)

// PortAudioSource opens 16-bit input streams through PortAudio.
type PortAudioSource struct {
	deviceID string
}

// NewPortAudioSource initializes PortAudio. deviceID selects an input by
// name; empty means the default input. Call Close to terminate PortAudio.
func NewPortAudioSource(deviceID string) (*PortAudioSource, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize PortAudio: %w", err)
	}
	return &PortAudioSource{deviceID: deviceID}, nil
}

func (p *PortAudioSource) findDevice() (*portaudio.DeviceInfo, error) {
	if p.deviceID == "" {
		device, err := portaudio.DefaultInputDevice()
		if err != nil {
			return nil, fmt.Errorf("failed to get default input device: %w", err)
		}
		return device, nil
	}

	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate devices: %w", err)
	}
	for _, d := range devices {
		if d.Name == p.deviceID {
			return d, nil
		}
	}
	return nil, fmt.Errorf("device not found: %s", p.deviceID)
}

// MinBufferSize derives the minimum buffer from the device's low input
// latency.
func (p *PortAudioSource) MinBufferSize(f model.AudioFormat) (int, error) {
	if f.BitDepth != 16 {
		return 0, fmt.Errorf("unsupported bit depth %d", f.BitDepth)
	}
	device, err := p.findDevice()
	if err != nil {
		return 0, err
	}
	if device.MaxInputChannels < f.Channels {
		return 0, fmt.Errorf("device %q supports %d input channels, need %d",
			device.Name, device.MaxInputChannels, f.Channels)
	}

	frames := int(device.DefaultLowInputLatency.Seconds() * float64(f.SampleRate))
	return frames * f.BlockAlign(), nil
}

func (p *PortAudioSource) Open(f model.AudioFormat, bufferBytes int) (Stream, error) {
	device, err := p.findDevice()
	if err != nil {
		return nil, err
	}

	samples := make([]int16, readChunkBytes/2)
	bufferFrames := bufferBytes / f.BlockAlign()
	latency := time.Duration(float64(bufferFrames) / float64(f.SampleRate) * float64(time.Second))

	stream, err := portaudio.OpenStream(portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   device,
			Channels: f.Channels,
			Latency:  latency,
		},
		SampleRate:      float64(f.SampleRate),
		FramesPerBuffer: len(samples) / f.Channels,
	}, samples)
	if err != nil {
		return nil, fmt.Errorf("failed to open audio stream: %w", err)
	}

	return &portAudioStream{stream: stream, samples: samples}, nil
}

// ListDevices returns the input-capable devices.
func (p *PortAudioSource) ListDevices() ([]AudioDevice, error) {
	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}

	result := make([]AudioDevice, 0, len(devices))
	defaultDevice, _ := portaudio.DefaultInputDevice()

	for _, d := range devices {
		if d.MaxInputChannels > 0 {
			result = append(result, AudioDevice{
				ID:      d.Name,
				Name:    d.Name,
				Default: d == defaultDevice,
			})
		}
	}

	return result, nil
}

func (p *PortAudioSource) Close() error {
	return portaudio.Terminate()
}

type portAudioStream struct {
	stream  *portaudio.Stream
	samples []int16
}

func (s *portAudioStream) Start() error {
	if err := s.stream.Start(); err != nil {
		return fmt.Errorf("failed to start audio stream: %w", err)
	}
	return nil
}

func (s *portAudioStream) Read(p []byte) (int, error) {
	err := s.stream.Read()
	if err != nil && !errors.Is(err, portaudio.InputOverflowed) {
		return 0, err
	}
	// An overflow still delivers a full buffer; the dropped audio is gone.
	return putSamples(p, s.samples), nil
}

func (s *portAudioStream) Stop() error {
	return s.stream.Stop()
}

func (s *portAudioStream) Close() error {
	return s.stream.Close()
}

// putSamples writes samples into dst as little-endian int16 and returns the
// number of bytes written.
func putSamples(dst []byte, samples []int16) int {
	n := min(len(dst)/2, len(samples))
	for i := 0; i < n; i++ {
		binary.LittleEndian.PutUint16(dst[i*2:], uint16(samples[i]))
	}
	return n * 2
}
