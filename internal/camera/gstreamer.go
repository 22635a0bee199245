package camera

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/tinyzimmer/go-gst/gst"
	"github.com/tinyzimmer/go-gst/gst/app"
	"go.uber.org/multierr"
)

const (
	busPollInterval    = 50 * time.Millisecond
	monitorJoinTimeout = 3 * time.Second
)

var gstInit sync.Once

// GStreamerBackend opens a V4L2 camera as a GStreamer pipeline:
//
//	v4l2src → tee ┬→ queue → fakesink                                        (keep-alive)
//	              └→ queue → videoconvert → videoscale → capsfilter → jpegenc → appsink (stills)
//
// The keep-alive branch keeps the sensor streaming so stills are available
// without renegotiation.
type GStreamerBackend struct {
	devicePath  string
	orientation int
	log         zerolog.Logger
}

// NewGStreamerBackend returns a backend for the V4L2 node at devicePath,
// mounted at sensorOrientation degrees.
func NewGStreamerBackend(devicePath string, sensorOrientation int, log zerolog.Logger) *GStreamerBackend {
	return &GStreamerBackend{
		devicePath:  devicePath,
		orientation: sensorOrientation,
		log:         log.With().Str("component", "gstreamer").Logger(),
	}
}

func (b *GStreamerBackend) FrontSensor() (Sensor, error) {
	if _, err := os.Stat(b.devicePath); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Sensor{}, fmt.Errorf("%w: %s", ErrNoCamera, b.devicePath)
		}
		return Sensor{}, fmt.Errorf("stat %s: %w", b.devicePath, err)
	}
	return Sensor{ID: b.devicePath, Orientation: b.orientation}, nil
}

func (b *GStreamerBackend) Open(sensor Sensor, size Size, cb Callbacks) (Device, error) {
	gstInit.Do(func() { gst.Init(nil) })

	d, err := b.buildPipeline(sensor, size)
	if err != nil {
		return nil, err
	}
	d.cb = cb
	d.log = b.log

	d.sink.SetCallbacks(&app.SinkCallbacks{
		NewSampleFunc: d.onSample,
	})

	ctx, cancel := context.WithCancel(context.Background())
	d.cancel = cancel
	d.monitorDone = make(chan struct{})
	go d.monitor(ctx)

	if err := d.pipeline.SetState(gst.StatePlaying); err != nil {
		cancel()
		<-d.monitorDone
		d.pipeline.SetState(gst.StateNull)
		return nil, fmt.Errorf("failed to start pipeline: %w", err)
	}

	b.log.Debug().
		Str("device", sensor.ID).
		Int("width", size.Width).
		Int("height", size.Height).
		Msg("Pipeline starting")
	return d, nil
}

func (b *GStreamerBackend) buildPipeline(sensor Sensor, size Size) (*gstDevice, error) {
	pipeline, err := gst.NewPipeline("")
	if err != nil {
		return nil, fmt.Errorf("failed to create pipeline: %w", err)
	}

	elems := make(map[string]*gst.Element)
	for _, name := range []string{
		"v4l2src", "tee",
		"queue", "fakesink",
		"videoconvert", "videoscale", "capsfilter", "jpegenc",
	} {
		e, err := gst.NewElement(name)
		if err != nil {
			return nil, fmt.Errorf("failed to create %s: %w", name, err)
		}
		elems[name] = e
	}
	stillQueue, err := gst.NewElement("queue")
	if err != nil {
		return nil, fmt.Errorf("failed to create queue: %w", err)
	}

	elems["v4l2src"].SetProperty("device", sensor.ID)
	elems["fakesink"].SetProperty("sync", false)
	stillQueue.SetProperty("leaky", 2) // downstream
	stillQueue.SetProperty("max-size-buffers", uint(1))
	elems["capsfilter"].SetProperty("caps", gst.NewCapsFromString(
		fmt.Sprintf("video/x-raw,width=%d,height=%d", size.Width, size.Height)))
	elems["jpegenc"].SetProperty("quality", jpegQuality)

	sink, err := app.NewAppSink()
	if err != nil {
		return nil, fmt.Errorf("failed to create appsink: %w", err)
	}
	sink.SetProperty("sync", false)
	sink.SetProperty("max-buffers", 1)
	sink.SetProperty("drop", true)

	pipeline.AddMany(
		elems["v4l2src"], elems["tee"],
		elems["queue"], elems["fakesink"],
		stillQueue, elems["videoconvert"], elems["videoscale"], elems["capsfilter"], elems["jpegenc"],
		sink.Element,
	)

	if err := gst.ElementLinkMany(elems["v4l2src"], elems["tee"]); err != nil {
		return nil, fmt.Errorf("failed to link source: %w", err)
	}
	if err := gst.ElementLinkMany(elems["tee"], elems["queue"], elems["fakesink"]); err != nil {
		return nil, fmt.Errorf("failed to link keep-alive branch: %w", err)
	}
	if err := gst.ElementLinkMany(
		elems["tee"],
		stillQueue,
		elems["videoconvert"],
		elems["videoscale"],
		elems["capsfilter"],
		elems["jpegenc"],
		sink.Element,
	); err != nil {
		return nil, fmt.Errorf("failed to link still branch: %w", err)
	}

	return &gstDevice{
		pipeline:  pipeline,
		sink:      sink,
		keepAlive: elems["fakesink"],
	}, nil
}

type gstDevice struct {
	pipeline  *gst.Pipeline
	sink      *app.Sink
	keepAlive *gst.Element
	cb        Callbacks
	log       zerolog.Logger

	armed      atomic.Bool
	closed     atomic.Bool
	configured sync.Once

	cancel      context.CancelFunc
	monitorDone chan struct{}
	closeOnce   sync.Once
	closeErr    error
}

// Capture arms the appsink so the next encoded sample is delivered once.
func (d *gstDevice) Capture() error {
	if d.closed.Load() {
		return ErrClosed
	}
	d.armed.Store(true)
	return nil
}

func (d *gstDevice) onSample(sink *app.Sink) gst.FlowReturn {
	sample := sink.PullSample()
	if sample == nil {
		return gst.FlowOK
	}
	if !d.armed.CompareAndSwap(true, false) {
		return gst.FlowOK
	}

	buffer := sample.GetBuffer()
	if buffer == nil {
		d.armed.Store(true)
		return gst.FlowOK
	}

	mapInfo := buffer.Map(gst.MapRead)
	data := mapInfo.Bytes()
	if len(data) == 0 {
		buffer.Unmap()
		d.armed.Store(true)
		return gst.FlowOK
	}
	frame := make([]byte, len(data))
	copy(frame, data)
	buffer.Unmap()

	d.cb.OnImage(frame)
	return gst.FlowOK
}

func (d *gstDevice) monitor(ctx context.Context) {
	defer close(d.monitorDone)

	bus := d.pipeline.GetPipelineBus()
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		msg := bus.TimedPop(busPollInterval)
		if msg == nil {
			continue
		}

		switch msg.Type() {
		case gst.MessageEOS:
			d.log.Info().Msg("Camera stream ended")
			d.cb.OnDisconnected()
			return

		case gst.MessageError:
			gerr := msg.ParseError()
			d.log.Error().
				Str("error", gerr.Error()).
				Str("debug", gerr.DebugString()).
				Msg("Pipeline error")
			d.cb.OnError(errors.New(gerr.Error()))
			return

		case gst.MessageStateChanged:
			if msg.Source() != d.pipeline.GetName() {
				continue
			}
			from, to := msg.ParseStateChanged()
			d.log.Debug().Str("from", from.String()).Str("to", to.String()).Msg("Pipeline state changed")
			if isConfigured(to) {
				d.configured.Do(d.cb.OnConfigured)
			}
		}
	}
}

// Close stops the bus monitor, the pipeline, the appsink and the
// keep-alive sink. Every step runs; failures are combined.
func (d *gstDevice) Close() error {
	d.closeOnce.Do(func() {
		d.closed.Store(true)
		d.armed.Store(false)

		var err error
		d.cancel()
		select {
		case <-d.monitorDone:
		case <-time.After(monitorJoinTimeout):
			err = multierr.Append(err, errors.New("bus monitor did not exit"))
		}
		if e := d.pipeline.SetState(gst.StateNull); e != nil {
			err = multierr.Append(err, fmt.Errorf("pipeline: %w", e))
		}
		if e := d.sink.SetState(gst.StateNull); e != nil {
			err = multierr.Append(err, fmt.Errorf("appsink: %w", e))
		}
		if e := d.keepAlive.SetState(gst.StateNull); e != nil {
			err = multierr.Append(err, fmt.Errorf("keep-alive sink: %w", e))
		}
		d.closeErr = err
	})
	return d.closeErr
}

// isConfigured reports whether a pipeline state means stills can be taken.
func isConfigured(s gst.State) bool {
	return s == gst.StatePlaying
}
