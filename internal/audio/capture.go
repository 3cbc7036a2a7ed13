package audio

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gordonklaus/portaudio"
	"github.com/rs/zerolog"

	"github.com/asem187/voice-pipeline/internal/observability"
)

// Capture owns the input device handle and runs the real-time producer
// callback. Each device callback wraps the raw buffer as a Frame and
// pushes it onto the queue; everything heavier than that copy is
// deferred to the consumer side. A Capture instance has at most one
// open stream at a time.
type Capture struct {
	settings   Settings
	deviceName string // empty = system default
	queue      *FrameQueue
	logger     zerolog.Logger

	mu      sync.Mutex
	stream  *portaudio.Stream
	started bool
}

// NewCapture creates a capture instance pushing frames into queue.
// deviceName selects a specific input device by name; leave empty for
// the system default.
func NewCapture(settings Settings, deviceName string, queue *FrameQueue, logger zerolog.Logger) *Capture {
	return &Capture{
		settings:   settings,
		deviceName: deviceName,
		queue:      queue,
		logger:     logger,
	}
}

// Queue returns the frame queue this capture produces into
func (c *Capture) Queue() *FrameQueue {
	return c.queue
}

// Start opens the input device and begins the producer callback.
// Idempotent: calling Start while already started returns nil without
// reopening the device. On device-open failure the capture remains
// stopped.
func (c *Capture) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.started {
		return nil
	}

	device, err := c.findInputDevice()
	if err != nil {
		return err
	}

	params := portaudio.LowLatencyParameters(device, nil)
	params.Input.Channels = c.settings.Channels
	params.Output.Device = nil
	params.Output.Channels = 0
	params.SampleRate = float64(c.settings.SampleRate)
	params.FramesPerBuffer = c.settings.FrameSize

	frameDuration := c.settings.FrameDuration()

	// The callback runs on the audio host's real-time context: copy the
	// buffer, stamp it, push without blocking, return.
	stream, err := portaudio.OpenStream(params, func(in []int16) {
		frame := Frame{
			Data:       EncodeSamples(in),
			Timestamp:  time.Now(),
			SampleRate: c.settings.SampleRate,
			Channels:   c.settings.Channels,
			Duration:   frameDuration,
		}
		observability.RecordFrameCaptured()
		if !c.queue.Push(frame) {
			c.logger.Warn().
				Uint64("dropped_total", c.queue.Dropped()).
				Msg("frame queue full, dropping frame")
		}
	})
	if err != nil {
		return fmt.Errorf("audio: open capture stream: %w", err)
	}

	if err := stream.Start(); err != nil {
		_ = stream.Close()
		return fmt.Errorf("audio: start capture: %w", err)
	}

	c.stream = stream
	c.started = true
	c.logger.Info().
		Str("device", device.Name).
		Int("sample_rate", c.settings.SampleRate).
		Int("channels", c.settings.Channels).
		Int("frame_size", c.settings.FrameSize).
		Msg("audio capture started")
	return nil
}

// Stop halts the producer callback and closes the device. Always safe
// to call, even if Start never succeeded; the device is released
// exactly once. Frames already queued are left for the consumer to
// drain.
func (c *Capture) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.started {
		return nil
	}
	c.started = false

	var err error
	if c.stream != nil {
		if stopErr := c.stream.Stop(); stopErr != nil {
			err = fmt.Errorf("audio: stop capture: %w", stopErr)
		}
		if closeErr := c.stream.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("audio: close capture: %w", closeErr)
		}
		c.stream = nil
	}

	c.logger.Info().Msg("audio capture stopped")
	return err
}

// findInputDevice resolves the configured device name, falling back to
// the system default input device
func (c *Capture) findInputDevice() (*portaudio.DeviceInfo, error) {
	if c.deviceName != "" {
		devices, err := portaudio.Devices()
		if err == nil {
			for _, d := range devices {
				if d.MaxInputChannels > 0 && strings.Contains(strings.ToLower(d.Name), strings.ToLower(c.deviceName)) {
					return d, nil
				}
			}
		}
		c.logger.Warn().
			Str("device", c.deviceName).
			Msg("configured input device not found, using default")
	}

	device, err := portaudio.DefaultInputDevice()
	if err != nil {
		return nil, fmt.Errorf("audio: no input device: %w", err)
	}
	return device, nil
}
