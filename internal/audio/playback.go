package audio

import (
	"fmt"
	"sync"

	"github.com/gordonklaus/portaudio"
	"github.com/rs/zerolog"

	"github.com/asem187/voice-pipeline/internal/observability"
)

// Playback owns the output device handle for the duration of one Play
// call. Playback is whole-buffer only: the caller supplies raw PCM
// matching the configured settings and Play blocks until the device has
// consumed all of it.
type Playback struct {
	settings Settings
	logger   zerolog.Logger
	mu       sync.Mutex
}

// NewPlayback creates a playback instance for the given settings
func NewPlayback(settings Settings, logger zerolog.Logger) *Playback {
	return &Playback{settings: settings, logger: logger}
}

// Play opens the output device, writes the full buffer synchronously
// and closes the device. Only one Play runs at a time; concurrent
// callers queue behind the mutex.
func (p *Playback) Play(data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(data) == 0 {
		return nil
	}

	samples := DecodeSamples(data)
	out := make([]int16, p.settings.FrameSize*p.settings.Channels)

	stream, err := portaudio.OpenDefaultStream(
		0, p.settings.Channels,
		float64(p.settings.SampleRate),
		p.settings.FrameSize,
		out,
	)
	if err != nil {
		observability.RecordPlayback(false)
		return fmt.Errorf("audio: open playback stream: %w", err)
	}
	defer stream.Close()

	if err := stream.Start(); err != nil {
		observability.RecordPlayback(false)
		return fmt.Errorf("audio: start playback: %w", err)
	}

	for offset := 0; offset < len(samples); offset += len(out) {
		n := copy(out, samples[offset:])
		// Zero-pad the final partial buffer
		for i := n; i < len(out); i++ {
			out[i] = 0
		}
		if err := stream.Write(); err != nil {
			_ = stream.Stop()
			observability.RecordPlayback(false)
			return fmt.Errorf("audio: playback write: %w", err)
		}
	}

	if err := stream.Stop(); err != nil {
		observability.RecordPlayback(false)
		return fmt.Errorf("audio: stop playback: %w", err)
	}

	observability.RecordPlayback(true)
	p.logger.Debug().Int("bytes", len(data)).Msg("playback complete")
	return nil
}

// PlayAsync offloads the blocking Play call to its own goroutine so a
// cooperative caller is not stalled. The returned channel receives the
// playback result exactly once.
func (p *Playback) PlayAsync(data []byte) <-chan error {
	result := make(chan error, 1)
	go func() {
		result <- p.Play(data)
	}()
	return result
}
