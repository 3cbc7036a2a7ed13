package audio

import (
	"bytes"
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/asem187/voice-pipeline/internal/observability"
)

// pollTimeout bounds how long the consumer waits on an empty queue
// before re-checking the session deadlines
const pollTimeout = 100 * time.Millisecond

// SessionState tracks where a recording session is in its lifecycle
type SessionState int32

const (
	StateIdle SessionState = iota
	StateRecording
	StateStopped
)

func (s SessionState) String() string {
	switch s {
	case StateRecording:
		return "recording"
	case StateStopped:
		return "stopped"
	default:
		return "idle"
	}
}

// FrameSource produces timestamped frames into a queue. Capture is the
// production implementation; tests substitute synthetic sources.
type FrameSource interface {
	Start() error
	Stop() error
	Queue() *FrameQueue
}

// RecordingResult is the outcome of a completed recording session.
// Ownership of Data transfers to the caller; the session retains no
// reference.
type RecordingResult struct {
	Data     []byte        // concatenated raw PCM in capture format
	Started  time.Time     // wall-clock session start
	Duration time.Duration // wall-clock session length
}

// RecordingSession records from a frame source until speech ends or
// limits are hit. Each popped frame is tested by the detector: voice
// frames and the natural trailing silence after them are accumulated;
// leading silence is discarded. The session ends when silence has
// lasted longer than the configured timeout after the last voice
// frame, or unconditionally at the max-duration ceiling.
//
// A session owns exactly one frame source for its duration and is not
// reusable; construct a new session per recording.
type RecordingSession struct {
	source   FrameSource
	vad      *VADDetector
	settings Settings
	logger   zerolog.Logger
	state    atomic.Int32
}

// NewRecordingSession creates a session over the given source
func NewRecordingSession(source FrameSource, vad *VADDetector, settings Settings, logger zerolog.Logger) *RecordingSession {
	return &RecordingSession{
		source:   source,
		vad:      vad,
		settings: settings,
		logger:   logger,
	}
}

// State returns the current session state
func (s *RecordingSession) State() SessionState {
	return SessionState(s.state.Load())
}

// Record runs the session to completion. It returns nil (and no error)
// when no voice was ever detected before a limit was hit; callers must
// treat that as "nothing said", not a failure. Cancelling ctx stops
// the session early and returns whatever was accumulated so far.
func (s *RecordingSession) Record(ctx context.Context) (*RecordingResult, error) {
	if !s.state.CompareAndSwap(int32(StateIdle), int32(StateRecording)) {
		return nil, fmt.Errorf("audio: recording session already used (state %s)", s.State())
	}

	// A loud previous session must not bias the adaptive threshold
	s.vad.Reset()

	metrics := observability.NewRecordingMetrics(observability.NewRecordingID())
	metrics.RecordStart()

	if err := s.source.Start(); err != nil {
		s.state.Store(int32(StateStopped))
		metrics.RecordEnd("error")
		return nil, fmt.Errorf("audio: start recording: %w", err)
	}

	var (
		accumulated   bytes.Buffer
		voiceDetected bool
		start         = time.Now()
		lastVoice     = start
	)

	queue := s.source.Queue()

loop:
	for time.Since(start) < s.settings.MaxDuration {
		select {
		case <-ctx.Done():
			break loop
		default:
		}

		frame, ok := queue.Pop(pollTimeout)
		if !ok {
			// Empty queue: deadlines re-checked on the next iteration
			continue
		}

		if s.vad.IsVoiceActive(DecodeSamples(frame.Data)) {
			voiceDetected = true
			lastVoice = time.Now()
			accumulated.Write(frame.Data)
		} else if voiceDetected {
			// Keep trailing silence so words aren't clipped mid-decay
			accumulated.Write(frame.Data)
			if time.Since(lastVoice) > s.settings.SilenceTimeout {
				break loop
			}
		}
		// Leading silence before any voice is discarded
	}

	stopErr := s.source.Stop()

	// Frames still in flight at stop time belong to the recording
	for {
		frame, ok := queue.TryPop()
		if !ok {
			break
		}
		if voiceDetected {
			accumulated.Write(frame.Data)
		}
	}

	s.state.Store(int32(StateStopped))

	if stopErr != nil {
		metrics.RecordEnd("error")
		return nil, stopErr
	}

	duration := time.Since(start)
	if !voiceDetected {
		s.logger.Info().
			Dur("elapsed", duration).
			Msg("recording ended with no voice detected")
		metrics.RecordEnd("no_voice")
		return nil, nil
	}

	s.logger.Info().
		Dur("elapsed", duration).
		Int("bytes", accumulated.Len()).
		Uint64("frames_dropped", queue.Dropped()).
		Msg("recording complete")
	metrics.RecordEnd("voice")

	return &RecordingResult{
		Data:     accumulated.Bytes(),
		Started:  start,
		Duration: duration,
	}, nil
}
