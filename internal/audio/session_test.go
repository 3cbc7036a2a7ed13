package audio

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

// pacedSource feeds scripted frames into its queue at a fixed real-time
// interval, then keeps feeding fillFrame until stopped. It stands in
// for the device-backed Capture in session tests.
type pacedSource struct {
	queue     *FrameQueue
	script    []Frame
	fillFrame *Frame // fed forever after the script runs out; nil = stop feeding
	interval  time.Duration

	mu      sync.Mutex
	stop    chan struct{}
	started bool
	stops   int
}

func newPacedSource(script []Frame, fill *Frame, interval time.Duration) *pacedSource {
	return &pacedSource{
		queue:     NewFrameQueue(1024),
		script:    script,
		fillFrame: fill,
		interval:  interval,
	}
}

func (s *pacedSource) Queue() *FrameQueue { return s.queue }

func (s *pacedSource) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return nil
	}
	s.started = true
	s.stop = make(chan struct{})

	go func() {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		i := 0
		for {
			select {
			case <-s.stop:
				return
			case <-ticker.C:
				var f Frame
				if i < len(s.script) {
					f = s.script[i]
					i++
				} else if s.fillFrame != nil {
					f = *s.fillFrame
				} else {
					return
				}
				f.Timestamp = time.Now()
				s.queue.Push(f)
			}
		}
	}()
	return nil
}

func (s *pacedSource) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stops++
	if !s.started {
		return nil
	}
	s.started = false
	close(s.stop)
	return nil
}

func pcmFrame(amplitude int16, samples int) Frame {
	return Frame{Data: EncodeSamples(constantFrame(amplitude, samples))}
}

func repeatFrames(f Frame, n int) []Frame {
	out := make([]Frame, n)
	for i := range out {
		out[i] = f
	}
	return out
}

func sessionSettings(silenceTimeout, maxDuration time.Duration) Settings {
	return Settings{
		SampleRate:     16000,
		Channels:       1,
		FrameSize:      320,
		VADThreshold:   0.01,
		SilenceTimeout: silenceTimeout,
		MaxDuration:    maxDuration,
	}
}

func TestRecordingSession_VoiceThenSilence(t *testing.T) {
	silent := pcmFrame(0, 320)
	loud := pcmFrame(8000, 320)

	// Leading silence, a second of speech, then silence forever
	script := append(repeatFrames(silent, 10), repeatFrames(loud, 30)...)
	source := newPacedSource(script, &silent, 10*time.Millisecond)

	settings := sessionSettings(300*time.Millisecond, 5*time.Second)
	session := NewRecordingSession(source, NewVADDetector(settings.VADThreshold), settings, zerolog.Nop())

	start := time.Now()
	result, err := session.Record(context.Background())
	elapsed := time.Since(start)

	if err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	if result == nil {
		t.Fatal("Expected a recording result, got none")
	}

	// At least the voiced frames must be present, plus trailing silence
	minBytes := 30 * 320 * 2
	if len(result.Data) < minBytes {
		t.Errorf("Expected at least %d bytes (voiced frames), got %d", minBytes, len(result.Data))
	}

	// Script: 100ms lead-in + 300ms voice, then the silence timeout.
	// The session must end within the timeout of the last voice frame
	// (plus poll-granularity slack), far before max duration.
	if elapsed > 1500*time.Millisecond {
		t.Errorf("Session took %v, expected it to end shortly after the silence timeout", elapsed)
	}

	if session.State() != StateStopped {
		t.Errorf("Expected state stopped, got %s", session.State())
	}
}

func TestRecordingSession_MaxDurationCeiling(t *testing.T) {
	loud := pcmFrame(8000, 320)
	source := newPacedSource(nil, &loud, 10*time.Millisecond)

	settings := sessionSettings(2*time.Second, 500*time.Millisecond)
	session := NewRecordingSession(source, NewVADDetector(settings.VADThreshold), settings, zerolog.Nop())

	start := time.Now()
	result, err := session.Record(context.Background())
	elapsed := time.Since(start)

	if err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	if result == nil {
		t.Fatal("Expected a result from continuous voice")
	}
	// Hard ceiling applies regardless of continued voice activity
	if elapsed > 900*time.Millisecond {
		t.Errorf("Session ran %v, expected termination near the 500ms ceiling", elapsed)
	}
}

func TestRecordingSession_NoVoiceReturnsNoResult(t *testing.T) {
	silent := pcmFrame(0, 320)
	source := newPacedSource(nil, &silent, 10*time.Millisecond)

	settings := sessionSettings(200*time.Millisecond, 400*time.Millisecond)
	session := NewRecordingSession(source, NewVADDetector(settings.VADThreshold), settings, zerolog.Nop())

	result, err := session.Record(context.Background())
	if err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	if result != nil {
		t.Errorf("Expected no result for all-silent input, got %d bytes", len(result.Data))
	}
}

func TestRecordingSession_ContextCancellation(t *testing.T) {
	loud := pcmFrame(8000, 320)
	source := newPacedSource(nil, &loud, 10*time.Millisecond)

	settings := sessionSettings(2*time.Second, 10*time.Second)
	session := NewRecordingSession(source, NewVADDetector(settings.VADThreshold), settings, zerolog.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	start := time.Now()
	result, err := session.Record(ctx)
	elapsed := time.Since(start)

	if err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	if result == nil {
		t.Fatal("Expected accumulated audio on cancellation")
	}
	if elapsed > time.Second {
		t.Errorf("Cancellation took %v to take effect", elapsed)
	}
}

func TestRecordingSession_NotReusable(t *testing.T) {
	silent := pcmFrame(0, 320)
	source := newPacedSource(nil, &silent, 10*time.Millisecond)

	settings := sessionSettings(200*time.Millisecond, 300*time.Millisecond)
	session := NewRecordingSession(source, NewVADDetector(settings.VADThreshold), settings, zerolog.Nop())

	if _, err := session.Record(context.Background()); err != nil {
		t.Fatalf("First record failed: %v", err)
	}
	if _, err := session.Record(context.Background()); err == nil {
		t.Error("Expected second Record on the same session to fail")
	}
}

func TestRecordingSession_StopsSourceExactlyOnce(t *testing.T) {
	silent := pcmFrame(0, 320)
	source := newPacedSource(nil, &silent, 10*time.Millisecond)

	settings := sessionSettings(200*time.Millisecond, 300*time.Millisecond)
	session := NewRecordingSession(source, NewVADDetector(settings.VADThreshold), settings, zerolog.Nop())

	if _, err := session.Record(context.Background()); err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	source.mu.Lock()
	stops := source.stops
	source.mu.Unlock()
	if stops != 1 {
		t.Errorf("Expected exactly one Stop call, got %d", stops)
	}
}
