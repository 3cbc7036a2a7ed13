package audio

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gordonklaus/portaudio"
	"github.com/rs/zerolog"

	"github.com/asem187/voice-pipeline/internal/config"
	"github.com/asem187/voice-pipeline/internal/observability"
)

// VoiceInput is one captured utterance: the raw PCM in capture format
// plus the WAV file it was persisted to
type VoiceInput struct {
	Data       []byte
	Path       string
	CapturedAt time.Time
	Duration   time.Duration
}

// SelfTestReport summarizes an audio system self-test
type SelfTestReport struct {
	Microphone bool   `json:"microphone"`
	Speaker    bool   `json:"speaker"`
	Processing bool   `json:"processing"`
	Error      string `json:"error,omitempty"`
}

// Manager is the top-level audio facade: it composes recording,
// enhancement, format conversion, playback and temp-file lifecycle.
// Construct one Manager per pipeline and close it when done; multiple
// independent managers may coexist (tests run several side by side).
type Manager struct {
	cfg       *config.Config
	settings  Settings
	enhancer  *Enhancer
	converter *Converter
	player    *Playback
	store     *FileStore
	logger    zerolog.Logger

	mu        sync.Mutex
	idle      *sync.Cond
	recording bool
	closed    bool
}

// NewManager initializes the audio host and builds a manager from
// configuration. Call Close to release the host.
func NewManager(cfg *config.Config) (*Manager, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("audio: initialize host: %w", err)
	}

	settings := SettingsFromConfig(cfg)
	logger := observability.WithComponent("audio_manager")

	store, err := NewFileStore(cfg.TempDir, cfg.CleanupMaxAgeDuration(), observability.WithComponent("file_store"))
	if err != nil {
		_ = portaudio.Terminate()
		return nil, err
	}

	m := &Manager{
		cfg:       cfg,
		settings:  settings,
		enhancer:  NewEnhancer(settings.SampleRate),
		converter: NewConverter(settings, observability.WithComponent("converter")),
		player:    NewPlayback(settings, observability.WithComponent("playback")),
		store:     store,
		logger:    logger,
	}
	m.idle = sync.NewCond(&m.mu)
	return m, nil
}

// Settings returns the audio settings this manager was built with
func (m *Manager) Settings() Settings {
	return m.settings
}

// Store returns the temp-file store
func (m *Manager) Store() *FileStore {
	return m.store
}

// Close releases the audio host. An in-flight recording is waited out
// first so the host is never torn down under an open stream. The
// manager is unusable afterwards.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	for m.recording {
		m.idle.Wait()
	}
	m.closed = true
	return portaudio.Terminate()
}

// beginRecording claims the single recording slot
func (m *Manager) beginRecording() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return fmt.Errorf("audio: manager closed")
	}
	if m.recording {
		return fmt.Errorf("audio: recording already in progress")
	}
	m.recording = true
	return nil
}

// endRecording releases the recording slot and wakes a pending Close
func (m *Manager) endRecording() {
	m.mu.Lock()
	m.recording = false
	m.mu.Unlock()
	m.idle.Broadcast()
}

// RecordVoiceInput records one utterance with voice activity
// detection, applies the enhancement chain when enabled, persists the
// result as a WAV file and returns it. Returns (nil, nil) when no
// voice was captured before a limit was hit. Only one recording may
// run at a time; a second call while one is in flight fails.
func (m *Manager) RecordVoiceInput(ctx context.Context) (*VoiceInput, error) {
	if err := m.beginRecording(); err != nil {
		return nil, err
	}
	defer m.endRecording()

	queue := NewFrameQueue(m.cfg.QueueCapacity)
	capture := NewCapture(m.settings, m.cfg.InputDevice, queue, observability.WithComponent("capture"))
	vad := NewVADDetector(m.settings.VADThreshold)
	session := NewRecordingSession(capture, vad, m.settings, observability.WithComponent("session"))

	result, err := session.Record(ctx)
	if err != nil {
		return nil, err
	}
	if result == nil {
		return nil, nil
	}

	data := result.Data
	if m.settings.NoiseReduction {
		data = m.enhance(data)
	}

	path, err := m.store.Save(data, m.settings.SampleRate, m.settings.Channels, result.Started)
	if err != nil {
		// The recording itself is still usable; persistence is best effort
		m.logger.Warn().Err(err).Msg("could not persist voice input")
		observability.RecordError("persist", "audio_manager")
		path = ""
	}

	return &VoiceInput{
		Data:       data,
		Path:       path,
		CapturedAt: result.Started,
		Duration:   result.Duration,
	}, nil
}

// enhance runs the signal enhancement chain over a combined recording
// buffer. Each stage falls back to its input on failure, so the chain
// always yields playable audio.
func (m *Manager) enhance(data []byte) []byte {
	samples := SamplesToFloat(DecodeSamples(data))

	reduced, applied := m.enhancer.ReduceNoise(samples)
	if !applied {
		m.logger.Debug().Msg("noise reduction passed input through")
	}
	filtered, applied := m.enhancer.ApplyFilters(reduced)
	if !applied {
		m.logger.Debug().Msg("band-pass filtering passed input through")
	}
	normalized, _ := m.enhancer.Normalize(filtered)

	return EncodeSamples(FloatToSamples(normalized))
}

// ConvertToWireFormat converts captured PCM to the transcription wire
// format (24 kHz mono 16-bit). On conversion failure the input is
// returned unchanged; callers must treat that as degraded success.
func (m *Manager) ConvertToWireFormat(data []byte) []byte {
	out, _ := m.converter.ToWireFormat(data)
	return out
}

// PlayResponse plays a raw PCM buffer matching the configured
// settings, blocking until the device has consumed it
func (m *Manager) PlayResponse(data []byte) error {
	return m.player.Play(data)
}

// PlayResponseAsync plays a buffer without blocking the caller
func (m *Manager) PlayResponseAsync(data []byte) <-chan error {
	return m.player.PlayAsync(data)
}

// CleanupTempFiles removes persisted recordings older than the
// configured max age
func (m *Manager) CleanupTempFiles() (int, error) {
	return m.store.Sweep()
}

// StartCleanupLoop sweeps the temp directory hourly until ctx is
// cancelled
func (m *Manager) StartCleanupLoop(ctx context.Context) {
	go m.store.Run(ctx, time.Hour)
}

// SelfTest probes the audio devices and the processing chain
func (m *Manager) SelfTest() SelfTestReport {
	report := SelfTestReport{}

	if _, err := portaudio.DefaultInputDevice(); err == nil {
		report.Microphone = true
	} else {
		report.Error = fmt.Sprintf("no input device: %v", err)
	}

	if _, err := portaudio.DefaultOutputDevice(); err == nil {
		report.Speaker = true
	} else if report.Error == "" {
		report.Error = fmt.Sprintf("no output device: %v", err)
	}

	// Processing check: a synthetic tone must survive the chain
	tone := make([]float64, noiseReductionMinSamples)
	for i := range tone {
		tone[i] = 0.5 * float64(i%100) / 100
	}
	if out, _ := m.enhancer.ReduceNoise(tone); allFinite(out) {
		if normalized, applied := m.enhancer.Normalize(out); applied && allFinite(normalized) {
			report.Processing = true
		}
	}

	return report
}
