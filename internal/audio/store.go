package audio

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/rs/zerolog"

	"github.com/asem187/voice-pipeline/internal/observability"
)

// FileStore persists recordings as WAV files under a temp directory
// and sweeps out files older than a configured age. File names are
// deterministic, keyed by the capture timestamp.
type FileStore struct {
	dir    string
	maxAge time.Duration
	logger zerolog.Logger
}

// NewFileStore creates a store rooted at dir, creating the directory if
// absent. Files older than maxAge are removed by Sweep.
func NewFileStore(dir string, maxAge time.Duration, logger zerolog.Logger) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("audio: create temp dir: %w", err)
	}
	return &FileStore{dir: dir, maxAge: maxAge, logger: logger}, nil
}

// Save writes raw PCM as a WAV container with the sample rate and
// channel count active at capture time, 16 bits per sample. Returns
// the path of the written file.
func (s *FileStore) Save(data []byte, sampleRate, channels int, capturedAt time.Time) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("audio: refusing to save empty recording")
	}

	name := fmt.Sprintf("voice_input_%d.wav", capturedAt.Unix())
	path := filepath.Join(s.dir, name)

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("audio: create %s: %w", path, err)
	}

	samples := DecodeSamples(data)
	ints := make([]int, len(samples))
	for i, v := range samples {
		ints[i] = int(v)
	}

	enc := wav.NewEncoder(f, sampleRate, 16, channels, 1)
	buf := &goaudio.IntBuffer{
		Format: &goaudio.Format{
			NumChannels: channels,
			SampleRate:  sampleRate,
		},
		Data:           ints,
		SourceBitDepth: 16,
	}

	if err := enc.Write(buf); err != nil {
		_ = enc.Close()
		_ = f.Close()
		_ = os.Remove(path)
		return "", fmt.Errorf("audio: write wav data: %w", err)
	}
	if err := enc.Close(); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return "", fmt.Errorf("audio: finalize wav: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("audio: close %s: %w", path, err)
	}

	s.logger.Info().
		Str("path", path).
		Int("bytes", len(data)).
		Msg("voice input saved")
	return path, nil
}

// Remove deletes one persisted recording
func (s *FileStore) Remove(path string) error {
	if filepath.Dir(path) != filepath.Clean(s.dir) {
		return fmt.Errorf("audio: %s is outside the temp dir", path)
	}
	return os.Remove(path)
}

// Sweep deletes WAV files whose modification time is older than the
// configured max age. Deletion failures are logged, not raised; the
// returned count covers successful deletions only. A sweep over an
// empty directory is a no-op.
func (s *FileStore) Sweep() (int, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return 0, fmt.Errorf("audio: read temp dir: %w", err)
	}

	cutoff := time.Now().Add(-s.maxAge)
	removed := 0

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".wav") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			s.logger.Warn().Err(err).Str("file", entry.Name()).Msg("cannot stat temp file")
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}

		path := filepath.Join(s.dir, entry.Name())
		if err := os.Remove(path); err != nil {
			s.logger.Warn().Err(err).Str("path", path).Msg("cannot remove old temp file")
			continue
		}
		s.logger.Debug().Str("path", path).Msg("cleaned up old audio file")
		removed++
	}

	if removed > 0 {
		observability.RecordTempFilesCleaned(removed)
	}
	return removed, nil
}

// Run sweeps periodically until ctx is cancelled
func (s *FileStore) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.Sweep(); err != nil {
				s.logger.Warn().Err(err).Msg("temp file sweep failed")
			}
		}
	}
}
