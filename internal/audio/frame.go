package audio

import (
	"encoding/binary"
	"math"
	"time"

	"github.com/asem187/voice-pipeline/internal/config"
)

// Settings holds the audio parameters for one capture or playback
// instance. Samples are 16-bit signed PCM throughout the pipeline.
// Settings are immutable for the lifetime of the instance; changing
// them requires constructing a new instance.
type Settings struct {
	SampleRate     int           // Hz
	Channels       int           // 1 = mono, 2 = stereo
	FrameSize      int           // samples per device callback
	NoiseReduction bool          // apply spectral noise reduction to recordings
	VADThreshold   float64       // static RMS energy threshold (0.0-1.0)
	SilenceTimeout time.Duration // silence that ends an utterance
	MaxDuration    time.Duration // hard recording ceiling
}

// DefaultSettings returns settings matching the downstream wire format
func DefaultSettings() Settings {
	return Settings{
		SampleRate:     24000,
		Channels:       1,
		FrameSize:      1024,
		NoiseReduction: true,
		VADThreshold:   0.01,
		SilenceTimeout: 2 * time.Second,
		MaxDuration:    30 * time.Second,
	}
}

// SettingsFromConfig builds audio settings from the loaded configuration
func SettingsFromConfig(cfg *config.Config) Settings {
	return Settings{
		SampleRate:     cfg.SampleRate,
		Channels:       cfg.Channels,
		FrameSize:      cfg.FrameSize,
		NoiseReduction: cfg.NoiseReduction,
		VADThreshold:   cfg.VADThreshold,
		SilenceTimeout: cfg.SilenceTimeoutDuration(),
		MaxDuration:    cfg.MaxDurationDuration(),
	}
}

// FrameDuration returns the wall-clock duration of one device callback
func (s Settings) FrameDuration() time.Duration {
	return time.Duration(float64(s.FrameSize) / float64(s.SampleRate) * float64(time.Second))
}

// Frame is one buffer of raw samples handed over by the input device.
// Frames are immutable once produced; the queue owns a frame until the
// consumer pops it.
type Frame struct {
	Data       []byte        // raw 16-bit little-endian PCM
	Timestamp  time.Time     // wall-clock time of callback entry
	SampleRate int           // Hz
	Channels   int           // channel count
	Duration   time.Duration // playable duration of this frame
}

// DecodeSamples converts little-endian 16-bit PCM bytes to samples.
// A trailing odd byte is ignored.
func DecodeSamples(data []byte) []int16 {
	samples := make([]int16, len(data)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(data[i*2:]))
	}
	return samples
}

// EncodeSamples converts samples to little-endian 16-bit PCM bytes
func EncodeSamples(samples []int16) []byte {
	data := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(data[i*2:], uint16(s))
	}
	return data
}

// SamplesToFloat converts 16-bit samples to float64 in [-1, 1]
func SamplesToFloat(samples []int16) []float64 {
	out := make([]float64, len(samples))
	for i, s := range samples {
		out[i] = float64(s) / 32768.0
	}
	return out
}

// FloatToSamples converts float64 samples in [-1, 1] back to 16-bit,
// clamping anything outside the representable range
func FloatToSamples(samples []float64) []int16 {
	out := make([]int16, len(samples))
	for i, s := range samples {
		v := s * 32767.0
		if v > 32767 {
			v = 32767
		} else if v < -32768 {
			v = -32768
		}
		out[i] = int16(v)
	}
	return out
}

// CalculateRMS computes the root-mean-square energy of a frame,
// normalized to [0, 1] so it is comparable against the configured
// VAD threshold regardless of sample width
func CalculateRMS(samples []int16) float64 {
	if len(samples) == 0 {
		return 0.0
	}

	sum := 0.0
	for _, s := range samples {
		f := float64(s) / 32768.0
		sum += f * f
	}
	return math.Sqrt(sum / float64(len(samples)))
}
