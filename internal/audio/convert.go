package audio

import (
	"math"

	"github.com/rs/zerolog"

	"github.com/asem187/voice-pipeline/internal/observability"
)

// WireSampleRate is the sample rate the downstream transcription API
// expects. The wire format is fixed: 24 kHz, mono, 16-bit signed PCM.
const WireSampleRate = 24000

// sincZeroCrossings controls the width of the resampling kernel; more
// crossings trade CPU for stop-band rejection.
const sincZeroCrossings = 16

// Converter converts captured audio to the wire format. A failed
// conversion returns the original bytes unchanged and logs a warning;
// callers must treat "unchanged" as a possible degraded success.
type Converter struct {
	settings Settings
	logger   zerolog.Logger
}

// NewConverter creates a converter for audio captured with the given
// settings
func NewConverter(settings Settings, logger zerolog.Logger) *Converter {
	return &Converter{settings: settings, logger: logger}
}

// ToWireFormat converts raw captured PCM to 24 kHz mono 16-bit PCM.
// Multi-channel input is downmixed by averaging, then resampled when
// the capture rate differs from the wire rate. Applying the converter
// to its own output is a no-op. The second return value reports
// whether the conversion succeeded; on failure the input is returned
// unchanged.
func (c *Converter) ToWireFormat(data []byte) ([]byte, bool) {
	if len(data) == 0 {
		return data, true
	}
	if len(data)%(2*c.settings.Channels) != 0 {
		c.logger.Warn().
			Int("bytes", len(data)).
			Int("channels", c.settings.Channels).
			Msg("audio buffer not frame-aligned, returning unconverted")
		observability.RecordEnhancementFallback("conversion")
		return data, false
	}

	if c.settings.Channels == 1 && c.settings.SampleRate == WireSampleRate {
		return data, true
	}

	samples := DecodeSamples(data)

	if c.settings.Channels > 1 {
		samples = downmix(samples, c.settings.Channels)
	}

	if c.settings.SampleRate != WireSampleRate {
		floats := SamplesToFloat(samples)
		resampled := resampleSinc(floats, c.settings.SampleRate, WireSampleRate)
		if !allFinite(resampled) {
			c.logger.Warn().
				Int("from_rate", c.settings.SampleRate).
				Int("to_rate", WireSampleRate).
				Msg("resampling produced non-finite samples, returning unconverted")
			observability.RecordEnhancementFallback("conversion")
			return data, false
		}
		samples = FloatToSamples(resampled)
	}

	return EncodeSamples(samples), true
}

// downmix reduces interleaved multi-channel samples to mono by
// averaging the channels of each sample frame
func downmix(samples []int16, channels int) []int16 {
	frames := len(samples) / channels
	out := make([]int16, frames)
	for i := 0; i < frames; i++ {
		sum := 0
		for ch := 0; ch < channels; ch++ {
			sum += int(samples[i*channels+ch])
		}
		out[i] = int16(sum / channels)
	}
	return out
}

// resampleSinc converts between sample rates with a windowed-sinc
// interpolation kernel. The kernel cutoff tracks the lower of the two
// Nyquist limits so downsampling stays anti-aliased.
func resampleSinc(samples []float64, inRate, outRate int) []float64 {
	if inRate == outRate || len(samples) == 0 {
		return samples
	}

	ratio := float64(outRate) / float64(inRate)
	outLen := int(float64(len(samples)) * ratio)
	out := make([]float64, outLen)

	// Anti-alias cutoff as a fraction of the input Nyquist
	cutoff := 1.0
	if outRate < inRate {
		cutoff = ratio
	}
	halfWidth := float64(sincZeroCrossings) / cutoff

	for i := range out {
		center := float64(i) / ratio

		lo := int(math.Ceil(center - halfWidth))
		hi := int(math.Floor(center + halfWidth))
		if lo < 0 {
			lo = 0
		}
		if hi >= len(samples) {
			hi = len(samples) - 1
		}

		var acc, norm float64
		for j := lo; j <= hi; j++ {
			x := (float64(j) - center) * cutoff
			w := sinc(x) * hannWindow(float64(j)-center, halfWidth)
			acc += samples[j] * w
			norm += w
		}
		if norm != 0 {
			out[i] = acc / norm
		}
	}
	return out
}

func sinc(x float64) float64 {
	if x == 0 {
		return 1
	}
	px := math.Pi * x
	return math.Sin(px) / px
}

func hannWindow(offset, halfWidth float64) float64 {
	if math.Abs(offset) >= halfWidth {
		return 0
	}
	return 0.5 * (1 + math.Cos(math.Pi*offset/halfWidth))
}
