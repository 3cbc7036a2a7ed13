package audio

import (
	"math"
	"math/cmplx"
	"sort"

	"gonum.org/v1/gonum/dsp/fourier"

	"github.com/asem187/voice-pipeline/internal/observability"
)

// noiseReductionMinSamples is the shortest input spectral subtraction
// will touch; anything shorter passes through unchanged.
const noiseReductionMinSamples = 1024

// normalizeTarget maps the loudest sample to 80% of full scale,
// leaving headroom against clipping.
const normalizeTarget = 0.8

// Enhancer applies quality transforms to recorded audio. Every
// transform degrades gracefully: on any numerical failure it returns
// its input unchanged and reports applied=false, so a pathological
// buffer can never abort the pipeline.
type Enhancer struct {
	sampleRate int
}

// NewEnhancer creates an enhancer for audio at the given sample rate
func NewEnhancer(sampleRate int) *Enhancer {
	return &Enhancer{sampleRate: sampleRate}
}

// ReduceNoise applies spectral subtraction noise reduction.
// The noise floor is estimated as the 20th percentile of the magnitude
// spectrum, half of it is subtracted from every bin, and each bin is
// clamped to 10% of its original magnitude to prevent over-subtraction
// artifacts. The original phase is kept for reconstruction.
func (e *Enhancer) ReduceNoise(samples []float64) ([]float64, bool) {
	if len(samples) < noiseReductionMinSamples {
		return samples, false
	}

	n := len(samples)
	fft := fourier.NewFFT(n)
	coeff := fft.Coefficients(nil, samples)

	magnitudes := make([]float64, len(coeff))
	for i, c := range coeff {
		magnitudes[i] = cmplx.Abs(c)
	}

	noiseFloor := percentile(magnitudes, 20)

	for i, c := range coeff {
		mag := magnitudes[i]
		enhanced := mag - noiseFloor*0.5
		if floor := mag * 0.1; enhanced < floor {
			enhanced = floor
		}
		coeff[i] = cmplx.Rect(enhanced, cmplx.Phase(c))
	}

	out := fft.Sequence(nil, coeff)
	// gonum's transform is unnormalized: forward then inverse scales by n
	scale := 1.0 / float64(n)
	for i := range out {
		out[i] *= scale
	}

	if !allFinite(out) {
		observability.RecordEnhancementFallback("noise_reduction")
		return samples, false
	}

	return out, true
}

// Normalize peak-normalizes so the maximum absolute sample maps to 80%
// of full scale. A silent buffer passes through unchanged.
func (e *Enhancer) Normalize(samples []float64) ([]float64, bool) {
	if len(samples) == 0 {
		return samples, false
	}

	maxVal := 0.0
	for _, s := range samples {
		if a := math.Abs(s); a > maxVal {
			maxVal = a
		}
	}
	if maxVal == 0 {
		return samples, false
	}

	scale := normalizeTarget / maxVal
	out := make([]float64, len(samples))
	for i, s := range samples {
		out[i] = s * scale
	}
	return out, true
}

// ApplyFilters band-passes the signal: a 4th-order Butterworth
// high-pass at 80 Hz removes rumble, a 4th-order low-pass at 8 kHz
// removes hiss. Both run forward-backward so no phase distortion is
// introduced. When a cutoff is not realizable at the configured sample
// rate the input is returned unchanged.
func (e *Enhancer) ApplyFilters(samples []float64) ([]float64, bool) {
	const (
		highpassCutoff = 80.0
		lowpassCutoff  = 8000.0
	)

	nyquist := float64(e.sampleRate) / 2
	if highpassCutoff >= nyquist || lowpassCutoff >= nyquist || len(samples) == 0 {
		observability.RecordEnhancementFallback("filters")
		return samples, false
	}

	out := filtfilt(butterworthHighpass(highpassCutoff, float64(e.sampleRate)), samples)
	out = filtfilt(butterworthLowpass(lowpassCutoff, float64(e.sampleRate)), out)

	if !allFinite(out) {
		observability.RecordEnhancementFallback("filters")
		return samples, false
	}

	return out, true
}

// biquad is one second-order IIR filter section in direct form I
type biquad struct {
	b0, b1, b2 float64
	a1, a2     float64
}

func (s biquad) apply(in []float64) []float64 {
	out := make([]float64, len(in))
	var x1, x2, y1, y2 float64
	for i, x := range in {
		y := s.b0*x + s.b1*x1 + s.b2*x2 - s.a1*y1 - s.a2*y2
		x2, x1 = x1, x
		y2, y1 = y1, y
		out[i] = y
	}
	return out
}

// butterworthQ holds the section Q values for a 4th-order Butterworth
// filter realized as a cascade of two biquads
var butterworthQ = [2]float64{0.5411961, 1.3065630}

func butterworthLowpass(cutoff, sampleRate float64) []biquad {
	sections := make([]biquad, len(butterworthQ))
	for i, q := range butterworthQ {
		sections[i] = lowpassSection(cutoff, sampleRate, q)
	}
	return sections
}

func butterworthHighpass(cutoff, sampleRate float64) []biquad {
	sections := make([]biquad, len(butterworthQ))
	for i, q := range butterworthQ {
		sections[i] = highpassSection(cutoff, sampleRate, q)
	}
	return sections
}

func lowpassSection(cutoff, sampleRate, q float64) biquad {
	w0 := 2 * math.Pi * cutoff / sampleRate
	cosw, sinw := math.Cos(w0), math.Sin(w0)
	alpha := sinw / (2 * q)

	a0 := 1 + alpha
	return biquad{
		b0: (1 - cosw) / 2 / a0,
		b1: (1 - cosw) / a0,
		b2: (1 - cosw) / 2 / a0,
		a1: -2 * cosw / a0,
		a2: (1 - alpha) / a0,
	}
}

func highpassSection(cutoff, sampleRate, q float64) biquad {
	w0 := 2 * math.Pi * cutoff / sampleRate
	cosw, sinw := math.Cos(w0), math.Sin(w0)
	alpha := sinw / (2 * q)

	a0 := 1 + alpha
	return biquad{
		b0: (1 + cosw) / 2 / a0,
		b1: -(1 + cosw) / a0,
		b2: (1 + cosw) / 2 / a0,
		a1: -2 * cosw / a0,
		a2: (1 - alpha) / a0,
	}
}

// filtfilt runs the filter cascade forward, then backward over the
// reversed signal, cancelling the phase shift of each pass
func filtfilt(sections []biquad, in []float64) []float64 {
	out := in
	for _, s := range sections {
		out = s.apply(out)
	}
	reverse(out)
	for _, s := range sections {
		out = s.apply(out)
	}
	reverse(out)
	return out
}

func reverse(s []float64) {
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}
}

// percentile computes the p-th percentile with linear interpolation
// between the two nearest ranks
func percentile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	rank := p / 100 * float64(len(sorted)-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if lo == hi {
		return sorted[lo]
	}
	frac := rank - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}

func allFinite(samples []float64) bool {
	for _, s := range samples {
		if math.IsNaN(s) || math.IsInf(s, 0) {
			return false
		}
	}
	return true
}
