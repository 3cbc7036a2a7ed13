package audio

// maxEnergyHistory bounds the rolling energy history used for the
// adaptive threshold. Oldest entries are evicted first.
const maxEnergyHistory = 50

// adaptiveMinHistory is the history length above which the adaptive
// threshold takes effect; with fewer samples the static threshold is
// used unmodified.
const adaptiveMinHistory = 10

// VADDetector detects voice activity with an energy heuristic.
// The detector keeps a rolling history of recent frame energies and
// raises the effective threshold in noisy environments. State is
// session-scoped: call Reset at the start of every recording session
// so a loud previous session cannot bias a new one.
type VADDetector struct {
	threshold     float64
	energyHistory []float64
}

// NewVADDetector creates a detector with the given static RMS energy
// threshold (0.0-1.0)
func NewVADDetector(threshold float64) *VADDetector {
	return &VADDetector{
		threshold:     threshold,
		energyHistory: make([]float64, 0, maxEnergyHistory),
	}
}

// IsVoiceActive reports whether the frame contains voice. Always
// returns a boolean; there are no error conditions.
func (v *VADDetector) IsVoiceActive(samples []int16) bool {
	rms := CalculateRMS(samples)

	v.energyHistory = append(v.energyHistory, rms)
	if len(v.energyHistory) > maxEnergyHistory {
		v.energyHistory = v.energyHistory[1:]
	}

	return rms > v.AdaptiveThreshold()
}

// AdaptiveThreshold returns the threshold currently in effect:
// max(static threshold, mean(history) * 0.3) once enough history has
// accumulated, the static threshold otherwise
func (v *VADDetector) AdaptiveThreshold() float64 {
	if len(v.energyHistory) <= adaptiveMinHistory {
		return v.threshold
	}

	sum := 0.0
	for _, e := range v.energyHistory {
		sum += e
	}
	avg := sum / float64(len(v.energyHistory))

	adaptive := avg * 0.3
	if adaptive < v.threshold {
		return v.threshold
	}
	return adaptive
}

// HistoryLen returns the number of energies currently in the rolling
// history
func (v *VADDetector) HistoryLen() int {
	return len(v.energyHistory)
}

// Reset clears the energy history
func (v *VADDetector) Reset() {
	v.energyHistory = v.energyHistory[:0]
}
