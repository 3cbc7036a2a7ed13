package observability

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Capture metrics
	framesCaptured = promauto.NewCounter(prometheus.CounterOpts{
		Name: "voice_pipeline_frames_captured_total",
		Help: "Total audio frames delivered by the input device",
	})

	framesDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "voice_pipeline_frames_dropped_total",
		Help: "Total audio frames dropped due to queue overflow",
	})

	// Recording metrics
	activeRecordings = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "voice_pipeline_active_recordings",
		Help: "Number of recording sessions in progress",
	})

	recordingsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voice_pipeline_recordings_total",
		Help: "Total recording sessions by outcome",
	}, []string{"outcome"}) // outcome: "voice", "no_voice", "error"

	recordingDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "voice_pipeline_recording_duration_seconds",
		Help:    "Wall-clock duration of recording sessions in seconds",
		Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60},
	})

	// Enhancement metrics
	enhancementFallbacks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voice_pipeline_enhancement_fallbacks_total",
		Help: "Enhancement transforms that passed input through unmodified",
	}, []string{"transform"}) // transform: "noise_reduction", "filters", "conversion"

	// Playback metrics
	playbackRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voice_pipeline_playback_requests_total",
		Help: "Total playback requests",
	}, []string{"status"})

	// STT metrics
	sttRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voice_pipeline_stt_requests_total",
		Help: "Total number of transcription requests",
	}, []string{"status"})

	sttLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "voice_pipeline_stt_latency_seconds",
		Help:    "Transcription latency in seconds",
		Buckets: []float64{0.1, 0.25, 0.5, 1.0, 2.0, 5.0, 10.0},
	})

	// Temp file metrics
	tempFilesCleaned = promauto.NewCounter(prometheus.CounterOpts{
		Name: "voice_pipeline_temp_files_cleaned_total",
		Help: "Temp audio files deleted by the cleanup sweep",
	})

	// Error metrics
	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voice_pipeline_errors_total",
		Help: "Total number of errors",
	}, []string{"type", "component"})
)

// RecordFrameCaptured increments the captured frame counter
func RecordFrameCaptured() {
	framesCaptured.Inc()
}

// RecordFrameDropped increments the dropped frame counter
func RecordFrameDropped() {
	framesDropped.Inc()
}

// RecordEnhancementFallback counts a transform that returned its input unchanged
func RecordEnhancementFallback(transform string) {
	enhancementFallbacks.WithLabelValues(transform).Inc()
}

// RecordPlayback counts a playback request
func RecordPlayback(success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	playbackRequests.WithLabelValues(status).Inc()
}

// RecordTempFilesCleaned counts files removed by the cleanup sweep
func RecordTempFilesCleaned(n int) {
	tempFilesCleaned.Add(float64(n))
}

// RecordError records an error
func RecordError(errorType, component string) {
	errorsTotal.WithLabelValues(errorType, component).Inc()
}

// RecordingMetrics tracks metrics for a single recording session
type RecordingMetrics struct {
	recordingID  string
	startTime    time.Time
	sttStartTime time.Time
	mu           sync.Mutex
}

// NewRecordingMetrics creates a new metrics tracker for a recording session
func NewRecordingMetrics(recordingID string) *RecordingMetrics {
	return &RecordingMetrics{
		recordingID: recordingID,
		startTime:   time.Now(),
	}
}

// RecordStart records the start of a recording session
func (m *RecordingMetrics) RecordStart() {
	activeRecordings.Inc()
}

// RecordEnd records the end of a recording session with its outcome
func (m *RecordingMetrics) RecordEnd(outcome string) {
	activeRecordings.Dec()
	recordingsTotal.WithLabelValues(outcome).Inc()
	recordingDuration.Observe(time.Since(m.startTime).Seconds())
}

// RecordSTTStart records the start of a transcription request
func (m *RecordingMetrics) RecordSTTStart() {
	m.mu.Lock()
	m.sttStartTime = time.Now()
	m.mu.Unlock()
}

// RecordSTTEnd records the end of a transcription request
func (m *RecordingMetrics) RecordSTTEnd(success bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.sttStartTime.IsZero() {
		sttLatency.Observe(time.Since(m.sttStartTime).Seconds())
	}

	status := "success"
	if !success {
		status = "error"
	}
	sttRequests.WithLabelValues(status).Inc()
}
