package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds all configuration for the voice pipeline
type Config struct {
	// Audio device configuration
	SampleRate  int    `envconfig:"AUDIO_SAMPLE_RATE" default:"24000"` // Capture sample rate in Hz
	Channels    int    `envconfig:"AUDIO_CHANNELS" default:"1"`        // Input channel count (1=mono, 2=stereo)
	FrameSize   int    `envconfig:"AUDIO_FRAME_SIZE" default:"1024"`   // Samples per device callback
	InputDevice string `envconfig:"AUDIO_INPUT_DEVICE" default:""`     // Input device name (empty = system default)

	// Voice activity detection
	VADThreshold   float64 `envconfig:"VAD_THRESHOLD" default:"0.01"`          // Static RMS energy threshold (0.0-1.0)
	SilenceTimeout float64 `envconfig:"SILENCE_TIMEOUT" default:"2.0"`         // Seconds of silence that end an utterance
	MaxDuration    float64 `envconfig:"MAX_RECORDING_DURATION" default:"30.0"` // Hard recording ceiling in seconds

	// Signal enhancement
	NoiseReduction bool `envconfig:"NOISE_REDUCTION" default:"true"` // Enable spectral noise reduction

	// Frame queue
	QueueCapacity int `envconfig:"AUDIO_QUEUE_CAPACITY" default:"256"` // Max frames buffered between producer and consumer

	// Temp file storage
	TempDir        string `envconfig:"AUDIO_TEMP_DIR" default:"./temp_audio"`    // Directory for recorded WAV files
	CleanupMaxAge  int    `envconfig:"AUDIO_CLEANUP_MAX_AGE_HOURS" default:"24"` // Max age in hours before a temp file is swept
	CleanupEnabled bool   `envconfig:"AUDIO_CLEANUP_ENABLED" default:"true"`     // Run the periodic cleanup sweep

	// Transcription (OpenAI realtime API)
	OpenAIAPIKey  string `envconfig:"OPENAI_API_KEY" default:""`
	RealtimeURL   string `envconfig:"OPENAI_REALTIME_URL" default:"wss://api.openai.com/v1/realtime"`
	RealtimeModel string `envconfig:"OPENAI_REALTIME_MODEL" default:"gpt-4o-realtime-preview-2024-10-01"`
	STTTimeout    int    `envconfig:"STT_TIMEOUT" default:"30"` // Transcription request timeout in seconds

	// Resilience configuration
	CircuitBreakerMaxFailures  int `envconfig:"CIRCUIT_BREAKER_MAX_FAILURES" default:"5"`   // Failures before opening circuit
	CircuitBreakerResetTimeout int `envconfig:"CIRCUIT_BREAKER_RESET_TIMEOUT" default:"30"` // Seconds before attempting recovery
	RetryMaxAttempts           int `envconfig:"RETRY_MAX_ATTEMPTS" default:"3"`             // Maximum retry attempts
	RetryInitialBackoff        int `envconfig:"RETRY_INITIAL_BACKOFF" default:"100"`        // Initial backoff in milliseconds

	// Observability configuration
	Port           string `envconfig:"PORT" default:"8080"`            // Metrics/health HTTP port
	LogLevel       string `envconfig:"LOG_LEVEL" default:"info"`       // Log level: debug, info, warn, error
	LogPretty      bool   `envconfig:"LOG_PRETTY" default:"false"`     // Pretty print logs (for development)
	MetricsEnabled bool   `envconfig:"METRICS_ENABLED" default:"true"` // Enable Prometheus metrics
}

// Load reads configuration from environment variables
// It first attempts to load from .env file if it exists, then from environment
func Load() (*Config, error) {
	// Try to load .env file (ignore error if it doesn't exist)
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// LoadFromEnv loads configuration directly from environment variables
// without attempting to load .env file (useful for containerized deployments)
func LoadFromEnv() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks that every audio parameter falls inside the range the
// device layer and the detector can operate with
func (c *Config) Validate() error {
	if c.SampleRate < 8000 || c.SampleRate > 48000 {
		return fmt.Errorf("AUDIO_SAMPLE_RATE must be between 8000 and 48000, got %d", c.SampleRate)
	}
	if c.FrameSize < 128 || c.FrameSize > 8192 {
		return fmt.Errorf("AUDIO_FRAME_SIZE must be between 128 and 8192, got %d", c.FrameSize)
	}
	if c.Channels < 1 || c.Channels > 2 {
		return fmt.Errorf("AUDIO_CHANNELS must be 1 or 2, got %d", c.Channels)
	}
	if c.VADThreshold < 0.0 || c.VADThreshold > 1.0 {
		return fmt.Errorf("VAD_THRESHOLD must be between 0.0 and 1.0, got %g", c.VADThreshold)
	}
	if c.SilenceTimeout < 0.1 || c.SilenceTimeout > 10.0 {
		return fmt.Errorf("SILENCE_TIMEOUT must be between 0.1 and 10.0 seconds, got %g", c.SilenceTimeout)
	}
	if c.MaxDuration <= 0 || c.MaxDuration > 300 {
		return fmt.Errorf("MAX_RECORDING_DURATION must be between 0 and 300 seconds, got %g", c.MaxDuration)
	}
	if c.QueueCapacity <= 0 {
		return fmt.Errorf("AUDIO_QUEUE_CAPACITY must be positive, got %d", c.QueueCapacity)
	}
	if c.CleanupMaxAge <= 0 {
		return fmt.Errorf("AUDIO_CLEANUP_MAX_AGE_HOURS must be positive, got %d", c.CleanupMaxAge)
	}
	if strings.TrimSpace(c.TempDir) == "" {
		return fmt.Errorf("AUDIO_TEMP_DIR must not be empty")
	}
	return nil
}

// SilenceTimeoutDuration returns the silence timeout as a time.Duration
func (c *Config) SilenceTimeoutDuration() time.Duration {
	return time.Duration(c.SilenceTimeout * float64(time.Second))
}

// MaxDurationDuration returns the max recording duration as a time.Duration
func (c *Config) MaxDurationDuration() time.Duration {
	return time.Duration(c.MaxDuration * float64(time.Second))
}

// CleanupMaxAgeDuration returns the temp file max age as a time.Duration
func (c *Config) CleanupMaxAgeDuration() time.Duration {
	return time.Duration(c.CleanupMaxAge) * time.Hour
}
