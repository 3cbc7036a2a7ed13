package config

import (
	"testing"
)

func TestLoadFromEnv_Defaults(t *testing.T) {
	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv failed: %v", err)
	}

	if cfg.SampleRate != 24000 {
		t.Errorf("Expected default sample rate 24000, got %d", cfg.SampleRate)
	}
	if cfg.Channels != 1 {
		t.Errorf("Expected default channels 1, got %d", cfg.Channels)
	}
	if cfg.FrameSize != 1024 {
		t.Errorf("Expected default frame size 1024, got %d", cfg.FrameSize)
	}
	if cfg.VADThreshold != 0.01 {
		t.Errorf("Expected default VAD threshold 0.01, got %g", cfg.VADThreshold)
	}
	if cfg.SilenceTimeout != 2.0 {
		t.Errorf("Expected default silence timeout 2.0, got %g", cfg.SilenceTimeout)
	}
	if cfg.MaxDuration != 30.0 {
		t.Errorf("Expected default max duration 30.0, got %g", cfg.MaxDuration)
	}
	if cfg.TempDir != "./temp_audio" {
		t.Errorf("Expected default temp dir ./temp_audio, got %s", cfg.TempDir)
	}
	if cfg.CleanupMaxAge != 24 {
		t.Errorf("Expected default cleanup max age 24h, got %d", cfg.CleanupMaxAge)
	}
	if !cfg.NoiseReduction {
		t.Error("Expected noise reduction enabled by default")
	}
	if cfg.LogLevel != "info" {
		t.Errorf("Expected default log level info, got %s", cfg.LogLevel)
	}
}

func TestLoadFromEnv_Overrides(t *testing.T) {
	t.Setenv("AUDIO_SAMPLE_RATE", "48000")
	t.Setenv("AUDIO_CHANNELS", "2")
	t.Setenv("VAD_THRESHOLD", "0.25")
	t.Setenv("SILENCE_TIMEOUT", "1.5")
	t.Setenv("AUDIO_INPUT_DEVICE", "USB Microphone")

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv failed: %v", err)
	}

	if cfg.SampleRate != 48000 {
		t.Errorf("Expected sample rate 48000, got %d", cfg.SampleRate)
	}
	if cfg.Channels != 2 {
		t.Errorf("Expected channels 2, got %d", cfg.Channels)
	}
	if cfg.VADThreshold != 0.25 {
		t.Errorf("Expected VAD threshold 0.25, got %g", cfg.VADThreshold)
	}
	if cfg.SilenceTimeout != 1.5 {
		t.Errorf("Expected silence timeout 1.5, got %g", cfg.SilenceTimeout)
	}
	if cfg.InputDevice != "USB Microphone" {
		t.Errorf("Expected input device override, got %q", cfg.InputDevice)
	}
}

func TestValidate_Ranges(t *testing.T) {
	cases := []struct {
		name string
		env  map[string]string
	}{
		{"sample rate too low", map[string]string{"AUDIO_SAMPLE_RATE": "4000"}},
		{"sample rate too high", map[string]string{"AUDIO_SAMPLE_RATE": "96000"}},
		{"frame size too small", map[string]string{"AUDIO_FRAME_SIZE": "64"}},
		{"frame size too large", map[string]string{"AUDIO_FRAME_SIZE": "16384"}},
		{"too many channels", map[string]string{"AUDIO_CHANNELS": "3"}},
		{"negative threshold", map[string]string{"VAD_THRESHOLD": "-0.1"}},
		{"threshold above one", map[string]string{"VAD_THRESHOLD": "1.5"}},
		{"silence timeout too short", map[string]string{"SILENCE_TIMEOUT": "0.01"}},
		{"silence timeout too long", map[string]string{"SILENCE_TIMEOUT": "60"}},
		{"zero max duration", map[string]string{"MAX_RECORDING_DURATION": "0"}},
		{"empty temp dir", map[string]string{"AUDIO_TEMP_DIR": " "}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			if _, err := LoadFromEnv(); err == nil {
				t.Errorf("Expected validation error for %s", tc.name)
			}
		})
	}
}

func TestDurationHelpers(t *testing.T) {
	t.Setenv("SILENCE_TIMEOUT", "1.5")
	t.Setenv("MAX_RECORDING_DURATION", "10")
	t.Setenv("AUDIO_CLEANUP_MAX_AGE_HOURS", "48")

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv failed: %v", err)
	}

	if got := cfg.SilenceTimeoutDuration().Milliseconds(); got != 1500 {
		t.Errorf("Expected silence timeout 1500ms, got %d", got)
	}
	if got := cfg.MaxDurationDuration().Seconds(); got != 10 {
		t.Errorf("Expected max duration 10s, got %g", got)
	}
	if got := cfg.CleanupMaxAgeDuration().Hours(); got != 48 {
		t.Errorf("Expected cleanup max age 48h, got %g", got)
	}
}
