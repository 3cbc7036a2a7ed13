package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/asem187/voice-pipeline/internal/audio"
	"github.com/asem187/voice-pipeline/internal/config"
	"github.com/asem187/voice-pipeline/internal/observability"
	"github.com/asem187/voice-pipeline/internal/stt"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		// Use fmt for fatal errors before logger is initialized
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize structured logger
	observability.InitLogger(cfg.LogLevel, cfg.LogPretty)
	logger := observability.GetLogger()

	logger.Info().
		Int("sample_rate", cfg.SampleRate).
		Int("channels", cfg.Channels).
		Int("frame_size", cfg.FrameSize).
		Str("temp_dir", cfg.TempDir).
		Bool("metrics_enabled", cfg.MetricsEnabled).
		Msg("Voice pipeline starting")

	manager, err := audio.NewManager(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize audio")
	}
	defer manager.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.CleanupEnabled {
		manager.StartCleanupLoop(ctx)
	}

	var transcriber stt.Transcriber
	if cfg.OpenAIAPIKey != "" {
		client := stt.NewRealtimeClient(cfg)
		if err := client.Connect(ctx); err != nil {
			logger.Warn().Err(err).Msg("Transcription unavailable, recording only")
		} else {
			transcriber = client
			defer client.Close()
		}
	} else {
		logger.Info().Msg("OPENAI_API_KEY not set, recording only")
	}

	// Create HTTP server for metrics and health
	mux := http.NewServeMux()
	mux.HandleFunc("/health", observability.HealthCheckHandler())
	mux.HandleFunc("/ready", observability.ReadinessHandler(map[string]observability.HealthCheckFunc{
		"audio": func(ctx context.Context) (bool, error) {
			report := manager.SelfTest()
			if !report.Microphone {
				return false, fmt.Errorf("microphone unavailable: %s", report.Error)
			}
			return true, nil
		},
	}))
	if cfg.MetricsEnabled {
		mux.Handle("/metrics", promhttp.Handler())
		logger.Info().Msg("Prometheus metrics enabled at /metrics")
	}

	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info().Str("port", cfg.Port).Msg("Observability server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("Observability server failed to start")
		}
	}()

	// Run the capture loop until interrupted
	go runCaptureLoop(ctx, cfg, manager, transcriber)

	// Wait for interrupt signal to gracefully shut down
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("Shutting down...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Observability server forced to shut down")
	}

	logger.Info().Msg("Voice pipeline exited")
}

// runCaptureLoop records utterances back to back: each recording waits
// for speech, converts it to the wire format and hands it to the
// transcriber when one is available.
func runCaptureLoop(ctx context.Context, cfg *config.Config, manager *audio.Manager, transcriber stt.Transcriber) {
	logger := observability.WithComponent("capture_loop")

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		input, err := manager.RecordVoiceInput(ctx)
		if err != nil {
			logger.Error().Err(err).Msg("Recording failed")
			// Back off so a persistent device failure doesn't spin
			select {
			case <-ctx.Done():
				return
			case <-time.After(2 * time.Second):
			}
			continue
		}
		if input == nil {
			logger.Debug().Msg("No voice captured")
			continue
		}

		// One recording ID ties the utterance's logs and metrics together
		recordingID := observability.NewRecordingID()
		rlog := observability.WithRecordingID(recordingID)

		rlog.Info().
			Str("path", input.Path).
			Dur("duration", input.Duration).
			Int("bytes", len(input.Data)).
			Msg("Voice input captured")

		if transcriber == nil {
			continue
		}

		wire := manager.ConvertToWireFormat(input.Data)
		metrics := observability.NewRecordingMetrics(recordingID)
		metrics.RecordSTTStart()
		text, err := transcriber.Transcribe(ctx, wire)
		metrics.RecordSTTEnd(err == nil)
		if err != nil {
			rlog.Error().Err(err).Msg("Transcription failed")
			continue
		}
		rlog.Info().Str("transcript", text).Msg("Transcription complete")
	}
}
