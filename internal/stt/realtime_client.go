package stt

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/asem187/voice-pipeline/internal/config"
	"github.com/asem187/voice-pipeline/internal/observability"
	"github.com/asem187/voice-pipeline/internal/resilience"
)

// event is the envelope every realtime API message shares
type event struct {
	Type       string          `json:"type"`
	Transcript string          `json:"transcript,omitempty"`
	Audio      string          `json:"audio,omitempty"`
	Session    json.RawMessage `json:"session,omitempty"`
	Error      *apiError       `json:"error,omitempty"`
}

type apiError struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// sessionUpdate configures the realtime session for transcription
type sessionUpdate struct {
	Type    string         `json:"type"`
	Session sessionPayload `json:"session"`
}

type sessionPayload struct {
	Modalities              []string          `json:"modalities"`
	InputAudioFormat        string            `json:"input_audio_format"`
	InputAudioTranscription map[string]string `json:"input_audio_transcription"`
	TurnDetection           interface{}       `json:"turn_detection"`
}

// RealtimeClient speaks the OpenAI realtime websocket protocol for
// transcription. Audio must already be in the wire format (24 kHz mono
// 16-bit PCM); the pipeline's FormatConverter produces exactly that.
type RealtimeClient struct {
	cfg     *config.Config
	logger  zerolog.Logger
	breaker *resilience.CircuitBreaker

	mu      sync.Mutex
	conn    *websocket.Conn
	events  chan event
	readerr chan error
}

// NewRealtimeClient creates a client from configuration. Connect must
// be called before Transcribe.
func NewRealtimeClient(cfg *config.Config) *RealtimeClient {
	return &RealtimeClient{
		cfg:    cfg,
		logger: observability.WithComponent("stt"),
		breaker: resilience.NewCircuitBreaker(
			"openai_realtime",
			cfg.CircuitBreakerMaxFailures,
			time.Duration(cfg.CircuitBreakerResetTimeout)*time.Second,
		),
	}
}

// Connect dials the realtime endpoint and configures the session for
// pcm16 transcription. Connection attempts are retried with backoff
// and guarded by the circuit breaker.
func (c *RealtimeClient) Connect(ctx context.Context) error {
	if c.cfg.OpenAIAPIKey == "" {
		return fmt.Errorf("stt: OPENAI_API_KEY not configured")
	}

	retryCfg := &resilience.RetryConfig{
		MaxAttempts:       c.cfg.RetryMaxAttempts,
		InitialBackoff:    time.Duration(c.cfg.RetryInitialBackoff) * time.Millisecond,
		MaxBackoff:        5 * time.Second,
		BackoffMultiplier: 2.0,
	}

	return resilience.Retry(ctx, func() error {
		return c.breaker.Call(func() error {
			return c.dial(ctx)
		})
	}, retryCfg)
}

func (c *RealtimeClient) dial(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		return nil
	}

	url := fmt.Sprintf("%s?model=%s", c.cfg.RealtimeURL, c.cfg.RealtimeModel)
	header := http.Header{}
	header.Set("Authorization", "Bearer "+c.cfg.OpenAIAPIKey)
	header.Set("OpenAI-Beta", "realtime=v1")

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, url, header)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("stt: dial realtime API (status %d): %w", resp.StatusCode, err)
		}
		return fmt.Errorf("stt: dial realtime API: %w", err)
	}

	update := sessionUpdate{
		Type: "session.update",
		Session: sessionPayload{
			Modalities:       []string{"text"},
			InputAudioFormat: "pcm16",
			InputAudioTranscription: map[string]string{
				"model": "whisper-1",
			},
			TurnDetection: nil,
		},
	}
	if err := conn.WriteJSON(update); err != nil {
		_ = conn.Close()
		return fmt.Errorf("stt: configure session: %w", err)
	}

	c.conn = conn
	c.events = make(chan event, 16)
	c.readerr = make(chan error, 1)
	go c.readLoop(conn, c.events, c.readerr)

	c.logger.Info().Str("model", c.cfg.RealtimeModel).Msg("realtime transcription session open")
	return nil
}

// readLoop pumps server events into the event channel until the
// connection drops. The read error is recorded before events is
// closed, so a consumer sees every buffered event before the error.
func (c *RealtimeClient) readLoop(conn *websocket.Conn, events chan<- event, readerr chan<- error) {
	defer close(events)
	for {
		var ev event
		if err := conn.ReadJSON(&ev); err != nil {
			readerr <- err
			return
		}
		select {
		case events <- ev:
		default:
			// Drop uninteresting events rather than stall the reader
			c.logger.Debug().Str("type", ev.Type).Msg("event channel full, dropping event")
		}
	}
}

// Transcribe sends one utterance and waits for its transcript. The
// audio buffer is appended in a single message and committed; the call
// returns when the transcription-completed event arrives, an API error
// is reported, or ctx expires.
func (c *RealtimeClient) Transcribe(ctx context.Context, pcm []byte) (string, error) {
	c.mu.Lock()
	conn := c.conn
	events := c.events
	readerr := c.readerr
	c.mu.Unlock()

	if conn == nil {
		return "", fmt.Errorf("stt: not connected")
	}
	if len(pcm) == 0 {
		return "", fmt.Errorf("stt: empty audio buffer")
	}

	timeout := time.Duration(c.cfg.STTTimeout) * time.Second
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	appendEv := event{
		Type:  "input_audio_buffer.append",
		Audio: base64.StdEncoding.EncodeToString(pcm),
	}
	if err := conn.WriteJSON(appendEv); err != nil {
		return "", fmt.Errorf("stt: append audio: %w", err)
	}
	if err := conn.WriteJSON(event{Type: "input_audio_buffer.commit"}); err != nil {
		return "", fmt.Errorf("stt: commit audio: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return "", fmt.Errorf("stt: transcription timed out: %w", ctx.Err())
		case ev, ok := <-events:
			if !ok {
				// A closed channel yields its buffered events first, and
				// readLoop records the error before closing, so any
				// transcript received before a disconnect wins over the
				// read error.
				select {
				case err := <-readerr:
					return "", fmt.Errorf("stt: connection lost: %w", err)
				default:
				}
				return "", fmt.Errorf("stt: connection closed")
			}
			switch ev.Type {
			case "conversation.item.input_audio_transcription.completed":
				return ev.Transcript, nil
			case "conversation.item.input_audio_transcription.failed", "error":
				if ev.Error != nil {
					return "", fmt.Errorf("stt: %s: %s", ev.Error.Code, ev.Error.Message)
				}
				return "", fmt.Errorf("stt: transcription failed")
			default:
				// Session bookkeeping events are ignored
			}
		}
	}
}

// Close shuts down the websocket connection
func (c *RealtimeClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}
