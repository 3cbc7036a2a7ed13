package stt

import "context"

// Transcriber converts a chunk of wire-format audio (24 kHz mono
// 16-bit PCM) into text. Implementations own their connection
// lifecycle; callers supply pre-converted audio only.
type Transcriber interface {
	Transcribe(ctx context.Context, pcm []byte) (string, error)
	Close() error
}
