// Package stt provides streaming speech-to-text for live interview audio.
package stt

import (
	"context"
	"errors"
)

// ErrStreamClosed is returned when audio is sent to a closed stream.
var ErrStreamClosed = errors.New("stt: stream closed")

// Provider is the interface for speech-to-text services.
type Provider interface {
	// Name returns the provider identifier.
	Name() string

	// NewStream opens a live transcription session. Audio is pushed with
	// SendAudio and results arrive on Transcripts until Close.
	NewStream(ctx context.Context, cfg StreamConfig) (Stream, error)
}

// StreamConfig configures a live transcription session.
type StreamConfig struct {
	Model      string // Provider-specific model
	Language   string // ISO language code (default: "en")
	SampleRate int    // PCM sample rate in Hz (default: 16000)
}

func (c StreamConfig) withDefaults() StreamConfig {
	if c.Language == "" {
		c.Language = "en"
	}
	if c.SampleRate <= 0 {
		c.SampleRate = 16000
	}
	return c
}

// Stream is one live transcription session.
type Stream interface {
	// SendAudio pushes little-endian 16-bit mono PCM.
	SendAudio(pcm []byte) error
	// Transcripts is closed when the session ends.
	Transcripts() <-chan TranscriptDelta
	Close() error
}

// TranscriptDelta is a streaming transcript update.
type TranscriptDelta struct {
	Text          string // Utterance text; empty for SpeechStarted
	IsFinal       bool   // True once the speaker finished the utterance
	SpeechStarted bool   // Voice activity began
}
