// Package tts provides text-to-speech for the interviewer's voice.
package tts

import (
	"context"
	"fmt"
	"io"
	"net/http"
)

// Provider is the interface for text-to-speech services.
type Provider interface {
	// Name returns the provider identifier.
	Name() string

	// Synthesize converts text to raw 16-bit mono PCM.
	Synthesize(ctx context.Context, text string, opts SynthesizeOptions) (*Synthesis, error)
}

// SynthesizeOptions configures synthesis.
type SynthesizeOptions struct {
	Voice      string  // Provider voice identifier
	Speed      float64 // Speed multiplier, 0 keeps the provider default
	Language   string  // Language code
	SampleRate int     // Output sample rate (default: 16000)
}

func (o SynthesizeOptions) withDefaults() SynthesizeOptions {
	if o.SampleRate <= 0 {
		o.SampleRate = 16000
	}
	if o.Language == "" {
		o.Language = "en"
	}
	return o
}

// Synthesis is the result of synthesis.
type Synthesis struct {
	Audio      []byte // PCM, little-endian 16-bit mono
	SampleRate int
}

// statusError reads a bounded error body from a failed response.
func statusError(provider string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return fmt.Errorf("%s error %d: %s", provider, resp.StatusCode, string(body))
}
