// Package providers selects the speech and language backends for a session.
//
// Each kind of provider has an ordered chain of options. An option is a
// predicate over ProviderConfig plus a factory; the first available option
// whose factory succeeds wins. Nothing is probed over the network and
// nothing is retried.
package providers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
)

var (
	// ErrNoLanguageModel means no language-model backend is configured.
	ErrNoLanguageModel = errors.New("no language model provider configured")
	// ErrNoProvider means every option in a chain was unavailable or failed.
	ErrNoProvider = errors.New("no provider available")
)

// ProviderConfig is the immutable provider input assembled once at startup.
type ProviderConfig struct {
	DeepgramAPIKey    string
	ElevenLabsAPIKey  string
	ElevenLabsVoiceID string
	WhisperURL        string
	LocalTTSURL       string

	LocalLLMURL   string
	LocalLLMModel string
	GeminiAPIKey  string
	GeminiModel   string
	OpenAIAPIKey  string
	OpenAIModel   string

	Language   string
	HTTPClient *http.Client
}

// HasLocalLLM reports whether a self-hosted model endpoint is configured.
func (c ProviderConfig) HasLocalLLM() bool { return strings.TrimSpace(c.LocalLLMURL) != "" }

// HasDeepgram reports whether Deepgram credentials are present.
func (c ProviderConfig) HasDeepgram() bool { return strings.TrimSpace(c.DeepgramAPIKey) != "" }

// HasElevenLabs reports whether ElevenLabs credentials are present.
func (c ProviderConfig) HasElevenLabs() bool { return strings.TrimSpace(c.ElevenLabsAPIKey) != "" }

// HasGemini reports whether Gemini credentials are present.
func (c ProviderConfig) HasGemini() bool { return strings.TrimSpace(c.GeminiAPIKey) != "" }

// HasOpenAI reports whether OpenAI credentials are present.
func (c ProviderConfig) HasOpenAI() bool { return strings.TrimSpace(c.OpenAIAPIKey) != "" }

func (c ProviderConfig) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return http.DefaultClient
}

// Option is one link of a fallback chain.
type Option[T any] struct {
	Name      string
	Available func(ProviderConfig) bool
	New       func(context.Context, ProviderConfig) (T, error)
}

// Always is an availability predicate for unconditional fallbacks.
func Always(ProviderConfig) bool { return true }

// First walks chain in order and returns the first provider that is
// available and constructs without error.
func First[T any](ctx context.Context, cfg ProviderConfig, chain []Option[T], logger *slog.Logger) (T, string, error) {
	var zero T
	if logger == nil {
		logger = slog.Default()
	}
	for _, opt := range chain {
		if opt.Available != nil && !opt.Available(cfg) {
			logger.Debug("provider not configured", "provider", opt.Name)
			continue
		}
		p, err := opt.New(ctx, cfg)
		if err != nil {
			logger.Warn("provider construction failed, trying next", "provider", opt.Name, "error", err)
			continue
		}
		return p, opt.Name, nil
	}
	return zero, "", ErrNoProvider
}

// Names lists the option names of a chain in priority order.
func Names[T any](chain []Option[T]) []string {
	out := make([]string, len(chain))
	for i, opt := range chain {
		out[i] = opt.Name
	}
	return out
}

// kindError formats a selection failure for one provider kind.
func kindError(kind string, err error) error {
	return fmt.Errorf("select %s provider: %w", kind, err)
}
