package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// DefaultLocalURL is the self-hosted speech server.
const DefaultLocalURL = "http://localhost:8880"

// Local calls an OpenAI-compatible /v1/audio/speech endpoint on a
// self-hosted speech server. It is the last link of the synthesis chain.
type Local struct {
	baseURL    string
	model      string
	httpClient *http.Client
}

// NewLocal creates a local TTS provider.
func NewLocal(baseURL string, client *http.Client) *Local {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = DefaultLocalURL
	}
	if client == nil {
		client = &http.Client{}
	}
	return &Local{baseURL: baseURL, model: "tts-1", httpClient: client}
}

// Name returns the provider identifier.
func (l *Local) Name() string {
	return "local"
}

type localSpeechRequest struct {
	Model          string  `json:"model"`
	Input          string  `json:"input"`
	Voice          string  `json:"voice"`
	ResponseFormat string  `json:"response_format"`
	SampleRate     int     `json:"sample_rate,omitempty"`
	Speed          float64 `json:"speed,omitempty"`
}

// Synthesize converts text to PCM.
func (l *Local) Synthesize(ctx context.Context, text string, opts SynthesizeOptions) (*Synthesis, error) {
	opts = opts.withDefaults()
	voice := opts.Voice
	if voice == "" {
		voice = "alloy"
	}
	body, err := json.Marshal(localSpeechRequest{
		Model:          l.model,
		Input:          text,
		Voice:          voice,
		ResponseFormat: "pcm",
		SampleRate:     opts.SampleRate,
		Speed:          opts.Speed,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, l.baseURL+"/v1/audio/speech", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := l.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("local tts request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, statusError("local tts", resp)
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read audio: %w", err)
	}
	return &Synthesis{Audio: audio, SampleRate: opts.SampleRate}, nil
}
