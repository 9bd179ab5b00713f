package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

const (
	deepgramBaseURL      = "https://api.deepgram.com"
	deepgramDefaultVoice = "aura-asteria-en"
)

// Deepgram synthesizes speech with Deepgram Aura.
type Deepgram struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// NewDeepgram creates a Deepgram TTS provider.
func NewDeepgram(apiKey string, client *http.Client) *Deepgram {
	if client == nil {
		client = &http.Client{}
	}
	return &Deepgram{apiKey: strings.TrimSpace(apiKey), baseURL: deepgramBaseURL, httpClient: client}
}

// WithBaseURL overrides the REST endpoint.
func (d *Deepgram) WithBaseURL(base string) *Deepgram {
	if base = strings.TrimRight(strings.TrimSpace(base), "/"); base != "" {
		d.baseURL = base
	}
	return d
}

// Name returns the provider identifier.
func (d *Deepgram) Name() string {
	return "deepgram"
}

// Synthesize converts text to PCM.
func (d *Deepgram) Synthesize(ctx context.Context, text string, opts SynthesizeOptions) (*Synthesis, error) {
	opts = opts.withDefaults()
	voice := opts.Voice
	if voice == "" {
		voice = deepgramDefaultVoice
	}

	u, err := url.Parse(d.baseURL + "/v1/speak")
	if err != nil {
		return nil, fmt.Errorf("parse url: %w", err)
	}
	q := u.Query()
	q.Set("model", voice)
	q.Set("encoding", "linear16")
	q.Set("container", "none")
	q.Set("sample_rate", strconv.Itoa(opts.SampleRate))
	u.RawQuery = q.Encode()

	body, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Token "+d.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("deepgram request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, statusError("deepgram", resp)
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read audio: %w", err)
	}
	return &Synthesis{Audio: audio, SampleRate: opts.SampleRate}, nil
}
