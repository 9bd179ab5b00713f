package llm

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

// DefaultGeminiModel is used when no model is configured.
const DefaultGeminiModel = "gemini-2.0-flash"

// Gemini uses the Gemini Developer API.
type Gemini struct {
	client *genai.Client
	model  string
	temp   float32
}

// NewGemini creates a Gemini provider.
func NewGemini(ctx context.Context, apiKey string, opts ...Option) (*Gemini, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("gemini: api key is required")
	}
	o := defaultOptions()
	o.model = DefaultGeminiModel
	for _, opt := range opts {
		opt(&o)
	}

	cfg := &genai.ClientConfig{
		APIKey:     apiKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: o.httpClient,
	}
	if o.baseURL != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: o.baseURL + "/"}
	}
	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("gemini: create client: %w", err)
	}
	return &Gemini{client: client, model: o.model, temp: float32(o.temperature)}, nil
}

// Name returns the provider identifier.
func (p *Gemini) Name() string { return "gemini" }

// Model returns the configured model.
func (p *Gemini) Model() string { return p.model }

// Chat sends one generateContent request.
func (p *Gemini) Chat(ctx context.Context, req ChatRequest) (string, error) {
	turns := conversationTurns(req.Messages)
	contents := make([]*genai.Content, 0, len(turns))
	for _, t := range turns {
		role := genai.Role(genai.RoleUser)
		if t.assistant {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(t.text, role))
	}
	if len(contents) == 0 {
		// generateContent rejects an empty conversation.
		contents = append(contents, genai.NewContentFromText("Begin.", genai.RoleUser))
	}

	cfg := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(p.temp),
	}
	if sys := strings.TrimSpace(req.System); sys != "" {
		cfg.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: sys}}}
	}

	resp, err := p.client.Models.GenerateContent(ctx, p.model, contents, cfg)
	if err != nil {
		return "", fmt.Errorf("gemini chat: %w", err)
	}
	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", fmt.Errorf("gemini chat: %w", ErrEmptyReply)
	}
	return text, nil
}
