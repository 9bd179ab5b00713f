package llm

import (
	"context"
	"fmt"
	"strings"

	openaigo "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

const (
	// DefaultOpenAIBaseURL is the public OpenAI endpoint.
	DefaultOpenAIBaseURL = "https://api.openai.com/v1"
	// DefaultOpenAIModel is used when no model is configured.
	DefaultOpenAIModel = "gpt-4o-mini"
	// DefaultOllamaModel is the self-hosted interview model.
	DefaultOllamaModel = "gemma2:9b-instruct-q8_0"
)

// OpenAI talks to any OpenAI-compatible chat completions endpoint.
type OpenAI struct {
	client openaigo.Client
	name   string
	model  string
	temp   float64
}

// NewOpenAI creates a provider for the OpenAI API.
func NewOpenAI(apiKey string, opts ...Option) (*OpenAI, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("openai: api key is required")
	}
	o := defaultOptions()
	o.baseURL = DefaultOpenAIBaseURL
	o.model = DefaultOpenAIModel
	o.name = "openai"
	for _, opt := range opts {
		opt(&o)
	}
	return newOpenAICompatible(apiKey, o), nil
}

// NewOllama creates a provider for a self-hosted Ollama server. baseURL is
// the server root (for example http://ollama:11434); the OpenAI-compatible
// path is appended.
func NewOllama(baseURL string, opts ...Option) (*OpenAI, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("ollama: base url is required")
	}
	o := defaultOptions()
	o.baseURL = baseURL + "/v1"
	o.model = DefaultOllamaModel
	o.name = "ollama"
	for _, opt := range opts {
		opt(&o)
	}
	// Ollama ignores the key but the client requires one.
	return newOpenAICompatible("ollama", o), nil
}

func newOpenAICompatible(apiKey string, o options) *OpenAI {
	client := openaigo.NewClient(
		option.WithBaseURL(o.baseURL),
		option.WithAPIKey(apiKey),
		option.WithHTTPClient(o.httpClient),
		option.WithMaxRetries(o.maxRetries),
	)
	return &OpenAI{client: client, name: o.name, model: o.model, temp: o.temperature}
}

// Name returns the provider identifier.
func (p *OpenAI) Name() string { return p.name }

// Model returns the configured model.
func (p *OpenAI) Model() string { return p.model }

// Chat sends one chat completion request.
func (p *OpenAI) Chat(ctx context.Context, req ChatRequest) (string, error) {
	turns := conversationTurns(req.Messages)
	messages := make([]openaigo.ChatCompletionMessageParamUnion, 0, len(turns)+1)
	if sys := strings.TrimSpace(req.System); sys != "" {
		messages = append(messages, openaigo.SystemMessage(sys))
	}
	for _, t := range turns {
		if t.assistant {
			messages = append(messages, openaigo.AssistantMessage(t.text))
		} else {
			messages = append(messages, openaigo.UserMessage(t.text))
		}
	}

	resp, err := p.client.Chat.Completions.New(ctx, openaigo.ChatCompletionNewParams{
		Model:       openaigo.ChatModel(p.model),
		Messages:    messages,
		Temperature: openaigo.Float(p.temp),
	})
	if err != nil {
		return "", fmt.Errorf("%s chat: %w", p.name, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%s chat: %w", p.name, ErrEmptyReply)
	}
	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", fmt.Errorf("%s chat: %w", p.name, ErrEmptyReply)
	}
	return text, nil
}
