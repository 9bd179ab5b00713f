// Package llm adapts chat-completion backends to the single call the
// conversation engine needs: given instructions and a history, produce the
// interviewer's next utterance.
package llm

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/vango-go/vai-interviewer/pkg/core/types"
)

// DefaultTemperature matches the sampling used for interview replies.
const DefaultTemperature = 0.7

// ErrEmptyReply is returned when a backend answers without any text.
var ErrEmptyReply = errors.New("llm: empty reply")

// ChatRequest is one turn of generation.
type ChatRequest struct {
	// System carries the compiled instructions. It is sent through the
	// backend's dedicated system channel, never as a history entry.
	System string
	// Messages is the conversation so far. System entries are dropped.
	Messages []types.Message
}

// Provider generates the next assistant utterance.
type Provider interface {
	Name() string
	Chat(ctx context.Context, req ChatRequest) (string, error)
}

// Option configures a provider.
type Option func(*options)

type options struct {
	baseURL     string
	model       string
	name        string
	httpClient  *http.Client
	temperature float64
	maxRetries  int
}

func defaultOptions() options {
	return options{
		httpClient:  http.DefaultClient,
		temperature: DefaultTemperature,
		maxRetries:  1,
	}
}

// WithBaseURL overrides the API endpoint.
func WithBaseURL(url string) Option {
	return func(o *options) {
		o.baseURL = strings.TrimRight(strings.TrimSpace(url), "/")
	}
}

// WithModel sets the model identifier.
func WithModel(model string) Option {
	return func(o *options) {
		if model = strings.TrimSpace(model); model != "" {
			o.model = model
		}
	}
}

// WithHTTPClient sets the HTTP client used for API requests.
func WithHTTPClient(client *http.Client) Option {
	return func(o *options) {
		if client != nil {
			o.httpClient = client
		}
	}
}

// WithTemperature overrides DefaultTemperature.
func WithTemperature(t float64) Option {
	return func(o *options) {
		o.temperature = t
	}
}

// WithMaxRetries sets the client retry budget. Zero disables retries.
func WithMaxRetries(n int) Option {
	return func(o *options) {
		if n >= 0 {
			o.maxRetries = n
		}
	}
}

// WithName overrides the provider name reported by Name.
func WithName(name string) Option {
	return func(o *options) {
		if name != "" {
			o.name = name
		}
	}
}

// turn is a history entry reduced to what a chat backend accepts.
type turn struct {
	assistant bool
	text      string
}

// conversationTurns drops system and blank entries and flattens content.
func conversationTurns(msgs []types.Message) []turn {
	out := make([]turn, 0, len(msgs))
	for _, m := range msgs {
		text := strings.TrimSpace(m.TextContent())
		if text == "" {
			continue
		}
		switch m.Role {
		case types.RoleAssistant:
			out = append(out, turn{assistant: true, text: text})
		case types.RoleUser:
			out = append(out, turn{text: text})
		}
	}
	return out
}
