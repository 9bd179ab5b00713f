package providers

import (
	"context"
	"log/slog"

	"github.com/vango-go/vai-interviewer/pkg/core/llm"
	"github.com/vango-go/vai-interviewer/pkg/core/voice/stt"
	"github.com/vango-go/vai-interviewer/pkg/core/voice/tts"
)

// DefaultSTTChain is deepgram, then the local whisper endpoint.
func DefaultSTTChain(logger *slog.Logger) []Option[stt.Provider] {
	return []Option[stt.Provider]{
		{
			Name:      "deepgram",
			Available: ProviderConfig.HasDeepgram,
			New: func(_ context.Context, cfg ProviderConfig) (stt.Provider, error) {
				return stt.NewDeepgram(cfg.DeepgramAPIKey), nil
			},
		},
		{
			Name:      "whisper",
			Available: Always,
			New: func(_ context.Context, cfg ProviderConfig) (stt.Provider, error) {
				return stt.NewWhisper(cfg.WhisperURL, cfg.httpClient(), logger), nil
			},
		},
	}
}

// DefaultTTSChain is deepgram, then elevenlabs, then the local speech server.
func DefaultTTSChain() []Option[tts.Provider] {
	return []Option[tts.Provider]{
		{
			Name:      "deepgram",
			Available: ProviderConfig.HasDeepgram,
			New: func(_ context.Context, cfg ProviderConfig) (tts.Provider, error) {
				return tts.NewDeepgram(cfg.DeepgramAPIKey, cfg.httpClient()), nil
			},
		},
		{
			Name:      "elevenlabs",
			Available: ProviderConfig.HasElevenLabs,
			New: func(_ context.Context, cfg ProviderConfig) (tts.Provider, error) {
				return tts.NewElevenLabs(cfg.ElevenLabsAPIKey, cfg.ElevenLabsVoiceID), nil
			},
		},
		{
			Name:      "local",
			Available: Always,
			New: func(_ context.Context, cfg ProviderConfig) (tts.Provider, error) {
				return tts.NewLocal(cfg.LocalTTSURL, cfg.httpClient()), nil
			},
		},
	}
}

// DefaultLLMChain is the local endpoint, then gemini, then openai.
func DefaultLLMChain() []Option[llm.Provider] {
	return []Option[llm.Provider]{
		{
			Name:      "ollama",
			Available: ProviderConfig.HasLocalLLM,
			New: func(_ context.Context, cfg ProviderConfig) (llm.Provider, error) {
				return llm.NewOllama(cfg.LocalLLMURL, llm.WithModel(cfg.LocalLLMModel), llm.WithHTTPClient(cfg.HTTPClient))
			},
		},
		{
			Name:      "gemini",
			Available: ProviderConfig.HasGemini,
			New: func(ctx context.Context, cfg ProviderConfig) (llm.Provider, error) {
				return llm.NewGemini(ctx, cfg.GeminiAPIKey, llm.WithModel(cfg.GeminiModel), llm.WithHTTPClient(cfg.HTTPClient))
			},
		},
		{
			Name:      "openai",
			Available: ProviderConfig.HasOpenAI,
			New: func(_ context.Context, cfg ProviderConfig) (llm.Provider, error) {
				return llm.NewOpenAI(cfg.OpenAIAPIKey, llm.WithModel(cfg.OpenAIModel), llm.WithHTTPClient(cfg.HTTPClient))
			},
		},
	}
}
