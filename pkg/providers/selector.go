package providers

import (
	"context"
	"errors"
	"log/slog"

	"github.com/vango-go/vai-interviewer/pkg/core"
	"github.com/vango-go/vai-interviewer/pkg/core/llm"
	"github.com/vango-go/vai-interviewer/pkg/core/voice/stt"
	"github.com/vango-go/vai-interviewer/pkg/core/voice/tts"
)

// Provider kinds, used in logs and metrics.
const (
	KindSTT = "stt"
	KindTTS = "tts"
	KindLLM = "llm"
)

// Set is the provider handle set for one session.
type Set struct {
	STT     stt.Provider
	TTS     tts.Provider
	LLM     llm.Provider
	STTName string
	TTSName string
	LLMName string
}

// Recorder observes successful selections.
type Recorder interface {
	ProviderSelected(kind, name string)
}

// Selector evaluates the three chains.
type Selector struct {
	STT      []Option[stt.Provider]
	TTS      []Option[tts.Provider]
	LLM      []Option[llm.Provider]
	Logger   *slog.Logger
	Recorder Recorder
}

// NewSelector returns a selector with the default chains.
func NewSelector(logger *slog.Logger) *Selector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Selector{
		STT:    DefaultSTTChain(logger),
		TTS:    DefaultTTSChain(),
		LLM:    DefaultLLMChain(),
		Logger: logger,
	}
}

// Select picks one provider per kind. The language model is chosen first;
// when none is configured the returned error is a configuration error
// wrapping ErrNoLanguageModel and no other provider is constructed.
func (s *Selector) Select(ctx context.Context, cfg ProviderConfig) (Set, error) {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var set Set
	var err error

	set.LLM, set.LLMName, err = First(ctx, cfg, s.LLM, logger)
	if err != nil {
		logger.Error("no language model provider configured", "chain", Names(s.LLM))
		return Set{}, core.NewConfigurationError("select llm provider", ErrNoLanguageModel)
	}
	s.selected(logger, KindLLM, set.LLMName)

	set.STT, set.STTName, err = First(ctx, cfg, s.STT, logger)
	if err != nil {
		return Set{}, core.NewConfigurationError("select stt provider", kindError(KindSTT, err))
	}
	s.selected(logger, KindSTT, set.STTName)

	set.TTS, set.TTSName, err = First(ctx, cfg, s.TTS, logger)
	if err != nil {
		return Set{}, core.NewConfigurationError("select tts provider", kindError(KindTTS, err))
	}
	s.selected(logger, KindTTS, set.TTSName)

	return set, nil
}

func (s *Selector) selected(logger *slog.Logger, kind, name string) {
	logger.Info("provider selected", "kind", kind, "provider", name)
	if s.Recorder != nil {
		s.Recorder.ProviderSelected(kind, name)
	}
}

// IsNoLanguageModel reports whether err is the missing-LLM configuration error.
func IsNoLanguageModel(err error) bool {
	return errors.Is(err, ErrNoLanguageModel)
}
