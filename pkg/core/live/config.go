package live

import (
	"context"
	"log/slog"
	"time"

	"github.com/vango-go/vai-interviewer/pkg/core/voice"
	"github.com/vango-go/vai-interviewer/pkg/providers"
)

// Config tunes an Engine.
type Config struct {
	Language string
	Format   voice.Format
	// Voice is passed to the synthesis provider.
	Voice string
	// ReplyTimeout bounds one model call plus its synthesis.
	ReplyTimeout time.Duration
	// PaceAudio publishes synthesized audio at real-time speed so speech
	// events line up with what the candidate hears.
	PaceAudio bool
	// FrameMs is the size of published audio frames.
	FrameMs int
	Logger  *slog.Logger
	Now     func() time.Time
}

// DefaultConfig returns the production engine settings.
func DefaultConfig() Config {
	return Config{
		Language:     "en",
		Format:       voice.DefaultFormat(),
		ReplyTimeout: 60 * time.Second,
		PaceAudio:    true,
		FrameMs:      100,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.Language == "" {
		c.Language = def.Language
	}
	if c.Format.BytesPerSecond() == 0 {
		c.Format = def.Format
	}
	if c.ReplyTimeout <= 0 {
		c.ReplyTimeout = def.ReplyTimeout
	}
	if c.FrameMs <= 0 {
		c.FrameMs = def.FrameMs
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c
}

// MediaRoom is the part of a realtime room the engine drives.
type MediaRoom interface {
	Audio() <-chan []byte
	PublishAudio(ctx context.Context, pcm []byte) error
}

// StartOptions carries the per-session inputs of Start.
type StartOptions struct {
	Instructions string
	Providers    providers.Set
	Room         MediaRoom
}
