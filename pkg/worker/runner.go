package worker

import (
	"context"
	"log/slog"

	"github.com/vango-go/vai-interviewer/pkg/config"
	"github.com/vango-go/vai-interviewer/pkg/core/live"
	"github.com/vango-go/vai-interviewer/pkg/interview"
	"github.com/vango-go/vai-interviewer/pkg/room"
)

// SessionRunner builds a room, an engine and an interview.Session for each
// assignment and runs it.
type SessionRunner struct {
	Config   config.Config
	Backend  interview.BackendAPI
	Selector interview.ProviderSelector
	Notifier interview.Notifier
	Metrics  *Metrics
	Logger   *slog.Logger

	// NewRoom and NewEngine default to the LiveKit room and the live engine.
	NewRoom   func(name string) interview.Room
	NewEngine func() interview.Engine
}

var _ Runner = (*SessionRunner)(nil)

func (r *SessionRunner) Run(ctx context.Context, a Assignment) (interview.Outcome, error) {
	logger := r.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("job_id", a.JobID)

	newRoom := r.NewRoom
	if newRoom == nil {
		newRoom = r.liveKitRoom(logger)
	}
	newEngine := r.NewEngine
	if newEngine == nil {
		newEngine = r.liveEngine(logger)
	}

	var onSpeech live.SpeechListener
	if r.Metrics != nil {
		onSpeech = r.Metrics.RecordSpeech
	}

	s := interview.NewSession(interview.Config{
		ID:        a.JobID,
		Room:      newRoom(a.Room),
		Engine:    newEngine(),
		Backend:   r.Backend,
		Selector:  r.Selector,
		Providers: r.Config.Providers,
		Compiler:  r.Config.Compiler(),
		Options:   r.Config.SessionOptions(),
		Notifier:  r.Notifier,
		OnSpeech:  onSpeech,
		Logger:    logger,
	})
	return s.Run(ctx)
}

func (r *SessionRunner) liveKitRoom(logger *slog.Logger) func(string) interview.Room {
	cfg := room.Config{
		URL:       r.Config.RoomURL,
		APIKey:    r.Config.RoomAPIKey,
		APISecret: r.Config.RoomAPISecret,
		TokenTTL:  r.Config.RoomTokenTTL,
		Logger:    logger,
	}
	return func(name string) interview.Room { return room.New(name, cfg) }
}

func (r *SessionRunner) liveEngine(logger *slog.Logger) func() interview.Engine {
	cfg := live.DefaultConfig()
	cfg.Language = r.Config.Providers.Language
	cfg.Voice = r.Config.Voice
	cfg.Logger = logger
	return func() interview.Engine { return live.New(cfg) }
}
