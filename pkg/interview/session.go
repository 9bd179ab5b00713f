package interview

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/vango-go/vai-interviewer/pkg/core"
	"github.com/vango-go/vai-interviewer/pkg/core/live"
	"github.com/vango-go/vai-interviewer/pkg/providers"
	"github.com/vango-go/vai-interviewer/pkg/room"
)

// State is a lifecycle state of a Session.
type State string

const (
	StateIdle                State = "idle"
	StateConnecting          State = "connecting"
	StateAwaitingParticipant State = "awaiting_participant"
	StateActive              State = "active"
	StateClosing             State = "closing"
	StateTerminated          State = "terminated"
)

// EndReason says why a session left the Active state, or why it never
// reached it.
type EndReason string

const (
	EndParticipantLeft EndReason = "participant_left"
	EndTimeout         EndReason = "timeout"
	EndEngineError     EndReason = "engine_error"
	EndRoomClosed      EndReason = "room_closed"
	EndCancelled       EndReason = "cancelled"

	EndConfiguration EndReason = "configuration_error"
	EndConnectFailed EndReason = "connect_failed"
	EndNoParticipant EndReason = "no_participant"
)

// Outcome is the result of one session.
type Outcome struct {
	Identity    Identity
	Transcript  string
	CompletedAt time.Time
	Status      string
	EndReason   EndReason
	// Persisted is true when the transcript reached the backend.
	Persisted bool
	// Duration is the time spent in the Active state.
	Duration time.Duration
}

// Options are the session timings.
type Options struct {
	// MaxDuration is the hard ceiling on the Active state.
	MaxDuration time.Duration
	// ClosingGrace is how long the closing prompt is given to play out
	// before the room is disconnected.
	ClosingGrace time.Duration
	// OpeningDelay lets the room and audio pipeline settle before the greeting.
	OpeningDelay time.Duration
	// PersistTimeout bounds teardown, which runs detached from cancellation.
	PersistTimeout time.Duration
	// ParticipantTimeout bounds the participant wait. Zero waits until the
	// context ends.
	ParticipantTimeout time.Duration
	IncludeSystem      bool
}

// DefaultOptions returns the production timings.
func DefaultOptions() Options {
	return Options{
		MaxDuration:    20 * time.Minute,
		ClosingGrace:   5 * time.Second,
		OpeningDelay:   2 * time.Second,
		PersistTimeout: 30 * time.Second,
	}
}

// ProviderSelector picks the provider set. *providers.Selector implements it.
type ProviderSelector interface {
	Select(ctx context.Context, cfg providers.ProviderConfig) (providers.Set, error)
}

// Notifier observes session start and finish.
type Notifier interface {
	SessionStarted(ctx context.Context, sessionID, roomName string, id Identity)
	SessionFinished(ctx context.Context, sessionID, roomName string, outcome Outcome)
}

// Config wires a Session.
type Config struct {
	// ID labels the session in logs and events.
	ID        string
	Room      Room
	Engine    Engine
	Backend   BackendAPI
	Selector  ProviderSelector
	Providers providers.ProviderConfig
	Compiler  Compiler
	Options   Options
	Notifier  Notifier
	// OnSpeech receives the engine's speech notifications while Active.
	OnSpeech live.SpeechListener
	Logger   *slog.Logger
	Now      func() time.Time
}

// Session runs one interview from room join to transcript persistence.
// A Session is single use.
type Session struct {
	cfg    Config
	opts   Options
	logger *slog.Logger

	mu    sync.Mutex
	state State
	ran   bool

	disconnectOnce sync.Once
	disconnectErr  error
}

// NewSession creates a session. A zero MaxDuration or PersistTimeout takes
// the DefaultOptions value; the other timings are used as given.
func NewSession(cfg Config) *Session {
	opts := cfg.Options
	def := DefaultOptions()
	if opts.MaxDuration <= 0 {
		opts.MaxDuration = def.MaxDuration
	}
	if opts.ClosingGrace < 0 {
		opts.ClosingGrace = 0
	}
	if opts.OpeningDelay < 0 {
		opts.OpeningDelay = 0
	}
	if opts.PersistTimeout <= 0 {
		opts.PersistTimeout = def.PersistTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Selector == nil {
		cfg.Selector = providers.NewSelector(cfg.Logger)
	}
	return &Session{cfg: cfg, opts: opts, logger: cfg.Logger, state: StateIdle}
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	prev := s.state
	s.state = st
	s.mu.Unlock()
	if prev != st {
		s.logger.Info("session state changed", "from", string(prev), "to", string(st))
	}
}

// Run drives the session to completion. It returns an error only when the
// session could not reach the Active state: a configuration error (no
// language model, in which case the room is never joined) or a room
// transport error. Once Active, failures end the interview early but the
// transcript is still extracted and persisted, and Run returns nil.
func (s *Session) Run(ctx context.Context) (Outcome, error) {
	if s.cfg.Room == nil || s.cfg.Engine == nil {
		return Outcome{}, core.NewConfigurationError("run session", errors.New("room and engine are required"))
	}
	s.mu.Lock()
	ran := s.ran
	s.ran = true
	s.mu.Unlock()
	if ran {
		return Outcome{}, core.NewConfigurationError("run session", errors.New("session already run"))
	}

	roomName := s.cfg.Room.Name()
	id := ResolveIdentity(roomName)
	s.logger = s.logger.With("session_id", s.cfg.ID, "room", roomName, "identity", id.String())
	if id.Kind == IdentityUnknown {
		s.logger.Warn("room name carries no interview identity, using generic context")
	}

	fetcher := &Fetcher{Backend: s.cfg.Backend, Logger: s.logger}
	brief := fetcher.Fetch(ctx, id)
	instructions := s.cfg.Compiler.Compile(brief)
	s.logger.Info("interview context resolved",
		"candidate", brief.CandidateName,
		"role", brief.RoleTitle,
		"kind", string(brief.Kind),
		"skills", len(brief.Skills),
		"resume", brief.ResumeExcerpt != "")

	set, err := s.cfg.Selector.Select(ctx, s.cfg.Providers)
	if err != nil {
		s.logger.Error("provider selection failed, session will not start", "error", err)
		s.setState(StateTerminated)
		return Outcome{Identity: id, EndReason: EndConfiguration}, err
	}

	s.setState(StateConnecting)
	if err := s.cfg.Room.Connect(ctx, room.SubscribeAudioOnly); err != nil {
		s.logger.Error("failed to join room", "error", err)
		s.setState(StateTerminated)
		return Outcome{Identity: id, EndReason: EndConnectFailed}, core.NewTransportError("connect room", err)
	}

	s.setState(StateAwaitingParticipant)
	participant, err := s.waitForParticipant(ctx)
	if err != nil {
		s.logger.Warn("no participant joined", "error", err)
		s.disconnect(context.WithoutCancel(ctx))
		s.setState(StateTerminated)
		return Outcome{Identity: id, EndReason: EndNoParticipant}, core.NewTransportError("wait for participant", err)
	}
	s.logger.Info("participant joined", "participant", participant.Identity)

	return s.runActive(ctx, id, brief, instructions, set, participant), nil
}

func (s *Session) waitForParticipant(ctx context.Context) (room.Participant, error) {
	if s.opts.ParticipantTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.ParticipantTimeout)
		defer cancel()
	}
	return s.cfg.Room.WaitForParticipant(ctx)
}

// runActive holds the Active state. Teardown is deferred so it runs on
// every exit, including panics from the engine.
func (s *Session) runActive(ctx context.Context, id Identity, brief Brief, instructions string, set providers.Set, p room.Participant) (out Outcome) {
	out = Outcome{Identity: id, Status: StatusFinished}
	unsubscribe := func() {}
	startedAt := s.cfg.Now()

	s.setState(StateActive)
	if s.cfg.Notifier != nil {
		s.cfg.Notifier.SessionStarted(ctx, s.cfg.ID, s.cfg.Room.Name(), id)
	}

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("interview panicked", "panic", fmt.Sprint(r), "stack", string(debug.Stack()))
			out.EndReason = EndEngineError
		}
		out.Duration = s.cfg.Now().Sub(startedAt)
		s.teardown(ctx, unsubscribe, &out)
	}()

	err := s.cfg.Engine.Start(ctx, live.StartOptions{
		Instructions: instructions,
		Providers:    set,
		Room:         s.cfg.Room,
	})
	if err != nil {
		s.logger.Error("conversation engine failed to start", "error", err)
		out.EndReason = EndEngineError
		return out
	}
	unsubscribe = s.cfg.Engine.Subscribe(s.onSpeech)

	if s.opts.OpeningDelay > 0 {
		t := time.NewTimer(s.opts.OpeningDelay)
		select {
		case <-ctx.Done():
			t.Stop()
			out.EndReason = EndCancelled
			return out
		case <-t.C:
		}
	}

	if err := s.cfg.Engine.GenerateReply(ctx, s.cfg.Compiler.OpeningPrompt(brief)); err != nil {
		if ctx.Err() != nil {
			out.EndReason = EndCancelled
			return out
		}
		s.logger.Error("opening greeting failed", "error", err)
		out.EndReason = EndEngineError
		return out
	}

	out.EndReason = s.await(ctx, p)
	return out
}

// await races participant disconnect against the duration ceiling, engine
// failure and cancellation.
func (s *Session) await(ctx context.Context, p room.Participant) EndReason {
	raceCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	left := make(chan error, 1)
	go func() {
		left <- s.cfg.Room.WaitForParticipantDisconnect(raceCtx, p.Identity)
	}()

	timer := time.NewTimer(s.opts.MaxDuration)
	defer timer.Stop()

	select {
	case err := <-left:
		switch {
		case err == nil:
			s.logger.Info("participant left")
			return EndParticipantLeft
		case ctx.Err() != nil:
			return EndCancelled
		default:
			if !errors.Is(err, room.ErrClosed) {
				s.logger.Warn("participant wait ended with error", "error", err)
			}
			return EndRoomClosed
		}
	case <-timer.C:
		s.logger.Info("interview reached maximum duration", "max_duration", s.opts.MaxDuration.String())
		s.closeOnTimeout(ctx, left)
		return EndTimeout
	case <-s.cfg.Engine.Done():
		s.logger.Error("conversation engine stopped", "error", s.cfg.Engine.Err())
		return EndEngineError
	case <-ctx.Done():
		return EndCancelled
	}
}

// closeOnTimeout issues the closing prompt once, gives it the grace period
// to play out, then disconnects. The participant may already be leaving.
func (s *Session) closeOnTimeout(ctx context.Context, left <-chan error) {
	if err := s.cfg.Engine.GenerateReply(ctx, s.cfg.Compiler.ClosingPrompt()); err != nil {
		s.logger.Warn("closing prompt failed", "error", err)
	}
	if s.opts.ClosingGrace > 0 {
		t := time.NewTimer(s.opts.ClosingGrace)
		defer t.Stop()
		select {
		case <-t.C:
		case <-left:
		case <-ctx.Done():
		}
	}
	s.disconnect(context.WithoutCancel(ctx))
}

func (s *Session) disconnect(ctx context.Context) {
	s.disconnectOnce.Do(func() {
		ctx, cancel := context.WithTimeout(ctx, s.opts.PersistTimeout)
		defer cancel()
		s.disconnectErr = s.cfg.Room.Disconnect(ctx)
		if s.disconnectErr != nil {
			s.logger.Warn("room disconnect failed", "error", s.disconnectErr)
		}
	})
}

// teardown stops the engine before reading its history, so the transcript
// is complete, then persists it. It runs detached from ctx cancellation.
func (s *Session) teardown(ctx context.Context, unsubscribe func(), out *Outcome) {
	s.setState(StateClosing)
	s.logger.Info("interview ending", "reason", string(out.EndReason))
	unsubscribe()

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.PersistTimeout)
	defer cancel()

	if err := s.cfg.Engine.Close(ctx); err != nil {
		s.logger.Warn("conversation engine close failed", "error", err)
	}
	s.disconnect(ctx)

	out.Transcript = ExtractTranscript(s.cfg.Engine.History(), ExtractOptions{IncludeSystem: s.opts.IncludeSystem})
	out.CompletedAt = s.cfg.Now().UTC()
	s.logger.Info("transcript extracted", "chars", len(out.Transcript))

	persister := &Persister{Backend: s.cfg.Backend, Logger: s.logger, Now: s.cfg.Now}
	if err := persister.Save(ctx, out.Identity, *out); err == nil {
		out.Persisted = out.Identity.Kind != IdentityUnknown
	}

	if s.cfg.Notifier != nil {
		s.cfg.Notifier.SessionFinished(ctx, s.cfg.ID, s.cfg.Room.Name(), *out)
	}
	s.setState(StateTerminated)
}

func (s *Session) onSpeech(ev live.SpeechEvent) {
	s.logger.Debug("speech event",
		"kind", string(ev.Kind),
		"speaker", string(ev.Speaker),
		"chars", len(ev.Text))
	if s.cfg.OnSpeech != nil {
		s.cfg.OnSpeech(ev)
	}
}
