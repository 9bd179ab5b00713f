package live

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/vango-go/vai-interviewer/pkg/core"
	"github.com/vango-go/vai-interviewer/pkg/core/llm"
	"github.com/vango-go/vai-interviewer/pkg/core/types"
	"github.com/vango-go/vai-interviewer/pkg/core/voice"
	"github.com/vango-go/vai-interviewer/pkg/core/voice/stt"
	"github.com/vango-go/vai-interviewer/pkg/core/voice/tts"
)

var (
	// ErrClosed is returned by operations on a closed engine.
	ErrClosed = errors.New("live: engine closed")
	// ErrNotStarted is returned by operations before Start.
	ErrNotStarted = errors.New("live: engine not started")
)

// Engine runs one voice conversation.
type Engine struct {
	cfg Config

	mu        sync.Mutex
	started   bool
	closed    bool
	history   []types.Message
	listeners map[int]SpeechListener
	nextID    int
	err       error

	opts     StartOptions
	stream   stt.Stream
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	turnMu   sync.Mutex
	done     chan struct{}
	doneOnce sync.Once
}

// New creates an engine. Zero fields in cfg take DefaultConfig values.
func New(cfg Config) *Engine {
	return &Engine{
		cfg:       cfg.withDefaults(),
		listeners: make(map[int]SpeechListener),
		done:      make(chan struct{}),
	}
}

// Start opens the speech-to-text stream and begins listening to the room.
// The instructions are recorded as the first history entry.
func (e *Engine) Start(ctx context.Context, opts StartOptions) error {
	if opts.Room == nil || opts.Providers.STT == nil || opts.Providers.TTS == nil || opts.Providers.LLM == nil {
		return core.NewEngineError("start", errors.New("room and all providers are required"))
	}

	e.mu.Lock()
	if e.started || e.closed {
		e.mu.Unlock()
		return core.NewEngineError("start", errors.New("engine already started"))
	}
	e.started = true
	e.opts = opts
	e.ctx, e.cancel = context.WithCancel(ctx)
	e.mu.Unlock()

	stream, err := opts.Providers.STT.NewStream(e.ctx, stt.StreamConfig{
		Language:   e.cfg.Language,
		SampleRate: e.cfg.Format.SampleRate,
	})
	if err != nil {
		e.cancel()
		return core.NewEngineError("open stt stream", err)
	}

	e.mu.Lock()
	e.stream = stream
	if strings.TrimSpace(opts.Instructions) != "" {
		e.history = append(e.history, types.NewMessage(types.RoleSystem, opts.Instructions))
	}
	e.mu.Unlock()

	e.wg.Add(2)
	go e.audioLoop()
	go e.transcriptLoop()

	e.cfg.Logger.Info("conversation engine started",
		"stt", opts.Providers.STT.Name(),
		"tts", opts.Providers.TTS.Name(),
		"llm", opts.Providers.LLM.Name())
	return nil
}

func (e *Engine) audioLoop() {
	defer e.wg.Done()
	audio := e.opts.Room.Audio()
	for {
		select {
		case <-e.ctx.Done():
			return
		case frame, ok := <-audio:
			if !ok {
				return
			}
			if err := e.stream.SendAudio(frame); err != nil {
				if errors.Is(err, stt.ErrStreamClosed) || e.ctx.Err() != nil {
					return
				}
				e.fail(core.NewEngineError("send audio", err))
				return
			}
		}
	}
}

func (e *Engine) transcriptLoop() {
	defer e.wg.Done()
	for delta := range e.stream.Transcripts() {
		if e.ctx.Err() != nil {
			continue // drain until the stream closes
		}
		switch {
		case delta.SpeechStarted:
			e.notify(SpeechEvent{Kind: SpeechStarted, Speaker: SpeakerCandidate})
		case delta.IsFinal:
			text := strings.TrimSpace(delta.Text)
			if text == "" {
				continue
			}
			e.notify(SpeechEvent{Kind: SpeechStopped, Speaker: SpeakerCandidate, Text: text})
			if !e.record(types.NewMessage(types.RoleUser, text)) {
				continue
			}
			if err := e.respond(e.ctx, ""); err != nil && e.ctx.Err() == nil {
				e.fail(err)
			}
		}
	}
}

// GenerateReply asks the model for the next interviewer utterance, adding
// instructions for this turn only, and speaks it.
func (e *Engine) GenerateReply(ctx context.Context, instructions string) error {
	e.mu.Lock()
	started, closed := e.started, e.closed
	e.mu.Unlock()
	if !started {
		return ErrNotStarted
	}
	if closed {
		return ErrClosed
	}
	return e.respond(ctx, instructions)
}

// respond runs one model turn. Turns are serialized.
func (e *Engine) respond(ctx context.Context, extra string) error {
	e.turnMu.Lock()
	defer e.turnMu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, e.cfg.ReplyTimeout)
	defer cancel()

	system := e.opts.Instructions
	if extra = strings.TrimSpace(extra); extra != "" {
		system = strings.TrimSpace(system + "\n\n" + extra)
	}

	reply, err := e.opts.Providers.LLM.Chat(ctx, llm.ChatRequest{System: system, Messages: e.History()})
	if err != nil {
		return core.NewEngineError("generate reply", err)
	}
	if !e.record(types.NewMessage(types.RoleAssistant, reply)) {
		return ErrClosed
	}
	return e.speak(ctx, reply)
}

func (e *Engine) speak(ctx context.Context, text string) error {
	e.notify(SpeechEvent{Kind: SpeechStarted, Speaker: SpeakerInterviewer})
	defer e.notify(SpeechEvent{Kind: SpeechStopped, Speaker: SpeakerInterviewer, Text: text})

	opts := tts.SynthesizeOptions{
		Voice:      e.cfg.Voice,
		Language:   e.cfg.Language,
		SampleRate: e.cfg.Format.SampleRate,
	}
	for _, sentence := range voice.SplitSentences(text) {
		out, err := e.opts.Providers.TTS.Synthesize(ctx, sentence, opts)
		if err != nil {
			return core.NewEngineError("synthesize", err)
		}
		if err := e.publish(ctx, out.Audio); err != nil {
			return core.NewEngineError("publish audio", err)
		}
	}
	return nil
}

func (e *Engine) publish(ctx context.Context, pcm []byte) error {
	frame := e.cfg.Format.BytesForDurationMs(e.cfg.FrameMs)
	if frame <= 0 {
		frame = len(pcm)
	}
	var ticker *time.Ticker
	if e.cfg.PaceAudio {
		ticker = time.NewTicker(time.Duration(e.cfg.FrameMs) * time.Millisecond)
		defer ticker.Stop()
	}
	for off := 0; off < len(pcm); off += frame {
		end := min(off+frame, len(pcm))
		if err := e.opts.Room.PublishAudio(ctx, pcm[off:end]); err != nil {
			return err
		}
		if ticker != nil && end < len(pcm) {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
			}
		}
	}
	return nil
}

// record appends to history unless the engine is closed.
func (e *Engine) record(m types.Message) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return false
	}
	e.history = append(e.history, m)
	return true
}

// History returns a snapshot of the conversation so far.
func (e *Engine) History() []types.Message {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]types.Message, len(e.history))
	copy(out, e.history)
	return out
}

// Subscribe registers a speech listener. The returned function removes it
// and may be called more than once.
func (e *Engine) Subscribe(l SpeechListener) func() {
	e.mu.Lock()
	id := e.nextID
	e.nextID++
	e.listeners[id] = l
	e.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			e.mu.Lock()
			delete(e.listeners, id)
			e.mu.Unlock()
		})
	}
}

func (e *Engine) notify(ev SpeechEvent) {
	ev.At = e.cfg.Now()
	e.mu.Lock()
	ls := make([]SpeechListener, 0, len(e.listeners))
	for _, l := range e.listeners {
		ls = append(ls, l)
	}
	e.mu.Unlock()
	for _, l := range ls {
		l(ev)
	}
}

// Done is closed when the engine fails or is closed.
func (e *Engine) Done() <-chan struct{} { return e.done }

// Err returns the failure that ended the engine, if any.
func (e *Engine) Err() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.err
}

func (e *Engine) fail(err error) {
	e.mu.Lock()
	if e.err == nil && !e.closed {
		e.err = err
	}
	e.mu.Unlock()
	e.cfg.Logger.Error("conversation engine failed", "error", err)
	e.doneOnce.Do(func() { close(e.done) })
}

// Close stops listening and speaking. No history entries are recorded after
// Close returns. It waits for engine goroutines until ctx is done.
func (e *Engine) Close(ctx context.Context) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	stream, cancel := e.stream, e.cancel
	e.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	var closeErr error
	if stream != nil {
		closeErr = stream.Close()
	}

	waited := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(waited)
	}()
	select {
	case <-waited:
	case <-ctx.Done():
		closeErr = errors.Join(closeErr, fmt.Errorf("live: close: %w", ctx.Err()))
	}

	e.doneOnce.Do(func() { close(e.done) })
	return closeErr
}
