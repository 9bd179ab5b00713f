package interview

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/vango-go/vai-interviewer/pkg/core/live"
	"github.com/vango-go/vai-interviewer/pkg/core/types"
	"github.com/vango-go/vai-interviewer/pkg/interview/backend"
	"github.com/vango-go/vai-interviewer/pkg/providers"
	"github.com/vango-go/vai-interviewer/pkg/room"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeRoom struct {
	name        string
	participant room.Participant
	connectErr  error
	leave       chan struct{}
	audio       chan []byte

	mu             sync.Mutex
	connects       int
	disconnects    int
	disconnectedAt time.Time
}

func newFakeRoom(name string) *fakeRoom {
	return &fakeRoom{
		name:        name,
		participant: room.Participant{Identity: "candidate-1"},
		leave:       make(chan struct{}),
		audio:       make(chan []byte),
	}
}

func (r *fakeRoom) Name() string { return r.name }

func (r *fakeRoom) Connect(ctx context.Context, mode room.SubscribeMode) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.connects++
	return r.connectErr
}

func (r *fakeRoom) WaitForParticipant(ctx context.Context) (room.Participant, error) {
	return r.participant, nil
}

func (r *fakeRoom) WaitForParticipantDisconnect(ctx context.Context, identity string) error {
	select {
	case <-r.leave:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *fakeRoom) Disconnect(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.disconnects++
	r.disconnectedAt = time.Now()
	return nil
}

func (r *fakeRoom) Audio() <-chan []byte { return r.audio }

func (r *fakeRoom) PublishAudio(ctx context.Context, pcm []byte) error { return nil }

func (r *fakeRoom) counts() (connects, disconnects int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.connects, r.disconnects
}

type fakeEngine struct {
	history  []types.Message
	startErr error
	// onReply runs inside GenerateReply with the 1-based call number.
	onReply func(n int, instructions string) error

	mu           sync.Mutex
	startOpts    live.StartOptions
	replies      []string
	replyTimes   []time.Time
	closes       int
	unsubscribed int
	historyReads int
	err          error
	done         chan struct{}
	doneOnce     sync.Once
}

func newFakeEngine(history ...types.Message) *fakeEngine {
	return &fakeEngine{history: history, done: make(chan struct{})}
}

func (e *fakeEngine) Start(ctx context.Context, opts live.StartOptions) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.startOpts = opts
	return e.startErr
}

func (e *fakeEngine) GenerateReply(ctx context.Context, instructions string) error {
	e.mu.Lock()
	e.replies = append(e.replies, instructions)
	e.replyTimes = append(e.replyTimes, time.Now())
	n := len(e.replies)
	hook := e.onReply
	e.mu.Unlock()
	if hook != nil {
		return hook(n, instructions)
	}
	return nil
}

func (e *fakeEngine) History() []types.Message {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.historyReads++
	out := make([]types.Message, len(e.history))
	copy(out, e.history)
	return out
}

func (e *fakeEngine) Subscribe(l live.SpeechListener) func() {
	return func() {
		e.mu.Lock()
		e.unsubscribed++
		e.mu.Unlock()
	}
}

func (e *fakeEngine) Done() <-chan struct{} { return e.done }

func (e *fakeEngine) Err() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.err
}

func (e *fakeEngine) fail(err error) {
	e.mu.Lock()
	e.err = err
	e.mu.Unlock()
	e.doneOnce.Do(func() { close(e.done) })
}

func (e *fakeEngine) Close(ctx context.Context) error {
	e.mu.Lock()
	e.closes++
	e.mu.Unlock()
	e.doneOnce.Do(func() { close(e.done) })
	return nil
}

func (e *fakeEngine) snapshot() (replies []string, closes, unsubscribed, historyReads int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.replies...), e.closes, e.unsubscribed, e.historyReads
}

type fakeSelector struct {
	err   error
	calls int
}

func (s *fakeSelector) Select(ctx context.Context, cfg providers.ProviderConfig) (providers.Set, error) {
	s.calls++
	if s.err != nil {
		return providers.Set{}, s.err
	}
	return providers.Set{STTName: "whisper", TTSName: "local", LLMName: "ollama"}, nil
}

type recordedRequest struct {
	Method string
	Path   string
	Body   map[string]any
}

// fakeBackend serves canned JSON per "METHOD /path" and records requests.
type fakeBackend struct {
	srv       *httptest.Server
	responses map[string]string
	status    map[string]int

	mu       sync.Mutex
	requests []recordedRequest
}

func newFakeBackend(t *testing.T, responses map[string]string) *fakeBackend {
	t.Helper()
	fb := &fakeBackend{responses: responses, status: map[string]int{}}
	fb.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := strings.TrimPrefix(r.URL.Path, "/api")
		rec := recordedRequest{Method: r.Method, Path: path}
		if r.Body != nil {
			_ = json.NewDecoder(r.Body).Decode(&rec.Body)
		}
		key := r.Method + " " + path
		fb.mu.Lock()
		fb.requests = append(fb.requests, rec)
		code, failed := fb.status[key]
		body, ok := fb.responses[key]
		fb.mu.Unlock()

		if failed {
			w.WriteHeader(code)
			return
		}
		if !ok {
			if r.Method == http.MethodGet {
				http.NotFound(w, r)
				return
			}
			w.WriteHeader(http.StatusOK)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(fb.srv.Close)
	return fb
}

func (fb *fakeBackend) client() *backend.Client {
	return backend.New(fb.srv.URL+"/api", backend.WithHTTPClient(fb.srv.Client()))
}

func (fb *fakeBackend) setStatus(key string, code int) {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	fb.status[key] = code
}

func (fb *fakeBackend) recorded() []recordedRequest {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	return append([]recordedRequest(nil), fb.requests...)
}

func (fb *fakeBackend) find(method, path string) []recordedRequest {
	var out []recordedRequest
	for _, r := range fb.recorded() {
		if r.Method == method && r.Path == path {
			out = append(out, r)
		}
	}
	return out
}

type recordingNotifier struct {
	mu       sync.Mutex
	started  int
	finished []Outcome
}

func (n *recordingNotifier) SessionStarted(ctx context.Context, sessionID, roomName string, id Identity) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.started++
}

func (n *recordingNotifier) SessionFinished(ctx context.Context, sessionID, roomName string, outcome Outcome) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.finished = append(n.finished, outcome)
}
