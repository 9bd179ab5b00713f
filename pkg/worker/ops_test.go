package worker

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/vango-go/vai-interviewer/pkg/core"
	"github.com/vango-go/vai-interviewer/pkg/core/live"
	"github.com/vango-go/vai-interviewer/pkg/interview"
)

func get(t *testing.T, h http.Handler, path string) (int, string) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	body, _ := io.ReadAll(rec.Body)
	return rec.Code, string(body)
}

func TestOps_Health(t *testing.T) {
	w := New(Options{ID: "w1", MaxSessions: 3, Logger: discardLogger()})
	h := NewOpsHandler(w, nil)

	code, body := get(t, h, "/healthz")
	if code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	var got map[string]any
	if err := json.Unmarshal([]byte(body), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got["status"] != "ok" || got["worker_id"] != "w1" || got["capacity"] != float64(3) {
		t.Fatalf("health = %v", got)
	}
}

func TestOps_Ready(t *testing.T) {
	started := make(chan Assignment, 1)
	w := New(Options{MaxSessions: 1, Logger: discardLogger(), Runner: blockingRunner(started)})

	reason := ""
	h := NewOpsHandler(w, nil, func() string { return reason })

	if code, _ := get(t, h, "/readyz"); code != http.StatusOK {
		t.Fatalf("idle status = %d", code)
	}

	reason = "dispatcher disconnected"
	if code, body := get(t, h, "/readyz"); code != http.StatusServiceUnavailable || !strings.Contains(body, "dispatcher disconnected") {
		t.Fatalf("check failure = %d %s", code, body)
	}
	reason = ""

	if err := w.Start(context.Background(), Assignment{JobID: "j1", Room: "interview-1"}, nil); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	<-started
	if code, body := get(t, h, "/readyz"); code != http.StatusServiceUnavailable || !strings.Contains(body, "at capacity") {
		t.Fatalf("busy = %d %s", code, body)
	}

	code, body := get(t, h, "/sessions")
	if code != http.StatusOK || !strings.Contains(body, `"job_id":"j1"`) || !strings.Contains(body, `"room":"interview-1"`) {
		t.Fatalf("sessions = %d %s", code, body)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	w.Shutdown(ctx)
	if code, body := get(t, h, "/readyz"); code != http.StatusServiceUnavailable || !strings.Contains(body, "draining") {
		t.Fatalf("draining = %d %s", code, body)
	}
}

func TestDispatcherReady(t *testing.T) {
	if reason := DispatcherReady(nil)(); reason != "" {
		t.Fatalf("nil dispatcher reason = %q", reason)
	}
	if reason := DispatcherReady(&Dispatcher{})(); reason == "" {
		t.Fatal("unconnected dispatcher should not be ready")
	}
}

func TestOps_Metrics(t *testing.T) {
	m := NewMetrics("")
	w := New(Options{Logger: discardLogger(), Metrics: m})
	h := NewOpsHandler(w, m)

	m.ProviderSelected("llm", "openai")
	m.RecordSpeech(live.SpeechEvent{Kind: live.SpeechStopped, Speaker: live.SpeakerCandidate})
	m.RecordSessionStart()
	m.RecordSessionEnd(interview.Outcome{
		Identity:  interview.Identity{Kind: interview.IdentityApplication, ApplicationID: "1"},
		EndReason: interview.EndTimeout,
		Persisted: true,
		Duration:  5 * time.Minute,
	}, nil)
	m.RecordSessionStart()
	m.RecordSessionEnd(interview.Outcome{EndReason: interview.EndConnectFailed},
		core.NewTransportError("connect room", errors.New("refused")))

	code, body := get(t, h, "/metrics")
	if code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	for _, want := range []string{
		`interviewer_provider_selections_total{kind="llm",provider="openai"} 1`,
		`interviewer_speech_events_total{kind="speech.stopped",speaker="candidate"} 1`,
		`interviewer_sessions_total{end_reason="timeout"} 1`,
		`interviewer_sessions_total{end_reason="connect_failed"} 1`,
		`interviewer_session_errors_total{type="transport_error"} 1`,
		`interviewer_persist_total{result="ok"} 1`,
		`interviewer_sessions_active 0`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics missing %s", want)
		}
	}
}

func TestPersistResult(t *testing.T) {
	tests := []struct {
		o    interview.Outcome
		want string
	}{
		{interview.Outcome{Persisted: true}, PersistOK},
		{interview.Outcome{Identity: interview.Identity{Kind: interview.IdentityUnknown}}, PersistSkipped},
		{interview.Outcome{Identity: interview.Identity{Kind: interview.IdentityPhoneScreen, SessionID: "x"}}, PersistFailed},
	}
	for _, tt := range tests {
		if got := persistResult(tt.o); got != tt.want {
			t.Errorf("persistResult(%+v) = %q, want %q", tt.o, got, tt.want)
		}
	}
}
