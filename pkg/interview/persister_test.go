package interview

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/vango-go/vai-interviewer/pkg/core"
)

func TestPersister_ApplicationMergesConfig(t *testing.T) {
	fb := newFakeBackend(t, map[string]string{
		"GET /candidates/10": `{"name":"Ana","interview_config":{"resume_text":"r","transcript":"old"}}`,
	})
	p := &Persister{Backend: fb.client(), Logger: discardLogger(), Now: func() time.Time {
		return time.Date(2026, 1, 2, 3, 4, 5, 0, time.FixedZone("x", 3600))
	}}

	err := p.Save(context.Background(), Identity{Kind: IdentityApplication, ApplicationID: "10"}, Outcome{Transcript: "Interviewer: hi\n"})
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	puts := fb.find(http.MethodPut, "/candidates/10")
	if len(puts) != 1 {
		t.Fatalf("PUT calls = %d, want 1", len(puts))
	}
	if len(puts[0].Body) != 1 {
		t.Errorf("PUT body has extra keys: %v", puts[0].Body)
	}
	cfg := puts[0].Body["interview_config"].(map[string]any)
	want := map[string]any{
		"resume_text":     "r",
		"transcript":      "Interviewer: hi\n",
		"completedAt":     "2026-01-02T02:04:05Z",
		"interviewStatus": "finished",
	}
	for k, v := range want {
		if cfg[k] != v {
			t.Errorf("interview_config[%q] = %v, want %v", k, cfg[k], v)
		}
	}
}

func TestPersister_GetFailureAbortsSave(t *testing.T) {
	fb := newFakeBackend(t, nil)
	fb.setStatus("GET /candidates/10", http.StatusInternalServerError)
	p := &Persister{Backend: fb.client(), Logger: discardLogger()}

	err := p.Save(context.Background(), Identity{Kind: IdentityApplication, ApplicationID: "10"}, Outcome{Transcript: "x"})
	if !core.IsType(err, core.ErrPersistence) {
		t.Fatalf("Save() error = %v, want persistence error", err)
	}
	if n := len(fb.find(http.MethodPut, "/candidates/10")); n != 0 {
		t.Errorf("PUT calls = %d, want 0", n)
	}
	if n := len(fb.find(http.MethodGet, "/candidates/10")); n != 1 {
		t.Errorf("GET calls = %d, want exactly 1 (no retry)", n)
	}
}

func TestPersister_PutFailureNotRetried(t *testing.T) {
	fb := newFakeBackend(t, map[string]string{"GET /candidates/4": `{}`})
	fb.setStatus("PUT /candidates/4", http.StatusBadGateway)
	p := &Persister{Backend: fb.client(), Logger: discardLogger()}

	err := p.Save(context.Background(), Identity{Kind: IdentityApplication, ApplicationID: "4"}, Outcome{})
	if !core.IsType(err, core.ErrPersistence) {
		t.Fatalf("Save() error = %v", err)
	}
	if n := len(fb.find(http.MethodPut, "/candidates/4")); n != 1 {
		t.Errorf("PUT calls = %d, want 1", n)
	}
}

func TestPersister_PhoneScreenFailureLogged(t *testing.T) {
	fb := newFakeBackend(t, nil)
	fb.setStatus("POST /interview/stop", http.StatusServiceUnavailable)
	p := &Persister{Backend: fb.client(), Logger: discardLogger()}

	err := p.Save(context.Background(), Identity{Kind: IdentityPhoneScreen, SessionID: "s"}, Outcome{Transcript: "t"})
	if !core.IsType(err, core.ErrPersistence) {
		t.Fatalf("Save() error = %v", err)
	}
	if n := len(fb.find(http.MethodPost, "/interview/stop")); n != 1 {
		t.Errorf("stop calls = %d, want 1", n)
	}
}

func TestPersister_UnknownSkipped(t *testing.T) {
	fb := newFakeBackend(t, nil)
	p := &Persister{Backend: fb.client(), Logger: discardLogger()}
	if err := p.Save(context.Background(), Identity{Kind: IdentityUnknown}, Outcome{Transcript: "t"}); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if reqs := fb.recorded(); len(reqs) != 0 {
		t.Errorf("requests = %+v, want none", reqs)
	}
}
