package stt

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func TestDeepgram_StreamAccumulatesFinalsUntilSpeechFinal(t *testing.T) {
	upgrader := websocket.Upgrader{}
	gotAudio := make(chan []byte, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Token dg-key" {
			t.Errorf("Authorization = %q", got)
		}
		q := r.URL.Query()
		if q.Get("encoding") != "linear16" || q.Get("sample_rate") != "16000" || q.Get("language") != "en" {
			t.Errorf("query = %v", q)
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()

		mt, data, err := conn.ReadMessage()
		if err != nil || mt != websocket.BinaryMessage {
			t.Errorf("read audio: type=%d err=%v", mt, err)
			return
		}
		gotAudio <- data

		for _, msg := range []string{
			`{"type":"SpeechStarted"}`,
			`{"type":"Results","is_final":false,"channel":{"alternatives":[{"transcript":"Hel"}]}}`,
			`{"type":"Results","is_final":true,"speech_final":false,"channel":{"alternatives":[{"transcript":"Hello"}]}}`,
			`{"type":"Results","is_final":true,"speech_final":true,"channel":{"alternatives":[{"transcript":"there"}]}}`,
		} {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
				t.Errorf("write: %v", err)
				return
			}
		}
		// Drain until the client closes.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer server.Close()

	p := NewDeepgram("dg-key", WithDeepgramWSBaseURL("ws"+strings.TrimPrefix(server.URL, "http")))
	if p.Name() != "deepgram" {
		t.Fatalf("Name() = %q", p.Name())
	}
	stream, err := p.NewStream(context.Background(), StreamConfig{})
	if err != nil {
		t.Fatalf("NewStream() error = %v", err)
	}
	defer stream.Close()

	if err := stream.SendAudio([]byte{1, 2, 3, 4}); err != nil {
		t.Fatalf("SendAudio() error = %v", err)
	}
	select {
	case data := <-gotAudio:
		if len(data) != 4 {
			t.Fatalf("audio len = %d", len(data))
		}
	case <-time.After(2 * time.Second):
		t.Fatal("server did not receive audio")
	}

	var deltas []TranscriptDelta
	timeout := time.After(2 * time.Second)
	for len(deltas) < 3 {
		select {
		case d, ok := <-stream.Transcripts():
			if !ok {
				t.Fatalf("transcripts closed early after %v", deltas)
			}
			deltas = append(deltas, d)
		case <-timeout:
			t.Fatalf("timed out, got %v", deltas)
		}
	}

	if !deltas[0].SpeechStarted {
		t.Fatalf("deltas[0] = %+v, want speech started", deltas[0])
	}
	if deltas[1].IsFinal || deltas[1].Text != "Hel" {
		t.Fatalf("deltas[1] = %+v, want interim", deltas[1])
	}
	if !deltas[2].IsFinal || deltas[2].Text != "Hello there" {
		t.Fatalf("deltas[2] = %+v, want final %q", deltas[2], "Hello there")
	}

	if err := stream.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := stream.SendAudio([]byte{0, 0}); err != ErrStreamClosed {
		t.Fatalf("SendAudio after close = %v, want ErrStreamClosed", err)
	}
}

func TestDeepgram_ConnectFailureReportsStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad key", http.StatusUnauthorized)
	}))
	defer server.Close()

	p := NewDeepgram("nope", WithDeepgramWSBaseURL("ws"+strings.TrimPrefix(server.URL, "http")))
	_, err := p.NewStream(context.Background(), StreamConfig{})
	if err == nil || !strings.Contains(err.Error(), "401") {
		t.Fatalf("NewStream() error = %v, want status 401", err)
	}
}
