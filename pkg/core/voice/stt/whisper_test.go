package stt

import (
	"context"
	"encoding/binary"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/vango-go/vai-interviewer/pkg/core/voice"
)

func pcmFrame(ms int, amplitude int16) []byte {
	f := voice.DefaultFormat()
	out := make([]byte, f.BytesForDurationMs(ms))
	for i := 0; i+1 < len(out); i += 2 {
		v := amplitude
		if (i/2)%2 == 1 {
			v = -amplitude
		}
		binary.LittleEndian.PutUint16(out[i:], uint16(v))
	}
	return out
}

func newWhisperServer(t *testing.T, calls *atomic.Int32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/audio/transcriptions" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
		}
		if got := r.FormValue("language"); got != "en" {
			t.Errorf("language = %q", got)
		}
		f, _, err := r.FormFile("file")
		if err != nil {
			t.Errorf("form file: %v", err)
		} else {
			head := make([]byte, 4)
			_, _ = io.ReadFull(f, head)
			if string(head) != "RIFF" {
				t.Errorf("file is not wav: %q", head)
			}
		}
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"text":" I build APIs in Go. "}`)
	}))
}

func TestWhisper_StreamTranscribesUtterances(t *testing.T) {
	var calls atomic.Int32
	server := newWhisperServer(t, &calls)
	defer server.Close()

	p := NewWhisper(server.URL, server.Client(), nil).WithSegmenter(voice.SegmenterConfig{
		EnergyThreshold: 0.05,
		SilenceMs:       60,
		MinSpeechMs:     40,
	})
	stream, err := p.NewStream(context.Background(), StreamConfig{})
	if err != nil {
		t.Fatalf("NewStream() error = %v", err)
	}

	for i := 0; i < 4; i++ {
		if err := stream.SendAudio(pcmFrame(20, 8000)); err != nil {
			t.Fatalf("SendAudio() error = %v", err)
		}
	}
	for i := 0; i < 3; i++ {
		if err := stream.SendAudio(pcmFrame(20, 0)); err != nil {
			t.Fatalf("SendAudio() error = %v", err)
		}
	}

	var deltas []TranscriptDelta
	timeout := time.After(2 * time.Second)
	for len(deltas) < 2 {
		select {
		case d := <-stream.Transcripts():
			deltas = append(deltas, d)
		case <-timeout:
			t.Fatalf("timed out, got %v", deltas)
		}
	}
	if !deltas[0].SpeechStarted {
		t.Fatalf("deltas[0] = %+v, want speech started", deltas[0])
	}
	if !deltas[1].IsFinal || deltas[1].Text != "I build APIs in Go." {
		t.Fatalf("deltas[1] = %+v", deltas[1])
	}

	if err := stream.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if _, ok := <-stream.Transcripts(); ok {
		t.Fatal("transcripts should be closed after Close")
	}
	if err := stream.SendAudio(pcmFrame(20, 0)); err != ErrStreamClosed {
		t.Fatalf("SendAudio after close = %v", err)
	}
	if got := calls.Load(); got != 1 {
		t.Fatalf("transcription calls = %d, want 1", got)
	}
}

func TestWhisper_CloseFlushesOpenUtterance(t *testing.T) {
	var calls atomic.Int32
	server := newWhisperServer(t, &calls)
	defer server.Close()

	p := NewWhisper(server.URL+"/", server.Client(), nil).WithSegmenter(voice.SegmenterConfig{MinSpeechMs: 20})
	stream, err := p.NewStream(context.Background(), StreamConfig{})
	if err != nil {
		t.Fatalf("NewStream() error = %v", err)
	}

	done := make(chan []TranscriptDelta)
	go func() {
		var got []TranscriptDelta
		for d := range stream.Transcripts() {
			got = append(got, d)
		}
		done <- got
	}()

	if err := stream.SendAudio(pcmFrame(40, 8000)); err != nil {
		t.Fatalf("SendAudio() error = %v", err)
	}
	if err := stream.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	select {
	case got := <-done:
		if len(got) != 2 || !got[1].IsFinal {
			t.Fatalf("deltas = %+v, want speech start then final", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("transcripts not closed")
	}
}

func TestWhisper_TranscribeErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	p := NewWhisper(server.URL, server.Client(), nil)
	if p.Name() != "whisper" {
		t.Fatalf("Name() = %q", p.Name())
	}
	if _, err := p.Transcribe(context.Background(), pcmFrame(20, 100), StreamConfig{}); err == nil {
		t.Fatal("expected error for 503")
	}
}
