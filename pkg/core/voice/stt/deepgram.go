package stt

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

const (
	deepgramWSBaseURL    = "wss://api.deepgram.com"
	deepgramDefaultModel = "nova-2"
)

// Deepgram streams audio to Deepgram's live transcription websocket.
type Deepgram struct {
	apiKey    string
	wsBaseURL string
	dialer    *websocket.Dialer
}

// DeepgramOption configures the Deepgram provider.
type DeepgramOption func(*Deepgram)

// WithDeepgramWSBaseURL overrides the websocket endpoint (for tests or proxies).
func WithDeepgramWSBaseURL(u string) DeepgramOption {
	return func(d *Deepgram) {
		if u != "" {
			d.wsBaseURL = strings.TrimRight(u, "/")
		}
	}
}

// NewDeepgram creates a Deepgram STT provider.
func NewDeepgram(apiKey string, opts ...DeepgramOption) *Deepgram {
	d := &Deepgram{
		apiKey:    apiKey,
		wsBaseURL: deepgramWSBaseURL,
		dialer:    &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Name returns the provider identifier.
func (d *Deepgram) Name() string {
	return "deepgram"
}

// NewStream opens a live transcription session.
func (d *Deepgram) NewStream(ctx context.Context, cfg StreamConfig) (Stream, error) {
	cfg = cfg.withDefaults()
	model := cfg.Model
	if model == "" {
		model = deepgramDefaultModel
	}

	u, err := url.Parse(d.wsBaseURL + "/v1/listen")
	if err != nil {
		return nil, fmt.Errorf("parse websocket URL: %w", err)
	}
	q := u.Query()
	q.Set("model", model)
	q.Set("language", cfg.Language)
	q.Set("encoding", "linear16")
	q.Set("sample_rate", strconv.Itoa(cfg.SampleRate))
	q.Set("channels", "1")
	q.Set("punctuate", "true")
	q.Set("interim_results", "true")
	q.Set("vad_events", "true")
	q.Set("endpointing", "300")
	q.Set("utterance_end_ms", "1000")
	u.RawQuery = q.Encode()

	headers := http.Header{}
	headers.Set("Authorization", "Token "+d.apiKey)

	conn, resp, err := d.dialer.DialContext(ctx, u.String(), headers)
	if err != nil {
		if resp != nil {
			defer resp.Body.Close()
			body, _ := io.ReadAll(resp.Body)
			if len(body) > 0 {
				return nil, fmt.Errorf("deepgram connect (status %d): %s", resp.StatusCode, string(body))
			}
			return nil, fmt.Errorf("deepgram connect: status %d: %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("deepgram connect: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	s := &deepgramStream{
		conn:        conn,
		transcripts: make(chan TranscriptDelta, 64),
		ctx:         ctx,
		cancel:      cancel,
	}
	go s.readLoop()
	go func() {
		<-ctx.Done()
		_ = s.Close()
	}()
	return s, nil
}

type deepgramStream struct {
	conn        *websocket.Conn
	transcripts chan TranscriptDelta
	closed      atomic.Bool
	writeMu     sync.Mutex
	ctx         context.Context
	cancel      context.CancelFunc

	// pending accumulates is_final segments until the speaker pauses.
	pending []string
}

type deepgramMessage struct {
	Type        string `json:"type"`
	IsFinal     bool   `json:"is_final"`
	SpeechFinal bool   `json:"speech_final"`
	Channel     struct {
		Alternatives []struct {
			Transcript string `json:"transcript"`
		} `json:"alternatives"`
	} `json:"channel"`
}

func (s *deepgramStream) readLoop() {
	defer close(s.transcripts)

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			s.flushPending()
			return
		}

		var msg deepgramMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}

		switch msg.Type {
		case "SpeechStarted":
			s.emit(TranscriptDelta{SpeechStarted: true})
		case "Results":
			text := ""
			if len(msg.Channel.Alternatives) > 0 {
				text = strings.TrimSpace(msg.Channel.Alternatives[0].Transcript)
			}
			if !msg.IsFinal {
				if text != "" {
					s.emit(TranscriptDelta{Text: text})
				}
				continue
			}
			if text != "" {
				s.pending = append(s.pending, text)
			}
			if msg.SpeechFinal {
				s.flushPending()
			}
		case "UtteranceEnd":
			s.flushPending()
		}
	}
}

func (s *deepgramStream) flushPending() {
	if len(s.pending) == 0 {
		return
	}
	text := strings.Join(s.pending, " ")
	s.pending = nil
	s.emit(TranscriptDelta{Text: text, IsFinal: true})
}

func (s *deepgramStream) emit(d TranscriptDelta) {
	select {
	case s.transcripts <- d:
	case <-s.ctx.Done():
	}
}

// SendAudio sends PCM to the session.
func (s *deepgramStream) SendAudio(pcm []byte) error {
	if s.closed.Load() {
		return ErrStreamClosed
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteMessage(websocket.BinaryMessage, pcm)
}

// Transcripts returns the channel of transcript deltas.
func (s *deepgramStream) Transcripts() <-chan TranscriptDelta {
	return s.transcripts
}

// Close ends the session. Pending finals are not waited for.
func (s *deepgramStream) Close() error {
	if s.closed.Swap(true) {
		return nil
	}

	s.writeMu.Lock()
	_ = s.conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"CloseStream"}`))
	_ = s.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	s.writeMu.Unlock()

	s.cancel()
	return s.conn.Close()
}
