package tts

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

const (
	elevenLabsDefaultWSBase = "wss://api.elevenlabs.io/v1/text-to-speech/{voice_id}/stream-input"
	elevenLabsDefaultVoice  = "21m00Tcm4TlvDq8ikWAM"
	elevenLabsDefaultModel  = "eleven_flash_v2_5"
)

// ElevenLabs synthesizes speech over the ElevenLabs stream-input websocket.
type ElevenLabs struct {
	apiKey    string
	voiceID   string
	wsBaseURL string
	dialer    *websocket.Dialer
}

// NewElevenLabs creates an ElevenLabs provider. voiceID may be empty.
func NewElevenLabs(apiKey, voiceID string) *ElevenLabs {
	voiceID = strings.TrimSpace(voiceID)
	if voiceID == "" {
		voiceID = elevenLabsDefaultVoice
	}
	return &ElevenLabs{
		apiKey:    strings.TrimSpace(apiKey),
		voiceID:   voiceID,
		wsBaseURL: elevenLabsDefaultWSBase,
		dialer:    &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
	}
}

// WithWSBaseURL overrides the websocket endpoint. "{voice_id}" is replaced.
func (e *ElevenLabs) WithWSBaseURL(base string) *ElevenLabs {
	if base = strings.TrimSpace(base); base != "" {
		e.wsBaseURL = base
	}
	return e
}

// Name returns the provider identifier.
func (e *ElevenLabs) Name() string {
	return "elevenlabs"
}

type elevenLabsMessage struct {
	Audio   string `json:"audio"`
	IsFinal bool   `json:"isFinal"`
	Error   string `json:"error"`
	Message string `json:"message"`
}

// Synthesize sends the text in one flush and collects the streamed audio.
func (e *ElevenLabs) Synthesize(ctx context.Context, text string, opts SynthesizeOptions) (*Synthesis, error) {
	if e.apiKey == "" {
		return nil, fmt.Errorf("elevenlabs api key is required")
	}
	opts = opts.withDefaults()
	voiceID := e.voiceID
	if opts.Voice != "" {
		voiceID = opts.Voice
	}
	wsURL, err := buildElevenLabsWSURL(e.wsBaseURL, voiceID, opts.SampleRate)
	if err != nil {
		return nil, err
	}

	header := http.Header{}
	header.Set("xi-api-key", e.apiKey)
	conn, _, err := e.dialer.DialContext(ctx, wsURL, header)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs connect: %w", err)
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	text = strings.TrimSpace(text)
	if !strings.HasSuffix(text, " ") {
		text += " "
	}
	for _, msg := range []map[string]any{
		{"text": " "},
		{"text": text, "flush": true},
		{"text": ""},
	} {
		_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		if err := conn.WriteJSON(msg); err != nil {
			return nil, fmt.Errorf("elevenlabs send: %w", err)
		}
	}

	var audio []byte
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) && len(audio) > 0 {
				break
			}
			return nil, fmt.Errorf("elevenlabs read: %w", err)
		}
		var msg elevenLabsMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		if msg.Error != "" {
			return nil, fmt.Errorf("elevenlabs: %s: %s", msg.Error, msg.Message)
		}
		if msg.Audio != "" {
			chunk, err := base64.StdEncoding.DecodeString(msg.Audio)
			if err == nil {
				audio = append(audio, chunk...)
			}
		}
		if msg.IsFinal {
			break
		}
	}
	return &Synthesis{Audio: audio, SampleRate: opts.SampleRate}, nil
}

func buildElevenLabsWSURL(base, voiceID string, sampleRate int) (string, error) {
	base = strings.ReplaceAll(base, "{voice_id}", url.PathEscape(voiceID))
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid elevenlabs ws url: %w", err)
	}
	if u.Scheme == "" {
		u.Scheme = "wss"
	}
	if u.Path == "" || u.Path == "/" {
		u.Path = "/v1/text-to-speech/" + url.PathEscape(voiceID) + "/stream-input"
	}
	q := u.Query()
	if q.Get("model_id") == "" {
		q.Set("model_id", elevenLabsDefaultModel)
	}
	if q.Get("output_format") == "" {
		q.Set("output_format", "pcm_"+strconv.Itoa(sampleRate))
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}
