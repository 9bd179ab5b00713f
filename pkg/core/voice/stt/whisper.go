package stt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"
	"sync"

	"github.com/vango-go/vai-interviewer/pkg/core/voice"
)

// DefaultWhisperURL is the self-hosted transcription server.
const DefaultWhisperURL = "http://localhost:9000"

// Whisper transcribes utterances through a local OpenAI-compatible
// /v1/audio/transcriptions endpoint. The endpoint is not streaming, so audio
// is cut into utterances with an energy segmenter first.
type Whisper struct {
	baseURL    string
	httpClient *http.Client
	segmenter  voice.SegmenterConfig
	logger     *slog.Logger
}

// NewWhisper creates a Whisper provider.
func NewWhisper(baseURL string, client *http.Client, logger *slog.Logger) *Whisper {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = DefaultWhisperURL
	}
	if client == nil {
		client = &http.Client{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Whisper{
		baseURL:    baseURL,
		httpClient: client,
		segmenter:  voice.DefaultSegmenterConfig(),
		logger:     logger,
	}
}

// WithSegmenter overrides utterance detection.
func (w *Whisper) WithSegmenter(cfg voice.SegmenterConfig) *Whisper {
	w.segmenter = cfg
	return w
}

// Name returns the provider identifier.
func (w *Whisper) Name() string {
	return "whisper"
}

// Transcribe sends one utterance of PCM for transcription.
func (w *Whisper) Transcribe(ctx context.Context, pcm []byte, cfg StreamConfig) (string, error) {
	cfg = cfg.withDefaults()
	format := voice.Format{SampleRate: cfg.SampleRate, Channels: 1, BitsPerSample: 16}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "audio.wav")
	if err != nil {
		return "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := fw.Write(voice.WAV(pcm, format)); err != nil {
		return "", fmt.Errorf("write audio data: %w", err)
	}
	model := cfg.Model
	if model == "" {
		model = "whisper-1"
	}
	if err := mw.WriteField("model", model); err != nil {
		return "", fmt.Errorf("write model field: %w", err)
	}
	if err := mw.WriteField("language", cfg.Language); err != nil {
		return "", fmt.Errorf("write language field: %w", err)
	}
	if err := mw.WriteField("response_format", "json"); err != nil {
		return "", fmt.Errorf("write format field: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.baseURL+"/v1/audio/transcriptions", &buf)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("whisper request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("whisper error %d: %s", resp.StatusCode, string(body))
	}

	var out struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("parse response: %w", err)
	}
	return strings.TrimSpace(out.Text), nil
}

// NewStream opens a segmenting transcription session.
func (w *Whisper) NewStream(ctx context.Context, cfg StreamConfig) (Stream, error) {
	cfg = cfg.withDefaults()
	segCfg := w.segmenter
	segCfg.Format = voice.Format{SampleRate: cfg.SampleRate, Channels: 1, BitsPerSample: 16}

	ctx, cancel := context.WithCancel(ctx)
	s := &whisperStream{
		provider:    w,
		cfg:         cfg,
		seg:         voice.NewSegmenter(segCfg),
		queue:       make(chan whisperSegment, 16),
		transcripts: make(chan TranscriptDelta, 64),
		ctx:         ctx,
		cancel:      cancel,
	}
	s.wg.Add(1)
	go s.worker()
	return s, nil
}

type whisperSegment struct {
	started bool
	pcm     []byte
}

type whisperStream struct {
	provider    *Whisper
	cfg         StreamConfig
	queue       chan whisperSegment
	transcripts chan TranscriptDelta
	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup

	mu     sync.Mutex
	seg    *voice.Segmenter
	closed bool
}

// SendAudio feeds the segmenter and queues completed utterances.
func (s *whisperStream) SendAudio(pcm []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStreamClosed
	}
	utterance, started := s.seg.Write(pcm)
	if started {
		s.enqueue(whisperSegment{started: true})
	}
	if utterance != nil {
		s.enqueue(whisperSegment{pcm: utterance})
	}
	return nil
}

func (s *whisperStream) enqueue(seg whisperSegment) {
	select {
	case s.queue <- seg:
	case <-s.ctx.Done():
	}
}

func (s *whisperStream) worker() {
	defer s.wg.Done()
	defer close(s.transcripts)

	for seg := range s.queue {
		if seg.started {
			s.emit(TranscriptDelta{SpeechStarted: true})
			continue
		}
		text, err := s.provider.Transcribe(s.ctx, seg.pcm, s.cfg)
		if err != nil {
			s.provider.logger.Warn("whisper transcription failed", "error", err)
			continue
		}
		if text != "" {
			s.emit(TranscriptDelta{Text: text, IsFinal: true})
		}
	}
}

func (s *whisperStream) emit(d TranscriptDelta) {
	select {
	case s.transcripts <- d:
	case <-s.ctx.Done():
	}
}

// Transcripts returns the channel of transcript deltas.
func (s *whisperStream) Transcripts() <-chan TranscriptDelta {
	return s.transcripts
}

// Close flushes the open utterance, waits for queued transcriptions and
// ends the session.
func (s *whisperStream) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	if tail := s.seg.Flush(); tail != nil {
		s.enqueue(whisperSegment{pcm: tail})
	}
	close(s.queue)
	s.mu.Unlock()

	s.wg.Wait()
	s.cancel()
	return nil
}
