// Package config loads the interviewer worker configuration from the
// environment.
package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/vango-go/vai-interviewer/pkg/interview"
	"github.com/vango-go/vai-interviewer/pkg/interview/backend"
	"github.com/vango-go/vai-interviewer/pkg/providers"
)

type LogFormat string

const (
	LogFormatText LogFormat = "text"
	LogFormatJSON LogFormat = "json"
)

type Config struct {
	// BackendURL is the backend base URL; API calls go to BackendURL + "/api".
	BackendURL     string
	BackendTimeout time.Duration

	MaxDuration        time.Duration
	ClosingGrace       time.Duration
	OpeningDelay       time.Duration
	PersistTimeout     time.Duration
	ParticipantTimeout time.Duration
	IncludeSystem      bool

	InterviewerName string
	Company         string
	Voice           string

	// Room is set in single-job mode.
	Room          string
	RoomURL       string
	RoomAPIKey    string
	RoomAPISecret string
	RoomTokenTTL  time.Duration

	DispatchURL       string
	WorkerID          string
	WorkerMaxSessions int
	OpsAddr           string

	NATSURL string

	Providers providers.ProviderConfig

	LogLevel            slog.Level
	LogFormat           LogFormat
	ShutdownGracePeriod time.Duration
}

func LoadFromEnv() (Config, error) {
	cfg := Config{
		BackendURL:     envOr("VITE_API_URL", "http://localhost:8000"),
		BackendTimeout: envDurationOr("BACKEND_TIMEOUT", 15*time.Second),

		MaxDuration:        envDurationOr("INTERVIEW_MAX_DURATION", 20*time.Minute),
		ClosingGrace:       envDurationOr("INTERVIEW_CLOSING_GRACE", 5*time.Second),
		OpeningDelay:       envDurationOr("INTERVIEW_OPENING_DELAY", 2*time.Second),
		PersistTimeout:     envDurationOr("INTERVIEW_PERSIST_TIMEOUT", 30*time.Second),
		ParticipantTimeout: envDurationOr("INTERVIEW_PARTICIPANT_TIMEOUT", 0),
		IncludeSystem:      envBoolOr("INTERVIEW_INCLUDE_SYSTEM", false),

		InterviewerName: envOr("INTERVIEWER_NAME", interview.DefaultInterviewerName),
		Company:         envOr("INTERVIEWER_COMPANY", interview.DefaultCompany),
		Voice:           envOr("INTERVIEW_VOICE", ""),

		Room:          envOr("INTERVIEW_ROOM", ""),
		RoomURL:       envOr("LIVEKIT_URL", "ws://localhost:7880"),
		RoomAPIKey:    envOr("LIVEKIT_API_KEY", "devkey"),
		RoomAPISecret: envOr("LIVEKIT_API_SECRET", "secret"),
		RoomTokenTTL:  envDurationOr("LIVEKIT_TOKEN_TTL", time.Hour),

		DispatchURL:       envOr("DISPATCH_URL", ""),
		WorkerID:          envOr("WORKER_ID", ""),
		WorkerMaxSessions: envIntOr("WORKER_MAX_SESSIONS", 4),
		OpsAddr:           envOr("WORKER_OPS_ADDR", ":8081"),

		NATSURL: envOr("NATS_URL", ""),

		Providers: providers.ProviderConfig{
			DeepgramAPIKey:    envOr("DEEPGRAM_API_KEY", ""),
			ElevenLabsAPIKey:  envOr("ELEVENLABS_API_KEY", ""),
			ElevenLabsVoiceID: envOr("ELEVENLABS_VOICE_ID", ""),
			WhisperURL:        envOr("WHISPER_URL", "http://localhost:9000"),
			LocalTTSURL:       envOr("LOCAL_TTS_URL", "http://localhost:8880"),
			LocalLLMURL:       envOr("INTERVIEW_AI_URL", ""),
			LocalLLMModel:     envOr("INTERVIEW_AI_MODEL", "gemma2:9b-instruct-q8_0"),
			GeminiAPIKey:      envOr("GEMINI_API_KEY", ""),
			GeminiModel:       envOr("GEMINI_MODEL", "gemini-2.0-flash"),
			OpenAIAPIKey:      envOr("OPENAI_API_KEY", ""),
			OpenAIModel:       envOr("OPENAI_MODEL", "gpt-4o-mini"),
			Language:          envOr("INTERVIEW_LANGUAGE", "en"),
		},

		LogFormat:           LogFormat(strings.ToLower(envOr("LOG_FORMAT", string(LogFormatText)))),
		ShutdownGracePeriod: envDurationOr("SHUTDOWN_GRACE_PERIOD", 45*time.Second),
	}

	level, err := parseLevel(envOr("LOG_LEVEL", "info"))
	if err != nil {
		return Config{}, err
	}
	cfg.LogLevel = level

	switch cfg.LogFormat {
	case LogFormatText, LogFormatJSON:
	default:
		return Config{}, fmt.Errorf("LOG_FORMAT must be one of text|json")
	}
	if cfg.MaxDuration <= 0 {
		return Config{}, fmt.Errorf("INTERVIEW_MAX_DURATION must be > 0")
	}
	if cfg.ClosingGrace < 0 {
		return Config{}, fmt.Errorf("INTERVIEW_CLOSING_GRACE must be >= 0")
	}
	if cfg.OpeningDelay < 0 {
		return Config{}, fmt.Errorf("INTERVIEW_OPENING_DELAY must be >= 0")
	}
	if cfg.PersistTimeout <= 0 {
		return Config{}, fmt.Errorf("INTERVIEW_PERSIST_TIMEOUT must be > 0")
	}
	if cfg.ParticipantTimeout < 0 {
		return Config{}, fmt.Errorf("INTERVIEW_PARTICIPANT_TIMEOUT must be >= 0")
	}
	if cfg.BackendTimeout <= 0 {
		return Config{}, fmt.Errorf("BACKEND_TIMEOUT must be > 0")
	}
	if cfg.RoomTokenTTL <= 0 {
		return Config{}, fmt.Errorf("LIVEKIT_TOKEN_TTL must be > 0")
	}
	if cfg.WorkerMaxSessions <= 0 {
		return Config{}, fmt.Errorf("WORKER_MAX_SESSIONS must be > 0")
	}
	if cfg.ShutdownGracePeriod <= 0 {
		return Config{}, fmt.Errorf("SHUTDOWN_GRACE_PERIOD must be > 0")
	}
	if cfg.RoomURL == "" {
		return Config{}, fmt.Errorf("LIVEKIT_URL must not be empty")
	}
	if cfg.Room == "" && cfg.DispatchURL == "" {
		return Config{}, fmt.Errorf("one of INTERVIEW_ROOM or DISPATCH_URL must be set")
	}

	return cfg, nil
}

// APIURL is the backend API root.
func (c Config) APIURL() string {
	return backend.APIURL(c.BackendURL)
}

// SessionOptions returns the interview timings.
func (c Config) SessionOptions() interview.Options {
	return interview.Options{
		MaxDuration:        c.MaxDuration,
		ClosingGrace:       c.ClosingGrace,
		OpeningDelay:       c.OpeningDelay,
		PersistTimeout:     c.PersistTimeout,
		ParticipantTimeout: c.ParticipantTimeout,
		IncludeSystem:      c.IncludeSystem,
	}
}

// Compiler returns the instruction compiler for the configured persona.
func (c Config) Compiler() interview.Compiler {
	return interview.Compiler{InterviewerName: c.InterviewerName, Company: c.Company}
}

// NewLogger builds the process logger.
func (c Config) NewLogger(w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: c.LogLevel}
	if c.LogFormat == LogFormatJSON {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func parseLevel(raw string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("LOG_LEVEL must be one of debug|info|warn|error")
	}
}

func envOr(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func envIntOr(key string, def int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}

func envBoolOr(key string, def bool) bool {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	switch strings.ToLower(raw) {
	case "1", "true", "t", "yes", "y", "on":
		return true
	case "0", "false", "f", "no", "n", "off":
		return false
	default:
		return def
	}
}

func envDurationOr(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return def
	}
	return d
}
