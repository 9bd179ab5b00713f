package config

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
	"time"
)

var workerEnvKeys = []string{
	"VITE_API_URL",
	"BACKEND_TIMEOUT",
	"INTERVIEW_MAX_DURATION",
	"INTERVIEW_CLOSING_GRACE",
	"INTERVIEW_OPENING_DELAY",
	"INTERVIEW_PERSIST_TIMEOUT",
	"INTERVIEW_PARTICIPANT_TIMEOUT",
	"INTERVIEW_INCLUDE_SYSTEM",
	"INTERVIEWER_NAME",
	"INTERVIEWER_COMPANY",
	"INTERVIEW_VOICE",
	"INTERVIEW_ROOM",
	"LIVEKIT_URL",
	"LIVEKIT_API_KEY",
	"LIVEKIT_API_SECRET",
	"LIVEKIT_TOKEN_TTL",
	"DISPATCH_URL",
	"WORKER_ID",
	"WORKER_MAX_SESSIONS",
	"WORKER_OPS_ADDR",
	"NATS_URL",
	"DEEPGRAM_API_KEY",
	"ELEVENLABS_API_KEY",
	"ELEVENLABS_VOICE_ID",
	"WHISPER_URL",
	"LOCAL_TTS_URL",
	"INTERVIEW_AI_URL",
	"INTERVIEW_AI_MODEL",
	"GEMINI_API_KEY",
	"GEMINI_MODEL",
	"OPENAI_API_KEY",
	"OPENAI_MODEL",
	"INTERVIEW_LANGUAGE",
	"LOG_LEVEL",
	"LOG_FORMAT",
	"SHUTDOWN_GRACE_PERIOD",
}

func clearWorkerEnv(t *testing.T) {
	t.Helper()
	for _, key := range workerEnvKeys {
		t.Setenv(key, "")
	}
}

func TestLoadFromEnv_Defaults(t *testing.T) {
	clearWorkerEnv(t)
	t.Setenv("INTERVIEW_ROOM", "interview-1")

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv() error = %v", err)
	}

	if cfg.APIURL() != "http://localhost:8000/api" {
		t.Fatalf("APIURL() = %q", cfg.APIURL())
	}
	if cfg.MaxDuration != 20*time.Minute {
		t.Fatalf("MaxDuration = %v, want 20m", cfg.MaxDuration)
	}
	if cfg.ClosingGrace != 5*time.Second {
		t.Fatalf("ClosingGrace = %v, want 5s", cfg.ClosingGrace)
	}
	if cfg.OpeningDelay != 2*time.Second {
		t.Fatalf("OpeningDelay = %v, want 2s", cfg.OpeningDelay)
	}
	if cfg.PersistTimeout != 30*time.Second {
		t.Fatalf("PersistTimeout = %v, want 30s", cfg.PersistTimeout)
	}
	if cfg.IncludeSystem {
		t.Fatal("IncludeSystem = true, want false")
	}
	if cfg.InterviewerName != "Yal" || cfg.Company != "YalOffice" {
		t.Fatalf("persona = %q/%q", cfg.InterviewerName, cfg.Company)
	}
	if cfg.RoomURL != "ws://localhost:7880" || cfg.RoomAPIKey != "devkey" || cfg.RoomAPISecret != "secret" {
		t.Fatalf("room = %q %q %q", cfg.RoomURL, cfg.RoomAPIKey, cfg.RoomAPISecret)
	}
	if cfg.WorkerMaxSessions != 4 {
		t.Fatalf("WorkerMaxSessions = %d, want 4", cfg.WorkerMaxSessions)
	}
	if cfg.OpsAddr != ":8081" {
		t.Fatalf("OpsAddr = %q", cfg.OpsAddr)
	}
	if cfg.ShutdownGracePeriod != 45*time.Second {
		t.Fatalf("ShutdownGracePeriod = %v, want 45s", cfg.ShutdownGracePeriod)
	}
	if cfg.LogLevel != slog.LevelInfo || cfg.LogFormat != LogFormatText {
		t.Fatalf("log = %v/%q", cfg.LogLevel, cfg.LogFormat)
	}

	p := cfg.Providers
	if p.HasLocalLLM() || p.HasGemini() || p.HasOpenAI() {
		t.Fatal("no language model should be configured by default")
	}
	if p.WhisperURL != "http://localhost:9000" || p.LocalTTSURL != "http://localhost:8880" {
		t.Fatalf("local endpoints = %q %q", p.WhisperURL, p.LocalTTSURL)
	}
	if p.LocalLLMModel != "gemma2:9b-instruct-q8_0" || p.Language != "en" {
		t.Fatalf("LocalLLMModel = %q Language = %q", p.LocalLLMModel, p.Language)
	}
}

func TestLoadFromEnv_Overrides(t *testing.T) {
	clearWorkerEnv(t)
	t.Setenv("VITE_API_URL", "https://hire.example.com/")
	t.Setenv("DISPATCH_URL", "ws://dispatch:9000/ws")
	t.Setenv("INTERVIEW_MAX_DURATION", "15m")
	t.Setenv("INTERVIEW_INCLUDE_SYSTEM", "yes")
	t.Setenv("INTERVIEW_AI_URL", "http://ollama:11434")
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("WORKER_MAX_SESSIONS", "12")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_FORMAT", "JSON")

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv() error = %v", err)
	}
	if cfg.APIURL() != "https://hire.example.com/api" {
		t.Fatalf("APIURL() = %q", cfg.APIURL())
	}
	if cfg.MaxDuration != 15*time.Minute || !cfg.IncludeSystem {
		t.Fatalf("MaxDuration = %v IncludeSystem = %v", cfg.MaxDuration, cfg.IncludeSystem)
	}
	if !cfg.Providers.HasLocalLLM() || !cfg.Providers.HasOpenAI() {
		t.Fatal("expected local and openai language models")
	}
	if cfg.WorkerMaxSessions != 12 || cfg.LogLevel != slog.LevelDebug || cfg.LogFormat != LogFormatJSON {
		t.Fatalf("cfg = %+v", cfg)
	}

	opts := cfg.SessionOptions()
	if opts.MaxDuration != 15*time.Minute || !opts.IncludeSystem || opts.ClosingGrace != 5*time.Second {
		t.Fatalf("SessionOptions() = %+v", opts)
	}
}

func TestLoadFromEnv_InvalidValuesFallBackToDefaults(t *testing.T) {
	clearWorkerEnv(t)
	t.Setenv("INTERVIEW_ROOM", "r")
	t.Setenv("INTERVIEW_MAX_DURATION", "soon")
	t.Setenv("WORKER_MAX_SESSIONS", "many")

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv() error = %v", err)
	}
	if cfg.MaxDuration != 20*time.Minute || cfg.WorkerMaxSessions != 4 {
		t.Fatalf("MaxDuration = %v WorkerMaxSessions = %d", cfg.MaxDuration, cfg.WorkerMaxSessions)
	}
}

func TestLoadFromEnv_Validation(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"no mode", map[string]string{}, "INTERVIEW_ROOM or DISPATCH_URL"},
		{"max duration", map[string]string{"INTERVIEW_ROOM": "r", "INTERVIEW_MAX_DURATION": "-1s"}, "INTERVIEW_MAX_DURATION"},
		{"closing grace", map[string]string{"INTERVIEW_ROOM": "r", "INTERVIEW_CLOSING_GRACE": "-1s"}, "INTERVIEW_CLOSING_GRACE"},
		{"persist timeout", map[string]string{"INTERVIEW_ROOM": "r", "INTERVIEW_PERSIST_TIMEOUT": "0s"}, "INTERVIEW_PERSIST_TIMEOUT"},
		{"sessions", map[string]string{"INTERVIEW_ROOM": "r", "WORKER_MAX_SESSIONS": "0"}, "WORKER_MAX_SESSIONS"},
		{"log level", map[string]string{"INTERVIEW_ROOM": "r", "LOG_LEVEL": "loud"}, "LOG_LEVEL"},
		{"log format", map[string]string{"INTERVIEW_ROOM": "r", "LOG_FORMAT": "xml"}, "LOG_FORMAT"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearWorkerEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := LoadFromEnv()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("LoadFromEnv() error = %v, want mention of %s", err, tt.want)
			}
		})
	}
}

func TestConfig_NewLogger(t *testing.T) {
	var buf bytes.Buffer
	cfg := Config{LogLevel: slog.LevelWarn, LogFormat: LogFormatJSON}
	logger := cfg.NewLogger(&buf)
	logger.Info("hidden")
	logger.Warn("shown", "k", "v")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("info line logged at warn level: %s", out)
	}
	if !strings.Contains(out, `"msg":"shown"`) || !strings.Contains(out, `"k":"v"`) {
		t.Errorf("json output = %s", out)
	}
}
