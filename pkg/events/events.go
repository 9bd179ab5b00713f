// Package events publishes interview session lifecycle events.
//
// Events are JSON documents on two NATS subjects. Publishing is best
// effort: failures are logged and never affect a session.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/vango-go/vai-interviewer/pkg/interview"
)

const (
	SubjectSessionStarted  = "interview.session.started"
	SubjectSessionFinished = "interview.session.finished"
)

// Publisher sends raw event payloads.
type Publisher interface {
	Publish(subject string, data []byte) error
	Close()
}

// PublishFunc adapts a function to Publisher.
type PublishFunc func(subject string, data []byte) error

func (f PublishFunc) Publish(subject string, data []byte) error { return f(subject, data) }

func (f PublishFunc) Close() {}

// Noop discards events. It is used when no bus is configured.
type Noop struct{}

func (Noop) Publish(string, []byte) error { return nil }

func (Noop) Close() {}

// NATS publishes on a NATS connection.
type NATS struct {
	nc *nats.Conn
}

// ConnectNATS connects to url, retrying in the background if the server is
// not yet reachable.
func ConnectNATS(url, name string, logger *slog.Logger) (*NATS, error) {
	if logger == nil {
		logger = slog.Default()
	}
	nc, err := nats.Connect(url,
		nats.Name(name),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("NATS disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			logger.Info("NATS reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	return &NATS{nc: nc}, nil
}

func (n *NATS) Publish(subject string, data []byte) error {
	return n.nc.Publish(subject, data)
}

// Close flushes pending publishes and closes the connection.
func (n *NATS) Close() {
	_ = n.nc.Drain()
}

// SessionStarted is published when a session enters the Active state.
type SessionStarted struct {
	SessionID     string    `json:"session_id"`
	WorkerID      string    `json:"worker_id,omitempty"`
	Room          string    `json:"room"`
	IdentityKind  string    `json:"identity_kind"`
	ApplicationID string    `json:"application_id,omitempty"`
	PhoneScreenID string    `json:"phone_screen_id,omitempty"`
	At            time.Time `json:"at"`
}

// SessionFinished is published after teardown.
type SessionFinished struct {
	SessionID       string    `json:"session_id"`
	WorkerID        string    `json:"worker_id,omitempty"`
	Room            string    `json:"room"`
	IdentityKind    string    `json:"identity_kind"`
	ApplicationID   string    `json:"application_id,omitempty"`
	PhoneScreenID   string    `json:"phone_screen_id,omitempty"`
	Status          string    `json:"status"`
	EndReason       string    `json:"end_reason"`
	TranscriptChars int       `json:"transcript_chars"`
	Persisted       bool      `json:"persisted"`
	DurationMs      int64     `json:"duration_ms"`
	CompletedAt     time.Time `json:"completed_at"`
}

// Notifier turns session callbacks into published events.
type Notifier struct {
	Publisher Publisher
	WorkerID  string
	Logger    *slog.Logger
	Now       func() time.Time
}

var _ interview.Notifier = (*Notifier)(nil)

func (n *Notifier) SessionStarted(_ context.Context, sessionID, roomName string, id interview.Identity) {
	n.publish(SubjectSessionStarted, SessionStarted{
		SessionID:     sessionID,
		WorkerID:      n.WorkerID,
		Room:          roomName,
		IdentityKind:  string(id.Kind),
		ApplicationID: id.ApplicationID,
		PhoneScreenID: id.SessionID,
		At:            n.now(),
	})
}

func (n *Notifier) SessionFinished(_ context.Context, sessionID, roomName string, o interview.Outcome) {
	n.publish(SubjectSessionFinished, SessionFinished{
		SessionID:       sessionID,
		WorkerID:        n.WorkerID,
		Room:            roomName,
		IdentityKind:    string(o.Identity.Kind),
		ApplicationID:   o.Identity.ApplicationID,
		PhoneScreenID:   o.Identity.SessionID,
		Status:          o.Status,
		EndReason:       string(o.EndReason),
		TranscriptChars: len(o.Transcript),
		Persisted:       o.Persisted,
		DurationMs:      o.Duration.Milliseconds(),
		CompletedAt:     o.CompletedAt,
	})
}

func (n *Notifier) publish(subject string, v any) {
	if n.Publisher == nil {
		return
	}
	logger := n.Logger
	if logger == nil {
		logger = slog.Default()
	}
	data, err := json.Marshal(v)
	if err != nil {
		logger.Warn("encode event failed", "subject", subject, "error", err)
		return
	}
	if err := n.Publisher.Publish(subject, data); err != nil {
		logger.Warn("publish event failed", "subject", subject, "error", err)
	}
}

func (n *Notifier) now() time.Time {
	if n.Now != nil {
		return n.Now().UTC()
	}
	return time.Now().UTC()
}
