package interview

import (
	"context"
	"errors"
	"log/slog"
	"maps"
	"time"

	"github.com/vango-go/vai-interviewer/pkg/core"
	"github.com/vango-go/vai-interviewer/pkg/interview/backend"
)

// StatusFinished is the only status the worker writes.
const StatusFinished = "finished"

// Persister writes the outcome of a session to the backend. Each call is
// issued once; nothing is retried.
type Persister struct {
	Backend BackendAPI
	Logger  *slog.Logger
	Now     func() time.Time
}

// Save persists outcome for id. Unknown identities are skipped with a
// warning and a nil error. Failures are logged and returned as persistence
// errors.
func (p *Persister) Save(ctx context.Context, id Identity, outcome Outcome) error {
	logger := p.logger().With("identity", id.String(), "transcript_chars", len(outcome.Transcript))
	if outcome.Transcript == "" {
		logger.Info("transcript is empty")
	}

	var err error
	switch id.Kind {
	case IdentityApplication:
		err = p.saveApplication(ctx, id.ApplicationID, outcome)
	case IdentityPhoneScreen:
		err = p.savePhoneScreen(ctx, id.SessionID, outcome)
	default:
		logger.Warn("no application or session id, skipping transcript persistence")
		return nil
	}
	if err != nil {
		logger.Error("failed to persist transcript", "error", err)
		return err
	}
	logger.Info("transcript persisted")
	return nil
}

func (p *Persister) saveApplication(ctx context.Context, applicationID string, outcome Outcome) error {
	if p.Backend == nil {
		return core.NewPersistenceError("get candidate", errors.New("no backend configured"))
	}
	candidate, err := p.Backend.GetCandidate(ctx, applicationID)
	if err != nil {
		return core.NewPersistenceError("get candidate", err)
	}

	completedAt := outcome.CompletedAt
	if completedAt.IsZero() {
		completedAt = p.now()
	}
	status := outcome.Status
	if status == "" {
		status = StatusFinished
	}

	merged := mergeInterviewConfig(candidate, map[string]any{
		"transcript":      outcome.Transcript,
		"completedAt":     completedAt.UTC().Format(time.RFC3339),
		"interviewStatus": status,
	})
	if err := p.Backend.PutCandidate(ctx, applicationID, map[string]any{"interview_config": merged}); err != nil {
		return core.NewPersistenceError("put candidate", err)
	}
	return nil
}

func (p *Persister) savePhoneScreen(ctx context.Context, sessionID string, outcome Outcome) error {
	if p.Backend == nil {
		return core.NewPersistenceError("stop interview", errors.New("no backend configured"))
	}
	err := p.Backend.StopInterview(ctx, backend.StopRequest{
		SessionID:  sessionID,
		Transcript: outcome.Transcript,
	})
	if err != nil {
		return core.NewPersistenceError("stop interview", err)
	}
	return nil
}

// mergeInterviewConfig copies the candidate's interview_config and
// overlays update. Keys not in update are preserved.
func mergeInterviewConfig(candidate backend.Record, update map[string]any) map[string]any {
	merged := make(map[string]any)
	maps.Copy(merged, candidate.Map("interview_config"))
	maps.Copy(merged, update)
	return merged
}

func (p *Persister) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now()
}

func (p *Persister) logger() *slog.Logger {
	if p.Logger != nil {
		return p.Logger
	}
	return slog.Default()
}
