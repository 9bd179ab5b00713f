package interview

import (
	"context"
	"log/slog"

	"github.com/vango-go/vai-interviewer/pkg/core"
)

// Fetcher builds a Brief from backend context. It never fails: every
// lookup error is logged and the affected fields keep their defaults.
type Fetcher struct {
	Backend BackendAPI
	Logger  *slog.Logger
}

// Fetch resolves the brief for id.
func (f *Fetcher) Fetch(ctx context.Context, id Identity) Brief {
	brief := DefaultBrief(id)
	if f.Backend == nil {
		return brief
	}
	switch id.Kind {
	case IdentityApplication:
		f.fetchApplication(ctx, id.ApplicationID, &brief)
	case IdentityPhoneScreen:
		f.fetchPhoneScreen(ctx, id.SessionID, &brief)
	}
	return brief.withDefaults()
}

func (f *Fetcher) fetchApplication(ctx context.Context, applicationID string, brief *Brief) {
	logger := f.logger()

	candidate, err := f.Backend.GetCandidate(ctx, applicationID)
	if err != nil {
		logger.Warn("candidate lookup failed, using defaults",
			"application_id", applicationID,
			"error", core.NewContextError("get candidate", err))
		return
	}
	if name := candidate.String("name"); name != "" {
		brief.CandidateName = name
	}
	if cfg := candidate.Map("interview_config"); cfg != nil {
		if resume, ok := cfg["resume_text"].(string); ok {
			brief.ResumeExcerpt = resume
		}
	}

	jobID := candidate.String("jobId")
	if jobID == "" {
		jobID = candidate.String("job_id")
	}
	if jobID == "" {
		return
	}
	job, err := f.Backend.GetJob(ctx, jobID)
	if err != nil {
		logger.Warn("job lookup failed, using defaults",
			"application_id", applicationID,
			"job_id", jobID,
			"error", core.NewContextError("get job", err))
		return
	}
	if title := job.String("title"); title != "" {
		brief.RoleTitle = title
	}
	if desc := job.String("description"); desc != "" {
		brief.RoleDescription = desc
	}
	if skills := job.Strings("skills"); len(skills) > 0 {
		brief.Skills = skills
	}
}

func (f *Fetcher) fetchPhoneScreen(ctx context.Context, sessionID string, brief *Brief) {
	ic, err := f.Backend.GetInterviewContext(ctx, sessionID)
	if err != nil {
		f.logger().Warn("phone screen context lookup failed, using defaults",
			"session_id", sessionID,
			"error", core.NewContextError("get interview context", err))
		return
	}
	if ic.CandidateName != "" {
		brief.CandidateName = ic.CandidateName
	}
	if ic.JobTitle != "" {
		brief.RoleTitle = ic.JobTitle
	}
	brief.ResumeExcerpt = ic.ResumeText
}

func (f *Fetcher) logger() *slog.Logger {
	if f.Logger != nil {
		return f.Logger
	}
	return slog.Default()
}
