package interview

import (
	"strings"

	"github.com/vango-go/vai-interviewer/pkg/core/types"
)

// Transcript speaker labels. The backend parses "<Label>: text" lines.
const (
	LabelInterviewer = "Interviewer"
	LabelCandidate   = "Candidate"
	LabelSystem      = "System"
)

// ExtractOptions controls transcript extraction.
type ExtractOptions struct {
	// IncludeSystem keeps system entries under the System label.
	IncludeSystem bool
}

// ExtractTranscript renders history as one "<Label>: <text>" line per
// entry, each terminated by a newline. It only reads history. Entries with
// unknown roles or no text are skipped.
func ExtractTranscript(history []types.Message, opts ExtractOptions) string {
	var sb strings.Builder
	for _, m := range history {
		label, ok := speakerLabel(m.Role)
		if !ok {
			continue
		}
		if label == LabelSystem && !opts.IncludeSystem {
			continue
		}
		text := strings.TrimSpace(m.TextContent())
		if text == "" {
			continue
		}
		sb.WriteString(label)
		sb.WriteString(": ")
		sb.WriteString(text)
		sb.WriteByte('\n')
	}
	return sb.String()
}

func speakerLabel(role string) (string, bool) {
	switch strings.ToLower(strings.TrimSpace(role)) {
	case types.RoleAssistant, "interviewer", "agent":
		return LabelInterviewer, true
	case types.RoleUser, "candidate":
		return LabelCandidate, true
	case types.RoleSystem, "developer":
		return LabelSystem, true
	default:
		return "", false
	}
}
