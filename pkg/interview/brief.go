package interview

import (
	"strings"
)

// Kind selects the interview script.
type Kind string

const (
	KindTechnical   Kind = "technical"
	KindPhoneScreen Kind = "phone-screen"
)

// Defaults used when the backend has nothing better.
const (
	DefaultCandidateName   = "Candidate"
	DefaultRoleTitle       = "General Position"
	DefaultPhoneRoleTitle  = "Phone Screening"
	DefaultRoleDescription = "General interview"

	// MaxResumeRunes caps the resume text embedded in a prompt.
	MaxResumeRunes = 2000
)

// Brief is everything the instruction compiler needs about one interview.
type Brief struct {
	CandidateName   string
	RoleTitle       string
	RoleDescription string
	Skills          []string
	ResumeExcerpt   string
	Kind            Kind
}

// DefaultBrief returns the brief used before (or instead of) any backend
// lookup for the given identity.
func DefaultBrief(id Identity) Brief {
	b := Brief{
		CandidateName:   DefaultCandidateName,
		RoleTitle:       DefaultRoleTitle,
		RoleDescription: DefaultRoleDescription,
		Kind:            KindTechnical,
	}
	if id.Kind != IdentityApplication {
		b.Kind = KindPhoneScreen
		b.RoleTitle = DefaultPhoneRoleTitle
	}
	return b
}

// withDefaults fills blank fields and enforces the resume cap.
func (b Brief) withDefaults() Brief {
	if b.Kind == "" {
		b.Kind = KindTechnical
	}
	b.CandidateName = orDefault(b.CandidateName, DefaultCandidateName)
	if b.Kind == KindPhoneScreen {
		b.RoleTitle = orDefault(b.RoleTitle, DefaultPhoneRoleTitle)
	} else {
		b.RoleTitle = orDefault(b.RoleTitle, DefaultRoleTitle)
	}
	b.RoleDescription = orDefault(b.RoleDescription, DefaultRoleDescription)
	b.ResumeExcerpt = TruncateResume(b.ResumeExcerpt)

	skills := make([]string, 0, len(b.Skills))
	for _, s := range b.Skills {
		if s = strings.TrimSpace(s); s != "" {
			skills = append(skills, s)
		}
	}
	b.Skills = skills
	return b
}

// TruncateResume trims whitespace and keeps at most MaxResumeRunes runes.
func TruncateResume(s string) string {
	s = strings.TrimSpace(s)
	r := []rune(s)
	if len(r) <= MaxResumeRunes {
		return s
	}
	return string(r[:MaxResumeRunes])
}

func orDefault(s, def string) string {
	if s = strings.TrimSpace(s); s != "" {
		return s
	}
	return def
}
