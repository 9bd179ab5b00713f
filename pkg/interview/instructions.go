package interview

import (
	"fmt"
	"strings"
	"text/template"
)

// Persona defaults.
const (
	DefaultInterviewerName = "Yal"
	DefaultCompany         = "YalOffice"
)

const (
	minQuestions = 3
	maxQuestions = 4
)

var instructionsTmpl = template.Must(template.New("instructions").Funcs(template.FuncMap{
	"inc": func(i int) int { return i + 1 },
}).Parse(
	`You are {{.Interviewer}}, a professional AI interviewer at {{.Company}}.
You are interviewing {{.Candidate}} for the position of {{.Role}}.
Job description summary: {{.Description}}
{{- if .Skills}}
Required skills: {{.Skills}}
{{- end}}
{{- if .Resume}}

CANDIDATE RESUME:
{{.Resume}}

Ask about the projects, skills and experience in the resume above, in addition to the role questions below.
{{- end}}

INTERVIEW PROTOCOL:
Ask one question at a time and wait for the candidate to answer before moving on.
Acknowledge each answer briefly, then continue. Dig deeper if an answer is vague.
Keep every turn short: you are speaking, not writing, so never use lists, markdown or emoji.

Phase 1, greeting: greet {{.Candidate}} by name, introduce yourself as {{.Interviewer}} and mention the {{.Role}} position.
Phase 2, rapport: ask one light question about their background or how their day is going.
Phase 3, {{.Focus}} questions, in this order:
{{- range $i, $q := .Questions}}
{{inc $i}}. {{$q}}
{{- end}}
Phase 4, wrap-up: after the final question, or as soon as you are told time is up, thank {{.Candidate}} for their time, tell them the team will be in touch, and say goodbye.
`))

// Compiler renders the interviewer script. It is pure: the same brief
// always produces the same text.
type Compiler struct {
	InterviewerName string
	Company         string
}

type instructionsData struct {
	Interviewer string
	Company     string
	Candidate   string
	Role        string
	Description string
	Skills      string
	Resume      string
	Focus       string
	Questions   []string
}

// Compile renders the system instructions for brief. Blank brief fields
// fall back to defaults so the result is always a complete script.
func (c Compiler) Compile(b Brief) string {
	b = b.withDefaults()
	data := instructionsData{
		Interviewer: orDefault(c.InterviewerName, DefaultInterviewerName),
		Company:     orDefault(c.Company, DefaultCompany),
		Candidate:   b.CandidateName,
		Role:        b.RoleTitle,
		Description: b.RoleDescription,
		Skills:      strings.Join(b.Skills, ", "),
		Resume:      b.ResumeExcerpt,
		Focus:       "technical and situational",
		Questions:   Questions(b),
	}
	if b.Kind == KindPhoneScreen {
		data.Focus = "screening"
	}

	var sb strings.Builder
	if err := instructionsTmpl.Execute(&sb, data); err != nil {
		// The template is fixed and the data is plain strings.
		panic(fmt.Sprintf("interview: render instructions: %v", err))
	}
	return sb.String()
}

// Questions returns the role questions for phase three: one per required
// skill, padded with generic role questions to between three and four.
func Questions(b Brief) []string {
	b = b.withDefaults()
	var qs []string
	if b.Kind != KindPhoneScreen {
		for _, skill := range b.Skills {
			if len(qs) == maxQuestions {
				break
			}
			qs = append(qs, fmt.Sprintf("Tell me about a project where you used %s. What trade-offs did you make?", skill))
		}
	}
	want := maxQuestions
	if len(qs) > 0 {
		want = max(len(qs), minQuestions)
	}
	for _, q := range genericQuestions(b) {
		if len(qs) >= want {
			break
		}
		qs = append(qs, q)
	}
	return qs
}

func genericQuestions(b Brief) []string {
	if b.Kind == KindPhoneScreen {
		return []string{
			fmt.Sprintf("What interests you about the %s role?", b.RoleTitle),
			"Walk me through the experience that is most relevant to this position.",
			"What are you looking for in your next position?",
			"When would you be available to start?",
		}
	}
	return []string{
		fmt.Sprintf("Can you explain your experience with %s roles?", b.RoleTitle),
		fmt.Sprintf("This role involves %s. Which parts of that match your experience best?", strings.TrimSuffix(b.RoleDescription, ".")),
		"What has been your most challenging technical project?",
		"How do you handle debugging complex systems?",
	}
}

// OpeningPrompt is the turn instruction that starts the interview.
func (c Compiler) OpeningPrompt(b Brief) string {
	b = b.withDefaults()
	greeting := fmt.Sprintf("Hello %s, I am %s, your AI interviewer. Shall we begin?",
		b.CandidateName, orDefault(c.InterviewerName, DefaultInterviewerName))
	return fmt.Sprintf("Greet the candidate by name. Say exactly: %s", greeting)
}

// ClosingPrompt is the turn instruction issued when time runs out.
func (c Compiler) ClosingPrompt() string {
	return "Time is up. Thank the candidate for their time, tell them the team will be in touch, and say goodbye. Do not ask any more questions."
}
