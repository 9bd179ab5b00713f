package voice

import "strings"

var abbreviations = map[string]struct{}{
	"dr.": {}, "mr.": {}, "mrs.": {}, "ms.": {}, "jr.": {}, "sr.": {},
	"prof.": {}, "inc.": {}, "ltd.": {}, "co.": {}, "vs.": {}, "etc.": {},
	"i.e.": {}, "e.g.": {}, "a.m.": {}, "p.m.": {},
}

// SplitSentences breaks text at sentence terminators so synthesis can begin
// before a long reply is fully rendered. Abbreviations and initials do not
// end a sentence.
func SplitSentences(text string) []string {
	var out []string
	start := 0
	for i := 0; i < len(text); i++ {
		if !sentenceEnd(text, i) {
			continue
		}
		if s := strings.TrimSpace(text[start : i+1]); s != "" {
			out = append(out, s)
		}
		start = i + 1
	}
	if rest := strings.TrimSpace(text[start:]); rest != "" {
		out = append(out, rest)
	}
	return out
}

func sentenceEnd(s string, i int) bool {
	c := s[i]
	if c != '.' && c != '!' && c != '?' {
		return false
	}
	if i+1 < len(s) && !isSpace(s[i+1]) {
		return false
	}
	if c != '.' {
		return true
	}
	start := i
	for start > 0 && !isSpace(s[start-1]) {
		start--
	}
	word := strings.ToLower(s[start : i+1])
	if _, ok := abbreviations[word]; ok {
		return false
	}
	// Single capital initial such as "J."
	return !(i-start == 1 && s[start] >= 'A' && s[start] <= 'Z')
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\n' || b == '\r' || b == '\t'
}
