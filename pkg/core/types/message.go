package types

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Conversation roles as recorded by the engine.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Content is either a single text value or a sequence of text fragments.
// Use Text or Fragments to build one; the zero value is empty text.
type Content struct {
	text      string
	fragments []string
	multi     bool
}

// Text creates single-string content.
func Text(s string) Content {
	return Content{text: s}
}

// Fragments creates fragmented content. The slice is copied.
func Fragments(parts ...string) Content {
	cp := make([]string, len(parts))
	copy(cp, parts)
	return Content{fragments: cp, multi: true}
}

// IsFragments reports whether the content was built from fragments.
func (c Content) IsFragments() bool { return c.multi }

// Parts returns the fragments, or a one-element slice for text content.
func (c Content) Parts() []string {
	if !c.multi {
		return []string{c.text}
	}
	out := make([]string, len(c.fragments))
	copy(out, c.fragments)
	return out
}

// String flattens the content. Fragments are joined with a single space.
func (c Content) String() string {
	if !c.multi {
		return c.text
	}
	return strings.Join(c.fragments, " ")
}

// MarshalJSON encodes text as a JSON string and fragments as a JSON array.
func (c Content) MarshalJSON() ([]byte, error) {
	if c.multi {
		return json.Marshal(c.fragments)
	}
	return json.Marshal(c.text)
}

// UnmarshalJSON accepts a string, an array of strings, or an array of
// {"text": "..."} blocks.
func (c *Content) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err == nil {
		*c = Text(str)
		return nil
	}
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("content must be a string or an array: %w", err)
	}
	parts := make([]string, 0, len(raw))
	for _, item := range raw {
		var s string
		if err := json.Unmarshal(item, &s); err == nil {
			parts = append(parts, s)
			continue
		}
		var block struct {
			Text string `json:"text"`
		}
		if err := json.Unmarshal(item, &block); err != nil {
			return fmt.Errorf("content fragment: %w", err)
		}
		parts = append(parts, block.Text)
	}
	*c = Fragments(parts...)
	return nil
}

// NormalizeContent converts the loosely typed content values produced by
// conversation backends into Content. Unknown values are rendered with fmt.
func NormalizeContent(v any) Content {
	switch c := v.(type) {
	case nil:
		return Text("")
	case Content:
		return c
	case string:
		return Text(c)
	case []string:
		return Fragments(c...)
	case []any:
		parts := make([]string, 0, len(c))
		for _, item := range c {
			parts = append(parts, fragmentString(item))
		}
		return Fragments(parts...)
	case fmt.Stringer:
		return Text(c.String())
	default:
		return Text(fmt.Sprint(c))
	}
}

func fragmentString(v any) string {
	switch f := v.(type) {
	case nil:
		return ""
	case string:
		return f
	case Content:
		return f.String()
	case map[string]any:
		if text, ok := f["text"].(string); ok {
			return text
		}
		return fmt.Sprint(f)
	case fmt.Stringer:
		return f.String()
	default:
		return fmt.Sprint(f)
	}
}

// Message represents a single entry in a conversation history.
type Message struct {
	Role    string  `json:"role"`
	Content Content `json:"content"`
}

// NewMessage builds a message from loosely typed content.
func NewMessage(role string, content any) Message {
	return Message{Role: role, Content: NormalizeContent(content)}
}

// TextContent returns the flattened text of the message.
func (m Message) TextContent() string {
	return m.Content.String()
}
