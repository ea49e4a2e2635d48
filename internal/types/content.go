package types

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// ContentType describes what a Structured content carries.
type ContentType string

const (
	ContentTypeText  ContentType = "text"
	ContentTypeImage ContentType = "image"
)

// Content is either PlainText or Structured. Consumers switch on the
// concrete type; there are no other implementations.
type Content interface {
	isContent()
}

// PlainText is content stored as a bare string.
type PlainText string

func (PlainText) isContent() {}

// Structured is content split into display parts, optionally keeping the
// unprocessed input in Raw (for example before command substitution).
type Structured struct {
	Type     ContentType       `json:"type"`
	Parts    []string          `json:"parts"`
	Raw      []string          `json:"raw,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

func (Structured) isContent() {}

// NewTextContent builds text content from its display and raw forms.
// raw is only kept when it differs from text.
func NewTextContent(text, raw string) Structured {
	s := Structured{Type: ContentTypeText, Parts: []string{text}}
	if raw != "" && raw != text {
		s.Raw = []string{raw}
	}
	return s
}

// TextOf renders the display form of c.
func TextOf(c Content) string {
	switch v := c.(type) {
	case nil:
		return ""
	case PlainText:
		return string(v)
	case Structured:
		return strings.Join(v.Parts, "")
	case *Structured:
		if v == nil {
			return ""
		}
		return strings.Join(v.Parts, "")
	default:
		panic(fmt.Sprintf("types: unknown content %T", c))
	}
}

// RawOf renders the unprocessed form of c, falling back to the display form.
func RawOf(c Content) string {
	switch v := c.(type) {
	case nil:
		return ""
	case PlainText:
		return string(v)
	case Structured:
		if len(v.Raw) > 0 {
			return strings.Join(v.Raw, "")
		}
		return strings.Join(v.Parts, "")
	case *Structured:
		if v == nil {
			return ""
		}
		return RawOf(*v)
	default:
		panic(fmt.Sprintf("types: unknown content %T", c))
	}
}

// IsEmptyContent reports whether c renders to nothing.
func IsEmptyContent(c Content) bool {
	return TextOf(c) == ""
}

// EqualContent compares both display and raw forms.
func EqualContent(a, b Content) bool {
	return TextOf(a) == TextOf(b) && RawOf(a) == RawOf(b)
}

// CloneContent deep-copies c so slices are not shared between messages.
func CloneContent(c Content) Content {
	switch v := c.(type) {
	case nil:
		return nil
	case PlainText:
		return v
	case Structured:
		return Structured{
			Type:     v.Type,
			Parts:    append([]string(nil), v.Parts...),
			Raw:      append([]string(nil), v.Raw...),
			Metadata: CloneMetadata(v.Metadata),
		}
	case *Structured:
		if v == nil {
			return nil
		}
		return CloneContent(*v)
	default:
		panic(fmt.Sprintf("types: unknown content %T", c))
	}
}

func marshalContent(c Content) (json.RawMessage, error) {
	switch v := c.(type) {
	case nil:
		return nil, nil
	case PlainText:
		return json.Marshal(string(v))
	case Structured:
		return json.Marshal(v)
	case *Structured:
		return json.Marshal(v)
	default:
		return nil, fmt.Errorf("unknown content %T", c)
	}
}

func unmarshalContent(data json.RawMessage) (Content, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil, nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return nil, err
		}
		return PlainText(s), nil
	}
	var s Structured
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	if s.Type == "" {
		s.Type = ContentTypeText
	}
	return s, nil
}
