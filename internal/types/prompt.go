package types

import (
	"bytes"
	"encoding/json"
)

type TokenType string

const (
	TokenText    TokenType = "text"
	TokenNewline TokenType = "newline"
	TokenMention TokenType = "mention"
	TokenAction  TokenType = "action"
)

type TokenState string

const (
	StateValid   TokenState = "valid"
	StatePending TokenState = "pending"
	StateError   TokenState = "error"
)

// PromptToken is a span of the raw prompt. Start and End are byte offsets
// into ParsedPrompt.Raw.
type PromptToken struct {
	Type  TokenType  `json:"type"`
	Value string     `json:"value"`
	Start int        `json:"index"`
	End   int        `json:"end"`
	State TokenState `json:"state,omitempty"`
}

// ParsedPrompt is the tokenized form of what the user typed.
type ParsedPrompt struct {
	Raw               string        `json:"raw"`
	Text              string        `json:"text"`
	CaretPosition     int           `json:"caretPosition"`
	CurrentTokenIndex int           `json:"currentTokenIndex"`
	Tokens            []PromptToken `json:"tokens"`
	Locked            bool          `json:"locked,omitempty"`
	TokenCount        int           `json:"tokenCount,omitempty"`
}

type parsedPromptAlias ParsedPrompt

// UnmarshalJSON accepts either a prompt object or a bare string; older
// records stored the prompt as its raw text.
func (p *ParsedPrompt) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var raw string
		if err := json.Unmarshal(data, &raw); err != nil {
			return err
		}
		*p = ParsedPrompt{Raw: raw, Text: raw, CurrentTokenIndex: -1}
		return nil
	}
	var alias parsedPromptAlias
	if err := json.Unmarshal(data, &alias); err != nil {
		return err
	}
	*p = ParsedPrompt(alias)
	return nil
}

// Mentions returns the mention tokens of p in order.
func (p ParsedPrompt) Mentions() []PromptToken {
	var out []PromptToken
	for _, t := range p.Tokens {
		if t.Type == TokenMention {
			out = append(out, t)
		}
	}
	return out
}

// Actions returns the action tokens of p in order.
func (p ParsedPrompt) Actions() []PromptToken {
	var out []PromptToken
	for _, t := range p.Tokens {
		if t.Type == TokenAction {
			out = append(out, t)
		}
	}
	return out
}
