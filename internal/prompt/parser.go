// Package prompt tokenizes what the user types into text, mentions and
// actions, and validates those tokens against a command registry.
package prompt

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/user/opla/internal/types"
)

// Parser splits raw input into tokens. It is stateless and safe for
// concurrent use.
type Parser struct {
	mentionPrefix  string
	actionPrefixes []string
}

// Option configures a Parser.
type Option func(*Parser)

// WithMentionPrefix sets the prefix that starts a mention (default "@").
func WithMentionPrefix(prefix string) Option {
	return func(p *Parser) { p.mentionPrefix = prefix }
}

// WithActionPrefixes sets the prefixes that start an action (default "/").
func WithActionPrefixes(prefixes ...string) Option {
	return func(p *Parser) { p.actionPrefixes = prefixes }
}

// NewParser creates a parser with the default prefixes unless overridden.
func NewParser(opts ...Option) *Parser {
	p := &Parser{
		mentionPrefix:  "@",
		actionPrefixes: []string{"/"},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

var defaultParser = NewParser()

// Parse tokenizes raw with the default parser.
func Parse(raw string, caret int) types.ParsedPrompt {
	return defaultParser.Parse(raw, caret)
}

// FromRaw wraps raw text in a prompt without tokenizing it.
func FromRaw(raw string) types.ParsedPrompt {
	return types.ParsedPrompt{Raw: raw, Text: raw, CaretPosition: len(raw), CurrentTokenIndex: -1}
}

// Parse scans raw once, splitting on whitespace. Runs starting with the
// mention prefix become mentions, runs starting with an action prefix
// become actions, newlines become newline tokens and adjacent words are
// grouped into text tokens.
func (p *Parser) Parse(raw string, caret int) types.ParsedPrompt {
	if caret < 0 {
		caret = 0
	}
	if caret > len(raw) {
		caret = len(raw)
	}

	var tokens []types.PromptToken
	i := 0
	for i < len(raw) {
		r, size := utf8.DecodeRuneInString(raw[i:])
		if r == '\n' {
			tokens = append(tokens, types.PromptToken{
				Type:  types.TokenNewline,
				Value: "\n",
				Start: i,
				End:   i + size,
			})
			i += size
			continue
		}
		if unicode.IsSpace(r) {
			i += size
			continue
		}

		start := i
		for i < len(raw) {
			r, size := utf8.DecodeRuneInString(raw[i:])
			if unicode.IsSpace(r) {
				break
			}
			i += size
		}

		tok := p.classify(raw[start:i], start, i)
		if tok.Type == types.TokenText && len(tokens) > 0 && tokens[len(tokens)-1].Type == types.TokenText {
			last := &tokens[len(tokens)-1]
			last.End = i
			last.Value = raw[last.Start:i]
			continue
		}
		tokens = append(tokens, tok)
	}

	return types.ParsedPrompt{
		Raw:               raw,
		Text:              render(tokens),
		CaretPosition:     caret,
		CurrentTokenIndex: tokenAt(tokens, caret),
		Tokens:            tokens,
	}
}

func (p *Parser) classify(word string, start, end int) types.PromptToken {
	tok := types.PromptToken{Type: types.TokenText, Value: word, Start: start, End: end}
	if p.mentionPrefix != "" && len(word) > len(p.mentionPrefix) && strings.HasPrefix(word, p.mentionPrefix) {
		tok.Type = types.TokenMention
		tok.Value = word[len(p.mentionPrefix):]
		return tok
	}
	for _, prefix := range p.actionPrefixes {
		if prefix != "" && len(word) > len(prefix) && strings.HasPrefix(word, prefix) {
			tok.Type = types.TokenAction
			tok.Value = word[len(prefix):]
			return tok
		}
	}
	return tok
}

// render joins text tokens with single spaces, keeps newlines and trims
// the result. Re-parsing the output yields the same output.
func render(tokens []types.PromptToken) string {
	var b strings.Builder
	afterNewline := true
	for _, t := range tokens {
		switch t.Type {
		case types.TokenText:
			if b.Len() > 0 && !afterNewline {
				b.WriteByte(' ')
			}
			b.WriteString(strings.Join(strings.Fields(t.Value), " "))
			afterNewline = false
		case types.TokenNewline:
			if b.Len() > 0 {
				b.WriteByte('\n')
				afterNewline = true
			}
		case types.TokenMention, types.TokenAction:
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

// tokenAt returns the index of the token under the caret, or -1.
func tokenAt(tokens []types.PromptToken, caret int) int {
	for i, t := range tokens {
		if t.Type == types.TokenNewline {
			continue
		}
		if caret >= t.Start && caret <= t.End {
			return i
		}
	}
	return -1
}

// Compare reports whether two prompts hold the same input. Only Raw is
// significant.
func Compare(a, b types.ParsedPrompt) bool {
	return a.Raw == b.Raw
}
