package prompt

import (
	"errors"
	"strings"

	"github.com/user/opla/internal/types"
)

var (
	ErrEmptyPrompt      = errors.New("prompt is empty")
	ErrMultipleMentions = errors.New("only one model or assistant can be mentioned per message")
	ErrUnknownMention   = errors.New("unknown model or assistant")
	ErrUnknownAction    = errors.New("unknown command")
	ErrPending          = errors.New("commands are still loading")
)

// ValidationError is returned by CheckSend. Err is one of the sentinel
// errors above; Token is the offending token when there is one.
type ValidationError struct {
	Err   error
	Token *types.PromptToken
}

func (e *ValidationError) Error() string {
	if e.Token == nil {
		return e.Err.Error()
	}
	switch e.Token.Type {
	case types.TokenMention:
		return e.Err.Error() + ": @" + e.Token.Value
	case types.TokenAction:
		return e.Err.Error() + ": /" + e.Token.Value
	default:
		return e.Err.Error()
	}
}

func (e *ValidationError) Unwrap() error { return e.Err }

// Target is something a mention can select.
type Target struct {
	Type       types.ConnectorType
	ID         string
	Name       string
	ProviderID string
}

// Connector converts the target into a conversation connector.
func (t Target) Connector() types.Connector {
	c := types.Connector{Type: t.Type, ProviderID: t.ProviderID}
	if t.Type == types.ConnectorAssistant {
		c.AssistantID = t.ID
	} else {
		c.ModelID = t.ID
	}
	return c
}

// Action is an executable command recognized in a prompt.
type Action struct {
	Name        string
	Aliases     []string
	Description string
}

// CommandRegistry supplies mention targets and actions to the validator.
type CommandRegistry interface {
	Loaded() bool
	MatchMention(value string) []Target
	LookupAction(name string) (Action, bool)
}

// Validate returns a copy of p with the State of every token set. Text and
// newline tokens are always valid. While the registry has not loaded,
// mentions and actions are pending. More than one mention marks every
// mention as an error.
func Validate(p types.ParsedPrompt, reg CommandRegistry) types.ParsedPrompt {
	out := p
	out.Tokens = make([]types.PromptToken, len(p.Tokens))
	copy(out.Tokens, p.Tokens)

	mentions := len(p.Mentions())
	loaded := reg != nil && reg.Loaded()

	for i := range out.Tokens {
		t := &out.Tokens[i]
		switch t.Type {
		case types.TokenText, types.TokenNewline:
			t.State = types.StateValid
		case types.TokenMention:
			switch {
			case mentions > 1:
				t.State = types.StateError
			case !loaded:
				t.State = types.StatePending
			case len(reg.MatchMention(t.Value)) == 1:
				t.State = types.StateValid
			default:
				t.State = types.StateError
			}
		case types.TokenAction:
			switch {
			case !loaded:
				t.State = types.StatePending
			default:
				if _, ok := reg.LookupAction(t.Value); ok {
					t.State = types.StateValid
				} else {
					t.State = types.StateError
				}
			}
		}
	}
	return out
}

// CheckSend reports whether a validated prompt may be sent.
func CheckSend(p types.ParsedPrompt) error {
	mentions := p.Mentions()
	if len(mentions) > 1 {
		return &ValidationError{Err: ErrMultipleMentions, Token: &mentions[1]}
	}
	for i := range p.Tokens {
		t := p.Tokens[i]
		switch {
		case t.State == types.StatePending:
			return &ValidationError{Err: ErrPending, Token: &t}
		case t.State == types.StateError && t.Type == types.TokenMention:
			return &ValidationError{Err: ErrUnknownMention, Token: &t}
		case t.State == types.StateError && t.Type == types.TokenAction:
			return &ValidationError{Err: ErrUnknownAction, Token: &t}
		}
	}
	if strings.TrimSpace(p.Text) == "" && len(p.Actions()) == 0 {
		return &ValidationError{Err: ErrEmptyPrompt}
	}
	return nil
}

// SelectedTarget returns the target of the single valid mention in p.
func SelectedTarget(p types.ParsedPrompt, reg CommandRegistry) (Target, bool) {
	mentions := p.Mentions()
	if len(mentions) != 1 || mentions[0].State != types.StateValid || reg == nil {
		return Target{}, false
	}
	matches := reg.MatchMention(mentions[0].Value)
	if len(matches) != 1 {
		return Target{}, false
	}
	return matches[0], true
}
