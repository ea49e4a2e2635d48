// internal/context/engine.go
package context

import (
	"errors"
	"fmt"

	"github.com/pkoukk/tiktoken-go"

	"github.com/user/opla/internal/presets"
	"github.com/user/opla/internal/types"
	"github.com/user/opla/pkg/llm"
)

var ErrContextWindowExceeded = errors.New("conversation exceeds the model context window")

// Engine assembles token-budgeted prompts for the LLM.
type Engine struct {
	tokenizer *tiktoken.Tiktoken
	maxTokens int
	reserve   int
}

// New creates a context engine with the specified token budget.
// model is used to select the appropriate tokenizer (e.g. "gpt-4").
// maxTokens is the model's context window size; zero disables budgeting.
// reserve is the number of tokens to reserve for the model's response.
func New(model string, maxTokens, reserve int) (*Engine, error) {
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		// Fallback to cl100k_base for unknown models
		enc, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			return nil, fmt.Errorf("get tokenizer: %w", err)
		}
	}
	return &Engine{
		tokenizer: enc,
		maxTokens: maxTokens,
		reserve:   reserve,
	}, nil
}

// CountTokens returns the token count for a string.
func (e *Engine) CountTokens(text string) int {
	return len(e.tokenizer.Encode(text, nil, nil))
}

// Budget returns the number of input tokens available, or -1 if unlimited.
func (e *Engine) Budget() int {
	if e.maxTokens <= 0 {
		return -1
	}
	b := e.maxTokens - e.reserve
	if b < 0 {
		return 0
	}
	return b
}

// Build converts conversation history into the messages sent to the model.
// The system prompt comes first. Messages in error or pending state and
// messages with no content are skipped. The context window policy of eff
// decides what happens when the history does not fit the budget.
func (e *Engine) Build(history []types.Message, eff presets.Effective, excerpts []Excerpt) ([]llm.Message, error) {
	system, err := RenderSystem(PromptData{System: eff.System, Assets: excerpts})
	if err != nil {
		return nil, err
	}

	msgs := make([]llm.Message, 0, len(history))
	for _, m := range history {
		if m.Status == types.StatusError || m.Status == types.StatusPending {
			continue
		}
		text := types.TextOf(m.Content)
		if text == "" {
			continue
		}
		msgs = append(msgs, llm.Message{Role: roleOf(m.Author.Role), Content: text})
	}

	if eff.ContextWindowPolicy == types.PolicyLast {
		msgs = lastUser(msgs)
	}

	budget := e.Budget()
	sysTokens := 0
	if system != "" {
		sysTokens = e.CountTokens(system)
	}
	costs := make([]int, len(msgs))
	total := sysTokens
	for i, m := range msgs {
		costs[i] = e.CountTokens(m.Content)
		total += costs[i]
	}

	if budget >= 0 && total > budget {
		switch eff.ContextWindowPolicy {
		case types.PolicyStop:
			return nil, fmt.Errorf("build context (%d > %d tokens): %w", total, budget, ErrContextWindowExceeded)
		case types.PolicyRolling:
			if !eff.KeepSystem && system != "" {
				system = ""
				total -= sysTokens
			}
			// The newest message always stays.
			drop := 0
			for total > budget && drop < len(msgs)-1 {
				total -= costs[drop]
				drop++
			}
			msgs = msgs[drop:]
		case types.PolicyNone, types.PolicyLast:
		}
	}

	out := make([]llm.Message, 0, len(msgs)+1)
	if system != "" {
		out = append(out, llm.Message{Role: string(types.RoleSystem), Content: system})
	}
	return append(out, msgs...), nil
}

func roleOf(r types.Role) string {
	switch r {
	case types.RoleAssistant, types.RoleSystem:
		return string(r)
	default:
		return string(types.RoleUser)
	}
}

func lastUser(msgs []llm.Message) []llm.Message {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == string(types.RoleUser) {
			return []llm.Message{msgs[i]}
		}
	}
	return nil
}
