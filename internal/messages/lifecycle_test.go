package messages

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/user/opla/internal/types"
)

func TestStreamThenComplete(t *testing.T) {
	t0 := time.Now()
	m := NewAssistantMessage("c1", "gpt-4", t0)
	assert.Equal(t, types.StatusPending, m.Status)

	m = AppendStream(m, "Hel", t0)
	m = AppendStream(m, "lo", t0)
	assert.Equal(t, types.StatusStream, m.Status)
	assert.Equal(t, "Hello", types.TextOf(m.Content))
	assert.Empty(t, m.ContentHistory, "streaming does not record history")

	m = Finalize(m, OutcomeCompleted, &types.Usage{TokenCount: 2}, nil, t0)
	assert.Equal(t, types.StatusDelivered, m.Status)
	assert.Equal(t, "Hello", types.TextOf(m.Content))
	assert.Equal(t, 2, m.Usage.TokenCount)
	assert.Equal(t, string(OutcomeCompleted), m.Metadata[MetadataOutcome])
}

func TestFinalizeCancelled(t *testing.T) {
	t0 := time.Now()

	partial := AppendStream(NewAssistantMessage("c1", "m", t0), "Hel", t0)
	m := Finalize(partial, OutcomeCancelled, nil, nil, t0)
	assert.Equal(t, types.StatusDelivered, m.Status)
	assert.Equal(t, "Hel", types.TextOf(m.Content))
	assert.Equal(t, string(OutcomeCancelled), m.Metadata[MetadataOutcome])

	empty := Finalize(NewAssistantMessage("c1", "m", t0), OutcomeCancelled, nil, nil, t0)
	assert.Equal(t, types.StatusDelivered, empty.Status)
	assert.Equal(t, CancelledText, types.TextOf(empty.Content))
}

func TestFinalizeFailed(t *testing.T) {
	t0 := time.Now()
	m := Finalize(NewAssistantMessage("c1", "m", t0), OutcomeFailed, nil, errors.New("boom"), t0)

	assert.Equal(t, types.StatusError, m.Status)
	assert.Equal(t, ErrorText, types.TextOf(m.Content))
	assert.Equal(t, "boom", m.Metadata[MetadataError])
	assert.True(t, IsFinal(m))
}

func TestNewUserMessageKeepsRaw(t *testing.T) {
	p := types.ParsedPrompt{Raw: "@gpt-4 hello world", Text: "hello world"}
	m := NewUserMessage("c1", p, time.Now())

	assert.Equal(t, "hello world", types.TextOf(m.Content))
	assert.Equal(t, "@gpt-4 hello world", types.RawOf(m.Content))
	assert.Equal(t, types.RoleUser, m.Author.Role)
}
