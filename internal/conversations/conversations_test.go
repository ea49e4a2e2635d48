package conversations

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/opla/internal/types"
)

func conv(id string, at time.Time) types.Conversation {
	return types.Conversation{ID: types.ConversationID(id), Record: types.NewRecord(at), Name: id}
}

func TestCreateDefaults(t *testing.T) {
	now := time.Now()
	c := Create("chat", now)

	assert.NotEmpty(t, c.ID)
	assert.Equal(t, "chat", c.Name)
	assert.Equal(t, types.PolicyRolling, c.ContextWindowPolicy)
	assert.True(t, c.KeepSystem)
	assert.Empty(t, c.Messages)
	assert.Equal(t, now, c.CreatedAt)
}

func TestUpdateReplacesByID(t *testing.T) {
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	list := []types.Conversation{conv("a", t0), conv("b", t0)}

	changed := list[1]
	changed.Name = "renamed"
	out := Update(changed, list, t0.Add(time.Hour), false)

	require.Len(t, out, 2)
	assert.Equal(t, "renamed", out[1].Name)
	assert.Equal(t, t0.Add(time.Hour), out[1].UpdatedAt)
	assert.Equal(t, "b", list[1].Name, "input list is not mutated")
}

func TestUpdateSkipTimestamp(t *testing.T) {
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	list := []types.Conversation{conv("a", t0)}

	out := Update(list[0], list, t0.Add(time.Hour), true)

	assert.Equal(t, t0, out[0].UpdatedAt)
}

func TestUpdateUnknownIsNoop(t *testing.T) {
	t0 := time.Now()
	list := []types.Conversation{conv("a", t0)}

	out := Update(conv("zzz", t0), list, t0, false)

	assert.Equal(t, list, out)
}

func TestRemove(t *testing.T) {
	t0 := time.Now()
	list := []types.Conversation{conv("a", t0), conv("b", t0)}

	assert.Len(t, Remove("a", list), 1)
	assert.Len(t, Remove("missing", list), 2)
	_, ok := Find("a", Remove("a", list))
	assert.False(t, ok)
}

func TestMergeListsLastWriteWins(t *testing.T) {
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	older := conv("a", t0)
	newer := conv("a", t0.Add(time.Hour))
	newer.Name = "newer"

	out := MergeLists([]types.Conversation{newer}, []types.Conversation{older})
	require.Len(t, out, 1)
	assert.Equal(t, "newer", out[0].Name)

	out = MergeLists([]types.Conversation{older}, []types.Conversation{newer})
	require.Len(t, out, 1)
	assert.Equal(t, "newer", out[0].Name)
}

func TestMergeListsTieFavorsIncoming(t *testing.T) {
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	local := conv("a", t0)
	local.Name = "local"
	imported := conv("a", t0)
	imported.Name = "imported"

	out := MergeLists([]types.Conversation{local}, []types.Conversation{imported})

	require.Len(t, out, 1)
	assert.Equal(t, "imported", out[0].Name)
}

func TestMergeListsUnion(t *testing.T) {
	t0 := time.Now()
	a := []types.Conversation{conv("a", t0), conv("b", t0)}
	b := []types.Conversation{conv("c", t0), conv("b", t0), conv("d", t0)}

	out := MergeLists(a, b)

	var got []types.ConversationID
	for _, c := range out {
		got = append(got, c.ID)
	}
	assert.Equal(t, []types.ConversationID{"a", "b", "c", "d"}, got)
}

func TestSetPromptTempDiscard(t *testing.T) {
	now := time.Now()
	temp := CreateTemp(now)
	list := []types.Conversation{temp}

	list = SetPrompt(list, temp.ID, types.ParsedPrompt{Raw: "hel", Text: "hel"})
	require.Len(t, list, 1)
	require.NotNil(t, list[0].CurrentPrompt)
	assert.Equal(t, "hel", list[0].CurrentPrompt.Raw)
	assert.Equal(t, now, list[0].UpdatedAt, "typing does not bump updatedAt")

	list = SetPrompt(list, temp.ID, types.ParsedPrompt{})
	assert.Empty(t, list, "cleared temp conversation is removed")
}

func TestSetPromptKeepsPermanentConversation(t *testing.T) {
	c := Create("kept", time.Now())
	list := SetPrompt([]types.Conversation{c}, c.ID, types.ParsedPrompt{})

	require.Len(t, list, 1)
	assert.Equal(t, "", list[0].CurrentPrompt.Raw)
}

func TestPromote(t *testing.T) {
	t0 := time.Now()
	temp := CreateTemp(t0)
	temp.CurrentPrompt = &types.ParsedPrompt{Raw: "hello there", Text: "hello there"}

	c := Promote(temp, t0.Add(time.Second))

	assert.False(t, c.Temp)
	assert.Equal(t, "hello there", c.Name)
	assert.Equal(t, t0.Add(time.Second), c.UpdatedAt)
}

func TestSortByUpdated(t *testing.T) {
	t0 := time.Now()
	list := []types.Conversation{conv("old", t0), conv("new", t0.Add(time.Hour))}

	out := SortByUpdated(list)

	assert.Equal(t, types.ConversationID("new"), out[0].ID)
	assert.Equal(t, types.ConversationID("old"), list[0].ID)
}
