// Package conversations creates, updates and merges conversation lists.
// Operations never mutate the slices they are given.
package conversations

import (
	"sort"
	"strings"
	"time"

	"github.com/user/opla/internal/types"
)

// Create returns a new, empty conversation.
func Create(name string, now time.Time) types.Conversation {
	return types.Conversation{
		ID:                  types.NewConversationID(),
		Record:              types.NewRecord(now),
		Name:                name,
		ContextWindowPolicy: types.PolicyRolling,
		KeepSystem:          true,
	}
}

// CreateTemp returns an unpersisted conversation used while the first
// message is being composed.
func CreateTemp(now time.Time) types.Conversation {
	c := Create("", now)
	c.Temp = true
	return c
}

// Find returns the conversation with the given id.
func Find(id types.ConversationID, list []types.Conversation) (types.Conversation, bool) {
	for _, c := range list {
		if c.ID == id {
			return c, true
		}
	}
	return types.Conversation{}, false
}

// Update replaces the conversation with the same id. The list is returned
// unchanged when there is none; new conversations must be appended by the
// caller. skipTimestamp leaves UpdatedAt alone for high-frequency updates.
func Update(c types.Conversation, list []types.Conversation, now time.Time, skipTimestamp bool) []types.Conversation {
	idx := -1
	for i := range list {
		if list[i].ID == c.ID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return list
	}
	if !skipTimestamp {
		c.Touch(now)
	}
	out := make([]types.Conversation, len(list))
	copy(out, list)
	out[idx] = c
	return out
}

// Remove filters out the conversation with the given id.
func Remove(id types.ConversationID, list []types.Conversation) []types.Conversation {
	out := make([]types.Conversation, 0, len(list))
	for _, c := range list {
		if c.ID != id {
			out = append(out, c)
		}
	}
	return out
}

// MergeLists unions a and b by id. When both hold an id, the copy with the
// greater or equal UpdatedAt wins, so ties go to b. a's order is kept and
// ids only present in b are appended in b's order.
func MergeLists(a, b []types.Conversation) []types.Conversation {
	incoming := make(map[types.ConversationID]types.Conversation, len(b))
	for _, c := range b {
		incoming[c.ID] = c
	}

	out := make([]types.Conversation, 0, len(a)+len(b))
	seen := make(map[types.ConversationID]bool, len(a)+len(b))
	for _, c := range a {
		if seen[c.ID] {
			continue
		}
		seen[c.ID] = true
		if n, ok := incoming[c.ID]; ok && !n.UpdatedAt.Before(c.UpdatedAt) {
			c = n
		}
		out = append(out, c)
	}
	for _, c := range b {
		if seen[c.ID] {
			continue
		}
		seen[c.ID] = true
		out = append(out, incoming[c.ID])
	}
	return out
}

// SortByUpdated returns a copy of list, most recently updated first.
func SortByUpdated(list []types.Conversation) []types.Conversation {
	out := make([]types.Conversation, len(list))
	copy(out, list)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out
}

// Title returns the display name of c, falling back to the start of its
// pending prompt.
func Title(c types.Conversation) string {
	if c.Name != "" {
		return c.Name
	}
	if c.CurrentPrompt != nil && c.CurrentPrompt.Text != "" {
		runes := []rune(strings.ReplaceAll(c.CurrentPrompt.Text, "\n", " "))
		if len(runes) > 50 {
			return string(runes[:47]) + "..."
		}
		return string(runes)
	}
	return "New conversation"
}

// SetPrompt stores the prompt being typed without bumping UpdatedAt. A temp
// conversation whose prompt is cleared is removed from the list.
func SetPrompt(list []types.Conversation, id types.ConversationID, prompt types.ParsedPrompt) []types.Conversation {
	c, ok := Find(id, list)
	if !ok {
		return list
	}
	if c.Temp && strings.TrimSpace(prompt.Raw) == "" {
		return Remove(id, list)
	}
	p := prompt
	c.CurrentPrompt = &p
	return Update(c, list, time.Time{}, true)
}

// Promote turns a temp conversation into a permanent one.
func Promote(c types.Conversation, now time.Time) types.Conversation {
	if !c.Temp {
		return c
	}
	c.Temp = false
	if c.Name == "" {
		c.Name = Title(c)
	}
	c.Touch(now)
	return c
}
