// Package messages merges, versions and finalizes conversation messages.
// Every function returns new values and leaves its inputs untouched.
package messages

import (
	"time"

	"github.com/user/opla/internal/types"
)

// Merge folds changed into existing by id. Entries present in both keep
// their position in existing and take changed's fields; entries only in
// changed are appended in their relative order. Nothing is dropped.
func Merge(existing, changed []types.Message, now time.Time) []types.Message {
	// Duplicate ids in changed collapse to the last occurrence.
	updates := make(map[types.MessageID]types.Message, len(changed))
	order := make([]types.MessageID, 0, len(changed))
	for _, m := range changed {
		if _, seen := updates[m.ID]; !seen {
			order = append(order, m.ID)
		}
		updates[m.ID] = m
	}

	out := make([]types.Message, 0, len(existing)+len(changed))
	placed := make(map[types.MessageID]bool, len(existing))
	for _, m := range existing {
		if placed[m.ID] {
			continue
		}
		placed[m.ID] = true
		if u, ok := updates[m.ID]; ok {
			out = append(out, overlay(m, u, now))
			continue
		}
		out = append(out, m)
	}

	for _, id := range order {
		if placed[id] {
			continue
		}
		placed[id] = true
		m := updates[id]
		if m.CreatedAt.IsZero() {
			m.CreatedAt = now
		}
		m.Touch(now)
		out = append(out, m)
	}
	return out
}

// overlay lays the non-zero fields of u over base.
func overlay(base, u types.Message, now time.Time) types.Message {
	out := base
	if u.ConversationID != "" {
		out.ConversationID = u.ConversationID
	}
	if u.Author.Role != "" {
		out.Author = u.Author
	}
	if u.Content != nil {
		out.Content = u.Content
	}
	if u.ContentHistory != nil {
		out.ContentHistory = u.ContentHistory
	}
	if u.Status != "" {
		out.Status = u.Status
	}
	if u.Assets != nil {
		out.Assets = u.Assets
	}
	if u.Sibling != "" {
		out.Sibling = u.Sibling
	}
	if u.Usage != nil {
		out.Usage = u.Usage
	}
	if len(u.Metadata) > 0 {
		md := types.CloneMetadata(base.Metadata)
		if md == nil {
			md = make(map[string]string, len(u.Metadata))
		}
		for k, v := range u.Metadata {
			md[k] = v
		}
		out.Metadata = md
	}
	if out.CreatedAt.IsZero() {
		out.CreatedAt = u.CreatedAt
	}
	out.Touch(now)
	return out
}

// MergeNewer folds copies of messages made elsewhere into existing. A
// copy replaces the local message with the same id unless the local one was
// updated later; ties go to the copy. Copies keep their own timestamps so a
// later merge can still order them.
func MergeNewer(existing, copies []types.Message) []types.Message {
	byID := make(map[types.MessageID]types.Message, len(copies))
	order := make([]types.MessageID, 0, len(copies))
	for _, m := range copies {
		if _, seen := byID[m.ID]; !seen {
			order = append(order, m.ID)
		}
		byID[m.ID] = m
	}

	out := make([]types.Message, 0, len(existing)+len(copies))
	placed := make(map[types.MessageID]bool, len(existing))
	for _, m := range existing {
		if placed[m.ID] {
			continue
		}
		placed[m.ID] = true
		if c, ok := byID[m.ID]; ok && !c.UpdatedAt.Before(m.UpdatedAt) {
			out = append(out, c)
			continue
		}
		out = append(out, m)
	}
	for _, id := range order {
		if !placed[id] {
			placed[id] = true
			out = append(out, byID[id])
		}
	}
	return out
}

// Remove drops the messages with the given ids and clears sibling links
// that pointed at them. Unknown ids are ignored.
func Remove(list []types.Message, ids ...types.MessageID) []types.Message {
	drop := make(map[types.MessageID]bool, len(ids))
	for _, id := range ids {
		drop[id] = true
	}
	out := make([]types.Message, 0, len(list))
	for _, m := range list {
		if drop[m.ID] {
			continue
		}
		if drop[m.Sibling] {
			m.Sibling = ""
		}
		out = append(out, m)
	}
	return out
}

// Find returns the message with the given id.
func Find(list []types.Message, id types.MessageID) (types.Message, bool) {
	for _, m := range list {
		if m.ID == id {
			return m, true
		}
	}
	return types.Message{}, false
}

// Sibling returns the message paired with msg.
func Sibling(list []types.Message, msg types.Message) (types.Message, bool) {
	if msg.Sibling == "" {
		return types.Message{}, false
	}
	return Find(list, msg.Sibling)
}

// Before returns the messages preceding the one with the given id.
// The whole list is returned when id is not found.
func Before(list []types.Message, id types.MessageID) []types.Message {
	for i, m := range list {
		if m.ID == id {
			return list[:i:i]
		}
	}
	return list
}
