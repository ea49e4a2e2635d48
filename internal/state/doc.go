// Package state provides filesystem-backed storage implementations.
package state

import "github.com/user/opla/internal/types"

// Compile-time interface compliance checks.
var _ types.ConversationStore = (*ConversationStore)(nil)
var _ types.MessageStore = (*MessageStore)(nil)
var _ types.Persistence = (*JSONStore)(nil)
var _ types.Persistence = (*BoltStore)(nil)

// JSONStore combines the JSON conversation index and message files under
// one data directory.
type JSONStore struct {
	*ConversationStore
	*MessageStore
}

// NewJSONStore creates a JSONStore rooted at the given directory.
func NewJSONStore(root string) *JSONStore {
	return &JSONStore{
		ConversationStore: NewConversationStore(root),
		MessageStore:      NewMessageStore(root),
	}
}
