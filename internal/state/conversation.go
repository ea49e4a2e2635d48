// internal/state/conversation.go
package state

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/user/opla/internal/types"
)

// ConversationStore is a JSON-file-backed conversation index.
// The index lives in conversations.json under root; temporary
// conversations are never written.
type ConversationStore struct {
	root string
	mu   sync.RWMutex
}

// NewConversationStore creates a file-backed ConversationStore rooted at the given directory.
func NewConversationStore(root string) *ConversationStore {
	return &ConversationStore{root: root}
}

func (s *ConversationStore) indexPath() string {
	return filepath.Join(s.root, "conversations.json")
}

// ReadConversations returns the stored index. A missing file is an empty index.
func (s *ConversationStore) ReadConversations(_ context.Context) ([]types.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := os.ReadFile(s.indexPath())
	if err != nil {
		if os.IsNotExist(err) {
			return []types.Conversation{}, nil
		}
		return nil, fmt.Errorf("read conversation index: %w", err)
	}

	var conversations []types.Conversation
	if err := json.Unmarshal(data, &conversations); err != nil {
		return nil, fmt.Errorf("unmarshal conversation index: %w", err)
	}
	return conversations, nil
}

// WriteConversations replaces the stored index with the persistent
// conversations of the list.
func (s *ConversationStore) WriteConversations(_ context.Context, conversations []types.Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.MarshalIndent(persistent(conversations), "", "  ")
	if err != nil {
		return fmt.Errorf("marshal conversation index: %w", err)
	}
	return writeFileAtomic(s.indexPath(), data)
}

// persistent strips temporary conversations and loaded messages.
func persistent(conversations []types.Conversation) []types.Conversation {
	out := make([]types.Conversation, 0, len(conversations))
	for _, c := range conversations {
		if c.Temp {
			continue
		}
		c.Messages = nil
		out = append(out, c)
	}
	return out
}

// writeFileAtomic writes to a temp file then renames it over path.
func writeFileAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create dir: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}
