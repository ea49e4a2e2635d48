// internal/state/message.go
package state

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/user/opla/internal/types"
)

// MessageStore keeps the messages of each conversation in
// conversations/<conversationID>/messages.json.
type MessageStore struct {
	root  string
	mu    sync.Mutex
	locks map[types.ConversationID]*sync.Mutex
}

// NewMessageStore creates a new file-backed MessageStore rooted at the given directory.
func NewMessageStore(root string) *MessageStore {
	return &MessageStore{
		root:  root,
		locks: make(map[types.ConversationID]*sync.Mutex),
	}
}

// getLock returns the per-conversation mutex, creating one if it doesn't exist.
func (m *MessageStore) getLock(id types.ConversationID) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()

	if lock, ok := m.locks[id]; ok {
		return lock
	}
	lock := &sync.Mutex{}
	m.locks[id] = lock
	return lock
}

// checkID rejects ids that would escape the conversations directory.
func checkID(id types.ConversationID) error {
	if id == "" || id == "." || id == ".." || strings.ContainsAny(string(id), `/\`) {
		return fmt.Errorf("invalid conversation id %q", id)
	}
	return nil
}

func (m *MessageStore) conversationDir(id types.ConversationID) string {
	return filepath.Join(m.root, "conversations", string(id))
}

func (m *MessageStore) messagesPath(id types.ConversationID) string {
	return filepath.Join(m.conversationDir(id), "messages.json")
}

// ReadConversationMessages returns the stored messages, or an empty list.
func (m *MessageStore) ReadConversationMessages(_ context.Context, id types.ConversationID) ([]types.Message, error) {
	if err := checkID(id); err != nil {
		return nil, err
	}
	lock := m.getLock(id)
	lock.Lock()
	defer lock.Unlock()

	data, err := os.ReadFile(m.messagesPath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return []types.Message{}, nil
		}
		return nil, fmt.Errorf("read messages: %w", err)
	}

	var messages []types.Message
	if err := json.Unmarshal(data, &messages); err != nil {
		return nil, fmt.Errorf("unmarshal messages: %w", err)
	}
	return messages, nil
}

// WriteConversationMessages replaces the stored messages of a conversation.
func (m *MessageStore) WriteConversationMessages(_ context.Context, id types.ConversationID, messages []types.Message) error {
	if err := checkID(id); err != nil {
		return err
	}
	if messages == nil {
		messages = []types.Message{}
	}
	data, err := json.MarshalIndent(messages, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal messages: %w", err)
	}

	lock := m.getLock(id)
	lock.Lock()
	defer lock.Unlock()

	return writeFileAtomic(m.messagesPath(id), data)
}

// DeleteConversationMessages removes the conversation directory.
func (m *MessageStore) DeleteConversationMessages(_ context.Context, id types.ConversationID) error {
	if err := checkID(id); err != nil {
		return err
	}
	lock := m.getLock(id)
	lock.Lock()
	defer lock.Unlock()

	if err := os.RemoveAll(m.conversationDir(id)); err != nil {
		return fmt.Errorf("delete messages: %w", err)
	}
	return nil
}
