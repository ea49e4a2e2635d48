// internal/types/interfaces.go
package types

import (
	"context"
)

// ConversationStore persists the conversation index.
type ConversationStore interface {
	ReadConversations(ctx context.Context) ([]Conversation, error)
	WriteConversations(ctx context.Context, conversations []Conversation) error
}

// MessageStore persists the message list of each conversation.
type MessageStore interface {
	ReadConversationMessages(ctx context.Context, id ConversationID) ([]Message, error)
	WriteConversationMessages(ctx context.Context, id ConversationID, messages []Message) error
	DeleteConversationMessages(ctx context.Context, id ConversationID) error
}

// Persistence is everything the application needs from storage.
type Persistence interface {
	ConversationStore
	MessageStore
}
