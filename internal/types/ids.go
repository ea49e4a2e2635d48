// internal/types/ids.go
package types

import (
	"github.com/google/uuid"
)

type ConversationID string
type MessageID string
type AssetID string
type PresetID string
type ProviderID string
type RunID string

func NewConversationID() ConversationID {
	return ConversationID(uuid.New().String())
}

func NewMessageID() MessageID {
	return MessageID(uuid.New().String())
}

func NewAssetID() AssetID {
	return AssetID(uuid.New().String())
}

func NewPresetID() PresetID {
	return PresetID(uuid.New().String())
}

func NewProviderID() ProviderID {
	return ProviderID(uuid.New().String())
}

func NewRunID() RunID {
	return RunID(uuid.New().String())
}
