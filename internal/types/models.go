// internal/types/models.go
package types

import (
	"encoding/json"
	"fmt"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

type MessageStatus string

const (
	StatusPending   MessageStatus = "pending"
	StatusStream    MessageStatus = "stream"
	StatusDelivered MessageStatus = "delivered"
	StatusError     MessageStatus = "error"
)

type Author struct {
	Role     Role              `json:"role"`
	Name     string            `json:"name"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Usage reports what a completion cost.
type Usage struct {
	PromptTokens     int     `json:"promptTokens,omitempty"`
	CompletionTokens int     `json:"completionTokens,omitempty"`
	TokenCount       int     `json:"tokenCount,omitempty"`
	TotalMs          int64   `json:"totalMs,omitempty"`
	TotalPerSecond   float64 `json:"totalPerSecond,omitempty"`
}

// Message is one entry of a conversation. Sibling is a plain id reference
// between a user message and the assistant response it produced.
type Message struct {
	ID MessageID `json:"id"`
	Record
	ConversationID ConversationID `json:"conversationId,omitempty"`
	Author         Author         `json:"author"`
	Content        Content        `json:"-"`
	ContentHistory []Content      `json:"-"`
	Status         MessageStatus  `json:"status,omitempty"`
	Assets         []AssetID      `json:"assets,omitempty"`
	Sibling        MessageID      `json:"sibling,omitempty"`
	Usage          *Usage         `json:"usage,omitempty"`
}

type messageAlias Message

type messageJSON struct {
	messageAlias
	Content        json.RawMessage   `json:"content,omitempty"`
	ContentHistory []json.RawMessage `json:"contentHistory,omitempty"`
}

// MarshalJSON encodes plain text content as a string and structured
// content as an object.
func (m Message) MarshalJSON() ([]byte, error) {
	out := messageJSON{messageAlias: messageAlias(m)}
	content, err := marshalContent(m.Content)
	if err != nil {
		return nil, fmt.Errorf("marshal content: %w", err)
	}
	out.Content = content
	for _, h := range m.ContentHistory {
		raw, err := marshalContent(h)
		if err != nil {
			return nil, fmt.Errorf("marshal content history: %w", err)
		}
		out.ContentHistory = append(out.ContentHistory, raw)
	}
	return json.Marshal(out)
}

func (m *Message) UnmarshalJSON(data []byte) error {
	var in messageJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	*m = Message(in.messageAlias)
	content, err := unmarshalContent(in.Content)
	if err != nil {
		return fmt.Errorf("unmarshal content: %w", err)
	}
	m.Content = content
	m.ContentHistory = nil
	for _, raw := range in.ContentHistory {
		h, err := unmarshalContent(raw)
		if err != nil {
			return fmt.Errorf("unmarshal content history: %w", err)
		}
		m.ContentHistory = append(m.ContentHistory, h)
	}
	return nil
}

type ConnectorType string

const (
	ConnectorModel     ConnectorType = "model"
	ConnectorAssistant ConnectorType = "assistant"
)

// Connector binds a conversation to a completion target.
type Connector struct {
	Type        ConnectorType `json:"type"`
	ModelID     string        `json:"modelId,omitempty"`
	AssistantID string        `json:"assistantId,omitempty"`
	ProviderID  string        `json:"providerIdOrName,omitempty"`
	TargetID    string        `json:"targetId,omitempty"`
}

type AssetType string

const (
	AssetFile AssetType = "file"
	AssetLink AssetType = "link"
)

type Asset struct {
	ID AssetID `json:"id"`
	Record
	Type AssetType `json:"type"`
	File string    `json:"file,omitempty"`
	URL  string    `json:"url,omitempty"`
}

type ContextWindowPolicy string

const (
	PolicyNone    ContextWindowPolicy = "none"
	PolicyRolling ContextWindowPolicy = "rolling"
	PolicyStop    ContextWindowPolicy = "stop"
	PolicyLast    ContextWindowPolicy = "last"
)

// Conversation is the persisted index entry of a chat. Messages are stored
// separately and only attached when loaded.
type Conversation struct {
	ID ConversationID `json:"id"`
	Record
	Name                string              `json:"name,omitempty"`
	Description         string              `json:"description,omitempty"`
	Services            []Connector         `json:"services,omitempty"`
	Assets              []Asset             `json:"assets,omitempty"`
	CurrentPrompt       *ParsedPrompt       `json:"currentPrompt,omitempty"`
	Temp                bool                `json:"temp,omitempty"`
	Preset              PresetID            `json:"preset,omitempty"`
	Model               string              `json:"model,omitempty"`
	Provider            string              `json:"provider,omitempty"`
	Parameters          map[string]any      `json:"parameters,omitempty"`
	ContextWindowPolicy ContextWindowPolicy `json:"contextWindowPolicy,omitempty"`
	KeepSystem          bool                `json:"keepSystem"`
	Usage               *Usage              `json:"usage,omitempty"`
	ImportedFrom        string              `json:"importedFrom,omitempty"`
	Messages            []Message           `json:"-"`
}

// Preset is a named bundle of sampling parameters and system prompt.
type Preset struct {
	ID PresetID `json:"id"`
	Record
	Name                string              `json:"name"`
	Description         string              `json:"description,omitempty"`
	ParentID            PresetID            `json:"parentId,omitempty"`
	Parameters          map[string]any      `json:"parameters,omitempty"`
	System              string              `json:"system,omitempty"`
	ContextWindowPolicy ContextWindowPolicy `json:"contextWindowPolicy,omitempty"`
	KeepSystem          bool                `json:"keepSystem"`
	Readonly            bool                `json:"readonly,omitempty"`
	Disabled            bool                `json:"disabled,omitempty"`
	Models              []string            `json:"models,omitempty"`
	Provider            string              `json:"provider,omitempty"`
}

type ProviderType string

const (
	ProviderOpla   ProviderType = "opla"
	ProviderServer ProviderType = "server"
	ProviderAPI    ProviderType = "api"
	ProviderProxy  ProviderType = "proxy"
)

// Provider describes a completion backend and keeps its recent errors.
type Provider struct {
	ID ProviderID `json:"id"`
	Record
	Name     string       `json:"name"`
	Type     ProviderType `json:"type"`
	URL      string       `json:"url,omitempty"`
	Key      string       `json:"key,omitempty"`
	Disabled bool         `json:"disabled,omitempty"`
	Errors   []string     `json:"errors,omitempty"`
}
