package messages

import (
	"time"

	"github.com/user/opla/internal/types"
)

// Outcome is how a completion ended.
type Outcome string

const (
	OutcomeCompleted Outcome = "completed"
	OutcomeCancelled Outcome = "cancelled"
	OutcomeFailed    Outcome = "failed"
)

const (
	// MetadataOutcome is the metadata key recording how a message was finalized.
	MetadataOutcome = "outcome"
	// MetadataError keeps the backend error of a failed message.
	MetadataError = "error"

	// ErrorText replaces the content of a message whose completion failed.
	ErrorText = "Sorry, something went wrong processing your message."
	// CancelledText is used when a completion is cancelled before any content arrived.
	CancelledText = "Cancelled."
)

// NewUserMessage builds the message sent for prompt. The display text is
// kept as content and the raw input as its unprocessed form.
func NewUserMessage(conversationID types.ConversationID, prompt types.ParsedPrompt, now time.Time) types.Message {
	return types.Message{
		ID:             types.NewMessageID(),
		Record:         types.NewRecord(now),
		ConversationID: conversationID,
		Author:         types.Author{Role: types.RoleUser, Name: "you"},
		Content:        types.NewTextContent(prompt.Text, prompt.Raw),
		Status:         types.StatusDelivered,
	}
}

// NewAssistantMessage builds an empty pending response authored by name.
func NewAssistantMessage(conversationID types.ConversationID, name string, now time.Time) types.Message {
	return types.Message{
		ID:             types.NewMessageID(),
		Record:         types.NewRecord(now),
		ConversationID: conversationID,
		Author:         types.Author{Role: types.RoleAssistant, Name: name},
		Content:        types.NewTextContent("", ""),
		Status:         types.StatusPending,
	}
}

// Link makes user and assistant point at each other.
func Link(user, assistant types.Message) (types.Message, types.Message) {
	user.Sibling = assistant.ID
	assistant.Sibling = user.ID
	return user, assistant
}

// AppendStream adds a streamed chunk to msg and marks it as streaming.
func AppendStream(msg types.Message, chunk string, now time.Time) types.Message {
	out := msg
	text := types.TextOf(msg.Content) + chunk
	out.Content = types.NewTextContent(text, "")
	out.Status = types.StatusStream
	out.Touch(now)
	return out
}

// Finalize ends a completion. Completed and cancelled messages are
// delivered with non-empty content; failed ones carry ErrorText and the
// error status. cause is only used for failed messages.
func Finalize(msg types.Message, outcome Outcome, usage *types.Usage, cause error, now time.Time) types.Message {
	out := msg
	md := types.CloneMetadata(msg.Metadata)
	if md == nil {
		md = make(map[string]string, 2)
	}
	md[MetadataOutcome] = string(outcome)

	switch outcome {
	case OutcomeCompleted, OutcomeCancelled:
		text := types.TextOf(msg.Content)
		if text == "" && outcome == OutcomeCancelled {
			text = CancelledText
		}
		out.Content = types.NewTextContent(text, "")
		out.Status = types.StatusDelivered
		delete(md, MetadataError)
	case OutcomeFailed:
		out.Content = types.NewTextContent(ErrorText, "")
		out.Status = types.StatusError
		if cause != nil {
			md[MetadataError] = cause.Error()
		}
	}
	if usage != nil {
		u := *usage
		out.Usage = &u
	}
	out.Metadata = md
	out.Touch(now)
	return out
}

// IsFinal reports whether msg no longer receives streamed content.
func IsFinal(msg types.Message) bool {
	return msg.Status == types.StatusDelivered || msg.Status == types.StatusError
}
