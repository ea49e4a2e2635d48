package messages

import (
	"errors"
	"fmt"
	"time"

	"github.com/user/opla/internal/types"
)

// ErrHistoryIndex is returned by HistoryAt for an index past the history.
var ErrHistoryIndex = errors.New("content history index out of range")

// ChangeContent replaces the content of msg. The previous content is
// appended to ContentHistory when it is non-empty, differs from the new
// content and msg is not in error. An empty status keeps the current one.
func ChangeContent(msg types.Message, text, raw string, status types.MessageStatus, now time.Time) types.Message {
	out := msg
	next := types.NewTextContent(text, raw)

	if msg.Content != nil &&
		!types.IsEmptyContent(msg.Content) &&
		!types.EqualContent(msg.Content, next) &&
		msg.Status != types.StatusError {
		history := make([]types.Content, 0, len(msg.ContentHistory)+1)
		history = append(history, msg.ContentHistory...)
		out.ContentHistory = append(history, types.CloneContent(msg.Content))
	}

	out.Content = next
	if status != "" {
		out.Status = status
	}
	out.Touch(now)
	return out
}

// HistoryAt returns a version of the content of msg. Index 0 is the current
// content and index n the n-th entry counting from the end of the history.
func HistoryAt(msg types.Message, index int, raw bool) (string, error) {
	render := types.TextOf
	if raw {
		render = types.RawOf
	}
	if index == 0 {
		return render(msg.Content), nil
	}
	if index < 0 || index > len(msg.ContentHistory) {
		return "", fmt.Errorf("%w: %d of %d", ErrHistoryIndex, index, len(msg.ContentHistory))
	}
	return render(msg.ContentHistory[len(msg.ContentHistory)-index]), nil
}

// Versions returns the number of versions of msg, current one included.
func Versions(msg types.Message) int {
	return len(msg.ContentHistory) + 1
}
