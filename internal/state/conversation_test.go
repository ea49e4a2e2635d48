// internal/state/conversation_test.go
package state

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/user/opla/internal/types"
)

func newConversation(name string, temp bool) types.Conversation {
	return types.Conversation{
		ID:     types.NewConversationID(),
		Record: types.NewRecord(time.Now()),
		Name:   name,
		Temp:   temp,
	}
}

func TestConversationStoreMissingFile(t *testing.T) {
	store := NewConversationStore(t.TempDir())

	list, err := store.ReadConversations(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if list == nil || len(list) != 0 {
		t.Errorf("expected empty non-nil list, got %v", list)
	}
}

func TestConversationStoreRoundTrip(t *testing.T) {
	dir := t.TempDir()
	store := NewConversationStore(dir)
	ctx := context.Background()

	a := newConversation("first", false)
	a.Messages = []types.Message{{ID: types.NewMessageID()}}
	b := newConversation("scratch", true)
	c := newConversation("second", false)

	if err := store.WriteConversations(ctx, []types.Conversation{a, b, c}); err != nil {
		t.Fatal(err)
	}

	list, err := store.ReadConversations(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 {
		t.Fatalf("expected 2 conversations, got %d", len(list))
	}
	if list[0].ID != a.ID || list[1].ID != c.ID {
		t.Errorf("unexpected order: %s, %s", list[0].Name, list[1].Name)
	}
	if list[0].Messages != nil {
		t.Error("messages must not be stored in the index")
	}

	if _, err := os.Stat(filepath.Join(dir, "conversations.json.tmp")); !os.IsNotExist(err) {
		t.Error("temp file left behind")
	}
}

func TestConversationStoreCorruptIndex(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "conversations.json"), []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := NewConversationStore(dir).ReadConversations(context.Background()); err == nil {
		t.Error("expected error for corrupt index")
	}
}
