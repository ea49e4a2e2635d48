// internal/state/message_test.go
package state

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/user/opla/internal/types"
)

func textMessage(conv types.ConversationID, role types.Role, text string) types.Message {
	return types.Message{
		ID:             types.NewMessageID(),
		Record:         types.NewRecord(time.Now()),
		ConversationID: conv,
		Author:         types.Author{Role: role, Name: string(role)},
		Content:        types.PlainText(text),
		Status:         types.StatusDelivered,
	}
}

func TestMessageStore(t *testing.T) {
	store := NewMessageStore(t.TempDir())
	ctx := context.Background()
	id := types.NewConversationID()

	msgs, err := store.ReadConversationMessages(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 0 {
		t.Errorf("expected no messages, got %d", len(msgs))
	}

	want := []types.Message{
		textMessage(id, types.RoleUser, "hello"),
		textMessage(id, types.RoleAssistant, "hi there"),
	}
	if err := store.WriteConversationMessages(ctx, id, want); err != nil {
		t.Fatal(err)
	}

	got, err := store.ReadConversationMessages(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(got))
	}
	if types.TextOf(got[1].Content) != "hi there" {
		t.Errorf("unexpected content %q", types.TextOf(got[1].Content))
	}

	if err := store.DeleteConversationMessages(ctx, id); err != nil {
		t.Fatal(err)
	}
	got, err = store.ReadConversationMessages(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Errorf("expected messages to be deleted, got %d", len(got))
	}
}

func TestMessageStoreRejectsPathIDs(t *testing.T) {
	store := NewMessageStore(t.TempDir())
	ctx := context.Background()

	for _, id := range []types.ConversationID{"", "..", "../x", `a\b`} {
		if err := store.WriteConversationMessages(ctx, id, nil); err == nil {
			t.Errorf("expected error for id %q", id)
		}
	}
}

func TestMessageStoreConcurrentWrites(t *testing.T) {
	store := NewMessageStore(t.TempDir())
	ctx := context.Background()
	id := types.NewConversationID()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			msgs := []types.Message{textMessage(id, types.RoleUser, "x")}
			if err := store.WriteConversationMessages(ctx, id, msgs); err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()

	got, err := store.ReadConversationMessages(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 {
		t.Errorf("expected 1 message, got %d", len(got))
	}
}
