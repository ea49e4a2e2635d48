// internal/state/bolt_test.go
package state

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/user/opla/internal/types"
)

func TestBoltStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db", "opla.bolt")
	store, err := OpenBoltStore(path)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	list, err := store.ReadConversations(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 0 {
		t.Errorf("expected empty index, got %d", len(list))
	}

	a := newConversation("b-name", false)
	b := newConversation("a-name", false)
	tmp := newConversation("scratch", true)
	if err := store.WriteConversations(ctx, []types.Conversation{a, tmp, b}); err != nil {
		t.Fatal(err)
	}
	// A second snapshot drops what is no longer listed.
	if err := store.WriteConversations(ctx, []types.Conversation{a, b}); err != nil {
		t.Fatal(err)
	}

	msgs := []types.Message{textMessage(a.ID, types.RoleUser, "hello")}
	if err := store.WriteConversationMessages(ctx, a.ID, msgs); err != nil {
		t.Fatal(err)
	}
	if err := store.Close(); err != nil {
		t.Fatal(err)
	}

	store, err = OpenBoltStore(path)
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	list, err = store.ReadConversations(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 || list[0].ID != a.ID || list[1].ID != b.ID {
		t.Fatalf("unexpected index after reopen: %+v", list)
	}

	got, err := store.ReadConversationMessages(ctx, a.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || types.TextOf(got[0].Content) != "hello" {
		t.Errorf("unexpected messages: %+v", got)
	}

	if err := store.DeleteConversationMessages(ctx, a.ID); err != nil {
		t.Fatal(err)
	}
	got, err = store.ReadConversationMessages(ctx, a.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Errorf("expected no messages, got %d", len(got))
	}
}
