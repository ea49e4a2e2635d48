// internal/state/bolt.go
package state

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/user/opla/internal/types"
)

var (
	bucketConversations = []byte("conversations")
	bucketMessages      = []byte("messages")
	bucketMeta          = []byte("meta")
	keyOrder            = []byte("order")
)

// BoltStore keeps conversations and messages in a single BoltDB file.
// Conversations are stored one per key with a separate order list so the
// index reads back in the order it was written.
type BoltStore struct {
	db *bolt.DB
}

// OpenBoltStore opens or creates the database at path.
func OpenBoltStore(path string) (*BoltStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt db: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{bucketConversations, bucketMessages, bucketMeta} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create buckets: %w", err)
	}
	return &BoltStore{db: db}, nil
}

// Close releases the database file.
func (s *BoltStore) Close() error {
	return s.db.Close()
}

func (s *BoltStore) ReadConversations(_ context.Context) ([]types.Conversation, error) {
	out := []types.Conversation{}
	err := s.db.View(func(tx *bolt.Tx) error {
		var order []string
		if v := tx.Bucket(bucketMeta).Get(keyOrder); len(v) > 0 {
			if err := json.Unmarshal(v, &order); err != nil {
				return fmt.Errorf("unmarshal order: %w", err)
			}
		}
		b := tx.Bucket(bucketConversations)
		for _, id := range order {
			v := b.Get([]byte(id))
			if v == nil {
				continue
			}
			var c types.Conversation
			if err := json.Unmarshal(v, &c); err != nil {
				return fmt.Errorf("unmarshal conversation %s: %w", id, err)
			}
			out = append(out, c)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("read conversations: %w", err)
	}
	return out, nil
}

// WriteConversations replaces the stored index with a snapshot of the
// persistent conversations.
func (s *BoltStore) WriteConversations(_ context.Context, conversations []types.Conversation) error {
	list := persistent(conversations)
	err := s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.DeleteBucket(bucketConversations); err != nil {
			return err
		}
		b, err := tx.CreateBucket(bucketConversations)
		if err != nil {
			return err
		}
		order := make([]string, 0, len(list))
		for _, c := range list {
			enc, err := json.Marshal(c)
			if err != nil {
				return err
			}
			if err := b.Put([]byte(c.ID), enc); err != nil {
				return err
			}
			order = append(order, string(c.ID))
		}
		enc, err := json.Marshal(order)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketMeta).Put(keyOrder, enc)
	})
	if err != nil {
		return fmt.Errorf("write conversations: %w", err)
	}
	return nil
}

func (s *BoltStore) ReadConversationMessages(_ context.Context, id types.ConversationID) ([]types.Message, error) {
	out := []types.Message{}
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketMessages).Get([]byte(id))
		if len(v) == 0 {
			return nil
		}
		return json.Unmarshal(v, &out)
	})
	if err != nil {
		return nil, fmt.Errorf("read messages: %w", err)
	}
	return out, nil
}

func (s *BoltStore) WriteConversationMessages(_ context.Context, id types.ConversationID, messages []types.Message) error {
	if id == "" {
		return fmt.Errorf("write messages: empty conversation id")
	}
	if messages == nil {
		messages = []types.Message{}
	}
	enc, err := json.Marshal(messages)
	if err != nil {
		return fmt.Errorf("marshal messages: %w", err)
	}
	err = s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketMessages).Put([]byte(id), enc)
	})
	if err != nil {
		return fmt.Errorf("write messages: %w", err)
	}
	return nil
}

func (s *BoltStore) DeleteConversationMessages(_ context.Context, id types.ConversationID) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketMessages).Delete([]byte(id))
	})
	if err != nil {
		return fmt.Errorf("delete messages: %w", err)
	}
	return nil
}
