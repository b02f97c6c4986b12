package store

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/cockroachdb/pebble"

	"github.com/MomenMushtaha/MessageAI-sub000/pkg/models"
)

// PutConversation upserts conversation metadata.
func (s *Store) PutConversation(c models.Conversation) error {
	if c.ID == "" {
		return fmt.Errorf("store: conversation id required")
	}
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("store: marshal conversation: %w", err)
	}
	return s.db.Set(convMetaKey(c.ID), data, pebble.Sync)
}

// GetConversation returns conversation metadata by id.
func (s *Store) GetConversation(convID string) (models.Conversation, error) {
	v, closer, err := s.db.Get(convMetaKey(convID))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return models.Conversation{}, ErrNotFound
		}
		return models.Conversation{}, err
	}
	defer closer.Close()
	var c models.Conversation
	if err := json.Unmarshal(v, &c); err != nil {
		return models.Conversation{}, fmt.Errorf("store: corrupt conversation row %s: %w", convID, err)
	}
	return c, nil
}

// GetConversations returns every conversation the user participates in,
// most recent activity first.
func (s *Store) GetConversations(userID string) ([]models.Conversation, error) {
	prefix := []byte("convmeta:")
	iter, err := s.db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return nil, err
	}
	defer iter.Close()
	var out []models.Conversation
	for iter.SeekGE(prefix); iter.Valid(); iter.Next() {
		if !bytes.HasPrefix(iter.Key(), prefix) {
			break
		}
		var c models.Conversation
		if err := json.Unmarshal(iter.Value(), &c); err != nil {
			return nil, fmt.Errorf("store: corrupt conversation row %s: %w", iter.Key(), err)
		}
		if userID == "" || c.HasParticipant(userID) {
			out = append(out, c)
		}
	}
	if err := iter.Error(); err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool {
		ti, tj := out[i].LastMessageAt, out[j].LastMessageAt
		switch {
		case ti == nil && tj == nil:
			return out[i].ID < out[j].ID
		case ti == nil:
			return false
		case tj == nil:
			return true
		case !ti.Equal(*tj):
			return ti.After(*tj)
		default:
			return out[i].ID < out[j].ID
		}
	})
	return out, nil
}

// DeleteConversation removes a conversation's metadata and all of its
// message rows.
func (s *Store) DeleteConversation(convID string) error {
	if _, err := s.DeleteMessages(convID); err != nil {
		return err
	}
	return s.db.Delete(convMetaKey(convID), pebble.Sync)
}
