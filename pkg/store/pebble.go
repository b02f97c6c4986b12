package store

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/cockroachdb/pebble"

	"github.com/MomenMushtaha/MessageAI-sub000/pkg/logger"
	"github.com/MomenMushtaha/MessageAI-sub000/pkg/models"
)

// ErrNotFound is returned when operating on an id absent from the store.
var ErrNotFound = errors.New("store: not found")

// Store is the durable local replica. It is pure storage: no network
// awareness. Key layout:
//
//	conv:<convID>:msg:<unix_nano_padded>-<msgID>  message row (ordered)
//	msgid:<msgID>                                 locator -> row key
//	pending:<msgID>                               unconfirmed-send index
//	convmeta:<convID>                             conversation metadata
//
// Rows sort by creation time with the message id as tiebreak, so
// iteration order is deterministic.
type Store struct {
	db *pebble.DB

	// mu serializes read-modify-write cycles on rows so racing mutators
	// (merge, status marks, edits) cannot lose updates.
	mu sync.Mutex
}

// Open opens (or creates) a pebble database at path.
func Open(path string) (*Store, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		logger.Error("store_open_failed", "path", path, "error", err)
		return nil, err
	}
	logger.Info("store_opened", "path", path)
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func msgKey(convID string, ts time.Time, msgID string) []byte {
	return []byte(fmt.Sprintf("conv:%s:msg:%020d-%s", convID, ts.UTC().UnixNano(), msgID))
}

func locatorKey(msgID string) []byte { return []byte("msgid:" + msgID) }
func pendingKey(msgID string) []byte { return []byte("pending:" + msgID) }
func convMetaKey(convID string) []byte { return []byte("convmeta:" + convID) }

// Put upserts a message keyed by its id, overwriting all mutable fields.
// Replaying the same snapshot is a no-op in effect. If the authoritative
// timestamp moved since the optimistic insert, the row is relocated so
// ordering stays by created-at; the delete and rewrite happen in one
// batch.
func (s *Store) Put(m models.Message) error {
	if m.ID == "" || m.ConversationID == "" {
		return fmt.Errorf("store: message id and conversation id required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.putLocked(m)
}

func (s *Store) putLocked(m models.Message) error {
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("store: marshal message: %w", err)
	}
	key := msgKey(m.ConversationID, m.CreatedAt, m.ID)

	b := s.db.NewBatch()
	defer b.Close()

	if old, cerr := s.getLocatorLocked(m.ID); cerr == nil && !bytes.Equal(old, key) {
		if err := b.Delete(old, nil); err != nil {
			return err
		}
	}
	if err := b.Set(key, data, nil); err != nil {
		return err
	}
	if err := b.Set(locatorKey(m.ID), key, nil); err != nil {
		return err
	}
	if m.Pending() || !m.Synced {
		if err := b.Set(pendingKey(m.ID), key, nil); err != nil {
			return err
		}
	} else {
		if err := b.Delete(pendingKey(m.ID), nil); err != nil {
			return err
		}
	}
	if err := b.Commit(pebble.Sync); err != nil {
		logger.Error("store_put_failed", "msg", m.ID, "error", err)
		return err
	}
	return nil
}

func (s *Store) getLocatorLocked(msgID string) ([]byte, error) {
	v, closer, err := s.db.Get(locatorKey(msgID))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	key := append([]byte(nil), v...)
	closer.Close()
	return key, nil
}

func (s *Store) getByLocatorLocked(msgID string) (models.Message, []byte, error) {
	key, err := s.getLocatorLocked(msgID)
	if err != nil {
		return models.Message{}, nil, err
	}
	v, closer, err := s.db.Get(key)
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return models.Message{}, nil, ErrNotFound
		}
		return models.Message{}, nil, err
	}
	defer closer.Close()
	var m models.Message
	if err := json.Unmarshal(v, &m); err != nil {
		return models.Message{}, nil, fmt.Errorf("store: corrupt message row %s: %w", msgID, err)
	}
	return m, key, nil
}

// Get returns the message with the given id.
func (s *Store) Get(msgID string) (models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, _, err := s.getByLocatorLocked(msgID)
	return m, err
}

// UpdateStatus transitions a message's delivery state and synced flag.
// Regressions on the monotonic ladder are ignored so a stale update can
// never downgrade a row; moves into error always apply.
func (s *Store) UpdateStatus(msgID string, status models.Status, synced bool) error {
	return s.UpdateMessage(msgID, func(m *models.Message) error {
		if !m.Status.CanTransition(status) {
			logger.Debug("store_status_regression_ignored", "msg", msgID, "from", m.Status, "to", status)
			return nil
		}
		m.Status = status
		m.Synced = synced
		return nil
	})
}

/// UpdateMessage applies fn to the stored message under the store lock: a
// read-modify-write, never a blind write, so racing mutations of the same
// row cannot lose updates.
func (s *Store) UpdateMessage(msgID string, fn func(*models.Message) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, _, err := s.getByLocatorLocked(msgID)
	if err != nil {
		return err
	}
	if err := fn(&m); err != nil {
		return err
	}
	return s.putLocked(m)
}

// GetAll returns every message in a conversation ordered by creation time
// ascending, ties broken by id.
func (s *Store) GetAll(convID string) ([]models.Message, error) {
	prefix := []byte("conv:" + convID + ":msg:")
	iter, err := s.db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return nil, err
	}
	defer iter.Close()
	var out []models.Message
	for iter.SeekGE(prefix); iter.Valid(); iter.Next() {
		if !bytes.HasPrefix(iter.Key(), prefix) {
			break
		}
		var m models.Message
		if err := json.Unmarshal(iter.Value(), &m); err != nil {
			return nil, fmt.Errorf("store: corrupt row %s: %w", iter.Key(), err)
		}
		out = append(out, m)
	}
	return out, iter.Error()
}

// GetPending returns every message awaiting remote confirmation, oldest
// first.
func (s *Store) GetPending() ([]models.Message, error) {
	prefix := []byte("pending:")
	iter, err := s.db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return nil, err
	}
	defer iter.Close()
	var keys [][]byte
	for iter.SeekGE(prefix); iter.Valid(); iter.Next() {
		if !bytes.HasPrefix(iter.Key(), prefix) {
			break
		}
		keys = append(keys, append([]byte(nil), iter.Value()...))
	}
	if err := iter.Error(); err != nil {
		return nil, err
	}
	var out []models.Message
	for _, k := range keys {
		v, closer, err := s.db.Get(k)
		if err != nil {
			if errors.Is(err, pebble.ErrNotFound) {
				continue // dangling index entry
			}
			return nil, err
		}
		var m models.Message
		uerr := json.Unmarshal(v, &m)
		closer.Close()
		if uerr != nil {
			return nil, uerr
		}
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// DeleteMessage removes a message row and its indexes.
func (s *Store) DeleteMessage(msgID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key, err := s.getLocatorLocked(msgID)
	if err != nil {
		return err
	}
	b := s.db.NewBatch()
	defer b.Close()
	_ = b.Delete(key, nil)
	_ = b.Delete(locatorKey(msgID), nil)
	_ = b.Delete(pendingKey(msgID), nil)
	return b.Commit(pebble.Sync)
}

// DeleteMessages removes all message rows for a conversation.
func (s *Store) DeleteMessages(convID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	prefix := []byte("conv:" + convID + ":msg:")
	iter, err := s.db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return 0, err
	}
	b := s.db.NewBatch()
	defer b.Close()
	n := 0
	for iter.SeekGE(prefix); iter.Valid(); iter.Next() {
		if !bytes.HasPrefix(iter.Key(), prefix) {
			break
		}
		var m models.Message
		if json.Unmarshal(iter.Value(), &m) == nil {
			_ = b.Delete(locatorKey(m.ID), nil)
			_ = b.Delete(pendingKey(m.ID), nil)
		}
		_ = b.Delete(append([]byte(nil), iter.Key()...), nil)
		n++
	}
	ierr := iter.Error()
	iter.Close()
	if ierr != nil {
		return 0, ierr
	}
	if err := b.Commit(pebble.Sync); err != nil {
		return 0, err
	}
	return n, nil
}

// PruneOlderThan deletes synced messages older than the given age.
// Pending rows are never pruned: an unconfirmed user message survives
// until confirmed or explicitly discarded. Returns the number of rows
// removed.
func (s *Store) PruneOlderThan(age time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := time.Now().Add(-age)
	prefix := []byte("conv:")
	iter, err := s.db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return 0, err
	}
	b := s.db.NewBatch()
	defer b.Close()
	n := 0
	for iter.SeekGE(prefix); iter.Valid(); iter.Next() {
		if !bytes.HasPrefix(iter.Key(), prefix) {
			break
		}
		if !bytes.Contains(iter.Key(), []byte(":msg:")) {
			continue
		}
		var m models.Message
		if json.Unmarshal(iter.Value(), &m) != nil {
			continue
		}
		if m.Pending() || !m.CreatedAt.Before(cutoff) {
			continue
		}
		_ = b.Delete(append([]byte(nil), iter.Key()...), nil)
		_ = b.Delete(locatorKey(m.ID), nil)
		_ = b.Delete(pendingKey(m.ID), nil)
		n++
	}
	ierr := iter.Error()
	iter.Close()
	if ierr != nil {
		return 0, ierr
	}
	if n == 0 {
		return 0, nil
	}
	if err := b.Commit(pebble.Sync); err != nil {
		return 0, err
	}
	logger.Info("store_pruned", "rows", n, "cutoff", cutoff)
	return n, nil
}
