package remote

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/MomenMushtaha/MessageAI-sub000/pkg/models"
)

// MemoryFeed is an in-process Feed used by the daemon's loopback mode
// and by tests. It keeps authoritative state in memory, emits capped
// snapshots on every change, and can inject failures to exercise the
// retry path.
type MemoryFeed struct {
	mu        sync.Mutex
	window    int
	convs     map[string]models.Conversation
	msgs      map[string][]models.Message
	subs      map[string][]*memSub
	listSubs  map[string][]*memListSub
	failCount int
	failErr   error
}

// NewMemoryFeed returns a feed emitting snapshots capped to window
// messages (the most recent ones).
func NewMemoryFeed(window int) *MemoryFeed {
	if window <= 0 {
		window = 100
	}
	return &MemoryFeed{
		window:   window,
		convs:    make(map[string]models.Conversation),
		msgs:     make(map[string][]models.Message),
		subs:     make(map[string][]*memSub),
		listSubs: make(map[string][]*memListSub),
	}
}

// FailNext makes the next n writes fail with err.
func (f *MemoryFeed) FailNext(n int, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failCount = n
	f.failErr = err
}

func (f *MemoryFeed) takeFailureLocked() error {
	if f.failCount > 0 {
		f.failCount--
		return f.failErr
	}
	return nil
}

type memSub struct {
	feed   *MemoryFeed
	convID string
	ch     chan Snapshot
	once   sync.Once
}

func (s *memSub) Snapshots() <-chan Snapshot { return s.ch }

func (s *memSub) Cancel() {
	s.once.Do(func() {
		s.feed.mu.Lock()
		subs := s.feed.subs[s.convID]
		for i, cur := range subs {
			if cur == s {
				s.feed.subs[s.convID] = append(subs[:i], subs[i+1:]...)
				break
			}
		}
		s.feed.mu.Unlock()
		close(s.ch)
	})
}

type memListSub struct {
	feed   *MemoryFeed
	userID string
	ch     chan []models.Conversation
	once   sync.Once
}

func (s *memListSub) Conversations() <-chan []models.Conversation { return s.ch }

func (s *memListSub) Cancel() {
	s.once.Do(func() {
		s.feed.mu.Lock()
		subs := s.feed.listSubs[s.userID]
		for i, cur := range subs {
			if cur == s {
				s.feed.listSubs[s.userID] = append(subs[:i], subs[i+1:]...)
				break
			}
		}
		s.feed.mu.Unlock()
		close(s.ch)
	})
}

// Subscribe opens a snapshot stream and immediately emits the current
// state.
func (f *MemoryFeed) Subscribe(convID string) (Subscription, error) {
	s := &memSub{feed: f, convID: convID, ch: make(chan Snapshot, 1)}
	f.mu.Lock()
	f.subs[convID] = append(f.subs[convID], s)
	snap := f.snapshotLocked(convID)
	f.mu.Unlock()
	s.ch <- snap
	return s, nil
}

// SubscribeConversationList opens a conversation summary stream and
// immediately emits the current list.
func (f *MemoryFeed) SubscribeConversationList(userID string) (ListSubscription, error) {
	s := &memListSub{feed: f, userID: userID, ch: make(chan []models.Conversation, 1)}
	f.mu.Lock()
	f.listSubs[userID] = append(f.listSubs[userID], s)
	list := f.listLocked(userID)
	f.mu.Unlock()
	s.ch <- list
	return s, nil
}

func (f *MemoryFeed) snapshotLocked(convID string) Snapshot {
	all := f.msgs[convID]
	start := 0
	if len(all) > f.window {
		start = len(all) - f.window
	}
	out := make([]models.Message, len(all)-start)
	for i, m := range all[start:] {
		out[i] = m.Clone()
	}
	return Snapshot{ConversationID: convID, Messages: out}
}

func (f *MemoryFeed) listLocked(userID string) []models.Conversation {
	var out []models.Conversation
	for _, c := range f.convs {
		if c.HasParticipant(userID) {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// emitLocked pushes the latest snapshot to every subscriber. Channels
// hold one slot; a stale unconsumed snapshot is replaced, never queued,
// so slow consumers always observe the newest state next.
func (f *MemoryFeed) emitLocked(convID string) {
	snap := f.snapshotLocked(convID)
	for _, s := range f.subs[convID] {
		select {
		case s.ch <- snap:
		default:
			select {
			case <-s.ch:
			default:
			}
			s.ch <- snap
		}
	}
}

func (f *MemoryFeed) emitListLocked(c models.Conversation) {
	for _, uid := range c.ParticipantIDs {
		list := f.listLocked(uid)
		for _, s := range f.listSubs[uid] {
			select {
			case s.ch <- list:
			default:
				select {
				case <-s.ch:
				default:
				}
				s.ch <- list
			}
		}
	}
}

func sortMessages(ms []models.Message) {
	sort.Slice(ms, func(i, j int) bool {
		if !ms[i].CreatedAt.Equal(ms[j].CreatedAt) {
			return ms[i].CreatedAt.Before(ms[j].CreatedAt)
		}
		return ms[i].ID < ms[j].ID
	})
}

// WriteMessageAndSummary appends the message and updates the summary in
// one step. The stored copy keeps the client timestamp and flips to
// sent/synced, which later snapshots carry back as confirmation.
func (f *MemoryFeed) WriteMessageAndSummary(ctx context.Context, msg models.Message, c models.Conversation) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrTransient, err)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.takeFailureLocked(); err != nil {
		return err
	}
	stored := msg.Clone()
	stored.Status = models.StatusSent
	stored.Synced = true
	replaced := false
	rows := f.msgs[msg.ConversationID]
	for i := range rows {
		if rows[i].ID == msg.ID {
			rows[i] = stored
			replaced = true
			break
		}
	}
	if !replaced {
		rows = append(rows, stored)
	}
	sortMessages(rows)
	f.msgs[msg.ConversationID] = rows

	c.LastMessageText = stored.Text
	at := stored.CreatedAt
	c.LastMessageAt = &at
	f.convs[c.ID] = c

	f.emitLocked(msg.ConversationID)
	f.emitListLocked(c)
	return nil
}

// UpdateMessage overwrites an existing remote message.
func (f *MemoryFeed) UpdateMessage(ctx context.Context, convID string, msg models.Message) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrTransient, err)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.takeFailureLocked(); err != nil {
		return err
	}
	rows := f.msgs[convID]
	for i := range rows {
		if rows[i].ID == msg.ID {
			rows[i] = msg.Clone()
			f.emitLocked(convID)
			return nil
		}
	}
	return fmt.Errorf("%w: message %s not found", ErrPermanent, msg.ID)
}

// BatchUpdateStatus applies fn to every message it selects and emits a
// single snapshot if anything changed.
func (f *MemoryFeed) BatchUpdateStatus(ctx context.Context, convID string, fn func(*models.Message) bool) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrTransient, err)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.takeFailureLocked(); err != nil {
		return err
	}
	rows := f.msgs[convID]
	changed := false
	for i := range rows {
		if fn(&rows[i]) {
			changed = true
		}
	}
	if changed {
		f.emitLocked(convID)
	}
	return nil
}

// EnsureConversation creates the conversation if absent.
func (f *MemoryFeed) EnsureConversation(ctx context.Context, c models.Conversation) (models.Conversation, error) {
	if err := ctx.Err(); err != nil {
		return models.Conversation{}, fmt.Errorf("%w: %v", ErrTransient, err)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.takeFailureLocked(); err != nil {
		return models.Conversation{}, err
	}
	if existing, ok := f.convs[c.ID]; ok {
		return existing, nil
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}
	f.convs[c.ID] = c
	f.emitListLocked(c)
	return c, nil
}

// FetchBefore pages history older than the live window.
func (f *MemoryFeed) FetchBefore(ctx context.Context, convID string, before time.Time, limit int) ([]models.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransient, err)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var older []models.Message
	for _, m := range f.msgs[convID] {
		if m.CreatedAt.Before(before) {
			older = append(older, m.Clone())
		}
	}
	if limit > 0 && len(older) > limit {
		older = older[len(older)-limit:]
	}
	return older, nil
}
