// Package chat is the synchronization core: it coordinates the local
// store, the remote feed, the merge engine and the send pipeline into
// per-conversation message views.
package chat

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MomenMushtaha/MessageAI-sub000/pkg/logger"
	"github.com/MomenMushtaha/MessageAI-sub000/pkg/merge"
	"github.com/MomenMushtaha/MessageAI-sub000/pkg/models"
	"github.com/MomenMushtaha/MessageAI-sub000/pkg/notify"
	"github.com/MomenMushtaha/MessageAI-sub000/pkg/ratelimit"
	"github.com/MomenMushtaha/MessageAI-sub000/pkg/remote"
	"github.com/MomenMushtaha/MessageAI-sub000/pkg/store"
	"github.com/MomenMushtaha/MessageAI-sub000/pkg/telemetry"
)

// Options configures a Service. Zero fields fall back to the listed
// defaults.
type Options struct {
	UserID string

	MessageDebounce time.Duration // default 100ms
	ListDebounce    time.Duration // default 50ms
	SendTimeout     time.Duration // default 30s
	SendAttempts    int           // default 5
	MaxTextLen      int           // default 4096, counted in runes
	EditWindow      time.Duration // default 15m
}

func (o *Options) normalize() {
	if o.MessageDebounce <= 0 {
		o.MessageDebounce = 100 * time.Millisecond
	}
	if o.ListDebounce <= 0 {
		o.ListDebounce = 50 * time.Millisecond
	}
	if o.SendTimeout <= 0 {
		o.SendTimeout = 30 * time.Second
	}
	if o.SendAttempts <= 0 {
		o.SendAttempts = 5
	}
	if o.MaxTextLen <= 0 {
		o.MaxTextLen = 4096
	}
	if o.EditWindow <= 0 {
		o.EditWindow = 15 * time.Minute
	}
}

// Service owns one remote subscription per open conversation plus one
// for the user's conversation list, and sequences every mutation of a
// conversation through that conversation's lock.
type Service struct {
	opts     Options
	store    *store.Store
	feed     remote.Feed
	limiter  *ratelimit.Limiter
	notifier notify.Notifier

	mu    sync.Mutex
	convs map[string]*convState
	focus string

	listSub  remote.ListSubscription
	listCoal *merge.Coalescer[[]models.Conversation]
	listOut  chan []models.Conversation
}

// convState holds one open conversation. All view mutations take mu,
// the per-conversation single-writer lock; separate conversations
// proceed in parallel.
type convState struct {
	id   string
	sub  remote.Subscription
	coal *merge.Coalescer[remote.Snapshot]

	mu     sync.Mutex
	view   []models.Message
	older  map[string]models.Message // paged history below the live window
	out    chan []models.Message
	closed bool
}

// New constructs a Service over its collaborators. The limiter and
// notifier may not be nil; pass notify.Nop for silence.
func New(opts Options, st *store.Store, feed remote.Feed, limiter *ratelimit.Limiter, notifier notify.Notifier) *Service {
	opts.normalize()
	return &Service{
		opts:     opts,
		store:    st,
		feed:     feed,
		limiter:  limiter,
		notifier: notifier,
		convs:    make(map[string]*convState),
	}
}

// SetFocus marks the conversation currently in the foreground. Inbound
// messages for the focused conversation do not notify.
func (s *Service) SetFocus(convID string) {
	s.mu.Lock()
	s.focus = convID
	s.mu.Unlock()
}

// Subscribe opens a conversation: hydrate the view from the local store
// first (no network wait), then attach to the remote feed. Calling it
// again for an open conversation returns the existing stream. The
// returned slice is the hydrated view; the channel delivers each merged
// view thereafter, latest-wins when the consumer lags.
func (s *Service) Subscribe(convID string) ([]models.Message, <-chan []models.Message, error) {
	s.mu.Lock()
	if cs, ok := s.convs[convID]; ok {
		s.mu.Unlock()
		cs.mu.Lock()
		view := cloneView(cs.view)
		cs.mu.Unlock()
		return view, cs.out, nil
	}
	s.mu.Unlock()

	local, err := s.store.GetAll(convID)
	if err != nil {
		return nil, nil, err
	}
	cs := &convState{
		id:    convID,
		view:  local,
		older: make(map[string]models.Message),
		out:   make(chan []models.Message, 1),
	}
	cs.coal = merge.NewCoalescer(s.opts.MessageDebounce, func(snap remote.Snapshot) {
		s.applySnapshot(cs, snap)
	})

	sub, err := s.feed.Subscribe(convID)
	if err != nil {
		cs.coal.Stop()
		return nil, nil, fmt.Errorf("%w: subscribe %s: %v", ErrRemoteWrite, convID, err)
	}
	cs.sub = sub

	s.mu.Lock()
	if existing, ok := s.convs[convID]; ok {
		// Lost the race to another subscriber.
		s.mu.Unlock()
		cs.coal.Stop()
		sub.Cancel()
		existing.mu.Lock()
		view := cloneView(existing.view)
		existing.mu.Unlock()
		return view, existing.out, nil
	}
	s.convs[convID] = cs
	s.mu.Unlock()

	go func() {
		for snap := range sub.Snapshots() {
			telemetry.SnapshotsTotal.Inc()
			cs.coal.Offer(snap)
		}
	}()
	logger.Info("conversation_subscribed", "conversation", convID, "hydrated", len(local))
	return cloneView(local), cs.out, nil
}

// Unsubscribe detaches the remote listener and cancels pending debounce
// timers. In-flight sends are not cancelled; their status updates still
// land in the local store. Local rows are retained.
func (s *Service) Unsubscribe(convID string) {
	s.mu.Lock()
	cs, ok := s.convs[convID]
	if ok {
		delete(s.convs, convID)
	}
	s.mu.Unlock()
	if !ok {
		return
	}
	cs.coal.Stop()
	cs.sub.Cancel()
	// A coalescer flush that raced past Stop may still be inside
	// applySnapshot; it holds cs.mu, so closing under the same lock and
	// checking closed in publishLocked keeps the channel safe.
	cs.mu.Lock()
	cs.closed = true
	close(cs.out)
	cs.mu.Unlock()
	logger.Info("conversation_unsubscribed", "conversation", convID)
}

// applySnapshot runs one merge pass under the conversation lock:
// persist the authoritative rows, reconcile with pending sends, and
// publish only if something changed.
func (s *Service) applySnapshot(cs *convState, snap remote.Snapshot) {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	for _, m := range snap.Messages {
		if err := s.store.Put(m); err != nil {
			logger.Warn("snapshot_persist_failed", "conversation", cs.id, "msg", m.ID, "error", err)
		}
	}
	pending, err := s.store.GetPending()
	if err != nil {
		logger.Warn("pending_load_failed", "conversation", cs.id, "error", err)
	}
	var convPending []models.Message
	for _, m := range pending {
		if m.ConversationID == cs.id {
			convPending = append(convPending, m)
		}
	}

	next, changes := merge.Merge(cs.view, snap.Messages, convPending)
	telemetry.MergesTotal.Inc()
	if !changes.Dirty() {
		telemetry.MergesSuppressedTotal.Inc()
		return
	}
	prevIDs := make(map[string]struct{}, len(cs.view))
	for _, m := range cs.view {
		prevIDs[m.ID] = struct{}{}
	}
	cs.view = next
	s.notifyInbound(cs, changes.NewIDs, prevIDs)
	cs.publishLocked()
}

// notifyInbound fires the notifier for new messages not authored by the
// local user while the conversation is not in foreground focus.
func (s *Service) notifyInbound(cs *convState, newIDs []string, prevIDs map[string]struct{}) {
	s.mu.Lock()
	focused := s.focus == cs.id
	s.mu.Unlock()
	if focused {
		return
	}
	isGroup := false
	if conv, err := s.store.GetConversation(cs.id); err == nil {
		isGroup = conv.Type == models.ConversationGroup
	}
	for _, id := range newIDs {
		if _, seen := prevIDs[id]; seen {
			continue
		}
		for i := range cs.view {
			m := &cs.view[i]
			if m.ID != id || m.SenderID == s.opts.UserID || m.DeletedForEveryone {
				continue
			}
			s.notifier.Notify(cs.id, m.SenderID, m.SenderID, m.Text, isGroup)
		}
	}
}

// publishLocked emits the composed view, replacing a stale unconsumed
// one so a slow consumer always sees the newest state next.
func (cs *convState) publishLocked() {
	if cs.closed {
		return
	}
	view := cs.composeLocked()
	select {
	case cs.out <- view:
	default:
		select {
		case <-cs.out:
		default:
		}
		cs.out <- view
	}
}

// composeLocked prepends paged-in history to the live view. Paged rows
// superseded by a live entry of the same id are dropped.
func (cs *convState) composeLocked() []models.Message {
	if len(cs.older) == 0 {
		return cloneView(cs.view)
	}
	live := make(map[string]struct{}, len(cs.view))
	for _, m := range cs.view {
		live[m.ID] = struct{}{}
	}
	out := make([]models.Message, 0, len(cs.older)+len(cs.view))
	for id, m := range cs.older {
		if _, ok := live[id]; !ok {
			out = append(out, m)
		}
	}
	out = append(out, cs.view...)
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func cloneView(view []models.Message) []models.Message {
	out := make([]models.Message, len(view))
	copy(out, view)
	return out
}

// mutateView applies fn to an open conversation's view under its lock
// and republishes. A closed conversation is a no-op; the local store
// already holds the durable state.
func (s *Service) mutateView(convID string, fn func(view []models.Message) []models.Message) {
	s.mu.Lock()
	cs, ok := s.convs[convID]
	s.mu.Unlock()
	if !ok {
		return
	}
	cs.mu.Lock()
	cs.view = fn(cs.view)
	cs.publishLocked()
	cs.mu.Unlock()
}

func upsertView(view []models.Message, m models.Message) []models.Message {
	for i := range view {
		if view[i].ID == m.ID {
			view[i] = m
			return view
		}
	}
	view = append(view, m)
	sort.SliceStable(view, func(i, j int) bool {
		if !view[i].CreatedAt.Equal(view[j].CreatedAt) {
			return view[i].CreatedAt.Before(view[j].CreatedAt)
		}
		return view[i].ID < view[j].ID
	})
	return view
}

func removeFromView(view []models.Message, id string) []models.Message {
	for i := range view {
		if view[i].ID == id {
			return append(view[:i], view[i+1:]...)
		}
	}
	return view
}

// SubscribeConversationList streams the user's conversation summaries,
// debounced and persisted locally as they arrive. The fast path is
// GetConversations on the store before the first emission.
func (s *Service) SubscribeConversationList() ([]models.Conversation, <-chan []models.Conversation, error) {
	s.mu.Lock()
	if s.listSub != nil {
		out := s.listOut
		s.mu.Unlock()
		local, err := s.store.GetConversations(s.opts.UserID)
		return local, out, err
	}
	s.mu.Unlock()

	local, err := s.store.GetConversations(s.opts.UserID)
	if err != nil {
		return nil, nil, err
	}
	out := make(chan []models.Conversation, 1)
	coal := merge.NewCoalescer(s.opts.ListDebounce, func(list []models.Conversation) {
		for _, c := range list {
			if err := s.store.PutConversation(c); err != nil {
				logger.Warn("conversation_persist_failed", "conversation", c.ID, "error", err)
			}
		}
		select {
		case out <- list:
		default:
			select {
			case <-out:
			default:
			}
			out <- list
		}
	})
	sub, err := s.feed.SubscribeConversationList(s.opts.UserID)
	if err != nil {
		coal.Stop()
		return nil, nil, fmt.Errorf("%w: conversation list: %v", ErrRemoteWrite, err)
	}
	s.mu.Lock()
	s.listSub = sub
	s.listCoal = coal
	s.listOut = out
	s.mu.Unlock()
	go func() {
		for list := range sub.Conversations() {
			coal.Offer(list)
		}
	}()
	return local, out, nil
}

// CreateOrGetConversation ensures the conversation exists remotely and
// locally. Direct conversations derive their id from the two sorted
// participant ids, making creation idempotent without coordination.
func (s *Service) CreateOrGetConversation(ctx context.Context, typ models.ConversationType, participants []string, groupName string) (models.Conversation, error) {
	c := models.Conversation{
		Type:           typ,
		ParticipantIDs: participants,
		GroupName:      groupName,
		CreatedAt:      time.Now(),
	}
	switch typ {
	case models.ConversationDirect:
		if len(participants) != 2 {
			return models.Conversation{}, fmt.Errorf("%w: direct conversation needs exactly 2 participants", ErrValidation)
		}
		c.ID = models.DirectConversationID(participants[0], participants[1])
	case models.ConversationGroup:
		if len(participants) == 0 {
			return models.Conversation{}, fmt.Errorf("%w: group conversation needs participants", ErrValidation)
		}
		c.ID = uuid.NewString()
	default:
		return models.Conversation{}, fmt.Errorf("%w: unknown conversation type %q", ErrValidation, typ)
	}
	got, err := s.feed.EnsureConversation(ctx, c)
	if err != nil {
		return models.Conversation{}, fmt.Errorf("%w: ensure conversation: %v", ErrRemoteWrite, err)
	}
	if err := s.store.PutConversation(got); err != nil {
		return models.Conversation{}, err
	}
	return got, nil
}

// ClearHistory removes all locally stored messages for a conversation.
// Remote state is untouched; a later snapshot repopulates the live
// window.
func (s *Service) ClearHistory(convID string) (int, error) {
	n, err := s.store.DeleteMessages(convID)
	if err != nil {
		return 0, err
	}
	s.mutateView(convID, func([]models.Message) []models.Message { return nil })
	return n, nil
}

// LoadOlder pages history created strictly before the given instant
// into the conversation's view. Paged rows live outside the live merge
// window, so later capped snapshots do not evict them.
func (s *Service) LoadOlder(ctx context.Context, convID string, before time.Time, limit int) ([]models.Message, error) {
	older, err := s.feed.FetchBefore(ctx, convID, before, limit)
	if err != nil {
		if remote.IsTransient(err) {
			return nil, fmt.Errorf("%w: fetch older: %v", ErrRemoteWrite, err)
		}
		return nil, err
	}
	for _, m := range older {
		if err := s.store.Put(m); err != nil {
			logger.Warn("older_persist_failed", "msg", m.ID, "error", err)
		}
	}
	s.mu.Lock()
	cs, ok := s.convs[convID]
	s.mu.Unlock()
	if ok {
		cs.mu.Lock()
		for _, m := range older {
			cs.older[m.ID] = m
		}
		cs.publishLocked()
		cs.mu.Unlock()
	}
	return older, nil
}

// Close detaches every subscription. Pending debounce timers are
// cancelled; in-flight sends run to completion against the store.
func (s *Service) Close() {
	s.mu.Lock()
	convs := make([]string, 0, len(s.convs))
	for id := range s.convs {
		convs = append(convs, id)
	}
	listSub, listCoal := s.listSub, s.listCoal
	s.listSub, s.listCoal = nil, nil
	s.mu.Unlock()
	for _, id := range convs {
		s.Unsubscribe(id)
	}
	if listCoal != nil {
		listCoal.Stop()
	}
	if listSub != nil {
		listSub.Cancel()
	}
}
