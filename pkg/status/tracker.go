// Package status batch-transitions message delivery state by growing
// the per-message deliveredTo/readBy acknowledgement sets.
package status

import (
	"context"

	"github.com/MomenMushtaha/MessageAI-sub000/pkg/logger"
	"github.com/MomenMushtaha/MessageAI-sub000/pkg/models"
	"github.com/MomenMushtaha/MessageAI-sub000/pkg/remote"
	"github.com/MomenMushtaha/MessageAI-sub000/pkg/store"
	"github.com/MomenMushtaha/MessageAI-sub000/pkg/telemetry"
)

// Tracker applies delivered/read marks as one batched remote operation
// per call, then mirrors the change into the local store. Messages
// authored by the acknowledging user, and messages already carrying the
// mark, are skipped so replays produce no writes.
type Tracker struct {
	store *store.Store
	feed  remote.Feed
}

func NewTracker(st *store.Store, feed remote.Feed) *Tracker {
	return &Tracker{store: st, feed: feed}
}

// MarkDelivered records that userID received every qualifying message
// in the conversation.
func (t *Tracker) MarkDelivered(ctx context.Context, convID, userID string) error {
	return t.mark(ctx, convID, userID, false)
}

// MarkRead records that userID read every qualifying message in the
// conversation. Read implies delivered: the same batch also fills the
// delivered set where absent.
func (t *Tracker) MarkRead(ctx context.Context, convID, userID string) error {
	return t.mark(ctx, convID, userID, true)
}

func (t *Tracker) mark(ctx context.Context, convID, userID string, read bool) error {
	mutate := func(m *models.Message) bool {
		if m.SenderID == userID {
			return false
		}
		changed := false
		if !models.Contains(m.DeliveredTo, userID) {
			m.DeliveredTo = append(m.DeliveredTo, userID)
			changed = true
		}
		if read && !models.Contains(m.ReadBy, userID) {
			m.ReadBy = append(m.ReadBy, userID)
			changed = true
		}
		return changed
	}

	// One remote round trip covering all qualifying messages. The local
	// mirror follows only on success; a failed batch leaves local state
	// untouched and the next snapshot reconciles regardless.
	if err := t.feed.BatchUpdateStatus(ctx, convID, mutate); err != nil {
		logger.Warn("status_batch_failed", "conversation", convID, "user", userID, "read", read, "error", err)
		return err
	}
	telemetry.StatusBatchesTotal.Inc()

	local, err := t.store.GetAll(convID)
	if err != nil {
		return err
	}
	for _, m := range local {
		probe := m.Clone()
		if !mutate(&probe) {
			continue
		}
		if err := t.store.UpdateMessage(m.ID, func(row *models.Message) error {
			mutate(row)
			return nil
		}); err != nil {
			return err
		}
	}
	return nil
}
