package chat

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"github.com/MomenMushtaha/MessageAI-sub000/pkg/logger"
	"github.com/MomenMushtaha/MessageAI-sub000/pkg/models"
	"github.com/MomenMushtaha/MessageAI-sub000/pkg/remote"
	"github.com/MomenMushtaha/MessageAI-sub000/pkg/store"
	"github.com/MomenMushtaha/MessageAI-sub000/pkg/telemetry"
)

func (s *Service) validateText(text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrEmptyMessage
	}
	if utf8.RuneCountInString(text) > s.opts.MaxTextLen {
		return "", fmt.Errorf("%w: %d runes exceeds cap of %d", ErrMessageTooLong, utf8.RuneCountInString(text), s.opts.MaxTextLen)
	}
	return text, nil
}

// Send validates, inserts the message optimistically and dispatches the
// remote dual write in the background. The returned message carries
// status=sending; the caller observes the confirmed (or error) state
// through the subscription stream. Validation and rate-limit failures
// reject before any state mutation.
func (s *Service) Send(ctx context.Context, convID, text string) (models.Message, error) {
	text, err := s.validateText(text)
	if err != nil {
		return models.Message{}, err
	}
	if ok, reason := s.limiter.CanSend(); !ok {
		return models.Message{}, fmt.Errorf("%w: %s", ErrRateLimited, reason)
	}

	m := models.Message{
		ID:             uuid.NewString(),
		ConversationID: convID,
		SenderID:       s.opts.UserID,
		Text:           text,
		CreatedAt:      time.Now(),
		Status:         models.StatusSending,
		Synced:         false,
	}

	// Optimistic insert: the in-memory view is the source of truth for
	// responsiveness. A failed durable write is logged, not fatal; the
	// dispatch completion re-attempts persistence either way.
	if err := s.store.Put(m); err != nil {
		logger.Warn("optimistic_persist_failed", "msg", m.ID, "error", err)
	}
	s.mutateView(convID, func(view []models.Message) []models.Message {
		return upsertView(view, m)
	})
	s.limiter.RecordSent()
	telemetry.SendsTotal.Inc()

	go s.dispatch(m)
	return m, nil
}

// RetrySend re-dispatches a message that previously ended in error.
func (s *Service) RetrySend(ctx context.Context, msgID string) error {
	m, err := s.store.Get(msgID)
	if err != nil {
		return ErrNotFound
	}
	if m.Status != models.StatusError {
		return fmt.Errorf("%w: message %s is not in error state", ErrValidation, msgID)
	}
	m.Status = models.StatusSending
	if err := s.store.UpdateStatus(msgID, models.StatusSending, false); err != nil {
		logger.Warn("retry_persist_failed", "msg", m.ID, "error", err)
	}
	s.mutateView(m.ConversationID, func(view []models.Message) []models.Message {
		return upsertView(view, m)
	})
	go s.dispatch(m)
	return nil
}

// DiscardSend drops an unconfirmed message the user chose not to
// retry. Confirmed messages cannot be discarded this way.
func (s *Service) DiscardSend(msgID string) error {
	m, err := s.store.Get(msgID)
	if err != nil {
		return ErrNotFound
	}
	if !m.Pending() {
		return fmt.Errorf("%w: message %s is already confirmed", ErrPermission, msgID)
	}
	if err := s.store.DeleteMessage(msgID); err != nil {
		return err
	}
	s.mutateView(m.ConversationID, func(view []models.Message) []models.Message {
		return removeFromView(view, msgID)
	})
	return nil
}

// Forward sends an existing message's text to another conversation
// with a forwarding prefix, through the full send pipeline.
func (s *Service) Forward(ctx context.Context, msgID, targetConvID string) (models.Message, error) {
	src, err := s.store.Get(msgID)
	if err != nil {
		return models.Message{}, ErrNotFound
	}
	if src.DeletedForEveryone {
		return models.Message{}, fmt.Errorf("%w: cannot forward a deleted message", ErrValidation)
	}
	return s.Send(ctx, targetConvID, "Forwarded: "+src.Text)
}

// dispatch performs the atomic dual write (message plus conversation
// summary) with exponential backoff and jitter on transient failures,
// bounded by the send timeout. It runs detached from the caller's
// context: unsubscribing never cancels an in-flight send.
func (s *Service) dispatch(m models.Message) {
	ctx, cancel := context.WithTimeout(context.Background(), s.opts.SendTimeout)
	defer cancel()

	conv, err := s.store.GetConversation(m.ConversationID)
	if err != nil {
		conv = models.Conversation{ID: m.ConversationID, ParticipantIDs: []string{m.SenderID}}
	}

	started := time.Now()
	attempt := 0
	op := func() error {
		attempt++
		if attempt > 1 {
			telemetry.SendRetriesTotal.Inc()
		}
		err := s.feed.WriteMessageAndSummary(ctx, m, conv)
		if err != nil && !remote.IsTransient(err) {
			return backoff.Permanent(err)
		}
		return err
	}
	bo := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(s.opts.SendAttempts-1)),
		ctx,
	)
	err = backoff.Retry(op, bo)
	telemetry.SendDuration.Observe(time.Since(started).Seconds())

	if err != nil {
		telemetry.SendFailuresTotal.Inc()
		logger.Warn("send_failed", "msg", m.ID, "conversation", m.ConversationID, "attempts", attempt, "error", err)
		s.settle(m, models.StatusError, false)
		return
	}
	logger.Debug("send_confirmed", "msg", m.ID, "conversation", m.ConversationID, "attempts", attempt)

	// Re-read the summary before writing it: a later send may have
	// completed first, and its summary must not be rewound.
	if cur, err := s.store.GetConversation(m.ConversationID); err == nil {
		conv = cur
	}
	if conv.LastMessageAt == nil || m.CreatedAt.After(*conv.LastMessageAt) {
		at := m.CreatedAt
		conv.LastMessageText = m.Text
		conv.LastMessageAt = &at
		if err := s.store.PutConversation(conv); err != nil {
			logger.Warn("summary_persist_failed", "conversation", conv.ID, "error", err)
		}
	}
	s.settle(m, models.StatusSent, true)
}

// settle applies the terminal state of a dispatch to the store and the
// open view, even if nobody is subscribed anymore. The store write is a
// read-modify-write: a snapshot may have confirmed the message (and
// attached delivery marks) while the dispatch was in flight, and that
// state must survive.
func (s *Service) settle(m models.Message, status models.Status, synced bool) {
	err := s.store.UpdateMessage(m.ID, func(cur *models.Message) error {
		if cur.Status.CanTransition(status) {
			cur.Status = status
			cur.Synced = synced
		}
		return nil
	})
	if err == store.ErrNotFound {
		// Optimistic persistence failed at send time; write the row now.
		m.Status = status
		m.Synced = synced
		err = s.store.Put(m)
	}
	if err != nil {
		logger.Error("settle_persist_failed", "msg", m.ID, "status", status, "error", err)
	}
	m.Status = status
	m.Synced = synced
	s.mutateView(m.ConversationID, func(view []models.Message) []models.Message {
		for i := range view {
			if view[i].ID == m.ID {
				// A snapshot may have confirmed the message already;
				// never downgrade what the merge produced.
				if view[i].Status.CanTransition(status) {
					view[i].Status = status
					view[i].Synced = synced
				}
				return view
			}
		}
		return upsertView(view, m)
	})
}
