package chat

import (
	"context"
	"fmt"
	"time"

	"github.com/MomenMushtaha/MessageAI-sub000/pkg/logger"
	"github.com/MomenMushtaha/MessageAI-sub000/pkg/models"
	"github.com/MomenMushtaha/MessageAI-sub000/pkg/store"
)

// mutation is an optimistic edit/delete command: mutate local state
// immediately, confirm remotely, and restore the captured pre-mutation
// value if the remote write fails. Unlike send, the prior state is
// well-defined and worth restoring.
type mutation struct {
	svc    *Service
	before models.Message
	after  models.Message
}

func (c *mutation) apply() error {
	if err := c.writeContent(c.after); err != nil {
		if err == store.ErrNotFound {
			return ErrNotFound
		}
		return err
	}
	return nil
}

func (c *mutation) undo() {
	if err := c.writeContent(c.before); err != nil {
		logger.Error("rollback_persist_failed", "msg", c.before.ID, "error", err)
	}
}

// writeContent copies src's content fields onto the stored row and the
// open view. Status, sync and delivery marks stay whatever a concurrent
// snapshot made them; only a read-modify-write can guarantee that.
func (c *mutation) writeContent(src models.Message) error {
	err := c.svc.store.UpdateMessage(src.ID, func(cur *models.Message) error {
		copyContent(cur, src)
		return nil
	})
	if err != nil {
		return err
	}
	c.svc.mutateView(src.ConversationID, func(view []models.Message) []models.Message {
		for i := range view {
			if view[i].ID == src.ID {
				copyContent(&view[i], src)
				return view
			}
		}
		return upsertView(view, src)
	})
	return nil
}

func copyContent(dst *models.Message, src models.Message) {
	dst.Text = src.Text
	dst.EditHistory = src.EditHistory
	dst.EditedAt = src.EditedAt
	dst.DeletedForEveryone = src.DeletedForEveryone
	dst.DeletedBy = src.DeletedBy
}

func (c *mutation) confirm(ctx context.Context) error {
	err := c.svc.feed.UpdateMessage(ctx, c.after.ConversationID, c.after)
	if err == nil {
		return nil
	}
	c.undo()
	return fmt.Errorf("%w: %v", ErrRemoteWrite, err)
}

func (s *Service) loadOwn(msgID string) (models.Message, error) {
	m, err := s.store.Get(msgID)
	if err != nil {
		if err == store.ErrNotFound {
			return models.Message{}, ErrNotFound
		}
		return models.Message{}, err
	}
	return m, nil
}

// Edit replaces a message's text. Permitted only to the sender, only
// within the edit window from creation, and only while the message is
// not tombstoned; violations are rejected locally with no remote call.
// The original text is appended to the edit history.
func (s *Service) Edit(ctx context.Context, msgID, newText string) error {
	m, err := s.loadOwn(msgID)
	if err != nil {
		return err
	}
	if m.SenderID != s.opts.UserID {
		return fmt.Errorf("%w: only the sender can edit", ErrPermission)
	}
	if m.DeletedForEveryone {
		return fmt.Errorf("%w: message is deleted", ErrPermission)
	}
	if time.Since(m.CreatedAt) > s.opts.EditWindow {
		return ErrEditWindowExpired
	}
	newText, err = s.validateText(newText)
	if err != nil {
		return err
	}
	if newText == m.Text {
		return nil
	}

	after := m.Clone()
	after.EditHistory = append(after.EditHistory, after.Text)
	after.Text = newText
	now := time.Now()
	after.EditedAt = &now

	cmd := &mutation{svc: s, before: m.Clone(), after: after}
	if err := cmd.apply(); err != nil {
		return err
	}
	return cmd.confirm(ctx)
}

// Delete removes a message for the calling user, or for everyone when
// forEveryone is set. Delete-for-everyone is sender-only and
// irreversible: the text becomes a fixed placeholder visible to all
// participants, while the row survives for ordering and identity.
func (s *Service) Delete(ctx context.Context, msgID string, forEveryone bool) error {
	m, err := s.loadOwn(msgID)
	if err != nil {
		return err
	}
	after := m.Clone()
	if forEveryone {
		if m.SenderID != s.opts.UserID {
			return fmt.Errorf("%w: only the sender can delete for everyone", ErrPermission)
		}
		if m.DeletedForEveryone {
			return nil
		}
		after.DeletedForEveryone = true
		after.Text = models.DeletedPlaceholder
		after.EditHistory = nil
		after.EditedAt = nil
	} else {
		if m.DeletedFor(s.opts.UserID) {
			return nil
		}
		after.DeletedBy = append(after.DeletedBy, s.opts.UserID)
	}

	cmd := &mutation{svc: s, before: m.Clone(), after: after}
	if err := cmd.apply(); err != nil {
		return err
	}
	return cmd.confirm(ctx)
}
