// Package remote abstracts the backend the sync engine talks to. The
// engine never assumes the remote is reachable; every write returns an
// error the caller classifies as transient or permanent.
package remote

import (
	"context"
	"errors"
	"time"

	"github.com/MomenMushtaha/MessageAI-sub000/pkg/models"
)

// ErrTransient marks failures worth retrying: timeouts, disconnects,
// backpressure. Implementations wrap it so the send pipeline can
// classify without knowing transport details.
var ErrTransient = errors.New("remote: transient failure")

// ErrPermanent marks failures a retry will not fix: rejections,
// permission denials, malformed writes.
var ErrPermanent = errors.New("remote: permanent failure")

// IsTransient reports whether err is worth retrying.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient)
}

// Snapshot is one authoritative emission for a conversation: the
// recent window of messages, most-recent-capped, ordered by creation
// time ascending.
type Snapshot struct {
	ConversationID string
	Messages       []models.Message
}

// Subscription is a live per-conversation feed. Snapshots arrives on a
// bounded channel; when the consumer lags, older snapshots are dropped
// in favor of the latest, since each snapshot supersedes the previous
// one entirely.
type Subscription interface {
	Snapshots() <-chan Snapshot
	Cancel()
}

// ListSubscription streams the authoritative conversation list for a
// user. Same latest-wins delivery as Subscription.
type ListSubscription interface {
	Conversations() <-chan []models.Conversation
	Cancel()
}

// Feed is the remote backend surface the sync engine depends on.
type Feed interface {
	// Subscribe opens a live snapshot stream for one conversation.
	Subscribe(convID string) (Subscription, error)

	// SubscribeConversationList opens a live stream of the user's
	// conversation summaries.
	SubscribeConversationList(userID string) (ListSubscription, error)

	// WriteMessageAndSummary atomically appends a message to the
	// conversation and updates its summary (last message text and
	// timestamp). Either both land or neither does.
	WriteMessageAndSummary(ctx context.Context, msg models.Message, c models.Conversation) error

	// UpdateMessage overwrites mutable fields of an existing remote
	// message (edit text, tombstone flags, hide lists).
	UpdateMessage(ctx context.Context, convID string, msg models.Message) error

	// BatchUpdateStatus applies fn to every message in the conversation
	// it selects, in a single remote round trip. fn returns true when it
	// changed the message.
	BatchUpdateStatus(ctx context.Context, convID string, fn func(*models.Message) bool) error

	// EnsureConversation creates the conversation if absent and returns
	// the authoritative record either way.
	EnsureConversation(ctx context.Context, c models.Conversation) (models.Conversation, error)

	// FetchBefore pages history older than the live window: up to limit
	// messages created strictly before the given instant, ascending.
	FetchBefore(ctx context.Context, convID string, before time.Time, limit int) ([]models.Message, error)
}
