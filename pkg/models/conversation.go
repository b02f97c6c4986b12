package models

import (
	"sort"
	"strings"
	"time"
)

// ConversationType distinguishes 1:1 chats from groups.
type ConversationType string

const (
	ConversationDirect ConversationType = "direct"
	ConversationGroup  ConversationType = "group"
)

// Conversation is the container a message belongs to. LastMessageText and
// LastMessageAt are a denormalized cache kept consistent with the message
// history by the dual write in the send pipeline.
type Conversation struct {
	ID              string           `json:"id"`
	Type            ConversationType `json:"type"`
	ParticipantIDs  []string         `json:"participant_ids"`
	LastMessageText string           `json:"last_message_text,omitempty"`
	LastMessageAt   *time.Time       `json:"last_message_at,omitempty"`
	GroupName       string           `json:"group_name,omitempty"`
	CreatedAt       time.Time        `json:"created_at"`
}

// DirectConversationID derives the deterministic id for a 1:1 chat from
// its two participants. Both sides compute the same id, which makes
// conversation creation idempotent without a coordination round-trip.
func DirectConversationID(a, b string) string {
	ids := []string{a, b}
	sort.Strings(ids)
	return strings.Join(ids, "_")
}

// HasParticipant reports whether userID belongs to the conversation.
func (c *Conversation) HasParticipant(userID string) bool {
	return Contains(c.ParticipantIDs, userID)
}

// Others returns the participant set minus userID.
func (c *Conversation) Others(userID string) []string {
	out := make([]string, 0, len(c.ParticipantIDs))
	for _, id := range c.ParticipantIDs {
		if id != userID {
			out = append(out, id)
		}
	}
	return out
}
