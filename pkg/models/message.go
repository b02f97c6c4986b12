package models

import "time"

// Status is a message delivery state. It is monotonic: a message never
// moves backwards except into StatusError, which is terminal but
// retriable.
type Status string

const (
	StatusSending   Status = "sending"
	StatusSent      Status = "sent"
	StatusDelivered Status = "delivered"
	StatusRead      Status = "read"
	StatusError     Status = "error"
)

// rank orders the happy-path statuses. Error sits outside the ladder.
func (s Status) rank() int {
	switch s {
	case StatusSending:
		return 0
	case StatusSent:
		return 1
	case StatusDelivered:
		return 2
	case StatusRead:
		return 3
	}
	return -1
}

// CanTransition reports whether moving from s to next respects the
// monotonic ladder. Any state may move into error; error may move back
// to sending or sent on a manual retry.
func (s Status) CanTransition(next Status) bool {
	if next == StatusError {
		return true
	}
	if s == StatusError {
		return next == StatusSending || next == StatusSent
	}
	return next.rank() >= s.rank()
}

// DeletedPlaceholder replaces the text of a message deleted for everyone.
const DeletedPlaceholder = "This message was deleted"

// Message is the unit of synchronization. ID is client-generated at
// creation so it stays stable across the optimistic->confirmed
// transition.
type Message struct {
	ID             string `json:"id"`
	ConversationID string `json:"conversation_id"`
	SenderID       string `json:"sender_id"`
	Text           string `json:"text"`
	// CreatedAt is client-assigned at creation; the remote authority may
	// replace it with its own timestamp on confirm.
	CreatedAt time.Time `json:"created_at"`
	Status    Status    `json:"status"`
	// DeliveredTo and ReadBy are grow-only recipient sets.
	DeliveredTo []string `json:"delivered_to,omitempty"`
	ReadBy      []string `json:"read_by,omitempty"`
	// DeletedBy lists users who tombstoned the message locally.
	DeletedBy          []string `json:"deleted_by,omitempty"`
	DeletedForEveryone bool     `json:"deleted_for_everyone,omitempty"`
	// EditedAt and EditHistory are present only after an edit.
	EditedAt    *time.Time `json:"edited_at,omitempty"`
	EditHistory []string   `json:"edit_history,omitempty"`
	// Synced records whether the row reflects remote-confirmed state.
	// Local bookkeeping only; never sent to the remote.
	Synced bool `json:"synced,omitempty"`
}

// Pending reports whether the message is still awaiting remote
// confirmation.
func (m *Message) Pending() bool {
	return m.Status == StatusSending || m.Status == StatusError
}

// DeletedFor reports whether userID tombstoned the message locally.
func (m *Message) DeletedFor(userID string) bool {
	if m.DeletedForEveryone {
		return true
	}
	return Contains(m.DeletedBy, userID)
}

// Clone returns a deep copy. Used for snapshot-and-restore around
// rollbackable mutations.
func (m *Message) Clone() Message {
	c := *m
	c.DeliveredTo = append([]string(nil), m.DeliveredTo...)
	c.ReadBy = append([]string(nil), m.ReadBy...)
	c.DeletedBy = append([]string(nil), m.DeletedBy...)
	c.EditHistory = append([]string(nil), m.EditHistory...)
	if m.EditedAt != nil {
		t := *m.EditedAt
		c.EditedAt = &t
	}
	return c
}

// Contains reports whether set holds id. Delivery sets are small; a
// linear scan keeps them plain JSON arrays, matching the remote format.
func Contains(set []string, id string) bool {
	for _, s := range set {
		if s == id {
			return true
		}
	}
	return false
}
