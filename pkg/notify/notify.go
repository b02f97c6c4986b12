// Package notify declares the inbound-message notification hook. The
// sync core decides when to notify; presentation lives outside.
package notify

import "github.com/MomenMushtaha/MessageAI-sub000/pkg/logger"

// Notifier receives one call per notifiable inbound message: a message
// not authored by the local user, in a conversation not currently
// focused.
type Notifier interface {
	Notify(conversationID, senderID, senderName, text string, isGroup bool)
}

// Nop discards notifications.
type Nop struct{}

func (Nop) Notify(string, string, string, string, bool) {}

// Logging writes notifications to the structured log, used by the
// daemon's loopback mode.
type Logging struct{}

func (Logging) Notify(conversationID, senderID, senderName, text string, isGroup bool) {
	logger.Info("notify_inbound",
		"conversation", conversationID,
		"sender", senderID,
		"sender_name", senderName,
		"group", isGroup,
		"preview", preview(text))
}

func preview(text string) string {
	const max = 64
	runes := []rune(text)
	if len(runes) <= max {
		return text
	}
	return string(runes[:max]) + "..."
}
