// Package ratelimit gates outbound sends: a minimum inter-message
// interval plus a sliding-window cap. The caller checks CanSend before
// invoking the send pipeline and records only successful dispatches.
package ratelimit

import (
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter enforces both checks. Safe for concurrent use.
type Limiter struct {
	mu     sync.Mutex
	gate   *rate.Limiter
	window time.Duration
	max    int
	sent   []time.Time
	now    func() time.Time
}

// New returns a limiter allowing at most one send per minInterval and
// max sends per sliding window.
func New(minInterval, window time.Duration, max int) *Limiter {
	return &Limiter{
		gate:   rate.NewLimiter(rate.Every(minInterval), 1),
		window: window,
		max:    max,
		now:    time.Now,
	}
}

// CanSend reports whether a send is allowed right now. A denial returns
// a human-readable reason. The check is side-effect free; nothing is
// consumed until RecordSent.
func (l *Limiter) CanSend() (bool, string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.pruneLocked()
	if len(l.sent) >= l.max {
		return false, fmt.Sprintf("rate limit: at most %d messages per %s", l.max, l.window)
	}
	if l.gate.Tokens() < 1 {
		return false, "rate limit: sending too quickly"
	}
	return true, ""
}

// RecordSent consumes the interval token and counts a dispatched
// message against the sliding window.
func (l *Limiter) RecordSent() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.gate.Allow()
	l.sent = append(l.sent, l.now())
	l.pruneLocked()
}

// Reset clears the window, e.g. on user switch.
func (l *Limiter) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sent = nil
}

func (l *Limiter) pruneLocked() {
	cutoff := l.now().Add(-l.window)
	keep := l.sent[:0]
	for _, t := range l.sent {
		if t.After(cutoff) {
			keep = append(keep, t)
		}
	}
	l.sent = keep
}
