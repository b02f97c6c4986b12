package merge

import (
	"sync"
	"time"
)

// Coalescer is a single-slot debounce buffer: each offered value
// replaces the previous unfired one, and fire receives only the latest
// value once the quiet period elapses. A burst of snapshots therefore
// collapses into one merge pass.
type Coalescer[T any] struct {
	delay time.Duration
	fire  func(T)

	mu      sync.Mutex
	latest  T
	armed   bool
	timer   *time.Timer
	stopped bool
}

// NewCoalescer returns a coalescer that calls fire with the most recent
// offered value after delay of quiet. fire runs on the timer goroutine.
func NewCoalescer[T any](delay time.Duration, fire func(T)) *Coalescer[T] {
	return &Coalescer[T]{delay: delay, fire: fire}
}

// Offer replaces the pending value and restarts the quiet period. A
// zero delay fires synchronously.
func (c *Coalescer[T]) Offer(v T) {
	if c.delay <= 0 {
		c.mu.Lock()
		stopped := c.stopped
		c.mu.Unlock()
		if !stopped {
			c.fire(v)
		}
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		return
	}
	c.latest = v
	c.armed = true
	if c.timer == nil {
		c.timer = time.AfterFunc(c.delay, c.flush)
	} else {
		c.timer.Reset(c.delay)
	}
}

func (c *Coalescer[T]) flush() {
	c.mu.Lock()
	if c.stopped || !c.armed {
		c.mu.Unlock()
		return
	}
	v := c.latest
	c.armed = false
	var zero T
	c.latest = zero
	c.mu.Unlock()
	c.fire(v)
}

// Stop cancels any pending fire. Values offered after Stop are dropped.
func (c *Coalescer[T]) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopped = true
	if c.timer != nil {
		c.timer.Stop()
	}
}
