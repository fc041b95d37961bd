package portfolio

import (
	"fmt"
	"sync"
	"time"
)

// Throttle is a per-instrument cooldown gate for BUY signals.
type Throttle struct {
	mu     sync.Mutex
	window time.Duration
	last   map[string]time.Time
}

// NewThrottle creates a Throttle with the given cooldown window.
func NewThrottle(window time.Duration) *Throttle {
	return &Throttle{
		window: window,
		last:   make(map[string]time.Time),
	}
}

// Window returns the configured cooldown.
func (t *Throttle) Window() time.Duration {
	return t.window
}

// CanSignal reports whether instrument may signal at now. An instrument that
// has never signaled is always permitted.
func (t *Throttle) CanSignal(instrument string, now time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	last, ok := t.last[instrument]
	if !ok {
		return true
	}
	return now.Sub(last) >= t.window
}

// RecordSignal stores now as the latest signal time, overwriting any
// previous value.
func (t *Throttle) RecordSignal(instrument string, now time.Time) {
	t.mu.Lock()
	t.last[instrument] = now
	t.mu.Unlock()
}

// Status returns "Ready" or the whole minutes left in the cooldown.
func (t *Throttle) Status(instrument string, now time.Time) string {
	t.mu.Lock()
	last, ok := t.last[instrument]
	t.mu.Unlock()

	if !ok {
		return "Ready"
	}
	remaining := t.window - now.Sub(last)
	if remaining <= 0 {
		return "Ready"
	}
	return fmt.Sprintf("%dm remaining", int(remaining/time.Minute))
}

// Load seeds the throttle with previously recorded signal times. Entries
// newer than those already held win.
func (t *Throttle) Load(signals map[string]time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for inst, at := range signals {
		if cur, ok := t.last[inst]; !ok || at.After(cur) {
			t.last[inst] = at
		}
	}
}
