package transfer

import (
	"sync"
	"time"
)

// Throttle is the global cooldown flag. Once the remote rate-limits any
// call, every transfer backs off until the cooldown lapses or an operator
// clears the flag.
type Throttle struct {
	mu       sync.Mutex
	until    time.Time
	cooldown time.Duration
	now      func() time.Time
}

// NewThrottle builds a throttle with the given cooldown. Non-positive
// cooldowns default to one hour.
func NewThrottle(cooldown time.Duration) *Throttle {
	if cooldown <= 0 {
		cooldown = time.Hour
	}
	return &Throttle{cooldown: cooldown, now: time.Now}
}

// Trip starts (or restarts) the cooldown.
func (t *Throttle) Trip() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.until = t.now().Add(t.cooldown)
}

// Active reports whether transfers should currently back off.
func (t *Throttle) Active() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.now().Before(t.until)
}

// Remaining returns how long the cooldown has left, zero when inactive.
func (t *Throttle) Remaining() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	remaining := t.until.Sub(t.now())
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Clear lifts the cooldown immediately.
func (t *Throttle) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.until = time.Time{}
}
