// Package rate tracks failed logins per identity over a trailing window and
// gates identities that cross the threshold behind a cooldown.
package rate

import (
	"strings"
	"sync"
	"time"
)

const (
	DefaultWindow    = 5 * time.Minute
	DefaultThreshold = 3
	DefaultCooldown  = 2 * time.Minute
)

type entry struct {
	failures      []time.Time
	cooldownUntil time.Time
}

type Throttle struct {
	mu        sync.Mutex
	entries   map[string]*entry
	lastGC    time.Time
	window    time.Duration
	threshold int
	cooldown  time.Duration
	now       func() time.Time
}

type Option func(*Throttle)

func WithWindow(d time.Duration) Option {
	return func(t *Throttle) {
		if d > 0 {
			t.window = d
		}
	}
}

func WithThreshold(n int) Option {
	return func(t *Throttle) {
		if n > 0 {
			t.threshold = n
		}
	}
}

func WithCooldown(d time.Duration) Option {
	return func(t *Throttle) {
		if d > 0 {
			t.cooldown = d
		}
	}
}

// WithClock replaces time.Now; tests drive the window with it.
func WithClock(now func() time.Time) Option {
	return func(t *Throttle) {
		if now != nil {
			t.now = now
		}
	}
}

func NewThrottle(opts ...Option) *Throttle {
	t := &Throttle{
		entries:   map[string]*entry{},
		window:    DefaultWindow,
		threshold: DefaultThreshold,
		cooldown:  DefaultCooldown,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	t.lastGC = t.now()
	return t
}

func key(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}

// InCooldown reports whether id is currently locked out. An expired cooldown is
// cleared on the way.
func (t *Throttle) InCooldown(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	t.gcLocked(now)
	e, ok := t.entries[key(id)]
	if !ok || e.cooldownUntil.IsZero() {
		return false
	}
	if now.Before(e.cooldownUntil) {
		return true
	}
	e.cooldownUntil = time.Time{}
	return false
}

// RecordFailure appends a failure for id and returns true when the pruned
// window reaches the threshold, starting a cooldown. The window keeps its
// failures, so one more failure after the cooldown while they are still
// inside the window locks id out again. Only Reset clears it.
func (t *Throttle) RecordFailure(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	k := key(id)
	e, ok := t.entries[k]
	if !ok {
		e = &entry{}
		t.entries[k] = e
	}
	e.failures = append(prune(e.failures, now.Add(-t.window)), now)
	if len(e.failures) < t.threshold {
		return false
	}
	e.cooldownUntil = now.Add(t.cooldown)
	return true
}

// Reset drops the failure window for id after a successful login.
func (t *Throttle) Reset(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.entries, key(id))
}

// Failures returns the number of failures for id inside the current window.
func (t *Throttle) Failures(id string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[key(id)]
	if !ok {
		return 0
	}
	e.failures = prune(e.failures, t.now().Add(-t.window))
	return len(e.failures)
}

func prune(failures []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(failures) && !failures[i].After(cutoff) {
		i++
	}
	return failures[i:]
}

func (t *Throttle) gcLocked(now time.Time) {
	if now.Sub(t.lastGC) <= time.Minute {
		return
	}
	cutoff := now.Add(-t.window)
	for k, e := range t.entries {
		if now.Before(e.cooldownUntil) {
			continue
		}
		e.failures = prune(e.failures, cutoff)
		if len(e.failures) == 0 {
			delete(t.entries, k)
		}
	}
	t.lastGC = now
}
