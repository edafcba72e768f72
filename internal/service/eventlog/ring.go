package eventlog

import (
	"sync"
	"time"
)

// DefaultCapacity is how many entries the dashboard feed keeps.
const DefaultCapacity = 11

// Ring is a bounded, most-recent-first activity trail.
type Ring struct {
	mu         sync.RWMutex
	entries    []string
	capacity   int
	timeFormat string
	now        func() time.Time
}

type Option func(*Ring)

// WithTimeFormat sets the layout of the timestamp prefix.
func WithTimeFormat(layout string) Option {
	return func(r *Ring) {
		if layout != "" {
			r.timeFormat = layout
		}
	}
}

// WithClock replaces the wall clock.
func WithClock(now func() time.Time) Option {
	return func(r *Ring) {
		if now != nil {
			r.now = now
		}
	}
}

func New(opts ...Option) *Ring {
	r := &Ring{
		capacity:   DefaultCapacity,
		timeFormat: "3:04:05 PM",
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.entries = make([]string, 0, r.capacity)
	return r
}

// Append stamps message with the current local time and puts it at the front.
func (r *Ring) Append(message string) string {
	entry := "[" + r.now().Format(r.timeFormat) + "] " + message

	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.entries) < r.capacity {
		r.entries = append(r.entries, "")
	}
	copy(r.entries[1:], r.entries[:len(r.entries)-1])
	r.entries[0] = entry
	return entry
}

// Entries returns a copy, most recent first.
func (r *Ring) Entries() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.entries))
	copy(out, r.entries)
	return out
}

func (r *Ring) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
