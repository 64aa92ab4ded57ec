package chat

import (
	"sync"
	"time"
)

// generationStatus records one in-flight generation. The stopped flag is
// only ever flipped from false to true.
type generationStatus struct {
	stopped   bool
	startedAt time.Time
}

// Tracker keeps per-conversation generation state so a stop request from
// one HTTP request can interrupt the generation running in another.
// All methods are safe for concurrent use.
type Tracker struct {
	mu     sync.RWMutex
	active map[uint]*generationStatus

	ttl      time.Duration
	stop     chan struct{}
	stopOnce sync.Once
}

// NewTracker creates a tracker whose entries are swept after ttl, which
// guards against leaks when a generation never reaches Complete (panic,
// process kill between register and cleanup). ttl <= 0 means 5 minutes.
func NewTracker(ttl time.Duration) *Tracker {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	t := &Tracker{
		active: make(map[uint]*generationStatus),
		ttl:    ttl,
		stop:   make(chan struct{}),
	}
	go t.sweepLoop()
	return t
}

// Register marks a generation as in flight for the conversation. A second
// Register for the same conversation resets the entry, dropping any stop
// request aimed at the previous generation.
func (t *Tracker) Register(conversationID uint) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.active[conversationID] = &generationStatus{startedAt: time.Now()}
}

// Complete removes the conversation's entry. Calling it for an unknown
// conversation is a no-op, so callers can defer it unconditionally.
func (t *Tracker) Complete(conversationID uint) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.active, conversationID)
}

// RequestStop flags the conversation's running generation to stop. It
// reports whether a generation was actually in flight; false means there
// is nothing to stop (never registered, or already completed).
func (t *Tracker) RequestStop(conversationID uint) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	status, ok := t.active[conversationID]
	if !ok {
		return false
	}
	status.stopped = true
	return true
}

// ShouldStop reports whether a stop has been requested for the
// conversation. Unknown conversations report false.
func (t *Tracker) ShouldStop(conversationID uint) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	status, ok := t.active[conversationID]
	return ok && status.stopped
}

// ActiveCount returns the number of generations currently in flight.
func (t *Tracker) ActiveCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.active)
}

// Close stops the background sweeper. Safe to call more than once.
func (t *Tracker) Close() {
	t.stopOnce.Do(func() { close(t.stop) })
}

func (t *Tracker) sweepLoop() {
	ticker := time.NewTicker(t.ttl / 2)
	defer ticker.Stop()
	for {
		select {
		case <-t.stop:
			return
		case <-ticker.C:
			t.sweep(time.Now())
		}
	}
}

// sweep drops entries older than ttl. A real generation finishes long
// before the default ttl, so only orphaned entries are affected.
func (t *Tracker) sweep(now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for id, status := range t.active {
		if now.Sub(status.startedAt) > t.ttl {
			delete(t.active, id)
		}
	}
}
