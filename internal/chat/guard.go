package chat

import (
	"sync"
	"sync/atomic"
)

// Guard records which conversations have a processing attempt in flight.
// The conversation ID is the only exclusion key; the stored message ID is
// kept for logging.
type Guard struct {
	markers sync.Map // conversation ID -> message ID
	held    atomic.Int64
}

// NewGuard returns an empty guard.
func NewGuard() *Guard {
	return &Guard{}
}

// TryAcquire records a marker for conversationID unless one already exists.
func (g *Guard) TryAcquire(conversationID, messageID string) bool {
	if _, loaded := g.markers.LoadOrStore(conversationID, messageID); loaded {
		return false
	}
	g.held.Add(1)
	return true
}

// Release removes the marker for conversationID. Safe to call when none exists.
func (g *Guard) Release(conversationID string) {
	if _, loaded := g.markers.LoadAndDelete(conversationID); loaded {
		g.held.Add(-1)
	}
}

// Holding returns the message ID recorded for conversationID, if any.
func (g *Guard) Holding(conversationID string) (string, bool) {
	v, ok := g.markers.Load(conversationID)
	if !ok {
		return "", false
	}
	return v.(string), true
}

// Len is the number of conversations currently in flight.
func (g *Guard) Len() int {
	return int(g.held.Load())
}
