package events

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/pitabwire/util"
)

// History implements queue.SubscribeWorker and keeps the most recent events
// delivered through the event bus.
type History struct {
	mu    sync.Mutex
	limit int
	items []Envelope
}

// NewHistory creates a history holding up to limit events.
func NewHistory(limit int) *History {
	if limit <= 0 {
		limit = 100
	}
	return &History{limit: limit}
}

// Handle is called by frame's pub/sub for each event message.
func (h *History) Handle(ctx context.Context, _ map[string]string, message []byte) error {
	var env Envelope
	if err := json.Unmarshal(message, &env); err != nil {
		util.Log(ctx).WithError(err).Error("event history: unmarshal envelope")
		return err
	}

	h.mu.Lock()
	h.items = append(h.items, env)
	if over := len(h.items) - h.limit; over > 0 {
		h.items = append(h.items[:0], h.items[over:]...)
	}
	h.mu.Unlock()
	return nil
}

// Recent returns up to n events, newest last. n <= 0 returns all of them.
func (h *History) Recent(n int) []Envelope {
	h.mu.Lock()
	defer h.mu.Unlock()
	start := 0
	if n > 0 && n < len(h.items) {
		start = len(h.items) - n
	}
	return append([]Envelope(nil), h.items[start:]...)
}
