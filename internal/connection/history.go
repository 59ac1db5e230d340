package connection

import "github.com/rgledhill/netwatch/internal/envelope"

// History is a bounded rolling log of the most recent envelopes, newest
// first. It exists for diagnostics views, not business logic. Not safe for
// concurrent use on its own; the owning Conn guards it with its mutex.
type History struct {
	limit int
	items []envelope.Envelope
}

// NewHistory returns a history keeping at most limit envelopes.
func NewHistory(limit int) *History {
	if limit < 1 {
		limit = 1
	}
	return &History{limit: limit}
}

// Push prepends an envelope, evicting the oldest when full.
func (h *History) Push(env envelope.Envelope) {
	if len(h.items) < h.limit {
		h.items = append(h.items, envelope.Envelope{})
	}
	copy(h.items[1:], h.items)
	h.items[0] = env
}

// Len returns the number of retained envelopes.
func (h *History) Len() int {
	return len(h.items)
}

// Snapshot returns a copy of the retained envelopes, newest first.
func (h *History) Snapshot() []envelope.Envelope {
	out := make([]envelope.Envelope, len(h.items))
	copy(out, h.items)
	return out
}
