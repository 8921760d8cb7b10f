package history

import (
	contractx "github.com/tanpawarit/crmpilot/agent/contract"
)

// DefaultCapacity is the number of turns the orchestrator keeps as
// working memory.
const DefaultCapacity = 8

// History is a bounded, ordered sequence of conversation turns with FIFO
// eviction. One instance belongs to one conversation session and is
// never shared across sessions; callers serialize access per session.
type History struct {
	capacity int
	turns    []contractx.Turn
}

func New(capacity int) *History {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &History{
		capacity: capacity,
		turns:    make([]contractx.Turn, 0, capacity),
	}
}

// Append adds a turn, evicting the oldest when the capacity is reached.
func (h *History) Append(turn contractx.Turn) {
	if len(h.turns) == h.capacity {
		copy(h.turns, h.turns[1:])
		h.turns = h.turns[:len(h.turns)-1]
	}
	h.turns = append(h.turns, turn)
}

// Turns returns a copy of the retained turns, oldest first.
func (h *History) Turns() []contractx.Turn {
	out := make([]contractx.Turn, len(h.turns))
	copy(out, h.turns)
	return out
}

func (h *History) Len() int {
	return len(h.turns)
}

func (h *History) Capacity() int {
	return h.capacity
}
