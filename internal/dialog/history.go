package dialog

// Turn is one recorded conversation step, kept for diagnostics and for
// labeling LLM-deferred turns. Never consulted by decision logic.
type Turn struct {
	Role       string
	Text       string
	Intent     string
	Confidence float64
}

// historyLimit bounds the per-session conversation history.
const historyLimit = 10

// History is a bounded ring of the most recent turns.
type History struct {
	turns []Turn
}

// Append records a turn, evicting the oldest once the limit is reached.
func (h *History) Append(t Turn) {
	h.turns = append(h.turns, t)
	if len(h.turns) > historyLimit {
		h.turns = h.turns[len(h.turns)-historyLimit:]
	}
}

// Turns returns a copy of the recorded turns, oldest first.
func (h *History) Turns() []Turn {
	out := make([]Turn, len(h.turns))
	copy(out, h.turns)
	return out
}

// Len returns the number of recorded turns.
func (h *History) Len() int {
	return len(h.turns)
}
