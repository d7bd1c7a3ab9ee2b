package app

import (
	"sync"

	"github.com/rnmehta/dinevox/pkg/types"
)

// maxTurnsPerCall bounds the per-call history kept in memory. Older turns
// are dropped; the authoritative order record lives in the action store.
const maxTurnsPerCall = 200

// CallLog keeps the recent turns of every call in memory for inspection and
// operator tooling. All methods are safe for concurrent use.
type CallLog struct {
	mu    sync.Mutex
	calls map[string][]types.CallTurn
	order []string // call IDs in first-seen order
}

// NewCallLog returns an empty log.
func NewCallLog() *CallLog {
	return &CallLog{calls: make(map[string][]types.CallTurn)}
}

// Record appends one completed turn. It is handed to the call server as its
// OnTurn callback.
func (l *CallLog) Record(turn types.CallTurn) {
	if turn.CallID == "" {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	turns, seen := l.calls[turn.CallID]
	if !seen {
		l.order = append(l.order, turn.CallID)
	}
	turns = append(turns, turn)
	if len(turns) > maxTurnsPerCall {
		turns = turns[len(turns)-maxTurnsPerCall:]
	}
	l.calls[turn.CallID] = turns
}

// Turns returns a copy of the recorded turns for one call, oldest first.
func (l *CallLog) Turns(callID string) []types.CallTurn {
	l.mu.Lock()
	defer l.mu.Unlock()
	turns := l.calls[callID]
	out := make([]types.CallTurn, len(turns))
	copy(out, turns)
	return out
}

// Calls returns the known call IDs in first-seen order.
func (l *CallLog) Calls() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, len(l.order))
	copy(out, l.order)
	return out
}

// Len reports the number of turns recorded for one call.
func (l *CallLog) Len(callID string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.calls[callID])
}
