package app

import (
	"fmt"
	"sync"
	"testing"

	"github.com/rnmehta/dinevox/pkg/types"
)

func TestCallLogRecordAndTurns(t *testing.T) {
	t.Parallel()
	l := NewCallLog()

	l.Record(types.CallTurn{CallID: "c1", CallerText: "hello", ReplyText: "hi"})
	l.Record(types.CallTurn{CallID: "c1", CallerText: "two dosa", ReplyText: "added"})
	l.Record(types.CallTurn{CallID: "c2", CallerText: "bye", ReplyText: "goodbye"})

	turns := l.Turns("c1")
	if len(turns) != 2 {
		t.Fatalf("turns for c1 = %d, want 2", len(turns))
	}
	if turns[0].CallerText != "hello" || turns[1].CallerText != "two dosa" {
		t.Fatalf("turn order wrong: %+v", turns)
	}
	if got := l.Len("c2"); got != 1 {
		t.Fatalf("Len(c2) = %d, want 1", got)
	}
	if got := l.Len("unknown"); got != 0 {
		t.Fatalf("Len(unknown) = %d, want 0", got)
	}
}

func TestCallLogIgnoresEmptyCallID(t *testing.T) {
	t.Parallel()
	l := NewCallLog()
	l.Record(types.CallTurn{CallerText: "orphan"})
	if len(l.Calls()) != 0 {
		t.Fatal("expected empty call IDs to be dropped")
	}
}

func TestCallLogOrderIsFirstSeen(t *testing.T) {
	t.Parallel()
	l := NewCallLog()
	l.Record(types.CallTurn{CallID: "b"})
	l.Record(types.CallTurn{CallID: "a"})
	l.Record(types.CallTurn{CallID: "b"})

	calls := l.Calls()
	if len(calls) != 2 || calls[0] != "b" || calls[1] != "a" {
		t.Fatalf("calls = %v, want [b a]", calls)
	}
}

func TestCallLogCapsPerCallHistory(t *testing.T) {
	t.Parallel()
	l := NewCallLog()
	for i := 0; i < maxTurnsPerCall+10; i++ {
		l.Record(types.CallTurn{CallID: "c1", CallerText: fmt.Sprintf("turn-%d", i)})
	}

	if got := l.Len("c1"); got != maxTurnsPerCall {
		t.Fatalf("Len = %d, want %d", got, maxTurnsPerCall)
	}
	turns := l.Turns("c1")
	if turns[0].CallerText != "turn-10" {
		t.Fatalf("oldest kept turn = %q, want turn-10", turns[0].CallerText)
	}
}

func TestCallLogTurnsReturnsCopy(t *testing.T) {
	t.Parallel()
	l := NewCallLog()
	l.Record(types.CallTurn{CallID: "c1", CallerText: "original"})

	turns := l.Turns("c1")
	turns[0].CallerText = "mutated"

	if got := l.Turns("c1")[0].CallerText; got != "original" {
		t.Fatalf("stored turn = %q, want original", got)
	}
}

func TestCallLogConcurrentRecord(t *testing.T) {
	t.Parallel()
	l := NewCallLog()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			id := fmt.Sprintf("c%d", n%2)
			for j := 0; j < 50; j++ {
				l.Record(types.CallTurn{CallID: id})
			}
		}(i)
	}
	wg.Wait()

	if got := l.Len("c0") + l.Len("c1"); got != 400 {
		t.Fatalf("total turns = %d, want 400", got)
	}
}
