package liveness

import (
	"testing"
	"time"

	"github.com/dsantoro/wgnet/core/clock"
)

func TestTouch_RecordsLastSeen(t *testing.T) {
	tr := New(Config{}, clock.New())
	tr.Touch(1)

	if _, ok := tr.LastSeen(1); !ok {
		t.Fatal("expected neighbor 1 to be tracked after Touch")
	}
}

func TestLastSeen_UntrackedIsMiss(t *testing.T) {
	tr := New(Config{}, clock.New())
	if _, ok := tr.LastSeen(1); ok {
		t.Fatal("expected a miss for an untouched neighbor")
	}
}

func TestForget_RemovesNeighbor(t *testing.T) {
	tr := New(Config{}, clock.New())
	tr.Touch(1)
	tr.Forget(1)

	if _, ok := tr.LastSeen(1); ok {
		t.Fatal("expected neighbor to be forgotten")
	}
}

func TestStale_ReportsNeighborsPastThreshold(t *testing.T) {
	tr := New(Config{StaleAfter: time.Millisecond}, clock.New())
	tr.Touch(1)

	time.Sleep(5 * time.Millisecond)

	stale := tr.Stale()
	if len(stale) != 1 || stale[0] != 1 {
		t.Fatalf("Stale() = %v, want [1]", stale)
	}
}

func TestStale_FreshNeighborNotReported(t *testing.T) {
	tr := New(Config{StaleAfter: time.Hour}, clock.New())
	tr.Touch(1)

	if stale := tr.Stale(); len(stale) != 0 {
		t.Fatalf("Stale() = %v, want empty", stale)
	}
}
