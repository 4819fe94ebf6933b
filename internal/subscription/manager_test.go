package subscription

import (
	"sync"
	"sync/atomic"
	"testing"
)

func TestReplaceTearsDownPrevious(t *testing.T) {
	m := NewManager()

	var firstCancelled atomic.Bool
	m.Replace(SlotBloc, func() { firstCancelled.Store(true) })
	if firstCancelled.Load() {
		t.Fatal("listener cancelled on install")
	}

	var secondCancelled atomic.Bool
	m.Replace(SlotBloc, func() { secondCancelled.Store(true) })
	if !firstCancelled.Load() {
		t.Fatal("previous listener not torn down on replace")
	}
	if secondCancelled.Load() {
		t.Fatal("new listener cancelled on install")
	}
	if !m.Active(SlotBloc) {
		t.Fatal("slot should be active after replace")
	}
}

func TestSlotsAreIndependent(t *testing.T) {
	m := NewManager()

	var blocCancelled, commentsCancelled atomic.Bool
	m.Replace(SlotBloc, func() { blocCancelled.Store(true) })
	m.Replace(SlotComments, func() { commentsCancelled.Store(true) })

	m.Replace(SlotBloc, func() {})
	if !blocCancelled.Load() {
		t.Fatal("bloc listener not replaced")
	}
	if commentsCancelled.Load() {
		t.Fatal("comments listener torn down by unrelated replace")
	}
}

func TestCancelIdempotent(t *testing.T) {
	m := NewManager()

	var calls atomic.Int32
	m.Replace(SlotCommittee, func() { calls.Add(1) })

	m.Cancel(SlotCommittee)
	m.Cancel(SlotCommittee)
	m.Cancel(SlotBlocList)

	if got := calls.Load(); got != 1 {
		t.Fatalf("cancel invoked %d times, want 1", got)
	}
	if m.Active(SlotCommittee) {
		t.Fatal("slot still active after cancel")
	}
}

func TestCancelAllClosesManager(t *testing.T) {
	m := NewManager()

	var cancelled atomic.Int32
	m.Replace(SlotCommittee, func() { cancelled.Add(1) })
	m.Replace(SlotBlocList, func() { cancelled.Add(1) })
	m.Replace(SlotComments, func() { cancelled.Add(1) })

	m.CancelAll()
	if got := cancelled.Load(); got != 3 {
		t.Fatalf("cancelled %d listeners, want 3", got)
	}

	// After close, Replace cancels the newcomer immediately.
	var late atomic.Bool
	m.Replace(SlotBloc, func() { late.Store(true) })
	if !late.Load() {
		t.Fatal("listener installed after close was not cancelled")
	}
	if m.Active(SlotBloc) {
		t.Fatal("slot active after close")
	}
}

func TestConcurrentReplace(t *testing.T) {
	m := NewManager()

	const workers = 16
	var installed, cancelled atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			installed.Add(1)
			m.Replace(SlotBloc, func() { cancelled.Add(1) })
		}()
	}
	wg.Wait()

	// Exactly one listener survives, all others were torn down.
	if got := cancelled.Load(); got != workers-1 {
		t.Fatalf("cancelled %d listeners, want %d", got, workers-1)
	}
	m.CancelAll()
	if got := cancelled.Load(); got != workers {
		t.Fatalf("cancelled %d listeners after close, want %d", got, workers)
	}
}
