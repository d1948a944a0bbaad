package registry

import (
	"sync"
	"testing"
)

type handle struct{ n int }

func TestPutIfAbsent(t *testing.T) {
	r := New[*handle]()
	h1 := &handle{1}
	h2 := &handle{2}

	got, stored := r.PutIfAbsent("s1", h1)
	if !stored || got != h1 {
		t.Fatal("first PutIfAbsent should store")
	}

	got, stored = r.PutIfAbsent("s1", h2)
	if stored {
		t.Error("second PutIfAbsent should not store")
	}
	if got != h1 {
		t.Error("second PutIfAbsent should return the existing handle")
	}
	if r.Len() != 1 {
		t.Errorf("Len = %d, want 1", r.Len())
	}
}

func TestReplaceReturnsPrior(t *testing.T) {
	r := New[*handle]()
	h1 := &handle{1}
	h2 := &handle{2}

	if prior, had := r.Replace("s1", h1); had {
		t.Errorf("unexpected prior %v", prior)
	}
	prior, had := r.Replace("s1", h2)
	if !had || prior != h1 {
		t.Error("Replace should return the superseded handle")
	}
	if !r.IsCurrent("s1", h2) {
		t.Error("h2 should be current after Replace")
	}
}

// TestRemoveOnlyCurrent pins the guard the reconnect timer relies on: a
// handle that was superseded while the timer was pending cannot evict its
// replacement.
func TestRemoveOnlyCurrent(t *testing.T) {
	r := New[*handle]()
	h1 := &handle{1}
	h2 := &handle{2}

	r.PutIfAbsent("s1", h1)
	r.Replace("s1", h2)

	if r.Remove("s1", h1) {
		t.Error("Remove of a superseded handle should fail")
	}
	if !r.IsCurrent("s1", h2) {
		t.Error("replacement must survive the stale Remove")
	}
	if !r.Remove("s1", h2) {
		t.Error("Remove of the current handle should succeed")
	}
	if r.Len() != 0 {
		t.Errorf("Len = %d, want 0", r.Len())
	}
}

// TestRemoveIf pins the combined guard: removal happens only when the
// handle is current AND the predicate holds, as one step. The reconnect
// timer's stand-down depends on both checks being inseparable.
func TestRemoveIf(t *testing.T) {
	r := New[*handle]()
	h1 := &handle{1}
	h2 := &handle{2}
	r.PutIfAbsent("s1", h1)

	if r.RemoveIf("s1", h1, func() bool { return false }) {
		t.Error("RemoveIf with a false predicate should not remove")
	}
	if !r.IsCurrent("s1", h1) {
		t.Error("handle must survive a false predicate")
	}

	r.Replace("s1", h2)
	predCalled := false
	if r.RemoveIf("s1", h1, func() bool { predCalled = true; return true }) {
		t.Error("RemoveIf with a stale handle should not remove")
	}
	if predCalled {
		t.Error("predicate must not run for a stale handle")
	}

	if !r.RemoveIf("s1", h2, func() bool { return true }) {
		t.Error("RemoveIf of the current handle with a true predicate should remove")
	}
	if r.Len() != 0 {
		t.Errorf("Len = %d, want 0", r.Len())
	}
}

func TestUpdateIfCurrent(t *testing.T) {
	r := New[*handle]()
	h1 := &handle{1}
	h2 := &handle{2}
	r.PutIfAbsent("s1", h1)

	ran := false
	if !r.UpdateIfCurrent("s1", h1, func() { ran = true }) {
		t.Error("UpdateIfCurrent should run for the current handle")
	}
	if !ran {
		t.Error("fn did not run")
	}

	r.Replace("s1", h2)
	if r.UpdateIfCurrent("s1", h1, func() { t.Error("fn ran for a stale handle") }) {
		t.Error("UpdateIfCurrent should report false for a stale handle")
	}
}

func TestConcurrentPutIfAbsent(t *testing.T) {
	r := New[*handle]()

	const n = 64
	var wg sync.WaitGroup
	stored := make([]bool, n)
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, ok := r.PutIfAbsent("s1", &handle{i})
			stored[i] = ok
		}()
	}
	wg.Wait()

	wins := 0
	for _, ok := range stored {
		if ok {
			wins++
		}
	}
	if wins != 1 {
		t.Errorf("%d goroutines stored a handle, want exactly 1", wins)
	}
	if r.Len() != 1 {
		t.Errorf("Len = %d, want 1", r.Len())
	}
}

func TestIDs(t *testing.T) {
	r := New[*handle]()
	r.PutIfAbsent("a", &handle{})
	r.PutIfAbsent("b", &handle{})

	ids := r.IDs()
	if len(ids) != 2 {
		t.Fatalf("got %d ids, want 2", len(ids))
	}
}
