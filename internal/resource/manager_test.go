package resource

import (
	"errors"
	"testing"
)

func TestAllocateNeverReturnsZeroOrDuplicate(t *testing.T) {
	m := NewManager()
	seen := make(map[uint32]bool)
	for i := 0; i < 1000; i++ {
		id := m.Allocate()
		if id == 0 {
			t.Fatal("Allocate returned 0")
		}
		if seen[id] {
			t.Fatalf("Allocate returned %d twice", id)
		}
		seen[id] = true
	}
}

func TestAllocateSkipsRetiredIDs(t *testing.T) {
	m := NewManager()
	id := m.Allocate()
	if err := m.Register(id, 1, 64, 64); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := m.MarkDestroyed(id); err != nil {
		t.Fatalf("MarkDestroyed: %v", err)
	}
	for i := 0; i < 100; i++ {
		if got := m.Allocate(); got == id {
			t.Fatalf("retired id %d handed out again", id)
		}
	}
}

func TestLifecycleHappyPath(t *testing.T) {
	m := NewManager()
	id := m.Allocate()

	if err := m.Register(id, 1, 1280, 800); err != nil {
		t.Fatalf("Register: %v", err)
	}
	r, ok := m.Lookup(id)
	if !ok || r.State != Created {
		t.Fatalf("state = %v, want Created", r.State)
	}

	if err := m.MarkBacked(id, nil); err != nil {
		t.Fatalf("MarkBacked: %v", err)
	}
	if r, _ := m.Lookup(id); r.State != Backed {
		t.Fatalf("state = %v, want Backed", r.State)
	}

	if err := m.MarkScannedOut(id, 0); err != nil {
		t.Fatalf("MarkScannedOut: %v", err)
	}
	r, _ = m.Lookup(id)
	if r.State != ScannedOut || r.Scanout != 0 {
		t.Fatalf("state = %v scanout = %d, want ScannedOut on 0", r.State, r.Scanout)
	}
	if got, ok := m.OnScanout(0); !ok || got != id {
		t.Errorf("OnScanout(0) = %d, want %d", got, id)
	}

	if err := m.MarkDestroyed(id); err != nil {
		t.Fatalf("MarkDestroyed: %v", err)
	}
	if _, ok := m.Lookup(id); ok {
		t.Error("destroyed resource still tracked")
	}
	if _, ok := m.OnScanout(0); ok {
		t.Error("scanout binding survived destroy")
	}
}

func TestBackingBeforeCreateRejected(t *testing.T) {
	m := NewManager()
	err := m.MarkBacked(42, nil)
	var se *StateError
	if !errors.As(err, &se) {
		t.Fatalf("err = %v, want StateError", err)
	}
	if !se.Unknown {
		t.Error("StateError did not flag unknown id")
	}
}

func TestScanoutBeforeBackedRejected(t *testing.T) {
	m := NewManager()
	id := m.Allocate()
	if err := m.Register(id, 1, 64, 64); err != nil {
		t.Fatalf("Register: %v", err)
	}
	err := m.MarkScannedOut(id, 0)
	var se *StateError
	if !errors.As(err, &se) {
		t.Fatalf("err = %v, want StateError", err)
	}
	if se.Have != Created || se.Want != Backed {
		t.Errorf("have %v want %v, expected Created/Backed", se.Have, se.Want)
	}
}

func TestDoubleBackingRejected(t *testing.T) {
	m := NewManager()
	id := m.Allocate()
	m.Register(id, 1, 64, 64)
	if err := m.MarkBacked(id, nil); err != nil {
		t.Fatalf("MarkBacked: %v", err)
	}
	if err := m.MarkBacked(id, nil); err == nil {
		t.Error("second MarkBacked succeeded")
	}
}

func TestDetachReturnsToCreated(t *testing.T) {
	m := NewManager()
	id := m.Allocate()
	m.Register(id, 1, 64, 64)
	m.MarkBacked(id, nil)

	if err := m.MarkDetached(id); err != nil {
		t.Fatalf("MarkDetached: %v", err)
	}
	r, _ := m.Lookup(id)
	if r.State != Created {
		t.Errorf("state = %v, want Created", r.State)
	}

	// Re-attach works after detach.
	if err := m.MarkBacked(id, nil); err != nil {
		t.Errorf("re-attach: %v", err)
	}
}

func TestDetachWhileScannedOutRejected(t *testing.T) {
	m := NewManager()
	id := m.Allocate()
	m.Register(id, 1, 64, 64)
	m.MarkBacked(id, nil)
	m.MarkScannedOut(id, 0)

	if err := m.MarkDetached(id); err == nil {
		t.Error("detach of scanned-out resource succeeded")
	}
}

func TestScanoutEviction(t *testing.T) {
	m := NewManager()
	a := m.Allocate()
	b := m.Allocate()
	for _, id := range []uint32{a, b} {
		m.Register(id, 1, 64, 64)
		m.MarkBacked(id, nil)
	}

	if err := m.MarkScannedOut(a, 0); err != nil {
		t.Fatalf("MarkScannedOut(a): %v", err)
	}
	if err := m.MarkScannedOut(b, 0); err != nil {
		t.Fatalf("MarkScannedOut(b): %v", err)
	}

	ra, _ := m.Lookup(a)
	if ra.State != Backed {
		t.Errorf("evicted resource state = %v, want Backed", ra.State)
	}
	rb, _ := m.Lookup(b)
	if rb.State != ScannedOut {
		t.Errorf("new holder state = %v, want ScannedOut", rb.State)
	}
	if got, _ := m.OnScanout(0); got != b {
		t.Errorf("OnScanout(0) = %d, want %d", got, b)
	}
}

func TestRebindSameResourceKeepsScannedOut(t *testing.T) {
	m := NewManager()
	id := m.Allocate()
	m.Register(id, 1, 64, 64)
	m.MarkBacked(id, nil)
	m.MarkScannedOut(id, 0)

	// Re-binding the same resource to another scanout is allowed.
	if err := m.MarkScannedOut(id, 1); err != nil {
		t.Fatalf("rebind: %v", err)
	}
	r, _ := m.Lookup(id)
	if r.Scanout != 1 {
		t.Errorf("scanout = %d, want 1", r.Scanout)
	}
}

func TestRequireAtLeast(t *testing.T) {
	m := NewManager()
	id := m.Allocate()
	m.Register(id, 1, 64, 64)
	m.MarkBacked(id, nil)

	if err := m.RequireAtLeast(id, "op", Created); err != nil {
		t.Errorf("RequireAtLeast(Created) on Backed: %v", err)
	}
	if err := m.RequireAtLeast(id, "op", Backed); err != nil {
		t.Errorf("RequireAtLeast(Backed) on Backed: %v", err)
	}
	if err := m.RequireAtLeast(id, "op", ScannedOut); err == nil {
		t.Error("RequireAtLeast(ScannedOut) on Backed succeeded")
	}
}

func TestRegisterDuplicateRejected(t *testing.T) {
	m := NewManager()
	id := m.Allocate()
	if err := m.Register(id, 1, 64, 64); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := m.Register(id, 1, 64, 64); err == nil {
		t.Error("duplicate Register succeeded")
	}
}

func TestStateString(t *testing.T) {
	cases := map[State]string{
		Created:    "created",
		Backed:     "backed",
		ScannedOut: "scanned-out",
		Destroyed:  "destroyed",
	}
	for s, want := range cases {
		if got := s.String(); got != want {
			t.Errorf("%d.String() = %q, want %q", s, got, want)
		}
	}
}
