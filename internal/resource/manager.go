// Package resource tracks the lifecycle of host-side GPU resources.
// The device holds the authoritative state; this manager mirrors it so
// the driver can reject requests the device is guaranteed to refuse
// before wasting a queue round trip.
package resource

import (
	"fmt"
	"sync"

	"github.com/calder-f/go-virtgpu/internal/dma"
)

// State is a resource's position in its lifecycle. Transitions are
// monotonic for a live id: Created → Backed → ScannedOut, with
// Destroyed terminal from any state. A failed transition leaves the
// recorded state unchanged.
type State int

const (
	// Created: RESOURCE_CREATE_2D succeeded, no backing yet.
	Created State = iota
	// Backed: RESOURCE_ATTACH_BACKING succeeded.
	Backed
	// ScannedOut: the resource currently drives a scanout.
	ScannedOut
	// Destroyed: RESOURCE_UNREF succeeded; the id is never reused.
	Destroyed
)

func (s State) String() string {
	switch s {
	case Created:
		return "created"
	case Backed:
		return "backed"
	case ScannedOut:
		return "scanned-out"
	case Destroyed:
		return "destroyed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// StateError reports an operation attempted against a resource in the
// wrong lifecycle state, or against an unknown id.
type StateError struct {
	ID   uint32
	Op   string
	Have State
	Want State
	// Unknown is set when the id has no record at all.
	Unknown bool
}

func (e *StateError) Error() string {
	if e.Unknown {
		return fmt.Sprintf("resource %d: %s: id not tracked", e.ID, e.Op)
	}
	return fmt.Sprintf("resource %d: %s requires state %s, have %s", e.ID, e.Op, e.Want, e.Have)
}

// Resource is one tracked host-side surface.
type Resource struct {
	ID      uint32
	Format  uint32
	Width   uint32
	Height  uint32
	State   State
	Scanout uint32 // valid when State == ScannedOut
	Backing *dma.Region
}

// Manager owns the resource table and the id allocator. Its lock is
// independent of the queue locks and is always acquired after them,
// never around a queue round trip.
type Manager struct {
	mu      sync.Mutex
	res     map[uint32]*Resource
	byScan  map[uint32]uint32 // scanout index → resource id
	nextID  uint32
	retired map[uint32]bool
}

// NewManager returns an empty resource table.
func NewManager() *Manager {
	return &Manager{
		res:     make(map[uint32]*Resource),
		byScan:  make(map[uint32]uint32),
		retired: make(map[uint32]bool),
	}
}

// Allocate hands out the next free resource id. Ids are never reused,
// including after Destroy, so a stale id can't alias a new surface.
// Id 0 is the protocol's "no resource" sentinel and is never returned.
func (m *Manager) Allocate() uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	for {
		m.nextID++
		if m.nextID == 0 {
			panic("resource: id space exhausted")
		}
		if _, live := m.res[m.nextID]; !live && !m.retired[m.nextID] {
			return m.nextID
		}
	}
}

// Register records a resource in Created state after the device
// acknowledged RESOURCE_CREATE_2D. Registering a live or retired id
// fails: reusing an id for two live resources is undefined at the
// protocol level.
func (m *Manager) Register(id, format, width, height uint32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.res[id]; ok {
		return fmt.Errorf("resource %d: already live", id)
	}
	if m.retired[id] {
		return fmt.Errorf("resource %d: id retired", id)
	}
	m.res[id] = &Resource{
		ID:     id,
		Format: format,
		Width:  width,
		Height: height,
		State:  Created,
	}
	return nil
}

// Lookup returns a copy of the record for id.
func (m *Manager) Lookup(id uint32) (Resource, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.res[id]
	if !ok {
		return Resource{}, false
	}
	return *r, true
}

// Require checks that id is tracked and in exactly the wanted state.
func (m *Manager) Require(id uint32, op string, want State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.requireLocked(id, op, want)
}

// RequireAtLeast checks that id is tracked and has progressed to at
// least the wanted state (and is not destroyed).
func (m *Manager) RequireAtLeast(id uint32, op string, want State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.res[id]
	if !ok {
		return &StateError{ID: id, Op: op, Unknown: true}
	}
	if r.State == Destroyed || r.State < want {
		return &StateError{ID: id, Op: op, Have: r.State, Want: want}
	}
	return nil
}

func (m *Manager) requireLocked(id uint32, op string, want State) error {
	r, ok := m.res[id]
	if !ok {
		return &StateError{ID: id, Op: op, Unknown: true}
	}
	if r.State != want {
		return &StateError{ID: id, Op: op, Have: r.State, Want: want}
	}
	return nil
}

// MarkBacked moves a Created resource to Backed and records its
// backing region.
func (m *Manager) MarkBacked(id uint32, backing *dma.Region) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.requireLocked(id, "attach-backing", Created); err != nil {
		return err
	}
	r := m.res[id]
	r.State = Backed
	r.Backing = backing
	return nil
}

// MarkDetached drops a Backed resource back to Created after
// RESOURCE_DETACH_BACKING succeeded. A scanned-out resource cannot
// detach; the scanout must be rebound first.
func (m *Manager) MarkDetached(id uint32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.requireLocked(id, "detach-backing", Backed); err != nil {
		return err
	}
	r := m.res[id]
	r.State = Created
	r.Backing = nil
	return nil
}

// MarkScannedOut binds a Backed resource to a scanout. The previous
// holder of that scanout, if any, drops back to Backed: the device has
// implicitly stopped presenting it.
func (m *Manager) MarkScannedOut(id, scanout uint32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.res[id]
	if !ok {
		return &StateError{ID: id, Op: "set-scanout", Unknown: true}
	}
	if r.State != Backed && r.State != ScannedOut {
		return &StateError{ID: id, Op: "set-scanout", Have: r.State, Want: Backed}
	}
	if prev, ok := m.byScan[scanout]; ok && prev != id {
		if pr, ok := m.res[prev]; ok && pr.State == ScannedOut {
			pr.State = Backed
		}
	}
	r.State = ScannedOut
	r.Scanout = scanout
	m.byScan[scanout] = id
	return nil
}

// MarkDestroyed retires an id after RESOURCE_UNREF succeeded. The
// record is dropped and the id is never handed out again.
func (m *Manager) MarkDestroyed(id uint32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.res[id]
	if !ok {
		return &StateError{ID: id, Op: "unref", Unknown: true}
	}
	if r.State == ScannedOut {
		delete(m.byScan, r.Scanout)
	}
	delete(m.res, id)
	m.retired[id] = true
	return nil
}

// OnScanout returns the id of the resource driving a scanout.
func (m *Manager) OnScanout(scanout uint32) (uint32, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.byScan[scanout]
	return id, ok
}

// Live returns the number of tracked, non-destroyed resources.
func (m *Manager) Live() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.res)
}
