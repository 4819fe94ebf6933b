// Package subscription tracks the live listeners one client holds, keyed by
// slot, so re-targeting a view never leaks the previous listener.
package subscription

import (
	"sync"

	"rostrum/api/internal/docstore"
)

// Slot names one listener position a client can hold. A client holds at most
// one listener per slot.
type Slot string

const (
	SlotCommittee Slot = "committee"
	SlotBlocList  Slot = "blocList"
	SlotBloc      Slot = "bloc"
	SlotComments  Slot = "comments"
)

// Manager owns a set of slotted subscriptions. All methods are safe for
// concurrent use.
type Manager struct {
	mu      sync.Mutex
	cancels map[Slot]docstore.CancelFunc
	closed  bool
}

func NewManager() *Manager {
	return &Manager{cancels: make(map[Slot]docstore.CancelFunc)}
}

// Replace installs cancel in the slot, tearing down the previous occupant
// first. The teardown-before-replace order guarantees no interval where two
// listeners for the same slot are live. If the manager is already closed the
// new subscription is cancelled immediately.
func (m *Manager) Replace(slot Slot, cancel docstore.CancelFunc) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		cancel()
		return
	}
	previous := m.cancels[slot]
	m.cancels[slot] = cancel
	m.mu.Unlock()

	if previous != nil {
		previous()
	}
}

// Cancel tears down the slot's listener. Cancelling an empty slot is a no-op.
func (m *Manager) Cancel(slot Slot) {
	m.mu.Lock()
	cancel := m.cancels[slot]
	delete(m.cancels, slot)
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}

// CancelAll tears down every listener and marks the manager closed. Further
// Replace calls cancel their argument immediately.
func (m *Manager) CancelAll() {
	m.mu.Lock()
	cancels := m.cancels
	m.cancels = make(map[Slot]docstore.CancelFunc)
	m.closed = true
	m.mu.Unlock()

	for _, cancel := range cancels {
		cancel()
	}
}

// Active reports whether the slot currently holds a listener.
func (m *Manager) Active(slot Slot) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.cancels[slot]
	return ok
}
