package main

import (
	"errors"
	"fmt"
	"sync"
	"unsafe"

	"github.com/skyformat99/libmqtt-3/internal/binding"
)

var errUnresolved = errors.New("libmqtt: no lifecycle slot")

// handlerTable holds the C lifecycle handlers by event kind. Slots are read
// on every dispatch, so a handler may be set, replaced or cleared at any
// time, before or after Libmqtt_init.
type handlerTable struct {
	mu    sync.RWMutex
	slots [binding.EventMessage]unsafe.Pointer
}

func validSlot(kind binding.EventKind) bool {
	return kind >= 0 && kind < binding.EventMessage
}

// set stores fn for kind. A nil fn clears the slot.
func (t *handlerTable) set(kind binding.EventKind, fn unsafe.Pointer) error {
	if !validSlot(kind) {
		return fmt.Errorf("%w: %s", errUnresolved, kind)
	}
	t.mu.Lock()
	t.slots[kind] = fn
	t.mu.Unlock()
	return nil
}

func (t *handlerTable) get(kind binding.EventKind) unsafe.Pointer {
	if !validSlot(kind) {
		return nil
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.slots[kind]
}

// target returns the binding target for kind's slot. It resolves even
// while the slot is empty.
func (t *handlerTable) target(kind binding.EventKind) (binding.Target, error) {
	if !validSlot(kind) {
		return nil, fmt.Errorf("%w: %s", errUnresolved, kind)
	}
	return &slotTarget{kind: kind, table: t}, nil
}

// slotTarget is a lifecycle target whose function pointer is looked up at
// call time.
type slotTarget struct {
	kind  binding.EventKind
	table *handlerTable
}

// fn returns the current handler, or binding.ErrTargetUnset.
func (s *slotTarget) fn() (unsafe.Pointer, error) {
	fn := s.table.get(s.kind)
	if fn == nil {
		return nil, fmt.Errorf("%w: %s", binding.ErrTargetUnset, s.kind)
	}
	return fn, nil
}

// payloadLen is the number of bytes to copy from a C payload. A NULL
// pointer or a negative size is an empty payload.
func payloadLen(p unsafe.Pointer, n int) int {
	if p == nil || n < 0 {
		return 0
	}
	return n
}
