package binding

import (
	"sync"
	"sync/atomic"

	"github.com/skyformat99/libmqtt-3/internal/engine"
	"github.com/skyformat99/libmqtt-3/internal/infrastructure/config"
	"github.com/skyformat99/libmqtt-3/internal/infrastructure/logging"
)

// ClientID is the host-visible handle of one client. Valid IDs are >= 1.
type ClientID int

// InvalidClient is returned when no client could be allocated.
const InvalidClient ClientID = -1

type entryState int32

const (
	stateDraft entryState = iota
	stateReady
	stateFailed
	stateDestroyed
)

func (s entryState) String() string {
	switch s {
	case stateDraft:
		return "draft"
	case stateReady:
		return "ready"
	case stateFailed:
		return "failed"
	case stateDestroyed:
		return "destroyed"
	default:
		return "unknown"
	}
}

// entry is the registry's record of one client.
//
// mu guards cfg, client and state transitions. state is also readable
// without mu so engine goroutines can check liveness cheaply. waitMu is
// held for the whole of a Wait call and nothing else.
type entry struct {
	id ClientID

	mu     sync.Mutex
	cfg    config.ClientConfig
	client engine.Client
	log    *logging.Logger
	state  atomic.Int32

	waitMu sync.Mutex
}

func (e *entry) current() entryState { return entryState(e.state.Load()) }

func (e *entry) set(s entryState) { e.state.Store(int32(s)) }

// live reports whether events of this entry should still reach the host.
func (e *entry) live() bool { return e.current() == stateReady }

// Registry owns every client entry, keyed by ClientID.
//
// An ID stays allocated until its client's engine handle has been destroyed,
// so a new client never shares an ID with one still shutting down.
type Registry struct {
	mu      sync.RWMutex
	entries map[ClientID]*entry
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[ClientID]*entry)}
}

// allocate creates a draft entry under the lowest free ID.
func (r *Registry) allocate() *entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := ClientID(1)
	for {
		if _, taken := r.entries[id]; !taken {
			break
		}
		id++
	}
	e := &entry{id: id}
	r.entries[id] = e
	return e
}

func (r *Registry) lookup(id ClientID) (*entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[id]
	return e, ok
}

// release frees id if it still names e.
func (r *Registry) release(e *entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.entries[e.id] == e {
		delete(r.entries, e.id)
	}
}

// Len returns the number of allocated IDs.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
