package host

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/skyformat99/libmqtt-3/internal/binding"
)

var (
	// ErrUnresolved is returned by Resolve for kinds with no handler.
	ErrUnresolved = errors.New("host: no handler registered")

	// ErrClosed is returned by AttachCurrentThread after Close.
	ErrClosed = errors.New("host: runtime closed")

	// ErrBadTarget means Invoke was given a target this runtime did not make.
	ErrBadTarget = errors.New("host: unknown target")

	// ErrBadArguments means the marshaled arguments do not fit the event.
	ErrBadArguments = errors.New("host: bad arguments")
)

// String and Bytes are the host-native values produced by the Env.
type (
	String string
	Bytes  []byte
)

// Handler receives decoded events.
type Handler func(Event)

// target is the only Target type this runtime accepts.
type target struct {
	kind binding.EventKind
	fn   Handler
}

// Topic wraps fn as a topic-message target for binding.Handle.
func Topic(fn Handler) binding.Target {
	return &target{kind: binding.EventMessage, fn: fn}
}

// Runtime is an in-process Go host for the bridge.
//
// Lifecycle handlers are registered with On before the runtime is handed to
// binding.New, which resolves them once.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Runtime struct {
	mu       sync.RWMutex
	handlers map[binding.EventKind]Handler

	attached atomic.Int64
	closed   atomic.Bool
}

// New returns a runtime with no handlers.
func New() *Runtime {
	return &Runtime{handlers: make(map[binding.EventKind]Handler)}
}

// On registers fn for a lifecycle event kind, replacing any previous one.
// Registrations after the bridge has resolved its targets have no effect.
func (r *Runtime) On(kind binding.EventKind, fn Handler) *Runtime {
	r.mu.Lock()
	r.handlers[kind] = fn
	r.mu.Unlock()
	return r
}

// OnAll registers fn for every lifecycle event kind.
func (r *Runtime) OnAll(fn Handler) *Runtime {
	for kind := binding.EventConnect; kind < binding.EventMessage; kind++ {
		r.On(kind, fn)
	}
	return r
}

// Resolve implements binding.Runtime.
func (r *Runtime) Resolve(kind binding.EventKind) (binding.Target, error) {
	r.mu.RLock()
	fn, ok := r.handlers[kind]
	r.mu.RUnlock()
	if !ok || fn == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnresolved, kind)
	}
	return &target{kind: kind, fn: fn}, nil
}

// AttachCurrentThread implements binding.Runtime. Goroutines need no
// per-thread setup, so every call shares one stateless Env.
func (r *Runtime) AttachCurrentThread() (binding.Env, error) {
	if r.closed.Load() {
		return nil, ErrClosed
	}
	r.attached.Add(1)
	return env{}, nil
}

// Attaches returns how many times a dispatch attached to the runtime.
func (r *Runtime) Attaches() int64 {
	return r.attached.Load()
}

// Close refuses further attachment; later events are dropped by the bridge.
func (r *Runtime) Close() {
	r.closed.Store(true)
}

type env struct{}

// NewString implements binding.Env.
func (env) NewString(s string) binding.Value {
	return String(s)
}

// NewBytes implements binding.Env. The copy is never nil.
func (env) NewBytes(b []byte) binding.Value {
	return Bytes(append(make([]byte, 0, len(b)), b...))
}

// Invoke implements binding.Env.
func (env) Invoke(t binding.Target, args ...binding.Value) error {
	tg, ok := t.(*target)
	if !ok || tg.fn == nil {
		return fmt.Errorf("%w: %T", ErrBadTarget, t)
	}
	ev, err := decode(tg.kind, args)
	if err != nil {
		return err
	}
	tg.fn(ev)
	return nil
}
