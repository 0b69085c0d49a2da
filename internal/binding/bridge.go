package binding

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/skyformat99/libmqtt-3/internal/infrastructure/logging"
)

// DropReason explains why an event never reached the host.
type DropReason string

// Reasons reported to Observers for dropped events.
const (
	DropNoEnv        DropReason = "no-env"
	DropNoTarget     DropReason = "no-target"
	DropClientGone   DropReason = "client-gone"
	DropInvokeFailed DropReason = "invoke-failed"
)

// Observer is notified of every event the bridge handles.
// Implementations must be safe for concurrent use and must not block.
type Observer interface {
	EventDispatched(kind EventKind, id ClientID)
	EventDropped(kind EventKind, id ClientID, reason DropReason)
}

// Bridge marshals engine events into host values and invokes host targets.
//
// Lifecycle targets are resolved once by NewBridge and never change. Every
// dispatch attaches the calling thread first, so events may arrive from any
// engine goroutine.
type Bridge struct {
	rt        Runtime
	targets   [numLifecycleEvents]Target
	log       *logging.Logger
	observers []Observer
}

// NewBridge resolves the lifecycle targets of rt.
// A kind that fails to resolve is logged and its events are dropped.
func NewBridge(rt Runtime, log *logging.Logger, observers ...Observer) (*Bridge, error) {
	if rt == nil {
		return nil, ErrNilRuntime
	}
	if log == nil {
		log = logging.Nop()
	}

	b := &Bridge{
		rt:        rt,
		log:       log,
		observers: observers,
	}
	for kind := EventKind(0); int(kind) < numLifecycleEvents; kind++ {
		target, err := rt.Resolve(kind)
		if err != nil {
			log.Warn("host target unresolved, events will be dropped",
				"event", kind.String(),
				"error", err,
			)
			continue
		}
		b.targets[kind] = target
	}
	return b, nil
}

// Resolved reports whether kind has a dispatch target.
func (b *Bridge) Resolved(kind EventKind) bool {
	if kind < 0 || int(kind) >= numLifecycleEvents {
		return false
	}
	return b.targets[kind] != nil
}

// ConnectResult delivers a connect-result event.
func (b *Bridge) ConnectResult(id ClientID, code byte, err error) {
	b.dispatch(EventConnect, id, b.targets[EventConnect], func(env Env) []Value {
		return []Value{int(id), int(code), errValue(env, err)}
	})
}

// PublishResult delivers a publish-result event.
func (b *Bridge) PublishResult(id ClientID, topic string, err error) {
	b.dispatch(EventPublish, id, b.targets[EventPublish], func(env Env) []Value {
		return []Value{int(id), env.NewString(topic), errValue(env, err)}
	})
}

// SubscribeResult delivers a subscribe-result event.
func (b *Bridge) SubscribeResult(id ClientID, topic string, qos byte, err error) {
	b.dispatch(EventSubscribe, id, b.targets[EventSubscribe], func(env Env) []Value {
		return []Value{int(id), env.NewString(topic), int(qos), errValue(env, err)}
	})
}

// UnsubscribeResult delivers an unsubscribe-result event.
func (b *Bridge) UnsubscribeResult(id ClientID, topic string, err error) {
	b.dispatch(EventUnsubscribe, id, b.targets[EventUnsubscribe], func(env Env) []Value {
		return []Value{int(id), env.NewString(topic), errValue(env, err)}
	})
}

// NetworkError delivers a network-error event.
func (b *Bridge) NetworkError(id ClientID, err error) {
	b.dispatch(EventNetwork, id, b.targets[EventNetwork], func(env Env) []Value {
		return []Value{int(id), errValue(env, err)}
	})
}

// PersistError delivers a persistence-error event.
func (b *Bridge) PersistError(id ClientID, err error) {
	b.dispatch(EventPersist, id, b.targets[EventPersist], func(env Env) []Value {
		return []Value{int(id), errValue(env, err)}
	})
}

// Message delivers an inbound message to target. payload is copied into a
// host buffer before the call; the engine may reuse it afterwards.
func (b *Bridge) Message(id ClientID, target Target, topic string, qos byte, payload []byte) {
	b.dispatch(EventMessage, id, target, func(env Env) []Value {
		return []Value{int(id), env.NewString(topic), int(qos), env.NewBytes(payload[:len(payload):len(payload)])}
	})
}

// Dropped records an event discarded before it reached the bridge.
func (b *Bridge) Dropped(kind EventKind, id ClientID, reason DropReason) {
	b.drop(kind, id, reason)
}

func (b *Bridge) dispatch(kind EventKind, id ClientID, target Target, marshal func(Env) []Value) {
	env, err := b.rt.AttachCurrentThread()
	if err != nil {
		b.log.Warn("host attach failed", "event", kind.String(), "client", int(id), "error", err)
		b.drop(kind, id, DropNoEnv)
		return
	}
	if env == nil {
		b.drop(kind, id, DropNoEnv)
		return
	}
	if target == nil {
		b.drop(kind, id, DropNoTarget)
		return
	}

	if err := b.invoke(env, target, marshal); err != nil {
		if errors.Is(err, ErrTargetUnset) {
			b.drop(kind, id, DropNoTarget)
			return
		}
		b.log.Error("host callback failed",
			"event", kind.String(),
			"client", int(id),
			"error", err,
		)
		b.drop(kind, id, DropInvokeFailed)
		return
	}
	for _, o := range b.observers {
		o.EventDispatched(kind, id)
	}
}

// invoke runs the host call, converting a panic into an error so it never
// unwinds into engine goroutines.
func (b *Bridge) invoke(env Env, target Target, marshal func(Env) []Value) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in host callback: %v", r)
		}
	}()
	return env.Invoke(target, marshal(env)...)
}

func (b *Bridge) drop(kind EventKind, id ClientID, reason DropReason) {
	b.log.Debug("event dropped", "event", kind.String(), "client", int(id), "reason", string(reason))
	for _, o := range b.observers {
		o.EventDropped(kind, id, reason)
	}
}

// errValue marshals err as a host string, or the host's null when err is nil.
func errValue(env Env, err error) Value {
	if err == nil {
		return nil
	}
	return env.NewString(err.Error())
}

// Stats is an Observer that counts events per kind.
type Stats struct {
	dispatched [numEvents]atomic.Uint64
	dropped    [numEvents]atomic.Uint64
}

// EventDispatched implements Observer.
func (s *Stats) EventDispatched(kind EventKind, _ ClientID) {
	if kind >= 0 && kind < numEvents {
		s.dispatched[kind].Add(1)
	}
}

// EventDropped implements Observer.
func (s *Stats) EventDropped(kind EventKind, _ ClientID, _ DropReason) {
	if kind >= 0 && kind < numEvents {
		s.dropped[kind].Add(1)
	}
}

// Dispatched returns the number of kind events delivered to the host.
func (s *Stats) Dispatched(kind EventKind) uint64 {
	if kind < 0 || kind >= numEvents {
		return 0
	}
	return s.dispatched[kind].Load()
}

// Dropped returns the number of kind events discarded.
func (s *Stats) Dropped(kind EventKind) uint64 {
	if kind < 0 || kind >= numEvents {
		return 0
	}
	return s.dropped[kind].Load()
}
