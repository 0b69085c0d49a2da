package binding

import "fmt"

// EventKind identifies one of the event shapes the bridge delivers to the host.
type EventKind int

// Event kinds. The first six are lifecycle events with one dispatch target
// each, resolved once at startup; topic messages are dispatched to the
// target registered for their (client, filter) pair.
const (
	EventConnect EventKind = iota
	EventPublish
	EventSubscribe
	EventUnsubscribe
	EventNetwork
	EventPersist
	EventMessage

	numEvents
)

// numLifecycleEvents is the number of kinds with a statically resolved target.
const numLifecycleEvents = int(EventMessage)

var eventNames = [numEvents]string{
	EventConnect:     "connect-result",
	EventPublish:     "publish-result",
	EventSubscribe:   "subscribe-result",
	EventUnsubscribe: "unsubscribe-result",
	EventNetwork:     "network-error",
	EventPersist:     "persistence-error",
	EventMessage:     "topic-message",
}

// String returns the event's wire-independent name, e.g. "publish-result".
func (k EventKind) String() string {
	if k >= 0 && k < numEvents {
		return eventNames[k]
	}
	return fmt.Sprintf("EventKind(%d)", int(k))
}

// Value is a host-native representation produced by an Env, or a plain Go
// int for numeric arguments. A nil Value is the host's null.
type Value any

// Target is a host dispatch target: a resolved lifecycle callback or a
// topic handler reference supplied through Handle. Its concrete type is
// private to the Runtime that produced or accepts it.
type Target any

// Env is the host execution context attached to the calling thread.
//
// Argument layouts passed to Invoke, after the target:
//
//	connect-result      id, code, err
//	publish-result      id, topic, err
//	subscribe-result    id, topic, qos, err
//	unsubscribe-result  id, topic, err
//	network-error       id, err
//	persistence-error   id, err
//	topic-message       id, topic, qos, payload
//
// id, code and qos are Go ints; topic and err are NewString results (err is
// nil on success); payload is a NewBytes result.
type Env interface {
	// NewString converts s into a host string.
	NewString(s string) Value

	// NewBytes copies b into a host-owned byte buffer of exactly len(b).
	// The host must not retain b itself.
	NewBytes(b []byte) Value

	// Invoke calls target synchronously with the marshaled arguments.
	// A host whose targets can be filled in later returns ErrTargetUnset
	// for a target that is still empty.
	Invoke(target Target, args ...Value) error
}

// Runtime is the process-wide host attachment point.
type Runtime interface {
	// AttachCurrentThread returns the Env bound to the calling thread,
	// attaching the thread on first use. Attachments are never torn down
	// by the bridge; the host reclaims them when the thread exits.
	AttachCurrentThread() (Env, error)

	// Resolve returns the dispatch target for a lifecycle event kind.
	// It is called once per kind before any client exists. The target may
	// be a slot the host fills later; see ErrTargetUnset.
	Resolve(kind EventKind) (Target, error)
}
