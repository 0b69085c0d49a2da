package host

import (
	"fmt"

	"github.com/skyformat99/libmqtt-3/internal/binding"
)

// Event is one decoded bridge dispatch.
type Event struct {
	Kind   binding.EventKind
	Client binding.ClientID

	// Code is the broker return code of a connect-result.
	Code int

	// Topic is set for publish, subscribe, unsubscribe and message events.
	Topic string

	// QoS is the granted QoS of a subscribe-result or the delivery QoS of
	// a message.
	QoS int

	// Payload is the host-owned copy of a message body. It is never nil for
	// messages, even when the body is empty.
	Payload []byte

	// Err is the failure text. It may be empty on failure; check ErrSet.
	Err string

	// ErrSet is true when the event carried an error, including one with
	// empty text.
	ErrSet bool
}

// Failed reports whether the event carries an error.
func (e Event) Failed() bool { return e.ErrSet }

// String renders e for logs and the CLI.
func (e Event) String() string {
	switch e.Kind {
	case binding.EventConnect:
		return e.suffix(fmt.Sprintf("client %d %s code=%d", e.Client, e.Kind, e.Code))
	case binding.EventSubscribe:
		return e.suffix(fmt.Sprintf("client %d %s %s qos=%d", e.Client, e.Kind, e.Topic, e.QoS))
	case binding.EventPublish, binding.EventUnsubscribe:
		return e.suffix(fmt.Sprintf("client %d %s %s", e.Client, e.Kind, e.Topic))
	case binding.EventMessage:
		return fmt.Sprintf("client %d %s %s qos=%d %d bytes", e.Client, e.Kind, e.Topic, e.QoS, len(e.Payload))
	default:
		return e.suffix(fmt.Sprintf("client %d %s", e.Client, e.Kind))
	}
}

func (e Event) suffix(s string) string {
	switch {
	case !e.Failed():
		return s
	case e.Err == "":
		return s + ": failed"
	default:
		return s + ": " + e.Err
	}
}

// decode unpacks args in the layout documented on binding.Env.
func decode(kind binding.EventKind, args []binding.Value) (Event, error) {
	ev := Event{Kind: kind}
	var err error

	switch kind {
	case binding.EventConnect:
		err = unpack(args, intArg(&ev.Client), intArg(&ev.Code), errArg(&ev.Err, &ev.ErrSet))
	case binding.EventPublish, binding.EventUnsubscribe:
		err = unpack(args, intArg(&ev.Client), stringArg(&ev.Topic), errArg(&ev.Err, &ev.ErrSet))
	case binding.EventSubscribe:
		err = unpack(args, intArg(&ev.Client), stringArg(&ev.Topic), intArg(&ev.QoS), errArg(&ev.Err, &ev.ErrSet))
	case binding.EventNetwork, binding.EventPersist:
		err = unpack(args, intArg(&ev.Client), errArg(&ev.Err, &ev.ErrSet))
	case binding.EventMessage:
		err = unpack(args, intArg(&ev.Client), stringArg(&ev.Topic), intArg(&ev.QoS), bytesArg(&ev.Payload))
	default:
		err = fmt.Errorf("%w: %s", ErrBadArguments, kind)
	}
	return ev, err
}

type argFunc func(binding.Value) bool

func unpack(args []binding.Value, fns ...argFunc) error {
	if len(args) != len(fns) {
		return fmt.Errorf("%w: got %d, want %d", ErrBadArguments, len(args), len(fns))
	}
	for i, fn := range fns {
		if !fn(args[i]) {
			return fmt.Errorf("%w: argument %d is %T", ErrBadArguments, i, args[i])
		}
	}
	return nil
}

func intArg[T ~int](dst *T) argFunc {
	return func(v binding.Value) bool {
		n, ok := v.(int)
		*dst = T(n)
		return ok
	}
}

func stringArg(dst *string) argFunc {
	return func(v binding.Value) bool {
		s, ok := v.(String)
		*dst = string(s)
		return ok
	}
}

// errArg decodes the host's null as no error and any string, empty or
// not, as an error.
func errArg(dst *string, set *bool) argFunc {
	return func(v binding.Value) bool {
		if v == nil {
			return true
		}
		s, ok := v.(String)
		*dst, *set = string(s), ok
		return ok
	}
}

func bytesArg(dst *[]byte) argFunc {
	return func(v binding.Value) bool {
		b, ok := v.(Bytes)
		*dst = b
		return ok
	}
}
