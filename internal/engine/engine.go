// Package engine defines the contract between the binding and the MQTT
// client engine it drives.
//
// The engine owns connections, the protocol state machine, retries and
// persistence. It reports every outcome asynchronously through the handlers
// installed on each client, from goroutines of its own choosing.
package engine

import (
	"github.com/skyformat99/libmqtt-3/internal/infrastructure/config"
)

// ConnHandler receives the result of a connect attempt.
// code is the CONNACK return code; err is nil on success.
type ConnHandler func(code byte, err error)

// PubHandler receives the outcome of one publish.
type PubHandler func(topic string, err error)

// SubHandler receives the outcome of one subscription, with the granted QoS.
type SubHandler func(topic string, qos byte, err error)

// UnsubHandler receives the outcome of one unsubscription.
type UnsubHandler func(topic string, err error)

// NetHandler receives transport faults. It may fire before a reconnect.
type NetHandler func(err error)

// PersistHandler receives faults reported by the persistence strategy.
type PersistHandler func(err error)

// TopicHandler receives one inbound message matching a registered filter.
// payload belongs to the engine and is only valid for the call.
type TopicHandler func(topic string, qos byte, payload []byte)

// Handlers is the set of lifecycle handlers installed on a client at setup.
// A nil slot means events of that kind are discarded.
type Handlers struct {
	Conn    ConnHandler
	Pub     PubHandler
	Sub     SubHandler
	Unsub   UnsubHandler
	Net     NetHandler
	Persist PersistHandler
}

// Engine constructs live clients from frozen configuration.
type Engine interface {
	// Setup builds a client from cfg without connecting it.
	// cfg is owned by the engine after the call.
	Setup(cfg config.ClientConfig) (Client, error)
}

// Client is one engine-side MQTT client.
//
// Connect, Publish, Subscribe and Unsubscribe return immediately; their
// results arrive through the installed Handlers.
type Client interface {
	// Install replaces the lifecycle handlers.
	Install(h Handlers)

	// Handle routes inbound messages matching topic to h, replacing any
	// handler previously routed for the same filter.
	Handle(topic string, h TopicHandler)

	Connect()
	Publish(topic string, qos byte, payload []byte)
	Subscribe(topic string, qos byte)
	Unsubscribe(topic string)

	// Wait blocks until the client's run loop ends: after Destroy, or after
	// a network failure the engine will not recover from.
	Wait()

	// Destroy stops the client. force closes immediately; otherwise
	// in-flight work is given a quiesce period. Repeated calls are no-ops.
	Destroy(force bool)
}
