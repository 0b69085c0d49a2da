// Package binding exposes MQTT clients to a foreign host runtime.
//
// A host allocates clients, configures them through setters, sets them up,
// and drives them with connect, publish, subscribe and unsubscribe calls.
// Every outcome arrives asynchronously as an event the binding marshals into
// host values and dispatches to host targets.
//
// # Architecture
//
//	Host ──▶ Binding (façade) ──▶ Registry ──▶ engine.Client
//	  ▲                                             │
//	  └──── Bridge ◀── lifecycle handlers ◀─────────┤
//	  └──── Bridge ◀── TopicTable lookup ◀──────────┘ (inbound messages)
//
// The Binding owns three pieces of state:
//
//   - Registry: ClientID to entry. An entry holds the draft configuration
//     until Setup freezes a copy of it, then the engine client.
//   - TopicTable: (ClientID, topic filter) to host handler target.
//   - Bridge: the host Runtime and the six lifecycle targets, resolved once
//     by New and read-only afterwards.
//
// # Events
//
// Engine goroutines deliver events. Each delivery attaches its goroutine's
// thread to the host, marshals strings and copies payloads into host
// values, then invokes the target synchronously. An event is dropped when
// the thread cannot be attached, no target is registered, or the client was
// destroyed. A failing or panicking host target is logged and never
// propagates into the engine.
//
// # Thread Safety
//
// All Binding methods are safe for concurrent use. Wait blocks only other
// waiters on the same client.
//
// # Usage
//
//	b, err := binding.New(mqtt.NewEngine(log), host.NewRuntime(), binding.WithLogger(log))
//	if err != nil {
//	    return err
//	}
//	id := b.NewClient()
//	b.SetServer(id, "tcp://localhost:1883")
//	b.SetKeepalive(id, 30, 1.5)
//	if err := b.Setup(id); err != nil {
//	    return err
//	}
//	b.Handle(id, "sensors/#", target)
//	b.Connect(id)
//	b.Wait(id)
package binding
