// Package mqtt is the MQTT client engine behind the binding, built on
// eclipse/paho.mqtt.golang.
//
// This package provides:
//   - Engine and Client, implementing the engine package's contract
//   - Translation of a frozen ClientConfig into paho options (TLS, will,
//     keepalive factor, reconnect backoff, socket buffer sizes)
//   - Persistence strategies: none, memory, file, redis and sqlite, each
//     bounded by a count limit and a duplicate policy
//   - Topic name and filter validation
//
// # Asynchronous Results
//
// Requests never block. Each one starts a paho token and a goroutine that
// waits on it and reports through the client's installed handlers:
//
//	Connect     → Conn (failures; successes come from the on-connect hook)
//	Publish     → Pub
//	Subscribe   → Sub, with the granted QoS
//	Unsubscribe → Unsub
//	link loss   → Net
//	store fault → Persist
//
// Without auto-reconnect a failed connect or a lost connection ends the
// client's run loop, releasing Wait. With it, only Destroy does.
//
// # Persistence
//
// paho stores in-flight packets under keys such as "o.12" and "i.7". The
// bounded wrapper tracks keys in insertion order: at MaxCount it evicts the
// oldest packet, or rejects the new one and reports ErrStoreFull. The redis
// and sqlite backends serialize packets in wire form.
//
// # Usage
//
//	eng := mqtt.NewEngine(logger)
//	client, err := eng.Setup(cfg)
//	if err != nil {
//	    return err // e.g. ErrInvalidTLS
//	}
//	client.Install(handlers)
//	client.Handle("sensors/#", onSensor)
//	client.Connect()
//	client.Subscribe("sensors/#", 1)
package mqtt
