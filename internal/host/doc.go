// Package host is a Go-native binding.Runtime.
//
// It lets Go programs, such as the mqttbridge CLI, drive the binding the
// same way a foreign host would. Events arrive as decoded Event values;
// strings and payloads are copied into host-owned memory before the
// handler runs.
//
// # Usage
//
//	rt := host.New().
//	    On(binding.EventConnect, func(ev host.Event) { log.Info(ev.String()) }).
//	    On(binding.EventNetwork, func(ev host.Event) { log.Warn(ev.String()) })
//
//	b, err := binding.New(eng, rt)
//	...
//	b.Handle(id, "sensors/#", host.Topic(func(ev host.Event) {
//	    fmt.Printf("%s %x\n", ev.Topic, ev.Payload)
//	}))
package host
