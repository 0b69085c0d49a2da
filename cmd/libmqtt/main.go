// libmqtt exposes the binding as a C shared library.
//
// Build with:
//
//	go build -tags lib -buildmode=c-shared -o libmqtt.so ./cmd/libmqtt
//
// The generated libmqtt.h declares the Libmqtt_* functions. A C host
// creates, configures and drives clients by integer ID. Lifecycle handlers
// are registered with Libmqtt_set_*_handler at any time, before or after
// Libmqtt_init; each event calls whichever handler is set when it fires and
// is dropped if none is. Strings and payloads handed to C handlers are
// freed when the handler returns; handlers must copy anything they keep.
// A NULL payload or a negative payload size is sent as an empty payload.
//
// Without the lib tag the package builds as an empty program.
package main

func main() {}
