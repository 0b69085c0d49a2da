//go:build cgo && lib

package main

/*
#include <stdlib.h>
#include "libmqtt_handlers.h"

static inline void call_conn_handler(libmqtt_conn_handler h, int client, int code, char *err) {
  h(client, code, err);
  free(err);
}

static inline void call_pub_handler(libmqtt_pub_handler h, int client, char *topic, char *err) {
  h(client, topic, err);
  free(topic);
  free(err);
}

static inline void call_sub_handler(libmqtt_sub_handler h, int client, char *topic, int qos, char *err) {
  h(client, topic, qos, err);
  free(topic);
  free(err);
}

static inline void call_unsub_handler(libmqtt_unsub_handler h, int client, char *topic, char *err) {
  h(client, topic, err);
  free(topic);
  free(err);
}

static inline void call_net_handler(libmqtt_net_handler h, int client, char *err) {
  h(client, err);
  free(err);
}

static inline void call_persist_handler(libmqtt_persist_handler h, int client, char *err) {
  h(client, err);
  free(err);
}

static inline void call_topic_handler(libmqtt_topic_handler h, int client, char *topic, int qos, char *payload, int size) {
  h(client, topic, qos, payload, size);
  free(topic);
  free(payload);
}
*/
import "C"

import (
	"errors"
	"fmt"
	"unsafe"

	"github.com/skyformat99/libmqtt-3/internal/binding"
)

var (
	errBadTarget = errors.New("libmqtt: unknown target")
	errBadArgs   = errors.New("libmqtt: bad arguments")
)

// cString and cBytes own C memory until a trampoline frees it.
type (
	cString struct{ p *C.char }
	cBytes  struct {
		p unsafe.Pointer
		n int
	}
)

// cTarget is a C function pointer tagged with the layout it expects.
type cTarget struct {
	kind binding.EventKind
	fn   unsafe.Pointer
}

// cRuntime resolves lifecycle targets to the slots filled through
// Libmqtt_set_*_handler. Goroutines calling into C need no attachment, so
// the Env is stateless.
type cRuntime struct {
	handlers handlerTable
}

// Resolve implements binding.Runtime.
func (r *cRuntime) Resolve(kind binding.EventKind) (binding.Target, error) {
	return r.handlers.target(kind)
}

// AttachCurrentThread implements binding.Runtime.
func (r *cRuntime) AttachCurrentThread() (binding.Env, error) {
	return cEnv{}, nil
}

type cEnv struct{}

// NewString implements binding.Env.
func (cEnv) NewString(s string) binding.Value {
	return cString{p: C.CString(s)}
}

// NewBytes implements binding.Env.
func (cEnv) NewBytes(b []byte) binding.Value {
	if len(b) == 0 {
		return cBytes{p: C.malloc(1), n: 0}
	}
	return cBytes{p: C.CBytes(b), n: len(b)}
}

// Invoke implements binding.Env. Marshaled memory is freed by the
// trampoline, or here if the call never happens.
func (cEnv) Invoke(t binding.Target, args ...binding.Value) error {
	var tg *cTarget
	switch t := t.(type) {
	case *cTarget:
		tg = t
	case *slotTarget:
		fn, err := t.fn()
		if err != nil {
			release(args)
			return err
		}
		tg = &cTarget{kind: t.kind, fn: fn}
	}
	if tg == nil || tg.fn == nil {
		release(args)
		return fmt.Errorf("%w: %T", errBadTarget, t)
	}
	if err := call(tg, args); err != nil {
		release(args)
		return err
	}
	return nil
}

func call(tg *cTarget, args []binding.Value) error {
	switch tg.kind {
	case binding.EventConnect:
		if len(args) != 3 {
			return errBadArgs
		}
		C.call_conn_handler(C.libmqtt_conn_handler(tg.fn), cInt(args[0]), cInt(args[1]), cStr(args[2]))
	case binding.EventPublish:
		if len(args) != 3 {
			return errBadArgs
		}
		C.call_pub_handler(C.libmqtt_pub_handler(tg.fn), cInt(args[0]), cStr(args[1]), cStr(args[2]))
	case binding.EventSubscribe:
		if len(args) != 4 {
			return errBadArgs
		}
		C.call_sub_handler(C.libmqtt_sub_handler(tg.fn), cInt(args[0]), cStr(args[1]), cInt(args[2]), cStr(args[3]))
	case binding.EventUnsubscribe:
		if len(args) != 3 {
			return errBadArgs
		}
		C.call_unsub_handler(C.libmqtt_unsub_handler(tg.fn), cInt(args[0]), cStr(args[1]), cStr(args[2]))
	case binding.EventNetwork:
		if len(args) != 2 {
			return errBadArgs
		}
		C.call_net_handler(C.libmqtt_net_handler(tg.fn), cInt(args[0]), cStr(args[1]))
	case binding.EventPersist:
		if len(args) != 2 {
			return errBadArgs
		}
		C.call_persist_handler(C.libmqtt_persist_handler(tg.fn), cInt(args[0]), cStr(args[1]))
	case binding.EventMessage:
		if len(args) != 4 {
			return errBadArgs
		}
		payload, _ := args[3].(cBytes)
		C.call_topic_handler(C.libmqtt_topic_handler(tg.fn), cInt(args[0]), cStr(args[1]), cInt(args[2]),
			(*C.char)(payload.p), C.int(payload.n))
	default:
		return fmt.Errorf("%w: %s", errBadArgs, tg.kind)
	}
	return nil
}

func cInt(v binding.Value) C.int {
	n, _ := v.(int)
	return C.int(n)
}

// cStr returns the C string in v, or NULL for the host's null.
func cStr(v binding.Value) *C.char {
	s, _ := v.(cString)
	return s.p
}

func release(args []binding.Value) {
	for _, v := range args {
		switch v := v.(type) {
		case cString:
			C.free(unsafe.Pointer(v.p))
		case cBytes:
			C.free(v.p)
		}
	}
}
