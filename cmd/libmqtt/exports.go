//go:build cgo && lib

package main

/*
#include "libmqtt_handlers.h"
*/
import "C"

import (
	"os"
	"sync"
	"unsafe"

	"github.com/skyformat99/libmqtt-3/internal/binding"
	"github.com/skyformat99/libmqtt-3/internal/infrastructure/config"
	"github.com/skyformat99/libmqtt-3/internal/infrastructure/logging"
	"github.com/skyformat99/libmqtt-3/internal/infrastructure/mqtt"
)

// Version information - set at build time via ldflags
var version = "dev"

var (
	host     = &cRuntime{}
	bindOnce sync.Once
	bound    *binding.Binding
	bindErr  error
	libLog   *logging.Logger
)

// lib returns the process-wide binding, creating it on first use.
func lib() *binding.Binding {
	bindOnce.Do(func() {
		level := os.Getenv("LIBMQTT_LOG_LEVEL")
		if level == "" {
			level = "warn"
		}
		libLog = logging.New(config.LoggingConfig{Level: level, Format: "text", Output: "stderr"}, version)
		bound, bindErr = binding.New(mqtt.NewEngine(libLog), host, binding.WithLogger(libLog))
	})
	return bound
}

func id(client C.int) binding.ClientID { return binding.ClientID(client) }

// goBytes copies a caller payload. NULL or a negative size is empty.
func goBytes(p *C.char, n C.int) []byte {
	size := payloadLen(unsafe.Pointer(p), int(n))
	if size == 0 {
		return []byte{}
	}
	return C.GoBytes(unsafe.Pointer(p), C.int(size))
}

// setHandler fills kind's slot. Events of that kind raised while the slot
// is empty are dropped.
func setHandler(kind binding.EventKind, fn unsafe.Pointer) {
	_ = host.handlers.set(kind, fn)
}

// Libmqtt_init creates the binding. Calling it is optional; every other
// entry point initializes on first use.
// Returns NULL on success or an error string the caller must free.
//
//export Libmqtt_init
func Libmqtt_init() *C.char {
	if lib() == nil {
		return C.CString(bindErr.Error())
	}
	return nil
}

//export Libmqtt_set_conn_handler
func Libmqtt_set_conn_handler(h C.libmqtt_conn_handler) {
	setHandler(binding.EventConnect, unsafe.Pointer(h))
}

//export Libmqtt_set_pub_handler
func Libmqtt_set_pub_handler(h C.libmqtt_pub_handler) {
	setHandler(binding.EventPublish, unsafe.Pointer(h))
}

//export Libmqtt_set_sub_handler
func Libmqtt_set_sub_handler(h C.libmqtt_sub_handler) {
	setHandler(binding.EventSubscribe, unsafe.Pointer(h))
}

//export Libmqtt_set_unsub_handler
func Libmqtt_set_unsub_handler(h C.libmqtt_unsub_handler) {
	setHandler(binding.EventUnsubscribe, unsafe.Pointer(h))
}

//export Libmqtt_set_net_handler
func Libmqtt_set_net_handler(h C.libmqtt_net_handler) {
	setHandler(binding.EventNetwork, unsafe.Pointer(h))
}

//export Libmqtt_set_persist_handler
func Libmqtt_set_persist_handler(h C.libmqtt_persist_handler) {
	setHandler(binding.EventPersist, unsafe.Pointer(h))
}

// Libmqtt_new_client returns the ID of a new client, or -1.
//
//export Libmqtt_new_client
func Libmqtt_new_client() C.int {
	b := lib()
	if b == nil {
		return C.int(binding.InvalidClient)
	}
	return C.int(b.NewClient())
}

// Libmqtt_setup_client builds the client from its options.
// Returns NULL on success or an error string the caller must free.
//
//export Libmqtt_setup_client
func Libmqtt_setup_client(client C.int) *C.char {
	b := lib()
	if b == nil {
		return C.CString(bindErr.Error())
	}
	if err := b.Setup(id(client)); err != nil {
		return C.CString(err.Error())
	}
	return nil
}

//export Libmqtt_client_with_server
func Libmqtt_client_with_server(client C.int, server *C.char) {
	if b := lib(); b != nil {
		b.SetServer(id(client), C.GoString(server))
	}
}

//export Libmqtt_client_with_clean_session
func Libmqtt_client_with_clean_session(client C.int, flag bool) {
	if b := lib(); b != nil {
		b.SetCleanSession(id(client), flag)
	}
}

//export Libmqtt_client_with_keepalive
func Libmqtt_client_with_keepalive(client C.int, keepalive C.int, factor C.float) {
	if b := lib(); b != nil {
		b.SetKeepalive(id(client), int(keepalive), float64(factor))
	}
}

//export Libmqtt_client_with_client_id
func Libmqtt_client_with_client_id(client C.int, clientID *C.char) {
	if b := lib(); b != nil {
		b.SetClientID(id(client), C.GoString(clientID))
	}
}

//export Libmqtt_client_with_dial_timeout
func Libmqtt_client_with_dial_timeout(client C.int, timeout C.int) {
	if b := lib(); b != nil {
		b.SetDialTimeout(id(client), int(timeout))
	}
}

//export Libmqtt_client_with_identity
func Libmqtt_client_with_identity(client C.int, username, password *C.char) {
	if b := lib(); b != nil {
		b.SetUser(id(client), C.GoString(username), C.GoString(password))
	}
}

//export Libmqtt_client_with_log
func Libmqtt_client_with_log(client C.int, l C.libmqtt_log_level) {
	if b := lib(); b != nil {
		b.SetLog(id(client), config.LogLevel(l))
	}
}

//export Libmqtt_client_with_buf
func Libmqtt_client_with_buf(client C.int, sendBuf, recvBuf C.int) {
	if b := lib(); b != nil {
		b.SetSendBuf(id(client), int(sendBuf))
		b.SetRecvBuf(id(client), int(recvBuf))
	}
}

// Libmqtt_client_with_tls uses TLS; empty strings leave a field unset.
//
//export Libmqtt_client_with_tls
func Libmqtt_client_with_tls(client C.int, certFile, keyFile, caCert, serverNameOverride *C.char, skipVerify bool) {
	if b := lib(); b != nil {
		b.SetTLS(id(client),
			C.GoString(certFile),
			C.GoString(keyFile),
			C.GoString(caCert),
			C.GoString(serverNameOverride),
			skipVerify)
	}
}

//export Libmqtt_client_with_will
func Libmqtt_client_with_will(client C.int, topic *C.char, qos C.int, retain bool, payload *C.char, payloadSize C.int) {
	if b := lib(); b != nil {
		b.SetWill(id(client), C.GoString(topic), int(qos), retain, goBytes(payload, payloadSize))
	}
}

//export Libmqtt_client_with_none_persist
func Libmqtt_client_with_none_persist(client C.int) {
	if b := lib(); b != nil {
		b.SetNoPersist(id(client))
	}
}

//export Libmqtt_client_with_mem_persist
func Libmqtt_client_with_mem_persist(client C.int, maxCount C.int, dropOnExceed, duplicateReplace bool) {
	if b := lib(); b != nil {
		b.SetMemPersist(id(client), int(maxCount), dropOnExceed, duplicateReplace)
	}
}

//export Libmqtt_client_with_file_persist
func Libmqtt_client_with_file_persist(client C.int, dirPath *C.char, maxCount C.int, dropOnExceed, duplicateReplace bool) {
	if b := lib(); b != nil {
		b.SetFilePersist(id(client), C.GoString(dirPath), int(maxCount), dropOnExceed, duplicateReplace)
	}
}

//export Libmqtt_client_with_redis_persist
func Libmqtt_client_with_redis_persist(client C.int, addr, key *C.char, maxCount C.int, dropOnExceed, duplicateReplace bool) {
	if b := lib(); b != nil {
		b.SetRedisPersist(id(client), C.GoString(addr), C.GoString(key), int(maxCount), dropOnExceed, duplicateReplace)
	}
}

//export Libmqtt_client_with_sqlite_persist
func Libmqtt_client_with_sqlite_persist(client C.int, path *C.char, maxCount C.int, dropOnExceed, duplicateReplace bool) {
	if b := lib(); b != nil {
		b.SetSQLitePersist(id(client), C.GoString(path), int(maxCount), dropOnExceed, duplicateReplace)
	}
}

// Libmqtt_client_with_backoff sets reconnect delays in milliseconds.
//
//export Libmqtt_client_with_backoff
func Libmqtt_client_with_backoff(client C.int, firstDelay, maxDelay C.int) {
	if b := lib(); b != nil {
		b.SetBackoff(id(client), int(firstDelay), int(maxDelay))
	}
}

//export Libmqtt_client_with_auto_reconnect
func Libmqtt_client_with_auto_reconnect(client C.int, enabled bool) {
	if b := lib(); b != nil {
		b.SetAutoReconnect(id(client), enabled)
	}
}

// Libmqtt_handle routes messages matching topic to h.
//
//export Libmqtt_handle
func Libmqtt_handle(client C.int, topic *C.char, h C.libmqtt_topic_handler) {
	if h == nil {
		return
	}
	if b := lib(); b != nil {
		b.Handle(id(client), C.GoString(topic), &cTarget{kind: binding.EventMessage, fn: unsafe.Pointer(h)})
	}
}

//export Libmqtt_connect
func Libmqtt_connect(client C.int) {
	if b := lib(); b != nil {
		b.Connect(id(client))
	}
}

//export Libmqtt_publish
func Libmqtt_publish(client C.int, topic *C.char, qos C.int, payload *C.char, payloadSize C.int) {
	if b := lib(); b != nil {
		b.Publish(id(client), C.GoString(topic), int(qos), goBytes(payload, payloadSize))
	}
}

//export Libmqtt_subscribe
func Libmqtt_subscribe(client C.int, topic *C.char, qos C.int) {
	if b := lib(); b != nil {
		b.Subscribe(id(client), C.GoString(topic), int(qos))
	}
}

//export Libmqtt_unsubscribe
func Libmqtt_unsubscribe(client C.int, topic *C.char) {
	if b := lib(); b != nil {
		b.Unsubscribe(id(client), C.GoString(topic))
	}
}

// Libmqtt_wait blocks until the client's run loop ends.
//
//export Libmqtt_wait
func Libmqtt_wait(client C.int) {
	if b := lib(); b != nil {
		b.Wait(id(client))
	}
}

//export Libmqtt_destroy
func Libmqtt_destroy(client C.int, force bool) {
	if b := lib(); b != nil {
		b.Destroy(id(client), force)
	}
}
