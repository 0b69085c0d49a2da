package binding

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/skyformat99/libmqtt-3/internal/engine/enginetest"
	"github.com/skyformat99/libmqtt-3/internal/infrastructure/config"
)

// =============================================================================
// Construction Tests
// =============================================================================

func TestNewRequiresEngineAndRuntime(t *testing.T) {
	if _, err := New(nil, newRecordRuntime()); !errors.Is(err, ErrNilEngine) {
		t.Errorf("New(nil engine) error = %v, want ErrNilEngine", err)
	}
	if _, err := New(enginetest.New(), nil); !errors.Is(err, ErrNilRuntime) {
		t.Errorf("New(nil runtime) error = %v, want ErrNilRuntime", err)
	}
}

// =============================================================================
// Registry Tests
// =============================================================================

func TestNewClientDistinctIDs(t *testing.T) {
	f := newFixture(t)

	a := f.b.NewClient()
	b := f.b.NewClient()
	if a == b {
		t.Fatalf("NewClient() returned %d twice", a)
	}
	if a < 1 || b < 1 {
		t.Errorf("NewClient() = %d, %d, want IDs >= 1", a, b)
	}
}

func TestNewClientConcurrent(t *testing.T) {
	f := newFixture(t)

	const n = 64
	ids := make(chan ClientID, n)
	var wg sync.WaitGroup
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ids <- f.b.NewClient()
		}()
	}
	wg.Wait()
	close(ids)

	seen := make(map[ClientID]bool)
	for id := range ids {
		if seen[id] {
			t.Fatalf("ID %d allocated twice", id)
		}
		seen[id] = true
	}
	if f.b.Len() != n {
		t.Errorf("Len() = %d, want %d", f.b.Len(), n)
	}
}

func TestNewClientReusesReleasedID(t *testing.T) {
	f := newFixture(t)

	first := f.b.NewClient()
	second := f.b.NewClient()
	f.b.Destroy(first, true)

	if got := f.b.NewClient(); got != first {
		t.Errorf("NewClient() after Destroy(%d) = %d, want %d", first, got, first)
	}
	if got := f.b.NewClient(); got == second {
		t.Errorf("NewClient() reused live ID %d", second)
	}
}

// =============================================================================
// Config Assembler Tests
// =============================================================================

func TestSettersPopulateDraft(t *testing.T) {
	f := newFixture(t)
	id := f.b.NewClient()

	f.b.SetServer(id, "ssl://broker:8883")
	f.b.SetCleanSession(id, true)
	f.b.SetKeepalive(id, 30, 1.5)
	f.b.SetClientID(id, "dev-1")
	f.b.SetDialTimeout(id, 5)
	f.b.SetUser(id, "alice", "secret")
	f.b.SetLog(id, config.LogDebug)
	f.b.SetSendBuf(id, 4096)
	f.b.SetRecvBuf(id, 8192)
	f.b.SetTLS(id, "c.pem", "k.pem", "ca.pem", "broker", false)
	f.b.SetWill(id, "status", 1, true, []byte("gone"))
	f.b.SetBackoff(id, 100, 5000)
	f.b.SetAutoReconnect(id, true)
	f.b.SetFilePersist(id, "/tmp/q", 10, true, false)

	got, ok := f.b.Draft(id)
	if !ok {
		t.Fatalf("Draft(%d) not found", id)
	}

	tests := []struct {
		name string
		ok   bool
	}{
		{"server", got.Server == "ssl://broker:8883"},
		{"clean session", got.CleanSession},
		{"keepalive", got.Keepalive == 30 && got.KeepaliveFactor == 1.5},
		{"client id", got.ClientID == "dev-1"},
		{"dial timeout", got.DialTimeout == 5},
		{"user", got.Username == "alice" && got.Password == "secret"},
		{"log", got.LogLevel == config.LogDebug},
		{"buffers", got.SendBuf == 4096 && got.RecvBuf == 8192},
		{"tls", got.TLS != nil && got.TLS.CAFile == "ca.pem" && got.TLS.ServerName == "broker"},
		{"will", got.Will != nil && got.Will.Topic == "status" && string(got.Will.Payload) == "gone" && got.Will.Retain},
		{"backoff", got.Reconnect.FirstDelay == 100 && got.Reconnect.MaxDelay == 5000 && got.Reconnect.Auto},
		{"persist", got.Persist.Kind == config.PersistFile && got.Persist.Dir == "/tmp/q" && got.Persist.MaxCount == 10 && got.Persist.EvictOnExceed},
	}
	for _, tt := range tests {
		if !tt.ok {
			t.Errorf("draft %s not applied: %+v", tt.name, got)
		}
	}
}

func TestPersistSettersReplaceStrategy(t *testing.T) {
	f := newFixture(t)
	id := f.b.NewClient()

	f.b.SetFilePersist(id, "/tmp/q", 10, true, true)
	f.b.SetRedisPersist(id, "localhost:6379", "q", 5, false, false)

	got, _ := f.b.Draft(id)
	want := config.PersistConfig{Kind: config.PersistRedis, Addr: "localhost:6379", Key: "q", MaxCount: 5}
	if got.Persist != want {
		t.Errorf("Persist = %+v, want %+v", got.Persist, want)
	}
}

func TestSetWillCopiesPayload(t *testing.T) {
	f := newFixture(t)
	id := f.b.NewClient()

	payload := []byte("bye")
	f.b.SetWill(id, "status", 0, false, payload)
	payload[0] = 'X'

	got, _ := f.b.Draft(id)
	if string(got.Will.Payload) != "bye" {
		t.Errorf("Will.Payload = %q, want %q", got.Will.Payload, "bye")
	}
}

func TestSettersAfterSetupIgnored(t *testing.T) {
	f := newFixture(t)
	id, client := f.ready(t)

	f.b.SetServer(id, "tcp://elsewhere:1883")
	f.b.SetKeepalive(id, 99, 2)
	f.b.SetMemPersist(id, 1, false, false)

	got, _ := f.b.Draft(id)
	if got.Server != "tcp://127.0.0.1:1883" || got.Keepalive != 0 || got.Persist.Kind != "" {
		t.Errorf("draft changed after setup: %+v", got)
	}
	if client.Config.Server != "tcp://127.0.0.1:1883" {
		t.Errorf("engine config Server = %q, want the value frozen at setup", client.Config.Server)
	}
}

func TestSettersUnknownClientIgnored(t *testing.T) {
	f := newFixture(t)

	f.b.SetServer(42, "tcp://x:1883")

	if _, ok := f.b.Draft(42); ok {
		t.Error("Draft(42) found a client that was never allocated")
	}
}

func TestConfigureReplacesDraft(t *testing.T) {
	f := newFixture(t)
	id := f.b.NewClient()

	cfg := validConfig()
	cfg.Will = &config.WillConfig{Topic: "w", Payload: []byte("p")}
	f.b.Configure(id, cfg)
	cfg.Will.Payload[0] = 'X'

	got, _ := f.b.Draft(id)
	if got.Server != cfg.Server || string(got.Will.Payload) != "p" {
		t.Errorf("Draft() = %+v, want copy of configured value", got)
	}
}

// =============================================================================
// Setup Tests
// =============================================================================

func TestSetupUnknownClient(t *testing.T) {
	f := newFixture(t)

	if err := f.b.Setup(7); !errors.Is(err, ErrNoSuchClient) {
		t.Errorf("Setup(7) error = %v, want ErrNoSuchClient", err)
	}
}

func TestSetupTwice(t *testing.T) {
	f := newFixture(t)
	id, _ := f.ready(t)

	if err := f.b.Setup(id); !errors.Is(err, ErrAlreadySetUp) {
		t.Errorf("second Setup() error = %v, want ErrAlreadySetUp", err)
	}
	if n := len(f.eng.Clients()); n != 1 {
		t.Errorf("engine built %d clients, want 1", n)
	}
}

func TestSetupInvalidConfig(t *testing.T) {
	f := newFixture(t)
	id := f.b.NewClient()
	f.b.SetKeepalive(id, 10, 1)

	err := f.b.Setup(id)
	if !errors.Is(err, ErrSetupFailed) {
		t.Fatalf("Setup() error = %v, want ErrSetupFailed", err)
	}
	if !errors.Is(err, config.ErrInvalidClientConfig) {
		t.Errorf("Setup() error = %v, want wrapped ErrInvalidClientConfig", err)
	}
	if n := len(f.eng.Clients()); n != 0 {
		t.Errorf("engine built %d clients for invalid config, want 0", n)
	}

	// A failed client only accepts Destroy.
	if err := f.b.Setup(id); !errors.Is(err, ErrSetupFailed) {
		t.Errorf("Setup() after failure error = %v, want ErrSetupFailed", err)
	}
	f.b.Connect(id)
	f.b.Wait(id)
	f.b.Destroy(id, false)
	if f.b.Len() != 0 {
		t.Errorf("Len() after Destroy = %d, want 0", f.b.Len())
	}
}

func TestSetupEngineErrorInstallsNoHandlers(t *testing.T) {
	f := newFixture(t)
	tlsErr := errors.New("tls: failed to find any PEM data in certificate input")
	f.eng.SetupErr = func(cfg config.ClientConfig) error {
		if cfg.TLS != nil {
			return tlsErr
		}
		return nil
	}

	id := f.b.NewClient()
	f.b.SetServer(id, "ssl://127.0.0.1:8883")
	f.b.SetTLS(id, "bad.pem", "bad.key", "", "", false)

	err := f.b.Setup(id)
	if !errors.Is(err, ErrSetupFailed) || !errors.Is(err, tlsErr) {
		t.Fatalf("Setup() error = %v, want ErrSetupFailed wrapping the TLS error", err)
	}
	if n := len(f.eng.Clients()); n != 0 {
		t.Errorf("engine built %d clients, want 0", n)
	}
	if n := len(f.rt.invocations()); n != 0 {
		t.Errorf("host saw %d invocations after failed setup, want 0", n)
	}
}

func TestSetupInstallsHandlersOnce(t *testing.T) {
	f := newFixture(t)
	_, client := f.ready(t)

	if got := client.Installs(); got != 1 {
		t.Errorf("Installs() = %d, want 1", got)
	}
}

// =============================================================================
// Operation Tests
// =============================================================================

func TestOperationsForwarded(t *testing.T) {
	f := newFixture(t)
	id, client := f.ready(t)

	f.b.Connect(id)
	f.b.Publish(id, "a/b", 1, []byte("hi"))
	f.b.Subscribe(id, "a/#", 2)
	f.b.Unsubscribe(id, "a/#")

	want := []enginetest.Call{
		{Op: "connect"},
		{Op: "publish", Topic: "a/b", QoS: 1, Payload: []byte("hi")},
		{Op: "subscribe", Topic: "a/#", QoS: 2},
		{Op: "unsubscribe", Topic: "a/#"},
	}
	got := client.Calls()
	if len(got) != len(want) {
		t.Fatalf("Calls() = %+v, want %+v", got, want)
	}
	for i := range want {
		if got[i].Op != want[i].Op || got[i].Topic != want[i].Topic || got[i].QoS != want[i].QoS ||
			string(got[i].Payload) != string(want[i].Payload) {
			t.Errorf("Calls()[%d] = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestOperationsBeforeSetupIgnored(t *testing.T) {
	f := newFixture(t)
	id := f.b.NewClient()

	f.b.Connect(id)
	f.b.Publish(id, "t", 0, []byte("x"))
	f.b.Subscribe(id, "t", 0)
	f.b.Unsubscribe(id, "t")
	f.b.Connect(99)

	if n := len(f.eng.Clients()); n != 0 {
		t.Errorf("engine built %d clients, want 0", n)
	}
}

func TestPublishCopiesPayload(t *testing.T) {
	f := newFixture(t)
	id, client := f.ready(t)

	payload := []byte("abc")
	f.b.Publish(id, "t", 0, payload)
	payload[0] = 'X'

	if got := string(client.Calls()[0].Payload); got != "abc" {
		t.Errorf("forwarded payload = %q, want %q", got, "abc")
	}
}

func TestPublishEmptyPayloadAbsentError(t *testing.T) {
	f := newFixture(t)
	id, client := f.ready(t)

	f.b.Publish(id, "t", 0, nil)
	if got := client.Calls()[0].Payload; len(got) != 0 {
		t.Errorf("forwarded payload = %v, want empty", got)
	}

	client.EmitPub("t", nil)

	calls := f.rt.invocationsOf(lifecycleTarget(EventPublish))
	if len(calls) != 1 {
		t.Fatalf("publish-result invocations = %d, want 1", len(calls))
	}
	want := []Value{int(id), hostString("t"), nil}
	if !argsEqual(calls[0].args, want) {
		t.Errorf("publish-result args = %#v, want %#v", calls[0].args, want)
	}
}

func TestInvalidQoSReportedAsResult(t *testing.T) {
	f := newFixture(t)
	id, client := f.ready(t)

	f.b.Publish(id, "t", 3, []byte("x"))
	f.b.Subscribe(id, "s", -1)

	if n := len(client.Calls()); n != 0 {
		t.Errorf("engine saw %d calls for invalid QoS, want 0", n)
	}

	pub := f.rt.invocationsOf(lifecycleTarget(EventPublish))
	if len(pub) != 1 || pub[0].args[2] != hostString("binding: invalid QoS: 3") {
		t.Errorf("publish-result = %+v, want invalid QoS error", pub)
	}
	sub := f.rt.invocationsOf(lifecycleTarget(EventSubscribe))
	if len(sub) != 1 || sub[0].args[3] != hostString("binding: invalid QoS: -1") {
		t.Errorf("subscribe-result = %+v, want invalid QoS error", sub)
	}
}

// =============================================================================
// Event Tests
// =============================================================================

func TestLifecycleEventsMarshaled(t *testing.T) {
	tests := []struct {
		name string
		kind EventKind
		emit func(c *enginetest.Client)
		want func(id ClientID) []Value
	}{
		{
			name: "connect ok",
			kind: EventConnect,
			emit: func(c *enginetest.Client) { c.EmitConnect(0, nil) },
			want: func(id ClientID) []Value { return []Value{int(id), 0, nil} },
		},
		{
			name: "connect refused",
			kind: EventConnect,
			emit: func(c *enginetest.Client) { c.EmitConnect(5, errors.New("not authorized")) },
			want: func(id ClientID) []Value { return []Value{int(id), 5, hostString("not authorized")} },
		},
		{
			name: "publish failed",
			kind: EventPublish,
			emit: func(c *enginetest.Client) { c.EmitPub("a/b", errBoom) },
			want: func(id ClientID) []Value { return []Value{int(id), hostString("a/b"), hostString("boom")} },
		},
		{
			name: "subscribe granted",
			kind: EventSubscribe,
			emit: func(c *enginetest.Client) { c.EmitSub("a/#", 1, nil) },
			want: func(id ClientID) []Value { return []Value{int(id), hostString("a/#"), 1, nil} },
		},
		{
			name: "unsubscribe ok",
			kind: EventUnsubscribe,
			emit: func(c *enginetest.Client) { c.EmitUnsub("a/#", nil) },
			want: func(id ClientID) []Value { return []Value{int(id), hostString("a/#"), nil} },
		},
		{
			name: "network error",
			kind: EventNetwork,
			emit: func(c *enginetest.Client) { c.EmitNet(errors.New("EOF")) },
			want: func(id ClientID) []Value { return []Value{int(id), hostString("EOF")} },
		},
		{
			name: "persistence error",
			kind: EventPersist,
			emit: func(c *enginetest.Client) { c.EmitPersist(errors.New("store full")) },
			want: func(id ClientID) []Value { return []Value{int(id), hostString("store full")} },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			id, client := f.ready(t)

			tt.emit(client)

			calls := f.rt.invocations()
			if len(calls) != 1 {
				t.Fatalf("invocations = %d, want 1", len(calls))
			}
			if calls[0].target != lifecycleTarget(tt.kind) {
				t.Errorf("target = %v, want %v", calls[0].target, lifecycleTarget(tt.kind))
			}
			if want := tt.want(id); !argsEqual(calls[0].args, want) {
				t.Errorf("args = %#v, want %#v", calls[0].args, want)
			}
			if got := f.stats.Dispatched(tt.kind); got != 1 {
				t.Errorf("Dispatched(%s) = %d, want 1", tt.kind, got)
			}
		})
	}
}

func TestNilFaultsNotReported(t *testing.T) {
	f := newFixture(t)
	_, client := f.ready(t)

	client.EmitNet(nil)
	client.EmitPersist(nil)

	if n := len(f.rt.invocations()); n != 0 {
		t.Errorf("invocations = %d, want 0 for nil faults", n)
	}
}

func TestEventsAfterDestroyDropped(t *testing.T) {
	f := newFixture(t)
	id, old := f.ready(t)
	f.b.Handle(id, "t", "h-old")

	f.b.Destroy(id, true)

	// The ID is free again; the new client must not see the old one's events.
	reused, _ := f.ready(t)
	if reused != id {
		t.Fatalf("ready() = %d, want reused ID %d", reused, id)
	}
	f.b.Handle(reused, "t", "h-new")

	old.EmitConnect(0, nil)
	old.Deliver("t", 0, []byte("stale"))

	if n := len(f.rt.invocations()); n != 0 {
		t.Errorf("invocations = %d, want 0 for destroyed client", n)
	}
	if got := f.stats.Dropped(EventConnect); got != 1 {
		t.Errorf("Dropped(connect) = %d, want 1", got)
	}
	if got := f.stats.Dropped(EventMessage); got != 1 {
		t.Errorf("Dropped(message) = %d, want 1", got)
	}
}

func TestHostFailureContained(t *testing.T) {
	tests := []struct {
		name  string
		setup func(rt *recordRuntime)
	}{
		{"invoke error", func(rt *recordRuntime) { rt.invokeErr = errBoom }},
		{"invoke panic", func(rt *recordRuntime) { rt.panicWith = "host exploded" }},
		{"attach error", func(rt *recordRuntime) { rt.attachErr = errBoom }},
		{"nil env", func(rt *recordRuntime) { rt.nilEnv = true }},
		{"unresolved target", func(rt *recordRuntime) { rt.resolveErr[EventPublish] = errBoom }},
		{"target unset", func(rt *recordRuntime) { rt.invokeErr = ErrTargetUnset }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rt := newRecordRuntime()
			tt.setup(rt)
			f := newFixtureWith(t, rt)
			_, client := f.ready(t)

			client.EmitPub("t", nil)

			if got := f.stats.Dropped(EventPublish); got != 1 {
				t.Errorf("Dropped(publish) = %d, want 1", got)
			}
			if got := f.stats.Dispatched(EventPublish); got != 0 {
				t.Errorf("Dispatched(publish) = %d, want 0", got)
			}
		})
	}
}

// reasonRecorder is an Observer that keeps drop reasons in order.
type reasonRecorder struct {
	mu      sync.Mutex
	reasons []DropReason
}

func (r *reasonRecorder) EventDispatched(EventKind, ClientID) {}

func (r *reasonRecorder) EventDropped(_ EventKind, _ ClientID, reason DropReason) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reasons = append(r.reasons, reason)
}

func TestDropReasons(t *testing.T) {
	tests := []struct {
		name  string
		setup func(rt *recordRuntime)
		want  DropReason
	}{
		{"target unset", func(rt *recordRuntime) { rt.invokeErr = ErrTargetUnset }, DropNoTarget},
		{"wrapped target unset", func(rt *recordRuntime) { rt.invokeErr = fmt.Errorf("slot 2: %w", ErrTargetUnset) }, DropNoTarget},
		{"unresolved target", func(rt *recordRuntime) { rt.resolveErr[EventPublish] = errBoom }, DropNoTarget},
		{"invoke error", func(rt *recordRuntime) { rt.invokeErr = errBoom }, DropInvokeFailed},
		{"nil env", func(rt *recordRuntime) { rt.nilEnv = true }, DropNoEnv},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rt := newRecordRuntime()
			tt.setup(rt)
			rec := &reasonRecorder{}
			b, err := New(enginetest.New(), rt, WithObserver(rec))
			if err != nil {
				t.Fatalf("New() error = %v", err)
			}

			b.bridge.PublishResult(1, "t", nil)

			rec.mu.Lock()
			defer rec.mu.Unlock()
			if len(rec.reasons) != 1 || rec.reasons[0] != tt.want {
				t.Errorf("reasons = %v, want [%s]", rec.reasons, tt.want)
			}
		})
	}
}

// =============================================================================
// Topic Handler Tests
// =============================================================================

func TestHandleDeliversExactPayload(t *testing.T) {
	f := newFixture(t)
	id, client := f.ready(t)
	f.b.Handle(id, "sensors/+/temp", "h")

	if n := client.Deliver("sensors/kitchen/temp", 1, []byte{0x01, 0x02, 0x03}); n != 1 {
		t.Fatalf("Deliver() matched %d routes, want 1", n)
	}

	calls := f.rt.invocationsOf("h")
	if len(calls) != 1 {
		t.Fatalf("handler invocations = %d, want 1", len(calls))
	}
	want := []Value{int(id), hostString("sensors/kitchen/temp"), 1, hostBytes{0x01, 0x02, 0x03}}
	if !argsEqual(calls[0].args, want) {
		t.Errorf("args = %#v, want %#v", calls[0].args, want)
	}
}

func TestHandleEmptyPayload(t *testing.T) {
	f := newFixture(t)
	id, client := f.ready(t)
	f.b.Handle(id, "t", "h")

	client.Deliver("t", 0, nil)

	calls := f.rt.invocationsOf("h")
	if len(calls) != 1 {
		t.Fatalf("handler invocations = %d, want 1", len(calls))
	}
	if b, ok := calls[0].args[3].(hostBytes); !ok || len(b) != 0 {
		t.Errorf("payload = %#v, want empty host bytes", calls[0].args[3])
	}
}

func TestHandleReplaceIsIdempotent(t *testing.T) {
	f := newFixture(t)
	id, client := f.ready(t)

	f.b.Handle(id, "t", "h1")
	f.b.Handle(id, "t", "h2")
	f.b.Handle(id, "t", "h2")

	if n := client.Deliver("t", 0, []byte("x")); n != 1 {
		t.Fatalf("Deliver() matched %d routes, want 1", n)
	}
	if n := len(f.rt.invocationsOf("h1")); n != 0 {
		t.Errorf("replaced handler invoked %d times, want 0", n)
	}
	if n := len(f.rt.invocationsOf("h2")); n != 1 {
		t.Errorf("current handler invoked %d times, want 1", n)
	}
}

func TestHandleBeforeSetupRoutedAtSetup(t *testing.T) {
	f := newFixture(t)
	id := f.b.NewClient()
	f.b.SetServer(id, "tcp://127.0.0.1:1883")
	f.b.Handle(id, "early", "h")

	if err := f.b.Setup(id); err != nil {
		t.Fatalf("Setup() error = %v", err)
	}
	f.eng.Last().Deliver("early", 0, []byte("x"))

	if n := len(f.rt.invocationsOf("h")); n != 1 {
		t.Errorf("handler invocations = %d, want 1", n)
	}
}

func TestHandleNilTargetIgnored(t *testing.T) {
	f := newFixture(t)
	id, client := f.ready(t)

	f.b.Handle(id, "t", nil)

	if n := client.Deliver("t", 0, nil); n != 0 {
		t.Errorf("Deliver() matched %d routes, want 0", n)
	}
}

func TestHandleConcurrentTopics(t *testing.T) {
	f := newFixture(t)
	id, client := f.ready(t)

	const n = 32
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(2)
		go func() {
			defer wg.Done()
			f.b.Handle(id, fmt.Sprintf("x/%d", i), fmt.Sprintf("hx%d", i))
		}()
		go func() {
			defer wg.Done()
			f.b.Handle(id, fmt.Sprintf("y/%d", i), fmt.Sprintf("hy%d", i))
		}()
	}
	wg.Wait()

	for i := range n {
		client.Deliver(fmt.Sprintf("x/%d", i), 0, []byte("x"))
		client.Deliver(fmt.Sprintf("y/%d", i), 0, []byte("y"))
	}

	for i := range n {
		for _, prefix := range []string{"x", "y"} {
			target := fmt.Sprintf("h%s%d", prefix, i)
			calls := f.rt.invocationsOf(target)
			if len(calls) != 1 {
				t.Errorf("%s invocations = %d, want 1", target, len(calls))
				continue
			}
			if calls[0].args[1] != hostString(fmt.Sprintf("%s/%d", prefix, i)) {
				t.Errorf("%s got topic %v", target, calls[0].args[1])
			}
		}
	}
}

// =============================================================================
// Wait / Destroy Tests
// =============================================================================

func TestWaitReturnsAfterDestroy(t *testing.T) {
	f := newFixture(t)
	id, _ := f.ready(t)

	done := make(chan struct{})
	go func() {
		f.b.Wait(id)
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("Wait() returned before Destroy")
	case <-time.After(50 * time.Millisecond):
	}

	f.b.Destroy(id, false)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Wait() did not return after Destroy")
	}
}

func TestWaitReturnsAfterTerminalFailure(t *testing.T) {
	f := newFixture(t)
	id, client := f.ready(t)

	done := make(chan struct{})
	go func() {
		f.b.Wait(id)
		close(done)
	}()

	client.Fail(errors.New("connection refused"))

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Wait() did not return after terminal failure")
	}
	if got := f.stats.Dispatched(EventNetwork); got != 1 {
		t.Errorf("Dispatched(network) = %d, want 1", got)
	}
}

func TestWaitSerializesPerClient(t *testing.T) {
	f := newFixture(t)
	a, _ := f.ready(t)
	b, clientB := f.ready(t)

	// A waiter on a must not hold up a waiter on b.
	go f.b.Wait(a)

	done := make(chan struct{})
	go func() {
		f.b.Wait(b)
		f.b.Wait(b)
		close(done)
	}()
	clientB.Fail(errBoom)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Wait(b) blocked behind Wait(a)")
	}
	f.b.Destroy(a, true)
}

func TestWaitWithoutClientReturns(t *testing.T) {
	f := newFixture(t)
	draft := f.b.NewClient()

	done := make(chan struct{})
	go func() {
		f.b.Wait(99)
		f.b.Wait(draft)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Wait() blocked on a client that was never set up")
	}
}

func TestDestroyTwiceIsSafe(t *testing.T) {
	f := newFixture(t)
	id, client := f.ready(t)
	f.b.Handle(id, "t", "h")

	f.b.Destroy(id, true)
	f.b.Destroy(id, false)

	if got := client.Destroys(); len(got) != 1 || !got[0] {
		t.Errorf("Destroys() = %v, want [true]", got)
	}
	if f.b.Len() != 0 {
		t.Errorf("Len() = %d, want 0", f.b.Len())
	}
	if f.b.topics.Len() != 0 {
		t.Errorf("topic table holds %d bindings after Destroy, want 0", f.b.topics.Len())
	}
	if _, ok := f.b.Draft(id); ok {
		t.Error("Draft() found destroyed client")
	}
}

func TestDestroyConcurrentWithOperations(t *testing.T) {
	f := newFixture(t)
	id, client := f.ready(t)

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(3)
		go func() { defer wg.Done(); f.b.Publish(id, "t", 1, []byte("x")) }()
		go func() { defer wg.Done(); f.b.Handle(id, "t", "h") }()
		go func() { defer wg.Done(); f.b.Destroy(id, true) }()
	}
	wg.Wait()

	if got := len(client.Destroys()); got != 1 {
		t.Errorf("engine Destroy called %d times, want 1", got)
	}
	if f.b.topics.Len() != 0 {
		t.Errorf("topic table holds %d bindings after Destroy, want 0", f.b.topics.Len())
	}
}
