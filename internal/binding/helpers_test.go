package binding

import (
	"bytes"
	"errors"
	"sync"
	"testing"

	"github.com/skyformat99/libmqtt-3/internal/engine/enginetest"
	"github.com/skyformat99/libmqtt-3/internal/infrastructure/config"
)

// hostString and hostBytes are the recording runtime's host value types.
type hostString string

type hostBytes []byte

type invocation struct {
	target Target
	args   []Value
}

// recordRuntime is a Runtime that records every invocation.
type recordRuntime struct {
	resolveErr map[EventKind]error
	attachErr  error
	nilEnv     bool
	invokeErr  error
	panicWith  any

	mu    sync.Mutex
	calls []invocation
}

func newRecordRuntime() *recordRuntime {
	return &recordRuntime{resolveErr: make(map[EventKind]error)}
}

func lifecycleTarget(kind EventKind) Target { return "target:" + kind.String() }

func (r *recordRuntime) Resolve(kind EventKind) (Target, error) {
	if err := r.resolveErr[kind]; err != nil {
		return nil, err
	}
	return lifecycleTarget(kind), nil
}

func (r *recordRuntime) AttachCurrentThread() (Env, error) {
	if r.attachErr != nil {
		return nil, r.attachErr
	}
	if r.nilEnv {
		return nil, nil
	}
	return (*recordEnv)(r), nil
}

func (r *recordRuntime) invocations() []invocation {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]invocation(nil), r.calls...)
}

// invocationsOf returns the invocations made against target.
func (r *recordRuntime) invocationsOf(target Target) []invocation {
	var out []invocation
	for _, inv := range r.invocations() {
		if inv.target == target {
			out = append(out, inv)
		}
	}
	return out
}

type recordEnv recordRuntime

func (e *recordEnv) NewString(s string) Value { return hostString(s) }

func (e *recordEnv) NewBytes(b []byte) Value { return hostBytes(bytes.Clone(b)) }

func (e *recordEnv) Invoke(target Target, args ...Value) error {
	r := (*recordRuntime)(e)
	if r.panicWith != nil {
		panic(r.panicWith)
	}
	if r.invokeErr != nil {
		return r.invokeErr
	}
	r.mu.Lock()
	r.calls = append(r.calls, invocation{target: target, args: args})
	r.mu.Unlock()
	return nil
}

var errBoom = errors.New("boom")

// fixture bundles a binding with its fake engine, runtime and counters.
type fixture struct {
	b     *Binding
	eng   *enginetest.Engine
	rt    *recordRuntime
	stats *Stats
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureWith(t, newRecordRuntime())
}

func newFixtureWith(t *testing.T, rt *recordRuntime) *fixture {
	t.Helper()
	eng := enginetest.New()
	stats := &Stats{}
	b, err := New(eng, rt, WithObserver(stats))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return &fixture{b: b, eng: eng, rt: rt, stats: stats}
}

// ready allocates and sets up a client pointed at a local broker.
func (f *fixture) ready(t *testing.T) (ClientID, *enginetest.Client) {
	t.Helper()
	id := f.b.NewClient()
	f.b.SetServer(id, "tcp://127.0.0.1:1883")
	if err := f.b.Setup(id); err != nil {
		t.Fatalf("Setup(%d) error = %v", id, err)
	}
	return id, f.eng.Last()
}

func validConfig() config.ClientConfig {
	return config.ClientConfig{Server: "tcp://127.0.0.1:1883"}
}

func argsEqual(got, want []Value) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		gb, gok := got[i].(hostBytes)
		wb, wok := want[i].(hostBytes)
		if gok || wok {
			if !gok || !wok || !bytes.Equal(gb, wb) {
				return false
			}
			continue
		}
		if got[i] != want[i] {
			return false
		}
	}
	return true
}
