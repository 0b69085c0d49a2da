package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/skyformat99/libmqtt-3/internal/binding"
	"github.com/skyformat99/libmqtt-3/internal/engine"
	"github.com/skyformat99/libmqtt-3/internal/host"
	"github.com/skyformat99/libmqtt-3/internal/infrastructure/config"
	"github.com/skyformat99/libmqtt-3/internal/infrastructure/logging"
)

// bridge owns the binding and the clients created from config.
type bridge struct {
	b   *binding.Binding
	rt  *host.Runtime
	log *logging.Logger

	outMu sync.Mutex
	out   io.Writer

	mu    sync.RWMutex
	specs map[binding.ClientID]config.ClientSpec
	fault map[binding.ClientID]error // last connect or network failure per client

	// tap, if set before start, sees every event after it is handled.
	tap func(name string, ev host.Event)
}

func newBridge(eng engine.Engine, log *logging.Logger, out io.Writer, observers ...binding.Observer) (*bridge, error) {
	br := &bridge{
		log:   log.With("component", "bridge"),
		out:   out,
		specs: make(map[binding.ClientID]config.ClientSpec),
		fault: make(map[binding.ClientID]error),
	}
	br.rt = host.New().OnAll(br.lifecycle)

	opts := []binding.Option{binding.WithLogger(log)}
	for _, o := range observers {
		opts = append(opts, binding.WithObserver(o))
	}

	b, err := binding.New(eng, br.rt, opts...)
	if err != nil {
		return nil, err
	}
	br.b = b
	return br, nil
}

// start creates, sets up and connects one client per ClientSpec. Subscriptions are
// requested once each client reports a successful connect. On error the
// IDs created so far are returned so the caller can destroy them.
func (br *bridge) start(specs []config.ClientSpec) ([]binding.ClientID, error) {
	ids := make([]binding.ClientID, 0, len(specs))
	for _, spec := range specs {
		id := br.b.NewClient()
		ids = append(ids, id)

		br.mu.Lock()
		br.specs[id] = spec
		br.mu.Unlock()

		br.b.Configure(id, spec.ClientConfig)
		for _, sub := range spec.Subscriptions {
			br.b.Handle(id, sub.Topic, host.Topic(br.message))
		}
		if err := br.b.Setup(id); err != nil {
			return ids, fmt.Errorf("client %s: %w", br.label(id), err)
		}
		br.b.Connect(id)
		br.log.Info("client started", "client", br.label(id), "server", spec.Server)
	}
	return ids, nil
}

// errRunLoopEnded is the cause reported for a client whose run loop ended
// without a recorded failure.
var errRunLoopEnded = errors.New("run loop ended")

// errClientFault wraps a client's last failed connect-result or
// network-error event.
var errClientFault = errors.New("client fault")

// serve blocks until every client's run loop has ended or ctx is cancelled,
// then destroys all clients. It returns nil after ctx is cancelled; otherwise
// it returns the first client's terminal error.
func (br *bridge) serve(ctx context.Context, ids []binding.ClientID) error {
	var g errgroup.Group
	for _, id := range ids {
		g.Go(func() error {
			br.b.Wait(id)
			if ctx.Err() != nil {
				return nil
			}
			cause := br.lastFault(id)
			br.log.Warn("client run loop ended", "client", br.label(id), "error", cause)
			return fmt.Errorf("client %s: %w", br.label(id), cause)
		})
	}

	done := make(chan error, 1)
	go func() {
		done <- g.Wait()
	}()

	var err error
	select {
	case <-ctx.Done():
		br.log.Info("shutdown signal received, cleaning up")
		br.destroyAll(ids, false)
		<-done
	case err = <-done:
		br.destroyAll(ids, false)
	}
	br.rt.Close()
	return err
}

// lastFault is the last failure seen for id, or errRunLoopEnded.
func (br *bridge) lastFault(id binding.ClientID) error {
	br.mu.RLock()
	defer br.mu.RUnlock()
	if err := br.fault[id]; err != nil {
		return err
	}
	return errRunLoopEnded
}

func (br *bridge) destroyAll(ids []binding.ClientID, force bool) {
	for _, id := range ids {
		br.b.Destroy(id, force)
	}
}

func (br *bridge) lifecycle(ev host.Event) {
	switch {
	case ev.Failed():
		br.log.Warn("bridge event", "client", br.label(ev.Client), "event", ev.String())
	default:
		br.log.Info("bridge event", "client", br.label(ev.Client), "event", ev.String())
	}

	switch {
	case ev.Kind == binding.EventConnect && !ev.Failed():
		br.subscribe(ev.Client)
	case ev.Failed() && (ev.Kind == binding.EventConnect || ev.Kind == binding.EventNetwork):
		br.mu.Lock()
		br.fault[ev.Client] = fmt.Errorf("%w: %s", errClientFault, ev)
		br.mu.Unlock()
	}
	br.forward(ev)
}

func (br *bridge) forward(ev host.Event) {
	if br.tap != nil {
		br.tap(br.name(ev.Client), ev)
	}
}

// subscribe requests the configured subscriptions. It runs on every
// successful connect, so a clean-session reconnect restores them.
func (br *bridge) subscribe(id binding.ClientID) {
	br.mu.RLock()
	spec, ok := br.specs[id]
	br.mu.RUnlock()
	if !ok {
		return
	}
	for _, sub := range spec.Subscriptions {
		br.b.Subscribe(id, sub.Topic, sub.QoS)
	}
}

func (br *bridge) message(ev host.Event) {
	br.outMu.Lock()
	fmt.Fprintf(br.out, "%s %s qos=%d %q\n", br.label(ev.Client), ev.Topic, ev.QoS, ev.Payload)
	br.outMu.Unlock()
	br.forward(ev)
}

// name is the configured name of id, possibly empty.
func (br *bridge) name(id binding.ClientID) string {
	br.mu.RLock()
	defer br.mu.RUnlock()
	return br.specs[id].Name
}

// label is the configured name of id, or its number.
func (br *bridge) label(id binding.ClientID) string {
	if name := br.name(id); name != "" {
		return name
	}
	return fmt.Sprintf("#%d", id)
}
