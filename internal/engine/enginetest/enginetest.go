// Package enginetest provides an in-memory engine for exercising the binding
// without a broker.
//
// Tests drive the fake from the "engine side": Emit* methods fire lifecycle
// events and Deliver routes an inbound message, each on the calling goroutine.
package enginetest

import (
	"bytes"
	"strings"
	"sync"

	"github.com/skyformat99/libmqtt-3/internal/engine"
	"github.com/skyformat99/libmqtt-3/internal/infrastructure/config"
)

// Engine records every client it sets up.
type Engine struct {
	// SetupErr, when set, is consulted before a client is built.
	SetupErr func(cfg config.ClientConfig) error

	mu      sync.Mutex
	clients []*Client
}

// New returns an empty fake engine.
func New() *Engine {
	return &Engine{}
}

// Setup implements engine.Engine.
func (e *Engine) Setup(cfg config.ClientConfig) (engine.Client, error) {
	if e.SetupErr != nil {
		if err := e.SetupErr(cfg); err != nil {
			return nil, err
		}
	}

	c := &Client{
		Config: cfg,
		routes: make(map[string]engine.TopicHandler),
		done:   make(chan struct{}),
	}

	e.mu.Lock()
	e.clients = append(e.clients, c)
	e.mu.Unlock()

	return c, nil
}

// Clients returns the clients set up so far, oldest first.
func (e *Engine) Clients() []*Client {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]*Client(nil), e.clients...)
}

// Last returns the most recently set up client, or nil.
func (e *Engine) Last() *Client {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.clients) == 0 {
		return nil
	}
	return e.clients[len(e.clients)-1]
}

// Call is one request the binding forwarded to a client.
type Call struct {
	Op      string
	Topic   string
	QoS     byte
	Payload []byte
}

// Client is a fake engine client.
type Client struct {
	// Config is the frozen configuration the client was built from.
	Config config.ClientConfig

	mu        sync.Mutex
	handlers  engine.Handlers
	installed int
	routes    map[string]engine.TopicHandler
	calls     []Call
	destroys  []bool

	done     chan struct{}
	doneOnce sync.Once
}

// Install implements engine.Client.
func (c *Client) Install(h engine.Handlers) {
	c.mu.Lock()
	c.handlers = h
	c.installed++
	c.mu.Unlock()
}

// Handle implements engine.Client.
func (c *Client) Handle(topic string, h engine.TopicHandler) {
	c.mu.Lock()
	c.routes[topic] = h
	c.mu.Unlock()
}

// Connect implements engine.Client.
func (c *Client) Connect() { c.record(Call{Op: "connect"}) }

// Publish implements engine.Client.
func (c *Client) Publish(topic string, qos byte, payload []byte) {
	c.record(Call{Op: "publish", Topic: topic, QoS: qos, Payload: payload})
}

// Subscribe implements engine.Client.
func (c *Client) Subscribe(topic string, qos byte) {
	c.record(Call{Op: "subscribe", Topic: topic, QoS: qos})
}

// Unsubscribe implements engine.Client.
func (c *Client) Unsubscribe(topic string) {
	c.record(Call{Op: "unsubscribe", Topic: topic})
}

// Wait implements engine.Client.
func (c *Client) Wait() { <-c.done }

// Destroy implements engine.Client.
func (c *Client) Destroy(force bool) {
	c.mu.Lock()
	c.destroys = append(c.destroys, force)
	c.mu.Unlock()
	c.finish()
}

func (c *Client) finish() {
	c.doneOnce.Do(func() { close(c.done) })
}

func (c *Client) record(call Call) {
	c.mu.Lock()
	c.calls = append(c.calls, call)
	c.mu.Unlock()
}

// Calls returns the forwarded requests, oldest first.
func (c *Client) Calls() []Call {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Call(nil), c.calls...)
}

// Installs reports how many times handlers were installed.
func (c *Client) Installs() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.installed
}

// Destroys returns the force flag of every Destroy call.
func (c *Client) Destroys() []bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]bool(nil), c.destroys...)
}

// Done is closed when the run loop ends.
func (c *Client) Done() <-chan struct{} { return c.done }

func (c *Client) current() engine.Handlers {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.handlers
}

// EmitConnect fires the connect-result handler.
func (c *Client) EmitConnect(code byte, err error) {
	if h := c.current().Conn; h != nil {
		h(code, err)
	}
}

// EmitPub fires the publish-result handler.
func (c *Client) EmitPub(topic string, err error) {
	if h := c.current().Pub; h != nil {
		h(topic, err)
	}
}

// EmitSub fires the subscribe-result handler.
func (c *Client) EmitSub(topic string, qos byte, err error) {
	if h := c.current().Sub; h != nil {
		h(topic, qos, err)
	}
}

// EmitUnsub fires the unsubscribe-result handler.
func (c *Client) EmitUnsub(topic string, err error) {
	if h := c.current().Unsub; h != nil {
		h(topic, err)
	}
}

// EmitNet fires the network-error handler.
func (c *Client) EmitNet(err error) {
	if h := c.current().Net; h != nil {
		h(err)
	}
}

// EmitPersist fires the persistence-error handler.
func (c *Client) EmitPersist(err error) {
	if h := c.current().Persist; h != nil {
		h(err)
	}
}

// Fail reports err as a network error the client will not recover from and
// ends its run loop.
func (c *Client) Fail(err error) {
	c.EmitNet(err)
	c.finish()
}

// Deliver routes an inbound message to every handler whose filter matches
// topic and returns how many were called. The payload buffer is overwritten
// after each call, as an engine reusing its read buffer would.
func (c *Client) Deliver(topic string, qos byte, payload []byte) int {
	c.mu.Lock()
	var matched []engine.TopicHandler
	for filter, h := range c.routes {
		if Match(filter, topic) {
			matched = append(matched, h)
		}
	}
	c.mu.Unlock()

	for _, h := range matched {
		buf := bytes.Clone(payload)
		h(topic, qos, buf)
		for i := range buf {
			buf[i] = 0xEE
		}
	}
	return len(matched)
}

// Match reports whether an MQTT topic filter matches a topic name.
func Match(filter, topic string) bool {
	fs := strings.Split(filter, "/")
	ts := strings.Split(topic, "/")
	for i, f := range fs {
		if f == "#" {
			return true
		}
		if i >= len(ts) {
			return false
		}
		if f != "+" && f != ts[i] {
			return false
		}
	}
	return len(fs) == len(ts)
}
