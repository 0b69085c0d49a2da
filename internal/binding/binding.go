package binding

import (
	"bytes"
	"fmt"

	"github.com/skyformat99/libmqtt-3/internal/engine"
	"github.com/skyformat99/libmqtt-3/internal/infrastructure/logging"
)

// Binding is the lifecycle façade the host drives.
//
// Every method may be called from any goroutine. Operations on unknown or
// destroyed IDs are no-ops, except Setup which reports ErrNoSuchClient.
type Binding struct {
	engine  engine.Engine
	bridge  *Bridge
	clients *Registry
	topics  *TopicTable
	log     *logging.Logger
}

type options struct {
	log       *logging.Logger
	observers []Observer
}

// Option configures a Binding.
type Option func(*options)

// WithLogger sets the logger used by the binding and its bridge.
func WithLogger(log *logging.Logger) Option {
	return func(o *options) { o.log = log }
}

// WithObserver adds an observer of dispatched and dropped events.
func WithObserver(obs Observer) Option {
	return func(o *options) {
		if obs != nil {
			o.observers = append(o.observers, obs)
		}
	}
}

// New resolves the host's lifecycle targets and returns a Binding with no
// clients.
func New(eng engine.Engine, rt Runtime, opts ...Option) (*Binding, error) {
	if eng == nil {
		return nil, ErrNilEngine
	}

	o := options{log: logging.Nop()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.log == nil {
		o.log = logging.Nop()
	}
	log := o.log.With("component", "binding")

	bridge, err := NewBridge(rt, log, o.observers...)
	if err != nil {
		return nil, err
	}

	return &Binding{
		engine:  eng,
		bridge:  bridge,
		clients: NewRegistry(),
		topics:  NewTopicTable(),
		log:     log,
	}, nil
}

// NewClient allocates a client with an empty draft configuration.
func (b *Binding) NewClient() ClientID {
	e := b.clients.allocate()
	b.log.Debug("client allocated", "client", int(e.id))
	return e.id
}

// Setup freezes the client's draft configuration and builds its engine
// client. On failure the client can only be destroyed.
func (b *Binding) Setup(id ClientID) error {
	e, ok := b.clients.lookup(id)
	if !ok {
		return fmt.Errorf("%w: %d", ErrNoSuchClient, id)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	switch e.current() {
	case stateReady:
		return fmt.Errorf("%w: %d", ErrAlreadySetUp, id)
	case stateFailed:
		return fmt.Errorf("%w: %d", ErrSetupFailed, id)
	case stateDestroyed:
		return fmt.Errorf("%w: %d", ErrNoSuchClient, id)
	}

	cfg := e.cfg.Clone()
	if err := cfg.Validate(); err != nil {
		e.set(stateFailed)
		b.log.Warn("client setup rejected", "client", int(id), "error", err)
		return fmt.Errorf("%w: %w", ErrSetupFailed, err)
	}

	client, err := b.engine.Setup(cfg)
	if err != nil {
		e.set(stateFailed)
		b.log.Warn("client setup failed", "client", int(id), "server", cfg.Server, "error", err)
		return fmt.Errorf("%w: %w", ErrSetupFailed, err)
	}

	e.client = client
	e.log = b.log.ForClient(cfg.LogLevel).With("client", int(id))
	client.Install(b.handlersFor(e))
	for _, topic := range b.topics.Topics(id) {
		client.Handle(topic, b.routeFor(e, topic))
	}
	e.set(stateReady)

	e.log.Info("client set up", "server", cfg.Server)
	return nil
}

// Connect starts connecting a set-up client. The outcome arrives as a
// connect-result event.
func (b *Binding) Connect(id ClientID) {
	if client := b.live(id, "connect"); client != nil {
		client.Connect()
	}
}

// Publish sends payload to topic. payload is copied before the call returns.
// The outcome arrives as a publish-result event.
func (b *Binding) Publish(id ClientID, topic string, qos int, payload []byte) {
	payload = bytes.Clone(payload)
	client := b.live(id, "publish")
	if client == nil {
		return
	}
	if qos < 0 || qos > 2 {
		b.bridge.PublishResult(id, topic, fmt.Errorf("%w: %d", ErrInvalidQoS, qos))
		return
	}
	client.Publish(topic, byte(qos), payload)
}

// Subscribe requests a subscription. The outcome arrives as a
// subscribe-result event.
func (b *Binding) Subscribe(id ClientID, topic string, qos int) {
	client := b.live(id, "subscribe")
	if client == nil {
		return
	}
	if qos < 0 || qos > 2 {
		b.bridge.SubscribeResult(id, topic, 0, fmt.Errorf("%w: %d", ErrInvalidQoS, qos))
		return
	}
	client.Subscribe(topic, byte(qos))
}

// Unsubscribe removes a subscription. The outcome arrives as an
// unsubscribe-result event.
func (b *Binding) Unsubscribe(id ClientID, topic string) {
	if client := b.live(id, "unsubscribe"); client != nil {
		client.Unsubscribe(topic)
	}
}

// Handle binds target to messages matching topic on client id, replacing any
// previous binding for the same pair. Bindings made before Setup are routed
// when the client is set up.
func (b *Binding) Handle(id ClientID, topic string, target Target) {
	if target == nil {
		return
	}
	e, ok := b.clients.lookup(id)
	if !ok {
		b.log.Debug("handler for unknown client ignored", "client", int(id), "topic", topic)
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	switch e.current() {
	case stateDestroyed, stateFailed:
		return
	}

	replaced := b.topics.Set(id, topic, target)
	if e.current() == stateReady && !replaced {
		e.client.Handle(topic, b.routeFor(e, topic))
	}
}

// Destroy stops client id and releases its ID. force skips the engine's
// quiesce period. Destroying an unknown or destroyed ID does nothing.
func (b *Binding) Destroy(id ClientID, force bool) {
	e, ok := b.clients.lookup(id)
	if !ok {
		return
	}

	e.mu.Lock()
	if e.current() == stateDestroyed {
		e.mu.Unlock()
		return
	}
	e.set(stateDestroyed)
	client := e.client
	e.client = nil
	e.mu.Unlock()

	b.topics.DropClient(id)
	if client != nil {
		client.Destroy(force)
	}
	b.clients.release(e)
	b.log.Debug("client destroyed", "client", int(id), "force", force)
}

// Len returns the number of allocated client IDs.
func (b *Binding) Len() int { return b.clients.Len() }

// live returns the engine client of a set-up client, or nil.
func (b *Binding) live(id ClientID, op string) engine.Client {
	e, ok := b.clients.lookup(id)
	if !ok {
		b.log.Debug("operation on unknown client ignored", "client", int(id), "op", op)
		return nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.current() != stateReady {
		b.log.Debug("operation on client not set up ignored",
			"client", int(id),
			"op", op,
			"state", e.current().String(),
		)
		return nil
	}
	return e.client
}

// handlersFor binds lifecycle handlers to e. Events arriving after e is
// destroyed are dropped even if its ID has been reallocated.
func (b *Binding) handlersFor(e *entry) engine.Handlers {
	id := e.id
	return engine.Handlers{
		Conn: func(code byte, err error) {
			if b.gone(e, EventConnect) {
				return
			}
			e.log.Debug("connect result", "code", int(code), "error", err)
			b.bridge.ConnectResult(id, code, err)
		},
		Pub: func(topic string, err error) {
			if b.gone(e, EventPublish) {
				return
			}
			b.bridge.PublishResult(id, topic, err)
		},
		Sub: func(topic string, qos byte, err error) {
			if b.gone(e, EventSubscribe) {
				return
			}
			b.bridge.SubscribeResult(id, topic, qos, err)
		},
		Unsub: func(topic string, err error) {
			if b.gone(e, EventUnsubscribe) {
				return
			}
			b.bridge.UnsubscribeResult(id, topic, err)
		},
		Net: func(err error) {
			if err == nil || b.gone(e, EventNetwork) {
				return
			}
			e.log.Warn("network error", "error", err)
			b.bridge.NetworkError(id, err)
		},
		Persist: func(err error) {
			if err == nil || b.gone(e, EventPersist) {
				return
			}
			e.log.Warn("persistence error", "error", err)
			b.bridge.PersistError(id, err)
		},
	}
}

// routeFor returns the engine-side handler for filter on e. The host target
// is looked up per message so Handle can replace it in place.
func (b *Binding) routeFor(e *entry, filter string) engine.TopicHandler {
	return func(topic string, qos byte, payload []byte) {
		if b.gone(e, EventMessage) {
			return
		}
		b.bridge.Message(e.id, b.topics.Lookup(e.id, filter), topic, qos, payload)
	}
}

func (b *Binding) gone(e *entry, kind EventKind) bool {
	if e.live() {
		return false
	}
	b.bridge.Dropped(kind, e.id, DropClientGone)
	return true
}
