package mqtt

import (
	"fmt"
	"sync"
	"sync/atomic"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/eclipse/paho.mqtt.golang/packets"

	"github.com/skyformat99/libmqtt-3/internal/engine"
	"github.com/skyformat99/libmqtt-3/internal/infrastructure/config"
	"github.com/skyformat99/libmqtt-3/internal/infrastructure/logging"
)

// subackFailure is the SUBACK return code for a refused subscription.
const subackFailure = 0x80

// Client adapts a paho client to engine.Client.
//
// Every request returns immediately. A goroutine per request waits on the
// paho token and reports the outcome through the installed handlers.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
//   - Handlers are swapped atomically; an event sees either the old or the
//     new set, never a mix.
type Client struct {
	paho  pahomqtt.Client
	cfg   config.ClientConfig
	log   *logging.Logger
	store pahomqtt.Store

	handlers atomic.Pointer[engine.Handlers]

	done        chan struct{}
	doneOnce    sync.Once
	destroyOnce sync.Once
}

func newClient(cfg config.ClientConfig, log *logging.Logger) (*Client, error) {
	opts, err := buildClientOptions(cfg)
	if err != nil {
		return nil, err
	}

	c := &Client{
		cfg:  cfg,
		log:  log.ForClient(cfg.LogLevel).With("server", cfg.Server),
		done: make(chan struct{}),
	}
	c.handlers.Store(&engine.Handlers{})

	c.store = newStore(cfg.Persist, c.persistFault)
	opts.SetStore(c.store)

	opts.SetOnConnectHandler(func(_ pahomqtt.Client) {
		c.log.Info("connected")
		if h := c.current().Conn; h != nil {
			h(packets.Accepted, nil)
		}
	})
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		c.log.Warn("connection lost", "error", err, "reconnect", cfg.Reconnect.Auto)
		if h := c.current().Net; h != nil {
			h(fmt.Errorf("%w: %w", ErrConnectionLost, err))
		}
		if !cfg.Reconnect.Auto {
			c.finish()
		}
	})
	opts.SetReconnectingHandler(func(_ pahomqtt.Client, _ *pahomqtt.ClientOptions) {
		c.log.Debug("reconnecting")
	})

	c.paho = pahomqtt.NewClient(opts)
	return c, nil
}

// Install implements engine.Client.
func (c *Client) Install(h engine.Handlers) {
	c.handlers.Store(&h)
}

func (c *Client) current() engine.Handlers {
	return *c.handlers.Load()
}

// Connect implements engine.Client. Successful connections, including
// reconnects, are reported by the on-connect handler; the token only
// reports failures.
func (c *Client) Connect() {
	token := c.paho.Connect()
	go func() {
		<-token.Done()
		err := token.Error()
		if err == nil {
			return
		}

		var code byte
		if ct, ok := token.(*pahomqtt.ConnectToken); ok {
			code = ct.ReturnCode()
		}
		c.log.Warn("connect failed", "code", int(code), "error", err)
		if h := c.current().Conn; h != nil {
			h(code, fmt.Errorf("%w: %w", ErrConnectionFailed, err))
		}
		if !c.cfg.Reconnect.Auto {
			c.finish()
		}
	}()
}

// Publish implements engine.Client.
func (c *Client) Publish(topic string, qos byte, payload []byte) {
	if err := ValidateTopic(topic); err != nil {
		c.pubResult(topic, err)
		return
	}

	token := c.paho.Publish(topic, qos, false, payload)
	go func() {
		<-token.Done()
		if err := token.Error(); err != nil {
			c.pubResult(topic, fmt.Errorf("%w: %w", ErrPublishFailed, err))
			return
		}
		c.pubResult(topic, nil)
	}()
}

func (c *Client) pubResult(topic string, err error) {
	if err != nil {
		c.log.Debug("publish failed", "topic", topic, "error", err)
	}
	if h := c.current().Pub; h != nil {
		h(topic, err)
	}
}

// Subscribe implements engine.Client. Messages are delivered through routes
// added by Handle, so the subscription itself carries no callback.
func (c *Client) Subscribe(topic string, qos byte) {
	if err := ValidateFilter(topic); err != nil {
		c.subResult(topic, qos, err)
		return
	}

	token := c.paho.Subscribe(topic, qos, nil)
	go func() {
		<-token.Done()
		if err := token.Error(); err != nil {
			c.subResult(topic, qos, fmt.Errorf("%w: %w", ErrSubscribeFailed, err))
			return
		}

		granted := qos
		if st, ok := token.(*pahomqtt.SubscribeToken); ok {
			if g, found := st.Result()[topic]; found {
				granted = g
			}
		}
		if granted == subackFailure {
			c.subResult(topic, granted, fmt.Errorf("%w: refused by broker", ErrSubscribeFailed))
			return
		}
		c.subResult(topic, granted, nil)
	}()
}

func (c *Client) subResult(topic string, qos byte, err error) {
	if err != nil {
		c.log.Debug("subscribe failed", "topic", topic, "error", err)
	}
	if h := c.current().Sub; h != nil {
		h(topic, qos, err)
	}
}

// Unsubscribe implements engine.Client.
func (c *Client) Unsubscribe(topic string) {
	if err := ValidateFilter(topic); err != nil {
		c.unsubResult(topic, err)
		return
	}

	token := c.paho.Unsubscribe(topic)
	go func() {
		<-token.Done()
		if err := token.Error(); err != nil {
			c.unsubResult(topic, fmt.Errorf("%w: %w", ErrUnsubscribeFailed, err))
			return
		}
		c.unsubResult(topic, nil)
	}()
}

func (c *Client) unsubResult(topic string, err error) {
	if h := c.current().Unsub; h != nil {
		h(topic, err)
	}
}

// Handle implements engine.Client. paho's AddRoute replaces an existing
// route for the same filter.
func (c *Client) Handle(topic string, h engine.TopicHandler) {
	if err := ValidateFilter(topic); err != nil {
		c.log.Warn("route not added", "topic", topic, "error", err)
		return
	}
	c.paho.AddRoute(topic, c.wrapHandler(h))
}

// wrapHandler adapts a TopicHandler with panic recovery.
func (c *Client) wrapHandler(h engine.TopicHandler) pahomqtt.MessageHandler {
	return func(_ pahomqtt.Client, msg pahomqtt.Message) {
		defer func() {
			if r := recover(); r != nil {
				c.log.Error("topic handler panic recovered",
					"topic", msg.Topic(),
					"panic", r,
				)
			}
		}()
		h(msg.Topic(), msg.Qos(), msg.Payload())
	}
}

// persistFault reports a store fault without blocking the store, which may
// be holding its own lock.
func (c *Client) persistFault(err error) {
	c.log.Warn("persistence fault", "error", err)
	if h := c.current().Persist; h != nil {
		go h(err)
	}
}

// Wait implements engine.Client.
func (c *Client) Wait() {
	<-c.done
}

// Destroy implements engine.Client.
func (c *Client) Destroy(force bool) {
	c.destroyOnce.Do(func() {
		quiesce := uint(quiesceMillis)
		if force {
			quiesce = 0
		}
		c.paho.Disconnect(quiesce)
		c.log.Debug("destroyed", "force", force)
		c.finish()
	})
}

// Done is closed when the client's run loop has ended.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

func (c *Client) finish() {
	c.doneOnce.Do(func() { close(c.done) })
}
