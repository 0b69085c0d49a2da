package binding

import (
	"bytes"

	"github.com/skyformat99/libmqtt-3/internal/infrastructure/config"
)

// update applies fn to the draft configuration of id. Updates to unknown
// IDs or to clients already set up are ignored.
func (b *Binding) update(id ClientID, option string, fn func(c *config.ClientConfig)) {
	e, ok := b.clients.lookup(id)
	if !ok {
		b.log.Debug("option for unknown client ignored", "client", int(id), "option", option)
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if s := e.current(); s != stateDraft {
		b.log.Debug("option after setup ignored",
			"client", int(id),
			"option", option,
			"state", s.String(),
		)
		return
	}
	fn(&e.cfg)
}

// SetServer sets the broker address, e.g. "tcp://localhost:1883".
func (b *Binding) SetServer(id ClientID, server string) {
	b.update(id, "server", func(c *config.ClientConfig) { c.Server = server })
}

// SetCleanSession sets the MQTT clean-session flag.
func (b *Binding) SetCleanSession(id ClientID, clean bool) {
	b.update(id, "clean_session", func(c *config.ClientConfig) { c.CleanSession = clean })
}

// SetKeepalive sets the keepalive interval in seconds and the factor of it
// the engine waits for a ping response.
func (b *Binding) SetKeepalive(id ClientID, seconds int, factor float64) {
	b.update(id, "keepalive", func(c *config.ClientConfig) {
		c.Keepalive = seconds
		c.KeepaliveFactor = factor
	})
}

// SetClientID sets the MQTT client identifier.
func (b *Binding) SetClientID(id ClientID, clientID string) {
	b.update(id, "client_id", func(c *config.ClientConfig) { c.ClientID = clientID })
}

// SetDialTimeout sets the connect timeout in seconds.
func (b *Binding) SetDialTimeout(id ClientID, seconds int) {
	b.update(id, "dial_timeout", func(c *config.ClientConfig) { c.DialTimeout = seconds })
}

// SetUser sets the broker credentials.
func (b *Binding) SetUser(id ClientID, username, password string) {
	b.update(id, "user", func(c *config.ClientConfig) {
		c.Username = username
		c.Password = password
	})
}

// SetLog sets the client's log verbosity.
func (b *Binding) SetLog(id ClientID, level config.LogLevel) {
	b.update(id, "log", func(c *config.ClientConfig) { c.LogLevel = level })
}

// SetSendBuf sets the socket send buffer size in bytes.
func (b *Binding) SetSendBuf(id ClientID, size int) {
	b.update(id, "send_buf", func(c *config.ClientConfig) { c.SendBuf = size })
}

// SetRecvBuf sets the socket receive buffer size in bytes.
func (b *Binding) SetRecvBuf(id ClientID, size int) {
	b.update(id, "recv_buf", func(c *config.ClientConfig) { c.RecvBuf = size })
}

// SetTLS configures TLS. Files are only read at Setup.
func (b *Binding) SetTLS(id ClientID, certFile, keyFile, caFile, serverName string, skipVerify bool) {
	b.update(id, "tls", func(c *config.ClientConfig) {
		c.TLS = &config.TLSConfig{
			CertFile:   certFile,
			KeyFile:    keyFile,
			CAFile:     caFile,
			ServerName: serverName,
			SkipVerify: skipVerify,
		}
	})
}

// SetWill sets the last-will message. payload is copied.
func (b *Binding) SetWill(id ClientID, topic string, qos int, retain bool, payload []byte) {
	payload = bytes.Clone(payload)
	b.update(id, "will", func(c *config.ClientConfig) {
		c.Will = &config.WillConfig{
			Topic:   topic,
			QoS:     qos,
			Retain:  retain,
			Payload: payload,
		}
	})
}

// SetMemPersist keeps unacknowledged packets in memory.
func (b *Binding) SetMemPersist(id ClientID, maxCount int, evictOnExceed, replaceDuplicate bool) {
	b.persist(id, config.PersistConfig{
		Kind:             config.PersistMemory,
		MaxCount:         maxCount,
		EvictOnExceed:    evictOnExceed,
		ReplaceDuplicate: replaceDuplicate,
	})
}

// SetFilePersist keeps unacknowledged packets as files under dir.
func (b *Binding) SetFilePersist(id ClientID, dir string, maxCount int, evictOnExceed, replaceDuplicate bool) {
	b.persist(id, config.PersistConfig{
		Kind:             config.PersistFile,
		Dir:              dir,
		MaxCount:         maxCount,
		EvictOnExceed:    evictOnExceed,
		ReplaceDuplicate: replaceDuplicate,
	})
}

// SetRedisPersist keeps unacknowledged packets in a Redis hash.
func (b *Binding) SetRedisPersist(id ClientID, addr, key string, maxCount int, evictOnExceed, replaceDuplicate bool) {
	b.persist(id, config.PersistConfig{
		Kind:             config.PersistRedis,
		Addr:             addr,
		Key:              key,
		MaxCount:         maxCount,
		EvictOnExceed:    evictOnExceed,
		ReplaceDuplicate: replaceDuplicate,
	})
}

// SetSQLitePersist keeps unacknowledged packets in a SQLite database.
func (b *Binding) SetSQLitePersist(id ClientID, path string, maxCount int, evictOnExceed, replaceDuplicate bool) {
	b.persist(id, config.PersistConfig{
		Kind:             config.PersistSQLite,
		Path:             path,
		MaxCount:         maxCount,
		EvictOnExceed:    evictOnExceed,
		ReplaceDuplicate: replaceDuplicate,
	})
}

// SetNoPersist disables persistence.
func (b *Binding) SetNoPersist(id ClientID) {
	b.persist(id, config.PersistConfig{Kind: config.PersistNone})
}

// persist replaces the whole strategy; only one is ever active.
func (b *Binding) persist(id ClientID, p config.PersistConfig) {
	b.update(id, "persist", func(c *config.ClientConfig) { c.Persist = p })
}

// SetBackoff sets the first and maximum reconnect delays in milliseconds.
func (b *Binding) SetBackoff(id ClientID, firstDelay, maxDelay int) {
	b.update(id, "backoff", func(c *config.ClientConfig) {
		c.Reconnect.FirstDelay = firstDelay
		c.Reconnect.MaxDelay = maxDelay
	})
}

// SetAutoReconnect toggles reconnecting after a lost connection.
func (b *Binding) SetAutoReconnect(id ClientID, auto bool) {
	b.update(id, "auto_reconnect", func(c *config.ClientConfig) { c.Reconnect.Auto = auto })
}

// Configure replaces the whole draft configuration of id with a copy of cfg.
func (b *Binding) Configure(id ClientID, cfg config.ClientConfig) {
	cfg = cfg.Clone()
	b.update(id, "config", func(c *config.ClientConfig) { *c = cfg })
}

// Draft returns a copy of the configuration id would be set up with, or was
// set up with.
func (b *Binding) Draft(id ClientID) (config.ClientConfig, bool) {
	e, ok := b.clients.lookup(id)
	if !ok {
		return config.ClientConfig{}, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cfg.Clone(), true
}
