package mqtt

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"math"
	"net"
	"net/url"
	"os"
	"strings"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/skyformat99/libmqtt-3/internal/infrastructure/config"
)

// Connection constants.
const (
	// defaultConnectTimeout applies when the client sets no dial timeout.
	defaultConnectTimeout = 10 * time.Second

	// defaultKeepaliveFactor applies when the client's factor is unset or not above 1.
	defaultKeepaliveFactor = 1.2

	// minPingTimeout bounds the ping timeout derived from the keepalive factor.
	minPingTimeout = time.Second

	// quiesceMillis is how long a non-forced Destroy lets in-flight work finish.
	quiesceMillis = 250

	// clientIDPrefix prefixes generated MQTT client identifiers.
	clientIDPrefix = "libmqtt-"

	// tlsMinVersion is the minimum TLS version for secure connections.
	tlsMinVersion = tls.VersionTLS12
)

// buildClientOptions translates a frozen ClientConfig into paho options.
//
// It configures:
//   - Broker URL (bare "host:port" is dialled over tcp)
//   - Client ID, generated when empty
//   - Credentials, clean session, will
//   - Keepalive and the ping timeout derived from the keepalive factor
//   - Auto-reconnect with the configured backoff bounds
//   - TLS material, loaded here so bad files fail setup
//   - A custom dialer when socket buffer sizes are set
//
// Returns:
//   - *pahomqtt.ClientOptions: Options without handlers or store
//   - error: Wrapping ErrInvalidTLS or ErrUnsupportedScheme
func buildClientOptions(cfg config.ClientConfig) (*pahomqtt.ClientOptions, error) {
	opts := pahomqtt.NewClientOptions()

	broker := brokerURL(cfg.Server)
	opts.AddBroker(broker)

	clientID := cfg.ClientID
	if clientID == "" {
		clientID = clientIDPrefix + uuid.NewString()
	}
	opts.SetClientID(clientID)

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	opts.SetCleanSession(cfg.CleanSession)

	if cfg.Keepalive > 0 {
		keepalive := time.Duration(cfg.Keepalive) * time.Second
		opts.SetKeepAlive(keepalive)
		opts.SetPingTimeout(pingTimeout(keepalive, cfg.KeepaliveFactor))
	}

	timeout := defaultConnectTimeout
	if cfg.DialTimeout > 0 {
		timeout = time.Duration(cfg.DialTimeout) * time.Second
	}
	opts.SetConnectTimeout(timeout)

	opts.SetAutoReconnect(cfg.Reconnect.Auto)
	opts.SetConnectRetry(cfg.Reconnect.Auto)
	if cfg.Reconnect.FirstDelay > 0 {
		opts.SetConnectRetryInterval(time.Duration(cfg.Reconnect.FirstDelay) * time.Millisecond)
	}
	if cfg.Reconnect.MaxDelay > 0 {
		opts.SetMaxReconnectInterval(time.Duration(cfg.Reconnect.MaxDelay) * time.Millisecond)
	}

	var tlsCfg *tls.Config
	if cfg.TLS != nil {
		var err error
		if tlsCfg, err = loadTLS(cfg.TLS); err != nil {
			return nil, err
		}
		opts.SetTLSConfig(tlsCfg)
	}

	if w := cfg.Will; w != nil {
		opts.SetBinaryWill(w.Topic, w.Payload, byte(w.QoS), w.Retain)
	}

	if cfg.SendBuf > 0 || cfg.RecvBuf > 0 {
		u, err := url.Parse(broker)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrUnsupportedScheme, err)
		}
		if _, ok := dialSchemes[u.Scheme]; !ok {
			return nil, fmt.Errorf("%w: %q cannot carry socket buffer sizes", ErrUnsupportedScheme, u.Scheme)
		}
		d := &bufferedDialer{
			timeout: timeout,
			sendBuf: cfg.SendBuf,
			recvBuf: cfg.RecvBuf,
			tls:     tlsCfg,
		}
		opts.SetCustomOpenConnectionFn(d.open)
	}

	return opts, nil
}

// brokerURL adds the tcp scheme to bare "host:port" addresses.
func brokerURL(server string) string {
	if strings.Contains(server, "://") {
		return server
	}
	return "tcp://" + server
}

// pingTimeout converts the keepalive factor into paho's ping timeout.
// The connection is declared dead keepalive*factor after the last activity;
// paho waits one keepalive before pinging, so the timeout is the remainder.
func pingTimeout(keepalive time.Duration, factor float64) time.Duration {
	if factor <= 1 {
		factor = defaultKeepaliveFactor
	}
	return max(time.Duration(math.Round(float64(keepalive)*(factor-1))), minPingTimeout)
}

// loadTLS reads certificate material for a client.
func loadTLS(t *config.TLSConfig) (*tls.Config, error) {
	tc := &tls.Config{
		MinVersion:         tlsMinVersion,
		ServerName:         t.ServerName,
		InsecureSkipVerify: t.SkipVerify, //nolint:gosec // Explicit per-client opt-in
	}

	if t.CertFile != "" {
		cert, err := tls.LoadX509KeyPair(t.CertFile, t.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("%w: loading client certificate: %w", ErrInvalidTLS, err)
		}
		tc.Certificates = []tls.Certificate{cert}
	}

	if t.CAFile != "" {
		pem, err := os.ReadFile(t.CAFile)
		if err != nil {
			return nil, fmt.Errorf("%w: reading CA file: %w", ErrInvalidTLS, err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("%w: no certificates in %s", ErrInvalidTLS, t.CAFile)
		}
		tc.RootCAs = pool
	}

	return tc, nil
}

// dialSchemes maps the schemes bufferedDialer handles to whether they use TLS.
var dialSchemes = map[string]bool{
	"tcp":   false,
	"mqtt":  false,
	"ssl":   true,
	"tls":   true,
	"mqtts": true,
	"tcps":  true,
}

// bufferedDialer opens broker connections with explicit socket buffer sizes.
// Send and receive sizes are applied independently.
type bufferedDialer struct {
	timeout time.Duration
	sendBuf int
	recvBuf int
	tls     *tls.Config
}

func (d *bufferedDialer) open(uri *url.URL, _ pahomqtt.ClientOptions) (net.Conn, error) {
	secure, ok := dialSchemes[uri.Scheme]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedScheme, uri.Scheme)
	}

	dialer := net.Dialer{Timeout: d.timeout}
	conn, err := dialer.Dial("tcp", uri.Host)
	if err != nil {
		return nil, err
	}

	if tcp, ok := conn.(*net.TCPConn); ok {
		if err := d.size(tcp); err != nil {
			conn.Close() //nolint:errcheck // Best effort cleanup on error path
			return nil, err
		}
	}

	if !secure {
		return conn, nil
	}

	tc := &tls.Config{MinVersion: tlsMinVersion}
	if d.tls != nil {
		tc = d.tls.Clone()
	}
	if tc.ServerName == "" {
		tc.ServerName = uri.Hostname()
	}
	tlsConn := tls.Client(conn, tc)
	_ = conn.SetDeadline(time.Now().Add(d.timeout)) //nolint:errcheck // Handshake reports a dead conn
	if err := tlsConn.Handshake(); err != nil {
		conn.Close() //nolint:errcheck // Best effort cleanup on error path
		return nil, err
	}
	_ = conn.SetDeadline(time.Time{}) //nolint:errcheck // Cleared for paho's own timeouts
	return tlsConn, nil
}

func (d *bufferedDialer) size(conn *net.TCPConn) error {
	if d.sendBuf > 0 {
		if err := conn.SetWriteBuffer(d.sendBuf); err != nil {
			return fmt.Errorf("setting send buffer: %w", err)
		}
	}
	if d.recvBuf > 0 {
		if err := conn.SetReadBuffer(d.recvBuf); err != nil {
			return fmt.Errorf("setting receive buffer: %w", err)
		}
	}
	return nil
}
