// mqttbridge drives the libmqtt binding from Go.
//
// It loads a set of clients and their subscriptions from YAML, connects
// them through the paho engine, and prints every inbound message until
// interrupted. Bridge events are logged and, when the api section is
// enabled, streamed to WebSocket clients alongside a small status API.
// It doubles as a smoke test of the binding against a real broker.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/skyformat99/libmqtt-3/internal/api"
	"github.com/skyformat99/libmqtt-3/internal/binding"
	"github.com/skyformat99/libmqtt-3/internal/infrastructure/config"
	"github.com/skyformat99/libmqtt-3/internal/infrastructure/influxdb"
	"github.com/skyformat99/libmqtt-3/internal/infrastructure/logging"
	"github.com/skyformat99/libmqtt-3/internal/infrastructure/mqtt"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Default configuration file path
const defaultConfigPath = "configs/bridge.yaml"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the application logic, separated from main for testability.
// Messages are printed to out; logs go where the config sends them.
func run(ctx context.Context, out io.Writer) error {
	log := logging.Default()
	log.Info("starting mqttbridge",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	stats := &binding.Stats{}
	observers := []binding.Observer{stats}

	// Connect to InfluxDB (optional)
	if cfg.InfluxDB.Enabled {
		tel, err := influxdb.Connect(ctx, cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := tel.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		tel.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		if err := tel.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
		observers = append(observers, tel)
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
	} else {
		log.Info("InfluxDB disabled")
	}

	br, err := newBridge(mqtt.NewEngine(log), log, out, observers...)
	if err != nil {
		return fmt.Errorf("creating binding: %w", err)
	}

	// Start status server (optional)
	if cfg.API.Enabled {
		srv, err := api.New(api.Deps{
			Config:  cfg.API,
			WS:      cfg.WebSocket,
			Logger:  log,
			Stats:   stats,
			Clients: br.b.Len,
			Version: version,
		})
		if err != nil {
			return fmt.Errorf("creating API server: %w", err)
		}
		if err := srv.Start(ctx); err != nil {
			return fmt.Errorf("starting API server: %w", err)
		}
		defer func() {
			if closeErr := srv.Close(); closeErr != nil {
				log.Error("error closing API server", "error", closeErr)
			}
		}()
		br.tap = srv.Publish
	} else {
		log.Info("API server disabled")
	}

	ids, err := br.start(cfg.Clients)
	if err != nil {
		br.destroyAll(ids, true)
		return fmt.Errorf("starting clients: %w", err)
	}
	log.Info("initialisation complete, waiting for shutdown signal", "clients", len(ids))

	serveErr := br.serve(ctx, ids)

	for kind := binding.EventConnect; kind <= binding.EventMessage; kind++ {
		log.Info("event totals",
			"event", kind.String(),
			"dispatched", stats.Dispatched(kind),
			"dropped", stats.Dropped(kind),
		)
	}
	if serveErr != nil {
		return fmt.Errorf("serving clients: %w", serveErr)
	}
	log.Info("mqttbridge stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses LIBMQTT_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("LIBMQTT_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}
