// Package logging provides structured logging for the libmqtt bridge.
//
// This package wraps Go's standard log/slog package to provide
// consistent, structured logging across the binding, the engine and the
// driver command.
//
// # Features
//
//   - JSON output for production (machine-parsable)
//   - Text output for development (human-readable)
//   - Default fields (service, version) on all log entries
//   - Level-based filtering (debug, info, warn, error)
//   - Per-client verbosity (silent, verbose, debug, info, warning, error)
//     layered on top of the process logger
//   - Thread-safe for concurrent use
//
// # Configuration
//
// Logging is configured via the LoggingConfig in the bridge config file:
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// # Usage
//
//	logger := logging.New(cfg.Logging, "1.0.0")
//	logger.Info("client set up", "client", 1)
//	logger.ForClient(config.LogWarning).Warn("network error", "error", err)
//
// # Security
//
// Never log MQTT passwords, tokens or message payloads.
package logging
