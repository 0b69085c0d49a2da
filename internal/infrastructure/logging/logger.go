package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/skyformat99/libmqtt-3/internal/infrastructure/config"
)

// Logger wraps slog.Logger with libmqtt-specific functionality.
//
// It provides structured logging with default fields and level-based filtering.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Logger struct {
	*slog.Logger
}

// New creates a new Logger with the specified configuration.
//
// It configures:
//   - Output format (JSON for production, text for development)
//   - Log level filtering
//   - Default fields (service name, version)
//   - Output destination
//
// Parameters:
//   - cfg: Logging configuration from the bridge config file
//   - version: Application version for default field
//
// Returns:
//   - *Logger: Configured logger ready for use
func New(cfg config.LoggingConfig, version string) *Logger {
	var output io.Writer
	switch strings.ToLower(cfg.Output) {
	case "stderr":
		output = os.Stderr
	default:
		output = os.Stdout
	}

	level := parseLevel(cfg.Level)

	var handler slog.Handler
	opts := &slog.HandlerOptions{
		Level: level,
	}

	switch strings.ToLower(cfg.Format) {
	case "text":
		handler = slog.NewTextHandler(output, opts)
	default:
		handler = slog.NewJSONHandler(output, opts)
	}

	handler = handler.WithAttrs([]slog.Attr{
		slog.String("service", "libmqtt"),
		slog.String("version", version),
	})

	return &Logger{
		Logger: slog.New(handler),
	}
}

// parseLevel converts a string log level to slog.Level.
//
// Supported levels: debug, info, warn, error
// Defaults to info if unrecognised.
func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// LevelVerbose sits below slog.LevelDebug for wire-level chatter.
const LevelVerbose = slog.LevelDebug - 4

// ClientLevel maps a client's configured verbosity onto slog.
// The second result is false for LogSilent, which discards everything.
func ClientLevel(l config.LogLevel) (slog.Level, bool) {
	switch l {
	case config.LogSilent:
		return 0, false
	case config.LogVerbose:
		return LevelVerbose, true
	case config.LogDebug:
		return slog.LevelDebug, true
	case config.LogInfo:
		return slog.LevelInfo, true
	case config.LogWarning:
		return slog.LevelWarn, true
	default:
		return slog.LevelError, true
	}
}

// ForClient returns a logger that keeps l's handler and attributes but only
// passes records at or above the client's configured verbosity.
//
// Example:
//
//	clientLog := logger.ForClient(cfg.LogLevel).With("client", id)
//	clientLog.Debug("publish queued", "topic", topic)
func (l *Logger) ForClient(level config.LogLevel) *Logger {
	floor, enabled := ClientLevel(level)
	if !enabled {
		return Nop()
	}
	return &Logger{Logger: slog.New(&levelHandler{floor: floor, next: l.Handler()})}
}

// With returns a new Logger with additional default attributes.
//
// Parameters:
//   - args: Key-value pairs to add as default attributes
//
// Returns:
//   - *Logger: New logger with added attributes
//
// Example:
//
//	bridgeLogger := logger.With("component", "bridge")
//	bridgeLogger.Info("runtime resolved") // Includes component=bridge
func (l *Logger) With(args ...any) *Logger {
	return &Logger{
		Logger: l.Logger.With(args...),
	}
}

// Default creates a default logger for use before configuration is loaded.
//
// This logger outputs to stdout in JSON format at info level.
// It should only be used during early startup before config is available.
//
// Returns:
//   - *Logger: Default logger
func Default() *Logger {
	return New(config.LoggingConfig{
		Level:  "info",
		Format: "json",
		Output: "stdout",
	}, "dev")
}

// Nop returns a logger that discards every record.
func Nop() *Logger {
	return &Logger{Logger: slog.New(discardHandler{})}
}

// levelHandler raises the minimum level of the handler it wraps.
// Records must pass both its own floor and the wrapped handler's.
type levelHandler struct {
	floor slog.Level
	next  slog.Handler
}

func (h *levelHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return level >= h.floor && h.next.Enabled(ctx, level)
}

func (h *levelHandler) Handle(ctx context.Context, r slog.Record) error {
	return h.next.Handle(ctx, r)
}

func (h *levelHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &levelHandler{floor: h.floor, next: h.next.WithAttrs(attrs)}
}

func (h *levelHandler) WithGroup(name string) slog.Handler {
	return &levelHandler{floor: h.floor, next: h.next.WithGroup(name)}
}

type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (d discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return d }
func (d discardHandler) WithGroup(string) slog.Handler           { return d }
