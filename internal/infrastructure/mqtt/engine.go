package mqtt

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/skyformat99/libmqtt-3/internal/engine"
	"github.com/skyformat99/libmqtt-3/internal/infrastructure/config"
	"github.com/skyformat99/libmqtt-3/internal/infrastructure/logging"
)

// Engine builds paho-backed clients.
type Engine struct {
	log *logging.Logger
}

var routePahoLogs sync.Once

// NewEngine returns an engine logging through log.
//
// paho's loggers are process-wide; the first engine created routes them to
// its logger and later engines leave them in place.
func NewEngine(log *logging.Logger) *Engine {
	if log == nil {
		log = logging.Nop()
	}
	log = log.With("component", "mqtt")

	routePahoLogs.Do(func() {
		pahomqtt.ERROR = pahoLogger{log: log, level: slog.LevelError}
		pahomqtt.CRITICAL = pahoLogger{log: log, level: slog.LevelError}
		pahomqtt.WARN = pahoLogger{log: log, level: slog.LevelWarn}
		pahomqtt.DEBUG = pahoLogger{log: log, level: logging.LevelVerbose}
	})

	return &Engine{log: log}
}

// Setup implements engine.Engine. It loads TLS material and builds options
// but does not dial.
func (e *Engine) Setup(cfg config.ClientConfig) (engine.Client, error) {
	c, err := newClient(cfg, e.log)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// pahoLogger adapts slog to paho's Println/Printf logger interface.
type pahoLogger struct {
	log   *logging.Logger
	level slog.Level
}

func (p pahoLogger) Println(v ...any) {
	p.emit(strings.TrimSuffix(fmt.Sprintln(v...), "\n"))
}

func (p pahoLogger) Printf(format string, v ...any) {
	p.emit(fmt.Sprintf(format, v...))
}

func (p pahoLogger) emit(msg string) {
	ctx := context.Background()
	if !p.log.Enabled(ctx, p.level) {
		return
	}
	p.log.Log(ctx, p.level, msg, "source", "paho")
}
