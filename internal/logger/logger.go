// Package logger provides structured logging for the entitystore server
package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Logger wraps zerolog with entitystore-specific events
type Logger struct {
	zlog zerolog.Logger
}

// Config holds logger configuration
type Config struct {
	Level      string // trace, debug, info, warn, error
	Pretty     bool   // console output for development
	Output     io.Writer
	WithCaller bool
}

// ParseLevel maps a config level name to a zerolog level, defaulting to info
func ParseLevel(name string) zerolog.Level {
	if name == "" {
		return zerolog.InfoLevel
	}
	level, err := zerolog.ParseLevel(name)
	if err != nil || level == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return level
}

// NewLogger creates a logger tagged with the service name. The level is
// per logger, so tests can run several side by side.
func NewLogger(cfg Config) *Logger {
	var out io.Writer = os.Stdout
	if cfg.Output != nil {
		out = cfg.Output
	}
	if cfg.Pretty {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}

	ctx := zerolog.New(out).
		Level(ParseLevel(cfg.Level)).
		With().
		Timestamp().
		Str("service", "entitystore")
	if cfg.WithCaller {
		ctx = ctx.Caller()
	}
	return &Logger{zlog: ctx.Logger()}
}

// Nop returns a logger that discards everything
func Nop() *Logger {
	return &Logger{zlog: zerolog.Nop()}
}

// Zerolog returns the underlying zerolog logger, for handing to library packages
func (l *Logger) Zerolog() zerolog.Logger {
	return l.zlog
}

// Component returns a child logger whose lines carry component=name
func (l *Logger) Component(name string) *Logger {
	return &Logger{zlog: l.zlog.With().Str("component", name).Logger()}
}

// Info starts an info event with msg
func (l *Logger) Info(msg string) *zerolog.Event {
	return l.zlog.Info().Str("msg", msg)
}

// Warn starts a warning event with msg
func (l *Logger) Warn(msg string) *zerolog.Event {
	return l.zlog.Warn().Str("msg", msg)
}

// Error starts an error event with msg
func (l *Logger) Error(msg string) *zerolog.Event {
	return l.zlog.Error().Str("msg", msg)
}

// LogGrpcRequest logs a completed gRPC request
func (l *Logger) LogGrpcRequest(method string, duration time.Duration, err error) {
	event := l.zlog.Info()
	if err != nil {
		event = l.zlog.Error().Err(err)
	}
	event.
		Str("component", "grpc").
		Str("method", method).
		Dur("duration_ms", duration).
		Msg("gRPC request completed")
}

// LogStoreOperation logs a completed entity operation
func (l *Logger) LogStoreOperation(operation, class string, duration time.Duration, err error) {
	event := l.zlog.Debug()
	if err != nil {
		event = l.zlog.Error().Err(err)
	}
	event.
		Str("component", "store").
		Str("operation", operation).
		Str("class", class).
		Dur("duration_ms", duration).
		Msg("Store operation completed")
}

// LogSchemaLoaded logs the entity classes a schema file registered
func (l *Logger) LogSchemaLoaded(path string, classes []string) {
	l.zlog.Info().
		Str("event", "schema_loaded").
		Str("path", path).
		Strs("classes", classes).
		Msg("entity schema loaded")
}

// ServerInfo describes a starting server
type ServerInfo struct {
	GrpcPort    int
	MetricsPort int
	Store       string
	Search      string
}

// LogServerStart logs server startup
func (l *Logger) LogServerStart(info ServerInfo) {
	l.zlog.Info().
		Str("event", "server_start").
		Int("grpc_port", info.GrpcPort).
		Int("metrics_port", info.MetricsPort).
		Str("store", info.Store).
		Str("search", info.Search).
		Msg("entitystore server starting")
}

// LogServerShutdown logs server shutdown and what triggered it
func (l *Logger) LogServerShutdown(reason string) {
	l.zlog.Info().
		Str("event", "server_shutdown").
		Str("reason", reason).
		Msg("entitystore server shutting down")
}

// InitGlobalLogger builds a logger and installs it as the zerolog default
func InitGlobalLogger(cfg Config) *Logger {
	l := NewLogger(cfg)
	log.Logger = l.zlog
	return l
}
