// Package logging provides structured logging for the go-virtgpu
// driver, backed by zerolog.
package logging

import (
	"context"
	"io"
	"os"
	"sync"

	"github.com/rs/zerolog"
)

// Logger carries driver context (queue, resource, scanout) into every
// line it emits.
type Logger struct {
	zlog zerolog.Logger
}

var (
	defaultLogger *Logger
	mu            sync.RWMutex
)

// LogLevel mirrors zerolog's levels.
type LogLevel int

const (
	LevelDebug LogLevel = LogLevel(zerolog.DebugLevel)
	LevelInfo  LogLevel = LogLevel(zerolog.InfoLevel)
	LevelWarn  LogLevel = LogLevel(zerolog.WarnLevel)
	LevelError LogLevel = LogLevel(zerolog.ErrorLevel)
)

// Config holds logging configuration.
type Config struct {
	Level   LogLevel
	Format  string // "json" or "text"
	Output  io.Writer
	Sync    bool // synchronous writes, for tests
	NoColor bool
}

// DefaultConfig returns text logging at info level on stderr.
func DefaultConfig() *Config {
	return &Config{
		Level:  LevelInfo,
		Format: "text",
		Output: os.Stderr,
	}
}

// asyncWriter decouples log emission from the caller. Cursor updates
// are latency-sensitive, so a full buffer drops the line instead of
// blocking the submitter.
type asyncWriter struct {
	out    io.Writer
	ch     chan []byte
	done   chan struct{}
	mu     sync.Mutex
	closed bool
}

func newAsyncWriter(w io.Writer, depth int) *asyncWriter {
	aw := &asyncWriter{
		out:  w,
		ch:   make(chan []byte, depth),
		done: make(chan struct{}),
	}
	go func() {
		defer close(aw.done)
		for msg := range aw.ch {
			aw.out.Write(msg)
		}
	}()
	return aw
}

func (aw *asyncWriter) Write(p []byte) (int, error) {
	aw.mu.Lock()
	closed := aw.closed
	aw.mu.Unlock()
	if closed {
		return 0, io.ErrClosedPipe
	}
	msg := make([]byte, len(p))
	copy(msg, p)
	select {
	case aw.ch <- msg:
	default:
		// Buffer full; drop rather than stall the queue lock holder.
	}
	return len(p), nil
}

func (aw *asyncWriter) Close() error {
	aw.mu.Lock()
	if !aw.closed {
		aw.closed = true
		close(aw.ch)
	}
	aw.mu.Unlock()
	<-aw.done
	return nil
}

// NewLogger creates a structured logger from config.
func NewLogger(config *Config) *Logger {
	if config == nil {
		config = DefaultConfig()
	}
	var output io.Writer = config.Output
	if !config.Sync {
		output = newAsyncWriter(config.Output, 1000)
	}
	var zlog zerolog.Logger
	switch config.Format {
	case "json":
		zlog = zerolog.New(output).With().Timestamp().Logger()
	default:
		cw := zerolog.ConsoleWriter{Out: output, NoColor: config.NoColor}
		zlog = zerolog.New(cw).With().Timestamp().Logger()
	}
	return &Logger{zlog: zlog.Level(zerolog.Level(config.Level))}
}

// Default returns the process-wide logger, creating it on first use.
func Default() *Logger {
	mu.RLock()
	if defaultLogger != nil {
		defer mu.RUnlock()
		return defaultLogger
	}
	mu.RUnlock()

	mu.Lock()
	defer mu.Unlock()
	if defaultLogger == nil {
		defaultLogger = NewLogger(nil)
	}
	return defaultLogger
}

// SetDefault replaces the process-wide logger.
func SetDefault(logger *Logger) {
	mu.Lock()
	defer mu.Unlock()
	defaultLogger = logger
}

// WithQueue tags lines with the virtqueue name ("control", "cursor").
func (l *Logger) WithQueue(name string) *Logger {
	return &Logger{zlog: l.zlog.With().Str("queue", name).Logger()}
}

// WithResource tags lines with a GPU resource id.
func (l *Logger) WithResource(id uint32) *Logger {
	return &Logger{zlog: l.zlog.With().Uint32("resource_id", id).Logger()}
}

// WithScanout tags lines with a scanout index.
func (l *Logger) WithScanout(idx uint32) *Logger {
	return &Logger{zlog: l.zlog.With().Uint32("scanout", idx).Logger()}
}

// WithError attaches an error to subsequent lines.
func (l *Logger) WithError(err error) *Logger {
	return &Logger{zlog: l.zlog.With().Err(err).Logger()}
}

func (l *Logger) emit(event *zerolog.Event, msg string, args []any) {
	for i := 0; i+1 < len(args); i += 2 {
		key, ok := args[i].(string)
		if !ok {
			continue
		}
		event = event.Interface(key, args[i+1])
	}
	event.Msg(msg)
}

func (l *Logger) Debug(msg string, args ...any) { l.emit(l.zlog.Debug(), msg, args) }
func (l *Logger) Info(msg string, args ...any)  { l.emit(l.zlog.Info(), msg, args) }
func (l *Logger) Warn(msg string, args ...any)  { l.emit(l.zlog.Warn(), msg, args) }
func (l *Logger) Error(msg string, args ...any) { l.emit(l.zlog.Error(), msg, args) }

func (l *Logger) Debugf(format string, args ...any) { l.zlog.Debug().Msgf(format, args...) }
func (l *Logger) Infof(format string, args ...any)  { l.zlog.Info().Msgf(format, args...) }
func (l *Logger) Warnf(format string, args ...any)  { l.zlog.Warn().Msgf(format, args...) }
func (l *Logger) Errorf(format string, args ...any) { l.zlog.Error().Msgf(format, args...) }

// Context-aware variants for callers that thread a context.Context.
func (l *Logger) DebugContext(_ context.Context, msg string, args ...any) { l.Debug(msg, args...) }
func (l *Logger) InfoContext(_ context.Context, msg string, args ...any)  { l.Info(msg, args...) }
func (l *Logger) WarnContext(_ context.Context, msg string, args ...any)  { l.Warn(msg, args...) }
func (l *Logger) ErrorContext(_ context.Context, msg string, args ...any) { l.Error(msg, args...) }

// Package-level helpers on the default logger.
func Debug(msg string, args ...any) { Default().Debug(msg, args...) }
func Info(msg string, args ...any)  { Default().Info(msg, args...) }
func Warn(msg string, args ...any)  { Default().Warn(msg, args...) }
func Error(msg string, args ...any) { Default().Error(msg, args...) }
