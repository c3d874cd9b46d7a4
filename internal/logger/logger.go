package logger

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/ekisa-team/leafsight/internal/env"
)

const (
	defaultLogFile    = "logs/leafsight.log"
	defaultMaxSizeMB  = 50
	defaultMaxBackups = 5
	defaultMaxAgeDays = 28
)

type options struct {
	output    io.Writer
	logFile   string
	logToFile bool
	level     *slog.Level
}

// Option configures New.
type Option func(*options)

// WithLogToFile enables the rotating file sink.
func WithLogToFile(enabled bool) Option {
	return func(o *options) {
		o.logToFile = enabled
	}
}

// WithLogFile sets the rotating file path. Only used when logging to file is enabled.
func WithLogFile(path string) Option {
	return func(o *options) {
		o.logFile = path
	}
}

// WithOutput replaces stderr as the console writer.
func WithOutput(w io.Writer) Option {
	return func(o *options) {
		o.output = w
	}
}

// WithLevel forces a minimum level regardless of environment.
func WithLevel(level slog.Level) Option {
	return func(o *options) {
		o.level = &level
	}
}

// New builds the process logger for the given environment.
//
// Development logs go to the console through tint, colored only when the
// console is a terminal. Production logs are JSON. When file logging is
// enabled, records are also written as JSON to a lumberjack-rotated file.
func New(environment env.Environment, opts ...Option) *slog.Logger {
	o := &options{
		output:  os.Stderr,
		logFile: defaultLogFile,
	}
	for _, opt := range opts {
		opt(o)
	}

	level := slog.LevelDebug
	if environment.IsProduction() {
		level = slog.LevelInfo
	}
	if o.level != nil {
		level = *o.level
	}

	var console slog.Handler
	if environment.IsProduction() {
		console = slog.NewJSONHandler(o.output, &slog.HandlerOptions{Level: level})
	} else {
		console = tint.NewHandler(o.output, &tint.Options{
			Level:      level,
			TimeFormat: time.Kitchen,
			NoColor:    !isTerminal(o.output),
		})
	}

	if !o.logToFile {
		return slog.New(console)
	}

	file := &lumberjack.Logger{
		Filename:   o.logFile,
		MaxSize:    defaultMaxSizeMB,
		MaxBackups: defaultMaxBackups,
		MaxAge:     defaultMaxAgeDays,
		Compress:   true,
	}

	return slog.New(fanout{
		console,
		slog.NewJSONHandler(file, &slog.HandlerOptions{Level: level}),
	})
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}

	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// fanout dispatches every record to all handlers that accept its level.
type fanout []slog.Handler

func (f fanout) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range f {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (f fanout) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, h := range f {
		if h.Enabled(ctx, r.Level) {
			errs = append(errs, h.Handle(ctx, r.Clone()))
		}
	}
	return errors.Join(errs...)
}

func (f fanout) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make(fanout, len(f))
	for i, h := range f {
		out[i] = h.WithAttrs(attrs)
	}
	return out
}

func (f fanout) WithGroup(name string) slog.Handler {
	out := make(fanout, len(f))
	for i, h := range f {
		out[i] = h.WithGroup(name)
	}
	return out
}
