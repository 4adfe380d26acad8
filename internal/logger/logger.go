package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
)

type Level slog.Level

var (
	LevelDebug = Level(slog.LevelDebug)
	LevelInfo  = Level(slog.LevelInfo)
	LevelWarn  = Level(slog.LevelWarn)
	LevelError = Level(slog.LevelError)
)

// ParseLevel maps a config string to a Level. Unknown values yield LevelInfo.
func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

type Option func(*options)

type options struct {
	name    string
	level   Level
	handler slog.Handler
}

func WithName(name string) Option {
	return func(o *options) {
		o.name = name
	}
}

func WithLevel(level Level) Option {
	return func(o *options) {
		o.level = level
	}
}

// WithHandler replaces the tint handler, mostly for tests.
func WithHandler(h slog.Handler) Option {
	return func(o *options) {
		o.handler = h
	}
}

// New returns a slog.Logger writing to stderr through tint. Colors and the
// short time format are only used when stderr is a terminal.
func New(opts ...Option) *slog.Logger {
	o := &options{level: LevelInfo}
	for _, opt := range opts {
		opt(o)
	}

	h := o.handler
	if h == nil {
		isTerminal := isatty.IsTerminal(os.Stderr.Fd())
		timeFormat := time.Stamp
		if !isTerminal {
			timeFormat = time.RFC3339
		}
		h = tint.NewHandler(os.Stderr, &tint.Options{
			Level:      slog.Level(o.level),
			NoColor:    !isTerminal,
			TimeFormat: timeFormat,
		})
	}

	l := slog.New(h)
	if o.name != "" {
		l = l.With("component", o.name)
	}
	return l
}

// Discard returns a logger that drops everything.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
