// Package zlog adapts zerolog to the pion logging interfaces used across
// the module, so binaries get structured output with per-scope levels.
package zlog

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/pion/logging"
	"github.com/rs/zerolog"
)

// Output formats.
const (
	FormatConsole = "console"
	FormatJSON    = "json"
)

// ErrInvalidConfig is returned for unknown formats or levels.
var ErrInvalidConfig = errors.New("zlog: invalid config")

// Config configures a Factory.
type Config struct {
	// Writer receives log output. Defaults to os.Stderr.
	Writer io.Writer

	// Format is FormatConsole (default) or FormatJSON.
	Format string

	// Level is the default level name ("trace" through "error", or
	// "disabled"). Defaults to "info".
	Level string

	// Scopes overrides the level per scope, e.g. {"ota": "debug"}.
	Scopes map[string]string

	// App is added to every entry when set.
	App string
}

// ParseLevel maps a level name to a zerolog level.
func ParseLevel(s string) (zerolog.Level, error) {
	if s == "" {
		return zerolog.InfoLevel, nil
	}
	l, err := zerolog.ParseLevel(strings.ToLower(s))
	if err != nil {
		return zerolog.NoLevel, fmt.Errorf("%w: level %q", ErrInvalidConfig, s)
	}
	return l, nil
}

// ParseScopes parses "scope=level,scope=level" as given on the command
// line.
func ParseScopes(s string) (map[string]string, error) {
	scopes := make(map[string]string)
	for _, kv := range strings.Split(s, ",") {
		kv = strings.TrimSpace(kv)
		if kv == "" {
			continue
		}
		scope, level, ok := strings.Cut(kv, "=")
		if !ok || scope == "" {
			return nil, fmt.Errorf("%w: scope level %q", ErrInvalidConfig, kv)
		}
		if _, err := ParseLevel(level); err != nil {
			return nil, err
		}
		scopes[scope] = level
	}
	return scopes, nil
}

// Factory is a logging.LoggerFactory writing through zerolog.
type Factory struct {
	base   zerolog.Logger
	level  zerolog.Level
	scopes map[string]zerolog.Level
}

// New creates a Factory from cfg.
func New(cfg Config) (*Factory, error) {
	w := cfg.Writer
	if w == nil {
		w = os.Stderr
	}
	switch cfg.Format {
	case "", FormatConsole:
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	case FormatJSON:
	default:
		return nil, fmt.Errorf("%w: format %q", ErrInvalidConfig, cfg.Format)
	}
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	f := &Factory{level: level, scopes: make(map[string]zerolog.Level, len(cfg.Scopes))}
	for scope, name := range cfg.Scopes {
		l, err := ParseLevel(name)
		if err != nil {
			return nil, err
		}
		f.scopes[scope] = l
	}
	if f.minLevel() == zerolog.TraceLevel {
		zerolog.SetGlobalLevel(zerolog.TraceLevel)
	}
	zc := zerolog.New(w).With().Timestamp()
	if cfg.App != "" {
		zc = zc.Str("app", cfg.App)
	}
	f.base = zc.Logger()
	return f, nil
}

func (f *Factory) minLevel() zerolog.Level {
	m := f.level
	for _, l := range f.scopes {
		m = min(m, l)
	}
	return m
}

// NewLogger implements logging.LoggerFactory.
func (f *Factory) NewLogger(scope string) logging.LeveledLogger {
	level, ok := f.scopes[scope]
	if !ok {
		level = f.level
	}
	return &logger{zl: f.base.Level(level).With().Str("scope", scope).Logger()}
}

// Zerolog returns the underlying logger for code that logs directly.
func (f *Factory) Zerolog() zerolog.Logger {
	return f.base.Level(f.level)
}

type logger struct {
	zl zerolog.Logger
}

func (l *logger) Trace(msg string) { l.zl.Trace().Msg(msg) }
func (l *logger) Tracef(format string, args ...interface{}) { l.zl.Trace().Msgf(format, args...) }
func (l *logger) Debug(msg string) { l.zl.Debug().Msg(msg) }
func (l *logger) Debugf(format string, args ...interface{}) { l.zl.Debug().Msgf(format, args...) }
func (l *logger) Info(msg string) { l.zl.Info().Msg(msg) }
func (l *logger) Infof(format string, args ...interface{}) { l.zl.Info().Msgf(format, args...) }
func (l *logger) Warn(msg string) { l.zl.Warn().Msg(msg) }
func (l *logger) Warnf(format string, args ...interface{}) { l.zl.Warn().Msgf(format, args...) }
func (l *logger) Error(msg string) { l.zl.Error().Msg(msg) }
func (l *logger) Errorf(format string, args ...interface{}) { l.zl.Error().Msgf(format, args...) }
