// Package logx provides component-tagged logging with context-aware debug logging.
//
// Every logger writes through one shared zap core. Call Configure once at startup to pick
// the level, encoding and output; loggers created earlier pick up the new core on their
// next write.
package logx

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Level is a textual log level as accepted by Configure.
type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// Output encodings.
const (
	FormatConsole = "console"
	FormatJSON    = "json"
)

// Options controls the shared logging core.
type Options struct {
	Level  Level
	Format string    // console or json
	Output io.Writer // defaults to stderr
}

type ctxKey struct{}

var (
	level = zap.NewAtomicLevelAt(zapcore.InfoLevel)

	coreMu     sync.RWMutex
	sharedCore zapcore.Core
	generation atomic.Uint64

	debugMu      sync.RWMutex
	debugEnabled bool
	debugDomains map[string]bool // nil = all domains
)

func init() { //nolint:gochecknoinits // env-driven debug switches must apply before first use
	sharedCore = newCore(FormatConsole, os.Stderr)
	initDebugFromEnv()
}

// initDebugFromEnv reads DEBUG and DEBUG_DOMAINS.
//
//	DEBUG=1                          # debug for every domain
//	DEBUG=1 DEBUG_DOMAINS=dispatch   # debug only for dispatch
func initDebugFromEnv() {
	if debug := os.Getenv("DEBUG"); debug == "1" || strings.EqualFold(debug, "true") {
		debugMu.Lock()
		debugEnabled = true
		debugMu.Unlock()
		level.SetLevel(zapcore.DebugLevel)
	}
	if domains := os.Getenv("DEBUG_DOMAINS"); domains != "" {
		SetDebugDomains(strings.Split(domains, ","))
	}
}

func newCore(format string, out io.Writer) zapcore.Core {
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "ts"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	var enc zapcore.Encoder
	if format == FormatJSON {
		enc = zapcore.NewJSONEncoder(encCfg)
	} else {
		encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		enc = zapcore.NewConsoleEncoder(encCfg)
	}
	return zapcore.NewCore(enc, zapcore.Lock(zapcore.AddSync(out)), level)
}

// Configure replaces the shared core. An empty level keeps the current one.
func Configure(opts Options) error {
	if opts.Format != "" && opts.Format != FormatConsole && opts.Format != FormatJSON {
		return fmt.Errorf("unknown log format %q", opts.Format)
	}
	if opts.Level != "" {
		var l zapcore.Level
		if err := l.UnmarshalText([]byte(opts.Level)); err != nil {
			return fmt.Errorf("invalid log level %q: %w", opts.Level, err)
		}
		level.SetLevel(l)
		debugMu.Lock()
		debugEnabled = l == zapcore.DebugLevel
		debugMu.Unlock()
	}
	out := opts.Output
	if out == nil {
		out = os.Stderr
	}
	ReplaceCore(newCore(opts.Format, out))
	return nil
}

// ReplaceCore swaps the shared core and returns a function restoring the previous one.
// Tests use it with zaptest/observer.
func ReplaceCore(c zapcore.Core) func() {
	coreMu.Lock()
	prev := sharedCore
	sharedCore = c
	coreMu.Unlock()
	generation.Add(1)
	return func() {
		coreMu.Lock()
		sharedCore = prev
		coreMu.Unlock()
		generation.Add(1)
	}
}

// SetDebugDomains limits package-level Debug output to the named domains.
// An empty list enables every domain.
func SetDebugDomains(domains []string) {
	debugMu.Lock()
	defer debugMu.Unlock()
	if len(domains) == 0 {
		debugDomains = nil
		return
	}
	debugDomains = make(map[string]bool, len(domains))
	for _, d := range domains {
		debugDomains[strings.TrimSpace(d)] = true
	}
}

// SetDebug toggles debug output for all loggers.
func SetDebug(enabled bool) {
	debugMu.Lock()
	debugEnabled = enabled
	debugMu.Unlock()
	if enabled {
		level.SetLevel(zapcore.DebugLevel)
	} else if level.Level() == zapcore.DebugLevel {
		level.SetLevel(zapcore.InfoLevel)
	}
}

// IsDebugEnabledForDomain reports whether Debug(ctx, domain, ...) would emit.
func IsDebugEnabledForDomain(domain string) bool {
	debugMu.RLock()
	defer debugMu.RUnlock()
	if !debugEnabled {
		return false
	}
	if debugDomains == nil {
		return true
	}
	return debugDomains[domain]
}

// Logger is a component-tagged logger.
type Logger struct {
	component string

	mu    sync.Mutex
	gen   uint64
	sugar *zap.SugaredLogger
}

// NewLogger returns a logger tagged with component.
func NewLogger(component string) *Logger {
	return &Logger{component: component}
}

func (l *Logger) s() *zap.SugaredLogger {
	gen := generation.Load()
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.sugar == nil || l.gen != gen {
		coreMu.RLock()
		c := sharedCore
		coreMu.RUnlock()
		l.sugar = zap.New(c).Sugar().With("component", l.component)
		l.gen = gen
	}
	return l.sugar
}

func (l *Logger) Debug(format string, args ...any) { l.s().Debugf(format, args...) }
func (l *Logger) Info(format string, args ...any)  { l.s().Infof(format, args...) }
func (l *Logger) Warn(format string, args ...any)  { l.s().Warnf(format, args...) }
func (l *Logger) Error(format string, args ...any) { l.s().Errorf(format, args...) }

// Component returns the logger's component tag.
func (l *Logger) Component() string {
	return l.component
}

// WithComponent returns a logger sharing the core under a different tag.
func (l *Logger) WithComponent(component string) *Logger {
	return NewLogger(component)
}

// ContextWithComponent attaches a component tag used by the package-level Debug.
func ContextWithComponent(ctx context.Context, component string) context.Context {
	return context.WithValue(ctx, ctxKey{}, component)
}

// Debug logs a debug message tagged with domain, filtered by DEBUG_DOMAINS.
//
//	logx.Debug(ctx, "dispatch", "popped %s (priority %d)", id, p)
//	logx.Debug(ctx, "rag", "%d terms extracted", n)
func Debug(ctx context.Context, domain, format string, args ...any) {
	if !IsDebugEnabledForDomain(domain) {
		return
	}
	component := "unknown"
	if ctx != nil {
		if c, ok := ctx.Value(ctxKey{}).(string); ok {
			component = c
		}
	}
	NewLogger(component).s().With("domain", domain).Debugf(format, args...)
}

var defaultLogger = NewLogger("system")

func Infof(format string, args ...any) { defaultLogger.Info(format, args...) }
func Warnf(format string, args ...any) { defaultLogger.Warn(format, args...) }

// Errorf logs and returns the formatted error.
//
//	return logx.Errorf("open store: %w", err)
func Errorf(format string, args ...any) error {
	err := fmt.Errorf(format, args...)
	defaultLogger.Error("%s", err.Error())
	return err
}

// Wrap logs msg + ": " + err.Error() and returns fmt.Errorf("%s: %w", msg, err).
func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	wrapped := fmt.Errorf("%s: %w", msg, err)
	defaultLogger.Error("%s", wrapped.Error())
	return wrapped
}

// Sync flushes the shared core.
func Sync() error {
	coreMu.RLock()
	c := sharedCore
	coreMu.RUnlock()
	return c.Sync()
}
