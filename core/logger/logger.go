package logger

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"github.com/m3rciful/paperbot/core/buildinfo"
	coreconfig "github.com/m3rciful/paperbot/core/config"
)

const defaultDebugSample = "1/50"

var (
	initOnce sync.Once
	closeMu  sync.Mutex
	closed   bool

	logWriter  *asyncWriter
	logClosers []io.Closer

	levelVar      slog.LevelVar
	debugSampler  ratioSampler
	traceOverride bool

	// L is the base logger. It stays nil until InitLogger runs; the
	// component helpers below are no-ops until then.
	L *slog.Logger
)

// settings is the resolved form of coreconfig.LoggingConfig.
type settings struct {
	format  logFormat
	order   []string
	level   slog.Level
	sample  string
	profile string
	file    string
}

func resolve(cfg *coreconfig.Config) settings {
	s := settings{
		format:  formatJSON,
		order:   append([]string(nil), defaultKeyOrder...),
		level:   slog.LevelInfo,
		sample:  defaultDebugSample,
		profile: "prod",
	}
	if cfg == nil {
		return s
	}
	lc := cfg.Logging
	if p := strings.ToLower(strings.TrimSpace(lc.Profile)); p != "" {
		s.profile = p
	}
	switch strings.ToLower(strings.TrimSpace(lc.Format)) {
	case "kv", "text", "pretty":
		s.format = formatKV
	case "json":
	default:
		if s.profile == "dev" || s.profile == "debug" {
			s.format = formatKV
		}
	}
	if order := splitList(lc.KeysOrder); len(order) > 0 && lc.KeysOrder != "default" {
		s.order = order
	}
	if err := s.level.UnmarshalText([]byte(normalizeLevel(strings.TrimSpace(lc.Level)))); err != nil {
		s.level = slog.LevelInfo
	}
	if v := strings.TrimSpace(lc.DebugSample); v != "" {
		s.sample = v
	}
	if dir, name := strings.TrimSpace(lc.Dir), strings.TrimSpace(lc.BotFile); dir != "" && name != "" {
		s.file = filepath.Join(dir, name)
	}
	return s
}

func splitList(raw string) []string {
	var out []string
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// InitLogger installs the process-wide logger. Calls after the first are
// no-ops.
func InitLogger(cfg *coreconfig.Config) error {
	var err error
	initOnce.Do(func() {
		s := resolve(cfg)
		levelVar.Set(s.level)
		debugSampler.Set(debugRatio(s.sample))
		traceOverride = isTruthy(os.Getenv("TRACE")) || isTruthy(os.Getenv("LOG_TRACE"))

		outputs := []io.Writer{os.Stdout}
		if s.file != "" {
			f, ferr := openLogFile(s.file)
			if ferr != nil {
				err = ferr
				return
			}
			outputs = append(outputs, f)
			logClosers = append(logClosers, f)
		}
		logWriter = newAsyncWriter(outputs, 512)

		L = slog.New(newStructuredHandler(handlerConfig{
			level:    &levelVar,
			writer:   logWriter,
			format:   s.format,
			keyOrder: s.order,
		}))
		slog.SetDefault(L)

		Info(context.Background(), "app", "startup",
			slog.String("go_version", runtime.Version()),
			slog.String("build_commit", buildinfo.Commit),
			slog.String("build_time", buildinfo.Date),
			slog.String("cfg_profile", s.profile),
			slog.String("format", string(s.format)),
		)
	})
	return err
}

func openLogFile(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("logger: create log dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("logger: open log file: %w", err)
	}
	return f, nil
}

// debugRatio parses a "num/den" sample spec. "0/0" lets every debug line
// through; anything unparsable falls back to the default.
func debugRatio(spec string) (int, int) {
	if strings.ReplaceAll(spec, " ", "") == "0/0" {
		return 0, 0
	}
	if num, den := parseRatioSpec(spec); num > 0 && den > 0 {
		return num, den
	}
	return parseRatioSpec(defaultDebugSample)
}

func isTruthy(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "on", "yes":
		return true
	}
	return false
}

// Shutdown flushes buffered output and closes log files. It is safe to call
// more than once.
func Shutdown() error {
	closeMu.Lock()
	defer closeMu.Unlock()
	if closed {
		return nil
	}
	closed = true

	var errs []error
	if logWriter != nil {
		errs = append(errs, logWriter.Flush(), logWriter.Close())
	}
	for _, c := range logClosers {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}

// LogEvent writes event at level through logg, falling back to the context
// logger and then L.
func LogEvent(ctx context.Context, logg *slog.Logger, level slog.Level, event string, attrs ...slog.Attr) {
	if logg == nil {
		logg = FromContext(ctx)
	}
	if logg == nil {
		logg = L
	}
	if logg == nil {
		return
	}
	if event != "" {
		attrs = append([]slog.Attr{slog.String("event", event)}, attrs...)
	}
	logg.LogAttrs(ctx, level, "", attrs...)
}

// Component returns L tagged with name, or nil before InitLogger.
func Component(name string) *slog.Logger {
	if L == nil {
		return nil
	}
	if name = strings.TrimSpace(name); name == "" {
		return L
	}
	return L.With("component", name)
}

// Event logs through the component logger, or through the context logger
// when InitLogger has not run.
func Event(ctx context.Context, component string, level slog.Level, event string, attrs ...slog.Attr) {
	logg := Component(component)
	if logg == nil {
		if logg = FromContext(ctx); logg != nil && strings.TrimSpace(component) != "" {
			logg = logg.With("component", strings.TrimSpace(component))
		}
	}
	LogEvent(ctx, logg, level, event, attrs...)
}

func Debug(ctx context.Context, component, event string, attrs ...slog.Attr) {
	Event(ctx, component, slog.LevelDebug, event, attrs...)
}

func Info(ctx context.Context, component, event string, attrs ...slog.Attr) {
	Event(ctx, component, slog.LevelInfo, event, attrs...)
}

func Warn(ctx context.Context, component, event string, attrs ...slog.Attr) {
	Event(ctx, component, slog.LevelWarn, event, attrs...)
}

func Error(ctx context.Context, component, event string, attrs ...slog.Attr) {
	Event(ctx, component, slog.LevelError, event, attrs...)
}

// ShouldSampleDebug reports whether a high-volume debug line should be
// written. TRACE=1 forces every line through.
func ShouldSampleDebug() bool {
	return traceOverride || debugSampler.Allow()
}
