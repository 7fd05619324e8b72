// Package logger builds the process slog.Logger: charm text for terminals,
// one JSON object per line for collectors.
package logger

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	charmLog "github.com/charmbracelet/log"

	"riddlebot/pkg/config"
)

const (
	formatText = "text"
	formatJSON = "json"

	envLogFormat    = "RIDDLEBOT_LOG_FORMAT"
	envLogLevel     = "RIDDLEBOT_LOG_LEVEL"
	envLogAddSource = "RIDDLEBOT_LOG_ADD_SOURCE"
)

// Top-level attribute keys lifted out of Fields.
const (
	keyComponent = "component"
	keyRequestID = "request_id"
	keySender    = "sender"
)

// LogEntry is the JSON shape of one log line.
type LogEntry struct {
	Level     string         `json:"level"`
	Timestamp string         `json:"timestamp"`
	Component string         `json:"component,omitempty"`
	RequestID string         `json:"request_id,omitempty"`
	Sender    string         `json:"sender,omitempty"`
	Message   string         `json:"message"`
	Fields    map[string]any `json:"fields,omitempty"`
	Caller    string         `json:"caller,omitempty"`
}

type settings struct {
	format    string
	level     slog.Level
	addSource bool
}

// New returns a logger writing to stderr. RIDDLEBOT_LOG_* env vars override cfg.
func New(cfg config.LoggingConfig) (*slog.Logger, error) {
	return newWithWriter(cfg, os.Stderr)
}

func newWithWriter(cfg config.LoggingConfig, writer io.Writer) (*slog.Logger, error) {
	s, err := resolveSettings(cfg)
	if err != nil {
		return nil, err
	}

	if s.format == formatText {
		return slog.New(charmLog.NewWithOptions(writer, charmLog.Options{
			Level:           charmLevel(s.level),
			ReportTimestamp: true,
			ReportCaller:    s.addSource,
			Formatter:       charmLog.TextFormatter,
		})), nil
	}

	return slog.New(&jsonHandler{
		level:     s.level,
		addSource: s.addSource,
		out:       &lockedWriter{w: writer},
	}), nil
}

func resolveSettings(cfg config.LoggingConfig) (settings, error) {
	format := overridden(cfg.Format, envLogFormat, formatText)
	if format != formatText && format != formatJSON {
		return settings{}, fmt.Errorf("unsupported log format %q", format)
	}

	level, err := parseLevel(overridden(cfg.Level, envLogLevel, "info"))
	if err != nil {
		return settings{}, err
	}

	addSource := cfg.AddSource
	if raw := strings.TrimSpace(os.Getenv(envLogAddSource)); raw != "" {
		switch strings.ToLower(raw) {
		case "1", "true", "yes", "on":
			addSource = true
		default:
			addSource = false
		}
	}

	return settings{format: format, level: level, addSource: addSource}, nil
}

// overridden picks the env value, then the config value, then fallback.
func overridden(configValue string, env string, fallback string) string {
	for _, candidate := range []string{os.Getenv(env), configValue} {
		if value := strings.ToLower(strings.TrimSpace(candidate)); value != "" {
			return value
		}
	}
	return fallback
}

func parseLevel(text string) (slog.Level, error) {
	switch text {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unsupported log level %q", text)
	}
}

func charmLevel(level slog.Level) charmLog.Level {
	switch {
	case level <= slog.LevelDebug:
		return charmLog.DebugLevel
	case level <= slog.LevelInfo:
		return charmLog.InfoLevel
	case level <= slog.LevelWarn:
		return charmLog.WarnLevel
	default:
		return charmLog.ErrorLevel
	}
}

type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) writeLine(line []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	_, err := l.w.Write(append(line, '\n'))
	return err
}

// jsonHandler writes LogEntry lines. Derived handlers share one lockedWriter.
type jsonHandler struct {
	level     slog.Level
	addSource bool
	out       *lockedWriter
	attrs     []slog.Attr
	groups    []string
}

func (h *jsonHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *jsonHandler) Handle(_ context.Context, record slog.Record) error {
	at := record.Time
	if at.IsZero() {
		at = time.Now()
	}
	entry := LogEntry{
		Level:     strings.ToLower(record.Level.String()),
		Timestamp: at.UTC().Format(time.RFC3339Nano),
		Message:   record.Message,
		Fields:    make(map[string]any),
	}

	for _, attr := range h.attrs {
		entry.add(h.groups, attr)
	}
	record.Attrs(func(attr slog.Attr) bool {
		entry.add(h.groups, attr)
		return true
	})
	if len(entry.Fields) == 0 {
		entry.Fields = nil
	}
	if h.addSource {
		entry.Caller = caller(record.PC)
	}

	line, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	return h.out.writeLine(line)
}

func (h *jsonHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *h
	next.attrs = append(append([]slog.Attr{}, h.attrs...), attrs...)
	return &next
}

func (h *jsonHandler) WithGroup(name string) slog.Handler {
	next := *h
	next.groups = append(append([]string{}, h.groups...), name)
	return &next
}

// add places attr on the entry. Ungrouped string component, request_id and
// sender become top-level fields.
func (e *LogEntry) add(groups []string, attr slog.Attr) {
	attr.Value = attr.Value.Resolve()
	if attr.Equal(slog.Attr{}) {
		return
	}

	if len(groups) == 0 && attr.Value.Kind() == slog.KindString {
		switch attr.Key {
		case keyComponent:
			e.Component = attr.Value.String()
			return
		case keyRequestID:
			e.RequestID = attr.Value.String()
			return
		case keySender:
			e.Sender = attr.Value.String()
			return
		}
	}

	key := attr.Key
	if len(groups) > 0 {
		key = strings.Join(groups, ".") + "." + attr.Key
	}
	e.Fields[key] = jsonValue(attr.Value)
}

func jsonValue(value slog.Value) any {
	switch value.Kind() {
	case slog.KindDuration:
		return value.Duration().String()
	case slog.KindTime:
		return value.Time().UTC().Format(time.RFC3339Nano)
	case slog.KindGroup:
		group := value.Group()
		out := make(map[string]any, len(group))
		for _, item := range group {
			out[item.Key] = jsonValue(item.Value.Resolve())
		}
		return out
	case slog.KindAny:
		if err, ok := value.Any().(error); ok {
			return err.Error()
		}
		if s, ok := value.Any().(fmt.Stringer); ok {
			return s.String()
		}
		return value.Any()
	default:
		return value.Any()
	}
}

func caller(pc uintptr) string {
	if pc == 0 {
		return ""
	}

	frame, _ := runtime.CallersFrames([]uintptr{pc}).Next()
	if frame.File == "" {
		return ""
	}
	return fmt.Sprintf("%s:%d", filepath.Base(frame.File), frame.Line)
}
