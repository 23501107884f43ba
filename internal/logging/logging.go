package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// ParseLevel maps a level name to a slog level. Unknown names fall back to
// info.
func ParseLevel(raw string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
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

// ValidLevel reports whether raw names a level ParseLevel understands.
func ValidLevel(raw string) bool {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "debug", "info", "warn", "warning", "error":
		return true
	}
	return false
}

// Sink receives user-facing messages. The GUI implements it by setting its
// info_msg and error_msg vars.
type Sink interface {
	Info(msg string)
	Error(msg string)
}

// Tee buffers user-facing records until a Sink attaches, then forwards them.
type Tee struct {
	mu      sync.Mutex
	sink    Sink
	pending []pendingRecord
}

type pendingRecord struct {
	level slog.Level
	msg   string
}

func (t *Tee) Attach(s Sink) {
	t.mu.Lock()
	t.sink = s
	pending := t.pending
	t.pending = nil
	t.mu.Unlock()

	for _, p := range pending {
		deliver(s, p.level, p.msg)
	}
}

func (t *Tee) Detach() {
	t.mu.Lock()
	t.sink = nil
	t.mu.Unlock()
}

func (t *Tee) emit(level slog.Level, msg string) {
	t.mu.Lock()
	s := t.sink
	if s == nil {
		t.pending = append(t.pending, pendingRecord{level: level, msg: msg})
		t.mu.Unlock()
		return
	}
	t.mu.Unlock()
	deliver(s, level, msg)
}

func deliver(s Sink, level slog.Level, msg string) {
	if level >= slog.LevelError {
		s.Error(msg)
		return
	}
	s.Info(msg)
}

// Logger bundles the file logger with its tee and the file it owns.
type Logger struct {
	*slog.Logger
	Tee  *Tee
	file *os.File
}

// Open creates (or appends to) the log file at path.
func Open(path string, level slog.Level) (*Logger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	l := New(f, level)
	l.file = f
	return l, nil
}

func New(out io.Writer, level slog.Level) *Logger {
	tee := &Tee{}
	file := slog.NewTextHandler(out, &slog.HandlerOptions{Level: level})
	return &Logger{
		Logger: slog.New(&teeHandler{next: file, tee: tee}),
		Tee:    tee,
	}
}

func (l *Logger) Close() error {
	if l.file == nil {
		return nil
	}
	return l.file.Close()
}

// teeHandler writes every record to next and additionally forwards the
// user-facing levels to the tee. Records carrying the attribute quiet=true
// stay in the file only.
type teeHandler struct {
	next  slog.Handler
	tee   *Tee
	quiet bool
}

func (h *teeHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return level >= slog.LevelInfo || h.next.Enabled(ctx, level)
}

func (h *teeHandler) Handle(ctx context.Context, r slog.Record) error {
	var err error
	if h.next.Enabled(ctx, r.Level) {
		err = h.next.Handle(ctx, r)
	}
	if h.quiet || r.Level < slog.LevelInfo || r.Level == slog.LevelWarn {
		return err
	}
	quiet := false
	var detail []string
	r.Attrs(func(a slog.Attr) bool {
		if a.Key == "quiet" && a.Value.Kind() == slog.KindBool && a.Value.Bool() {
			quiet = true
			return false
		}
		if a.Key == "error" {
			detail = append(detail, a.Value.String())
		}
		return true
	})
	if quiet {
		return err
	}
	msg := r.Message
	if len(detail) > 0 {
		msg += ": " + strings.Join(detail, ", ")
	}
	h.tee.emit(r.Level, msg)
	return err
}

func (h *teeHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	quiet := h.quiet
	for _, a := range attrs {
		if a.Key == "quiet" && a.Value.Kind() == slog.KindBool && a.Value.Bool() {
			quiet = true
		}
	}
	return &teeHandler{next: h.next.WithAttrs(attrs), tee: h.tee, quiet: quiet}
}

func (h *teeHandler) WithGroup(name string) slog.Handler {
	return &teeHandler{next: h.next.WithGroup(name), tee: h.tee, quiet: h.quiet}
}

// Discard returns a logger that drops everything. Tests use it.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}
