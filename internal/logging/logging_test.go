package logging

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

type recordingSink struct {
	info  []string
	error []string
}

func (s *recordingSink) Info(msg string)  { s.info = append(s.info, msg) }
func (s *recordingSink) Error(msg string) { s.error = append(s.error, msg) }

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"WARNING": slog.LevelWarn,
		" error ": slog.LevelError,
		"bogus":   slog.LevelInfo,
	}
	for raw, want := range tests {
		if got := ParseLevel(raw); got != want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", raw, got, want)
		}
	}
	if ValidLevel("bogus") {
		t.Fatal("expected bogus to be rejected")
	}
}

func TestTee_BuffersUntilSinkAttaches(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, slog.LevelDebug)

	l.Info("connected")
	l.Error("bad option", "error", errors.New("not a bool"))
	l.Debug("chatter")
	l.Info("file only", "quiet", true)

	sink := &recordingSink{}
	l.Tee.Attach(sink)
	l.Info("later")

	if strings.Join(sink.info, "|") != "connected|later" {
		t.Fatalf("unexpected info messages: %v", sink.info)
	}
	if len(sink.error) != 1 || sink.error[0] != "bad option: not a bool" {
		t.Fatalf("unexpected error messages: %v", sink.error)
	}
	if !strings.Contains(buf.String(), "chatter") || !strings.Contains(buf.String(), "file only") {
		t.Fatalf("expected every record in the file, got %q", buf.String())
	}
}

func TestTee_QuietChildLogger(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, slog.LevelInfo)
	sink := &recordingSink{}
	l.Tee.Attach(sink)

	l.With("quiet", true).Error("background failure")

	if len(sink.error) != 0 {
		t.Fatalf("quiet logger leaked to sink: %v", sink.error)
	}
}
