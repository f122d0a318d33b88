package colorlog

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"
)

func ptr[T any](v T) *T { return &v }

func TestLevelFor(t *testing.T) {
	tests := []struct {
		name string
		opts Options
		want slog.Level
	}{
		{"default", Options{}, slog.LevelInfo},
		{"explicit level", Options{Level: slog.LevelWarn}, slog.LevelWarn},
		{"silent", Options{Silent: true}, slog.LevelError},
		{"verbose", Options{Verbose: true}, slog.LevelDebug},
		{"silent wins", Options{Silent: true, Verbose: true}, slog.LevelError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := LevelFor(tt.opts); got != tt.want {
				t.Errorf("LevelFor() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSilentAndVerbose(t *testing.T) {
	t.Run("silent only logs errors", func(t *testing.T) {
		var buf bytes.Buffer
		logger := New("static", Options{Output: &buf, Silent: true, UseColor: ptr(false)})
		logger.Info("building")
		logger.Warn("careful")
		logger.Error("failed")
		got := buf.String()
		if strings.Contains(got, "building") || strings.Contains(got, "careful") {
			t.Errorf("silent logger leaked non-error output: %q", got)
		}
		if !strings.Contains(got, "ERROR  failed") {
			t.Errorf("silent logger dropped error: %q", got)
		}
	})

	t.Run("verbose logs debug", func(t *testing.T) {
		var buf bytes.Buffer
		logger := New("static", Options{Output: &buf, Verbose: true, UseColor: ptr(false)})
		logger.Debug("hook", "name", "afterRoutes")
		if !strings.Contains(buf.String(), "DEBUG  hook") {
			t.Errorf("verbose logger dropped debug: %q", buf.String())
		}
	})
}

func TestLevels(t *testing.T) {
	tests := []struct {
		name   string
		level  slog.Level
		prefix string
		color  string
	}{
		{"Debug", slog.LevelDebug, "DEBUG  ", colorGray},
		{"Info", slog.LevelInfo, "", colorCyan},
		{"Warn", slog.LevelWarn, "WARNING  ", colorYellow},
		{"Error", slog.LevelError, "ERROR  ", colorRed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := New("TEST", Options{Output: &buf, Level: slog.LevelDebug, UseColor: ptr(true)})
			logger.Log(context.Background(), tt.level, "test message")
			got := buf.String()
			if !strings.Contains(got, tt.color) {
				t.Errorf("missing color %q in output: %q", tt.color, got)
			}
			if !strings.Contains(got, tt.prefix+"test message") {
				t.Errorf("missing prefix+message %q in output: %q", tt.prefix+"test message", got)
			}
		})
	}
}

func TestGroupsAndAttrs(t *testing.T) {
	var buf bytes.Buffer
	logger := New("TEST", Options{Output: &buf, UseColor: ptr(false)})

	logger.With("pre", "val").WithGroup("a").WithGroup("b").Info("msg", "key", "value")

	got := buf.String()
	if !strings.Contains(got, "[ pre = val ]") {
		t.Errorf("pre-group attr missing: %q", got)
	}
	if !strings.Contains(got, "[ a.b.key = value ]") {
		t.Errorf("grouped attr missing: %q", got)
	}

	buf.Reset()
	logger.Info("original")
	if strings.Contains(buf.String(), "pre") {
		t.Errorf("original logger should not carry attrs: %q", buf.String())
	}
}

func TestOutputFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := New("TEST", Options{Output: &buf, UseColor: ptr(true)})
	logger.Info("hello", "k", "v")
	got := buf.String()

	if !strings.Contains(got, "("+colorBlue+"TEST"+colorReset+")") {
		t.Errorf("label format incorrect: %q", got)
	}
	if !strings.Contains(got, colorCyan+"hello"+colorReset) {
		t.Errorf("message format incorrect: %q", got)
	}
	if !strings.HasSuffix(got, "]\033[0m\n") {
		t.Errorf("should end with attr bracket and newline: %q", got)
	}
	if !strings.Contains(got, time.Now().Format("2006/01/02")) {
		t.Errorf("missing date: %q", got)
	}
}

func TestThreadSafety(t *testing.T) {
	var buf bytes.Buffer
	logger := New("TEST", Options{Output: &buf, UseColor: ptr(false)})

	var wg sync.WaitGroup
	for i := range 100 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			logger.With("worker", i).Info("message", "n", i)
		}()
	}
	wg.Wait()

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 100 {
		t.Fatalf("expected 100 lines, got %d", len(lines))
	}
	for i, line := range lines {
		if !strings.Contains(line, "message") {
			t.Errorf("line %d appears corrupted: %q", i, line)
		}
	}
}

type errorWriter struct{}

func (errorWriter) Write([]byte) (int, error) {
	return 0, errors.New("write error")
}

func TestHandleError(t *testing.T) {
	h := NewHandler("TEST", Options{Output: errorWriter{}, UseColor: ptr(false)})
	err := h.Handle(context.Background(), slog.Record{Time: time.Now(), Message: "test", Level: slog.LevelInfo})
	if err == nil || err.Error() != "write error" {
		t.Errorf("expected write error, got %v", err)
	}
}

func TestDiscard(t *testing.T) {
	logger := Discard()
	if logger.Handler().Enabled(context.Background(), slog.LevelDebug) {
		t.Error("Discard logger should not enable debug")
	}
	logger.Error("dropped")
}
