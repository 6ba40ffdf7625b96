package app

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestRfiHandler_Handle(t *testing.T) {
	ts := time.Date(2024, 6, 15, 14, 30, 45, 0, time.UTC)

	tests := []struct {
		name    string
		runID   string
		level   slog.Level
		message string
		attrs   []slog.Attr
		want    string
	}{
		{
			name:    "basic info message",
			runID:   "run-123",
			level:   slog.LevelInfo,
			message: "target dir pruned",
			want:    "2024-06-15T14:30:45Z\tINFO\trun-123\ttarget dir pruned\n",
		},
		{
			name:    "debug level",
			runID:   "run-456",
			level:   slog.LevelDebug,
			message: "removed",
			want:    "2024-06-15T14:30:45Z\tDEBUG\trun-456\tremoved\n",
		},
		{
			name:    "with record attrs",
			runID:   "run-789",
			level:   slog.LevelInfo,
			message: "restore finished",
			attrs:   []slog.Attr{slog.String("table", "/work/restore_file_info.csv"), slog.Int("restored", 42)},
			want:    "2024-06-15T14:30:45Z\tINFO\trun-789\trestore finished\ttable=/work/restore_file_info.csv\trestored=42\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			h := &rfiHandler{w: &buf, runID: tt.runID}

			r := slog.NewRecord(ts, tt.level, tt.message, 0)
			for _, a := range tt.attrs {
				r.AddAttrs(a)
			}

			if err := h.Handle(context.Background(), r); err != nil {
				t.Fatalf("Handle() error = %v", err)
			}

			if got := buf.String(); got != tt.want {
				t.Errorf("Handle() output =\n%q\nwant:\n%q", got, tt.want)
			}
		})
	}
}

func TestRfiHandler_WithAttrs(t *testing.T) {
	var buf bytes.Buffer
	h := &rfiHandler{w: &buf, runID: "run-1"}

	h2 := h.WithAttrs([]slog.Attr{slog.String("component", "dircache")}).(*rfiHandler)

	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	r := slog.NewRecord(ts, slog.LevelInfo, "cache dumped", 0)
	r.AddAttrs(slog.String("alias", "target"))

	if err := h2.Handle(context.Background(), r); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}

	got := buf.String()
	if !strings.Contains(got, "component=dircache") {
		t.Errorf("expected pre-set attr component=dircache, got: %q", got)
	}
	if !strings.Contains(got, "alias=target") {
		t.Errorf("expected record attr alias=target, got: %q", got)
	}
}

func TestRfiHandler_WithAttrs_doesNotMutateOriginal(t *testing.T) {
	var buf bytes.Buffer
	h := &rfiHandler{w: &buf, runID: "run-1", attrs: []slog.Attr{slog.String("a", "1")}}

	h2 := h.WithAttrs([]slog.Attr{slog.String("b", "2")}).(*rfiHandler)

	if len(h.attrs) != 1 {
		t.Errorf("original handler attrs modified: got %d, want 1", len(h.attrs))
	}
	if len(h2.attrs) != 2 {
		t.Errorf("new handler attrs: got %d, want 2", len(h2.attrs))
	}
}

func TestRfiHandler_Enabled(t *testing.T) {
	t.Run("no level enables everything", func(t *testing.T) {
		h := &rfiHandler{}
		for _, level := range []slog.Level{slog.LevelDebug, slog.LevelInfo, slog.LevelWarn, slog.LevelError} {
			if !h.Enabled(context.Background(), level) {
				t.Errorf("Enabled(%v) = false, want true", level)
			}
		}
	})

	t.Run("filters below the configured level", func(t *testing.T) {
		h := &rfiHandler{level: slog.LevelWarn}
		if h.Enabled(context.Background(), slog.LevelInfo) {
			t.Error("Enabled(INFO) = true with level WARN")
		}
		if !h.Enabled(context.Background(), slog.LevelError) {
			t.Error("Enabled(ERROR) = false with level WARN")
		}
	})
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := parseLevel(tt.in); got != tt.want {
			t.Errorf("parseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNewLogger(t *testing.T) {
	t.Run("writes to log file and stderr", func(t *testing.T) {
		dir := t.TempDir()
		var stderr bytes.Buffer

		logger, f, err := newLogger(&stderr, dir, "run-1", slog.LevelInfo)
		if err != nil {
			t.Fatalf("newLogger() error = %v", err)
		}
		if f == nil {
			t.Fatal("newLogger() returned nil file")
		}

		logger.Info("hello", "k", "v")
		logger.Debug("hidden")
		f.Close()

		content, err := os.ReadFile(filepath.Join(dir, LogFileName))
		if err != nil {
			t.Fatalf("reading log file: %v", err)
		}
		if !strings.Contains(string(content), "\tINFO\trun-1\thello\tk=v\n") {
			t.Errorf("log file = %q", content)
		}
		if string(content) != stderr.String() {
			t.Errorf("stderr = %q, want same as log file", stderr.String())
		}
		if strings.Contains(stderr.String(), "hidden") {
			t.Error("debug record written at info level")
		}
	})

	t.Run("stderr only without log dir", func(t *testing.T) {
		var stderr bytes.Buffer

		logger, f, err := newLogger(&stderr, "", "run-2", slog.LevelDebug)
		if err != nil {
			t.Fatalf("newLogger() error = %v", err)
		}
		if f != nil {
			t.Error("newLogger() opened a file without log dir")
		}

		logger.Debug("visible")
		if !strings.Contains(stderr.String(), "\tDEBUG\trun-2\tvisible\n") {
			t.Errorf("stderr = %q", stderr.String())
		}
	})
}
