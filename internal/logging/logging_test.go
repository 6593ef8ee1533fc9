package logging

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"log/slog"

	"github.com/clipscope/clipscope/internal/config"
)

func TestNewConfiguresSupportedFormats(t *testing.T) {
	tests := []struct {
		name   string
		format string
		level  slog.Level
	}{
		{name: "json", format: "json", level: slog.LevelWarn},
		{name: "text", format: "text", level: slog.LevelDebug},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, closeFn, err := New(config.LoggingConfig{Level: tt.level, Format: tt.format})
			if err != nil {
				t.Fatalf("New returned error: %v", err)
			}
			defer closeFn()

			if logger == nil {
				t.Fatal("expected non-nil logger")
			}

			levels := []slog.Level{slog.LevelDebug, slog.LevelInfo, slog.LevelWarn, slog.LevelError}
			ctx := context.Background()
			for _, lvl := range levels {
				enabled := logger.Enabled(ctx, lvl)
				expected := lvl >= tt.level
				if enabled != expected {
					t.Fatalf("logger level %v enabled(%v)=%t, want %t", tt.level, lvl, enabled, expected)
				}
			}
		})
	}
}

func TestNewWithUnsupportedFormat(t *testing.T) {
	_, _, err := New(config.LoggingConfig{Level: slog.LevelInfo, Format: "pretty"})
	if err == nil {
		t.Fatal("expected error for unsupported format, got nil")
	}

	if !strings.Contains(err.Error(), "unsupported log format") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestNewWritesToLogFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clipscope.log")

	logger, closeFn, err := New(config.LoggingConfig{Level: slog.LevelInfo, Format: "text", File: path})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	logger.Info("batch handled", "batch_id", "b-1")
	if err := closeFn(); err != nil {
		t.Fatalf("close returned error: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(data), `"batch_id":"b-1"`) {
		t.Fatalf("expected JSON record in file, got %q", data)
	}
}

func TestFanoutDeliversToBothHandlers(t *testing.T) {
	var primary, file bytes.Buffer
	handler, err := buildHandler(config.LoggingConfig{Level: slog.LevelInfo, Format: "text"}, &primary)
	if err != nil {
		t.Fatalf("buildHandler returned error: %v", err)
	}

	logger := slog.New(withFile(handler, &file, slog.LevelInfo))
	logger.Debug("dropped")
	logger.Warn("kept", "video_id", "v1")

	if !strings.Contains(primary.String(), "video_id=v1") {
		t.Errorf("primary handler missing record: %q", primary.String())
	}
	if !strings.Contains(file.String(), `"video_id":"v1"`) {
		t.Errorf("file handler missing record: %q", file.String())
	}
	if strings.Contains(primary.String(), "dropped") || strings.Contains(file.String(), "dropped") {
		t.Error("debug record should be filtered at info level")
	}
}

func TestDiscardIsSilent(t *testing.T) {
	if Discard().Enabled(context.Background(), slog.LevelError) {
		t.Fatal("expected discard logger to drop errors")
	}
}

func TestNewWriterUsesGivenWriter(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewWriter(config.LoggingConfig{Level: slog.LevelWarn, Format: "text"}, &buf)
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}

	logger.Info("hidden")
	logger.Warn("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") || !strings.Contains(out, "shown") {
		t.Errorf("unexpected output %q", out)
	}
}
