package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	slogmulti "github.com/samber/slog-multi"

	"github.com/clipscope/clipscope/internal/config"
)

// New constructs a slog.Logger configured according to the provided settings.
// When cfg.File is set, records are also appended to that file as JSON and the
// returned close function releases it.
func New(cfg config.LoggingConfig) (*slog.Logger, func() error, error) {
	handler, err := buildHandler(cfg, os.Stdout)
	if err != nil {
		return nil, nil, err
	}

	if cfg.File == "" {
		return slog.New(handler), func() error { return nil }, nil
	}

	file, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}

	return slog.New(withFile(handler, file, cfg.Level)), file.Close, nil
}

// NewWriter builds a logger that writes to out only. Command line tools use it
// to keep records off stdout.
func NewWriter(cfg config.LoggingConfig, out io.Writer) (*slog.Logger, error) {
	handler, err := buildHandler(cfg, out)
	if err != nil {
		return nil, err
	}
	return slog.New(handler), nil
}

func buildHandler(cfg config.LoggingConfig, out io.Writer) (slog.Handler, error) {
	opts := &slog.HandlerOptions{Level: cfg.Level}

	switch cfg.Format {
	case "json":
		return slog.NewJSONHandler(out, opts), nil
	case "text":
		return slog.NewTextHandler(out, opts), nil
	default:
		return nil, fmt.Errorf("unsupported log format: %s", cfg.Format)
	}
}

func withFile(primary slog.Handler, file io.Writer, level slog.Level) slog.Handler {
	fileHandler := slog.NewJSONHandler(file, &slog.HandlerOptions{Level: level})
	return slogmulti.Fanout(primary, fileHandler)
}

// Discard returns a logger that drops every record. Useful in tests and for
// components constructed without a logger.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}
