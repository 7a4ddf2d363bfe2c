package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/charmbracelet/log"

	"github.com/alivesay/squire/internal/config"
)

// setupLogging installs the default slog logger. The returned closer is nil
// unless logs go to a file.
func setupLogging(lc config.LogConfig) (io.Closer, error) {
	var (
		out    io.Writer = os.Stderr
		closer io.Closer
	)
	if lc.File != "" {
		f, err := os.OpenFile(lc.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		out, closer = f, f
	}

	logger, err := newLogger(out, lc)
	if err != nil {
		if closer != nil {
			closer.Close()
		}
		return nil, err
	}
	slog.SetDefault(logger)
	return closer, nil
}

func newLogger(w io.Writer, lc config.LogConfig) (*slog.Logger, error) {
	level, err := log.ParseLevel(lc.Level)
	if err != nil {
		return nil, fmt.Errorf("failed to parse log level %q: %w", lc.Level, err)
	}

	var formatter log.Formatter
	switch lc.Format {
	case "", "text":
		formatter = log.TextFormatter
	case "logfmt":
		formatter = log.LogfmtFormatter
	case "json":
		formatter = log.JSONFormatter
	default:
		return nil, fmt.Errorf("unknown log format %q", lc.Format)
	}

	handler := log.NewWithOptions(w, log.Options{
		Level:           level,
		ReportTimestamp: true,
		TimeFormat:      time.RFC3339,
		Formatter:       formatter,
	})
	return slog.New(handler), nil
}
