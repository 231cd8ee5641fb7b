package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

func NewJSONLogger(service, level string) *slog.Logger {
	return newJSONLogger(os.Stdout, service, level)
}

// NewLogger picks the handler by format: "pretty" for colored terminal
// output on stderr, anything else for JSON on stdout.
func NewLogger(service, level, format string) *slog.Logger {
	if isPretty(format) {
		return newPrettyLogger(os.Stderr, service, level)
	}
	return NewJSONLogger(service, level)
}

// NewStderrLogger is NewLogger for processes whose stdout carries a protocol
// stream, such as the MCP stdio server.
func NewStderrLogger(service, level, format string) *slog.Logger {
	if isPretty(format) {
		return newPrettyLogger(os.Stderr, service, level)
	}
	return newJSONLogger(os.Stderr, service, level)
}

func isPretty(format string) bool {
	return strings.EqualFold(strings.TrimSpace(format), "pretty")
}

func newPrettyLogger(w io.Writer, service, level string) *slog.Logger {
	handler := NewPrettyHandler(w, PrettyHandlerOptions{
		SlogOpts: slog.HandlerOptions{Level: ParseLevel(level)},
	})
	return slog.New(handler).With("service", service)
}

func newJSONLogger(w io.Writer, service, level string) *slog.Logger {
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: ParseLevel(level),
	})
	return slog.New(handler).With("service", service)
}

func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
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
