package logging

import (
	"bytes"
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrettyHandlerHandle(t *testing.T) {
	var buf bytes.Buffer
	handler := NewPrettyHandler(&buf, PrettyHandlerOptions{SlogOpts: slog.HandlerOptions{Level: slog.LevelDebug}})

	record := slog.NewRecord(time.Now(), slog.LevelWarn, "retry_attempt", 0)
	record.AddAttrs(slog.String("operation", "qdrant.search"))

	require.NoError(t, handler.Handle(context.Background(), record))
	out := buf.String()
	assert.Contains(t, out, "WARN:")
	assert.Contains(t, out, "retry_attempt")
	assert.Contains(t, out, "qdrant.search")
}

func TestPrettyHandlerKeepsLoggerAttrs(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewPrettyHandler(&buf, PrettyHandlerOptions{})).With("service", "scripture")

	logger.Info("ingest_started", "file", "biblia.txt")

	assert.Contains(t, buf.String(), "scripture")
	assert.Contains(t, buf.String(), "biblia.txt")
}

func TestPrettyHandlerRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewPrettyHandler(&buf, PrettyHandlerOptions{SlogOpts: slog.HandlerOptions{Level: slog.LevelWarn}}))

	logger.Info("hidden")

	assert.Empty(t, buf.String())
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel(" DEBUG "))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("verbose"))
}

func TestJSONLoggerAddsService(t *testing.T) {
	var buf bytes.Buffer
	newJSONLogger(&buf, "api", "info").Info("hello")

	assert.Contains(t, buf.String(), `"service":"api"`)
}
