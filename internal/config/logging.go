package config

import (
	"io"
	"log/slog"
	"os"

	slogmulti "github.com/samber/slog-multi"
)

// secretAttrKeys are log attribute names whose values are replaced before
// any handler sees them. Credential material must never land in the log
// file, whatever the call site passes.
var secretAttrKeys = map[string]bool{
	"session_token":  true,
	"session_cookie": true,
	"google_session": true,
	"auth_token":     true,
	"auth_value":     true,
	"credentials":    true,
	"secret":         true,
}

func redactAttr(_ []string, a slog.Attr) slog.Attr {
	if secretAttrKeys[a.Key] {
		return slog.String(a.Key, "[redacted]")
	}
	return a
}

func handlerOptions(level slog.Level) *slog.HandlerOptions {
	return &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: redactAttr,
	}
}

// SetupLogger creates a dual-output logger: text to stderr for humans, JSON
// to file for machines. Stdout stays untouched, which matters for the MCP
// binary where stdout carries the protocol. Returns the logger and a
// cleanup function closing the file.
func SetupLogger(logFile string, level slog.Level) (*slog.Logger, func() error) {
	stderrHandler := slog.NewTextHandler(os.Stderr, handlerOptions(level))

	file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		slog.Error("failed to open log file, using stderr only", "error", err, "file", logFile)
		return slog.New(stderrHandler), func() error { return nil }
	}

	fileHandler := slog.NewJSONHandler(file, handlerOptions(level))
	logger := slog.New(slogmulti.Fanout(stderrHandler, fileHandler))

	return logger, file.Close
}

// SetupLoggerWithWriters creates the same fanout logger over custom writers,
// used by tests to capture both streams.
func SetupLoggerWithWriters(stderr, file io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slogmulti.Fanout(
		slog.NewTextHandler(stderr, handlerOptions(level)),
		slog.NewJSONHandler(file, handlerOptions(level)),
	))
}
