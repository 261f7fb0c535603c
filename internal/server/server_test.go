package server

import (
	"io"
	"log/slog"
	"strings"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		maxLen int
		want   string
	}{
		{"short string unchanged", "hello", 10, "hello"},
		{"exact length unchanged", "hello", 5, "hello"},
		{"long string truncated", "hello world", 8, "hello..."},
		{"tiny max without ellipsis", "hello", 2, "he"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := truncate(tt.input, tt.maxLen); got != tt.want {
				t.Errorf("truncate(%q, %d) = %q, want %q", tt.input, tt.maxLen, got, tt.want)
			}
		})
	}
}

func TestRedactSecrets(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"session token", `{provider:chatgpt credentials:map[session_token:sk-live-abcdef]}`},
		{"session cookie", `{provider:claude credentials:map[session_cookie:sess-xyz123]}`},
		{"auth value", `{auth_value:bearer-9f8e7d}`},
		{"json style", `{"session_token": "sk-live-abcdef"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := redactSecrets(tt.input)
			if strings.Contains(got, "abcdef") || strings.Contains(got, "xyz123") || strings.Contains(got, "9f8e7d") {
				t.Errorf("secret leaked through redaction: %q", got)
			}
			if !strings.Contains(got, "[redacted]") {
				t.Errorf("expected redaction marker in %q", got)
			}
		})
	}
}

func TestRedactSecretsLeavesPlainParams(t *testing.T) {
	input := `{provider:chatgpt max_conversations:50}`
	if got := redactSecrets(input); got != input {
		t.Errorf("non-secret params should pass through unchanged, got %q", got)
	}
}

func TestThresholdLoosensForToolCalls(t *testing.T) {
	if threshold("tools/call") <= threshold("tools/list") {
		t.Error("tool calls should get a looser slow-request budget than protocol methods")
	}
}

func TestNewServer(t *testing.T) {
	s := New("test-version", testLogger())
	if s.MCPServer() == nil {
		t.Fatal("MCPServer should not be nil")
	}
}
