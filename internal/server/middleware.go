package server

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// maxArgLogLen is the maximum length for logged arguments before truncation.
const maxArgLogLen = 200

// Slow-request thresholds. Tool calls run real extractions and poll remote
// providers, so they get a much looser budget than protocol chatter.
const (
	slowToolCallThreshold = 5 * time.Second
	slowRequestThreshold  = 100 * time.Millisecond
)

// secretPattern matches credential-bearing argument values so they never
// reach the log file. Covers the catalog's credential field names plus the
// generic token/cookie shapes.
var secretPattern = regexp.MustCompile(`(?i)((?:session_token|session_cookie|google_session|auth_token|auth_value|token|cookie|password|secret)["']?\s*[:=]\s*)\S+`)

// LoggingMiddleware returns middleware that logs every request with timing.
// Requests over their threshold are logged at WARN. Arguments are redacted
// of secret material and truncated before logging.
func LoggingMiddleware(logger *slog.Logger) mcp.Middleware {
	return func(next mcp.MethodHandler) mcp.MethodHandler {
		return func(ctx context.Context, method string, req mcp.Request) (mcp.Result, error) {
			start := time.Now()
			result, err := next(ctx, method, req)
			duration := time.Since(start)

			attrs := []any{
				"method", method,
				"duration_ms", duration.Milliseconds(),
			}
			if params := formatParams(req); params != "" {
				attrs = append(attrs, "params", truncate(redactSecrets(params), maxArgLogLen))
			}

			switch {
			case err != nil:
				attrs = append(attrs, "error", err.Error())
				logger.Error("request failed", attrs...)
			case duration > threshold(method):
				logger.Warn("slow request", attrs...)
			default:
				logger.Debug("request completed", attrs...)
			}

			return result, err
		}
	}
}

func threshold(method string) time.Duration {
	if method == "tools/call" {
		return slowToolCallThreshold
	}
	return slowRequestThreshold
}

// formatParams extracts and formats request parameters for logging.
func formatParams(req mcp.Request) string {
	params := req.GetParams()
	if params == nil {
		return ""
	}
	return fmt.Sprintf("%+v", params)
}

// redactSecrets replaces credential values in a formatted params string.
func redactSecrets(s string) string {
	return secretPattern.ReplaceAllString(s, "${1}[redacted]")
}

// truncate shortens a string to maxLen, adding "..." if truncated.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen < 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
