// Package webhook delivers monitoring notifications over HTTP.
package webhook

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/chatvault/chatvault/internal/models"
)

// Notification is the payload POSTed to a session's webhook URL, one per
// newly observed message.
type Notification struct {
	SessionID    string         `json:"session_id"`
	Provider     string         `json:"provider"`
	Conversation string         `json:"conversation_id"`
	Title        string         `json:"title,omitempty"`
	Message      models.Message `json:"message"`
	DedupeKey    string         `json:"dedupe_key"`
	ObservedAt   time.Time      `json:"observed_at"`
}

// DedupeKey derives the stable identifier a receiver can use to drop
// duplicate deliveries for the same message.
func DedupeKey(provider, conversationID string, msg models.Message) string {
	sum := sha256.Sum256([]byte(provider + "|" + conversationID + "|" + msg.DedupeIdentity()))
	return hex.EncodeToString(sum[:16])
}

// Sink accepts notifications for delivery.
type Sink interface {
	Notify(ctx context.Context, url string, n Notification) error
}

// HTTPSink posts notifications as JSON with bounded retries. Failures are
// reported to the caller and never interrupt the monitoring session.
type HTTPSink struct {
	client   *http.Client
	attempts int
	backoff  time.Duration
	logger   *slog.Logger
}

// NewHTTPSink creates a sink with the given per-request timeout and
// delivery attempt budget.
func NewHTTPSink(timeout time.Duration, attempts int, logger *slog.Logger) *HTTPSink {
	if attempts < 1 {
		attempts = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPSink{
		client:   &http.Client{Timeout: timeout},
		attempts: attempts,
		backoff:  500 * time.Millisecond,
		logger:   logger,
	}
}

// Notify posts the notification, retrying transient failures with
// exponential backoff. A 2xx response counts as delivered.
func (s *HTTPSink) Notify(ctx context.Context, url string, n Notification) error {
	body, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	var lastErr error
	delay := s.backoff
	for attempt := 1; attempt <= s.attempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
		}

		lastErr = s.post(ctx, url, body, n.DedupeKey)
		if lastErr == nil {
			return nil
		}
		s.logger.Warn("webhook delivery failed",
			"url", url,
			"session_id", n.SessionID,
			"attempt", attempt,
			"error", lastErr)
	}
	return fmt.Errorf("webhook delivery failed after %d attempts: %w", s.attempts, lastErr)
}

func (s *HTTPSink) post(ctx context.Context, url string, body []byte, dedupeKey string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-ChatVault-Dedupe-Key", dedupeKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("post: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// drain so the connection can be reused
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}
