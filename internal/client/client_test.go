package client_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatvault/chatvault/internal/client"
	"github.com/chatvault/chatvault/internal/config"
	"github.com/chatvault/chatvault/internal/httpapi"
	"github.com/chatvault/chatvault/internal/models"
	"github.com/chatvault/chatvault/internal/orchestrator"
	"github.com/chatvault/chatvault/internal/store"
)

func newTestClient(t *testing.T) *client.Client {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	orch, err := orchestrator.New(&config.Config{
		StoreBackend:        "memory",
		ValidationTTL:       time.Hour,
		ValidationRateLimit: 100,
		ValidationWindow:    time.Minute,
		ExecutorTimeout:     2 * time.Second,
		MaxRetries:          3,
		RetryBackoff:        time.Millisecond,
		MaxPollFailures:     5,
		WebhookTimeout:      time.Second,
		WebhookAttempts:     2,
	}, store.NewMemory(), logger)
	require.NoError(t, err)

	srv := httptest.NewServer(httpapi.NewHandler(orch, logger))
	t.Cleanup(srv.Close)
	return client.New(srv.URL)
}

func claudeCredential() client.CredentialInput {
	return client.CredentialInput{
		Provider:    "claude",
		Credentials: map[string]string{"session_cookie": "cookie-client-1"},
	}
}

func TestClientCatalog(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	providers, err := c.ListProviders(ctx)
	require.NoError(t, err)
	assert.Len(t, providers, 5)

	desc, err := c.DescribeProvider(ctx, "claude")
	require.NoError(t, err)
	assert.Equal(t, "claude", desc.ID)

	tools, err := c.ListTools(ctx, "claude")
	require.NoError(t, err)
	assert.NotEmpty(t, tools)
}

func TestClientExtractionFlow(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	record, err := c.ValidateCredentials(ctx, claudeCredential())
	require.NoError(t, err)
	require.True(t, record.Valid)

	job, err := c.StartExtraction(ctx, claudeCredential(), "extract_claude_conversations", map[string]any{
		"session_cookie": "cookie-client-1",
	})
	require.NoError(t, err)

	done, err := c.GetJob(ctx, job.ID, true)
	require.NoError(t, err)
	assert.Equal(t, models.JobSucceeded, done.State)

	page, err := c.ListConversations(ctx, client.ConversationFilter{Provider: "claude"})
	require.NoError(t, err)
	require.NotEmpty(t, page.Conversations)

	conv, err := c.GetConversation(ctx, page.Conversations[0].ID)
	require.NoError(t, err)
	assert.NotEmpty(t, conv.Messages)
}

func TestClientSurfacesAPIError(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	_, err := c.DescribeProvider(ctx, "copilot")
	require.Error(t, err)

	var apiErr *client.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, 404, apiErr.Status)
	assert.Equal(t, "unknown_provider", apiErr.Kind)
}

func TestClientWatchEvents(t *testing.T) {
	c := newTestClient(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := c.ValidateCredentials(ctx, claudeCredential())
	require.NoError(t, err)

	events := make(chan orchestrator.Event, 8)
	watchErr := make(chan error, 1)
	go func() {
		watchErr <- c.WatchEvents(ctx, func(ev orchestrator.Event) error {
			events <- ev
			return nil
		})
	}()

	// Give the subscriber a beat to connect before submitting work.
	time.Sleep(50 * time.Millisecond)

	_, err = c.StartExtraction(ctx, claudeCredential(), "extract_claude_conversations", map[string]any{
		"session_cookie": "cookie-client-1",
	})
	require.NoError(t, err)

	select {
	case ev := <-events:
		assert.Equal(t, orchestrator.EventJob, ev.Type)
		require.NotNil(t, ev.Job)
		assert.Equal(t, "claude", ev.Job.Provider)
	case <-time.After(3 * time.Second):
		t.Fatal("no event received")
	}
}
