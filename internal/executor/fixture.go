package executor

import (
	"context"
	"time"

	"github.com/chatvault/chatvault/internal/models"
)

// fixtureConversations holds canned extraction payloads per provider, used
// by the fixture executor for demo runs and tests. Providers without an
// entry return an empty extraction.
var fixtureConversations = map[string][]map[string]any{
	"chatgpt": {
		{
			"id":    "chatgpt_conv_1",
			"title": "Python Data Analysis Help",
			"messages": []map[string]any{
				{"role": "user", "content": "Can you help me analyze a CSV file with pandas?", "timestamp": "2024-01-15T10:00:00Z"},
				{"role": "assistant", "content": "I'd be happy to help you analyze a CSV file with pandas! Here's a comprehensive approach...", "timestamp": "2024-01-15T10:00:15Z"},
			},
			"created_at": "2024-01-15T10:00:00Z",
			"updated_at": "2024-01-15T10:30:00Z",
		},
		{
			"id":    "chatgpt_conv_2",
			"title": "React Component Design",
			"messages": []map[string]any{
				{"role": "user", "content": "How do I create a reusable modal component in React?", "timestamp": "2024-01-15T14:00:00Z"},
				{"role": "assistant", "content": "Creating a reusable modal component in React involves several key considerations...", "timestamp": "2024-01-15T14:00:20Z"},
			},
			"created_at": "2024-01-15T14:00:00Z",
			"updated_at": "2024-01-15T14:45:00Z",
		},
	},
	"claude": {
		{
			"id":    "claude_conv_1",
			"title": "System Architecture Discussion",
			"messages": []map[string]any{
				{"role": "user", "content": "I need help designing a microservices architecture for an e-commerce platform.", "timestamp": "2024-01-15T11:00:00Z"},
				{"role": "assistant", "content": "I'll help you design a robust microservices architecture for your e-commerce platform...", "timestamp": "2024-01-15T11:00:25Z"},
			},
			"created_at": "2024-01-15T11:00:00Z",
			"updated_at": "2024-01-15T12:00:00Z",
		},
	},
}

// Fixture is an Executor returning canned payloads with a configurable
// delay standing in for the network round trip. It backs demo deployments
// where no real scraper is wired in, and the test suite.
type Fixture struct {
	Provider string
	Delay    time.Duration
	Method   string
}

// NewFixture creates a fixture executor for the given provider.
func NewFixture(provider string) *Fixture {
	return &Fixture{Provider: provider, Method: "web_scraping"}
}

// Extract returns the canned conversations for the provider.
func (f *Fixture) Extract(ctx context.Context, cred models.Credential, params map[string]any) (models.RawPayload, error) {
	if err := f.wait(ctx); err != nil {
		return nil, err
	}
	convs := fixtureConversations[f.Provider]
	return f.payload(convs), nil
}

// PollForNew returns conversations updated after the watermark. The canned
// data is fixed in time, so repeated polls after the fixture window return
// empty payloads, which exercises the monitor's no-new-data path.
func (f *Fixture) PollForNew(ctx context.Context, cred models.Credential, since time.Time) (models.RawPayload, error) {
	if err := f.wait(ctx); err != nil {
		return nil, err
	}
	var fresh []map[string]any
	for _, c := range fixtureConversations[f.Provider] {
		updated, err := time.Parse(time.RFC3339, c["updated_at"].(string))
		if err != nil {
			continue
		}
		if updated.After(since) {
			fresh = append(fresh, c)
		}
	}
	return f.payload(fresh), nil
}

func (f *Fixture) wait(ctx context.Context) error {
	if f.Delay <= 0 {
		return nil
	}
	select {
	case <-time.After(f.Delay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *Fixture) payload(convs []map[string]any) models.RawPayload {
	anyConvs := make([]any, len(convs))
	for i, c := range convs {
		anyConvs[i] = c
	}
	return models.RawPayload{
		"conversations": anyConvs,
		"metadata": map[string]any{
			"provider":             f.Provider,
			"extraction_method":    f.Method,
			"total_conversations":  len(convs),
			"extraction_timestamp": time.Now().UTC().Format(time.RFC3339),
		},
	}
}

// FieldVerifier accepts a credential when every required field is present
// and non-blank. It stands in for a provider-specific verifier in demo
// deployments; real providers plug in their own.
type FieldVerifier struct {
	RequiredFields []string
}

// Verify checks the required fields and grants the standard read/monitor
// permission set on success.
func (v *FieldVerifier) Verify(ctx context.Context, cred models.Credential) (bool, []string, error) {
	for _, f := range v.RequiredFields {
		if cred.Secrets[f] == "" {
			return false, nil, nil
		}
	}
	return true, []string{"read_conversations", "monitor_sessions"}, nil
}
