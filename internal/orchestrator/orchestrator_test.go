package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/chatvault/chatvault/internal/config"
	"github.com/chatvault/chatvault/internal/errs"
	"github.com/chatvault/chatvault/internal/models"
	"github.com/chatvault/chatvault/internal/store"
)

func testConfig() *config.Config {
	return &config.Config{
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
	}
}

func newOrchestrator(t *testing.T) *Orchestrator {
	t.Helper()
	o, err := New(testConfig(), store.NewMemory(), nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return o
}

func validated(t *testing.T, o *Orchestrator, provider, field, value string) models.Credential {
	t.Helper()
	cred := models.Credential{Provider: provider, Secrets: map[string]string{field: value}}
	if _, err := o.ValidateCredentials(context.Background(), cred); err != nil {
		t.Fatalf("ValidateCredentials failed: %v", err)
	}
	return cred
}

func TestCatalogSurface(t *testing.T) {
	o := newOrchestrator(t)

	providers := o.ListProviders()
	if len(providers) != 5 {
		t.Errorf("expected 5 providers, got %d", len(providers))
	}

	desc, err := o.DescribeProvider("chatgpt")
	if err != nil {
		t.Fatalf("DescribeProvider failed: %v", err)
	}
	if desc.Name != "ChatGPT" {
		t.Errorf("unexpected provider name %q", desc.Name)
	}

	tools, err := o.ListTools("")
	if err != nil {
		t.Fatalf("ListTools failed: %v", err)
	}
	if len(tools) != 8 {
		t.Errorf("expected 8 tools overall, got %d", len(tools))
	}

	if _, err := o.DescribeProvider("nope"); !errs.IsKind(err, errs.KindUnknownProvider) {
		t.Errorf("expected unknown_provider, got %v", err)
	}
}

func TestExtractionEndToEnd(t *testing.T) {
	o := newOrchestrator(t)
	cred := validated(t, o, "claude", "session_cookie", "cookie-e2e")

	events, cancel := o.Subscribe()
	defer cancel()

	job, err := o.StartExtraction(context.Background(), "extract_claude_conversations", cred,
		map[string]any{"session_cookie": "cookie-e2e"})
	if err != nil {
		t.Fatalf("StartExtraction failed: %v", err)
	}

	ctx, cancelWait := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelWait()
	final, err := o.WaitJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("WaitJob failed: %v", err)
	}
	if final.State != models.JobSucceeded {
		t.Fatalf("expected succeeded, got %s (%+v)", final.State, final.Error)
	}

	// Conversations are queryable through the facade.
	page, err := o.ListConversations(context.Background(), store.Filter{Provider: "claude"})
	if err != nil {
		t.Fatalf("ListConversations failed: %v", err)
	}
	if page.Total != 1 {
		t.Fatalf("expected 1 stored claude conversation, got %d", page.Total)
	}
	conv, err := o.GetConversation(context.Background(), page.Conversations[0].ID)
	if err != nil {
		t.Fatalf("GetConversation failed: %v", err)
	}
	if conv.Title != "System Architecture Discussion" {
		t.Errorf("unexpected title %q", conv.Title)
	}

	// Subscribers saw the job reach a terminal state.
	sawTerminal := false
	deadline := time.After(2 * time.Second)
	for !sawTerminal {
		select {
		case ev := <-events:
			if ev.Type == EventJob && ev.Job != nil && ev.Job.ID == job.ID && ev.Job.State.Terminal() {
				sawTerminal = true
			}
		case <-deadline:
			t.Fatal("never received a terminal job event")
		}
	}

	// Stats reflect the run.
	stats, err := o.GetStats(context.Background())
	if err != nil {
		t.Fatalf("GetStats failed: %v", err)
	}
	if stats.StoredConversations != 1 {
		t.Errorf("expected 1 stored conversation in stats, got %d", stats.StoredConversations)
	}
	if stats.Metrics.Counters.JobsSucceeded != 1 {
		t.Errorf("expected 1 succeeded job counted, got %d", stats.Metrics.Counters.JobsSucceeded)
	}
	if stats.Metrics.Validate == nil || stats.Metrics.Validate.Count != 1 {
		t.Error("validation timing should be recorded")
	}
}

func TestInvokeToolRequiresValidation(t *testing.T) {
	o := newOrchestrator(t)
	cred := models.Credential{Provider: "chatgpt", Secrets: map[string]string{"session_token": "raw"}}

	_, err := o.InvokeTool(context.Background(), "extract_chatgpt_conversations", cred,
		map[string]any{"session_token": "raw"})
	if !errs.IsKind(err, errs.KindCredentialsNotValidated) {
		t.Fatalf("expected credentials_not_validated, got %v", err)
	}

	validated(t, o, "chatgpt", "session_token", "raw")
	res, err := o.InvokeTool(context.Background(), "extract_chatgpt_conversations", cred,
		map[string]any{"session_token": "raw"})
	if err != nil {
		t.Fatalf("InvokeTool after validation failed: %v", err)
	}
	if res.Raw["conversations"] == nil {
		t.Error("invoke result should carry the raw payload")
	}
}

func TestMonitoringLifecycleThroughFacade(t *testing.T) {
	o := newOrchestrator(t)
	cred := validated(t, o, "chatgpt", "session_token", "tok-facade")

	sess, err := o.StartMonitoring(context.Background(), "monitor_chatgpt_realtime", cred,
		map[string]any{"session_token": "tok-facade", "webhook_url": "http://127.0.0.1:1/unreachable"})
	if err != nil {
		t.Fatalf("StartMonitoring failed: %v", err)
	}

	if _, err := o.GetSession(sess.ID); err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if got := o.ListSessions(); len(got) != 1 {
		t.Errorf("expected 1 session, got %d", len(got))
	}

	stopped, err := o.StopMonitoring(sess.ID)
	if err != nil {
		t.Fatalf("StopMonitoring failed: %v", err)
	}
	if stopped.State != models.SessionStopped {
		t.Errorf("expected stopped, got %s", stopped.State)
	}

	stats, err := o.GetStats(context.Background())
	if err != nil {
		t.Fatalf("GetStats failed: %v", err)
	}
	if stats.ActiveSessions != 0 {
		t.Errorf("stopped session should not count as active, got %d", stats.ActiveSessions)
	}
	if stats.Metrics.Counters.SessionsStopped != 1 {
		t.Errorf("expected 1 stopped session counted, got %d", stats.Metrics.Counters.SessionsStopped)
	}
}

func TestSubscribeCancelIsSafe(t *testing.T) {
	o := newOrchestrator(t)

	events, cancel := o.Subscribe()
	cancel()
	cancel() // double cancel is a no-op

	// Channel is closed after cancel.
	if _, open := <-events; open {
		t.Error("events channel should be closed after cancel")
	}
}
