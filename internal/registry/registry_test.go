package registry

import (
	"testing"

	"github.com/chatvault/chatvault/internal/errs"
)

func TestLoadCatalog(t *testing.T) {
	r, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	providers := r.List()
	if len(providers) != 5 {
		t.Fatalf("got %d providers, want 5", len(providers))
	}

	for _, id := range []string{"chatgpt", "claude", "gemini", "perplexity", "custom"} {
		p, err := r.Describe(id)
		if err != nil {
			t.Errorf("Describe(%q) error = %v", id, err)
			continue
		}
		if len(p.Tools) == 0 {
			t.Errorf("provider %q has no tools", id)
		}
		if len(p.CredentialFields) == 0 {
			t.Errorf("provider %q has no credential fields", id)
		}
		if p.Polling.Default <= 0 || p.Polling.Min <= 0 {
			t.Errorf("provider %q has unset polling bounds", id)
		}
	}
}

func TestDescribeUnknownProvider(t *testing.T) {
	r, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	_, err = r.Describe("copilot")
	if !errs.IsKind(err, errs.KindUnknownProvider) {
		t.Errorf("Describe(unknown) error = %v, want kind %s", err, errs.KindUnknownProvider)
	}
}

func TestFindTool(t *testing.T) {
	r, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	tool, err := r.FindTool("extract_claude_conversations", "claude")
	if err != nil {
		t.Fatalf("FindTool error = %v", err)
	}
	if tool.ProviderID != "claude" {
		t.Errorf("tool provider = %q, want claude", tool.ProviderID)
	}
	req, _ := tool.Parameters["required"].([]any)
	if len(req) != 1 || req[0] != "session_cookie" {
		t.Errorf("unexpected required fields: %v", req)
	}
	if tool.ExpectedDuration <= 0 {
		t.Error("tool should declare an expected duration")
	}

	// Wrong provider binding is rejected.
	if _, err := r.FindTool("extract_claude_conversations", "chatgpt"); !errs.IsKind(err, errs.KindUnknownTool) {
		t.Errorf("cross-provider lookup error = %v, want kind %s", err, errs.KindUnknownTool)
	}

	if _, err := r.FindTool("no_such_tool", ""); !errs.IsKind(err, errs.KindUnknownTool) {
		t.Errorf("unknown tool error = %v, want kind %s", err, errs.KindUnknownTool)
	}
}

func TestListTools(t *testing.T) {
	r, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	all, err := r.ListTools("")
	if err != nil {
		t.Fatalf("ListTools(all) error = %v", err)
	}
	if len(all) != 8 {
		t.Errorf("got %d tools, want 8", len(all))
	}

	chatgpt, err := r.ListTools("chatgpt")
	if err != nil {
		t.Fatalf("ListTools(chatgpt) error = %v", err)
	}
	if len(chatgpt) != 3 {
		t.Errorf("got %d chatgpt tools, want 3", len(chatgpt))
	}
}

func TestFixtureRegistration(t *testing.T) {
	r, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if _, err := r.Executor("claude"); !errs.IsKind(err, errs.KindUnknownProvider) {
		t.Errorf("executor before registration error = %v, want kind %s", err, errs.KindUnknownProvider)
	}

	r.RegisterFixtures()

	if _, err := r.Executor("claude"); err != nil {
		t.Errorf("executor after registration error = %v", err)
	}
	if _, err := r.Verifier("chatgpt"); err != nil {
		t.Errorf("verifier after registration error = %v", err)
	}
}
