package gateway

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/chatvault/chatvault/internal/errs"
	"github.com/chatvault/chatvault/internal/executor"
	"github.com/chatvault/chatvault/internal/models"
	"github.com/chatvault/chatvault/internal/registry"
)

func testGateway(t *testing.T, timeout time.Duration) (*Gateway, *registry.Registry) {
	t.Helper()
	reg, err := registry.Load()
	if err != nil {
		t.Fatalf("failed to load registry: %v", err)
	}
	reg.RegisterFixtures()
	return New(reg, timeout, nil), reg
}

func chatgptCredential() models.Credential {
	return models.Credential{
		Provider: "chatgpt",
		Secrets:  map[string]string{"session_token": "tok-123"},
	}
}

func TestValidateParamsAppliesDefaults(t *testing.T) {
	gw, reg := testGateway(t, time.Second)
	tool, err := reg.FindTool("extract_chatgpt_conversations", "chatgpt")
	if err != nil {
		t.Fatalf("FindTool failed: %v", err)
	}

	params, err := gw.ValidateParams(tool, map[string]any{"session_token": "tok"})
	if err != nil {
		t.Fatalf("ValidateParams failed: %v", err)
	}
	if params["max_conversations"] != float64(100) && params["max_conversations"] != 100 {
		t.Errorf("expected default max_conversations=100, got %v", params["max_conversations"])
	}
	if params["include_archived"] != false {
		t.Errorf("expected default include_archived=false, got %v", params["include_archived"])
	}
	// Caller-supplied values win over defaults.
	params, err = gw.ValidateParams(tool, map[string]any{"session_token": "tok", "max_conversations": 5})
	if err != nil {
		t.Fatalf("ValidateParams with explicit value failed: %v", err)
	}
	if params["max_conversations"] != 5 {
		t.Errorf("explicit value should not be overridden, got %v", params["max_conversations"])
	}
}

func TestValidateParamsCollectsAllViolations(t *testing.T) {
	gw, reg := testGateway(t, time.Second)
	tool, err := reg.FindTool("extract_chatgpt_conversations", "chatgpt")
	if err != nil {
		t.Fatalf("FindTool failed: %v", err)
	}

	// Missing required session_token AND wrong type for max_conversations.
	_, err = gw.ValidateParams(tool, map[string]any{"max_conversations": "lots"})
	if err == nil {
		t.Fatal("expected validation error")
	}
	if !errs.IsKind(err, errs.KindSchemaValidation) {
		t.Fatalf("expected schema_validation_error, got %v", errs.KindOf(err))
	}
	var oe *errs.Error
	if !errors.As(err, &oe) {
		t.Fatal("expected *errs.Error")
	}
	if !slices.Contains(oe.Fields, "session_token") {
		t.Errorf("expected session_token in violated fields, got %v", oe.Fields)
	}
	if !slices.Contains(oe.Fields, "max_conversations") {
		t.Errorf("expected max_conversations in violated fields, got %v", oe.Fields)
	}
}

func TestValidateParamsRejectsBadEnum(t *testing.T) {
	gw, reg := testGateway(t, time.Second)
	tool, err := reg.FindTool("export_chatgpt_conversation", "chatgpt")
	if err != nil {
		t.Fatalf("FindTool failed: %v", err)
	}

	_, err = gw.ValidateParams(tool, map[string]any{
		"conversation_id": "conv-1",
		"format":          "pdf",
	})
	if err == nil {
		t.Fatal("expected enum violation")
	}
	if !errs.IsKind(err, errs.KindSchemaValidation) {
		t.Errorf("expected schema_validation_error, got %v", errs.KindOf(err))
	}

	// Valid enum value plus defaults passes.
	params, err := gw.ValidateParams(tool, map[string]any{"conversation_id": "conv-1"})
	if err != nil {
		t.Fatalf("ValidateParams failed: %v", err)
	}
	if params["format"] != "json" {
		t.Errorf("expected default format json, got %v", params["format"])
	}
}

func TestInvokeReturnsFixturePayload(t *testing.T) {
	gw, _ := testGateway(t, time.Second)

	res, err := gw.Invoke(context.Background(), "extract_chatgpt_conversations", "chatgpt",
		chatgptCredential(), map[string]any{"session_token": "tok"})
	if err != nil {
		t.Fatalf("Invoke failed: %v", err)
	}
	if res.Tool != "extract_chatgpt_conversations" || res.Provider != "chatgpt" {
		t.Errorf("result identity mismatch: %+v", res)
	}
	convs, ok := res.Raw["conversations"].([]any)
	if !ok {
		t.Fatalf("expected conversations array in payload, got %T", res.Raw["conversations"])
	}
	if len(convs) != 2 {
		t.Errorf("expected 2 fixture conversations, got %d", len(convs))
	}
}

func TestInvokeUnknownTool(t *testing.T) {
	gw, _ := testGateway(t, time.Second)

	_, err := gw.Invoke(context.Background(), "no_such_tool", "", chatgptCredential(), nil)
	if err == nil {
		t.Fatal("expected error for unknown tool")
	}
	if !errs.IsKind(err, errs.KindUnknownTool) {
		t.Errorf("expected unknown_tool, got %v", errs.KindOf(err))
	}
}

func TestInvokeRejectsInvalidParamsBeforeDispatch(t *testing.T) {
	gw, _ := testGateway(t, time.Second)

	_, err := gw.Invoke(context.Background(), "extract_chatgpt_conversations", "chatgpt",
		chatgptCredential(), map[string]any{})
	if err == nil {
		t.Fatal("expected validation error")
	}
	if !errs.IsKind(err, errs.KindSchemaValidation) {
		t.Errorf("expected schema_validation_error, got %v", errs.KindOf(err))
	}
}

func TestPollTimesOut(t *testing.T) {
	reg, err := registry.Load()
	if err != nil {
		t.Fatalf("failed to load registry: %v", err)
	}
	slow := executor.NewFixture("chatgpt")
	slow.Delay = 200 * time.Millisecond
	if err := reg.RegisterExecutor("chatgpt", slow); err != nil {
		t.Fatalf("RegisterExecutor failed: %v", err)
	}

	gw := New(reg, 10*time.Millisecond, nil)
	_, err = gw.Poll(context.Background(), "chatgpt", chatgptCredential(), time.Time{})
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if !errs.IsKind(err, errs.KindTimeout) {
		t.Errorf("expected timeout kind, got %v", errs.KindOf(err))
	}
	if !errs.Retryable(err) {
		t.Error("timeout should be retryable")
	}
}

func TestPollFiltersByWatermark(t *testing.T) {
	gw, _ := testGateway(t, time.Second)

	// Watermark before the fixture window sees everything.
	raw, err := gw.Poll(context.Background(), "chatgpt", chatgptCredential(),
		time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("Poll failed: %v", err)
	}
	convs, _ := raw["conversations"].([]any)
	if len(convs) != 2 {
		t.Errorf("expected 2 conversations since 2024-01-01, got %d", len(convs))
	}

	// Watermark after the fixture window sees nothing new.
	raw, err = gw.Poll(context.Background(), "chatgpt", chatgptCredential(),
		time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("Poll failed: %v", err)
	}
	convs, _ = raw["conversations"].([]any)
	if len(convs) != 0 {
		t.Errorf("expected no conversations since 2025-01-01, got %d", len(convs))
	}
}
