// Package models defines the canonical data structures for the ChatVault
// extraction orchestrator.
package models

import "time"

// AuthMethod names a supported way of authenticating against a provider.
type AuthMethod string

const (
	AuthSessionToken AuthMethod = "session_token"
	AuthCookie       AuthMethod = "cookie"
	AuthBearer       AuthMethod = "bearer"
	AuthHeader       AuthMethod = "header"
	AuthQuery        AuthMethod = "query"
)

// PollingBounds constrains the polling interval a monitoring session may use.
type PollingBounds struct {
	Min     time.Duration `json:"min"`
	Max     time.Duration `json:"max"`
	Default time.Duration `json:"default"`
}

// ProviderDescriptor describes one external chat provider. Immutable after
// registry load.
type ProviderDescriptor struct {
	ID               string           `json:"id"`
	Name             string           `json:"name"`
	Description      string           `json:"description"`
	CredentialFields []string         `json:"credential_fields"`
	AuthMethods      []AuthMethod     `json:"auth_methods"`
	Polling          PollingBounds    `json:"polling"`
	Tools            []ToolDescriptor `json:"tools"`
}

// ToolCategory groups tools by purpose.
type ToolCategory string

const (
	CategoryChatExtraction     ToolCategory = "chat_extraction"
	CategoryRealTimeMonitoring ToolCategory = "real_time_monitoring"
	CategoryProjectMonitoring  ToolCategory = "project_monitoring"
	CategoryDataExport         ToolCategory = "data_export"
)

// ToolDescriptor describes one invocable tool. Parameters holds a JSON-schema
// parameter description (type, required fields, enums, defaults). Immutable,
// part of the registry.
type ToolDescriptor struct {
	Name             string         `json:"name"`
	Description      string         `json:"description"`
	Category         ToolCategory   `json:"category"`
	ProviderID       string         `json:"provider_id"`
	ProviderSpecific bool           `json:"provider_specific"`
	Parameters       map[string]any `json:"parameters"`

	// ExpectedDuration is the provider-declared expected runtime of the
	// tool, used to derive synthetic job progress.
	ExpectedDuration time.Duration `json:"expected_duration"`
}
