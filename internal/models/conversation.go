package models

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Role identifies the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ToolCall records a tool invocation embedded in an assistant message.
type ToolCall struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments,omitempty"`
	Result    string         `json:"result,omitempty"`
}

// Message is a single canonical chat message.
type Message struct {
	// NativeID is the provider-assigned message id, when the provider
	// exposes one. May be empty.
	NativeID  string     `json:"native_id,omitempty"`
	Role      Role       `json:"role"`
	Content   string     `json:"content"`
	Timestamp time.Time  `json:"timestamp"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
}

// DedupeIdentity returns the identity used to de-duplicate messages within
// a conversation: the provider-native message id when present, otherwise
// the timestamp plus a content hash.
func (m Message) DedupeIdentity() string {
	if m.NativeID != "" {
		return "id:" + m.NativeID
	}
	sum := sha256.Sum256([]byte(m.Content))
	return m.Timestamp.UTC().Format(time.RFC3339Nano) + ":" + hex.EncodeToString(sum[:8])
}

// Conversation is the canonical shape of an extracted chat transcript.
// ID is namespaced by provider ("provider:nativeID") so the same external
// conversation maps to exactly one record across re-extractions.
type Conversation struct {
	ID        string    `json:"id"`
	Provider  string    `json:"provider"`
	NativeID  string    `json:"native_id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Messages  []Message `json:"messages"`
}

// ConversationID builds the canonical provider-namespaced conversation id.
func ConversationID(provider, nativeID string) string {
	return provider + ":" + nativeID
}

// ExtractionMetadata summarizes one extraction run, mirroring what
// providers report alongside their conversation payloads.
type ExtractionMetadata struct {
	Provider            string    `json:"provider"`
	ExtractionMethod    string    `json:"extraction_method"`
	TotalConversations  int       `json:"total_conversations"`
	ExtractionTimestamp time.Time `json:"extraction_timestamp"`
}

// RawPayload is a provider-specific extraction payload as returned by an
// executor, prior to normalization.
type RawPayload map[string]any
