// Package normalizer converts provider-specific extraction payloads into
// the canonical Conversation/Message shape. Normalization is pure: no I/O,
// no shared state. A malformed conversation is reported per item and never
// aborts the rest of the batch.
package normalizer

import (
	"fmt"
	"sort"
	"time"

	"github.com/chatvault/chatvault/internal/errs"
	"github.com/chatvault/chatvault/internal/models"
)

// Batch is the outcome of normalizing one payload: canonical conversations
// plus per-conversation errors for the malformed ones.
type Batch struct {
	Conversations []models.Conversation
	Errors        []ConversationError
	Metadata      models.ExtractionMetadata
}

// ConversationError describes one conversation that failed normalization.
type ConversationError struct {
	Index    int
	NativeID string
	Err      error
}

func (e ConversationError) String() string {
	if e.NativeID != "" {
		return fmt.Sprintf("conversation %q: %v", e.NativeID, e.Err)
	}
	return fmt.Sprintf("conversation at index %d: %v", e.Index, e.Err)
}

// Field aliases seen across provider payloads. The first present alias wins.
var (
	convIDFields    = []string{"id", "conversation_id", "uuid"}
	convTitleFields = []string{"title", "name", "subject"}
	messageFields   = []string{"messages", "chat_messages"}
	msgIDFields     = []string{"id", "message_id"}
	msgRoleFields   = []string{"role", "sender", "author"}
	msgTextFields   = []string{"content", "text", "body"}
	msgTimeFields   = []string{"timestamp", "created_at", "create_time"}
)

// Normalize converts a raw provider payload into canonical records for the
// given provider. The returned batch always covers every input conversation,
// either under Conversations or under Errors.
func Normalize(providerID string, payload models.RawPayload) (*Batch, error) {
	if payload == nil {
		return nil, errs.New(errs.KindMalformedPayload, "nil payload")
	}

	batch := &Batch{
		Metadata: parseMetadata(providerID, payload),
	}

	rawConvs, ok := payload["conversations"].([]any)
	if !ok {
		if payload["conversations"] == nil {
			// Empty extraction: a payload with no conversations key at all
			// is malformed, an explicit empty list is not.
			return nil, errs.New(errs.KindMalformedPayload, "payload has no conversations field")
		}
		return nil, errs.Newf(errs.KindMalformedPayload, "conversations field has type %T, want list", payload["conversations"])
	}

	for i, rc := range rawConvs {
		conv, err := normalizeConversation(providerID, rc)
		if err != nil {
			batch.Errors = append(batch.Errors, ConversationError{
				Index:    i,
				NativeID: nativeIDOf(rc),
				Err:      err,
			})
			continue
		}
		batch.Conversations = append(batch.Conversations, *conv)
	}

	return batch, nil
}

func normalizeConversation(providerID string, raw any) (*models.Conversation, error) {
	m, ok := raw.(map[string]any)
	if !ok {
		return nil, errs.Newf(errs.KindMalformedPayload, "conversation has type %T, want object", raw)
	}

	nativeID := firstString(m, convIDFields)
	if nativeID == "" {
		return nil, errs.New(errs.KindMalformedPayload, "conversation is missing an id")
	}

	conv := &models.Conversation{
		ID:       models.ConversationID(providerID, nativeID),
		Provider: providerID,
		NativeID: nativeID,
		Title:    firstString(m, convTitleFields),
	}
	conv.CreatedAt = parseTime(firstString(m, []string{"created_at"}))
	conv.UpdatedAt = parseTime(firstString(m, []string{"updated_at"}))

	rawMsgs := firstList(m, messageFields)
	seen := make(map[string]bool)
	for i, rm := range rawMsgs {
		msg, err := normalizeMessage(rm)
		if err != nil {
			return nil, fmt.Errorf("message %d: %w", i, err)
		}
		// De-duplicate by provider message id when present, else by
		// timestamp plus content hash.
		id := msg.DedupeIdentity()
		if seen[id] {
			continue
		}
		seen[id] = true
		conv.Messages = append(conv.Messages, *msg)
	}

	// Out-of-order input is sorted, not rejected. Stable sort keeps the
	// provider's relative order for equal timestamps.
	sort.SliceStable(conv.Messages, func(a, b int) bool {
		return conv.Messages[a].Timestamp.Before(conv.Messages[b].Timestamp)
	})

	if conv.CreatedAt.IsZero() && len(conv.Messages) > 0 {
		conv.CreatedAt = conv.Messages[0].Timestamp
	}
	if conv.UpdatedAt.IsZero() && len(conv.Messages) > 0 {
		conv.UpdatedAt = conv.Messages[len(conv.Messages)-1].Timestamp
	}

	return conv, nil
}

func normalizeMessage(raw any) (*models.Message, error) {
	m, ok := raw.(map[string]any)
	if !ok {
		return nil, errs.Newf(errs.KindMalformedPayload, "message has type %T, want object", raw)
	}

	role := firstString(m, msgRoleFields)
	content, hasContent := firstStringOk(m, msgTextFields)
	if role == "" || !hasContent {
		return nil, errs.New(errs.KindMalformedPayload, "message is missing role or content")
	}
	switch models.Role(role) {
	case models.RoleUser, models.RoleAssistant:
	default:
		return nil, errs.Newf(errs.KindMalformedPayload, "unknown message role %q", role)
	}

	msg := &models.Message{
		NativeID:  firstString(m, msgIDFields),
		Role:      models.Role(role),
		Content:   content,
		Timestamp: parseTime(firstString(m, msgTimeFields)),
	}

	if rawCalls, ok := m["tool_calls"].([]any); ok {
		for _, rc := range rawCalls {
			cm, ok := rc.(map[string]any)
			if !ok {
				continue
			}
			call := models.ToolCall{Name: firstString(cm, []string{"name"})}
			if args, ok := cm["arguments"].(map[string]any); ok {
				call.Arguments = args
			}
			call.Result = firstString(cm, []string{"result"})
			msg.ToolCalls = append(msg.ToolCalls, call)
		}
	}

	return msg, nil
}

func parseMetadata(providerID string, payload models.RawPayload) models.ExtractionMetadata {
	meta := models.ExtractionMetadata{Provider: providerID}
	m, ok := payload["metadata"].(map[string]any)
	if !ok {
		return meta
	}
	meta.ExtractionMethod = firstString(m, []string{"extraction_method"})
	meta.ExtractionTimestamp = parseTime(firstString(m, []string{"extraction_timestamp"}))
	switch n := m["total_conversations"].(type) {
	case int:
		meta.TotalConversations = n
	case float64:
		meta.TotalConversations = int(n)
	}
	return meta
}

func nativeIDOf(raw any) string {
	if m, ok := raw.(map[string]any); ok {
		return firstString(m, convIDFields)
	}
	return ""
}

func firstString(m map[string]any, keys []string) string {
	s, _ := firstStringOk(m, keys)
	return s
}

func firstStringOk(m map[string]any, keys []string) (string, bool) {
	for _, k := range keys {
		if v, ok := m[k].(string); ok {
			return v, true
		}
	}
	return "", false
}

func firstList(m map[string]any, keys []string) []any {
	for _, k := range keys {
		switch v := m[k].(type) {
		case []any:
			return v
		case []map[string]any:
			out := make([]any, len(v))
			for i, e := range v {
				out[i] = e
			}
			return out
		}
	}
	return nil
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}
