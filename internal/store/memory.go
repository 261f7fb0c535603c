package store

import (
	"context"
	"slices"
	"sort"
	"strings"
	"sync"

	"github.com/chatvault/chatvault/internal/errs"
	"github.com/chatvault/chatvault/internal/models"
)

// Memory is an in-memory Store. It backs tests and single-process dev runs;
// production deployments use the SurrealDB store.
type Memory struct {
	mu    sync.RWMutex
	convs map[string]models.Conversation
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{convs: make(map[string]models.Conversation)}
}

// UpsertConversation inserts or merges a conversation.
func (s *Memory) UpsertConversation(ctx context.Context, conv models.Conversation) (UpsertResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.convs[conv.ID]
	if !ok {
		cp := conv
		cp.Messages = slices.Clone(conv.Messages)
		s.convs[conv.ID] = cp
		return UpsertResult{Created: true, NewMessages: len(conv.Messages)}, nil
	}

	merged, added := mergeMessages(existing.Messages, conv.Messages)
	existing.Messages = merged
	if conv.Title != "" {
		existing.Title = conv.Title
	}
	if conv.UpdatedAt.After(existing.UpdatedAt) {
		existing.UpdatedAt = conv.UpdatedAt
	}
	if !conv.CreatedAt.IsZero() && (existing.CreatedAt.IsZero() || conv.CreatedAt.Before(existing.CreatedAt)) {
		existing.CreatedAt = conv.CreatedAt
	}
	s.convs[conv.ID] = existing

	return UpsertResult{Created: false, NewMessages: added}, nil
}

// GetConversation fetches one conversation by canonical id.
func (s *Memory) GetConversation(ctx context.Context, id string) (*models.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conv, ok := s.convs[id]
	if !ok {
		return nil, errs.Newf(errs.KindNotFound, "conversation %q not found", id)
	}
	cp := conv
	cp.Messages = slices.Clone(conv.Messages)
	return &cp, nil
}

// ListConversations returns a filtered page ordered by UpdatedAt descending.
func (s *Memory) ListConversations(ctx context.Context, f Filter) (*Page, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []models.Conversation
	for _, conv := range s.convs {
		if f.Provider != "" && conv.Provider != f.Provider {
			continue
		}
		if f.TitleContains != "" && !strings.Contains(strings.ToLower(conv.Title), strings.ToLower(f.TitleContains)) {
			continue
		}
		matched = append(matched, conv)
	}

	sort.Slice(matched, func(a, b int) bool {
		return matched[a].UpdatedAt.After(matched[b].UpdatedAt)
	})

	total := len(matched)
	offset := min(f.Offset, total)
	matched = matched[offset:]
	if f.Limit > 0 && len(matched) > f.Limit {
		matched = matched[:f.Limit]
	}

	page := &Page{Total: total, Conversations: make([]models.Conversation, len(matched))}
	for i, conv := range matched {
		page.Conversations[i] = conv
		page.Conversations[i].Messages = slices.Clone(conv.Messages)
	}
	return page, nil
}

// CountConversations returns the number of stored conversations.
func (s *Memory) CountConversations(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.convs), nil
}

// mergeMessages merges incoming into existing by dedupe identity, keeping
// the result ordered by timestamp. Returns the merged slice and the number
// of messages actually added.
func mergeMessages(existing, incoming []models.Message) ([]models.Message, int) {
	seen := make(map[string]bool, len(existing))
	for _, m := range existing {
		seen[m.DedupeIdentity()] = true
	}

	merged := slices.Clone(existing)
	added := 0
	for _, m := range incoming {
		id := m.DedupeIdentity()
		if seen[id] {
			continue
		}
		seen[id] = true
		merged = append(merged, m)
		added++
	}

	if added > 0 {
		sort.SliceStable(merged, func(a, b int) bool {
			return merged[a].Timestamp.Before(merged[b].Timestamp)
		})
	}
	return merged, added
}
