// Package store provides the conversation store the orchestrator emits
// normalized records into. The orchestrator itself is storage-agnostic: it
// only talks to the Store interface, and implementations are passed in at
// wiring time rather than held as process globals.
package store

import (
	"context"

	"github.com/chatvault/chatvault/internal/models"
)

// UpsertResult reports what an upsert changed. Re-extracting the same
// provider conversation merges into the existing record, so Created is
// false and NewMessages counts only messages not previously stored.
type UpsertResult struct {
	Created     bool
	NewMessages int
}

// Filter narrows a conversation listing.
type Filter struct {
	Provider      string
	TitleContains string
	Limit         int
	Offset        int
}

// Page is one page of a conversation listing.
type Page struct {
	Conversations []models.Conversation `json:"conversations"`
	Total         int                   `json:"total"`
}

// Store is the external conversation store interface.
type Store interface {
	// UpsertConversation inserts or merges a canonical conversation.
	// Messages are de-duplicated by their dedupe identity, so applying
	// the same conversation twice is idempotent.
	UpsertConversation(ctx context.Context, conv models.Conversation) (UpsertResult, error)

	// GetConversation fetches one conversation by canonical id.
	GetConversation(ctx context.Context, id string) (*models.Conversation, error)

	// ListConversations returns a filtered, paginated listing ordered by
	// UpdatedAt descending.
	ListConversations(ctx context.Context, f Filter) (*Page, error)

	// CountConversations returns the total number of stored conversations.
	CountConversations(ctx context.Context) (int, error)
}
