package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/chatvault/chatvault/internal/store"
)

// ListConversationsInput defines the input schema for list_conversations.
type ListConversationsInput struct {
	Provider      string `json:"provider,omitempty" jsonschema:"Filter by provider id"`
	TitleContains string `json:"title_contains,omitempty" jsonschema:"Case insensitive title substring filter"`
	Limit         int    `json:"limit,omitempty" jsonschema:"Maximum conversations to return, default 50"`
	Offset        int    `json:"offset,omitempty" jsonschema:"Number of conversations to skip"`
}

// conversationSummary is a listing row without the message bodies.
type conversationSummary struct {
	ID           string `json:"id"`
	Provider     string `json:"provider"`
	Title        string `json:"title"`
	MessageCount int    `json:"message_count"`
	CreatedAt    string `json:"created_at"`
	UpdatedAt    string `json:"updated_at"`
}

// NewListConversationsHandler creates the stored conversation listing handler.
func NewListConversationsHandler(deps *Dependencies) mcp.ToolHandlerFor[ListConversationsInput, any] {
	return func(ctx context.Context, req *mcp.CallToolRequest, input ListConversationsInput) (*mcp.CallToolResult, any, error) {
		limit := input.Limit
		if limit <= 0 {
			limit = 50
		}
		page, err := deps.Orchestrator.ListConversations(ctx, store.Filter{
			Provider:      input.Provider,
			TitleContains: input.TitleContains,
			Limit:         limit,
			Offset:        input.Offset,
		})
		if err != nil {
			return KindResult(err), nil, nil
		}
		if page.Total == 0 {
			return TextResult("No stored conversations match the filter."), nil, nil
		}

		summaries := make([]conversationSummary, 0, len(page.Conversations))
		for _, conv := range page.Conversations {
			summaries = append(summaries, conversationSummary{
				ID:           conv.ID,
				Provider:     conv.Provider,
				Title:        conv.Title,
				MessageCount: len(conv.Messages),
				CreatedAt:    conv.CreatedAt.Format("2006-01-02 15:04:05"),
				UpdatedAt:    conv.UpdatedAt.Format("2006-01-02 15:04:05"),
			})
		}
		jsonBytes, _ := json.MarshalIndent(summaries, "", "  ")
		return TextResult(fmt.Sprintf("%d of %d conversations:\n%s", len(summaries), page.Total, string(jsonBytes))), nil, nil
	}
}

// GetConversationInput defines the input schema for get_conversation.
type GetConversationInput struct {
	ConversationID string `json:"conversation_id" jsonschema:"required,Canonical conversation id from list_conversations"`
}

// NewGetConversationHandler creates the single conversation fetch handler.
func NewGetConversationHandler(deps *Dependencies) mcp.ToolHandlerFor[GetConversationInput, any] {
	return func(ctx context.Context, req *mcp.CallToolRequest, input GetConversationInput) (*mcp.CallToolResult, any, error) {
		if input.ConversationID == "" {
			return ErrorResult("Conversation id cannot be empty", "Pass an id from list_conversations"), nil, nil
		}
		conv, err := deps.Orchestrator.GetConversation(ctx, input.ConversationID)
		if err != nil {
			return KindResult(err), nil, nil
		}
		jsonBytes, _ := json.MarshalIndent(conv, "", "  ")
		return TextResult(string(jsonBytes)), nil, nil
	}
}
