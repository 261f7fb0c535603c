package tools

import (
	"context"
	"encoding/json"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// GetExtractionStatsInput defines the input schema for get_extraction_stats.
type GetExtractionStatsInput struct{}

// NewGetExtractionStatsHandler creates the runtime statistics handler.
func NewGetExtractionStatsHandler(deps *Dependencies) mcp.ToolHandlerFor[GetExtractionStatsInput, any] {
	return func(ctx context.Context, req *mcp.CallToolRequest, input GetExtractionStatsInput) (*mcp.CallToolResult, any, error) {
		stats, err := deps.Orchestrator.GetStats(ctx)
		if err != nil {
			return KindResult(err), nil, nil
		}
		jsonBytes, _ := json.MarshalIndent(stats, "", "  ")
		return TextResult(string(jsonBytes)), nil, nil
	}
}
