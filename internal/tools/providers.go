package tools

import (
	"context"
	"encoding/json"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// ListProvidersInput defines the input schema for the list_providers tool.
type ListProvidersInput struct{}

// NewListProvidersHandler creates the provider catalog listing handler.
func NewListProvidersHandler(deps *Dependencies) mcp.ToolHandlerFor[ListProvidersInput, any] {
	return func(ctx context.Context, req *mcp.CallToolRequest, input ListProvidersInput) (*mcp.CallToolResult, any, error) {
		providers := deps.Orchestrator.ListProviders()
		jsonBytes, _ := json.MarshalIndent(providers, "", "  ")
		deps.Logger.Debug("providers listed", "count", len(providers))
		return TextResult(string(jsonBytes)), nil, nil
	}
}

// DescribeProviderInput defines the input schema for describe_provider.
type DescribeProviderInput struct {
	Provider string `json:"provider" jsonschema:"required,Provider id to describe"`
}

// NewDescribeProviderHandler creates the provider descriptor handler.
func NewDescribeProviderHandler(deps *Dependencies) mcp.ToolHandlerFor[DescribeProviderInput, any] {
	return func(ctx context.Context, req *mcp.CallToolRequest, input DescribeProviderInput) (*mcp.CallToolResult, any, error) {
		if input.Provider == "" {
			return ErrorResult("Provider cannot be empty", "Pass a provider id from list_providers"), nil, nil
		}
		desc, err := deps.Orchestrator.DescribeProvider(input.Provider)
		if err != nil {
			return KindResult(err), nil, nil
		}
		jsonBytes, _ := json.MarshalIndent(desc, "", "  ")
		return TextResult(string(jsonBytes)), nil, nil
	}
}

// ListProviderToolsInput defines the input schema for list_provider_tools.
type ListProviderToolsInput struct {
	Provider string `json:"provider,omitempty" jsonschema:"Optional provider filter, all tools when omitted"`
}

// NewListProviderToolsHandler creates the tool catalog handler.
func NewListProviderToolsHandler(deps *Dependencies) mcp.ToolHandlerFor[ListProviderToolsInput, any] {
	return func(ctx context.Context, req *mcp.CallToolRequest, input ListProviderToolsInput) (*mcp.CallToolResult, any, error) {
		toolList, err := deps.Orchestrator.ListTools(input.Provider)
		if err != nil {
			return KindResult(err), nil, nil
		}
		jsonBytes, _ := json.MarshalIndent(toolList, "", "  ")
		deps.Logger.Debug("tools listed", "provider", input.Provider, "count", len(toolList))
		return TextResult(string(jsonBytes)), nil, nil
	}
}
