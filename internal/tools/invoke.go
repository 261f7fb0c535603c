package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// InvokeProviderToolInput defines the input schema for invoke_provider_tool.
type InvokeProviderToolInput struct {
	CredentialInput
	Tool   string         `json:"tool" jsonschema:"required,Tool name from list_provider_tools"`
	Params map[string]any `json:"params,omitempty" jsonschema:"Tool parameters matching the tool's parameter schema"`
}

// NewInvokeProviderToolHandler creates the one-off tool invocation handler.
// The credential must have been validated first.
func NewInvokeProviderToolHandler(deps *Dependencies) mcp.ToolHandlerFor[InvokeProviderToolInput, any] {
	return func(ctx context.Context, req *mcp.CallToolRequest, input InvokeProviderToolInput) (*mcp.CallToolResult, any, error) {
		if input.Tool == "" {
			return ErrorResult("Tool cannot be empty", "Pass a tool name from list_provider_tools"), nil, nil
		}

		res, err := deps.Orchestrator.InvokeTool(ctx, input.Tool, input.toModel(), input.Params)
		if err != nil {
			return KindResult(err), nil, nil
		}

		deps.Logger.Info("tool invoked",
			"tool", res.Tool,
			"provider", res.Provider,
			"elapsed", res.Elapsed)

		jsonBytes, _ := json.MarshalIndent(res.Raw, "", "  ")
		header := fmt.Sprintf("Tool %s on %s completed in %s:\n", res.Tool, res.Provider, res.Elapsed.Round(time.Millisecond))
		return TextResult(header + string(jsonBytes)), nil, nil
	}
}
