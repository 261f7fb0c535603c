package tools

import (
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/chatvault/chatvault/internal/errs"
)

// ErrorResult creates a tool error result with optional recovery hint.
// If hint is non-empty, formats as "{msg}. {hint}".
// Returns IsError=true so LLM can see the error and self-correct.
func ErrorResult(msg, hint string) *mcp.CallToolResult {
	text := msg
	if hint != "" {
		text = msg + ". " + hint
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: text},
		},
		IsError: true,
	}
}

// TextResult creates a success result with text content.
func TextResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: text},
		},
	}
}

// KindResult maps an orchestrator error onto an actionable tool error.
func KindResult(err error) *mcp.CallToolResult {
	switch errs.KindOf(err) {
	case errs.KindUnknownProvider:
		return ErrorResult(err.Error(), "Use list_providers to see supported providers")
	case errs.KindUnknownTool:
		return ErrorResult(err.Error(), "Use list_provider_tools to see available tools")
	case errs.KindInvalidCredentials:
		return ErrorResult(err.Error(), "Supply fresh credentials and validate again")
	case errs.KindCredentialsNotValidated:
		return ErrorResult(err.Error(), "Call validate_credentials first")
	case errs.KindSchemaValidation:
		return ErrorResult(err.Error(), "Fix the listed parameter fields and retry")
	case errs.KindJobAlreadyRunning:
		return ErrorResult(err.Error(), "Wait for the running job or cancel it")
	case errs.KindSessionAlreadyActive:
		return ErrorResult(err.Error(), "Stop the active session first")
	case errs.KindRateLimited:
		return ErrorResult(err.Error(), "Wait before retrying validation")
	case errs.KindProviderUnavailable, errs.KindTimeout:
		return ErrorResult(err.Error(), "The provider is unreachable, retry later")
	case errs.KindNotFound:
		return ErrorResult(err.Error(), "Check the id against the list operations")
	default:
		return ErrorResult(err.Error(), "")
	}
}
