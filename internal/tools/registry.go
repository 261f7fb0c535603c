package tools

import (
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// RegisterAll registers every tool with the MCP server and returns how many
// were registered. Called from main after server creation, before Run().
func RegisterAll(server *mcp.Server, deps *Dependencies) int {
	registrations := []func(){
		// Catalog tools
		func() {
			mcp.AddTool(server, &mcp.Tool{
				Name:        "list_providers",
				Description: "List all registered chat providers and their capabilities",
			}, NewListProvidersHandler(deps))
		},
		func() {
			mcp.AddTool(server, &mcp.Tool{
				Name:        "describe_provider",
				Description: "Describe one provider: credential fields, polling bounds, supported tools",
			}, NewDescribeProviderHandler(deps))
		},
		func() {
			mcp.AddTool(server, &mcp.Tool{
				Name:        "list_provider_tools",
				Description: "List provider tools with their parameter schemas, optionally filtered by provider",
			}, NewListProviderToolsHandler(deps))
		},

		// Credentials
		func() {
			mcp.AddTool(server, &mcp.Tool{
				Name:        "validate_credentials",
				Description: "Validate provider credentials and cache the validation result",
			}, NewValidateCredentialsHandler(deps))
		},

		// Direct invocation
		func() {
			mcp.AddTool(server, &mcp.Tool{
				Name:        "invoke_provider_tool",
				Description: "Invoke a provider tool once and return its raw result",
			}, NewInvokeProviderToolHandler(deps))
		},

		// Extraction jobs
		func() {
			mcp.AddTool(server, &mcp.Tool{
				Name:        "start_extraction",
				Description: "Submit a background extraction job that stores normalized conversations",
			}, NewStartExtractionHandler(deps))
		},
		func() {
			mcp.AddTool(server, &mcp.Tool{
				Name:        "get_extraction_status",
				Description: "Get an extraction job snapshot, optionally waiting for completion",
			}, NewGetExtractionStatusHandler(deps))
		},
		func() {
			mcp.AddTool(server, &mcp.Tool{
				Name:        "list_extractions",
				Description: "List all extraction jobs, most recent first",
			}, NewListExtractionsHandler(deps))
		},
		func() {
			mcp.AddTool(server, &mcp.Tool{
				Name:        "cancel_extraction",
				Description: "Cancel a queued or running extraction job",
			}, NewCancelExtractionHandler(deps))
		},

		// Monitoring sessions
		func() {
			mcp.AddTool(server, &mcp.Tool{
				Name:        "start_monitoring",
				Description: "Start a polling session that watches a provider for new messages",
			}, NewStartMonitoringHandler(deps))
		},
		func() {
			mcp.AddTool(server, &mcp.Tool{
				Name:        "get_monitoring_status",
				Description: "Get a monitoring session snapshot",
			}, NewGetMonitoringStatusHandler(deps))
		},
		func() {
			mcp.AddTool(server, &mcp.Tool{
				Name:        "list_monitoring_sessions",
				Description: "List all monitoring sessions, most recent first",
			}, NewListMonitoringSessionsHandler(deps))
		},
		func() {
			mcp.AddTool(server, &mcp.Tool{
				Name:        "pause_monitoring",
				Description: "Pause an active monitoring session without releasing it",
			}, NewPauseMonitoringHandler(deps))
		},
		func() {
			mcp.AddTool(server, &mcp.Tool{
				Name:        "resume_monitoring",
				Description: "Resume a paused monitoring session",
			}, NewResumeMonitoringHandler(deps))
		},
		func() {
			mcp.AddTool(server, &mcp.Tool{
				Name:        "stop_monitoring",
				Description: "Stop a monitoring session permanently",
			}, NewStopMonitoringHandler(deps))
		},

		// Stored data
		func() {
			mcp.AddTool(server, &mcp.Tool{
				Name:        "list_conversations",
				Description: "List stored conversations with provider and title filters",
			}, NewListConversationsHandler(deps))
		},
		func() {
			mcp.AddTool(server, &mcp.Tool{
				Name:        "get_conversation",
				Description: "Fetch one stored conversation with all messages",
			}, NewGetConversationHandler(deps))
		},
		func() {
			mcp.AddTool(server, &mcp.Tool{
				Name:        "get_extraction_stats",
				Description: "Report runtime statistics: timings, job and session counts, stored volume",
			}, NewGetExtractionStatsHandler(deps))
		},
	}

	for _, register := range registrations {
		register()
	}
	return len(registrations)
}
