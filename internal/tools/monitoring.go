package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/chatvault/chatvault/internal/models"
)

// StartMonitoringInput defines the input schema for start_monitoring.
type StartMonitoringInput struct {
	CredentialInput
	Tool   string         `json:"tool" jsonschema:"required,Monitoring tool name such as monitor_chatgpt_realtime"`
	Params map[string]any `json:"params,omitempty" jsonschema:"Tool parameters including polling_interval and webhook_url"`
}

// NewStartMonitoringHandler creates the monitoring session start handler.
func NewStartMonitoringHandler(deps *Dependencies) mcp.ToolHandlerFor[StartMonitoringInput, any] {
	return func(ctx context.Context, req *mcp.CallToolRequest, input StartMonitoringInput) (*mcp.CallToolResult, any, error) {
		if input.Tool == "" {
			return ErrorResult("Tool cannot be empty", "Pass a monitoring tool name from list_provider_tools"), nil, nil
		}

		sess, err := deps.Orchestrator.StartMonitoring(ctx, input.Tool, input.toModel(), input.Params)
		if err != nil {
			return KindResult(err), nil, nil
		}

		deps.Logger.Info("monitoring started",
			"session", sess.ID,
			"tool", sess.Tool,
			"provider", sess.Provider,
			"interval", sess.PollingInterval)
		jsonBytes, _ := json.MarshalIndent(sess, "", "  ")
		return TextResult(fmt.Sprintf("Monitoring session %s started:\n%s", sess.ID, string(jsonBytes))), nil, nil
	}
}

// GetMonitoringStatusInput defines the input schema for get_monitoring_status.
type GetMonitoringStatusInput struct {
	SessionID string `json:"session_id" jsonschema:"required,Session id returned by start_monitoring"`
}

// NewGetMonitoringStatusHandler creates the session status handler.
func NewGetMonitoringStatusHandler(deps *Dependencies) mcp.ToolHandlerFor[GetMonitoringStatusInput, any] {
	return func(ctx context.Context, req *mcp.CallToolRequest, input GetMonitoringStatusInput) (*mcp.CallToolResult, any, error) {
		if input.SessionID == "" {
			return ErrorResult("Session id cannot be empty", "Pass the id returned by start_monitoring"), nil, nil
		}
		sess, err := deps.Orchestrator.GetSession(input.SessionID)
		if err != nil {
			return KindResult(err), nil, nil
		}
		jsonBytes, _ := json.MarshalIndent(sess, "", "  ")
		return TextResult(string(jsonBytes)), nil, nil
	}
}

// ListMonitoringSessionsInput defines the input schema for list_monitoring_sessions.
type ListMonitoringSessionsInput struct{}

// NewListMonitoringSessionsHandler creates the session listing handler.
func NewListMonitoringSessionsHandler(deps *Dependencies) mcp.ToolHandlerFor[ListMonitoringSessionsInput, any] {
	return func(ctx context.Context, req *mcp.CallToolRequest, input ListMonitoringSessionsInput) (*mcp.CallToolResult, any, error) {
		sessions := deps.Orchestrator.ListSessions()
		if len(sessions) == 0 {
			return TextResult("No monitoring sessions."), nil, nil
		}
		jsonBytes, _ := json.MarshalIndent(sessions, "", "  ")
		return TextResult(string(jsonBytes)), nil, nil
	}
}

// SessionControlInput is shared by the pause, resume, and stop tools.
type SessionControlInput struct {
	SessionID string `json:"session_id" jsonschema:"required,Session id returned by start_monitoring"`
}

// NewPauseMonitoringHandler creates the session pause handler.
func NewPauseMonitoringHandler(deps *Dependencies) mcp.ToolHandlerFor[SessionControlInput, any] {
	return sessionControlHandler(deps, "paused", deps.Orchestrator.PauseMonitoring)
}

// NewResumeMonitoringHandler creates the session resume handler.
func NewResumeMonitoringHandler(deps *Dependencies) mcp.ToolHandlerFor[SessionControlInput, any] {
	return sessionControlHandler(deps, "resumed", deps.Orchestrator.ResumeMonitoring)
}

// NewStopMonitoringHandler creates the session stop handler.
func NewStopMonitoringHandler(deps *Dependencies) mcp.ToolHandlerFor[SessionControlInput, any] {
	return sessionControlHandler(deps, "stopped", deps.Orchestrator.StopMonitoring)
}

func sessionControlHandler(deps *Dependencies, verb string, op func(string) (models.MonitoringSession, error)) mcp.ToolHandlerFor[SessionControlInput, any] {
	return func(ctx context.Context, req *mcp.CallToolRequest, input SessionControlInput) (*mcp.CallToolResult, any, error) {
		if input.SessionID == "" {
			return ErrorResult("Session id cannot be empty", "Pass the id returned by start_monitoring"), nil, nil
		}
		sess, err := op(input.SessionID)
		if err != nil {
			return KindResult(err), nil, nil
		}
		deps.Logger.Info("session "+verb, "session", sess.ID, "state", sess.State)
		jsonBytes, _ := json.MarshalIndent(sess, "", "  ")
		return TextResult(fmt.Sprintf("Session %s %s:\n%s", sess.ID, verb, string(jsonBytes))), nil, nil
	}
}
