package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/chatvault/chatvault/internal/models"
)

// StartExtractionInput defines the input schema for start_extraction.
type StartExtractionInput struct {
	CredentialInput
	Tool   string         `json:"tool" jsonschema:"required,Extraction tool name such as extract_chatgpt_conversations"`
	Params map[string]any `json:"params,omitempty" jsonschema:"Tool parameters matching the tool's parameter schema"`
}

// NewStartExtractionHandler creates the extraction job submission handler.
func NewStartExtractionHandler(deps *Dependencies) mcp.ToolHandlerFor[StartExtractionInput, any] {
	return func(ctx context.Context, req *mcp.CallToolRequest, input StartExtractionInput) (*mcp.CallToolResult, any, error) {
		if input.Tool == "" {
			return ErrorResult("Tool cannot be empty", "Pass an extraction tool name from list_provider_tools"), nil, nil
		}

		job, err := deps.Orchestrator.StartExtraction(ctx, input.Tool, input.toModel(), input.Params)
		if err != nil {
			return KindResult(err), nil, nil
		}

		deps.Logger.Info("extraction started", "job", job.ID, "tool", job.Tool, "provider", job.Provider)
		jsonBytes, _ := json.MarshalIndent(job, "", "  ")
		return TextResult(fmt.Sprintf("Extraction job %s submitted:\n%s", job.ID, string(jsonBytes))), nil, nil
	}
}

// GetExtractionStatusInput defines the input schema for get_extraction_status.
type GetExtractionStatusInput struct {
	JobID string `json:"job_id" jsonschema:"required,Job id returned by start_extraction"`
	Wait  bool   `json:"wait,omitempty" jsonschema:"Block until the job reaches a terminal state"`
}

// NewGetExtractionStatusHandler creates the job status handler.
func NewGetExtractionStatusHandler(deps *Dependencies) mcp.ToolHandlerFor[GetExtractionStatusInput, any] {
	return func(ctx context.Context, req *mcp.CallToolRequest, input GetExtractionStatusInput) (*mcp.CallToolResult, any, error) {
		if input.JobID == "" {
			return ErrorResult("Job id cannot be empty", "Pass the id returned by start_extraction"), nil, nil
		}

		var job models.ExtractionJob
		var err error
		if input.Wait {
			job, err = deps.Orchestrator.WaitJob(ctx, input.JobID)
		} else {
			job, err = deps.Orchestrator.GetJob(input.JobID)
		}
		if err != nil {
			return KindResult(err), nil, nil
		}
		jsonBytes, _ := json.MarshalIndent(job, "", "  ")
		return TextResult(string(jsonBytes)), nil, nil
	}
}

// ListExtractionsInput defines the input schema for list_extractions.
type ListExtractionsInput struct{}

// NewListExtractionsHandler creates the job listing handler.
func NewListExtractionsHandler(deps *Dependencies) mcp.ToolHandlerFor[ListExtractionsInput, any] {
	return func(ctx context.Context, req *mcp.CallToolRequest, input ListExtractionsInput) (*mcp.CallToolResult, any, error) {
		jobs := deps.Orchestrator.ListJobs()
		if len(jobs) == 0 {
			return TextResult("No extraction jobs."), nil, nil
		}
		jsonBytes, _ := json.MarshalIndent(jobs, "", "  ")
		return TextResult(string(jsonBytes)), nil, nil
	}
}

// CancelExtractionInput defines the input schema for cancel_extraction.
type CancelExtractionInput struct {
	JobID string `json:"job_id" jsonschema:"required,Job id to cancel"`
}

// NewCancelExtractionHandler creates the job cancellation handler.
func NewCancelExtractionHandler(deps *Dependencies) mcp.ToolHandlerFor[CancelExtractionInput, any] {
	return func(ctx context.Context, req *mcp.CallToolRequest, input CancelExtractionInput) (*mcp.CallToolResult, any, error) {
		if input.JobID == "" {
			return ErrorResult("Job id cannot be empty", "Pass the id returned by start_extraction"), nil, nil
		}
		job, err := deps.Orchestrator.CancelJob(input.JobID)
		if err != nil {
			return KindResult(err), nil, nil
		}
		deps.Logger.Info("extraction cancelled", "job", job.ID, "state", job.State)
		jsonBytes, _ := json.MarshalIndent(job, "", "  ")
		return TextResult(fmt.Sprintf("Job %s is now %s:\n%s", job.ID, job.State, string(jsonBytes))), nil, nil
	}
}
