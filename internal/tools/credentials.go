package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// ValidateCredentialsInput defines the input schema for validate_credentials.
type ValidateCredentialsInput struct {
	CredentialInput
}

// validationView is what the tool reports back. Secret material is never
// echoed, only the fingerprint derived from it.
type validationView struct {
	Provider    string   `json:"provider"`
	Fingerprint string   `json:"fingerprint"`
	Valid       bool     `json:"valid"`
	Permissions []string `json:"permissions,omitempty"`
	IssuedAt    string   `json:"issued_at"`
	ExpiresAt   string   `json:"expires_at"`
}

// NewValidateCredentialsHandler creates the credential validation handler.
func NewValidateCredentialsHandler(deps *Dependencies) mcp.ToolHandlerFor[ValidateCredentialsInput, any] {
	return func(ctx context.Context, req *mcp.CallToolRequest, input ValidateCredentialsInput) (*mcp.CallToolResult, any, error) {
		cred := input.toModel()
		record, err := deps.Orchestrator.ValidateCredentials(ctx, cred)
		if err != nil && record == nil {
			return KindResult(err), nil, nil
		}

		view := validationView{
			Provider:    record.Provider,
			Fingerprint: record.Fingerprint,
			Valid:       record.Valid,
			Permissions: record.Permissions,
			IssuedAt:    record.IssuedAt.Format("2006-01-02 15:04:05"),
			ExpiresAt:   record.ExpiresAt.Format("2006-01-02 15:04:05"),
		}
		jsonBytes, _ := json.MarshalIndent(view, "", "  ")

		if !record.Valid {
			return ErrorResult(
				fmt.Sprintf("Credentials for %s were rejected:\n%s", record.Provider, string(jsonBytes)),
				"Check that the credential fields are current, then validate again",
			), nil, nil
		}
		deps.Logger.Info("credentials validated", "provider", record.Provider, "fingerprint", record.Fingerprint)
		return TextResult(string(jsonBytes)), nil, nil
	}
}
