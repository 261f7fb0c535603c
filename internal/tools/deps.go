// Package tools provides MCP tool handlers and registration.
package tools

import (
	"log/slog"

	"github.com/chatvault/chatvault/internal/models"
	"github.com/chatvault/chatvault/internal/orchestrator"
)

// Dependencies holds shared services for tool handlers.
// Passed to handler factories via closure capture.
type Dependencies struct {
	Orchestrator *orchestrator.Orchestrator
	Logger       *slog.Logger
}

// CredentialInput is the wire shape of a credential in tool calls. Secret
// values only ever live in the request; responses carry the fingerprint.
type CredentialInput struct {
	Provider     string            `json:"provider" jsonschema:"required,Provider id from list_providers"`
	Credentials  map[string]string `json:"credentials" jsonschema:"required,Credential fields for the provider"`
	Organization string            `json:"organization,omitempty" jsonschema:"Optional organization scope"`
	Workspace    string            `json:"workspace,omitempty" jsonschema:"Optional workspace scope"`
}

func (c CredentialInput) toModel() models.Credential {
	return models.Credential{
		Provider:     c.Provider,
		Secrets:      c.Credentials,
		Organization: c.Organization,
		Workspace:    c.Workspace,
	}
}
