// Package executor defines the pluggable provider capability interfaces.
// One implementation exists per provider; the real ones perform the web
// scraping or API calls outside the orchestrator's scope, and are registered
// in the provider registry at startup.
package executor

import (
	"context"
	"time"

	"github.com/chatvault/chatvault/internal/models"
)

// Executor performs the side-effecting extraction work for one provider.
type Executor interface {
	// Extract runs a one-shot extraction and returns the provider-specific
	// payload. The context carries the bounded call deadline.
	Extract(ctx context.Context, cred models.Credential, params map[string]any) (models.RawPayload, error)

	// PollForNew returns conversations with activity since the watermark.
	PollForNew(ctx context.Context, cred models.Credential, since time.Time) (models.RawPayload, error)
}

// Verifier checks a credential against its provider.
type Verifier interface {
	// Verify returns whether the credential is accepted and, if so, the
	// permission set it grants. A transport failure is returned as an
	// error, distinct from a clean rejection.
	Verify(ctx context.Context, cred models.Credential) (valid bool, permissions []string, err error)
}
