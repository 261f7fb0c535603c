// Package gateway dispatches tool invocations to provider executors after
// validating parameters against each tool's declared schema.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/chatvault/chatvault/internal/errs"
	"github.com/chatvault/chatvault/internal/models"
	"github.com/chatvault/chatvault/internal/registry"
)

// ToolResult carries the raw provider payload from a completed invocation.
type ToolResult struct {
	Tool     string            `json:"tool"`
	Provider string            `json:"provider"`
	Raw      models.RawPayload `json:"raw"`
	Elapsed  time.Duration     `json:"elapsed"`
}

// Gateway validates and dispatches tool invocations.
type Gateway struct {
	registry *registry.Registry
	timeout  time.Duration
	logger   *slog.Logger
}

// New creates a gateway. The timeout bounds every executor call unless the
// tool declares a longer expected duration.
func New(reg *registry.Registry, timeout time.Duration, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{registry: reg, timeout: timeout, logger: logger}
}

// Registry exposes the provider registry backing this gateway.
func (g *Gateway) Registry() *registry.Registry {
	return g.registry
}

// ValidateParams checks params against the tool's parameter schema and
// returns a copy with schema defaults filled in. All violations are
// collected into a single schema_validation_error rather than stopping at
// the first.
func (g *Gateway) ValidateParams(tool *models.ToolDescriptor, params map[string]any) (map[string]any, error) {
	return validateParams(tool, params)
}

// Invoke runs a tool against its provider's executor. The parameters are
// schema-validated first; execution is bounded by the gateway timeout or
// the tool's expected duration, whichever is longer.
func (g *Gateway) Invoke(ctx context.Context, toolName, providerID string, cred models.Credential, params map[string]any) (*ToolResult, error) {
	tool, err := g.registry.FindTool(toolName, providerID)
	if err != nil {
		return nil, err
	}

	params, err = validateParams(tool, params)
	if err != nil {
		return nil, err
	}

	ex, err := g.registry.Executor(tool.ProviderID)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, g.callTimeout(tool))
	defer cancel()

	g.logger.Info("invoking tool", "tool", tool.Name, "provider", tool.ProviderID)
	start := time.Now()
	raw, err := ex.Extract(ctx, cred, params)
	elapsed := time.Since(start)
	if err != nil {
		return nil, g.wrapExecutorError(tool, elapsed, err)
	}

	g.logger.Info("tool completed", "tool", tool.Name, "provider", tool.ProviderID, "elapsed", elapsed)
	return &ToolResult{Tool: tool.Name, Provider: tool.ProviderID, Raw: raw, Elapsed: elapsed}, nil
}

// Poll asks a provider's executor for conversations updated since the
// watermark. Used by monitoring sessions; parameters were validated when
// the session started.
func (g *Gateway) Poll(ctx context.Context, providerID string, cred models.Credential, since time.Time) (models.RawPayload, error) {
	ex, err := g.registry.Executor(providerID)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	raw, err := ex.PollForNew(ctx, cred, since)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, errs.Wrap(errs.KindTimeout, fmt.Sprintf("poll of %s timed out", providerID), err)
		}
		if errs.KindOf(err) != "" {
			return nil, err
		}
		return nil, errs.Wrap(errs.KindExecution, fmt.Sprintf("poll of %s failed", providerID), err)
	}
	return raw, nil
}

func (g *Gateway) callTimeout(tool *models.ToolDescriptor) time.Duration {
	if tool.ExpectedDuration > g.timeout {
		return tool.ExpectedDuration
	}
	return g.timeout
}

func (g *Gateway) wrapExecutorError(tool *models.ToolDescriptor, elapsed time.Duration, err error) error {
	g.logger.Warn("tool failed", "tool", tool.Name, "provider", tool.ProviderID, "elapsed", elapsed, "error", err)
	if errors.Is(err, context.DeadlineExceeded) {
		return errs.Wrap(errs.KindTimeout, fmt.Sprintf("tool %s exceeded its deadline", tool.Name), err)
	}
	// Executors report their own kinds for provider failures; anything
	// untyped becomes an execution error.
	if errs.KindOf(err) != "" {
		return err
	}
	return errs.Wrap(errs.KindExecution, fmt.Sprintf("tool %s failed", tool.Name), err)
}
