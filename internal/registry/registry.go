// Package registry holds the static provider catalog: provider descriptors,
// their tool schemas and auth requirements, plus the executor and verifier
// registered per provider at startup. Lookups are read-only after Load.
package registry

import (
	_ "embed"
	"fmt"
	"slices"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/chatvault/chatvault/internal/errs"
	"github.com/chatvault/chatvault/internal/executor"
	"github.com/chatvault/chatvault/internal/models"
)

//go:embed catalog.yaml
var catalogYAML []byte

// duration parses YAML durations given as strings like "30s" or "1h".
type duration time.Duration

func (d *duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", s, err)
	}
	*d = duration(parsed)
	return nil
}

type rawCatalog struct {
	Providers []rawProvider `yaml:"providers"`
}

type rawProvider struct {
	ID               string    `yaml:"id"`
	Name             string    `yaml:"name"`
	Description      string    `yaml:"description"`
	CredentialFields []string  `yaml:"credential_fields"`
	AuthMethods      []string  `yaml:"auth_methods"`
	Polling          rawBounds `yaml:"polling"`
	Tools            []rawTool `yaml:"tools"`
}

type rawBounds struct {
	Min     duration `yaml:"min"`
	Max     duration `yaml:"max"`
	Default duration `yaml:"default"`
}

type rawTool struct {
	Name             string         `yaml:"name"`
	Description      string         `yaml:"description"`
	Category         string         `yaml:"category"`
	ProviderSpecific bool           `yaml:"provider_specific"`
	ExpectedDuration duration       `yaml:"expected_duration"`
	Parameters       map[string]any `yaml:"parameters"`
}

// Registry is the provider catalog with executor bindings. Descriptors are
// immutable after Load; executor registration happens once during startup
// wiring, before any lookups race with it.
type Registry struct {
	providers map[string]*models.ProviderDescriptor
	tools     map[string]*models.ToolDescriptor
	order     []string

	executors map[string]executor.Executor
	verifiers map[string]executor.Verifier
}

// Load parses the embedded catalog into a registry.
func Load() (*Registry, error) {
	var raw rawCatalog
	if err := yaml.Unmarshal(catalogYAML, &raw); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}

	r := &Registry{
		providers: make(map[string]*models.ProviderDescriptor),
		tools:     make(map[string]*models.ToolDescriptor),
		executors: make(map[string]executor.Executor),
		verifiers: make(map[string]executor.Verifier),
	}

	for _, rp := range raw.Providers {
		if rp.ID == "" {
			return nil, fmt.Errorf("catalog provider with empty id")
		}
		if _, dup := r.providers[rp.ID]; dup {
			return nil, fmt.Errorf("duplicate provider id %q", rp.ID)
		}

		desc := &models.ProviderDescriptor{
			ID:               rp.ID,
			Name:             rp.Name,
			Description:      rp.Description,
			CredentialFields: rp.CredentialFields,
			Polling: models.PollingBounds{
				Min:     time.Duration(rp.Polling.Min),
				Max:     time.Duration(rp.Polling.Max),
				Default: time.Duration(rp.Polling.Default),
			},
		}
		for _, m := range rp.AuthMethods {
			desc.AuthMethods = append(desc.AuthMethods, models.AuthMethod(m))
		}

		for _, rt := range rp.Tools {
			tool := models.ToolDescriptor{
				Name:             rt.Name,
				Description:      rt.Description,
				Category:         models.ToolCategory(rt.Category),
				ProviderID:       rp.ID,
				ProviderSpecific: rt.ProviderSpecific,
				Parameters:       rt.Parameters,
				ExpectedDuration: time.Duration(rt.ExpectedDuration),
			}
			if _, dup := r.tools[tool.Name]; dup {
				return nil, fmt.Errorf("duplicate tool name %q", tool.Name)
			}
			desc.Tools = append(desc.Tools, tool)
			r.tools[tool.Name] = &desc.Tools[len(desc.Tools)-1]
		}

		r.providers[rp.ID] = desc
		r.order = append(r.order, rp.ID)
	}

	return r, nil
}

// Describe returns the descriptor for a provider id.
func (r *Registry) Describe(providerID string) (*models.ProviderDescriptor, error) {
	p, ok := r.providers[providerID]
	if !ok {
		return nil, errs.Newf(errs.KindUnknownProvider, "provider %q is not registered", providerID)
	}
	return p, nil
}

// List returns all provider descriptors in catalog order.
func (r *Registry) List() []*models.ProviderDescriptor {
	out := make([]*models.ProviderDescriptor, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.providers[id])
	}
	return out
}

// ListTools returns the tools for one provider, or for all providers when
// providerID is empty, sorted by name in the all-providers case.
func (r *Registry) ListTools(providerID string) ([]models.ToolDescriptor, error) {
	if providerID != "" {
		p, err := r.Describe(providerID)
		if err != nil {
			return nil, err
		}
		return slices.Clone(p.Tools), nil
	}

	var out []models.ToolDescriptor
	for _, id := range r.order {
		out = append(out, r.providers[id].Tools...)
	}
	slices.SortFunc(out, func(a, b models.ToolDescriptor) int {
		if a.Name < b.Name {
			return -1
		}
		if a.Name > b.Name {
			return 1
		}
		return 0
	})
	return out, nil
}

// FindTool resolves a tool by name, checking it belongs to the given
// provider when providerID is non-empty.
func (r *Registry) FindTool(name, providerID string) (*models.ToolDescriptor, error) {
	t, ok := r.tools[name]
	if !ok {
		return nil, errs.Newf(errs.KindUnknownTool, "tool %q is not registered", name)
	}
	if providerID != "" && t.ProviderID != providerID {
		return nil, errs.Newf(errs.KindUnknownTool, "tool %q belongs to provider %q, not %q", name, t.ProviderID, providerID)
	}
	return t, nil
}

// RegisterExecutor binds an executor implementation to a provider.
func (r *Registry) RegisterExecutor(providerID string, ex executor.Executor) error {
	if _, err := r.Describe(providerID); err != nil {
		return err
	}
	r.executors[providerID] = ex
	return nil
}

// Executor returns the executor bound to a provider.
func (r *Registry) Executor(providerID string) (executor.Executor, error) {
	ex, ok := r.executors[providerID]
	if !ok {
		return nil, errs.Newf(errs.KindUnknownProvider, "no executor registered for provider %q", providerID)
	}
	return ex, nil
}

// RegisterVerifier binds a credential verifier to a provider.
func (r *Registry) RegisterVerifier(providerID string, v executor.Verifier) error {
	if _, err := r.Describe(providerID); err != nil {
		return err
	}
	r.verifiers[providerID] = v
	return nil
}

// Verifier returns the verifier bound to a provider.
func (r *Registry) Verifier(providerID string) (executor.Verifier, error) {
	v, ok := r.verifiers[providerID]
	if !ok {
		return nil, errs.Newf(errs.KindUnknownProvider, "no verifier registered for provider %q", providerID)
	}
	return v, nil
}

// RegisterFixtures binds fixture executors and field verifiers for every
// catalog provider. Demo scaffolding for deployments without real scrapers.
func (r *Registry) RegisterFixtures() {
	for id, p := range r.providers {
		r.executors[id] = executor.NewFixture(id)
		r.verifiers[id] = &executor.FieldVerifier{RequiredFields: p.CredentialFields}
	}
}
