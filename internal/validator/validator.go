// Package validator checks credentials against provider verifiers and
// caches the resulting validation records.
package validator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/chatvault/chatvault/internal/errs"
	"github.com/chatvault/chatvault/internal/models"
	"github.com/chatvault/chatvault/internal/registry"
)

// Validator verifies credentials and remembers successful validations for
// their TTL. Secret material is never stored; records are keyed by the
// credential fingerprint.
type Validator struct {
	registry *registry.Registry
	ttl      time.Duration
	limit    int
	window   time.Duration
	logger   *slog.Logger

	mu       sync.Mutex
	records  map[string]models.ValidationRecord
	attempts map[string][]time.Time

	now func() time.Time
}

// New creates a validator. limit validation attempts are allowed per
// credential inside each sliding window.
func New(reg *registry.Registry, ttl time.Duration, limit int, window time.Duration, logger *slog.Logger) *Validator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Validator{
		registry: reg,
		ttl:      ttl,
		limit:    limit,
		window:   window,
		logger:   logger,
		records:  make(map[string]models.ValidationRecord),
		attempts: make(map[string][]time.Time),
		now:      time.Now,
	}
}

func recordKey(provider, fingerprint string) string {
	return provider + "/" + fingerprint
}

// Validate verifies the credential with its provider. A successful record
// is cached until its TTL expires and short-circuits repeated validations,
// so re-validating within the TTL neither contacts the verifier nor spends
// a rate-limit slot. Rejections evict any cached record so a stale success
// can never authorize later work.
func (v *Validator) Validate(ctx context.Context, cred models.Credential) (*models.ValidationRecord, error) {
	if _, err := v.registry.Describe(cred.Provider); err != nil {
		return nil, err
	}
	if cred.Empty() {
		return nil, errs.New(errs.KindInvalidCredentials, "credential has no secret fields")
	}

	fingerprint := cred.Fingerprint()
	key := recordKey(cred.Provider, fingerprint)

	if record, ok := v.Lookup(cred.Provider, fingerprint); ok {
		return record, nil
	}

	if err := v.allowAttempt(key); err != nil {
		return nil, err
	}

	verifier, err := v.registry.Verifier(cred.Provider)
	if err != nil {
		return nil, err
	}

	valid, permissions, err := verifier.Verify(ctx, cred)
	if err != nil {
		// Transport failure: unknown credential state, keep any cached record.
		v.logger.Warn("credential verification unreachable", "provider", cred.Provider, "fingerprint", fingerprint, "error", err)
		if errs.KindOf(err) != "" {
			return nil, err
		}
		return nil, errs.Wrap(errs.KindProviderUnavailable,
			fmt.Sprintf("verifier for %s unreachable", cred.Provider), err)
	}

	now := v.now().UTC()
	record := models.ValidationRecord{
		Provider:    cred.Provider,
		Fingerprint: fingerprint,
		Valid:       valid,
		IssuedAt:    now,
		ExpiresAt:   now.Add(v.ttl),
		Permissions: permissions,
	}

	v.mu.Lock()
	if valid {
		v.records[key] = record
	} else {
		delete(v.records, key)
	}
	v.mu.Unlock()

	if !valid {
		v.logger.Info("credential rejected", "provider", cred.Provider, "fingerprint", fingerprint)
		return &record, errs.Newf(errs.KindInvalidCredentials, "provider %s rejected the credential", cred.Provider)
	}

	v.logger.Info("credential validated",
		"provider", cred.Provider,
		"fingerprint", fingerprint,
		"expires_at", record.ExpiresAt,
		"permissions", permissions)
	return &record, nil
}

// Lookup returns the cached record for a credential if it is still fresh.
// Only records from successful validations are ever cached.
func (v *Validator) Lookup(provider, fingerprint string) (*models.ValidationRecord, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()

	record, ok := v.records[recordKey(provider, fingerprint)]
	if !ok {
		return nil, false
	}
	if !record.Fresh(v.now().UTC()) {
		delete(v.records, recordKey(provider, fingerprint))
		return nil, false
	}
	return &record, true
}

// Require returns the fresh record for a credential or a
// credentials_not_validated error. Schedulers call this before starting
// jobs and sessions.
func (v *Validator) Require(cred models.Credential) (*models.ValidationRecord, error) {
	record, ok := v.Lookup(cred.Provider, cred.Fingerprint())
	if !ok {
		return nil, errs.Newf(errs.KindCredentialsNotValidated,
			"credential for %s has no fresh validation", cred.Provider)
	}
	return record, nil
}

// allowAttempt enforces the sliding-window rate limit per credential.
func (v *Validator) allowAttempt(key string) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	now := v.now()
	cutoff := now.Add(-v.window)
	recent := v.attempts[key][:0]
	for _, t := range v.attempts[key] {
		if t.After(cutoff) {
			recent = append(recent, t)
		}
	}

	if len(recent) >= v.limit {
		retryAfter := recent[0].Add(v.window).Sub(now)
		v.attempts[key] = recent
		return &errs.Error{
			Kind:       errs.KindRateLimited,
			Message:    fmt.Sprintf("too many validation attempts, retry in %s", retryAfter.Round(time.Second)),
			RetryAfter: retryAfter,
		}
	}

	v.attempts[key] = append(recent, now)
	return nil
}
