package models

import (
	"crypto/sha256"
	"encoding/hex"
	"slices"
	"time"
)

// Credential holds the opaque secret material for one provider account.
// It is owned by the caller; the orchestrator keeps it only in process
// memory for the duration of a validation or job, and never logs or
// persists the secret values.
type Credential struct {
	Provider string
	// Secrets maps credential field names (per the provider descriptor)
	// to their values, e.g. {"session_cookie": "..."}.
	Secrets map[string]string
	// Organization and Workspace are optional scoping fields.
	Organization string
	Workspace    string
}

// Fingerprint returns a stable non-reversible identifier for the credential,
// derived from a SHA-256 over the provider id and the sorted secret fields.
// The fingerprint is what gets logged and persisted, never the secrets.
func (c Credential) Fingerprint() string {
	h := sha256.New()
	h.Write([]byte(c.Provider))
	h.Write([]byte{0})

	keys := make([]string, 0, len(c.Secrets))
	for k := range c.Secrets {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		h.Write([]byte(k))
		h.Write([]byte{0})
		h.Write([]byte(c.Secrets[k]))
		h.Write([]byte{0})
	}
	h.Write([]byte(c.Organization))
	h.Write([]byte{0})
	h.Write([]byte(c.Workspace))

	return hex.EncodeToString(h.Sum(nil))[:16]
}

// Empty reports whether the credential carries no secret material at all,
// or only blank values.
func (c Credential) Empty() bool {
	for _, v := range c.Secrets {
		if v != "" {
			return false
		}
	}
	return true
}

// ValidationRecord is the time-bound outcome of a credential validation.
// It carries the credential fingerprint, never the secret itself.
type ValidationRecord struct {
	Provider    string    `json:"provider"`
	Fingerprint string    `json:"fingerprint"`
	Valid       bool      `json:"valid"`
	IssuedAt    time.Time `json:"issued_at"`
	ExpiresAt   time.Time `json:"expires_at"`
	Permissions []string  `json:"permissions"`
}

// Fresh reports whether the record is valid and unexpired at t. A record
// with Valid=false never authorizes work regardless of expiry.
func (r ValidationRecord) Fresh(t time.Time) bool {
	return r.Valid && t.Before(r.ExpiresAt)
}
