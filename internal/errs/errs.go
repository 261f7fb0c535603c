// Package errs defines the structured error taxonomy shared by the
// orchestrator components. Use errors.As with *Error (or the Kind helpers)
// to branch on failure class in calling code.
package errs

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Kind classifies an orchestrator failure.
type Kind string

const (
	// KindUnknownProvider indicates a provider id not present in the registry.
	KindUnknownProvider Kind = "unknown_provider"

	// KindUnknownTool indicates a tool name not present in the registry.
	KindUnknownTool Kind = "unknown_tool"

	// KindInvalidCredentials indicates the provider verifier rejected the
	// credential. Not retryable; the caller must supply new credentials.
	KindInvalidCredentials Kind = "invalid_credentials"

	// KindProviderUnavailable indicates the provider (or its verifier) was
	// unreachable. Retryable with backoff.
	KindProviderUnavailable Kind = "provider_unavailable"

	// KindRateLimited indicates too many attempts inside the sliding window.
	// Retryable after the reported RetryAfter.
	KindRateLimited Kind = "rate_limited"

	// KindSchemaValidation indicates the tool parameters failed schema
	// validation. Fields carries every violated field, not just the first.
	KindSchemaValidation Kind = "schema_validation_error"

	// KindJobAlreadyRunning indicates an extraction job already holds the
	// (provider, credential) slot.
	KindJobAlreadyRunning Kind = "job_already_running"

	// KindSessionAlreadyActive indicates a monitoring session already holds
	// the (provider, credential) slot.
	KindSessionAlreadyActive Kind = "session_already_active"

	// KindCredentialsNotValidated indicates no fresh ValidationRecord exists
	// for the credential. The caller must validate first.
	KindCredentialsNotValidated Kind = "credentials_not_validated"

	// KindExecution wraps an opaque provider executor failure.
	KindExecution Kind = "execution_error"

	// KindTimeout indicates the bounded executor call exceeded its deadline.
	// Treated like provider unavailability for retry purposes.
	KindTimeout Kind = "timeout"

	// KindMalformedPayload indicates a provider payload missing required
	// fields. Reported per conversation, never aborts a whole batch.
	KindMalformedPayload Kind = "malformed_payload"

	// KindNotFound indicates an unknown job, session or conversation id.
	KindNotFound Kind = "not_found"
)

// Error is a structured orchestrator error carrying enough detail for the
// caller to act: kind, human message, and the offending fields where
// applicable.
type Error struct {
	Kind       Kind
	Message    string
	Fields     []string      // violated parameter fields (schema validation)
	RetryAfter time.Duration // populated for rate limiting
	Err        error         // wrapped cause, may be nil
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if len(e.Fields) > 0 {
		fmt.Fprintf(&b, " (fields: %s)", strings.Join(e.Fields, ", "))
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// New creates an error of the given kind.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

// Newf creates an error of the given kind with a formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap wraps a cause with an orchestrator kind. Returns nil if err is nil.
// If err is already an *Error its kind is preserved.
func Wrap(kind Kind, msg string, err error) *Error {
	if err == nil {
		return nil
	}
	var oe *Error
	if errors.As(err, &oe) {
		kind = oe.Kind
	}
	return &Error{Kind: kind, Message: msg, Err: err}
}

// KindOf extracts the kind from an error chain, or "" if the chain contains
// no *Error.
func KindOf(err error) Kind {
	var oe *Error
	if errors.As(err, &oe) {
		return oe.Kind
	}
	return ""
}

// IsKind reports whether the error chain contains an *Error of kind k.
func IsKind(err error, k Kind) bool {
	return KindOf(err) == k
}

// Retryable reports whether the failure is transient and worth retrying
// locally with backoff.
func Retryable(err error) bool {
	switch KindOf(err) {
	case KindProviderUnavailable, KindRateLimited, KindTimeout:
		return true
	}
	return false
}
