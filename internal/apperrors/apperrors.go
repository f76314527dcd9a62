// Package apperrors defines the machine-readable error taxonomy shared by
// every component boundary (see SPEC_FULL.md §7).
package apperrors

import "github.com/cockroachdb/errors"

// Kind is a closed enum of error classes. Callers switch on Kind rather
// than on error strings or types.
type Kind string

const (
	// Input/Config
	ConfigInvalid      Kind = "ConfigInvalid"
	RuleInvalid        Kind = "RuleInvalid"
	CredentialsInvalid Kind = "CredentialsInvalid"

	// Environment
	DaemonUnavailable Kind = "DaemonUnavailable"
	LockHeld          Kind = "LockHeld"
	HostAccessDenied  Kind = "HostAccessDenied"

	// Registry
	RegistryUnreachable Kind = "RegistryUnreachable"
	AuthFailed          Kind = "AuthFailed"
	RateLimited         Kind = "RateLimited"
	TagListEmpty        Kind = "TagListEmpty"
	ProtocolError       Kind = "ProtocolError"

	// Planning
	TagNotParseable Kind = "TagNotParseable"
	NoCandidates    Kind = "NoCandidates"
	RuleForbidsAll  Kind = "RuleForbidsAll"
	ImageTooYoung   Kind = "ImageTooYoung"

	// Execution
	ImagePullFailed  Kind = "ImagePullFailed"
	StartFailed      Kind = "StartFailed"
	DidNotStabilize  Kind = "DidNotStabilize"
	HookFailedPre    Kind = "HookFailed(pre)"
	HookFailedPost   Kind = "HookFailed(post)"
	ContainerMissing Kind = "ContainerNotFound"
	ConflictName     Kind = "ConflictName"

	// Rollback
	RollbackFailed Kind = "RollbackFailed"
)

// Error wraps an underlying cause with a Kind, for exhaustive handling at
// the executor/coordinator boundary.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Wrap(kind Kind, cause error, message string) *Error {
	return &Error{Kind: kind, Message: message, Cause: errors.Wrap(cause, message)}
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Cause == nil {
		return string(e.Kind) + ": " + e.Message
	}
	return string(e.Kind) + ": " + e.Cause.Error()
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// Is reports whether err is an *Error of the given Kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// transient reports whether a registry Kind should be retried by the
// caller rather than treated as terminal (§4.3).
func (k Kind) transient() bool {
	switch k {
	case RegistryUnreachable, RateLimited:
		return true
	default:
		return false
	}
}

// IsTransient reports whether err carries a transient registry Kind.
func IsTransient(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind.transient()
	}
	return false
}
