// Package api defines the error taxonomy shared by mcpgate components.
package api

import (
	"errors"
	"fmt"
)

// Kind classifies an Error. Callers branch on the kind rather than on
// message text.
type Kind string

const (
	// KindUnauthorized means the backend demands an authorization handshake
	// that has not been completed yet. Recoverable through the OAuth flow.
	KindUnauthorized Kind = "Unauthorized"

	// KindConnectionRefused means the backend transport is unreachable:
	// refused dial, failed process spawn or a malformed handshake.
	KindConnectionRefused Kind = "ConnectionRefused"

	// KindNotFound means the referenced target, tool, prompt, resource or
	// session does not exist.
	KindNotFound Kind = "NotFound"

	// KindDuplicate means a target with the same name is already registered.
	KindDuplicate Kind = "Duplicate"

	// KindBadRequest means the caller supplied malformed input.
	KindBadRequest Kind = "BadRequest"

	// KindInsecureFilePermissions means an on-disk credential file is
	// readable by group or other. Reads fail closed.
	KindInsecureFilePermissions Kind = "InsecureFilePermissions"

	// KindDisabled means the tool or prompt exists but is hidden by the
	// target's name policy.
	KindDisabled Kind = "Disabled"
)

// Error is the error type returned across package boundaries in mcpgate.
//
// Target and Endpoint identify the backend involved (when there is one) so
// that diagnostics can be surfaced without parsing the message.
type Error struct {
	Kind     Kind
	Target   string
	Endpoint string
	Message  string
	Cause    error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Target != "" {
		msg = fmt.Sprintf("target %s: %s", e.Target, msg)
	}
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target is an *Error of the same kind. This lets callers
// use errors.Is(err, &api.Error{Kind: api.KindNotFound}).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Target == "" || t.Target == e.Target)
}

// New creates an Error of the given kind with a formatted message.
func New(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an Error of the given kind that wraps cause.
func Wrap(kind Kind, cause error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// ForTarget returns a copy of e annotated with target identification.
func (e *Error) ForTarget(name, endpoint string) *Error {
	c := *e
	c.Target = name
	c.Endpoint = endpoint
	return &c
}

// KindOf returns the kind of the first *Error in err's chain, or the empty
// kind if there is none.
func KindOf(err error) Kind {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Kind
	}
	return ""
}

// IsUnauthorized reports whether err is or wraps a KindUnauthorized error.
func IsUnauthorized(err error) bool { return KindOf(err) == KindUnauthorized }

// IsConnectionRefused reports whether err is or wraps a KindConnectionRefused error.
func IsConnectionRefused(err error) bool { return KindOf(err) == KindConnectionRefused }

// IsNotFound reports whether err is or wraps a KindNotFound error.
//
// Example:
//
//	t, err := p.GetTarget("github")
//	if api.IsNotFound(err) {
//	    // offer to add it
//	}
func IsNotFound(err error) bool { return KindOf(err) == KindNotFound }

// IsDuplicate reports whether err is or wraps a KindDuplicate error.
func IsDuplicate(err error) bool { return KindOf(err) == KindDuplicate }

// IsBadRequest reports whether err is or wraps a KindBadRequest error.
func IsBadRequest(err error) bool { return KindOf(err) == KindBadRequest }

// IsInsecureFilePermissions reports whether err is or wraps a
// KindInsecureFilePermissions error.
func IsInsecureFilePermissions(err error) bool {
	return KindOf(err) == KindInsecureFilePermissions
}

// IsDisabled reports whether err is or wraps a KindDisabled error.
func IsDisabled(err error) bool { return KindOf(err) == KindDisabled }

// NewNotFoundError creates a NotFound error for a resource of the given type.
//
// Example:
//
//	return api.NewNotFoundError("target", "github")
func NewNotFoundError(resourceType, name string) *Error {
	return New(KindNotFound, "%s %q not found", resourceType, name)
}

// NewDuplicateError creates a Duplicate error for a target name.
func NewDuplicateError(name string) *Error {
	return New(KindDuplicate, "target %q already exists", name)
}
