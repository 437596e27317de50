// Package apperr generalizes the fmt.Errorf("...: %w", err) idiom used
// throughout this codebase with a Kind, so callers at a process boundary
// (the CLI, the admin endpoint) can decide how to react without string
// matching on messages.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an error by what went wrong, not by its Go type. The set
// matches the categories the engine's error handling policy (recoverable
// locally, fatal to the operation, fatal to the process) is defined over.
type Kind string

const (
	Docker               Kind = "docker"
	Network              Kind = "network"
	Database             Kind = "database"
	Filesystem           Kind = "filesystem"
	Serialization        Kind = "serialization"
	Deserialization      Kind = "deserialization"
	ConfigGen            Kind = "config-gen"
	ConfigSpecViolation  Kind = "config-spec-violation"
	ConfigRulesViolation Kind = "config-rules-violation"
	AutoConfigure        Kind = "auto-configure"
	Backup               Kind = "backup"
	Restore              Kind = "restore"
	NotFound             Kind = "not-found"
	Authorization        Kind = "authorization"
	ValidateS9pk         Kind = "validate-s9pk"
	VersionIncompatible  Kind = "version-incompatible"
	Pack                 Kind = "pack"
	Unknown              Kind = "unknown"
)

// Error wraps a cause with a Kind and a message, and is itself wrappable:
// New(Kind, "...", New(OtherKind, "...", err)) preserves the full chain for
// errors.Is/errors.As while giving the outermost Kind to the caller that
// only wants to know what to do next.
type Error struct {
	Kind  Kind
	msg   string
	cause error
}

func New(kind Kind, msg string, cause error) *Error {
	return &Error{Kind: kind, msg: msg, cause: cause}
}

func Newf(kind Kind, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, msg: fmt.Sprintf(format, args...), cause: cause}
}

func (e *Error) Error() string {
	if e.cause == nil {
		return e.msg
	}
	return fmt.Sprintf("%s: %v", e.msg, e.cause)
}

func (e *Error) Unwrap() error { return e.cause }

// KindOf walks err's cause chain and returns the first *Error's Kind, or
// Unknown if none of the chain is an *Error.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return Unknown
}

// Is makes errors.Is(err, target) report true when target is an *Error of
// the same Kind, whatever its message. A Kind is not itself an error, so
// testing against a bare Kind goes through KindIs instead.
func (e *Error) Is(target error) bool {
	var other *Error
	if errors.As(target, &other) {
		return e.Kind == other.Kind
	}
	return false
}

// KindIs reports whether err's outermost classified Kind equals kind.
func KindIs(err error, kind Kind) bool {
	return KindOf(err) == kind
}
