package configspec

import (
	"fmt"
	"strings"
)

// MatchErrorKind enumerates every way a config document can fail to match
// its spec.
type MatchErrorKind string

const (
	ErrPattern                     MatchErrorKind = "pattern"
	ErrEnum                        MatchErrorKind = "enum"
	ErrNotNullable                 MatchErrorKind = "not-nullable"
	ErrLengthMismatch              MatchErrorKind = "length-mismatch"
	ErrInvalidType                 MatchErrorKind = "invalid-type"
	ErrOutOfRange                  MatchErrorKind = "out-of-range"
	ErrNonIntegral                 MatchErrorKind = "non-integral"
	ErrUnion                       MatchErrorKind = "union"
	ErrMissingTag                  MatchErrorKind = "missing-tag"
	ErrPropertyMatchesUnionTag     MatchErrorKind = "property-matches-union-tag"
	ErrPropertyNameMatchesMapTag   MatchErrorKind = "property-name-matches-map-tag"
	ErrInvalidPointer              MatchErrorKind = "invalid-pointer"
	ErrInvalidKey                  MatchErrorKind = "invalid-key"
	ErrListUniquenessViolation     MatchErrorKind = "list-uniqueness-violation"
)

// MatchError is a single validation failure: what went wrong, and any
// kind-specific detail needed to render a useful message.
type MatchError struct {
	Kind   MatchErrorKind
	Detail string
}

func (e *MatchError) Error() string {
	if e.Detail == "" {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

// NoMatchWithPath wraps a MatchError with the root-to-leaf path of the
// config field where it occurred. Path is accumulated innermost-first and
// displayed root-to-leaf, joined with ".".
type NoMatchWithPath struct {
	Path []string
	Err  *MatchError
}

func NewNoMatch(err *MatchError) *NoMatchWithPath {
	return &NoMatchWithPath{Err: err}
}

// Prepend adds a path segment closer to the root, called by each recursive
// caller as the validation stack unwinds so the final path reads root-to-leaf.
func (n *NoMatchWithPath) Prepend(segment string) *NoMatchWithPath {
	n.Path = append([]string{segment}, n.Path...)
	return n
}

func (n *NoMatchWithPath) Error() string {
	if len(n.Path) == 0 {
		return n.Err.Error()
	}
	return fmt.Sprintf("%s: %s", strings.Join(n.Path, "."), n.Err.Error())
}
