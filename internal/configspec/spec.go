package configspec

import (
	"fmt"
	"math/rand"
	"regexp"
)

// Spec is one node of the recursive configuration schema. Each concrete
// type below implements Matches and Generate; Spec itself carries only the
// nullability flag every variant shares.
type Spec interface {
	// Matches validates v against the spec, returning nil on success or a
	// NoMatchWithPath describing the first failure found, with its path
	// already carrying every segment below this node (this node's own
	// caller prepends one more segment for itself).
	Matches(v any) *NoMatchWithPath
	// Generate deterministically produces a default value using r as the
	// source of randomness, so the same seed always yields the same config.
	Generate(r *rand.Rand) (any, error)
	// Nullable reports whether a JSON null satisfies this spec regardless
	// of its concrete kind.
	Nullable() bool
}

func fail(kind MatchErrorKind, detail string) *NoMatchWithPath {
	return NewNoMatch(&MatchError{Kind: kind, Detail: detail})
}

// Object is a spec for a JSON object with a fixed set of named properties.
type Object struct {
	Properties map[string]Spec
	Order      []string
	Null       bool
}

func (o *Object) Nullable() bool { return o.Null }

func (o *Object) Matches(v any) *NoMatchWithPath {
	if v == nil {
		if o.Null {
			return nil
		}
		return fail(ErrNotNullable, "")
	}
	m, ok := v.(map[string]any)
	if !ok {
		return fail(ErrInvalidType, "expected object")
	}
	for _, key := range o.Order {
		prop := o.Properties[key]
		val, present := m[key]
		if !present {
			val = nil
		}
		if err := prop.Matches(val); err != nil {
			return err.Prepend(key)
		}
	}
	for key := range m {
		if _, ok := o.Properties[key]; !ok {
			return fail(ErrInvalidKey, key)
		}
	}
	return nil
}

func (o *Object) Generate(r *rand.Rand) (any, error) {
	m := make(map[string]any, len(o.Order))
	for _, key := range o.Order {
		v, err := o.Properties[key].Generate(r)
		if err != nil {
			return nil, err
		}
		m[key] = v
	}
	return m, nil
}

// List is a spec for a JSON array whose elements all match Of, with an
// optional length bound and uniqueness constraint.
type List struct {
	Of     Spec
	MinLen int
	MaxLen int // 0 means unbounded
	Unique bool
	Null   bool
}

func (l *List) Nullable() bool { return l.Null }

func (l *List) Matches(v any) *NoMatchWithPath {
	if v == nil {
		if l.Null {
			return nil
		}
		return fail(ErrNotNullable, "")
	}
	arr, ok := v.([]any)
	if !ok {
		return fail(ErrInvalidType, "expected list")
	}
	if len(arr) < l.MinLen || (l.MaxLen > 0 && len(arr) > l.MaxLen) {
		return fail(ErrLengthMismatch, fmt.Sprintf("got %d", len(arr)))
	}
	seen := make(map[string]struct{}, len(arr))
	for i, elem := range arr {
		if err := l.Of.Matches(elem); err != nil {
			return err.Prepend(fmt.Sprintf("[%d]", i))
		}
		if l.Unique {
			key := fmt.Sprintf("%v", elem)
			if _, dup := seen[key]; dup {
				return fail(ErrListUniquenessViolation, key)
			}
			seen[key] = struct{}{}
		}
	}
	return nil
}

func (l *List) Generate(r *rand.Rand) (any, error) {
	n := l.MinLen
	out := make([]any, 0, n)
	for i := 0; i < n; i++ {
		v, err := l.Of.Generate(r)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// String is a spec for a JSON string, optionally constrained by a regex
// pattern or a fixed enumeration (mutually exclusive in practice, though
// nothing here forbids both being set).
type String struct {
	Pattern *regexp.Regexp
	Enum    []string
	Default string
	Null    bool
}

func (s *String) Nullable() bool { return s.Null }

func (s *String) Matches(v any) *NoMatchWithPath {
	if v == nil {
		if s.Null {
			return nil
		}
		return fail(ErrNotNullable, "")
	}
	str, ok := v.(string)
	if !ok {
		return fail(ErrInvalidType, "expected string")
	}
	if s.Pattern != nil && !s.Pattern.MatchString(str) {
		return fail(ErrPattern, s.Pattern.String())
	}
	if len(s.Enum) > 0 {
		ok := false
		for _, e := range s.Enum {
			if e == str {
				ok = true
				break
			}
		}
		if !ok {
			return fail(ErrEnum, str)
		}
	}
	return nil
}

func (s *String) Generate(r *rand.Rand) (any, error) {
	if len(s.Enum) > 0 {
		return s.Enum[r.Intn(len(s.Enum))], nil
	}
	return s.Default, nil
}

// Number is a spec for a JSON number, optionally bounded and optionally
// required to be integral.
type Number struct {
	Min, Max float64
	HasMin   bool
	HasMax   bool
	Integral bool
	Default  float64
	Null     bool
}

func (n *Number) Nullable() bool { return n.Null }

func (n *Number) Matches(v any) *NoMatchWithPath {
	if v == nil {
		if n.Null {
			return nil
		}
		return fail(ErrNotNullable, "")
	}
	num, ok := toFloat(v)
	if !ok {
		return fail(ErrInvalidType, "expected number")
	}
	if (n.HasMin && num < n.Min) || (n.HasMax && num > n.Max) {
		return fail(ErrOutOfRange, fmt.Sprintf("%v", num))
	}
	if n.Integral && num != float64(int64(num)) {
		return fail(ErrNonIntegral, fmt.Sprintf("%v", num))
	}
	return nil
}

func (n *Number) Generate(r *rand.Rand) (any, error) {
	return n.Default, nil
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

// Boolean is a spec for a JSON boolean.
type Boolean struct {
	Default bool
	Null    bool
}

func (b *Boolean) Nullable() bool { return b.Null }

func (b *Boolean) Matches(v any) *NoMatchWithPath {
	if v == nil {
		if b.Null {
			return nil
		}
		return fail(ErrNotNullable, "")
	}
	if _, ok := v.(bool); !ok {
		return fail(ErrInvalidType, "expected boolean")
	}
	return nil
}

func (b *Boolean) Generate(r *rand.Rand) (any, error) { return b.Default, nil }

// Union is a tagged union spec: the object's Tag property selects which of
// Variants applies to the remaining properties.
type Union struct {
	Tag      string
	Variants map[string]*Object
	Default  string
	Null     bool
}

func (u *Union) Nullable() bool { return u.Null }

func (u *Union) Matches(v any) *NoMatchWithPath {
	if v == nil {
		if u.Null {
			return nil
		}
		return fail(ErrNotNullable, "")
	}
	m, ok := v.(map[string]any)
	if !ok {
		return fail(ErrInvalidType, "expected object")
	}
	tagVal, present := m[u.Tag]
	if !present {
		return fail(ErrMissingTag, u.Tag)
	}
	tagStr, ok := tagVal.(string)
	if !ok {
		return fail(ErrUnion, "tag must be a string")
	}
	variant, ok := u.Variants[tagStr]
	if !ok {
		return fail(ErrUnion, fmt.Sprintf("unknown variant %q", tagStr))
	}
	if _, clash := variant.Properties[u.Tag]; clash {
		return fail(ErrPropertyMatchesUnionTag, u.Tag)
	}
	// The tag key belongs to the union, not the variant; the variant's
	// object spec would reject it as an unknown property.
	rest := make(map[string]any, len(m)-1)
	for k, val := range m {
		if k != u.Tag {
			rest[k] = val
		}
	}
	return variant.Matches(rest)
}

func (u *Union) Generate(r *rand.Rand) (any, error) {
	variant := u.Variants[u.Default]
	if variant == nil {
		return nil, fmt.Errorf("configspec: union has no default variant")
	}
	m, err := variant.Generate(r)
	if err != nil {
		return nil, err
	}
	obj := m.(map[string]any)
	obj[u.Tag] = u.Default
	return obj, nil
}

// Pointer is a spec whose value is computed by resolving a reference into
// another package's config or a system property rather than supplied by the
// user; it always matches (its value is derived, never user-entered) and
// Generate defers to Resolve. Target records what Resolve reads, so callers
// (internal/configure's change-detection) can reason about a pointer without
// invoking it.
type Pointer struct {
	Resolve func() (any, error)
	Target  PointerTarget
}

func (p *Pointer) Nullable() bool { return true }

func (p *Pointer) Matches(v any) *NoMatchWithPath { return nil }

func (p *Pointer) Generate(r *rand.Rand) (any, error) {
	if p.Resolve == nil {
		return nil, fail(ErrInvalidPointer, "").Err
	}
	return p.Resolve()
}
