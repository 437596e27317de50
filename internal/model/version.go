package model

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/fxamacker/cbor/v2"
)

// Version is appmgr's four-component version number: major.minor.patch.revision.
// The revision component exists so a package author can re-publish the same
// upstream release (e.g. after fixing a manifest bug) without bumping a
// version number that has meaning upstream.
type Version [4]uint64

// ParseVersion parses a dotted four-component version string. A missing
// trailing component defaults to 0, so "1.2.3" and "1.2.3.0" are equal.
func ParseVersion(s string) (Version, error) {
	var v Version
	parts := strings.Split(s, ".")
	if len(parts) == 0 || len(parts) > 4 {
		return v, fmt.Errorf("model: invalid version %q", s)
	}
	for i, p := range parts {
		n, err := strconv.ParseUint(p, 10, 64)
		if err != nil {
			return v, fmt.Errorf("model: invalid version component %q in %q: %w", p, s, err)
		}
		v[i] = n
	}
	return v, nil
}

func MustParseVersion(s string) Version {
	v, err := ParseVersion(s)
	if err != nil {
		panic(err)
	}
	return v
}

func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d.%d", v[0], v[1], v[2], v[3])
}

// Compare returns -1, 0, or 1 as v is less than, equal to, or greater than o,
// comparing components left to right.
func (v Version) Compare(o Version) int {
	for i := range v {
		switch {
		case v[i] < o[i]:
			return -1
		case v[i] > o[i]:
			return 1
		}
	}
	return 0
}

func (v Version) Equal(o Version) bool   { return v.Compare(o) == 0 }
func (v Version) LessThan(o Version) bool { return v.Compare(o) < 0 }

func (v Version) MarshalText() ([]byte, error) { return []byte(v.String()), nil }

func (v *Version) UnmarshalText(text []byte) error {
	parsed, err := ParseVersion(string(text))
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// CBOR carries the same canonical string form the text representation uses,
// so a manifest's version bytes are identical whichever codec framed them.
func (v Version) MarshalCBOR() ([]byte, error) { return cbor.Marshal(v.String()) }

func (v *Version) UnmarshalCBOR(data []byte) error {
	var s string
	if err := cbor.Unmarshal(data, &s); err != nil {
		return err
	}
	return v.UnmarshalText([]byte(s))
}

// comparator is one clause of a VersionRange, e.g. ">=1.2.3".
type comparator struct {
	op  string
	ver Version
}

func (c comparator) satisfies(v Version) bool {
	cmp := v.Compare(c.ver)
	switch c.op {
	case "=":
		return cmp == 0
	case ">":
		return cmp > 0
	case ">=":
		return cmp >= 0
	case "<":
		return cmp < 0
	case "<=":
		return cmp <= 0
	case "!=":
		return cmp != 0
	default:
		return false
	}
}

// VersionRange is a boolean expression over Version comparisons, e.g.
// ">=0.20.0 <1.0.0" (implicit AND between space-separated clauses) or
// ">=1.0.0 || >=2.0.0" (explicit OR between "||"-separated alternatives).
// This mirrors the range grammar dependency manifests use to declare which
// versions of a dependency they accept.
type VersionRange struct {
	raw  string
	ors  [][]comparator
}

// AnyVersion matches every version; used for dependencies without an
// explicit range.
var AnyVersion = VersionRange{raw: "*"}

func ParseVersionRange(s string) (VersionRange, error) {
	raw := strings.TrimSpace(s)
	if raw == "" || raw == "*" {
		return VersionRange{raw: "*"}, nil
	}
	var ors [][]comparator
	for _, alt := range strings.Split(raw, "||") {
		alt = strings.TrimSpace(alt)
		var ands []comparator
		for _, clause := range strings.Fields(alt) {
			c, err := parseComparator(clause)
			if err != nil {
				return VersionRange{}, fmt.Errorf("model: invalid version range %q: %w", s, err)
			}
			ands = append(ands, c)
		}
		if len(ands) == 0 {
			return VersionRange{}, fmt.Errorf("model: invalid version range %q: empty clause", s)
		}
		ors = append(ors, ands)
	}
	return VersionRange{raw: raw, ors: ors}, nil
}

func parseComparator(clause string) (comparator, error) {
	for _, op := range []string{">=", "<=", "!=", ">", "<", "="} {
		if strings.HasPrefix(clause, op) {
			ver, err := ParseVersion(strings.TrimPrefix(clause, op))
			if err != nil {
				return comparator{}, err
			}
			return comparator{op: op, ver: ver}, nil
		}
	}
	ver, err := ParseVersion(clause)
	if err != nil {
		return comparator{}, err
	}
	return comparator{op: "=", ver: ver}, nil
}

// Satisfies reports whether v falls within the range.
func (r VersionRange) Satisfies(v Version) bool {
	if r.raw == "" || r.raw == "*" {
		return true
	}
	for _, ands := range r.ors {
		ok := true
		for _, c := range ands {
			if !c.satisfies(v) {
				ok = false
				break
			}
		}
		if ok {
			return true
		}
	}
	return false
}

func MustParseVersionRange(s string) VersionRange {
	r, err := ParseVersionRange(s)
	if err != nil {
		panic(err)
	}
	return r
}

func (r VersionRange) String() string {
	if r.raw == "" {
		return "*"
	}
	return r.raw
}

func (r VersionRange) MarshalText() ([]byte, error) { return []byte(r.String()), nil }

func (r *VersionRange) UnmarshalText(text []byte) error {
	parsed, err := ParseVersionRange(string(text))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

func (r VersionRange) MarshalCBOR() ([]byte, error) { return cbor.Marshal(r.String()) }

func (r *VersionRange) UnmarshalCBOR(data []byte) error {
	var s string
	if err := cbor.Unmarshal(data, &s); err != nil {
		return err
	}
	return r.UnmarshalText([]byte(s))
}
