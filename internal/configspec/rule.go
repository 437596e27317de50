package configspec

import "fmt"

// Rule is one config rule: a predicate over the whole config document that
// must hold, plus a human-readable description used when reporting a
// ConfigRulesViolation. Rules run after Matches succeeds — they express
// cross-field invariants the shape-only schema can't (e.g. "if tor is
// enabled, hostname must be set").
type Rule struct {
	Description string
	Check       func(cfg *Config) bool
}

// EvaluateRules runs every rule against cfg in order and returns the
// description of the first one that fails, or "" if all pass. Evaluating
// in declared order (rather than all-at-once) matches the insertion-order
// guarantee Config itself provides, so the first violation reported is
// always the first one declared, not an arbitrary one.
func EvaluateRules(rules []Rule, cfg *Config) string {
	for _, rule := range rules {
		if !rule.Check(cfg) {
			return rule.Description
		}
	}
	return ""
}

// CompileRules reads a raw config-spec document's top-level "rules" array
// into evaluable Rules. Each entry is a requires-when predicate over two
// dotted field paths:
//
//	{"description": "hostname is required when tor is enabled",
//	 "if": "tor.enabled", "then": "tor.hostname"}
//
// "then" names the field that must be set; "if" (optional) guards the rule
// so it only applies while that field holds a truthy value. Entries that
// aren't objects or name no "then" field are skipped rather than failing
// the whole compile, matching how compileNode tolerates unknown optional
// keys.
func CompileRules(raw map[string]any) []Rule {
	rulesRaw, _ := raw["rules"].([]any)
	var out []Rule
	for _, entry := range rulesRaw {
		m, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		thenPath, _ := m["then"].(string)
		if thenPath == "" {
			continue
		}
		ifPath, _ := m["if"].(string)
		description, _ := m["description"].(string)
		if description == "" {
			description = thenPath + " is required"
		}
		out = append(out, FieldRule(description, ifPath, thenPath))
	}
	return out
}

// FieldRule builds a Rule requiring the field at thenPath to be set; when
// ifPath is non-empty the requirement only applies while the value at
// ifPath is truthy.
func FieldRule(description, ifPath, thenPath string) Rule {
	return Rule{
		Description: description,
		Check: func(cfg *Config) bool {
			if ifPath != "" && !truthy(lookupPath(cfg, ifPath)) {
				return true
			}
			return isSet(lookupPath(cfg, thenPath))
		},
	}
}

// lookupPath walks a dotted path through a Config whose object-valued
// properties may be nested *Config values (ToOrderedConfig's shape) or
// plain maps (a freshly decoded document).
func lookupPath(cfg *Config, path string) any {
	var cur any = cfg
	start := 0
	for i := 0; i <= len(path); i++ {
		if i < len(path) && path[i] != '.' {
			continue
		}
		seg := path[start:i]
		start = i + 1
		switch node := cur.(type) {
		case *Config:
			v, ok := node.Get(seg)
			if !ok {
				return nil
			}
			cur = v
		case map[string]any:
			v, ok := node[seg]
			if !ok {
				return nil
			}
			cur = v
		default:
			return nil
		}
	}
	return cur
}

func truthy(v any) bool {
	switch x := v.(type) {
	case bool:
		return x
	case string:
		return x != ""
	case float64:
		return x != 0
	case int:
		return x != 0
	default:
		return v != nil
	}
}

func isSet(v any) bool {
	if v == nil {
		return false
	}
	if s, ok := v.(string); ok {
		return s != ""
	}
	return true
}

// RulesViolationError is returned by callers (internal/configure,
// internal/dependency) that need to distinguish a rule failure from a
// shape-validation failure.
type RulesViolationError struct {
	Description string
}

func (e *RulesViolationError) Error() string {
	return fmt.Sprintf("configuration rule violated: %s", e.Description)
}
