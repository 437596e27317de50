package configspec

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleSpec() *Object {
	return &Object{
		Order: []string{"name", "port", "advanced"},
		Properties: map[string]Spec{
			"name": &String{Pattern: regexp.MustCompile(`^[a-z]+$`), Default: "node"},
			"port": &Number{HasMin: true, Min: 1, HasMax: true, Max: 65535, Integral: true, Default: 8080},
			"advanced": &Object{
				Null: true,
				Order: []string{"debug"},
				Properties: map[string]Spec{
					"debug": &Boolean{Default: false},
				},
			},
		},
	}
}

func TestObjectMatchesValid(t *testing.T) {
	spec := sampleSpec()
	val := map[string]any{
		"name": "bitcoind",
		"port": float64(8333),
		"advanced": nil,
	}
	assert.Nil(t, spec.Matches(val))
}

func TestObjectMatchesReportsPathToLeaf(t *testing.T) {
	spec := sampleSpec()
	val := map[string]any{
		"name": "bitcoind",
		"port": float64(8333),
		"advanced": map[string]any{
			"debug": "not-a-bool",
		},
	}
	err := spec.Matches(val)
	require.NotNil(t, err)
	assert.Equal(t, []string{"advanced", "debug"}, err.Path)
	assert.Equal(t, ErrInvalidType, err.Err.Kind)
}

func TestNumberOutOfRange(t *testing.T) {
	spec := sampleSpec()
	val := map[string]any{"name": "x", "port": float64(99999), "advanced": nil}
	err := spec.Matches(val)
	require.NotNil(t, err)
	assert.Equal(t, []string{"port"}, err.Path)
	assert.Equal(t, ErrOutOfRange, err.Err.Kind)
}

func TestGenIsDeterministic(t *testing.T) {
	spec := sampleSpec()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	v1, err := Gen(ctx, spec, 42)
	require.NoError(t, err)
	v2, err := Gen(ctx, spec, 42)
	require.NoError(t, err)
	assert.Equal(t, v1, v2)
}

func TestCompileRulesAndEvaluate(t *testing.T) {
	raw := map[string]any{
		"kind":  "object",
		"order": []any{"tor", "hostname"},
		"properties": map[string]any{
			"tor":      map[string]any{"kind": "boolean", "default": false},
			"hostname": map[string]any{"kind": "string", "null": true},
		},
		"rules": []any{
			map[string]any{
				"description": "hostname is required when tor is enabled",
				"if":          "tor",
				"then":        "hostname",
			},
		},
	}
	rules := CompileRules(raw)
	require.Len(t, rules, 1)

	cfg := NewConfig()
	cfg.Set("tor", true)
	cfg.Set("hostname", nil)
	assert.Equal(t, "hostname is required when tor is enabled", EvaluateRules(rules, cfg))

	cfg.Set("hostname", "example.onion")
	assert.Empty(t, EvaluateRules(rules, cfg))

	cfg.Set("tor", false)
	cfg.Set("hostname", nil)
	assert.Empty(t, EvaluateRules(rules, cfg))
}

func TestEvaluateRulesReportsFirstDeclaredViolation(t *testing.T) {
	rules := []Rule{
		FieldRule("first", "", "a"),
		FieldRule("second", "", "b"),
	}
	cfg := NewConfig()
	assert.Equal(t, "first", EvaluateRules(rules, cfg))
}

func TestUnionMatchesVariantAlongsideTag(t *testing.T) {
	u := &Union{
		Tag: "type",
		Variants: map[string]*Object{
			"basic": {
				Order:      []string{"port"},
				Properties: map[string]Spec{"port": &Number{HasMin: true, Min: 1, Integral: true, Default: 80}},
			},
		},
		Default: "basic",
	}
	assert.Nil(t, u.Matches(map[string]any{"type": "basic", "port": float64(80)}))

	err := u.Matches(map[string]any{"type": "unknown"})
	require.NotNil(t, err)
	assert.Equal(t, ErrUnion, err.Err.Kind)
}

func TestUnionRequiresTag(t *testing.T) {
	u := &Union{
		Tag: "type",
		Variants: map[string]*Object{
			"a": {Order: nil, Properties: map[string]Spec{}},
		},
		Default: "a",
	}
	err := u.Matches(map[string]any{})
	require.NotNil(t, err)
	assert.Equal(t, ErrMissingTag, err.Err.Kind)
}
