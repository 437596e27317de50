package configspec

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
)

// Validate checks a decoded JSON value (as produced by json.Unmarshal into
// an any, or Config.ToMap) against spec, returning a path-annotated error
// or nil.
func Validate(spec Spec, value any) error {
	if err := spec.Matches(value); err != nil {
		return err
	}
	return nil
}

// ValidateConfig is a convenience wrapper for the common case of validating
// a whole Config document against an Object spec.
func ValidateConfig(spec *Object, cfg *Config) error {
	return Validate(spec, cfg.ToMap())
}

// Gen deterministically generates a default config for spec using seed, so
// the same manifest + seed always produces the same config (callers that
// need true randomness should derive seed from a random source themselves).
// ctx bounds the generation time, since a spec can in principle reference
// a Pointer whose Resolve performs I/O (another package's config lookup).
func Gen(ctx context.Context, spec Spec, seed int64) (any, error) {
	r := rand.New(rand.NewSource(seed))
	type result struct {
		val any
		err error
	}
	done := make(chan result, 1)
	go func() {
		v, err := spec.Generate(r)
		done <- result{v, err}
	}()
	select {
	case res := <-done:
		return res.val, res.err
	case <-ctx.Done():
		return nil, fmt.Errorf("configspec: generation timed out: %w", ctx.Err())
	}
}

// FromJSON decodes a JSON document into the generic value shape Matches
// expects (map[string]any / []any / string / float64 / bool / nil).
func FromJSON(data []byte) (any, error) {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	return v, nil
}
