package configspec

import (
	"bytes"
	"encoding/json"
)

// Config is an insertion-ordered JSON object, since rule evaluation and
// default generation both depend on visiting properties in declaration
// order. It's represented as an ordered slice of entries plus an index map
// for O(1) lookup, per the resolved "insertion-ordered vs index-based map"
// question: both properties, neither sacrificed.
type Config struct {
	keys  []string
	index map[string]int
	vals  []any
}

func NewConfig() *Config {
	return &Config{index: make(map[string]int)}
}

func (c *Config) Set(key string, val any) {
	if i, ok := c.index[key]; ok {
		c.vals[i] = val
		return
	}
	c.index[key] = len(c.keys)
	c.keys = append(c.keys, key)
	c.vals = append(c.vals, val)
}

func (c *Config) Get(key string) (any, bool) {
	i, ok := c.index[key]
	if !ok {
		return nil, false
	}
	return c.vals[i], true
}

func (c *Config) Keys() []string {
	out := make([]string, len(c.keys))
	copy(out, c.keys)
	return out
}

func (c *Config) Len() int { return len(c.keys) }

func (c *Config) MarshalJSON() ([]byte, error) {
	var buf []byte
	buf = append(buf, '{')
	for i, k := range c.keys {
		if i > 0 {
			buf = append(buf, ',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		vb, err := json.Marshal(c.vals[i])
		if err != nil {
			return nil, err
		}
		buf = append(buf, kb...)
		buf = append(buf, ':')
		buf = append(buf, vb...)
	}
	buf = append(buf, '}')
	return buf, nil
}

func (c *Config) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return &MatchError{Kind: ErrInvalidType, Detail: "expected object"}
	}
	*c = *NewConfig()
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key := keyTok.(string)
		var v any
		if err := dec.Decode(&v); err != nil {
			return err
		}
		c.Set(key, v)
	}
	return nil
}

// ToMap returns an unordered snapshot, useful when handing a Config to code
// that only needs value lookup (e.g. building action stdin).
func (c *Config) ToMap() map[string]any {
	m := make(map[string]any, len(c.keys))
	for i, k := range c.keys {
		m[k] = c.vals[i]
	}
	return m
}

