package configspec

// ToOrderedConfig converts a plain decoded value (map[string]any, as stored
// in the database or received over the wire) into the Config-wrapped shape
// Update expects, recursing into nested objects so Update can walk them too.
// Values under List/Union nodes are left as plain Go values since Update
// never recurses into those.
func ToOrderedConfig(spec Spec, v any) any {
	obj, ok := spec.(*Object)
	if !ok {
		return v
	}
	m, _ := v.(map[string]any)
	cfg := NewConfig()
	for _, key := range obj.Order {
		var child any
		if m != nil {
			child = m[key]
		}
		cfg.Set(key, ToOrderedConfig(obj.Properties[key], child))
	}
	return cfg
}

// FromOrderedConfig is ToOrderedConfig's inverse: it flattens a Config
// (possibly with nested Configs) back down to plain map[string]any, the
// shape persisted to the database and marshaled for a config.set action.
func FromOrderedConfig(v any) any {
	cfg, ok := v.(*Config)
	if !ok {
		return v
	}
	m := make(map[string]any, cfg.Len())
	for _, key := range cfg.Keys() {
		val, _ := cfg.Get(key)
		m[key] = FromOrderedConfig(val)
	}
	return m
}

// Update re-resolves every Pointer-valued property in spec against cfg,
// overwriting cfg's stored value with the pointer's freshly-resolved
// value. Called whenever configure() propagates a change to a dependent,
// since a Pointer's resolved value (e.g. "the dependency's LAN address")
// may have changed even though the dependent's own user-set fields didn't.
func Update(spec *Object, cfg *Config) error {
	for _, key := range spec.Order {
		prop := spec.Properties[key]
		ptr, ok := prop.(*Pointer)
		if !ok {
			if obj, ok := prop.(*Object); ok {
				if child, present := cfg.Get(key); present {
					if childCfg, ok := child.(*Config); ok {
						if err := Update(obj, childCfg); err != nil {
							return err
						}
					}
				}
			}
			continue
		}
		val, err := ptr.Resolve()
		if err != nil {
			return err
		}
		cfg.Set(key, val)
	}
	return nil
}
