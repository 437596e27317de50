package configspec

import (
	"fmt"
	"regexp"

	"github.com/start9labs/appmgr/internal/model"
)

// PointerTarget is the resolved metadata of a compiled Pointer node: which
// package's config (or which system property) it reads, and whether it
// selects one value or a list of values across a multi-valued source.
type PointerTarget struct {
	Package  model.PackageId
	Selector string
	System   bool
	Multi    bool
}

// PointerResolver resolves a compiled schema's Pointer nodes against live
// system state. internal/configure binds one of these, backed by the
// document-database transaction in scope, every time it compiles a
// manifest's ConfigSpecRef for matches/update/generate.
type PointerResolver interface {
	ResolvePackageConfig(target PointerTarget) (any, error)
	ResolveSystem(selector string) (any, error)
}

// Compile turns a manifest's raw ConfigSpecRef document (model.ConfigSpecRef.Raw)
// into an evaluable Object tree. The raw document's shape mirrors the Spec
// variants directly, keyed by a "kind" discriminant:
//
//	{"kind":"object","order":["port"],"properties":{"port":{"kind":"number", ...}}}
//	{"kind":"list","of":{...},"minLen":0,"maxLen":10,"unique":true}
//	{"kind":"string","pattern":"^[a-z]+$","enum":[...],"default":"a"}
//	{"kind":"number","min":1,"max":65535,"integral":true,"default":8080}
//	{"kind":"boolean","default":false}
//	{"kind":"union","tag":"type","default":"a","variants":{"a":{...}}}
//	{"kind":"pointer","target":"other-pkg","selector":"lanAddress","multi":false,"system":false}
//
// The root object may also carry a top-level "rules" array of cross-field
// predicates; those are compiled separately by CompileRules and evaluated
// after Matches succeeds.
func Compile(raw map[string]any, resolver PointerResolver) (*Object, error) {
	spec, err := compileNode(raw, resolver)
	if err != nil {
		return nil, err
	}
	obj, ok := spec.(*Object)
	if !ok {
		return nil, fmt.Errorf(`configspec: root spec must be kind "object"`)
	}
	return obj, nil
}

func compileNode(raw map[string]any, resolver PointerResolver) (Spec, error) {
	kind, _ := raw["kind"].(string)
	null, _ := raw["null"].(bool)
	switch kind {
	case "object":
		return compileObject(raw, null, resolver)
	case "list":
		ofRaw, _ := raw["of"].(map[string]any)
		of, err := compileNode(ofRaw, resolver)
		if err != nil {
			return nil, fmt.Errorf("configspec: compiling list element: %w", err)
		}
		l := &List{Of: of, Null: null}
		if v, ok := raw["minLen"].(float64); ok {
			l.MinLen = int(v)
		}
		if v, ok := raw["maxLen"].(float64); ok {
			l.MaxLen = int(v)
		}
		if v, ok := raw["unique"].(bool); ok {
			l.Unique = v
		}
		return l, nil
	case "string":
		s := &String{Null: null}
		if v, ok := raw["pattern"].(string); ok && v != "" {
			re, err := regexp.Compile(v)
			if err != nil {
				return nil, fmt.Errorf("configspec: compiling pattern %q: %w", v, err)
			}
			s.Pattern = re
		}
		if v, ok := raw["enum"].([]any); ok {
			for _, e := range v {
				if str, ok := e.(string); ok {
					s.Enum = append(s.Enum, str)
				}
			}
		}
		if v, ok := raw["default"].(string); ok {
			s.Default = v
		}
		return s, nil
	case "number":
		n := &Number{Null: null}
		if v, ok := raw["min"].(float64); ok {
			n.Min, n.HasMin = v, true
		}
		if v, ok := raw["max"].(float64); ok {
			n.Max, n.HasMax = v, true
		}
		if v, ok := raw["integral"].(bool); ok {
			n.Integral = v
		}
		if v, ok := raw["default"].(float64); ok {
			n.Default = v
		}
		return n, nil
	case "boolean":
		b := &Boolean{Null: null}
		if v, ok := raw["default"].(bool); ok {
			b.Default = v
		}
		return b, nil
	case "union":
		return compileUnion(raw, null, resolver)
	case "pointer":
		return compilePointer(raw, resolver), nil
	default:
		return nil, fmt.Errorf("configspec: unknown spec kind %q", kind)
	}
}

func compileObject(raw map[string]any, null bool, resolver PointerResolver) (Spec, error) {
	props, _ := raw["properties"].(map[string]any)
	orderRaw, _ := raw["order"].([]any)
	obj := &Object{Properties: map[string]Spec{}, Null: null}
	for _, o := range orderRaw {
		key, _ := o.(string)
		childRaw, ok := props[key].(map[string]any)
		if !ok {
			return nil, fmt.Errorf("configspec: property %q declared in order but missing from properties", key)
		}
		child, err := compileNode(childRaw, resolver)
		if err != nil {
			return nil, fmt.Errorf("configspec: compiling property %q: %w", key, err)
		}
		obj.Properties[key] = child
		obj.Order = append(obj.Order, key)
	}
	return obj, nil
}

func compileUnion(raw map[string]any, null bool, resolver PointerResolver) (Spec, error) {
	tag, _ := raw["tag"].(string)
	def, _ := raw["default"].(string)
	u := &Union{Tag: tag, Default: def, Null: null, Variants: map[string]*Object{}}
	variantsRaw, _ := raw["variants"].(map[string]any)
	for name, v := range variantsRaw {
		vr, ok := v.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("configspec: union variant %q is not an object", name)
		}
		spec, err := compileObject(vr, false, resolver)
		if err != nil {
			return nil, fmt.Errorf("configspec: compiling union variant %q: %w", name, err)
		}
		u.Variants[name] = spec.(*Object)
	}
	return u, nil
}

func compilePointer(raw map[string]any, resolver PointerResolver) Spec {
	target, _ := raw["target"].(string)
	selector, _ := raw["selector"].(string)
	multi, _ := raw["multi"].(bool)
	system, _ := raw["system"].(bool)
	t := PointerTarget{Package: model.PackageId(target), Selector: selector, Multi: multi, System: system}
	p := &Pointer{Target: t}
	p.Resolve = func() (any, error) {
		if resolver == nil {
			return nil, fmt.Errorf("configspec: pointer %+v has no resolver bound", t)
		}
		if t.System {
			return resolver.ResolveSystem(t.Selector)
		}
		return resolver.ResolvePackageConfig(t)
	}
	return p
}

// CollectPointers walks spec depth-first and returns every Pointer node
// reachable from it, used by internal/configure to find which of a
// dependent's config fields observe a given dependency's config.
func CollectPointers(spec Spec) []*Pointer {
	var out []*Pointer
	var walk func(Spec)
	walk = func(s Spec) {
		switch n := s.(type) {
		case *Pointer:
			out = append(out, n)
		case *Object:
			for _, key := range n.Order {
				walk(n.Properties[key])
			}
		case *List:
			walk(n.Of)
		case *Union:
			for _, v := range n.Variants {
				walk(v)
			}
		}
	}
	walk(spec)
	return out
}
