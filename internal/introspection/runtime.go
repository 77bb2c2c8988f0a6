// Package introspection answers __schema and __type queries for a schema
// while every other field is delegated to an underlying Runtime.
package introspection

import (
	"context"
	"sort"

	executor "github.com/hanpama/tracegraph/internal/executor"
	schema "github.com/hanpama/tracegraph/internal/schema"
)

// Wrap returns a runtime that serves introspection for s on top of base,
// together with the extended schema the executor must be built with.
func Wrap(base executor.Runtime, s *schema.Schema) (executor.Runtime, *schema.Schema) {
	return &runtime{Runtime: base, schema: s}, extend(s)
}

type runtime struct {
	executor.Runtime
	schema *schema.Schema
}

// typeValue is the source of every __Type object. Named types carry their
// definition; list and non-null wrappers only their reference.
type typeValue struct {
	ref *schema.TypeRef
	def *schema.Type
}

type resolver func(r *runtime, src any, args map[string]any) any

var resolvers = map[string]resolver{
	"__Schema.description": func(r *runtime, _ any, _ map[string]any) any { return r.schema.Description },
	"__Schema.types":       func(r *runtime, _ any, _ map[string]any) any { return r.types() },
	"__Schema.queryType":   func(r *runtime, _ any, _ map[string]any) any { return r.named(r.schema.QueryType) },
	"__Schema.mutationType": func(r *runtime, _ any, _ map[string]any) any {
		return r.named(r.schema.MutationType)
	},
	"__Schema.subscriptionType": func(r *runtime, _ any, _ map[string]any) any {
		return r.named(r.schema.SubscriptionType)
	},
	"__Schema.directives": func(r *runtime, _ any, _ map[string]any) any { return r.directives() },

	"__Type.kind": func(_ *runtime, src any, _ map[string]any) any {
		t := src.(typeValue)
		if t.def != nil {
			return string(t.def.Kind)
		}
		return string(t.ref.Kind)
	},
	"__Type.name": func(_ *runtime, src any, _ map[string]any) any {
		if t := src.(typeValue); t.def != nil {
			return t.def.Name
		}
		return nil
	},
	"__Type.description": onDef(func(_ *runtime, t *schema.Type, _ map[string]any) any { return t.Description }),
	"__Type.specifiedByURL": onDef(func(_ *runtime, t *schema.Type, _ map[string]any) any {
		return t.SpecifiedByURL
	}),
	"__Type.isOneOf": onDef(func(_ *runtime, t *schema.Type, _ map[string]any) any {
		if t.Kind != schema.TypeKindInputObject {
			return nil
		}
		return t.OneOf
	}),
	"__Type.ofType": func(r *runtime, src any, _ map[string]any) any {
		t := src.(typeValue)
		if t.def != nil || t.ref == nil {
			return nil
		}
		return r.wrap(t.ref.OfType)
	},
	"__Type.fields": onDef(func(_ *runtime, t *schema.Type, args map[string]any) any {
		if t.Kind != schema.TypeKindObject && t.Kind != schema.TypeKindInterface {
			return nil
		}
		out := []*schema.Field{}
		for _, f := range t.Fields {
			if len(f.Name) > 1 && f.Name[:2] == "__" {
				continue
			}
			if f.IsDeprecated && !includeDeprecated(args) {
				continue
			}
			out = append(out, f)
		}
		return out
	}),
	"__Type.interfaces": onDef(func(r *runtime, t *schema.Type, _ map[string]any) any {
		if t.Kind != schema.TypeKindObject && t.Kind != schema.TypeKindInterface {
			return nil
		}
		return r.namedList(t.Interfaces)
	}),
	"__Type.possibleTypes": onDef(func(r *runtime, t *schema.Type, _ map[string]any) any {
		if t.Kind != schema.TypeKindInterface && t.Kind != schema.TypeKindUnion {
			return nil
		}
		return r.namedList(t.PossibleTypes)
	}),
	"__Type.enumValues": onDef(func(_ *runtime, t *schema.Type, args map[string]any) any {
		if t.Kind != schema.TypeKindEnum {
			return nil
		}
		out := []*schema.EnumValue{}
		for _, v := range t.EnumValues {
			if !v.IsDeprecated || includeDeprecated(args) {
				out = append(out, v)
			}
		}
		return out
	}),
	"__Type.inputFields": onDef(func(_ *runtime, t *schema.Type, args map[string]any) any {
		if t.Kind != schema.TypeKindInputObject {
			return nil
		}
		return inputValues(t.InputFields, args)
	}),

	"__Field.name":              func(_ *runtime, src any, _ map[string]any) any { return src.(*schema.Field).Name },
	"__Field.description":       func(_ *runtime, src any, _ map[string]any) any { return src.(*schema.Field).Description },
	"__Field.args":              func(_ *runtime, src any, args map[string]any) any { return inputValues(src.(*schema.Field).Arguments, args) },
	"__Field.type":              func(r *runtime, src any, _ map[string]any) any { return r.wrap(src.(*schema.Field).Type) },
	"__Field.isDeprecated":      func(_ *runtime, src any, _ map[string]any) any { return src.(*schema.Field).IsDeprecated },
	"__Field.deprecationReason": func(_ *runtime, src any, _ map[string]any) any { f := src.(*schema.Field); return reason(f.IsDeprecated, f.DeprecationReason) },

	"__InputValue.name":        func(_ *runtime, src any, _ map[string]any) any { return src.(*schema.InputValue).Name },
	"__InputValue.description": func(_ *runtime, src any, _ map[string]any) any { return src.(*schema.InputValue).Description },
	"__InputValue.type":        func(r *runtime, src any, _ map[string]any) any { return r.wrap(src.(*schema.InputValue).Type) },
	"__InputValue.defaultValue": func(r *runtime, src any, _ map[string]any) any {
		v := src.(*schema.InputValue)
		if v.DefaultValue == nil {
			return nil
		}
		return r.schema.RenderLiteral(v.DefaultValue, v.Type)
	},
	"__InputValue.isDeprecated": func(_ *runtime, src any, _ map[string]any) any { return src.(*schema.InputValue).IsDeprecated },
	"__InputValue.deprecationReason": func(_ *runtime, src any, _ map[string]any) any {
		v := src.(*schema.InputValue)
		return reason(v.IsDeprecated, v.DeprecationReason)
	},

	"__EnumValue.name":         func(_ *runtime, src any, _ map[string]any) any { return src.(*schema.EnumValue).Name },
	"__EnumValue.description":  func(_ *runtime, src any, _ map[string]any) any { return src.(*schema.EnumValue).Description },
	"__EnumValue.isDeprecated": func(_ *runtime, src any, _ map[string]any) any { return src.(*schema.EnumValue).IsDeprecated },
	"__EnumValue.deprecationReason": func(_ *runtime, src any, _ map[string]any) any {
		v := src.(*schema.EnumValue)
		return reason(v.IsDeprecated, v.DeprecationReason)
	},

	"__Directive.name":         func(_ *runtime, src any, _ map[string]any) any { return src.(*schema.Directive).Name },
	"__Directive.description":  func(_ *runtime, src any, _ map[string]any) any { return src.(*schema.Directive).Description },
	"__Directive.isRepeatable": func(_ *runtime, src any, _ map[string]any) any { return src.(*schema.Directive).IsRepeatable },
	"__Directive.locations":    func(_ *runtime, src any, _ map[string]any) any { return append([]string{}, src.(*schema.Directive).Locations...) },
	"__Directive.args":         func(_ *runtime, src any, args map[string]any) any { return inputValues(src.(*schema.Directive).Arguments, args) },
}

func onDef(f func(r *runtime, t *schema.Type, args map[string]any) any) resolver {
	return func(r *runtime, src any, args map[string]any) any {
		t := src.(typeValue)
		if t.def == nil {
			return nil
		}
		return f(r, t.def, args)
	}
}

func (r *runtime) ResolveSync(ctx context.Context, objectType, field string, source any, args map[string]any) (any, error) {
	if objectType == r.schema.QueryType {
		switch field {
		case "__schema":
			return r.schema, nil
		case "__type":
			name, _ := args["name"].(string)
			return r.named(name), nil
		}
	}
	if f, ok := resolvers[objectType+"."+field]; ok {
		return f(r, source, args), nil
	}
	return r.Runtime.ResolveSync(ctx, objectType, field, source, args)
}

// SerializeLeafValue passes introspection enums through and delegates the
// rest.
func (r *runtime) SerializeLeafValue(ctx context.Context, typ string, value any) (any, error) {
	if typ == "__TypeKind" || typ == "__DirectiveLocation" {
		return value, nil
	}
	return r.Runtime.SerializeLeafValue(ctx, typ, value)
}

func (r *runtime) named(name string) any {
	def := r.schema.Types[name]
	if name == "" || def == nil {
		return nil
	}
	return typeValue{ref: schema.NamedType(name), def: def}
}

func (r *runtime) namedList(names []string) []any {
	out := make([]any, 0, len(names))
	for _, n := range names {
		if t := r.named(n); t != nil {
			out = append(out, t)
		}
	}
	return out
}

func (r *runtime) wrap(ref *schema.TypeRef) any {
	if ref == nil {
		return nil
	}
	if ref.Kind == schema.TypeRefKindNamed {
		return r.named(ref.Named)
	}
	return typeValue{ref: ref}
}

// types lists every named type, introspection types included, by name.
func (r *runtime) types() []any {
	names := make([]string, 0, len(r.schema.Types)+8)
	for name := range r.schema.Types {
		names = append(names, name)
	}
	meta := make(map[string]*schema.Type)
	for _, t := range metaTypes() {
		if _, ok := r.schema.Types[t.Name]; !ok {
			meta[t.Name] = t
			names = append(names, t.Name)
		}
	}
	sort.Strings(names)
	out := make([]any, 0, len(names))
	for _, n := range names {
		if def, ok := meta[n]; ok {
			out = append(out, typeValue{ref: schema.NamedType(n), def: def})
			continue
		}
		out = append(out, r.named(n))
	}
	return out
}

func (r *runtime) directives() []*schema.Directive {
	out := make([]*schema.Directive, 0, len(r.schema.Directives))
	for _, d := range r.schema.Directives {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func inputValues(in []*schema.InputValue, args map[string]any) []*schema.InputValue {
	out := []*schema.InputValue{}
	for _, v := range in {
		if !v.IsDeprecated || includeDeprecated(args) {
			out = append(out, v)
		}
	}
	return out
}

func includeDeprecated(args map[string]any) bool {
	b, _ := args["includeDeprecated"].(bool)
	return b
}

func reason(deprecated bool, why string) any {
	if !deprecated {
		return nil
	}
	return why
}
