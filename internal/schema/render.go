package schema

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/hanpama/tracegraph/internal/cachecontrol"
)

// Render produces SDL from the Schema. Types and then directives are written
// sorted by name; the shared standard definitions are left out. Execution
// hints are written back as @async and @cacheControl so the output rebuilds
// to the same Schema.
func Render(s *Schema) string {
	if s == nil {
		return ""
	}
	r := &renderer{schema: s}

	typeNames := make([]string, 0, len(s.Types))
	for name, typ := range s.Types {
		if !isBuiltinType(typ) {
			typeNames = append(typeNames, name)
		}
	}
	sort.Strings(typeNames)
	for _, name := range typeNames {
		r.typeDef(s.Types[name], s.IsRootType(name))
	}

	directiveNames := make([]string, 0, len(s.Directives))
	for name, directive := range s.Directives {
		if !isBuiltinDirective(directive) {
			directiveNames = append(directiveNames, name)
		}
	}
	sort.Strings(directiveNames)
	for _, name := range directiveNames {
		r.directive(s.Directives[name])
	}

	return strings.TrimRight(r.String(), "\n") + "\n"
}

type renderer struct {
	strings.Builder
	schema *Schema
}

func (r *renderer) typeDef(typ *Type, root bool) {
	r.description(typ.Description, "")
	switch typ.Kind {
	case TypeKindScalar:
		r.WriteString("scalar " + typ.Name)
		if typ.SpecifiedByURL != nil {
			r.WriteString(" @specifiedBy(url: " + strconv.Quote(*typ.SpecifiedByURL) + ")")
		}
		r.WriteString("\n\n")
	case TypeKindUnion:
		r.WriteString("union " + typ.Name + " = " + strings.Join(typ.PossibleTypes, " | ") + "\n\n")
	case TypeKindEnum:
		r.WriteString("enum " + typ.Name + " {\n")
		for _, val := range typ.EnumValues {
			r.description(val.Description, "  ")
			r.WriteString("  " + val.Name)
			r.deprecation(val.IsDeprecated, val.DeprecationReason)
			r.WriteString("\n")
		}
		r.WriteString("}\n\n")
	case TypeKindInputObject:
		r.WriteString("input " + typ.Name)
		if typ.OneOf {
			r.WriteString(" @oneOf")
		}
		r.WriteString(" {\n")
		for _, field := range typ.InputFields {
			r.description(field.Description, "  ")
			r.WriteString("  ")
			r.inputValue(field)
			r.WriteString("\n")
		}
		r.WriteString("}\n\n")
	case TypeKindObject, TypeKindInterface:
		keyword := "type "
		if typ.Kind == TypeKindInterface {
			keyword = "interface "
		}
		r.WriteString(keyword + typ.Name)
		if len(typ.Interfaces) > 0 {
			r.WriteString(" implements " + strings.Join(typ.Interfaces, " & "))
		}
		r.cacheControl(typ.CacheControl)
		r.WriteString(" {\n")
		for _, field := range typ.Fields {
			// Root fields are always async.
			r.field(field, !root)
		}
		r.WriteString("}\n\n")
	}
}

func (r *renderer) field(field *Field, markAsync bool) {
	r.description(field.Description, "  ")
	r.WriteString("  " + field.Name)
	r.arguments(field.Arguments)
	r.WriteString(": " + field.Type.String())
	if markAsync && field.Async {
		r.WriteString(" @async")
	}
	r.cacheControl(field.CacheControl)
	r.deprecation(field.IsDeprecated, field.DeprecationReason)
	r.WriteString("\n")
}

func (r *renderer) directive(d *Directive) {
	r.description(d.Description, "")
	r.WriteString("directive @" + d.Name)
	r.arguments(d.Arguments)
	if d.IsRepeatable {
		r.WriteString(" repeatable")
	}
	r.WriteString(" on " + strings.Join(d.Locations, " | ") + "\n\n")
}

func (r *renderer) arguments(args []*InputValue) {
	if len(args) == 0 {
		return
	}
	r.WriteString("(")
	for i, arg := range args {
		if i > 0 {
			r.WriteString(", ")
		}
		r.inputValue(arg)
	}
	r.WriteString(")")
}

func (r *renderer) inputValue(v *InputValue) {
	r.WriteString(v.Name + ": " + v.Type.String())
	if v.DefaultValue != nil {
		r.WriteString(" = " + r.schema.RenderLiteral(v.DefaultValue, v.Type))
	}
	r.deprecation(v.IsDeprecated, v.DeprecationReason)
}

func (r *renderer) description(desc, indent string) {
	if desc == "" {
		return
	}
	r.WriteString(indent + `"""` + "\n")
	for _, line := range strings.Split(strings.ReplaceAll(desc, `"""`, `\"""`), "\n") {
		r.WriteString(indent + line + "\n")
	}
	r.WriteString(indent + `"""` + "\n")
}

func (r *renderer) deprecation(deprecated bool, reason string) {
	if !deprecated {
		return
	}
	r.WriteString(" @deprecated")
	if reason != "" {
		r.WriteString("(reason: " + strconv.Quote(reason) + ")")
	}
}

// cacheControl writes a hint in the shortest form that parses back to it.
func (r *renderer) cacheControl(cc *cachecontrol.CacheControl) {
	if cc == nil {
		return
	}
	var args []string
	if cc.MaxAge > 0 {
		args = append(args, "maxAge: "+strconv.Itoa(cc.MaxAge))
	}
	if !cc.Public {
		args = append(args, "scope: PRIVATE")
	}
	r.WriteString(" @cacheControl")
	if len(args) > 0 {
		r.WriteString("(" + strings.Join(args, ", ") + ")")
	}
}

// RenderLiteral renders value as a literal of type t: strings of enum types
// are written as enum names, and input object fields and list items follow
// their own types. Anything else falls back to RenderValue.
func (s *Schema) RenderLiteral(value any, t *TypeRef) string {
	if value == nil || t == nil {
		return RenderValue(value)
	}
	switch t.Kind {
	case TypeRefKindNonNull:
		return s.RenderLiteral(value, t.OfType)
	case TypeRefKindList:
		items, ok := value.([]any)
		if !ok {
			return s.RenderLiteral(value, t.OfType)
		}
		parts := make([]string, len(items))
		for i, item := range items {
			parts[i] = s.RenderLiteral(item, t.OfType)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	}
	var def *Type
	if s != nil {
		def = s.Types[t.Named]
	}
	switch {
	case def == nil:
		return RenderValue(value)
	case def.Kind == TypeKindEnum:
		if name, ok := value.(string); ok {
			return name
		}
	case def.Kind == TypeKindInputObject:
		if obj, ok := value.(map[string]any); ok {
			parts := make([]string, 0, len(obj))
			for _, f := range def.InputFields {
				if v, ok := obj[f.Name]; ok {
					parts = append(parts, f.Name+": "+s.RenderLiteral(v, f.Type))
				}
			}
			return "{" + strings.Join(parts, ", ") + "}"
		}
	}
	return RenderValue(value)
}

// RenderValue renders a Go value as a GraphQL input literal. Object keys are
// written in sorted order.
func RenderValue(value any) string {
	switch v := value.(type) {
	case nil:
		return "null"
	case string:
		return strconv.Quote(v)
	case int:
		return strconv.Itoa(v)
	case int32:
		return strconv.FormatInt(int64(v), 10)
	case int64:
		return strconv.FormatInt(v, 10)
	case float32:
		return strconv.FormatFloat(float64(v), 'g', -1, 32)
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	case []any:
		parts := make([]string, len(v))
		for i, item := range v {
			parts[i] = RenderValue(item)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case map[string]any:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, len(keys))
		for i, k := range keys {
			parts[i] = k + ": " + RenderValue(v[k])
		}
		return "{" + strings.Join(parts, ", ") + "}"
	default:
		return fmt.Sprint(v)
	}
}
