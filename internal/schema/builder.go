package schema

import (
	"fmt"
	"strings"

	"github.com/vektah/gqlparser/v2"
	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/parser"

	"github.com/hanpama/tracegraph/internal/cachecontrol"
)

// Directive names understood by the builder.
const (
	CacheControlDirective = "cacheControl"
	AsyncDirective        = "async"
)

var hintDefinitions = map[string]string{
	"CacheControlScope":   "enum CacheControlScope { PUBLIC PRIVATE }",
	CacheControlDirective: "directive @cacheControl(maxAge: Int, scope: CacheControlScope) on OBJECT | INTERFACE | FIELD_DEFINITION",
	AsyncDirective:        "directive @async on FIELD_DEFINITION",
}

// BuildFromSDL parses and validates SDL and returns the corresponding Schema.
//
// Object and interface types and their fields may carry @cacheControl hints;
// a field also takes the hints of the interfaces its type implements. Fields
// of the root operation types, and fields marked @async, are resolved through
// the batched async path; all other fields resolve synchronously. Definitions
// for these directives are supplied when the SDL does not declare them.
func BuildFromSDL(sdl string) (*Schema, error) {
	return BuildFromSources(&ast.Source{Name: "schema.graphql", Input: sdl})
}

// BuildFromSources is BuildFromSDL over several SDL sources, e.g. a base
// schema and its extensions.
func BuildFromSources(sources ...*ast.Source) (*Schema, error) {
	declared := make(map[string]bool)
	for _, src := range sources {
		doc, err := parser.ParseSchema(src)
		if err != nil {
			return nil, err
		}
		for _, d := range doc.Directives {
			declared[d.Name] = true
		}
		for _, d := range doc.Definitions {
			declared[d.Name] = true
		}
	}
	var hints []string
	for _, name := range []string{"CacheControlScope", CacheControlDirective, AsyncDirective} {
		if !declared[name] {
			hints = append(hints, hintDefinitions[name])
		}
	}
	inputs := sources
	if len(hints) > 0 {
		inputs = append([]*ast.Source{{
			Name:    "hints.graphql",
			Input:   strings.Join(hints, "\n"),
			BuiltIn: true,
		}}, sources...)
	}

	doc, err := gqlparser.LoadSchema(inputs...)
	if err != nil {
		return nil, err
	}
	return BuildFromAST(doc)
}

// BuildFromAST converts a validated gqlparser schema into an executable
// Schema. The parser's prelude is replaced by the shared standard scalars
// and directives.
func BuildFromAST(doc *ast.Schema) (*Schema, error) {
	s := NewSchema(doc.Description)
	if doc.Query != nil {
		s.SetQueryType(doc.Query.Name)
	}
	if doc.Mutation != nil {
		s.SetMutationType(doc.Mutation.Name)
	}
	if doc.Subscription != nil {
		s.SetSubscriptionType(doc.Subscription.Name)
	}
	for _, t := range builtinTypes {
		s.AddType(t)
	}
	for _, d := range builtinDirectives {
		s.AddDirective(d)
	}

	for _, def := range doc.Types {
		if def.BuiltIn || strings.HasPrefix(def.Name, "__") {
			continue
		}
		var (
			t   *Type
			err error
		)
		switch def.Kind {
		case ast.Object:
			t, err = buildObject(s, def, TypeKindObject)
		case ast.Interface:
			t, err = buildObject(s, def, TypeKindInterface)
		case ast.Union:
			t = buildUnion(def)
		case ast.Enum:
			t = buildEnum(def)
		case ast.InputObject:
			t, err = buildInput(def)
		case ast.Scalar:
			t = buildScalar(def)
		default:
			err = fmt.Errorf("unsupported definition kind %s", def.Kind)
		}
		if err != nil {
			return nil, fmt.Errorf("type %s: %w", def.Name, err)
		}
		s.AddType(t)
	}

	for _, t := range s.Types {
		if t.Kind != TypeKindInterface {
			continue
		}
		for _, impl := range doc.PossibleTypes[t.Name] {
			if impl.Kind == ast.Object {
				t.AddPossibleType(impl.Name)
			}
		}
	}

	for _, dir := range doc.Directives {
		if dir.Position != nil && dir.Position.Src != nil && dir.Position.Src.BuiltIn {
			continue
		}
		d, err := buildDirective(dir)
		if err != nil {
			return nil, fmt.Errorf("directive @%s: %w", dir.Name, err)
		}
		s.AddDirective(d)
	}
	return s, nil
}

func buildObject(s *Schema, def *ast.Definition, kind TypeKind) (*Type, error) {
	t := NewType(def.Name, kind, def.Description)
	for _, name := range def.Interfaces {
		t.AddInterface(name)
	}
	cc, err := cacheHint(def.Directives)
	if err != nil {
		return nil, err
	}
	t.CacheControl = cc

	root := s.IsRootType(def.Name)
	for _, fieldDef := range def.Fields {
		if strings.HasPrefix(fieldDef.Name, "__") {
			continue
		}
		f, err := buildField(fieldDef, root)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", fieldDef.Name, err)
		}
		t.AddField(f)
	}
	return t, nil
}

func buildField(def *ast.FieldDefinition, root bool) (*Field, error) {
	f := NewField(def.Name, def.Description, buildTypeRef(def.Type)).
		SetAsync(root || def.Directives.ForName(AsyncDirective) != nil)
	if reason, ok := deprecation(def.Directives); ok {
		f.Deprecate(reason)
	}
	cc, err := cacheHint(def.Directives)
	if err != nil {
		return nil, err
	}
	f.CacheControl = cc
	for _, arg := range def.Arguments {
		in, err := buildArgument(arg)
		if err != nil {
			return nil, fmt.Errorf("argument %s: %w", arg.Name, err)
		}
		f.AddArgument(in)
	}
	return f, nil
}

// cacheHint reads @cacheControl. A missing maxAge leaves the hint unset
// rather than zero seconds.
func cacheHint(dirs ast.DirectiveList) (*cachecontrol.CacheControl, error) {
	dir := dirs.ForName(CacheControlDirective)
	if dir == nil {
		return nil, nil
	}
	cc := cachecontrol.Default()
	if arg := dir.Arguments.ForName("maxAge"); arg != nil {
		v, err := arg.Value.Value(nil)
		if err != nil {
			return nil, err
		}
		switch n := v.(type) {
		case int64:
			if n < 0 {
				return nil, fmt.Errorf("@cacheControl maxAge must not be negative, got %d", n)
			}
			cc.MaxAge = int(n)
		case nil:
		default:
			return nil, fmt.Errorf("@cacheControl maxAge must be an Int, got %T", v)
		}
	}
	if arg := dir.Arguments.ForName("scope"); arg != nil {
		public, err := cachecontrol.ParseScope(arg.Value.Raw)
		if err != nil {
			return nil, err
		}
		cc.Public = public
	}
	return &cc, nil
}

func deprecation(dirs ast.DirectiveList) (string, bool) {
	dir := dirs.ForName("deprecated")
	if dir == nil {
		return "", false
	}
	if arg := dir.Arguments.ForName("reason"); arg != nil && arg.Value != nil {
		return arg.Value.Raw, true
	}
	return "", true
}

func buildEnum(def *ast.Definition) *Type {
	t := NewType(def.Name, TypeKindEnum, def.Description)
	for _, v := range def.EnumValues {
		e := NewEnumValue(v.Name, v.Description)
		if reason, ok := deprecation(v.Directives); ok {
			e.Deprecate(reason)
		}
		t.AddEnumValue(e)
	}
	return t
}

func buildTypeRef(t *ast.Type) *TypeRef {
	var ref *TypeRef
	if t.Elem != nil {
		ref = ListType(buildTypeRef(t.Elem))
	} else {
		ref = NamedType(t.NamedType)
	}
	if t.NonNull {
		return NonNullType(ref)
	}
	return ref
}

func buildArgument(a *ast.ArgumentDefinition) (*InputValue, error) {
	in := NewInputValue(a.Name, a.Description, buildTypeRef(a.Type))
	if a.DefaultValue != nil {
		v, err := a.DefaultValue.Value(nil)
		if err != nil {
			return nil, err
		}
		in.SetDefault(v)
	}
	if reason, ok := deprecation(a.Directives); ok {
		in.Deprecate(reason)
	}
	return in, nil
}

func buildInput(def *ast.Definition) (*Type, error) {
	t := NewType(def.Name, TypeKindInputObject, def.Description).
		SetOneOf(def.Directives.ForName("oneOf") != nil)
	for _, f := range def.Fields {
		in := NewInputValue(f.Name, f.Description, buildTypeRef(f.Type))
		if f.DefaultValue != nil {
			v, err := f.DefaultValue.Value(nil)
			if err != nil {
				return nil, fmt.Errorf("field %s: %w", f.Name, err)
			}
			in.SetDefault(v)
		}
		if reason, ok := deprecation(f.Directives); ok {
			in.Deprecate(reason)
		}
		t.AddInputField(in)
	}
	return t, nil
}

func buildUnion(def *ast.Definition) *Type {
	t := NewType(def.Name, TypeKindUnion, def.Description)
	for _, name := range def.Types {
		t.AddPossibleType(name)
	}
	return t
}

func buildScalar(def *ast.Definition) *Type {
	t := NewType(def.Name, TypeKindScalar, def.Description)
	if dir := def.Directives.ForName("specifiedBy"); dir != nil {
		if arg := dir.Arguments.ForName("url"); arg != nil && arg.Value != nil {
			url := arg.Value.Raw
			t.SpecifiedByURL = &url
		}
	}
	return t
}

func buildDirective(dir *ast.DirectiveDefinition) (*Directive, error) {
	d := NewDirective(dir.Name, dir.Description).SetRepeatable(dir.IsRepeatable)
	for _, loc := range dir.Locations {
		d.Locations = append(d.Locations, string(loc))
	}
	for _, arg := range dir.Arguments {
		in, err := buildArgument(arg)
		if err != nil {
			return nil, fmt.Errorf("argument %s: %w", arg.Name, err)
		}
		d.AddArgument(in)
	}
	return d, nil
}
