package schema

// Definitions every built schema shares. Render leaves them out of the SDL.
var (
	stringType  = NewType("String", TypeKindScalar, "The `String` scalar type represents textual data, represented as UTF-8 character sequences.")
	intType     = NewType("Int", TypeKindScalar, "The `Int` scalar type represents non-fractional signed whole numeric values.")
	floatType   = NewType("Float", TypeKindScalar, "The `Float` scalar type represents signed double-precision fractional values.")
	booleanType = NewType("Boolean", TypeKindScalar, "The `Boolean` scalar type represents `true` or `false`.")
	idType      = NewType("ID", TypeKindScalar, "The `ID` scalar type represents a unique identifier, often used to refetch an object or as a key for caching.")

	includeDirective = conditional("include",
		"Directs the executor to include this field or fragment only when the `if` argument is true.",
		"Included when true.")
	skipDirective = conditional("skip",
		"Directs the executor to skip this field or fragment when the `if` argument is true.",
		"Skipped when true.")

	deprecatedDirective = located(
		NewDirective("deprecated", "Marks an element of a GraphQL schema as no longer supported.").
			AddArgument(NewInputValue("reason", "Explains why this element was deprecated.", NamedType("String")).
				SetDefault("No longer supported")),
		"FIELD_DEFINITION", "ARGUMENT_DEFINITION", "INPUT_FIELD_DEFINITION", "ENUM_VALUE")
	specifiedByDirective = located(
		NewDirective("specifiedBy", "Exposes a URL that specifies the behavior of this scalar.").
			AddArgument(NewInputValue("url", "The URL that specifies the behavior of this scalar.", NonNullType(NamedType("String")))),
		"SCALAR")
)

var (
	builtinTypes      = []*Type{stringType, intType, floatType, booleanType, idType}
	builtinDirectives = []*Directive{includeDirective, skipDirective, deprecatedDirective, specifiedByDirective}
)

func conditional(name, description, ifDescription string) *Directive {
	d := NewDirective(name, description).
		AddArgument(NewInputValue("if", ifDescription, NonNullType(NamedType("Boolean"))))
	return located(d, "FIELD", "FRAGMENT_SPREAD", "INLINE_FRAGMENT")
}

func located(d *Directive, locations ...string) *Directive {
	d.Locations = locations
	return d
}

func isBuiltinType(t *Type) bool {
	for _, b := range builtinTypes {
		if b == t {
			return true
		}
	}
	return false
}

func isBuiltinDirective(d *Directive) bool {
	for _, b := range builtinDirectives {
		if b == d {
			return true
		}
	}
	return false
}
