package introspection

import (
	"strings"

	schema "github.com/hanpama/tracegraph/internal/schema"
)

// ref parses an SDL type reference such as "[__Type!]!".
func ref(s string) *schema.TypeRef {
	if strings.HasSuffix(s, "!") {
		return schema.NonNullType(ref(strings.TrimSuffix(s, "!")))
	}
	if strings.HasPrefix(s, "[") && strings.HasSuffix(s, "]") {
		return schema.ListType(ref(s[1 : len(s)-1]))
	}
	return schema.NamedType(s)
}

func object(name, description string, fields ...*schema.Field) *schema.Type {
	t := schema.NewType(name, schema.TypeKindObject, description)
	t.Fields = schema.NewFieldMap(fields...)
	return t
}

func enum(name string, values ...string) *schema.Type {
	t := schema.NewType(name, schema.TypeKindEnum, "")
	for _, v := range values {
		t.AddEnumValue(schema.NewEnumValue(v, ""))
	}
	return t
}

func field(name, typ string) *schema.Field {
	return schema.NewField(name, "", ref(typ))
}

func listing(name, typ string) *schema.Field {
	return field(name, typ).AddArgument(
		schema.NewInputValue("includeDeprecated", "", ref("Boolean")).SetDefault(false))
}

// metaTypes returns fresh definitions of the introspection types.
func metaTypes() []*schema.Type {
	return []*schema.Type{
		object("__Schema", "A GraphQL Schema defines the capabilities of a GraphQL server.",
			field("description", "String"),
			field("types", "[__Type!]!"),
			field("queryType", "__Type!"),
			field("mutationType", "__Type"),
			field("subscriptionType", "__Type"),
			field("directives", "[__Directive!]!"),
		),
		object("__Type", "The fundamental unit of any GraphQL Schema is the type.",
			field("kind", "__TypeKind!"),
			field("name", "String"),
			field("description", "String"),
			field("specifiedByURL", "String"),
			listing("fields", "[__Field!]"),
			field("interfaces", "[__Type!]"),
			field("possibleTypes", "[__Type!]"),
			listing("enumValues", "[__EnumValue!]"),
			listing("inputFields", "[__InputValue!]"),
			field("ofType", "__Type"),
			field("isOneOf", "Boolean"),
		),
		object("__Field", "",
			field("name", "String!"),
			field("description", "String"),
			listing("args", "[__InputValue!]!"),
			field("type", "__Type!"),
			field("isDeprecated", "Boolean!"),
			field("deprecationReason", "String"),
		),
		object("__InputValue", "",
			field("name", "String!"),
			field("description", "String"),
			field("type", "__Type!"),
			field("defaultValue", "String"),
			field("isDeprecated", "Boolean!"),
			field("deprecationReason", "String"),
		),
		object("__EnumValue", "",
			field("name", "String!"),
			field("description", "String"),
			field("isDeprecated", "Boolean!"),
			field("deprecationReason", "String"),
		),
		object("__Directive", "",
			field("name", "String!"),
			field("description", "String"),
			field("isRepeatable", "Boolean!"),
			field("locations", "[__DirectiveLocation!]!"),
			listing("args", "[__InputValue!]!"),
		),
		enum("__TypeKind", "SCALAR", "OBJECT", "INTERFACE", "UNION", "ENUM", "INPUT_OBJECT", "LIST", "NON_NULL"),
		enum("__DirectiveLocation",
			"QUERY", "MUTATION", "SUBSCRIPTION", "FIELD", "FRAGMENT_DEFINITION", "FRAGMENT_SPREAD",
			"INLINE_FRAGMENT", "VARIABLE_DEFINITION", "SCHEMA", "SCALAR", "OBJECT", "FIELD_DEFINITION",
			"ARGUMENT_DEFINITION", "INTERFACE", "UNION", "ENUM", "ENUM_VALUE", "INPUT_OBJECT",
			"INPUT_FIELD_DEFINITION"),
	}
}

// extend returns a copy of s carrying the introspection types, with __schema
// and __type added to its query type. s itself is left untouched.
func extend(s *schema.Schema) *schema.Schema {
	out := &schema.Schema{
		QueryType:        s.QueryType,
		MutationType:     s.MutationType,
		SubscriptionType: s.SubscriptionType,
		Types:            make(map[string]*schema.Type, len(s.Types)+8),
		Directives:       s.Directives,
		Description:      s.Description,
	}
	for name, t := range s.Types {
		out.Types[name] = t
	}
	for _, t := range metaTypes() {
		out.Types[t.Name] = t
	}
	if q := s.GetQueryType(); q != nil {
		cp := *q
		cp.Fields = append(schema.NewFieldMap(q.Fields...),
			schema.NewField("__schema", "Access the current type schema of this server.", ref("__Schema!")),
			schema.NewField("__type", "Request the type information of a single type.", ref("__Type")).
				AddArgument(schema.NewInputValue("name", "", ref("String!"))),
		)
		out.Types[cp.Name] = &cp
	}
	return out
}
