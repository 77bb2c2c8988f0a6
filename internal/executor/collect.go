package executor

import (
	"slices"

	language "github.com/hanpama/tracegraph/internal/language"
	schema "github.com/hanpama/tracegraph/internal/schema"
)

// fieldGroup is every selection of one response name, in query order.
type fieldGroup struct {
	ResponseName string
	Fields       []*language.Field
}

// collectFields flattens selectionSet for objectType: fragments whose type
// condition applies are inlined, @skip/@include are honoured, and fields are
// grouped by response name in order of first appearance.
func collectFields(state *executionState, objectType *schema.Type, selectionSet language.SelectionSet) []fieldGroup {
	c := collector{state: state, objectType: objectType, index: map[string]int{}, visited: map[string]bool{}}
	c.collect(selectionSet)
	return c.groups
}

type collector struct {
	state      *executionState
	objectType *schema.Type
	groups     []fieldGroup
	index      map[string]int
	visited    map[string]bool
}

func (c *collector) collect(set language.SelectionSet) {
	for _, selection := range set {
		switch sel := selection.(type) {
		case *language.Field:
			if !c.included(sel.Directives) {
				continue
			}
			name := sel.Alias
			if name == "" {
				name = sel.Name
			}
			if i, ok := c.index[name]; ok {
				c.groups[i].Fields = append(c.groups[i].Fields, sel)
				continue
			}
			c.index[name] = len(c.groups)
			c.groups = append(c.groups, fieldGroup{ResponseName: name, Fields: []*language.Field{sel}})

		case *language.InlineFragment:
			if c.included(sel.Directives) && c.applies(sel.TypeCondition) {
				c.collect(sel.SelectionSet)
			}

		case *language.FragmentSpread:
			if !c.included(sel.Directives) || c.visited[sel.Name] {
				continue
			}
			c.visited[sel.Name] = true
			frag := c.state.document.Fragments.ForName(sel.Name)
			if frag == nil || !c.applies(frag.TypeCondition) || !c.included(frag.Directives) {
				continue
			}
			c.collect(frag.SelectionSet)
		}
	}
}

// applies reports whether a fragment typed on condition selects on the
// collected object type: the type itself, an interface it implements, or a
// union it belongs to.
func (c *collector) applies(condition string) bool {
	if condition == "" || condition == c.objectType.Name {
		return true
	}
	if slices.Contains(c.objectType.Interfaces, condition) {
		return true
	}
	if c.state.schema == nil {
		return false
	}
	abstract := c.state.schema.Types[condition]
	if abstract == nil {
		return false
	}
	switch abstract.Kind {
	case schema.TypeKindUnion, schema.TypeKindInterface:
		return slices.Contains(abstract.PossibleTypes, c.objectType.Name)
	}
	return false
}

// included evaluates @skip and @include.
func (c *collector) included(directives language.DirectiveList) bool {
	if d := directives.ForName("skip"); d != nil && c.condition(d) {
		return false
	}
	if d := directives.ForName("include"); d != nil && !c.condition(d) {
		return false
	}
	return true
}

func (c *collector) condition(d *language.Directive) bool {
	arg := d.Arguments.ForName("if")
	if arg == nil {
		return false
	}
	v, _ := valueFromAST(arg.Value, c.state.variableValues).(bool)
	return v
}
