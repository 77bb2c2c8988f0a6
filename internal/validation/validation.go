// Package validation computes the complexity and depth of an operation and
// enforces the configured limits.
package validation

import (
	"github.com/vektah/gqlparser/v2/gqlerror"

	"github.com/hanpama/tracegraph/internal/extension"
	language "github.com/hanpama/tracegraph/internal/language"
)

const (
	msgTooDeep    = "Query is nested too deep."
	msgTooComplex = "Query is too complex."
)

// Limits bounds an operation. Zero disables a limit.
type Limits struct {
	MaxDepth      int
	MaxComplexity int
}

// Validate measures the operation selected by operationName and checks it
// against limits.
//
// Complexity is the number of selected fields with fragments expanded at
// every spread; depth is the deepest field nesting, counting root fields as
// depth 1. Cyclic fragment spreads are followed once.
func Validate(doc *language.QueryDocument, operationName string, limits Limits) (extension.ValidationResult, []error) {
	var result extension.ValidationResult
	op := selectOperation(doc, operationName)
	if op == nil {
		return result, nil
	}

	result.Complexity, result.Depth = measure(doc, op.SelectionSet, 1, map[string]bool{})

	var errs []error
	if limits.MaxDepth > 0 && result.Depth > limits.MaxDepth {
		errs = append(errs, gqlerror.ErrorPosf(op.Position, msgTooDeep))
	}
	if limits.MaxComplexity > 0 && result.Complexity > limits.MaxComplexity {
		errs = append(errs, gqlerror.ErrorPosf(op.Position, msgTooComplex))
	}
	return result, errs
}

func measure(doc *language.QueryDocument, set language.SelectionSet, depth int, inFlight map[string]bool) (fields, maxDepth int) {
	if len(set) == 0 {
		return 0, depth - 1
	}
	maxDepth = depth
	for _, selection := range set {
		var n, d int
		switch sel := selection.(type) {
		case *language.Field:
			fields++
			if len(sel.SelectionSet) == 0 {
				continue
			}
			n, d = measure(doc, sel.SelectionSet, depth+1, inFlight)
		case *language.InlineFragment:
			n, d = measure(doc, sel.SelectionSet, depth, inFlight)
		case *language.FragmentSpread:
			frag := doc.Fragments.ForName(sel.Name)
			if frag == nil || inFlight[sel.Name] {
				continue
			}
			inFlight[sel.Name] = true
			n, d = measure(doc, frag.SelectionSet, depth, inFlight)
			delete(inFlight, sel.Name)
		}
		fields += n
		if d > maxDepth {
			maxDepth = d
		}
	}
	return fields, maxDepth
}

func selectOperation(doc *language.QueryDocument, name string) *language.OperationDefinition {
	if doc == nil {
		return nil
	}
	if name == "" {
		if len(doc.Operations) == 1 {
			return doc.Operations[0]
		}
		return nil
	}
	return doc.Operations.ForName(name)
}
