package executor

import (
	"context"

	"github.com/vektah/gqlparser/v2/gqlerror"

	language "github.com/hanpama/tracegraph/internal/language"
	"github.com/hanpama/tracegraph/internal/validation"
)

// Request is a single GraphQL request as received from a transport.
type Request struct {
	Query         string
	OperationName string
	Variables     map[string]any
	InitialValue  any
}

// Execute parses, validates and executes req, notifying a fresh set of
// extension instances of every phase. End is emitted on every return path,
// including panics raised by the runtime.
func (e *Executor) Execute(ctx context.Context, req Request) *ExecutionResult {
	set := e.extensions.Create(e.logger)
	ctx = set.Start(ctx)
	defer set.End(ctx)

	parseCtx := set.ParseStart(ctx, req.Query, req.Variables)
	doc, err := language.ParseQuery(req.Query)
	if err != nil {
		set.ParseEnd(parseCtx, nil)
		return &ExecutionResult{Errors: []GraphQLError{fromLanguageError(err)}}
	}
	set.ParseEnd(parseCtx, doc)

	validationCtx := set.ValidationStart(ctx)
	summary, errs := validation.Validate(doc, req.OperationName, e.limits)
	set.ValidationEnd(validationCtx, summary)
	if len(errs) > 0 {
		result := &ExecutionResult{Errors: make([]GraphQLError, 0, len(errs))}
		for _, err := range errs {
			gerr := fromLanguageError(err)
			set.Error(ctx, gerr)
			result.Errors = append(result.Errors, gerr)
		}
		return result
	}

	execCtx := set.ExecutionStart(ctx)
	defer set.ExecutionEnd(execCtx)
	return e.execute(execCtx, set, doc, req.OperationName, req.Variables, req.InitialValue)
}

// fromLanguageError converts a parser or validation error, keeping its
// source locations as the "locations" extension.
func fromLanguageError(err error) GraphQLError {
	ge := language.AsError(err)
	out := GraphQLError{Message: ge.Message}
	if len(ge.Locations) > 0 {
		out.Extensions = map[string]any{"locations": locations(ge.Locations)}
	}
	return out
}

func locations(locs []gqlerror.Location) []map[string]int {
	out := make([]map[string]int, len(locs))
	for i, l := range locs {
		out[i] = map[string]int{"line": l.Line, "column": l.Column}
	}
	return out
}
