package executor

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"

	language "github.com/hanpama/tracegraph/internal/language"
	schema "github.com/hanpama/tracegraph/internal/schema"
)

func mustParseQuery(t *testing.T, q string) *language.QueryDocument {
	t.Helper()
	d, err := language.ParseQuery(q)
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	return d
}

func mustBuildSchema(t *testing.T, sdl string) *schema.Schema {
	t.Helper()
	sch, err := schema.BuildFromSDL(sdl)
	if err != nil {
		t.Fatalf("schema error: %v", err)
	}
	return sch
}

// execCase executes query against a schema built from sdl. Fields of the
// root operation type and fields marked @async go through BatchResolveAsync.
type execCase struct {
	name      string
	sdl       string
	resolvers map[string]MockResolver
	setup     func(rt *MockRuntime)
	query     string
	operation string
	variables map[string]any

	want *ExecutionResult
	// calls is compared only when set.
	calls []Call
}

func runExecCases(t *testing.T, cases []execCase) {
	t.Helper()
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rt := NewMockRuntime(tc.resolvers)
			if tc.setup != nil {
				tc.setup(rt)
			}
			exec := NewExecutor(rt, mustBuildSchema(t, tc.sdl))

			got := exec.ExecuteRequest(context.Background(), mustParseQuery(t, tc.query), tc.operation, tc.variables, nil)
			if diff := cmp.Diff(tc.want, got); diff != "" {
				t.Fatalf("ExecutionResult mismatch (-want +got):\n%s", diff)
			}
			if tc.calls == nil {
				return
			}
			if diff := cmp.Diff(tc.calls, rt.GetCalls()); diff != "" {
				t.Fatalf("Runtime calls mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func syncCall(objectType, field string, source any) Call {
	return Call{Kind: CallKindSync, ObjectType: objectType, Field: field, Source: source, Args: map[string]any{}}
}

func asyncCall(batch int, objectType, field string, source any) Call {
	return Call{Kind: CallKindAsync, ObjectType: objectType, Field: field, Source: source, Args: map[string]any{}, BatchID: batch}
}

func data(d map[string]any, errs ...GraphQLError) *ExecutionResult {
	if errs == nil {
		errs = []GraphQLError{}
	}
	return &ExecutionResult{Data: d, Errors: errs}
}

func failed(message string) *ExecutionResult {
	return &ExecutionResult{Errors: []GraphQLError{{Message: message}}}
}
