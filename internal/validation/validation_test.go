package validation

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/hanpama/tracegraph/internal/extension"
	language "github.com/hanpama/tracegraph/internal/language"
)

// Pattern: Result comparison
func TestValidate_Measure(t *testing.T) {
	cases := []struct {
		name  string
		query string
		op    string
		want  extension.ValidationResult
	}{
		{name: "flat", query: `{ a b c }`, want: extension.ValidationResult{Complexity: 3, Depth: 1}},
		{name: "nested", query: `{ a { b { c } } d }`, want: extension.ValidationResult{Complexity: 4, Depth: 3}},
		{
			name:  "fragments expanded at every spread",
			query: `{ x { ...F } y { ...F } } fragment F on T { p q }`,
			want:  extension.ValidationResult{Complexity: 6, Depth: 2},
		},
		{
			name:  "inline fragment keeps depth",
			query: `{ node { ... on User { name } } }`,
			want:  extension.ValidationResult{Complexity: 2, Depth: 2},
		},
		{
			name:  "cyclic fragments",
			query: `{ a { ...A } } fragment A on T { b ...B } fragment B on T { c ...A }`,
			want:  extension.ValidationResult{Complexity: 3, Depth: 2},
		},
		{
			name:  "named operation",
			query: `query One { a } query Two { a { b } }`,
			op:    "Two",
			want:  extension.ValidationResult{Complexity: 2, Depth: 2},
		},
		{name: "ambiguous operation", query: `query One { a } query Two { b }`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			doc, err := language.ParseQuery(tc.query)
			require.NoError(t, err)
			got, errs := Validate(doc, tc.op, Limits{})
			require.Empty(t, errs)
			if diff := cmp.Diff(tc.want, got); diff != "" {
				t.Fatalf("ValidationResult mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestValidate_Limits(t *testing.T) {
	doc, err := language.ParseQuery(`{ a { b { c } } }`)
	require.NoError(t, err)

	got, errs := Validate(doc, "", Limits{MaxDepth: 2})
	require.Equal(t, extension.ValidationResult{Complexity: 3, Depth: 3}, got)
	require.Len(t, errs, 1)
	require.Equal(t, msgTooDeep, language.AsError(errs[0]).Message)

	_, errs = Validate(doc, "", Limits{MaxComplexity: 2})
	require.Len(t, errs, 1)
	require.Equal(t, msgTooComplex, language.AsError(errs[0]).Message)

	_, errs = Validate(doc, "", Limits{MaxDepth: 3, MaxComplexity: 3})
	require.Empty(t, errs)
}
