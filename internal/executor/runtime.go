package executor

import (
	"context"
)

// Runtime is the resolver backend of the Executor: it produces field values,
// batches async fields, picks concrete types for abstract values and
// serializes leaves.
//
// Depths and batches
//   - Execution is breadth-first. While expanding a depth, synchronous fields
//     are resolved in place through ResolveSync and async fields are queued.
//     BatchResolveAsync then receives the whole queue of that depth in one call,
//     and the next depth starts only after its results have been completed.
//   - ResolveSync is never called for async fields, and BatchResolveAsync is not
//     called with an empty task list.
//   - Tasks beneath a path nullified by a Non-Null violation are dropped before
//     the batch. When the request context is cancelled, the remaining queue is
//     failed with the context error and no further batch is issued.
//
// Contexts
//   - ResolveSync receives the context of the field being resolved. With
//     extensions registered this is the context returned by their ResolveStart
//     hooks, so a tracing backend sees the field's span as current.
//   - BatchResolveAsync receives the request context; each task carries the
//     context of its own field in AsyncResolveTask.Context.
//
// Concurrency
//   - With WithConcurrency(n > 1) the results of one depth are completed by up to
//     n goroutines, so ResolveSync, ResolveType, the concrete value hooks and
//     SerializeLeafValue may be called concurrently within one request.
//     Implementations must be safe for concurrent use and must not mutate
//     source or args values.
//
// Identifiers
//   - objectType is the GraphQL object type name ("User"), the root type name for
//     root fields; field is the field name on that type ("posts").
//   - source is the parent object value (nil for root fields) and args holds the
//     already coerced argument values.
//
// Results
//   - Errors become located GraphQL errors; on a Non-Null field the null
//     propagates to the nearest nullable ancestor.
//   - BatchResolveAsync returns exactly one result per task, in task order.
//     Results fail independently. A short result list is reported as an error
//     and the missing entries resolve to null.
//   - ResolveType returns a possible type of the abstract type.
//   - SerializeLeafValue returns JSON-safe values; enum values are returned by
//     name.
type Runtime interface {
	// ResolveSync resolves a synchronous field value immediately.
	//
	// Called only for fields declared as sync (Async == false). This should
	// perform any required computation synchronously and return the raw value
	// to be completed by the Executor (including nested selection sets).
	// Return (nil, nil) to produce a GraphQL null for nullable fields.
	ResolveSync(ctx context.Context, objectType string, field string, source any, args map[string]any) (any, error)

	// BatchResolveAsync resolves one execution depth of async field tasks.
	//
	// The Executor calls this exactly once per depth with all async tasks
	// collected at that depth (after draining sync paths). Implementations may
	// further batch/group by (objectType, field) or backend-specific keys.
	//
	// Requirements:
	// - Return len(results) == len(tasks).
	// - Results MUST maintain the same order as tasks (results[i] corresponds to tasks[i]).
	// - Return independent errors per element without failing the whole batch.
	BatchResolveAsync(ctx context.Context, tasks []AsyncResolveTask) []AsyncResolveResult

	// ResolveType determines the concrete runtime type name for a value of an
	// abstract GraphQL type (interface or union).
	//
	// Must return a type name that is a possible type of the abstractType in the
	// provided schema; otherwise return an error.
	ResolveType(ctx context.Context, abstractType string, value any) (string, error)

	// ResolveUnionConcreteValue converts a union envelope value into its concrete
	// representation prior to completion.
	ResolveUnionConcreteValue(ctx context.Context, unionTypeName string, value any) (any, error)

	// ResolveInterfaceConcreteValue converts an interface envelope value into its
	// concrete representation prior to completion.
	ResolveInterfaceConcreteValue(ctx context.Context, interfaceTypeName string, value any) (any, error)

	// SerializeLeafValue serializes a scalar or enum value to a JSON-safe Go
	// value according to the GraphQL schema and custom scalar mappings.
	//
	// For enums, return the symbolic name as string. For scalars, return the
	// appropriate Go type (e.g. float64 for Float, int32 for Int unless mapped,
	// string for String/ID, bool for Boolean). For custom scalars, apply any
	// runtime-defined encoding; bytes should be base64-encoded strings.
	SerializeLeafValue(ctx context.Context, scalarOrEnumTypeName string, value any) (any, error)
}

// AsyncResolveTask is one queued async field.
type AsyncResolveTask struct {
	// Context is the context of the field's resolution. It is nil for tasks
	// built outside the Executor; use TaskContext to fall back.
	Context context.Context
	// ObjectType is the parent GraphQL object type name for the field.
	ObjectType string
	// Field is the GraphQL field name to resolve.
	Field string
	// Source is the parent object value (nil for root fields).
	Source any
	// Args are the field arguments, coerced to Go values per the schema.
	Args map[string]any
}

// TaskContext returns t.Context, or fallback when the task has none.
func (t AsyncResolveTask) TaskContext(fallback context.Context) context.Context {
	if t.Context != nil {
		return t.Context
	}
	return fallback
}

// AsyncResolveResult is the outcome of one AsyncResolveTask.
type AsyncResolveResult struct {
	// Value is the resolved raw value prior to completion, or nil on error.
	Value any
	// Error contains a failure specific to this element; other elements in the
	// same batch are unaffected.
	Error error
}
