// Package executor implements a breadth-first, batch-friendly GraphQL executor
// that reports every request phase and field resolution to extensions.
//
// # Entry points
//
// Execute runs a request end to end: it parses the query, measures it against
// the configured limits, and executes the selected operation, notifying a
// fresh extension.Set of each phase (Start, Parse, Validation, Execution,
// End). ExecuteRequest executes an already parsed document and emits no
// events; it is what the tests of the completion rules drive directly.
//
// # Execution model
//
// Fields are either synchronous (schema.Field.Async == false) or async.
// Synchronous fields are resolved through Runtime.ResolveSync and completed
// immediately, so a purely synchronous descent never adds depth. Async fields
// met while expanding a depth are queued and resolved with a single
// Runtime.BatchResolveAsync call once that depth has been expanded; their
// async children go to the next batch. For an operation with async depth d,
// BatchResolveAsync is called exactly d times.
//
// Value completion follows GraphQL: Non-Null unwraps and propagates null to
// the nearest nullable ancestor, lists complete per element with index paths,
// leaves go through Runtime.SerializeLeafValue, and abstract values through
// Runtime.ResolveType. A Non-Null violation tombstones the nullified path and
// queued tasks beneath it are dropped before the next batch.
//
// # Field events
//
// With extensions registered, every resolved field gets a ResolveID. Its
// Current value comes from a per-request counter starting at 1; Parent is the
// enclosing field's id, or 0 at the operation root. ResolveStart is emitted
// when a synchronous field starts resolving, or when an async field is handed
// to the batch. ResolveEnd is emitted only once the field's own value is
// complete and every descendant has ended, so events nest even when children
// resolve in later batches. Dropped and cancelled tasks still release their
// ancestors.
//
// # Concurrency and cancellation
//
// WithConcurrency(n) completes up to n async results of one depth in parallel;
// sibling subtrees then emit field events from different goroutines. The
// default completes results in task order. A cancelled context stops the loop
// before the next batch: each queued field is failed with the context error.
//
// # Cache control
//
// Every resolved field merges the @cacheControl hints of its parent type and
// of the field itself into ExecutionResult.CacheControl.
package executor
