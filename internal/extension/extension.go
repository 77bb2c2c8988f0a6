// Package extension defines the hook surface through which the executor
// notifies observers of request lifecycle and field resolution events.
//
// # Lifecycle
//
// For a single request the executor emits, in order:
//
//	Start
//	  ParseStart .. ParseEnd
//	  ValidationStart .. ValidationEnd
//	  ExecutionStart
//	    ResolveStart .. ResolveEnd   (once per resolved field, nested and possibly concurrent)
//	  ExecutionEnd
//	End
//
// Error may be emitted at any point after ValidationStart. End is always
// emitted, including when parsing or validation fails or the request context
// is cancelled; it is the last event an instance receives.
//
// # Contexts
//
// Hooks that open a scope return a context.Context. The executor uses the
// returned context for everything nested inside that scope (child events,
// runtime calls), which is how an observer makes its own state "current" for
// the calling goroutine without any global state. Observers that do not care
// return the context unchanged.
//
// # Instances
//
// A Factory produces one Extension per request, so instances may keep
// request-scoped state. Field events for unrelated subtrees of the same request
// may arrive concurrently from different goroutines; instances must guard their
// own state (see Tree).
package extension

import (
	"context"

	language "github.com/hanpama/tracegraph/internal/language"
)

// Extension observes a single request.
type Extension interface {
	Start(ctx context.Context) context.Context
	End(ctx context.Context)

	ParseStart(ctx context.Context, source string, variables map[string]any) context.Context
	// ParseEnd receives a nil document when parsing failed.
	ParseEnd(ctx context.Context, document *language.QueryDocument)

	ValidationStart(ctx context.Context) context.Context
	ValidationEnd(ctx context.Context, result ValidationResult)

	ExecutionStart(ctx context.Context) context.Context
	ExecutionEnd(ctx context.Context)

	ResolveStart(ctx context.Context, info *ResolveInfo) context.Context
	// ResolveEnd is called with the context returned by the matching ResolveStart.
	ResolveEnd(ctx context.Context, info *ResolveInfo)

	Error(ctx context.Context, err error)
}

// Factory creates a fresh Extension for every request.
type Factory interface {
	Create() Extension
}

// FactoryFunc adapts a function to Factory.
type FactoryFunc func() Extension

func (f FactoryFunc) Create() Extension { return f() }

// Nop implements every hook as a no-op. Embed it to implement only the hooks
// an observer cares about.
type Nop struct{}

var _ Extension = Nop{}

func (Nop) Start(ctx context.Context) context.Context { return ctx }
func (Nop) End(context.Context)                       {}

func (Nop) ParseStart(ctx context.Context, _ string, _ map[string]any) context.Context {
	return ctx
}
func (Nop) ParseEnd(context.Context, *language.QueryDocument) {}

func (Nop) ValidationStart(ctx context.Context) context.Context { return ctx }
func (Nop) ValidationEnd(context.Context, ValidationResult)     {}

func (Nop) ExecutionStart(ctx context.Context) context.Context { return ctx }
func (Nop) ExecutionEnd(context.Context)                       {}

func (Nop) ResolveStart(ctx context.Context, _ *ResolveInfo) context.Context { return ctx }
func (Nop) ResolveEnd(context.Context, *ResolveInfo)                         {}

func (Nop) Error(context.Context, error) {}
