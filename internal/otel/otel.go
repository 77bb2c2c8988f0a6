// Package otel turns request lifecycle events into OpenTelemetry spans and
// configures the OpenTelemetry providers of the gateway.
//
// The extension opens a span per phase (request, parse, validation, execute)
// and one per resolved field, named by its response path. Field spans are
// parented on the span of the enclosing field, so a trace mirrors the shape
// of the response even when sibling subtrees resolve concurrently.
package otel

import (
	"context"
	"encoding/json"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/baggage"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/hanpama/tracegraph/internal/extension"
	language "github.com/hanpama/tracegraph/internal/language"
	"github.com/hanpama/tracegraph/internal/logging"
)

// Span attribute keys.
const (
	KeySource     = attribute.Key("graphql.source")
	KeyVariables  = attribute.Key("graphql.variables")
	KeyParentType = attribute.Key("graphql.parentType")
	KeyReturnType = attribute.Key("graphql.returnType")
	KeyResolveID  = attribute.Key("graphql.resolveId")
	KeyError      = attribute.Key("graphql.error")
	KeyComplexity = attribute.Key("graphql.complexity")
	KeyDepth      = attribute.Key("graphql.depth")
)

type parentKey struct{}

// ContextWithParent makes parent the request context of the next request
// executed with ctx: the request scope adopts parent's span instead of
// starting a "request" span of its own.
func ContextWithParent(ctx context.Context, parent context.Context) context.Context {
	return context.WithValue(ctx, parentKey{}, parent)
}

func parentFromContext(ctx context.Context) (context.Context, bool) {
	parent, ok := ctx.Value(parentKey{}).(context.Context)
	return parent, ok && parent != nil
}

// rootContext is the parent of spans opened outside any scope of this
// instance. Spans other extensions put on ctx are not inherited; only a
// parent set with ContextWithParent is.
func rootContext(ctx context.Context) context.Context {
	if parent, ok := parentFromContext(ctx); ok {
		return parent
	}
	return trace.ContextWithSpanContext(ctx, trace.SpanContext{})
}

// NewFactory returns a factory of tracing extensions that start spans on
// tracer.
func NewFactory(tracer trace.Tracer) extension.Factory {
	return extension.FactoryFunc(func() extension.Extension {
		return &tracing{tracer: tracer, scopes: extension.NewTree[scope]()}
	})
}

// scope is an open tracing context. span is nil when the scope adopted a
// span it does not own.
type scope struct {
	ctx  context.Context
	span trace.Span
}

type tracing struct {
	extension.Nop
	tracer trace.Tracer
	scopes *extension.Tree[scope]
}

var _ extension.Extension = (*tracing)(nil)

func (t *tracing) Start(ctx context.Context) context.Context {
	if parent, ok := parentFromContext(ctx); ok {
		t.enter(ctx, extension.PhaseSlot(extension.PhaseRequest), scope{ctx: parent})
		if bag := baggage.FromContext(parent); bag.Len() > 0 {
			ctx = baggage.ContextWithBaggage(ctx, bag)
		}
		return trace.ContextWithSpan(ctx, trace.SpanFromContext(parent))
	}
	spanCtx, span := t.tracer.Start(rootContext(ctx), "request", trace.WithSpanKind(trace.SpanKindServer))
	t.enter(ctx, extension.PhaseSlot(extension.PhaseRequest), scope{ctx: spanCtx, span: span})
	return spanCtx
}

func (t *tracing) End(ctx context.Context) {
	t.exit(extension.PhaseSlot(extension.PhaseRequest))
	for _, sc := range t.scopes.Drain() {
		if sc.span == nil {
			continue
		}
		sc.span.SetStatus(codes.Error, "abandoned")
		sc.span.End()
	}
}

func (t *tracing) ParseStart(ctx context.Context, source string, variables map[string]any) context.Context {
	req, ok := t.scopes.Lookup(extension.PhaseSlot(extension.PhaseRequest))
	if !ok {
		return ctx
	}
	attrs := []attribute.KeyValue{KeySource.String(source)}
	if vars, err := encodeVariables(variables); err == nil {
		attrs = append(attrs, KeyVariables.String(vars))
	}
	return t.startPhase(ctx, req.ctx, extension.PhaseParse, "parse", attrs...)
}

func (t *tracing) ParseEnd(ctx context.Context, _ *language.QueryDocument) {
	t.exit(extension.PhaseSlot(extension.PhaseParse))
}

func (t *tracing) ValidationStart(ctx context.Context) context.Context {
	req, ok := t.scopes.Lookup(extension.PhaseSlot(extension.PhaseRequest))
	if !ok {
		return ctx
	}
	return t.startPhase(ctx, req.ctx, extension.PhaseValidation, "validation")
}

func (t *tracing) ValidationEnd(ctx context.Context, result extension.ValidationResult) {
	sc, ok := t.scopes.Exit(extension.PhaseSlot(extension.PhaseValidation))
	if !ok || sc.span == nil {
		return
	}
	sc.span.SetAttributes(
		KeyComplexity.Int(result.Complexity),
		KeyDepth.Int(result.Depth),
	)
	sc.span.End()
}

func (t *tracing) ExecutionStart(ctx context.Context) context.Context {
	parent := rootContext(ctx)
	if req, ok := t.scopes.Lookup(extension.PhaseSlot(extension.PhaseRequest)); ok {
		parent = req.ctx
	}
	return t.startPhase(ctx, parent, extension.PhaseExecution, "execute")
}

func (t *tracing) ExecutionEnd(ctx context.Context) {
	t.exit(extension.PhaseSlot(extension.PhaseExecution))
}

func (t *tracing) ResolveStart(ctx context.Context, info *extension.ResolveInfo) context.Context {
	parent, ok := t.scopes.Lookup(extension.ParentSlot(info.ID))
	if !ok {
		return ctx
	}
	spanCtx, span := t.tracer.Start(parent.ctx, info.Path,
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			KeyResolveID.Int64(int64(info.ID.Current)),
			KeyParentType.String(info.ParentType),
			KeyReturnType.String(info.ReturnType),
		),
	)
	t.enter(ctx, extension.FieldSlot(info.ID.Current), scope{ctx: spanCtx, span: span})
	return trace.ContextWithSpan(ctx, span)
}

func (t *tracing) ResolveEnd(ctx context.Context, info *extension.ResolveInfo) {
	t.exit(extension.FieldSlot(info.ID.Current))
}

func (t *tracing) Error(ctx context.Context, err error) {
	sc, ok := t.scopes.Lookup(extension.PhaseSlot(extension.PhaseExecution))
	if !ok || sc.span == nil {
		return
	}
	sc.span.AddEvent("error", trace.WithAttributes(KeyError.String(err.Error())))
}

func (t *tracing) startPhase(ctx, parent context.Context, phase extension.Phase, name string, attrs ...attribute.KeyValue) context.Context {
	spanCtx, span := t.tracer.Start(parent, name,
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(attrs...),
	)
	t.enter(ctx, extension.PhaseSlot(phase), scope{ctx: spanCtx, span: span})
	return trace.ContextWithSpan(ctx, span)
}

// enter records sc under slot. A scope already open under the same slot is
// closed so its span is not leaked.
func (t *tracing) enter(ctx context.Context, slot extension.Slot, sc scope) {
	prev, replaced := t.scopes.Enter(slot, sc)
	if !replaced {
		return
	}
	if prev.span != nil {
		prev.span.End()
	}
	logging.FromContext(ctx).Warn("tracing scope entered twice", slog.String("slot", slot.String()))
}

func (t *tracing) exit(slot extension.Slot) {
	if sc, ok := t.scopes.Exit(slot); ok && sc.span != nil {
		sc.span.End()
	}
}

func encodeVariables(variables map[string]any) (string, error) {
	if variables == nil {
		return "{}", nil
	}
	b, err := json.Marshal(variables)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
