package extension

import (
	"context"
	"fmt"
	"log/slog"

	language "github.com/hanpama/tracegraph/internal/language"
)

// Factories is an ordered list of registered factories.
type Factories []Factory

// Create instantiates one extension per factory for a new request. It
// returns nil when no factory is registered.
func (fs Factories) Create(logger *slog.Logger) *Set {
	if len(fs) == 0 {
		return nil
	}
	exts := make([]Extension, 0, len(fs))
	for _, f := range fs {
		if f == nil {
			continue
		}
		if ext := f.Create(); ext != nil {
			exts = append(exts, ext)
		}
	}
	return NewSet(logger, exts...)
}

// Set fans every event out to a request's extension instances in
// registration order. Scope-opening events thread the context returned by
// one instance into the next.
//
// A panicking instance is logged and skipped for that event; the panic never
// reaches the executor. A nil *Set ignores every event.
type Set struct {
	exts   []Extension
	logger *slog.Logger
}

// NewSet returns a Set over exts. A nil logger falls back to slog.Default().
func NewSet(logger *slog.Logger, exts ...Extension) *Set {
	if logger == nil {
		logger = slog.Default()
	}
	return &Set{exts: exts, logger: logger}
}

// Len returns the number of instances.
func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	return len(s.exts)
}

func (s *Set) Start(ctx context.Context) context.Context {
	return s.thread(ctx, "Start", func(e Extension, ctx context.Context) context.Context { return e.Start(ctx) })
}

func (s *Set) End(ctx context.Context) {
	s.each(ctx, "End", func(e Extension) { e.End(ctx) })
}

func (s *Set) ParseStart(ctx context.Context, source string, variables map[string]any) context.Context {
	return s.thread(ctx, "ParseStart", func(e Extension, ctx context.Context) context.Context {
		return e.ParseStart(ctx, source, variables)
	})
}

func (s *Set) ParseEnd(ctx context.Context, document *language.QueryDocument) {
	s.each(ctx, "ParseEnd", func(e Extension) { e.ParseEnd(ctx, document) })
}

func (s *Set) ValidationStart(ctx context.Context) context.Context {
	return s.thread(ctx, "ValidationStart", func(e Extension, ctx context.Context) context.Context {
		return e.ValidationStart(ctx)
	})
}

func (s *Set) ValidationEnd(ctx context.Context, result ValidationResult) {
	s.each(ctx, "ValidationEnd", func(e Extension) { e.ValidationEnd(ctx, result) })
}

func (s *Set) ExecutionStart(ctx context.Context) context.Context {
	return s.thread(ctx, "ExecutionStart", func(e Extension, ctx context.Context) context.Context {
		return e.ExecutionStart(ctx)
	})
}

func (s *Set) ExecutionEnd(ctx context.Context) {
	s.each(ctx, "ExecutionEnd", func(e Extension) { e.ExecutionEnd(ctx) })
}

func (s *Set) ResolveStart(ctx context.Context, info *ResolveInfo) context.Context {
	return s.thread(ctx, "ResolveStart", func(e Extension, ctx context.Context) context.Context {
		return e.ResolveStart(ctx, info)
	})
}

func (s *Set) ResolveEnd(ctx context.Context, info *ResolveInfo) {
	s.each(ctx, "ResolveEnd", func(e Extension) { e.ResolveEnd(ctx, info) })
}

func (s *Set) Error(ctx context.Context, err error) {
	if err == nil {
		return
	}
	s.each(ctx, "Error", func(e Extension) { e.Error(ctx, err) })
}

func (s *Set) thread(ctx context.Context, hook string, fn func(Extension, context.Context) context.Context) context.Context {
	if s == nil {
		return ctx
	}
	for _, e := range s.exts {
		ctx = s.call(ctx, hook, e, fn)
	}
	return ctx
}

func (s *Set) call(ctx context.Context, hook string, e Extension, fn func(Extension, context.Context) context.Context) (out context.Context) {
	out = ctx
	defer s.recoverHook(ctx, hook, e)
	if next := fn(e, ctx); next != nil {
		out = next
	}
	return out
}

func (s *Set) each(ctx context.Context, hook string, fn func(Extension)) {
	if s == nil {
		return
	}
	for _, e := range s.exts {
		func() {
			defer s.recoverHook(ctx, hook, e)
			fn(e)
		}()
	}
}

func (s *Set) recoverHook(ctx context.Context, hook string, e Extension) {
	if r := recover(); r != nil {
		s.logger.WarnContext(ctx, "extension hook panicked",
			slog.String("hook", hook),
			slog.String("extension", fmt.Sprintf("%T", e)),
			slog.Any("panic", r),
		)
	}
}
