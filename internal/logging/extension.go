package logging

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/hanpama/tracegraph/internal/extension"
	language "github.com/hanpama/tracegraph/internal/language"
	"github.com/hanpama/tracegraph/internal/reqid"
)

// NewFactory returns a factory of extensions that log request outcomes with
// the logger carried by the request context.
//
// Parse and validation failures and every reported error are logged at warn.
// Each request ends with a debug record of its duration, complexity and depth.
func NewFactory() extension.Factory {
	return extension.FactoryFunc(func() extension.Extension { return &requestLog{} })
}

type requestLog struct {
	extension.Nop

	mu        sync.Mutex
	begin     time.Time
	validated extension.ValidationResult
	parsed    bool
	errors    int
}

func (l *requestLog) Start(ctx context.Context) context.Context {
	l.mu.Lock()
	l.begin = time.Now()
	l.mu.Unlock()
	return ctx
}

func (l *requestLog) ParseEnd(ctx context.Context, doc *language.QueryDocument) {
	l.mu.Lock()
	l.parsed = doc != nil
	l.mu.Unlock()
	if doc == nil {
		logger(ctx).Warn("graphql query could not be parsed")
	}
}

func (l *requestLog) ValidationEnd(ctx context.Context, result extension.ValidationResult) {
	l.mu.Lock()
	l.validated = result
	l.mu.Unlock()
}

func (l *requestLog) Error(ctx context.Context, err error) {
	l.mu.Lock()
	l.errors++
	l.mu.Unlock()
	logger(ctx).Warn("graphql error", slog.String("error", err.Error()))
}

func (l *requestLog) End(ctx context.Context) {
	l.mu.Lock()
	defer l.mu.Unlock()
	logger(ctx).Debug("graphql request completed",
		slog.Bool("parsed", l.parsed),
		slog.Int("complexity", l.validated.Complexity),
		slog.Int("depth", l.validated.Depth),
		slog.Int("errors", l.errors),
		slog.Duration("duration", time.Since(l.begin)),
	)
}

// logger returns the request logger of ctx, which already carries the
// request id. Without one, the default logger is tagged with the id instead.
func logger(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok && l != nil {
		return l
	}
	l := slog.Default()
	if id, ok := reqid.FromContext(ctx); ok {
		l = l.With(slog.String("request_id", id))
	}
	return l
}
