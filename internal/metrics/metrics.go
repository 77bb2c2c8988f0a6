// Package metrics records GraphQL request and field resolution metrics through
// an OpenTelemetry meter and exposes them to Prometheus.
package metrics

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/hanpama/tracegraph/internal/extension"
)

// InstrumentationName names the meter used by the gateway.
const InstrumentationName = "github.com/hanpama/tracegraph"

// Attribute keys.
const (
	KeyField   = attribute.Key("graphql.field")
	KeyOutcome = attribute.Key("graphql.outcome")
)

type instruments struct {
	requests        metric.Int64Counter
	errors          metric.Int64Counter
	active          metric.Int64UpDownCounter
	requestDuration metric.Float64Histogram
	fieldDuration   metric.Float64Histogram
	complexity      metric.Int64Histogram
	depth           metric.Int64Histogram
}

// NewFactory creates the instruments on meter and returns a factory of
// extensions recording into them.
func NewFactory(meter metric.Meter) (extension.Factory, error) {
	var (
		inst instruments
		err  error
	)
	if inst.requests, err = meter.Int64Counter("graphql.requests.total",
		metric.WithDescription("Total number of GraphQL requests"),
	); err != nil {
		return nil, fmt.Errorf("failed to create request counter: %w", err)
	}
	if inst.errors, err = meter.Int64Counter("graphql.errors.total",
		metric.WithDescription("Total number of GraphQL errors"),
	); err != nil {
		return nil, fmt.Errorf("failed to create error counter: %w", err)
	}
	if inst.active, err = meter.Int64UpDownCounter("graphql.requests.active",
		metric.WithDescription("Number of GraphQL requests in flight"),
	); err != nil {
		return nil, fmt.Errorf("failed to create active requests counter: %w", err)
	}
	if inst.requestDuration, err = meter.Float64Histogram("graphql.request.duration",
		metric.WithDescription("Duration of GraphQL requests in milliseconds"),
		metric.WithUnit("ms"),
	); err != nil {
		return nil, fmt.Errorf("failed to create request duration histogram: %w", err)
	}
	if inst.fieldDuration, err = meter.Float64Histogram("graphql.field.duration",
		metric.WithDescription("Duration of field resolutions, descendants included, in milliseconds"),
		metric.WithUnit("ms"),
	); err != nil {
		return nil, fmt.Errorf("failed to create field duration histogram: %w", err)
	}
	if inst.complexity, err = meter.Int64Histogram("graphql.query.complexity",
		metric.WithDescription("Number of fields selected by GraphQL queries"),
	); err != nil {
		return nil, fmt.Errorf("failed to create query complexity histogram: %w", err)
	}
	if inst.depth, err = meter.Int64Histogram("graphql.query.depth",
		metric.WithDescription("Depth of GraphQL queries"),
	); err != nil {
		return nil, fmt.Errorf("failed to create query depth histogram: %w", err)
	}

	return extension.FactoryFunc(func() extension.Extension {
		return &recorder{inst: &inst, started: extension.NewTree[time.Time]()}
	}), nil
}

type recorder struct {
	extension.Nop
	inst    *instruments
	started *extension.Tree[time.Time]
	failed  atomic.Bool
}

func (r *recorder) Start(ctx context.Context) context.Context {
	r.started.Enter(extension.PhaseSlot(extension.PhaseRequest), time.Now())
	r.inst.active.Add(ctx, 1)
	return ctx
}

func (r *recorder) End(ctx context.Context) {
	begin, ok := r.started.Exit(extension.PhaseSlot(extension.PhaseRequest))
	r.started.Drain()
	if !ok {
		return
	}
	outcome := "ok"
	if r.failed.Load() {
		outcome = "error"
	}
	attrs := metric.WithAttributes(KeyOutcome.String(outcome))
	r.inst.active.Add(ctx, -1)
	r.inst.requests.Add(ctx, 1, attrs)
	r.inst.requestDuration.Record(ctx, millis(time.Since(begin)), attrs)
}

func (r *recorder) ValidationEnd(ctx context.Context, result extension.ValidationResult) {
	r.inst.complexity.Record(ctx, int64(result.Complexity))
	r.inst.depth.Record(ctx, int64(result.Depth))
}

func (r *recorder) ResolveStart(ctx context.Context, info *extension.ResolveInfo) context.Context {
	r.started.Enter(extension.FieldSlot(info.ID.Current), time.Now())
	return ctx
}

func (r *recorder) ResolveEnd(ctx context.Context, info *extension.ResolveInfo) {
	begin, ok := r.started.Exit(extension.FieldSlot(info.ID.Current))
	if !ok {
		return
	}
	r.inst.fieldDuration.Record(ctx, millis(time.Since(begin)),
		metric.WithAttributes(KeyField.String(info.ParentType+"."+info.FieldName)))
}

func (r *recorder) Error(ctx context.Context, err error) {
	r.failed.Store(true)
	r.inst.errors.Add(ctx, 1)
}

func millis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

// Provider is a meter provider backed by a Prometheus registry.
type Provider struct {
	provider *sdkmetric.MeterProvider
	registry *promclient.Registry
}

// Setup creates a meter provider whose metrics are served by Handler.
func Setup() (*Provider, error) {
	registry := promclient.NewRegistry()
	exporter, err := prometheus.New(prometheus.WithRegisterer(registry))
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}
	return &Provider{
		provider: sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter)),
		registry: registry,
	}, nil
}

// Meter returns the gateway meter.
func (p *Provider) Meter() metric.Meter {
	return p.provider.Meter(InstrumentationName)
}

// Handler serves the collected metrics in the Prometheus text format.
func (p *Provider) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}

// Shutdown stops the meter provider.
func (p *Provider) Shutdown(ctx context.Context, logger *slog.Logger) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := p.provider.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shutdown meter provider", slog.String("error", err.Error()))
		return err
	}
	return nil
}
