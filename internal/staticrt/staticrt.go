// Package staticrt is a Runtime that serves a fixed JSON document, so the
// gateway can run, and be traced, without any backend.
//
// Every field resolves by looking its name up in the parent object: root
// fields in the document itself, nested fields in the object returned for the
// parent. Abstract values name their concrete type with a "__typename" entry.
package staticrt

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"time"

	executor "github.com/hanpama/tracegraph/internal/executor"
)

// Runtime resolves fields against a decoded JSON document.
type Runtime struct {
	root    map[string]any
	latency time.Duration
}

var _ executor.Runtime = (*Runtime)(nil)

// Option configures a Runtime.
type Option func(*Runtime)

// WithLatency delays every async batch by d, simulating a remote backend.
func WithLatency(d time.Duration) Option { return func(r *Runtime) { r.latency = d } }

// New returns a Runtime serving root.
func New(root map[string]any, opts ...Option) *Runtime {
	if root == nil {
		root = map[string]any{}
	}
	r := &Runtime{root: root}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Parse decodes a JSON object into a Runtime.
func Parse(data []byte, opts ...Option) (*Runtime, error) {
	var root map[string]any
	if err := json.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("decode fixture: %w", err)
	}
	return New(root, opts...), nil
}

// Load reads and decodes the JSON fixture at path.
func Load(path string, opts ...Option) (*Runtime, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixture: %w", err)
	}
	return Parse(data, opts...)
}

func (r *Runtime) lookup(objectType, field string, source any) (any, error) {
	obj := r.root
	if source != nil {
		m, ok := source.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%s.%s: parent value is %T, not an object", objectType, field, source)
		}
		obj = m
	}
	return obj[field], nil
}

// ResolveSync implements executor.Runtime.
func (r *Runtime) ResolveSync(ctx context.Context, objectType string, field string, source any, args map[string]any) (any, error) {
	return r.lookup(objectType, field, source)
}

// BatchResolveAsync implements executor.Runtime. A cancelled context fails
// every task of the batch.
func (r *Runtime) BatchResolveAsync(ctx context.Context, tasks []executor.AsyncResolveTask) []executor.AsyncResolveResult {
	results := make([]executor.AsyncResolveResult, len(tasks))
	if r.latency > 0 {
		t := time.NewTimer(r.latency)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
		}
	}
	for i, task := range tasks {
		if err := ctx.Err(); err != nil {
			results[i].Error = err
			continue
		}
		results[i].Value, results[i].Error = r.lookup(task.ObjectType, task.Field, task.Source)
	}
	return results
}

// ResolveType implements executor.Runtime.
func (r *Runtime) ResolveType(ctx context.Context, abstractType string, value any) (string, error) {
	if m, ok := value.(map[string]any); ok {
		if name, ok := m["__typename"].(string); ok && name != "" {
			return name, nil
		}
	}
	return "", fmt.Errorf("value of abstract type %s has no __typename", abstractType)
}

// ResolveUnionConcreteValue implements executor.Runtime.
func (r *Runtime) ResolveUnionConcreteValue(ctx context.Context, unionTypeName string, value any) (any, error) {
	return value, nil
}

// ResolveInterfaceConcreteValue implements executor.Runtime.
func (r *Runtime) ResolveInterfaceConcreteValue(ctx context.Context, interfaceTypeName string, value any) (any, error) {
	return value, nil
}

// SerializeLeafValue implements executor.Runtime. JSON numbers decode as
// float64, so Int values are checked and narrowed.
func (r *Runtime) SerializeLeafValue(ctx context.Context, scalarOrEnumTypeName string, value any) (any, error) {
	if scalarOrEnumTypeName != "Int" {
		return value, nil
	}
	switch v := value.(type) {
	case float64:
		if v != math.Trunc(v) || v > math.MaxInt32 || v < math.MinInt32 {
			return nil, fmt.Errorf("Int cannot represent value %v", v)
		}
		return int32(v), nil
	default:
		return value, nil
	}
}
