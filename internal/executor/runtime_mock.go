package executor

import (
	"context"
	"fmt"
	"strings"
	"sync"

	schema "github.com/hanpama/tracegraph/internal/schema"
)

// MockResolver resolves a single field value for MockRuntime. Async tasks
// invoke it with the task's own field context.
type MockResolver func(ctx context.Context, source any, args map[string]any) (any, error)

// Call kinds recorded by MockRuntime.
const (
	CallKindSync  = "sync"
	CallKindAsync = "async"
)

// NewMockValueResolver returns a MockResolver that always returns val.
func NewMockValueResolver(val any) MockResolver {
	return func(context.Context, any, map[string]any) (any, error) { return val, nil }
}

// NewMockErrorResolver returns a MockResolver that always fails with err.
func NewMockErrorResolver(err error) MockResolver {
	return func(context.Context, any, map[string]any) (any, error) { return nil, err }
}

// Call is one recorded field resolution. Async calls of the same
// BatchResolveAsync invocation share a BatchID; sync calls have BatchID 0.
type Call struct {
	Kind       string
	ObjectType string
	Field      string
	Source     any
	Args       map[string]any
	BatchID    int
}

// MockRuntime is a Runtime driven by per-field resolvers keyed
// "ObjectType.field". Fields without a resolver resolve to null. It records
// every call and is safe for concurrent use.
type MockRuntime struct {
	mu        sync.Mutex
	resolvers map[string]MockResolver
	calls     []Call
	batches   int

	typeResolver func(value any) (string, error)
	serializer   func(val any, t schema.TypeRef) (any, error)
}

// NewMockRuntime returns a MockRuntime using resolvers. Abstract values are
// typed by their "__typename" entry and leaves are returned unchanged.
func NewMockRuntime(resolvers map[string]MockResolver) *MockRuntime {
	m := &MockRuntime{
		resolvers:    make(map[string]MockResolver, len(resolvers)),
		typeResolver: typenameOf,
		serializer:   func(val any, _ schema.TypeRef) (any, error) { return val, nil },
	}
	for k, v := range resolvers {
		m.resolvers[k] = v
	}
	return m
}

func typenameOf(value any) (string, error) {
	if obj, ok := value.(map[string]any); ok {
		if name, ok := obj["__typename"].(string); ok {
			return name, nil
		}
	}
	return "", fmt.Errorf("cannot resolve type")
}

// SetResolver registers or replaces the resolver of objectType.field.
func (m *MockRuntime) SetResolver(objectType, field string, resolver MockResolver) {
	m.mu.Lock()
	m.resolvers[objectType+"."+field] = resolver
	m.mu.Unlock()
}

// SetTypeResolver replaces the type resolver of r when it is a *MockRuntime.
func SetTypeResolver(r Runtime, f func(value any) (string, error)) {
	if m, ok := r.(*MockRuntime); ok {
		m.mu.Lock()
		m.typeResolver = f
		m.mu.Unlock()
	}
}

// SetSerializer replaces the leaf serializer of r when it is a *MockRuntime.
func SetSerializer(r Runtime, f func(val any, t schema.TypeRef) (any, error)) {
	if m, ok := r.(*MockRuntime); ok {
		m.mu.Lock()
		m.serializer = f
		m.mu.Unlock()
	}
}

func (m *MockRuntime) resolver(objectType, field string) MockResolver {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.resolvers[objectType+"."+field]
}

func (m *MockRuntime) record(c Call) {
	m.mu.Lock()
	m.calls = append(m.calls, c)
	m.mu.Unlock()
}

func run(ctx context.Context, r MockResolver, source any, args map[string]any) (any, error) {
	if r == nil {
		return nil, nil
	}
	return r(ctx, source, args)
}

// ResolveSync implements Runtime.
func (m *MockRuntime) ResolveSync(ctx context.Context, objectType string, field string, source any, args map[string]any) (any, error) {
	val, err := run(ctx, m.resolver(objectType, field), source, args)
	m.record(Call{Kind: CallKindSync, ObjectType: objectType, Field: field, Source: source, Args: args})
	if err != nil {
		return nil, err
	}
	return val, nil
}

// BatchResolveAsync implements Runtime. Tasks are resolved grouped by
// ObjectType.field in order of first appearance, the way a backend batching
// per field would see them; results keep task order.
func (m *MockRuntime) BatchResolveAsync(ctx context.Context, tasks []AsyncResolveTask) []AsyncResolveResult {
	if len(tasks) == 0 {
		return nil
	}
	m.mu.Lock()
	m.batches++
	batchID := m.batches
	m.mu.Unlock()

	var order []string
	groups := make(map[string][]int)
	for i, t := range tasks {
		key := t.ObjectType + "." + t.Field
		if _, ok := groups[key]; !ok {
			order = append(order, key)
		}
		groups[key] = append(groups[key], i)
	}

	results := make([]AsyncResolveResult, len(tasks))
	for _, key := range order {
		objectType, field := splitKey(key)
		r := m.resolver(objectType, field)
		for _, i := range groups[key] {
			t := tasks[i]
			val, err := run(t.TaskContext(ctx), r, t.Source, t.Args)
			results[i] = AsyncResolveResult{Value: val, Error: err}
			m.record(Call{Kind: CallKindAsync, ObjectType: objectType, Field: field, Source: t.Source, Args: t.Args, BatchID: batchID})
		}
	}
	return results
}

// ResolveType implements Runtime.
func (m *MockRuntime) ResolveType(ctx context.Context, abstractType string, value any) (string, error) {
	m.mu.Lock()
	f := m.typeResolver
	m.mu.Unlock()
	if f == nil {
		return "", fmt.Errorf("type resolver not configured")
	}
	return f(value)
}

// ResolveUnionConcreteValue implements Runtime; values are already concrete.
func (m *MockRuntime) ResolveUnionConcreteValue(ctx context.Context, unionTypeName string, value any) (any, error) {
	return value, nil
}

// ResolveInterfaceConcreteValue implements Runtime; values are already concrete.
func (m *MockRuntime) ResolveInterfaceConcreteValue(ctx context.Context, interfaceTypeName string, value any) (any, error) {
	return value, nil
}

// SerializeLeafValue implements Runtime.
func (m *MockRuntime) SerializeLeafValue(ctx context.Context, scalarOrEnumTypeName string, value any) (any, error) {
	m.mu.Lock()
	f := m.serializer
	m.mu.Unlock()
	if f == nil {
		return value, nil
	}
	return f(value, *schema.NamedType(scalarOrEnumTypeName))
}

// GetCalls returns a copy of the recorded calls in order.
func (m *MockRuntime) GetCalls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Call, len(m.calls))
	copy(out, m.calls)
	return out
}

// Reset forgets recorded calls and restarts batch numbering. Resolvers are
// kept.
func (m *MockRuntime) Reset() {
	m.mu.Lock()
	m.calls = nil
	m.batches = 0
	m.mu.Unlock()
}

func splitKey(key string) (string, string) {
	objectType, field, _ := strings.Cut(key, ".")
	return objectType, field
}
