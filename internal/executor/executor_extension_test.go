package executor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/hanpama/tracegraph/internal/cachecontrol"
	"github.com/hanpama/tracegraph/internal/extension"
	language "github.com/hanpama/tracegraph/internal/language"
	schema "github.com/hanpama/tracegraph/internal/schema"
	"github.com/hanpama/tracegraph/internal/validation"
)

type fieldKey struct{}

// eventLog records hook invocations of every instance created by its factory.
type eventLog struct {
	mu     sync.Mutex
	events []string
	infos  []extension.ResolveInfo
}

func (l *eventLog) add(format string, args ...any) {
	l.mu.Lock()
	l.events = append(l.events, fmt.Sprintf(format, args...))
	l.mu.Unlock()
}

func (l *eventLog) all() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.events...)
}

func (l *eventLog) resolved() []extension.ResolveInfo {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]extension.ResolveInfo(nil), l.infos...)
}

func (l *eventLog) factory() extension.Factory {
	return extension.FactoryFunc(func() extension.Extension { return &logExtension{log: l} })
}

type logExtension struct {
	log *eventLog
}

func (e *logExtension) Start(ctx context.Context) context.Context {
	e.log.add("start")
	return ctx
}
func (e *logExtension) End(context.Context) { e.log.add("end") }
func (e *logExtension) ParseStart(ctx context.Context, source string, _ map[string]any) context.Context {
	e.log.add("parse:%s", source)
	return ctx
}
func (e *logExtension) ParseEnd(_ context.Context, doc *language.QueryDocument) {
	e.log.add("parsed:%t", doc != nil)
}
func (e *logExtension) ValidationStart(ctx context.Context) context.Context {
	e.log.add("validation")
	return ctx
}
func (e *logExtension) ValidationEnd(_ context.Context, r extension.ValidationResult) {
	e.log.add("validated:%d/%d", r.Complexity, r.Depth)
}
func (e *logExtension) ExecutionStart(ctx context.Context) context.Context {
	e.log.add("execution")
	return ctx
}
func (e *logExtension) ExecutionEnd(context.Context) { e.log.add("executed") }
func (e *logExtension) ResolveStart(ctx context.Context, info *extension.ResolveInfo) context.Context {
	e.log.add("resolve:%s#%d^%d", info.Path, info.ID.Current, info.ID.Parent)
	return context.WithValue(ctx, fieldKey{}, info.Path)
}
func (e *logExtension) ResolveEnd(ctx context.Context, info *extension.ResolveInfo) {
	if got, _ := ctx.Value(fieldKey{}).(string); got != info.Path {
		e.log.add("resolved with foreign context %q", got)
	}
	e.log.add("resolved:%s#%d", info.Path, info.ID.Current)
	e.log.mu.Lock()
	e.log.infos = append(e.log.infos, *info)
	e.log.mu.Unlock()
}
func (e *logExtension) Error(_ context.Context, err error) { e.log.add("error:%s", err) }

func objSchema() *schema.Schema {
	return &schema.Schema{
		QueryType: "Query",
		Types: map[string]*schema.Type{
			"Query": {Name: "Query", Kind: schema.TypeKindObject, Fields: []*schema.Field{
				{Name: "a", Type: schema.NamedType("String")},
				{Name: "obj", Type: schema.NamedType("Obj"), Async: true},
			}},
			"Obj": {Name: "Obj", Kind: schema.TypeKindObject, Fields: []*schema.Field{
				{Name: "b", Type: schema.NamedType("String")},
				{Name: "child", Type: schema.NamedType("Obj"), Async: true},
			}},
			"String": {Name: "String", Kind: schema.TypeKindScalar},
		},
	}
}

// Pattern: Result comparison
func TestExecute_LifecycleEvents(t *testing.T) {
	var log eventLog
	rt := NewMockRuntime(map[string]MockResolver{
		"Query.a":   NewMockValueResolver("A"),
		"Query.obj": NewMockValueResolver(map[string]any{}),
		"Obj.b":     NewMockValueResolver("B"),
	})
	exec := NewExecutor(rt, objSchema(), WithExtensions(log.factory()))

	got := exec.Execute(context.Background(), Request{Query: "{ a obj { b } }"})
	want := &ExecutionResult{Data: map[string]any{"a": "A", "obj": map[string]any{"b": "B"}}, Errors: []GraphQLError{}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("ExecutionResult mismatch (-want +got):\n%s", diff)
	}

	wantEvents := []string{
		"start",
		"parse:{ a obj { b } }", "parsed:true",
		"validation", "validated:3/2",
		"execution",
		"resolve:a#1^0", "resolved:a#1",
		"resolve:obj#2^0",
		"resolve:obj.b#3^2", "resolved:obj.b#3",
		"resolved:obj#2",
		"executed",
		"end",
	}
	if diff := cmp.Diff(wantEvents, log.all()); diff != "" {
		t.Fatalf("events mismatch (-want +got):\n%s", diff)
	}
}

// Pattern: Result comparison
func TestExecute_ParentEndsAfterAsyncChildren(t *testing.T) {
	var log eventLog
	sch := objSchema()
	sch.Types["Query"].Fields[1].Async = false
	rt := NewMockRuntime(map[string]MockResolver{
		"Query.obj": NewMockValueResolver(map[string]any{}),
		"Obj.child": NewMockValueResolver(map[string]any{}),
		"Obj.b":     NewMockValueResolver("B"),
	})
	exec := NewExecutor(rt, sch, WithExtensions(log.factory()))

	got := exec.Execute(context.Background(), Request{Query: "{ obj { child { b } } }"})
	require.Empty(t, got.Errors)

	wantEvents := []string{
		"resolve:obj#1^0",
		"resolve:obj.child#2^1",
		"resolve:obj.child.b#3^2", "resolved:obj.child.b#3",
		"resolved:obj.child#2",
		"resolved:obj#1",
	}
	if diff := cmp.Diff(wantEvents, fieldEvents(log.all())); diff != "" {
		t.Fatalf("field events mismatch (-want +got):\n%s", diff)
	}
}

func TestExecute_RuntimeSeesFieldContext(t *testing.T) {
	var log eventLog
	var seen string
	rt := NewMockRuntime(map[string]MockResolver{
		"Query.a": func(ctx context.Context, _ any, _ map[string]any) (any, error) {
			seen, _ = ctx.Value(fieldKey{}).(string)
			return "A", nil
		},
	})
	exec := NewExecutor(rt, objSchema(), WithExtensions(log.factory()))
	exec.Execute(context.Background(), Request{Query: "{ a }"})
	require.Equal(t, "a", seen)
}

func TestExecute_AsyncTasksCarryFieldContext(t *testing.T) {
	var log eventLog
	var mu sync.Mutex
	seen := map[string]bool{}
	see := func(ctx context.Context, _ any, _ map[string]any) (any, error) {
		path, _ := ctx.Value(fieldKey{}).(string)
		mu.Lock()
		seen[path] = true
		mu.Unlock()
		return map[string]any{}, nil
	}
	rt := NewMockRuntime(map[string]MockResolver{"Query.obj": see, "Obj.child": see})
	exec := NewExecutor(rt, objSchema(), WithExtensions(log.factory()))
	exec.Execute(context.Background(), Request{Query: "{ obj { child { b } } }"})
	require.Equal(t, map[string]bool{"obj": true, "obj.child": true}, seen)

	// Without extensions tasks still carry a usable context.
	seen = map[string]bool{}
	NewExecutor(rt, objSchema()).Execute(context.Background(), Request{Query: "{ obj { b } }"})
	require.Equal(t, map[string]bool{"": true}, seen)
}

// Pattern: Result comparison
func TestExecute_ParseFailure(t *testing.T) {
	var log eventLog
	exec := NewExecutor(NewMockRuntime(nil), objSchema(), WithExtensions(log.factory()))

	got := exec.Execute(context.Background(), Request{Query: "{ a "})
	require.Nil(t, got.Data)
	require.Len(t, got.Errors, 1)
	require.Contains(t, got.Errors[0].Extensions, "locations")

	wantEvents := []string{"start", "parse:{ a ", "parsed:false", "end"}
	if diff := cmp.Diff(wantEvents, log.all()); diff != "" {
		t.Fatalf("events mismatch (-want +got):\n%s", diff)
	}
}

// Pattern: Result comparison
func TestExecute_ValidationLimits(t *testing.T) {
	var log eventLog
	rt := NewMockRuntime(nil)
	exec := NewExecutor(rt, objSchema(), WithExtensions(log.factory()), WithLimits(validation.Limits{MaxDepth: 1}))

	got := exec.Execute(context.Background(), Request{Query: "{ obj { b } }"})
	require.Nil(t, got.Data)
	require.Equal(t, "Query is nested too deep.", got.Errors[0].Message)
	require.Empty(t, rt.GetCalls())

	wantEvents := []string{
		"start", "parse:{ obj { b } }", "parsed:true",
		"validation", "validated:2/2",
		"error:Query is nested too deep.",
		"end",
	}
	if diff := cmp.Diff(wantEvents, log.all()); diff != "" {
		t.Fatalf("events mismatch (-want +got):\n%s", diff)
	}
}

func TestExecute_ErrorsReachExtensions(t *testing.T) {
	var log eventLog
	rt := NewMockRuntime(map[string]MockResolver{
		"Query.a":   NewMockErrorResolver(errors.New("a failed")),
		"Query.obj": NewMockErrorResolver(errors.New("obj failed")),
	})
	exec := NewExecutor(rt, objSchema(), WithExtensions(log.factory()))

	got := exec.Execute(context.Background(), Request{Query: "{ a obj { b } }"})
	require.Len(t, got.Errors, 2)

	events := log.all()
	require.Contains(t, events, "error:a failed")
	require.Contains(t, events, "error:obj failed")
	requireBalanced(t, events)
}

func TestExecute_OperationErrorsReachExtensions(t *testing.T) {
	var log eventLog
	exec := NewExecutor(NewMockRuntime(nil), objSchema(), WithExtensions(log.factory()))

	got := exec.Execute(context.Background(), Request{Query: "query A { a } query B { a }", OperationName: "C"})
	require.Equal(t, []GraphQLError{{Message: "operation not found"}}, got.Errors)
	require.Contains(t, log.all(), "error:operation not found")
	require.Equal(t, "end", log.all()[len(log.all())-1])
}

type panickingExtension struct{ extension.Nop }

func (panickingExtension) ResolveStart(context.Context, *extension.ResolveInfo) context.Context {
	panic("observer bug")
}

func TestExecute_PanickingExtensionIsContained(t *testing.T) {
	var log eventLog
	rt := NewMockRuntime(map[string]MockResolver{"Query.a": NewMockValueResolver("A")})
	exec := NewExecutor(rt, objSchema(), WithExtensions(
		extension.FactoryFunc(func() extension.Extension { return panickingExtension{} }),
		log.factory(),
	))

	got := exec.Execute(context.Background(), Request{Query: "{ a }"})
	require.Equal(t, map[string]any{"a": "A"}, got.Data)
	require.Contains(t, log.all(), "resolved:a#1")
}

// listSchema: Query { items: [Item!]! @async } Item { id: String, detail: Detail @async } Detail { x: String, y: String }
func listSchema() *schema.Schema {
	return &schema.Schema{
		QueryType: "Query",
		Types: map[string]*schema.Type{
			"Query": {Name: "Query", Kind: schema.TypeKindObject, Fields: []*schema.Field{
				{Name: "items", Type: schema.NonNullType(schema.ListType(schema.NonNullType(schema.NamedType("Item")))), Async: true},
			}},
			"Item": {Name: "Item", Kind: schema.TypeKindObject, Fields: []*schema.Field{
				{Name: "id", Type: schema.NamedType("String")},
				{Name: "detail", Type: schema.NamedType("Detail"), Async: true},
			}},
			"Detail": {Name: "Detail", Kind: schema.TypeKindObject, Fields: []*schema.Field{
				{Name: "x", Type: schema.NamedType("String")},
				{Name: "y", Type: schema.NamedType("String"), Async: true},
			}},
			"String": {Name: "String", Kind: schema.TypeKindScalar},
		},
	}
}

func listRuntime(n int) *MockRuntime {
	items := make([]any, n)
	for i := range items {
		items[i] = map[string]any{"id": fmt.Sprint(i)}
	}
	return NewMockRuntime(map[string]MockResolver{
		"Query.items": NewMockValueResolver(items),
		"Item.id": func(_ context.Context, source any, _ map[string]any) (any, error) {
			return source.(map[string]any)["id"], nil
		},
		"Item.detail": func(_ context.Context, source any, _ map[string]any) (any, error) {
			return map[string]any{"id": source.(map[string]any)["id"]}, nil
		},
		"Detail.x": NewMockValueResolver("x"),
		"Detail.y": NewMockValueResolver("y"),
	})
}

func TestExecute_ConcurrentSiblingsKeepTheirParents(t *testing.T) {
	const n = 24
	var log eventLog
	exec := NewExecutor(listRuntime(n), listSchema(), WithExtensions(log.factory()), WithConcurrency(8))

	got := exec.Execute(context.Background(), Request{Query: "{ items { id detail { x y } } }"})
	require.Empty(t, got.Errors)
	items := got.Data.(map[string]any)["items"].([]any)
	require.Len(t, items, n)
	for i, item := range items {
		want := map[string]any{"id": fmt.Sprint(i), "detail": map[string]any{"x": "x", "y": "y"}}
		require.Equal(t, want, item)
	}

	events := log.all()
	requireBalanced(t, events)

	// 1 items + n*(id + detail + x + y)
	infos := log.resolved()
	require.Len(t, infos, 1+4*n)
	byPath := make(map[string]extension.ResolveInfo, len(infos))
	for _, info := range infos {
		byPath[info.Path] = info
	}
	for _, info := range infos {
		parentPath := parentFieldPath(info.Path)
		if parentPath == "" {
			require.Zero(t, info.ID.Parent, info.Path)
			continue
		}
		parent, ok := byPath[parentPath]
		require.True(t, ok, "no parent resolution for %s", info.Path)
		require.Equal(t, parent.ID.Current, info.ID.Parent, info.Path)
	}

	// every child ends before its parent
	endedAt := make(map[uint64]int)
	for i, ev := range events {
		if strings.HasPrefix(ev, "resolved:") {
			var id uint64
			fmt.Sscanf(ev[strings.LastIndexByte(ev, '#')+1:], "%d", &id)
			endedAt[id] = i
		}
	}
	for _, info := range infos {
		if info.ID.HasParent() {
			require.Less(t, endedAt[info.ID.Current], endedAt[info.ID.Parent], info.Path)
		}
	}
}

func TestExecute_CancellationReleasesPendingFields(t *testing.T) {
	var log eventLog
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rt := listRuntime(3)
	rt.SetResolver("Query", "items", func(context.Context, any, map[string]any) (any, error) {
		cancel()
		return []any{map[string]any{"id": "0"}, map[string]any{"id": "1"}}, nil
	})
	exec := NewExecutor(rt, listSchema(), WithExtensions(log.factory()))

	got := exec.Execute(ctx, Request{Query: "{ items { id detail { x } } }"})
	require.NotEmpty(t, got.Errors)
	require.Equal(t, context.Canceled.Error(), got.Errors[0].Message)
	require.Equal(t, Path{"items", 0, "detail"}, got.Errors[0].Path)

	items := got.Data.(map[string]any)["items"].([]any)
	require.Equal(t, map[string]any{"id": "0", "detail": nil}, items[0])

	for _, c := range rt.GetCalls() {
		require.NotEqual(t, "detail", c.Field, "no batch may run after cancellation")
	}
	requireBalanced(t, log.all())
	require.Contains(t, log.all(), "resolved:items#1")
}

func TestExecute_NonNullPruningReleasesNodes(t *testing.T) {
	var log eventLog
	sch := listSchema()
	sch.Types["Item"].Fields[0].Type = schema.NonNullType(schema.NamedType("String"))
	rt := listRuntime(2)
	rt.SetResolver("Item", "id", NewMockValueResolver(nil))
	exec := NewExecutor(rt, sch, WithExtensions(log.factory()))

	// detail is queued for the first item before its id fails
	got := exec.Execute(context.Background(), Request{Query: "{ items { detail { x } id } }"})
	require.Equal(t, map[string]any{"items": nil}, got.Data)
	for _, c := range rt.GetCalls() {
		require.NotEqual(t, "detail", c.Field, "pruned task must not reach the runtime")
	}
	requireBalanced(t, log.all())
}

// Pattern: Result comparison
func TestExecute_CacheControl(t *testing.T) {
	sch, err := schema.BuildFromSDL(`
type Query {
  product: Product
  price: Float @cacheControl(maxAge: 30)
  plain: String
  node: Node
  account: Account
}
type Product @cacheControl(maxAge: 60) {
  name: String
  owner: String @cacheControl(scope: PRIVATE)
}
interface Node @cacheControl(maxAge: 10) {
  id: ID
}
type User implements Node {
  id: ID
}
interface Owned {
  id: ID
  secret: String @cacheControl(maxAge: 5, scope: PRIVATE)
}
type Account implements Owned {
  id: ID
  secret: String
}
`)
	require.NoError(t, err)
	rt := NewMockRuntime(map[string]MockResolver{
		"Query.product":  NewMockValueResolver(map[string]any{}),
		"Query.price":    NewMockValueResolver(1.5),
		"Query.plain":    NewMockValueResolver("p"),
		"Product.name":   NewMockValueResolver("n"),
		"Product.owner":  NewMockValueResolver("o"),
		"Query.node":     NewMockValueResolver(map[string]any{"__typename": "User"}),
		"User.id":        NewMockValueResolver("u1"),
		"Query.account":  NewMockValueResolver(map[string]any{}),
		"Account.id":     NewMockValueResolver("a1"),
		"Account.secret": NewMockValueResolver("s"),
	})
	exec := NewExecutor(rt, sch)

	cases := []struct {
		query string
		want  *cachecontrol.CacheControl
	}{
		{query: "{ plain }", want: nil},
		{query: "{ price plain }", want: &cachecontrol.CacheControl{Public: true, MaxAge: 30}},
		{query: "{ product { name } }", want: &cachecontrol.CacheControl{Public: true, MaxAge: 60}},
		{query: "{ price product { name owner } }", want: &cachecontrol.CacheControl{Public: false, MaxAge: 30}},
		{query: "{ node { id } }", want: &cachecontrol.CacheControl{Public: true, MaxAge: 10}},
		{query: "{ account { id } }", want: nil},
		{query: "{ account { id secret } }", want: &cachecontrol.CacheControl{Public: false, MaxAge: 5}},
	}
	for _, tc := range cases {
		t.Run(tc.query, func(t *testing.T) {
			got := exec.Execute(context.Background(), Request{Query: tc.query})
			require.Empty(t, got.Errors)
			if diff := cmp.Diff(tc.want, got.CacheControl); diff != "" {
				t.Fatalf("CacheControl mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func fieldEvents(events []string) []string {
	var out []string
	for _, ev := range events {
		if strings.HasPrefix(ev, "resolve") {
			out = append(out, ev)
		}
	}
	return out
}

// requireBalanced checks that every started field ended exactly once and that
// the request phases closed.
func requireBalanced(t *testing.T, events []string) {
	t.Helper()
	open := make(map[string]int)
	for _, ev := range events {
		switch {
		case strings.HasPrefix(ev, "resolve:"):
			id := ev[strings.LastIndexByte(ev, '#')+1 : strings.LastIndexByte(ev, '^')]
			open[id]++
		case strings.HasPrefix(ev, "resolved:"):
			id := ev[strings.LastIndexByte(ev, '#')+1:]
			open[id]--
		case strings.HasPrefix(ev, "resolved with"):
			t.Fatalf("unexpected event %q", ev)
		}
	}
	for id, n := range open {
		require.Zero(t, n, "resolve id %s is unbalanced", id)
	}
	require.Equal(t, "end", events[len(events)-1])
}

// parentFieldPath strips the last field segment and any list indexes before it.
func parentFieldPath(path string) string {
	parts := strings.Split(path, ".")
	parts = parts[:len(parts)-1]
	for len(parts) > 0 && isIndex(parts[len(parts)-1]) {
		parts = parts[:len(parts)-1]
	}
	return strings.Join(parts, ".")
}

func isIndex(s string) bool {
	_, err := fmt.Sscanf(s, "%d", new(int))
	return err == nil
}
