package executor

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/hanpama/tracegraph/internal/cachecontrol"
	"github.com/hanpama/tracegraph/internal/extension"
	language "github.com/hanpama/tracegraph/internal/language"
	schema "github.com/hanpama/tracegraph/internal/schema"
	"github.com/hanpama/tracegraph/internal/validation"
)

type Path []PathElement

type PathElement any

type NodeID uint64

// executionState holds the state during query execution.
//
// Fields below mu may be touched by concurrent completions of one depth and
// are only accessed through the helper methods holding mu.
type executionState struct {
	runtime        Runtime
	schema         *schema.Schema
	document       *language.QueryDocument
	variableValues map[string]any
	context        context.Context
	// extension fan-out; nil when no extension is registered
	set *extension.Set
	// source of ResolveID.Current
	resolveSeq atomic.Uint64

	mu             sync.Mutex
	asyncTaskGroup []asyncTask
	errors         []GraphQLError
	// Store async tasks by ID for completion
	asyncTaskInfo map[NodeID]asyncTask
	// simple incremental id generator
	nextID uint64
	// prefixes of paths that have been nullified (tombstoned)
	nullifiedPrefix map[string]struct{}
	// merged hints of every resolved field; nil until a hint is seen
	cacheControl *cachecontrol.CacheControl
}

// asyncTask represents a pending async field resolution
type asyncTask struct {
	ID           NodeID
	Task         AsyncResolveTask
	ResponsePath Path
	FieldType    *schema.TypeRef
	Fields       []*language.Field
	node         *fieldNode
}

type asyncPending struct{}

type Executor struct {
	runtime     Runtime
	schema      *schema.Schema
	extensions  extension.Factories
	concurrency int
	limits      validation.Limits
	logger      *slog.Logger
}

// Option configures an Executor.
type Option func(*Executor)

// WithExtensions registers extension factories. Each request gets a fresh
// instance from every factory, notified in registration order.
func WithExtensions(factories ...extension.Factory) Option {
	return func(e *Executor) { e.extensions = append(e.extensions, factories...) }
}

// WithConcurrency completes up to n async results of one depth in parallel.
// The default of 1 completes them sequentially in task order.
func WithConcurrency(n int) Option {
	return func(e *Executor) {
		if n < 1 {
			n = 1
		}
		e.concurrency = n
	}
}

// WithLimits sets the depth and complexity limits enforced by Execute.
func WithLimits(limits validation.Limits) Option {
	return func(e *Executor) { e.limits = limits }
}

// WithLogger sets the logger used for extension failures.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Executor) { e.logger = logger }
}

func NewExecutor(runtime Runtime, schema *schema.Schema, opts ...Option) *Executor {
	e := &Executor{runtime: runtime, schema: schema, concurrency: 1, logger: slog.Default()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ExecuteRequest executes an already parsed document without notifying
// extensions.
func (e *Executor) ExecuteRequest(
	ctx context.Context,
	document *language.QueryDocument,
	operationName string,
	variableValues map[string]any,
	initialValue any,
) *ExecutionResult {
	return e.execute(ctx, nil, document, operationName, variableValues, initialValue)
}

func (e *Executor) execute(
	ctx context.Context,
	set *extension.Set,
	document *language.QueryDocument,
	operationName string,
	variableValues map[string]any,
	initialValue any,
) *ExecutionResult {
	fail := func(message string) *ExecutionResult {
		err := GraphQLError{Message: message}
		set.Error(ctx, err)
		return &ExecutionResult{Errors: []GraphQLError{err}}
	}

	operation := getOperation(document, operationName)
	if operation == nil {
		return fail("operation not found")
	}

	coercedVariableValues, err := coerceVariableValues(e.schema, operation, variableValues)
	if err != nil {
		return fail(err.Error())
	}

	var rootType *schema.Type
	switch operation.Operation {
	case language.Query:
		rootType = e.schema.GetQueryType()
	case language.Mutation:
		rootType = e.schema.GetMutationType()
	case language.Subscription:
		rootType = e.schema.GetSubscriptionType()
	default:
		return fail(fmt.Sprintf("unsupported operation type: %s", operation.Operation))
	}

	if rootType == nil {
		return fail(fmt.Sprintf("root type not found for %s operation", operation.Operation))
	}

	state := &executionState{
		runtime:         e.runtime,
		schema:          e.schema,
		document:        document,
		variableValues:  coercedVariableValues,
		context:         ctx,
		set:             set,
		asyncTaskGroup:  []asyncTask{},
		errors:          []GraphQLError{},
		asyncTaskInfo:   make(map[NodeID]asyncTask),
		nextID:          1,
		nullifiedPrefix: make(map[string]struct{}),
	}

	responseRoot := make(map[string]any)

	// Root selection set: sync immediate expansion, async queued
	rootResult := executeSelectionSet(state, nil, rootType, operation.SelectionSet, initialValue, Path{})
	for k, v := range rootResult {
		responseRoot[k] = v
	}

	// Depth-wise batch loop
	for state.pendingTasks() > 0 {
		if err := ctx.Err(); err != nil {
			abandonAsyncTasks(state, err, responseRoot)
			break
		}
		filtered, results := flushAsyncTasks(state)
		completeAsyncFields(state, e.concurrency, filtered, results, responseRoot)
	}

	return &ExecutionResult{Data: responseRoot, Errors: state.errors, CacheControl: state.cacheControl}
}

// executeSelectionSet executes a selection set without flushing
func executeSelectionSet(state *executionState, parent *fieldNode, objectType *schema.Type, selectionSet language.SelectionSet, objectValue any, path Path) map[string]any {
	resultMap := make(map[string]any)

	for _, group := range collectFields(state, objectType, selectionSet) {
		responseName := group.ResponseName
		fields := group.Fields
		fieldPath := appendPath(path, responseName)

		fieldResult := executeFieldGroup(state, parent, objectType, objectValue, fields, fieldPath)

		// Handle __typename special case
		if fields[0].Name == "__typename" {
			resultMap[responseName] = fieldResult
			continue
		}

		fieldDef := objectType.Field(fields[0].Name)
		if fieldDef == nil {
			// Unknown field – error was already recorded in executeFieldGroup; do not include it
			continue
		}

		// Handle non-null child behavior with nullish detection
		if schema.IsNonNull(fieldDef.Type) && isNullish(fieldResult) {
			if len(path) > 0 {
				return nil
			}
			// Root level: keep going but write nil
			resultMap[responseName] = nil
			continue
		}

		// For nullable fields, coerce typed-nil to interface-nil
		if isNullish(fieldResult) {
			resultMap[responseName] = nil
		} else {
			resultMap[responseName] = fieldResult
		}
	}

	return resultMap
}

func executeFieldGroup(state *executionState, parent *fieldNode, objectType *schema.Type, objectValue any, fields []*language.Field, path Path) any {
	field := fields[0]
	fieldName := field.Name

	// Handle __typename meta field
	if fieldName == "__typename" {
		return objectType.Name
	}

	fieldDef := objectType.Field(fieldName)
	if fieldDef == nil {
		state.addError(fmt.Sprintf("Cannot query field '%s' on type '%s'", fieldName, objectType.Name), path)
		return nil
	}

	state.mergeCacheHints(objectType.CacheControl, fieldDef.CacheControl)
	state.mergeInterfaceHints(objectType, fieldName)

	argumentValues := coerceArgumentValues(fieldDef, field.Arguments, state.variableValues, state, path)

	node := newFieldNode(state, parent, objectType, fieldDef, path)
	if !fieldDef.Async {
		node.start(state)
		defer node.release(state)
		resolvedValue := resolveSyncField(state, node.context(state), objectType.Name, fieldName, objectValue, argumentValues, path)
		return completeValue(state, node, fieldDef.Type, fields, resolvedValue, path)
	}

	state.enqueue(asyncTask{
		Task: AsyncResolveTask{
			ObjectType: objectType.Name,
			Field:      fieldName,
			Source:     objectValue,
			Args:       argumentValues,
		},
		ResponsePath: path,
		FieldType:    fieldDef.Type,
		Fields:       fields,
		node:         node,
	})
	return asyncPending{}
}

// flushAsyncTasks flushes tasks and returns results (filtered by tombstones)
func flushAsyncTasks(state *executionState) ([]asyncTask, []AsyncResolveResult) {
	group := state.takeAsyncTasks()

	// Filter out tasks under nullified prefixes
	filtered := make([]asyncTask, 0, len(group))
	for _, at := range group {
		if state.hasNullifiedPrefix(at.ResponsePath) {
			// Drop this task; also forget it for completion
			state.forgetAsyncTask(at.ID)
			at.node.release(state)
			continue
		}
		filtered = append(filtered, at)
	}
	if len(filtered) == 0 {
		return nil, nil
	}

	// Extract tasks
	tasks := make([]AsyncResolveTask, len(filtered))
	for i, at := range filtered {
		at.node.start(state)
		tasks[i] = at.Task
		tasks[i].Context = at.node.context(state)
	}

	// Execute batch
	results := state.runtime.BatchResolveAsync(state.context, tasks)
	return filtered, results
}

// completeAsyncFields completes one depth of results, sequentially or with up
// to concurrency goroutines.
func completeAsyncFields(state *executionState, concurrency int, tasks []asyncTask, results []AsyncResolveResult, responseRoot map[string]any) {
	if len(results) != len(tasks) {
		state.addError(fmt.Sprintf("runtime returned %d results for %d async tasks", len(results), len(tasks)), nil)
	}
	result := func(i int) AsyncResolveResult {
		if i < len(results) {
			return results[i]
		}
		return AsyncResolveResult{}
	}

	if concurrency <= 1 || len(tasks) < 2 {
		for i, at := range tasks {
			completeAsyncField(state, at, result(i), responseRoot)
		}
		return
	}

	var g errgroup.Group
	g.SetLimit(concurrency)
	for i, at := range tasks {
		res := result(i)
		g.Go(func() error {
			completeAsyncField(state, at, res, responseRoot)
			return nil
		})
	}
	_ = g.Wait()
}

// abandonAsyncTasks fails every queued task with the cancellation cause so
// their placeholders are nulled and their resolve nodes released.
func abandonAsyncTasks(state *executionState, cause error, responseRoot map[string]any) {
	for _, at := range state.takeAsyncTasks() {
		completeAsyncField(state, at, AsyncResolveResult{Error: cause}, responseRoot)
	}
}

// completeAsyncField completes a single async result, with non-null propagation and pruning
func completeAsyncField(state *executionState, at asyncTask, res AsyncResolveResult, responseRoot map[string]any) {
	state.forgetAsyncTask(at.ID)
	defer at.node.release(state)

	path := at.ResponsePath
	// If this path is already nullified by an ancestor, ignore
	if state.hasNullifiedPrefix(path) {
		return
	}

	// Handle error case first
	if res.Error != nil {
		state.addError(res.Error.Error(), path)
		// If non-null field, propagate to top-level field
		if schema.IsNonNull(at.FieldType) {
			state.nullify(responseRoot, topLevelFieldPath(path))
			return
		}
		state.setValueAtPath(responseRoot, path, nil)
		return
	}

	completed := completeValue(state, at.node, at.FieldType, at.Fields, res.Value, path)

	// If non-null type but completion yielded nullish → propagate
	if schema.IsNonNull(at.FieldType) && isNullish(completed) {
		state.nullify(responseRoot, topLevelFieldPath(path))
		return
	}

	// Normal write; coerce typed-nil to interface nil
	if isNullish(completed) {
		state.setValueAtPath(responseRoot, path, nil)
	} else {
		state.setValueAtPath(responseRoot, path, completed)
	}
}

// completeValue completes a value
func completeValue(state *executionState, node *fieldNode, fieldType *schema.TypeRef, fields []*language.Field, result any, path Path) any {
	if schema.IsNonNull(fieldType) {
		if isNullish(result) {
			if !state.hasErrorAtPath(path) {
				state.addError(fmt.Sprintf("Cannot return null for non-nullable field %s", pathToString(path)), path)
			}
			return nil
		}
		inner := schema.Unwrap(fieldType)
		completed := completeValue(state, node, inner, fields, result, path)
		if isNullish(completed) {
			// Error already recorded at original path; propagate only
			return nil
		}
		return completed
	}

	if isNullish(result) {
		return nil
	}

	if schema.IsList(fieldType) {
		return completeListValue(state, node, fieldType, fields, result, path)
	}
	namedType := schema.GetNamedType(fieldType)
	typeObj := state.schema.Types[namedType]
	if typeObj == nil {
		state.addError(fmt.Sprintf("Unknown type: %s", namedType), path)
		return nil
	}

	switch typeObj.Kind {
	case schema.TypeKindScalar, schema.TypeKindEnum:
		serialized, err := state.runtime.SerializeLeafValue(node.context(state), namedType, result)
		if err != nil {
			state.addError(err.Error(), path)
			return nil
		}
		return serialized
	case schema.TypeKindObject:
		return completeObjectValue(state, node, typeObj, fields, result, path)
	case schema.TypeKindInterface, schema.TypeKindUnion:
		return completeAbstractValue(state, node, namedType, fields, result, path)
	default:
		state.addError(fmt.Sprintf("Cannot complete value of unexpected type: %s", typeObj.Kind), path)
		return nil
	}
}

// completeListValue completes a list value
func completeListValue(state *executionState, node *fieldNode, listType *schema.TypeRef, fields []*language.Field, result any, path Path) any {
	var items []any
	if direct, ok := result.([]any); ok {
		items = direct
	} else {
		rv := reflect.ValueOf(result)
		if rv.Kind() != reflect.Slice {
			state.addError(fmt.Sprintf("Expected list value, got %T", result), path)
			return nil
		}
		items = make([]any, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			items[i] = rv.Index(i).Interface()
		}
	}

	inner := schema.Unwrap(listType)
	completed := make([]any, len(items))
	for i, item := range items {
		p := appendPath(path, i)
		v := completeValue(state, node, inner, fields, item, p)
		if schema.IsNonNull(inner) && isNullish(v) {
			// Propagate null to the list field; error already recorded by inner completion
			return nil
		}
		completed[i] = v
	}
	return completed
}

func completeObjectValue(state *executionState, node *fieldNode, objectType *schema.Type, fields []*language.Field, result any, path Path) any {
	sub := mergeSelectionSets(fields)
	return executeSelectionSet(state, node, objectType, sub, result, path)
}

func completeAbstractValue(state *executionState, node *fieldNode, abstractTypeName string, fields []*language.Field, result any, path Path) any {
	typeName, err := state.runtime.ResolveType(node.context(state), abstractTypeName, result)
	if err != nil {
		state.addError(err.Error(), path)
		return nil
	}
	objectType := state.schema.Types[typeName]
	if objectType == nil || objectType.Kind != schema.TypeKindObject {
		state.addError(fmt.Sprintf("Abstract type %s must resolve to an Object type at runtime. Got: %s", abstractTypeName, typeName), path)
		return nil
	}
	return completeObjectValue(state, node, objectType, fields, result, path)
}

func pathToString(path Path) string {
	result := ""
	for i, elem := range path {
		if i > 0 {
			result += "."
		}
		switch v := elem.(type) {
		case string:
			result += v
		case int:
			result += fmt.Sprintf("[%d]", v)
		}
	}
	return result
}

func appendPath(path Path, elem PathElement) Path {
	newPath := make(Path, len(path)+1)
	copy(newPath, path)
	newPath[len(path)] = elem
	return newPath
}

// Prefix tombstone helpers
func (s *executionState) markNullifiedPrefix(p Path) {
	key := pathToString(p)
	if key != "" {
		s.mu.Lock()
		s.nullifiedPrefix[key] = struct{}{}
		s.mu.Unlock()
	}
}

func (s *executionState) hasNullifiedPrefix(p Path) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.nullifiedPrefix) == 0 {
		return false
	}
	// Build prefixes progressively
	cur := Path{}
	for _, elem := range p {
		cur = append(cur, elem)
		key := pathToString(cur)
		if _, ok := s.nullifiedPrefix[key]; ok {
			return true
		}
	}
	return false
}

// nullify writes null at top and tombstones it so queued descendants are pruned.
func (s *executionState) nullify(responseRoot map[string]any, top Path) {
	s.setValueAtPath(responseRoot, top, nil)
	s.markNullifiedPrefix(top)
}

func (s *executionState) enqueue(at asyncTask) {
	s.mu.Lock()
	at.ID = NodeID(s.nextID)
	s.nextID++
	s.asyncTaskGroup = append(s.asyncTaskGroup, at)
	if s.asyncTaskInfo != nil {
		s.asyncTaskInfo[at.ID] = at
	}
	s.mu.Unlock()
}

// takeAsyncTasks returns the queued tasks and clears the queue.
func (s *executionState) takeAsyncTasks() []asyncTask {
	s.mu.Lock()
	defer s.mu.Unlock()
	group := s.asyncTaskGroup
	s.asyncTaskGroup = nil
	return group
}

func (s *executionState) pendingTasks() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.asyncTaskGroup)
}

func (s *executionState) forgetAsyncTask(id NodeID) {
	s.mu.Lock()
	delete(s.asyncTaskInfo, id)
	s.mu.Unlock()
}

func (s *executionState) mergeCacheHints(hints ...*cachecontrol.CacheControl) {
	for _, h := range hints {
		if h == nil {
			continue
		}
		s.mu.Lock()
		if s.cacheControl == nil {
			cc := cachecontrol.Default()
			s.cacheControl = &cc
		}
		*s.cacheControl = s.cacheControl.Merge(*h)
		s.mu.Unlock()
	}
}

// mergeInterfaceHints merges the hints of the interfaces objectType
// implements and of their definitions of field.
func (s *executionState) mergeInterfaceHints(objectType *schema.Type, field string) {
	for _, name := range objectType.Interfaces {
		iface := s.schema.Types[name]
		if iface == nil {
			continue
		}
		s.mergeCacheHints(iface.CacheControl)
		if def := iface.Field(field); def != nil {
			s.mergeCacheHints(def.CacheControl)
		}
	}
}

func topLevelFieldPath(p Path) Path {
	for _, elem := range p {
		if name, ok := elem.(string); ok {
			return Path{name}
		}
	}
	return Path{}
}

// getOperation retrieves the operation from the document
func getOperation(document *language.QueryDocument, operationName string) *language.OperationDefinition {
	if operationName == "" && len(document.Operations) == 1 {
		for _, op := range document.Operations {
			return op
		}
	}
	for _, op := range document.Operations {
		if op.Name == operationName {
			return op
		}
	}
	return nil
}

func typeRefFromAST(t *language.Type) *schema.TypeRef {
	if t == nil {
		return nil
	}
	if t.NonNull {
		return schema.NonNullType(typeRefFromAST(&language.Type{NamedType: t.NamedType, Elem: t.Elem}))
	}
	if t.NamedType != "" {
		return schema.NamedType(t.NamedType)
	}
	if t.Elem != nil {
		return schema.ListType(typeRefFromAST(t.Elem))
	}
	return nil
}

// addError records a located error and reports it to the extensions.
func (state *executionState) addError(message string, path Path) {
	err := GraphQLError{Message: message, Path: path}
	state.mu.Lock()
	state.errors = append(state.errors, err)
	state.mu.Unlock()
	state.set.Error(state.context, err)
}

// hasErrorAtPath reports whether an error with the given path already exists.
func (state *executionState) hasErrorAtPath(path Path) bool {
	state.mu.Lock()
	defer state.mu.Unlock()
	for _, err := range state.errors {
		if reflect.DeepEqual(err.Path, path) {
			return true
		}
	}
	return false
}

// resolveSyncField resolves a field synchronously
func resolveSyncField(state *executionState, ctx context.Context, objectType string, fieldName string, source any, args map[string]any, path Path) any {
	value, err := state.runtime.ResolveSync(ctx, objectType, fieldName, source, args)
	if err != nil {
		state.addError(err.Error(), path)
		return nil
	}
	return value
}

func (state *executionState) setValueAtPath(responseRoot map[string]any, path Path, value any) {
	state.mu.Lock()
	setValueAtPath(responseRoot, path, value)
	state.mu.Unlock()
}

// Helper function to set value at a specific path in response tree
func setValueAtPath(responseRoot map[string]any, path Path, value any) {
	if len(path) == 0 {
		return
	}
	if len(path) == 1 {
		if key, ok := path[0].(string); ok {
			responseRoot[key] = value
			return
		}
	}
	current := any(responseRoot)
	for _, elem := range path[:len(path)-1] {
		switch e := elem.(type) {
		case string:
			m, ok := current.(map[string]any)
			if !ok {
				return
			}
			next, exists := m[e]
			if !exists {
				next = make(map[string]any)
				m[e] = next
			}
			current = next
		case int:
			slice, ok := current.([]any)
			if !ok {
				return
			}
			for len(slice) <= e {
				slice = append(slice, nil)
			}
			if slice[e] == nil {
				slice[e] = make(map[string]any)
			}
			current = slice[e]
		}
	}
	finalElem := path[len(path)-1]
	switch fe := finalElem.(type) {
	case string:
		if m, ok := current.(map[string]any); ok {
			m[fe] = value
		}
	case int:
		if slice, ok := current.([]any); ok {
			for len(slice) <= fe {
				slice = append(slice, nil)
			}
			slice[fe] = value
		}
	}
}

// mergeSelectionSets merges selection sets from multiple fields
func mergeSelectionSets(fields []*language.Field) language.SelectionSet {
	var merged language.SelectionSet
	for _, f := range fields {
		merged = append(merged, f.SelectionSet...)
	}
	return merged
}

// isNullish returns true for nil interfaces and typed nils (map, slice, ptr, interface)
func isNullish(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Interface, reflect.Ptr, reflect.Slice, reflect.Map, reflect.Func, reflect.Chan:
		return rv.IsNil()
	default:
		return false
	}
}
