package executor

import (
	"context"
	"fmt"
	"reflect"

	language "github.com/kotoba/kotoba-server/internal/language"
	schema "github.com/kotoba/kotoba-server/internal/schema"
)

type Path []PathElement

type PathElement any

type NodeID uint64

// Request is a single parsed operation to execute.
type Request struct {
	Document      *language.QueryDocument
	OperationName string
	Variables     map[string]any
	// InitialValue is passed as the source of root fields.
	InitialValue any
}

// executionState holds the state during query execution
type executionState struct {
	runtime        Runtime
	schema         *schema.Schema
	document       *language.QueryDocument
	variableValues map[string]any
	context        context.Context
	asyncTaskGroup []asyncTask
	errors         []GraphQLError
	// simple incremental id generator
	nextID uint64
	// prefixes of paths that have been nullified (tombstoned)
	nullifiedPrefix map[string]struct{}
	keyOrder        keyOrder
}

// asyncTask represents a pending async field resolution
type asyncTask struct {
	ID           NodeID
	Task         AsyncResolveTask
	ResponsePath Path
	FieldType    *schema.TypeRef
	Fields       []*language.Field
}

type asyncPending struct{}

type Executor struct {
	runtime Runtime
	schema  *schema.Schema
}

func NewExecutor(runtime Runtime, schema *schema.Schema) *Executor {
	return &Executor{runtime: runtime, schema: schema}
}

// ExecuteRequest runs one operation of an already validated document.
// Query root fields run breadth first with async fields batched per depth;
// mutation root fields run one after another, each fully completed before
// the next starts.
func (e *Executor) ExecuteRequest(ctx context.Context, req Request) *ExecutionResult {
	if req.Document == nil {
		return requestError("no document provided")
	}
	operation, err := getOperation(req.Document, req.OperationName)
	if err != nil {
		return requestError(err.Error())
	}

	coercedVariableValues, err := coerceVariableValues(e.schema, operation, req.Variables)
	if err != nil {
		return requestError(err.Error())
	}

	var rootType *schema.Type
	switch operation.Operation {
	case language.Query, "":
		rootType = e.schema.GetQueryType()
	case language.Mutation:
		rootType = e.schema.GetMutationType()
	case language.Subscription:
		rootType = e.schema.GetSubscriptionType()
	default:
		return requestError(fmt.Sprintf("unsupported operation type: %s", operation.Operation))
	}
	if rootType == nil {
		return requestError(fmt.Sprintf("schema is not configured for %s operations", operation.Operation))
	}

	state := &executionState{
		runtime:         e.runtime,
		schema:          e.schema,
		document:        req.Document,
		variableValues:  coercedVariableValues,
		context:         ctx,
		nextID:          1,
		nullifiedPrefix: make(map[string]struct{}),
		keyOrder:        make(keyOrder),
	}

	responseRoot := make(map[string]any)
	rootFields := collectFields(state, rootType, operation.SelectionSet).orderedFields()
	state.keyOrder.record(responseRoot, rootFields)
	if operation.Operation == language.Mutation {
		for _, cf := range rootFields {
			executeCollectedField(state, rootType, req.InitialValue, cf, Path{}, responseRoot)
			drainAsyncTasks(state, responseRoot)
		}
	} else {
		// Root selection set: sync immediate expansion, async queued.
		// Root fields never null their parent, so the return value is ignored.
		for _, cf := range rootFields {
			executeCollectedField(state, rootType, req.InitialValue, cf, Path{}, responseRoot)
		}
		drainAsyncTasks(state, responseRoot)
	}

	result := &ExecutionResult{Data: responseRoot, Errors: state.errors, keyOrder: state.keyOrder}
	if rootNullified(rootType, responseRoot) {
		result.Data = nil
	}
	return result
}

func requestError(message string) *ExecutionResult {
	return &ExecutionResult{Errors: []GraphQLError{{Message: message}}}
}

// drainAsyncTasks runs the depth-wise batch loop until no async work is left.
func drainAsyncTasks(state *executionState, responseRoot map[string]any) {
	for len(state.asyncTaskGroup) > 0 {
		filtered, results := flushAsyncTasks(state)
		for i, r := range results {
			completeAsyncField(state, filtered[i], r, responseRoot)
		}
	}
}

// rootNullified reports whether a Non-Null root field ended up null, which
// nulls the whole data entry.
func rootNullified(rootType *schema.Type, responseRoot map[string]any) bool {
	for name, value := range responseRoot {
		if !isNullish(value) {
			continue
		}
		if def := rootType.Field(name); def != nil && schema.IsNonNull(def.Type) {
			return true
		}
	}
	return false
}

// executeSelectionSet executes a selection set without flushing. A nil
// result means a Non-Null child was null and the object itself is null.
func executeSelectionSet(state *executionState, objectType *schema.Type, selectionSet language.SelectionSet, objectValue any, path Path) map[string]any {
	fields := collectFields(state, objectType, selectionSet).orderedFields()
	resultMap := make(map[string]any)
	state.keyOrder.record(resultMap, fields)

	for _, cf := range fields {
		if !executeCollectedField(state, objectType, objectValue, cf, path, resultMap) {
			// drop async work already queued below this object
			state.markNullifiedPrefix(path)
			return nil
		}
	}
	return resultMap
}

// executeCollectedField executes one response key into resultMap. It
// returns false when a Non-Null field below a non-root path completed to
// null.
func executeCollectedField(state *executionState, objectType *schema.Type, objectValue any, cf collectedField, path Path, resultMap map[string]any) bool {
	responseName := cf.ResponseName
	fields := cf.Fields
	fieldPath := appendPath(path, responseName)

	fieldResult := executeFieldGroup(state, objectType, objectValue, fields, fieldPath)

	if fields[0].Name == "__typename" {
		resultMap[responseName] = fieldResult
		return true
	}

	fieldDef := objectType.Field(fields[0].Name)
	if fieldDef == nil {
		// error already recorded in executeFieldGroup
		return true
	}

	if schema.IsNonNull(fieldDef.Type) && isNullish(fieldResult) {
		if len(path) > 0 {
			return false
		}
		resultMap[responseName] = nil
		return true
	}

	// For nullable fields, coerce typed-nil to interface-nil
	if isNullish(fieldResult) {
		resultMap[responseName] = nil
	} else {
		resultMap[responseName] = fieldResult
	}
	return true
}

func executeFieldGroup(state *executionState, objectType *schema.Type, objectValue any, fields []*language.Field, path Path) any {
	field := fields[0]
	fieldName := field.Name

	if fieldName == "__typename" {
		return objectType.Name
	}

	fieldDef := objectType.Field(fieldName)
	if fieldDef == nil {
		state.addFieldError(fmt.Sprintf("Cannot query field %q on type %q.", fieldName, objectType.Name), fields, path)
		return nil
	}

	argumentValues, ok := coerceArgumentValues(state, fieldDef, fields, path)
	if !ok {
		return nil
	}

	if !fieldDef.Async {
		resolvedValue, ok := resolveSyncField(state, objectType.Name, fieldName, objectValue, argumentValues, fields, path)
		if !ok {
			return nil
		}
		return completeValue(state, fieldDef.Type, fields, resolvedValue, path)
	}

	id := NodeID(state.nextID)
	state.nextID++
	state.asyncTaskGroup = append(state.asyncTaskGroup, asyncTask{
		ID: id,
		Task: AsyncResolveTask{
			ObjectType: objectType.Name,
			Field:      fieldName,
			Source:     objectValue,
			Args:       argumentValues,
		},
		ResponsePath: path,
		FieldType:    fieldDef.Type,
		Fields:       fields,
	})
	return asyncPending{}
}

// flushAsyncTasks flushes tasks and returns results (filtered by tombstones)
func flushAsyncTasks(state *executionState) ([]asyncTask, []AsyncResolveResult) {
	filtered := make([]asyncTask, 0, len(state.asyncTaskGroup))
	for _, at := range state.asyncTaskGroup {
		if state.hasNullifiedPrefix(at.ResponsePath) {
			continue
		}
		filtered = append(filtered, at)
	}
	state.asyncTaskGroup = nil

	tasks := make([]AsyncResolveTask, len(filtered))
	for i, at := range filtered {
		tasks[i] = at.Task
	}
	return filtered, batchResolve(state, tasks)
}

// batchResolve calls the runtime for one depth. A cancelled context, a
// panicking runtime or a short result slice fail every task in the batch.
func batchResolve(state *executionState, tasks []AsyncResolveTask) (results []AsyncResolveResult) {
	if len(tasks) == 0 {
		return nil
	}
	failAll := func(err error) []AsyncResolveResult {
		out := make([]AsyncResolveResult, len(tasks))
		for i := range out {
			out[i].Error = err
		}
		return out
	}
	if err := state.context.Err(); err != nil {
		return failAll(err)
	}
	defer func() {
		if r := recover(); r != nil {
			results = failAll(fmt.Errorf("panic in async resolver: %v", r))
		}
	}()
	results = state.runtime.BatchResolveAsync(state.context, tasks)
	if len(results) != len(tasks) {
		return failAll(fmt.Errorf("runtime returned %d results for %d tasks", len(results), len(tasks)))
	}
	return results
}

// completeAsyncField completes a single async result, with non-null propagation and pruning
func completeAsyncField(state *executionState, at asyncTask, res AsyncResolveResult, responseRoot map[string]any) {
	path := at.ResponsePath
	if state.hasNullifiedPrefix(path) {
		return
	}

	if res.Error != nil {
		state.addFieldError(res.Error.Error(), at.Fields, path)
		if schema.IsNonNull(at.FieldType) {
			top := topLevelFieldPath(path)
			setValueAtPath(responseRoot, top, nil)
			state.markNullifiedPrefix(top)
			return
		}
		setValueAtPath(responseRoot, path, nil)
		return
	}

	completed := completeValue(state, at.FieldType, at.Fields, res.Value, path)

	if schema.IsNonNull(at.FieldType) && isNullish(completed) {
		top := topLevelFieldPath(path)
		setValueAtPath(responseRoot, top, nil)
		state.markNullifiedPrefix(top)
		return
	}

	if isNullish(completed) {
		setValueAtPath(responseRoot, path, nil)
	} else {
		setValueAtPath(responseRoot, path, completed)
	}
}

// completeValue completes a value
func completeValue(state *executionState, fieldType *schema.TypeRef, fields []*language.Field, result any, path Path) any {
	if schema.IsNonNull(fieldType) {
		if isNullish(result) {
			if !state.hasErrorAtPath(path) {
				state.addFieldError(fmt.Sprintf("Cannot return null for non-nullable field %s", pathToString(path)), fields, path)
			}
			return nil
		}
		completed := completeValue(state, schema.Unwrap(fieldType), fields, result, path)
		if isNullish(completed) {
			return nil
		}
		return completed
	}

	if isNullish(result) {
		return nil
	}

	if schema.IsList(fieldType) {
		return completeListValue(state, fieldType, fields, result, path)
	}
	namedType := schema.GetNamedType(fieldType)
	typeObj := state.schema.Types[namedType]
	if typeObj == nil {
		state.addFieldError(fmt.Sprintf("Unknown type: %s", namedType), fields, path)
		return nil
	}

	switch typeObj.Kind {
	case schema.TypeKindScalar, schema.TypeKindEnum:
		serialized, err := state.runtime.SerializeLeafValue(state.context, namedType, result)
		if err != nil {
			state.addFieldError(err.Error(), fields, path)
			return nil
		}
		return serialized
	case schema.TypeKindObject:
		return completeObjectValue(state, typeObj, fields, result, path)
	case schema.TypeKindInterface, schema.TypeKindUnion:
		return completeAbstractValue(state, typeObj, fields, result, path)
	default:
		state.addFieldError(fmt.Sprintf("Cannot complete value of unexpected type: %s", typeObj.Kind), fields, path)
		return nil
	}
}

// completeListValue completes a list value
func completeListValue(state *executionState, listType *schema.TypeRef, fields []*language.Field, result any, path Path) any {
	var items []any
	if direct, ok := result.([]any); ok {
		items = direct
	} else {
		rv := reflect.ValueOf(result)
		if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
			state.addFieldError(fmt.Sprintf("Expected list value, got %T", result), fields, path)
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
		v := completeValue(state, inner, fields, item, appendPath(path, i))
		if schema.IsNonNull(inner) && isNullish(v) {
			return nil
		}
		completed[i] = v
	}
	return completed
}

func completeObjectValue(state *executionState, objectType *schema.Type, fields []*language.Field, result any, path Path) any {
	out := executeSelectionSet(state, objectType, mergeSelectionSets(fields), result, path)
	if out == nil {
		return nil
	}
	return out
}

func completeAbstractValue(state *executionState, abstractType *schema.Type, fields []*language.Field, result any, path Path) any {
	typeName, err := state.runtime.ResolveType(state.context, abstractType.Name, result)
	if err != nil {
		state.addFieldError(err.Error(), fields, path)
		return nil
	}
	objectType := state.schema.Types[typeName]
	if objectType == nil || objectType.Kind != schema.TypeKindObject {
		state.addFieldError(fmt.Sprintf("Abstract type %s must resolve to an Object type at runtime. Got: %s", abstractType.Name, typeName), fields, path)
		return nil
	}
	if !abstractType.IsPossibleType(typeName) {
		state.addFieldError(fmt.Sprintf("Runtime Object type %q is not a possible type for %q.", typeName, abstractType.Name), fields, path)
		return nil
	}
	return completeObjectValue(state, objectType, fields, result, path)
}

// resolveSyncField resolves a field synchronously. A panicking resolver is
// reported as a field error.
func resolveSyncField(state *executionState, objectType string, fieldName string, source any, args map[string]any, fields []*language.Field, path Path) (value any, ok bool) {
	if err := state.context.Err(); err != nil {
		state.addFieldError(err.Error(), fields, path)
		return nil, false
	}
	defer func() {
		if r := recover(); r != nil {
			state.addFieldError(fmt.Sprintf("panic in resolver %s.%s: %v", objectType, fieldName, r), fields, path)
			value, ok = nil, false
		}
	}()
	value, err := state.runtime.ResolveSync(state.context, objectType, fieldName, source, args)
	if err != nil {
		state.addFieldError(err.Error(), fields, path)
		return nil, false
	}
	return value, true
}

func pathToString(path Path) string {
	result := ""
	for i, elem := range path {
		switch v := elem.(type) {
		case string:
			if i > 0 {
				result += "."
			}
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
		s.nullifiedPrefix[key] = struct{}{}
	}
}

func (s *executionState) hasNullifiedPrefix(p Path) bool {
	if len(s.nullifiedPrefix) == 0 {
		return false
	}
	cur := Path{}
	for _, elem := range p {
		cur = append(cur, elem)
		if _, ok := s.nullifiedPrefix[pathToString(cur)]; ok {
			return true
		}
	}
	return false
}

func topLevelFieldPath(p Path) Path {
	for _, elem := range p {
		if name, ok := elem.(string); ok {
			return Path{name}
		}
	}
	return Path{}
}

// getOperation selects the operation to run. An unnamed request is only
// valid for single-operation documents.
func getOperation(document *language.QueryDocument, operationName string) (*language.OperationDefinition, error) {
	if operationName == "" {
		switch len(document.Operations) {
		case 0:
			return nil, fmt.Errorf("document contains no operations")
		case 1:
			return document.Operations[0], nil
		default:
			return nil, fmt.Errorf("must provide operation name if query contains multiple operations")
		}
	}
	if op := document.Operations.ForName(operationName); op != nil {
		return op, nil
	}
	return nil, fmt.Errorf("unknown operation named %q", operationName)
}

func (state *executionState) addFieldError(message string, fields []*language.Field, path Path) {
	state.errors = append(state.errors, GraphQLError{
		Message:   message,
		Locations: locationsOf(fields),
		Path:      path,
	})
}

func locationsOf(fields []*language.Field) []language.Location {
	var locs []language.Location
	for _, f := range fields {
		if f.Position != nil {
			locs = append(locs, language.Location{Line: f.Position.Line, Column: f.Position.Column})
		}
	}
	return locs
}

// hasErrorAtPath reports whether an error with the given path already exists.
func (state *executionState) hasErrorAtPath(path Path) bool {
	for _, err := range state.errors {
		if reflect.DeepEqual(err.Path, path) {
			return true
		}
	}
	return false
}

// setValueAtPath writes value into the response tree, creating intermediate
// objects as needed.
func setValueAtPath(responseRoot map[string]any, path Path, value any) {
	if len(path) == 0 {
		return
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
			if !exists || next == nil {
				// parent was nulled; nothing to write into
				if exists {
					return
				}
				next = make(map[string]any)
				m[e] = next
			}
			current = next
		case int:
			slice, ok := current.([]any)
			if !ok || e >= len(slice) || slice[e] == nil {
				return
			}
			current = slice[e]
		}
	}
	switch fe := path[len(path)-1].(type) {
	case string:
		if m, ok := current.(map[string]any); ok {
			m[fe] = value
		}
	case int:
		if slice, ok := current.([]any); ok && fe < len(slice) {
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
