package graph

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"

	"golang.org/x/sync/errgroup"

	executor "github.com/kotoba/kotoba-server/internal/executor"
)

// ErrNoExecutionContext is returned by bound resolvers invoked without an
// ExecutionContext in their context.
var ErrNoExecutionContext = errors.New("graph: no execution context bound to request")

// TypeNamer is implemented by values of interface or union types to report
// their concrete object type.
type TypeNamer interface {
	TypeName() string
}

// runtime implements executor.Runtime over a Resolvers registry.
// Invariants:
//   - Resolvers only see state through the ExecutionContext found in ctx.
//   - BatchResolveAsync returns one result per task in task order; a failing
//     or panicking resolver only fails its own task.
//   - At most asyncLimit async resolvers run at once; ctx is handed to each.
type runtime struct {
	resolvers  *Resolvers
	asyncLimit int
}

var _ executor.Runtime = (*runtime)(nil)

func (r *runtime) ResolveSync(ctx context.Context, objectType string, field string, source any, args map[string]any) (any, error) {
	return r.resolve(ctx, objectType, field, source, args)
}

func (r *runtime) resolve(ctx context.Context, objectType string, field string, source any, args map[string]any) (any, error) {
	b, ok := r.resolvers.lookup(objectType, field)
	if !ok {
		return defaultResolve(source, field), nil
	}
	ec, ok := FromContext(ctx)
	if !ok {
		return nil, ErrNoExecutionContext
	}
	return b.fn(ctx, ec, source, args)
}

// BatchResolveAsync runs the tasks of one depth concurrently.
func (r *runtime) BatchResolveAsync(ctx context.Context, tasks []executor.AsyncResolveTask) []executor.AsyncResolveResult {
	results := make([]executor.AsyncResolveResult, len(tasks))
	if len(tasks) == 0 {
		return results
	}
	var g errgroup.Group
	if r.asyncLimit > 0 {
		g.SetLimit(r.asyncLimit)
	}
	for i, task := range tasks {
		g.Go(func() error {
			results[i] = r.resolveTask(ctx, task)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (r *runtime) resolveTask(ctx context.Context, task executor.AsyncResolveTask) (res executor.AsyncResolveResult) {
	defer func() {
		if p := recover(); p != nil {
			res = executor.AsyncResolveResult{Error: fmt.Errorf("panic in resolver %s.%s: %v", task.ObjectType, task.Field, p)}
		}
	}()
	if err := ctx.Err(); err != nil {
		return executor.AsyncResolveResult{Error: err}
	}
	v, err := r.resolve(ctx, task.ObjectType, task.Field, task.Source, task.Args)
	return executor.AsyncResolveResult{Value: v, Error: err}
}

func (r *runtime) ResolveType(ctx context.Context, abstractType string, value any) (string, error) {
	switch v := value.(type) {
	case TypeNamer:
		return v.TypeName(), nil
	case map[string]any:
		if name, ok := v["__typename"].(string); ok {
			return name, nil
		}
	}
	return "", fmt.Errorf("cannot resolve concrete type of %s from %T", abstractType, value)
}

// SerializeLeafValue coerces resolver results into the JSON form of the
// built-in scalars. Enums and custom scalars pass strings and Stringers
// through as text and anything else unchanged.
func (r *runtime) SerializeLeafValue(ctx context.Context, typeName string, value any) (any, error) {
	switch typeName {
	case "Int":
		return serializeInt(value)
	case "Float":
		return serializeFloat(value)
	case "String":
		return serializeString(value)
	case "Boolean":
		if b, ok := value.(bool); ok {
			return b, nil
		}
		return nil, fmt.Errorf("Boolean cannot represent value: %v", value)
	case "ID":
		switch v := value.(type) {
		case string:
			return v, nil
		case int, int32, int64:
			return fmt.Sprint(v), nil
		}
		if s, err := serializeString(value); err == nil {
			return s, nil
		}
		return nil, fmt.Errorf("ID cannot represent value: %v", value)
	}
	switch v := value.(type) {
	case string:
		return v, nil
	case fmt.Stringer:
		return v.String(), nil
	}
	return value, nil
}

func serializeInt(value any) (any, error) {
	var n int64
	switch v := value.(type) {
	case int:
		n = int64(v)
	case int8:
		n = int64(v)
	case int16:
		n = int64(v)
	case int32:
		n = int64(v)
	case int64:
		n = v
	case uint8:
		n = int64(v)
	case uint16:
		n = int64(v)
	case uint32:
		n = int64(v)
	case float64:
		if v != math.Trunc(v) {
			return nil, fmt.Errorf("Int cannot represent non-integer value: %v", v)
		}
		n = int64(v)
	default:
		return nil, fmt.Errorf("Int cannot represent value: %v", value)
	}
	if n < math.MinInt32 || n > math.MaxInt32 {
		return nil, fmt.Errorf("Int cannot represent non 32-bit signed integer value: %d", n)
	}
	return int(n), nil
}

func serializeFloat(value any) (any, error) {
	switch v := value.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int32:
		return float64(v), nil
	case int64:
		return float64(v), nil
	}
	return nil, fmt.Errorf("Float cannot represent value: %v", value)
}

func serializeString(value any) (any, error) {
	switch v := value.(type) {
	case string:
		return v, nil
	case *string:
		if v == nil {
			return nil, nil
		}
		return *v, nil
	case []byte:
		return string(v), nil
	case bool:
		return strconv.FormatBool(v), nil
	case fmt.Stringer:
		return v.String(), nil
	}
	return nil, fmt.Errorf("String cannot represent value: %v", value)
}

// defaultResolve reads field from a map source.
func defaultResolve(source any, field string) any {
	if m, ok := source.(map[string]any); ok {
		return m[field]
	}
	return nil
}
