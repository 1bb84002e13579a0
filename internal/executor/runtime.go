package executor

import (
	"context"
)

// Runtime is the host integration surface the Executor resolves fields
// through.
//
// Contract
//   - ResolveSync is called only for fields whose schema.Field.Async is false.
//     It runs inline on the executing goroutine and must not block on I/O.
//   - BatchResolveAsync is called once per execution depth with every async
//     field collected at that depth. It must return exactly one result per
//     task, in task order; a failure in one element does not fail the others.
//     Implementations may run the tasks concurrently and must honour ctx.
//   - Errors returned from any method become located GraphQL errors. Non-Null
//     fields propagate the resulting null to the nearest nullable ancestor.
//   - Implementations are shared by all concurrent operations and must be
//     safe for concurrent use. They must not mutate source or args.
//
// objectType is the parent GraphQL type name ("Query" for root fields), field
// the field name, source the parent value (nil for root fields) and args the
// coerced argument values.
type Runtime interface {
	// ResolveSync resolves a synchronous field value. Return (nil, nil) for a
	// GraphQL null.
	ResolveSync(ctx context.Context, objectType string, field string, source any, args map[string]any) (any, error)

	// BatchResolveAsync resolves one execution depth of async field tasks.
	BatchResolveAsync(ctx context.Context, tasks []AsyncResolveTask) []AsyncResolveResult

	// ResolveType returns the concrete object type name for a value of an
	// interface or union type.
	ResolveType(ctx context.Context, abstractType string, value any) (string, error)

	// SerializeLeafValue converts a scalar or enum value into a JSON-safe Go
	// value. Enums serialize to their symbolic name.
	SerializeLeafValue(ctx context.Context, scalarOrEnumTypeName string, value any) (any, error)
}

type AsyncResolveTask struct {
	// ObjectType is the parent GraphQL object type name for the field.
	ObjectType string
	// Field is the GraphQL field name to resolve.
	Field string
	// Source is the parent object value (nil for root fields).
	Source any
	// Args are the field arguments, coerced to Go values per the schema.
	Args map[string]any
}

type AsyncResolveResult struct {
	// Value is the resolved raw value prior to completion, or nil on error.
	Value any
	// Error contains a failure specific to this element.
	Error error
}
