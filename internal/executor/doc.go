// Package executor implements a breadth-first, batch-friendly GraphQL executor
// with explicit runtime hooks for synchronous resolution, depth-wise batching of
// asynchronous work, abstract-type resolution, and leaf serialization.
//
// # Execution Model
//
// Fields are classified through schema.Field.Async:
//
//   - Synchronous fields are resolved inline via Runtime.ResolveSync and
//     completed immediately. Purely synchronous descents do not add depth.
//   - Asynchronous fields are queued and resolved together, once per depth,
//     via Runtime.BatchResolveAsync. Their object sub-selections feed the
//     next depth.
//
// For a query whose asynchronous depth is d, BatchResolveAsync is invoked
// exactly d times. Mutation root fields are executed serially: each root
// field, including all asynchronous work beneath it, completes before the
// next root field starts.
//
// # Value Completion
//
//   - Non-Null: a null result records an error and propagates null to the
//     parent. Queued tasks below a nullified path are dropped.
//   - List: elements complete with index-aware paths. A null element of a
//     Non-Null item type nulls the whole list.
//   - Leaf (Scalar/Enum): Runtime.SerializeLeafValue.
//   - Abstract (Interface/Union): Runtime.ResolveType picks the concrete
//     object type, which must be a possible type of the abstract type.
//   - Object: sub-fields are collected, honouring @skip, @include and
//     fragment type conditions (including interface and union conditions).
//
// # Errors and Cancellation
//
// Errors carry a message, the locations of the field nodes and the response
// path. Resolver panics become field errors. Once the context is done no
// further resolver is invoked; pending fields fail with the context error.
package executor
