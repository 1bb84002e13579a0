// Package reqid tags contexts with a random per-request identifier used to
// correlate log lines and spans.
package reqid

import (
	"context"
	"math/rand/v2"
	"strconv"
)

// key is the context key for the request ID.
type key struct{}

// NewContext returns a copy of parent with a new random request ID stored.
// It also returns the generated ID.
func NewContext(parent context.Context) (context.Context, int64) {
	id := rand.Int64()
	return context.WithValue(parent, key{}, id), id
}

// FromContext extracts the request ID from ctx.
// It returns the ID and whether it was present.
func FromContext(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(key{}).(int64)
	return id, ok
}

// String formats the request ID carried by ctx, or "" when there is none.
func String(ctx context.Context) string {
	if id, ok := FromContext(ctx); ok {
		return strconv.FormatInt(id, 36)
	}
	return ""
}
