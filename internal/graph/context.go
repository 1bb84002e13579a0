package graph

import (
	"context"

	"github.com/kotoba/kotoba-server/internal/app"
)

// ExecutionContext is what resolvers may read while serving one operation.
type ExecutionContext interface {
	App() *app.App
}

// RequestContext is the ExecutionContext built for every operation. It only
// borrows the App; nothing is released when the operation ends.
type RequestContext struct {
	app *app.App
}

var _ ExecutionContext = (*RequestContext)(nil)

func NewRequestContext(a *app.App) *RequestContext {
	return &RequestContext{app: a}
}

func (c *RequestContext) App() *app.App { return c.app }

type ctxKey struct{}

// WithExecutionContext returns a copy of ctx carrying ec.
func WithExecutionContext(ctx context.Context, ec ExecutionContext) context.Context {
	return context.WithValue(ctx, ctxKey{}, ec)
}

// FromContext returns the ExecutionContext bound to ctx, if any.
func FromContext(ctx context.Context) (ExecutionContext, bool) {
	ec, ok := ctx.Value(ctxKey{}).(ExecutionContext)
	return ec, ok && ec != nil
}
