// Package graph defines the Kotoba GraphQL schema and binds it to resolvers
// that read shared state through a per-operation ExecutionContext.
package graph

import (
	"context"
	_ "embed"
	"fmt"

	executor "github.com/kotoba/kotoba-server/internal/executor"
	introspection "github.com/kotoba/kotoba-server/internal/introspection"
	language "github.com/kotoba/kotoba-server/internal/language"
	schema "github.com/kotoba/kotoba-server/internal/schema"
)

//go:embed schema.graphql
var sdl string

const defaultAsyncLimit = 16

type options struct {
	introspection bool
	asyncLimit    int
}

type Option func(*options)

// WithIntrospection enables the __schema and __type root fields. It is on by
// default.
func WithIntrospection(enabled bool) Option {
	return func(o *options) { o.introspection = enabled }
}

// WithAsyncLimit bounds how many async resolvers run at once. n <= 0 removes
// the bound.
func WithAsyncLimit(n int) Option {
	return func(o *options) { o.asyncLimit = n }
}

// Schema is the executable schema. It is immutable and safe for concurrent
// use once NewSchema returns.
type Schema struct {
	base     *schema.Schema
	types    *schema.Schema
	runtime  executor.Runtime
	executor *executor.Executor
}

// NewSchema builds the schema from the embedded SDL and binds res to it.
func NewSchema(res *Resolvers, opts ...Option) (*Schema, error) {
	o := options{introspection: true, asyncLimit: defaultAsyncLimit}
	for _, f := range opts {
		f(&o)
	}
	return newSchema(sdl, res, o)
}

func newSchema(source string, res *Resolvers, o options) (*Schema, error) {
	base, err := schema.BuildFromSDL(source)
	if err != nil {
		return nil, fmt.Errorf("graph: %w", err)
	}
	if base.GetSubscriptionType() != nil {
		return nil, fmt.Errorf("graph: subscriptions are not supported")
	}
	if err := res.bind(base); err != nil {
		return nil, fmt.Errorf("graph: %w", err)
	}

	var rt executor.Runtime = &runtime{resolvers: res, asyncLimit: o.asyncLimit}
	types := base
	if o.introspection {
		w := introspection.Wrap(rt, base)
		rt, types = w.Runtime, w.Schema
	}
	return &Schema{
		base:     base,
		types:    types,
		runtime:  rt,
		executor: executor.NewExecutor(rt, types),
	}, nil
}

// SDL renders the schema without introspection types.
func (s *Schema) SDL() string { return schema.Render(s.base) }

// Types returns the executable type graph.
func (s *Schema) Types() *schema.Schema { return s.types }

func (s *Schema) Runtime() executor.Runtime { return s.runtime }

// Validate checks doc against the schema.
func (s *Schema) Validate(doc *language.QueryDocument) language.ErrorList {
	return language.Validate(s.base.Definition, doc)
}

// Execute runs a validated request with ec bound for its resolvers.
func (s *Schema) Execute(ctx context.Context, ec ExecutionContext, req executor.Request) *executor.ExecutionResult {
	return s.executor.ExecuteRequest(WithExecutionContext(ctx, ec), req)
}
