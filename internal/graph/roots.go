package graph

import "context"

// noOpResult is what the placeholder mutation returns.
const noOpResult = 42

// DefaultResolvers binds the root Query and Mutation fields.
func DefaultResolvers() *Resolvers {
	return NewResolvers().
		Field("Query", "app", queryApp).
		Field("Query", "instance", queryInstance).
		Field("Query", "version", queryVersion).
		Field("Mutation", "noOp", mutationNoOp)
}

func queryApp(_ context.Context, ec ExecutionContext, _ any, _ map[string]any) (any, error) {
	return ec.App().Name(), nil
}

func queryInstance(_ context.Context, ec ExecutionContext, _ any, _ map[string]any) (any, error) {
	return ec.App().Instance(), nil
}

func queryVersion(_ context.Context, ec ExecutionContext, _ any, _ map[string]any) (any, error) {
	return ec.App().Version(), nil
}

func mutationNoOp(context.Context, ExecutionContext, any, map[string]any) (any, error) {
	return noOpResult, nil
}
