package graph

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/require"

	"github.com/kotoba/kotoba-server/internal/app"
	executor "github.com/kotoba/kotoba-server/internal/executor"
	language "github.com/kotoba/kotoba-server/internal/language"
)

func newTestSchema(t *testing.T, opts ...Option) (*Schema, ExecutionContext) {
	t.Helper()
	sch, err := NewSchema(DefaultResolvers(), opts...)
	require.NoError(t, err)
	a, err := app.New(app.Config{Name: app.DefaultName, Version: "test"})
	require.NoError(t, err)
	return sch, NewRequestContext(a)
}

func run(t *testing.T, sch *Schema, ec ExecutionContext, query string) *executor.ExecutionResult {
	t.Helper()
	doc, err := language.ParseQuery(query)
	require.NoError(t, err)
	if errs := sch.Validate(doc); len(errs) > 0 {
		t.Fatalf("validation: %v", errs)
	}
	return sch.Execute(context.Background(), ec, executor.Request{Document: doc})
}

func TestSchemaSDL(t *testing.T) {
	sch, _ := newTestSchema(t)
	g := goldie.New(t)
	g.Assert(t, "schema", []byte(sch.SDL()))
}

func TestSchemaRootTypes(t *testing.T) {
	sch, _ := newTestSchema(t)
	types := sch.Types()
	require.Equal(t, "Query", types.GetQueryType().Name)
	require.Equal(t, "Mutation", types.GetMutationType().Name)
	require.Nil(t, types.GetSubscriptionType())
}

func TestQueryFields(t *testing.T) {
	sch, ec := newTestSchema(t)
	res := run(t, sch, ec, "{ app version instance }")
	require.Empty(t, res.Errors)

	want := map[string]any{
		"app":      app.DefaultName,
		"version":  "test",
		"instance": ec.App().Instance(),
	}
	if diff := cmp.Diff(want, res.Data); diff != "" {
		t.Fatalf("data mismatch (-want +got):\n%s", diff)
	}
}

func TestMutationNoOp(t *testing.T) {
	sch, ec := newTestSchema(t)
	res := run(t, sch, ec, "mutation { noOp }")
	require.Empty(t, res.Errors)
	require.Equal(t, map[string]any{"noOp": 42}, res.Data)
}

func TestUnknownFieldFailsValidation(t *testing.T) {
	sch, _ := newTestSchema(t)
	doc, err := language.ParseQuery("{ doesNotExist }")
	require.NoError(t, err)
	errs := sch.Validate(doc)
	require.NotEmpty(t, errs)
	require.Contains(t, errs[0].Message, "doesNotExist")
	require.NotEmpty(t, errs[0].Locations)
}

func TestSubscriptionRejected(t *testing.T) {
	sch, ec := newTestSchema(t)
	doc, err := language.ParseQuery("subscription { app }")
	require.NoError(t, err)
	if errs := sch.Validate(doc); len(errs) > 0 {
		return
	}
	res := sch.Execute(context.Background(), ec, executor.Request{Document: doc})
	require.Nil(t, res.Data)
	require.NotEmpty(t, res.Errors)
}

func TestIntrospectionToggle(t *testing.T) {
	sch, ec := newTestSchema(t)
	res := run(t, sch, ec, "{ __schema { queryType { name } } }")
	require.Empty(t, res.Errors)

	off, ec := newTestSchema(t, WithIntrospection(false))
	res = run(t, off, ec, "{ __schema { queryType { name } } }")
	require.NotEmpty(t, res.Errors)
}

func TestNewSchemaRejectsUnboundField(t *testing.T) {
	res := NewResolvers().Field("Query", "app", queryApp)
	_, err := NewSchema(res)
	require.ErrorContains(t, err, "Query.instance")
}

func TestNewSchemaRejectsUnknownBinding(t *testing.T) {
	res := DefaultResolvers().Field("Query", "missing", queryApp)
	_, err := NewSchema(res)
	require.ErrorContains(t, err, "Query.missing")
}

func TestNewSchemaMarksAsyncFields(t *testing.T) {
	res := DefaultResolvers().AsyncField("Query", "version", queryVersion)
	sch, err := NewSchema(res)
	require.NoError(t, err)
	require.True(t, sch.Types().GetQueryType().Field("version").Async)
	require.False(t, sch.Types().GetQueryType().Field("app").Async)
}
