package graph

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kotoba/kotoba-server/internal/app"
	executor "github.com/kotoba/kotoba-server/internal/executor"
)

type fakeEC struct{}

func (fakeEC) App() *app.App { return nil }

func TestBatchResolveAsyncKeepsOrderAndIsolatesFailures(t *testing.T) {
	res := NewResolvers().
		AsyncField("Query", "slow", func(ctx context.Context, _ ExecutionContext, _ any, args map[string]any) (any, error) {
			time.Sleep(time.Duration(args["ms"].(int)) * time.Millisecond)
			return args["ms"], nil
		}).
		AsyncField("Query", "fail", func(context.Context, ExecutionContext, any, map[string]any) (any, error) {
			return nil, errors.New("nope")
		}).
		AsyncField("Query", "panic", func(context.Context, ExecutionContext, any, map[string]any) (any, error) {
			panic("boom")
		})
	rt := &runtime{resolvers: res, asyncLimit: 2}
	ctx := WithExecutionContext(context.Background(), fakeEC{})

	got := rt.BatchResolveAsync(ctx, []executor.AsyncResolveTask{
		{ObjectType: "Query", Field: "slow", Args: map[string]any{"ms": 20}},
		{ObjectType: "Query", Field: "fail"},
		{ObjectType: "Query", Field: "slow", Args: map[string]any{"ms": 1}},
		{ObjectType: "Query", Field: "panic"},
	})

	require.Len(t, got, 4)
	require.Equal(t, executor.AsyncResolveResult{Value: 20}, got[0])
	require.EqualError(t, got[1].Error, "nope")
	require.Equal(t, executor.AsyncResolveResult{Value: 1}, got[2])
	require.ErrorContains(t, got[3].Error, "boom")
}

func TestBatchResolveAsyncRespectsLimit(t *testing.T) {
	var running, peak atomic.Int32
	res := NewResolvers().AsyncField("Query", "f", func(context.Context, ExecutionContext, any, map[string]any) (any, error) {
		n := running.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		running.Add(-1)
		return nil, nil
	})
	rt := &runtime{resolvers: res, asyncLimit: 3}
	tasks := make([]executor.AsyncResolveTask, 12)
	for i := range tasks {
		tasks[i] = executor.AsyncResolveTask{ObjectType: "Query", Field: "f"}
	}

	rt.BatchResolveAsync(WithExecutionContext(context.Background(), fakeEC{}), tasks)
	require.LessOrEqual(t, peak.Load(), int32(3))
}

func TestBatchResolveAsyncCancelled(t *testing.T) {
	var calls atomic.Int32
	res := NewResolvers().AsyncField("Query", "f", func(context.Context, ExecutionContext, any, map[string]any) (any, error) {
		calls.Add(1)
		return 1, nil
	})
	rt := &runtime{resolvers: res}
	ctx, cancel := context.WithCancel(WithExecutionContext(context.Background(), fakeEC{}))
	cancel()

	got := rt.BatchResolveAsync(ctx, []executor.AsyncResolveTask{{ObjectType: "Query", Field: "f"}})
	require.ErrorIs(t, got[0].Error, context.Canceled)
	require.Zero(t, calls.Load())
}

func TestResolveSyncRequiresExecutionContext(t *testing.T) {
	rt := &runtime{resolvers: DefaultResolvers()}
	_, err := rt.ResolveSync(context.Background(), "Query", "app", nil, nil)
	require.ErrorIs(t, err, ErrNoExecutionContext)

	v, err := rt.ResolveSync(context.Background(), "Thing", "name", map[string]any{"name": "x"}, nil)
	require.NoError(t, err)
	require.Equal(t, "x", v)
}

type named struct{}

func (named) TypeName() string { return "Thing" }

func TestResolveType(t *testing.T) {
	rt := &runtime{resolvers: NewResolvers()}
	ctx := context.Background()

	name, err := rt.ResolveType(ctx, "Node", named{})
	require.NoError(t, err)
	require.Equal(t, "Thing", name)

	name, err = rt.ResolveType(ctx, "Node", map[string]any{"__typename": "Other"})
	require.NoError(t, err)
	require.Equal(t, "Other", name)

	_, err = rt.ResolveType(ctx, "Node", 3)
	require.Error(t, err)
}

func TestSerializeLeafValue(t *testing.T) {
	rt := &runtime{resolvers: NewResolvers()}
	ctx := context.Background()
	for _, tc := range []struct {
		typ   string
		in    any
		want  any
		fails bool
	}{
		{typ: "Int", in: 42, want: 42},
		{typ: "Int", in: int64(7), want: 7},
		{typ: "Int", in: 2.0, want: 2},
		{typ: "Int", in: 2.5, fails: true},
		{typ: "Int", in: int64(1) << 40, fails: true},
		{typ: "Int", in: "1", fails: true},
		{typ: "Float", in: 3, want: 3.0},
		{typ: "String", in: "s", want: "s"},
		{typ: "String", in: time.Second, want: "1s"},
		{typ: "Boolean", in: true, want: true},
		{typ: "Boolean", in: 1, fails: true},
		{typ: "ID", in: 12, want: "12"},
		{typ: "ID", in: "abc", want: "abc"},
		{typ: "Color", in: "RED", want: "RED"},
	} {
		got, err := rt.SerializeLeafValue(ctx, tc.typ, tc.in)
		if tc.fails {
			require.Error(t, err, "%s(%v)", tc.typ, tc.in)
			continue
		}
		require.NoError(t, err, "%s(%v)", tc.typ, tc.in)
		require.Equal(t, tc.want, got, "%s(%v)", tc.typ, tc.in)
	}
}
