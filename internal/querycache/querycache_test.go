package querycache

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	eventbus "github.com/kotoba/kotoba-server/internal/eventbus"
	events "github.com/kotoba/kotoba-server/internal/events"
	language "github.com/kotoba/kotoba-server/internal/language"
)

func parse(calls *int) BuildFunc {
	return func(source string) Document {
		*calls++
		q, err := language.ParseQuery(source)
		if err != nil {
			return Document{Errors: language.ErrorList{language.AsError(err)}}
		}
		return Document{Query: q}
	}
}

func TestLoadCachesDocuments(t *testing.T) {
	bus := eventbus.New()
	eventbus.Use(bus)
	t.Cleanup(func() { eventbus.Use(nil) })
	var hits, misses int
	defer eventbus.SubscribeTo(bus, func(_ context.Context, e events.DocumentLookup) {
		if e.Hit {
			hits++
		} else {
			misses++
		}
	})()

	c, err := New(10)
	require.NoError(t, err)
	defer c.Close()

	var calls int
	ctx := context.Background()
	first := c.Load(ctx, "{ app }", parse(&calls))
	require.Empty(t, first.Errors)
	c.docs.Wait()

	second := c.Load(ctx, "{ app }", parse(&calls))
	require.Same(t, first.Query, second.Query)
	require.Equal(t, 1, calls)
	require.Equal(t, 1, hits)
	require.Equal(t, 1, misses)
}

func TestLoadCachesErrors(t *testing.T) {
	c, err := New(10)
	require.NoError(t, err)
	defer c.Close()

	var calls int
	doc := c.Load(context.Background(), "{", parse(&calls))
	require.Nil(t, doc.Query)
	require.Len(t, doc.Errors, 1)
	c.docs.Wait()

	doc = c.Load(context.Background(), "{", parse(&calls))
	require.Len(t, doc.Errors, 1)
	require.Equal(t, 1, calls)
}

func TestNilCacheBuildsEveryTime(t *testing.T) {
	c, err := New(0)
	require.NoError(t, err)
	require.Nil(t, c)

	var calls int
	c.Load(context.Background(), "{ app }", parse(&calls))
	c.Load(context.Background(), "{ app }", parse(&calls))
	require.Equal(t, 2, calls)
	c.Close()
}
