package reqid

import (
	"context"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestContextRoundTrip(t *testing.T) {
	ctx, id := NewContext(context.Background())
	got, ok := FromContext(ctx)
	require.True(t, ok)
	require.Equal(t, id, got)
	require.Equal(t, strconv.FormatInt(id, 36), String(ctx))

	_, ok = FromContext(context.Background())
	require.False(t, ok)
	require.Empty(t, String(context.Background()))
}

func TestIDsDiffer(t *testing.T) {
	_, a := NewContext(context.Background())
	_, b := NewContext(context.Background())
	require.NotEqual(t, a, b)
}
