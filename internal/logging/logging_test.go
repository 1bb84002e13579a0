package logging

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	eventbus "github.com/kotoba/kotoba-server/internal/eventbus"
	events "github.com/kotoba/kotoba-server/internal/events"
	reqid "github.com/kotoba/kotoba-server/internal/reqid"
)

func TestNew(t *testing.T) {
	logger, err := New("debug", "console")
	require.NoError(t, err)
	require.True(t, logger.Core().Enabled(zapcore.DebugLevel))

	logger, err = New("warn", "json")
	require.NoError(t, err)
	require.False(t, logger.Core().Enabled(zapcore.InfoLevel))

	_, err = New("loud", "json")
	require.Error(t, err)
	_, err = New("info", "xml")
	require.Error(t, err)
}

func TestSubscribe(t *testing.T) {
	eventbus.Use(eventbus.New())
	t.Cleanup(func() { eventbus.Use(nil) })

	core, logs := observer.New(zapcore.DebugLevel)
	unsubscribe := Subscribe(zap.New(core))

	ctx, _ := reqid.NewContext(context.Background())
	req := httptest.NewRequest("GET", "/api/query?query={app}", nil)
	eventbus.Publish(ctx, events.HTTPFinish{Request: req, Route: "/api/query", Status: 200, Duration: time.Millisecond})
	eventbus.Publish(ctx, events.GraphQLFinish{OperationType: "query", Errors: []error{errors.New("boom")}})

	entries := logs.AllUntimed()
	require.Len(t, entries, 2)

	httpEntry := entries[0].ContextMap()
	require.Equal(t, "http request", entries[0].Message)
	require.Equal(t, reqid.String(ctx), httpEntry["rid"])
	require.Equal(t, "/api/query", httpEntry["path"])
	require.EqualValues(t, 200, httpEntry["status"])

	require.Equal(t, zapcore.WarnLevel, entries[1].Level)
	require.EqualValues(t, 1, entries[1].ContextMap()["errors"])

	unsubscribe()
	eventbus.Publish(ctx, events.HTTPFinish{Request: req, Status: 200})
	require.Equal(t, 2, logs.Len())
}
