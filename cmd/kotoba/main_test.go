package main

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	config "github.com/kotoba/kotoba-server/internal/config"
	eventbus "github.com/kotoba/kotoba-server/internal/eventbus"
	events "github.com/kotoba/kotoba-server/internal/events"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	require.Equal(t, "Kotoba Server 0.1.0\n", out)
}

func TestSchema(t *testing.T) {
	out, err := execute(t, "schema")
	require.NoError(t, err)
	require.Contains(t, out, "type Query {")
	require.Contains(t, out, "noOp: Int!")
	require.NotContains(t, out, "__schema")
}

func TestServeRejectsInvalidConfig(t *testing.T) {
	_, err := execute(t, "serve", "--log-format=xml")
	require.ErrorContains(t, err, "log.format")

	_, err = execute(t, "serve", "--max-body=huge")
	require.Error(t, err)
}

func TestUnknownCommand(t *testing.T) {
	_, err := execute(t, "compile")
	require.Error(t, err)
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	v, err := config.NewViper(nil)
	require.NoError(t, err)
	cfg, err := config.Load(v)
	require.NoError(t, err)
	cfg.Server.Addr = "127.0.0.1:0"
	cfg.Server.ShutdownTimeout = 5 * time.Second
	return cfg
}

func TestServe(t *testing.T) {
	bus := eventbus.New()
	eventbus.Use(bus)
	t.Cleanup(func() { eventbus.Use(nil) })

	started := make(chan events.ServerStart, 1)
	defer eventbus.SubscribeTo(bus, func(_ context.Context, e events.ServerStart) { started <- e })()

	cfg := testConfig(t)
	core, logs := observer.New(zapcore.InfoLevel)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- serve(ctx, cfg, zap.New(core)) }()

	var addr string
	select {
	case e := <-started:
		addr = e.Addr
		require.NotEmpty(t, e.Instance)
	case err := <-done:
		t.Fatalf("serve exited early: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not start")
	}

	resp, err := http.Get("http://" + addr + "/")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	require.JSONEq(t, `{"name":"Kotoba Server","ok":true}`, string(body))

	resp, err = http.Post("http://"+addr+"/api/query", "application/json", strings.NewReader(`{"query":"mutation { noOp }"}`))
	require.NoError(t, err)
	body, err = io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	require.JSONEq(t, `{"data":{"noOp":42}}`, string(body))

	resp, err = http.Get("http://" + addr + "/metrics")
	require.NoError(t, err)
	body, err = io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	require.Contains(t, string(body), "kotoba_http_requests_total")

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("server did not stop")
	}

	require.Equal(t, 1, logs.FilterMessage("Starting Kotoba server...").Len())
	require.Equal(t, 1, logs.FilterMessage("Finished!").Len())
	require.Equal(t, 1, logs.FilterMessage("server stopped").Len())
	require.GreaterOrEqual(t, logs.FilterMessage("http request").Len(), 2)
}

func TestServeListenError(t *testing.T) {
	cfg := testConfig(t)
	cfg.Server.Addr = "256.0.0.1:bad"
	err := serve(context.Background(), cfg, zap.NewNop())
	require.ErrorContains(t, err, "listening on")
}
