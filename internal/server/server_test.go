package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	app "github.com/kotoba/kotoba-server/internal/app"
	eventbus "github.com/kotoba/kotoba-server/internal/eventbus"
	events "github.com/kotoba/kotoba-server/internal/events"
	graph "github.com/kotoba/kotoba-server/internal/graph"
	querycache "github.com/kotoba/kotoba-server/internal/querycache"
	reqid "github.com/kotoba/kotoba-server/internal/reqid"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newApp(t *testing.T) *app.App {
	t.Helper()
	a, err := app.New(app.Config{Name: app.DefaultName})
	require.NoError(t, err)
	return a
}

func newTestHandler(t *testing.T, opts ...Option) *Handler {
	t.Helper()
	return newHandlerWith(t, graph.DefaultResolvers(), opts...)
}

func newHandlerWith(t *testing.T, res *graph.Resolvers, opts ...Option) *Handler {
	t.Helper()
	sch, err := graph.NewSchema(res)
	require.NoError(t, err)
	h, err := New(newApp(t), sch, opts...)
	require.NoError(t, err)
	return h
}

func do(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func post(body, contentType string) *http.Request {
	req := httptest.NewRequest("POST", RouteQuery, bytes.NewBufferString(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	return req
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func TestGetQuery(t *testing.T) {
	h := newTestHandler(t)
	w := do(h, httptest.NewRequest("GET", RouteQuery+"?query={app}", nil))
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "application/json; charset=utf-8", w.Header().Get("Content-Type"))
	require.JSONEq(t, `{"data":{"app":"Kotoba Server"}}`, w.Body.String())
}

func TestPostMutation(t *testing.T) {
	h := newTestHandler(t)
	w := do(h, post(`{"query":"mutation { noOp }"}`, "application/json"))
	require.Equal(t, http.StatusOK, w.Code)
	require.JSONEq(t, `{"data":{"noOp":42}}`, w.Body.String())
}

func TestPostWithoutContentType(t *testing.T) {
	h := newTestHandler(t)
	w := do(h, post(`{"query":"{ app version }"}`, ""))
	require.Equal(t, http.StatusOK, w.Code)
	require.JSONEq(t, `{"data":{"app":"Kotoba Server","version":"0.1.0"}}`, w.Body.String())
}

func TestPostGraphQLBody(t *testing.T) {
	h := newTestHandler(t)
	w := do(h, post(`query Q { app }`, "application/graphql; charset=utf-8"))
	require.Equal(t, http.StatusOK, w.Code)
	require.JSONEq(t, `{"data":{"app":"Kotoba Server"}}`, w.Body.String())
}

func TestVariablesAndOperationName(t *testing.T) {
	h := newTestHandler(t)
	body := `{
		"query": "query A($show: Boolean!) { app @include(if: $show) version } query B { noop: version }",
		"operationName": "A",
		"variables": {"show": false}
	}`
	w := do(h, post(body, "application/json"))
	require.Equal(t, http.StatusOK, w.Code)
	require.JSONEq(t, `{"data":{"version":"0.1.0"}}`, w.Body.String())

	params := url.Values{
		"query":     {"query A($show: Boolean!) { app @include(if: $show) }"},
		"variables": {`{"show":true}`},
	}
	w = do(h, httptest.NewRequest("GET", RouteQuery+"?"+params.Encode(), nil))
	require.Equal(t, http.StatusOK, w.Code)
	require.JSONEq(t, `{"data":{"app":"Kotoba Server"}}`, w.Body.String())
}

func TestBatch(t *testing.T) {
	h := newTestHandler(t)
	w := do(h, post(`[{"query":"{ app }"},{"query":"mutation { noOp }"},{"query":"{ nope }"}]`, "application/json"))
	require.Equal(t, http.StatusOK, w.Code)

	var out []map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	require.Len(t, out, 3)
	require.Equal(t, map[string]any{"app": "Kotoba Server"}, out[0]["data"])
	require.Equal(t, map[string]any{"noOp": float64(42)}, out[1]["data"])
	require.NotContains(t, out[2], "data")
	require.NotEmpty(t, out[2]["errors"])

	w = do(h, post("\n\t [{\"query\":\"{ app }\"}]", "application/json"))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.JSONEq(t, `[{"data":{"app":"Kotoba Server"}}]`, w.Body.String())
}

func TestGetNullVariables(t *testing.T) {
	h := newTestHandler(t)
	w := do(h, httptest.NewRequest("GET", RouteQuery+"?query={app}&variables=null", nil))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.JSONEq(t, `{"data":{"app":"Kotoba Server"}}`, w.Body.String())
}

func TestResponseKeepsSelectionOrder(t *testing.T) {
	h := newTestHandler(t)
	w := do(h, post(`{"query":"{ version app v2: version }"}`, "application/json"))
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, `{"data":{"version":"0.1.0","app":"Kotoba Server","v2":"0.1.0"}}`+"\n", w.Body.String())
}

func TestTransportErrors(t *testing.T) {
	h := newTestHandler(t, WithMaxBodyBytes(32))
	for _, tc := range []struct {
		name   string
		req    *http.Request
		status int
	}{
		{"get without query", httptest.NewRequest("GET", RouteQuery, nil), http.StatusBadRequest},
		{"get empty query", httptest.NewRequest("GET", RouteQuery+"?query=", nil), http.StatusBadRequest},
		{"get bad variables", httptest.NewRequest("GET", RouteQuery+"?query={app}&variables=nope", nil), http.StatusBadRequest},
		{"get malformed query string", httptest.NewRequest("GET", RouteQuery+"?query=%zz", nil), http.StatusBadRequest},
		{"get invalid utf8", httptest.NewRequest("GET", RouteQuery+"?query=%7B%FF%7D", nil), http.StatusBadRequest},
		{"get invalid utf8 operation name", httptest.NewRequest("GET", RouteQuery+"?query={app}&operationName=%FF", nil), http.StatusBadRequest},
		{"post graphql invalid utf8", post("{\xff}", "application/graphql"), http.StatusBadRequest},
		{"post bad json", post(`{"query":`, "application/json"), http.StatusBadRequest},
		{"post missing query", post(`{"operationName":"A"}`, "application/json"), http.StatusBadRequest},
		{"post empty batch", post(`[]`, "application/json"), http.StatusBadRequest},
		{"post too large", post(`{"query":"{ app app app app app app app }"}`, "application/json"), http.StatusBadRequest},
		{"post unsupported type", post(`query=x`, "application/x-www-form-urlencoded"), http.StatusUnsupportedMediaType},
		{"put", httptest.NewRequest("PUT", RouteQuery, nil), http.StatusMethodNotAllowed},
	} {
		t.Run(tc.name, func(t *testing.T) {
			w := do(h, tc.req)
			require.Equal(t, tc.status, w.Code, w.Body.String())
			out := decode(t, w)
			require.NotContains(t, out, "data")
			require.NotEmpty(t, out["errors"])
		})
	}
}

func TestGetMutationNotAllowed(t *testing.T) {
	h := newTestHandler(t)
	w := do(h, httptest.NewRequest("GET", RouteQuery+"?query=mutation{noOp}", nil))
	require.Equal(t, http.StatusMethodNotAllowed, w.Code)
	require.Equal(t, http.MethodPost, w.Header().Get("Allow"))

	// Selecting the query operation of a mixed document is fine.
	w = do(h, httptest.NewRequest("GET", RouteQuery+"?query=mutation+M{noOp}+query+Q{app}&operationName=Q", nil))
	require.Equal(t, http.StatusOK, w.Code)
	require.JSONEq(t, `{"data":{"app":"Kotoba Server"}}`, w.Body.String())
}

func TestGraphQLErrors(t *testing.T) {
	h := newTestHandler(t)

	w := do(h, post(`{"query":"{ doesNotExist }"}`, "application/json"))
	require.Equal(t, http.StatusOK, w.Code)
	out := decode(t, w)
	require.NotContains(t, out, "data")
	errs := out["errors"].([]any)
	require.NotEmpty(t, errs)
	require.Contains(t, errs[0].(map[string]any)["message"], "doesNotExist")
	require.NotEmpty(t, errs[0].(map[string]any)["locations"])

	w = do(h, post(`{"query":"{ app"}`, "application/json"))
	require.Equal(t, http.StatusOK, w.Code)
	require.NotEmpty(t, decode(t, w)["errors"])

	w = do(h, post(`{"query":"subscription { app }"}`, "application/json"))
	require.Equal(t, http.StatusOK, w.Code)
	require.NotEmpty(t, decode(t, w)["errors"])
}

func TestResolverErrorHasPath(t *testing.T) {
	res := graph.DefaultResolvers().Field("Query", "version", func(context.Context, graph.ExecutionContext, any, map[string]any) (any, error) {
		return nil, fmt.Errorf("version unavailable")
	})
	h := newHandlerWith(t, res)

	w := do(h, post(`{"query":"{ app version }"}`, "application/json"))
	require.Equal(t, http.StatusOK, w.Code)
	want := map[string]any{
		"data": nil,
		"errors": []any{map[string]any{
			"message":   "version unavailable",
			"locations": []any{map[string]any{"line": float64(1), "column": float64(7)}},
			"path":      []any{"version"},
		}},
	}
	if diff := cmp.Diff(want, decode(t, w)); diff != "" {
		t.Fatalf("response mismatch (-want +got):\n%s", diff)
	}
}

func TestIdentity(t *testing.T) {
	h := newTestHandler(t)
	w := do(h, httptest.NewRequest("GET", "/", nil))
	require.Equal(t, http.StatusOK, w.Code)
	require.JSONEq(t, `{"name":"Kotoba Server","ok":true}`, w.Body.String())

	w = do(h, httptest.NewRequest("GET", "/unknown", nil))
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestIDE(t *testing.T) {
	h := newTestHandler(t)
	w := do(h, httptest.NewRequest("GET", RouteIDE, nil))
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Header().Get("Content-Type"), "text/html")
	require.Contains(t, strings.ToLower(w.Body.String()), "graphiql")

	h = newTestHandler(t, WithIDE(false))
	w = do(h, httptest.NewRequest("GET", RouteIDE, nil))
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestIntrospectionForIDE(t *testing.T) {
	h := newTestHandler(t)
	w := do(h, post(`{"query":"{ __schema { queryType { name } mutationType { name } subscriptionType { name } } }"}`, ""))
	require.Equal(t, http.StatusOK, w.Code)
	require.JSONEq(t, `{"data":{"__schema":{"queryType":{"name":"Query"},"mutationType":{"name":"Mutation"},"subscriptionType":null}}}`, w.Body.String())
}

func TestGzip(t *testing.T) {
	h := newTestHandler(t, WithGzip(true))
	req := httptest.NewRequest("GET", RouteIDE, nil)
	req.Header.Set("Accept-Encoding", "gzip")
	w := do(h, req)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "gzip", w.Header().Get("Content-Encoding"))
}

func TestMetricsRoute(t *testing.T) {
	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, "kotoba_up 1\n")
	})
	h := newTestHandler(t, WithMetrics(metrics))
	w := do(h, httptest.NewRequest("GET", RouteMetrics, nil))
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "kotoba_up 1\n", w.Body.String())

	h = newTestHandler(t)
	w = do(h, httptest.NewRequest("GET", RouteMetrics, nil))
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestCORSAndPreflight(t *testing.T) {
	h := newTestHandler(t, WithCORS("*"))

	// simple request
	req := post(`{"query":"{ app }"}`, "application/json")
	req.Header.Set("Origin", "http://example.com")
	w := do(h, req)
	if w.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Fatalf("missing CORS header")
	}

	// preflight
	pre := httptest.NewRequest("OPTIONS", RouteQuery, nil)
	pre.Header.Set("Origin", "http://example.com")
	pre.Header.Set("Access-Control-Request-Headers", "X-Test")
	pw := do(h, pre)
	if pw.Code != http.StatusNoContent {
		t.Fatalf("preflight status %d", pw.Code)
	}
	if pw.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Fatalf("preflight missing CORS header")
	}
	if pw.Header().Get("Access-Control-Allow-Headers") != "X-Test" {
		t.Fatalf("preflight missing allow headers")
	}
}

func TestCORSDisallowedOrigin(t *testing.T) {
	h := newTestHandler(t, WithCORS("https://app.example"))

	req := post(`{"query":"{ app }"}`, "application/json")
	req.Header.Set("Origin", "https://app.example")
	w := do(h, req)
	require.Equal(t, "https://app.example", w.Header().Get("Access-Control-Allow-Origin"))
	require.Equal(t, "Origin", w.Header().Get("Vary"))

	req = post(`{"query":"{ app }"}`, "application/json")
	req.Header.Set("Origin", "https://evil.example")
	w = do(h, req)
	require.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestRequestID(t *testing.T) {
	var captured string
	res := graph.DefaultResolvers().Field("Query", "app", func(ctx context.Context, ec graph.ExecutionContext, _ any, _ map[string]any) (any, error) {
		captured = reqid.String(ctx)
		return ec.App().Name(), nil
	})
	h := newHandlerWith(t, res)

	w := do(h, post(`{"query":"{ app }"}`, "application/json"))
	if w.Code != http.StatusOK {
		t.Fatalf("status %d", w.Code)
	}
	if captured == "" {
		t.Fatalf("missing request id in context")
	}
	if got := w.Header().Get("X-Request-Id"); got != captured {
		t.Fatalf("request id header %q, resolver saw %q", got, captured)
	}
}

func TestExecutionContextIsolation(t *testing.T) {
	var (
		mu  sync.Mutex
		ecs = map[graph.ExecutionContext]int{}
	)
	record := func(ec graph.ExecutionContext) {
		mu.Lock()
		ecs[ec]++
		mu.Unlock()
	}
	res := graph.DefaultResolvers().
		Field("Query", "version", func(_ context.Context, ec graph.ExecutionContext, _ any, _ map[string]any) (any, error) {
			record(ec)
			return ec.App().Version(), nil
		}).
		AsyncField("Mutation", "noOp", func(_ context.Context, ec graph.ExecutionContext, _ any, _ map[string]any) (any, error) {
			record(ec)
			return 42, nil
		})
	h := newHandlerWith(t, res)

	const n = 64
	var wg sync.WaitGroup
	bodies := make([]string, n)
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var body string
			switch i % 3 {
			case 0:
				body = `{"query":"mutation { noOp }"}`
			case 1:
				body = `{"query":"query($s: Boolean!) { app @include(if: $s) version }","variables":{"s":true}}`
			default:
				body = `{"query":"query($s: Boolean!) { app @include(if: $s) version }","variables":{"s":false}}`
			}
			bodies[i] = do(h, post(body, "application/json")).Body.String()
		}()
	}
	wg.Wait()

	for i, body := range bodies {
		want := `{"data":{"version":"0.1.0"}}`
		switch i % 3 {
		case 0:
			want = `{"data":{"noOp":42}}`
		case 1:
			want = `{"data":{"app":"Kotoba Server","version":"0.1.0"}}`
		}
		require.JSONEq(t, want, body, "request %d", i)
	}
	require.Len(t, ecs, n)
	for _, count := range ecs {
		require.Equal(t, 1, count)
	}
}

func TestEventsAndQueryCache(t *testing.T) {
	bus := eventbus.New()
	eventbus.Use(bus)
	t.Cleanup(func() { eventbus.Use(nil) })

	var (
		mu       sync.Mutex
		finished []events.HTTPFinish
		ops      []events.GraphQLFinish
		lookups  []bool
	)
	defer eventbus.SubscribeTo(bus, func(_ context.Context, e events.HTTPFinish) {
		mu.Lock()
		finished = append(finished, e)
		mu.Unlock()
	})()
	defer eventbus.SubscribeTo(bus, func(_ context.Context, e events.GraphQLFinish) {
		mu.Lock()
		ops = append(ops, e)
		mu.Unlock()
	})()
	defer eventbus.SubscribeTo(bus, func(_ context.Context, e events.DocumentLookup) {
		mu.Lock()
		lookups = append(lookups, e.Hit)
		mu.Unlock()
	})()

	cache, err := querycache.New(16)
	require.NoError(t, err)
	defer cache.Close()
	h := newTestHandler(t, WithQueryCache(cache))

	w := do(h, post(`{"query":"{ app }"}`, "application/json"))
	require.Equal(t, http.StatusOK, w.Code)
	w = do(h, httptest.NewRequest("GET", RouteQuery, nil))
	require.Equal(t, http.StatusBadRequest, w.Code)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, finished, 2)
	require.Equal(t, RouteQuery, finished[0].Route)
	require.Equal(t, http.StatusOK, finished[0].Status)
	require.Equal(t, http.StatusBadRequest, finished[1].Status)
	require.Len(t, ops, 1)
	require.Equal(t, "query", ops[0].OperationType)
	require.Empty(t, ops[0].Errors)
	require.Equal(t, []bool{false}, lookups)
}

func TestPretty(t *testing.T) {
	h := newTestHandler(t, WithPretty(true))
	w := do(h, httptest.NewRequest("GET", "/", nil))
	require.Contains(t, w.Body.String(), "\n  \"name\"")
}

func TestNewRequiresAppAndSchema(t *testing.T) {
	sch, err := graph.NewSchema(graph.DefaultResolvers())
	require.NoError(t, err)
	_, err = New(nil, sch)
	require.Error(t, err)
	_, err = New(newApp(t), nil)
	require.Error(t, err)
}
