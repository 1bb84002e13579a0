// Package server exposes the GraphQL schema over HTTP together with the IDE,
// identity and metrics endpoints.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/99designs/gqlgen/graphql/playground"
	"github.com/klauspost/compress/gzhttp"

	app "github.com/kotoba/kotoba-server/internal/app"
	eventbus "github.com/kotoba/kotoba-server/internal/eventbus"
	events "github.com/kotoba/kotoba-server/internal/events"
	graph "github.com/kotoba/kotoba-server/internal/graph"
	querycache "github.com/kotoba/kotoba-server/internal/querycache"
	reqid "github.com/kotoba/kotoba-server/internal/reqid"
)

// Canonical routes.
const (
	RouteIdentity = "/"
	RouteQuery    = "/api/query"
	RouteIDE      = "/api/ide"
	RouteMetrics  = "/metrics"
)

// Handler routes requests to the GraphQL endpoint and its companions.
type Handler struct {
	app     *app.App
	schema  *graph.Schema
	opt     Options
	name    string
	handler http.Handler
}

type Options struct {
	// Timeout sets a default timeout if the incoming request context has none.
	// 0 means no default timeout.
	Timeout time.Duration

	// Pretty enables indented JSON responses (useful for dev).
	Pretty bool

	// MaxBodyBytes limits the size of the request body. 0 means unlimited.
	MaxBodyBytes int64

	// CORS configuration. If AllowedOrigins is empty, CORS is disabled.
	CORS CORSOptions

	// IDE serves the GraphiQL page at RouteIDE when true.
	IDE bool

	// Gzip compresses responses for clients that accept it.
	Gzip bool

	// Metrics is served at RouteMetrics when set.
	Metrics http.Handler

	// QueryCache holds parsed documents. nil parses every request.
	QueryCache *querycache.Cache
}

type Option func(*Options)

func WithTimeout(d time.Duration) Option { return func(o *Options) { o.Timeout = d } }
func WithPretty(enable bool) Option      { return func(o *Options) { o.Pretty = enable } }
func WithMaxBodyBytes(n int64) Option    { return func(o *Options) { o.MaxBodyBytes = n } }
func WithCORS(origins ...string) Option {
	return func(o *Options) { o.CORS.AllowedOrigins = origins }
}
func WithIDE(enable bool) Option                { return func(o *Options) { o.IDE = enable } }
func WithGzip(enable bool) Option               { return func(o *Options) { o.Gzip = enable } }
func WithMetrics(h http.Handler) Option         { return func(o *Options) { o.Metrics = h } }
func WithQueryCache(c *querycache.Cache) Option { return func(o *Options) { o.QueryCache = c } }

// CORSOptions holds simple CORS settings.
type CORSOptions struct {
	AllowedOrigins []string
}

// New creates the HTTP handler. a is shared read-only by every operation.
func New(a *app.App, sch *graph.Schema, opts ...Option) (*Handler, error) {
	if a == nil {
		return nil, errNilApp
	}
	if sch == nil {
		return nil, errNilSchema
	}
	op := Options{Timeout: 10 * time.Second, IDE: true}
	for _, f := range opts {
		f(&op)
	}
	h := &Handler{app: a, schema: sch, opt: op, name: a.Name()}

	mux := http.NewServeMux()
	mux.Handle("GET "+RouteIdentity+"{$}", h.instrument(RouteIdentity, http.HandlerFunc(h.serveIdentity)))
	mux.Handle(RouteQuery, h.instrument(RouteQuery, http.HandlerFunc(h.serveQuery)))
	if op.IDE {
		mux.Handle("GET "+RouteIDE, h.instrument(RouteIDE, playground.Handler(a.Name(), RouteQuery)))
	}
	if op.Metrics != nil {
		mux.Handle("GET "+RouteMetrics, op.Metrics)
	}

	h.handler = mux
	if op.Gzip {
		h.handler = gzhttp.GzipHandler(mux)
	}
	return h, nil
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.handler.ServeHTTP(w, r)
}

// instrument applies the default timeout, tags the request with an id and
// publishes HTTP lifecycle events around next.
func (h *Handler) instrument(route string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if _, ok := ctx.Deadline(); !ok && h.opt.Timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, h.opt.Timeout)
			defer cancel()
		}
		ctx, _ = reqid.NewContext(ctx)
		r = r.WithContext(ctx)
		w.Header().Set("X-Request-Id", reqid.String(ctx))

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		eventbus.Publish(ctx, events.HTTPStart{Request: r, Route: route})
		defer func() {
			eventbus.Publish(ctx, events.HTTPFinish{Request: r, Route: route, Status: rec.status, Duration: time.Since(start)})
		}()
		next.ServeHTTP(rec, r)
	})
}

type identity struct {
	Name string `json:"name"`
	OK   bool   `json:"ok"`
}

func (h *Handler) serveIdentity(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, identity{Name: h.name, OK: true}, h.opt.Pretty)
}

type statusRecorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (r *statusRecorder) WriteHeader(code int) {
	if !r.wroteHeader {
		r.status = code
		r.wroteHeader = true
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	r.wroteHeader = true
	return r.ResponseWriter.Write(b)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter { return r.ResponseWriter }
