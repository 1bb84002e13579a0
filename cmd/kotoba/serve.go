package main

import (
	"context"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	app "github.com/kotoba/kotoba-server/internal/app"
	config "github.com/kotoba/kotoba-server/internal/config"
	eventbus "github.com/kotoba/kotoba-server/internal/eventbus"
	events "github.com/kotoba/kotoba-server/internal/events"
	graph "github.com/kotoba/kotoba-server/internal/graph"
	logging "github.com/kotoba/kotoba-server/internal/logging"
	metrics "github.com/kotoba/kotoba-server/internal/metrics"
	otel "github.com/kotoba/kotoba-server/internal/otel"
	querycache "github.com/kotoba/kotoba-server/internal/querycache"
	server "github.com/kotoba/kotoba-server/internal/server"
)

func runServe(ctx context.Context, cfg *config.Config) error {
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return errors.Wrap(err, "creating logger")
	}
	defer func() { _ = logger.Sync() }()

	bus := eventbus.New()
	eventbus.Use(bus)
	defer eventbus.Use(nil)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return serve(ctx, cfg, logger)
}

// serve runs the server until ctx is done or the listener fails, then drains
// in-flight requests. Events go to the global bus.
func serve(ctx context.Context, cfg *config.Config, logger *zap.Logger) (err error) {
	logger.Info("Starting Kotoba server...")
	defer logger.Info("Finished!")
	defer logging.Subscribe(logger)()

	shutdownTracing, err := otel.Setup(cfg.Otel.Endpoint, cfg.Otel.Service)
	if err != nil {
		return errors.Wrap(err, "setting up tracing")
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			logger.Warn("tracing shutdown", zap.Error(err))
		}
	}()

	a, err := app.Lazy(app.Config{Name: cfg.AppName, Version: app.Version})()
	if err != nil {
		return errors.Wrap(err, "initializing app")
	}
	sch, err := graph.NewSchema(graph.DefaultResolvers(), graph.WithIntrospection(cfg.GraphQL.Introspection))
	if err != nil {
		return errors.Wrap(err, "building schema")
	}
	cache, err := querycache.New(cfg.GraphQL.QueryCache)
	if err != nil {
		return errors.Wrap(err, "creating query cache")
	}
	defer cache.Close()

	opts := []server.Option{
		server.WithTimeout(cfg.Server.Timeout),
		server.WithPretty(cfg.Server.Pretty),
		server.WithMaxBodyBytes(cfg.Server.MaxBodyBytes),
		server.WithCORS(cfg.Server.CORSOrigins...),
		server.WithIDE(cfg.Server.IDE),
		server.WithGzip(cfg.Server.Gzip),
		server.WithQueryCache(cache),
	}
	if cfg.Metrics.Enabled {
		m := metrics.New()
		defer m.Subscribe()()
		opts = append(opts, server.WithMetrics(m.Handler()))
	}
	h, err := server.New(a, sch, opts...)
	if err != nil {
		return errors.Wrap(err, "creating handler")
	}

	ln, err := net.Listen("tcp", cfg.Server.Addr)
	if err != nil {
		return errors.Wrapf(err, "listening on %s", cfg.Server.Addr)
	}
	srv := &http.Server{
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}

	eventbus.Publish(ctx, events.ServerStart{Addr: ln.Addr().String(), Instance: a.Instance()})
	defer func() {
		eventbus.Publish(context.Background(), events.ServerStop{Uptime: a.Uptime(), Err: err})
	}()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "serving")
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return errors.Wrap(srv.Shutdown(shutdownCtx), "shutting down")
	})
	return g.Wait()
}
