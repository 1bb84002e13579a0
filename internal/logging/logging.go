// Package logging builds the process logger and logs lifecycle events.
package logging

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	eventbus "github.com/kotoba/kotoba-server/internal/eventbus"
	events "github.com/kotoba/kotoba-server/internal/events"
	reqid "github.com/kotoba/kotoba-server/internal/reqid"
)

// New returns a logger at level. Format is "json" or "console".
func New(level, format string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	var cfg zap.Config
	switch format {
	case "", "json":
		cfg = zap.NewProductionConfig()
	case "console":
		cfg = zap.NewDevelopmentConfig()
	default:
		return nil, fmt.Errorf("unknown log format %q", format)
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	return cfg.Build()
}

// Subscribe logs request and operation completion to logger until the
// returned function is called.
func Subscribe(logger *zap.Logger) (unsubscribe func()) {
	unsubs := []func(){
		eventbus.Subscribe(func(ctx context.Context, e events.HTTPFinish) {
			logger.Info("http request",
				zap.String("rid", reqid.String(ctx)),
				zap.String("method", e.Request.Method),
				zap.String("path", e.Request.URL.Path),
				zap.String("route", e.Route),
				zap.Int("status", e.Status),
				zap.Duration("duration", e.Duration),
			)
		}),
		eventbus.Subscribe(func(ctx context.Context, e events.GraphQLFinish) {
			fields := []zap.Field{
				zap.String("rid", reqid.String(ctx)),
				zap.String("operation", e.OperationName),
				zap.String("type", e.OperationType),
				zap.Int("errors", len(e.Errors)),
				zap.Duration("duration", e.Duration),
			}
			if len(e.Errors) > 0 {
				logger.Warn("graphql operation", append(fields, zap.Error(e.Errors[0]))...)
				return
			}
			logger.Debug("graphql operation", fields...)
		}),
		eventbus.Subscribe(func(_ context.Context, e events.ServerStart) {
			logger.Info("listening", zap.String("addr", e.Addr), zap.String("instance", e.Instance))
		}),
		eventbus.Subscribe(func(_ context.Context, e events.ServerStop) {
			if e.Err != nil {
				logger.Error("server stopped", zap.Duration("uptime", e.Uptime), zap.Error(e.Err))
				return
			}
			logger.Info("server stopped", zap.Duration("uptime", e.Uptime))
		}),
	}
	return func() {
		for _, u := range unsubs {
			u()
		}
	}
}
