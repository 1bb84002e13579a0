// Package config resolves server settings from flags, environment variables
// and an optional config file.
package config

import (
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	app "github.com/kotoba/kotoba-server/internal/app"
)

// EnvPrefix prefixes every environment variable, e.g. KOTOBA_SERVER_ADDR.
const EnvPrefix = "KOTOBA"

// Config is the validated server configuration.
type Config struct {
	AppName string
	Server  Server
	GraphQL GraphQL
	Log     Log
	Metrics Metrics
	Otel    Otel
}

type Server struct {
	Addr            string
	Pretty          bool
	Timeout         time.Duration
	MaxBodyBytes    int64
	CORSOrigins     []string
	IDE             bool
	ShutdownTimeout time.Duration
	Gzip            bool
}

type GraphQL struct {
	Introspection bool
	// QueryCache is the number of parsed documents kept. 0 disables the cache.
	QueryCache int64
}

type Log struct {
	Level  string
	Format string
}

type Metrics struct {
	Enabled bool
}

type Otel struct {
	// Endpoint is the OTLP gRPC collector address. Empty disables tracing.
	Endpoint string
	Service  string
}

type option struct {
	key   string
	flag  string
	value any
	usage string
}

var options = []option{
	{"app.name", "name", app.DefaultName, "Server name reported by the identity endpoint and the app query."},
	{"server.addr", "addr", ":8080", "Address to listen on."},
	{"server.pretty", "pretty", false, "Indent JSON responses."},
	{"server.timeout", "timeout", 10 * time.Second, "Default per-request timeout. 0 disables it."},
	{"server.max-body", "max-body", "1MiB", "Maximum request body size, e.g. 512KiB or 2MB. 0 means unlimited."},
	{"server.cors-origins", "cors-origins", []string{}, "Allowed CORS origins. Use * for any origin."},
	{"server.ide", "ide", true, "Serve the GraphiQL IDE at /api/ide."},
	{"server.shutdown-timeout", "shutdown-timeout", 10 * time.Second, "Time to wait for in-flight requests on shutdown."},
	{"server.gzip", "gzip", true, "Compress responses when the client accepts gzip."},
	{"graphql.introspection", "introspection", true, "Allow __schema and __type queries."},
	{"graphql.query-cache", "query-cache", int64(1000), "Number of parsed documents to cache. 0 disables the cache."},
	{"log.level", "log-level", "info", "Log level: debug, info, warn or error."},
	{"log.format", "log-format", "json", "Log format: json or console."},
	{"metrics.enabled", "metrics", true, "Serve Prometheus metrics at /metrics."},
	{"otel.endpoint", "otel-endpoint", "", "OTLP gRPC endpoint for traces. Empty disables tracing."},
	{"otel.service", "otel-service", "kotoba", "Service name reported with traces."},
}

// BindFlags registers every setting on fs.
func BindFlags(fs *pflag.FlagSet) {
	fs.String("config", "", "Configuration file. Overridden by environment variables and flags.")
	for _, o := range options {
		switch v := o.value.(type) {
		case string:
			fs.String(o.flag, v, o.usage)
		case bool:
			fs.Bool(o.flag, v, o.usage)
		case int64:
			fs.Int64(o.flag, v, o.usage)
		case time.Duration:
			fs.Duration(o.flag, v, o.usage)
		case []string:
			fs.StringSlice(o.flag, v, o.usage)
		}
	}
}

// NewViper returns a viper instance with defaults, environment lookup and the
// flags registered by BindFlags bound to their keys.
func NewViper(fs *pflag.FlagSet) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	for _, o := range options {
		v.SetDefault(o.key, o.value)
		if fs == nil {
			continue
		}
		if f := fs.Lookup(o.flag); f != nil {
			if err := v.BindPFlag(o.key, f); err != nil {
				return nil, errors.Wrapf(err, "binding flag %q", o.flag)
			}
		}
	}
	if fs != nil {
		if f := fs.Lookup("config"); f != nil && f.Value.String() != "" {
			v.SetConfigFile(f.Value.String())
			if err := v.ReadInConfig(); err != nil {
				return nil, errors.Wrap(err, "reading config")
			}
		}
	}
	return v, nil
}

// Load reads and validates the configuration held by v.
func Load(v *viper.Viper) (*Config, error) {
	maxBody, err := parseBytes(v.GetString("server.max-body"))
	if err != nil {
		return nil, errors.Wrap(err, "server.max-body")
	}
	cfg := &Config{
		AppName: v.GetString("app.name"),
		Server: Server{
			Addr:            v.GetString("server.addr"),
			Pretty:          v.GetBool("server.pretty"),
			Timeout:         v.GetDuration("server.timeout"),
			MaxBodyBytes:    maxBody,
			CORSOrigins:     splitList(v.GetStringSlice("server.cors-origins")),
			IDE:             v.GetBool("server.ide"),
			ShutdownTimeout: v.GetDuration("server.shutdown-timeout"),
			Gzip:            v.GetBool("server.gzip"),
		},
		GraphQL: GraphQL{
			Introspection: v.GetBool("graphql.introspection"),
			QueryCache:    v.GetInt64("graphql.query-cache"),
		},
		Log: Log{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
		},
		Metrics: Metrics{Enabled: v.GetBool("metrics.enabled")},
		Otel: Otel{
			Endpoint: v.GetString("otel.endpoint"),
			Service:  v.GetString("otel.service"),
		},
	}
	if err := cfg.validate(); err != nil {
		return nil, errors.Wrap(err, "invalid configuration")
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch {
	case strings.TrimSpace(c.AppName) == "":
		return errors.New("app.name must not be empty")
	case c.Server.Addr == "":
		return errors.New("server.addr must not be empty")
	case c.Server.Timeout < 0:
		return errors.Errorf("server.timeout must not be negative, got %s", c.Server.Timeout)
	case c.Server.ShutdownTimeout < 0:
		return errors.Errorf("server.shutdown-timeout must not be negative, got %s", c.Server.ShutdownTimeout)
	case c.GraphQL.QueryCache < 0:
		return errors.Errorf("graphql.query-cache must not be negative, got %d", c.GraphQL.QueryCache)
	case c.Log.Format != "json" && c.Log.Format != "console":
		return errors.Errorf("log.format must be json or console, got %q", c.Log.Format)
	}
	return nil
}

func parseBytes(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "0" {
		return 0, nil
	}
	n, err := humanize.ParseBytes(s)
	if err != nil {
		return 0, err
	}
	return int64(n), nil
}

// splitList accepts both repeated values and comma separated ones, as
// environment variables only carry a single string.
func splitList(in []string) []string {
	var out []string
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
