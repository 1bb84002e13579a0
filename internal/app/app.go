// Package app holds the process-wide application state shared by every
// GraphQL operation. An App is built once during startup and never changes
// afterwards, so it can be read from any goroutine without locking.
package app

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

const DefaultName = "Kotoba Server"

// Version is overridden at build time with -ldflags "-X ...app.Version=...".
var Version = "0.1.0"

// Config carries the values an App is constructed from.
type Config struct {
	Name    string
	Version string
}

// App is the immutable application state.
type App struct {
	name      string
	version   string
	instance  string
	startedAt time.Time
}

// New constructs an App. The name is required; an empty version falls back
// to the build version.
func New(cfg Config) (*App, error) {
	if cfg.Name == "" {
		return nil, errors.New("app: name must not be empty")
	}
	version := cfg.Version
	if version == "" {
		version = Version
	}
	return &App{
		name:      cfg.Name,
		version:   version,
		instance:  uuid.NewString(),
		startedAt: time.Now(),
	}, nil
}

// Lazy returns an accessor that constructs the App on first call. Every
// caller, concurrent or later, receives the same instance and error.
func Lazy(cfg Config) func() (*App, error) {
	return lazy(cfg, New)
}

func lazy(cfg Config, newFn func(Config) (*App, error)) func() (*App, error) {
	return sync.OnceValues(func() (*App, error) {
		return newFn(cfg)
	})
}

func (a *App) Name() string         { return a.name }
func (a *App) Version() string      { return a.version }
func (a *App) Instance() string     { return a.instance }
func (a *App) StartedAt() time.Time { return a.startedAt }

// Uptime reports how long the App has existed.
func (a *App) Uptime() time.Duration { return time.Since(a.startedAt) }
