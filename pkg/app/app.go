// Package app is a small tick-driven host: systems grouped in phases run once
// per tick against a World of typed resources, double-buffered events and
// observers.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"time"

	"github.com/OCAP2/tickbridge/internal/dispatcher"
)

// Plugin bundles setup that is applied to an App once.
type Plugin interface {
	Build(a *App)
}

// App owns the World and the Schedule.
type App struct {
	world    *World
	schedule *Schedule
	plugins  map[reflect.Type]struct{}
	logger   *slog.Logger
}

// Option configures an App.
type Option func(*options)

type options struct {
	logger    *slog.Logger
	observers *dispatcher.Dispatcher
}

// WithLogger sets the logger used by the app and its systems.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithDispatcher sets the dispatcher that delivers triggered values to observers.
func WithDispatcher(d *dispatcher.Dispatcher) Option {
	return func(o *options) {
		o.observers = d
	}
}

// New creates an App with an empty world and schedule.
func New(opts ...Option) (*App, error) {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if o.observers == nil {
		d, err := dispatcher.New(o.logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create observer dispatcher: %w", err)
		}
		o.observers = d
	}

	return &App{
		world:    newWorld(o.observers, o.logger),
		schedule: NewSchedule(),
		plugins:  make(map[reflect.Type]struct{}),
		logger:   o.logger,
	}, nil
}

// World returns the app's world.
func (a *App) World() *World {
	return a.world
}

// Logger returns the app's logger.
func (a *App) Logger() *slog.Logger {
	return a.logger
}

// Tick returns the current tick number.
func (a *App) Tick() uint64 {
	return a.world.Tick()
}

// AddSystems appends systems to a phase.
func (a *App) AddSystems(phase Phase, systems ...System) *App {
	for _, s := range systems {
		a.schedule.Add(phase, s)
	}
	return a
}

// AddPlugins builds each plugin. A plugin type is only built once.
func (a *App) AddPlugins(plugins ...Plugin) *App {
	for _, p := range plugins {
		if p == nil {
			continue
		}
		t := reflect.TypeOf(p)
		if _, ok := a.plugins[t]; ok {
			a.logger.Debug("plugin already added", "plugin", t.String())
			continue
		}
		a.plugins[t] = struct{}{}
		p.Build(a)
	}
	return a
}

// Update runs a single tick.
func (a *App) Update() {
	a.world.tick.Add(1)
	a.schedule.Run(a.world)
}

// Run calls Update every rate until ctx is done or a system requests exit.
func (a *App) Run(ctx context.Context, rate time.Duration) error {
	if rate <= 0 {
		return fmt.Errorf("invalid tick rate %s", rate)
	}

	ticker := time.NewTicker(rate)
	defer ticker.Stop()

	a.logger.Info("tick loop started", "rate", rate)
	for {
		select {
		case <-ctx.Done():
			a.logger.Info("tick loop stopped", "tick", a.Tick(), "reason", ctx.Err())
			return nil
		case <-ticker.C:
			a.Update()
			if a.world.ExitRequested() {
				a.logger.Info("tick loop stopped", "tick", a.Tick(), "reason", "exit requested")
				return nil
			}
		}
	}
}

// Shutdown closes every resource implementing io.Closer, newest first.
func (a *App) Shutdown() error {
	var errs []error
	for _, nc := range a.world.closers() {
		if err := nc.c.Close(); err != nil {
			a.logger.Error("failed to close resource", "resource", nc.name, "error", err)
			errs = append(errs, fmt.Errorf("close %s: %w", nc.name, err))
		}
	}
	return errors.Join(errs...)
}
