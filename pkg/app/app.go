// Package app runs the worker's long-lived components side by side.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-logr/logr"
	"golang.org/x/sync/errgroup"
)

// Module represents a runnable component
type Module interface {
	Name() string
	Run(ctx context.Context) error
}

// App runs modules until the context ends or one of them fails
type App struct {
	modules []Module
	logger  logr.Logger
}

// New creates an App. At least one module is required.
func New(logger logr.Logger, modules ...Module) (*App, error) {
	if len(modules) == 0 {
		return nil, errors.New("no modules configured")
	}
	return &App{modules: modules, logger: logger}, nil
}

// Run starts all modules and blocks until they have all returned. The first
// module error cancels the others and is returned.
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	for _, m := range a.modules {
		g.Go(func() error {
			a.logger.Info("starting module", "module", m.Name())
			if err := m.Run(ctx); err != nil {
				return fmt.Errorf("module %s: %w", m.Name(), err)
			}
			a.logger.Info("module stopped", "module", m.Name())
			return nil
		})
	}

	return g.Wait()
}
