package app

import (
	"io"
	"log/slog"

	"github.com/specialistvlad/genoflow/internal/config"
	"github.com/specialistvlad/genoflow/internal/registry"
	"github.com/specialistvlad/genoflow/internal/script"
	"github.com/specialistvlad/genoflow/internal/workflow"
)

// App encapsulates the application's dependencies, configuration, and lifecycle.
type App struct {
	outW     io.Writer
	logger   *slog.Logger
	config   *Config
	loader   config.Loader
	registry *registry.Registry[workflow.Workflow]
	runner   script.Runner
}

// NewApp is the constructor for the main application. It returns a fully
// initialized App instance, including its own isolated logger and registry.
// Without modules, the core modules are registered.
func NewApp(outW io.Writer, cfg *Config, loader config.Loader, modules ...registry.Module[workflow.Workflow]) *App {
	logger := newLogger(cfg, outW)
	logger.Debug("Logger configured successfully.")

	reg := registry.New[workflow.Workflow]("workflow")
	if len(modules) == 0 {
		modules = coreModules
	}
	reg.Load(modules...)
	logger.Debug("All Go modules registered.", "count", len(modules), "workflows", reg.Names())

	return &App{
		outW:     outW,
		logger:   logger,
		config:   cfg,
		loader:   loader,
		registry: reg,
		runner:   script.ExecRunner{},
	}
}

// Registry returns the application's workflow registry. This is primarily
// for testing.
func (a *App) Registry() *registry.Registry[workflow.Workflow] {
	return a.registry
}
