// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"io"
	"os"
	"slices"

	"vvimage/internal/artifactstore"
	"vvimage/internal/assemble"
	"vvimage/internal/config"
)

type (
	// App wires CLI services and shared dependencies. All Cobra command
	// handlers receive an App reference and load configuration and stores
	// through it.
	App struct {
		Config config.Provider
		// Store opens the persistent artifact store for a configuration.
		Store  func(config.StoreConfig) (artifactstore.Store, error)
		// BuilderOptions are applied to every assemble.Builder before the
		// command's own options.
		BuilderOptions []assemble.Option
		stdout         io.Writer
		stderr         io.Writer
	}

	// Dependencies defines the injection points for building an App. Nil
	// fields are replaced with production defaults by NewApp.
	Dependencies struct {
		Config config.Provider
		Store          func(config.StoreConfig) (artifactstore.Store, error)
		BuilderOptions []assemble.Option
		Stdout         io.Writer
		Stderr         io.Writer
	}
)

// NewApp creates an App, filling unset dependencies with production defaults.
func NewApp(deps Dependencies) *App {
	app := &App{
		Config:         deps.Config,
		Store:          deps.Store,
		BuilderOptions: deps.BuilderOptions,
		stdout:         deps.Stdout,
		stderr:         deps.Stderr,
	}
	if app.Config == nil {
		app.Config = config.NewProvider()
	}
	if app.Store == nil {
		app.Store = artifactstore.New
	}
	if app.stdout == nil {
		app.stdout = os.Stdout
	}
	if app.stderr == nil {
		app.stderr = os.Stderr
	}
	return app
}

// LoadConfig loads the build file named by --config, or vvimage.cue in the
// working directory, and returns it with the path it came from.
func (a *App) LoadConfig(ctx context.Context) (*config.Config, string, error) {
	wd, err := os.Getwd()
	if err != nil {
		return nil, "", err
	}
	return a.Config.Load(ctx, config.LoadOptions{ConfigFilePath: cfgFile, WorkDir: wd})
}

// NewBuilder creates the assembler for cfg with the App's builder options
// followed by opts.
func (a *App) NewBuilder(cfg *config.Config, opts ...assemble.Option) (*assemble.Builder, error) {
	return assemble.NewBuilder(cfg, append(slices.Clone(a.BuilderOptions), opts...)...)
}
