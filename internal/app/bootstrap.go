package app

import (
	"context"
	"fmt"
	"io"
	"os"

	"mcpgate/internal/config"
	"mcpgate/pkg/logging"
)

// Application represents the gateway process. It follows a two-phase
// initialization pattern:
//  1. Bootstrap phase: initialize logging, load configuration, build services
//  2. Execution phase: serve HTTP (or stdio) until the context ends
//
// Example usage:
//
//	cfg := app.NewConfig(false, false, "", "")
//	application, err := app.NewApplication(cfg)
//	if err != nil {
//	    return fmt.Errorf("failed to create application: %w", err)
//	}
//	return application.Run(ctx)
type Application struct {
	config   *Config
	services *Services
}

// NewApplication performs the bootstrap sequence:
//
//  1. Configures logging based on the debug flag
//  2. Loads config.yaml from the configuration directory
//  3. Applies command line overrides
//  4. Initializes services
//
// Logs go to stderr in stdio mode so stdout stays reserved for the protocol.
func NewApplication(cfg *Config) (*Application, error) {
	appLogLevel := logging.ParseLevel(cfg.LogLevel)
	if cfg.Debug {
		appLogLevel = logging.LevelDebug
	}
	var logOutput io.Writer = os.Stdout
	if cfg.Stdio {
		logOutput = os.Stderr
	}
	if cfg.Silent {
		logOutput = io.Discard
	}
	if cfg.LogFormat == logging.FormatJSON {
		logging.Init(appLogLevel, logging.FormatJSON, logOutput)
	} else {
		logging.InitForCLI(appLogLevel, logOutput)
	}

	if cfg.ConfigPath == "" {
		dir, err := config.DefaultConfigDir()
		if err != nil {
			return nil, err
		}
		cfg.ConfigPath = dir
	}

	if cfg.Gateway == nil {
		gw, err := config.Load(cfg.ConfigPath)
		if err != nil {
			logging.Error("Bootstrap", err, "Failed to load configuration from %s", cfg.ConfigPath)
			return nil, fmt.Errorf("failed to load configuration from %s: %w", cfg.ConfigPath, err)
		}
		cfg.Gateway = &gw
	}
	if cfg.Listen != "" {
		cfg.Gateway.Listen = cfg.Listen
	}

	services, err := InitializeServices(cfg)
	if err != nil {
		logging.Error("Bootstrap", err, "Failed to initialize services")
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	return &Application{
		config:   cfg,
		services: services,
	}, nil
}

// Services returns the initialized services.
func (a *Application) Services() *Services { return a.services }

// Run serves until ctx is cancelled, then shuts down gracefully.
func (a *Application) Run(ctx context.Context) error {
	defer a.services.Close()

	if err := a.services.LoadTargets(ctx); err != nil {
		logging.Warn("Bootstrap", "Some targets could not be loaded: %v", err)
	}

	if a.config.Stdio {
		return runStdioMode(ctx, a.services, os.Stdin, os.Stdout)
	}
	return runHTTPMode(ctx, a.services)
}
