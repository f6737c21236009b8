// Package main provides the main entry point for the userdir service: a
// user directory that reconciles a read-only upstream catalog with a local
// mutable overlay store behind one HTTP API.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/overlaykit/userdir/api"
	"github.com/overlaykit/userdir/pkg/config"
	"github.com/overlaykit/userdir/pkg/identity"
	"github.com/overlaykit/userdir/pkg/interfaces"
	"github.com/overlaykit/userdir/pkg/logger"
	"github.com/overlaykit/userdir/pkg/metrics"
	"github.com/overlaykit/userdir/pkg/registry"
	"github.com/overlaykit/userdir/pkg/remote"
	"github.com/overlaykit/userdir/pkg/store"
)

// Version information (set by build process)
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// Command line flags
var (
	configFile  = flag.String("config", "", "Path to configuration file")
	logLevel    = flag.String("log-level", "", "Log level override (debug, info, warn, error)")
	showVersion = flag.Bool("version", false, "Show version information")
	dumpConfig  = flag.String("dump-config", "", "Write the effective configuration to the given file and exit")
)

func main() {
	flag.Parse()

	// Show version if requested
	if *showVersion {
		fmt.Printf("userdir %s\n", Version)
		fmt.Printf("Build Time: %s\n", BuildTime)
		fmt.Printf("Git Commit: %s\n", GitCommit)
		os.Exit(0)
	}

	// Setup context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Setup signal handling
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Println("Received shutdown signal, gracefully shutting down...")
		cancel()
	}()

	// Initialize and run the service
	if err := run(ctx); err != nil {
		log.Fatalf("Application failed: %v", err)
	}
}

func run(ctx context.Context) error {
	// Load configuration
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	if *dumpConfig != "" {
		if err := cfg.ToYAMLFile(*dumpConfig); err != nil {
			return fmt.Errorf("failed to write configuration: %w", err)
		}
		fmt.Printf("Wrote effective configuration to %s\n", *dumpConfig)
		return nil
	}

	// Initialize logger
	logger := logger.NewConsoleLogger(cfg.LogLevel)

	logger.Info("Starting userdir", map[string]interface{}{
		"version":    Version,
		"build_time": BuildTime,
		"git_commit": GitCommit,
	})

	// Open the overlay store
	overlay, err := store.New(cfg.Store)
	if err != nil {
		return fmt.Errorf("failed to open overlay store: %w", err)
	}
	defer func() {
		if closeErr := overlay.Close(); closeErr != nil {
			logger.Error("Failed to close overlay store", closeErr)
		}
	}()

	// The audit trail rides on the overlay store when the driver supports it
	var audit interfaces.AuditTrail
	if cfg.Audit.Enabled {
		trail, ok := overlay.(interfaces.AuditTrail)
		if !ok {
			logger.Warn("audit trail enabled but the configured store cannot record entries", map[string]interface{}{
				"driver": cfg.Store.Driver,
			})
		} else {
			audit = trail
		}
	}

	// Initialize metrics
	var recorder interfaces.Metrics = metrics.NewNoOpMetrics()
	if cfg.Metrics.Enabled {
		recorder = metrics.NewRecorder()
	}

	// Wire the reconciliation service
	catalog := remote.NewClient(cfg.Remote, logger)
	allocator := identity.NewAllocator(overlay, cfg.Allocator, logger)
	reg := registry.NewService(catalog, overlay, allocator, audit, recorder, logger)

	// Follow the config file for log level changes; structural settings
	// need a restart.
	if *configFile != "" {
		watchErr := cfg.Watch(*configFile, func(updated *config.Config) {
			logger.SetLevel(updated.LogLevel)
			logger.Info("Configuration reloaded", map[string]interface{}{
				"log_level": updated.LogLevel,
			})
		})
		if watchErr != nil {
			logger.Warn("configuration watch unavailable", map[string]interface{}{
				"error": watchErr.Error(),
			})
		}
	}

	// Start the API server (blocks until the context is cancelled)
	server := api.NewServer(reg, overlay, cfg, recorder, logger)
	return server.Start(ctx)
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(*configFile)
	if err != nil {
		return nil, err
	}

	// Override with command line flags
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}

	return cfg, nil
}
