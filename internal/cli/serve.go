package cli

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/volume-sync/vsc/internal/api"
	"github.com/volume-sync/vsc/internal/audit"
	"github.com/volume-sync/vsc/internal/auth"
	"github.com/volume-sync/vsc/internal/config"
	"github.com/volume-sync/vsc/internal/dispatch"
	"github.com/volume-sync/vsc/internal/metrics"
	"github.com/volume-sync/vsc/internal/mounts"
	"github.com/volume-sync/vsc/internal/task"
	"github.com/volume-sync/vsc/internal/telemetry"
)

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the volume sync service",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe()
		},
	}
}

// runServe wires the container together and blocks until shutdown.
func runServe() error {
	log.Printf("Starting Volume Sync Container v%s", Version)

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	log.Println("Configuration loaded successfully")

	hub := telemetry.NewHub(cfg)
	log.Println("Telemetry hub initialized")

	auditLogger, err := audit.NewLogger(cfg.Audit)
	if err != nil {
		return fmt.Errorf("failed to initialize audit logger: %w", err)
	}
	log.Println("Audit logger initialized")

	source := mounts.NewTableSource(cfg.Mounts.TablePath)
	notifier := mounts.NewNotifier(source, cfg.Mounts.WatchRoots, nil, nil)

	runner := task.NewRunner(hub, notifier, cfg.Tasks.QueueCapacity)
	dispatcher := dispatch.NewDispatcher(runner, hub)

	m := metrics.New(dispatcher.PendingCount, runner.QueueDepth)
	runner.AddObserver(auditLogger)
	runner.AddObserver(m)
	dispatcher.AddViolationSink(auditLogger)
	dispatcher.AddViolationSink(m)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Subscribe before the worker starts so no completion can slip past
	// the router.
	if err := dispatcher.Subscribe(ctx); err != nil {
		return fmt.Errorf("failed to subscribe dispatcher: %w", err)
	}

	runnerErr := make(chan error, 1)
	go func() {
		runnerErr <- runner.Run(ctx)
	}()
	log.Println("Task runner started")

	var authMiddleware *auth.Middleware
	if cfg.Auth.Enabled {
		verifier, err := auth.NewVerifier(cfg.Auth)
		if err != nil {
			return fmt.Errorf("failed to create token verifier: %w", err)
		}
		authMiddleware = auth.NewMiddleware(verifier)
		log.Println("Authentication enabled")
	} else {
		authMiddleware = auth.NewMiddleware(nil)
	}

	server := api.NewServer(cfg, dispatcher, hub, runner, authMiddleware, m.Handler())

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.Start()
	}()
	log.Printf("HTTP server listening on %s", cfg.Server.ListenAddr)

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-shutdown:
		log.Printf("Received signal %v, initiating graceful shutdown...", sig)
	case err := <-serverErr:
		if err != nil {
			log.Printf("Server error: %v", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Std())
	defer shutdownCancel()

	if err := server.Stop(shutdownCtx); err != nil {
		log.Printf("Error stopping HTTP server: %v", err)
	} else {
		log.Println("HTTP server stopped gracefully")
	}

	runner.Stop()
	cancel()
	<-runnerErr
	log.Println("Task runner stopped")

	notifier.Stop()
	log.Println("Mount notifier stopped")

	hub.Stop()
	log.Println("Telemetry hub stopped")

	if err := auditLogger.Close(); err != nil {
		log.Printf("Error closing audit logger: %v", err)
	}

	log.Println("Volume Sync Container shutdown complete")
	return nil
}
