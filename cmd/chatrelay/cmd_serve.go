package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"chatrelay/pkg/adapters"
	"chatrelay/pkg/config"
	"chatrelay/pkg/dispatch"
	"chatrelay/pkg/logger"
	"chatrelay/pkg/providers"
	"chatrelay/pkg/queue"
	"chatrelay/pkg/server"
)

func serveCmd() {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}
	if errs := config.Validate(cfg); len(errs) > 0 {
		fmt.Println("Configuration is invalid:")
		for _, e := range errs {
			fmt.Printf("  - %v\n", e)
		}
		os.Exit(1)
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Queue.DBPath), 0755); err != nil {
		fmt.Printf("Error preparing queue directory: %v\n", err)
		os.Exit(1)
	}
	q, err := queue.Open(cfg.Queue.DBPath, time.Duration(cfg.Queue.LeaseSec)*time.Second)
	if err != nil {
		fmt.Printf("Error opening job queue: %v\n", err)
		os.Exit(1)
	}
	defer q.Close()

	adapterReg, err := adapters.BuildRegistry(&cfg.Sources)
	if err != nil {
		fmt.Printf("Error building source adapters: %v\n", err)
		os.Exit(1)
	}
	if err := adapterReg.ValidateStartup(); err != nil {
		fmt.Printf("Error validating source adapters: %v\n", err)
		os.Exit(1)
	}
	providerReg, err := providers.BuildRegistry(&cfg.Providers, q)
	if err != nil {
		fmt.Printf("Error building providers: %v\n", err)
		os.Exit(1)
	}
	if len(adapterReg.Names()) == 0 || len(providerReg.Names()) == 0 {
		fmt.Println("Nothing to serve: enable at least one source and one provider")
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool := queue.NewPool(q, cfg.Queue.Workers, dispatch.NewExecutor(adapterReg, providerReg))
	pool.Start(ctx)

	janitor, err := queue.StartJanitor(q, cfg.Queue.CleanupSpec, time.Duration(cfg.Queue.RetentionHours)*time.Hour)
	if err != nil {
		fmt.Printf("Error starting queue janitor: %v\n", err)
		os.Exit(1)
	}

	router := dispatch.NewRouter(adapterReg, providerReg)
	srv := server.NewServer(cfg, router)
	if err := srv.Start(); err != nil {
		fmt.Printf("Error starting server: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("✓ Sources enabled: %v\n", adapterReg.Names())
	fmt.Printf("✓ Providers enabled: %v\n", providerReg.Names())
	fmt.Printf("✓ Gateway started on %s:%d\n", cfg.Gateway.Host, cfg.Gateway.Port)
	fmt.Println("Press Ctrl+C to stop.")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	fmt.Println("\nShutting down...")
	logger.InfoC("main", "Shutdown signal received")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := srv.Stop(shutdownCtx); err != nil {
		logger.ErrorCF("main", "Server shutdown error", map[string]interface{}{
			logger.FieldError: err.Error(),
		})
	}

	janitor.Stop()
	cancel()
	pool.Stop()
	fmt.Println("✓ Gateway stopped")
}
