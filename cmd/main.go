package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"opschat/auth"
	"opschat/internal"
	"opschat/observability"
	"opschat/ratelimit"
	"opschat/repositories"
	"opschat/runtime"
	"opschat/runtime/workers"
	"opschat/server"
	"opschat/services"

	"github.com/Netflix/go-env"
	"github.com/dgraph-io/badger/v4"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/logs"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}

// run initializes all components, manages the server lifecycle, and
// centralizes error reporting, so every deferred cleanup executes before
// the process exits and the entry point stays testable.
func run() error {
	// 1. Configuration & Logger
	_ = godotenv.Load()
	var config Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	log := logs.GetLoggerFromString(config.LogLevel)

	// 2. Database (BadgerDB)
	db, err := badger.Open(badger.DefaultOptions(config.BadgerFilepath).
		WithLoggingLevel(badger.WARNING))
	if err != nil {
		return fmt.Errorf("database opening failed: %w", err)
	}
	defer func() {
		log.Info("Closing BadgerDB...")
		_ = db.Close()
	}()

	// 3. Core components
	stats := observability.NewStats()
	registry := runtime.NewRegistry(log)
	limiter := ratelimit.NewLimiter(config.RateLimitMax, config.RateLimitWindow)
	messageRepository := repositories.NewMessageRepository(db, log, config.LimitMessages)
	userDirectory := repositories.NewUserDirectory(db)
	tokens := auth.NewTokenManager([]byte(config.JWTSecret), config.TokenDuration)

	chatService := services.NewChatService(log, messageRepository, userDirectory,
		registry, limiter, stats)

	// 4. Context & Signals
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 5. Background workers under supervision
	sup := workers.NewSupervisor(log)
	sup.Add(
		workers.NewRateWindowSweeper(log, limiter, config.SweepInterval),
		workers.NewBadgerGC(log, db, config.BadgerGCInterval),
	)
	go sup.Run(ctx)

	// 6. Optional debug surface
	if config.DebugPort != 0 {
		internal.StartDebugServer(log, db, config.DebugPort, stats.Snapshot)
	}

	// 7. HTTP server
	opts := server.Options{
		AllowedOrigins:    config.AllowedOrigins,
		ConnBufferSize:    config.ConnectionBufferSize,
		RequestsPerSecond: config.HTTPRequestsPerSecond,
		Burst:             config.HTTPBurst,
	}
	srv := server.New(log, chatService, registry, tokens, opts)
	httpServer := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", config.Host, config.Port),
		Handler: srv.Router(opts),
	}

	errChan := make(chan error, 1)
	go func() {
		log.Info("Starting HTTP server", "address", httpServer.Addr, "at", time.Now().UTC())
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("http server error: %w", err)
		}
	}()

	// 8. Wait for Stop or Error
	select {
	case <-ctx.Done():
		log.Info("Shutting down gracefully...")
	case err := <-errChan:
		return err
	}

	// 9. Final Cleanup
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Warn("HTTP shutdown incomplete", "error", err)
	}
	sup.Stop()
	log.Info("Program stopped cleanly")

	return nil
}
