package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"quorum/auth"
	"quorum/contract"
	"quorum/errors"
	"quorum/internal"
	"quorum/repositories"
	"quorum/runtime"
	"quorum/search"
	"quorum/transport/admin"
	"quorum/transport/api"
	"quorum/transport/ws"
	"syscall"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/mama165/sdk-go/database"
	"github.com/mama165/sdk-go/logs"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Exit codes to provide meaningful status to the operating system or service manager.
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Server terminated with error: %v\n", err)
	}
	os.Exit(code)
}

// run wires the stores, the core and the three listeners, then waits for a
// signal or a listener failure. Every defer runs before the exit code is returned.
func run() (int, error) {
	// 1. Configuration & Logger
	config, err := internal.LoadConfig()
	if err != nil {
		return exitConfig, err
	}
	logger := logs.GetLoggerFromString(config.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Stores. Memberships always live in Badger, messages where configured.
	db, err := badger.Open(buildBadgerOpts(config, logger, ctx))
	if err != nil {
		return exitRuntime, fmt.Errorf("database opening failed: %w", err)
	}
	defer func() {
		logger.Info("Closing BadgerDB...")
		_ = db.Close()
	}()

	if config.DebugPort > 0 {
		endpoint := "/inspect"
		logger.Info("Debug Badger inspector available", "url", fmt.Sprintf("http://localhost:%d%s", config.DebugPort, endpoint))
		database.StartDebugServer(db, config.DebugPort, endpoint, repositories.InspectMapper)
	}

	messages, closeMessages, err := openMessageStore(ctx, config, logger, db)
	if err != nil {
		return exitRuntime, err
	}
	defer closeMessages()

	index, err := search.Open(config.BlugeFilepath, logger, config.SearchLimit)
	if err != nil {
		return exitRuntime, fmt.Errorf("failed to open bluge index: %w", err)
	}
	defer func() {
		logger.Info("Closing Bluge...")
		_ = index.Close()
	}()

	// 3. Core
	orchestrator, err := runtime.NewOrchestrator(logger, config, messages, repositories.NewMembershipRepository(db), index)
	if err != nil {
		return exitConfig, err
	}
	go orchestrator.Start(ctx)

	// 4. Transports
	errChan := make(chan error, 2)
	resolver := auth.NewResolver([]byte(config.JWTSecret))
	websocket := ws.NewHandler(logger, resolver, orchestrator.Router(), orchestrator.Ingest(), orchestrator.Membership(), ws.Options{
		BufferSize:        config.ConnectionBufferSize,
		MaxFrameBytes:     config.MaxFrameBytes,
		RateLimitBurst:    config.RateLimitBurst,
		RateLimitInterval: config.RateLimitInterval,
		AllowedOrigins:    config.AllowedOriginList(),
	})
	apiServer := api.NewServer(logger, resolver, orchestrator.Ingest(), orchestrator.Membership(), orchestrator.Search(),
		func() any { return orchestrator.Stats() }, websocket, config.MaxFrameBytes)
	httpServer := &http.Server{
		Addr:              config.HTTPAddr,
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("Starting HTTP server", "address", config.HTTPAddr, "at", time.Now().UTC())
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	listener, err := net.Listen("tcp", config.AdminAddr)
	if err != nil {
		return exitRuntime, fmt.Errorf("failed to listen on %s: %w", config.AdminAddr, err)
	}
	adminServer := admin.NewServer(logger)
	go func() {
		logger.Info("Starting gRPC admin server", "address", config.AdminAddr)
		if err := adminServer.Serve(listener); err != nil {
			errChan <- fmt.Errorf("gRPC admin server error: %w", err)
		}
	}()
	adminServer.SetServing(true)

	// 5. Wait for Stop or Error
	exitCode, runErr := exitOK, error(nil)
	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	case runErr = <-errChan:
		exitCode = exitRuntime
	}

	// 6. Graceful Shutdown: refuse new work, close the rooms, drain the core.
	logger.Info("Shutting down gracefully...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.ShutdownTimeout)
	defer cancel()

	adminServer.SetServing(false)
	if err := websocket.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Websocket connections still open", "count", websocket.Active(), "error", err)
	}
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP server shutdown", "error", err)
	}
	if err := orchestrator.Stop(shutdownCtx); err != nil {
		logger.Warn("Orchestrator did not drain", "error", err)
	}
	adminServer.Stop()
	logger.Info("Program stopped cleanly")

	return exitCode, runErr
}

// openMessageStore returns the message repository of the configured driver
// and how to release it.
func openMessageStore(ctx context.Context, config internal.Config, logger *slog.Logger, db *badger.DB) (contract.IMessageRepository, func(), error) {
	switch config.StoreDriver {
	case internal.StoreMongo:
	case internal.StoreBolt:
		repository, err := repositories.OpenBoltMessageRepository(config.BoltFilepath, logger, config.LimitMessages)
		if err != nil {
			return nil, nil, fmt.Errorf("bbolt opening failed: %w", err)
		}
		logger.Info("Messages stored in bbolt", "path", config.BoltFilepath)
		return repository, func() { _ = repository.Close() }, nil
	default:
		return repositories.NewMessageRepository(db, logger, config.LimitMessages), func() {}, nil
	}

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(config.MongoURI))
	if err != nil {
		return nil, nil, fmt.Errorf("mongo connection failed: %w", err)
	}
	disconnect := func() {
		logger.Info("Closing MongoDB...")
		_ = client.Disconnect(context.Background())
	}
	if err = client.Ping(connectCtx, nil); err != nil {
		disconnect()
		return nil, nil, fmt.Errorf("mongo unreachable: %w", err)
	}
	repository, err := repositories.NewMongoMessageRepository(connectCtx, client.Database(config.MongoDatabase), logger, config.LimitMessages)
	if err != nil {
		disconnect()
		return nil, nil, err
	}
	logger.Info("Messages stored in MongoDB", "database", config.MongoDatabase)
	return repository, disconnect, nil
}

func buildBadgerOpts(config internal.Config, logger *slog.Logger, ctx context.Context) badger.Options {
	options := badger.DefaultOptions(config.BadgerFilepath)
	if logger.Enabled(ctx, slog.LevelDebug) {
		return options.WithLoggingLevel(badger.DEBUG)
	}
	return options.WithLoggingLevel(badger.WARNING)
}
