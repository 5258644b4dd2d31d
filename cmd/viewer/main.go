package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"quorum/repositories"
	"syscall"

	"github.com/Netflix/go-env"
	"github.com/dgraph-io/badger/v4"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/database"
)

// Config is the part of the server configuration the viewer needs.
type Config struct {
	BadgerFilepath string `env:"BADGER_FILEPATH,default=./data/badger"`
	DebugPort      int    `env:"DEBUG_PORT,default=8081"`
}

func main() {
	_ = godotenv.Load()
	var config Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		log.Fatalf("Config error: %v", err)
	}

	// Read-only, and past the lock so a running server can be inspected
	opts := badger.DefaultOptions(config.BadgerFilepath).
		WithReadOnly(true).
		WithBypassLockGuard(true).
		WithLoggingLevel(badger.WARNING)
	db, err := badger.Open(opts)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer func() { _ = db.Close() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Printf("Viewer started at http://localhost:%d/inspect\n", config.DebugPort)
	database.StartDebugServer(db, config.DebugPort, "/inspect", repositories.InspectMapper)
	<-ctx.Done()
}
