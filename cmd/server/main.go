// Package main is the entry point for the LearnQuest API server.
//
// MAIN PACKAGE IN GO:
// Every Go program starts execution in the main() function of the "main"
// package. The main package should be kept minimal — its job is to:
// 1. Set up logging
// 2. Load configuration (one read of the environment, in config.Load)
// 3. Create and start the server
//
// All actual logic lives in imported packages (internal/server,
// internal/handler, ...). This separation keeps the app testable.
package main

import (
	"log/slog"
	"os"
	"path/filepath"

	"github.com/sakif/learnquest/internal/config"
	"github.com/sakif/learnquest/internal/server"
)

func main() {
	// slog.NewTextHandler outputs human-readable structured logs to the
	// terminal. In production you'd likely switch to JSONHandler and
	// LevelInfo; Debug keeps development chatty.
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))

	cfg, err := config.Load()
	if err != nil {
		logger.Error("configuration error", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Ensure the database directory exists (skip for ":memory:").
	if cfg.DBPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
			logger.Error("failed to create database directory",
				slog.String("dir", filepath.Dir(cfg.DBPath)),
				slog.String("error", err.Error()),
			)
			os.Exit(1)
		}
	}

	srv, err := server.New(cfg, logger)
	if err != nil {
		logger.Error("failed to create server", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Start() blocks until the server is shut down (Ctrl+C or SIGTERM).
	if err := srv.Start(); err != nil {
		logger.Error("server error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
