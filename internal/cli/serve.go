// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// serve.go - HTTP API server command handler for pipechat.
//
// Command: serve
//
// Examples:
//   pipechat serve              Start on the configured port (default 8098)
//   pipechat serve --port 9000  Start on a specific port
package cli

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jeranaias/pipechat/internal/chat"
	"github.com/jeranaias/pipechat/internal/config"
	"github.com/jeranaias/pipechat/internal/pipe"
	"github.com/jeranaias/pipechat/internal/server"
)

// HandleServe starts the HTTP API server and blocks until shutdown.
func HandleServe(args Args) {
	cfg := config.Global()
	if err := cfg.RequireAPIKey(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\nRun 'pipechat setup' or set PIPECHAT_API_KEY.\n", err)
		os.Exit(1)
	}

	port := cfg.Server.Port
	if args.Port != 0 {
		port = args.Port
	}

	engine := chat.NewEngine(
		pipe.NewClient(cfg.Pipe.APIKey).WithBaseURL(cfg.Pipe.BaseURL),
		cfg.Pipe.Name,
		cfg.Pipe.MemoryName,
	).WithStreamTimeout(time.Duration(cfg.Pipe.StreamTimeoutSecs) * time.Second)

	srv := server.NewServer(engine, port).
		WithRequestTimeout(time.Duration(cfg.Pipe.RequestTimeoutSecs) * time.Second).
		WithRateLimiter(server.NewIPRateLimiter(cfg.Server.RateLimitRPS, cfg.Server.RateLimitBurst))

	// Hot-reload config changes; the engine picks up new timeouts on restart,
	// live reload only retunes the stream deadline.
	var watcher *config.Watcher
	if path, err := config.Path(); err == nil {
		watcher, err = config.NewWatcher(path, func(c *config.Config) {
			engine.WithStreamTimeout(time.Duration(c.Pipe.StreamTimeoutSecs) * time.Second)
		})
		if err != nil {
			log.Printf("CONFIG_WATCH_UNAVAILABLE | error=%v", err)
			watcher = nil
		} else {
			watcher.Start()
		}
	}
	if watcher != nil {
		defer watcher.Stop()
	}

	// Graceful shutdown on SIGINT/SIGTERM.
	done := make(chan os.Signal, 1)
	signal.Notify(done, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	if !args.Quiet {
		fmt.Printf("pipechat API listening on :%d (pipe %q, memory %q)\n",
			srv.Port(), cfg.Pipe.Name, cfg.Pipe.MemoryName)
	}

	select {
	case err := <-errCh:
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	case sig := <-done:
		log.Printf("SERVER_SIGNAL | signal=%v", sig)
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "Error: shutdown: %v\n", err)
			os.Exit(1)
		}
	}
}
