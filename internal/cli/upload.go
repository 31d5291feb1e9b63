// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// upload.go - Document upload command handler for pipechat.
//
// Command: upload
//
// Examples:
//   pipechat upload ./docs/returns-policy.txt
//
// The document goes straight to the provider's memory collection; the API
// server does not need to be running.
package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jeranaias/pipechat/internal/chat"
	"github.com/jeranaias/pipechat/internal/config"
	"github.com/jeranaias/pipechat/internal/pipe"
	"github.com/jeranaias/pipechat/internal/ui/styles"
)

// HandleUpload uploads a local file to the memory collection.
func HandleUpload(args Args) {
	if args.File == "" {
		fmt.Fprintln(os.Stderr, "Usage: pipechat upload <file>")
		os.Exit(1)
	}

	cfg := config.Global()
	if err := cfg.RequireAPIKey(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\nRun 'pipechat setup' or set PIPECHAT_API_KEY.\n", err)
		os.Exit(1)
	}

	data, err := os.ReadFile(args.File)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	engine := chat.NewEngine(
		pipe.NewClient(cfg.Pipe.APIKey).WithBaseURL(cfg.Pipe.BaseURL),
		cfg.Pipe.Name,
		cfg.Pipe.MemoryName,
	)

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	ack, err := engine.Upload(ctx, string(data), filepath.Base(args.File))
	if err != nil {
		fmt.Fprintln(os.Stderr, styles.RenderError("Upload failed: "+err.Error()))
		os.Exit(1)
	}

	fmt.Println(styles.RenderSuccess(fmt.Sprintf("Uploaded %s to memory %q", filepath.Base(args.File), cfg.Pipe.MemoryName)))
	if args.Verbose && ack != nil {
		fmt.Printf("  id: %s\n  status: %s\n", ack.ID, ack.Status)
	}
}
