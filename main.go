// pipechat - terminal client and API server for Langbase pipes.
//
// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later
package main

import (
	"fmt"
	"os"

	"github.com/jeranaias/pipechat/internal/cli"
	"github.com/jeranaias/pipechat/internal/client"
	"github.com/jeranaias/pipechat/internal/config"
	"github.com/jeranaias/pipechat/internal/history"
	"github.com/jeranaias/pipechat/internal/ui"
	"github.com/jeranaias/pipechat/internal/ui/chat"
)

// Version information (set at build time)
var (
	Version   = "1.0.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

func init() {
	// Sync version info with cli package
	cli.Version = Version
	cli.GitCommit = GitCommit
	cli.BuildDate = BuildDate
}

func main() {
	cmd, args := cli.Parse()

	switch cmd {
	case cli.CmdTUI:
		runTUI(args)
	case cli.CmdChat:
		cli.HandleChat(args)
	case cli.CmdServe:
		cli.HandleServe(args)
	case cli.CmdUpload:
		cli.HandleUpload(args)
	case cli.CmdSetup:
		cli.HandleSetup(args)
	case cli.CmdConfig:
		cli.HandleConfig(args)
	case cli.CmdVersion:
		cli.HandleVersion(args)
	case cli.CmdHelp:
		cli.HandleHelp()
	default:
		runTUI(args)
	}
}

// runTUI starts the TUI interface.
func runTUI(args cli.Args) {
	cfg := config.Global()

	api := client.NewClient(fmt.Sprintf("http://127.0.0.1:%d", cfg.Server.Port))

	// History failure is non-fatal; the session just won't persist.
	var store *history.Store
	if path, err := history.DefaultPath(); err == nil {
		if s, err := history.Open(path); err == nil {
			store = s
			defer s.Close()
		} else {
			fmt.Fprintf(os.Stderr, "Warning: could not open history: %v\n", err)
		}
	}

	opts := chat.Options{
		Plain:     args.Plain || cfg.UI.Plain,
		ShowStats: cfg.UI.ShowStats,
	}
	if err := ui.Run(api, store, opts); err != nil {
		fmt.Fprintf(os.Stderr, "Error running pipechat: %v\n", err)
		os.Exit(1)
	}
}
