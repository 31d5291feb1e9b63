// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// cli.go - CLI parsing and command handlers for pipechat.
package cli

import (
	"fmt"
	"os"
	"runtime"
	"strings"
)

// Version information (can be overridden at build time)
var (
	Version   = "1.0.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// Command represents the CLI command to execute.
type Command int

const (
	CmdTUI Command = iota
	CmdChat
	CmdServe
	CmdUpload
	CmdSetup
	CmdConfig
	CmdVersion
	CmdHelp
)

// Args holds parsed CLI arguments.
type Args struct {
	// Global flags
	Quiet   bool
	Verbose bool
	Plain   bool // Disable markdown rendering

	// Command-specific
	File       string
	ConfigKey  string
	ConfigVal  string
	Subcommand string
	Port       int

	// Raw args (remaining after flag parsing)
	Raw []string
}

const usageText = `pipechat - terminal client and API server for Langbase pipes

Pipechat connects a terminal chat client and a local HTTP API to a
Langbase pipe with document memory.

Usage:
  pipechat                   Start TUI (default)
  pipechat chat              Interactive chat REPL
  pipechat serve             Start the HTTP API server
  pipechat upload <file>     Upload a document to memory
  pipechat setup             First-run wizard (stores API key)
  pipechat config [show|get|set]  Configuration
  pipechat version           Show version
  pipechat help              Show this help

Serve Flags:
  --port N                   Listen port (default: 8098)

Global Flags:
  --plain                    Disable markdown rendering
  -q, --quiet                Minimal output
  -v, --verbose              Verbose output

Interactive Commands (during chat):
  /clear                     Clear conversation history
  /upload <file>             Upload a document to memory
  /help                      Show available commands
  /quit                      Exit chat

Configuration:
  Config file: ~/.pipechat/config.toml
  Environment: PIPECHAT_API_KEY, PIPECHAT_BASE_URL, PIPECHAT_PIPE,
               PIPECHAT_MEMORY, PIPECHAT_PORT

Examples:
  pipechat setup
  pipechat serve --port 8098
  pipechat upload ./docs/returns-policy.txt
  pipechat config set pipe.name brooklinen
`

// Parse parses os.Args and returns the command and arguments.
func Parse() (Command, Args) {
	return ParseArgs(os.Args[1:])
}

// ParseArgs parses the given argument list.
func ParseArgs(argv []string) (Command, Args) {
	args := Args{}
	var positional []string

	for i := 0; i < len(argv); i++ {
		arg := argv[i]
		switch {
		case arg == "-q" || arg == "--quiet":
			args.Quiet = true
		case arg == "-v" || arg == "--verbose":
			args.Verbose = true
		case arg == "--plain":
			args.Plain = true
		case arg == "--port":
			if i+1 < len(argv) {
				i++
				fmt.Sscanf(argv[i], "%d", &args.Port)
			}
		case strings.HasPrefix(arg, "--port="):
			fmt.Sscanf(strings.TrimPrefix(arg, "--port="), "%d", &args.Port)
		case arg == "-h" || arg == "--help":
			return CmdHelp, args
		default:
			positional = append(positional, arg)
		}
	}

	if len(positional) == 0 {
		return CmdTUI, args
	}

	cmd := positional[0]
	rest := positional[1:]
	args.Raw = rest

	switch cmd {
	case "chat":
		return CmdChat, args
	case "serve", "server":
		return CmdServe, args
	case "upload":
		if len(rest) > 0 {
			args.File = rest[0]
		}
		return CmdUpload, args
	case "setup":
		return CmdSetup, args
	case "config":
		if len(rest) > 0 {
			args.Subcommand = rest[0]
		}
		if len(rest) > 1 {
			args.ConfigKey = rest[1]
		}
		if len(rest) > 2 {
			args.ConfigVal = strings.Join(rest[2:], " ")
		}
		return CmdConfig, args
	case "version", "--version":
		return CmdVersion, args
	case "help":
		return CmdHelp, args
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		return CmdHelp, args
	}
}

// HandleVersion prints version information.
func HandleVersion(args Args) {
	fmt.Printf("pipechat %s\n", Version)
	if args.Verbose {
		fmt.Printf("  commit:  %s\n", GitCommit)
		fmt.Printf("  built:   %s\n", BuildDate)
		fmt.Printf("  runtime: %s %s/%s\n", runtime.Version(), runtime.GOOS, runtime.GOARCH)
	}
}

// HandleHelp prints usage text.
func HandleHelp() {
	fmt.Print(usageText)
}
