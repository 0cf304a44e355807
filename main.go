package main

import (
	"fmt"
	"os"
)

var version = "dev"

func main() {
	if len(os.Args) < 2 {
		showHelp()
		os.Exit(0)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	if cmd != "upgrade" {
		startUpdateCheck()
		defer printUpdateNotice()
	}

	switch cmd {
	case "-h", "--help", "help":
		showHelp()
	case "-v", "--version", "version":
		fmt.Printf("agentbender v%s\n", version)
	case "init":
		cmdInit(args)
	case "generate":
		cmdGenerate(args)
	case "validate":
		cmdValidate(args)
	case "logs":
		cmdLogs(args)
	case "doctor":
		cmdDoctor(args)
	case "upgrade":
		cmdUpgrade(args)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		fmt.Fprintln(os.Stderr, "Run 'agentbender --help' for usage.")
		os.Exit(1)
	}
}

func showHelp() {
	fmt.Printf(`agentbender v%s - Test case to page object pipeline

Usage: agentbender <command> [options]

Commands:
  init [--force]           Create agentbender.config.json
  generate <file-or-dir>   Resolve test cases into page models with stable selectors
  validate <file-or-dir>   Check test case documents without resolving them
  logs                     View run logs (--list, --follow, --type, --case)
  doctor                   Check the environment (config, Ollama, Chrome)
  upgrade                  Upgrade agentbender to the latest version

Options:
  -h, --help               Show this help message
  -v, --version            Show version number

Examples:
  agentbender init                        # Write a default config
  agentbender validate cases/             # Lint every test case in cases/
  agentbender generate cases/tc-001.json  # Resolve one test case
  agentbender generate cases/ --workers 8 # Resolve a directory concurrently
  agentbender generate cases/ --no-llm    # Keyword classifier only

File Structure:
  agentbender.config.json   # Configuration (json, yaml or yml)
  generated/
    TC-001.json             # One resolved model per test case
    logs/run-001.jsonl      # Structured run logs
`, version)
}
