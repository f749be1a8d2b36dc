// Command obs is the terminal client for newsdedup.
//
// Usage:
//
//	obs                          Show help
//	obs search -k1 .. -k2 ..     Run one search and print both lists
//	obs tui                      Interactive search form
//	obs events [-f]              Show the request event log
//	obs version                  Print the version
package main

import (
	"fmt"
	"os"
)

// version is set with -ldflags "-X main.version=..."
var version = "dev"

const usage = `obs - newsdedup terminal client

Usage:
  obs <command> [flags]

Commands:
  search      Run one search and print raw and deduplicated results
  tui         Interactive search form
  events      Show recent request events (needs event_log in the config)
  version     Print the version

Environment:
  GOOGLE_API_KEY            Custom Search API key (search provider "cse")
  CUSTOM_SEARCH_ENGINE_ID   Programmable Search Engine ID (search provider "cse")
  ORACLE_API_KEY            Language model key (or OPENAI_API_KEY, ANTHROPIC_API_KEY, GEMINI_API_KEY)
  ORACLE_PROVIDER           openai, claude, gemini or ollama (default: openai)
  NEWSDEDUP_PROVIDER        cse or googlenews (default: cse)
  NEWSDEDUP_STRATEGY        none, pairwise-snippet, pairwise-title or batched (default: batched)
  NEWSDEDUP_EVENT_LOG       JSONL request event log path
  LOG_LEVEL                 debug, info, warn or error

Run 'obs <command> -h' for command-specific help.
`

func main() {
	if len(os.Args) < 2 {
		fmt.Print(usage)
		os.Exit(0)
	}

	cmd := os.Args[1]
	// Strip the program name + subcommand so flag sets see only their flags
	os.Args = os.Args[1:]

	switch cmd {
	case "search":
		runSearch()
	case "tui":
		runTUI()
	case "events":
		runEvents()
	case "version":
		fmt.Println("obs", version)
	case "-h", "--help", "help":
		fmt.Print(usage)
	default:
		fmt.Fprintf(os.Stderr, "obs: unknown command %q\n\n", cmd)
		fmt.Print(usage)
		os.Exit(1)
	}
}
