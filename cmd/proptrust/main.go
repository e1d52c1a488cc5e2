// Command proptrust runs the property record verification engine: an HTTP
// server by default, plus offline subcommands for one-shot verification,
// tamper checking, and status inspection.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/proptrust/engine/pkg/contracts"
)

// Exit codes for the offline subcommands.
const (
	exitOK          = 0
	exitBadInput    = 2
	exitUnavailable = 3
	exitLedger      = 4
	exitInternal    = 5
)

func main() {
	os.Exit(Run(os.Args, os.Stdout, os.Stderr))
}

// Run dispatches subcommands. Exposed for tests.
func Run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 2 {
		return runServer(stderr)
	}

	switch args[1] {
	case "server", "serve":
		return runServer(stderr)
	case "verify":
		return runVerifyCmd(args[2:], stdout, stderr)
	case "tamper":
		return runTamperCmd(args[2:], stdout, stderr)
	case "cross":
		return runCrossCmd(args[2:], stdout, stderr)
	case "status":
		return runStatusCmd(args[2:], stdout, stderr)
	case "help", "--help", "-h":
		printUsage(stdout)
		return exitOK
	default:
		if args[1][0] == '-' {
			return runServer(stderr)
		}
		_, _ = fmt.Fprintf(stderr, "Unknown command: %s\n", args[1])
		printUsage(stderr)
		return exitBadInput
	}
}

func printUsage(w io.Writer) {
	_, _ = fmt.Fprintln(w, `proptrust - property record verification engine

Usage:
  proptrust [server]                 Run the HTTP API (default)
  proptrust verify -file F -id P     Verify a document offline
  proptrust tamper -file F -id P     Re-verify against the anchored fingerprint
  proptrust cross -rtc P1 -mr P2     Cross-check an RTC against its mutation register
  proptrust status                   Print ledger status and statistics
  proptrust help                     Show this help

Configuration is read from ENGINE_* environment variables; set
ENGINE_PROFILE to overlay a YAML profile file.`)
}

// exitCodeFor maps a typed engine error onto the CLI exit code set.
func exitCodeFor(err error) int {
	if err == nil {
		return exitOK
	}
	switch contracts.KindOf(err) {
	case contracts.KindBadInput:
		return exitBadInput
	case contracts.KindExternalUnavailable, contracts.KindDeadlineExceeded:
		return exitUnavailable
	case contracts.KindLedgerRejected:
		return exitLedger
	default:
		return exitInternal
	}
}
