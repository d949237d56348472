package app

import (
	"fmt"
	"os"
	"strings"
)

// Run executes the CLI command and returns a process exit code.
func Run(args []string) int {
	if len(args) == 0 {
		printUsage()
		return 2
	}

	switch strings.ToLower(strings.TrimSpace(args[0])) {
	case "help", "--help", "-h":
		printUsage()
		return 0
	case "health":
		return runHealth(args[1:])
	case "ingest":
		return runIngest(args[1:])
	case "analyze":
		return runAnalyze(args[1:])
	case "summary":
		return runSummary(args[1:])
	case "report":
		return runReport(args[1:])
	case "narrate":
		return runNarrate(args[1:])
	case "items":
		return runItems(args[1:])
	case "keywords":
		return runKeywords(args[1:])
	case "stats":
		return runStats(args[1:])
	case "delete":
		return runDelete(args[1:])
	case "import":
		return runImport(args[1:])
	case "validate":
		return runValidate(args[1:])
	case "token":
		return runToken(args[1:])
	case "serve":
		return runServe(args[1:])
	case "daemon":
		return runDaemon(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", args[0])
		printUsage()
		return 2
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "pulse CLI")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Usage:")
	fmt.Fprintln(os.Stderr, "  pulse <command> [flags]")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Commands:")
	fmt.Fprintln(os.Stderr, "  health   Verify database connectivity")
	fmt.Fprintln(os.Stderr, "  ingest   Fetch, store, and analyze content for a keyword")
	fmt.Fprintln(os.Stderr, "  analyze  Run sentiment analysis over stored pending items")
	fmt.Fprintln(os.Stderr, "  summary  Print the aggregate sentiment for a keyword")
	fmt.Fprintln(os.Stderr, "  report   Write the per-keyword sentiment report CSV")
	fmt.Fprintln(os.Stderr, "  narrate  Generate an LLM narrative from a sentiment report")
	fmt.Fprintln(os.Stderr, "  items    List stored content items")
	fmt.Fprintln(os.Stderr, "  keywords  List keywords with item counts")
	fmt.Fprintln(os.Stderr, "  stats    Show store totals and recent ingest runs")
	fmt.Fprintln(os.Stderr, "  delete   Delete stored items by keyword and/or age")
	fmt.Fprintln(os.Stderr, "  import   Re-ingest items from an export CSV")
	fmt.Fprintln(os.Stderr, "  validate  Validate sentiment payload JSON files")
	fmt.Fprintln(os.Stderr, "  token    Hash an API token for API_TOKEN_HASH")
	fmt.Fprintln(os.Stderr, "  serve    Start the HTTP API server")
	fmt.Fprintln(os.Stderr, "  daemon   Manage the systemd unit for pulse serve")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Use \"pulse <command> -h\" for command-specific flags.")
}
