package app

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"horse.fit/pulse/internal/cli"
	"horse.fit/pulse/internal/db"
)

func runDelete(args []string) int {
	fs := flag.NewFlagSet("delete", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	timeout := fs.Duration("timeout", 30*time.Second, "Command timeout")
	keyword := fs.String("keyword", "", "Delete items stored for this keyword")
	before := fs.String("before", "", "Delete items created before this cutoff (RFC3339 or YYYY-MM-DD)")
	dryRun := fs.Bool("dry-run", false, "Preview affected rows without applying changes")
	force := fs.Bool("force", false, "Skip confirmation prompt")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if fs.NArg() != 0 {
		fmt.Fprintln(os.Stderr, "delete does not accept positional arguments")
		return 2
	}

	trimmedKeyword := strings.TrimSpace(*keyword)
	var beforeCutoff time.Time
	if strings.TrimSpace(*before) != "" {
		cutoff, err := parseDeleteBeforeArgument(*before)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Invalid before value: %v\n", err)
			return 2
		}
		beforeCutoff = cutoff
	}
	if trimmedKeyword == "" && beforeCutoff.IsZero() {
		fmt.Fprintln(os.Stderr, "at least one of --keyword or --before is required")
		return 2
	}

	if !*dryRun && !*force {
		ok, err := confirmDangerousAction(fmt.Sprintf("Proceed with delete of items matching %s?",
			describeDeleteFilter(trimmedKeyword, beforeCutoff)))
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to read confirmation: %v\n", err)
			return 1
		}
		if !ok {
			fmt.Fprintln(os.Stderr, "Cancelled")
			return 1
		}
	}

	ctx, cancel, pool, err := connectReadPool(*timeout, envLoader)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer cancel()
	defer pool.Close()

	filter := db.DeleteFilter{Keyword: trimmedKeyword, Before: beforeCutoff}

	previewCount, err := pool.CountItemsMatching(ctx, filter)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to preview delete: %v\n", err)
		return 1
	}
	if *dryRun {
		fmt.Printf("dry_run=true items_affected=%d\n", previewCount)
		return 0
	}

	affected, err := pool.DeleteItems(ctx, filter)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to delete items: %v\n", err)
		return 1
	}
	fmt.Printf("items_affected=%d\n", affected)
	return 0
}

func describeDeleteFilter(keyword string, before time.Time) string {
	parts := make([]string, 0, 2)
	if keyword != "" {
		parts = append(parts, fmt.Sprintf("keyword %q", keyword))
	}
	if !before.IsZero() {
		parts = append(parts, fmt.Sprintf("created before %s", before.UTC().Format(time.RFC3339)))
	}
	return strings.Join(parts, " and ")
}

func parseDeleteBeforeArgument(raw string) (time.Time, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return time.Time{}, fmt.Errorf("date/time is required")
	}

	if ts, err := time.Parse(time.RFC3339, trimmed); err == nil {
		return ts.UTC(), nil
	}

	day, err := parseUTCDate(trimmed)
	if err != nil {
		return time.Time{}, fmt.Errorf("must be RFC3339 or YYYY-MM-DD")
	}
	return day.UTC(), nil
}

func confirmDangerousAction(prompt string) (bool, error) {
	fmt.Fprintf(os.Stderr, "%s [y/N]: ", strings.TrimSpace(prompt))
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return false, err
	}

	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}
