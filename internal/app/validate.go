package app

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	payloadschema "horse.fit/pulse/schema"
)

func runValidate(args []string) int {
	fs := flag.NewFlagSet("validate", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	dir := fs.String("dir", "", "Validate every .json file under this directory")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	paths := append([]string(nil), fs.Args()...)
	if trimmedDir := strings.TrimSpace(*dir); trimmedDir != "" {
		matches, err := filepath.Glob(filepath.Join(trimmedDir, "*.json"))
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to scan %s: %v\n", trimmedDir, err)
			return 1
		}
		paths = append(paths, matches...)
	}
	if len(paths) == 0 {
		fmt.Fprintln(os.Stderr, "validate needs payload files: pulse validate [--dir <dir>] [file ...]")
		return 2
	}

	invalid := 0
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to read %s: %v\n", path, err)
			invalid++
			continue
		}
		if err := payloadschema.ValidateSentimentPayload(data); err != nil {
			fmt.Printf("invalid %s: %v\n", path, err)
			invalid++
			continue
		}
		fmt.Printf("ok %s\n", path)
	}

	fmt.Printf("validated=%d invalid=%d\n", len(paths), invalid)
	if invalid > 0 {
		return 1
	}
	return 0
}
