package app

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	"horse.fit/pulse/internal/auth"
)

func runToken(args []string) int {
	fs := flag.NewFlagSet("token", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "token requires exactly one argument: pulse token <plaintext>")
		return 2
	}

	token := strings.TrimSpace(fs.Arg(0))
	if token == "" {
		fmt.Fprintln(os.Stderr, "token must not be empty")
		return 2
	}

	hash, err := auth.HashToken(token)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to hash token: %v\n", err)
		return 1
	}

	// Single quotes keep the bcrypt $ signs intact in a .env file.
	fmt.Printf("API_TOKEN_HASH='%s'\n", hash)
	return 0
}
