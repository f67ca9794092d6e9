package main

import (
	"flag"
	"fmt"
	"os"
	"syscall"

	"golang.org/x/term"

	"github.com/skyfuse/skyfuse/internal/service"
)

// runAdmin dispatches admin subcommands.
func runAdmin(args []string) error {
	if len(args) == 0 || args[0] == "help" || args[0] == "--help" {
		printAdminHelp()
		return nil
	}

	switch args[0] {
	case "hash-key":
		return runAdminHashKey(args[1:])
	default:
		printAdminHelp()
		return fmt.Errorf("unknown admin command: %s", args[0])
	}
}

func printAdminHelp() {
	fmt.Fprintf(os.Stderr, `Usage: skyfuse admin <command> [options]

Commands:
  hash-key   Hash an admin API key for the auth.admin_key_hash config value
  help       Show this help message

Examples:
  skyfuse admin hash-key
  skyfuse admin hash-key --key my-secret-key
`)
}

func runAdminHashKey(args []string) error {
	fs := flag.NewFlagSet("hash-key", flag.ContinueOnError)
	key := fs.String("key", "", "admin API key (prompted if not provided)") //nolint:gosec // CLI flag
	if err := fs.Parse(args); err != nil {
		return err
	}

	raw := *key
	if raw == "" {
		var err error
		raw, err = promptSecret("Admin key: ")
		if err != nil {
			return fmt.Errorf("read key: %w", err)
		}
		confirm, err := promptSecret("Confirm key: ")
		if err != nil {
			return fmt.Errorf("read key: %w", err)
		}
		if raw != confirm {
			return fmt.Errorf("keys do not match")
		}
	}
	if raw == "" {
		return fmt.Errorf("key must not be empty")
	}

	hash, err := service.HashAdminKey(raw)
	if err != nil {
		return fmt.Errorf("hash key: %w", err)
	}

	// Hash goes to stdout so it can be piped into config tooling.
	fmt.Println(hash)
	return nil
}

// promptSecret reads a secret from the terminal without echoing.
func promptSecret(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	b, err := term.ReadPassword(int(syscall.Stdin)) //nolint:unconvert // int conversion needed on some platforms
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
