// Command migrate manages the claim ledger schema out of band. The paygate
// service applies the embedded migrations itself on boot; this tool exists for
// CI pipelines and for rolling back, which the service never does.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/hostwell/paygate/internal/infra/persistence/migrations"
)

const (
	databaseEnv    = "PAYGATE_DATABASE_DSN"
	defaultTimeout = 30 * time.Second
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	var (
		dsn     = flag.String("database", os.Getenv(databaseEnv), "PostgreSQL DSN (defaults to $"+databaseEnv+")")
		dir     = flag.String("path", "", "Directory containing SQL migrations; omit to use the compiled-in set")
		timeout = flag.Duration("timeout", defaultTimeout, "Maximum time to wait for database connectivity")
		quiet   = flag.Bool("quiet", false, "Suppress informational logs")
	)
	flag.Usage = usage
	flag.Parse()

	if strings.TrimSpace(*dsn) == "" {
		return errors.New("database DSN required: pass -database or set " + databaseEnv)
	}

	cmd, steps, err := parseCommand(flag.Args())
	if err != nil {
		return err
	}

	var logger *log.Logger
	if !*quiet {
		logger = log.New(os.Stdout, "paygate-migrate ", log.LstdFlags)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	switch cmd {
	case "up":
		if strings.TrimSpace(*dir) == "" {
			// Same migration set the service applies at startup.
			return migrations.ApplyEmbedded(ctx, *dsn, logger)
		}
		return migrations.Apply(ctx, *dsn, *dir, logger)
	case "down":
		if strings.TrimSpace(*dir) == "" {
			return errors.New("down requires -path: rollbacks never run from the embedded set")
		}
		return migrations.Rollback(ctx, *dsn, *dir, steps, logger)
	}
	return nil
}

func parseCommand(args []string) (cmd string, steps int, err error) {
	if len(args) == 0 {
		return "", 0, errors.New("command required (up|down)")
	}
	switch args[0] {
	case "up":
		return "up", 0, nil
	case "down":
		steps = 1
		if len(args) > 1 {
			n, convErr := strconv.Atoi(args[1])
			if convErr != nil {
				return "", 0, fmt.Errorf("invalid down steps %q: %w", args[1], convErr)
			}
			steps = n
		}
		return "down", steps, nil
	default:
		return "", 0, fmt.Errorf("unknown command %q (expected up or down)", args[0])
	}
}

func usage() {
	fmt.Fprintf(flag.CommandLine.Output(), `Usage: migrate [flags] up
       migrate [flags] -path <dir> down [steps]

Applies claim ledger schema migrations. With no -path, "up" uses the
migration set compiled into the binary.

Flags:
`)
	flag.PrintDefaults()
}
