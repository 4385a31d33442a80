// Package main provides the dbviz CLI entrypoint.
//
// Only `run` converts anything. Every other command reads what earlier
// runs wrote.
//
// Usage:
//
//	dbviz <command> [subcommand] [options]
//
// Exit codes:
//   - 0: every item succeeded
//   - 1: one or more items failed
//   - 2: framework error (dispatch, report persistence, setup)
//   - 3: invalid input or configuration
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/dbviz/cli/cmd"
	"github.com/pithecene-io/dbviz/types"
)

// Commit is set via ldflags at build time.
var commit = "unknown"

func main() {
	// A .env file is optional; values already in the environment win.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "Warning: .env not loaded: %v\n", err)
	}

	app := &cli.App{
		Name:           "dbviz",
		Usage:          "Load archived databases into the visualization toolkit",
		Version:        fmt.Sprintf("%s (commit: %s)", types.Version, commit),
		ExitErrHandler: exitErrHandler,
		Commands: []*cli.Command{
			cmd.RunCommand(),
			cmd.ReportCommand(),
			cmd.ArtifactsCommand(),
			cmd.VersionCommand(commit),
		},
	}

	if err := app.Run(os.Args); err != nil {
		// ExitErrHandler already exited for cli.ExitCoder errors.
		os.Exit(1)
	}
}

// exitErrHandler preserves exit codes set with cli.Exit.
func exitErrHandler(_ *cli.Context, err error) {
	if err == nil {
		return
	}
	if msg, code, ok := exitStatus(err); ok {
		if msg != "" {
			fmt.Fprintln(os.Stderr, msg)
		}
		os.Exit(code)
	}

	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}

// exitStatus extracts the message and code of a cli.ExitCoder in err's
// chain. The message is empty when cli.Exit was given none.
func exitStatus(err error) (string, int, bool) {
	var exitCoder cli.ExitCoder
	if !errors.As(err, &exitCoder) {
		return "", 0, false
	}
	code := exitCoder.ExitCode()
	msg := exitCoder.Error()
	// cli.Exit("", N).Error() is "exit status N".
	if msg == fmt.Sprintf("exit status %d", code) {
		msg = ""
	}
	return msg, code, true
}
