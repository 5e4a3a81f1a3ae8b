// Package main provides the rehearse CLI entrypoint.
//
// Usage:
//
//	rehearse [global options] <command> [options]
//
// Exit codes for `rehearse`:
//   - 0: recording saved
//   - 1: usage, configuration or service error
//   - 2: camera or microphone denied
//   - 3: upload failed
//   - 4: recording engine failure
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/justapithecus/rehearse/cli/cmd"
	"github.com/justapithecus/rehearse/types"
)

// Commit is set via ldflags at build time.
var commit = "unknown"

func main() {
	app := &cli.App{
		Name:           "rehearse",
		Usage:          "Record practice answers to interview questions",
		Version:        fmt.Sprintf("%s (commit: %s)", types.Version, commit),
		Flags:          cmd.GlobalFlags(),
		ExitErrHandler: exitErrHandler,
		Commands: []*cli.Command{
			cmd.RehearseCommand(),
			cmd.QuestionsCommand(),
			cmd.DevicesCommand(),
			cmd.HistoryCommand(),
			cmd.StatsCommand(),
			cmd.VersionCommand(commit),
		},
	}

	if err := app.Run(os.Args); err != nil {
		// ExitErrHandler already handled the exit for cli.ExitCoder errors.
		// This branch handles unexpected errors that weren't wrapped.
		os.Exit(1)
	}
}

// exitErrHandler handles errors from the CLI, preserving exit codes from cli.Exit().
func exitErrHandler(_ *cli.Context, err error) {
	if err == nil {
		return
	}

	// Check for ExitCoder (from cli.Exit), handles wrapped errors
	var exitCoder cli.ExitCoder
	if errors.As(err, &exitCoder) {
		code := exitCoder.ExitCode()
		msg := exitCoder.Error()

		// Only print if there's a real message (not just "exit status N")
		// cli.Exit("", N).Error() returns "exit status N", so skip those
		if msg != "" && msg != fmt.Sprintf("exit status %d", code) {
			fmt.Fprintln(os.Stderr, msg)
		}
		os.Exit(code)
	}

	// Unexpected error - print and exit with code 1
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
