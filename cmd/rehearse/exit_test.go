package main

import (
	"errors"
	"fmt"
	"testing"

	"github.com/urfave/cli/v2"
)

func TestExitErrHandler_NilError(t *testing.T) {
	// Should not panic or exit on nil error
	exitErrHandler(nil, nil)
}

func TestExitErrHandler_ExitCoder(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
	}{
		{name: "saved", err: cli.Exit("", 0), wantCode: 0},
		{name: "usage", err: cli.Exit("either --question (headless) or --tui is required", 1), wantCode: 1},
		{name: "device denied", err: cli.Exit("acquire device: video: device denied", 2), wantCode: 2},
		{name: "upload failed", err: cli.Exit("save recording: failed after 3 attempts", 3), wantCode: 3},
		{name: "engine failure", err: cli.Exit("recording engine: encoder exited", 4), wantCode: 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// We can't easily test os.Exit without subprocess, but we can
			// verify the error is recognized as ExitCoder
			var exitCoder cli.ExitCoder
			if !errors.As(tt.err, &exitCoder) {
				t.Fatalf("error should be cli.ExitCoder")
			}

			if exitCoder.ExitCode() != tt.wantCode {
				t.Errorf("exit code = %d, want %d", exitCoder.ExitCode(), tt.wantCode)
			}
		})
	}
}

func TestExitErrHandler_WrappedExitCoder(t *testing.T) {
	// Test that wrapped errors still extract the exit code
	wrapped := fmt.Errorf("rehearse: %w", cli.Exit("inner error", 3))

	var exitCoder cli.ExitCoder
	if !errors.As(wrapped, &exitCoder) {
		t.Fatal("wrapped error should still match cli.ExitCoder")
	}

	if exitCoder.ExitCode() != 3 {
		t.Errorf("exit code = %d, want 3", exitCoder.ExitCode())
	}
}

func TestExitErrHandler_RegularError(t *testing.T) {
	// Regular errors should result in exit code 1 (tested via behavior)
	err := errors.New("regular error")

	var exitCoder cli.ExitCoder
	if errors.As(err, &exitCoder) {
		t.Fatal("regular error should not be cli.ExitCoder")
	}
}

// TestExitErrHandler_MessageSuppression verifies empty messages don't print.
func TestExitErrHandler_MessageSuppression(t *testing.T) {
	err := cli.Exit("", 2)
	msg := err.Error()

	// Empty message cli.Exit returns empty string or "exit status N"
	// Our handler should NOT print these to stderr
	if msg != "" && msg != "exit status 2" {
		t.Errorf("Expected empty or 'exit status 2', got %q", msg)
	}
}
