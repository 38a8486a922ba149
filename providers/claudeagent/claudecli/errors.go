package claudecli

import (
	"errors"
	"fmt"
)

// ErrPriorTurnsUnsupported is returned when a request carries structured prior
// turns: the CLI in print mode only accepts a single prompt.
var ErrPriorTurnsUnsupported = errors.New("claude CLI does not accept prior turns; use the history-in-prompt strategy")

// ProcessError represents a process-level error.
type ProcessError struct {
	Cause    error
	Message  string
	Stderr   string
	ExitCode int
}

func (e *ProcessError) Error() string {
	msg := e.Message
	if e.ExitCode != 0 {
		msg = fmt.Sprintf("%s (exit code %d)", msg, e.ExitCode)
	}
	if e.Stderr != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Stderr)
	}
	return "process error: " + msg
}

func (e *ProcessError) Unwrap() error {
	return e.Cause
}

// CLINotFoundError indicates the claude CLI binary was not found.
type CLINotFoundError struct {
	Cause error
	Path  string
}

func (e *CLINotFoundError) Error() string {
	return fmt.Sprintf("CLI binary not found at %q: %v", e.Path, e.Cause)
}

func (e *CLINotFoundError) Unwrap() error {
	return e.Cause
}
