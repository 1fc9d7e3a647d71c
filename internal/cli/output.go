package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/chazu/kerf/pkg/history"
	"github.com/chazu/kerf/pkg/store"
	"github.com/chazu/kerf/pkg/studio"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Successful execution
	ExitFailure      = 1 // The model did not build cleanly
	ExitCommandError = 2 // Bad arguments, unreadable files, database errors
)

// ExitError is an error carrying the process exit code.
type ExitError struct {
	Code    int
	Message string
	Err     error
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// NewExitError creates a new ExitError with the given code and message.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError wraps an existing error with an exit code.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode extracts the exit code from an error.
// Returns ExitFailure (1) if the error is not an ExitError.
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// writeResult prints a pipeline result as a per-feature table followed by
// its problems.
func writeResult(w io.Writer, res *studio.Result) {
	for _, p := range res.Errors {
		if p.Line > 0 {
			fmt.Fprintf(w, "error: line %d:%d: %s\n", p.Line, p.Col, p.Message)
		} else {
			fmt.Fprintf(w, "error: %s\n", p.Message)
		}
	}
	if res.Report != nil {
		writeReport(w, res.Report)
	}
	for _, p := range res.Warnings {
		fmt.Fprintf(w, "warning: %s: %s\n", p.Feature, p.Message)
	}
}

func writeReport(w io.Writer, rep *history.Report) {
	fmt.Fprintf(w, "kernel %s: %s in %s\n", rep.Kernel, rep.Summary(), rep.Elapsed.Round(time.Microsecond))
	if len(rep.Features) == 0 {
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for _, f := range rep.Features {
		fmt.Fprintf(tw, "  %s\t%s\t%s\t%s\n", f.ID.Short(), f.Kind, f.Name, f.Outcome)
	}
	tw.Flush()
}

func writeRevisions(w io.Writer, revs []store.Revision) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "REV\tCREATED\tKERNEL\tFEATURES\tMESSAGE")
	for _, r := range revs {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%s\n",
			r.Number, r.CreatedAt.Format(time.RFC3339), r.Kernel, r.Features, r.Message)
	}
	tw.Flush()
}

// resultError maps a finished result to the command's exit status.
func resultError(res *studio.Result) error {
	switch {
	case len(res.Errors) > 0:
		return NewExitError(ExitFailure, fmt.Sprintf("%d error(s)", len(res.Errors)))
	case len(res.Warnings) > 0:
		return NewExitError(ExitFailure, fmt.Sprintf("%d feature(s) failed", len(res.Warnings)))
	}
	return nil
}
