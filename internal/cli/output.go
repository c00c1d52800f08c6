package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// Exit codes for dividictl.
const (
	ExitSuccess      = 0
	ExitFailure      = 1 // store or validation failure
	ExitCommandError = 2 // bad flags or arguments
)

// ExitError carries the exit code a command wants.
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

func (e *ExitError) Unwrap() error { return e.Err }

func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode returns the code carried by err, or ExitFailure.
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

// Response is the JSON envelope written with --format json.
type Response struct {
	Status  string `json:"status"` // ok, nodata or error
	Data    any    `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
}

// Output writes command results as text or JSON.
type Output struct {
	Format string
	W      io.Writer
}

// Print writes data as JSON, or calls text to render it for humans.
func (o Output) Print(data any, text func(w io.Writer)) error {
	if o.Format == "json" {
		return o.encode(Response{Status: "ok", Data: data})
	}
	text(o.W)
	return nil
}

// Info writes an informational message that is not an error.
func (o Output) Info(status, msg string) error {
	if o.Format == "json" {
		return o.encode(Response{Status: status, Message: msg})
	}
	_, err := fmt.Fprintln(o.W, msg)
	return err
}

func (o Output) encode(v any) error {
	enc := json.NewEncoder(o.W)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
