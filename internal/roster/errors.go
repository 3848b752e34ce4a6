package roster

import (
	"errors"
	"fmt"
	"strings"
)

// Fatal run conditions. Every fatal error returned by Orchestrator.Run wraps one of these.
var (
	ErrSourceUnavailable = errors.New("roster snapshot unavailable")
	ErrEmptySnapshot     = errors.New("roster snapshot has no header row")
	ErrMissingColumns    = errors.New("required roster columns not detected")
	ErrConnectivity      = errors.New("person store unreachable")
	ErrRunInProgress     = errors.New("another reconciliation run is in progress")
)

// ErrorKind groups fatal errors by where they originate.
type ErrorKind string

const (
	KindInput        ErrorKind = "input"
	KindConnectivity ErrorKind = "connectivity"
	KindInternal     ErrorKind = "internal"
)

// RunError is a fatal error that aborted a run before any record was reconciled.
type RunError struct {
	Kind ErrorKind
	Code string // support reference, e.g. "SRC001"
	Err  error
}

func (e *RunError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Err)
}

func (e *RunError) Unwrap() error {
	return e.Err
}

// runErrorCodes maps each sentinel to its kind and code.
var runErrorCodes = []struct {
	target error
	kind   ErrorKind
	code   string
}{
	{ErrSourceUnavailable, KindInput, "SRC001"},
	{ErrEmptySnapshot, KindInput, "SRC002"},
	{ErrMissingColumns, KindInput, "COL001"},
	{ErrConnectivity, KindConnectivity, "DB004"},
	{ErrRunInProgress, KindInternal, "RUN002"},
}

// newRunError classifies err into a RunError.
// Errors that match no sentinel are reported as internal with code ERR000.
func newRunError(err error) *RunError {
	var re *RunError
	if errors.As(err, &re) {
		return re
	}
	for _, c := range runErrorCodes {
		if errors.Is(err, c.target) {
			return &RunError{Kind: c.kind, Code: c.code, Err: err}
		}
	}
	return &RunError{Kind: KindInternal, Code: "ERR000", Err: err}
}

// MissingColumnsError lists the logical fields that could not be located in the header.
type MissingColumnsError struct {
	Fields []Field
	Header []string
}

func (e *MissingColumnsError) Error() string {
	names := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		names[i] = f.String()
	}
	return fmt.Sprintf("%s: %s (header: %s)", ErrMissingColumns, strings.Join(names, ", "), strings.Join(e.Header, " | "))
}

func (e *MissingColumnsError) Unwrap() error {
	return ErrMissingColumns
}
