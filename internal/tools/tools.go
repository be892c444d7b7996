// Package tools wraps the external programs the pipeline shells out
// to: the hmmer and hh-suite search tools, and the protomer helper
// binaries that carry the numerical feature, prediction and relaxation
// routines. Each wrapper builds the tool's argument list, runs it
// through a Runner and post-processes the output files.
package tools

import (
	"errors"
	"strings"
)

// ErrToolFailed is the root error every failed tool invocation wraps.
var ErrToolFailed = errors.New("tool failed")

// ToolError reports one failed external tool invocation with the tail
// of its stderr.
type ToolError struct {
	Tool   string
	Stderr string
	Err    error
}

func (e *ToolError) Error() string {
	msg := e.Tool + ": " + e.Err.Error()
	if s := strings.TrimSpace(e.Stderr); s != "" {
		msg += " (stderr: " + s + ")"
	}
	return msg
}

// Unwrap exposes both the sentinel and the underlying exec error, so
// callers can match ErrToolFailed as well as context cancellation.
func (e *ToolError) Unwrap() []error { return []error{ErrToolFailed, e.Err} }

// SearchResult summarizes one database search.
type SearchResult struct {
	// Database is the short database name, e.g. "uniref90".
	Database string
	// OutputPath is the local alignment or hit file the tool wrote.
	OutputPath string
	// Format is the output format: "sto", "a3m" or "hhr".
	Format string
	// NumHits counts distinct aligned sequences or template hits.
	NumHits int
}
