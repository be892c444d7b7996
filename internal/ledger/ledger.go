// Package ledger records run and step state for the status CLI and the
// HTTP status endpoint. The ledger is bookkeeping only: execution never
// reads it back to make decisions, and it carries no retry counters
// because retries belong to whatever scheduler launches runs.
package ledger

import (
	"context"
	"errors"
	"time"
)

// ErrRunNotFound signals a lookup for an unknown run id.
var ErrRunNotFound = errors.New("ledger: run not found")

// Status is the lifecycle state of a run or step.
type Status string

// Run and step statuses.
const (
	StatusPending Status = "pending"
	StatusRunning Status = "running"
	StatusDone    Status = "done"
	StatusFailed  Status = "failed"
	StatusSkipped Status = "skipped"
)

// Run is one pipeline run's ledger record.
type Run struct {
	ID          string    `json:"id"`
	Stem        string    `json:"stem"`
	ModelPreset string    `json:"model_preset"`
	Status      Status    `json:"status"`
	Error       string    `json:"error,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// StepEvent is the recorded lifecycle of one step within a run. Detail
// holds the failure message or the skip reason.
type StepEvent struct {
	Name       string    `json:"name"`
	Status     Status    `json:"status"`
	Detail     string    `json:"detail,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at,omitempty"`
}

// Ledger records run lifecycles.
type Ledger interface {
	// CreateRun opens a run record in StatusRunning.
	CreateRun(ctx context.Context, run Run) error
	// SetRunStatus moves a run to a terminal or intermediate status.
	SetRunStatus(ctx context.Context, runID string, status Status, errMsg string) error
	// StepStarted marks a step running.
	StepStarted(ctx context.Context, runID, step string) error
	// StepFinished records a step's terminal status. A skipped step may
	// finish without ever having started.
	StepFinished(ctx context.Context, runID, step string, status Status, detail string) error
	// GetRun returns one run and its step events, ErrRunNotFound when
	// the id is unknown.
	GetRun(ctx context.Context, runID string) (Run, []StepEvent, error)
	// ListRuns returns all runs, newest first.
	ListRuns(ctx context.Context) ([]Run, error)
}
