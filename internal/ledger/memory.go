package ledger

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Compile-time check: Memory implements Ledger.
var _ Ledger = (*Memory)(nil)

// Memory is an in-process ledger for tests and fs-only deployments.
type Memory struct {
	mu    sync.RWMutex
	runs  map[string]Run
	steps map[string]map[string]StepEvent
	now   func() time.Time
}

// NewMemory creates an empty in-memory ledger.
func NewMemory() *Memory {
	return &Memory{
		runs:  make(map[string]Run),
		steps: make(map[string]map[string]StepEvent),
		now:   time.Now,
	}
}

// CreateRun opens a run record.
func (m *Memory) CreateRun(_ context.Context, run Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if run.CreatedAt.IsZero() {
		run.CreatedAt = now
	}
	run.UpdatedAt = now
	if run.Status == "" {
		run.Status = StatusRunning
	}
	m.runs[run.ID] = run
	m.steps[run.ID] = make(map[string]StepEvent)
	return nil
}

// SetRunStatus updates a run's status.
func (m *Memory) SetRunStatus(_ context.Context, runID string, status Status, errMsg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	run, ok := m.runs[runID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	run.Status = status
	run.Error = errMsg
	run.UpdatedAt = m.now()
	m.runs[runID] = run
	return nil
}

// StepStarted marks a step running.
func (m *Memory) StepStarted(_ context.Context, runID, step string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	events, ok := m.steps[runID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	events[step] = StepEvent{Name: step, Status: StatusRunning, StartedAt: m.now()}
	return nil
}

// StepFinished records a step's terminal status.
func (m *Memory) StepFinished(_ context.Context, runID, step string, status Status, detail string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	events, ok := m.steps[runID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}

	now := m.now()
	ev, seen := events[step]
	if !seen {
		// skipped steps finish without starting
		ev = StepEvent{Name: step, StartedAt: now}
	}
	ev.Status = status
	ev.Detail = detail
	ev.FinishedAt = now
	events[step] = ev
	return nil
}

// GetRun returns one run and its step events ordered by start time.
func (m *Memory) GetRun(_ context.Context, runID string) (Run, []StepEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	run, ok := m.runs[runID]
	if !ok {
		return Run{}, nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}

	events := make([]StepEvent, 0, len(m.steps[runID]))
	for _, ev := range m.steps[runID] {
		events = append(events, ev)
	}
	sortEvents(events)
	return run, events, nil
}

// ListRuns returns all runs, newest first.
func (m *Memory) ListRuns(_ context.Context) ([]Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	runs := make([]Run, 0, len(m.runs))
	for _, r := range m.runs {
		runs = append(runs, r)
	}
	sortRuns(runs)
	return runs, nil
}

func sortEvents(events []StepEvent) {
	sort.Slice(events, func(i, j int) bool {
		if !events[i].StartedAt.Equal(events[j].StartedAt) {
			return events[i].StartedAt.Before(events[j].StartedAt)
		}
		return events[i].Name < events[j].Name
	})
}

func sortRuns(runs []Run) {
	sort.Slice(runs, func(i, j int) bool {
		if !runs[i].CreatedAt.Equal(runs[j].CreatedAt) {
			return runs[i].CreatedAt.After(runs[j].CreatedAt)
		}
		return runs[i].ID < runs[j].ID
	})
}
