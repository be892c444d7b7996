package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Compile-time check: Redis implements Ledger.
var _ Ledger = (*Redis)(nil)

// HashStore is the slice of the Redis store the ledger needs.
type HashStore interface {
	HSet(ctx context.Context, key string, fields map[string]string) error
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	Scan(ctx context.Context, pattern string) ([]string, error)
}

// Redis keeps run state in Redis hashes: run fields under
// <prefix>:run:<id>, step events under <prefix>:run:<id>:steps with one
// JSON-encoded field per step.
type Redis struct {
	store  HashStore
	prefix string
	now    func() time.Time
}

// NewRedis creates a Redis-backed ledger.
func NewRedis(store HashStore, keyPrefix string) *Redis {
	if keyPrefix == "" {
		keyPrefix = "protomer"
	}
	return &Redis{store: store, prefix: keyPrefix, now: time.Now}
}

func (r *Redis) runKey(runID string) string   { return r.prefix + ":run:" + runID }
func (r *Redis) stepsKey(runID string) string { return r.runKey(runID) + ":steps" }

// CreateRun opens a run record.
func (r *Redis) CreateRun(ctx context.Context, run Run) error {
	now := r.now()
	if run.CreatedAt.IsZero() {
		run.CreatedAt = now
	}
	run.UpdatedAt = now
	if run.Status == "" {
		run.Status = StatusRunning
	}

	fields := map[string]string{
		"id":           run.ID,
		"stem":         run.Stem,
		"model_preset": run.ModelPreset,
		"status":       string(run.Status),
		"error":        run.Error,
		"created_at":   run.CreatedAt.UTC().Format(time.RFC3339Nano),
		"updated_at":   run.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
	if err := r.store.HSet(ctx, r.runKey(run.ID), fields); err != nil {
		return fmt.Errorf("create run %s: %w", run.ID, err)
	}
	return nil
}

// SetRunStatus updates a run's status.
func (r *Redis) SetRunStatus(ctx context.Context, runID string, status Status, errMsg string) error {
	existing, err := r.store.HGetAll(ctx, r.runKey(runID))
	if err != nil {
		return fmt.Errorf("set run status %s: %w", runID, err)
	}
	if len(existing) == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}

	fields := map[string]string{
		"status":     string(status),
		"error":      errMsg,
		"updated_at": r.now().UTC().Format(time.RFC3339Nano),
	}
	if err := r.store.HSet(ctx, r.runKey(runID), fields); err != nil {
		return fmt.Errorf("set run status %s: %w", runID, err)
	}
	return nil
}

// StepStarted marks a step running.
func (r *Redis) StepStarted(ctx context.Context, runID, step string) error {
	ev := StepEvent{Name: step, Status: StatusRunning, StartedAt: r.now().UTC()}
	return r.writeStep(ctx, runID, ev)
}

// StepFinished records a step's terminal status, preserving the start
// time when the step was started through this ledger.
func (r *Redis) StepFinished(ctx context.Context, runID, step string, status Status, detail string) error {
	now := r.now().UTC()
	ev := StepEvent{Name: step, StartedAt: now}

	existing, err := r.store.HGetAll(ctx, r.stepsKey(runID))
	if err != nil {
		return fmt.Errorf("step finished %s/%s: %w", runID, step, err)
	}
	if raw, ok := existing[step]; ok {
		var prev StepEvent
		if err := json.Unmarshal([]byte(raw), &prev); err == nil {
			ev.StartedAt = prev.StartedAt
		}
	}

	ev.Status = status
	ev.Detail = detail
	ev.FinishedAt = now
	return r.writeStep(ctx, runID, ev)
}

func (r *Redis) writeStep(ctx context.Context, runID string, ev StepEvent) error {
	raw, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode step event %s/%s: %w", runID, ev.Name, err)
	}
	if err := r.store.HSet(ctx, r.stepsKey(runID), map[string]string{ev.Name: string(raw)}); err != nil {
		return fmt.Errorf("write step event %s/%s: %w", runID, ev.Name, err)
	}
	return nil
}

// GetRun returns one run and its step events ordered by start time.
func (r *Redis) GetRun(ctx context.Context, runID string) (Run, []StepEvent, error) {
	fields, err := r.store.HGetAll(ctx, r.runKey(runID))
	if err != nil {
		return Run{}, nil, fmt.Errorf("get run %s: %w", runID, err)
	}
	if len(fields) == 0 {
		return Run{}, nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	run := parseRun(fields)

	rawSteps, err := r.store.HGetAll(ctx, r.stepsKey(runID))
	if err != nil {
		return Run{}, nil, fmt.Errorf("get run steps %s: %w", runID, err)
	}
	events := make([]StepEvent, 0, len(rawSteps))
	for name, raw := range rawSteps {
		var ev StepEvent
		if err := json.Unmarshal([]byte(raw), &ev); err != nil {
			return Run{}, nil, fmt.Errorf("decode step event %s/%s: %w", runID, name, err)
		}
		events = append(events, ev)
	}
	sortEvents(events)
	return run, events, nil
}

// ListRuns returns all runs, newest first.
func (r *Redis) ListRuns(ctx context.Context) ([]Run, error) {
	keys, err := r.store.Scan(ctx, r.prefix+":run:*")
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}

	runs := make([]Run, 0, len(keys))
	for _, key := range keys {
		if strings.HasSuffix(key, ":steps") {
			continue
		}
		fields, err := r.store.HGetAll(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("list runs: %w", err)
		}
		if len(fields) == 0 {
			continue
		}
		runs = append(runs, parseRun(fields))
	}
	sortRuns(runs)
	return runs, nil
}

func parseRun(fields map[string]string) Run {
	run := Run{
		ID:          fields["id"],
		Stem:        fields["stem"],
		ModelPreset: fields["model_preset"],
		Status:      Status(fields["status"]),
		Error:       fields["error"],
	}
	if t, err := time.Parse(time.RFC3339Nano, fields["created_at"]); err == nil {
		run.CreatedAt = t
	}
	if t, err := time.Parse(time.RFC3339Nano, fields["updated_at"]); err == nil {
		run.UpdatedAt = t
	}
	return run
}
