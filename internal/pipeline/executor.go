package pipeline

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/protomerlab/protomer/internal/ledger"
	logpkg "github.com/protomerlab/protomer/internal/logger"
	"github.com/protomerlab/protomer/internal/metrics"
)

// StepRecorder receives step lifecycle events as the executor walks the
// graph. ledger.Ledger satisfies it; a nil recorder disables recording.
type StepRecorder interface {
	StepStarted(ctx context.Context, runID, step string) error
	StepFinished(ctx context.Context, runID, step string, status ledger.Status, detail string) error
}

// StepsTotal status labels.
const (
	statusSucceeded = "succeeded"
	statusFailed    = "failed"
	statusSkipped   = "skipped"
)

// Executor runs a graph against a run context. Every ready node runs in
// its own goroutine; the first error cancels the run context, already
// running nodes drain, and nothing new starts. A false guard marks the
// node skipped and its dependents still run.
type Executor struct {
	Recorder StepRecorder
	Logger   *zap.Logger
}

type stepResult struct {
	name string
	err  error
}

// Execute walks the graph to completion and returns the first step
// error, already wrapped with the step name.
func (e *Executor) Execute(ctx context.Context, g *Graph, rc *RunContext) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make(chan stepResult)
	started := make(map[string]bool, g.Len())
	done := make(map[string]bool, g.Len())
	running := 0
	var firstErr error

	for {
		if firstErr == nil {
			// Dependencies are inserted before their dependents, so one
			// forward pass reaches every newly ready node, including
			// chains of skips.
			for _, name := range g.order {
				if started[name] || done[name] || !e.ready(g, name, done) {
					continue
				}
				n := g.nodes[name]
				if n.guard != nil && !n.guard(rc) {
					e.skip(ctx, rc, name)
					done[name] = true
					continue
				}
				started[name] = true
				running++
				go e.runStep(ctx, rc, n.step, results)
			}
		}

		if running == 0 {
			break
		}
		res := <-results
		running--
		done[res.name] = true
		if res.err != nil && firstErr == nil {
			firstErr = res.err
			cancel()
		}
	}

	return firstErr
}

func (e *Executor) ready(g *Graph, name string, done map[string]bool) bool {
	for _, d := range g.nodes[name].deps {
		if !done[d] {
			return false
		}
	}
	return true
}

func (e *Executor) runStep(ctx context.Context, rc *RunContext, s Step, results chan<- stepResult) {
	name := s.Name()
	log := e.logger(rc).With(logpkg.Step(name))

	if e.Recorder != nil {
		if err := e.Recorder.StepStarted(ctx, rc.RunID, name); err != nil {
			log.Warn("ledger step start not recorded", zap.Error(err))
		}
	}
	log.Info("step started")

	start := time.Now()
	err := s.Run(ctx, rc)
	elapsed := time.Since(start)
	metrics.StepDuration.WithLabelValues(name).Observe(elapsed.Seconds())

	// Canonical per-step line: everything needed to reconstruct the run
	// from logs alone.
	fields := []zap.Field{zap.Duration("duration", elapsed)}
	status, detail := ledger.StatusDone, ""
	if err != nil {
		status, detail = ledger.StatusFailed, err.Error()
		metrics.StepsTotal.WithLabelValues(name, statusFailed).Inc()
		log.Error("step failed", append(fields, zap.Error(err))...)
	} else {
		metrics.StepsTotal.WithLabelValues(name, statusSucceeded).Inc()
		log.Info("step finished", fields...)
	}

	if e.Recorder != nil {
		if rerr := e.Recorder.StepFinished(ctx, rc.RunID, name, status, detail); rerr != nil {
			log.Warn("ledger step finish not recorded", zap.Error(rerr))
		}
	}

	if err != nil {
		err = fmt.Errorf("step %s: %w", name, err)
	}
	results <- stepResult{name: name, err: err}
}

func (e *Executor) skip(ctx context.Context, rc *RunContext, name string) {
	metrics.StepsTotal.WithLabelValues(name, statusSkipped).Inc()
	e.logger(rc).Info("step skipped", logpkg.Step(name))
	if e.Recorder != nil {
		if err := e.Recorder.StepFinished(ctx, rc.RunID, name, ledger.StatusSkipped, "guard false"); err != nil {
			e.logger(rc).Warn("ledger step skip not recorded", logpkg.Step(name), zap.Error(err))
		}
	}
}

func (e *Executor) logger(rc *RunContext) *zap.Logger {
	if e.Logger != nil {
		return e.Logger.With(logpkg.Run(rc.RunID))
	}
	return rc.Logger.With(logpkg.Run(rc.RunID))
}
