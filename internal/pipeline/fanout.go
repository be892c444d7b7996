package pipeline

import (
	"context"
	"fmt"
	"sync"

	logpkg "github.com/protomerlab/protomer/internal/logger"
)

// FanOut expands a runtime item list into per-item sub-graphs executed
// by a worker pool of at most Parallelism goroutines. Items is invoked
// when the node runs, Build once per item; the sub-graphs share the
// parent run context. The first sub-step error cancels the whole
// region.
type FanOut[T any] struct {
	// StepName is the node's name in the outer graph.
	StepName string
	// Parallelism bounds concurrent items; values below 1 mean serial.
	Parallelism int
	// Items produces the work list, e.g. chains to search.
	Items func(rc *RunContext) ([]T, error)
	// Build assembles one item's sub-graph.
	Build func(item T) (*Graph, error)
	// Legs names the per-item steps for plan rendering.
	Legs []string
	// Exec runs the sub-graphs.
	Exec *Executor
}

// Compile-time check: FanOut is a Step.
var _ Step = (*FanOut[int])(nil)

// Name implements Step.
func (f *FanOut[T]) Name() string { return f.StepName }

// FanInfo reports the region's bound and per-item step names for plan
// rendering.
func (f *FanOut[T]) FanInfo() (parallelism int, legs []string) {
	return f.Parallelism, f.Legs
}

// Run implements Step.
func (f *FanOut[T]) Run(ctx context.Context, rc *RunContext) error {
	items, err := f.Items(rc)
	if err != nil {
		return fmt.Errorf("%s items: %w", f.StepName, err)
	}
	if len(items) == 0 {
		rc.Logger.Info("fan-out has no items", logpkg.Step(f.StepName))
		return nil
	}

	workers := f.Parallelism
	if workers < 1 {
		workers = 1
	}
	if workers > len(items) {
		workers = len(items)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg       sync.WaitGroup
		once     sync.Once
		firstErr error
	)
	fail := func(err error) {
		once.Do(func() {
			firstErr = err
			cancel()
		})
	}

	jobs := make(chan T)
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			for item := range jobs {
				sub, err := f.Build(item)
				if err != nil {
					fail(fmt.Errorf("%s build: %w", f.StepName, err))
					return
				}
				if err := f.Exec.Execute(ctx, sub, rc); err != nil {
					fail(err)
					return
				}
			}
		}()
	}

feed:
	for _, item := range items {
		select {
		case jobs <- item:
		case <-ctx.Done():
			break feed
		}
	}
	close(jobs)
	wg.Wait()

	return firstErr
}
