package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestFanOut_BoundsParallelism(t *testing.T) {
	const limit = 3
	var current, high, processed int64

	items := make([]int, 20)
	for i := range items {
		items[i] = i
	}

	fan := &FanOut[int]{
		StepName:    "chains",
		Parallelism: limit,
		Items:       func(*RunContext) ([]int, error) { return items, nil },
		Build: func(item int) (*Graph, error) {
			g := NewGraph()
			g.Add(&fakeStep{
				name: fmt.Sprintf("work:%d", item),
				run: func(context.Context, *RunContext) error {
					n := atomic.AddInt64(&current, 1)
					for {
						h := atomic.LoadInt64(&high)
						if n <= h || atomic.CompareAndSwapInt64(&high, h, n) {
							break
						}
					}
					time.Sleep(2 * time.Millisecond)
					atomic.AddInt64(&current, -1)
					atomic.AddInt64(&processed, 1)
					return nil
				},
			})
			return g, nil
		},
		Exec: &Executor{Logger: zap.NewNop()},
	}

	if err := fan.Run(context.Background(), testRC()); err != nil {
		t.Fatalf("Run error = %v", err)
	}
	if got := atomic.LoadInt64(&processed); got != int64(len(items)) {
		t.Errorf("processed %d items, want %d", got, len(items))
	}
	if got := atomic.LoadInt64(&high); got > limit {
		t.Errorf("concurrent high-water = %d, exceeds limit %d", got, limit)
	}
}

func TestFanOut_FirstErrorStopsFeeding(t *testing.T) {
	boom := errors.New("no such database")
	var attempted int64

	fan := &FanOut[int]{
		StepName:    "chains",
		Parallelism: 1, // serial, so the failure point is deterministic
		Items:       func(*RunContext) ([]int, error) { return []int{1, 2, 3, 4, 5}, nil },
		Build: func(item int) (*Graph, error) {
			g := NewGraph()
			g.Add(&fakeStep{
				name: fmt.Sprintf("work:%d", item),
				run: func(context.Context, *RunContext) error {
					atomic.AddInt64(&attempted, 1)
					if item == 2 {
						return boom
					}
					return nil
				},
			})
			return g, nil
		},
		Exec: &Executor{Logger: zap.NewNop()},
	}

	err := fan.Run(context.Background(), testRC())
	if !errors.Is(err, boom) {
		t.Fatalf("Run error = %v, want the sub-step failure", err)
	}
	if got := atomic.LoadInt64(&attempted); got != 2 {
		t.Errorf("attempted %d items, want 2 (serial fail-fast)", got)
	}
}

func TestFanOut_ItemsError(t *testing.T) {
	fan := &FanOut[string]{
		StepName: "chains",
		Items: func(*RunContext) ([]string, error) {
			return nil, errors.New("run not configured")
		},
		Exec: &Executor{Logger: zap.NewNop()},
	}

	err := fan.Run(context.Background(), testRC())
	if err == nil || err.Error() != "chains items: run not configured" {
		t.Errorf("Run error = %v", err)
	}
}

func TestFanOut_EmptyItems(t *testing.T) {
	fan := &FanOut[string]{
		StepName: "chains",
		Items:    func(*RunContext) ([]string, error) { return nil, nil },
		Build: func(string) (*Graph, error) {
			return nil, errors.New("build must not be called")
		},
		Exec: &Executor{Logger: zap.NewNop()},
	}

	if err := fan.Run(context.Background(), testRC()); err != nil {
		t.Fatalf("Run error = %v", err)
	}
}

func TestFanOut_SharesRunContext(t *testing.T) {
	var mu sync.Mutex
	seen := map[string]bool{}

	fan := &FanOut[string]{
		StepName:    "chains",
		Parallelism: 2,
		Items:       func(*RunContext) ([]string, error) { return []string{"A", "B"}, nil },
		Build: func(id string) (*Graph, error) {
			g := NewGraph()
			g.Add(&fakeStep{
				name: "mark:" + id,
				run: func(_ context.Context, rc *RunContext) error {
					mu.Lock()
					seen[rc.RunID+"/"+id] = true
					mu.Unlock()
					return nil
				},
			})
			return g, nil
		},
		Exec: &Executor{Logger: zap.NewNop()},
	}

	if err := fan.Run(context.Background(), testRC()); err != nil {
		t.Fatalf("Run error = %v", err)
	}
	if !seen["run-test/A"] || !seen["run-test/B"] {
		t.Errorf("sub-steps did not see the shared run context: %v", seen)
	}
}
