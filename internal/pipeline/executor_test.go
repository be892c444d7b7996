package pipeline

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"go.uber.org/zap"

	"github.com/protomerlab/protomer/internal/config"
	"github.com/protomerlab/protomer/internal/domain"
	"github.com/protomerlab/protomer/internal/ledger"
)

// fakeRecorder captures ledger events.
type fakeRecorder struct {
	mu       sync.Mutex
	started  []string
	finished map[string]ledger.Status
}

func newFakeRecorder() *fakeRecorder {
	return &fakeRecorder{finished: make(map[string]ledger.Status)}
}

func (f *fakeRecorder) StepStarted(_ context.Context, _, step string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started = append(f.started, step)
	return nil
}

func (f *fakeRecorder) StepFinished(_ context.Context, _, step string, status ledger.Status, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.finished[step] = status
	return nil
}

func (f *fakeRecorder) statusOf(step string) (ledger.Status, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.finished[step]
	return s, ok
}

func testRC() *RunContext {
	return NewRunContext(&config.Config{}, domain.RunParams{}, "run-test", "", zap.NewNop())
}

func TestExecutor_RunsInDependencyOrder(t *testing.T) {
	var mu sync.Mutex
	var order []string
	record := func(name string) func(context.Context, *RunContext) error {
		return func(context.Context, *RunContext) error {
			mu.Lock()
			defer mu.Unlock()
			order = append(order, name)
			return nil
		}
	}

	g := NewGraph()
	g.Add(&fakeStep{name: "a", run: record("a")})
	g.Add(&fakeStep{name: "b", run: record("b")}, "a")
	g.Add(&fakeStep{name: "c", run: record("c")}, "b")

	e := &Executor{Logger: zap.NewNop()}
	if err := e.Execute(context.Background(), g, testRC()); err != nil {
		t.Fatalf("Execute error = %v", err)
	}

	want := []string{"a", "b", "c"}
	if len(order) != len(want) {
		t.Fatalf("ran %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("ran %v, want %v", order, want)
		}
	}
}

func TestExecutor_GuardSkipDoesNotBlockDependents(t *testing.T) {
	var ran sync.Map
	mark := func(name string) func(context.Context, *RunContext) error {
		return func(context.Context, *RunContext) error {
			ran.Store(name, true)
			return nil
		}
	}

	g := NewGraph()
	g.Add(&fakeStep{name: "search", run: mark("search")})
	g.AddGuarded(&fakeStep{name: "relax", run: mark("relax")}, func(*RunContext) bool { return false }, "search")
	g.Add(&fakeStep{name: "report", run: mark("report")}, "relax")

	rec := newFakeRecorder()
	e := &Executor{Recorder: rec, Logger: zap.NewNop()}
	if err := e.Execute(context.Background(), g, testRC()); err != nil {
		t.Fatalf("Execute error = %v", err)
	}

	if _, skippedRan := ran.Load("relax"); skippedRan {
		t.Error("guarded step ran despite false guard")
	}
	if _, ok := ran.Load("report"); !ok {
		t.Error("dependent of skipped step did not run")
	}
	if s, ok := rec.statusOf("relax"); !ok || s != ledger.StatusSkipped {
		t.Errorf("relax ledger status = %v (%v), want skipped", s, ok)
	}
	if s, _ := rec.statusOf("report"); s != ledger.StatusDone {
		t.Errorf("report ledger status = %v, want done", s)
	}
}

func TestExecutor_FailFastCancelsSiblings(t *testing.T) {
	boom := errors.New("database mount missing")

	g := NewGraph()
	// slow runs until canceled; fail errors immediately.
	g.Add(&fakeStep{name: "slow", run: func(ctx context.Context, _ *RunContext) error {
		<-ctx.Done()
		return ctx.Err()
	}})
	g.Add(&fakeStep{name: "fail", run: func(context.Context, *RunContext) error {
		return boom
	}})
	var downstreamRan bool
	g.Add(&fakeStep{name: "downstream", run: func(context.Context, *RunContext) error {
		downstreamRan = true
		return nil
	}}, "fail")

	rec := newFakeRecorder()
	e := &Executor{Recorder: rec, Logger: zap.NewNop()}
	err := e.Execute(context.Background(), g, testRC())

	if !errors.Is(err, boom) {
		t.Fatalf("Execute error = %v, want the step failure", err)
	}
	if !strings.Contains(err.Error(), "step fail") {
		t.Errorf("error does not name the failing step: %v", err)
	}
	if downstreamRan {
		t.Error("dependent of failed step ran")
	}
	if _, ok := rec.statusOf("downstream"); ok {
		t.Error("never-started step has a ledger record")
	}
	if s, _ := rec.statusOf("fail"); s != ledger.StatusFailed {
		t.Errorf("fail ledger status = %v, want failed", s)
	}
}

func TestExecutor_NoRecorder(t *testing.T) {
	g := NewGraph()
	g.Add(step("only"))

	e := &Executor{}
	if err := e.Execute(context.Background(), g, testRC()); err != nil {
		t.Fatalf("Execute error = %v", err)
	}
}
