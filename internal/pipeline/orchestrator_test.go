package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sankofa-health/malaria-rag/internal/core/domain"
)

type execLogFake struct {
	mu      sync.Mutex
	records []domain.NodeExecution
	err     error
}

func (f *execLogFake) Append(_ context.Context, record domain.NodeExecution) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.records = append(f.records, record)
	return nil
}

func (f *execLogFake) ListByNode(context.Context, string, int) ([]domain.NodeExecution, error) {
	return nil, nil
}

func (f *execLogFake) byNode(name string) []domain.NodeExecution {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.NodeExecution
	for _, r := range f.records {
		if r.NodeName == name {
			out = append(out, r)
		}
	}
	return out
}

// terminal drops the running records, leaving one record per attempt.
func (f *execLogFake) terminal(name string) []domain.NodeExecution {
	var out []domain.NodeExecution
	for _, r := range f.byNode(name) {
		if r.Status != domain.NodeRunning {
			out = append(out, r)
		}
	}
	return out
}

func noopHandler(_ context.Context, input Params) (Params, error) {
	return input, nil
}

func TestRegisterNodeRejectsDuplicate(t *testing.T) {
	o := New(&execLogFake{}, nil, 1)
	if err := o.RegisterNode("ingest", noopHandler, DefaultRetryPolicy(), 0); err != nil {
		t.Fatalf("first registration: %v", err)
	}

	err := o.RegisterNode("ingest", noopHandler, DefaultRetryPolicy(), 0)
	var cfgErr *ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected ConfigError, got %v", err)
	}
}

func TestRegisterEdgeRejectsCycle(t *testing.T) {
	o := New(&execLogFake{}, nil, 1)
	for _, name := range []string{"a", "b", "c"} {
		if err := o.RegisterNode(name, noopHandler, DefaultRetryPolicy(), 0); err != nil {
			t.Fatalf("register %s: %v", name, err)
		}
	}
	if err := o.RegisterEdge("a", "b"); err != nil {
		t.Fatalf("edge a->b: %v", err)
	}
	if err := o.RegisterEdge("b", "c"); err != nil {
		t.Fatalf("edge b->c: %v", err)
	}

	err := o.RegisterEdge("c", "a")
	var graphErr *GraphError
	if !errors.As(err, &graphErr) {
		t.Fatalf("expected GraphError for cycle, got %v", err)
	}

	// The rejected edge must not poison the graph.
	if _, execErr := o.Execute(context.Background(), "a", nil); execErr != nil {
		t.Fatalf("execute after rejected edge: %v", execErr)
	}
}

func TestRegisterEdgeRejectsUnknownNode(t *testing.T) {
	o := New(&execLogFake{}, nil, 1)
	if err := o.RegisterNode("a", noopHandler, DefaultRetryPolicy(), 0); err != nil {
		t.Fatalf("register: %v", err)
	}

	var graphErr *GraphError
	if err := o.RegisterEdge("a", "ghost"); !errors.As(err, &graphErr) {
		t.Fatalf("expected GraphError, got %v", err)
	}
}

func TestExecuteAccumulatesPredecessorOutput(t *testing.T) {
	o := New(&execLogFake{}, nil, 2)

	if err := o.RegisterNode("extract", func(_ context.Context, input Params) (Params, error) {
		return Params{"text": "malaria study"}, nil
	}, DefaultRetryPolicy(), 0); err != nil {
		t.Fatalf("register extract: %v", err)
	}

	var got Params
	if err := o.RegisterNode("chunk", func(_ context.Context, input Params) (Params, error) {
		got = input
		return Params{"chunks": 3}, nil
	}, DefaultRetryPolicy(), 0); err != nil {
		t.Fatalf("register chunk: %v", err)
	}
	if err := o.RegisterEdge("extract", "chunk"); err != nil {
		t.Fatalf("edge: %v", err)
	}

	results, err := o.Execute(context.Background(), "extract", Params{"document_id": "doc-1"})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if got["text"] != "malaria study" || got["document_id"] != "doc-1" {
		t.Fatalf("chunk input missing accumulated params: %+v", got)
	}
	if results["chunk"].Status != domain.NodeSuccess {
		t.Fatalf("expected chunk success, got %+v", results["chunk"])
	}
}

func TestTransientFailureRetriedThenSucceeds(t *testing.T) {
	log := &execLogFake{}
	o := New(log, nil, 1)

	calls := 0
	if err := o.RegisterNode("embed", func(_ context.Context, input Params) (Params, error) {
		calls++
		if calls < 3 {
			return nil, domain.WrapError(domain.ErrTransient, "embed", errors.New("store unavailable"))
		}
		return Params{"inserted": 5}, nil
	}, RetryPolicy{MaxRetries: 2}, 0); err != nil {
		t.Fatalf("register: %v", err)
	}
	downstream := false
	if err := o.RegisterNode("verify", func(_ context.Context, input Params) (Params, error) {
		downstream = true
		return nil, nil
	}, DefaultRetryPolicy(), 0); err != nil {
		t.Fatalf("register verify: %v", err)
	}
	if err := o.RegisterEdge("embed", "verify"); err != nil {
		t.Fatalf("edge: %v", err)
	}

	results, err := o.Execute(context.Background(), "embed", nil)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls)
	}
	if !downstream {
		t.Fatalf("downstream node did not run after recovered retries")
	}
	if results["embed"].Status != domain.NodeSuccess {
		t.Fatalf("expected embed success, got %+v", results["embed"])
	}

	// Each attempt leaves a start and a terminal record.
	if all := log.byNode("embed"); len(all) != 6 {
		t.Fatalf("expected 6 execution records, got %d", len(all))
	}
	records := log.terminal("embed")
	if len(records) != 3 {
		t.Fatalf("expected exactly 3 terminal records, got %d", len(records))
	}
	wantStatuses := []domain.NodeStatus{domain.NodeFailed, domain.NodeFailed, domain.NodeSuccess}
	for i, want := range wantStatuses {
		if records[i].Status != want {
			t.Fatalf("record %d status = %s, want %s", i, records[i].Status, want)
		}
		if records[i].Attempt != i+1 {
			t.Fatalf("record %d attempt = %d, want %d", i, records[i].Attempt, i+1)
		}
	}
}

func TestPermanentFailureNotRetriedAndDownstreamSkipped(t *testing.T) {
	log := &execLogFake{}
	o := New(log, nil, 1)

	calls := 0
	if err := o.RegisterNode("qualify", func(_ context.Context, input Params) (Params, error) {
		calls++
		return nil, domain.WrapError(domain.ErrPermanent, "qualify", errors.New("unreadable document"))
	}, RetryPolicy{MaxRetries: 2}, 0); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := o.RegisterNode("chunk", noopHandler, DefaultRetryPolicy(), 0); err != nil {
		t.Fatalf("register chunk: %v", err)
	}
	if err := o.RegisterEdge("qualify", "chunk"); err != nil {
		t.Fatalf("edge: %v", err)
	}

	results, err := o.Execute(context.Background(), "qualify", nil)
	if err == nil {
		t.Fatalf("expected pipeline error")
	}
	if calls != 1 {
		t.Fatalf("permanent failure retried: %d calls", calls)
	}
	if results["qualify"].Status != domain.NodeFailed {
		t.Fatalf("expected qualify failed, got %+v", results["qualify"])
	}
	if results["chunk"].Status != domain.NodeSkipped {
		t.Fatalf("expected chunk skipped, got %+v", results["chunk"])
	}
	if records := log.terminal("qualify"); len(records) != 1 || records[0].Status != domain.NodeFailed {
		t.Fatalf("expected a single failure record, got %+v", records)
	}
}

func TestIndependentNodesBothRun(t *testing.T) {
	o := New(&execLogFake{}, nil, 2)

	var mu sync.Mutex
	ran := map[string]bool{}
	mark := func(name string) Handler {
		return func(_ context.Context, input Params) (Params, error) {
			mu.Lock()
			ran[name] = true
			mu.Unlock()
			return nil, nil
		}
	}

	if err := o.RegisterNode("qualify", mark("qualify"), DefaultRetryPolicy(), 0); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := o.RegisterNode("attribute", mark("attribute"), DefaultRetryPolicy(), 0); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := o.RegisterNode("chunk", mark("chunk"), DefaultRetryPolicy(), 0); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := o.RegisterNode("start", noopHandler, DefaultRetryPolicy(), 0); err != nil {
		t.Fatalf("register: %v", err)
	}
	for _, edge := range [][2]string{{"start", "qualify"}, {"start", "attribute"}, {"qualify", "chunk"}, {"attribute", "chunk"}} {
		if err := o.RegisterEdge(edge[0], edge[1]); err != nil {
			t.Fatalf("edge %v: %v", edge, err)
		}
	}

	if _, err := o.Execute(context.Background(), "start", nil); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	for _, name := range []string{"qualify", "attribute", "chunk"} {
		if !ran[name] {
			t.Fatalf("node %s did not run", name)
		}
	}
}

func TestNodeTimeoutTreatedAsTransient(t *testing.T) {
	log := &execLogFake{}
	o := New(log, nil, 1)

	calls := 0
	if err := o.RegisterNode("retrieve", func(ctx context.Context, input Params) (Params, error) {
		calls++
		if calls == 1 {
			<-ctx.Done()
			return nil, ctx.Err()
		}
		return nil, nil
	}, RetryPolicy{MaxRetries: 1}, 20*time.Millisecond); err != nil {
		t.Fatalf("register: %v", err)
	}

	results, err := o.Execute(context.Background(), "retrieve", nil)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected retry after timeout, got %d calls", calls)
	}
	if results["retrieve"].Status != domain.NodeSuccess {
		t.Fatalf("expected success after timeout retry, got %+v", results["retrieve"])
	}
}

func TestExecuteUnknownStartNode(t *testing.T) {
	o := New(&execLogFake{}, nil, 1)
	var cfgErr *ConfigError
	if _, err := o.Execute(context.Background(), "missing", nil); !errors.As(err, &cfgErr) {
		t.Fatalf("expected ConfigError, got %v", err)
	}
}

func TestCancelledExecuteLeavesConsistentLog(t *testing.T) {
	log := &execLogFake{}
	o := New(log, nil, 1)

	ctx, cancel := context.WithCancel(context.Background())
	if err := o.RegisterNode("extract", func(ctx context.Context, input Params) (Params, error) {
		cancel()
		return nil, ctx.Err()
	}, RetryPolicy{MaxRetries: 2}, 0); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := o.RegisterNode("chunk", noopHandler, DefaultRetryPolicy(), 0); err != nil {
		t.Fatalf("register chunk: %v", err)
	}
	if err := o.RegisterEdge("extract", "chunk"); err != nil {
		t.Fatalf("edge: %v", err)
	}

	results, err := o.Execute(ctx, "extract", nil)
	if err == nil {
		t.Fatalf("expected error from cancelled pipeline")
	}
	// No success record for extract: the node is re-runnable.
	for _, r := range log.byNode("extract") {
		if r.Status == domain.NodeSuccess {
			t.Fatalf("cancelled node logged as success")
		}
	}
	if results["chunk"].Status != domain.NodeSkipped {
		t.Fatalf("expected chunk skipped after cancellation, got %+v", results["chunk"])
	}
}
