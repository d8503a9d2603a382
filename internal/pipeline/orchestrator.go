package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/sankofa-health/malaria-rag/internal/core/domain"
	"github.com/sankofa-health/malaria-rag/internal/core/ports"
)

// Params carries node input and output. A node is invoked with the
// accumulated outputs of its predecessors merged over the caller's params.
type Params map[string]any

// Handler is a unit of idempotent work. Handlers must be safe to invoke
// repeatedly with the same logical input: dedup happens inside each
// handler via existence checks, never in the orchestrator.
type Handler func(ctx context.Context, input Params) (Params, error)

// NodeResult is the per-node outcome of an Execute call.
type NodeResult struct {
	Status domain.NodeStatus `json:"status"`
	Data   Params            `json:"data,omitempty"`
	Err    error             `json:"-"`
	Error  string            `json:"error,omitempty"`
}

// Observer receives node completion events. Used for metrics.
type Observer interface {
	NodeFinished(nodeName string, status domain.NodeStatus, duration time.Duration)
}

// Orchestrator sequences a directed acyclic graph of named nodes. It owns
// execution order, per-node retry and the audit trail, and nothing else:
// entity state belongs to the handlers.
type Orchestrator struct {
	mu    sync.Mutex
	nodes map[string]*node
	succs map[string][]string
	preds map[string][]string

	execLog  ports.ExecutionLog
	logger   *slog.Logger
	workers  int
	observer Observer
}

const defaultWorkers = 4

func New(execLog ports.ExecutionLog, logger *slog.Logger, workers int) *Orchestrator {
	if workers <= 0 {
		workers = defaultWorkers
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		nodes:   make(map[string]*node),
		succs:   make(map[string][]string),
		preds:   make(map[string][]string),
		execLog: execLog,
		logger:  logger,
		workers: workers,
	}
}

// Observe attaches a completion observer. Must be called before Execute.
func (o *Orchestrator) Observe(obs Observer) {
	o.observer = obs
}

type nodeDone struct {
	name   string
	result NodeResult
}

// Execute runs the subgraph reachable from start in dependency order.
// Nodes whose in-subgraph predecessors have all succeeded may run
// concurrently, capped by the worker bound. The first terminal node
// failure aborts the call: in-flight nodes finish, unstarted nodes are
// marked skipped, and the error is returned alongside the result map.
func (o *Orchestrator) Execute(ctx context.Context, start string, params Params) (map[string]NodeResult, error) {
	o.mu.Lock()
	if _, ok := o.nodes[start]; !ok {
		o.mu.Unlock()
		return nil, &ConfigError{Node: start, Reason: "not registered"}
	}
	sub := o.reachable(start)
	inSub := make(map[string]bool, len(sub))
	for _, name := range sub {
		inSub[name] = true
	}
	indeg := make(map[string]int, len(sub))
	for _, name := range sub {
		for _, pred := range o.preds[name] {
			if inSub[pred] {
				indeg[name]++
			}
		}
	}
	o.mu.Unlock()

	results := make(map[string]NodeResult, len(sub))
	outputs := make(map[string]Params, len(sub))

	var queue []string
	for _, name := range sub {
		if indeg[name] == 0 {
			queue = append(queue, name)
		}
	}

	done := make(chan nodeDone)
	running := 0
	var execErr error

	for {
		for execErr == nil && running < o.workers && len(queue) > 0 {
			name := queue[0]
			queue = queue[1:]
			input := o.assembleInput(name, inSub, outputs, params)
			running++
			go func(name string, input Params) {
				done <- nodeDone{name: name, result: o.runNode(ctx, name, input)}
			}(name, input)
		}
		if running == 0 {
			break
		}

		d := <-done
		running--
		results[d.name] = d.result

		if d.result.Status == domain.NodeSuccess {
			outputs[d.name] = d.result.Data
			o.mu.Lock()
			succs := append([]string(nil), o.succs[d.name]...)
			o.mu.Unlock()
			for _, next := range succs {
				if !inSub[next] {
					continue
				}
				indeg[next]--
				if indeg[next] == 0 {
					queue = append(queue, next)
				}
			}
			continue
		}

		if execErr == nil {
			execErr = fmt.Errorf("node %s: %w", d.name, d.result.Err)
		}
		queue = nil
	}

	if execErr != nil {
		for _, name := range sub {
			if _, ok := results[name]; !ok {
				results[name] = NodeResult{Status: domain.NodeSkipped}
			}
		}
		return results, execErr
	}
	return results, nil
}

// assembleInput merges params with predecessor outputs. Predecessors are
// merged in name order so the result is deterministic.
func (o *Orchestrator) assembleInput(name string, inSub map[string]bool, outputs map[string]Params, params Params) Params {
	input := make(Params, len(params))
	for k, v := range params {
		input[k] = v
	}

	o.mu.Lock()
	preds := append([]string(nil), o.preds[name]...)
	o.mu.Unlock()
	sort.Strings(preds)

	for _, pred := range preds {
		if !inSub[pred] {
			continue
		}
		for k, v := range outputs[pred] {
			input[k] = v
		}
	}
	return input
}

// runNode executes one node with its retry budget. Two records are
// appended per attempt: a running record before the handler is invoked
// and a terminal one after, so the log reflects exactly what was
// attempted even if the process dies mid-node.
func (o *Orchestrator) runNode(ctx context.Context, name string, input Params) NodeResult {
	o.mu.Lock()
	n := o.nodes[name]
	o.mu.Unlock()

	docID, _ := input["document_id"].(string)
	queryID, _ := input["query_id"].(string)

	attempts := n.retry.MaxRetries + 1
	var lastErr error

	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			lastErr = err
			break
		}

		started := time.Now().UTC()
		o.appendRecord(ctx, domain.NodeExecution{
			NodeName:   name,
			Status:     domain.NodeRunning,
			Attempt:    attempt,
			DocumentID: docID,
			QueryID:    queryID,
			StartedAt:  started,
		})

		out, err := o.invoke(ctx, n, input)
		finished := time.Now().UTC()

		if err == nil {
			o.appendRecord(ctx, domain.NodeExecution{
				NodeName:   name,
				Status:     domain.NodeSuccess,
				Attempt:    attempt,
				DocumentID: docID,
				QueryID:    queryID,
				StartedAt:  started,
				FinishedAt: finished,
			})
			o.observe(name, domain.NodeSuccess, finished.Sub(started))
			return NodeResult{Status: domain.NodeSuccess, Data: out}
		}

		// A node-level timeout is transient and eligible for retry; an
		// externally cancelled pipeline is not.
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil && !domain.IsKind(err, domain.ErrTransient) {
			err = domain.WrapError(domain.ErrTransient, name, err)
		}
		lastErr = err

		o.appendRecord(ctx, domain.NodeExecution{
			NodeName:   name,
			Status:     domain.NodeFailed,
			Attempt:    attempt,
			DocumentID: docID,
			QueryID:    queryID,
			Error:      err.Error(),
			StartedAt:  started,
			FinishedAt: finished,
		})
		o.observe(name, domain.NodeFailed, finished.Sub(started))

		if !domain.IsKind(err, domain.ErrTransient) || ctx.Err() != nil {
			break
		}
		if attempt < attempts {
			o.logger.Warn("node_retry",
				"node", name,
				"attempt", attempt,
				"max_attempts", attempts,
				"error", err,
			)
		}
	}

	return NodeResult{Status: domain.NodeFailed, Err: lastErr, Error: lastErr.Error()}
}

func (o *Orchestrator) invoke(ctx context.Context, n *node, input Params) (out Params, err error) {
	runCtx := ctx
	if n.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, n.timeout)
		defer cancel()
	}
	defer func() {
		if r := recover(); r != nil {
			err = domain.WrapError(domain.ErrPermanent, n.name, fmt.Errorf("handler panic: %v", r))
		}
	}()
	return n.handler(runCtx, input)
}

// appendRecord writes to the audit log even when the pipeline context is
// already cancelled: the log must reflect what was attempted.
func (o *Orchestrator) appendRecord(ctx context.Context, record domain.NodeExecution) {
	if o.execLog == nil {
		return
	}
	if err := o.execLog.Append(context.WithoutCancel(ctx), record); err != nil {
		o.logger.Error("execution_log_append_failed",
			"node", record.NodeName,
			"status", string(record.Status),
			"error", err,
		)
	}
}

func (o *Orchestrator) observe(name string, status domain.NodeStatus, d time.Duration) {
	if o.observer != nil {
		o.observer.NodeFinished(name, status, d)
	}
}
