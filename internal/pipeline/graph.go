package pipeline

import (
	"fmt"
	"time"
)

// ConfigError reports invalid node registration.
type ConfigError struct {
	Node   string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("pipeline config: node %q: %s", e.Node, e.Reason)
}

// GraphError reports invalid edge registration. The graph is validated
// eagerly: a bad edge never survives until execution time.
type GraphError struct {
	From   string
	To     string
	Reason string
}

func (e *GraphError) Error() string {
	return fmt.Sprintf("pipeline graph: edge %s -> %s: %s", e.From, e.To, e.Reason)
}

// RetryPolicy bounds retries of transient failures. Retries are immediate;
// backoff between external calls is the resilience executor's concern, not
// the orchestrator's.
type RetryPolicy struct {
	MaxRetries int
}

// DefaultRetryPolicy allows two retries after the first attempt.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxRetries: 2}
}

type node struct {
	name    string
	handler Handler
	retry   RetryPolicy
	timeout time.Duration
}

// RegisterNode registers a unit of work under a unique name.
func (o *Orchestrator) RegisterNode(name string, handler Handler, retry RetryPolicy, timeout time.Duration) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if name == "" {
		return &ConfigError{Node: name, Reason: "empty name"}
	}
	if handler == nil {
		return &ConfigError{Node: name, Reason: "nil handler"}
	}
	if _, exists := o.nodes[name]; exists {
		return &ConfigError{Node: name, Reason: "already registered"}
	}
	if retry.MaxRetries < 0 {
		retry = DefaultRetryPolicy()
	}

	o.nodes[name] = &node{
		name:    name,
		handler: handler,
		retry:   retry,
		timeout: timeout,
	}
	return nil
}

// RegisterEdge declares that to depends on from's successful completion.
// Cycles are rejected here, not at execution time.
func (o *Orchestrator) RegisterEdge(from, to string) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if _, ok := o.nodes[from]; !ok {
		return &GraphError{From: from, To: to, Reason: "unknown source node"}
	}
	if _, ok := o.nodes[to]; !ok {
		return &GraphError{From: from, To: to, Reason: "unknown target node"}
	}
	if from == to {
		return &GraphError{From: from, To: to, Reason: "self dependency"}
	}
	for _, existing := range o.succs[from] {
		if existing == to {
			return &GraphError{From: from, To: to, Reason: "duplicate edge"}
		}
	}

	o.succs[from] = append(o.succs[from], to)
	o.preds[to] = append(o.preds[to], from)

	if o.hasCycle() {
		o.succs[from] = o.succs[from][:len(o.succs[from])-1]
		o.preds[to] = o.preds[to][:len(o.preds[to])-1]
		return &GraphError{From: from, To: to, Reason: "introduces cycle"}
	}
	return nil
}

// hasCycle runs a three-color DFS over the full graph. Callers hold o.mu.
func (o *Orchestrator) hasCycle() bool {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(o.nodes))

	var visit func(name string) bool
	visit = func(name string) bool {
		color[name] = gray
		for _, next := range o.succs[name] {
			switch color[next] {
			case gray:
				return true
			case white:
				if visit(next) {
					return true
				}
			}
		}
		color[name] = black
		return false
	}

	for name := range o.nodes {
		if color[name] == white && visit(name) {
			return true
		}
	}
	return false
}

// reachable returns the subgraph reachable from start, in breadth-first
// discovery order.
func (o *Orchestrator) reachable(start string) []string {
	seen := map[string]bool{start: true}
	order := []string{start}
	for i := 0; i < len(order); i++ {
		for _, next := range o.succs[order[i]] {
			if !seen[next] {
				seen[next] = true
				order = append(order, next)
			}
		}
	}
	return order
}
