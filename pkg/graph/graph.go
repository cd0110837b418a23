// Package graph implements the generic provides/consumes dependency graph
// used both for the module graph inside a single plugin and for any future
// caller that needs the same shape. It is adapted from the level-based DAG
// in the teacher's internal/lifecycle/dag.go, reworked from a single
// dependency list per node into separate provides/consumes id sets, and from
// level-by-level scheduling into id-granular readiness so that a node
// becomes runnable as soon as every provider of every id it consumes has
// completed, not merely when its whole "level" has.
package graph

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Node is one vertex of the graph. Provides and Consumes are ids; a node is
// considered dependent on every other node that provides an id it consumes.
type Node[T any] struct {
	Value    T
	Provides []string
	Consumes []string
}

type node[T any] struct {
	value    T
	provides []string
	consumes []string
}

// Graph holds a fixed set of nodes, built once via Add and then read by
// DetectCircularDependency and ParallelTopologicalTraversal. It is not safe
// to call Add concurrently with the read operations.
type Graph[T any] struct {
	nodes []*node[T]
}

// New creates an empty graph.
func New[T any]() *Graph[T] {
	return &Graph[T]{}
}

// Add registers a node in the graph.
func (g *Graph[T]) Add(n Node[T]) {
	g.nodes = append(g.nodes, &node[T]{value: n.Value, provides: n.Provides, consumes: n.Consumes})
}

func (g *Graph[T]) providerIndex() map[string][]*node[T] {
	idx := make(map[string][]*node[T])
	for _, n := range g.nodes {
		for _, id := range n.provides {
			idx[id] = append(idx[id], n)
		}
	}
	return idx
}

// DetectCircularDependency reports the first cycle found in the
// consumes-depends-on-provides relation, returning the cycle as an ordered
// slice of values (first and last entry are the same node). ok is false
// when the graph is acyclic.
func (g *Graph[T]) DetectCircularDependency() ([]T, bool) {
	const (
		white = 0
		gray  = 1
		black = 2
	)

	providers := g.providerIndex()
	state := make(map[*node[T]]int, len(g.nodes))
	var path []*node[T]
	var cycle []*node[T]

	var visit func(n *node[T]) bool
	visit = func(n *node[T]) bool {
		state[n] = gray
		path = append(path, n)
		for _, id := range n.consumes {
			for _, p := range providers[id] {
				if p == n {
					continue
				}
				switch state[p] {
				case gray:
					idx := -1
					for i, pn := range path {
						if pn == p {
							idx = i
							break
						}
					}
					if idx >= 0 {
						cycle = append([]*node[T]{}, path[idx:]...)
						cycle = append(cycle, p)
					}
					return true
				case white:
					if visit(p) {
						return true
					}
				}
			}
		}
		state[n] = black
		path = path[:len(path)-1]
		return false
	}

	for _, n := range g.nodes {
		if state[n] == white {
			if visit(n) {
				out := make([]T, len(cycle))
				for i, c := range cycle {
					out[i] = c.value
				}
				return out, true
			}
		}
	}
	return nil, false
}

// ParallelTopologicalTraversal visits every node with maximum safe
// parallelism: a node is dispatched as soon as every node providing an id it
// consumes has returned. Ids with no provider in the graph are treated as
// already satisfied. Visits already in flight when one returns an error are
// left to finish; the first error is returned once every dispatched visit
// has completed, matching errgroup.Group's default wait-for-all semantics
// (no context cancellation is applied to in-flight visits).
func (g *Graph[T]) ParallelTopologicalTraversal(ctx context.Context, visit func(context.Context, T) error) error {
	providers := g.providerIndex()

	deps := make(map[*node[T]]map[*node[T]]struct{}, len(g.nodes))
	dependents := make(map[*node[T]][]*node[T], len(g.nodes))
	for _, n := range g.nodes {
		dep := make(map[*node[T]]struct{})
		for _, id := range n.consumes {
			for _, p := range providers[id] {
				if p == n {
					continue
				}
				dep[p] = struct{}{}
			}
		}
		deps[n] = dep
	}
	for n, dep := range deps {
		for p := range dep {
			dependents[p] = append(dependents[p], n)
		}
	}

	var mu sync.Mutex
	remaining := make(map[*node[T]]int, len(g.nodes))
	for n, dep := range deps {
		remaining[n] = len(dep)
	}
	visited := make(map[*node[T]]bool, len(g.nodes))
	failed := false

	group := &errgroup.Group{}

	var schedule func(n *node[T])
	schedule = func(n *node[T]) {
		group.Go(func() error {
			err := visit(ctx, n.value)
			mu.Lock()
			visited[n] = true
			if err != nil {
				failed = true
			}
			ready := make([]*node[T], 0)
			if !failed {
				for _, dep := range dependents[n] {
					remaining[dep]--
					if remaining[dep] == 0 {
						ready = append(ready, dep)
					}
				}
			}
			mu.Unlock()
			for _, r := range ready {
				schedule(r)
			}
			return err
		})
	}

	mu.Lock()
	initial := make([]*node[T], 0)
	for n, r := range remaining {
		if r == 0 {
			initial = append(initial, n)
		}
	}
	mu.Unlock()
	for _, n := range initial {
		schedule(n)
	}

	if err := group.Wait(); err != nil {
		return err
	}

	mu.Lock()
	defer mu.Unlock()
	if len(visited) != len(g.nodes) {
		return fmt.Errorf("graph: %d of %d nodes never became ready (dependency cycle)", len(g.nodes)-len(visited), len(g.nodes))
	}
	return nil
}
