package graph

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectCircularDependency_None(t *testing.T) {
	g := New[string]()
	g.Add(Node[string]{Value: "a", Provides: []string{"A"}})
	g.Add(Node[string]{Value: "b", Provides: []string{"B"}, Consumes: []string{"A"}})
	g.Add(Node[string]{Value: "c", Consumes: []string{"B"}})

	_, cyclic := g.DetectCircularDependency()
	assert.False(t, cyclic)
}

func TestDetectCircularDependency_Found(t *testing.T) {
	g := New[string]()
	g.Add(Node[string]{Value: "a", Provides: []string{"A"}, Consumes: []string{"B"}})
	g.Add(Node[string]{Value: "b", Provides: []string{"B"}, Consumes: []string{"A"}})

	path, cyclic := g.DetectCircularDependency()
	require.True(t, cyclic)
	assert.NotEmpty(t, path)
}

func TestParallelTopologicalTraversal_OrdersByProvides(t *testing.T) {
	g := New[string]()
	g.Add(Node[string]{Value: "root", Provides: []string{"A"}})
	g.Add(Node[string]{Value: "mid", Provides: []string{"B"}, Consumes: []string{"A"}})
	g.Add(Node[string]{Value: "leaf", Consumes: []string{"B"}})

	var mu sync.Mutex
	var order []string
	err := g.ParallelTopologicalTraversal(context.Background(), func(ctx context.Context, v string) error {
		time.Sleep(time.Millisecond)
		mu.Lock()
		order = append(order, v)
		mu.Unlock()
		return nil
	})
	require.NoError(t, err)
	require.Len(t, order, 3)
	assert.Equal(t, "root", order[0])
	assert.Equal(t, "mid", order[1])
	assert.Equal(t, "leaf", order[2])
}

func TestParallelTopologicalTraversal_UnrelatedNodesRunConcurrently(t *testing.T) {
	g := New[string]()
	g.Add(Node[string]{Value: "a"})
	g.Add(Node[string]{Value: "b"})

	var started sync.WaitGroup
	started.Add(2)
	release := make(chan struct{})

	// Both visits block until both have started, so the traversal only
	// returns if "a" and "b" were running at the same time.
	go func() {
		started.Wait()
		close(release)
	}()

	err := g.ParallelTopologicalTraversal(context.Background(), func(ctx context.Context, v string) error {
		started.Done()
		<-release
		return nil
	})

	require.NoError(t, err)
}

func TestParallelTopologicalTraversal_LetsSiblingsFinishOnError(t *testing.T) {
	g := New[string]()
	g.Add(Node[string]{Value: "fails"})
	g.Add(Node[string]{Value: "slow"})

	var slowFinished bool
	var mu sync.Mutex

	err := g.ParallelTopologicalTraversal(context.Background(), func(ctx context.Context, v string) error {
		if v == "fails" {
			return assert.AnError
		}
		time.Sleep(20 * time.Millisecond)
		mu.Lock()
		slowFinished = true
		mu.Unlock()
		return nil
	})

	require.Error(t, err)
	mu.Lock()
	defer mu.Unlock()
	assert.True(t, slowFinished, "sibling visit should be allowed to finish even though another failed")
}

func TestParallelTopologicalTraversal_UnknownConsumedIDSatisfiedImmediately(t *testing.T) {
	g := New[string]()
	g.Add(Node[string]{Value: "solo", Consumes: []string{"nobody-provides-this"}})

	var ran bool
	err := g.ParallelTopologicalTraversal(context.Background(), func(ctx context.Context, v string) error {
		ran = true
		return nil
	})
	require.NoError(t, err)
	assert.True(t, ran)
}
