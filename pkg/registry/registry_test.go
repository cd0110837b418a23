package registry

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corewire/backend/pkg/corebackend/errs"
	"github.com/corewire/backend/pkg/ref"
)

func TestGet_Undefined(t *testing.T) {
	reg := NewRegistry(nil)
	val, found, err := reg.Get(context.Background(), ref.ServiceRef{ID: "missing", Scope: ref.ScopeRoot}, "root")
	require.NoError(t, err)
	assert.False(t, found)
	assert.Nil(t, val)
}

func TestGet_RootScopeIsMemoizedAcrossPlugins(t *testing.T) {
	var calls int32
	reg := NewRegistry([]ServiceFactory{
		{
			Service: ref.ServiceRef{ID: "db", Scope: ref.ScopeRoot},
			Factory: func(map[string]any, string) (any, error) {
				atomic.AddInt32(&calls, 1)
				return "connection", nil
			},
		},
	})

	r1 := ref.ServiceRef{ID: "db", Scope: ref.ScopeRoot}
	v1, found1, err1 := reg.Get(context.Background(), r1, "pluginA")
	v2, found2, err2 := reg.Get(context.Background(), r1, "pluginB")

	require.NoError(t, err1)
	require.NoError(t, err2)
	assert.True(t, found1)
	assert.True(t, found2)
	assert.Equal(t, v1, v2)
	assert.EqualValues(t, 1, calls)
}

func TestGet_PluginScopeIsPerPlugin(t *testing.T) {
	var calls int32
	reg := NewRegistry([]ServiceFactory{
		{
			Service: ref.ServiceRef{ID: "cache", Scope: ref.ScopePlugin},
			Factory: func(deps map[string]any, pluginID string) (any, error) {
				atomic.AddInt32(&calls, 1)
				return pluginID, nil
			},
		},
	})

	r := ref.ServiceRef{ID: "cache", Scope: ref.ScopePlugin}
	vA, _, errA := reg.Get(context.Background(), r, "pluginA")
	vB, _, errB := reg.Get(context.Background(), r, "pluginB")

	require.NoError(t, errA)
	require.NoError(t, errB)
	assert.Equal(t, "pluginA", vA)
	assert.Equal(t, "pluginB", vB)
	assert.EqualValues(t, 2, calls)
}

func TestGet_MissingTransitiveDependency(t *testing.T) {
	reg := NewRegistry([]ServiceFactory{
		{
			Service: ref.ServiceRef{ID: "svc", Scope: ref.ScopeRoot},
			Deps:    []ref.ServiceRef{{ID: "unregistered", Scope: ref.ScopeRoot}},
			Factory: func(deps map[string]any, pluginID string) (any, error) {
				return "unreachable", nil
			},
		},
	})

	_, _, err := reg.Get(context.Background(), ref.ServiceRef{ID: "svc", Scope: ref.ScopeRoot}, "root")
	require.Error(t, err)
	assert.ErrorIs(t, err, errs.ErrMissingDependency)
}

func TestGet_DependencyCycle(t *testing.T) {
	reg := NewRegistry([]ServiceFactory{
		{
			Service: ref.ServiceRef{ID: "a", Scope: ref.ScopeRoot},
			Deps:    []ref.ServiceRef{{ID: "b", Scope: ref.ScopeRoot}},
			Factory: func(map[string]any, string) (any, error) { return "a", nil },
		},
		{
			Service: ref.ServiceRef{ID: "b", Scope: ref.ScopeRoot},
			Deps:    []ref.ServiceRef{{ID: "a", Scope: ref.ScopeRoot}},
			Factory: func(map[string]any, string) (any, error) { return "b", nil },
		},
	})

	_, _, err := reg.Get(context.Background(), ref.ServiceRef{ID: "a", Scope: ref.ScopeRoot}, "root")
	require.Error(t, err)
	assert.ErrorIs(t, err, errs.ErrServiceCycle)
}

func TestGet_DiamondDependencyDoesNotFalselyReportACycle(t *testing.T) {
	reg := NewRegistry([]ServiceFactory{
		{
			Service: ref.ServiceRef{ID: "top", Scope: ref.ScopeRoot},
			Deps: []ref.ServiceRef{
				{ID: "left", Scope: ref.ScopeRoot},
				{ID: "right", Scope: ref.ScopeRoot},
			},
			Factory: func(map[string]any, string) (any, error) { return "top", nil },
		},
		{
			Service: ref.ServiceRef{ID: "left", Scope: ref.ScopeRoot},
			Deps:    []ref.ServiceRef{{ID: "shared", Scope: ref.ScopeRoot}},
			Factory: func(map[string]any, string) (any, error) { return "left", nil },
		},
		{
			Service: ref.ServiceRef{ID: "right", Scope: ref.ScopeRoot},
			Deps:    []ref.ServiceRef{{ID: "shared", Scope: ref.ScopeRoot}},
			Factory: func(map[string]any, string) (any, error) { return "right", nil },
		},
		{
			Service: ref.ServiceRef{ID: "shared", Scope: ref.ScopeRoot},
			Factory: func(map[string]any, string) (any, error) { return "shared", nil },
		},
	})

	_, found, err := reg.Get(context.Background(), ref.ServiceRef{ID: "top", Scope: ref.ScopeRoot}, "root")
	require.NoError(t, err)
	assert.True(t, found)
}

func TestGet_ConcurrentResolutionIsAtMostOnce(t *testing.T) {
	var calls int32
	reg := NewRegistry([]ServiceFactory{
		{
			Service: ref.ServiceRef{ID: "expensive", Scope: ref.ScopeRoot},
			Factory: func(map[string]any, string) (any, error) {
				atomic.AddInt32(&calls, 1)
				return "instance", nil
			},
		},
	})

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, _ = reg.Get(context.Background(), ref.ServiceRef{ID: "expensive", Scope: ref.ScopeRoot}, "root")
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 1, calls)
}
