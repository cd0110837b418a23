package corebackend

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corewire/backend/pkg/catalog"
	"github.com/corewire/backend/pkg/corebackend/errs"
	"github.com/corewire/backend/pkg/ref"
	"github.com/corewire/backend/pkg/registry"
)

func newTestInitializer(defaults []registry.ServiceFactory) *Initializer {
	return New(defaults, WithConfig(Config{TestMode: true}))
}

func TestStart_Minimal(t *testing.T) {
	i := newTestInitializer(nil)
	require.NoError(t, i.Start(context.Background()))
	assert.Equal(t, StateRunning, i.State())
	require.NoError(t, i.Stop(context.Background()))
	assert.Equal(t, StateStopped, i.State())
}

func TestStart_Twice_FailsAlreadyStarted(t *testing.T) {
	i := newTestInitializer(nil)
	require.NoError(t, i.Start(context.Background()))
	err := i.Start(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, errs.ErrAlreadyStarted)
}

func TestAdd_AfterStart_FailsAlreadyStarted(t *testing.T) {
	i := newTestInitializer(nil)
	require.NoError(t, i.Start(context.Background()))
	err := i.Add(catalog.NewPluginFeature("late", nil, nil))
	require.Error(t, err)
	assert.ErrorIs(t, err, errs.ErrAlreadyStarted)
}

func TestStop_BeforeStart_IsNoop(t *testing.T) {
	i := newTestInitializer(nil)
	require.NoError(t, i.Stop(context.Background()))
	assert.Equal(t, StateConfiguring, i.State())
}

func TestStop_IsIdempotent(t *testing.T) {
	i := newTestInitializer(nil)
	require.NoError(t, i.Start(context.Background()))
	require.NoError(t, i.Stop(context.Background()))
	require.NoError(t, i.Stop(context.Background()))
}

func TestModuleGraph_ProviderRunsAfterConsumer(t *testing.T) {
	i := newTestInitializer(nil)

	var mu sync.Mutex
	var order []string
	record := func(name string) {
		mu.Lock()
		order = append(order, name)
		mu.Unlock()
	}

	require.NoError(t, i.Add(catalog.NewPluginFeature("p", nil, nil)))
	require.NoError(t, i.Add(catalog.NewModuleFeature("p", "consumer", nil, &catalog.InitFunc{
		Deps: map[string]ref.Ref{"e": ref.ExtensionPoint(ref.ExtRef{ID: "ep"})},
		Func: func(deps map[string]any) error { record("consumer"); return nil },
	})))
	require.NoError(t, i.Add(catalog.NewModuleFeature("p", "provider", []catalog.ExtProvision{
		{Ext: ref.ExtRef{ID: "ep"}, Impl: "impl"},
	}, &catalog.InitFunc{
		Deps: map[string]ref.Ref{},
		Func: func(deps map[string]any) error { record("provider"); return nil },
	})))

	require.NoError(t, i.Start(context.Background()))
	require.NoError(t, i.Stop(context.Background()))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"consumer", "provider"}, order)
}

func TestCircularModuleDependency_FailsStart(t *testing.T) {
	i := newTestInitializer(nil)
	require.NoError(t, i.Add(catalog.NewModuleFeature("p", "a", []catalog.ExtProvision{{Ext: ref.ExtRef{ID: "A"}, Impl: 1}}, &catalog.InitFunc{
		Deps: map[string]ref.Ref{"b": ref.ExtensionPoint(ref.ExtRef{ID: "B"})},
		Func: func(map[string]any) error { return nil },
	})))
	require.NoError(t, i.Add(catalog.NewModuleFeature("p", "b", []catalog.ExtProvision{{Ext: ref.ExtRef{ID: "B"}, Impl: 1}}, &catalog.InitFunc{
		Deps: map[string]ref.Ref{"a": ref.ExtensionPoint(ref.ExtRef{ID: "A"})},
		Func: func(map[string]any) error { return nil },
	})))

	err := i.Start(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, errs.ErrCircularModuleDependency)
}

func TestModuleStartupFailure_WrapsErrorAndStopStillSucceeds(t *testing.T) {
	i := newTestInitializer(nil)
	require.NoError(t, i.Add(catalog.NewModuleFeature("p", "boom", nil, &catalog.InitFunc{
		Deps: map[string]ref.Ref{},
		Func: func(map[string]any) error { return assert.AnError },
	})))

	err := i.Start(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, errs.ErrModuleStartupFailed)

	var moduleErr *errs.ModuleStartupFailedError
	require.ErrorAs(t, err, &moduleErr)
	assert.Equal(t, "p", moduleErr.PluginID)
	assert.Equal(t, "boom", moduleErr.ModuleID)

	require.NoError(t, i.Stop(context.Background()))
}

func TestPluginStartupFailure_WrapsErrorAndStopStillSucceeds(t *testing.T) {
	i := newTestInitializer(nil)
	require.NoError(t, i.Add(catalog.NewPluginFeature("p", nil, &catalog.InitFunc{
		Deps: map[string]ref.Ref{},
		Func: func(map[string]any) error { return assert.AnError },
	})))

	err := i.Start(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, errs.ErrPluginStartupFailed)

	var pluginErr *errs.PluginStartupFailedError
	require.ErrorAs(t, err, &pluginErr)
	assert.Equal(t, "p", pluginErr.PluginID)

	require.NoError(t, i.Stop(context.Background()))
}

func TestExtensionPointOwnershipViolation(t *testing.T) {
	i := newTestInitializer(nil)
	require.NoError(t, i.Add(catalog.NewPluginFeature("owner", []catalog.ExtProvision{{Ext: ref.ExtRef{ID: "ep"}, Impl: 1}}, nil)))
	require.NoError(t, i.Add(catalog.NewModuleFeature("other", "mod", nil, &catalog.InitFunc{
		Deps: map[string]ref.Ref{"e": ref.ExtensionPoint(ref.ExtRef{ID: "ep"})},
		Func: func(map[string]any) error { return nil },
	})))

	err := i.Start(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, errs.ErrExtensionPointOwnershipViolation)
}

func TestUnresolvedDependencies(t *testing.T) {
	i := newTestInitializer(nil)
	require.NoError(t, i.Add(catalog.NewModuleFeature("p", "mod", nil, &catalog.InitFunc{
		Deps: map[string]ref.Ref{"missing": ref.Svc(ref.ServiceRef{ID: "nope", Scope: ref.ScopeRoot})},
		Func: func(map[string]any) error { return nil },
	})))

	err := i.Start(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, errs.ErrUnresolvedDependencies)
}

type staticDiscovery struct {
	features []catalog.Feature
}

func (d *staticDiscovery) GetBackendFeatures(ctx context.Context) ([]catalog.Feature, error) {
	return d.features, nil
}

func TestDiscoveredFeatures_FlowThroughSameClassification(t *testing.T) {
	var ran bool
	defaults := []registry.ServiceFactory{
		{
			Service: ref.ServiceRef{ID: "featureDiscovery", Scope: ref.ScopeRoot},
			Factory: func(map[string]any, string) (any, error) {
				return &staticDiscovery{features: []catalog.Feature{
					catalog.NewModuleFeature("disc", "mod", nil, &catalog.InitFunc{
						Deps: map[string]ref.Ref{},
						Func: func(map[string]any) error { ran = true; return nil },
					}),
				}}, nil
			},
		},
	}

	i := newTestInitializer(defaults)
	require.NoError(t, i.Start(context.Background()))
	require.NoError(t, i.Stop(context.Background()))
	assert.True(t, ran)
}

func TestPluginMetadataService_CannotBeOverridden(t *testing.T) {
	i := newTestInitializer(nil)
	err := i.Add(catalog.NewServiceFactoryFeature(registry.ServiceFactory{
		Service: ref.ServiceRef{ID: "pluginMetadata", Scope: ref.ScopeRoot},
		Factory: func(map[string]any, string) (any, error) { return nil, nil },
	}))
	require.Error(t, err)
	assert.ErrorIs(t, err, errs.ErrForbiddenServiceOverride)
}
