// Package registry implements the per-process/per-plugin service cache
// described by the dependency graph's service layer. It is adapted from the
// teacher's internal/di/container.go (DefaultContainer): the
// map-of-registrations-plus-cache shape and the cycle-checked resolve path
// survive (a panicking factory is not recovered here), but the cache key moves from
// "reflect.Type plus optional name" to the (serviceID[, pluginID]) pair the
// two-scope model needs, registration input moves from incremental
// Register(...) calls to a flat factory list supplied once at construction,
// and at-most-once instantiation under concurrent resolution is delegated
// to golang.org/x/sync/singleflight instead of the teacher's coarse
// container-wide mutex around createInstance.
package registry

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/corewire/backend/pkg/corebackend/errs"
	"github.com/corewire/backend/pkg/ref"
)

// ServiceFactory is the constructor registered for one ServiceRef. Deps are
// resolved against the same registry (recursively) before Factory is
// invoked; pluginID passed to Factory is "root" for root-scoped services.
type ServiceFactory struct {
	Service ref.ServiceRef
	Deps    []ref.ServiceRef
	Factory func(deps map[string]any, pluginID string) (any, error)
}

// Registry resolves ServiceRefs to instances, memoizing per scope key and
// collapsing concurrent resolutions of the same key into a single call.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]ServiceFactory
	cache     map[string]any
	group     singleflight.Group
}

// NewRegistry builds a registry from a flat factory list. When two factories
// share a ServiceRef.ID, the last one in the slice wins, matching
// "overrides appended after defaults, last write wins" from the catalog's
// freeze step.
func NewRegistry(factories []ServiceFactory) *Registry {
	m := make(map[string]ServiceFactory, len(factories))
	for _, f := range factories {
		m[f.Service.ID] = f
	}
	return &Registry{factories: m, cache: make(map[string]any)}
}

// GetServiceRefs returns every ServiceRef with a registered factory.
func (r *Registry) GetServiceRefs() map[ref.ServiceRef]struct{} {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[ref.ServiceRef]struct{}, len(r.factories))
	for _, f := range r.factories {
		out[f.Service] = struct{}{}
	}
	return out
}

func cacheKey(r ref.ServiceRef, pluginID string) string {
	if r.Scope == ref.ScopeRoot {
		return "root::" + r.ID
	}
	return "plugin::" + pluginID + "::" + r.ID
}

// Get resolves ref under pluginID. found is false only when no factory is
// registered for ref.ID at all ("undefined" in the resolution algorithm);
// any other failure (a missing transitive dependency, a resolution cycle,
// or the factory itself returning an error) is reported through err.
func (r *Registry) Get(ctx context.Context, svcRef ref.ServiceRef, pluginID string) (any, bool, error) {
	return r.resolve(ctx, svcRef, pluginID, make(map[string]bool))
}

func (r *Registry) resolve(ctx context.Context, svcRef ref.ServiceRef, pluginID string, visiting map[string]bool) (any, bool, error) {
	r.mu.RLock()
	factory, ok := r.factories[svcRef.ID]
	r.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}

	key := cacheKey(svcRef, pluginID)

	r.mu.RLock()
	if v, cached := r.cache[key]; cached {
		r.mu.RUnlock()
		return v, true, nil
	}
	r.mu.RUnlock()

	if visiting[key] {
		return nil, true, &errs.ServiceCycleError{ServiceID: svcRef.ID}
	}
	visiting[key] = true
	defer delete(visiting, key)

	effectivePluginID := pluginID
	if svcRef.Scope == ref.ScopeRoot {
		effectivePluginID = "root"
	}

	v, err, _ := r.group.Do(key, func() (interface{}, error) {
		r.mu.RLock()
		if v, cached := r.cache[key]; cached {
			r.mu.RUnlock()
			return v, nil
		}
		r.mu.RUnlock()

		deps := make(map[string]any, len(factory.Deps))
		for _, depRef := range factory.Deps {
			depVal, found, derr := r.resolve(ctx, depRef, effectivePluginID, visiting)
			if derr != nil {
				return nil, fmt.Errorf("resolving dependency %q of %q: %w", depRef.ID, svcRef.ID, derr)
			}
			if !found {
				return nil, &errs.MissingDependencyError{ServiceID: svcRef.ID, DependencyID: depRef.ID}
			}
			deps[depRef.ID] = depVal
		}

		inst, ferr := factory.Factory(deps, effectivePluginID)
		if ferr != nil {
			return nil, fmt.Errorf("constructing service %q: %w", svcRef.ID, ferr)
		}

		r.mu.Lock()
		r.cache[key] = inst
		r.mu.Unlock()
		return inst, nil
	})
	if err != nil {
		return nil, true, err
	}
	return v, true, nil
}
