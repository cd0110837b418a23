// Package catalog implements the feature catalog: the closed set of
// registrable feature shapes (service factory, plugin, module), the
// collision guards that apply at registration time, and the index the
// orchestrator builds once registration is frozen. It is adapted from the
// teacher's dynamic-dispatch ServiceProvider/Module interfaces in
// internal/di/types.go, collapsed into one tagged struct per the design
// note that favors closed variants over interface dispatch for a fixed,
// small set of shapes, and borrows its Feature-as-unit-of-registration
// framing from the simpler pkg/orchestrator variant of the teacher's own
// tree.
package catalog

import (
	"sync"

	"github.com/corewire/backend/pkg/corebackend/errs"
	"github.com/corewire/backend/pkg/ref"
	"github.com/corewire/backend/pkg/registry"
)

// SupportedVersion is the only feature version tag this catalog accepts for
// plugin and module features.
const SupportedVersion = "v1"

// FeatureKind discriminates the three registrable feature shapes.
type FeatureKind int

const (
	KindServiceFactory FeatureKind = iota
	KindPlugin
	KindModule
)

// ExtProvision pairs an extension point with the implementation a plugin or
// module is contributing for it.
type ExtProvision struct {
	Ext  ref.ExtRef
	Impl any
}

// InitFunc is a plugin or module's initialization step: Deps names the
// dependencies it needs resolved before Func runs, Func receives them keyed
// by the same names.
type InitFunc struct {
	Deps map[string]ref.Ref
	Func func(deps map[string]any) error
}

// Feature is the closed union of everything Add accepts. Exactly one of
// the per-kind field groups is meaningful, selected by Kind.
type Feature struct {
	Kind    FeatureKind
	Version string

	// KindServiceFactory
	ServiceFactory registry.ServiceFactory

	// KindPlugin and KindModule
	PluginID        string
	ModuleID        string // KindModule only
	ExtensionPoints []ExtProvision
	Init            *InitFunc
}

// NewServiceFactoryFeature builds a service-factory feature.
func NewServiceFactoryFeature(f registry.ServiceFactory) Feature {
	return Feature{Kind: KindServiceFactory, ServiceFactory: f}
}

// NewPluginFeature builds a plugin feature.
func NewPluginFeature(pluginID string, extensionPoints []ExtProvision, init *InitFunc) Feature {
	return Feature{Kind: KindPlugin, Version: SupportedVersion, PluginID: pluginID, ExtensionPoints: extensionPoints, Init: init}
}

// NewModuleFeature builds a module feature belonging to pluginID.
func NewModuleFeature(pluginID, moduleID string, extensionPoints []ExtProvision, init *InitFunc) Feature {
	return Feature{Kind: KindModule, Version: SupportedVersion, PluginID: pluginID, ModuleID: moduleID, ExtensionPoints: extensionPoints, Init: init}
}

// ExtEntry is one row of the extension-point table built at indexing time.
type ExtEntry struct {
	Impl          any
	OwnerPluginID string
}

// PluginInit is the registration-index row for a plugin's own init step.
type PluginInit struct {
	PluginID string
	Provides map[string]struct{}
	Consumes map[string]struct{}
	Init     *InitFunc
}

// ModuleInit is the registration-index row for one module's init step.
type ModuleInit struct {
	PluginID string
	ModuleID string
	Provides map[string]struct{}
	Consumes map[string]struct{}
	Init     *InitFunc
}

// Index is the frozen view the orchestrator walks to drive startup: every
// plugin's and module's init step plus the global extension-point table.
type Index struct {
	PluginInits      map[string]PluginInit
	ModuleInits      map[string]map[string]ModuleInit
	ExtTable         map[string]ExtEntry
	ServiceFactories []registry.ServiceFactory
}

// Catalog accumulates features before Start and classifies/validates each
// one as it is added. Collision checks that only make sense once the whole
// registration set is known (extension-point ownership per plugin scope,
// module-graph acyclicity) are left to the orchestrator; BuildIndex itself
// performs no checks.
type Catalog struct {
	mu sync.Mutex

	started bool

	serviceFactories []registry.ServiceFactory
	serviceOwners    map[string]bool

	pluginFeatures map[string]Feature
	moduleFeatures map[string]map[string]Feature

	extOwners map[string]string
}

// New creates an empty catalog.
func New() *Catalog {
	return &Catalog{
		serviceOwners:  make(map[string]bool),
		pluginFeatures: make(map[string]Feature),
		moduleFeatures: make(map[string]map[string]Feature),
		extOwners:      make(map[string]string),
	}
}

// ForbiddenServiceIDs lists service ids the core itself owns and that no
// feature may override (invariant I5).
var ForbiddenServiceIDs = map[string]bool{
	"pluginMetadata": true,
}

// Add classifies and validates f, guarding invariants I1 (no duplicate
// service implementation), I2 (no duplicate extension point), I5 (no
// overriding a core-owned service), plus duplicate plugin/module
// registration and feature-version checks. It returns AlreadyStartedError
// once the catalog has been frozen by the orchestrator.
func (c *Catalog) Add(f Feature) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started {
		return &errs.AlreadyStartedError{Msg: "cannot add a feature after start has begun"}
	}
	return c.add(f)
}

// AddDuringDiscovery adds a feature returned by the featureDiscovery
// service. It bypasses the started guard because discovery itself only
// runs after the catalog has been frozen for external callers (§4.4 step 2
// of the startup algorithm), but applies the same classification rules.
func (c *Catalog) AddDuringDiscovery(f Feature) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.add(f)
}

func (c *Catalog) add(f Feature) error {
	switch f.Kind {
	case KindServiceFactory:
		id := f.ServiceFactory.Service.ID
		if id == "" {
			return &errs.MalformedFeatureError{Reason: "service factory feature has an empty service id"}
		}
		if ForbiddenServiceIDs[id] {
			return &errs.ForbiddenServiceOverrideError{ServiceID: id}
		}
		if c.serviceOwners[id] {
			return &errs.DuplicateServiceImplError{ServiceID: id}
		}
		c.serviceOwners[id] = true
		c.serviceFactories = append(c.serviceFactories, f.ServiceFactory)
		return nil

	case KindPlugin:
		if f.PluginID == "" {
			return &errs.MalformedFeatureError{Reason: "plugin feature has an empty plugin id"}
		}
		if f.Version != SupportedVersion {
			return &errs.UnsupportedFeatureVersionError{Version: f.Version}
		}
		if _, exists := c.pluginFeatures[f.PluginID]; exists {
			return &errs.DuplicatePluginRegistrationError{PluginID: f.PluginID}
		}
		if err := c.claimExtensionPoints(f.PluginID, f.ExtensionPoints); err != nil {
			return err
		}
		c.pluginFeatures[f.PluginID] = f
		return nil

	case KindModule:
		if f.PluginID == "" || f.ModuleID == "" {
			return &errs.MalformedFeatureError{Reason: "module feature requires a plugin id and a module id"}
		}
		if f.Version != SupportedVersion {
			return &errs.UnsupportedFeatureVersionError{Version: f.Version}
		}
		if modules, ok := c.moduleFeatures[f.PluginID]; ok {
			if _, exists := modules[f.ModuleID]; exists {
				return &errs.DuplicateModuleRegistrationError{PluginID: f.PluginID, ModuleID: f.ModuleID}
			}
		}
		if err := c.claimExtensionPoints(f.PluginID, f.ExtensionPoints); err != nil {
			return err
		}
		if c.moduleFeatures[f.PluginID] == nil {
			c.moduleFeatures[f.PluginID] = make(map[string]Feature)
		}
		c.moduleFeatures[f.PluginID][f.ModuleID] = f
		return nil

	default:
		return &errs.MalformedFeatureError{Reason: "unrecognized feature kind"}
	}
}

func (c *Catalog) claimExtensionPoints(pluginID string, eps []ExtProvision) error {
	for _, ep := range eps {
		if owner, exists := c.extOwners[ep.Ext.ID]; exists {
			return &errs.DuplicateExtensionPointError{ExtID: ep.Ext.ID, OwnerPluginID: owner}
		}
	}
	for _, ep := range eps {
		c.extOwners[ep.Ext.ID] = pluginID
	}
	return nil
}

// MarkStarted freezes the catalog against further public Add calls. It must
// be called before the registry is built from ServiceFactories.
func (c *Catalog) MarkStarted() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.started = true
}

// Started reports whether MarkStarted has been called.
func (c *Catalog) Started() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.started
}

// ServiceFactories returns every service factory added as a feature, in
// registration order. The initializer's default factories are not held by
// the catalog and are not included.
func (c *Catalog) ServiceFactories() []registry.ServiceFactory {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]registry.ServiceFactory, len(c.serviceFactories))
	copy(out, c.serviceFactories)
	return out
}

func refSetFromDeps(deps map[string]ref.Ref) map[string]struct{} {
	out := make(map[string]struct{}, len(deps))
	for _, r := range deps {
		out[r.ID()] = struct{}{}
	}
	return out
}

func providesSet(eps []ExtProvision) map[string]struct{} {
	out := make(map[string]struct{}, len(eps))
	for _, ep := range eps {
		out[ep.Ext.ID] = struct{}{}
	}
	return out
}

// BuildIndex freezes the registration set into the Index the orchestrator
// drives startup from: every plugin's and module's init step plus the
// global extension-point table (§3's "registration index").
func (c *Catalog) BuildIndex() *Index {
	c.mu.Lock()
	defer c.mu.Unlock()

	idx := &Index{
		PluginInits:      make(map[string]PluginInit, len(c.pluginFeatures)),
		ModuleInits:      make(map[string]map[string]ModuleInit, len(c.moduleFeatures)),
		ExtTable:         make(map[string]ExtEntry),
		ServiceFactories: append([]registry.ServiceFactory{}, c.serviceFactories...),
	}

	for pluginID, f := range c.pluginFeatures {
		for _, ep := range f.ExtensionPoints {
			idx.ExtTable[ep.Ext.ID] = ExtEntry{Impl: ep.Impl, OwnerPluginID: pluginID}
		}
		var consumes map[string]struct{}
		if f.Init != nil {
			consumes = refSetFromDeps(f.Init.Deps)
		}
		idx.PluginInits[pluginID] = PluginInit{
			PluginID: pluginID,
			Provides: providesSet(f.ExtensionPoints),
			Consumes: consumes,
			Init:     f.Init,
		}
	}

	for pluginID, modules := range c.moduleFeatures {
		for moduleID, f := range modules {
			for _, ep := range f.ExtensionPoints {
				idx.ExtTable[ep.Ext.ID] = ExtEntry{Impl: ep.Impl, OwnerPluginID: pluginID}
			}
			var consumes map[string]struct{}
			if f.Init != nil {
				consumes = refSetFromDeps(f.Init.Deps)
			}
			if idx.ModuleInits[pluginID] == nil {
				idx.ModuleInits[pluginID] = make(map[string]ModuleInit)
			}
			idx.ModuleInits[pluginID][moduleID] = ModuleInit{
				PluginID: pluginID,
				ModuleID: moduleID,
				Provides: providesSet(f.ExtensionPoints),
				Consumes: consumes,
				Init:     f.Init,
			}
		}
	}

	return idx
}
