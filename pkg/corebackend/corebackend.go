// Package corebackend implements the initializer: the component that owns
// the feature catalog and service registry, resolves the two-tier
// dependency graph (modules before a plugin's own init, plugins in
// parallel with each other), drives every lifecycle transition, and
// installs process-signal-driven shutdown. It is adapted from the
// teacher's internal/orchestrator/registry.go (ServiceRegistry.Start/Stop
// shape, wiring a logger then a container then a lifecycle manager) but
// replaces its level-by-level rollback-on-failure startup with per-plugin
// concurrent processing and no forced cancellation of in-flight siblings,
// since the design this system follows explicitly forbids that (already-
// scheduled work runs to completion even after a sibling fails).
package corebackend

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/corewire/backend/pkg/catalog"
	"github.com/corewire/backend/pkg/corebackend/errs"
	"github.com/corewire/backend/pkg/corelog"
	"github.com/corewire/backend/pkg/graph"
	"github.com/corewire/backend/pkg/lifecycle"
	"github.com/corewire/backend/pkg/ref"
	"github.com/corewire/backend/pkg/registry"
)

// State is the initializer's own lifecycle position, named after the
// states the startup/shutdown algorithm moves through.
type State int

const (
	StateConfiguring State = iota
	StateStarting
	StateRunning
	StateStopping
	StateStopped
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateConfiguring:
		return "configuring"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Config controls the ambient behavior of an Initializer. It intentionally
// carries no domain configuration: parsing application config from the
// environment is out of scope for the core (see cmd/corebackend-demo for
// where that lives).
type Config struct {
	// TestMode disables signal handling and the unhandled-error sink,
	// matching the design note that test runs should not install
	// process-wide hooks.
	TestMode bool
}

// FeatureDiscovery is the optional root-scoped collaborator that returns
// additional features to register once the registry is frozen.
type FeatureDiscovery interface {
	GetBackendFeatures(ctx context.Context) ([]catalog.Feature, error)
}

// PluginMetadataReader is the service the core itself registers under
// ServiceRef{ID: "pluginMetadata", Scope: root}; it is the concrete anchor
// for invariant I5 ("pluginMetadata cannot be overridden").
type PluginMetadataReader interface {
	Get(pluginID string) (Metadata, bool)
}

// Metadata describes one registered plugin.
type Metadata struct {
	PluginID    string
	ModuleIDs   []string
	ExtensionPointIDs []string
}

// Option configures an Initializer at construction time, following the
// teacher's functional-option idiom in internal/di/types.go
// (WithName/WithTags/...).
type Option func(*Initializer)

// WithLogger sets the root logger. Defaults to a no-op logger.
func WithLogger(l corelog.Logger) Option {
	return func(i *Initializer) { i.logger = l }
}

// WithProcessHost overrides the process host (signal handling, unhandled
// error sink). Mostly useful for tests; production callers should rely on
// the default, which is chosen from Config.TestMode.
func WithProcessHost(h ProcessHost) Option {
	return func(i *Initializer) { i.host = h }
}

// WithConfig sets the ambient Config.
func WithConfig(c Config) Option {
	return func(i *Initializer) { i.config = c }
}

type pluginLifecycleEntry struct {
	pluginID string
	hooks    *lifecycle.Hooks
}

// Initializer is the orchestrator described by the dependency-graph /
// service-registry / feature-catalog / lifecycle-hooks components acting
// together: Add before Start, Start resolves and initializes everything
// with maximum safe parallelism, Stop tears it down in reverse.
type Initializer struct {
	mu sync.Mutex

	cat      *catalog.Catalog
	defaults []registry.ServiceFactory
	logger   corelog.Logger
	host     ProcessHost
	config   Config

	state State
	reg   *registry.Registry

	startDone chan struct{}
	startErr  error
	startOnce sync.Once

	stopDone chan struct{}
	stopOnce sync.Once

	rootLifecycle *lifecycle.Hooks

	pluginOrderMu sync.Mutex
	pluginOrder   []pluginLifecycleEntry

	lastShutdownOK bool
}

// New builds an Initializer. defaults are the baseline service factories
// available before any feature is added (the built-in service catalog a
// real deployment would seed the registry with); opts are applied in
// order.
func New(defaults []registry.ServiceFactory, opts ...Option) *Initializer {
	i := &Initializer{
		cat:       catalog.New(),
		defaults:  defaults,
		logger:    corelog.NewNop(),
		state:     StateConfiguring,
		startDone: make(chan struct{}),
		stopDone:  make(chan struct{}),
	}
	for _, o := range opts {
		o(i)
	}
	if i.host == nil {
		if i.config.TestMode {
			i.host = newNoopProcessHost()
		} else {
			i.host = newSignalProcessHost(i.logger)
		}
	}
	return i
}

// Add registers a feature. It is only valid before Start has been called;
// afterward it returns an AlreadyStartedError.
func (i *Initializer) Add(f catalog.Feature) error {
	return i.cat.Add(f)
}

// State reports the initializer's current position.
func (i *Initializer) State() State {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.state
}

// Start resolves the dependency graph and initializes every feature with
// maximum safe parallelism. Calling Start more than once (including after a
// prior failure) returns an AlreadyStartedError.
func (i *Initializer) Start(ctx context.Context) error {
	i.mu.Lock()
	if i.state != StateConfiguring {
		i.mu.Unlock()
		return &errs.AlreadyStartedError{Msg: "initializer already started"}
	}
	i.state = StateStarting
	i.mu.Unlock()

	i.startOnce.Do(func() {
		go func() {
			err := i.run(ctx)
			i.mu.Lock()
			i.startErr = err
			if err != nil {
				i.state = StateFailed
			} else {
				i.state = StateRunning
			}
			i.mu.Unlock()
			close(i.startDone)
		}()
	})

	<-i.startDone
	return i.startErr
}

// Stop awaits any in-flight Start, then runs shutdown hooks in reverse
// order: every plugin's lifecycle, then root's. It always resolves
// successfully; hook failures are logged, not returned, and calling Stop
// before Start (or more than once) is a no-op.
func (i *Initializer) Stop(ctx context.Context) error {
	i.stopOnce.Do(func() {
		i.mu.Lock()
		everStarted := i.state != StateConfiguring
		i.mu.Unlock()

		if !everStarted {
			close(i.stopDone)
			return
		}

		<-i.startDone

		i.mu.Lock()
		i.state = StateStopping
		i.mu.Unlock()

		ok := i.runShutdown(ctx)

		i.mu.Lock()
		i.state = StateStopped
		i.lastShutdownOK = ok
		i.mu.Unlock()
		close(i.stopDone)
	})
	<-i.stopDone
	return nil
}

// runShutdown tears down every plugin's lifecycle in reverse startup order,
// then the root's. It reports ok=false if any hook failed, purely so a
// caller (the signal-driven shutdown path) can pick a process exit code;
// the failures themselves are logged here and never re-thrown, matching
// "hook failures in shutdown are logged, not propagated."
func (i *Initializer) runShutdown(ctx context.Context) bool {
	ok := true

	i.pluginOrderMu.Lock()
	order := append([]pluginLifecycleEntry{}, i.pluginOrder...)
	i.pluginOrderMu.Unlock()

	for idx := len(order) - 1; idx >= 0; idx-- {
		entry := order[idx]
		if err := entry.hooks.Shutdown(ctx); err != nil {
			ok = false
			i.logger.Error("plugin shutdown failed", err, corelog.F("plugin_id", entry.pluginID))
		}
	}

	i.mu.Lock()
	root := i.rootLifecycle
	i.mu.Unlock()
	if root != nil {
		if err := root.Shutdown(ctx); err != nil {
			ok = false
			i.logger.Error("root shutdown failed", err)
		}
	}

	return ok
}

func (i *Initializer) run(ctx context.Context) error {
	runID := uuid.NewString()
	log := i.logger.Child(corelog.F("run_id", runID))

	i.cat.MarkStarted()

	bootstrap := registry.NewRegistry(append(append([]registry.ServiceFactory{}, i.defaults...), i.cat.ServiceFactories()...))

	discoveryRef := ref.ServiceRef{ID: "featureDiscovery", Scope: ref.ScopeRoot}
	if val, found, err := bootstrap.Get(ctx, discoveryRef, "root"); err != nil {
		return fmt.Errorf("resolving featureDiscovery: %w", err)
	} else if found {
		disc, ok := val.(FeatureDiscovery)
		if !ok {
			return fmt.Errorf("featureDiscovery service does not implement corebackend.FeatureDiscovery")
		}
		discovered, derr := disc.GetBackendFeatures(ctx)
		if derr != nil {
			return fmt.Errorf("feature discovery failed: %w", derr)
		}
		for _, f := range discovered {
			if err := i.cat.AddDuringDiscovery(f); err != nil {
				return fmt.Errorf("adding discovered feature: %w", err)
			}
		}
	}

	idx := i.cat.BuildIndex()

	allPluginIDs := make(map[string]struct{})
	for pid := range idx.PluginInits {
		allPluginIDs[pid] = struct{}{}
	}
	for pid := range idx.ModuleInits {
		allPluginIDs[pid] = struct{}{}
	}

	pluginMetaFactory := registry.ServiceFactory{
		Service: ref.ServiceRef{ID: "pluginMetadata", Scope: ref.ScopeRoot},
		Factory: func(map[string]any, string) (any, error) {
			return newPluginMetadataReader(idx, allPluginIDs), nil
		},
	}

	allFactories := append(append([]registry.ServiceFactory{}, i.defaults...), idx.ServiceFactories...)
	allFactories = append(allFactories, pluginMetaFactory)
	reg := registry.NewRegistry(allFactories)
	i.mu.Lock()
	i.reg = reg
	i.mu.Unlock()

	for sref := range reg.GetServiceRefs() {
		if sref.Scope != ref.ScopeRoot {
			continue
		}
		svcRef := sref
		if err := i.instantiateRootService(ctx, reg, svcRef); err != nil {
			return fmt.Errorf("initializing root service %q: %w", svcRef.ID, err)
		}
	}

	rootLC := lifecycle.New("root", log)
	i.mu.Lock()
	i.rootLifecycle = rootLC
	i.mu.Unlock()

	eg, egctx := errgroup.WithContext(ctx)
	for pid := range allPluginIDs {
		pluginID := pid
		eg.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					perr := fmt.Errorf("plugin %q panicked during init: %v", pluginID, r)
					i.host.ReportUnhandled(perr)
					err = perr
				}
			}()
			return i.initPlugin(egctx, idx, reg, pluginID, log)
		})
	}
	if err := eg.Wait(); err != nil {
		return err
	}

	if err := rootLC.Startup(ctx); err != nil {
		return fmt.Errorf("root lifecycle startup: %w", err)
	}

	i.host.OnUnhandledError(func(err error) {
		log.Error("unhandled error", err)
	})

	sigCtx, cancel := i.host.NotifyContext(context.Background())
	go func() {
		<-sigCtx.Done()
		cancel()
		if stopErr := i.Stop(context.Background()); stopErr != nil {
			log.Error("stop triggered by signal failed", stopErr)
		}

		i.mu.Lock()
		clean := i.startErr == nil && i.lastShutdownOK
		i.mu.Unlock()

		// §4.8: the signal path exits the process once stop() settles, 0 on
		// a clean start-then-stop, 1 if either phase reported a failure.
		if clean {
			i.host.Exit(0)
		} else {
			i.host.Exit(1)
		}
	}()

	return nil
}

// instantiateRootService resolves one root-scoped service, recovering a
// panicking factory so it cannot bring down the whole process: the panic is
// routed to the process host's unhandled-error sink (logged through the
// root logger) and also converted into a normal error so Start still fails
// the way a factory returning an error would.
func (i *Initializer) instantiateRootService(ctx context.Context, reg *registry.Registry, svcRef ref.ServiceRef) (err error) {
	defer func() {
		if r := recover(); r != nil {
			perr := fmt.Errorf("service %q panicked during instantiation: %v", svcRef.ID, r)
			i.host.ReportUnhandled(perr)
			err = perr
		}
	}()
	_, _, err = reg.Get(ctx, svcRef, "root")
	return err
}

type moduleNode struct {
	ModuleID string
	Init     *catalog.InitFunc
}

func setKeys(s map[string]struct{}) []string {
	out := make([]string, 0, len(s))
	for k := range s {
		out = append(out, k)
	}
	return out
}

func (i *Initializer) initPlugin(ctx context.Context, idx *catalog.Index, reg *registry.Registry, pluginID string, log corelog.Logger) error {
	plog := log.Child(corelog.F("plugin_id", pluginID))

	modules := idx.ModuleInits[pluginID]
	g := graph.New[moduleNode]()
	for moduleID, mi := range modules {
		// Edges are reversed relative to extension-point ownership: a
		// module that provides an extension point runs after every module
		// that consumes it, so "provides" on the graph node is the
		// module's consumes set and vice versa.
		g.Add(graph.Node[moduleNode]{
			Value:    moduleNode{ModuleID: moduleID, Init: mi.Init},
			Provides: setKeys(mi.Consumes),
			Consumes: setKeys(mi.Provides),
		})
	}

	if path, cyclic := g.DetectCircularDependency(); cyclic {
		ids := make([]string, len(path))
		for j, n := range path {
			ids[j] = n.ModuleID
		}
		return &errs.CircularModuleDependencyError{PluginID: pluginID, Path: ids}
	}

	err := g.ParallelTopologicalTraversal(ctx, func(ctx context.Context, n moduleNode) error {
		if n.Init == nil {
			return nil
		}
		deps, derr := i.resolveInitDeps(idx, reg, n.Init.Deps, pluginID, n.ModuleID)
		if derr != nil {
			return derr
		}
		if ferr := n.Init.Func(deps); ferr != nil {
			return &errs.ModuleStartupFailedError{PluginID: pluginID, ModuleID: n.ModuleID, Cause: ferr}
		}
		return nil
	})
	if err != nil {
		return err
	}

	if pi, ok := idx.PluginInits[pluginID]; ok && pi.Init != nil {
		deps, derr := i.resolveInitDeps(idx, reg, pi.Init.Deps, pluginID, "")
		if derr != nil {
			return derr
		}
		if ferr := pi.Init.Func(deps); ferr != nil {
			return &errs.PluginStartupFailedError{PluginID: pluginID, Cause: ferr}
		}
	}

	pluginLC := lifecycle.New(pluginID, plog)
	if err := pluginLC.Startup(ctx); err != nil {
		return fmt.Errorf("plugin %q lifecycle startup: %w", pluginID, err)
	}

	i.pluginOrderMu.Lock()
	i.pluginOrder = append(i.pluginOrder, pluginLifecycleEntry{pluginID: pluginID, hooks: pluginLC})
	i.pluginOrderMu.Unlock()

	return nil
}

func (i *Initializer) resolveInitDeps(idx *catalog.Index, reg *registry.Registry, deps map[string]ref.Ref, pluginID, moduleID string) (map[string]any, error) {
	out := make(map[string]any, len(deps))
	var missing []string

	for name, r := range deps {
		if entry, ok := idx.ExtTable[r.ID()]; ok {
			if entry.OwnerPluginID != pluginID {
				return nil, &errs.ExtensionPointOwnershipViolationError{
					ExtID:              r.ID(),
					OwnerPluginID:      entry.OwnerPluginID,
					RequestingPluginID: pluginID,
				}
			}
			out[name] = entry.Impl
			continue
		}

		if r.Kind != ref.KindService {
			missing = append(missing, r.ID())
			continue
		}

		val, found, err := reg.Get(context.Background(), r.Service, pluginID)
		if err != nil {
			return nil, err
		}
		if !found {
			missing = append(missing, r.ID())
			continue
		}
		out[name] = val
	}

	if len(missing) > 0 {
		return nil, &errs.UnresolvedDependenciesError{PluginID: pluginID, ModuleID: moduleID, Refs: missing}
	}
	return out, nil
}
