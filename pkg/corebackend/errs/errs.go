// Package errs declares the error taxonomy surfaced by the feature catalog,
// the service registry, and the orchestrator. Each kind is its own exported
// type so a caller can tell them apart with errors.As, and each also
// compares equal (via Is) to a package-level sentinel so a caller that only
// cares about the kind can use errors.Is. This is the same wrap-with-%w
// idiom the teacher uses informally throughout internal/di/container.go and
// internal/lifecycle/manager.go, made explicit and typed because callers
// need to branch on kind programmatically.
package errs

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrAlreadyStarted                   = errors.New("already started")
	ErrDuplicateServiceImpl             = errors.New("duplicate service implementation")
	ErrForbiddenServiceOverride         = errors.New("service cannot be overridden")
	ErrDuplicatePluginRegistration       = errors.New("duplicate plugin registration")
	ErrDuplicateModuleRegistration       = errors.New("duplicate module registration")
	ErrDuplicateExtensionPoint          = errors.New("duplicate extension point")
	ErrUnsupportedFeatureVersion        = errors.New("unsupported feature version")
	ErrMalformedFeature                 = errors.New("malformed feature")
	ErrCircularModuleDependency         = errors.New("circular module dependency")
	ErrExtensionPointOwnershipViolation = errors.New("extension point ownership violation")
	ErrUnresolvedDependencies           = errors.New("unresolved dependencies")
	ErrMissingDependency                = errors.New("missing dependency")
	ErrServiceCycle                     = errors.New("service dependency cycle")
	ErrModuleStartupFailed              = errors.New("module startup failed")
	ErrPluginStartupFailed              = errors.New("plugin startup failed")
	ErrLifecycleAlreadyInvoked          = errors.New("lifecycle phase already invoked")
)

// AlreadyStartedError is returned by Add or Start once the initializer has
// already begun (or finished) starting.
type AlreadyStartedError struct {
	Msg string
}

func (e *AlreadyStartedError) Error() string { return e.Msg }
func (e *AlreadyStartedError) Is(target error) bool { return target == ErrAlreadyStarted }

// DuplicateServiceImplError is returned when two features register a
// factory for the same ServiceRef.
type DuplicateServiceImplError struct {
	ServiceID string
}

func (e *DuplicateServiceImplError) Error() string {
	return fmt.Sprintf("service %q already has a registered implementation", e.ServiceID)
}
func (e *DuplicateServiceImplError) Is(target error) bool { return target == ErrDuplicateServiceImpl }

// ForbiddenServiceOverrideError is returned when a feature attempts to
// override a service the core itself owns (e.g. pluginMetadata).
type ForbiddenServiceOverrideError struct {
	ServiceID string
}

func (e *ForbiddenServiceOverrideError) Error() string {
	return fmt.Sprintf("service %q cannot be overridden", e.ServiceID)
}
func (e *ForbiddenServiceOverrideError) Is(target error) bool {
	return target == ErrForbiddenServiceOverride
}

// DuplicatePluginRegistrationError is returned when a plugin id is added
// more than once.
type DuplicatePluginRegistrationError struct {
	PluginID string
}

func (e *DuplicatePluginRegistrationError) Error() string {
	return fmt.Sprintf("plugin %q already registered", e.PluginID)
}
func (e *DuplicatePluginRegistrationError) Is(target error) bool {
	return target == ErrDuplicatePluginRegistration
}

// DuplicateModuleRegistrationError is returned when a module id is added
// more than once for the same plugin.
type DuplicateModuleRegistrationError struct {
	PluginID string
	ModuleID string
}

func (e *DuplicateModuleRegistrationError) Error() string {
	return fmt.Sprintf("module %q already registered for plugin %q", e.ModuleID, e.PluginID)
}
func (e *DuplicateModuleRegistrationError) Is(target error) bool {
	return target == ErrDuplicateModuleRegistration
}

// DuplicateExtensionPointError is returned when two features declare the
// same extension-point id.
type DuplicateExtensionPointError struct {
	ExtID         string
	OwnerPluginID string
}

func (e *DuplicateExtensionPointError) Error() string {
	return fmt.Sprintf("extension point %q already provided by plugin %q", e.ExtID, e.OwnerPluginID)
}
func (e *DuplicateExtensionPointError) Is(target error) bool {
	return target == ErrDuplicateExtensionPoint
}

// UnsupportedFeatureVersionError is returned when a plugin or module
// feature declares a version tag the catalog does not recognize.
type UnsupportedFeatureVersionError struct {
	Version string
}

func (e *UnsupportedFeatureVersionError) Error() string {
	return fmt.Sprintf("unsupported feature version %q", e.Version)
}
func (e *UnsupportedFeatureVersionError) Is(target error) bool {
	return target == ErrUnsupportedFeatureVersion
}

// MalformedFeatureError is returned when a feature's shape does not match
// its declared kind (e.g. a plugin feature with an empty plugin id).
type MalformedFeatureError struct {
	Reason string
}

func (e *MalformedFeatureError) Error() string { return "malformed feature: " + e.Reason }
func (e *MalformedFeatureError) Is(target error) bool { return target == ErrMalformedFeature }

// CircularModuleDependencyError is returned when a plugin's module graph
// contains a cycle.
type CircularModuleDependencyError struct {
	PluginID string
	Path     []string
}

func (e *CircularModuleDependencyError) Error() string {
	return fmt.Sprintf("plugin %q has a circular module dependency: %s", e.PluginID, strings.Join(e.Path, " -> "))
}
func (e *CircularModuleDependencyError) Is(target error) bool {
	return target == ErrCircularModuleDependency
}

// ExtensionPointOwnershipViolationError is returned when an init function
// declares a dependency on an extension point owned by a different plugin.
type ExtensionPointOwnershipViolationError struct {
	ExtID              string
	OwnerPluginID      string
	RequestingPluginID string
}

func (e *ExtensionPointOwnershipViolationError) Error() string {
	return fmt.Sprintf("plugin %q cannot consume extension point %q owned by plugin %q",
		e.RequestingPluginID, e.ExtID, e.OwnerPluginID)
}
func (e *ExtensionPointOwnershipViolationError) Is(target error) bool {
	return target == ErrExtensionPointOwnershipViolation
}

// UnresolvedDependenciesError batches every dependency id an init function
// declared that resolved to nothing (no extension point, no service
// factory).
type UnresolvedDependenciesError struct {
	PluginID string
	ModuleID string // empty for a plugin-level init
	Refs     []string
}

func (e *UnresolvedDependenciesError) Error() string {
	where := e.PluginID
	if e.ModuleID != "" {
		where = e.PluginID + "/" + e.ModuleID
	}
	return fmt.Sprintf("%s: unresolved dependencies: %s", where, strings.Join(e.Refs, ", "))
}
func (e *UnresolvedDependenciesError) Is(target error) bool { return target == ErrUnresolvedDependencies }

// MissingDependencyError is returned when a service factory's own declared
// dependency has no registered factory.
type MissingDependencyError struct {
	ServiceID    string
	DependencyID string
}

func (e *MissingDependencyError) Error() string {
	return fmt.Sprintf("service %q depends on %q, which has no registered factory", e.ServiceID, e.DependencyID)
}
func (e *MissingDependencyError) Is(target error) bool { return target == ErrMissingDependency }

// ServiceCycleError is returned when resolving a service re-enters its own
// resolution chain.
type ServiceCycleError struct {
	ServiceID string
}

func (e *ServiceCycleError) Error() string {
	return fmt.Sprintf("service %q participates in a dependency cycle", e.ServiceID)
}
func (e *ServiceCycleError) Is(target error) bool { return target == ErrServiceCycle }

// ModuleStartupFailedError wraps a module's init function failure.
type ModuleStartupFailedError struct {
	PluginID string
	ModuleID string
	Cause    error
}

func (e *ModuleStartupFailedError) Error() string {
	return fmt.Sprintf("module %q of plugin %q failed to start: %v", e.ModuleID, e.PluginID, e.Cause)
}
func (e *ModuleStartupFailedError) Unwrap() error { return e.Cause }
func (e *ModuleStartupFailedError) Is(target error) bool { return target == ErrModuleStartupFailed }

// PluginStartupFailedError wraps a plugin's init function failure.
type PluginStartupFailedError struct {
	PluginID string
	Cause    error
}

func (e *PluginStartupFailedError) Error() string {
	return fmt.Sprintf("plugin %q failed to start: %v", e.PluginID, e.Cause)
}
func (e *PluginStartupFailedError) Unwrap() error { return e.Cause }
func (e *PluginStartupFailedError) Is(target error) bool { return target == ErrPluginStartupFailed }

// LifecycleAlreadyInvokedError is returned when Startup or Shutdown is
// called a second time on the same Hooks instance.
type LifecycleAlreadyInvokedError struct {
	Name  string
	Phase string
}

func (e *LifecycleAlreadyInvokedError) Error() string {
	return fmt.Sprintf("%s: lifecycle phase %q already invoked", e.Name, e.Phase)
}
func (e *LifecycleAlreadyInvokedError) Is(target error) bool {
	return target == ErrLifecycleAlreadyInvoked
}
