// Package ref holds the identity types shared by the registry, the feature
// catalog, and the orchestrator: service references, extension-point
// references, and the discriminated union between the two that a feature's
// init function declares its dependencies with.
package ref

// Scope controls whether a service is instantiated once for the whole
// process (ScopeRoot) or once per plugin (ScopePlugin).
type Scope int

const (
	ScopeRoot Scope = iota
	ScopePlugin
)

func (s Scope) String() string {
	if s == ScopeRoot {
		return "root"
	}
	return "plugin"
}

// ServiceRef identifies a service by id and the scope it was registered
// under. The registry keys factories by ID alone, so two ServiceRefs with
// the same ID name the same service.
type ServiceRef struct {
	ID    string
	Scope Scope
}

func (r ServiceRef) String() string {
	return r.Scope.String() + ":" + r.ID
}

// ExtRef identifies an extension point. Extension points are always
// singletons owned by exactly one plugin.
type ExtRef struct {
	ID string
}

func (r ExtRef) String() string {
	return "ext:" + r.ID
}

// Kind discriminates the two reference shapes a Ref can hold.
type Kind int

const (
	KindService Kind = iota
	KindExt
)

// Ref is the union a feature's init function declares a named dependency
// with: either a ServiceRef or an ExtRef, resolved against the registration
// index at dependency-resolution time.
type Ref struct {
	Kind    Kind
	Service ServiceRef
	Ext     ExtRef
}

// Svc wraps a ServiceRef as a Ref.
func Svc(r ServiceRef) Ref { return Ref{Kind: KindService, Service: r} }

// ExtensionPoint wraps an ExtRef as a Ref.
func ExtensionPoint(r ExtRef) Ref { return Ref{Kind: KindExt, Ext: r} }

// ID returns the underlying identifier regardless of which kind this Ref
// wraps.
func (r Ref) ID() string {
	if r.Kind == KindExt {
		return r.Ext.ID
	}
	return r.Service.ID
}
