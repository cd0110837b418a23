package examplesvc

import (
	"fmt"

	"github.com/corewire/backend/pkg/catalog"
	"github.com/corewire/backend/pkg/corelog"
	"github.com/corewire/backend/pkg/ref"
	"github.com/corewire/backend/pkg/registry"
)

// Greeting is the extension point the "greeter" plugin owns: the plugin
// registers a fixed phrase for it, and greeter's own "announce" module
// prints that phrase during startup.
type Greeting interface {
	Phrase() string
}

type staticGreeting string

func (s staticGreeting) Phrase() string { return string(s) }

// NewGreetingProvision builds an ExtProvision for the "greeting" extension
// point with a fixed phrase.
func NewGreetingProvision(phrase string) catalog.ExtProvision {
	return catalog.ExtProvision{Ext: ref.ExtRef{ID: "greeting"}, Impl: staticGreeting(phrase)}
}

// ClockServiceFactory registers a root-scoped "clock" service that hands
// back a fixed label string; it exists purely so the demo has a
// second root service to force-instantiate alongside pluginMetadata.
func ClockServiceFactory(label string) registry.ServiceFactory {
	return registry.ServiceFactory{
		Service: ref.ServiceRef{ID: "clock", Scope: ref.ScopeRoot},
		Factory: func(map[string]any, string) (any, error) {
			return label, nil
		},
	}
}

// GreeterPluginFeature builds the "greeter" plugin: it owns the "greeting"
// extension point and, at init, resolves the logger and prints a message.
func GreeterPluginFeature(logger corelog.Logger) catalog.Feature {
	return catalog.NewPluginFeature("greeter", []catalog.ExtProvision{NewGreetingProvision("hello from greeter")}, &catalog.InitFunc{
		Deps: map[string]ref.Ref{},
		Func: func(deps map[string]any) error {
			logger.Info("greeter plugin initialized")
			return nil
		},
	})
}

// GreeterAnnounceModuleFeature builds a module of the "greeter" plugin that
// consumes the "greeting" extension point and prints it. The module runs
// before the plugin's own init, which is safe because the plugin's
// extension-point implementation is recorded at registration time, not
// init time; the module graph itself holds only modules.
func GreeterAnnounceModuleFeature(logger corelog.Logger) catalog.Feature {
	return catalog.NewModuleFeature("greeter", "announce", nil, &catalog.InitFunc{
		Deps: map[string]ref.Ref{"greeting": ref.ExtensionPoint(ref.ExtRef{ID: "greeting"})},
		Func: func(deps map[string]any) error {
			g := deps["greeting"].(Greeting)
			logger.Info(fmt.Sprintf("announce module says: %s", g.Phrase()))
			return nil
		},
	})
}
