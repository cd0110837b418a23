// Command corebackend-demo exercises the public Initializer API the way an
// embedder would: it wires a small plugin/module pair from
// internal/examplesvc, starts the initializer, and blocks until a process
// signal (or the "run --once" flag) tells it to shut down. Subcommand
// structure follows the cobra root-plus-subcommand layout used throughout
// the retrieval pack's CLI entrypoints.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/corewire/backend/internal/examplesvc"
	"github.com/corewire/backend/pkg/catalog"
	"github.com/corewire/backend/pkg/corebackend"
	"github.com/corewire/backend/pkg/corelog"
	"github.com/corewire/backend/pkg/ref"
	"github.com/corewire/backend/pkg/registry"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "corebackend-demo",
		Short: "Demonstrates the corebackend feature-wiring initializer",
	}
	root.AddCommand(newRunCmd())
	return root
}

func newRunCmd() *cobra.Command {
	var once bool
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the initializer and block until shutdown",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), once)
		},
	}
	cmd.Flags().BoolVar(&once, "once", false, "start, run briefly, then stop instead of waiting for a signal")
	return cmd
}

func run(ctx context.Context, once bool) error {
	logger, err := corelog.NewDevelopment()
	if err != nil {
		return fmt.Errorf("building logger: %w", err)
	}

	defaults := []registry.ServiceFactory{
		examplesvc.ClockServiceFactory("demo-clock"),
		{
			Service: ref.ServiceRef{ID: "featureDiscovery", Scope: ref.ScopeRoot},
			Factory: func(map[string]any, string) (any, error) {
				return examplesvc.NewStaticDiscovery(), nil
			},
		},
	}

	init := corebackend.New(defaults, corebackend.WithLogger(logger), corebackend.WithConfig(corebackend.Config{TestMode: once}))

	if err := init.Add(examplesvc.GreeterPluginFeature(logger)); err != nil {
		return fmt.Errorf("adding greeter plugin: %w", err)
	}
	if err := init.Add(examplesvc.GreeterAnnounceModuleFeature(logger)); err != nil {
		return fmt.Errorf("adding greeter announce module: %w", err)
	}
	if err := init.Add(catalog.NewServiceFactoryFeature(examplesvc.ClockServiceFactory("override-clock"))); err != nil {
		logger.Info("skipping clock override", corelog.F("reason", err.Error()))
	}

	if err := init.Start(ctx); err != nil {
		return fmt.Errorf("starting initializer: %w", err)
	}
	logger.Info("initializer running", corelog.F("state", init.State().String()))

	if once {
		time.Sleep(50 * time.Millisecond)
		return init.Stop(ctx)
	}

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-sigCtx.Done()
	return init.Stop(context.Background())
}
