// Package lifecycle implements the startup/shutdown hook registry used by
// both the root process and each plugin. It is adapted from the teacher's
// internal/lifecycle/manager.go phase handling, narrowed to the simpler
// Idle -> Running -> Done|Failed shape this system needs (the teacher's
// richer per-component health/state surface belongs to the out-of-scope
// "concrete service implementations" tier) and with its fireHooks
// loop-with-early-return behavior kept intact for both directions.
package lifecycle

import (
	"context"
	"fmt"
	"sync"

	"github.com/corewire/backend/pkg/corebackend/errs"
	"github.com/corewire/backend/pkg/corelog"
)

type phase int

const (
	phaseIdle phase = iota
	phaseRunning
	phaseDone
	phaseFailed
)

// Hook is one named startup or shutdown step.
type Hook struct {
	ID string
	Fn func(ctx context.Context) error
}

// Hooks is a one-shot, ordered startup/shutdown hook registry. A root
// instance additionally has process-signal handling layered beside it by
// the orchestrator (see ProcessHost in pkg/corebackend); Hooks itself
// makes no distinction between a root and a plugin owner beyond the name
// used in logs and errors.
type Hooks struct {
	mu sync.Mutex

	name   string
	logger corelog.Logger

	startupHooks  []Hook
	shutdownHooks []Hook

	startupPhase  phase
	shutdownPhase phase
}

// New creates a Hooks instance identified by name (a plugin id, or "root").
func New(name string, logger corelog.Logger) *Hooks {
	if logger == nil {
		logger = corelog.NewNop()
	}
	return &Hooks{name: name, logger: logger}
}

// AddStartupHook registers a hook to run, in registration order, when
// Startup is called.
func (h *Hooks) AddStartupHook(id string, fn func(ctx context.Context) error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.startupHooks = append(h.startupHooks, Hook{ID: id, Fn: fn})
}

// AddShutdownHook registers a hook to run, in reverse registration order,
// when Shutdown is called.
func (h *Hooks) AddShutdownHook(id string, fn func(ctx context.Context) error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.shutdownHooks = append(h.shutdownHooks, Hook{ID: id, Fn: fn})
}

// Startup runs every registered startup hook in registration order. The
// first failing hook aborts the rest and is returned; Startup may only be
// called once.
func (h *Hooks) Startup(ctx context.Context) error {
	h.mu.Lock()
	if h.startupPhase != phaseIdle {
		h.mu.Unlock()
		return &errs.LifecycleAlreadyInvokedError{Name: h.name, Phase: "startup"}
	}
	h.startupPhase = phaseRunning
	hooks := append([]Hook{}, h.startupHooks...)
	h.mu.Unlock()

	for _, hk := range hooks {
		if err := hk.Fn(ctx); err != nil {
			h.mu.Lock()
			h.startupPhase = phaseFailed
			h.mu.Unlock()
			h.logger.Error("startup hook failed", err, corelog.F("hook_id", hk.ID))
			return fmt.Errorf("%s: startup hook %q failed: %w", h.name, hk.ID, err)
		}
	}

	h.mu.Lock()
	h.startupPhase = phaseDone
	h.mu.Unlock()
	return nil
}

// Shutdown runs every registered shutdown hook in reverse registration
// order. The first failing hook aborts the rest and is returned; Shutdown
// may only be called once.
func (h *Hooks) Shutdown(ctx context.Context) error {
	h.mu.Lock()
	if h.shutdownPhase != phaseIdle {
		h.mu.Unlock()
		return &errs.LifecycleAlreadyInvokedError{Name: h.name, Phase: "shutdown"}
	}
	h.shutdownPhase = phaseRunning
	hooks := append([]Hook{}, h.shutdownHooks...)
	h.mu.Unlock()

	for i := len(hooks) - 1; i >= 0; i-- {
		hk := hooks[i]
		if err := hk.Fn(ctx); err != nil {
			h.mu.Lock()
			h.shutdownPhase = phaseFailed
			h.mu.Unlock()
			h.logger.Error("shutdown hook failed", err, corelog.F("hook_id", hk.ID))
			return fmt.Errorf("%s: shutdown hook %q failed: %w", h.name, hk.ID, err)
		}
	}

	h.mu.Lock()
	h.shutdownPhase = phaseDone
	h.mu.Unlock()
	return nil
}
