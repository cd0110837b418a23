package corebackend

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/corewire/backend/pkg/corelog"
)

// ProcessHost isolates the process-wide singletons the root owns: the
// signal-derived cancellation context and the unhandled-error sink. This
// mirrors the design note calling out signal handling and process-level
// error hooks as their own seam, separate from the Hooks FSM.
type ProcessHost interface {
	NotifyContext(parent context.Context) (context.Context, context.CancelFunc)
	OnUnhandledError(fn func(error))
	ReportUnhandled(err error)
	Exit(code int)
}

type signalProcessHost struct {
	mu      sync.Mutex
	handler func(error)
	logger  corelog.Logger
}

func newSignalProcessHost(logger corelog.Logger) *signalProcessHost {
	return &signalProcessHost{logger: logger}
}

func (h *signalProcessHost) NotifyContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

func (h *signalProcessHost) OnUnhandledError(fn func(error)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.handler = fn
}

// ReportUnhandled routes err to the registered OnUnhandledError handler, or
// falls back to logging it through the root logger if none is registered
// yet — e.g. a panic recovered before the handler installed in run() has a
// chance to run.
func (h *signalProcessHost) ReportUnhandled(err error) {
	h.mu.Lock()
	fn := h.handler
	h.mu.Unlock()
	if fn != nil {
		fn(err)
	} else if h.logger != nil {
		h.logger.Error("unhandled error", err)
	}
}

func (h *signalProcessHost) Exit(code int) {
	os.Exit(code)
}

// noopProcessHost is used when Config.TestMode is true: no signal or
// unhandled-error hooks are installed, and Exit is inert, matching the
// design note that test mode skips process-wide side effects.
type noopProcessHost struct{}

func newNoopProcessHost() *noopProcessHost { return &noopProcessHost{} }

func (noopProcessHost) NotifyContext(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithCancel(parent)
}
func (noopProcessHost) OnUnhandledError(func(error)) {}
func (noopProcessHost) ReportUnhandled(error)        {}
func (noopProcessHost) Exit(int)                     {}
