package shutdown

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
)

// ForceExitCode is the exit status used when a second signal arrives.
const ForceExitCode = 130

// Signals are the signals that trigger shutdown.
var Signals = []os.Signal{syscall.SIGINT, syscall.SIGTERM}

// Handler turns termination signals into context cancellation.
type Handler struct {
	exit func(code int)
}

// NewHandler creates a handler that calls os.Exit on a second signal.
func NewHandler() *Handler {
	return &Handler{exit: os.Exit}
}

// Context returns a context cancelled by the first signal. A second
// signal exits with ForceExitCode without waiting for cleanup. Calling
// stop releases the signal handlers.
func (h *Handler) Context(parent context.Context) (ctx context.Context, stop context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, Signals...)
	done := make(chan struct{})

	go func() {
		select {
		case <-sigCh:
			cancel()
		case <-done:
			return
		}
		select {
		case <-sigCh:
			h.exit(ForceExitCode)
		case <-done:
		}
	}()

	var once sync.Once
	return ctx, func() {
		once.Do(func() {
			signal.Stop(sigCh)
			close(done)
			cancel()
		})
	}
}
