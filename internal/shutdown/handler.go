// Package shutdown runs registered cleanups once the process is asked to stop.
package shutdown

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"
)

// Closer releases one component. It must return once ctx is done.
type Closer func(ctx context.Context) error

type namedCloser struct {
	name  string
	close Closer
}

// Manager closes components in reverse registration order.
type Manager struct {
	shutdownTimeout time.Duration
	closers         []namedCloser
	logger          *slog.Logger
}

// NewManager creates a Manager. A zero timeout means 30 seconds.
func NewManager(shutdownTimeout time.Duration, logger *slog.Logger) *Manager {
	if shutdownTimeout == 0 {
		shutdownTimeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		shutdownTimeout: shutdownTimeout,
		logger:          logger.With("component", "shutdown"),
	}
}

// Add registers closer under name.
func (m *Manager) Add(name string, closer Closer) {
	m.closers = append(m.closers, namedCloser{name: name, close: closer})
}

// Wait blocks until SIGINT, SIGTERM or ctx is done, then runs Shutdown.
func (m *Manager) Wait(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()
	m.logger.Info("shutdown signal received", "cause", context.Cause(ctx))

	return m.Shutdown()
}

// Shutdown runs every closer, newest first, within the shutdown timeout.
// A failing closer does not stop the others; their errors are joined.
func (m *Manager) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), m.shutdownTimeout)
	defer cancel()

	var errs []error
	for i := len(m.closers) - 1; i >= 0; i-- {
		c := m.closers[i]
		m.logger.Info("closing", "name", c.name)
		if err := c.close(ctx); err != nil {
			m.logger.Error("shutdown error", "name", c.name, "err", err)
			errs = append(errs, err)
		}
	}
	m.logger.Info("shutdown complete")
	return errors.Join(errs...)
}
