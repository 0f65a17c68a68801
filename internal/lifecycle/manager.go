package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/moolen/insight/internal/logging"
)

// Manager starts components after their dependencies and stops them in
// reverse start order.
type Manager struct {
	mu              sync.Mutex
	components      []Component
	dependencies    map[Component][]Component
	started         []Component
	shutdownTimeout time.Duration
	logger          *logging.Logger
}

// NewManager creates a manager with a 30s per-component shutdown timeout.
func NewManager() *Manager {
	return &Manager{
		dependencies:    make(map[Component][]Component),
		shutdownTimeout: 30 * time.Second,
		logger:          logging.GetLogger("lifecycle"),
	}
}

// Register adds a component. Dependencies must already be registered, which
// also rules out cycles.
func (m *Manager) Register(c Component, dependsOn ...Component) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if c == nil {
		return fmt.Errorf("cannot register nil component")
	}
	if c.Name() == "" {
		return fmt.Errorf("component must have a non-empty name")
	}
	if _, ok := m.dependencies[c]; ok {
		return fmt.Errorf("component %s is already registered", c.Name())
	}
	for _, dep := range dependsOn {
		if _, ok := m.dependencies[dep]; !ok {
			return fmt.Errorf("dependency %s of %s is not registered", dep.Name(), c.Name())
		}
	}

	m.components = append(m.components, c)
	m.dependencies[c] = dependsOn
	m.logger.Debug("Registered %s (%d dependencies)", c.Name(), len(dependsOn))
	return nil
}

// SetShutdownTimeout sets the per-component grace period used by Stop.
func (m *Manager) SetShutdownTimeout(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.shutdownTimeout = d
}

// Start starts every component in dependency order. On failure the components
// already started are stopped again and the error is returned.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.started = nil
	for _, c := range m.order() {
		begin := time.Now()
		if err := c.Start(ctx); err != nil {
			m.logger.Error("Failed to start %s: %v", c.Name(), err)
			m.stopStarted(context.Background(), 5*time.Second)
			return fmt.Errorf("failed to start %s: %w", c.Name(), err)
		}
		m.started = append(m.started, c)
		m.logger.Info("Started %s in %dms", c.Name(), time.Since(begin).Milliseconds())
	}
	return nil
}

// Stop stops started components in reverse order. Errors are logged; Stop
// always returns nil.
func (m *Manager) Stop(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopStarted(ctx, m.shutdownTimeout)
	return nil
}

// Running reports whether c was started and not yet stopped.
func (m *Manager) Running(c Component) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.started {
		if s == c {
			return true
		}
	}
	return false
}

// stopStarted requires mu.
func (m *Manager) stopStarted(ctx context.Context, timeout time.Duration) {
	for i := len(m.started) - 1; i >= 0; i-- {
		c := m.started[i]
		cctx, cancel := context.WithTimeout(ctx, timeout)
		err := c.Stop(cctx)
		cancel()
		switch {
		case errors.Is(err, context.DeadlineExceeded):
			m.logger.Warn("%s did not stop within %s", c.Name(), timeout)
		case err != nil:
			m.logger.Error("Failed to stop %s: %v", c.Name(), err)
		default:
			m.logger.Info("Stopped %s", c.Name())
		}
	}
	m.started = nil
}

// order returns components with dependencies first, otherwise in
// registration order.
func (m *Manager) order() []Component {
	visited := make(map[Component]bool, len(m.components))
	out := make([]Component, 0, len(m.components))
	var visit func(c Component)
	visit = func(c Component) {
		if visited[c] {
			return
		}
		visited[c] = true
		for _, dep := range m.dependencies[c] {
			visit(dep)
		}
		out = append(out, c)
	}
	for _, c := range m.components {
		visit(c)
	}
	return out
}
