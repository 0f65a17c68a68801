package adapter

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/hashicorp/go-version"
	"github.com/moolen/insight/internal/capability"
	"github.com/moolen/insight/internal/config"
	"github.com/moolen/insight/internal/logging"
	"github.com/moolen/insight/internal/router"
	"github.com/prometheus/client_golang/prometheus"
)

// ReloadCallback receives the bindings built from a changed config file.
// Returning an error discards the new instances and keeps the running ones.
type ReloadCallback func(cfg *config.File, bindings router.Bindings) error

// ManagerConfig holds configuration for the Manager.
type ManagerConfig struct {
	// ConfigPath is watched for changes once the manager is started.
	// Empty disables hot reload.
	ConfigPath string

	// Factories defaults to the registry backend packages register into.
	Factories *FactoryRegistry

	// Models overrides the model source built from each config's models section.
	Models ModelSource

	HTTPClient *http.Client

	// Registerer receives the insight_adapter_health gauge. Nil disables it.
	Registerer prometheus.Registerer

	// OnReload installs bindings after a config change (usually Router.Rebind).
	OnReload ReloadCallback
}

// Manager builds instances from config, keeps them healthy and rebuilds them
// when the config file changes.
type Manager struct {
	config  ManagerConfig
	logger  *logging.Logger
	health  *prometheus.GaugeVec
	watcher *config.Watcher

	mu         sync.RWMutex
	file       *config.File
	registry   *Registry
	statuses   map[string]HealthStatus
	reloadMu   sync.Mutex
	loopCancel context.CancelFunc
	loopDone   chan struct{}
}

// NewManager creates a manager. Call Load before Start.
func NewManager(cfg ManagerConfig) (*Manager, error) {
	if cfg.Factories == nil {
		cfg.Factories = defaultFactories
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = DefaultHTTPClient()
	}

	m := &Manager{
		config:   cfg,
		logger:   logging.GetLogger("adapter.manager"),
		registry: NewRegistry(),
		statuses: make(map[string]HealthStatus),
	}

	if cfg.Registerer != nil {
		m.health = prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "insight_adapter_health",
			Help: "1 when the adapter instance is healthy, 0 otherwise.",
		}, []string{"instance"})
		if err := cfg.Registerer.Register(m.health); err != nil {
			return nil, fmt.Errorf("failed to register adapter metrics: %w", err)
		}
	}
	return m, nil
}

// Name returns the component name for lifecycle management.
func (m *Manager) Name() string {
	return "adapter-manager"
}

// Check validates the adapter section of file without creating instances:
// known types, valid tags, at most one enabled instance per tag and an
// enabled instance for every router capability.
func Check(file *config.File, factories *FactoryRegistry) error {
	if factories == nil {
		factories = defaultFactories
	}

	served := make(map[capability.Tag]string)
	for _, inst := range file.EnabledInstances() {
		if _, ok := factories.Get(inst.Type); !ok {
			return fmt.Errorf("instance %s: no adapter type %q (known: %v)", inst.Name, inst.Type, factories.List())
		}
		tag, err := capability.ParseTag(inst.Tag)
		if err != nil {
			return fmt.Errorf("instance %s: %w", inst.Name, err)
		}
		if prev, ok := served[tag]; ok {
			return fmt.Errorf("capability %s is served by both %s and %s", tag, prev, inst.Name)
		}
		served[tag] = inst.Name
	}

	enabled, err := capability.ParseTags(file.Router.Capabilities)
	if err != nil {
		return fmt.Errorf("router.capabilities: %w", err)
	}
	for _, tag := range enabled {
		if _, ok := served[tag]; !ok {
			return fmt.Errorf("%w: no enabled adapter instance for capability %s", capability.ErrUnknownCapability, tag)
		}
	}
	return nil
}

// Load builds and starts the enabled instances of file and returns their
// bindings. Instances from a previous Load are stopped once the new set is
// running. Instances that fail to start stay bound and Degraded.
func (m *Manager) Load(ctx context.Context, file *config.File) (router.Bindings, error) {
	m.reloadMu.Lock()
	defer m.reloadMu.Unlock()

	registry, bindings, err := m.build(ctx, file)
	if err != nil {
		return router.Bindings{}, err
	}
	m.commit(file, registry, m.startAll(ctx, registry))
	return bindings, nil
}

// build creates one instance per enabled config entry and binds them. Nothing
// is started, but factories may already hold resources (connection pools), so
// on error every instance created so far is stopped.
func (m *Manager) build(ctx context.Context, file *config.File) (*Registry, router.Bindings, error) {
	var bindings router.Bindings
	if err := Check(file, m.config.Factories); err != nil {
		return nil, bindings, err
	}

	minVersion, err := parseMinVersion(file.Adapters.MinVersion)
	if err != nil {
		return nil, bindings, err
	}

	models := m.config.Models
	if models == nil {
		models = NewModels(file.Models)
	}
	deps := Deps{Models: models, HTTPClient: m.config.HTTPClient}

	registry := NewRegistry()
	discard := func(err error) (*Registry, router.Bindings, error) {
		m.stopAll(registry, file.Adapters.ShutdownTimeout)
		return nil, router.Bindings{}, err
	}
	for _, ic := range file.EnabledInstances() {
		factory, _ := m.config.Factories.Get(ic.Type)
		tag, _ := capability.ParseTag(ic.Tag)

		instance, err := factory(ic.Name, ic.Config, deps)
		if err != nil {
			return discard(fmt.Errorf("failed to create instance %s (type: %s): %w", ic.Name, ic.Type, err))
		}
		if err := registry.Register(ic.Name, instance); err != nil {
			m.stopInstance(ic.Name, instance, file.Adapters.ShutdownTimeout)
			return discard(err)
		}
		if instance.Tag() != tag {
			return discard(fmt.Errorf("%w: instance %s is declared as %s but type %s serves %s",
				capability.ErrUnknownCapability, ic.Name, tag, ic.Type, instance.Tag()))
		}
		if err := validateVersion(instance, minVersion); err != nil {
			return discard(err)
		}
		if err := bindings.Bind(capability.NewAdapter(ic.Name, instance)); err != nil {
			return discard(err)
		}
	}
	return registry, bindings, nil
}

func parseMinVersion(s string) (*version.Version, error) {
	if s == "" {
		return nil, nil
	}
	v, err := version.NewVersion(s)
	if err != nil {
		return nil, fmt.Errorf("invalid adapters.min_version %q: %w", s, err)
	}
	return v, nil
}

func validateVersion(instance Instance, min *version.Version) error {
	if min == nil {
		return nil
	}
	md := instance.Metadata()
	v, err := version.NewVersion(md.Version)
	if err != nil {
		return fmt.Errorf("instance %s has invalid version %q: %w", md.Name, md.Version, err)
	}
	if v.LessThan(min) {
		return fmt.Errorf("instance %s version %s is below minimum required version %s", md.Name, md.Version, min)
	}
	return nil
}

// commit makes a started registry current and stops the previous set.
// Caller holds reloadMu.
func (m *Manager) commit(file *config.File, registry *Registry, statuses map[string]HealthStatus) {
	m.mu.Lock()
	previous := m.registry
	m.file = file
	m.registry = registry
	m.statuses = statuses
	m.mu.Unlock()

	m.stopAll(previous, file.Adapters.ShutdownTimeout)
	m.exportHealth(previous, statuses)
	m.logger.Info("Adapter instances running: %d", registry.Len())
}

func (m *Manager) startAll(ctx context.Context, registry *Registry) map[string]HealthStatus {
	statuses := make(map[string]HealthStatus, registry.Len())
	for _, name := range registry.List() {
		instance, _ := registry.Get(name)
		md := instance.Metadata()
		if err := instance.Start(ctx); err != nil {
			m.logger.Error("Failed to start instance %s: %v (marking as degraded)", name, err)
			statuses[name] = Degraded
			continue
		}
		statuses[name] = Healthy
		m.logger.Info("Started instance: %s (type: %s, version: %s)", name, md.Type, md.Version)
	}
	return statuses
}

func (m *Manager) stopAll(registry *Registry, timeout time.Duration) {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	for _, name := range registry.List() {
		if instance, ok := registry.Get(name); ok {
			m.stopInstance(name, instance, timeout)
		}
	}
}

func (m *Manager) stopInstance(name string, instance Instance, timeout time.Duration) {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := instance.Stop(ctx); err != nil {
		m.logger.Warn("Error stopping instance %s: %v", name, err)
	} else {
		m.logger.Debug("Stopped instance: %s", name)
	}
}

func (m *Manager) exportHealth(previous *Registry, statuses map[string]HealthStatus) {
	if m.health == nil {
		return
	}
	if previous != nil {
		for _, name := range previous.List() {
			if _, ok := statuses[name]; !ok {
				m.health.DeleteLabelValues(name)
			}
		}
	}
	for name, status := range statuses {
		v := 0.0
		if status == Healthy {
			v = 1
		}
		m.health.WithLabelValues(name).Set(v)
	}
}

// Start begins health checking and, when ConfigPath is set, watching the
// config file. Load must have been called.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.RLock()
	file := m.file
	m.mu.RUnlock()
	if file == nil {
		return fmt.Errorf("adapter manager started before Load")
	}

	if m.config.ConfigPath != "" {
		w, err := config.NewWatcher(config.WatcherConfig{FilePath: m.config.ConfigPath}, m.handleConfigReload)
		if err != nil {
			return fmt.Errorf("failed to create config watcher: %w", err)
		}
		if err := w.Start(ctx); err != nil {
			return fmt.Errorf("failed to start config watcher: %w", err)
		}
		m.watcher = w
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	m.loopCancel = cancel
	m.loopDone = make(chan struct{})
	go m.runHealthChecks(loopCtx, file.Adapters.HealthInterval)

	m.logger.Info("Adapter manager started with %d instances", m.Registry().Len())
	return nil
}

// Stop ends health checks and the watcher, then stops every instance.
func (m *Manager) Stop(ctx context.Context) error {
	m.logger.Info("Stopping adapter manager")

	if m.loopCancel != nil {
		m.loopCancel()
		<-m.loopDone
	}
	if m.watcher != nil {
		if err := m.watcher.Stop(); err != nil {
			m.logger.Warn("Error stopping config watcher: %v", err)
		}
	}

	m.reloadMu.Lock()
	defer m.reloadMu.Unlock()

	timeout := 10 * time.Second
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
	}
	m.stopAll(m.Registry(), timeout)

	m.mu.Lock()
	for name := range m.statuses {
		m.statuses[name] = Stopped
	}
	m.mu.Unlock()
	return nil
}

// handleConfigReload builds and starts the new instance set next to the running
// one. The callback sees bindings of started instances; the old set is stopped
// only after it accepts them, otherwise the new set is stopped instead.
func (m *Manager) handleConfigReload(file *config.File) error {
	m.logger.Info("Config change detected - rebuilding adapter instances")

	m.reloadMu.Lock()
	defer m.reloadMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), reloadTimeout(file))
	defer cancel()

	registry, bindings, err := m.build(ctx, file)
	if err != nil {
		m.logger.Error("Keeping current adapters, new config is invalid: %v", err)
		return err
	}

	statuses := m.startAll(ctx, registry)
	if m.config.OnReload != nil {
		if err := m.config.OnReload(file, bindings); err != nil {
			m.logger.Error("Keeping current adapters, bindings rejected: %v", err)
			m.stopAll(registry, file.Adapters.ShutdownTimeout)
			return err
		}
	}
	m.commit(file, registry, statuses)
	return nil
}

func reloadTimeout(file *config.File) time.Duration {
	if file.Adapters.ShutdownTimeout > 0 {
		return 3 * file.Adapters.ShutdownTimeout
	}
	return 30 * time.Second
}

func (m *Manager) runHealthChecks(ctx context.Context, interval time.Duration) {
	defer close(m.loopDone)
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	m.logger.Debug("Health check loop started (interval: %s)", interval)
	for {
		select {
		case <-ctx.Done():
			m.logger.Debug("Health check loop stopped")
			return
		case <-ticker.C:
			m.CheckHealth(ctx)
		}
	}
}

// CheckHealth probes every instance once and restarts degraded ones.
func (m *Manager) CheckHealth(ctx context.Context) {
	registry := m.Registry()
	statuses := make(map[string]HealthStatus, registry.Len())

	for _, name := range registry.List() {
		instance, ok := registry.Get(name)
		if !ok {
			continue
		}
		status := instance.Health(ctx)
		if status == Degraded {
			m.logger.Debug("Instance %s is degraded, attempting recovery", name)
			if err := instance.Start(ctx); err != nil {
				m.logger.Debug("Recovery failed for instance %s: %v", name, err)
			} else {
				m.logger.Info("Instance %s recovered successfully", name)
				status = Healthy
			}
		}
		statuses[name] = status
	}

	m.mu.Lock()
	// a reload may have swapped the registry while probing
	if m.registry == registry {
		m.statuses = statuses
	}
	m.mu.Unlock()
	m.exportHealth(nil, statuses)
}

// Registry returns the current instance registry.
func (m *Manager) Registry() *Registry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.registry
}

// Statuses returns the last known state of every instance, sorted by name.
func (m *Manager) Statuses() []InstanceStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []InstanceStatus
	for _, name := range m.registry.List() {
		instance, _ := m.registry.Get(name)
		md := instance.Metadata()
		status, ok := m.statuses[name]
		if !ok {
			status = Degraded
		}
		out = append(out, InstanceStatus{
			Name:        name,
			Type:        md.Type,
			Tag:         instance.Tag().String(),
			Version:     md.Version,
			Description: md.Description,
			Health:      status.String(),
		})
	}
	return out
}

// Ready reports whether instances are loaded and none is stopped.
func (m *Manager) Ready() error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.file == nil {
		return errors.New("adapters not loaded")
	}
	for name, status := range m.statuses {
		if status == Stopped {
			return fmt.Errorf("instance %s is stopped", name)
		}
	}
	return nil
}
