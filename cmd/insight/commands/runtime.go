package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/moolen/insight/internal/adapter"
	"github.com/moolen/insight/internal/config"
	"github.com/moolen/insight/internal/router"
	"github.com/prometheus/client_golang/prometheus"

	// Backend types register their factories on import.
	_ "github.com/moolen/insight/internal/adapter/creative"
	_ "github.com/moolen/insight/internal/adapter/metrics"
	_ "github.com/moolen/insight/internal/adapter/trends"
)

// runtime is a loaded config with its running adapter instances and the
// router bound to them.
type runtime struct {
	file     *config.File
	manager  *adapter.Manager
	router   *router.Router
	registry *prometheus.Registry
}

type runtimeOptions struct {
	configPath string
	// watch hands the config path to the manager for hot reload.
	watch bool
}

// buildRuntime loads the config, starts every enabled instance and wires the
// router. Callers own rt.manager and must Stop it.
func buildRuntime(ctx context.Context, opts runtimeOptions) (*runtime, error) {
	file, err := config.Load(opts.configPath)
	if err != nil {
		return nil, err
	}

	rt := &runtime{file: file, registry: prometheus.NewRegistry()}

	mc := adapter.ManagerConfig{
		Registerer: rt.registry,
		OnReload: func(_ *config.File, b router.Bindings) error {
			if rt.router == nil {
				return fmt.Errorf("router not ready")
			}
			return rt.router.Rebind(b)
		},
	}
	if opts.watch {
		mc.ConfigPath = opts.configPath
	}
	manager, err := adapter.NewManager(mc)
	if err != nil {
		return nil, err
	}

	bindings, err := manager.Load(ctx, file)
	if err != nil {
		return nil, fmt.Errorf("failed to load adapters: %w", err)
	}
	rt.manager = manager

	ropts, err := router.OptionsFromConfig(ctx, file, adapter.NewModels(file.Models))
	if err != nil {
		rt.close()
		return nil, err
	}
	ropts.Bindings = bindings
	ropts.Metrics = router.NewMetrics(rt.registry)

	r, err := router.New(ropts)
	if err != nil {
		rt.close()
		return nil, fmt.Errorf("failed to create router: %w", err)
	}
	rt.router = r
	return rt, nil
}

// close stops the adapter instances when no lifecycle manager owns them.
func (rt *runtime) close() {
	timeout := rt.file.Adapters.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	_ = rt.manager.Stop(ctx)
}
