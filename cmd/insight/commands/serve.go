package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/moolen/insight/internal/api"
	"github.com/moolen/insight/internal/config"
	"github.com/moolen/insight/internal/lifecycle"
	"github.com/moolen/insight/internal/logging"
	"github.com/moolen/insight/internal/tracing"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
)

var (
	httpAddr           string
	watchConfig        bool
	tracingEnabled     bool
	tracingEndpoint    string
	tracingTLSCAPath   string
	tracingTLSInsecure bool
	tracingSampleRatio float64
	shutdownTimeout    time.Duration
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	Long: `Start the insight HTTP API. The router config is loaded once at startup;
with --watch, adapter instances are rebuilt whenever the file changes.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&httpAddr, "http-addr", getEnv("INSIGHT_HTTP_ADDR", ":8080"), "Address the API listens on")
	serveCmd.Flags().BoolVar(&watchConfig, "watch", false, "Reload adapter instances when --config changes")
	serveCmd.Flags().BoolVar(&tracingEnabled, "tracing-enabled", false, "Enable OpenTelemetry tracing (default: false)")
	serveCmd.Flags().StringVar(&tracingEndpoint, "tracing-endpoint", "", "OTLP gRPC endpoint for traces (e.g., otel-collector:4317)")
	serveCmd.Flags().StringVar(&tracingTLSCAPath, "tracing-tls-ca", "", "Path to CA certificate for TLS verification (optional)")
	serveCmd.Flags().BoolVar(&tracingTLSInsecure, "tracing-tls-insecure", false, "Send spans without TLS (use only for testing)")
	serveCmd.Flags().Float64Var(&tracingSampleRatio, "tracing-sample-ratio", 1, "Fraction of traces to keep")
	serveCmd.Flags().DurationVar(&shutdownTimeout, "shutdown-timeout", 15*time.Second, "Graceful shutdown timeout")
}

func runServe(cmd *cobra.Command, args []string) error {
	logger := logging.GetLogger("serve")

	serverCfg := &config.ServerConfig{
		ConfigPath:       configPath,
		HTTPAddr:         httpAddr,
		WatchConfig:      watchConfig,
		TracingEnabled:   tracingEnabled,
		TracingEndpoint:  tracingEndpoint,
		TracingTLSCAPath: tracingTLSCAPath,
		TracingInsecure:  tracingTLSInsecure,
	}
	if err := serverCfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	tracingProvider, err := tracing.NewProvider(tracing.Config{
		Enabled:     serverCfg.TracingEnabled,
		Endpoint:    serverCfg.TracingEndpoint,
		TLSCAPath:   serverCfg.TracingTLSCAPath,
		Insecure:    serverCfg.TracingInsecure,
		SampleRatio: tracingSampleRatio,
		Version:     Version,
	})
	if err != nil {
		return fmt.Errorf("tracing initialization error: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rt, err := buildRuntime(ctx, runtimeOptions{configPath: serverCfg.ConfigPath, watch: serverCfg.WatchConfig})
	if err != nil {
		_ = tracingProvider.Stop(context.Background())
		return err
	}
	rt.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	apiServer := api.New(api.Config{
		Addr:     serverCfg.HTTPAddr,
		Engine:   rt.router,
		Adapters: rt.manager,
		Gatherer: rt.registry,
	})

	manager := lifecycle.NewManager()
	manager.SetShutdownTimeout(shutdownTimeout)
	if err := manager.Register(tracingProvider); err != nil {
		rt.close()
		return fmt.Errorf("tracing registration error: %w", err)
	}
	if err := manager.Register(rt.manager, tracingProvider); err != nil {
		rt.close()
		return fmt.Errorf("adapter manager registration error: %w", err)
	}
	if err := manager.Register(apiServer, rt.manager); err != nil {
		rt.close()
		return fmt.Errorf("API server registration error: %w", err)
	}

	if err := manager.Start(ctx); err != nil {
		rt.close()
		return fmt.Errorf("startup error: %w", err)
	}
	logger.Info("Insight %s serving on %s (capabilities: %v)", Version, apiServer.Addr(), rt.router.Enabled())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	logger.Info("Shutdown signal received, gracefully shutting down...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := manager.Stop(shutdownCtx); err != nil {
		logger.Error("Error during shutdown: %v", err)
	}
	logger.Info("Shutdown complete")
	return nil
}
