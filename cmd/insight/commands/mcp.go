package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/moolen/insight/internal/logging"
	"github.com/moolen/insight/internal/mcp"
	"github.com/spf13/cobra"
)

var (
	mcpTransport   string
	mcpHTTPAddr    string
	mcpEndpoint    string
	mcpWatchConfig bool
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the insight tools over the Model Context Protocol",
	Long: `Expose insight_query, insight_classify and insight_capabilities to MCP
clients (assistants, IDE agents) over stdio or streamable HTTP.`,
	RunE: runMCP,
}

func init() {
	mcpCmd.Flags().StringVar(&mcpTransport, "transport", getEnv("MCP_TRANSPORT", "stdio"), "Transport: stdio or http")
	mcpCmd.Flags().StringVar(&mcpHTTPAddr, "http-addr", getEnv("MCP_HTTP_ADDR", ":8082"), "Listen address for the http transport")
	mcpCmd.Flags().StringVar(&mcpEndpoint, "mcp-endpoint", getEnv("MCP_ENDPOINT", "/mcp"), "HTTP endpoint path for MCP requests")
	mcpCmd.Flags().BoolVar(&mcpWatchConfig, "watch", false, "Reload adapter instances when --config changes")
}

func runMCP(cmd *cobra.Command, args []string) error {
	if mcpTransport != "stdio" && mcpTransport != "http" {
		return fmt.Errorf("invalid transport %q (must be stdio or http)", mcpTransport)
	}
	if mcpWatchConfig && configPath == "" {
		return fmt.Errorf("--watch requires --config")
	}
	if mcpTransport == "stdio" {
		// stdout carries the protocol.
		logging.SetOutput(os.Stderr, os.Stderr)
	}
	logger := logging.GetLogger("mcp")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rt, err := buildRuntime(ctx, runtimeOptions{configPath: configPath, watch: mcpWatchConfig})
	if err != nil {
		return err
	}
	if err := rt.manager.Start(ctx); err != nil {
		rt.close()
		return err
	}
	defer rt.close()

	srv := mcp.NewServer(mcp.Options{
		Engine:   rt.router,
		Statuses: rt.manager,
		Version:  Version,
	})

	if mcpTransport == "stdio" {
		logger.Info("Serving MCP over stdio")
		return srv.ServeStdio()
	}

	httpServer := &http.Server{
		Addr:              mcpHTTPAddr,
		Handler:           srv.HTTPHandler(mcpEndpoint),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("Serving MCP on %s%s", mcpHTTPAddr, mcpEndpoint)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigChan:
		logger.Info("Shutdown signal received, gracefully shutting down...")
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("MCP server error: %w", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	return httpServer.Shutdown(shutdownCtx)
}
