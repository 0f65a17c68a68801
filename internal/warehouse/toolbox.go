package warehouse

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/moolen/insight/internal/capability"
	"github.com/moolen/insight/internal/logging"
)

const (
	defaultAnalyticsTool   = "bigquery-execute-sql"
	defaultOperationalTool = "postgres-execute-sql"
)

// ToolboxExecutor runs SQL through the execute-sql tools of a genai-toolbox
// MCP server.
type ToolboxExecutor struct {
	cfg    Config
	tools  map[Source]string
	logger *logging.Logger

	mu          sync.Mutex
	client      *client.Client
	owned       bool
	initialized bool
}

// NewToolboxExecutor creates an executor for the toolbox at cfg.URL, or a
// toolbox subprocess when cfg.Command is set. Nothing is dialed until the
// first Query or Ping.
func NewToolboxExecutor(cfg Config) (*ToolboxExecutor, error) {
	if cfg.URL == "" && cfg.Command == "" {
		cfg.URL = DefaultToolboxURL
	}
	if cfg.AnalyticsTool == "" {
		cfg.AnalyticsTool = defaultAnalyticsTool
	}
	if cfg.OperationalTool == "" {
		cfg.OperationalTool = defaultOperationalTool
	}
	return &ToolboxExecutor{
		cfg: cfg,
		tools: map[Source]string{
			Analytics:   cfg.AnalyticsTool,
			Operational: cfg.OperationalTool,
		},
		logger: logging.GetLogger("warehouse.toolbox"),
	}, nil
}

// NewToolboxExecutorWithClient wraps an existing MCP client (in-process servers, tests).
func NewToolboxExecutorWithClient(c *client.Client, cfg Config) *ToolboxExecutor {
	e, _ := NewToolboxExecutor(cfg)
	e.client = c
	return e
}

func (e *ToolboxExecutor) connect(ctx context.Context) (*client.Client, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.client != nil && e.initialized {
		return e.client, nil
	}

	if e.client == nil {
		c, err := e.dial()
		if err != nil {
			return nil, capability.Unreachable("toolbox: %v", err)
		}
		e.client = c
		e.owned = true
	}

	if err := e.client.Start(ctx); err != nil {
		e.reset()
		return nil, capability.Unreachable("toolbox start: %v", err)
	}

	initReq := mcp.InitializeRequest{}
	initReq.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	initReq.Params.ClientInfo = mcp.Implementation{Name: "insight", Version: "1.0.0"}
	res, err := e.client.Initialize(ctx, initReq)
	if err != nil {
		e.reset()
		return nil, capability.Unreachable("toolbox initialize: %v", err)
	}
	e.initialized = true
	e.logger.Debug("Connected to %s %s", res.ServerInfo.Name, res.ServerInfo.Version)
	return e.client, nil
}

func (e *ToolboxExecutor) dial() (*client.Client, error) {
	if e.cfg.Command != "" {
		return client.NewStdioMCPClient(e.cfg.Command, nil, e.cfg.Args...)
	}
	return client.NewStreamableHttpClient(e.cfg.URL)
}

// reset drops a dialed client that failed to start so the next call redials.
// Caller holds mu.
func (e *ToolboxExecutor) reset() {
	if e.owned && e.client != nil {
		_ = e.client.Close()
		e.client = nil
	}
	e.initialized = false
}

// Query implements Executor.
func (e *ToolboxExecutor) Query(ctx context.Context, src Source, sql string) (*Rows, error) {
	tool, ok := e.tools[src]
	if !ok {
		return nil, fmt.Errorf("unknown warehouse source %q", src)
	}
	c, err := e.connect(ctx)
	if err != nil {
		return nil, err
	}

	req := mcp.CallToolRequest{}
	req.Params.Name = tool
	req.Params.Arguments = map[string]interface{}{"sql": sql}

	e.logger.WithContext(ctx).Debug("Calling %s: %s", tool, sql)
	res, err := c.CallTool(ctx, req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, capability.Unreachable("toolbox %s: %v", tool, err)
	}

	texts := textContents(res)
	if res.IsError {
		return nil, capability.Malformed("toolbox %s failed: %s", tool, strings.Join(texts, "; "))
	}
	return decodeJSONRows(texts)
}

func textContents(res *mcp.CallToolResult) []string {
	var out []string
	for _, content := range res.Content {
		if tc, ok := mcp.AsTextContent(content); ok {
			out = append(out, tc.Text)
		}
	}
	return out
}

// Ping implements Executor.
func (e *ToolboxExecutor) Ping(ctx context.Context) error {
	c, err := e.connect(ctx)
	if err != nil {
		return err
	}
	if err := c.Ping(ctx); err != nil {
		return capability.Unreachable("toolbox ping: %v", err)
	}
	return nil
}

// Close implements Executor.
func (e *ToolboxExecutor) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.client == nil {
		return nil
	}
	err := e.client.Close()
	e.client = nil
	e.initialized = false
	return err
}
