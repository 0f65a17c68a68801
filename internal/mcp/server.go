// Package mcp exposes the router as Model Context Protocol tools.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/moolen/insight/internal/adapter"
	"github.com/moolen/insight/internal/capability"
	"github.com/moolen/insight/internal/report"
	"github.com/moolen/insight/internal/router"
)

// Engine answers queries. *router.Router implements it.
type Engine interface {
	Handle(ctx context.Context, q capability.Query) (report.Report, error)
	Classify(ctx context.Context, q capability.Query) (router.Classification, error)
	Enabled() []capability.Tag
}

// StatusSource lists adapter instances. *adapter.Manager implements it.
type StatusSource interface {
	Statuses() []adapter.InstanceStatus
}

// Tool is one MCP tool implementation.
type Tool interface {
	Execute(ctx context.Context, input json.RawMessage) (interface{}, error)
}

// Text is a tool result returned verbatim instead of as JSON.
type Text string

// Options configures a Server.
type Options struct {
	Engine   Engine
	Statuses StatusSource
	Version  string
}

// Server wraps an mcp-go server with the insight tools and prompts.
type Server struct {
	mcpServer *server.MCPServer
	tools     map[string]Tool
}

// NewServer registers the insight tools on a new MCP server.
func NewServer(opts Options) *Server {
	version := opts.Version
	if version == "" {
		version = "dev"
	}
	s := &Server{
		mcpServer: server.NewMCPServer("insight", version,
			server.WithToolCapabilities(false),
			server.WithPromptCapabilities(false),
		),
		tools: make(map[string]Tool),
	}
	s.registerTools(opts)
	s.registerPrompts()
	return s
}

// MCPServer returns the underlying mcp-go server.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// queryProperties is the input schema shared by insight_query and insight_classify.
func queryProperties() map[string]interface{} {
	return map[string]interface{}{
		"query": map[string]interface{}{
			"type":        "string",
			"description": "Marketing question in English or Thai",
		},
		"campaign_id": map[string]interface{}{
			"type":        "integer",
			"description": "Optional: campaign id",
		},
		"since": map[string]interface{}{
			"type":        "string",
			"description": "Optional: first day, ISO date or relative (e.g. '2 weeks ago')",
		},
		"until": map[string]interface{}{
			"type":        "string",
			"description": "Optional: last day (inclusive)",
		},
		"segment": map[string]interface{}{
			"type":        "string",
			"description": "Optional: audience segment, e.g. gen_z, millennials, office_workers",
		},
		"platform": map[string]interface{}{
			"type":        "string",
			"description": "Optional: facebook, youtube, tiktok, pantip or x",
		},
		"capabilities": map[string]interface{}{
			"type":        "array",
			"items":       map[string]interface{}{"type": "string", "enum": []string{"metrics", "trends", "creative"}},
			"description": "Optional: answer with these capabilities instead of classifying",
		},
	}
}

func (s *Server) registerTools(opts Options) {
	queryProps := queryProperties()
	queryProps["format"] = map[string]interface{}{
		"type":        "string",
		"enum":        []string{"markdown", "json"},
		"description": "Optional: report format (default markdown)",
	}

	s.registerTool(
		"insight_query",
		"Answer a marketing question with campaign metrics, Thai social media trends and creative analysis. Returns a report with one section per capability.",
		&queryTool{engine: opts.Engine},
		map[string]interface{}{
			"type":       "object",
			"properties": queryProps,
			"required":   []string{"query"},
		},
	)

	s.registerTool(
		"insight_classify",
		"Show which capabilities a marketing question would be routed to, without calling any backend",
		&classifyTool{engine: opts.Engine},
		map[string]interface{}{
			"type":       "object",
			"properties": queryProperties(),
			"required":   []string{"query"},
		},
	)

	s.registerTool(
		"insight_capabilities",
		"List the enabled capabilities and the health of the backends serving them",
		&capabilitiesTool{engine: opts.Engine, statuses: opts.Statuses},
		map[string]interface{}{"type": "object", "properties": map[string]interface{}{}},
	)
}

func (s *Server) registerTool(name, description string, tool Tool, inputSchema map[string]interface{}) {
	s.tools[name] = tool

	schemaJSON, err := json.Marshal(inputSchema)
	if err != nil {
		panic(fmt.Sprintf("Failed to marshal schema for tool %s: %v", name, err))
	}
	s.mcpServer.AddTool(mcp.NewToolWithRawSchema(name, description, schemaJSON), s.createToolHandler(tool))
}

func (s *Server) createToolHandler(tool Tool) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args, err := json.Marshal(request.Params.Arguments)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Invalid arguments: %v", err)), nil
		}

		result, err := tool.Execute(ctx, args)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		if text, ok := result.(Text); ok {
			return mcp.NewToolResultText(string(text)), nil
		}

		resultJSON, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Failed to format result: %v", err)), nil
		}
		return mcp.NewToolResultText(string(resultJSON)), nil
	}
}

func (s *Server) registerPrompts() {
	s.mcpServer.AddPrompt(mcp.Prompt{
		Name:        "campaign_review",
		Description: "Review a campaign's performance, its creatives and the social context around it",
		Arguments: []mcp.PromptArgument{
			{Name: "campaign_id", Description: "Campaign id", Required: true},
			{Name: "segment", Description: "Optional audience segment", Required: false},
		},
	}, func(ctx context.Context, request mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
		id := request.Params.Arguments["campaign_id"]
		text := fmt.Sprintf("Review campaign %s. Call insight_query with capabilities metrics and creative for campaign %s, "+
			"then call it again with capability trends for the campaign's audience. "+
			"Relate the creative patterns to ROAS and to what is trending, and list concrete next steps.", id, id)
		if seg := request.Params.Arguments["segment"]; seg != "" {
			text += " Focus on the " + seg + " segment."
		}
		return &mcp.GetPromptResult{
			Description: "Campaign review workflow",
			Messages: []mcp.PromptMessage{{
				Role:    mcp.RoleUser,
				Content: mcp.TextContent{Type: "text", Text: text},
			}},
		}, nil
	})
}

// HTTPHandler serves the streamable HTTP transport at path, in stateless mode,
// plus a /health endpoint.
func (s *Server) HTTPHandler(path string) http.Handler {
	if path == "" {
		path = "/mcp"
	} else if path[0] != '/' {
		path = "/" + path
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.Handle(path, server.NewStreamableHTTPServer(s.mcpServer,
		server.WithEndpointPath(path),
		server.WithStateLess(true),
	))
	return mux
}

// ServeStdio serves the stdio transport until stdin closes.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}
