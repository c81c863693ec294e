package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"

	mcpgo "github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/skolmuirgheasa/resquared-automation/models"
	"github.com/skolmuirgheasa/resquared-automation/pkg/logger"
	"github.com/skolmuirgheasa/resquared-automation/snapshot"
)

// CampaignRunner 执行 campaign
type CampaignRunner interface {
	Run(ctx context.Context, req models.CampaignRequest) (*models.CampaignRun, error)
}

// RunStore 运行记录查询
type RunStore interface {
	GetRun(id string) (*models.CampaignRun, error)
}

// MCPServer 使用 mcp-go 库实现的 MCP 服务器
type MCPServer struct {
	runner   CampaignRunner
	runs     RunStore
	maxDepth int

	// mcp-go server instance
	mcpServer            *server.MCPServer
	streamableHTTPServer *server.StreamableHTTPServer
}

// NewMCPServer 创建 MCP 服务器并注册 campaign 工具
func NewMCPServer(runner CampaignRunner, runs RunStore, version string, maxDepth int) *MCPServer {
	s := &MCPServer{
		runner:   runner,
		runs:     runs,
		maxDepth: maxDepth,
	}

	s.mcpServer = server.NewMCPServer(
		"resquared-automation",
		version,
		server.WithToolCapabilities(true),
	)

	s.streamableHTTPServer = server.NewStreamableHTTPServer(
		s.mcpServer,
		server.WithEndpointPath("/api/v1/mcp/message"),
		server.WithStateful(true),
	)

	s.registerTools()
	return s
}

func (s *MCPServer) registerTools() {
	s.mcpServer.AddTool(
		mcpgo.NewTool("run_campaign",
			mcpgo.WithDescription("Sign in to the target web app and drive the browser step by step until the prospecting goal is reached. Returns the ordered step log."),
			mcpgo.WithString("prompt", mcpgo.Required(), mcpgo.Description("Campaign goal, e.g. Find \"pizza\" restaurants and save them to a list")),
			mcpgo.WithString("target_url", mcpgo.Required(), mcpgo.Description("Start URL of the target application")),
			mcpgo.WithString("username", mcpgo.Required(), mcpgo.Description("Login username")),
			mcpgo.WithString("password", mcpgo.Required(), mcpgo.Description("Login password")),
		),
		s.handleRunCampaign,
	)

	// 没有存储时不暴露查询工具
	if s.runs != nil {
		s.mcpServer.AddTool(
			mcpgo.NewTool("get_campaign_run",
				mcpgo.WithDescription("Fetch a stored campaign run with its step log"),
				mcpgo.WithString("id", mcpgo.Required(), mcpgo.Description("Run id returned by run_campaign")),
			),
			s.handleGetRun,
		)
	}

	s.mcpServer.AddTool(
		mcpgo.NewTool("snapshot_html",
			mcpgo.WithDescription("Build an interactive-element snapshot of static HTML (inline or from a file) and return the numbered element list"),
			mcpgo.WithString("html", mcpgo.Description("HTML document")),
			mcpgo.WithString("path", mcpgo.Description("Path to a saved HTML file, used when html is empty")),
		),
		s.handleSnapshotHTML,
	)
}

func stringArg(args map[string]any, key string) string {
	if v, ok := args[key]; ok && v != nil {
		if s, ok := v.(string); ok {
			return s
		}
		return fmt.Sprintf("%v", v)
	}
	return ""
}

func (s *MCPServer) handleRunCampaign(ctx context.Context, request mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	args := request.GetArguments()
	req := models.CampaignRequest{
		Prompt:    stringArg(args, "prompt"),
		TargetURL: stringArg(args, "target_url"),
		Username:  stringArg(args, "username"),
		Password:  stringArg(args, "password"),
	}
	logger.Info(ctx, "Executing MCP command: run_campaign (target: %s)", req.TargetURL)

	run, err := s.runner.Run(ctx, req)
	if err != nil {
		if errors.Is(err, models.ErrInvalidRequest) || run == nil {
			return mcpgo.NewToolResultError(err.Error()), nil
		}
		return mcpgo.NewToolResultError(fmt.Sprintf("%v\n\n%s", err, formatSteps(run.Steps))), nil
	}

	data, err := json.MarshalIndent(run, "", "  ")
	if err != nil {
		return mcpgo.NewToolResultError(fmt.Sprintf("Failed to encode run: %v", err)), nil
	}
	return mcpgo.NewToolResultText(string(data)), nil
}

func (s *MCPServer) handleGetRun(ctx context.Context, request mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	id := stringArg(request.GetArguments(), "id")
	if id == "" {
		return mcpgo.NewToolResultError("id is required"), nil
	}
	run, err := s.runs.GetRun(id)
	if err != nil {
		return mcpgo.NewToolResultError(err.Error()), nil
	}
	data, err := json.MarshalIndent(run, "", "  ")
	if err != nil {
		return mcpgo.NewToolResultError(fmt.Sprintf("Failed to encode run: %v", err)), nil
	}
	return mcpgo.NewToolResultText(string(data)), nil
}

func (s *MCPServer) handleSnapshotHTML(ctx context.Context, request mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	args := request.GetArguments()
	html := stringArg(args, "html")
	if strings.TrimSpace(html) == "" {
		path := stringArg(args, "path")
		if path == "" {
			return mcpgo.NewToolResultError("either html or path is required"), nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return mcpgo.NewToolResultError(fmt.Sprintf("Failed to read %s: %v", path, err)), nil
		}
		html = string(data)
	}

	body, err := snapshot.FromHTML(html)
	if err != nil {
		return mcpgo.NewToolResultError(err.Error()), nil
	}
	snap := snapshot.NewBuilder(&snapshot.HandleAllocator{}).Build(body, snapshot.Options{MaxDepth: s.maxDepth, CollectMetrics: true})
	logger.Info(ctx, "snapshot_html: %d nodes, %d interactive", len(snap.Nodes), snap.HighlightCount())
	return mcpgo.NewToolResultText(snapshot.SerializeToSimpleText(snap)), nil
}

func formatSteps(steps []models.AutomationStep) string {
	if len(steps) == 0 {
		return "No steps were executed."
	}
	var b strings.Builder
	b.WriteString("Steps:\n")
	for _, st := range steps {
		fmt.Fprintf(&b, "%d. %s %q -> %s", st.Sequence, st.Action.Kind, st.Action.Locator, st.Outcome)
		if st.Note != "" {
			fmt.Fprintf(&b, " (%s)", st.Note)
		}
		b.WriteString("\n")
	}
	return b.String()
}

// ServeHTTP 以 streamable HTTP 方式处理 MCP 请求
func (s *MCPServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	logger.Info(r.Context(), "ServeHTTP: Method=%s, Path=%s, RemoteAddr=%s", r.Method, r.URL.Path, r.RemoteAddr)
	s.streamableHTTPServer.ServeHTTP(w, r)
}

// ServeStdio 通过标准输入输出提供 MCP 服务,阻塞直到输入关闭
func (s *MCPServer) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}
