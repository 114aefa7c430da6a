// Package mcp exposes the workflow engine as MCP tools so agent clients can
// inspect workflows, move instances and evaluate rules.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"projectflow/backend/internal/auth"
	"projectflow/backend/internal/services"
	"projectflow/backend/pkg/models"
)

// agentUser is recorded as triggered_by when a tool call carries no
// authenticated identity.
const agentUser = "mcp-agent"

// Server wraps the MCP server and the services its tools call.
type Server struct {
	mcpServer  *server.MCPServer
	workflows  *services.WorkflowService
	instances  *services.InstanceService
	rules      *services.RuleService
	statistics *services.StatisticsService
}

// NewServer creates the MCP server and registers its tools.
func NewServer(workflows *services.WorkflowService, instances *services.InstanceService, rules *services.RuleService, statistics *services.StatisticsService) *Server {
	s := &Server{
		mcpServer: server.NewMCPServer(
			"projectflow",
			"1.0.0",
			server.WithToolCapabilities(true),
		),
		workflows:  workflows,
		instances:  instances,
		rules:      rules,
		statistics: statistics,
	}

	s.registerTools()
	return s
}

// GetMCPServer returns the underlying MCP server.
func (s *Server) GetMCPServer() *server.MCPServer {
	return s.mcpServer
}

func (s *Server) registerTools() {
	s.mcpServer.AddTool(
		mcp.NewTool(
			"list_workflows",
			mcp.WithDescription("List workflow templates, optionally filtered by type"),
			mcp.WithString("type", mcp.Description("Workflow type, e.g. sales")),
		),
		s.handleListWorkflows,
	)

	s.mcpServer.AddTool(
		mcp.NewTool(
			"get_instance",
			mcp.WithDescription("Get a workflow instance with its current stage and history"),
			mcp.WithString("instance_id", mcp.Required(), mcp.Description("The ID of the workflow instance")),
		),
		s.handleGetInstance,
	)

	s.mcpServer.AddTool(
		mcp.NewTool(
			"create_instance",
			mcp.WithDescription("Start a workflow instance for a project"),
			mcp.WithString("workflow_id", mcp.Required(), mcp.Description("The workflow template to instantiate")),
			mcp.WithString("project_id", mcp.Required(), mcp.Description("The project the instance tracks")),
			mcp.WithString("initial_stage", mcp.Required(), mcp.Description("Stage key to start at")),
		),
		s.handleCreateInstance,
	)

	s.mcpServer.AddTool(
		mcp.NewTool(
			"transition_instance",
			mcp.WithDescription("Move a workflow instance from its current stage to another stage"),
			mcp.WithString("instance_id", mcp.Required(), mcp.Description("The ID of the workflow instance")),
			mcp.WithString("from_stage", mcp.Required(), mcp.Description("The stage the instance is expected to be at")),
			mcp.WithString("to_stage", mcp.Required(), mcp.Description("The target stage key")),
			mcp.WithString("notes", mcp.Description("Free-text note stored on the history record")),
		),
		s.handleTransition,
	)

	s.mcpServer.AddTool(
		mcp.NewTool(
			"evaluate_rules",
			mcp.WithDescription("Evaluate a context object against all active business rules"),
			mcp.WithObject("context", mcp.Required(), mcp.Description("Key/value facts to match rule conditions against")),
			mcp.WithString("rule_type", mcp.Description("Only evaluate rules of this type")),
		),
		s.handleEvaluateRules,
	)

	s.mcpServer.AddTool(
		mcp.NewTool(
			"workflow_statistics",
			mcp.WithDescription("Aggregate counts of workflows, instances and rules"),
		),
		s.handleStatistics,
	)
}

func (s *Server) handleListWorkflows(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	filter := models.WorkflowFilter{Type: request.GetString("type", "")}
	page, err := s.workflows.ListWorkflows(ctx, filter)
	if err != nil {
		return toolError("list workflows", err), nil
	}
	return jsonResult(page.Items)
}

func (s *Server) handleGetInstance(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("instance_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	inst, err := s.instances.GetInstance(ctx, id)
	if err != nil {
		return toolError("get instance", err), nil
	}
	return jsonResult(inst)
}

func (s *Server) handleCreateInstance(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var req models.CreateInstanceRequest
	var err error
	if req.WorkflowID, err = request.RequireString("workflow_id"); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if req.ProjectID, err = request.RequireString("project_id"); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if req.InitialStage, err = request.RequireString("initial_stage"); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	inst, err := s.instances.CreateInstance(ctx, &req)
	if err != nil {
		return toolError("create instance", err), nil
	}
	return jsonResult(inst)
}

func (s *Server) handleTransition(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("instance_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	req := models.TransitionRequest{Notes: request.GetString("notes", "")}
	if req.FromStage, err = request.RequireString("from_stage"); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if req.ToStage, err = request.RequireString("to_stage"); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	req.TriggeredBy = auth.UserID(ctx)
	if req.TriggeredBy == "" {
		req.TriggeredBy = agentUser
	}

	inst, err := s.instances.Transition(ctx, id, &req)
	if err != nil {
		return toolError("transition instance", err), nil
	}
	return jsonResult(inst)
}

func (s *Server) handleEvaluateRules(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	evalCtx, ok := request.GetArguments()["context"].(map[string]interface{})
	if !ok {
		return mcp.NewToolResultError("Missing required parameter: context"), nil
	}

	result, err := s.rules.Evaluate(ctx, evalCtx, request.GetString("rule_type", ""))
	if err != nil {
		return toolError("evaluate rules", err), nil
	}
	return jsonResult(result)
}

func (s *Server) handleStatistics(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	stats, err := s.statistics.Statistics(ctx)
	if err != nil {
		return toolError("compute statistics", err), nil
	}
	return jsonResult(stats)
}

func toolError(action string, err error) *mcp.CallToolResult {
	return mcp.NewToolResultError(fmt.Sprintf("Failed to %s: %v", action, err))
}

func jsonResult(v interface{}) (*mcp.CallToolResult, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode tool result: %w", err)
	}
	return mcp.NewToolResultText(string(b)), nil
}

// MountHTTPHandlers serves the MCP SSE transport under /mcp on mux.
func MountHTTPHandlers(mux *http.ServeMux, mcpServer *server.MCPServer) {
	sseServer := server.NewSSEServer(mcpServer, server.WithStaticBasePath("/mcp"))

	mux.HandleFunc("/mcp", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			sseServer.ServeHTTP(w, r)
			return
		}
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	})
	mux.HandleFunc("/mcp/sse", sseServer.ServeHTTP)
	mux.HandleFunc("/mcp/message", sseServer.ServeHTTP)
}
