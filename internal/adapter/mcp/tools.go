package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	mcplib "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/skyfuse/skyfuse/internal/domain/correlation"
	"github.com/skyfuse/skyfuse/internal/domain/task"
)

// registerTools registers all MCP tools on the server.
func (s *Server) registerTools() {
	s.mcpServer.AddTools(
		s.listSpecialistsTool(),
		s.getTaskTool(),
		s.submitAnalysisTool(),
		s.correlateDemandTool(),
	)
}

func (s *Server) listSpecialistsTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("list_specialists",
		mcplib.WithDescription("List all registered specialist agents with their capabilities and health"),
	)
	return mcpserver.ServerTool{
		Tool:    tool,
		Handler: s.handleListSpecialists,
	}
}

func (s *Server) getTaskTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("get_task",
		mcplib.WithDescription("Get the current state of a task by ID"),
		mcplib.WithString("task_id",
			mcplib.Required(),
			mcplib.Description("The task ID to look up"),
		),
	)
	return mcpserver.ServerTool{
		Tool:    tool,
		Handler: s.handleGetTask,
	}
}

func (s *Server) submitAnalysisTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("submit_analysis",
		mcplib.WithDescription("Submit a natural-language request and wait for the fused specialist answer"),
		mcplib.WithString("text",
			mcplib.Required(),
			mcplib.Description("The request to analyze, e.g. a question about weather, events, or fares"),
		),
		mcplib.WithString("session_id",
			mcplib.Description("Optional session to group related tasks"),
		),
	)
	return mcpserver.ServerTool{
		Tool:    tool,
		Handler: s.handleSubmitAnalysis,
	}
}

func (s *Server) correlateDemandTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("correlate_demand",
		mcplib.WithDescription("Compute a demand signal from impact scores (0-10) and optionally adjust a base fare"),
		mcplib.WithNumber("weather_impact",
			mcplib.Description("Weather impact score, 0-10"),
		),
		mcplib.WithNumber("event_impact",
			mcplib.Description("Event impact score, 0-10"),
		),
		mcplib.WithNumber("economic_impact",
			mcplib.Description("Economic impact score, 0-10"),
		),
		mcplib.WithNumber("news_impact",
			mcplib.Description("News impact score, 0-10"),
		),
		mcplib.WithNumber("pricing_impact",
			mcplib.Description("Flight pricing impact score, 0-10"),
		),
		mcplib.WithNumber("base_fare",
			mcplib.Description("Optional base fare to adjust by the demand signal"),
		),
	)
	return mcpserver.ServerTool{
		Tool:    tool,
		Handler: s.handleCorrelateDemand,
	}
}

func (s *Server) handleListSpecialists(_ context.Context, _ mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Specialists == nil {
		return mcplib.NewToolResultError("specialist registry not configured"), nil
	}
	cards := s.deps.Specialists.Snapshot()
	data, err := json.Marshal(cards)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("failed to marshal specialists", err), nil
	}
	return toolResultJSON(string(data)), nil
}

func (s *Server) handleGetTask(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Tasks == nil {
		return mcplib.NewToolResultError("task reader not configured"), nil
	}
	args := req.GetArguments()
	taskID, ok := args["task_id"].(string)
	if !ok || taskID == "" {
		return mcplib.NewToolResultError("task_id is required"), nil
	}
	t, err := s.deps.Tasks.Get(ctx, taskID)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr(
			fmt.Sprintf("failed to get task %s", taskID), err,
		), nil
	}
	data, err := json.Marshal(t)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("failed to marshal task", err), nil
	}
	return toolResultJSON(string(data)), nil
}

func (s *Server) handleSubmitAnalysis(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Runner == nil {
		return mcplib.NewToolResultError("analysis runner not configured"), nil
	}
	args := req.GetArguments()
	text, ok := args["text"].(string)
	if !ok || text == "" {
		return mcplib.NewToolResultError("text is required"), nil
	}
	sessionID, _ := args["session_id"].(string)
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	msg := task.Message{Role: task.RoleUser, Parts: []task.Part{task.TextPart(text)}}
	t, err := s.deps.Runner.HandleSync(ctx, uuid.NewString(), sessionID, msg, "")
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("analysis failed", err), nil
	}
	data, err := json.Marshal(t)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("failed to marshal task", err), nil
	}
	return toolResultJSON(string(data)), nil
}

func (s *Server) handleCorrelateDemand(_ context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	args := req.GetArguments()

	in := correlation.Input{Scores: map[correlation.Factor]float64{}}
	for name, factor := range map[string]correlation.Factor{
		"weather_impact":  correlation.FactorWeather,
		"event_impact":    correlation.FactorEvent,
		"economic_impact": correlation.FactorEconomic,
		"news_impact":     correlation.FactorNews,
		"pricing_impact":  correlation.FactorPricing,
	} {
		if v, ok := args[name].(float64); ok {
			in.Scores[factor] = v
			in.Expected = append(in.Expected, factor)
		}
	}
	if v, ok := args["base_fare"].(float64); ok {
		in.Base = &v
	}
	if len(in.Scores) == 0 {
		return mcplib.NewToolResultError("at least one impact score is required"), nil
	}

	result, err := correlation.Correlate(in)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("correlation failed", err), nil
	}
	data, err := json.Marshal(result)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("failed to marshal result", err), nil
	}
	return toolResultJSON(string(data)), nil
}

func toolResultJSON(data string) *mcplib.CallToolResult {
	return mcplib.NewToolResultText(data)
}
