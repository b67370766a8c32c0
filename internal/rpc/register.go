package rpc

import (
	"context"
	"encoding/json"
	"strconv"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// Register adds the ten flowforge tools to an MCP server.
func Register(s *server.MCPServer, svc *Service) {
	registerListProjects(s, svc)
	registerListFeatures(s, svc)
	registerStatus(s, svc)
	registerStartFeature(s, svc)
	registerStopFeature(s, svc)
	registerMergeCheck(s, svc)
	registerMerge(s, svc)
	registerAddFeature(s, svc)
	registerUpdateFeature(s, svc)
	registerDeleteFeature(s, svc)
}

func toolResult(resp *Response) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(resp)
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultText(string(data)), nil
}

func stringArg(args map[string]any, key string) string {
	v, _ := args[key].(string)
	return v
}

func boolArg(args map[string]any, key string) bool {
	v, _ := args[key].(bool)
	return v
}

func intArg(args map[string]any, key string) int {
	if v, numeric := args[key].(float64); numeric {
		return int(v)
	}
	return 0
}

func listArg(args map[string]any, key string) []string {
	raw, isList := args[key].([]any)
	if !isList {
		if v := stringArg(args, key); v != "" {
			return splitList(v)
		}
		return nil
	}
	var out []string
	for _, item := range raw {
		if s, isString := item.(string); isString {
			out = append(out, s)
		}
	}
	return out
}

func registerListProjects(s *server.MCPServer, svc *Service) {
	s.AddTool(
		mcp.NewTool("list_projects",
			mcp.WithDescription("List projects managed by flowforge (directories containing a .flowforge marker)."),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return toolResult(svc.ListProjects(ctx))
		},
	)
}

func registerListFeatures(s *server.MCPServer, svc *Service) {
	s.AddTool(
		mcp.NewTool("list_features",
			mcp.WithDescription("List a project's features, optionally filtered by status or tag."),
			mcp.WithString("project", mcp.Required(), mcp.Description("Project name")),
			mcp.WithString("status", mcp.Description("Filter by status (planned, in-progress, review, completed, blocked)")),
			mcp.WithString("tag", mcp.Description("Filter by tag")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			args := req.GetArguments()
			return toolResult(svc.ListFeatures(ctx,
				stringArg(args, "project"), stringArg(args, "status"), stringArg(args, "tag")))
		},
	)
}

func registerStatus(s *server.MCPServer, svc *Service) {
	s.AddTool(
		mcp.NewTool("status",
			mcp.WithDescription("Aggregate project status: feature counts, merge queue depth, live worktrees, executor load."),
			mcp.WithString("project", mcp.Required(), mcp.Description("Project name")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return toolResult(svc.Status(ctx, stringArg(req.GetArguments(), "project")))
		},
	)
}

func registerStartFeature(s *server.MCPServer, svc *Service) {
	s.AddTool(
		mcp.NewTool("start_feature",
			mcp.WithDescription("Create a feature's workspace, write its prompt, mark it in-progress, and dispatch the implementation run."),
			mcp.WithString("project", mcp.Required(), mcp.Description("Project name")),
			mcp.WithString("id", mcp.Required(), mcp.Description("Feature identifier")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			args := req.GetArguments()
			return toolResult(svc.StartFeature(ctx, stringArg(args, "project"), stringArg(args, "id")))
		},
	)
}

func registerStopFeature(s *server.MCPServer, svc *Service) {
	s.AddTool(
		mcp.NewTool("stop_feature",
			mcp.WithDescription("Cancel a feature's running execution and return it to planned."),
			mcp.WithString("project", mcp.Required(), mcp.Description("Project name")),
			mcp.WithString("id", mcp.Required(), mcp.Description("Feature identifier")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			args := req.GetArguments()
			return toolResult(svc.StopFeature(ctx, stringArg(args, "project"), stringArg(args, "id")))
		},
	)
}

func registerMergeCheck(s *server.MCPServer, svc *Service) {
	s.AddTool(
		mcp.NewTool("merge_check",
			mcp.WithDescription("Probe whether a feature branch merges cleanly into trunk. Omit id to check every review feature in merge order."),
			mcp.WithString("project", mcp.Required(), mcp.Description("Project name")),
			mcp.WithString("id", mcp.Description("Feature identifier; empty checks all review features")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			args := req.GetArguments()
			return toolResult(svc.MergeCheck(ctx, stringArg(args, "project"), stringArg(args, "id")))
		},
	)
}

func registerMerge(s *server.MCPServer, svc *Service) {
	s.AddTool(
		mcp.NewTool("merge",
			mcp.WithDescription("Merge a review feature into trunk. Omit id to merge all review features in dependency order, stopping at the first failure."),
			mcp.WithString("project", mcp.Required(), mcp.Description("Project name")),
			mcp.WithString("id", mcp.Description("Feature identifier; empty merges all review features")),
			mcp.WithBoolean("validate", mcp.Description("Run the configured build command after merging; roll back on failure (default: false)")),
			mcp.WithBoolean("auto_cleanup", mcp.Description("Remove the worktree and branch after a successful merge (default: false)")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			args := req.GetArguments()
			return toolResult(svc.Merge(ctx,
				stringArg(args, "project"), stringArg(args, "id"),
				boolArg(args, "validate"), boolArg(args, "auto_cleanup")))
		},
	)
}

func registerAddFeature(s *server.MCPServer, svc *Service) {
	s.AddTool(
		mcp.NewTool("add_feature",
			mcp.WithDescription("Add a planned feature to a project's registry."),
			mcp.WithString("project", mcp.Required(), mcp.Description("Project name")),
			mcp.WithString("title", mcp.Required(), mcp.Description("Feature title; the identifier is derived from it")),
			mcp.WithString("description", mcp.Description("Feature description")),
			mcp.WithNumber("priority", mcp.Description("Priority; lower merges earlier")),
			mcp.WithString("complexity", mcp.Description("Complexity estimate (small, medium, large, epic)")),
			mcp.WithString("parent", mcp.Description("Parent feature identifier")),
			mcp.WithString("depends_on", mcp.Description("Comma-separated dependency identifiers")),
			mcp.WithString("tags", mcp.Description("Comma-separated tags")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			args := req.GetArguments()
			return toolResult(svc.AddFeature(ctx, stringArg(args, "project"), stringArg(args, "title"), AddFeatureArgs{
				Description: stringArg(args, "description"),
				Priority:    intArg(args, "priority"),
				Complexity:  stringArg(args, "complexity"),
				Parent:      stringArg(args, "parent"),
				DependsOn:   listArg(args, "depends_on"),
				Tags:        listArg(args, "tags"),
			}))
		},
	)
}

func registerUpdateFeature(s *server.MCPServer, svc *Service) {
	s.AddTool(
		mcp.NewTool("update_feature",
			mcp.WithDescription("Update a feature's fields."),
			mcp.WithString("project", mcp.Required(), mcp.Description("Project name")),
			mcp.WithString("id", mcp.Required(), mcp.Description("Feature identifier")),
			mcp.WithString("title", mcp.Description("New title")),
			mcp.WithString("description", mcp.Description("New description")),
			mcp.WithString("status", mcp.Description("New status")),
			mcp.WithNumber("priority", mcp.Description("New priority")),
			mcp.WithString("complexity", mcp.Description("New complexity")),
			mcp.WithString("tags", mcp.Description("Comma-separated replacement tags")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			args := req.GetArguments()
			fields := make(map[string]string)
			for _, key := range []string{"title", "description", "status", "complexity", "tags"} {
				if v, present := args[key].(string); present {
					fields[key] = v
				}
			}
			if v, present := args["priority"].(float64); present {
				fields["priority"] = strconv.Itoa(int(v))
			}
			return toolResult(svc.UpdateFeature(ctx, stringArg(args, "project"), stringArg(args, "id"), fields))
		},
	)
}

func registerDeleteFeature(s *server.MCPServer, svc *Service) {
	s.AddTool(
		mcp.NewTool("delete_feature",
			mcp.WithDescription("Delete a feature from the registry."),
			mcp.WithString("project", mcp.Required(), mcp.Description("Project name")),
			mcp.WithString("id", mcp.Required(), mcp.Description("Feature identifier")),
			mcp.WithBoolean("force", mcp.Description("Delete even when in progress or with children (default: false)")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			args := req.GetArguments()
			return toolResult(svc.DeleteFeature(ctx,
				stringArg(args, "project"), stringArg(args, "id"), boolArg(args, "force")))
		},
	)
}
