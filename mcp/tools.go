// Package mcp exposes the query proxy as MCP tools over stdio, for
// agent clients that speak tool calls instead of HTTP.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	goMCP "github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/queryproxy/queryproxy/databases"
	"github.com/queryproxy/queryproxy/validator"
)

// RegisterTools adds the three proxy operations to the MCP server.
func RegisterTools(s *server.MCPServer, connector databases.Connector, v *validator.Validator) {
	listTool := goMCP.NewTool("list_tables",
		goMCP.WithDescription("Get a paginated list of database tables with metadata"),
		goMCP.WithNumber("page",
			goMCP.Description("Page number, 1-based (default: 1)"),
		),
		goMCP.WithNumber("page_size",
			goMCP.Description("Tables per page, max 100 (default: 10)"),
		),
	)

	schemaTool := goMCP.NewTool("get_table_schema",
		goMCP.WithDescription("Get the full schema of a table: columns, keys, and indexes"),
		goMCP.WithString("table_name",
			goMCP.Required(),
			goMCP.Description("Name of the table"),
		),
	)

	queryTool := goMCP.NewTool("execute_query",
		goMCP.WithDescription("Execute a read-only SQL query (SELECT statements only)"),
		goMCP.WithString("query",
			goMCP.Required(),
			goMCP.Description("SQL query to execute"),
		),
	)

	s.AddTool(listTool, listTablesHandler(connector))
	s.AddTool(schemaTool, tableSchemaHandler(connector))
	s.AddTool(queryTool, executeQueryHandler(connector, v))
}

func listTablesHandler(connector databases.Connector) func(context.Context, goMCP.CallToolRequest) (*goMCP.CallToolResult, error) {
	return func(ctx context.Context, request goMCP.CallToolRequest) (*goMCP.CallToolResult, error) {
		page := intArgument(request, "page", 1)
		pageSize := intArgument(request, "page_size", 10)
		if page < 1 || pageSize < 1 || pageSize > 100 {
			return goMCP.NewToolResultError("page must be >= 1 and page_size between 1 and 100"), nil
		}

		tables, pagination, err := connector.ListTables(ctx, page, pageSize)
		if err != nil {
			return goMCP.NewToolResultError(fmt.Sprintf("List tables failed: %v", err)), nil
		}

		return jsonResult(map[string]any{
			"tables":     tables,
			"pagination": pagination,
		})
	}
}

func tableSchemaHandler(connector databases.Connector) func(context.Context, goMCP.CallToolRequest) (*goMCP.CallToolResult, error) {
	return func(ctx context.Context, request goMCP.CallToolRequest) (*goMCP.CallToolResult, error) {
		tableName, err := request.RequireString("table_name")
		if err != nil {
			return goMCP.NewToolResultError(fmt.Sprintf("Missing table_name parameter: %v", err)), nil
		}

		schema, err := connector.GetTableSchema(ctx, tableName)
		if err != nil {
			return goMCP.NewToolResultError(fmt.Sprintf("Get schema failed: %v", err)), nil
		}

		return jsonResult(schema)
	}
}

func executeQueryHandler(connector databases.Connector, v *validator.Validator) func(context.Context, goMCP.CallToolRequest) (*goMCP.CallToolResult, error) {
	return func(ctx context.Context, request goMCP.CallToolRequest) (*goMCP.CallToolResult, error) {
		query, err := request.RequireString("query")
		if err != nil {
			return goMCP.NewToolResultError(fmt.Sprintf("Missing query parameter: %v", err)), nil
		}

		if verdict := v.Validate(query); !verdict.Allowed {
			return goMCP.NewToolResultError(verdict.Reason), nil
		}

		result, err := connector.Execute(ctx, query)
		if err != nil {
			return goMCP.NewToolResultError(fmt.Sprintf("Query failed: %v", err)), nil
		}

		return jsonResult(result)
	}
}

func intArgument(request goMCP.CallToolRequest, name string, def int) int {
	args, ok := request.Params.Arguments.(map[string]any)
	if !ok {
		return def
	}
	raw, exists := args[name]
	if !exists {
		return def
	}
	if num, ok := raw.(float64); ok {
		return int(num)
	}
	return def
}

func jsonResult(v any) (*goMCP.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return goMCP.NewToolResultError(fmt.Sprintf("Failed to marshal results: %v", err)), nil
	}
	return goMCP.NewToolResultText(string(data)), nil
}
