package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/pario-ai/sqlactor/pkg/actor"
)

const (
	toolQuery      = "sql_query"
	toolExec       = "sql_exec"
	toolPrepare    = "sql_prepare"
	toolCacheStats = "sql_cache_stats"
)

// Tool argument structs.

type sqlArgs struct {
	SQL  string `json:"sql"`
	Args []any  `json:"args"`
}

// toolHandler is a function that handles a tool call.
type toolHandler func(ctx context.Context, s *Server, args json.RawMessage) ToolCallResult

// toolHandlers maps tool names to their handlers.
var toolHandlers = map[string]toolHandler{
	toolQuery:      handleQuery,
	toolExec:       handleExec,
	toolPrepare:    handlePrepare,
	toolCacheStats: handleCacheStats,
}

var sqlSchema = map[string]any{
	"type":     "object",
	"required": []string{"sql"},
	"properties": map[string]any{
		"sql": map[string]any{
			"type":        "string",
			"description": "SQL text of a single statement",
		},
		"args": map[string]any{
			"type":        "array",
			"description": "Positional bind values, one per parameter",
		},
	},
}

// allTools is the list of tool definitions exposed via tools/list.
var allTools = []ToolDefinition{
	{
		Name:        toolQuery,
		Description: "Run a SQL statement with positional bind values and return the rows as a table. Statements are cached by exact text.",
		InputSchema: sqlSchema,
	},
	{
		Name:        toolExec,
		Description: "Execute SQL without caching it, e.g. DDL or a script of several statements. Reports rows affected.",
		InputSchema: map[string]any{
			"type":     "object",
			"required": []string{"sql"},
			"properties": map[string]any{
				"sql": map[string]any{
					"type":        "string",
					"description": "SQL text, one or more statements",
				},
			},
		},
	},
	{
		Name:        toolPrepare,
		Description: "Compile a statement into the cache and show its output columns and declared types.",
		InputSchema: sqlSchema,
	},
	{
		Name:        toolCacheStats,
		Description: "Show prepared statement cache occupancy, hit rate and the most recently used statements.",
		InputSchema: map[string]any{
			"type":       "object",
			"properties": map[string]any{},
		},
	},
}

func (s *Server) tools() []ToolDefinition {
	if !s.readOnly {
		return allTools
	}
	tools := make([]ToolDefinition, 0, len(allTools))
	for _, t := range allTools {
		if t.Name != toolExec {
			tools = append(tools, t)
		}
	}
	return tools
}

func failure(action string, err error) ToolCallResult {
	return errorResult(fmt.Sprintf("Error %s [%s]: %v", action, actor.ErrorKind(err), err))
}

func parseSQLArgs(rawArgs json.RawMessage) (sqlArgs, error) {
	var args sqlArgs
	if len(rawArgs) > 0 {
		if err := json.Unmarshal(rawArgs, &args); err != nil {
			return args, fmt.Errorf("invalid arguments: %w", err)
		}
	}
	if args.SQL == "" {
		return args, fmt.Errorf("sql is required")
	}
	for i, v := range args.Args {
		if f, ok := v.(float64); ok && f == float64(int64(f)) {
			args.Args[i] = int64(f)
		}
	}
	return args, nil
}

func handleQuery(ctx context.Context, s *Server, rawArgs json.RawMessage) ToolCallResult {
	args, err := parseSQLArgs(rawArgs)
	if err != nil {
		return errorResult(err.Error())
	}
	res, err := s.db.QueryRows(ctx, args.SQL, args.Args)
	if err != nil {
		return failure("running query", err)
	}
	return textResult(formatResult(res))
}

func handleExec(ctx context.Context, s *Server, rawArgs json.RawMessage) ToolCallResult {
	args, err := parseSQLArgs(rawArgs)
	if err != nil {
		return errorResult(err.Error())
	}
	res, err := s.db.Exec(ctx, args.SQL)
	if err != nil {
		return failure("executing statement", err)
	}
	return textResult(fmt.Sprintf("OK: %d rows affected, last insert id %d.", res.RowsAffected, res.LastInsertID))
}

func handlePrepare(ctx context.Context, s *Server, rawArgs json.RawMessage) ToolCallResult {
	args, err := parseSQLArgs(rawArgs)
	if err != nil {
		return errorResult(err.Error())
	}
	shape, err := s.db.Prepare(ctx, args.SQL)
	if err != nil {
		return failure("preparing statement", err)
	}
	return textResult(formatShape(shape))
}

func handleCacheStats(ctx context.Context, s *Server, _ json.RawMessage) ToolCallResult {
	stats, err := s.db.CacheStats(ctx)
	if err != nil {
		return failure("fetching cache stats", err)
	}
	return textResult(formatCacheStats(stats))
}
