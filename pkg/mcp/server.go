// Package mcp serves an actor's query tools over the Model Context
// Protocol (JSON-RPC 2.0, one message per line on stdio).
package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/pario-ai/sqlactor/pkg/actor"
	"github.com/pario-ai/sqlactor/pkg/engine"
	"github.com/pario-ai/sqlactor/pkg/models"
)

// Database is the subset of *actor.Conn the tools need.
type Database interface {
	Exec(ctx context.Context, query string, opts ...actor.Option) (engine.Result, error)
	Prepare(ctx context.Context, query string, opts ...actor.Option) (models.Shape, error)
	QueryRows(ctx context.Context, query string, args []any, opts ...actor.Option) (*models.Result, error)
	CacheStats(ctx context.Context, opts ...actor.Option) (models.CacheStats, error)
}

// Server is a minimal MCP server that communicates over stdio using JSON-RPC 2.0.
type Server struct {
	db       Database
	version  string
	readOnly bool
	logger   *slog.Logger
}

// New creates a new MCP Server. With readOnly set the sql_exec tool is
// not offered. A nil logger discards output.
func New(db Database, version string, readOnly bool, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Server{
		db:       db,
		version:  version,
		readOnly: readOnly,
		logger:   logger,
	}
}

// Run reads JSON-RPC requests from r line-by-line and writes responses to w.
// It blocks until r is closed or ctx is cancelled.
func (s *Server) Run(ctx context.Context, r io.Reader, w io.Writer) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 1024*1024), 1024*1024)

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var req Request
		if err := json.Unmarshal(line, &req); err != nil {
			s.writeResponse(w, errorResponse(nil, CodeParseError, "parse error"))
			continue
		}

		resp := s.dispatch(ctx, &req)
		if resp == nil || req.IsNotification() {
			continue
		}
		s.writeResponse(w, resp)
	}
	return scanner.Err()
}

func (s *Server) dispatch(ctx context.Context, req *Request) *Response {
	switch req.Method {
	case "initialize":
		return resultResponse(req.ID, InitializeResult{
			ProtocolVersion: protocolVersion,
			ServerInfo:      ServerInfo{Name: "sqlactor", Version: s.version},
			Capabilities:    map[string]any{"tools": map[string]any{}},
		})
	case "notifications/initialized":
		return nil
	case "tools/list":
		return resultResponse(req.ID, ToolsListResult{Tools: s.tools()})
	case "tools/call":
		return s.handleToolsCall(ctx, req)
	default:
		return errorResponse(req.ID, CodeMethodNotFound, fmt.Sprintf("unknown method: %s", req.Method))
	}
}

func (s *Server) handleToolsCall(ctx context.Context, req *Request) *Response {
	var params ToolCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errorResponse(req.ID, CodeInvalidParams, "invalid params")
	}

	handler, ok := toolHandlers[params.Name]
	if !ok || (s.readOnly && params.Name == toolExec) {
		return resultResponse(req.ID, errorResult(fmt.Sprintf("unknown tool: %s", params.Name)))
	}

	s.logger.Debug("tool call", "tool", params.Name)
	return resultResponse(req.ID, handler(ctx, s, params.Arguments))
}

func (s *Server) writeResponse(w io.Writer, resp *Response) {
	data, err := json.Marshal(resp)
	if err != nil {
		s.logger.Error("marshal response", "error", err)
		return
	}
	data = append(data, '\n')
	if _, err := w.Write(data); err != nil {
		s.logger.Error("write response", "error", err)
	}
}
