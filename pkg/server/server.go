// Package server exposes an actor over HTTP with JSON or CBOR bodies.
package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/pario-ai/sqlactor/pkg/actor"
	"github.com/pario-ai/sqlactor/pkg/engine"
	"github.com/pario-ai/sqlactor/pkg/hydrate"
	"github.com/pario-ai/sqlactor/pkg/models"
)

// Database is the subset of *actor.Conn the server needs.
type Database interface {
	Exec(ctx context.Context, query string, opts ...actor.Option) (engine.Result, error)
	Prepare(ctx context.Context, query string, opts ...actor.Option) (models.Shape, error)
	Query(ctx context.Context, query string, args []any, opts ...actor.Option) ([]hydrate.Record, error)
	QueryRows(ctx context.Context, query string, args []any, opts ...actor.Option) (*models.Result, error)
	QueryMaps(ctx context.Context, query string, args []any, newContainer func() hydrate.Container, opts ...actor.Option) ([]hydrate.Container, error)
	CacheStats(ctx context.Context, opts ...actor.Option) (models.CacheStats, error)
}

// Result shapes accepted by /v1/query.
const (
	ShapeRecords = "records"
	ShapeMaps    = "maps"
	ShapeLists   = "lists"
)

// Request is the body of /v1/query, /v1/exec and /v1/prepare.
type Request struct {
	SQL   string `json:"sql" cbor:"sql"`
	Args  []any  `json:"args,omitempty" cbor:"args,omitempty"`
	Shape string `json:"shape,omitempty" cbor:"shape,omitempty"`
	// TimeoutMS overrides the call timeout for this request.
	TimeoutMS int64 `json:"timeout_ms,omitempty" cbor:"timeout_ms,omitempty"`
}

// ExecResponse is the body returned by /v1/exec.
type ExecResponse struct {
	RowsAffected int64 `json:"rows_affected" cbor:"rows_affected"`
	LastInsertID int64 `json:"last_insert_id" cbor:"last_insert_id"`
}

// QueryResponse is the body returned by /v1/query. Exactly one of
// Records, Maps and Rows is set, according to the requested shape.
type QueryResponse struct {
	Columns []string         `json:"columns,omitempty" cbor:"columns,omitempty"`
	Types   []string         `json:"types,omitempty" cbor:"types,omitempty"`
	Records []hydrate.Record `json:"records,omitempty" cbor:"records,omitempty"`
	Maps    []map[string]any `json:"maps,omitempty" cbor:"maps,omitempty"`
	Rows    [][]any          `json:"rows,omitempty" cbor:"rows,omitempty"`
	Count   int              `json:"count" cbor:"count"`
}

// ErrorBody carries the kind and message of a failed request.
type ErrorBody struct {
	Kind    string `json:"kind" cbor:"kind"`
	Message string `json:"message" cbor:"message"`
}

type errorResponse struct {
	Error ErrorBody `json:"error" cbor:"error"`
}

// Server serves a Database over HTTP.
type Server struct {
	db     Database
	listen string
	logger *slog.Logger
	mux    *http.ServeMux
}

// New creates a Server for db listening on addr. A nil logger discards
// output.
func New(db Database, addr string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	s := &Server{
		db:     db,
		listen: addr,
		logger: logger,
		mux:    http.NewServeMux(),
	}
	s.mux.HandleFunc("/v1/query", s.handleQuery)
	s.mux.HandleFunc("/v1/exec", s.handleExec)
	s.mux.HandleFunc("/v1/prepare", s.handlePrepare)
	s.mux.HandleFunc("/v1/stats", s.handleStats)
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// ListenAndServe starts the server and shuts it down gracefully when ctx
// is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:    s.listen,
		Handler: s,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("sqlactor listening", "addr", s.listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	case err := <-errCh:
		return err
	}
}

func (s *Server) readRequest(w http.ResponseWriter, r *http.Request) (*Request, bool) {
	if r.Method != http.MethodPost {
		writeError(w, r, http.StatusMethodNotAllowed, "method", "method not allowed")
		return nil, false
	}
	var req Request
	if err := decodeRequest(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "request", err.Error())
		return nil, false
	}
	if req.SQL == "" {
		writeError(w, r, http.StatusBadRequest, "request", "sql is required")
		return nil, false
	}
	req.Args = normalizeArgs(req.Args)
	return &req, true
}

func (req *Request) options() []actor.Option {
	if req.TimeoutMS <= 0 {
		return nil
	}
	return []actor.Option{actor.WithCallTimeout(time.Duration(req.TimeoutMS) * time.Millisecond)}
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	req, ok := s.readRequest(w, r)
	if !ok {
		return
	}
	ctx := r.Context()

	var resp QueryResponse
	switch req.Shape {
	case "", ShapeRecords:
		recs, err := s.db.Query(ctx, req.SQL, req.Args, req.options()...)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		resp.Records, resp.Count = recs, len(recs)
	case ShapeMaps:
		cs, err := s.db.QueryMaps(ctx, req.SQL, req.Args, hydrate.NewMapContainer, req.options()...)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		resp.Maps = make([]map[string]any, len(cs))
		for i, c := range cs {
			resp.Maps[i] = c.(hydrate.MapContainer)
		}
		resp.Count = len(cs)
	case ShapeLists:
		res, err := s.db.QueryRows(ctx, req.SQL, req.Args, req.options()...)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		resp.Columns, resp.Types, resp.Rows, resp.Count = res.Columns, res.Types, res.Rows, len(res.Rows)
	default:
		writeError(w, r, http.StatusBadRequest, "request", "unknown shape "+req.Shape)
		return
	}
	writeResponse(w, r, http.StatusOK, resp)
}

func (s *Server) handleExec(w http.ResponseWriter, r *http.Request) {
	req, ok := s.readRequest(w, r)
	if !ok {
		return
	}
	if len(req.Args) > 0 {
		writeError(w, r, http.StatusBadRequest, "request", "exec takes no args; use /v1/query")
		return
	}
	res, err := s.db.Exec(r.Context(), req.SQL, req.options()...)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeResponse(w, r, http.StatusOK, ExecResponse{RowsAffected: res.RowsAffected, LastInsertID: res.LastInsertID})
}

func (s *Server) handlePrepare(w http.ResponseWriter, r *http.Request) {
	req, ok := s.readRequest(w, r)
	if !ok {
		return
	}
	shape, err := s.db.Prepare(r.Context(), req.SQL, req.options()...)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeResponse(w, r, http.StatusOK, shape)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, r, http.StatusMethodNotAllowed, "method", "method not allowed")
		return
	}
	stats, err := s.db.CacheStats(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeResponse(w, r, http.StatusOK, stats)
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	kind := actor.ErrorKind(err)
	code := statusFor(kind)
	if code >= 500 {
		s.logger.Error("request failed", "path", r.URL.Path, "kind", kind, "error", err)
	} else {
		s.logger.Debug("request rejected", "path", r.URL.Path, "kind", kind, "error", err)
	}
	writeError(w, r, code, kind, err.Error())
}

func statusFor(kind string) int {
	switch kind {
	case "bind_arity", "prepare":
		return http.StatusBadRequest
	case "exec", "fetch", "engine":
		return http.StatusUnprocessableEntity
	case "timeout":
		return http.StatusGatewayTimeout
	case "no_such_actor", "closed", "canceled":
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func writeError(w http.ResponseWriter, r *http.Request, code int, kind, message string) {
	writeResponse(w, r, code, errorResponse{Error: ErrorBody{Kind: kind, Message: message}})
}

// normalizeArgs turns decoded numbers into the types the engine binds
// natively: integral numbers become int64.
func normalizeArgs(args []any) []any {
	for i, v := range args {
		switch n := v.(type) {
		case float64:
			if n == float64(int64(n)) {
				args[i] = int64(n)
			}
		case json.Number:
			if iv, err := n.Int64(); err == nil {
				args[i] = iv
			} else if fv, err := n.Float64(); err == nil {
				args[i] = fv
			}
		case uint64:
			if n <= 1<<63-1 {
				args[i] = int64(n)
			}
		}
	}
	return args
}

var _ Database = (*actor.Conn)(nil)
