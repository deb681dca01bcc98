package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/pario-ai/sqlactor/pkg/actor"
	"github.com/pario-ai/sqlactor/pkg/models"
)

func setupServer(t *testing.T) (*Server, *actor.Conn) {
	t.Helper()
	db, err := actor.Open(context.Background(), ":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	if _, err := db.Exec(context.Background(), `CREATE TABLE t (a INTEGER, b TEXT);
		INSERT INTO t VALUES (1, 'one'), (2, 'two');`); err != nil {
		t.Fatal(err)
	}
	return New(db, ":0", nil), db
}

func post(t *testing.T, srv *Server, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) ErrorBody {
	t.Helper()
	var resp errorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode error body %q: %v", w.Body.String(), err)
	}
	return resp.Error
}

func TestQueryRecords(t *testing.T) {
	srv, _ := setupServer(t)

	w := post(t, srv, "/v1/query", `{"sql":"SELECT a, b FROM t WHERE a >= ? ORDER BY a","args":[1]}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp struct {
		Records [][]struct {
			Name  string `json:"name"`
			Value any    `json:"value"`
		} `json:"records"`
		Count int `json:"count"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Count != 2 {
		t.Fatalf("expected 2 rows, got %d", resp.Count)
	}
	if resp.Records[1][1].Name != "b" || resp.Records[1][1].Value != "two" {
		t.Errorf("unexpected record: %+v", resp.Records[1])
	}
}

func TestQueryShapes(t *testing.T) {
	srv, _ := setupServer(t)

	w := post(t, srv, "/v1/query", `{"sql":"SELECT b FROM t ORDER BY a","shape":"lists"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var lists QueryResponse
	if err := json.Unmarshal(w.Body.Bytes(), &lists); err != nil {
		t.Fatal(err)
	}
	if len(lists.Rows) != 2 || lists.Rows[0][0] != "one" || lists.Columns[0] != "b" {
		t.Errorf("unexpected lists response: %+v", lists)
	}

	w = post(t, srv, "/v1/query", `{"sql":"SELECT b FROM t WHERE a = :a","args":[2],"shape":"maps"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var maps QueryResponse
	if err := json.Unmarshal(w.Body.Bytes(), &maps); err != nil {
		t.Fatal(err)
	}
	if len(maps.Maps) != 1 || maps.Maps[0]["b"] != "two" {
		t.Errorf("unexpected maps response: %+v", maps)
	}

	w = post(t, srv, "/v1/query", `{"sql":"SELECT 1","shape":"cubes"}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for unknown shape, got %d", w.Code)
	}
}

func TestQueryErrors(t *testing.T) {
	srv, _ := setupServer(t)

	tests := []struct {
		body string
		code int
		kind string
	}{
		{`{"sql":"SELECT ?","args":[]}`, http.StatusBadRequest, "bind_arity"},
		{`{"sql":"SELEC 1"}`, http.StatusBadRequest, "prepare"},
		{`{"sql":""}`, http.StatusBadRequest, "request"},
		{`not json`, http.StatusBadRequest, "request"},
	}
	for _, tt := range tests {
		w := post(t, srv, "/v1/query", tt.body)
		if w.Code != tt.code {
			t.Errorf("%s: expected %d, got %d", tt.body, tt.code, w.Code)
			continue
		}
		if e := decodeError(t, w); e.Kind != tt.kind || e.Message == "" {
			t.Errorf("%s: expected kind %s, got %+v", tt.body, tt.kind, e)
		}
	}
}

func TestExecAndPrepare(t *testing.T) {
	srv, _ := setupServer(t)

	w := post(t, srv, "/v1/exec", `{"sql":"INSERT INTO t VALUES (3, 'three')"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var res ExecResponse
	if err := json.Unmarshal(w.Body.Bytes(), &res); err != nil {
		t.Fatal(err)
	}
	if res.RowsAffected != 1 || res.LastInsertID != 3 {
		t.Errorf("unexpected exec response: %+v", res)
	}

	w = post(t, srv, "/v1/exec", `{"sql":"INSERT INTO missing VALUES (1)"}`)
	if w.Code != http.StatusUnprocessableEntity {
		t.Errorf("expected 422, got %d", w.Code)
	}
	if e := decodeError(t, w); e.Kind != "exec" {
		t.Errorf("expected kind exec, got %+v", e)
	}

	w = post(t, srv, "/v1/prepare", `{"sql":"SELECT a, b FROM t"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var shape models.Shape
	if err := json.Unmarshal(w.Body.Bytes(), &shape); err != nil {
		t.Fatal(err)
	}
	if len(shape.Columns) != 2 || shape.Types[0] != "INTEGER" {
		t.Errorf("unexpected shape: %+v", shape)
	}
}

func TestStats(t *testing.T) {
	srv, _ := setupServer(t)
	post(t, srv, "/v1/query", `{"sql":"SELECT 1"}`)
	post(t, srv, "/v1/query", `{"sql":"SELECT 1"}`)

	req := httptest.NewRequest(http.MethodGet, "/v1/stats", nil)
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var stats models.CacheStats
	if err := json.Unmarshal(w.Body.Bytes(), &stats); err != nil {
		t.Fatal(err)
	}
	if stats.Hits != 1 || stats.Misses != 1 || stats.Capacity != 20 {
		t.Errorf("unexpected stats: %+v", stats)
	}

	req = httptest.NewRequest(http.MethodPost, "/v1/stats", nil)
	w = httptest.NewRecorder()
	srv.ServeHTTP(w, req)
	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected 405, got %d", w.Code)
	}
}

func TestCBOR(t *testing.T) {
	srv, _ := setupServer(t)

	body, err := encMode.Marshal(Request{SQL: "SELECT a FROM t WHERE a = ?", Args: []any{2}, Shape: ShapeLists})
	if err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest(http.MethodPost, "/v1/query", bytes.NewReader(body))
	req.Header.Set("Content-Type", contentTypeCBOR)
	req.Header.Set("Accept", contentTypeCBOR)
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != contentTypeCBOR {
		t.Errorf("expected CBOR response, got %s", ct)
	}
	var resp QueryResponse
	if err := decMode.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Count != 1 || len(resp.Rows) != 1 {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if v, ok := resp.Rows[0][0].(uint64); !ok || v != 2 {
		t.Errorf("expected 2, got %#v", resp.Rows[0][0])
	}
}

func TestStoppedActor(t *testing.T) {
	srv, db := setupServer(t)
	db.Close()

	w := post(t, srv, "/v1/query", `{"sql":"SELECT 1"}`)
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", w.Code)
	}
	if e := decodeError(t, w); e.Kind != "no_such_actor" {
		t.Errorf("expected kind no_such_actor, got %+v", e)
	}
}

func TestListenAndServeShutdown(t *testing.T) {
	srv, _ := setupServer(t)
	srv.listen = "127.0.0.1:0"
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe(ctx) }()
	cancel()
	if err := <-errCh; err != nil && err != http.ErrServerClosed {
		t.Errorf("unexpected shutdown error: %v", err)
	}
}
