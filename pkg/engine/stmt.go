package engine

import (
	"context"
	"database/sql"
	"fmt"
	"slices"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/pario-ai/sqlactor/pkg/models"
)

// Stmt is a compiled statement bound to the Conn that prepared it. Like
// its Conn it is not safe for concurrent use.
type Stmt struct {
	query     string
	stmt      *sql.Stmt
	params    []string // parameter names by index, see ScanParams
	columns   []string
	types     []string
	described bool
	executed  bool
	finalized bool
}

// SQL returns the source text the statement was compiled from.
func (s *Stmt) SQL() string { return s.query }

// NumParams returns the number of bind parameters.
func (s *Stmt) NumParams() int { return len(s.params) }

// Shape returns the output column names and declared types. For queries
// they are known once Prepare returns; for other statements they are
// learned on the first execution and are empty before.
func (s *Stmt) Shape() models.Shape {
	return models.Shape{
		Columns: slices.Clone(s.columns),
		Types:   slices.Clone(s.types),
	}
}

// Described reports whether the column metadata is known.
func (s *Stmt) Described() bool { return s.described }

// Finalized reports whether Close has been called.
func (s *Stmt) Finalized() bool { return s.finalized }

// CheckArity returns an *ArityError when args does not match the number
// of parameters of the statement.
func (s *Stmt) CheckArity(args []any) error {
	if len(args) != len(s.params) {
		return &ArityError{SQL: s.query, Want: len(s.params), Got: len(args)}
	}
	return nil
}

// Fetch binds args positionally, executes the statement and passes the
// resulting rows to emit in chunks of at most chunkSize rows. Each row
// holds the driver values of one result row in column order. An error
// returned by emit stops the fetch and is returned unchanged.
func (s *Stmt) Fetch(ctx context.Context, args []any, chunkSize int, emit func(rows [][]any) error) error {
	if s.finalized {
		return &FetchError{SQL: s.query, Err: ErrFinalized}
	}
	if err := s.CheckArity(args); err != nil {
		return err
	}
	if chunkSize <= 0 {
		chunkSize = 1
	}

	rows, err := s.stmt.QueryContext(ctx, bindArgs(s.params, args)...)
	if err != nil {
		return &FetchError{SQL: s.query, Err: err}
	}
	defer rows.Close()

	// The first execution is authoritative; a probe may name duplicate
	// columns differently.
	if !s.executed {
		if err := s.describe(rows); err != nil {
			return &FetchError{SQL: s.query, Err: err}
		}
		s.executed = true
	}

	n := len(s.columns)
	var chunk [][]any
	for rows.Next() {
		vals := make([]any, n)
		ptrs := make([]any, n)
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return &FetchError{SQL: s.query, Err: err}
		}
		chunk = append(chunk, vals)
		if len(chunk) == chunkSize {
			if err := emit(chunk); err != nil {
				return err
			}
			chunk = nil
		}
	}
	if err := rows.Err(); err != nil {
		return &FetchError{SQL: s.query, Err: err}
	}
	if len(chunk) > 0 {
		return emit(chunk)
	}
	return nil
}

func (s *Stmt) describe(rows *sql.Rows) error {
	cols, err := rows.Columns()
	if err != nil {
		return fmt.Errorf("columns: %w", err)
	}
	cts, err := rows.ColumnTypes()
	if err != nil {
		return fmt.Errorf("column types: %w", err)
	}
	types := make([]string, len(cts))
	for i, ct := range cts {
		types[i] = ct.DatabaseTypeName()
	}
	s.columns = cols
	s.types = types
	s.described = true
	return nil
}

// bindArgs maps positional values onto the statement's parameters. The
// driver binds ":name", "@name" and "$name" parameters by name only.
func bindArgs(names []string, args []any) []any {
	out := make([]any, len(args))
	for i, v := range args {
		if name := bindName(names[i]); name != "" {
			out[i] = sql.Named(name, v)
			continue
		}
		out[i] = v
	}
	return out
}

// bindName returns the name database/sql accepts for a named parameter,
// or "" when the parameter has to be bound by position.
func bindName(param string) string {
	if len(param) < 2 || param[0] == '?' {
		return ""
	}
	name := param[1:]
	r, _ := utf8.DecodeRuneInString(name)
	if !unicode.IsLetter(r) {
		return ""
	}
	return name
}

// probe learns the output columns of a query without running it, by
// compiling it as a subquery limited to zero rows. Statements that cannot
// be wrapped are left undescribed.
func (s *Stmt) probe(ctx context.Context, conn *sql.Conn) {
	if !isQuery(s.query) {
		return
	}
	body := strings.TrimRight(strings.TrimSpace(s.query), ";")
	rows, err := conn.QueryContext(ctx, "SELECT * FROM (\n"+body+"\n) LIMIT 0",
		bindArgs(s.params, make([]any, len(s.params)))...)
	if err != nil {
		return
	}
	defer rows.Close()
	_ = s.describe(rows)
}

// isQuery reports whether query starts with a keyword that can head a
// subquery.
func isQuery(query string) bool {
	sql := []byte(query)
	pos := 0
	for pos < len(sql) {
		switch c := sql[pos]; {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			pos++
		case c == '-' && pos+1 < len(sql) && sql[pos+1] == '-':
			pos = skipSingleLineComment(sql, pos)
		case c == '/' && pos+1 < len(sql) && sql[pos+1] == '*':
			pos = skipMultiLineComment(sql, pos)
		default:
			end := pos
			for end < len(sql) && isIdentChar(sql[end]) {
				end++
			}
			switch strings.ToUpper(string(sql[pos:end])) {
			case "SELECT", "WITH", "VALUES":
				return true
			}
			return false
		}
	}
	return false
}

// Close finalizes the statement. It is idempotent.
func (s *Stmt) Close() error {
	if s.finalized {
		return nil
	}
	s.finalized = true
	if err := s.stmt.Close(); err != nil {
		return fmt.Errorf("finalize %q: %w", s.query, err)
	}
	return nil
}
