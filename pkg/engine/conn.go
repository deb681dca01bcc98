package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"
)

// OpenOptions configures Open.
type OpenOptions struct {
	// Password, when set, is applied with PRAGMA key right after the
	// connection is established. It is not retained.
	Password string
}

// Result summarizes an uncached statement.
type Result struct {
	RowsAffected int64
	LastInsertID int64
}

// Conn is one live SQLite session. It is not safe for concurrent use; the
// caller must serialize every method call.
type Conn struct {
	db     *sql.DB
	conn   *sql.Conn
	path   string
	hook   *hookState
	closed bool
}

// Open establishes a session with the database at path. Use ":memory:"
// for a private in-memory database.
func Open(ctx context.Context, path string, opts OpenOptions) (*Conn, error) {
	encrypted := opts.Password != ""
	fail := func(err error) (*Conn, error) {
		return nil, &OpenError{Path: path, Encrypted: encrypted, Err: err}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return fail(err)
	}
	// One session only: the pool must never open a second connection
	// behind our back, and an in-memory database lives in exactly one.
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(0)
	db.SetConnMaxIdleTime(0)

	conn, err := db.Conn(ctx)
	if err != nil {
		db.Close()
		return fail(err)
	}
	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		db.Close()
		return fail(err)
	}

	c := &Conn{db: db, conn: conn, path: path}
	if encrypted {
		if err := c.applyKey(ctx, "key", opts.Password); err != nil {
			c.Close()
			return fail(err)
		}
		// A wrong passphrase only shows once a page is read.
		if _, err := conn.ExecContext(ctx, "SELECT count(*) FROM sqlite_master"); err != nil {
			c.Close()
			return fail(err)
		}
	}
	return c, nil
}

// Path returns the path the connection was opened with.
func (c *Conn) Path() string { return c.path }

// Prepare compiles query. The statement stays valid until it is closed or
// the connection is closed. The output columns of a SELECT, WITH or VALUES
// query are available from the returned statement right away.
func (c *Conn) Prepare(ctx context.Context, query string) (*Stmt, error) {
	if c.closed {
		return nil, &PrepareError{SQL: query, Err: ErrClosed}
	}
	st, err := c.conn.PrepareContext(ctx, query)
	if err != nil {
		return nil, &PrepareError{SQL: query, Err: err}
	}
	s := &Stmt{query: query, stmt: st, params: ScanParams(query)}
	s.probe(ctx, c.conn)
	return s, nil
}

// Exec runs query, which may be a script of several statements, without
// preparing it for reuse.
func (c *Conn) Exec(ctx context.Context, query string, args ...any) (Result, error) {
	if c.closed {
		return Result{}, &ExecError{SQL: query, Err: ErrClosed}
	}
	res, err := c.conn.ExecContext(ctx, query, args...)
	if err != nil {
		return Result{}, &ExecError{SQL: query, Err: err}
	}
	var r Result
	// Both are best effort; DDL and scripts have nothing to report.
	r.RowsAffected, _ = res.RowsAffected()
	r.LastInsertID, _ = res.LastInsertId()
	return r, nil
}

// Rekey changes the passphrase of an encrypted database.
func (c *Conn) Rekey(ctx context.Context, password string) error {
	if c.closed {
		return &RekeyError{Err: ErrClosed}
	}
	if err := c.applyKey(ctx, "rekey", password); err != nil {
		return &RekeyError{Err: err}
	}
	return nil
}

// applyKey issues PRAGMA key or PRAGMA rekey after making sure the
// engine understands it; plain SQLite silently ignores unknown pragmas.
func (c *Conn) applyKey(ctx context.Context, pragma, password string) error {
	var version string
	err := c.conn.QueryRowContext(ctx, "PRAGMA cipher_version").Scan(&version)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && version == "") {
		return ErrCipherUnsupported
	}
	if err != nil {
		return fmt.Errorf("probe cipher: %w", err)
	}
	if _, err := c.conn.ExecContext(ctx, fmt.Sprintf("PRAGMA %s = %s", pragma, quoteLiteral(password))); err != nil {
		return fmt.Errorf("pragma %s: %w", pragma, err)
	}
	return nil
}

// Close releases the session. Statements prepared on c must be closed
// first. Close is idempotent.
func (c *Conn) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	if c.hook != nil {
		_ = c.setHook(nil)
	}
	connErr := c.conn.Close()
	dbErr := c.db.Close()
	if err := errors.Join(connErr, dbErr); err != nil {
		return fmt.Errorf("close %s: %w", c.path, err)
	}
	return nil
}

func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
