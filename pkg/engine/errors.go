package engine

import (
	"errors"
	"fmt"

	"modernc.org/sqlite"
)

var (
	// ErrBindArity matches every *ArityError.
	ErrBindArity = errors.New("bind arity mismatch")
	// ErrCipherUnsupported is reported when a passphrase is supplied but
	// the linked SQLite build has no encryption extension.
	ErrCipherUnsupported = errors.New("sqlite build has no cipher support")
	// ErrClosed is returned by operations on a closed connection.
	ErrClosed = errors.New("connection closed")
	// ErrFinalized is returned when a finalized statement is executed.
	ErrFinalized = errors.New("statement finalized")
)

// OpenError reports a failure to establish a connection.
type OpenError struct {
	Path      string
	Encrypted bool // a passphrase was supplied
	Err       error
}

func (e *OpenError) Error() string {
	if e.Encrypted {
		return fmt.Sprintf("open %s (encrypted): %v", e.Path, e.Err)
	}
	return fmt.Sprintf("open %s: %v", e.Path, e.Err)
}

func (e *OpenError) Unwrap() error { return e.Err }

// RekeyError reports a failure to change the database passphrase.
type RekeyError struct {
	Err error
}

func (e *RekeyError) Error() string { return fmt.Sprintf("rekey: %v", e.Err) }

func (e *RekeyError) Unwrap() error { return e.Err }

// PrepareError carries the engine's diagnostic for a statement that
// failed to compile.
type PrepareError struct {
	SQL string
	Err error
}

func (e *PrepareError) Error() string { return fmt.Sprintf("prepare %q: %v", e.SQL, e.Err) }

func (e *PrepareError) Unwrap() error { return e.Err }

// ArityError is returned before binding when the number of bind values
// differs from the number of parameters the statement declares.
type ArityError struct {
	SQL  string
	Want int
	Got  int
}

func (e *ArityError) Error() string {
	return fmt.Sprintf("bind %q: statement expects %d parameters, got %d", e.SQL, e.Want, e.Got)
}

// Is reports whether target is ErrBindArity.
func (e *ArityError) Is(target error) bool { return target == ErrBindArity }

// FetchError reports a failure while executing a prepared statement or
// reading its rows.
type FetchError struct {
	SQL string
	Err error
}

func (e *FetchError) Error() string { return fmt.Sprintf("fetch %q: %v", e.SQL, e.Err) }

func (e *FetchError) Unwrap() error { return e.Err }

// ExecError reports a failure of an uncached statement.
type ExecError struct {
	SQL string
	Err error
}

func (e *ExecError) Error() string { return fmt.Sprintf("exec %q: %v", e.SQL, e.Err) }

func (e *ExecError) Unwrap() error { return e.Err }

// Code returns the SQLite result code carried by err, if any.
func Code(err error) (int, bool) {
	var se *sqlite.Error
	if errors.As(err, &se) {
		return se.Code(), true
	}
	return 0, false
}

// Kind names the error category of err for wire protocols. It returns
// "" for nil.
func Kind(err error) string {
	var (
		openErr    *OpenError
		rekeyErr   *RekeyError
		prepareErr *PrepareError
		fetchErr   *FetchError
		execErr    *ExecError
	)
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrBindArity):
		return "bind_arity"
	case errors.As(err, &openErr):
		return "open"
	case errors.As(err, &rekeyErr):
		return "rekey"
	case errors.As(err, &prepareErr):
		return "prepare"
	case errors.As(err, &fetchErr):
		return "fetch"
	case errors.As(err, &execErr):
		return "exec"
	case errors.Is(err, ErrClosed):
		return "closed"
	}
	if _, ok := Code(err); ok {
		return "engine"
	}
	return "unknown"
}
