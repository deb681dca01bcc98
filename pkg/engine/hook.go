package engine

import (
	"errors"
	"strings"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/pario-ai/sqlactor/pkg/models"
)

// hookState buffers row changes of the open transaction and hands them
// over once the transaction commits.
type hookState struct {
	deliver func([]models.ChangeEvent)
	pending []models.ChangeEvent
}

func (h *hookState) preUpdate(d sqlite.SQLitePreUpdateData) {
	if strings.HasPrefix(d.TableName, "sqlite_") {
		return
	}
	var action models.Action
	switch d.Op {
	case sqlite3.SQLITE_INSERT:
		action = models.ActionInsert
	case sqlite3.SQLITE_UPDATE:
		action = models.ActionUpdate
	case sqlite3.SQLITE_DELETE:
		action = models.ActionDelete
	default:
		return
	}
	// OldRowID holds the full rowid for all three operations; for an
	// INSERT it is the rowid of the new row.
	h.pending = append(h.pending, models.ChangeEvent{
		Action: action,
		Table:  d.TableName,
		RowID:  d.OldRowID,
	})
}

func (h *hookState) commit() int32 {
	batch := h.pending
	h.pending = nil
	if len(batch) > 0 {
		h.deliver(batch)
	}
	return 0
}

func (h *hookState) rollback() {
	h.pending = nil
}

// SetUpdateHook registers fn to receive the row changes of every
// committed transaction, in order, on the goroutine that ran the commit.
// Changes of rolled back transactions are dropped. fn must not use the
// connection. A nil fn removes the hook.
func (c *Conn) SetUpdateHook(fn func([]models.ChangeEvent)) error {
	if c.closed {
		return ErrClosed
	}
	return c.setHook(fn)
}

func (c *Conn) setHook(fn func([]models.ChangeEvent)) error {
	return c.conn.Raw(func(driverConn any) error {
		hr, ok := driverConn.(sqlite.HookRegisterer)
		if !ok {
			return errors.New("driver connection does not support hooks")
		}
		if fn == nil {
			hr.RegisterPreUpdateHook(nil)
			hr.RegisterCommitHook(nil)
			hr.RegisterRollbackHook(nil)
			c.hook = nil
			return nil
		}
		h := &hookState{deliver: fn}
		hr.RegisterPreUpdateHook(h.preUpdate)
		hr.RegisterCommitHook(h.commit)
		hr.RegisterRollbackHook(h.rollback)
		c.hook = h
		return nil
	})
}

// ChangeMark returns a position in the buffer of uncommitted changes, for
// use with DiscardChangesSince when a savepoint is rolled back. SQLite
// does not fire the rollback hook for ROLLBACK TO.
func (c *Conn) ChangeMark() int {
	if c.hook == nil {
		return 0
	}
	return len(c.hook.pending)
}

// DiscardChangesSince drops buffered changes recorded after mark.
func (c *Conn) DiscardChangesSince(mark int) {
	if c.hook == nil || mark >= len(c.hook.pending) {
		return
	}
	c.hook.pending = c.hook.pending[:mark]
}
