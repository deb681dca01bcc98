package actor

import (
	"context"
	"fmt"

	"github.com/pario-ai/sqlactor/pkg/config"
)

// TxFunc is the body of a transaction. ctx carries the actor's owner
// token: calls to c made with it run inside the transaction.
type TxFunc func(ctx context.Context, c *Conn) error

// WithTransaction runs fn inside BEGIN/COMMIT while holding the actor.
//
// If fn returns an error the transaction is rolled back and that error is
// returned. If fn panics the transaction is rolled back and the panic
// continues with its original value and stack. If COMMIT fails its error
// is returned and no rollback is attempted; the engine decides whether
// the transaction is still open.
//
// Called with a context from an enclosing transaction body,
// WithTransaction nests through a savepoint.
func (c *Conn) WithTransaction(ctx context.Context, fn TxFunc, opts ...Option) error {
	s := c.resolve(opts)
	if sess := c.owner(ctx); sess != nil {
		sess.mu.Unlock()
		return c.savepoint(ctx, s, sess, fn)
	}

	sess, err := c.acquire(ctx, s)
	if err != nil {
		return err
	}
	defer sess.release()

	tctx := context.WithValue(ctx, ownerKey{}, sess)
	if err := c.execIn(tctx, s, sess, "BEGIN"); err != nil {
		return err
	}

	finished := false
	defer func() {
		if !finished {
			c.undo(tctx, s, sess, "ROLLBACK")
		}
	}()
	err = fn(tctx, c)
	finished = true

	if err != nil {
		c.undo(tctx, s, sess, "ROLLBACK")
		return err
	}
	if err := c.execIn(tctx, s, sess, "COMMIT"); err != nil {
		c.logger.Warn("commit failed", "error", err)
		return err
	}
	return nil
}

// Transact runs fn as a transaction on c and returns its value.
func Transact[T any](ctx context.Context, c *Conn, fn func(ctx context.Context, c *Conn) (T, error), opts ...Option) (T, error) {
	var out T
	err := c.WithTransaction(ctx, func(ctx context.Context, c *Conn) error {
		v, err := fn(ctx, c)
		if err != nil {
			return err
		}
		out = v
		return nil
	}, opts...)
	if err != nil {
		var zero T
		return zero, err
	}
	return out, nil
}

func (c *Conn) savepoint(ctx context.Context, s config.Settings, sess *session, fn TxFunc) error {
	name := fmt.Sprintf("sqlactor_sp_%d", c.savepoints.Add(1))

	var mark int
	err := sess.run(ctx, s, func(ctx context.Context) error {
		mark = c.db.ChangeMark()
		_, err := c.db.Exec(ctx, "SAVEPOINT "+name)
		return err
	})
	if err != nil {
		return err
	}

	rollback := func() {
		err := sess.run(ctx, s, func(ctx context.Context) error {
			if _, err := c.db.Exec(ctx, "ROLLBACK TO "+name); err != nil {
				return err
			}
			c.db.DiscardChangesSince(mark)
			_, err := c.db.Exec(ctx, "RELEASE "+name)
			return err
		})
		if err != nil {
			c.logger.Warn("rollback savepoint", "savepoint", name, "error", err)
		}
	}

	finished := false
	defer func() {
		if !finished {
			rollback()
		}
	}()
	err = fn(ctx, c)
	finished = true

	if err != nil {
		rollback()
		return err
	}
	return c.execIn(ctx, s, sess, "RELEASE "+name)
}

func (c *Conn) execIn(ctx context.Context, s config.Settings, sess *session, stmt string) error {
	return sess.run(ctx, s, func(ctx context.Context) error {
		_, err := c.db.Exec(ctx, stmt)
		return err
	})
}

// undo rolls back after a failed body. Its own failure is logged; the
// body's failure is what the caller sees.
func (c *Conn) undo(ctx context.Context, s config.Settings, sess *session, stmt string) {
	if err := c.execIn(ctx, s, sess, stmt); err != nil {
		c.logger.Warn("rollback failed", "error", err)
		return
	}
	c.logger.Debug("transaction rolled back")
}
