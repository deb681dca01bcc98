package actor

import (
	"context"

	"github.com/pario-ai/sqlactor/pkg/changes"
	"github.com/pario-ai/sqlactor/pkg/config"
	"github.com/pario-ai/sqlactor/pkg/engine"
	"github.com/pario-ai/sqlactor/pkg/hydrate"
	"github.com/pario-ai/sqlactor/pkg/models"
)

func (c *Conn) resolve(opts []Option) config.Settings {
	return c.settings.Override(collect(opts).cfg)
}

// Exec runs query, which may hold several statements, without preparing
// or caching it. Use it for DDL and one-off statements.
func (c *Conn) Exec(ctx context.Context, query string, opts ...Option) (engine.Result, error) {
	var res engine.Result
	err := c.do(ctx, c.resolve(opts), func(ctx context.Context) error {
		r, err := c.db.Exec(ctx, query)
		res = r
		return err
	})
	if err != nil {
		return engine.Result{}, err
	}
	return res, nil
}

// Prepare compiles query into the statement cache, or promotes the cached
// statement, and returns its output columns.
func (c *Conn) Prepare(ctx context.Context, query string, opts ...Option) (models.Shape, error) {
	var shape models.Shape
	err := c.do(ctx, c.resolve(opts), func(ctx context.Context) error {
		st, err := c.cache.Prepare(ctx, query)
		if err != nil {
			return err
		}
		shape = st.Shape()
		return nil
	})
	if err != nil {
		return models.Shape{}, err
	}
	return shape, nil
}

// fetch prepares query through the cache, binds args positionally and
// reads every row. An arity mismatch is reported before the cache or the
// connection are touched.
func (c *Conn) fetch(ctx context.Context, query string, args []any, opts []Option) (*models.Result, error) {
	if err := engine.CheckArity(query, args); err != nil {
		return nil, err
	}
	s := c.resolve(opts)
	var res *models.Result
	err := c.do(ctx, s, func(ctx context.Context) error {
		st, err := c.cache.Prepare(ctx, query)
		if err != nil {
			return err
		}
		rows := make([][]any, 0)
		err = st.Fetch(ctx, args, s.ChunkSize, func(chunk [][]any) error {
			rows = append(rows, chunk...)
			return nil
		})
		if err != nil {
			return err
		}
		shape := st.Shape()
		res = &models.Result{Columns: shape.Columns, Types: shape.Types, Rows: rows}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// Query runs query with args and returns the rows as ordered records.
func (c *Conn) Query(ctx context.Context, query string, args []any, opts ...Option) ([]hydrate.Record, error) {
	res, err := c.fetch(ctx, query, args, opts)
	if err != nil {
		return nil, err
	}
	return hydrate.Records(res.Columns, res.Types, res.Rows), nil
}

// QueryRows runs query with args and returns the rows as positional lists
// along with the column names and declared types.
func (c *Conn) QueryRows(ctx context.Context, query string, args []any, opts ...Option) (*models.Result, error) {
	res, err := c.fetch(ctx, query, args, opts)
	if err != nil {
		return nil, err
	}
	res.Rows = hydrate.Lists(res.Columns, res.Types, res.Rows)
	return res, nil
}

// QueryMaps runs query with args and fills one container from
// newContainer per row.
func (c *Conn) QueryMaps(ctx context.Context, query string, args []any, newContainer func() hydrate.Container, opts ...Option) ([]hydrate.Container, error) {
	res, err := c.fetch(ctx, query, args, opts)
	if err != nil {
		return nil, err
	}
	return hydrate.Containers(res.Columns, res.Types, res.Rows, newContainer), nil
}

// QueryChunks runs query with args and passes the rows to fn in chunks of
// at most the chunk size, holding the connection until the last chunk.
// fn must not call back into c. An error from fn stops the query and is
// returned unchanged.
func (c *Conn) QueryChunks(ctx context.Context, query string, args []any, fn func(rows [][]any) error, opts ...Option) (models.Shape, error) {
	if err := engine.CheckArity(query, args); err != nil {
		return models.Shape{}, err
	}
	s := c.resolve(opts)
	var shape models.Shape
	err := c.withSlot(ctx, s, func(sess *session) error {
		return sess.run(ctx, s, func(ctx context.Context) error {
			st, err := c.cache.Prepare(ctx, query)
			if err != nil {
				return err
			}
			err = st.Fetch(ctx, args, s.ChunkSize, func(chunk [][]any) error {
				sh := st.Shape()
				return fn(hydrate.Lists(sh.Columns, sh.Types, chunk))
			})
			if err != nil {
				return err
			}
			shape = st.Shape()
			return nil
		})
	})
	if err != nil {
		return models.Shape{}, err
	}
	return shape, nil
}

// SetUpdateHook sends an event for every row inserted, updated or deleted
// by a committed transaction to target, in commit order. Writes that are
// rolled back produce no events. Delivery is asynchronous and never
// blocks the actor. A nil target removes the hook.
func (c *Conn) SetUpdateHook(ctx context.Context, target chan<- models.ChangeEvent, opts ...Option) error {
	return c.do(ctx, c.resolve(opts), func(context.Context) error {
		var d *changes.Dispatcher
		if target != nil {
			d = changes.New(target, c.logger)
			if err := c.db.SetUpdateHook(d.Publish); err != nil {
				d.Close()
				return err
			}
		} else if err := c.db.SetUpdateHook(nil); err != nil {
			return err
		}
		if c.dispatcher != nil {
			c.dispatcher.Close()
		}
		c.dispatcher = d
		return nil
	})
}

// Rekey changes the passphrase of an encrypted database.
func (c *Conn) Rekey(ctx context.Context, password string, opts ...Option) error {
	return c.do(ctx, c.resolve(opts), func(ctx context.Context) error {
		return c.db.Rekey(ctx, password)
	})
}

// CacheStats returns a snapshot of the statement cache.
func (c *Conn) CacheStats(ctx context.Context, opts ...Option) (models.CacheStats, error) {
	var stats models.CacheStats
	err := c.do(ctx, c.resolve(opts), func(context.Context) error {
		stats = c.cache.Stats()
		return nil
	})
	if err != nil {
		return models.CacheStats{}, err
	}
	return stats, nil
}
