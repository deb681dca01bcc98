// Package actor serializes all access to one SQLite connection and its
// prepared statement cache through a single request loop.
//
// Every operation is shipped to the loop and runs there, one at a time,
// in submission order. Operations that run caller code while holding the
// connection (transactions and chunk streaming) take a lease instead: the
// loop hands its slot to the calling goroutine and parks until the slot
// is released. The context passed to a transaction body carries an owner
// token; calls made with it run directly instead of queueing behind the
// transaction that issued them.
package actor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/pario-ai/sqlactor/pkg/changes"
	"github.com/pario-ai/sqlactor/pkg/config"
	"github.com/pario-ai/sqlactor/pkg/engine"
	"github.com/pario-ai/sqlactor/pkg/stmtcache"
)

// Conn is a handle to a running actor. It is safe for concurrent use.
type Conn struct {
	id       string
	path     string
	logger   *slog.Logger
	settings config.Settings

	reqs     chan *request
	stopping chan struct{}
	stopOnce sync.Once
	done     chan struct{}
	closeErr error

	// Owned by whoever holds the slot: the loop or a lease holder.
	db         *engine.Conn
	cache      *stmtcache.Cache
	dispatcher *changes.Dispatcher
	savepoints atomic.Int64
}

type request struct {
	run       func()
	finished  chan struct{}
	abandoned chan struct{} // closed by a caller that gave up waiting
}

func newRequest(run func()) *request {
	return &request{
		run:       run,
		finished:  make(chan struct{}),
		abandoned: make(chan struct{}),
	}
}

// Open connects to the database at path and starts the actor. On failure
// nothing is left running and the error is an *engine.OpenError, or
// wraps stmtcache.ErrInvalidCapacity for a negative cache size.
func Open(ctx context.Context, path string, opts ...Option) (*Conn, error) {
	o := collect(opts)
	if o.cfg.CacheSize < 0 {
		return nil, fmt.Errorf("open %s: %w: %d", path, stmtcache.ErrInvalidCapacity, o.cfg.CacheSize)
	}
	settings := config.Resolve(o.cfg)

	id := uuid.NewString()
	logger := o.logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	logger = logger.With("actor", id)

	octx, cancel := context.WithTimeout(ctx, settings.DBTimeout)
	defer cancel()
	db, err := engine.Open(octx, path, engine.OpenOptions{Password: o.password})
	if err != nil {
		logger.Error("open database", "path", path, "error", err)
		return nil, err
	}

	cache, err := stmtcache.New(settings.CacheSize, db, logger)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	c := &Conn{
		id:       id,
		path:     path,
		logger:   logger,
		settings: settings,
		reqs:     make(chan *request),
		stopping: make(chan struct{}),
		done:     make(chan struct{}),
		db:       db,
		cache:    cache,
	}
	go c.loop()

	logger.Info("actor started", "path", path, "cache_size", settings.CacheSize)
	return c, nil
}

// ID returns the actor's unique id.
func (c *Conn) ID() string { return c.id }

// Path returns the database path.
func (c *Conn) Path() string { return c.path }

// Settings returns the resolved settings calls start from.
func (c *Conn) Settings() config.Settings { return c.settings }

// Stop asks the actor to terminate and returns immediately. The request
// in progress finishes; queued and later calls fail with ErrNoSuchActor.
// The connection and every cached statement are released exactly once.
func (c *Conn) Stop() {
	c.stopOnce.Do(func() {
		close(c.stopping)
		c.logger.Debug("stop requested")
	})
}

// Close stops the actor, waits for it to terminate and returns the error
// from closing the connection. It must not be called from inside a
// transaction body.
func (c *Conn) Close() error {
	c.Stop()
	<-c.done
	return c.closeErr
}

// Done is closed once the actor has terminated.
func (c *Conn) Done() <-chan struct{} { return c.done }

func (c *Conn) loop() {
	defer c.shutdown()

	for {
		select {
		case <-c.stopping:
			return
		case req := <-c.reqs:
			select {
			case <-c.stopping:
				return
			case <-req.abandoned:
				continue
			default:
			}
			req.run()
			close(req.finished)
		}
	}
}

func (c *Conn) shutdown() {
	c.cache.Purge()
	c.closeErr = c.db.Close()
	if c.dispatcher != nil {
		c.dispatcher.Close()
	}
	if c.closeErr != nil {
		c.logger.Warn("close database", "error", c.closeErr)
	}
	c.logger.Info("actor stopped")
	close(c.done)
}

// call runs fn on the loop and waits for it to finish.
func (c *Conn) call(ctx context.Context, s config.Settings, fn func()) error {
	req := newRequest(fn)
	timer := time.NewTimer(s.CallTimeout)
	defer timer.Stop()

	if err := c.submit(ctx, req, timer); err != nil {
		return err
	}
	return c.await(ctx, req, req.finished, timer)
}

func (c *Conn) submit(ctx context.Context, req *request, timer *time.Timer) error {
	select {
	case <-c.stopping:
		return ErrNoSuchActor
	default:
	}
	select {
	case c.reqs <- req:
		return nil
	case <-c.stopping:
		return ErrNoSuchActor
	case <-timer.C:
		return ErrTimeout
	case <-ctx.Done():
		return ctxErr(ctx)
	}
}

func (c *Conn) await(ctx context.Context, req *request, ready <-chan struct{}, timer *time.Timer) error {
	select {
	case <-ready:
		return nil
	case <-c.done:
		select {
		case <-ready:
			return nil
		default:
			return ErrNoSuchActor
		}
	case <-timer.C:
		close(req.abandoned)
		return ErrTimeout
	case <-ctx.Done():
		close(req.abandoned)
		return ctxErr(ctx)
	}
}

// ownerKey tags contexts handed to transaction bodies.
type ownerKey struct{}

// session is a lease on the actor's slot held by a goroutine outside the
// loop. Operations under a session are serialized by mu.
type session struct {
	conn     *Conn
	mu       sync.Mutex
	live     bool
	released chan struct{}
}

// acquire takes the actor's slot for the calling goroutine. The caller
// must release the session exactly once.
func (c *Conn) acquire(ctx context.Context, s config.Settings) (*session, error) {
	grant := make(chan struct{})
	released := make(chan struct{})
	req := newRequest(nil)
	req.run = func() {
		select {
		case grant <- struct{}{}:
			<-released
		case <-req.abandoned:
		}
	}

	timer := time.NewTimer(s.CallTimeout)
	defer timer.Stop()
	if err := c.submit(ctx, req, timer); err != nil {
		return nil, err
	}
	if err := c.await(ctx, req, grant, timer); err != nil {
		return nil, err
	}
	return &session{conn: c, live: true, released: released}, nil
}

func (s *session) release() {
	s.mu.Lock()
	s.live = false
	s.mu.Unlock()
	close(s.released)
}

// owner returns the live session of c carried by ctx, locked. The caller
// must unlock it.
func (c *Conn) owner(ctx context.Context) *session {
	sess, ok := ctx.Value(ownerKey{}).(*session)
	if !ok || sess.conn != c {
		return nil
	}
	sess.mu.Lock()
	if !sess.live {
		sess.mu.Unlock()
		return nil
	}
	return sess
}

// do runs op with exclusive access to the connection: directly when ctx
// carries a live lease on c, through the loop otherwise. op receives a
// context bounded by the db timeout that is not cancelled when the caller
// gives up.
func (c *Conn) do(ctx context.Context, s config.Settings, op func(ctx context.Context) error) error {
	if sess := c.owner(ctx); sess != nil {
		defer sess.mu.Unlock()
		return runOp(ctx, s, op)
	}

	var opErr error
	if err := c.call(ctx, s, func() { opErr = runOp(ctx, s, op) }); err != nil {
		return err
	}
	return opErr
}

// withSlot runs fn while holding the actor's slot on the calling
// goroutine, reusing the lease carried by ctx when there is one.
func (c *Conn) withSlot(ctx context.Context, s config.Settings, fn func(sess *session) error) error {
	if sess := c.owner(ctx); sess != nil {
		sess.mu.Unlock()
		return fn(sess)
	}
	sess, err := c.acquire(ctx, s)
	if err != nil {
		return err
	}
	defer sess.release()
	return fn(sess)
}

// run executes op under the session.
func (sess *session) run(ctx context.Context, s config.Settings, op func(ctx context.Context) error) error {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return runOp(ctx, s, op)
}

func runOp(ctx context.Context, s config.Settings, op func(ctx context.Context) error) error {
	ectx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.DBTimeout)
	defer cancel()
	return op(ectx)
}
