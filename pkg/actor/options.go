package actor

import (
	"log/slog"
	"time"

	"github.com/pario-ai/sqlactor/pkg/config"
)

// Option configures Open or a single call. Options that only make sense
// at open time (password, logger, cache size) are ignored per call.
type Option func(*options)

type options struct {
	cfg      config.Options
	password string
	logger   *slog.Logger
}

func collect(opts []Option) options {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithOptions applies every set field of o.
func WithOptions(o config.Options) Option {
	return func(op *options) { op.cfg = o.Merge(op.cfg) }
}

// WithDBTimeout bounds a single engine interaction.
func WithDBTimeout(d time.Duration) Option {
	return func(op *options) { op.cfg.DBTimeout = config.Duration(d) }
}

// WithChunkSize sets the number of rows moved per fetch step.
func WithChunkSize(n int) Option {
	return func(op *options) { op.cfg.ChunkSize = n }
}

// WithCallTimeout bounds how long a caller waits for the actor.
func WithCallTimeout(d time.Duration) Option {
	return func(op *options) {
		op.cfg.CallTimeout = config.Duration(d)
		op.cfg.Timeout = 0
	}
}

// WithCacheSize sets the statement cache capacity. Zero leaves it unset;
// a negative size makes Open fail.
func WithCacheSize(n int) Option {
	return func(op *options) { op.cfg.CacheSize = n }
}

// WithPassword opens the database with a passphrase. The passphrase is
// not retained after Open returns.
func WithPassword(password string) Option {
	return func(op *options) { op.password = password }
}

// WithLogger sets the actor's logger.
func WithLogger(l *slog.Logger) Option {
	return func(op *options) { op.logger = l }
}
