package actor

import (
	"context"
	"errors"
	"fmt"

	"github.com/pario-ai/sqlactor/pkg/engine"
	"github.com/pario-ai/sqlactor/pkg/stmtcache"
)

var (
	// ErrTimeout is returned when the call timeout elapses before the
	// actor answers. The request may still run.
	ErrTimeout = errors.New("actor: call timed out")
	// ErrNoSuchActor is returned for calls to a stopped actor.
	ErrNoSuchActor = errors.New("actor: no such actor")
)

// ErrorKind names the category of err for wire protocols.
func ErrorKind(err error) string {
	switch {
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.Is(err, ErrNoSuchActor):
		return "no_such_actor"
	case errors.Is(err, stmtcache.ErrInvalidCapacity):
		return "invalid_capacity"
	case errors.Is(err, context.Canceled):
		return "canceled"
	}
	return engine.Kind(err)
}

func ctxErr(ctx context.Context) error {
	err := ctx.Err()
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", ErrTimeout, err)
	}
	return err
}
