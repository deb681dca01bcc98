package stmtcache

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/pario-ai/sqlactor/pkg/engine"
)

// countingPreparer records how many statements were compiled.
type countingPreparer struct {
	conn     *engine.Conn
	compiled []string
}

func (p *countingPreparer) Prepare(ctx context.Context, query string) (*engine.Stmt, error) {
	st, err := p.conn.Prepare(ctx, query)
	if err != nil {
		return nil, err
	}
	p.compiled = append(p.compiled, query)
	return st, nil
}

func newTestCache(t *testing.T, capacity int) (*Cache, *countingPreparer) {
	t.Helper()
	conn, err := engine.Open(context.Background(), ":memory:", engine.OpenOptions{})
	if err != nil {
		t.Fatal(err)
	}
	p := &countingPreparer{conn: conn}
	c, err := New(capacity, p, nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		c.Purge()
		_ = conn.Close()
	})
	return c, p
}

func mustPrepare(t *testing.T, c *Cache, query string) *engine.Stmt {
	t.Helper()
	st, err := c.Prepare(context.Background(), query)
	if err != nil {
		t.Fatal(err)
	}
	return st
}

func TestNewInvalidCapacity(t *testing.T) {
	for _, n := range []int{0, -1} {
		if _, err := New(n, nil, nil); !errors.Is(err, ErrInvalidCapacity) {
			t.Errorf("New(%d): expected ErrInvalidCapacity, got %v", n, err)
		}
	}
}

func TestLeastRecentlyUsedEviction(t *testing.T) {
	c, _ := newTestCache(t, 3)
	const (
		a = "SELECT 1"
		b = "SELECT 2"
		q = "SELECT 3"
		d = "SELECT 4"
	)

	stA := mustPrepare(t, c, a)
	stB := mustPrepare(t, c, b)
	mustPrepare(t, c, q)
	mustPrepare(t, c, a)
	mustPrepare(t, c, d)

	if diff := cmp.Diff([]string{d, a, q}, c.Keys()); diff != "" {
		t.Errorf("keys mismatch (-want +got):\n%s", diff)
	}
	if c.Contains(b) {
		t.Error("expected B to be evicted")
	}
	if !stB.Finalized() {
		t.Error("expected evicted statement to be finalized")
	}
	if stA.Finalized() {
		t.Error("recently used statement must stay live")
	}
	if again := mustPrepare(t, c, b); again == stB {
		t.Error("expected a freshly compiled statement after eviction")
	}

	s := c.Stats()
	if s.Entries != 3 || s.Capacity != 3 {
		t.Errorf("expected 3/3 entries, got %d/%d", s.Entries, s.Capacity)
	}
	if s.Hits != 1 || s.Misses != 5 || s.Evictions != 2 {
		t.Errorf("expected 1 hit, 5 misses, 2 evictions, got %+v", s)
	}
}

func TestCapacityBound(t *testing.T) {
	c, _ := newTestCache(t, 2)
	queries := []string{"SELECT 1", "SELECT 2", "SELECT 3", "SELECT 2", "SELECT 4", "SELECT 5"}
	for _, q := range queries {
		mustPrepare(t, c, q)
		if c.Len() > c.Cap() {
			t.Fatalf("cache holds %d entries, capacity %d", c.Len(), c.Cap())
		}
	}
	if c.Len() != 2 {
		t.Errorf("expected a full cache, got %d", c.Len())
	}
}

func TestHitReturnsSameStatement(t *testing.T) {
	c, p := newTestCache(t, 2)
	first := mustPrepare(t, c, "SELECT 1")
	second := mustPrepare(t, c, "SELECT 1")
	if first != second {
		t.Error("expected a hit to return the cached statement")
	}
	if len(p.compiled) != 1 {
		t.Errorf("expected one compilation, got %d", len(p.compiled))
	}
}

func TestKeysAreExactText(t *testing.T) {
	c, p := newTestCache(t, 4)
	mustPrepare(t, c, "SELECT 1")
	mustPrepare(t, c, "SELECT  1")
	mustPrepare(t, c, "select 1")
	if c.Len() != 3 || len(p.compiled) != 3 {
		t.Errorf("expected 3 distinct entries, got %d (compiled %d)", c.Len(), len(p.compiled))
	}
}

func TestPrepareFailureLeavesCacheUnchanged(t *testing.T) {
	c, _ := newTestCache(t, 2)
	mustPrepare(t, c, "SELECT 1")
	mustPrepare(t, c, "SELECT 2")
	before := c.Keys()
	statsBefore := c.Stats()

	_, err := c.Prepare(context.Background(), "SELEC oops")
	var pe *engine.PrepareError
	if !errors.As(err, &pe) {
		t.Fatalf("expected *engine.PrepareError, got %v", err)
	}
	if diff := cmp.Diff(before, c.Keys()); diff != "" {
		t.Errorf("cache changed on failure (-before +after):\n%s", diff)
	}
	if diff := cmp.Diff(statsBefore, c.Stats()); diff != "" {
		t.Errorf("stats changed on failure (-before +after):\n%s", diff)
	}
}

func TestPurgeFinalizesAll(t *testing.T) {
	c, _ := newTestCache(t, 3)
	sts := []*engine.Stmt{
		mustPrepare(t, c, "SELECT 1"),
		mustPrepare(t, c, "SELECT 2"),
	}
	c.Purge()
	if c.Len() != 0 {
		t.Errorf("expected empty cache, got %d", c.Len())
	}
	for _, st := range sts {
		if !st.Finalized() {
			t.Errorf("statement %q not finalized", st.SQL())
		}
	}
}
