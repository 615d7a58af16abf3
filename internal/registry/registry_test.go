package registry

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type conn struct{ name string }

// TestPutGet tests basic binding and lookup
func TestPutGet(t *testing.T) {
	t.Parallel()

	r := New[*conn]()
	a := &conn{"a"}

	_, replaced := r.Put("alice", a)
	assert.False(t, replaced)

	got, ok := r.Get("alice")
	require.True(t, ok)
	assert.Same(t, a, got)

	_, ok = r.Get("bob")
	assert.False(t, ok)
	assert.Equal(t, 1, r.Len())
}

// TestPutReplaces tests last-authenticated-wins
func TestPutReplaces(t *testing.T) {
	t.Parallel()

	r := New[*conn]()
	a, b := &conn{"a"}, &conn{"b"}

	r.Put("alice", a)
	prev, replaced := r.Put("alice", b)

	assert.True(t, replaced)
	assert.Same(t, a, prev)

	got, _ := r.Get("alice")
	assert.Same(t, b, got)
	assert.Equal(t, 1, r.Len())
}

// TestRemoveGuardsReplacedSession tests that a stale session cannot evict its successor
func TestRemoveGuardsReplacedSession(t *testing.T) {
	t.Parallel()

	r := New[*conn]()
	a, b := &conn{"a"}, &conn{"b"}

	r.Put("alice", a)
	r.Put("alice", b)

	assert.False(t, r.Remove("alice", a), "stale session must not remove the new entry")
	got, ok := r.Get("alice")
	require.True(t, ok)
	assert.Same(t, b, got)

	assert.True(t, r.Remove("alice", b))
	_, ok = r.Get("alice")
	assert.False(t, ok)

	assert.False(t, r.Remove("alice", b), "second remove is a no-op")
}

// TestIdentitiesAndSnapshotSorted tests deterministic listing
func TestIdentitiesAndSnapshotSorted(t *testing.T) {
	t.Parallel()

	r := New[*conn]()
	for _, id := range []string{"carol", "alice", "bob"} {
		r.Put(id, &conn{id})
	}

	assert.Equal(t, []string{"alice", "bob", "carol"}, r.Identities())

	snap := r.Snapshot()
	require.Len(t, snap, 3)
	assert.Equal(t, "alice", snap[0].Identity)
	assert.Equal(t, "alice", snap[0].Session.name)
	assert.Equal(t, "carol", snap[2].Identity)

	assert.NotNil(t, New[*conn]().Identities())
}

// TestConcurrentPutSameIdentity tests that concurrent binds leave exactly one entry
func TestConcurrentPutSameIdentity(t *testing.T) {
	t.Parallel()

	r := New[*conn]()
	const n = 64

	conns := make([]*conn, n)
	for i := range conns {
		conns[i] = &conn{fmt.Sprintf("c%d", i)}
	}

	var wg sync.WaitGroup
	for _, c := range conns {
		wg.Add(1)
		go func(c *conn) {
			defer wg.Done()
			r.Put("alice", c)
		}(c)
	}
	wg.Wait()

	assert.Equal(t, 1, r.Len())
	got, ok := r.Get("alice")
	require.True(t, ok)
	assert.Contains(t, conns, got)

	// Every other session's remove must fail.
	for _, c := range conns {
		if c != got {
			assert.False(t, r.Remove("alice", c))
		}
	}
	assert.True(t, r.Remove("alice", got))
}

// TestConcurrentMixedOperations exercises the registry under the race detector
func TestConcurrentMixedOperations(t *testing.T) {
	t.Parallel()

	r := New[*conn]()
	var wg sync.WaitGroup

	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("user-%d", i%8)
			c := &conn{id}
			r.Put(id, c)
			r.Get(id)
			r.Identities()
			r.Snapshot()
			r.Remove(id, c)
		}(i)
	}
	wg.Wait()

	assert.LessOrEqual(t, r.Len(), 8)
}
