// Package storetest holds the behavior every store.Store backend must share.
package storetest

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rzbill/coedit/internal/ot"
	"github.com/rzbill/coedit/internal/store"
)

// Factory opens an empty store with the given shard count, a client TTL of
// one minute and the given clock.
type Factory func(t *testing.T, shards int, now func() time.Time) store.Store

// Clock is a settable time source for presence expiry.
type Clock struct{ T time.Time }

func (c *Clock) Now() time.Time { return c.T }

// Run exercises f against the shared contract.
func Run(t *testing.T, f Factory) {
	t.Run("StateLifecycle", func(t *testing.T) { testStateLifecycle(t, f) })
	t.Run("CommitAndCompact", func(t *testing.T) { testCommitAndCompact(t, f) })
	t.Run("CommitConflicts", func(t *testing.T) { testCommitConflicts(t, f) })
	t.Run("Presence", func(t *testing.T) { testPresence(t, f) })
	t.Run("StreamRoundTrip", func(t *testing.T) { testStreamRoundTrip(t, f) })
	t.Run("StreamBlockTimeout", func(t *testing.T) { testStreamBlockTimeout(t, f) })
	t.Run("StreamSharding", func(t *testing.T) { testStreamSharding(t, f) })
	t.Run("TrimConsumed", func(t *testing.T) { testTrimConsumed(t, f) })
	t.Run("InvalidInput", func(t *testing.T) { testInvalidInput(t, f) })
}

func newStore(t *testing.T, f Factory, shards int) (store.Store, *Clock) {
	clk := &Clock{T: time.Unix(1_700_000_000, 0)}
	s := f(t, shards, clk.Now)
	t.Cleanup(func() { _ = s.Close() })
	return s, clk
}

func testStateLifecycle(t *testing.T, f Factory) {
	s, _ := newStore(t, f, 1)
	ctx := context.Background()
	key := store.RoomDoc(1, "main.go")

	require.NoError(t, s.Ping(ctx))
	_, ok, err := s.LoadState(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)

	st, err := s.CreateState(ctx, key, "hello")
	require.NoError(t, err)
	assert.Equal(t, store.State{Doc: "hello"}, st)

	// a second create keeps the first document
	st, err = s.CreateState(ctx, key, "other")
	require.NoError(t, err)
	assert.Equal(t, "hello", st.Doc)

	got, ok, err := s.LoadState(ctx, key)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "hello", got.Doc)
	assert.Equal(t, 0, got.Revision)

	hist, err := s.LoadHistory(ctx, key)
	require.NoError(t, err)
	assert.Empty(t, hist)
}

func enqueue(t *testing.T, s store.Store, key store.DocKey, rev int, op string, sel string) string {
	t.Helper()
	e := store.Edit{Key: key, ClientID: "c1", Revision: rev, Operation: json.RawMessage(op)}
	if sel != "" {
		e.Selection = json.RawMessage(sel)
	}
	id, err := s.Enqueue(context.Background(), e)
	require.NoError(t, err)
	require.NotEmpty(t, id)
	return id
}

func testCommitAndCompact(t *testing.T, f Factory) {
	s, _ := newStore(t, f, 1)
	ctx := context.Background()
	key := store.GlobalDoc()
	_, err := s.CreateState(ctx, key, "ab")
	require.NoError(t, err)

	id1 := enqueue(t, s, key, 0, `[2,"c"]`, "")
	id2 := enqueue(t, s, key, 1, `["x",3]`, `{"ranges":[{"anchor":1,"head":1}]}`)

	op1 := ot.New().Retain(2).Insert("c")
	require.NoError(t, s.Commit(ctx, store.Commit{
		Key: key, State: store.State{Doc: "abc", Revision: 1}, Applied: ot.Wrap[*ot.Selection](op1, nil), Shard: 0, EntryID: id1,
	}))
	cp, err := s.Checkpoint(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, id1, cp)

	op2 := ot.New().Insert("x").Retain(3)
	require.NoError(t, s.Commit(ctx, store.Commit{
		Key: key, State: store.State{Doc: "xabc", Revision: 2}, Applied: ot.Wrap[*ot.Selection](op2, ot.Cursor(1)), Shard: 0, EntryID: id2,
	}))

	st, ok, err := s.LoadState(ctx, key)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, store.State{Doc: "xabc", Revision: 2, LastEntryID: id2}, st)

	hist, err := s.LoadHistory(ctx, key)
	require.NoError(t, err)
	require.Len(t, hist, 2)
	assert.True(t, hist[0].Op.Equal(op1))
	assert.Nil(t, hist[0].Meta)
	assert.True(t, hist[1].Op.Equal(op2))
	assert.True(t, hist[1].Meta.Equal(ot.Cursor(1)))

	require.NoError(t, s.CompactHistory(ctx, key, 2))
	st, _, err = s.LoadState(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, 2, st.BaseRevision)
	assert.Equal(t, 2, st.Revision)
	hist, err = s.LoadHistory(ctx, key)
	require.NoError(t, err)
	assert.Empty(t, hist)

	err = s.CompactHistory(ctx, store.RoomDoc(9, "missing"), 1)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

// testCommitConflicts races two committers of the same entry, as two workers
// consuming one shard would.
func testCommitConflicts(t *testing.T, f Factory) {
	s, _ := newStore(t, f, 1)
	ctx := context.Background()
	key := store.GlobalDoc()
	_, err := s.CreateState(ctx, key, "")
	require.NoError(t, err)
	id1 := enqueue(t, s, key, 0, `["a"]`, "")

	commit := store.Commit{
		Key: key, State: store.State{Doc: "a", Revision: 1}, Applied: ot.Wrap[*ot.Selection](ot.New().Insert("a"), nil), Shard: 0, EntryID: id1,
	}
	errs := make([]error, 2)
	var wg sync.WaitGroup
	for i := range errs {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = s.Commit(ctx, commit)
		}()
	}
	wg.Wait()
	ok := 0
	for _, err := range errs {
		if err == nil {
			ok++
		} else {
			assert.ErrorIs(t, err, store.ErrConflict)
		}
	}
	assert.Equal(t, 1, ok, "exactly one committer wins: %v", errs)

	hist, err := s.LoadHistory(ctx, key)
	require.NoError(t, err)
	assert.Len(t, hist, 1)
	st, _, err := s.LoadState(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, store.State{Doc: "a", Revision: 1, LastEntryID: id1}, st)

	// the right revision but an entry the checkpoint already covers
	other := store.RoomDoc(3, "b.txt")
	_, err = s.CreateState(ctx, other, "")
	require.NoError(t, err)
	err = s.Commit(ctx, store.Commit{
		Key: other, State: store.State{Doc: "a", Revision: 1}, Applied: ot.Wrap[*ot.Selection](ot.New().Insert("a"), nil), Shard: 0, EntryID: id1,
	})
	assert.ErrorIs(t, err, store.ErrConflict)

	// a revision that skips ahead
	id2 := enqueue(t, s, key, 1, `[1,"b"]`, "")
	err = s.Commit(ctx, store.Commit{
		Key: key, State: store.State{Doc: "ab", Revision: 3}, Applied: ot.Wrap[*ot.Selection](ot.New().Retain(1).Insert("b"), nil), Shard: 0, EntryID: id2,
	})
	assert.ErrorIs(t, err, store.ErrConflict)

	// the checkpoint never moves backwards
	id3 := enqueue(t, s, key, 1, `[1,"c"]`, "")
	require.NoError(t, s.SetCheckpoint(ctx, 0, id3))
	require.NoError(t, s.SetCheckpoint(ctx, 0, id2))
	cp, err := s.Checkpoint(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, id3, cp)
}

func testPresence(t *testing.T, f Factory) {
	s, clk := newStore(t, f, 1)
	ctx := context.Background()
	key := store.RoomDoc(3, "notes.md")

	require.NoError(t, s.EnsureClient(ctx, key, "a"))
	require.NoError(t, s.SetClientName(ctx, key, "a", "Ada"))
	// ensure does not reset an existing record
	require.NoError(t, s.EnsureClient(ctx, key, "a"))
	require.NoError(t, s.SetClientSelection(ctx, key, "a", ot.Cursor(4)))
	require.NoError(t, s.EnsureClient(ctx, key, "b"))

	clients, err := s.Clients(ctx, key)
	require.NoError(t, err)
	require.Len(t, clients, 2)
	assert.Equal(t, "Ada", clients["a"].Name)
	assert.True(t, clients["a"].Selection.Equal(ot.Cursor(4)))
	assert.Equal(t, clk.T.Unix(), clients["a"].SeenAt)

	require.NoError(t, s.SetClientSelection(ctx, key, "a", nil))
	clients, err = s.Clients(ctx, key)
	require.NoError(t, err)
	assert.Nil(t, clients["a"].Selection)

	// b goes silent past the TTL while a keeps touching
	clk.T = clk.T.Add(45 * time.Second)
	require.NoError(t, s.TouchClient(ctx, key, "a"))
	clk.T = clk.T.Add(30 * time.Second)
	clients, err = s.Clients(ctx, key)
	require.NoError(t, err)
	assert.Contains(t, clients, "a")
	assert.NotContains(t, clients, "b")

	require.NoError(t, s.RemoveClient(ctx, key, "a"))
	clients, err = s.Clients(ctx, key)
	require.NoError(t, err)
	assert.Empty(t, clients)
}

func testStreamRoundTrip(t *testing.T, f Factory) {
	s, _ := newStore(t, f, 1)
	ctx := context.Background()
	key := store.RoomDoc(7, "README.md")

	start, err := s.Checkpoint(ctx, 0)
	require.NoError(t, err)

	id := enqueue(t, s, key, 3, `[1,-1]`, `[{"anchor":0,"head":1}]`)
	entries, err := s.Read(ctx, 0, start, 10, 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	got := entries[0]
	assert.Equal(t, id, got.ID)
	assert.Equal(t, key, got.Edit.Key)
	assert.Equal(t, "c1", got.Edit.ClientID)
	assert.Equal(t, 3, got.Edit.Revision)
	edit, err := got.Edit.Decode()
	require.NoError(t, err)
	assert.True(t, edit.Op.Equal(ot.New().Retain(1).Delete(1)))
	assert.True(t, edit.Meta.Equal(&ot.Selection{Ranges: []ot.Range{{Anchor: 0, Head: 1}}}))

	entries, err = s.Read(ctx, 0, id, 10, 0)
	require.NoError(t, err)
	assert.Empty(t, entries)

	require.NoError(t, s.SetCheckpoint(ctx, 0, id))
	cp, err := s.Checkpoint(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, id, cp)
}

func testStreamBlockTimeout(t *testing.T, f Factory) {
	s, _ := newStore(t, f, 1)
	ctx := context.Background()
	start, err := s.Checkpoint(ctx, 0)
	require.NoError(t, err)

	began := time.Now()
	entries, err := s.Read(ctx, 0, start, 10, 50*time.Millisecond)
	require.NoError(t, err)
	assert.Empty(t, entries)
	assert.GreaterOrEqual(t, time.Since(began), 40*time.Millisecond)

	go func() {
		time.Sleep(30 * time.Millisecond)
		_, _ = s.Enqueue(context.Background(), store.Edit{Key: store.GlobalDoc(), ClientID: "c", Operation: json.RawMessage(`["a"]`)})
	}()
	entries, err = s.Read(ctx, 0, start, 10, 2*time.Second)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func testStreamSharding(t *testing.T, f Factory) {
	s, _ := newStore(t, f, 16)
	ctx := context.Background()
	require.Equal(t, 16, s.Shards())

	key := store.RoomDoc(42, "src/app.go")
	shard := store.ShardFor(key, 16)
	enqueue(t, s, key, 0, `["a"]`, "")

	for i := 0; i < 16; i++ {
		start, err := s.Checkpoint(ctx, i)
		require.NoError(t, err)
		entries, err := s.Read(ctx, i, start, 10, 0)
		require.NoError(t, err)
		if i == shard {
			assert.Len(t, entries, 1, "shard %d", i)
		} else {
			assert.Empty(t, entries, "shard %d", i)
		}
	}
}

func testTrimConsumed(t *testing.T, f Factory) {
	s, _ := newStore(t, f, 1)
	ctx := context.Background()
	key := store.GlobalDoc()
	start, err := s.Checkpoint(ctx, 0)
	require.NoError(t, err)

	n, err := s.TrimConsumed(ctx, 0)
	require.NoError(t, err)
	assert.Zero(t, n)

	enqueue(t, s, key, 0, `["a"]`, "")
	id2 := enqueue(t, s, key, 1, `[1,"b"]`, "")
	id3 := enqueue(t, s, key, 2, `[2,"c"]`, "")
	require.NoError(t, s.SetCheckpoint(ctx, 0, id2))

	n, err = s.TrimConsumed(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	entries, err := s.Read(ctx, 0, start, 10, 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, id3, entries[0].ID)
}

func testInvalidInput(t *testing.T, f Factory) {
	s, _ := newStore(t, f, 2)
	ctx := context.Background()

	_, err := s.Read(ctx, 2, "", 1, 0)
	assert.ErrorIs(t, err, store.ErrInvalidShard)
	_, err = s.Checkpoint(ctx, -1)
	assert.ErrorIs(t, err, store.ErrInvalidShard)

	_, err = s.Enqueue(ctx, store.Edit{Key: store.RoomDoc(0, "x")})
	assert.ErrorIs(t, err, store.ErrInvalidKey)
	_, err = s.CreateState(ctx, store.DocKey{Scope: "nope", Room: 1, Path: "x"}, "")
	assert.ErrorIs(t, err, store.ErrInvalidKey)
}
