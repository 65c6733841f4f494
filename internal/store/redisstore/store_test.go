package redisstore

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rzbill/coedit/internal/store"
	"github.com/rzbill/coedit/internal/store/storetest"
)

func newTestStore(t *testing.T, shards int, now func() time.Time) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	s, err := New(Options{
		Client:    redis.NewClient(&redis.Options{Addr: mr.Addr()}),
		Shards:    shards,
		ClientTTL: time.Minute,
		Now:       now,
	})
	require.NoError(t, err)
	return s, mr
}

func TestConformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T, shards int, now func() time.Time) store.Store {
		s, _ := newTestStore(t, shards, now)
		return s
	})
}

func TestKeyLayout(t *testing.T) {
	s, mr := newTestStore(t, 16, time.Now)
	defer s.Close()
	ctx := context.Background()
	key := store.RoomDoc(1, "main.rb")

	_, err := s.CreateState(ctx, key, "x")
	require.NoError(t, err)
	assert.Equal(t, "x", mr.HGet("ot:state:1:main.rb", "doc"))
	assert.Equal(t, "0", mr.HGet("ot:state:1:main.rb", "rev"))

	require.NoError(t, s.EnsureClient(ctx, key, "c1"))
	assert.NotEmpty(t, mr.HGet("ot:clients:1:main.rb", "c1"))

	id, err := s.Enqueue(ctx, store.Edit{Key: key, ClientID: "c1", Operation: []byte(`[1,"y"]`)})
	require.NoError(t, err)
	assert.True(t, mr.Exists("ot:ops:6"))

	require.NoError(t, s.SetCheckpoint(ctx, 6, id))
	got, err := mr.Get("ot:ops:6:checkpoint")
	require.NoError(t, err)
	assert.Equal(t, id, got)
}

func TestCheckpointDefaultsToStart(t *testing.T) {
	s, _ := newTestStore(t, 1, time.Now)
	defer s.Close()
	cp, err := s.Checkpoint(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, StartID, cp)
}

func TestMalformedEntryIsDroppable(t *testing.T) {
	e := decodeEntry(redis.XMessage{ID: "1-0", Values: map[string]any{"scope": "room", "room_id": "x", "revision": "y"}})
	assert.Equal(t, "1-0", e.ID)
	assert.Error(t, e.Edit.Key.Validate())
	assert.Equal(t, -1, e.Edit.Revision)
}

func TestNextID(t *testing.T) {
	id, err := nextID("1700000000000-4")
	require.NoError(t, err)
	assert.Equal(t, "1700000000000-5", id)
	_, err = nextID("bogus")
	assert.Error(t, err)
}
