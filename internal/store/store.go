package store

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/rzbill/coedit/internal/ot"
)

// State is the persisted head of a document.
type State struct {
	Doc          string
	Revision     int
	BaseRevision int
	// LastEntryID is the stream entry that produced this revision.
	LastEntryID string
}

// Presence is what the store remembers about a connected client.
type Presence struct {
	Name      string        `json:"name,omitempty"`
	Selection *ot.Selection `json:"selection,omitempty"`
	SeenAt    int64         `json:"seen_at"`
}

// Expired reports whether the client has been silent for longer than ttl.
// Records without a timestamp never expire.
func (p Presence) Expired(now time.Time, ttl time.Duration) bool {
	if p.SeenAt <= 0 || ttl <= 0 {
		return false
	}
	return p.SeenAt < now.Add(-ttl).Unix()
}

// Edit is a client edit waiting in a shard stream. Operation and Selection
// hold the client's JSON wire form.
type Edit struct {
	Key       DocKey
	ClientID  string
	Revision  int
	Operation json.RawMessage
	Selection json.RawMessage
}

// Decode parses the operation and optional selection.
func (e Edit) Decode() (ot.Edit, error) {
	op, err := ot.ParseOperation(e.Operation)
	if err != nil {
		return ot.Edit{}, fmt.Errorf("decode operation: %w", err)
	}
	sel, err := ot.ParseSelection(e.Selection)
	if err != nil {
		return ot.Edit{}, fmt.Errorf("decode selection: %w", err)
	}
	return ot.Wrap(op, sel), nil
}

// Entry is an Edit read back from a stream together with its position.
type Entry struct {
	ID   string
	Edit Edit
}

// Commit is the result of applying one stream entry. Implementations write
// the state, the history append and the shard checkpoint atomically.
type Commit struct {
	Key     DocKey
	State   State
	Applied ot.Edit
	Shard   int
	EntryID string
}

// Documents stores document state and history.
type Documents interface {
	// LoadState returns the state of key; ok is false when none exists.
	LoadState(ctx context.Context, key DocKey) (st State, ok bool, err error)
	// CreateState stores doc at revision 0 unless a state already exists,
	// and returns whichever state is stored afterwards.
	CreateState(ctx context.Context, key DocKey, doc string) (State, error)
	// LoadHistory returns the edits applied after the base revision.
	LoadHistory(ctx context.Context, key DocKey) ([]ot.Edit, error)
	// Commit persists an applied edit. It fails with ErrConflict unless the
	// stored revision is State.Revision-1 and EntryID is past the shard
	// checkpoint, so an entry is never applied twice.
	Commit(ctx context.Context, c Commit) error
	// CompactHistory sets the base revision and clears the history.
	CompactHistory(ctx context.Context, key DocKey, baseRevision int) error
}

// Presences stores per-document client presence.
type Presences interface {
	EnsureClient(ctx context.Context, key DocKey, clientID string) error
	TouchClient(ctx context.Context, key DocKey, clientID string) error
	SetClientName(ctx context.Context, key DocKey, clientID, name string) error
	// SetClientSelection stores sel; a nil selection clears it.
	SetClientSelection(ctx context.Context, key DocKey, clientID string, sel *ot.Selection) error
	RemoveClient(ctx context.Context, key DocKey, clientID string) error
	// Clients lists live clients, evicting the ones past their TTL.
	Clients(ctx context.Context, key DocKey) (map[string]Presence, error)
}

// Streams is the sharded edit queue.
type Streams interface {
	// Shards is the number of streams.
	Shards() int
	// Enqueue appends e to the stream of its document's shard.
	Enqueue(ctx context.Context, e Edit) (id string, err error)
	// Read returns up to count entries after the given id, waiting up to
	// block for new entries when none are available.
	Read(ctx context.Context, shard int, after string, count int, block time.Duration) ([]Entry, error)
	// Checkpoint returns the id of the last committed entry of shard, or
	// the backend's start position when nothing was committed yet.
	Checkpoint(ctx context.Context, shard int) (string, error)
	// SetCheckpoint records id as consumed without any document change. A
	// checkpoint never moves backwards.
	SetCheckpoint(ctx context.Context, shard int, id string) error
	// TrimConsumed drops entries at or before the shard's checkpoint.
	TrimConsumed(ctx context.Context, shard int) (int, error)
}

// Store is everything a coedit process needs from durable storage.
type Store interface {
	Documents
	Presences
	Streams
	io.Closer
	// Ping checks connectivity.
	Ping(ctx context.Context) error
}

// CheckShard validates shard against n.
func CheckShard(shard, n int) error {
	if shard < 0 || shard >= n {
		return fmt.Errorf("%w: %d not in [0, %d)", ErrInvalidShard, shard, n)
	}
	return nil
}
