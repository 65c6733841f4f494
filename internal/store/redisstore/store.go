// Package redisstore implements store.Store on Redis so that connection
// servers and shard workers can run as separate processes. Shard streams
// are Redis streams and entry ids are Redis stream ids.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rzbill/coedit/internal/ot"
	"github.com/rzbill/coedit/internal/store"
)

// StartID is the checkpoint reported before anything was committed.
const StartID = "0-0"

// Options configures a Store.
type Options struct {
	Client    redis.UniversalClient
	Shards    int
	ClientTTL time.Duration
	// Now defaults to time.Now.
	Now func() time.Time
}

// Store is the Redis store.Store. It owns the client and closes it.
type Store struct {
	rdb    redis.UniversalClient
	shards int
	ttl    time.Duration
	now    func() time.Time
}

var _ store.Store = (*Store)(nil)

// New wraps an existing client.
func New(opts Options) (*Store, error) {
	if opts.Client == nil {
		return nil, errors.New("redisstore: Options.Client is required")
	}
	if opts.Shards <= 0 {
		opts.Shards = 1
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Store{rdb: opts.Client, shards: opts.Shards, ttl: opts.ClientTTL, now: opts.Now}, nil
}

// Client exposes the underlying client for pub/sub fan-out.
func (s *Store) Client() redis.UniversalClient { return s.rdb }

func stateKey(k store.DocKey) string   { return "ot:state:" + k.ID() }
func historyKey(k store.DocKey) string { return "ot:history:" + k.ID() }
func clientsKey(k store.DocKey) string { return "ot:clients:" + k.ID() }

// StreamKey names the stream of shard.
func StreamKey(shard int) string { return "ot:ops:" + strconv.Itoa(shard) }

// CheckpointKey names the checkpoint of shard.
func CheckpointKey(shard int) string { return StreamKey(shard) + ":checkpoint" }

func (s *Store) Close() error { return s.rdb.Close() }

func (s *Store) Ping(ctx context.Context) error { return s.rdb.Ping(ctx).Err() }

// Documents

func (s *Store) LoadState(ctx context.Context, key store.DocKey) (store.State, bool, error) {
	if err := key.Validate(); err != nil {
		return store.State{}, false, err
	}
	return loadState(ctx, s.rdb, key)
}

func loadState(ctx context.Context, c redis.Cmdable, key store.DocKey) (store.State, bool, error) {
	h, err := c.HGetAll(ctx, stateKey(key)).Result()
	if err != nil {
		return store.State{}, false, err
	}
	if len(h) == 0 {
		return store.State{}, false, nil
	}
	st := store.State{Doc: h["doc"], LastEntryID: h["last_id"]}
	if st.Revision, err = atoiField(h, "rev"); err != nil {
		return store.State{}, false, fmt.Errorf("state %s: %w", key, err)
	}
	if st.BaseRevision, err = atoiField(h, "base_rev"); err != nil {
		return store.State{}, false, fmt.Errorf("state %s: %w", key, err)
	}
	return st, true, nil
}

func atoiField(h map[string]string, field string) (int, error) {
	v, ok := h[field]
	if !ok || v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("bad %s %q", field, v)
	}
	return n, nil
}

func stateFields(st store.State) []any {
	return []any{
		"doc", st.Doc,
		"rev", st.Revision,
		"base_rev", st.BaseRevision,
		"last_id", st.LastEntryID,
	}
}

func (s *Store) CreateState(ctx context.Context, key store.DocKey, doc string) (store.State, error) {
	if err := key.Validate(); err != nil {
		return store.State{}, err
	}
	var out store.State
	txf := func(tx *redis.Tx) error {
		st, ok, err := loadState(ctx, tx, key)
		if err != nil {
			return err
		}
		if ok {
			out = st
			return nil
		}
		out = store.State{Doc: doc}
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.HSet(ctx, stateKey(key), stateFields(out)...)
			return nil
		})
		return err
	}
	for i := 0; i < 3; i++ {
		err := s.rdb.Watch(ctx, txf, stateKey(key))
		if !errors.Is(err, redis.TxFailedErr) {
			return out, err
		}
	}
	// lost every race; someone else created it
	st, ok, err := s.LoadState(ctx, key)
	if err == nil && !ok {
		err = fmt.Errorf("%w: state %s", store.ErrNotFound, key)
	}
	return st, err
}

func (s *Store) LoadHistory(ctx context.Context, key store.DocKey) ([]ot.Edit, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}
	raw, err := s.rdb.LRange(ctx, historyKey(key), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	out := make([]ot.Edit, 0, len(raw))
	for i, r := range raw {
		e, err := ot.UnmarshalEdit([]byte(r))
		if err != nil {
			return nil, fmt.Errorf("decode history %s[%d]: %w", key, i, err)
		}
		out = append(out, e)
	}
	return out, nil
}

// Commit writes state, the history append and the shard checkpoint in one
// MULTI/EXEC transaction.
func (s *Store) Commit(ctx context.Context, c store.Commit) error {
	if err := c.Key.Validate(); err != nil {
		return err
	}
	if err := store.CheckShard(c.Shard, s.shards); err != nil {
		return err
	}
	hist, err := ot.MarshalEdit(c.Applied)
	if err != nil {
		return err
	}
	st := c.State
	st.LastEntryID = c.EntryID
	txf := func(tx *redis.Tx) error {
		cur, ok, err := loadState(ctx, tx, c.Key)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: state %s", store.ErrNotFound, c.Key)
		}
		if cur.Revision != st.Revision-1 {
			return fmt.Errorf("%w: %s is at revision %d, commit is revision %d", store.ErrConflict, c.Key, cur.Revision, st.Revision)
		}
		cp, err := checkpoint(ctx, tx, c.Shard)
		if err != nil {
			return err
		}
		if after, err := idAfter(c.EntryID, cp); err != nil {
			return err
		} else if !after {
			return fmt.Errorf("%w: entry %s is not after checkpoint %s", store.ErrConflict, c.EntryID, cp)
		}
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.HSet(ctx, stateKey(c.Key), stateFields(st)...)
			p.RPush(ctx, historyKey(c.Key), hist)
			p.Set(ctx, CheckpointKey(c.Shard), c.EntryID, 0)
			return nil
		})
		return err
	}
	err = s.rdb.Watch(ctx, txf, stateKey(c.Key), CheckpointKey(c.Shard))
	if errors.Is(err, redis.TxFailedErr) {
		return fmt.Errorf("%w: %s changed during commit", store.ErrConflict, c.Key)
	}
	return err
}

func (s *Store) CompactHistory(ctx context.Context, key store.DocKey, baseRevision int) error {
	if err := key.Validate(); err != nil {
		return err
	}
	n, err := s.rdb.Exists(ctx, stateKey(key)).Result()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: state %s", store.ErrNotFound, key)
	}
	_, err = s.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSet(ctx, stateKey(key), "base_rev", baseRevision)
		p.Del(ctx, historyKey(key))
		return nil
	})
	return err
}

// Presences

func (s *Store) updatePresence(ctx context.Context, key store.DocKey, clientID string, fn func(p *store.Presence)) error {
	if err := key.Validate(); err != nil {
		return err
	}
	if clientID == "" {
		return fmt.Errorf("%w: empty client id", store.ErrInvalidKey)
	}
	var p store.Presence
	raw, err := s.rdb.HGet(ctx, clientsKey(key), clientID).Result()
	switch {
	case errors.Is(err, redis.Nil):
	case err != nil:
		return err
	default:
		if err := json.Unmarshal([]byte(raw), &p); err != nil {
			p = store.Presence{}
		}
	}
	fn(&p)
	p.SeenAt = s.now().Unix()
	b, err := json.Marshal(p)
	if err != nil {
		return err
	}
	return s.rdb.HSet(ctx, clientsKey(key), clientID, b).Err()
}

func (s *Store) EnsureClient(ctx context.Context, key store.DocKey, clientID string) error {
	if err := key.Validate(); err != nil {
		return err
	}
	if clientID == "" {
		return fmt.Errorf("%w: empty client id", store.ErrInvalidKey)
	}
	b, err := json.Marshal(store.Presence{SeenAt: s.now().Unix()})
	if err != nil {
		return err
	}
	return s.rdb.HSetNX(ctx, clientsKey(key), clientID, b).Err()
}

func (s *Store) TouchClient(ctx context.Context, key store.DocKey, clientID string) error {
	return s.updatePresence(ctx, key, clientID, func(*store.Presence) {})
}

func (s *Store) SetClientName(ctx context.Context, key store.DocKey, clientID, name string) error {
	return s.updatePresence(ctx, key, clientID, func(p *store.Presence) { p.Name = name })
}

func (s *Store) SetClientSelection(ctx context.Context, key store.DocKey, clientID string, sel *ot.Selection) error {
	return s.updatePresence(ctx, key, clientID, func(p *store.Presence) { p.Selection = sel })
}

func (s *Store) RemoveClient(ctx context.Context, key store.DocKey, clientID string) error {
	if err := key.Validate(); err != nil {
		return err
	}
	return s.rdb.HDel(ctx, clientsKey(key), clientID).Err()
}

func (s *Store) Clients(ctx context.Context, key store.DocKey) (map[string]store.Presence, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}
	h, err := s.rdb.HGetAll(ctx, clientsKey(key)).Result()
	if err != nil {
		return nil, err
	}
	now := s.now()
	out := make(map[string]store.Presence, len(h))
	var expired []string
	for id, raw := range h {
		var p store.Presence
		if json.Unmarshal([]byte(raw), &p) != nil || p.Expired(now, s.ttl) {
			expired = append(expired, id)
			continue
		}
		out[id] = p
	}
	if len(expired) > 0 {
		if err := s.rdb.HDel(ctx, clientsKey(key), expired...).Err(); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Streams

func (s *Store) Shards() int { return s.shards }

func (s *Store) Enqueue(ctx context.Context, e store.Edit) (string, error) {
	if err := e.Key.Validate(); err != nil {
		return "", err
	}
	shard := store.ShardFor(e.Key, s.shards)
	return s.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: StreamKey(shard),
		Values: []any{
			"scope", string(e.Key.Scope),
			"room_id", e.Key.Room,
			"path", e.Key.Path,
			"client_id", e.ClientID,
			"revision", e.Revision,
			"operation", string(e.Operation),
			"selection", string(e.Selection),
		},
	}).Result()
}

func (s *Store) Read(ctx context.Context, shard int, after string, count int, block time.Duration) ([]store.Entry, error) {
	if err := store.CheckShard(shard, s.shards); err != nil {
		return nil, err
	}
	if after == "" {
		after = StartID
	}
	if block <= 0 {
		// go-redis sends BLOCK 0 (forever) for a zero duration
		block = -1
	}
	res, err := s.rdb.XRead(ctx, &redis.XReadArgs{
		Streams: []string{StreamKey(shard), after},
		Count:   int64(count),
		Block:   block,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var out []store.Entry
	for _, st := range res {
		for _, m := range st.Messages {
			out = append(out, decodeEntry(m))
		}
	}
	return out, nil
}

// decodeEntry never fails; malformed fields yield an entry the worker drops.
func decodeEntry(m redis.XMessage) store.Entry {
	str := func(k string) string {
		v, _ := m.Values[k].(string)
		return v
	}
	room, err := strconv.ParseInt(str("room_id"), 10, 64)
	if err != nil {
		room = -1
	}
	rev, err := strconv.Atoi(str("revision"))
	if err != nil {
		rev = -1
	}
	e := store.Edit{
		Key:       store.DocKey{Scope: store.Scope(str("scope")), Room: room, Path: str("path")},
		ClientID:  str("client_id"),
		Revision:  rev,
		Operation: json.RawMessage(str("operation")),
	}
	if sel := str("selection"); sel != "" {
		e.Selection = json.RawMessage(sel)
	}
	return store.Entry{ID: m.ID, Edit: e}
}

func (s *Store) Checkpoint(ctx context.Context, shard int) (string, error) {
	if err := store.CheckShard(shard, s.shards); err != nil {
		return "", err
	}
	return checkpoint(ctx, s.rdb, shard)
}

func checkpoint(ctx context.Context, c redis.Cmdable, shard int) (string, error) {
	id, err := c.Get(ctx, CheckpointKey(shard)).Result()
	if errors.Is(err, redis.Nil) || (err == nil && id == "") {
		return StartID, nil
	}
	return id, err
}

// SetCheckpoint moves the checkpoint forward to id; an older id is ignored.
func (s *Store) SetCheckpoint(ctx context.Context, shard int, id string) error {
	if err := store.CheckShard(shard, s.shards); err != nil {
		return err
	}
	txf := func(tx *redis.Tx) error {
		cp, err := checkpoint(ctx, tx, shard)
		if err != nil {
			return err
		}
		after, err := idAfter(id, cp)
		if err != nil || !after {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.Set(ctx, CheckpointKey(shard), id, 0)
			return nil
		})
		return err
	}
	for i := 0; i < 3; i++ {
		err := s.rdb.Watch(ctx, txf, CheckpointKey(shard))
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
	}
	// someone else keeps moving it; theirs is at least as far along
	return nil
}

func (s *Store) TrimConsumed(ctx context.Context, shard int) (int, error) {
	cp, err := s.Checkpoint(ctx, shard)
	if err != nil || cp == StartID {
		return 0, err
	}
	minID, err := nextID(cp)
	if err != nil {
		return 0, err
	}
	n, err := s.rdb.XTrimMinID(ctx, StreamKey(shard), minID).Result()
	return int(n), err
}

// nextID returns the smallest stream id greater than id.
func nextID(id string) (string, error) {
	ms, seq, ok := strings.Cut(id, "-")
	if !ok {
		return "", fmt.Errorf("redisstore: bad stream id %q", id)
	}
	n, err := strconv.ParseUint(seq, 10, 64)
	if err != nil {
		return "", fmt.Errorf("redisstore: bad stream id %q", id)
	}
	return ms + "-" + strconv.FormatUint(n+1, 10), nil
}

func parseStreamID(id string) (ms, seq uint64, err error) {
	a, b, ok := strings.Cut(id, "-")
	if !ok {
		return 0, 0, fmt.Errorf("redisstore: bad stream id %q", id)
	}
	if ms, err = strconv.ParseUint(a, 10, 64); err == nil {
		seq, err = strconv.ParseUint(b, 10, 64)
	}
	if err != nil {
		return 0, 0, fmt.Errorf("redisstore: bad stream id %q", id)
	}
	return ms, seq, nil
}

// idAfter reports whether stream id a sorts after b.
func idAfter(a, b string) (bool, error) {
	ams, aseq, err := parseStreamID(a)
	if err != nil {
		return false, err
	}
	bms, bseq, err := parseStreamID(b)
	if err != nil {
		return false, err
	}
	return ams > bms || (ams == bms && aseq > bseq), nil
}
