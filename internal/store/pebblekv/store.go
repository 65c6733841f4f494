// Package pebblekv implements store.Store on an embedded Pebble database.
// Shard streams are eventlog logs; entry ids are decimal log sequences.
package pebblekv

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/rzbill/coedit/internal/eventlog"
	"github.com/rzbill/coedit/internal/ot"
	pebblestore "github.com/rzbill/coedit/internal/storage/pebble"
	"github.com/rzbill/coedit/internal/store"
)

const (
	// StreamName is the eventlog name of the shard streams.
	StreamName = "ot:ops"
	// CursorGroup is the consumer group holding the worker checkpoints.
	CursorGroup = "worker"
	// StartID is the checkpoint reported before anything was committed.
	StartID = "0"
)

// Options configures a Store.
type Options struct {
	DB        *pebblestore.DB
	Shards    int
	ClientTTL time.Duration
	// Now defaults to time.Now.
	Now func() time.Time
	// OnTrim observes entries removed by TrimConsumed.
	OnTrim eventlog.TrimHook
}

// Store is the embedded store.Store. It owns the database and closes it.
type Store struct {
	db     *pebblestore.DB
	logs   []*eventlog.Log
	ttl    time.Duration
	now    func() time.Time
	onTrim eventlog.TrimHook

	// docMu serializes read-check-write of document state and checkpoints.
	docMu      sync.Mutex
	presenceMu sync.Mutex
}

var _ store.Store = (*Store)(nil)

type stateRecord struct {
	Doc     string `msgpack:"doc"`
	Rev     int    `msgpack:"rev"`
	BaseRev int    `msgpack:"base_rev"`
	LastID  string `msgpack:"last_id"`
}

type entryRecord struct {
	Scope     string `msgpack:"scope"`
	Room      int64  `msgpack:"room_id"`
	Path      string `msgpack:"path"`
	ClientID  string `msgpack:"client_id"`
	Revision  int    `msgpack:"revision"`
	Operation []byte `msgpack:"operation"`
	Selection []byte `msgpack:"selection,omitempty"`
}

// New opens one eventlog per shard.
func New(opts Options) (*Store, error) {
	if opts.DB == nil {
		return nil, errors.New("pebblekv: Options.DB is required")
	}
	if opts.Shards <= 0 {
		opts.Shards = 1
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	s := &Store{db: opts.DB, ttl: opts.ClientTTL, now: opts.Now, onTrim: opts.OnTrim}
	for i := 0; i < opts.Shards; i++ {
		l, err := eventlog.OpenLog(opts.DB, StreamName, uint32(i))
		if err != nil {
			return nil, fmt.Errorf("open shard %d: %w", i, err)
		}
		s.logs = append(s.logs, l)
	}
	return s, nil
}

func stateKey(k store.DocKey) []byte { return []byte("ot/state/" + k.ID()) }

func historyPrefix(k store.DocKey) []byte { return []byte("ot/history/" + k.ID() + "\x00") }

func historyKey(k store.DocKey, rev int) []byte {
	return binary.BigEndian.AppendUint64(historyPrefix(k), uint64(rev))
}

func clientsPrefix(k store.DocKey) []byte { return []byte("ot/clients/" + k.ID() + "\x00") }

func clientKey(k store.DocKey, clientID string) []byte {
	return append(clientsPrefix(k), clientID...)
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := s.db.Get([]byte("ot/ping"))
	if err != nil && !pebblestore.IsNotFound(err) {
		return err
	}
	return nil
}

// Documents

func (s *Store) LoadState(ctx context.Context, key store.DocKey) (store.State, bool, error) {
	if err := key.Validate(); err != nil {
		return store.State{}, false, err
	}
	raw, err := s.db.Get(stateKey(key))
	if pebblestore.IsNotFound(err) {
		return store.State{}, false, nil
	}
	if err != nil {
		return store.State{}, false, err
	}
	var rec stateRecord
	if err := msgpack.Unmarshal(raw, &rec); err != nil {
		return store.State{}, false, fmt.Errorf("decode state %s: %w", key, err)
	}
	return store.State{Doc: rec.Doc, Revision: rec.Rev, BaseRevision: rec.BaseRev, LastEntryID: rec.LastID}, true, nil
}

func (s *Store) CreateState(ctx context.Context, key store.DocKey, doc string) (store.State, error) {
	s.docMu.Lock()
	defer s.docMu.Unlock()
	st, ok, err := s.LoadState(ctx, key)
	if err != nil || ok {
		return st, err
	}
	st = store.State{Doc: doc}
	raw, err := encodeState(st)
	if err != nil {
		return store.State{}, err
	}
	if err := s.db.Set(stateKey(key), raw); err != nil {
		return store.State{}, err
	}
	return st, nil
}

func encodeState(st store.State) ([]byte, error) {
	return msgpack.Marshal(stateRecord{Doc: st.Doc, Rev: st.Revision, BaseRev: st.BaseRevision, LastID: st.LastEntryID})
}

func (s *Store) LoadHistory(ctx context.Context, key store.DocKey) ([]ot.Edit, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}
	var (
		out    []ot.Edit
		decErr error
	)
	err := s.db.ScanPrefix(historyPrefix(key), func(_, v []byte) bool {
		e, err := ot.UnmarshalEdit(v)
		if err != nil {
			decErr = fmt.Errorf("decode history %s: %w", key, err)
			return false
		}
		out = append(out, e)
		return true
	})
	if err != nil {
		return nil, err
	}
	return out, decErr
}

// Commit writes state, the history append and the shard cursor in one batch.
func (s *Store) Commit(ctx context.Context, c store.Commit) error {
	if err := c.Key.Validate(); err != nil {
		return err
	}
	l, err := s.log(c.Shard)
	if err != nil {
		return err
	}
	seq, err := parseID(c.EntryID)
	if err != nil {
		return err
	}
	st := c.State
	st.LastEntryID = c.EntryID
	stRaw, err := encodeState(st)
	if err != nil {
		return err
	}
	hRaw, err := ot.MarshalEdit(c.Applied)
	if err != nil {
		return err
	}

	s.docMu.Lock()
	defer s.docMu.Unlock()
	cur, ok, err := s.LoadState(ctx, c.Key)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: state %s", store.ErrNotFound, c.Key)
	}
	if cur.Revision != c.State.Revision-1 {
		return fmt.Errorf("%w: %s is at revision %d, commit is revision %d", store.ErrConflict, c.Key, cur.Revision, c.State.Revision)
	}
	if tok, ok := l.GetCursor(CursorGroup); ok && tok.Seq() >= seq {
		return fmt.Errorf("%w: entry %s is not after checkpoint %d", store.ErrConflict, c.EntryID, tok.Seq())
	}

	b := s.db.NewBatch()
	defer b.Close()
	if err := b.Set(stateKey(c.Key), stRaw, nil); err != nil {
		return err
	}
	if err := b.Set(historyKey(c.Key, st.Revision), hRaw, nil); err != nil {
		return err
	}
	if err := l.CommitCursorBatch(b, CursorGroup, eventlog.TokenFromSeq(seq)); err != nil {
		return err
	}
	return s.db.CommitBatch(ctx, b)
}

func (s *Store) CompactHistory(ctx context.Context, key store.DocKey, baseRevision int) error {
	s.docMu.Lock()
	defer s.docMu.Unlock()
	st, ok, err := s.LoadState(ctx, key)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: state %s", store.ErrNotFound, key)
	}
	st.BaseRevision = baseRevision
	raw, err := encodeState(st)
	if err != nil {
		return err
	}
	prefix := historyPrefix(key)
	b := s.db.NewBatch()
	defer b.Close()
	if err := b.Set(stateKey(key), raw, nil); err != nil {
		return err
	}
	if err := b.DeleteRange(prefix, pebblestore.PrefixEnd(prefix), nil); err != nil {
		return err
	}
	return s.db.CommitBatch(ctx, b)
}

// Presences

func (s *Store) loadPresence(key store.DocKey, clientID string) (store.Presence, bool, error) {
	raw, err := s.db.Get(clientKey(key, clientID))
	if pebblestore.IsNotFound(err) {
		return store.Presence{}, false, nil
	}
	if err != nil {
		return store.Presence{}, false, err
	}
	var p store.Presence
	if err := json.Unmarshal(raw, &p); err != nil {
		return store.Presence{}, false, fmt.Errorf("decode presence %s/%s: %w", key, clientID, err)
	}
	return p, true, nil
}

// updatePresence applies fn to the stored record (or a fresh one) and stamps it.
func (s *Store) updatePresence(key store.DocKey, clientID string, fn func(p *store.Presence, existed bool) bool) error {
	if err := key.Validate(); err != nil {
		return err
	}
	if clientID == "" {
		return fmt.Errorf("%w: empty client id", store.ErrInvalidKey)
	}
	s.presenceMu.Lock()
	defer s.presenceMu.Unlock()
	p, ok, err := s.loadPresence(key, clientID)
	if err != nil {
		return err
	}
	if !fn(&p, ok) {
		return nil
	}
	p.SeenAt = s.now().Unix()
	raw, err := json.Marshal(p)
	if err != nil {
		return err
	}
	return s.db.Set(clientKey(key, clientID), raw)
}

func (s *Store) EnsureClient(ctx context.Context, key store.DocKey, clientID string) error {
	return s.updatePresence(key, clientID, func(_ *store.Presence, existed bool) bool { return !existed })
}

func (s *Store) TouchClient(ctx context.Context, key store.DocKey, clientID string) error {
	return s.updatePresence(key, clientID, func(*store.Presence, bool) bool { return true })
}

func (s *Store) SetClientName(ctx context.Context, key store.DocKey, clientID, name string) error {
	return s.updatePresence(key, clientID, func(p *store.Presence, _ bool) bool {
		p.Name = name
		return true
	})
}

func (s *Store) SetClientSelection(ctx context.Context, key store.DocKey, clientID string, sel *ot.Selection) error {
	return s.updatePresence(key, clientID, func(p *store.Presence, _ bool) bool {
		p.Selection = sel
		return true
	})
}

func (s *Store) RemoveClient(ctx context.Context, key store.DocKey, clientID string) error {
	if err := key.Validate(); err != nil {
		return err
	}
	s.presenceMu.Lock()
	defer s.presenceMu.Unlock()
	return s.db.Delete(clientKey(key, clientID))
}

func (s *Store) Clients(ctx context.Context, key store.DocKey) (map[string]store.Presence, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}
	s.presenceMu.Lock()
	defer s.presenceMu.Unlock()
	prefix := clientsPrefix(key)
	now := s.now()
	out := make(map[string]store.Presence)
	var expired [][]byte
	err := s.db.ScanPrefix(prefix, func(k, v []byte) bool {
		var p store.Presence
		if json.Unmarshal(v, &p) != nil || p.Expired(now, s.ttl) {
			expired = append(expired, append([]byte(nil), k...))
			return true
		}
		out[string(k[len(prefix):])] = p
		return true
	})
	if err != nil {
		return nil, err
	}
	if len(expired) > 0 {
		b := s.db.NewBatch()
		defer b.Close()
		for _, k := range expired {
			if err := b.Delete(k, nil); err != nil {
				return nil, err
			}
		}
		if err := s.db.CommitBatch(ctx, b); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Streams

func (s *Store) Shards() int { return len(s.logs) }

func (s *Store) log(shard int) (*eventlog.Log, error) {
	if err := store.CheckShard(shard, len(s.logs)); err != nil {
		return nil, err
	}
	return s.logs[shard], nil
}

func parseID(id string) (uint64, error) {
	if id == "" {
		return 0, nil
	}
	seq, err := strconv.ParseUint(id, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("pebblekv: bad entry id %q", id)
	}
	return seq, nil
}

func (s *Store) Enqueue(ctx context.Context, e store.Edit) (string, error) {
	if err := e.Key.Validate(); err != nil {
		return "", err
	}
	raw, err := msgpack.Marshal(entryRecord{
		Scope:     string(e.Key.Scope),
		Room:      e.Key.Room,
		Path:      e.Key.Path,
		ClientID:  e.ClientID,
		Revision:  e.Revision,
		Operation: e.Operation,
		Selection: e.Selection,
	})
	if err != nil {
		return "", err
	}
	l := s.logs[store.ShardFor(e.Key, len(s.logs))]
	seqs, err := l.Append(ctx, []eventlog.AppendRecord{{Payload: raw}})
	if err != nil {
		return "", err
	}
	return strconv.FormatUint(seqs[0], 10), nil
}

func (s *Store) Read(ctx context.Context, shard int, after string, count int, block time.Duration) ([]store.Entry, error) {
	l, err := s.log(shard)
	if err != nil {
		return nil, err
	}
	seq, err := parseID(after)
	if err != nil {
		return nil, err
	}
	changed := l.Changed()
	items := l.ReadAfter(seq, count)
	if len(items) == 0 && block > 0 {
		if !eventlog.Wait(ctx, changed, block) {
			return nil, ctx.Err()
		}
		items = l.ReadAfter(seq, count)
	}
	out := make([]store.Entry, 0, len(items))
	for _, it := range items {
		out = append(out, decodeEntry(it))
	}
	return out, nil
}

// decodeEntry never fails; an undecodable payload yields an entry with an
// invalid key that the worker drops.
func decodeEntry(it eventlog.Item) store.Entry {
	entry := store.Entry{ID: strconv.FormatUint(it.Seq, 10)}
	var rec entryRecord
	if err := msgpack.Unmarshal(it.Payload, &rec); err != nil {
		return entry
	}
	entry.Edit = store.Edit{
		Key:       store.DocKey{Scope: store.Scope(rec.Scope), Room: rec.Room, Path: rec.Path},
		ClientID:  rec.ClientID,
		Revision:  rec.Revision,
		Operation: rec.Operation,
		Selection: rec.Selection,
	}
	return entry
}

func (s *Store) Checkpoint(ctx context.Context, shard int) (string, error) {
	l, err := s.log(shard)
	if err != nil {
		return "", err
	}
	tok, ok := l.GetCursor(CursorGroup)
	if !ok {
		return StartID, nil
	}
	return strconv.FormatUint(tok.Seq(), 10), nil
}

func (s *Store) SetCheckpoint(ctx context.Context, shard int, id string) error {
	l, err := s.log(shard)
	if err != nil {
		return err
	}
	seq, err := parseID(id)
	if err != nil {
		return err
	}
	s.docMu.Lock()
	defer s.docMu.Unlock()
	if cur, ok := l.GetCursor(CursorGroup); ok && cur.Seq() >= seq {
		return nil
	}
	return l.CommitCursor(CursorGroup, eventlog.TokenFromSeq(seq))
}

func (s *Store) TrimConsumed(ctx context.Context, shard int) (int, error) {
	l, err := s.log(shard)
	if err != nil {
		return 0, err
	}
	tok, ok := l.GetCursor(CursorGroup)
	if !ok {
		return 0, nil
	}
	return l.TrimThrough(ctx, tok.Seq(), 1024, s.onTrim)
}
