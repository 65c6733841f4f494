package eventlog

import (
	"context"
	"encoding/binary"
	"sync"
	"time"

	pebblestore "github.com/rzbill/coedit/internal/storage/pebble"
)

// AppendRecord represents a single appendable entry. A nil Header is
// replaced with the append timestamp.
type AppendRecord struct {
	Header  []byte
	Payload []byte
}

// Log provides append-only operations for one shard of a named log.
type Log struct {
	db    *pebblestore.DB
	name  string
	shard uint32

	mu       sync.Mutex
	lastSeq  uint64
	notifyCh chan struct{}
	now      func() time.Time
}

// OpenLog initializes a Log and loads the last sequence from metadata (if any).
func OpenLog(db *pebblestore.DB, name string, shard uint32) (*Log, error) {
	l := &Log{db: db, name: name, shard: shard, notifyCh: make(chan struct{}), now: time.Now}
	meta, err := db.Get(KeyLogMeta(name, shard))
	switch {
	case err == nil && len(meta) >= 8:
		l.lastSeq = binary.BigEndian.Uint64(meta[:8])
	case err != nil && !pebblestore.IsNotFound(err):
		return nil, err
	}
	return l, nil
}

// Name returns the log name.
func (l *Log) Name() string { return l.name }

// Shard returns the shard number.
func (l *Log) Shard() uint32 { return l.shard }

// LastSeq returns the sequence of the newest appended entry, 0 when empty.
func (l *Log) LastSeq() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lastSeq
}

// Append appends the provided records as a single atomic batch. Returns assigned seq numbers.
func (l *Log) Append(ctx context.Context, recs []AppendRecord) ([]uint64, error) {
	if len(recs) == 0 {
		return nil, nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	b := l.db.NewBatch()
	defer b.Close()

	seqs := make([]uint64, len(recs))
	next := l.lastSeq
	for i, r := range recs {
		next++
		hdr := r.Header
		if hdr == nil {
			hdr = TimestampHeader(l.now())
		}
		if err := b.Set(KeyLogEntry(l.name, l.shard, next), EncodeRecord(hdr, r.Payload), nil); err != nil {
			return nil, err
		}
		seqs[i] = next
	}

	var meta [8]byte
	binary.BigEndian.PutUint64(meta[:], next)
	if err := b.Set(KeyLogMeta(l.name, l.shard), meta[:], nil); err != nil {
		return nil, err
	}

	if err := l.db.CommitBatch(ctx, b); err != nil {
		return nil, err
	}
	l.lastSeq = next
	// wake waiters
	close(l.notifyCh)
	l.notifyCh = make(chan struct{})
	return seqs, nil
}

// TimestampHeader encodes t as big-endian unix milliseconds.
func TimestampHeader(t time.Time) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(t.UnixMilli()))
	return b[:]
}

// HeaderTime decodes a header written by TimestampHeader.
func HeaderTime(h []byte) (time.Time, bool) {
	if len(h) < 8 {
		return time.Time{}, false
	}
	return time.UnixMilli(int64(binary.BigEndian.Uint64(h[:8]))), true
}
