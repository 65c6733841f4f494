package eventlog

import (
	"encoding/binary"

	"github.com/cockroachdb/pebble"

	pebblestore "github.com/rzbill/coedit/internal/storage/pebble"
)

// CommitCursor stores the last processed token for a group idempotently.
// If the provided token is lower than the stored one, the commit is ignored.
func (l *Log) CommitCursor(group string, tok Token) error {
	if prev, ok := l.GetCursor(group); ok && tok.Seq() <= prev.Seq() {
		return nil
	}
	return l.db.Set(KeyCursor(l.name, group, l.shard), tok[:])
}

// CommitCursorBatch writes the cursor into b so it lands together with the
// caller's other writes. Unlike CommitCursor it does not compare against the
// stored value.
func (l *Log) CommitCursorBatch(b *pebble.Batch, group string, tok Token) error {
	return b.Set(KeyCursor(l.name, group, l.shard), tok[:], nil)
}

// GetCursor loads the current cursor token for a group.
func (l *Log) GetCursor(group string) (Token, bool) {
	cur, err := l.db.Get(KeyCursor(l.name, group, l.shard))
	if err != nil || len(cur) < 8 {
		return Token{}, false
	}
	var t Token
	copy(t[:], cur[:8])
	return t, true
}

// ReadCursor loads a cursor without an open Log.
func ReadCursor(db *pebblestore.DB, name, group string, shard uint32) (uint64, bool) {
	cur, err := db.Get(KeyCursor(name, group, shard))
	if err != nil || len(cur) < 8 {
		return 0, false
	}
	return binary.BigEndian.Uint64(cur[:8]), true
}
