package eventlog

import (
	"encoding/binary"

	"github.com/cockroachdb/pebble"

	pebblestore "github.com/rzbill/coedit/internal/storage/pebble"
)

// Token encodes a position as seq (8 bytes big-endian).
type Token [8]byte

// TokenFromSeq builds the token of seq.
func TokenFromSeq(seq uint64) Token {
	var t Token
	binary.BigEndian.PutUint64(t[:], seq)
	return t
}

func (t Token) Seq() uint64 { return binary.BigEndian.Uint64(t[:]) }

type ReadOptions struct {
	Start   Token // if zero, begin from the first entry
	Limit   int
	Reverse bool
}

type Item struct {
	Seq     uint64
	Header  []byte
	Payload []byte
}

func (l *Log) entryBounds() *pebble.IterOptions {
	prefix := keyEntryPrefix(l.name, l.shard)
	return &pebble.IterOptions{LowerBound: prefix, UpperBound: pebblestore.PrefixEnd(prefix)}
}

func seqOf(key []byte) uint64 {
	return binary.BigEndian.Uint64(key[len(key)-8:])
}

// Read returns up to Limit items starting at Start (inclusive). Reverse scans
// descending; with a zero Start it begins at the newest entry. The returned
// token is the position following the last item, zero when exhausted.
func (l *Log) Read(opts ReadOptions) ([]Item, Token) {
	var next Token
	items := make([]Item, 0, max(1, opts.Limit))
	iter, err := l.db.NewIter(l.entryBounds())
	if err != nil {
		return items, next
	}
	defer iter.Close()

	startSeq := opts.Start.Seq()
	startKey := KeyLogEntry(l.name, l.shard, startSeq)
	var ok bool
	step := iter.Next
	switch {
	case opts.Reverse && startSeq == 0:
		ok = iter.Last()
		step = iter.Prev
	case opts.Reverse:
		ok = iter.SeekLT(KeyLogEntry(l.name, l.shard, startSeq+1))
		step = iter.Prev
	case startSeq == 0:
		ok = iter.First()
	default:
		ok = iter.SeekGE(startKey)
	}
	for ; ok && (opts.Limit <= 0 || len(items) < opts.Limit); ok = step() {
		if dec, good := DecodeRecord(iter.Value()); good {
			items = append(items, Item{Seq: seqOf(iter.Key()), Header: dec.Header, Payload: dec.Payload})
		}
	}
	if ok {
		next = TokenFromSeq(seqOf(iter.Key()))
	}
	return items, next
}

// ReadAfter returns up to limit items with a sequence greater than seq.
func (l *Log) ReadAfter(seq uint64, limit int) []Item {
	items, _ := l.Read(ReadOptions{Start: TokenFromSeq(seq + 1), Limit: limit})
	return items
}
