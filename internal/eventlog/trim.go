package eventlog

import (
	"context"

	"github.com/cockroachdb/pebble"
)

// TrimHook observes trimmed ranges, for example to count them.
type TrimHook func(name string, shard uint32, minSeq, maxSeq uint64)

// TrimThrough deletes every entry with a sequence <= seq. Deletes are
// committed in batches of up to batchLimit keys. Returns the number of
// deleted entries.
func (l *Log) TrimThrough(ctx context.Context, seq uint64, batchLimit int, hook TrimHook) (int, error) {
	if seq == 0 {
		return 0, nil
	}
	if batchLimit <= 0 {
		batchLimit = 1024
	}
	opts := l.entryBounds()
	opts.UpperBound = KeyLogEntry(l.name, l.shard, seq+1)
	iter, err := l.db.NewIter(opts)
	if err != nil {
		return 0, err
	}
	defer iter.Close()

	deleted := 0
	var minSeq, maxSeq uint64
	for ok := iter.First(); ok; {
		if err := ctx.Err(); err != nil {
			return deleted, err
		}
		b := l.db.NewBatch()
		n := 0
		for ; ok && n < batchLimit; ok = iter.Next() {
			s := seqOf(iter.Key())
			if err := b.Delete(iter.Key(), nil); err != nil {
				b.Close()
				return deleted, err
			}
			if deleted+n == 0 {
				minSeq = s
			}
			maxSeq = s
			n++
		}
		if err := l.commitTrim(ctx, b); err != nil {
			return deleted, err
		}
		deleted += n
	}
	if deleted > 0 && hook != nil {
		hook(l.name, l.shard, minSeq, maxSeq)
	}
	return deleted, nil
}

func (l *Log) commitTrim(ctx context.Context, b *pebble.Batch) error {
	defer b.Close()
	return l.db.CommitBatch(ctx, b)
}
