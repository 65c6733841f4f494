// Package eventlog implements the append-only, per-shard edit logs used by
// the embedded store.
//
// # Overview
//
// Each log is identified by a name and a shard number and persisted in
// Pebble. Keys sort lexicographically so an entry range is one scan:
//   - log/{name}/{shard_be4}/m           (metadata: last sequence)
//   - log/{name}/{shard_be4}/e/{seq_be8} (entries)
//   - cursor/{name}/{group}/{shard_be4}  (durable consumer cursors)
//
// Records are stored as: varint headerLen | header | payload | crc32c.
// Headers written by Append carry the append time in milliseconds.
//
// API surface (internal)
//
//	l, _ := OpenLog(db, "ot:ops", 3)
//	seqs, _ := l.Append(ctx, []AppendRecord{{Payload: p}})
//
//	// Read entries after the last consumed sequence
//	items := l.ReadAfter(lastSeq, 100)
//
//	// Block until the next append, a timeout, or ctx cancellation
//	woke := l.WaitForAppend(ctx, time.Second)
//
//	// Durable cursors, either alone or inside a caller's batch so the
//	// cursor moves atomically with other writes
//	_ = l.CommitCursor("worker", TokenFromSeq(seqs[0]))
//	_ = l.CommitCursorBatch(b, "worker", TokenFromSeq(seqs[0]))
//
//	// Drop entries a consumer no longer needs
//	_, _ = l.TrimThrough(ctx, cursorSeq, 1024)
package eventlog
