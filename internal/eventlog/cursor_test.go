package eventlog

import (
	"context"
	"testing"
)

func TestCommitCursorIdempotent(t *testing.T) {
	l := newTestLog(t)
	seqs, err := l.Append(context.Background(), []AppendRecord{{Payload: []byte("a")}, {Payload: []byte("b")}})
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	tok1 := TokenFromSeq(seqs[0])
	tok2 := TokenFromSeq(seqs[1])

	if err := l.CommitCursor("worker", tok1); err != nil {
		t.Fatalf("commit1: %v", err)
	}
	if got, ok := l.GetCursor("worker"); !ok || got.Seq() != tok1.Seq() {
		t.Fatalf("cursor mismatch")
	}

	// committing same or lower should be no-op
	if err := l.CommitCursor("worker", tok1); err != nil {
		t.Fatalf("commit same: %v", err)
	}
	if err := l.CommitCursor("worker", TokenFromSeq(tok1.Seq()-1)); err != nil {
		t.Fatalf("commit lower: %v", err)
	}
	if got, ok := l.GetCursor("worker"); !ok || got.Seq() != tok1.Seq() {
		t.Fatalf("cursor regressed")
	}

	if err := l.CommitCursor("worker", tok2); err != nil {
		t.Fatalf("commit2: %v", err)
	}
	if got, _ := l.GetCursor("worker"); got.Seq() != tok2.Seq() {
		t.Fatalf("did not advance")
	}
}

func TestCommitCursorBatch(t *testing.T) {
	l := newTestLog(t)
	b := l.db.NewBatch()
	if err := b.Set([]byte("other"), []byte("v"), nil); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := l.CommitCursorBatch(b, "worker", TokenFromSeq(9)); err != nil {
		t.Fatalf("cursor in batch: %v", err)
	}
	if _, ok := l.GetCursor("worker"); ok {
		t.Fatalf("cursor visible before commit")
	}
	if err := l.db.CommitBatch(context.Background(), b); err != nil {
		t.Fatalf("commit batch: %v", err)
	}
	_ = b.Close()
	if got, ok := l.GetCursor("worker"); !ok || got.Seq() != 9 {
		t.Fatalf("cursor = %d (%v)", got.Seq(), ok)
	}
	if seq, ok := ReadCursor(l.db, "ot:ops", "worker", 1); !ok || seq != 9 {
		t.Fatalf("ReadCursor = %d (%v)", seq, ok)
	}
}

func TestCursorPersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	db := openTestDB(t, dir)
	l, err := OpenLog(db, "ot:ops", 1)
	if err != nil {
		t.Fatalf("open log: %v", err)
	}
	seqs, err := l.Append(context.Background(), []AppendRecord{{Payload: []byte("a")}})
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := l.CommitCursor("worker", TokenFromSeq(seqs[0])); err != nil {
		t.Fatalf("commit: %v", err)
	}
	_ = db.Close()

	db2 := openTestDB(t, dir)
	defer db2.Close()
	l2, err := OpenLog(db2, "ot:ops", 1)
	if err != nil {
		t.Fatalf("open log2: %v", err)
	}
	if got, ok := l2.GetCursor("worker"); !ok || got.Seq() != seqs[0] {
		t.Fatalf("cursor not persisted")
	}
}
