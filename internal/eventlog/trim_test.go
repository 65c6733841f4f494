package eventlog

import (
	"context"
	"testing"
)

func TestTrimThrough(t *testing.T) {
	l, _ := seedLog(t, 5)

	var gotMin, gotMax uint64
	hook := func(name string, shard uint32, minSeq, maxSeq uint64) {
		gotMin, gotMax = minSeq, maxSeq
	}
	n, err := l.TrimThrough(context.Background(), 3, 2, hook)
	if err != nil {
		t.Fatalf("trim: %v", err)
	}
	if n != 3 {
		t.Fatalf("expected 3 deleted, got %d", n)
	}
	if gotMin != 1 || gotMax != 3 {
		t.Fatalf("hook range = [%d, %d]", gotMin, gotMax)
	}
	items := l.ReadAfter(0, 10)
	if len(items) != 2 || items[0].Seq != 4 {
		t.Fatalf("unexpected remaining items %+v", items)
	}
}

func TestTrimThroughKeepsSequence(t *testing.T) {
	l, _ := seedLog(t, 2)
	if _, err := l.TrimThrough(context.Background(), 2, 0, nil); err != nil {
		t.Fatalf("trim: %v", err)
	}
	seqs, err := l.Append(context.Background(), []AppendRecord{{Payload: []byte("z")}})
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if seqs[0] != 3 {
		t.Fatalf("sequence restarted: %d", seqs[0])
	}
}

func TestTrimThroughZeroIsNoop(t *testing.T) {
	l, _ := seedLog(t, 2)
	n, err := l.TrimThrough(context.Background(), 0, 0, nil)
	if err != nil || n != 0 {
		t.Fatalf("trim(0) = %d, %v", n, err)
	}
}
