package eventlog

import (
	"bytes"
	"testing"
)

func TestKeyOrderingEntries(t *testing.T) {
	a := KeyLogEntry("ot:ops", 1, 10)
	b := KeyLogEntry("ot:ops", 1, 11)
	if !bytes.HasPrefix(a, keyEntryPrefix("ot:ops", 1)) {
		t.Fatalf("entry key should start with the shard entry prefix")
	}
	if bytes.Compare(a, b) >= 0 {
		t.Fatalf("expected seq 10 < seq 11")
	}
	if bytes.HasPrefix(KeyLogEntry("ot:ops", 2, 1), keyEntryPrefix("ot:ops", 1)) {
		t.Fatalf("shards must not share entry prefixes")
	}
}

func TestCursorKey(t *testing.T) {
	k := KeyCursor("ot:ops", "worker", 7)
	if !bytes.HasPrefix(k, []byte("cursor/ot:ops/worker/")) {
		t.Fatalf("unexpected cursor layout: %q", string(k))
	}
	if bytes.Equal(k, KeyCursor("ot:ops", "worker", 8)) {
		t.Fatalf("cursor keys must differ by shard")
	}
}
