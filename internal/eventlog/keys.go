package eventlog

import (
	"encoding/binary"
)

var (
	sep        = byte('/')
	logPrefix  = []byte("log/")
	curPrefix  = []byte("cursor/")
	metaSuffix = []byte("/m")
	entrySeg   = []byte("/e/")
)

func appendBE4(dst []byte, v uint32) []byte {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	return append(dst, b[:]...)
}

func appendBE8(dst []byte, v uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	return append(dst, b[:]...)
}

func logBase(name string, shard uint32) []byte {
	k := make([]byte, 0, len(name)+32)
	k = append(k, logPrefix...)
	k = append(k, name...)
	k = append(k, sep)
	return appendBE4(k, shard)
}

// KeyLogMeta builds the shard metadata key.
func KeyLogMeta(name string, shard uint32) []byte {
	return append(logBase(name, shard), metaSuffix...)
}

// KeyLogEntry builds the entry key with a big-endian sequence for ordering.
func KeyLogEntry(name string, shard uint32, seq uint64) []byte {
	k := append(logBase(name, shard), entrySeg...)
	return appendBE8(k, seq)
}

// keyEntryPrefix is the common prefix of every entry of a shard.
func keyEntryPrefix(name string, shard uint32) []byte {
	return append(logBase(name, shard), entrySeg...)
}

// KeyCursor builds the durable cursor key for a consumer group and shard.
func KeyCursor(name, group string, shard uint32) []byte {
	k := make([]byte, 0, len(name)+len(group)+24)
	k = append(k, curPrefix...)
	k = append(k, name...)
	k = append(k, sep)
	k = append(k, group...)
	k = append(k, sep)
	return appendBE4(k, shard)
}
