package store

import "errors"

var (
	// ErrInvalidKey is returned for document keys that fail validation.
	ErrInvalidKey = errors.New("store: invalid document key")
	// ErrInvalidShard is returned for shard ids outside [0, Shards()).
	ErrInvalidShard = errors.New("store: invalid shard")
	// ErrConflict is returned by Commit when the stored document is not at
	// the commit's predecessor revision or the shard checkpoint already
	// covers the entry: another worker got there first.
	ErrConflict = errors.New("store: commit conflict")
	// ErrNotFound is returned when a record is absent.
	ErrNotFound = errors.New("store: not found")
)
