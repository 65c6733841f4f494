package store

import (
	"encoding/base64"
	"fmt"
	"hash/crc32"
	"strconv"

	"github.com/rzbill/coedit/internal/docstore"
)

// Scope tells whether a document belongs to a room or is the shared scratch
// document.
type Scope string

const (
	ScopeRoom   Scope = "room"
	ScopeGlobal Scope = "global"
)

const (
	// GlobalRoomID and GlobalPath address the scratch document that has no
	// backing file.
	GlobalRoomID int64 = 0
	GlobalPath         = "__global__"
)

// DocKey identifies one collaboratively edited document.
type DocKey struct {
	Scope Scope
	Room  int64
	Path  string
}

// RoomDoc returns the key of a file inside a room.
func RoomDoc(room int64, path string) DocKey {
	return DocKey{Scope: ScopeRoom, Room: room, Path: path}
}

// GlobalDoc returns the key of the scratch document.
func GlobalDoc() DocKey {
	return DocKey{Scope: ScopeGlobal, Room: GlobalRoomID, Path: GlobalPath}
}

// Validate rejects keys that cannot be stored.
func (k DocKey) Validate() error {
	switch k.Scope {
	case ScopeGlobal:
		if k.Room != GlobalRoomID || k.Path != GlobalPath {
			return fmt.Errorf("%w: malformed global document key", ErrInvalidKey)
		}
		return nil
	case ScopeRoom:
	default:
		return fmt.Errorf("%w: unknown scope %q", ErrInvalidKey, k.Scope)
	}
	if k.Room <= 0 {
		return fmt.Errorf("%w: room id must be positive", ErrInvalidKey)
	}
	if err := docstore.ValidatePath(k.Path); err != nil {
		return fmt.Errorf("%w: bad path %q: %v", ErrInvalidKey, k.Path, err)
	}
	return nil
}

// ID is the "{room}:{path}" form used in storage keys and for shard hashing.
func (k DocKey) ID() string {
	return strconv.FormatInt(k.Room, 10) + ":" + k.Path
}

// String includes the scope and is used to key session caches and logs.
func (k DocKey) String() string {
	return string(k.Scope) + ":" + k.ID()
}

// Channel names the fan-out channel subscribers of the document listen on.
func (k DocKey) Channel() string {
	if k.Scope == ScopeGlobal {
		return "collab:global"
	}
	return "collab:room:" + strconv.FormatInt(k.Room, 10) + ":" + base64.RawURLEncoding.EncodeToString([]byte(k.Path))
}

// ShardFor maps a document onto one of n streams. Every process must agree
// on n for edits of one document to stay on one worker.
func ShardFor(k DocKey, n int) int {
	if n <= 1 {
		return 0
	}
	return int(crc32.ChecksumIEEE([]byte(k.ID())) % uint32(n))
}
