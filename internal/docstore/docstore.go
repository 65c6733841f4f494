// Package docstore reads and writes the files backing room documents. A
// room document's first revision is seeded from its file and every applied
// edit writes the converged text back.
package docstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound is returned for missing files and rejected paths.
	ErrNotFound = errors.New("docstore: file not found")
	// ErrBinaryFile is returned when a file contains NUL bytes.
	ErrBinaryFile = errors.New("docstore: binary file")
)

// File describes one stored file.
type File struct {
	Path  string `json:"path"`
	IsDir bool   `json:"is_dir,omitempty"`
}

// Storage is the document storage boundary.
type Storage interface {
	Read(ctx context.Context, room int64, path string) (string, error)
	Write(ctx context.Context, room int64, path, text string) error
	// List returns every file of room sorted by path.
	List(ctx context.Context, room int64) ([]File, error)
	Close() error
}

// ValidatePath rejects empty, absolute and traversing paths.
func ValidatePath(path string) error {
	switch {
	case path == "":
		return fmt.Errorf("%w: empty path", ErrNotFound)
	case strings.Contains(path, ".."):
		return fmt.Errorf("%w: path %q escapes the room", ErrNotFound, path)
	case strings.HasPrefix(path, "/"):
		return fmt.Errorf("%w: absolute path %q", ErrNotFound, path)
	case strings.ContainsRune(path, 0):
		return fmt.Errorf("%w: path contains NUL", ErrNotFound)
	}
	return nil
}

// decodeText rejects binary content and replaces invalid UTF-8.
func decodeText(b []byte) (string, error) {
	for _, c := range b {
		if c == 0 {
			return "", ErrBinaryFile
		}
	}
	return strings.ToValidUTF8(string(b), "�"), nil
}
