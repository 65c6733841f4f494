package docstore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"syscall"
)

const tempPrefix = ".coedit-"

// FS stores room files under {Root}/{room}/{path}.
type FS struct {
	Root string
}

// NewFS creates root if needed.
func NewFS(root string) (*FS, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create document root: %w", err)
	}
	return &FS{Root: root}, nil
}

func (s *FS) roomDir(room int64) string {
	return filepath.Join(s.Root, strconv.FormatInt(room, 10))
}

func (s *FS) file(room int64, path string) (string, error) {
	if err := ValidatePath(path); err != nil {
		return "", err
	}
	return filepath.Join(s.roomDir(room), filepath.FromSlash(path)), nil
}

func (s *FS) Read(ctx context.Context, room int64, path string) (string, error) {
	name, err := s.file(room, path)
	if err != nil {
		return "", err
	}
	if info, err := os.Stat(name); err == nil && info.IsDir() {
		return "", fmt.Errorf("%w: %d/%s is a directory", ErrNotFound, room, path)
	}
	b, err := os.ReadFile(name)
	if errors.Is(err, fs.ErrNotExist) || errors.Is(err, syscall.ENOTDIR) {
		return "", fmt.Errorf("%w: %d/%s", ErrNotFound, room, path)
	}
	if err != nil {
		return "", err
	}
	return decodeText(b)
}

// Write replaces the file atomically through a temp file and rename.
func (s *FS) Write(ctx context.Context, room int64, path, text string) error {
	name, err := s.file(room, path)
	if err != nil {
		return err
	}
	if info, err := os.Stat(name); err == nil && info.IsDir() {
		return fmt.Errorf("%w: %d/%s is a directory", ErrNotFound, room, path)
	}
	if err := os.MkdirAll(filepath.Dir(name), 0o755); err != nil {
		if errors.Is(err, syscall.ENOTDIR) {
			return fmt.Errorf("%w: %d/%s: parent is a file", ErrNotFound, room, path)
		}
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(name), tempPrefix+"*")
	if err != nil {
		return err
	}
	if _, err := tmp.WriteString(text); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), name)
}

func (s *FS) List(ctx context.Context, room int64) ([]File, error) {
	dir := s.roomDir(room)
	var out []File
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) && p == dir {
				return filepath.SkipDir
			}
			return err
		}
		if p == dir {
			return nil
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		if strings.HasPrefix(d.Name(), tempPrefix) {
			return nil
		}
		out = append(out, File{Path: filepath.ToSlash(rel), IsDir: d.IsDir()})
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

func (s *FS) Close() error { return nil }
