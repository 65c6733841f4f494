package docstore

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidatePath(t *testing.T) {
	for _, bad := range []string{"", "../etc/passwd", "a/../../b", "/abs"} {
		assert.ErrorIs(t, ValidatePath(bad), ErrNotFound, bad)
	}
	assert.NoError(t, ValidatePath("src/main.go"))
}

func testStorage(t *testing.T, s Storage) {
	ctx := context.Background()

	_, err := s.Read(ctx, 1, "missing.txt")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.Write(ctx, 1, "src/main.go", "package main\n"))
	require.NoError(t, s.Write(ctx, 1, "README.md", "héllo"))
	got, err := s.Read(ctx, 1, "src/main.go")
	require.NoError(t, err)
	assert.Equal(t, "package main\n", got)

	require.NoError(t, s.Write(ctx, 1, "src/main.go", "package app\n"))
	got, err = s.Read(ctx, 1, "src/main.go")
	require.NoError(t, err)
	assert.Equal(t, "package app\n", got)

	// rooms are isolated
	_, err = s.Read(ctx, 2, "README.md")
	assert.ErrorIs(t, err, ErrNotFound)

	err = s.Write(ctx, 1, "../escape", "x")
	assert.ErrorIs(t, err, ErrNotFound)

	files, err := s.List(ctx, 1)
	require.NoError(t, err)
	var paths []string
	for _, f := range files {
		if !f.IsDir {
			paths = append(paths, f.Path)
		}
	}
	assert.Equal(t, []string{"README.md", "src/main.go"}, paths)
}

func TestFS(t *testing.T) {
	s, err := NewFS(t.TempDir())
	require.NoError(t, err)
	testStorage(t, s)
}

func TestFSBinaryAndInvalidUTF8(t *testing.T) {
	root := t.TempDir()
	s, err := NewFS(root)
	require.NoError(t, err)
	dir := filepath.Join(root, "5")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bin"), []byte{'a', 0, 'b'}, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "latin1"), []byte{'c', 0xe9, 'd'}, 0o644))

	_, err = s.Read(context.Background(), 5, "bin")
	assert.ErrorIs(t, err, ErrBinaryFile)

	got, err := s.Read(context.Background(), 5, "latin1")
	require.NoError(t, err)
	assert.Equal(t, "c�d", got)
}

func TestFSUnusablePaths(t *testing.T) {
	ctx := context.Background()
	s, err := NewFS(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, s.Write(ctx, 1, "dir/inner.txt", "x"))
	require.NoError(t, s.Write(ctx, 1, "file.txt", "y"))

	for _, path := range []string{"dir", "file.txt/child", "x..y"} {
		_, err := s.Read(ctx, 1, path)
		assert.ErrorIs(t, err, ErrNotFound, "read "+path)
		assert.ErrorIs(t, s.Write(ctx, 1, path, ""), ErrNotFound, "write "+path)
	}
}

func TestFSListEmptyRoom(t *testing.T) {
	s, err := NewFS(t.TempDir())
	require.NoError(t, err)
	files, err := s.List(context.Background(), 99)
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestPostgres(t *testing.T) {
	url := os.Getenv("COEDIT_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("COEDIT_TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	p, err := OpenPostgres(ctx, url)
	require.NoError(t, err)
	defer p.Close()
	_, err = p.pool.Exec(ctx, `DELETE FROM room_files WHERE room_id IN (1, 2)`)
	require.NoError(t, err)
	testStorage(t, p)
}
